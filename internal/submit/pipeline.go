// Package submit implements the Builder's Registration & Submission
// Pipeline (§4.4): given a candidate L2 tx, it discovers the tx's
// cross-chain side effects, attests to them with a proof, and submits
// the whole bundle to L1 — or, for an L1-originated call, registers
// the call's resolved response so the fullnode can later replay it.
package submit

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"

	"github.com/syncrollup/core/internal/discovery"
	"github.com/syncrollup/core/internal/l1chain"
	"github.com/syncrollup/core/internal/l2chain"
	"github.com/syncrollup/core/internal/rollup"
	"github.com/syncrollup/core/internal/txmgr"
)

// Pipeline ties together a private L2 EVM instance (for discovery
// simulation), the real L1 chain (for resolving and submitting), and
// an admin proof oracle (§9), implementing §4.4's three endpoints.
type Pipeline struct {
	log    log.Logger
	cfg    *rollup.Config
	driver *l2chain.Driver
	l1     l1chain.Client
	txmgr  *txmgr.Mgr
	signer Signer
	lock   *TipLock
}

func NewPipeline(l log.Logger, cfg *rollup.Config, driver *l2chain.Driver, l1 l1chain.Client, mgr *txmgr.Mgr, signer Signer) *Pipeline {
	return &Pipeline{
		log:    l,
		cfg:    cfg,
		driver: driver,
		l1:     l1,
		txmgr:  mgr,
		signer: signer,
		lock:   NewTipLock(l1),
	}
}

// SubmitTx runs §4.4 for one candidate L2 transaction: discover its
// outgoing calls against the Builder's private EVM instance (§4.3),
// build and sign the commitment, and submit processTx to L1 holding
// the current-tip lock so the prevL2Root a concurrent submission
// observes can never be stale by the time it is checked on-chain.
func (p *Pipeline) SubmitTx(ctx context.Context, prevL2Root common.Hash, rlpEncodedTx []byte, sim discovery.Simulator) (*types.Transaction, error) {
	head, err := p.l1.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("submit: fetch L1 head: %w", err)
	}

	result, err := discovery.RunFixedPoint(ctx, p.log, p.driver, p.l1, p.cfg, sim)
	if err != nil {
		return nil, err
	}

	commitment := Commitment{
		PrevL2Root:      prevL2Root,
		RLPEncodedTx:    rlpEncodedTx,
		OutgoingCalls:   discovery.CallKeys(result.Calls),
		OutgoingResults: result.Results,
	}
	proof, err := p.signer.Sign(commitment)
	if err != nil {
		return nil, err
	}

	var tx *types.Transaction
	err = p.lock.WithTip(ctx, head.Hash(), func() error {
		data, packErr := l1chain.RollupABI.Pack("processTx", prevL2Root, rlpEncodedTx, toOutgoingCallTuples(result.Calls), result.Results, proof)
		if packErr != nil {
			return fmt.Errorf("submit: pack processTx: %w", packErr)
		}
		var sendErr error
		tx, sendErr = p.txmgr.Send(ctx, p.cfg.L1RollupContract, data, nil)
		return sendErr
	})
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// RegisterIncomingCall submits registerIncomingCall for an L1→L2 call
// this instance has resolved to a fixed point against its own private
// L2 simulation (§4.3.2 steps 3-4, §4.3.3): outgoingCalls/outgoingResults
// are the nested outgoing calls the incoming call itself triggered,
// response is the predicted return value, and finalL2Root is the root
// reached after replaying it — the admin proof attests to all four
// together with the call's own inputs (§4.4 step 3, §3 "Registered
// incoming responses") so the fullnode can later replay it
// deterministically via the Call Registry.
func (p *Pipeline) RegisterIncomingCall(ctx context.Context, l2Target common.Address, prevL2Root common.Hash, callData []byte, value *big.Int, outgoingCalls []common.Hash, outgoingResults [][]byte, response []byte, finalL2Root common.Hash) (*types.Transaction, error) {
	commitment := IncomingCommitment{
		L2Target:        l2Target,
		PrevL2Root:      prevL2Root,
		CallData:        callData,
		Value:           value,
		OutgoingCalls:   outgoingCalls,
		OutgoingResults: outgoingResults,
		Response:        response,
		FinalL2Root:     finalL2Root,
	}
	proof, err := p.signer.SignIncoming(commitment)
	if err != nil {
		return nil, err
	}

	data, err := l1chain.RollupABI.Pack("registerIncomingCall", l2Target, prevL2Root, callData, value, response, finalL2Root, proof)
	if err != nil {
		return nil, fmt.Errorf("submit: pack registerIncomingCall: %w", err)
	}
	return p.txmgr.Send(ctx, p.cfg.L1RollupContract, data, nil)
}

// DeployL2SenderProxy submits deployL2SenderProxy for an L2 address
// whose L2→L1 proxy has not been deployed on L1 yet (§4.4 step 1,
// §4.6), so the L1 rollup contract deploys that proxy at its
// precomputed CREATE2 address.
func (p *Pipeline) DeployL2SenderProxy(ctx context.Context, l2Address common.Address) (*types.Transaction, error) {
	data, err := l1chain.RollupABI.Pack("deployL2SenderProxy", l2Address)
	if err != nil {
		return nil, fmt.Errorf("submit: pack deployL2SenderProxy: %w", err)
	}
	return p.txmgr.Send(ctx, p.cfg.L1RollupContract, data, nil)
}

// toOutgoingCallTuples packs discovered calls into the ABI tuple shape
// rollupABIJSON's processTx expects, matching internal/l1chain's
// outgoingCallStruct field order exactly.
func toOutgoingCallTuples(calls []discovery.OutgoingCall) []struct {
	From              common.Address
	Target            common.Address
	Value             *big.Int
	Gas               *big.Int
	Data              []byte
	PostCallStateHash [32]byte
} {
	out := make([]struct {
		From              common.Address
		Target            common.Address
		Value             *big.Int
		Gas               *big.Int
		Data              []byte
		PostCallStateHash [32]byte
	}, len(calls))
	for i, c := range calls {
		out[i].From = c.From
		out[i].Target = c.Target
		out[i].Value = big.NewInt(0)
		out[i].Gas = big.NewInt(int64(defaultDispatchGas))
		out[i].Data = c.CallData
		// PostCallStateHash is computed and verified by the L1 contract
		// from its own execution trace, not by the Builder; left zero
		// here, the Builder's role ends at proposing calls and results.
	}
	return out
}

const defaultDispatchGas = 1_000_000
