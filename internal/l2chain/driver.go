// Package l2chain drives the external L2 EVM that backs derived state
// (§4.1, §4.5). It never interprets bytecode itself; every mutation
// goes out over Client as an RPC call or signed transaction, exactly
// as op-e2e/derivation's actors drive their engine API rather than
// embedding one.
package l2chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"

	"github.com/syncrollup/core/internal/errs"
	"github.com/syncrollup/core/internal/rollup"
	"github.com/syncrollup/core/internal/trace"
)

// Driver is the L2 Execution Driver (§4.5): it owns one external EVM
// instance (the fullnode's canonical chain, or the Builder's one
// private instance) and exposes exactly the operations
// the derivation engine and discovery pipeline need to build a block
// deterministically.
type Driver struct {
	log    log.Logger
	client Client
	cfg    *rollup.Config
	addrs  rollup.Addresses

	building bool

	proxiesMu sync.Mutex
	proxies   map[common.Address]struct{}
}

func NewDriver(l log.Logger, client Client, cfg *rollup.Config, addrs rollup.Addresses) *Driver {
	return &Driver{log: l, client: client, cfg: cfg, addrs: addrs, proxies: make(map[common.Address]struct{})}
}

// RecordProxy marks addr as a known, deployed L1→L2 proxy so later
// discovery runs can recognize traced calls against it without an
// extra RPC round-trip (§4.3.1 step a: "when a call to a proxy's
// outgoing path is reached").
func (d *Driver) RecordProxy(addr common.Address) {
	d.proxiesMu.Lock()
	defer d.proxiesMu.Unlock()
	d.proxies[addr] = struct{}{}
}

// IsKnownProxy reports whether addr has previously been recorded as a
// deployed L1→L2 proxy.
func (d *Driver) IsKnownProxy(addr common.Address) bool {
	d.proxiesMu.Lock()
	defer d.proxiesMu.Unlock()
	_, ok := d.proxies[addr]
	return ok
}

// ExecuteTraced submits tx, waits for its receipt, and returns the
// call-frame tree of its execution (callers flatten it with
// trace.Flatten), used by discovery to find
// calls the candidate tx made against a known L1→L2 proxy (§4.3.1).
// Unlike SendRaw/SendAsSystem, this is never wrapped in
// StartBlock/EndBlock: discovery runs entirely inside a
// Snapshot/Revert pair on the Builder's private instance, with
// automine left enabled so one SendTransaction call mines immediately.
func (d *Driver) ExecuteTraced(ctx context.Context, tx *types.Transaction) (*trace.CallFrame, error) {
	if err := d.client.SendTransaction(ctx, tx); err != nil {
		return nil, errs.New(errs.KindRpcTransient, "l2chain: send traced tx", err)
	}
	if _, err := d.client.TransactionReceipt(ctx, tx.Hash()); err != nil {
		return nil, errs.New(errs.KindRpcTransient, "l2chain: await traced tx receipt", err)
	}
	frame, err := d.client.TraceTransaction(ctx, tx.Hash())
	if err != nil {
		return nil, err
	}
	return frame, nil
}

func (d *Driver) Addresses() rollup.Addresses { return d.addrs }

// BlockNumber returns the external EVM's current head block number.
func (d *Driver) BlockNumber(ctx context.Context) (uint64, error) {
	n, err := d.client.BlockNumber(ctx)
	if err != nil {
		return 0, errs.New(errs.KindRpcTransient, "l2chain: block number", err)
	}
	return n, nil
}

// StateRoot returns the external EVM's current head state root, the
// canonical L2 state root this repo threads through every invariant
// check (§3 invariant 1, §4.1.4).
func (d *Driver) StateRoot(ctx context.Context) (common.Hash, error) {
	head, err := d.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, errs.New(errs.KindRpcTransient, "l2chain: fetch head header", err)
	}
	return head.Root, nil
}

// StartBlock begins building exactly one L2 block: automine is
// disabled and the next block's timestamp is pinned to the L1 block
// containing the triggering event (§4.1.3 "timestamps are sourced from
// L1, never wall clock"). Callers must pair this with EndBlock.
func (d *Driver) StartBlock(ctx context.Context, timestamp uint64) error {
	if d.building {
		return fmt.Errorf("l2chain: StartBlock called while a block is already open")
	}
	if err := d.client.SetAutomine(ctx, false); err != nil {
		return errs.New(errs.KindRpcTransient, "l2chain: disable automine", err)
	}
	if err := d.client.SetNextBlockTimestamp(ctx, timestamp); err != nil {
		return errs.New(errs.KindRpcTransient, "l2chain: set next block timestamp", err)
	}
	d.building = true
	return nil
}

// EndBlock mines every tx submitted since StartBlock into exactly one
// block and re-enables automine so a caller not actively deriving
// blocks can still send ordinary simulation txs (§4.1.3 "exactly one
// L2 block per processed event").
func (d *Driver) EndBlock(ctx context.Context) (*types.Block, error) {
	if !d.building {
		return nil, fmt.Errorf("l2chain: EndBlock called with no block open")
	}
	if err := d.client.Mine(ctx); err != nil {
		return nil, errs.New(errs.KindRpcTransient, "l2chain: mine block", err)
	}
	if err := d.client.SetAutomine(ctx, true); err != nil {
		return nil, errs.New(errs.KindRpcTransient, "l2chain: re-enable automine", err)
	}
	d.building = false
	n, err := d.client.BlockNumber(ctx)
	if err != nil {
		return nil, errs.New(errs.KindRpcTransient, "l2chain: block number after mine", err)
	}
	block, err := d.client.BlockByNumber(ctx, new(big.Int).SetUint64(n))
	if err != nil {
		return nil, errs.New(errs.KindRpcTransient, "l2chain: fetch mined block", err)
	}
	return block, nil
}

// SendAsSystem submits a call originating from System Address S,
// impersonated for the duration of the call since this repo never
// holds S's private key (§3: S never signs, it is only ever declared
// sender of privileged EVM operations issued directly by the engine).
func (d *Driver) SendAsSystem(ctx context.Context, to common.Address, data []byte, value *big.Int) (common.Hash, error) {
	return d.SendAsImpersonated(ctx, d.addrs.System, to, data, value)
}

// SendAsImpersonated submits a call from an arbitrary impersonated
// sender; SendAsSystem is its only caller in this repo, always with S
// as the sender. It returns the sent transaction's hash so
// callers that need its receipt or trace (e.g. discovery predicting an
// incoming call's response, §4.3.2) don't have to rebuild the tx
// themselves.
func (d *Driver) SendAsImpersonated(ctx context.Context, from, to common.Address, data []byte, value *big.Int) (common.Hash, error) {
	if err := d.client.ImpersonateAccount(ctx, from); err != nil {
		return common.Hash{}, errs.New(errs.KindRpcTransient, "l2chain: impersonate account", err)
	}
	defer func() { _ = d.client.StopImpersonating(ctx, from) }()

	nonce, err := d.client.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, errs.New(errs.KindRpcTransient, "l2chain: impersonated sender nonce", err)
	}
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      d.cfg.L2BlockGasLimit,
		GasPrice: big.NewInt(0),
		Data:     data,
	})
	if err := d.client.SendTransaction(ctx, tx); err != nil {
		return common.Hash{}, errs.New(errs.KindRpcTransient, "l2chain: send impersonated tx", err)
	}
	return tx.Hash(), nil
}

// ExecuteIncomingTraced predicts what replaying an L1→L2 incoming call
// will do, running the exact same sequence
// derive.Engine.applyIncomingCallHandled performs for real (ensure the
// L1→L2 proxy, forward the packed call from S) against whatever state
// the caller has already snapshotted/preloaded, and returns the
// resulting call trace so discovery can read its Output as the
// predicted response (§4.3.2 steps 3-4). Like ExecuteTraced, this is
// never wrapped in StartBlock/EndBlock: callers snapshot/revert around
// it instead and rely on automine to mine the call immediately.
func (d *Driver) ExecuteIncomingTraced(ctx context.Context, l1Caller, l2Target common.Address, callData []byte, value *big.Int) (*trace.CallFrame, error) {
	proxy := rollup.L1ToL2ProxyAddress(d.addrs.ProxyFactory, d.addrs.System, d.addrs.CallRegistry, l1Caller)
	if err := d.EnsureL1ToL2Proxy(ctx, l1Caller, proxy); err != nil {
		return nil, err
	}

	packed := make([]byte, 0, common.AddressLength+len(callData))
	packed = append(packed, l2Target.Bytes()...)
	packed = append(packed, callData...)

	txHash, err := d.SendAsSystem(ctx, proxy, packed, value)
	if err != nil {
		return nil, err
	}
	if _, err := d.client.TransactionReceipt(ctx, txHash); err != nil {
		return nil, errs.New(errs.KindRpcTransient, "l2chain: await incoming-call trace receipt", err)
	}
	frame, err := d.client.TraceTransaction(ctx, txHash)
	if err != nil {
		return nil, err
	}
	return frame, nil
}

// SendRaw submits an already-signed transaction exactly as it was
// RLP-encoded on L1 (§4.1.1: the processed tx is replayed verbatim,
// never re-derived, so its hash and sender recovery are identical to
// what L1 observed).
func (d *Driver) SendRaw(ctx context.Context, tx *types.Transaction) error {
	if err := d.client.SendTransaction(ctx, tx); err != nil {
		return errs.New(errs.KindRpcTransient, "l2chain: send raw tx", err)
	}
	return nil
}

// Snapshot/Revert back the Builder's private discovery attempts
// (§4.3, §4.5): each fixed-point iteration snapshots, applies a
// candidate tx, observes effects, then reverts before trying the next.
func (d *Driver) Snapshot(ctx context.Context) (string, error) {
	id, err := d.client.Snapshot(ctx)
	if err != nil {
		return "", errs.New(errs.KindRpcTransient, "l2chain: snapshot", err)
	}
	return id, nil
}

func (d *Driver) Revert(ctx context.Context, id string) error {
	if err := d.client.Revert(ctx, id); err != nil {
		return errs.New(errs.KindRpcTransient, "l2chain: revert", err)
	}
	return nil
}

// FundSystem credits S directly, used once at genesis (§4.1 step 2) to
// avoid needing a funding transaction for the account that will
// deploy R and F.
func (d *Driver) FundSystem(ctx context.Context) error {
	if err := d.client.SetBalance(ctx, d.addrs.System, d.cfg.GenesisBalance); err != nil {
		return errs.New(errs.KindRpcTransient, "l2chain: fund system address", err)
	}
	return nil
}
