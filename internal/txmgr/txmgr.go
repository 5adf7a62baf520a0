// Package txmgr is a small nonce-tracking L1 transaction signer/sender,
// generalized from the teacher's batch-submission pattern
// (l2_batcher.go's actL2BatchSubmit: fetch pending nonce, build a
// DynamicFeeTx against the pending base fee, sign, send) to the three
// L1 endpoints this repo's Builder calls (§6): process a single tx,
// register an incoming call, deploy an L2 sender proxy.
package txmgr

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/params"

	"github.com/syncrollup/core/internal/errs"
	"github.com/syncrollup/core/internal/l1chain"
)

// Mgr signs and sends transactions against a single account on L1. It
// holds no lock of its own: each Send reads the account's pending
// nonce, so concurrent Send calls are serialized by the caller
// (admission.Handler's mutex), not here.
type Mgr struct {
	log    log.Logger
	client l1chain.Client
	chainID *big.Int
	key     *ecdsa.PrivateKey
	signer  types.Signer
	from    common.Address
}

func New(l log.Logger, client l1chain.Client, chainID *big.Int, key *ecdsa.PrivateKey) *Mgr {
	return &Mgr{
		log:     l,
		client:  client,
		chainID: chainID,
		key:     key,
		signer:  types.LatestSignerForChainID(chainID),
		from:    crypto.PubkeyToAddress(key.PublicKey),
	}
}

func (m *Mgr) From() common.Address { return m.from }

// Send builds, signs, and submits a dynamic-fee tx calling `to` with
// `data`, following the teacher's fee-estimation shape (tip +
// 2*baseFee headroom) and intrinsic-gas computation rather than a
// fixed gas limit.
func (m *Mgr) Send(ctx context.Context, to common.Address, data []byte, value *big.Int) (*types.Transaction, error) {
	nonce, err := m.client.PendingNonceAt(ctx, m.from)
	if err != nil {
		return nil, errs.New(errs.KindRpcTransient, "txmgr: fetch pending nonce", err)
	}

	pendingHeader, err := m.client.HeaderByNumber(ctx, big.NewInt(-1))
	if err != nil {
		return nil, errs.New(errs.KindRpcTransient, "txmgr: fetch pending header", err)
	}
	gasTipCap := big.NewInt(2 * params.GWei)
	gasFeeCap := new(big.Int).Add(gasTipCap, new(big.Int).Mul(pendingHeader.BaseFee, big.NewInt(2)))

	if value == nil {
		value = big.NewInt(0)
	}
	rawTx := &types.DynamicFeeTx{
		ChainID:   m.chainID,
		Nonce:     nonce,
		To:        &to,
		Value:     value,
		GasTipCap: gasTipCap,
		GasFeeCap: gasFeeCap,
		Data:      data,
	}
	gas, err := core.IntrinsicGas(rawTx.Data, nil, false, true, true)
	if err != nil {
		return nil, fmt.Errorf("txmgr: compute intrinsic gas: %w", err)
	}
	rawTx.Gas = gas + 100_000 // headroom for the destination contract's own execution

	tx, err := types.SignNewTx(m.key, m.signer, rawTx)
	if err != nil {
		return nil, fmt.Errorf("txmgr: sign tx: %w", err)
	}

	if err := m.client.SendTransaction(ctx, tx); err != nil {
		kind := errs.KindRpcTransient
		if nonceLooksStale(err) {
			kind = errs.KindTxNonceMismatch
		}
		return nil, errs.New(kind, "txmgr: send tx", err)
	}
	m.log.Info("submitted L1 tx", "to", to, "nonce", nonce, "hash", tx.Hash())
	return tx, nil
}

func nonceLooksStale(err error) bool {
	// Common node error text for a nonce already used/too low; matched
	// loosely since node implementations don't agree on a typed error.
	s := err.Error()
	return strings.Contains(s, "nonce too low") || strings.Contains(s, "replacement transaction underpriced") || strings.Contains(s, "already known")
}
