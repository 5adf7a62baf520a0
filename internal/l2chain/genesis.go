package l2chain

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/syncrollup/core/internal/errs"
	"github.com/syncrollup/core/internal/l2chain/bindings"
	"github.com/syncrollup/core/internal/rollup"
)

// BuildGenesis installs the fixed L2 genesis state against a fresh
// external EVM instance, following §4.1 steps 1-5:
//  1. compute S, R, F deterministically (never re-derived afterward)
//  2. credit S with the configured genesis balance
//  3. install R's bytecode at S's nonce-0 address
//  4. install F's bytecode at S's nonce-1 address (fixed bytecode set
//     directly, no constructor run)
//  5. advance S's nonce past 0 and 1 so neither address can collide
//     with a later real deployment
//
// It returns the resulting state root so callers can compare it
// against whatever root the rollup contract recorded as canonical
// genesis, per the "MisconfiguredGenesis" fatal condition.
func BuildGenesis(ctx context.Context, d *Driver) (common.Hash, error) {
	addrs := rollup.ComputeAddresses()

	if err := d.FundSystem(ctx); err != nil {
		return common.Hash{}, err
	}
	if err := d.client.SetCode(ctx, addrs.CallRegistry, bindings.RegistryDeployedBytecode); err != nil {
		return common.Hash{}, errs.New(errs.KindRpcTransient, "l2chain: install registry bytecode", err)
	}
	if err := d.client.SetCode(ctx, addrs.ProxyFactory, bindings.FactoryDeployedBytecode); err != nil {
		return common.Hash{}, errs.New(errs.KindRpcTransient, "l2chain: install factory bytecode", err)
	}
	if err := d.client.SetNonce(ctx, addrs.System, 2); err != nil {
		return common.Hash{}, errs.New(errs.KindRpcTransient, "l2chain: advance system nonce past genesis deploys", err)
	}

	root, err := d.StateRoot(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	d.addrs = addrs
	return root, nil
}

// VerifyGenesis checks a derived genesis root against the root the L1
// rollup contract recorded at deployment (§3 invariant 1, "MisconfiguredGenesis"
// is the one condition this repo cannot recover from: the fullnode and
// the L1 contract disagreeing on what block zero even is).
func VerifyGenesis(derivedRoot, expectedRoot common.Hash) error {
	if derivedRoot != expectedRoot {
		return errs.New(errs.KindMisconfiguredGenesis,
			fmt.Sprintf("derived genesis root %s does not match L1-recorded genesis root %s", derivedRoot, expectedRoot), nil)
	}
	return nil
}
