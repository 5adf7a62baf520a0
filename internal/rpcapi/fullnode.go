// Package rpcapi defines the JSON-RPC method sets served by each
// binary (§6), structured as plain Go types with exported methods the
// way go-ethereum/rpc.Server expects: registering FullnodeAPI under
// namespace "eth" exposes eth_blockNumber, eth_getBalance, etc., and
// registering RollupAPI under "rollup" exposes the one custom read,
// rollup_stateRoot.
package rpcapi

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/syncrollup/core/internal/l2chain"
)

// FullnodeAPI is a thin pass-through over the L2 Execution Driver's
// ReadClient, reusing its exact read semantics rather than
// reimplementing state access: the public RPC surface and the
// derivation engine look at the same canonical chain (§6).
type FullnodeAPI struct {
	client l2chain.ReadClient
}

func NewFullnodeAPI(client l2chain.ReadClient) *FullnodeAPI {
	return &FullnodeAPI{client: client}
}

func (a *FullnodeAPI) BlockNumber(ctx context.Context) (hexutil.Uint64, error) {
	n, err := a.client.BlockNumber(ctx)
	return hexutil.Uint64(n), err
}

func (a *FullnodeAPI) GetBalance(ctx context.Context, address common.Address, blockNumber rpc.BlockNumber) (*hexutil.Big, error) {
	bal, err := a.client.BalanceAt(ctx, address, blockNumberArg(blockNumber))
	if err != nil {
		return nil, err
	}
	return (*hexutil.Big)(bal), nil
}

func (a *FullnodeAPI) GetCode(ctx context.Context, address common.Address, blockNumber rpc.BlockNumber) (hexutil.Bytes, error) {
	return a.client.CodeAt(ctx, address, blockNumberArg(blockNumber))
}

func (a *FullnodeAPI) GetStorageAt(ctx context.Context, address common.Address, key common.Hash, blockNumber rpc.BlockNumber) (hexutil.Bytes, error) {
	return a.client.StorageAt(ctx, address, key, blockNumberArg(blockNumber))
}

func (a *FullnodeAPI) GetBlockByNumber(ctx context.Context, blockNumber rpc.BlockNumber, fullTx bool) (*types.Block, error) {
	return a.client.BlockByNumber(ctx, blockNumberArg(blockNumber))
}

// CallArgs mirrors the standard eth_call request shape.
type CallArgs struct {
	From common.Address  `json:"from"`
	To   *common.Address `json:"to"`
	Data hexutil.Bytes   `json:"data"`
}

func (a *FullnodeAPI) Call(ctx context.Context, args CallArgs, blockNumber rpc.BlockNumber) (hexutil.Bytes, error) {
	msg := ethereum.CallMsg{From: args.From, To: args.To, Data: args.Data}
	return a.client.CallContract(ctx, msg, blockNumberArg(blockNumber))
}

func blockNumberArg(n rpc.BlockNumber) *big.Int {
	if n == rpc.LatestBlockNumber || n == rpc.PendingBlockNumber {
		return nil
	}
	return big.NewInt(n.Int64())
}

// RollupAPI serves the one custom read this repo adds beyond the
// standard eth_* surface: rollup_stateRoot, the canonical L2 state
// root the fullnode has derived so far (§3 invariant 1).
type RollupAPI struct {
	stateRoot func(ctx context.Context) (common.Hash, error)
}

func NewRollupAPI(stateRoot func(ctx context.Context) (common.Hash, error)) *RollupAPI {
	return &RollupAPI{stateRoot: stateRoot}
}

func (a *RollupAPI) StateRoot(ctx context.Context) (common.Hash, error) {
	return a.stateRoot(ctx)
}
