package l1chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	"github.com/syncrollup/core/internal/trace"
)

// EthClientAdapter satisfies Client over a real L1 JSON-RPC endpoint,
// wrapping both the standard *ethclient.Client (for the bulk of
// Client's surface) and the underlying *rpc.Client (for the one raw
// debug_traceCall this package needs, exactly the
// `ethclient.NewClient(rpcClient)` pairing op-e2e/derivation's actors
// use). It translates this package's local FilterQuery/CallMsg (kept
// local so l1chain does not need the full `ethereum` interfaces import
// for two structs, per client.go's doc comment) into go-ethereum's own
// shapes at the boundary.
type EthClientAdapter struct {
	c   *ethclient.Client
	rpc *gethrpc.Client
}

// DialEthClientAdapter connects once and returns an adapter backed by
// both views of the same connection (ethclient for the bulk read/write
// surface, the raw rpc.Client for debug_traceCall).
func DialEthClientAdapter(ctx context.Context, url string) (*EthClientAdapter, error) {
	rc, err := gethrpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("l1chain: dial %s: %w", url, err)
	}
	return &EthClientAdapter{c: ethclient.NewClient(rc), rpc: rc}, nil
}

// NewEthClientAdapter wraps an already-constructed *ethclient.Client;
// cmd/fullnode uses it, since the fullnode never traces L1 calls.
// debug_traceCall is
// unavailable through this constructor; callers needing it should use
// DialEthClientAdapter.
func NewEthClientAdapter(c *ethclient.Client) *EthClientAdapter {
	return &EthClientAdapter{c: c}
}

func (a *EthClientAdapter) BlockNumber(ctx context.Context) (uint64, error) {
	return a.c.BlockNumber(ctx)
}

func (a *EthClientAdapter) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return a.c.HeaderByNumber(ctx, number)
}

func (a *EthClientAdapter) FilterLogs(ctx context.Context, q FilterQuery) ([]types.Log, error) {
	return a.c.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: q.FromBlock,
		ToBlock:   q.ToBlock,
		Addresses: q.Addresses,
		Topics:    q.Topics,
	})
}

func (a *EthClientAdapter) CallContract(ctx context.Context, msg CallMsg, blockNumber *big.Int) ([]byte, error) {
	return a.c.CallContract(ctx, ethereum.CallMsg{
		From:  msg.From,
		To:    msg.To,
		Value: msg.Value,
		Gas:   msg.Gas,
		Data:  msg.Data,
	}, blockNumber)
}

func (a *EthClientAdapter) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return a.c.PendingNonceAt(ctx, account)
}

func (a *EthClientAdapter) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	return a.c.SendTransaction(ctx, tx)
}

// callTracerFrame mirrors the same callTracer JSON shape l2chain
// decodes; duplicated rather than shared package-level so l1chain does
// not need to import l2chain for one private type, only the public
// trace.CallFrame both sides hand to discovery.
type callTracerFrame struct {
	From   common.Address    `json:"from"`
	To     common.Address    `json:"to"`
	Value  *hexutil.Big      `json:"value"`
	Input  hexutil.Bytes     `json:"input"`
	Output hexutil.Bytes     `json:"output"`
	Calls  []callTracerFrame `json:"calls"`
}

func (f callTracerFrame) toCallFrame() trace.CallFrame {
	value := big.NewInt(0)
	if f.Value != nil {
		value = (*big.Int)(f.Value)
	}
	out := trace.CallFrame{From: f.From, To: f.To, Value: value, Input: f.Input, Output: f.Output}
	for _, c := range f.Calls {
		out.Calls = append(out.Calls, c.toCallFrame())
	}
	return out
}

// TraceCall simulates msg against blockNumber (nil for latest) via
// debug_traceCall, used by discovery to find calls an L1-source tx
// would make against a known L2→L1 proxy before that tx is ever
// broadcast (§4.3.2 step 1: "trace the transaction to detect any
// sub-call whose recipient is an L2→L1 proxy contract").
func (a *EthClientAdapter) TraceCall(ctx context.Context, msg CallMsg, blockNumber *big.Int) (*trace.CallFrame, error) {
	if a.rpc == nil {
		return nil, fmt.Errorf("l1chain: adapter has no raw rpc client for debug_traceCall")
	}
	callObj := map[string]interface{}{
		"from": msg.From,
		"to":   msg.To,
		"data": hexutil.Bytes(msg.Data),
	}
	if msg.Value != nil {
		callObj["value"] = (*hexutil.Big)(msg.Value)
	}
	blockArg := "latest"
	if blockNumber != nil {
		blockArg = hexutil.EncodeBig(blockNumber)
	}
	var raw callTracerFrame
	err := a.rpc.CallContext(ctx, &raw, "debug_traceCall", callObj, blockArg, map[string]string{"tracer": "callTracer"})
	if err != nil {
		return nil, fmt.Errorf("l1chain: debug_traceCall: %w", err)
	}
	frame := raw.toCallFrame()
	return &frame, nil
}
