package l2chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/syncrollup/core/internal/trace"
)

// RPCClient is the production Client: an anvil-compatible JSON-RPC
// endpoint, reached the way op-e2e/derivation's actors reach their
// engine (ethclient.Client wrapping the same *rpc.Client used for raw
// calls) rather than through a purpose-built SDK. *ethclient.Client
// alone already satisfies Backend and ReadClient; RPCClient adds the
// anvil-specific AdminClient methods as raw CallContext invocations,
// since go-ethereum ships no typed bindings for them.
type RPCClient struct {
	*ethclient.Client
	rpc *rpc.Client
}

// Dial connects to an anvil-compatible L2 endpoint and wraps it as a
// full l2chain.Client.
func Dial(ctx context.Context, url string) (*RPCClient, error) {
	rc, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("l2chain: dial %s: %w", url, err)
	}
	return &RPCClient{Client: ethclient.NewClient(rc), rpc: rc}, nil
}

func (c *RPCClient) SetAutomine(ctx context.Context, on bool) error {
	return c.rpc.CallContext(ctx, nil, "evm_setAutomine", on)
}

func (c *RPCClient) SetNextBlockTimestamp(ctx context.Context, timestamp uint64) error {
	return c.rpc.CallContext(ctx, nil, "evm_setNextBlockTimestamp", hexutil.Uint64(timestamp))
}

func (c *RPCClient) Mine(ctx context.Context) error {
	return c.rpc.CallContext(ctx, nil, "evm_mine")
}

func (c *RPCClient) ImpersonateAccount(ctx context.Context, addr common.Address) error {
	return c.rpc.CallContext(ctx, nil, "anvil_impersonateAccount", addr)
}

func (c *RPCClient) StopImpersonating(ctx context.Context, addr common.Address) error {
	return c.rpc.CallContext(ctx, nil, "anvil_stopImpersonatingAccount", addr)
}

func (c *RPCClient) SetBalance(ctx context.Context, addr common.Address, balance *big.Int) error {
	return c.rpc.CallContext(ctx, nil, "anvil_setBalance", addr, (*hexutil.Big)(balance))
}

func (c *RPCClient) SetCode(ctx context.Context, addr common.Address, code []byte) error {
	return c.rpc.CallContext(ctx, nil, "anvil_setCode", addr, hexutil.Bytes(code))
}

func (c *RPCClient) SetNonce(ctx context.Context, addr common.Address, nonce uint64) error {
	return c.rpc.CallContext(ctx, nil, "anvil_setNonce", addr, hexutil.Uint64(nonce))
}

func (c *RPCClient) Snapshot(ctx context.Context) (string, error) {
	var id string
	if err := c.rpc.CallContext(ctx, &id, "evm_snapshot"); err != nil {
		return "", err
	}
	return id, nil
}

func (c *RPCClient) Revert(ctx context.Context, id string) error {
	var ok bool
	if err := c.rpc.CallContext(ctx, &ok, "evm_revert", id); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("l2chain: evm_revert(%s) returned false", id)
	}
	return nil
}

// callTracerFrame mirrors the JSON shape geth/anvil's built-in
// "callTracer" emits; toCallFrame converts it into the chain-agnostic
// trace.CallFrame both l1chain and l2chain hand to internal/discovery.
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

func (c *RPCClient) TraceTransaction(ctx context.Context, txHash common.Hash) (*trace.CallFrame, error) {
	var raw callTracerFrame
	err := c.rpc.CallContext(ctx, &raw, "debug_traceTransaction", txHash, map[string]string{"tracer": "callTracer"})
	if err != nil {
		return nil, fmt.Errorf("l2chain: debug_traceTransaction(%s): %w", txHash, err)
	}
	frame := raw.toCallFrame()
	return &frame, nil
}
