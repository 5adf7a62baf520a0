// Package discovery implements the Builder's cross-chain call
// discovery (§4.3): simulating a candidate L2 tx, finding every L1
// call it triggers, resolving those calls against real L1 state, and
// feeding the results back until the L2 tx's observable effects stop
// changing.
package discovery

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/syncrollup/core/internal/l1chain"
	"github.com/syncrollup/core/internal/rollup"
	"github.com/syncrollup/core/internal/trace"
)

// OutgoingCall is a discovered L2→L1 side effect: an L2 contract
// called its local L1→L2 proxy, which must be resolved against real L1
// state before the L2 tx can be considered final (§4.3.1).
type OutgoingCall struct {
	From     common.Address // L2 contract that issued the call
	Target   common.Address // L1 address it addressed
	CallData []byte
}

// ResolveOutgoing executes one discovered outgoing call against the
// real L1 chain (a plain `eth_call`, never a transaction: discovery
// must not mutate L1 state while still iterating, §4.3.1 step b) and
// returns its result bytes.
func ResolveOutgoing(ctx context.Context, l1 l1chain.Client, call OutgoingCall) ([]byte, error) {
	msg := l1chain.CallMsg{
		From: call.From,
		To:   &call.Target,
		Data: call.CallData,
	}
	return l1.CallContract(ctx, msg, nil)
}

// TraceOutgoingCalls inspects a simulated L2 tx's execution trace for
// calls made against any address recognized as an L1→L2 proxy,
// decoding each into an OutgoingCall. The trace shape is supplied by
// the caller (internal/l2chain decodes it from the external EVM's
// debug/trace RPC); this function only knows how to recognize proxy
// calls within an already-flattened call list.
func TraceOutgoingCalls(calls []TracedCall, isProxy func(common.Address) bool, decode func(addr common.Address, input []byte) (l1Target common.Address, callData []byte, ok bool)) []OutgoingCall {
	var out []OutgoingCall
	for _, c := range calls {
		if !isProxy(c.To) {
			continue
		}
		l1Target, callData, ok := decode(c.To, c.Input)
		if !ok {
			continue
		}
		out = append(out, OutgoingCall{From: c.From, Target: l1Target, CallData: callData})
	}
	return out
}

// TracedCall is one call frame from a simulated tx's execution trace,
// reduced to exactly the fields discovery needs.
type TracedCall struct {
	From  common.Address
	To    common.Address
	Value *big.Int
	Input []byte
}

// FromFrames converts the shared trace.CallFrame shape (decoded by
// l1chain/l2chain from a debug_traceCall or debug_traceTransaction
// "callTracer" response)
// into the flat TracedCall list this package's recognition functions
// expect.
func FromFrames(frames []trace.CallFrame) []TracedCall {
	out := make([]TracedCall, len(frames))
	for i, f := range frames {
		out[i] = TracedCall{From: f.From, To: f.To, Value: f.Value, Input: f.Input}
	}
	return out
}

// CallKeys maps each discovered outgoing call to its Call Registry key
// (§4.6), in order, for callers that need to reference a fixed-point
// result's calls without recomputing rollup.CallKey themselves (e.g.
// submit.Pipeline building a Commitment, or admission describing a
// registered incoming call's nested outgoing calls).
func CallKeys(calls []OutgoingCall) []common.Hash {
	keys := make([]common.Hash, len(calls))
	for i, c := range calls {
		keys[i] = rollup.CallKey(c.Target, c.From, c.CallData)
	}
	return keys
}
