// Package trace holds the minimal call-frame shape both l1chain and
// l2chain decode from a debug_traceTransaction/debug_traceCall
// "callTracer" response, so internal/discovery can walk either chain's
// trace with the same flattening logic without l1chain and l2chain
// needing to depend on each other.
package trace

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// CallFrame is the callTracer shape geth/anvil both emit, reduced to
// the fields discovery needs to recognize a cross-chain proxy call.
// Output carries the call's return data, the "predicted response" an
// incoming-call discovery run must capture before it can be registered
// (§4.3.2 steps 3-4).
type CallFrame struct {
	From   common.Address
	To     common.Address
	Value  *big.Int
	Input  []byte
	Output []byte
	Calls  []CallFrame
}

// Flatten walks frame and its descendants depth-first, returning every
// frame (including the root) as one flat list. A candidate tx can
// reach a proxy at any call depth, not just the top level, so
// discovery must inspect the whole tree (§4.3.1 step a, §4.3.2 step 1).
func Flatten(frame *CallFrame) []CallFrame {
	if frame == nil {
		return nil
	}
	out := []CallFrame{{From: frame.From, To: frame.To, Value: frame.Value, Input: frame.Input, Output: frame.Output}}
	for i := range frame.Calls {
		out = append(out, Flatten(&frame.Calls[i])...)
	}
	return out
}
