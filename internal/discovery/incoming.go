package discovery

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/syncrollup/core/internal/l1chain"
	"github.com/syncrollup/core/internal/l2chain"
	"github.com/syncrollup/core/internal/rollup"
	"github.com/syncrollup/core/internal/trace"
)

// IncomingCall is a discovered L1→L2 side effect: an L1 tx called the
// L2→L1 proxy representing some L2 contract, requiring the Builder to
// simulate the corresponding call against the L2 EVM before the L1 tx
// can be admitted (§4.3.2).
type IncomingCall struct {
	L1Caller common.Address
	L2Target common.Address
	CallData []byte
	Value    *big.Int
}

// RecognizeIncoming inspects a simulated L1 tx's trace for calls made
// against an L2→L1 proxy address, mapping each back to the L2 contract
// it represents. Proxy addresses are deterministic (§4.6), so
// recognition is a pure function of the rollup contract address and
// candidate L2 addresses already known to the Builder — no L1 state
// lookup is required to tell whether an address is such a proxy.
func RecognizeIncoming(calls []TracedCall, rollupContract common.Address, candidateL2Targets []common.Address) []IncomingCall {
	proxyOf := make(map[common.Address]common.Address, len(candidateL2Targets))
	for _, l2 := range candidateL2Targets {
		proxyOf[rollup.L2ToL1ProxyAddress(rollupContract, l2)] = l2
	}

	var out []IncomingCall
	for _, c := range calls {
		l2Target, ok := proxyOf[c.To]
		if !ok {
			continue
		}
		out = append(out, IncomingCall{
			L1Caller: c.From,
			L2Target: l2Target,
			CallData: c.Input,
			Value:    c.Value,
		})
	}
	return out
}

// IncomingResult is what RunIncomingFixedPoint converges on for one
// L1→L2 call: the predicted finalL2Root and return value an L1
// verifier must later accept (§4.3.2 steps 3-4), plus every nested
// outgoing call the incoming call itself triggered and its resolved
// result (§4.3.3).
type IncomingResult struct {
	FinalL2Root common.Hash
	Response    []byte
	Calls       []OutgoingCall
	Results     [][]byte
}

// RunIncomingFixedPoint is §4.3.2 steps 3-4 run to a fixed point
// (§4.3.3), parallel to RunFixedPoint's handling of the outgoing-call
// path: repeatedly snapshot the Builder's private L2 EVM, replay the
// L1→L2 call through the same path derive.Engine.applyIncomingCallHandled
// uses for real (l2chain.Driver.ExecuteIncomingTraced), resolve any
// newly traced nested outgoing calls against real L1 state, and revert
// — until the set of nested outgoing calls stops changing. Once
// RunFixedPoint converges, one final snapshot/replay/revert captures
// the predicted response and resulting root against the now-stable
// registry contents.
func RunIncomingFixedPoint(
	ctx context.Context,
	l log.Logger,
	driver *l2chain.Driver,
	l1 l1chain.Client,
	cfg *rollup.Config,
	l1Caller, l2Target common.Address,
	callData []byte,
	value *big.Int,
	proxyDecode func(addr common.Address, input []byte) (l1Target common.Address, callData []byte, ok bool),
) (*IncomingResult, error) {
	sim := func(ctx context.Context) (Attempt, error) {
		frame, err := driver.ExecuteIncomingTraced(ctx, l1Caller, l2Target, callData, value)
		if err != nil {
			return Attempt{}, err
		}
		traced := FromFrames(trace.Flatten(frame))
		outgoing := TraceOutgoingCalls(traced, driver.IsKnownProxy, proxyDecode)
		return Attempt{Outgoing: outgoing}, nil
	}

	result, err := RunFixedPoint(ctx, l, driver, l1, cfg, sim)
	if err != nil {
		return nil, err
	}

	snapID, err := driver.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = driver.Revert(ctx, snapID) }()

	for i, c := range result.Calls {
		key := rollup.CallKey(c.Target, c.From, c.CallData)
		if err := driver.RegistryRegister(ctx, key, result.Results[i]); err != nil {
			return nil, err
		}
	}

	frame, err := driver.ExecuteIncomingTraced(ctx, l1Caller, l2Target, callData, value)
	if err != nil {
		return nil, err
	}
	root, err := driver.StateRoot(ctx)
	if err != nil {
		return nil, err
	}

	l.Info("incoming-call discovery reached fixed point",
		"l1Caller", l1Caller, "l2Target", l2Target, "outgoingCalls", len(result.Calls), "finalL2Root", root)

	return &IncomingResult{
		FinalL2Root: root,
		Response:    frame.Output,
		Calls:       result.Calls,
		Results:     result.Results,
	}, nil
}
