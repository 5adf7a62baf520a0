// Package derive is the L2 State Derivation Engine (§4.1): the single
// consumer of l1chain's ordered event stream, responsible for turning
// each state-changing event into exactly one deterministic L2 block
// and for refusing to advance past the first sign of divergence.
package derive

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/syncrollup/core/internal/errs"
	"github.com/syncrollup/core/internal/l2chain"
	"github.com/syncrollup/core/internal/l1chain"
	"github.com/syncrollup/core/internal/rollup"
)

// Engine applies l1chain.Event values to an external L2 EVM through a
// l2chain.Driver, implementing l1chain.Sink so a Source can feed it
// directly (§4.2 "events are handed to the engine one at a time").
type Engine struct {
	log    log.Logger
	driver *l2chain.Driver
	cfg    *rollup.Config

	// onAdvance, if set, is notified after each successfully applied
	// event with the block it produced; wired up by cmd/fullnode and
	// cmd/builder to update metrics.
	onAdvance func(block *types.Block, e l1chain.Event)
}

func NewEngine(l log.Logger, driver *l2chain.Driver, cfg *rollup.Config) *Engine {
	return &Engine{log: l, driver: driver, cfg: cfg}
}

func (e *Engine) OnAdvance(fn func(block *types.Block, ev l1chain.Event)) {
	e.onAdvance = fn
}

// ApplyEvent is l1chain.Sink's single entry point. Metadata-only event
// kinds are acknowledged and ignored (§3: "MUST NOT affect derived
// state"); the two state-changing kinds are applied per §4.1.1/§4.1.2,
// with the prevRoot/finalRoot checks from §4.1.4.
func (e *Engine) ApplyEvent(ctx context.Context, ev l1chain.Event) error {
	if !ev.Kind.StateChanging() {
		return nil
	}

	current, err := e.driver.StateRoot(ctx)
	if err != nil {
		return err
	}

	if current != ev.PrevRoot() {
		// §4.1.4: an event whose prevRoot does not match current state is
		// not applicable here (this instance has already diverged ahead
		// of it, is catching up out of order, or is replaying a stale
		// event) — skip it rather than treat it as fatal.
		e.log.Warn("skipping event not applicable to current state",
			"kind", ev.Kind, "position", ev.Position, "have", current, "want", ev.PrevRoot())
		return errs.New(errs.KindEventNotApplicable, "event prevRoot does not match current state", errs.ErrNotApplicable)
	}

	if err := e.driver.StartBlock(ctx, ev.L1BlockTime); err != nil {
		return err
	}

	var applyErr error
	switch ev.Kind {
	case l1chain.KindL2BlockProcessed:
		applyErr = e.applyL2BlockProcessed(ctx, ev)
	case l1chain.KindIncomingCallHandled:
		applyErr = e.applyIncomingCallHandled(ctx, ev)
	default:
		applyErr = fmt.Errorf("derive: unexpected state-changing kind %v", ev.Kind)
	}
	if applyErr != nil {
		return applyErr
	}

	block, err := e.driver.EndBlock(ctx)
	if err != nil {
		return err
	}

	if block.Root() != ev.FinalRoot() {
		// §4.1.4: a root mismatch after a successful apply means this
		// instance's L2 execution has diverged from what L1 recorded as
		// canonical. That is unrecoverable locally; the caller (cmd/fullnode)
		// halts rather than continuing to derive on top of wrong state.
		return errs.New(errs.KindStateDivergence,
			fmt.Sprintf("derived root %s does not match event's claimed final root %s", block.Root(), ev.FinalRoot()),
			errs.ErrDiverged)
	}

	e.log.Info("applied event", "kind", ev.Kind, "l1Position", ev.Position, "l2Block", block.NumberU64(), "root", block.Root())
	if e.onAdvance != nil {
		e.onAdvance(block, ev)
	}
	return nil
}

// applyL2BlockProcessed replays the exact L1-observed transaction
// against the external L2 EVM (§4.1.1): the engine never re-derives
// the tx, it decodes and resubmits it verbatim so its hash and
// recovered sender are identical to what the Builder originally built.
func (e *Engine) applyL2BlockProcessed(ctx context.Context, ev l1chain.Event) error {
	if err := e.preloadOutgoingResults(ctx, ev); err != nil {
		return err
	}

	var tx types.Transaction
	if err := rlp.DecodeBytes(ev.RLPEncodedTx, &tx); err != nil {
		return errs.New(errs.KindStateDivergence, "failed to decode L1-recorded L2 transaction", err)
	}
	if err := e.driver.SendRaw(ctx, &tx); err != nil {
		return err
	}
	return nil
}

// applyIncomingCallHandled replays an L1-originated call against
// l2Target (§4.1.2): the call is sent from an impersonated S to the
// L1→L2 proxy representing L1Caller, so l2Target observes that proxy
// as its caller.
func (e *Engine) applyIncomingCallHandled(ctx context.Context, ev l1chain.Event) error {
	addrs := e.driver.Addresses()
	proxy := rollup.L1ToL2ProxyAddress(addrs.ProxyFactory, addrs.System, addrs.CallRegistry, ev.L1Caller)
	if err := e.driver.EnsureL1ToL2Proxy(ctx, ev.L1Caller, proxy); err != nil {
		return err
	}

	if err := e.preloadOutgoingResults(ctx, ev); err != nil {
		return err
	}

	// §4.1.2 step 3: packed calldata = l2Target (20 bytes) ‖ callData,
	// sent from S to the proxy. The proxy's fallback strips the
	// 20-byte prefix and sub-calls l2Target with the remainder and
	// value; S is the only sender the proxy treats as "incoming" (§3).
	packed := make([]byte, 0, common.AddressLength+len(ev.CallData))
	packed = append(packed, ev.L2Target.Bytes()...)
	packed = append(packed, ev.CallData...)
	if _, err := e.driver.SendAsSystem(ctx, proxy, packed, ev.Value); err != nil {
		return err
	}
	return nil
}

// preloadOutgoingResults installs every outgoing call's already-known
// result into the Call Registry before replay, keyed exactly the way
// the original execution would have looked it up (§4.6 "Call key").
// This is what lets a deterministic, isolated L2 EVM replay a tx whose
// execution once reached out across chains: the cross-chain leg is
// never re-performed, only its recorded outcome is substituted back
// in at the same lookup point.
func (e *Engine) preloadOutgoingResults(ctx context.Context, ev l1chain.Event) error {
	for i, call := range ev.OutgoingCalls {
		if i >= len(ev.OutgoingResults) {
			return fmt.Errorf("derive: event has %d outgoing calls but only %d results", len(ev.OutgoingCalls), len(ev.OutgoingResults))
		}
		key := rollup.CallKey(call.Target, call.From, call.Data)
		if err := e.driver.RegistryRegister(ctx, key, ev.OutgoingResults[i]); err != nil {
			return err
		}
	}
	return nil
}

// StateRoot exposes the driver's current root for callers (e.g. the
// public RPC surface, §6) that need it without reaching into l2chain directly.
func (e *Engine) StateRoot(ctx context.Context) (common.Hash, error) {
	return e.driver.StateRoot(ctx)
}
