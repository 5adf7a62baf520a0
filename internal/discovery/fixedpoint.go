package discovery

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/hashicorp/go-multierror"

	"github.com/syncrollup/core/internal/errs"
	"github.com/syncrollup/core/internal/l1chain"
	"github.com/syncrollup/core/internal/l2chain"
	"github.com/syncrollup/core/internal/rollup"
)

// Attempt is one simulated execution of the candidate tx/call, as
// reported by whatever drives the L2 EVM (internal/l2chain): its
// traced outgoing calls.
type Attempt struct {
	Outgoing []OutgoingCall
}

// Simulator runs one discovery attempt against a fresh snapshot of the
// L2 EVM, having already preloaded whatever outgoing results the
// previous attempt resolved, and reports what the L2 contract tried to
// call out to this time.
type Simulator func(ctx context.Context) (Attempt, error)

// Result is the fixed point discovery converged on: every outgoing
// call the candidate tx makes and the L1-resolved result for each, in
// the order first discovered.
type Result struct {
	Calls   []OutgoingCall
	Results [][]byte
}

// RunFixedPoint implements §4.3.1/§4.3.3: repeatedly snapshot, run sim,
// resolve any newly discovered outgoing calls against real L1 state,
// register the results, revert, and try again — until an attempt
// discovers no calls beyond what is already registered, or
// cfg.MaxDiscoveryIterations is exhausted.
func RunFixedPoint(ctx context.Context, l log.Logger, driver *l2chain.Driver, l1 l1chain.Client, cfg *rollup.Config, sim Simulator) (*Result, error) {
	var (
		calls   []OutgoingCall
		results [][]byte
		seen    = map[common.Hash]int{} // CallKey -> index into calls/results
		errsAcc *multierror.Error
	)

	for iter := 0; iter < cfg.MaxDiscoveryIterations; iter++ {
		snapID, err := driver.Snapshot(ctx)
		if err != nil {
			return nil, err
		}

		for i, c := range calls {
			key := rollup.CallKey(c.Target, c.From, c.CallData)
			if err := driver.RegistryRegister(ctx, key, results[i]); err != nil {
				_ = driver.Revert(ctx, snapID)
				return nil, err
			}
		}

		attempt, err := sim(ctx)
		if err != nil {
			errsAcc = multierror.Append(errsAcc, fmt.Errorf("iteration %d: %w", iter, err))
			if revertErr := driver.Revert(ctx, snapID); revertErr != nil {
				return nil, revertErr
			}
			continue
		}

		newCalls := false
		for _, c := range attempt.Outgoing {
			key := rollup.CallKey(c.Target, c.From, c.CallData)
			if _, ok := seen[key]; ok {
				continue
			}
			result, err := ResolveOutgoing(ctx, l1, c)
			if err != nil {
				errsAcc = multierror.Append(errsAcc, fmt.Errorf("iteration %d: resolving call to %s: %w", iter, c.Target, err))
				continue
			}
			seen[key] = len(calls)
			calls = append(calls, c)
			results = append(results, result)
			newCalls = true
		}

		if err := driver.Revert(ctx, snapID); err != nil {
			return nil, err
		}

		if !newCalls {
			l.Info("discovery reached fixed point", "iterations", iter+1, "outgoingCalls", len(calls))
			return &Result{Calls: calls, Results: results}, nil
		}
	}

	var wrapped error = errsAcc
	if wrapped == nil {
		wrapped = fmt.Errorf("every iteration discovered new outgoing calls")
	}
	return nil, errs.New(errs.KindDiscoveryNoFixedPoint,
		fmt.Sprintf("discovery did not converge within %d iterations", cfg.MaxDiscoveryIterations), wrapped)
}
