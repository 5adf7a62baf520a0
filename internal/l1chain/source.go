package l1chain

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	lru "github.com/hashicorp/golang-lru"

	"github.com/syncrollup/core/internal/errs"
	"github.com/syncrollup/core/internal/rollup"
)

// dedupCacheSize bounds the processed-event set (§4.2 "Duplicate
// suppression"); large enough to cover several live-poll windows
// without re-fetching catch-up history.
const dedupCacheSize = 1 << 16

// Sink is what the derivation engine exposes to the event source: one
// event at a time, handed off and awaited before the next is read
// (§4.2 "Serialization: events are handed to the engine one at a time;
// no pipelining").
type Sink interface {
	ApplyEvent(ctx context.Context, e Event) error
}

// Source polls an L1 Client for rollup-contract logs and feeds them,
// totally ordered, to a Sink. It owns the catch-up/live-mode split and
// the duplicate-suppression set from §4.2.
type Source struct {
	log    log.Logger
	client Client
	cfg    *rollup.Config

	seen        *lru.Cache // (txHash,logIndex) -> struct{}
	lastPolled  uint64
	pollCadence time.Duration

	// backoff bounds catch-up retry delay (§4.2 "retried with bounded backoff").
	minBackoff time.Duration
	maxBackoff time.Duration
}

func NewSource(l log.Logger, client Client, cfg *rollup.Config) *Source {
	cache, err := lru.New(dedupCacheSize)
	if err != nil {
		// lru.New only errors on a non-positive size, which dedupCacheSize never is.
		panic("l1chain: failed to allocate dedup cache: " + err.Error())
	}
	return &Source{
		log:         l,
		client:      client,
		cfg:         cfg,
		seen:        cache,
		lastPolled:  cfg.L1DeploymentBlock,
		pollCadence: 4 * time.Second,
		minBackoff:  250 * time.Millisecond,
		maxBackoff:  30 * time.Second,
	}
}

// LastPolled returns the highest L1 block number this source has
// fully processed, used by the Builder's status RPC (§6 "status:
// returns readiness and sync offset from L1 tip") to report how far
// behind its private derivation engine is.
func (s *Source) LastPolled() uint64 { return s.lastPolled }

// CatchUp fetches every state-changing event from the deployment
// block to the current L1 tip, in canonical order, feeding each to
// sink before requesting the next (§4.2 "Initial catch-up").
func (s *Source) CatchUp(ctx context.Context, sink Sink) error {
	tip, err := s.client.BlockNumber(ctx)
	if err != nil {
		return errs.New(errs.KindRpcTransient, "failed to fetch L1 tip for catch-up", err)
	}
	return s.feedWindow(ctx, sink, s.cfg.L1DeploymentBlock, tip)
}

// Run polls for new L1 blocks at a fixed cadence and feeds newly
// observed windows to sink (§4.2 "Live mode"). It runs until ctx is
// cancelled.
func (s *Source) Run(ctx context.Context, sink Sink) error {
	ticker := time.NewTicker(s.pollCadence)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			tip, err := s.client.BlockNumber(ctx)
			if err != nil {
				// §4.2 "During live mode a failed poll is ignored; the
				// next poll covers the missed window."
				s.log.Warn("l1 poll failed, will retry next tick", "err", err)
				continue
			}
			if tip <= s.lastPolled {
				continue
			}
			if err := s.feedWindow(ctx, sink, s.lastPolled+1, tip); err != nil {
				if kind, ok := errs.Of(err); ok && kind.Fatal() {
					return err
				}
				s.log.Warn("l1 poll window failed, will retry next tick", "from", s.lastPolled+1, "to", tip, "err", err)
				continue
			}
		}
	}
}

// feedWindow fetches and interleaves events in [from, to], retrying
// transient RPC failures with bounded backoff, then hands each unseen
// event to sink in order.
func (s *Source) feedWindow(ctx context.Context, sink Sink, from, to uint64) error {
	if from > to {
		return nil
	}
	events, err := s.fetchWindowWithRetry(ctx, from, to)
	if err != nil {
		return err
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Position.Less(events[j].Position) })

	for _, e := range events {
		key := dedupKey(e.TxHash, e.Position.LogIndex)
		if _, dup := s.seen.Get(key); dup {
			continue
		}
		if err := sink.ApplyEvent(ctx, e); err != nil {
			if kind, ok := errs.Of(err); ok && kind == errs.KindEventNotApplicable {
				s.seen.Add(key, struct{}{})
				continue
			}
			return fmt.Errorf("applying event at %+v: %w", e.Position, err)
		}
		s.seen.Add(key, struct{}{})
	}
	s.lastPolled = to
	return nil
}

func (s *Source) fetchWindowWithRetry(ctx context.Context, from, to uint64) ([]Event, error) {
	backoff := s.minBackoff
	var lastErr error
	for attempt := 0; attempt < 8; attempt++ {
		events, err := s.fetchWindow(ctx, from, to)
		if err == nil {
			return events, nil
		}
		lastErr = err
		s.log.Warn("l1 event fetch failed, retrying", "from", from, "to", to, "attempt", attempt, "err", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > s.maxBackoff {
			backoff = s.maxBackoff
		}
	}
	return nil, errs.New(errs.KindRpcTransient, "exhausted retries fetching L1 events", lastErr)
}

func (s *Source) fetchWindow(ctx context.Context, from, to uint64) ([]Event, error) {
	q := FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{s.cfg.L1RollupContract},
		Topics: [][]common.Hash{{
			sigL2BlockProcessed,
			sigIncomingCallHandled,
		}},
	}
	logs, err := s.client.FilterLogs(ctx, q)
	if err != nil {
		return nil, err
	}

	// Cache block timestamps within this window so every log in the
	// same block shares one HeaderByNumber lookup (§4.1.3: the L2
	// block timestamp is sourced from the containing L1 block).
	times := make(map[uint64]uint64)
	out := make([]Event, 0, len(logs))
	for _, lg := range logs {
		t, ok := times[lg.BlockNumber]
		if !ok {
			h, err := s.client.HeaderByNumber(ctx, new(big.Int).SetUint64(lg.BlockNumber))
			if err != nil {
				return nil, err
			}
			t = h.Time
			times[lg.BlockNumber] = t
		}
		e, ok, err := DecodeLog(lg, t)
		if err != nil {
			return nil, err
		}
		if !ok || !e.Kind.StateChanging() {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

type dedupKeyType struct {
	txHash   common.Hash
	logIndex uint
}

func dedupKey(txHash common.Hash, logIndex uint) dedupKeyType {
	return dedupKeyType{txHash: txHash, logIndex: logIndex}
}
