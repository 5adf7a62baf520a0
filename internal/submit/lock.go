package submit

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/syncrollup/core/internal/errs"
	"github.com/syncrollup/core/internal/l1chain"
)

// TipLock serializes the critical section of submission against the
// current L1 tip (§5 "exclusive access to the current L1 tip"):
// discovery and simulation may run freely against a snapshot, but
// issuing an L1 submission relative to an observed l2BlockHash must be
// exclusive so two concurrent submissions never race to submit
// against the same prevL2Root.
type TipLock struct {
	mu     sync.Mutex
	l1     l1chain.Client
	tipHex common.Hash
}

func NewTipLock(l1 l1chain.Client) *TipLock {
	return &TipLock{l1: l1}
}

// WithTip runs fn holding the lock, having first confirmed the L1 tip
// has not moved since the caller last observed it (tipSeen); a moved
// tip means the caller's discovery results may be stale and must be
// redone, surfaced as a retriable RpcTransient-class error rather than
// silently submitting against outdated state.
func (t *TipLock) WithTip(ctx context.Context, tipSeen common.Hash, fn func() error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	head, err := t.l1.HeaderByNumber(ctx, nil)
	if err != nil {
		return errs.New(errs.KindRpcTransient, "submit: fetch L1 head for tip lock", err)
	}
	if head.Hash() != tipSeen {
		return errs.New(errs.KindRpcTransient, "submit: L1 tip moved since discovery began, retry", nil)
	}
	return fn()
}
