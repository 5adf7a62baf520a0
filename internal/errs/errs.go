// Package errs defines the stable error-kind taxonomy shared by the
// fullnode and the builder. RPC-facing code maps any error down to one
// of these kinds instead of leaking internal detail to callers.
package errs

import "errors"

// Kind identifies one of the error categories from the design's error
// handling table. It is stable across releases so that callers can
// switch on it without string matching.
type Kind string

const (
	KindMisconfiguredGenesis  Kind = "MisconfiguredGenesis"
	KindEventNotApplicable    Kind = "EventNotApplicable"
	KindStateDivergence       Kind = "StateDivergence"
	KindRpcTransient          Kind = "RpcTransient"
	KindRpcPermanent          Kind = "RpcPermanent"
	KindTxNonceMismatch       Kind = "TxNonceMismatch"
	KindDiscoveryNoFixedPoint Kind = "DiscoveryNoFixedPoint"
	KindProofGenerationFailed Kind = "ProofGenerationFailed"
	KindL1SubmissionReverted  Kind = "L1SubmissionReverted"
	KindRegisteredResponseStale Kind = "RegisteredResponseStale"
)

// Retriable reports whether a caller may reasonably retry an operation
// that failed with this kind.
func (k Kind) Retriable() bool {
	switch k {
	case KindRpcTransient, KindTxNonceMismatch, KindDiscoveryNoFixedPoint, KindRegisteredResponseStale:
		return true
	default:
		return false
	}
}

// Fatal reports whether this kind halts the subsystem that produced it
// (as opposed to being recoverable inline).
func (k Kind) Fatal() bool {
	switch k {
	case KindMisconfiguredGenesis, KindStateDivergence, KindRpcPermanent:
		return true
	default:
		return false
	}
}

// KindError wraps an underlying error with a stable Kind so it can
// cross process/RPC boundaries without losing its category.
type KindError struct {
	Kind Kind
	Msg  string
	Err  error
}

func New(kind Kind, msg string, err error) *KindError {
	return &KindError{Kind: kind, Msg: msg, Err: err}
}

func (e *KindError) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *KindError) Unwrap() error { return e.Err }

// ErrorCode satisfies go-ethereum/rpc's Error interface
// (Error() string; ErrorCode() int), so a *KindError returned from a
// served RPC method is automatically formatted as the structured
// {code, message} shape §6 requires instead of a bare string.
func (e *KindError) ErrorCode() int {
	switch e.Kind {
	case KindTxNonceMismatch:
		return -32001
	case KindDiscoveryNoFixedPoint:
		return -32002
	case KindProofGenerationFailed:
		return -32003
	case KindL1SubmissionReverted:
		return -32004
	case KindRegisteredResponseStale:
		return -32005
	case KindRpcTransient:
		return -32006
	case KindRpcPermanent:
		return -32007
	case KindMisconfiguredGenesis:
		return -32008
	case KindStateDivergence:
		return -32009
	case KindEventNotApplicable:
		return -32010
	default:
		return -32000
	}
}

// Is allows errors.Is(err, &errs.KindError{Kind: ...}) style matching
// against just the Kind, ignoring message/wrapped error.
func (e *KindError) Is(target error) bool {
	var other *KindError
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

// Of returns the Kind carried by err, if any, and whether one was found.
func Of(err error) (Kind, bool) {
	var ke *KindError
	if errors.As(err, &ke) {
		return ke.Kind, true
	}
	return "", false
}

// Sentinel errors used by the derivation pipeline's control flow,
// mirrored on the teacher's derive.ErrReset / ErrTemporary / ErrCritical
// three-way dispatch (see op-e2e/derivation/l2_verifier.go).
var (
	// ErrNotApplicable signals that an event's prevL2Root did not match
	// current state: skip silently and continue (§4.1.4).
	ErrNotApplicable = errors.New("event not applicable to current state")

	// ErrDiverged signals that the post-apply root did not match the
	// event's claimed root: fatal, stop advancing (§4.1.4).
	ErrDiverged = errors.New("derivation diverged from claimed state root")
)
