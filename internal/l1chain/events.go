// Package l1chain models the L1 rollup contract as an event source and
// a thin transactional client (§4.2, §6). It owns nothing about L2
// semantics; internal/derive interprets the events this package hands
// it.
package l1chain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// EventKind discriminates the four event kinds named in §3. Only the
// first two are state-changing; the other two are carried for
// metadata/observability only and MUST NOT affect derived state.
type EventKind uint8

const (
	KindL2BlockProcessed EventKind = iota
	KindIncomingCallHandled
	KindIncomingCallRegistered
	KindL2SenderProxyDeployed
)

func (k EventKind) StateChanging() bool {
	return k == KindL2BlockProcessed || k == KindIncomingCallHandled
}

// OutgoingCall mirrors the ABI tuple from §6:
// (address from, address target, uint256 value, uint256 gas, bytes data, bytes32 postCallStateHash).
type OutgoingCall struct {
	From              common.Address
	Target            common.Address
	Value             *big.Int
	Gas               uint64
	Data              []byte
	PostCallStateHash common.Hash
}

// Position totally orders events the way §4.2 requires: by
// (l1BlockNumber, logIndex), never by wall-clock arrival.
type Position struct {
	L1BlockNumber uint64
	LogIndex      uint
}

// Less implements the canonical ordering used everywhere events are
// sorted or compared (§4.1 "Ordering guarantee").
func (p Position) Less(o Position) bool {
	if p.L1BlockNumber != o.L1BlockNumber {
		return p.L1BlockNumber < o.L1BlockNumber
	}
	return p.LogIndex < o.LogIndex
}

// Event is the normalized form of one of the four L1 log kinds, after
// ABI decoding, carrying everything the derivation engine or its
// metadata observers need.
type Event struct {
	Kind     EventKind
	Position Position
	TxHash   common.Hash

	// L1BlockTime is the timestamp of the L1 block that contained this
	// event. §4.1.3 requires every derived L2 block to use this value
	// as its timestamp, never the wall clock.
	L1BlockTime uint64

	// --- L2BlockProcessed fields ---
	L2BlockNumber   uint64
	PrevL2Root      common.Hash
	NewL2Root       common.Hash
	RLPEncodedTx    []byte
	OutgoingCalls   []OutgoingCall
	OutgoingResults [][]byte

	// --- IncomingCallHandled fields ---
	L2Target     common.Address
	L1Caller     common.Address
	CallData     []byte
	Value        *big.Int
	FinalL2Root  common.Hash

	// --- metadata-only fields (IncomingCallRegistered / L2SenderProxyDeployed) ---
	RegisteredL2Target   common.Address
	RegisteredPrevL2Root common.Hash
	DeployedL2Address    common.Address
	DeployedProxyAddr    common.Address
}

// FinalRoot returns the state root this event claims the L2 state
// reaches once fully applied, regardless of kind (§4.1 invariant 1).
func (e *Event) FinalRoot() common.Hash {
	if e.Kind == KindIncomingCallHandled {
		return e.FinalL2Root
	}
	return e.NewL2Root
}

// PrevRoot returns the state root this event was emitted against,
// regardless of kind. Events with neither field (the metadata-only
// kinds) return the zero hash and are never checked against it.
func (e *Event) PrevRoot() common.Hash {
	return e.PrevL2Root
}
