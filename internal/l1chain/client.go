package l1chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/syncrollup/core/internal/trace"
)

// Client is the narrow L1 RPC surface this repo depends on. It is
// satisfied by EthClientAdapter (wrapping *ethclient.Client) in
// production and by an in-memory fake in tests, expressed as a capability interface per the design
// note's "name the capability set, don't reflect" guidance.
type Client interface {
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	FilterLogs(ctx context.Context, q FilterQuery) ([]types.Log, error)

	// CallContract simulates a read-only call against L1 state at the
	// given block (or latest, if number is nil). Used by discovery
	// (§4.3.1 step c) to obtain outgoing-call return values.
	CallContract(ctx context.Context, msg CallMsg, blockNumber *big.Int) ([]byte, error)

	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// TracingClient extends Client with debug_traceCall, a capability only
// the Builder's L1-source discovery path needs (§4.3.2 step 1) and that
// a plain anvil/geth RPC endpoint may not always expose. Kept separate
// from Client so the fullnode, which never traces L1 calls, can depend
// on the narrower interface.
type TracingClient interface {
	Client

	// TraceCall simulates msg against blockNumber (nil for latest) and
	// returns its call tree, used to recognize sub-calls against a
	// known L2→L1 proxy before the triggering tx is ever broadcast.
	TraceCall(ctx context.Context, msg CallMsg, blockNumber *big.Int) (*trace.CallFrame, error)
}

// FilterQuery mirrors the subset of ethereum.FilterQuery this package
// needs, kept local so l1chain does not need the full go-ethereum
// "ethereum" interfaces package import for one struct.
type FilterQuery struct {
	FromBlock *big.Int
	ToBlock   *big.Int
	Addresses []common.Address
	Topics    [][]common.Hash
}

// CallMsg mirrors ethereum.CallMsg for the same reason.
type CallMsg struct {
	From  common.Address
	To    *common.Address
	Value *big.Int
	Gas   uint64
	Data  []byte
}
