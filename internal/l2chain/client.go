// Package l2chain is the L2 Execution Driver: a thin adaptor over an
// external EVM implementation (§4.5). Per spec §1 the standalone L2
// EVM is an out-of-scope external collaborator, consumed here the way
// op-e2e/derivation's actors consume their `eng derive.Engine` and
// `BlocksAPI`/`L1TXAPI` capability interfaces: narrow, RPC-shaped, and
// satisfied in production by an anvil-compatible JSON-RPC endpoint and
// in tests by an in-memory fake (op-e2e/derivation.FakeL2).
package l2chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/syncrollup/core/internal/trace"
)

// Backend is the standard contract-interaction surface the Registry
// and Factory bindings run over. It is exactly bind.ContractBackend,
// named locally so callers of this package don't need to import the
// bind package just to implement it, and so a future swap to a
// different binding generator only touches this one alias.
type Backend = bind.ContractBackend

// ReadClient is the standard Ethereum JSON-RPC read surface the
// fullnode's public RPC (§6) and the Builder's discovery both need.
type ReadClient interface {
	BlockNumber(ctx context.Context) (uint64, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	StorageAt(ctx context.Context, account common.Address, key common.Hash, blockNumber *big.Int) ([]byte, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error)
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// AdminClient is the narrow set of anvil-style admin RPC methods the
// L2 Execution Driver needs for deterministic block building and
// snapshot isolation (§4.5, §5 "snapshots are cheap and isolated").
// Spec §9 notes that exact snapshot/revert semantics are an anvil
// assumption this implementation inherits rather than re-derives.
type AdminClient interface {
	// SetAutomine toggles whether every submitted tx is immediately
	// mined into its own block. The driver disables automine while
	// building a derived L2 block so that every privileged pre-tx and
	// the main tx/call land in one block (§4.1.3), then re-enables it
	// with a second SetAutomine call right after Mine.
	SetAutomine(ctx context.Context, on bool) error

	// SetNextBlockTimestamp pins the timestamp of the next mined
	// block, satisfying §4.1.3's requirement that block timestamps are
	// sourced from the L1 block containing the event, never wall clock.
	SetNextBlockTimestamp(ctx context.Context, timestamp uint64) error

	// Mine mines exactly one block containing every tx submitted since
	// the last Mine call.
	Mine(ctx context.Context) error

	// ImpersonateAccount allows the driver to originate txs "from" an
	// address it does not hold a private key for — used exclusively
	// for System Address S, the sole sender of privileged operations
	// (§3).
	ImpersonateAccount(ctx context.Context, addr common.Address) error
	StopImpersonating(ctx context.Context, addr common.Address) error

	// SetBalance credits an account directly, used once at genesis to
	// fund S (§4.1 step 2) without consuming a "real" funding tx.
	SetBalance(ctx context.Context, addr common.Address, balance *big.Int) error

	// SetCode installs bytecode directly at an address, used only at
	// genesis to install R and F's deployed bytecode at their
	// precomputed CREATE addresses (§4.1 steps 3-4) without needing a
	// Solidity init-code/constructor pass this repo cannot compile.
	SetCode(ctx context.Context, addr common.Address, code []byte) error

	// SetNonce pins an account's nonce directly, used once at genesis
	// to advance S past the two nonces (0, 1) its genesis contracts
	// occupy, so a later real transaction from S never collides with
	// R or F's precomputed addresses (§4.1 step 2-4, §4.6).
	SetNonce(ctx context.Context, addr common.Address, nonce uint64) error

	// Snapshot/Revert back the Builder's private EVM instance (§4.3,
	// §4.5): Revert(Snapshot()) MUST restore an identical state root.
	Snapshot(ctx context.Context) (string, error)
	Revert(ctx context.Context, id string) error

	// TraceTransaction returns the callTracer-shaped frame tree for an
	// already-mined tx, letting discovery walk a simulated L2 tx's
	// execution for calls against an L1→L2 proxy (§4.3.1 step a).
	TraceTransaction(ctx context.Context, txHash common.Hash) (*trace.CallFrame, error)
}

// Client bundles everything the L2 Execution Driver needs from the
// external EVM: standard contract interaction, reads, and admin
// control. Kept as one interface for convenience at construction
// sites; callers that only need reads should depend on ReadClient.
type Client interface {
	Backend
	ReadClient
	AdminClient

	// SendTransaction submits tx for inclusion. When tx's sender is
	// currently impersonated (ImpersonateAccount), the anvil-semantics
	// assumption from spec §9 is that the node accepts it unsigned, the
	// way eth_sendTransaction works for an impersonated account; this
	// repo never needs to hold S's signing key to drive its privileged
	// operations.
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}
