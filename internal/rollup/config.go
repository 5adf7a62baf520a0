// Package rollup holds the static configuration and deterministic
// address/hash primitives shared by the fullnode and the builder:
// chain identifiers, the L1 rollup contract location, and the genesis
// wiring constants from which System Address S and the genesis
// contracts R and F are derived.
package rollup

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the per-instance configuration (§6): chain ids, rollup
// contract address, L1 deployment block, and the fixed determinism
// constants below. The L1 RPC URL is a CLI flag and is not held here.
// No global state beyond this struct and what it derives.
type Config struct {
	// L2ChainID is the fixed chain identifier used by every derived
	// L2 block (§4.1.3 determinism requirement).
	L2ChainID *big.Int

	// L1ChainID identifies the settlement chain whose rollup contract
	// emits the event stream.
	L1ChainID *big.Int

	// L1RollupContract is the on-chain rollup contract address this
	// instance treats as its event source / submission target.
	L1RollupContract common.Address

	// L1DeploymentBlock is the L1 block at which the rollup contract
	// was deployed; event catch-up starts here (§4.2).
	L1DeploymentBlock uint64

	// GenesisBalance is credited to System Address S at genesis
	// (§4.1 step 2), chosen astronomically large per §3.
	GenesisBalance *big.Int

	// L2BlockGasLimit bounds every derived L2 block (§4.1.3).
	L2BlockGasLimit uint64

	// MaxDiscoveryIterations bounds the Builder's fixed-point loop (§4.3.3).
	MaxDiscoveryIterations int

	// RegisteredResponseExpiryBlocks bounds how long a registered
	// incoming response may sit unconsumed before it expires (§3).
	RegisteredResponseExpiryBlocks uint64
}

// DefaultGenesisBalance matches the "astronomical balance" requirement
// of §3 without overflowing a 256-bit balance field: 2^128 wei.
func DefaultGenesisBalance() *big.Int {
	return new(big.Int).Lsh(big.NewInt(1), 128)
}

// Default returns a Config with the fixed, implementation-chosen
// constants this repo uses everywhere determinism is required. Callers
// override L1-facing fields (chain ids, contract address, deployment
// block) from CLI flags; the rest is deliberately not configurable so
// that two instances built from the same flags always agree.
func Default() *Config {
	return &Config{
		L2ChainID:                      big.NewInt(42069),
		GenesisBalance:                 DefaultGenesisBalance(),
		L2BlockGasLimit:                30_000_000,
		MaxDiscoveryIterations:         16,
		RegisteredResponseExpiryBlocks: 256,
	}
}
