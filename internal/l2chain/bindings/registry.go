package bindings

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Registry is a hand-written equivalent of an abigen-generated
// contract binding for the Call Registry R (§3), built directly on
// bind.BoundContract exactly as op-bindings' generated types are.
type Registry struct {
	address  common.Address
	contract *bind.BoundContract
}

func NewRegistry(address common.Address, backend bind.ContractBackend) *Registry {
	return &Registry{
		address:  address,
		contract: bind.NewBoundContract(address, RegistryABI, backend, backend, backend),
	}
}

func (r *Registry) Address() common.Address { return r.address }

// Register appends value to key's FIFO queue. The caller of the
// resulting transaction MUST be System Address S (§3 "caller MUST be
// S"); that is enforced by txOpts.From at the driver layer, not here.
func (r *Registry) Register(txOpts *bind.TransactOpts, key [32]byte, value []byte) (*types.Transaction, error) {
	return r.contract.Transact(txOpts, "register", key, value)
}

// Consume dequeues the next value registered for key. Issued through
// Call it is a read that dequeues nothing; on-chain, the real
// consuming call happens inside the proxy's fallback during L2
// execution. No code path in this repo calls it.
func (r *Registry) Consume(opts *bind.CallOpts, key [32]byte) (bool, []byte, error) {
	var out []interface{}
	if err := r.contract.Call(opts, &out, "consume", key); err != nil {
		return false, nil, err
	}
	found := out[0].(bool)
	value := out[1].([]byte)
	return found, value, nil
}

// Pending reports how many entries are queued for key. Its only
// caller is Driver.RegistryPending; discovery tracks the calls it has
// registered itself and does not read it.
func (r *Registry) Pending(opts *bind.CallOpts, key [32]byte) (*big.Int, error) {
	var out []interface{}
	if err := r.contract.Call(opts, &out, "pending", key); err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// Clear resets the queues for the given keys. Caller MUST be S.
func (r *Registry) Clear(txOpts *bind.TransactOpts, keys [][32]byte) error {
	_, err := r.contract.Transact(txOpts, "clear", keys)
	return err
}

func (r *Registry) PackRegister(key [32]byte, value []byte) ([]byte, error) {
	return RegistryABI.Pack("register", key, value)
}
