package bindings

import (
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Factory is a hand-written binding for the Proxy Factory F (§3),
// which deploys and memoizes the CREATE2 L1→L2 proxy for a given L1
// address (§4.6 "L1ToL2ProxyAddress").
type Factory struct {
	address  common.Address
	contract *bind.BoundContract
}

func NewFactory(address common.Address, backend bind.ContractBackend) *Factory {
	return &Factory{
		address:  address,
		contract: bind.NewBoundContract(address, FactoryABI, backend, backend, backend),
	}
}

func (f *Factory) Address() common.Address { return f.address }

// Deploy creates (or returns the existing) proxy for l1Address. Caller
// MUST be S.
func (f *Factory) Deploy(txOpts *bind.TransactOpts, l1Address common.Address) (*types.Transaction, error) {
	return f.contract.Transact(txOpts, "deploy", l1Address)
}

// ProxyFor reads the proxy address already deployed for l1Address, the
// zero address if none exists yet.
func (f *Factory) ProxyFor(opts *bind.CallOpts, l1Address common.Address) (common.Address, error) {
	var out []interface{}
	if err := f.contract.Call(opts, &out, "proxyFor", l1Address); err != nil {
		return common.Address{}, err
	}
	return out[0].(common.Address), nil
}

func (f *Factory) PackDeploy(l1Address common.Address) ([]byte, error) {
	return FactoryABI.Pack("deploy", l1Address)
}
