package l2chain

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/syncrollup/core/internal/l2chain/bindings"
)

// Proxy is the L2-side handle for one L1→L2 proxy contract: the
// address an L2 contract calls when it wants to reach out to a
// specific L1 target (§4.6 "L1ToL2ProxyAddress"). Discovery uses it
// purely to recognize and decode calls made against that address
// while tracing an L2 tx's side effects (§4.3.1); it never needs to
// send a transaction to a proxy itself, only interpret one.
type Proxy struct {
	address common.Address
}

func NewProxy(address common.Address) *Proxy {
	return &Proxy{address: address}
}

func (p *Proxy) Address() common.Address { return p.address }

// DecodeDispatch unpacks a dispatchOutgoing(l1Target, callData) input
// blob captured from a traced L2 call against this proxy, returning
// the L1 target address and call data the L2 contract intended to
// reach (§4.3.1 step 1).
func (p *Proxy) DecodeDispatch(input []byte) (l1Target common.Address, callData []byte, err error) {
	method, ok := bindings.ProxyABI.Methods["dispatchOutgoing"]
	if !ok {
		return common.Address{}, nil, fmt.Errorf("l2chain: proxy ABI missing dispatchOutgoing")
	}
	if len(input) < 4 {
		return common.Address{}, nil, fmt.Errorf("l2chain: dispatch input too short")
	}
	args, err := method.Inputs.Unpack(input[4:])
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("l2chain: unpack dispatchOutgoing: %w", err)
	}
	return args[0].(common.Address), args[1].([]byte), nil
}

// PackDispatch builds the calldata a system-level call to this proxy
// would carry, the inverse of DecodeDispatch. No code path in this repo
// calls it.
func (p *Proxy) PackDispatch(l1Target common.Address, callData []byte) ([]byte, error) {
	return bindings.ProxyABI.Pack("dispatchOutgoing", l1Target, callData)
}

// CallSimulate asks the external EVM to simulate a dispatchOutgoing
// call without mutating state. Discovery's fixed-point iteration does
// not use it (it resolves outgoing calls against L1 instead); no code
// path in this repo calls it.
func (p *Proxy) CallSimulate(ctx context.Context, backend Backend, from common.Address, l1Target common.Address, callData []byte) ([]byte, error) {
	contract := bind.NewBoundContract(p.address, bindings.ProxyABI, backend, backend, backend)
	var out []interface{}
	opts := &bind.CallOpts{Context: ctx, From: from}
	if err := contract.Call(opts, &out, "dispatchOutgoing", l1Target, callData); err != nil {
		return nil, err
	}
	return out[0].([]byte), nil
}
