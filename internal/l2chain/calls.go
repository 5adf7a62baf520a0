package l2chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/syncrollup/core/internal/errs"
	"github.com/syncrollup/core/internal/l2chain/bindings"
)

// RegistryRegister appends value to key's queue in the Call Registry,
// issued as a privileged call from S exactly like every other genesis
// contract write (§3 "caller MUST be S").
func (d *Driver) RegistryRegister(ctx context.Context, key common.Hash, value []byte) error {
	data, err := bindings.RegistryABI.Pack("register", [32]byte(key), value)
	if err != nil {
		return errs.New(errs.KindRpcPermanent, "l2chain: pack registry.register", err)
	}
	_, err = d.SendAsSystem(ctx, d.addrs.CallRegistry, data, big.NewInt(0))
	return err
}

// RegistryClear resets the queues for keys, issued as a privileged
// call from S (§3). No code path in this repo calls it.
func (d *Driver) RegistryClear(ctx context.Context, keys []common.Hash) error {
	raw := make([][32]byte, len(keys))
	for i, k := range keys {
		raw[i] = [32]byte(k)
	}
	data, err := bindings.RegistryABI.Pack("clear", raw)
	if err != nil {
		return errs.New(errs.KindRpcPermanent, "l2chain: pack registry.clear", err)
	}
	_, err = d.SendAsSystem(ctx, d.addrs.CallRegistry, data, big.NewInt(0))
	return err
}

// RegistryPending reads how many entries are queued for key, a
// read-only call so it goes through the bindings wrapper directly
// instead of S-impersonated submission.
func (d *Driver) RegistryPending(ctx context.Context, key common.Hash) (*big.Int, error) {
	r := bindings.NewRegistry(d.addrs.CallRegistry, d.client)
	n, err := r.Pending(&bind.CallOpts{Context: ctx}, [32]byte(key))
	if err != nil {
		return nil, errs.New(errs.KindRpcTransient, "l2chain: registry.pending", err)
	}
	return n, nil
}

// FactoryDeploy creates the L1→L2 proxy for l1Address if it does not
// already exist, issued as a privileged call from S (§4.6).
func (d *Driver) FactoryDeploy(ctx context.Context, l1Address common.Address) error {
	data, err := bindings.FactoryABI.Pack("deploy", l1Address)
	if err != nil {
		return errs.New(errs.KindRpcPermanent, "l2chain: pack factory.deploy", err)
	}
	_, err = d.SendAsSystem(ctx, d.addrs.ProxyFactory, data, big.NewInt(0))
	return err
}

// FactoryProxyFor reads the proxy address already deployed for
// l1Address, or the zero address if deploy has never been called.
func (d *Driver) FactoryProxyFor(ctx context.Context, l1Address common.Address) (common.Address, error) {
	f := bindings.NewFactory(d.addrs.ProxyFactory, d.client)
	addr, err := f.ProxyFor(&bind.CallOpts{Context: ctx}, l1Address)
	if err != nil {
		return common.Address{}, errs.New(errs.KindRpcTransient, "l2chain: factory.proxyFor", err)
	}
	return addr, nil
}

// EnsureL1ToL2Proxy deploys l1Address's L1→L2 proxy through F if it
// does not already exist (§4.1.2 step 1, "L1→L2 proxies: deployed
// lazily on first IncomingCallHandled for their L1 address; permanent",
// §3). Outside an open block it reads the deployed address back and
// requires it to equal expected, the CREATE2 address computed
// independently from F/S/R (§4.6) — a mismatch means this instance's
// Proxy Factory disagrees with the address formula the rest of the
// system relies on, which is itself a state-divergence condition.
// Inside a block opened by StartBlock the deploy is only queued until
// EndBlock mines it, so no readback is made there.
func (d *Driver) EnsureL1ToL2Proxy(ctx context.Context, l1Address, expected common.Address) error {
	existing, err := d.FactoryProxyFor(ctx, l1Address)
	if err != nil {
		return err
	}
	if existing == expected {
		d.RecordProxy(expected)
		return nil
	}
	if (existing != common.Address{}) {
		return errs.New(errs.KindStateDivergence,
			fmt.Sprintf("l2chain: factory already deployed proxy %s for %s, expected %s", existing, l1Address, expected), nil)
	}
	if err := d.FactoryDeploy(ctx, l1Address); err != nil {
		return err
	}
	if d.building {
		d.RecordProxy(expected)
		return nil
	}
	deployed, err := d.FactoryProxyFor(ctx, l1Address)
	if err != nil {
		return err
	}
	if deployed != expected {
		return errs.New(errs.KindStateDivergence,
			fmt.Sprintf("l2chain: factory deployed proxy %s for %s, expected %s", deployed, l1Address, expected), nil)
	}
	d.RecordProxy(expected)
	return nil
}
