// Package derivation holds scenario tests for the L2 State Derivation
// Engine (internal/derive) and the L2 Execution Driver (internal/l2chain),
// exercising spec §8's seed scenarios against an in-memory fake EVM
// instead of a real anvil process, the way go-ethereum's
// accounts/abi/bind/backends.SimulatedBackend stands in for a real
// node in the bind package's own tests. Building a full SimulatedBackend
// (itself a thin wrapper over a real core.BlockChain/state.StateDB) is
// out of reach without running the Go toolchain to verify it against
// go-ethereum's current internals, so FakeL2 instead hand-models only
// the handful of state transitions this repo's genesis contracts and
// proxies ever perform: plain value transfer, Call Registry
// register/clear/pending, Proxy Factory deploy/proxyFor, and proxy
// dispatch/forwarding. It implements internal/l2chain.Client in full.
package derivation

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/syncrollup/core/internal/l2chain/bindings"
	"github.com/syncrollup/core/internal/rollup"
	"github.com/syncrollup/core/internal/trace"
)

// fakeState is every piece of mutable state Snapshot/Revert must copy,
// kept as one struct so taking a snapshot is one shallow-then-deep copy
// rather than a growing list of individually-named fields to remember.
type fakeState struct {
	balances map[common.Address]*big.Int
	nonces   map[common.Address]uint64
	code     map[common.Address][]byte
	registry map[[32]byte][][]byte
	proxies  map[common.Address]common.Address // proxy -> l1Address
	version  uint64
}

func newFakeState() *fakeState {
	return &fakeState{
		balances: make(map[common.Address]*big.Int),
		nonces:   make(map[common.Address]uint64),
		code:     make(map[common.Address][]byte),
		registry: make(map[[32]byte][][]byte),
		proxies:  make(map[common.Address]common.Address),
	}
}

func (s *fakeState) clone() *fakeState {
	out := newFakeState()
	for k, v := range s.balances {
		out.balances[k] = new(big.Int).Set(v)
	}
	for k, v := range s.nonces {
		out.nonces[k] = v
	}
	for k, v := range s.code {
		out.code[k] = append([]byte{}, v...)
	}
	for k, v := range s.registry {
		cp := make([][]byte, len(v))
		copy(cp, v)
		out.registry[k] = cp
	}
	for k, v := range s.proxies {
		out.proxies[k] = v
	}
	out.version = s.version
	return out
}

// root derives a deterministic state root from every mutable field, so
// Revert(Snapshot()) is observably a no-op the way anvil's is (§4.5,
// §9's "snapshot/revert semantics" assumption) without needing a real
// Merkle-Patricia trie.
func (s *fakeState) root() common.Hash {
	var buf bytes.Buffer
	addrs := make([]common.Address, 0, len(s.balances)+len(s.nonces)+len(s.code))
	seen := make(map[common.Address]bool)
	for a := range s.balances {
		if !seen[a] {
			seen[a] = true
			addrs = append(addrs, a)
		}
	}
	for a := range s.nonces {
		if !seen[a] {
			seen[a] = true
			addrs = append(addrs, a)
		}
	}
	for a := range s.code {
		if !seen[a] {
			seen[a] = true
			addrs = append(addrs, a)
		}
	}
	sort.Slice(addrs, func(i, j int) bool { return bytes.Compare(addrs[i].Bytes(), addrs[j].Bytes()) < 0 })
	for _, a := range addrs {
		buf.Write(a.Bytes())
		if b, ok := s.balances[a]; ok {
			buf.Write(b.Bytes())
		}
		buf.WriteString(strconv.FormatUint(s.nonces[a], 10))
		buf.Write(s.code[a])
	}
	keys := make([][32]byte, 0, len(s.registry))
	for k := range s.registry {
		keys = append(keys, k)
	}
	proxies := make([]common.Address, 0, len(s.proxies))
	for p := range s.proxies {
		proxies = append(proxies, p)
	}
	sort.Slice(proxies, func(i, j int) bool { return bytes.Compare(proxies[i].Bytes(), proxies[j].Bytes()) < 0 })
	for _, p := range proxies {
		buf.Write(p.Bytes())
		buf.Write(s.proxies[p].Bytes())
	}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i][:], keys[j][:]) < 0 })
	for _, k := range keys {
		buf.Write(k[:])
		for _, v := range s.registry[k] {
			buf.Write(v)
		}
	}
	return crypto.Keccak256Hash(buf.Bytes())
}

// pendingTx pairs a queued transaction with the sender resolved at
// submission time. Resolution cannot be deferred to Mine time: the
// driver pairs ImpersonateAccount/SendTransaction/StopImpersonating
// tightly around one call, so by the time a batch of queued txs is
// actually applied (StartBlock/EndBlock leaves automine off in
// between) the impersonation that identified the sender has already
// been torn back down.
type pendingTx struct {
	tx   *types.Transaction
	from common.Address
}

// fakeBlock is the minimal header information HeaderByNumber/BlockByNumber
// need to satisfy l2chain.Driver's StartBlock/EndBlock/StateRoot.
// Root is deliberately absent: nothing in this repo ever reads a
// historical block's root, only the current head's (Snapshot/Revert
// already handles time travel at the state level), so HeaderByNumber
// reports the live root regardless of which block index is requested.
type fakeBlock struct {
	number    uint64
	timestamp uint64
	txHashes  []common.Hash
}

// FakeL2 is a single-instance, single-goroutine-at-a-time fake
// satisfying l2chain.Client, standing in for both the fullnode's
// canonical L2 instance and the Builder's private instance in scenario
// tests (§8).
type FakeL2 struct {
	mu sync.Mutex

	chainID *big.Int
	addrs   rollup.Addresses

	state *fakeState

	blocks   []*fakeBlock
	receipts map[common.Hash]*types.Receipt
	traces   map[common.Hash]*trace.CallFrame

	automine      bool
	nextTimestamp uint64
	pending       []pendingTx

	impersonating map[common.Address]bool

	snapshots  map[string]*fakeState
	snapSeq    int
}

// NewFakeL2 constructs an empty fake with one genesis block (number 0,
// empty state root) already mined, matching the state an anvil
// instance is in before BuildGenesis runs.
func NewFakeL2(chainID *big.Int, addrs rollup.Addresses) *FakeL2 {
	f := &FakeL2{
		chainID:       chainID,
		addrs:         addrs,
		state:         newFakeState(),
		receipts:      make(map[common.Hash]*types.Receipt),
		traces:        make(map[common.Hash]*trace.CallFrame),
		automine:      true,
		impersonating: make(map[common.Address]bool),
		snapshots:     make(map[string]*fakeState),
	}
	f.blocks = append(f.blocks, &fakeBlock{number: 0, timestamp: 0})
	return f
}

// --- AdminClient ---

func (f *FakeL2) SetAutomine(ctx context.Context, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.automine = on
	return nil
}

func (f *FakeL2) SetNextBlockTimestamp(ctx context.Context, timestamp uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextTimestamp = timestamp
	return nil
}

func (f *FakeL2) Mine(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mineLocked()
}

// mineLocked flushes every pending tx into exactly one new block,
// mirroring anvil's "automine off, then one explicit mine" semantics
// l2chain.Driver.StartBlock/EndBlock relies on (§4.1.3).
func (f *FakeL2) mineLocked() error {
	txs := f.pending
	f.pending = nil
	for _, p := range txs {
		if err := f.applyLocked(p.tx, p.from); err != nil {
			return err
		}
	}
	ts := f.nextTimestamp
	if ts == 0 && len(f.blocks) > 0 {
		ts = f.blocks[len(f.blocks)-1].timestamp + 1
	}
	block := &fakeBlock{
		number:    uint64(len(f.blocks)),
		timestamp: ts,
	}
	for _, p := range txs {
		block.txHashes = append(block.txHashes, p.tx.Hash())
	}
	f.blocks = append(f.blocks, block)
	return nil
}

func (f *FakeL2) ImpersonateAccount(ctx context.Context, addr common.Address) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.impersonating[addr] = true
	return nil
}

func (f *FakeL2) StopImpersonating(ctx context.Context, addr common.Address) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.impersonating, addr)
	return nil
}

func (f *FakeL2) SetBalance(ctx context.Context, addr common.Address, balance *big.Int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.balances[addr] = new(big.Int).Set(balance)
	return nil
}

func (f *FakeL2) SetCode(ctx context.Context, addr common.Address, code []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.code[addr] = append([]byte{}, code...)
	return nil
}

func (f *FakeL2) SetNonce(ctx context.Context, addr common.Address, nonce uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.nonces[addr] = nonce
	return nil
}

func (f *FakeL2) Snapshot(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapSeq++
	id := strconv.Itoa(f.snapSeq)
	f.snapshots[id] = f.state.clone()
	return id, nil
}

func (f *FakeL2) Revert(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, ok := f.snapshots[id]
	if !ok {
		return fmt.Errorf("derivation: no such snapshot %q", id)
	}
	f.state = snap.clone()
	return nil
}

func (f *FakeL2) TraceTransaction(ctx context.Context, txHash common.Hash) (*trace.CallFrame, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	frame, ok := f.traces[txHash]
	if !ok {
		return nil, fmt.Errorf("derivation: no trace recorded for %s", txHash)
	}
	return frame, nil
}

// --- Client / Backend / ReadClient ---

func (f *FakeL2) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	from := f.sender(tx)
	if !f.automine {
		f.pending = append(f.pending, pendingTx{tx: tx, from: from})
		return nil
	}
	if err := f.applyLocked(tx, from); err != nil {
		return err
	}
	return f.mineLocked()
}

func (f *FakeL2) sender(tx *types.Transaction) common.Address {
	for addr := range f.impersonating {
		return addr
	}
	signer := types.LatestSignerForChainID(f.chainID)
	addr, err := types.Sender(signer, tx)
	if err != nil {
		return common.Address{}
	}
	return addr
}

// applyLocked executes tx's effect on state and records its receipt
// and trace, called with f.mu already held. from is resolved by the
// caller at submission time (see pendingTx).
func (f *FakeL2) applyLocked(tx *types.Transaction, from common.Address) error {
	f.state.nonces[from] = f.state.nonces[from] + 1

	frame := trace.CallFrame{From: from, Value: valueOf(tx)}
	if tx.To() != nil {
		frame.To = *tx.To()
	}
	frame.Input = tx.Data()

	if tx.To() != nil {
		if err := f.dispatchLocked(from, *tx.To(), frame.Value, tx.Data()); err != nil {
			return err
		}
	} else if tx.Value() != nil && tx.Value().Sign() > 0 {
		f.moveValueLocked(from, common.Address{}, tx.Value())
	}

	f.traces[tx.Hash()] = &frame
	f.receipts[tx.Hash()] = &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      tx.Hash(),
		BlockNumber: big.NewInt(int64(len(f.blocks))),
	}
	return nil
}

func valueOf(tx *types.Transaction) *big.Int {
	if tx.Value() == nil {
		return big.NewInt(0)
	}
	return tx.Value()
}

// dispatchLocked interprets a call against one of the three genesis
// contract kinds this repo ever installs, or else treats it as a
// plain value transfer to an ordinary L2 account (§3, §4.6).
func (f *FakeL2) dispatchLocked(from, to common.Address, value *big.Int, data []byte) error {
	switch {
	case to == f.addrs.CallRegistry:
		return f.dispatchRegistry(data)
	case to == f.addrs.ProxyFactory:
		return f.dispatchFactory(data)
	default:
		if l1Address, ok := f.state.proxies[to]; ok {
			return f.dispatchProxy(from, l1Address, value, data)
		}
		if value != nil && value.Sign() > 0 {
			f.moveValueLocked(from, to, value)
		}
		return nil
	}
}

func (f *FakeL2) dispatchRegistry(data []byte) error {
	if len(data) < 4 {
		return nil
	}
	method, err := bindings.RegistryABI.MethodById(data[:4])
	if err != nil {
		return nil
	}
	switch method.Name {
	case "register":
		args, err := method.Inputs.Unpack(data[4:])
		if err != nil {
			return fmt.Errorf("derivation: unpack registry.register: %w", err)
		}
		key := args[0].([32]byte)
		value := args[1].([]byte)
		f.state.registry[key] = append(f.state.registry[key], append([]byte{}, value...))
	case "clear":
		args, err := method.Inputs.Unpack(data[4:])
		if err != nil {
			return fmt.Errorf("derivation: unpack registry.clear: %w", err)
		}
		keys := args[0].([][32]byte)
		for _, k := range keys {
			delete(f.state.registry, k)
		}
	case "consume":
		args, err := method.Inputs.Unpack(data[4:])
		if err != nil {
			return fmt.Errorf("derivation: unpack registry.consume: %w", err)
		}
		key := args[0].([32]byte)
		if q := f.state.registry[key]; len(q) > 0 {
			f.state.registry[key] = q[1:]
		}
	}
	return nil
}

func (f *FakeL2) dispatchFactory(data []byte) error {
	if len(data) < 4 {
		return nil
	}
	method, err := bindings.FactoryABI.MethodById(data[:4])
	if err != nil {
		return nil
	}
	if method.Name != "deploy" {
		return nil
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return fmt.Errorf("derivation: unpack factory.deploy: %w", err)
	}
	l1Address := args[0].(common.Address)
	proxy := rollup.L1ToL2ProxyAddress(f.addrs.ProxyFactory, f.addrs.System, f.addrs.CallRegistry, l1Address)
	f.state.proxies[proxy] = l1Address
	return nil
}

var dispatchOutgoingSelector = bindings.ProxyABI.Methods["dispatchOutgoing"].ID

// dispatchProxy models both directions the proxy for l1Address can be
// reached from: an L2 contract addressing it directly with
// dispatchOutgoing(l1Target, callData) (§4.3.1, recorded as a traced
// call frame only — the actual L1 leg is resolved by discovery, never
// by this fake), or the derivation engine forwarding an incoming L1
// call as packed calldata l2Target‖callData from S (§4.1.2 step 3).
func (f *FakeL2) dispatchProxy(from, l1Address common.Address, value *big.Int, data []byte) error {
	if len(data) >= 4 && bytes.Equal(data[:4], dispatchOutgoingSelector) {
		return nil
	}
	if len(data) < common.AddressLength {
		return nil
	}
	l2Target := common.BytesToAddress(data[:common.AddressLength])
	if value != nil && value.Sign() > 0 {
		f.moveValueLocked(from, l2Target, value)
	}
	return nil
}

func (f *FakeL2) moveValueLocked(from, to common.Address, value *big.Int) {
	if (from != common.Address{}) {
		bal := f.state.balances[from]
		if bal == nil {
			bal = big.NewInt(0)
		}
		f.state.balances[from] = new(big.Int).Sub(bal, value)
	}
	if (to != common.Address{}) {
		bal := f.state.balances[to]
		if bal == nil {
			bal = big.NewInt(0)
		}
		f.state.balances[to] = new(big.Int).Add(bal, value)
	}
}

func (f *FakeL2) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.nonces[account], nil
}

func (f *FakeL2) NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error) {
	return f.PendingNonceAt(ctx, account)
}

func (f *FakeL2) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.state.balances[account]; ok {
		return new(big.Int).Set(b), nil
	}
	return big.NewInt(0), nil
}

func (f *FakeL2) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte{}, f.state.code[account]...), nil
}

func (f *FakeL2) PendingCodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	return f.CodeAt(ctx, account, nil)
}

func (f *FakeL2) StorageAt(ctx context.Context, account common.Address, key common.Hash, blockNumber *big.Int) ([]byte, error) {
	return nil, nil
}

func (f *FakeL2) BlockNumber(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint64(len(f.blocks) - 1), nil
}

func (f *FakeL2) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := len(f.blocks) - 1
	if number != nil {
		idx = int(number.Uint64())
	}
	if idx < 0 || idx >= len(f.blocks) {
		return nil, fmt.Errorf("derivation: no block %d", idx)
	}
	b := f.blocks[idx]
	return &types.Header{Number: new(big.Int).SetUint64(b.number), Time: b.timestamp, Root: f.state.root()}, nil
}

func (f *FakeL2) BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error) {
	header, err := f.HeaderByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	return types.NewBlockWithHeader(header), nil
}

func (f *FakeL2) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.receipts[txHash]
	if !ok {
		return nil, fmt.Errorf("derivation: no receipt for %s", txHash)
	}
	return r, nil
}

func (f *FakeL2) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if call.To == nil {
		return nil, nil
	}
	switch *call.To {
	case f.addrs.CallRegistry:
		return f.callRegistryLocked(call.Data)
	case f.addrs.ProxyFactory:
		return f.callFactoryLocked(call.Data)
	default:
		return nil, nil
	}
}

func (f *FakeL2) callRegistryLocked(data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, nil
	}
	method, err := bindings.RegistryABI.MethodById(data[:4])
	if err != nil {
		return nil, nil
	}
	switch method.Name {
	case "pending":
		args, err := method.Inputs.Unpack(data[4:])
		if err != nil {
			return nil, err
		}
		key := args[0].([32]byte)
		return method.Outputs.Pack(big.NewInt(int64(len(f.state.registry[key]))))
	case "consume":
		args, err := method.Inputs.Unpack(data[4:])
		if err != nil {
			return nil, err
		}
		key := args[0].([32]byte)
		q := f.state.registry[key]
		if len(q) == 0 {
			return method.Outputs.Pack(false, []byte{})
		}
		return method.Outputs.Pack(true, q[0])
	default:
		return nil, nil
	}
}

func (f *FakeL2) callFactoryLocked(data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, nil
	}
	method, err := bindings.FactoryABI.MethodById(data[:4])
	if err != nil {
		return nil, nil
	}
	if method.Name != "proxyFor" {
		return nil, nil
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, err
	}
	l1Address := args[0].(common.Address)
	for proxy, l1 := range f.state.proxies {
		if l1 == l1Address {
			return method.Outputs.Pack(proxy)
		}
	}
	return method.Outputs.Pack(common.Address{})
}

func (f *FakeL2) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	return nil, nil
}

func (f *FakeL2) SubscribeFilterLogs(ctx context.Context, query ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	return nil, fmt.Errorf("derivation: FakeL2 does not support log subscriptions")
}

func (f *FakeL2) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (f *FakeL2) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (f *FakeL2) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	return 100_000, nil
}

// StateRoot exposes the current head root directly, a convenience for
// assertions that would otherwise go through HeaderByNumber(nil).
func (f *FakeL2) StateRoot() common.Hash {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.root()
}
