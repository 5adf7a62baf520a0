package derivation

import (
	"context"
	"crypto/ecdsa"
	"io"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"

	"github.com/syncrollup/core/internal/derive"
	"github.com/syncrollup/core/internal/errs"
	"github.com/syncrollup/core/internal/l1chain"
	"github.com/syncrollup/core/internal/l2chain"
	"github.com/syncrollup/core/internal/rollup"
)

func testLogger() log.Logger {
	l := log.New()
	l.SetHandler(log.StreamHandler(io.Discard, log.TerminalFormat(false)))
	return l
}

// testInstance bundles one independent FakeL2+Driver+config, the way
// cmd/fullnode and cmd/builder each own one instance built from the
// same fixed config (§4.1).
type testInstance struct {
	cfg    *rollup.Config
	addrs  rollup.Addresses
	fake   *FakeL2
	driver *l2chain.Driver
}

// freshInstance builds genesis on a brand new instance. Two calls to
// freshInstance MUST converge to the same genesis root; that
// convergence is the subject of TestGenesisDeterminism and every other
// test's cross-instance comparisons below.
func freshInstance(t *testing.T) (*testInstance, common.Hash) {
	t.Helper()
	cfg := rollup.Default()
	cfg.L1ChainID = big.NewInt(1)
	addrs := rollup.ComputeAddresses()
	fake := NewFakeL2(cfg.L2ChainID, addrs)
	driver := l2chain.NewDriver(testLogger(), fake, cfg, addrs)
	root, err := l2chain.BuildGenesis(context.Background(), driver)
	require.NoError(t, err)
	return &testInstance{cfg: cfg, addrs: addrs, fake: fake, driver: driver}, root
}

func TestGenesisDeterminism(t *testing.T) {
	_, rootA := freshInstance(t)
	_, rootB := freshInstance(t)
	require.NotEqual(t, common.Hash{}, rootA, "genesis root must not be the empty hash")
	require.Equal(t, rootA, rootB, "two independent genesis builds must converge to the same root (§3 invariant 1)")
}

// signL2Tx builds a signed legacy L2 transaction the way a real user
// would present one to the Builder's submit endpoint (§6), so scenario
// tests exercise the exact RLP-decode-then-replay path
// derive.Engine.applyL2BlockProcessed runs.
func signL2Tx(t *testing.T, chainID *big.Int, priv *ecdsa.PrivateKey, nonce uint64, to common.Address, value *big.Int, data []byte) *types.Transaction {
	t.Helper()
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      1_000_000,
		GasPrice: big.NewInt(0),
		Data:     data,
	})
	signer := types.LatestSignerForChainID(chainID)
	signed, err := types.SignTx(tx, signer, priv)
	require.NoError(t, err)
	return signed
}

// TestApplyL2BlockProcessed_NoOutgoingCalls covers seed scenario C: a
// plain L2 transaction with no cross-chain side effects, replayed
// verbatim by the engine from an L1-recorded event.
func TestApplyL2BlockProcessed_NoOutgoingCalls(t *testing.T) {
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)

	// Instance A: drive the tx directly to measure the resulting root,
	// the way a reference computation independent of the engine would.
	instA, genesisRoot := freshInstance(t)
	target := common.HexToAddress("0x00000000000000000000000000000000001234")
	tx := signL2Tx(t, instA.cfg.L2ChainID, priv, 0, target, big.NewInt(1000), nil)

	require.NoError(t, instA.driver.StartBlock(context.Background(), 100))
	require.NoError(t, instA.driver.SendRaw(context.Background(), tx))
	measuredBlock, err := instA.driver.EndBlock(context.Background())
	require.NoError(t, err)
	measuredRoot := measuredBlock.Root()
	require.NotEqual(t, genesisRoot, measuredRoot, "a value-moving tx must change the state root")

	// Instance B: apply the same tx through the engine from an
	// independently-built genesis and require it converges to the same
	// measured root (§3 invariant 1: replica determinism).
	instB, genesisRootB := freshInstance(t)
	require.Equal(t, genesisRoot, genesisRootB)
	engine := derive.NewEngine(testLogger(), instB.driver, instB.cfg)

	rawTx, err := tx.MarshalBinary()
	require.NoError(t, err)
	ev := l1chain.Event{
		Kind:         l1chain.KindL2BlockProcessed,
		Position:     l1chain.Position{L1BlockNumber: 10, LogIndex: 0},
		L1BlockTime:  100,
		PrevL2Root:   genesisRootB,
		NewL2Root:    measuredRoot,
		RLPEncodedTx: rawTx,
	}
	require.NoError(t, engine.ApplyEvent(context.Background(), ev))

	root, err := instB.driver.StateRoot(context.Background())
	require.NoError(t, err)
	require.Equal(t, measuredRoot, root)
}

// TestApplyEvent_RootMismatchIsFatal covers the §4.1.4 divergence
// check: an event whose claimed final root does not match what the
// engine actually derives must surface as KindStateDivergence, never
// be silently accepted.
func TestApplyEvent_RootMismatchIsFatal(t *testing.T) {
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)

	inst, genesisRoot := freshInstance(t)
	engine := derive.NewEngine(testLogger(), inst.driver, inst.cfg)

	target := common.HexToAddress("0x00000000000000000000000000000000005678")
	tx := signL2Tx(t, inst.cfg.L2ChainID, priv, 0, target, big.NewInt(1), nil)
	rawTx, err := tx.MarshalBinary()
	require.NoError(t, err)

	ev := l1chain.Event{
		Kind:         l1chain.KindL2BlockProcessed,
		Position:     l1chain.Position{L1BlockNumber: 11, LogIndex: 0},
		L1BlockTime:  200,
		PrevL2Root:   genesisRoot,
		NewL2Root:    common.HexToHash("0xdeadbeef"),
		RLPEncodedTx: rawTx,
	}
	err = engine.ApplyEvent(context.Background(), ev)
	require.Error(t, err)
	kind, ok := errs.Of(err)
	require.True(t, ok)
	require.Equal(t, errs.KindStateDivergence, kind)
}

// TestApplyEvent_MetadataOnlyIgnored covers §3's requirement that the
// two metadata-only event kinds MUST NOT affect derived state.
func TestApplyEvent_MetadataOnlyIgnored(t *testing.T) {
	inst, genesisRoot := freshInstance(t)
	engine := derive.NewEngine(testLogger(), inst.driver, inst.cfg)

	ev := l1chain.Event{Kind: l1chain.KindIncomingCallRegistered}
	require.NoError(t, engine.ApplyEvent(context.Background(), ev))

	root, err := inst.driver.StateRoot(context.Background())
	require.NoError(t, err)
	require.Equal(t, genesisRoot, root, "a metadata-only event must never change the L2 state root")
}

// TestApplyIncomingCallHandled covers seed scenario B: an L1→L2
// deposit-like call. It exercises lazy proxy deployment (§4.6) and the
// S-impersonated forwarding replay (§4.1.2), then asserts that
// replaying the identical event a second time (stale prevRoot) is
// rejected rather than silently re-applied.
func TestApplyIncomingCallHandled(t *testing.T) {
	inst, genesisRoot := freshInstance(t)
	engine := derive.NewEngine(testLogger(), inst.driver, inst.cfg)

	l1Caller := common.HexToAddress("0x00000000000000000000000000000000009999")
	l2Target := common.HexToAddress("0x0000000000000000000000000000000000aaaa")
	expectedProxy := rollup.L1ToL2ProxyAddress(inst.addrs.ProxyFactory, inst.addrs.System, inst.addrs.CallRegistry, l1Caller)

	// Measure the resultant root the same way the engine itself would
	// reach it, via a parallel instance driven directly.
	instA, genesisRootA := freshInstance(t)
	require.Equal(t, genesisRoot, genesisRootA)
	require.NoError(t, instA.driver.StartBlock(context.Background(), 50))
	require.NoError(t, instA.driver.EnsureL1ToL2Proxy(context.Background(), l1Caller, expectedProxy))
	packed := append(append([]byte{}, l2Target.Bytes()...), []byte("hello")...)
	_, sendErr := instA.driver.SendAsSystem(context.Background(), expectedProxy, packed, big.NewInt(500))
	require.NoError(t, sendErr)
	measuredBlock, err := instA.driver.EndBlock(context.Background())
	require.NoError(t, err)
	measuredRoot := measuredBlock.Root()

	ev := l1chain.Event{
		Kind:        l1chain.KindIncomingCallHandled,
		Position:    l1chain.Position{L1BlockNumber: 20, LogIndex: 0},
		L1BlockTime: 50,
		PrevL2Root:  genesisRoot,
		L2Target:    l2Target,
		L1Caller:    l1Caller,
		CallData:    []byte("hello"),
		Value:       big.NewInt(500),
		FinalL2Root: measuredRoot,
	}
	require.NoError(t, engine.ApplyEvent(context.Background(), ev))
	require.True(t, inst.driver.IsKnownProxy(expectedProxy))

	root, err := inst.driver.StateRoot(context.Background())
	require.NoError(t, err)
	require.Equal(t, measuredRoot, root)

	// Replaying the same event again: prevL2Root no longer matches
	// current state, so the engine must refuse it rather than re-apply.
	err = engine.ApplyEvent(context.Background(), ev)
	require.Error(t, err)
	kind, ok := errs.Of(err)
	require.True(t, ok)
	require.Equal(t, errs.KindEventNotApplicable, kind)
}

// TestApplyL2BlockProcessed_PreloadsOutgoingResults covers seed
// scenario D's registration half: an event carrying a discovered
// outgoing call's already-known result must have that result installed
// into the Call Registry before the tx is replayed (§4.1.1, §4.6),
// so the L2 contract's own execution can consume it deterministically.
func TestApplyL2BlockProcessed_PreloadsOutgoingResults(t *testing.T) {
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	inst, genesisRoot := freshInstance(t)
	engine := derive.NewEngine(testLogger(), inst.driver, inst.cfg)

	l1Target := common.HexToAddress("0x00000000000000000000000000000000004242")
	l2Caller := common.HexToAddress("0x0000000000000000000000000000000000abcd")
	callData := []byte("outbound-call")
	key := rollup.CallKey(l1Target, l2Caller, callData)

	target := common.HexToAddress("0x0000000000000000000000000000000000beef")
	tx := signL2Tx(t, inst.cfg.L2ChainID, priv, 0, target, big.NewInt(0), nil)
	rawTx, err := tx.MarshalBinary()
	require.NoError(t, err)

	pendingBefore, err := inst.driver.RegistryPending(context.Background(), key)
	require.NoError(t, err)
	require.Equal(t, int64(0), pendingBefore.Int64())

	// Measure the root the preload-then-replay sequence actually
	// produces, using a parallel instance driven directly.
	instA, genesisRootA := freshInstance(t)
	require.Equal(t, genesisRoot, genesisRootA)
	require.NoError(t, instA.driver.StartBlock(context.Background(), 77))
	require.NoError(t, instA.driver.RegistryRegister(context.Background(), key, []byte("result")))
	require.NoError(t, instA.driver.SendRaw(context.Background(), tx))
	measuredBlock, err := instA.driver.EndBlock(context.Background())
	require.NoError(t, err)

	ev := l1chain.Event{
		Kind:            l1chain.KindL2BlockProcessed,
		Position:        l1chain.Position{L1BlockNumber: 30, LogIndex: 0},
		L1BlockTime:     77,
		PrevL2Root:      genesisRoot,
		NewL2Root:       measuredBlock.Root(),
		RLPEncodedTx:    rawTx,
		OutgoingCalls:   []l1chain.OutgoingCall{{From: l2Caller, Target: l1Target, Data: callData}},
		OutgoingResults: [][]byte{[]byte("result")},
	}
	require.NoError(t, engine.ApplyEvent(context.Background(), ev))

	pendingAfter, err := inst.driver.RegistryPending(context.Background(), key)
	require.NoError(t, err)
	require.Equal(t, int64(1), pendingAfter.Int64(), "the discovered result must be installed into the registry before replay")
}
