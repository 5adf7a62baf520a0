package derivation

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/syncrollup/core/internal/discovery"
	"github.com/syncrollup/core/internal/errs"
	"github.com/syncrollup/core/internal/l1chain"
	"github.com/syncrollup/core/internal/rollup"
)

// fakeL1 is the minimal l1chain.Client this package's discovery tests
// need: a table of canned eth_call results keyed by target address, the
// way FakeL2 (fakel2.go) hand-models just enough of the real surface to drive
// the code under test deterministically.
type fakeL1 struct {
	results map[common.Address][]byte
	calls   int
}

func (f *fakeL1) BlockNumber(ctx context.Context) (uint64, error) { return 0, nil }
func (f *fakeL1) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(0)}, nil
}
func (f *fakeL1) FilterLogs(ctx context.Context, q l1chain.FilterQuery) ([]types.Log, error) {
	return nil, nil
}
func (f *fakeL1) CallContract(ctx context.Context, msg l1chain.CallMsg, blockNumber *big.Int) ([]byte, error) {
	f.calls++
	if msg.To == nil {
		return nil, nil
	}
	result, ok := f.results[*msg.To]
	if !ok {
		return nil, fmt.Errorf("fakeL1: no canned result for %s", *msg.To)
	}
	return result, nil
}
func (f *fakeL1) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return 0, nil
}
func (f *fakeL1) SendTransaction(ctx context.Context, tx *types.Transaction) error { return nil }

// TestRunFixedPoint_ConvergesAndResolvesAgainstL1 drives
// discovery.RunFixedPoint with a Simulator that discovers one more
// outgoing call each iteration until a third iteration finds nothing
// new, asserting it converges with both calls resolved via the fake
// L1's CallContract and never revisits an already-resolved call
// (§4.3.1, §4.3.3).
func TestRunFixedPoint_ConvergesAndResolvesAgainstL1(t *testing.T) {
	inst, _ := freshInstance(t)

	l2Caller := common.HexToAddress("0x0000000000000000000000000000000000c0de")
	targetA := common.HexToAddress("0x00000000000000000000000000000000000a0a")
	targetB := common.HexToAddress("0x00000000000000000000000000000000000b0b")
	callA := discovery.OutgoingCall{From: l2Caller, Target: targetA, CallData: []byte("call-a")}
	callB := discovery.OutgoingCall{From: l2Caller, Target: targetB, CallData: []byte("call-b")}

	l1 := &fakeL1{results: map[common.Address][]byte{
		targetA: []byte("result-a"),
		targetB: []byte("result-b"),
	}}

	attempt := 0
	sim := func(ctx context.Context) (discovery.Attempt, error) {
		attempt++
		switch attempt {
		case 1:
			return discovery.Attempt{Outgoing: []discovery.OutgoingCall{callA}}, nil
		default:
			return discovery.Attempt{Outgoing: []discovery.OutgoingCall{callA, callB}}, nil
		}
	}

	result, err := discovery.RunFixedPoint(context.Background(), testLogger(), inst.driver, l1, inst.cfg, sim)
	require.NoError(t, err)
	require.Equal(t, 3, attempt, "must keep simulating until an iteration finds nothing new")
	require.Len(t, result.Calls, 2)
	require.Equal(t, [][]byte{[]byte("result-a"), []byte("result-b")}, result.Results)
	require.Equal(t, 2, l1.calls, "each distinct call must be resolved against L1 exactly once")

	keys := discovery.CallKeys(result.Calls)
	require.Equal(t, rollup.CallKey(targetA, l2Caller, callA.CallData), keys[0])
	require.Equal(t, rollup.CallKey(targetB, l2Caller, callB.CallData), keys[1])
}

// TestRunFixedPoint_NoFixedPointErrors covers the divergence case
// (§4.3.3 "fails if ... no fixed point within bounded iterations"): a
// Simulator that always claims a brand new call every iteration must
// surface KindDiscoveryNoFixedPoint once cfg.MaxDiscoveryIterations is
// exhausted, rather than looping forever.
func TestRunFixedPoint_NoFixedPointErrors(t *testing.T) {
	inst, _ := freshInstance(t)
	inst.cfg.MaxDiscoveryIterations = 3

	l2Caller := common.HexToAddress("0x0000000000000000000000000000000000c0de")
	l1 := &fakeL1{results: map[common.Address][]byte{}}

	n := 0
	sim := func(ctx context.Context) (discovery.Attempt, error) {
		n++
		target := common.BigToAddress(big.NewInt(int64(n)))
		l1.results[target] = []byte("r")
		return discovery.Attempt{Outgoing: []discovery.OutgoingCall{{From: l2Caller, Target: target, CallData: []byte{byte(n)}}}}, nil
	}

	_, err := discovery.RunFixedPoint(context.Background(), testLogger(), inst.driver, l1, inst.cfg, sim)
	require.Error(t, err)
	kind, ok := errs.Of(err)
	require.True(t, ok)
	require.Equal(t, errs.KindDiscoveryNoFixedPoint, kind)
}

// TestRunIncomingFixedPoint_PredictsFinalRootAndLeavesNoTrace exercises
// the full §4.3.2 steps 3-4 / §4.3.3 prediction path end to end against
// the Builder's private driver: it must predict the exact root a direct
// replay of the same call reaches, and must leave the driver's own
// state untouched afterward (the whole point of running it inside a
// snapshot/revert pair before anything is actually registered on L1).
func TestRunIncomingFixedPoint_PredictsFinalRootAndLeavesNoTrace(t *testing.T) {
	inst, genesisRoot := freshInstance(t)

	l1Caller := common.HexToAddress("0x00000000000000000000000000000000007777")
	l2Target := common.HexToAddress("0x0000000000000000000000000000000000dddd")
	callData := []byte("discovered-incoming-call")
	value := big.NewInt(250)

	// Measure the root a direct replay reaches, the same way
	// TestApplyIncomingCallHandled does, as the independent reference.
	instA, genesisRootA := freshInstance(t)
	require.Equal(t, genesisRoot, genesisRootA)
	expectedProxy := rollup.L1ToL2ProxyAddress(instA.addrs.ProxyFactory, instA.addrs.System, instA.addrs.CallRegistry, l1Caller)
	require.NoError(t, instA.driver.StartBlock(context.Background(), 99))
	require.NoError(t, instA.driver.EnsureL1ToL2Proxy(context.Background(), l1Caller, expectedProxy))
	packed := append(append([]byte{}, l2Target.Bytes()...), callData...)
	_, err := instA.driver.SendAsSystem(context.Background(), expectedProxy, packed, value)
	require.NoError(t, err)
	measuredBlock, err := instA.driver.EndBlock(context.Background())
	require.NoError(t, err)
	measuredRoot := measuredBlock.Root()

	proxyDecode := func(addr common.Address, input []byte) (common.Address, []byte, bool) { return common.Address{}, nil, false }
	l1 := &fakeL1{results: map[common.Address][]byte{}}

	result, err := discovery.RunIncomingFixedPoint(context.Background(), testLogger(), inst.driver, l1, inst.cfg,
		l1Caller, l2Target, callData, value, proxyDecode)
	require.NoError(t, err)
	require.Empty(t, result.Calls, "FakeL2 never records nested call frames, so no outgoing calls should be discovered")
	require.Equal(t, measuredRoot, result.FinalL2Root, "predicted root must match a direct replay of the same call")

	root, err := inst.driver.StateRoot(context.Background())
	require.NoError(t, err)
	require.Equal(t, genesisRoot, root, "discovery must revert every change it made before returning")
}
