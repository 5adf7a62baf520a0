package l1chain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Event signatures, computed the way abigen-generated contract
// bindings compute them: Keccak256 of the canonical Solidity event
// signature string. Kept as package vars rather than constants since
// crypto.Keccak256Hash is not a compile-time constant expression.
var (
	sigL2BlockProcessed = crypto.Keccak256Hash([]byte(
		"L2BlockProcessed(uint256,bytes32,bytes32,bytes,(address,address,uint256,uint256,bytes,bytes32)[],bytes[])"))
	sigIncomingCallHandled = crypto.Keccak256Hash([]byte(
		"IncomingCallHandled(address,address,bytes32,bytes,uint256,(address,address,uint256,uint256,bytes,bytes32)[],bytes[],bytes32)"))
	sigIncomingCallRegistered = crypto.Keccak256Hash([]byte(
		"IncomingCallRegistered(address,bytes32)"))
	sigL2SenderProxyDeployed = crypto.Keccak256Hash([]byte(
		"L2SenderProxyDeployed(address,address)"))
)

// outgoingCallComponents describes the OutgoingCall tuple's fields the
// way abigen would, so abi.NewType can build the matching Go struct
// type for us (field Name capitalized, struct tag set to the raw
// component name) instead of us guessing at the reflection details.
var outgoingCallComponents = []abi.ArgumentMarshaling{
	{Name: "from", Type: "address"},
	{Name: "target", Type: "address"},
	{Name: "value", Type: "uint256"},
	{Name: "gas", Type: "uint256"},
	{Name: "data", Type: "bytes"},
	{Name: "postCallStateHash", Type: "bytes32"},
}

func outgoingCallArrayType() abi.Type {
	t, err := abi.NewType("tuple[]", "", outgoingCallComponents)
	if err != nil {
		panic("l1chain: bad OutgoingCall[] abi type: " + err.Error())
	}
	return t
}

// outgoingCallStruct is the Go-side shape of one decoded OutgoingCall
// tuple. Its field names/order/tags must match what abi.NewType builds
// for outgoingCallComponents above (capitalized name, json tag = raw
// component name) so the type assertion in unpackOutgoingCalls holds.
type outgoingCallStruct struct {
	From              common.Address `json:"from"`
	Target            common.Address `json:"target"`
	Value             *big.Int       `json:"value"`
	Gas               *big.Int       `json:"gas"`
	Data              []byte         `json:"data"`
	PostCallStateHash [32]byte       `json:"postCallStateHash"`
}

var l2BlockProcessedDataArgs = abi.Arguments{
	mustArg("blockNumber", "uint256"),
	mustArg("prevBlockHash", "bytes32"),
	mustArg("newBlockHash", "bytes32"),
	mustArg("rlpEncodedTx", "bytes"),
	{Name: "outgoingCalls", Type: outgoingCallArrayType()},
	mustArg("outgoingCallResults", "bytes[]"),
}

var incomingCallHandledDataArgs = abi.Arguments{
	mustArg("l2Target", "address"),
	mustArg("l1Caller", "address"),
	mustArg("prevBlockHash", "bytes32"),
	mustArg("callData", "bytes"),
	mustArg("value", "uint256"),
	{Name: "outgoingCalls", Type: outgoingCallArrayType()},
	mustArg("outgoingCallResults", "bytes[]"),
	mustArg("finalStateHash", "bytes32"),
}

func mustArg(name, typ string) abi.Argument {
	t, err := abi.NewType(typ, "", nil)
	if err != nil {
		panic(fmt.Sprintf("l1chain: bad abi type %q: %v", typ, err))
	}
	return abi.Argument{Name: name, Type: t}
}

// DecodeLog converts one raw L1 log into a normalized Event, or
// returns ok=false for log topics this repo does not recognize (so
// callers can skip unrelated contract events sharing the same address
// space, though in practice every log here comes pre-filtered to the
// rollup contract's address).
func DecodeLog(lg types.Log, l1BlockTime uint64) (Event, bool, error) {
	if len(lg.Topics) == 0 {
		return Event{}, false, nil
	}
	base := Event{
		Position:    Position{L1BlockNumber: lg.BlockNumber, LogIndex: lg.Index},
		TxHash:      lg.TxHash,
		L1BlockTime: l1BlockTime,
	}

	switch lg.Topics[0] {
	case sigL2BlockProcessed:
		vals, err := l2BlockProcessedDataArgs.Unpack(lg.Data)
		if err != nil {
			return Event{}, false, fmt.Errorf("decode L2BlockProcessed: %w", err)
		}
		base.Kind = KindL2BlockProcessed
		base.L2BlockNumber = vals[0].(*big.Int).Uint64()
		base.PrevL2Root = vals[1].([32]byte)
		base.NewL2Root = vals[2].([32]byte)
		base.RLPEncodedTx = vals[3].([]byte)
		base.OutgoingCalls = unpackOutgoingCalls(vals[4])
		base.OutgoingResults = vals[5].([][]byte)
		return base, true, nil

	case sigIncomingCallHandled:
		vals, err := incomingCallHandledDataArgs.Unpack(lg.Data)
		if err != nil {
			return Event{}, false, fmt.Errorf("decode IncomingCallHandled: %w", err)
		}
		base.Kind = KindIncomingCallHandled
		base.L2Target = vals[0].(common.Address)
		base.L1Caller = vals[1].(common.Address)
		base.PrevL2Root = vals[2].([32]byte)
		base.CallData = vals[3].([]byte)
		base.Value = vals[4].(*big.Int)
		base.OutgoingCalls = unpackOutgoingCalls(vals[5])
		base.OutgoingResults = vals[6].([][]byte)
		base.FinalL2Root = vals[7].([32]byte)
		return base, true, nil

	case sigIncomingCallRegistered:
		if len(lg.Topics) < 2 {
			return Event{}, false, fmt.Errorf("IncomingCallRegistered: missing indexed topic")
		}
		base.Kind = KindIncomingCallRegistered
		base.RegisteredL2Target = common.BytesToAddress(lg.Topics[1].Bytes())
		base.RegisteredPrevL2Root = common.BytesToHash(lg.Data)
		return base, true, nil

	case sigL2SenderProxyDeployed:
		if len(lg.Topics) < 2 {
			return Event{}, false, fmt.Errorf("L2SenderProxyDeployed: missing indexed topic")
		}
		base.Kind = KindL2SenderProxyDeployed
		base.DeployedL2Address = common.BytesToAddress(lg.Topics[1].Bytes())
		base.DeployedProxyAddr = common.BytesToAddress(lg.Data)
		return base, true, nil

	default:
		return Event{}, false, nil
	}
}

func unpackOutgoingCalls(v interface{}) []OutgoingCall {
	raw, ok := v.([]outgoingCallStruct)
	if !ok {
		return nil
	}
	out := make([]OutgoingCall, len(raw))
	for i, r := range raw {
		out[i] = OutgoingCall{
			From:              r.From,
			Target:            r.Target,
			Value:             r.Value,
			Gas:               r.Gas.Uint64(),
			Data:              r.Data,
			PostCallStateHash: r.PostCallStateHash,
		}
	}
	return out
}
