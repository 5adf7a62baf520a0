package l1chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// RollupABI describes the three submission endpoints the Builder calls
// on the L1 rollup contract (§6): processTx, registerIncomingCall,
// deployL2SenderProxy. Hand-maintained here the same way
// l2chain/bindings keeps its ABI literals, since there is no Solidity
// source in this repo to generate bindings from.
const rollupABIJSON = `[
  {"type":"function","name":"processTx","inputs":[
    {"name":"prevL2Root","type":"bytes32"},
    {"name":"rlpEncodedTx","type":"bytes"},
    {"name":"outgoingCalls","type":"tuple[]","components":[
      {"name":"from","type":"address"},
      {"name":"target","type":"address"},
      {"name":"value","type":"uint256"},
      {"name":"gas","type":"uint256"},
      {"name":"data","type":"bytes"},
      {"name":"postCallStateHash","type":"bytes32"}
    ]},
    {"name":"outgoingCallResults","type":"bytes[]"},
    {"name":"proof","type":"bytes"}
  ],"outputs":[],"stateMutability":"nonpayable"},
  {"type":"function","name":"registerIncomingCall","inputs":[
    {"name":"l2Target","type":"address"},
    {"name":"prevL2Root","type":"bytes32"},
    {"name":"callData","type":"bytes"},
    {"name":"value","type":"uint256"},
    {"name":"response","type":"bytes"},
    {"name":"finalL2Root","type":"bytes32"},
    {"name":"proof","type":"bytes"}
  ],"outputs":[],"stateMutability":"nonpayable"},
  {"type":"function","name":"deployL2SenderProxy","inputs":[
    {"name":"l2Address","type":"address"}
  ],"outputs":[],"stateMutability":"nonpayable"},
  {"type":"function","name":"l2BlockHash","inputs":[],"outputs":[{"name":"","type":"bytes32"}],"stateMutability":"view"}
]`

var RollupABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(rollupABIJSON))
	if err != nil {
		panic("l1chain: invalid rollup ABI literal: " + err.Error())
	}
	RollupABI = parsed
}

// L2BlockHashAt reads the rollup contract's recorded l2BlockHash as of
// blockNumber (nil for latest), used at startup to verify the
// fullnode's derived genesis root against what L1 recorded at its
// deployment block (§4.1 step 5, "MisconfiguredGenesis").
func L2BlockHashAt(ctx context.Context, client Client, rollupContract common.Address, blockNumber *big.Int) (common.Hash, error) {
	data, err := RollupABI.Pack("l2BlockHash")
	if err != nil {
		return common.Hash{}, fmt.Errorf("l1chain: pack l2BlockHash: %w", err)
	}
	out, err := client.CallContract(ctx, CallMsg{To: &rollupContract, Data: data}, blockNumber)
	if err != nil {
		return common.Hash{}, fmt.Errorf("l1chain: call l2BlockHash: %w", err)
	}
	vals, err := RollupABI.Unpack("l2BlockHash", out)
	if err != nil {
		return common.Hash{}, fmt.Errorf("l1chain: unpack l2BlockHash: %w", err)
	}
	return common.BytesToHash(vals[0].([32]byte)[:]), nil
}
