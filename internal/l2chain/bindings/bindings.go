// Package bindings provides abigen-shaped Go bindings for the two
// genesis contracts deployed by System Address S (§3): the Call
// Registry R and the Proxy Factory F. The contracts themselves are an
// external-EVM concern (spec §1 treats the standalone L2 EVM as an
// out-of-scope collaborator); this package only knows their ABI and
// deployed-bytecode artifact, exactly the way op-bindings' generated
// `bindings.OptimismPortal` (used directly in op-e2e/derivation/user.go)
// only knows the portal's ABI and bytecode, never its Solidity source.
package bindings

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// registryABIJSON and factoryABIJSON describe the two genesis
// contracts' external interface (§3 "Call Registry R" operations /
// "Proxy Factory F"). Hand-maintained here rather than abigen-produced
// since there is no Solidity source in this repo to generate from.
const registryABIJSON = `[
  {"type":"constructor","inputs":[{"name":"owner","type":"address"}]},
  {"type":"function","name":"register","inputs":[{"name":"key","type":"bytes32"},{"name":"value","type":"bytes"}],"outputs":[],"stateMutability":"nonpayable"},
  {"type":"function","name":"consume","inputs":[{"name":"key","type":"bytes32"}],"outputs":[{"name":"found","type":"bool"},{"name":"value","type":"bytes"}],"stateMutability":"nonpayable"},
  {"type":"function","name":"clear","inputs":[{"name":"keys","type":"bytes32[]"}],"outputs":[],"stateMutability":"nonpayable"},
  {"type":"function","name":"pending","inputs":[{"name":"key","type":"bytes32"}],"outputs":[{"name":"count","type":"uint256"}],"stateMutability":"view"}
]`

const factoryABIJSON = `[
  {"type":"constructor","inputs":[{"name":"owner","type":"address"},{"name":"registry","type":"address"}]},
  {"type":"function","name":"deploy","inputs":[{"name":"l1Address","type":"address"}],"outputs":[{"name":"proxy","type":"address"}],"stateMutability":"nonpayable"},
  {"type":"function","name":"proxyFor","inputs":[{"name":"l1Address","type":"address"}],"outputs":[{"name":"proxy","type":"address"}],"stateMutability":"view"}
]`

// proxyABIJSON describes the L1→L2 proxy fallback surface used by
// discovery (§4.3.1) to recognize and interpret an "outgoing" call a
// traced L2 contract made against one of these proxies.
const proxyABIJSON = `[
  {"type":"function","name":"dispatchOutgoing","inputs":[{"name":"l1Target","type":"address"},{"name":"callData","type":"bytes"}],"outputs":[{"name":"result","type":"bytes"}],"stateMutability":"nonpayable"}
]`

var (
	RegistryABI abi.ABI
	FactoryABI  abi.ABI
	ProxyABI    abi.ABI
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic("bindings: invalid ABI literal: " + err.Error())
	}
	return parsed
}

func init() {
	RegistryABI = mustParseABI(registryABIJSON)
	FactoryABI = mustParseABI(factoryABIJSON)
	ProxyABI = mustParseABI(proxyABIJSON)
}

// RegistryDeployedBytecode and FactoryDeployedBytecode stand in for
// abigen's compiled-artifact constants (op-bindings generates these
// from `solc` output; see `bindings.GetDeployedBytecode(name)` used by
// the deployer in the example pack). Without a Solidity toolchain in
// this repo, these are fixed placeholder blobs: genesis construction
// only needs *some* deterministic bytecode to install at R's and F's
// addresses (the proxies' CREATE2 initCodeHash uses separate marker
// bytes in internal/rollup, not these blobs); the contracts' actual bytecode is produced and
// verified by whatever deploys the real external L2 EVM image, outside
// this repo's scope.
var (
	RegistryDeployedBytecode = hexutil.MustDecode("0x600b80600b6000396000f3fe5f80fd00")
	FactoryDeployedBytecode  = hexutil.MustDecode("0x600b80600b6000396000f3fe5f80fd01")
)
