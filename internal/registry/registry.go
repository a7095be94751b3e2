// Package registry bundles the known transaction manager deployments so
// common networks work without per-chain configuration.
package registry

import "github.com/ethereum/go-ethereum/common"

// Deployment is everything the SDK needs to talk to one chain's protocol
// deployment.
type Deployment struct {
	TransactionManager common.Address
	PriceOracle        common.Address
	Subgraph           string
}

var deployments = map[uint64]Deployment{
	// Ethereum mainnet
	1: {
		TransactionManager: common.HexToAddress("0x31eFc4AeAA7c39e54A33FDc3C46ee2Bd70ae0A09"),
		PriceOracle:        common.HexToAddress("0x4300aA0B7c575166eFA239Ed32b9e4fD0e1E6CbA"),
		Subgraph:           "https://api.thegraph.com/subgraphs/name/transferkit/transfers-mainnet",
	},
	// Optimism
	10: {
		TransactionManager: common.HexToAddress("0x31eFc4AeAA7c39e54A33FDc3C46ee2Bd70ae0A09"),
		PriceOracle:        common.HexToAddress("0x4fAbF6F0D9BBc0f085AC95cC5122985b7D0F6c04"),
		Subgraph:           "https://api.thegraph.com/subgraphs/name/transferkit/transfers-optimism",
	},
	// BNB chain
	56: {
		TransactionManager: common.HexToAddress("0x31eFc4AeAA7c39e54A33FDc3C46ee2Bd70ae0A09"),
		PriceOracle:        common.HexToAddress("0x7e4aDc631EADc3dE26cf6f092e32E4A0cC6f032D"),
		Subgraph:           "https://api.thegraph.com/subgraphs/name/transferkit/transfers-bsc",
	},
	// Gnosis chain
	100: {
		TransactionManager: common.HexToAddress("0x31eFc4AeAA7c39e54A33FDc3C46ee2Bd70ae0A09"),
		PriceOracle:        common.HexToAddress("0x59dA90a34266eA23573e0a94ae49b6A1F77EB8eA"),
		Subgraph:           "https://api.thegraph.com/subgraphs/name/transferkit/transfers-xdai",
	},
	// Polygon
	137: {
		TransactionManager: common.HexToAddress("0x31eFc4AeAA7c39e54A33FDc3C46ee2Bd70ae0A09"),
		PriceOracle:        common.HexToAddress("0x4eBe42D566900DC1d6e42930d527D1C94d32e9Ba"),
		Subgraph:           "https://api.thegraph.com/subgraphs/name/transferkit/transfers-matic",
	},
	// Arbitrum One
	42161: {
		TransactionManager: common.HexToAddress("0x31eFc4AeAA7c39e54A33FDc3C46ee2Bd70ae0A09"),
		PriceOracle:        common.HexToAddress("0x59dA90a34266eA23573e0a94ae49b6A1F77EB8eA"),
		Subgraph:           "https://api.thegraph.com/subgraphs/name/transferkit/transfers-arbitrum-one",
	},
}

// Lookup returns the bundled deployment for chainId.
func Lookup(chainId uint64) (Deployment, bool) {
	d, ok := deployments[chainId]
	return d, ok
}
