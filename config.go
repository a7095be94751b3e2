package transferkit

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"transferkit/internal/registry"
	"transferkit/types"
)

// Network selectors. The selector picks the default NATS cluster and auth
// service; explicit URLs override it.
const (
	NetworkMainnet = "mainnet"
	NetworkTestnet = "testnet"
	NetworkLocal   = "local"
)

// ChainConfig configures one chain. Addresses and the subgraph endpoint fall
// back to the bundled deployment registry when empty.
type ChainConfig struct {
	ProviderURL               string `json:"providerUrl"`
	TransactionManagerAddress string `json:"transactionManagerAddress,omitempty"`
	PriceOracleAddress        string `json:"priceOracleAddress,omitempty"`
	Subgraph                  string `json:"subgraph,omitempty"`
	SubgraphSyncBuffer        uint64 `json:"subgraphSyncBuffer,omitempty"`
}

// Config is the SDK's construction-time configuration. Chains is keyed by
// decimal chain id.
type Config struct {
	Network             string                 `json:"network"`
	NatsURL             string                 `json:"natsUrl,omitempty"`
	AuthURL             string                 `json:"authUrl,omitempty"`
	Chains              map[string]ChainConfig `json:"chains"`
	SkipPolling         bool                   `json:"skipPolling,omitempty"`
	PollIntervalSeconds int                    `json:"pollIntervalSeconds,omitempty"`
	TxIdStorePath       string                 `json:"txIdStorePath,omitempty"`
	TxIdPostgresDSN     string                 `json:"txIdPostgresDsn,omitempty"`
}

// LoadConfig reads a JSON config file and applies environment overrides.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.Network = envOr("TRANSFERKIT_NETWORK", cfg.Network)
	cfg.NatsURL = envOr("TRANSFERKIT_NATS_URL", cfg.NatsURL)
	cfg.AuthURL = envOr("TRANSFERKIT_AUTH_URL", cfg.AuthURL)
	cfg.TxIdStorePath = envOr("TRANSFERKIT_TXID_STORE_PATH", cfg.TxIdStorePath)
	cfg.TxIdPostgresDSN = envOr("TRANSFERKIT_TXID_POSTGRES_DSN", cfg.TxIdPostgresDSN)
	if val, ok := os.LookupEnv("TRANSFERKIT_SKIP_POLLING"); ok && val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			cfg.SkipPolling = parsed
		}
	}

	if cfg.Network == "" {
		cfg.Network = NetworkTestnet
	}
	return &cfg, nil
}

// natsURL resolves the messaging cluster: explicit URL first, then the
// network selector's default.
func (c *Config) natsURL() string {
	if c.NatsURL != "" {
		return c.NatsURL
	}
	switch c.Network {
	case NetworkMainnet:
		return "nats://messaging.transferkit.network:4222"
	case NetworkLocal:
		return "nats://localhost:4222"
	default:
		return "nats://messaging.testnet.transferkit.network:4222"
	}
}

func (c *Config) authURL() string {
	if c.AuthURL != "" {
		return c.AuthURL
	}
	switch c.Network {
	case NetworkMainnet:
		return "https://auth.transferkit.network"
	case NetworkLocal:
		return "http://localhost:5040"
	default:
		return "https://auth.testnet.transferkit.network"
	}
}

func (c *Config) pollInterval() time.Duration {
	if c.PollIntervalSeconds <= 0 {
		return 0
	}
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// resolvedChain is a chain config with every registry fallback applied.
type resolvedChain struct {
	providerURL string
	txManager   common.Address
	priceOracle common.Address
	subgraph    string
	syncBuffer  uint64
}

// resolveChains parses chain ids and fills missing addresses from the
// bundled registry. A chain that cannot be completed fails construction.
func (c *Config) resolveChains() (map[uint64]resolvedChain, error) {
	if len(c.Chains) == 0 {
		return nil, types.NewError(types.KindInvalidParamStructure, "no chains configured")
	}

	resolved := make(map[uint64]resolvedChain, len(c.Chains))
	for key, cc := range c.Chains {
		chainId, err := strconv.ParseUint(key, 10, 64)
		if err != nil {
			return nil, types.NewError(types.KindInvalidParamStructure, "invalid chain id %q", key)
		}
		if cc.ProviderURL == "" {
			return nil, types.NewError(types.KindInvalidParamStructure, "chain %d has no provider url", chainId)
		}

		deployment, bundled := registry.Lookup(chainId)
		rc := resolvedChain{providerURL: cc.ProviderURL, syncBuffer: cc.SubgraphSyncBuffer}

		switch {
		case cc.TransactionManagerAddress != "":
			if !common.IsHexAddress(cc.TransactionManagerAddress) {
				return nil, types.NewError(types.KindInvalidParamStructure, "chain %d: bad transaction manager address", chainId)
			}
			rc.txManager = common.HexToAddress(cc.TransactionManagerAddress)
		case bundled:
			rc.txManager = deployment.TransactionManager
		default:
			return nil, types.NewError(types.KindNoTransactionManager, "no transaction manager for chain %d", chainId)
		}

		switch {
		case cc.PriceOracleAddress != "":
			if !common.IsHexAddress(cc.PriceOracleAddress) {
				return nil, types.NewError(types.KindInvalidParamStructure, "chain %d: bad price oracle address", chainId)
			}
			rc.priceOracle = common.HexToAddress(cc.PriceOracleAddress)
		case bundled:
			rc.priceOracle = deployment.PriceOracle
		default:
			return nil, types.NewError(types.KindNoPriceOracle, "no price oracle for chain %d", chainId)
		}

		switch {
		case cc.Subgraph != "":
			rc.subgraph = cc.Subgraph
		case bundled:
			rc.subgraph = deployment.Subgraph
		default:
			return nil, types.NewError(types.KindNoSubgraph, "no subgraph for chain %d", chainId)
		}

		resolved[chainId] = rc
	}
	return resolved, nil
}

func envOr(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}
