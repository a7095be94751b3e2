package transferkit

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"transferkit/types"
)

func TestLoadConfigEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	blob := `{
		"network": "local",
		"chains": {
			"1337": {"providerUrl": "http://localhost:8545"}
		}
	}`
	if err := os.WriteFile(path, []byte(blob), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("TRANSFERKIT_NATS_URL", "nats://override:4222")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Network != "local" {
		t.Fatalf("network: %s", cfg.Network)
	}
	if cfg.natsURL() != "nats://override:4222" {
		t.Fatalf("env override lost: %s", cfg.natsURL())
	}
}

func TestNetworkDefaults(t *testing.T) {
	cfg := &Config{Network: NetworkLocal}
	if cfg.natsURL() != "nats://localhost:4222" {
		t.Fatalf("local nats: %s", cfg.natsURL())
	}
	cfg.Network = NetworkMainnet
	if cfg.natsURL() == "nats://localhost:4222" {
		t.Fatalf("mainnet must not use the local cluster")
	}
	if cfg.authURL() == "" {
		t.Fatalf("auth url missing")
	}
}

func TestResolveChainsRegistryFallback(t *testing.T) {
	// Chain 1 is bundled; no addresses needed.
	cfg := &Config{Chains: map[string]ChainConfig{
		"1": {ProviderURL: "http://localhost:8545"},
	}}
	resolved, err := cfg.resolveChains()
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	rc := resolved[1]
	if rc.txManager == (common.Address{}) || rc.subgraph == "" {
		t.Fatalf("registry fallback not applied: %+v", rc)
	}
}

func TestResolveChainsUnknownChain(t *testing.T) {
	cfg := &Config{Chains: map[string]ChainConfig{
		"424242": {ProviderURL: "http://localhost:8545"},
	}}
	_, err := cfg.resolveChains()
	if types.KindOf(err) != types.KindNoTransactionManager {
		t.Fatalf("expected NoTransactionManager, got %v", err)
	}
}

func TestResolveChainsExplicitAddresses(t *testing.T) {
	cfg := &Config{Chains: map[string]ChainConfig{
		"424242": {
			ProviderURL:               "http://localhost:8545",
			TransactionManagerAddress: testManager.Hex(),
			PriceOracleAddress:        testAsset.Hex(),
			Subgraph:                  "http://localhost:8000/subgraphs/tm",
		},
	}}
	resolved, err := cfg.resolveChains()
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved[424242].txManager != testManager {
		t.Fatalf("explicit address lost")
	}
}

func TestResolveChainsMissingSubgraph(t *testing.T) {
	cfg := &Config{Chains: map[string]ChainConfig{
		"424242": {
			ProviderURL:               "http://localhost:8545",
			TransactionManagerAddress: testManager.Hex(),
			PriceOracleAddress:        testAsset.Hex(),
		},
	}}
	_, err := cfg.resolveChains()
	if types.KindOf(err) != types.KindNoSubgraph {
		t.Fatalf("expected NoSubgraph, got %v", err)
	}
}
