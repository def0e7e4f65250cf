package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/devblac/batchtrace/internal/blockrange"
	"github.com/devblac/batchtrace/internal/cache"
	"github.com/devblac/batchtrace/internal/dataaccess"
)

const minimalYAML = `
version: 1
ledger:
  rpc_url: ${RPC_URL}
  contract: "0x00000000000000000000000000000000000b47c4"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return cfgPath
}

func TestLoadInterpolatesEnvAndValidates(t *testing.T) {
	cfgPath := writeConfig(t, minimalYAML)
	t.Setenv("RPC_URL", "wss://example-rpc")

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("expected load to succeed: %v", err)
	}

	if got := cfg.Ledger.RPCURL; got != "wss://example-rpc" {
		t.Fatalf("rpc_url not interpolated, got %q", got)
	}
	if cfg.Global.DBPath != DefaultDBPath {
		t.Fatalf("db_path default not applied: %q", cfg.Global.DBPath)
	}
	if cfg.Sync.ChunkSize != blockrange.DefaultChunkSize {
		t.Fatalf("chunk size default not applied: %d", cfg.Sync.ChunkSize)
	}
	if cfg.Cache.Entity != cache.EntityPolicy || cfg.Cache.LiveEvent != cache.LiveEventPolicy || cfg.Cache.Aggregate != cache.AggregatePolicy {
		t.Fatalf("cache defaults not applied: %+v", cfg.Cache)
	}
	p := cfg.Retry.Policy()
	if p.MaxRetries != 3 || p.BaseDelay != time.Second {
		t.Fatalf("retry defaults not applied: %+v", p)
	}
	if cfg.Events.HistorySize != 100 || cfg.Events.QueueSize != 256 {
		t.Fatalf("events defaults not applied: %+v", cfg.Events)
	}
}

func TestLoadReadsOverrides(t *testing.T) {
	cfgPath := writeConfig(t, minimalYAML+`
retry:
  max_retries: 0
  base_delay: 250ms
  attempt_timeout: 5s
sync:
  chunk_size: 500
cache:
  entity:
    ttl: 10s
  aggregate:
    max_size: 7
events:
  history_size: 20
sinks:
  - id: ops
    type: webhook
    url: http://hooks.local/batch
    match:
      - kind == completed
`)
	if err := os.WriteFile(filepath.Join(filepath.Dir(cfgPath), ".env"), []byte("RPC_URL=http://from-dotenv\n"), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("RPC_URL") })

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Ledger.RPCURL != "http://from-dotenv" {
		t.Fatalf(".env not loaded, got %q", cfg.Ledger.RPCURL)
	}
	p := cfg.Retry.Policy()
	if p.MaxRetries != 0 || p.BaseDelay != 250*time.Millisecond || p.AttemptTimeout != 5*time.Second {
		t.Fatalf("unexpected retry policy %+v", p)
	}
	if cfg.Sync.ChunkSize != 500 || cfg.Events.HistorySize != 20 {
		t.Fatalf("unexpected overrides %+v %+v", cfg.Sync, cfg.Events)
	}
	if cfg.Cache.Entity.TTL != 10*time.Second || cfg.Cache.Entity.MaxSize != cache.EntityPolicy.MaxSize {
		t.Fatalf("entity policy not merged: %+v", cfg.Cache.Entity)
	}
	if cfg.Cache.Aggregate.MaxSize != 7 || cfg.Cache.Aggregate.TTL != cache.AggregatePolicy.TTL {
		t.Fatalf("aggregate policy not merged: %+v", cfg.Cache.Aggregate)
	}
	if len(cfg.Sinks) != 1 || cfg.Sinks[0].Method != "POST" || cfg.Sinks[0].Endpoint() != "http://hooks.local/batch" {
		t.Fatalf("unexpected sinks %+v", cfg.Sinks)
	}
	if cfg.Ledger.ContractAddress() != common.HexToAddress("0xb47c4") {
		t.Fatalf("unexpected address %s", cfg.Ledger.ContractAddress().Hex())
	}
}

func TestLoadFailsOnMissingEnv(t *testing.T) {
	cfgPath := writeConfig(t, minimalYAML)
	if _, err := Load(cfgPath); err == nil || !strings.Contains(err.Error(), "RPC_URL") {
		t.Fatalf("expected missing env to fail, got %v", err)
	}
}

func TestLoadIgnoresEnvInComments(t *testing.T) {
	cfgPath := writeConfig(t, minimalYAML+`
# sinks:
#   - webhook_url: ${UNSET_SLACK_URL}
`)
	t.Setenv("RPC_URL", "wss://example-rpc")

	if _, err := Load(cfgPath); err != nil {
		t.Fatalf("commented references must not be required: %v", err)
	}
}

func cachePolicies(p cache.Policy) dataaccess.Policies {
	return dataaccess.Policies{Entity: p, LiveEvent: p, Aggregate: p}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"no_version", Config{Ledger: LedgerConfig{RPCURL: "x", Contract: "0x00000000000000000000000000000000000000aa"}}},
		{"no_rpc", Config{Version: 1, Ledger: LedgerConfig{Contract: "0x00000000000000000000000000000000000000aa"}}},
		{"bad_contract", Config{Version: 1, Ledger: LedgerConfig{RPCURL: "x", Contract: "batchtracker"}}},
		{"negative_rps", Config{Version: 1, Ledger: LedgerConfig{RPCURL: "x", Contract: "0x00000000000000000000000000000000000000aa", RateLimit: RateLimitConfig{RPS: -1}}}},
		{"duplicate_sink", Config{Version: 1, Ledger: LedgerConfig{RPCURL: "x", Contract: "0x00000000000000000000000000000000000000aa"}, Sinks: []Sink{{ID: "a", Type: "webhook", URL: "http://a"}, {ID: "a", Type: "webhook", URL: "http://b"}}}},
		{"slack_without_url", Config{Version: 1, Ledger: LedgerConfig{RPCURL: "x", Contract: "0x00000000000000000000000000000000000000aa"}, Sinks: []Sink{{ID: "a", Type: "slack"}}}},
		{"unknown_sink_type", Config{Version: 1, Ledger: LedgerConfig{RPCURL: "x", Contract: "0x00000000000000000000000000000000000000aa"}, Sinks: []Sink{{ID: "a", Type: "email", URL: "x"}}}},
		{"bad_sink_match", Config{Version: 1, Ledger: LedgerConfig{RPCURL: "x", Contract: "0x00000000000000000000000000000000000000aa"}, Sinks: []Sink{{ID: "a", Type: "webhook", URL: "x", Match: []string{"amount > 5"}}}}},
		{"negative_ttl", Config{Version: 1, Ledger: LedgerConfig{RPCURL: "x", Contract: "0x00000000000000000000000000000000000000aa"}, Cache: cachePolicies(cache.Policy{TTL: -time.Second})}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
