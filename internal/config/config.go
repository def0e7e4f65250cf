package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/devblac/batchtrace/internal/blockrange"
	"github.com/devblac/batchtrace/internal/cache"
	"github.com/devblac/batchtrace/internal/dataaccess"
	"github.com/devblac/batchtrace/internal/events"
	"github.com/devblac/batchtrace/internal/retry"
	"github.com/devblac/batchtrace/internal/sink"
)

const DefaultDBPath = "batchtrace.db"

// Config holds the YAML configuration.
type Config struct {
	Version int                 `yaml:"version"`
	Global  GlobalConfig        `yaml:"global"`
	Ledger  LedgerConfig        `yaml:"ledger"`
	Retry   RetryConfig         `yaml:"retry"`
	Sync    SyncConfig          `yaml:"sync"`
	Cache   dataaccess.Policies `yaml:"cache"`
	Events  EventsConfig        `yaml:"events"`
	// Sinks receive live events during watch. Optional.
	Sinks []Sink `yaml:"sinks"`
}

type GlobalConfig struct {
	DBPath string `yaml:"db_path"`
}

type LedgerConfig struct {
	RPCURL   string `yaml:"rpc_url"`
	Contract string `yaml:"contract"`
	// ABIPath overrides the embedded batch tracker ABI.
	ABIPath   string          `yaml:"abi_path"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig caps calls to metered providers. RPS 0 disables it.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type RetryConfig struct {
	// MaxRetries is a pointer so that an explicit 0 disables retries.
	MaxRetries     *int          `yaml:"max_retries"`
	BaseDelay      time.Duration `yaml:"base_delay"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
}

type SyncConfig struct {
	ChunkSize uint64 `yaml:"chunk_size"`
}

type EventsConfig struct {
	HistorySize int `yaml:"history_size"`
	QueueSize   int `yaml:"queue_size"`
}

type Sink struct {
	ID         string `yaml:"id"`
	Type       string `yaml:"type"`
	WebhookURL string `yaml:"webhook_url"`
	Template   string `yaml:"template"`
	URL        string `yaml:"url"`
	Method     string `yaml:"method"`
	// Match expressions narrow which events are sent, e.g. "kind == completed".
	Match []string `yaml:"match"`
}

// Endpoint returns the URL the sink posts to.
func (s Sink) Endpoint() string {
	if strings.EqualFold(s.Type, "webhook") {
		return s.URL
	}
	return s.WebhookURL
}

var envPattern = regexp.MustCompile(`\${([A-Za-z_][A-Za-z0-9_]*)}`)

// Load reads, interpolates env vars, parses YAML, and validates.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}

	if err := loadDotEnv(path); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	interpolated, err := interpolateEnv(string(raw))
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func loadDotEnv(configPath string) error {
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return fmt.Errorf("load .env: %w", err)
		}
	}
	return nil
}

// interpolateEnv expands ${VAR} references. Comment lines are left as is, so
// commented-out samples do not require their variables.
func interpolateEnv(input string) (string, error) {
	missing := []string{}
	lines := strings.Split(input, "\n")
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		lines[i] = envPattern.ReplaceAllStringFunc(line, func(match string) string {
			name := envPattern.FindStringSubmatch(match)[1]
			if val, ok := os.LookupEnv(name); ok {
				return val
			}
			missing = append(missing, name)
			return match
		})
	}
	out := strings.Join(lines, "\n")

	if len(missing) > 0 {
		return "", fmt.Errorf("missing environment variables: %s", strings.Join(dedup(missing), ", "))
	}
	return out, nil
}

// Validate performs small, direct schema checks and fills in defaults.
func (c *Config) Validate() error {
	if c.Version == 0 {
		return errors.New("version is required")
	}
	if c.Global.DBPath == "" {
		c.Global.DBPath = DefaultDBPath
	}
	if err := c.Ledger.Validate(); err != nil {
		return fmt.Errorf("ledger: %w", err)
	}
	if err := c.Retry.Validate(); err != nil {
		return fmt.Errorf("retry: %w", err)
	}
	if c.Sync.ChunkSize == 0 {
		c.Sync.ChunkSize = blockrange.DefaultChunkSize
	}

	defaults := dataaccess.DefaultPolicies()
	for _, p := range []struct {
		name string
		got  *cache.Policy
		def  cache.Policy
	}{
		{"entity", &c.Cache.Entity, defaults.Entity},
		{"live_event", &c.Cache.LiveEvent, defaults.LiveEvent},
		{"aggregate", &c.Cache.Aggregate, defaults.Aggregate},
	} {
		if p.got.TTL < 0 || p.got.MaxSize < 0 {
			return fmt.Errorf("cache %s: ttl and max_size must not be negative", p.name)
		}
		if p.got.TTL == 0 {
			p.got.TTL = p.def.TTL
		}
		if p.got.MaxSize == 0 {
			p.got.MaxSize = p.def.MaxSize
		}
	}

	if c.Events.HistorySize < 0 || c.Events.QueueSize < 0 {
		return errors.New("events: history_size and queue_size must not be negative")
	}
	if c.Events.HistorySize == 0 {
		c.Events.HistorySize = events.DefaultHistorySize
	}
	if c.Events.QueueSize == 0 {
		c.Events.QueueSize = events.DefaultQueueSize
	}

	sinkIDs := map[string]struct{}{}
	for i := range c.Sinks {
		s := &c.Sinks[i]
		if _, exists := sinkIDs[s.ID]; exists {
			return fmt.Errorf("duplicate sink id: %s", s.ID)
		}
		sinkIDs[s.ID] = struct{}{}
		if err := s.Validate(); err != nil {
			return fmt.Errorf("sink %s: %w", s.ID, err)
		}
	}
	return nil
}

func (l *LedgerConfig) Validate() error {
	if l.RPCURL == "" {
		return errors.New("rpc_url is required")
	}
	if l.Contract == "" {
		return errors.New("contract is required")
	}
	if !common.IsHexAddress(l.Contract) {
		return fmt.Errorf("invalid contract address: %s", l.Contract)
	}
	if l.RateLimit.RPS < 0 || l.RateLimit.Burst < 0 {
		return errors.New("rate_limit values must not be negative")
	}
	return nil
}

// ContractAddress returns the parsed contract address.
func (l LedgerConfig) ContractAddress() common.Address {
	return common.HexToAddress(l.Contract)
}

func (r *RetryConfig) Validate() error {
	if r.MaxRetries == nil {
		n := retry.DefaultMaxRetries
		r.MaxRetries = &n
	}
	if *r.MaxRetries < 0 {
		return errors.New("max_retries must not be negative")
	}
	if r.BaseDelay < 0 || r.AttemptTimeout < 0 {
		return errors.New("delays must not be negative")
	}
	if r.BaseDelay == 0 {
		r.BaseDelay = retry.DefaultBaseDelay
	}
	return nil
}

// Policy converts the validated config into a retry policy.
func (r RetryConfig) Policy() retry.Policy {
	p := retry.DefaultPolicy()
	if r.MaxRetries != nil {
		p.MaxRetries = *r.MaxRetries
	}
	if r.BaseDelay > 0 {
		p.BaseDelay = r.BaseDelay
	}
	p.AttemptTimeout = r.AttemptTimeout
	return p
}

func (s *Sink) Validate() error {
	if s.ID == "" {
		return errors.New("id is required")
	}
	if s.Type == "" {
		return errors.New("type is required")
	}

	switch strings.ToLower(s.Type) {
	case "slack", "teams":
		if s.WebhookURL == "" {
			return errors.New("webhook_url is required for slack/teams sinks")
		}
	case "webhook":
		if s.URL == "" {
			return errors.New("url is required for webhook sink")
		}
		if s.Method == "" {
			s.Method = "POST"
		}
	default:
		return fmt.Errorf("unsupported sink type: %s", s.Type)
	}
	if _, err := sink.CompileFilter(s.Match); err != nil {
		return fmt.Errorf("match: %w", err)
	}
	return nil
}

func dedup(values []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
