package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/toolgate/internal/alert"
	"github.com/ppiankov/toolgate/internal/model"
)

const (
	defaultConfirmationTimeoutMs = 120000
	defaultLogLevel              = "info"
)

// PolicyRule is one per-tool policy entry, evaluated in order (first match wins).
type PolicyRule struct {
	Tool          string        `yaml:"tool"`
	Action        string        `yaml:"action,omitempty"`
	Tier          string        `yaml:"tier,omitempty"`
	EffectiveTier string        `yaml:"effective_tier,omitempty"`
	Cooldown      *CooldownRule `yaml:"cooldown,omitempty"`
	AllowedUsers  UsersValue    `yaml:"allowed_users,omitempty"`
}

// CooldownRule bounds how often a matched tool may run.
type CooldownRule struct {
	WindowMs int `yaml:"window_ms"`
	MaxCount int `yaml:"max_count"`
}

// Model converts the YAML form to the resolved rule.
func (c *CooldownRule) Model() model.CooldownRule {
	if c == nil {
		return model.CooldownRule{}
	}
	return model.CooldownRule{
		Window:   time.Duration(c.WindowMs) * time.Millisecond,
		MaxCount: c.MaxCount,
	}
}

// UsersValue accepts either a YAML list of user IDs or the sentinel
// string "assignee-only". Absent means unrestricted.
type UsersValue struct {
	AssigneeOnly bool
	Users        []string
}

// UnmarshalYAML implements yaml.Unmarshaler for the two accepted shapes.
func (v *UsersValue) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		if s != string(model.UsersAssigneeOnly) {
			return fmt.Errorf("allowed_users: unknown sentinel %q (want a list or \"assignee-only\")", s)
		}
		v.AssigneeOnly = true
		return nil
	case yaml.SequenceNode:
		return node.Decode(&v.Users)
	default:
		return fmt.Errorf("allowed_users: expected a list or \"assignee-only\"")
	}
}

// Model converts the YAML form to the tagged variant.
func (v UsersValue) Model() model.AllowedUsers {
	if v.AssigneeOnly {
		return model.AssigneeOnly()
	}
	if len(v.Users) > 0 {
		return model.UserList(v.Users...)
	}
	return model.AnyUsers()
}

// Thresholds holds the global spend and denial ceilings.
type Thresholds struct {
	PerTierUSD               map[string]float64 `yaml:"per_tier_usd"`
	DailyUSD                 float64            `yaml:"daily_usd"`
	ConsecutiveDenialCeiling int                `yaml:"consecutive_denial_ceiling"`
}

// Model converts threshold tier names to tiers. Unknown names fail closed
// to critical via ParseTier.
func (t Thresholds) Model() model.Thresholds {
	per := make(map[model.Tier]float64, len(t.PerTierUSD))
	for name, ceiling := range t.PerTierUSD {
		per[model.ParseTier(name)] = ceiling
	}
	return model.Thresholds{
		PerTierUSD:               per,
		DailyUSD:                 t.DailyUSD,
		ConsecutiveDenialCeiling: t.ConsecutiveDenialCeiling,
	}
}

// Gate configures the human write gate.
type Gate struct {
	Enabled               *bool `yaml:"enabled,omitempty"`
	ConfirmationTimeoutMs int   `yaml:"confirmation_timeout_ms,omitempty"`
}

// IsEnabled reports whether the gate runs. Absent means enabled.
func (g Gate) IsEnabled() bool {
	return g.Enabled == nil || *g.Enabled
}

// ConfirmationTimeout returns the bounded wait for a yes/no answer.
func (g Gate) ConfirmationTimeout() time.Duration {
	ms := g.ConfirmationTimeoutMs
	if ms <= 0 {
		ms = defaultConfirmationTimeoutMs
	}
	return time.Duration(ms) * time.Millisecond
}

// Ledger selects and locates the audit ledger backend.
type Ledger struct {
	Driver string `yaml:"driver"` // "sqlite" or "postgres"
	Path   string `yaml:"path"`   // sqlite database file
	DSN    string `yaml:"dsn"`    // postgres connection string
}

// Logging configures the structured logger.
type Logging struct {
	Level string `yaml:"level"`
}

// Config holds all configurable toolgate parameters.
type Config struct {
	Policies   []PolicyRule        `yaml:"policies"`
	Thresholds Thresholds          `yaml:"thresholds"`
	Gate       Gate                `yaml:"gate"`
	Ledger     Ledger              `yaml:"ledger"`
	Alerts     []alert.AlertConfig `yaml:"alerts"`
	Logging    Logging             `yaml:"logging"`
}

// Default returns the built-in configuration: no policy rules (every tool
// resolves to the least-restrictive default), a 500 USD daily ceiling,
// three consecutive denials, gate enabled, sqlite ledger.
func Default() *Config {
	return &Config{
		Thresholds: Thresholds{
			PerTierUSD: map[string]float64{
				"low":      20,
				"guarded":  250,
				"critical": 1000,
			},
			DailyUSD:                 500,
			ConsecutiveDenialCeiling: 3,
		},
		Ledger: Ledger{
			Driver: "sqlite",
		},
		Logging: Logging{
			Level: defaultLogLevel,
		},
	}
}

// DefaultDir returns ~/.toolgate, the directory for config, ledger and
// approvals.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".toolgate"), nil
}

// DefaultPath returns the default config file location.
func DefaultPath() (string, error) {
	dir, err := DefaultDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "toolgate.yaml"), nil
}

// LedgerPath resolves the sqlite database file, defaulting to
// ~/.toolgate/ledger.db when unset.
func (c *Config) LedgerPath() (string, error) {
	if c.Ledger.Path != "" {
		return c.Ledger.Path, nil
	}
	dir, err := DefaultDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "ledger.db"), nil
}

// Load reads configuration from a YAML file.
// Empty path falls back to ~/.toolgate/toolgate.yaml.
// Missing file returns defaults. Invalid YAML returns an error.
func Load(path string) (*Config, error) {
	cfg, _, err := LoadWithHash(path)
	return cfg, err
}

// LoadWithHash loads configuration and returns its SHA-256 hash.
// The hash is computed over the raw YAML bytes on disk and is stamped into
// every audit entry so an entry can be tied to the policy text that
// produced it. When no file exists (defaults used), the hash is the
// SHA-256 of empty input.
func LoadWithHash(path string) (*Config, string, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return Default(), emptyHash(), nil
		}
		path = p
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), emptyHash(), nil
		}
		return nil, "", fmt.Errorf("failed to read config: %w", err)
	}

	return Parse(data)
}

// Parse builds a Config from literal YAML bytes the same way Load treats
// a file: defaults first, YAML overlay, validation. The hash covers the
// raw bytes.
func Parse(data []byte) (*Config, string, error) {
	h := sha256.Sum256(data)
	hash := "sha256:" + hex.EncodeToString(h[:])

	// Start with defaults, YAML overwrites only specified fields
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, "", err
	}

	return cfg, hash, nil
}

func (c *Config) validate() error {
	switch c.Ledger.Driver {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("ledger.driver: unknown driver %q (want sqlite or postgres)", c.Ledger.Driver)
	}
	if c.Ledger.Driver == "postgres" && c.Ledger.DSN == "" {
		return fmt.Errorf("ledger.driver postgres requires ledger.dsn")
	}
	for i, p := range c.Policies {
		if p.Tool == "" {
			return fmt.Errorf("policies[%d]: tool pattern must not be empty", i)
		}
	}
	return nil
}

func emptyHash() string {
	h := sha256.Sum256(nil)
	return "sha256:" + hex.EncodeToString(h[:])
}

// HashOf hashes an in-memory config the way LoadWithHash hashes a file,
// over its canonical YAML serialization. Used when a config never
// touches disk, so those entries still carry a policy hash.
func HashOf(c *Config) (string, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to serialize config: %w", err)
	}
	h := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(h[:]), nil
}

// DefaultYAML returns a commented YAML string for toolgate init.
func DefaultYAML() string {
	return `# toolgate configuration
# Generated by: toolgate init
#
# Pipeline for every tool call (order is fixed):
#   1. Write gate (security level above "read", unless gate.enabled: false)
#   2. Escalation context (daily spend, consecutive denials)
#   3. Policy decision (rules below, first match wins)
#   4. allowed_users check, cooldown check
#   5. Audit pre-log -> execute -> finalize

# Per-tool policy rules evaluated in order. First match wins.
# Tools matching no rule get the least-restrictive default:
# tier none, no cooldown, unrestricted users. Anything sensitive
# must be enumerated here.
#
# Fields:
#   tool: glob pattern (*transfer* = contains, wallet_* = prefix, exact otherwise)
#   tier: none | low | guarded | critical (spend scrutiny; unknown = critical)
#   effective_tier: optional override of which per_tier_usd row applies
#   action: deny | confirm | escalate (optional forced decision for matches)
#   cooldown: {window_ms, max_count} sliding window per tool
#   allowed_users: list of user IDs, or "assignee-only" (denies all writes)
policies:
  - tool: "wallet_*"
    tier: critical
    cooldown:
      window_ms: 60000
      max_count: 1
  - tool: "note_*"
    tier: low

# Spend and denial ceilings. A call escalates (and is denied, with the
# reason recorded) when its amount_usd reaches the per-tier ceiling or
# would push the day's successful spend past daily_usd. Days roll over
# at 00:00 UTC. Tiers without a row have no per-call ceiling.
thresholds:
  per_tier_usd:
    low: 20
    guarded: 250
    critical: 1000
  daily_usd: 500
  consecutive_denial_ceiling: 3

# Human confirmation for calls above "read". Disabling skips the gate
# and auto-approves tool-internal confirmation callbacks.
gate:
  enabled: true
  confirmation_timeout_ms: 120000

# Audit ledger backend. sqlite (default) keeps a single-file database;
# postgres takes a DSN for fleet deployments.
ledger:
  driver: sqlite
  # path: /var/lib/toolgate/ledger.db
  # dsn: postgres://toolgate:secret@db:5432/toolgate

# Optional webhooks fired on finalized results.
# events: denied | escalated | error
# alerts:
#   - url: https://hooks.slack.com/services/...
#     format: slack
#     events: [denied, escalated]

logging:
  level: info
`
}
