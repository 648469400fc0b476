package toolgate

import (
	"go.uber.org/zap"

	"github.com/ppiankov/toolgate/internal/config"
)

// Option configures a Client at creation time.
type Option func(*clientConfig)

type clientConfig struct {
	configPath  string
	configYAML  []byte
	ledgerPath  string
	approvalDir string
	confirmer   Confirmer
	tools       []Tool
	logger      *zap.Logger
	user        string
	channel     string
	workspace   string
}

// WithConfigPath points the client at a config YAML file. Empty falls
// back to ~/.toolgate/toolgate.yaml; a missing file means defaults.
func WithConfigPath(path string) Option {
	return func(c *clientConfig) { c.configPath = path }
}

// WithConfigYAML supplies the config as literal YAML bytes instead of a
// file. Takes precedence over WithConfigPath.
func WithConfigYAML(data []byte) Option {
	return func(c *clientConfig) { c.configYAML = data }
}

// WithLedgerPath overrides the sqlite ledger location from the config.
func WithLedgerPath(path string) Option {
	return func(c *clientConfig) { c.ledgerPath = path }
}

// WithApprovalDir overrides the approval store directory.
func WithApprovalDir(dir string) Option {
	return func(c *clientConfig) { c.approvalDir = dir }
}

// WithConfirmer routes gate questions to a custom channel. Default is
// the approval-store poller settled by `toolgate approve`.
func WithConfirmer(conf Confirmer) Option {
	return func(c *clientConfig) { c.confirmer = conf }
}

// WithTool registers a custom tool. May be given multiple times. When
// any custom tool is registered the builtin demo set is omitted.
func WithTool(t Tool) Option {
	return func(c *clientConfig) { c.tools = append(c.tools, t) }
}

// WithLogger replaces the default logger built from the config's
// logging level.
func WithLogger(l *zap.Logger) Option {
	return func(c *clientConfig) { c.logger = l }
}

// WithIdentity sets the stable actor identity and channel label stamped
// on every call from this client.
func WithIdentity(user, channel string) Option {
	return func(c *clientConfig) {
		c.user = user
		c.channel = channel
	}
}

// WithWorkspace names the workspace gate prompts refer to. Default is
// the working directory.
func WithWorkspace(dir string) Option {
	return func(c *clientConfig) { c.workspace = dir }
}

// parseConfig resolves the literal-YAML option, if set.
func (c *clientConfig) parseConfig() (*config.Config, error) {
	if c.configYAML == nil {
		return nil, nil
	}
	cfg, _, err := config.Parse(c.configYAML)
	return cfg, err
}
