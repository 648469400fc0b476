package toolgate

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/ppiankov/toolgate/internal/gate"
	"github.com/ppiankov/toolgate/internal/model"
	"github.com/ppiankov/toolgate/internal/registry"
	"github.com/ppiankov/toolgate/internal/server"
)

// Client is an in-process gateway instance. Safe for concurrent use.
type Client struct {
	rt *server.Runtime
	id model.CallContext
}

// New builds a Client from the given options. The context bounds
// startup work such as opening a postgres ledger.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := clientConfig{
		user:    "sdk-agent",
		channel: "sdk",
	}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.workspace == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("toolgate: resolve workspace: %w", err)
		}
		cfg.workspace = wd
	}

	literal, err := cfg.parseConfig()
	if err != nil {
		return nil, fmt.Errorf("toolgate: %w", err)
	}

	var reg *registry.Registry
	if len(cfg.tools) > 0 {
		reg = registry.NewRegistry()
		for _, t := range cfg.tools {
			def, err := toDefinition(t)
			if err != nil {
				return nil, err
			}
			if err := reg.Register(def); err != nil {
				return nil, fmt.Errorf("toolgate: %w", err)
			}
		}
	}

	var channel gate.ConfirmationChannel
	if cfg.confirmer != nil {
		channel = gate.ChannelFunc(cfg.confirmer.Confirm)
	}

	rt, err := server.NewRuntime(ctx, server.Options{
		ConfigPath:  cfg.configPath,
		Config:      literal,
		LedgerPath:  cfg.ledgerPath,
		ApprovalDir: cfg.approvalDir,
		Channel:     channel,
		Registry:    reg,
		Logger:      cfg.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("toolgate: %w", err)
	}

	return &Client{
		rt: rt,
		id: model.CallContext{
			User:      cfg.user,
			Channel:   cfg.channel,
			Workspace: cfg.workspace,
		},
	}, nil
}

// Execute runs one tool call through the full pipeline.
func (c *Client) Execute(ctx context.Context, tool string, args map[string]any) Result {
	call := model.ToolCall{ID: uuid.NewString(), Name: tool, Arguments: args}
	return toResult(c.rt.Execute(ctx, call, c.id))
}

// Check dry-runs the decision for a call. Nothing executes and nothing
// is written to the ledger.
func (c *Client) Check(ctx context.Context, tool string, args map[string]any) Report {
	call := model.ToolCall{ID: uuid.NewString(), Name: tool, Arguments: args}
	return toReport(c.rt.Check(ctx, call, c.id))
}

// PolicyHash identifies the config text currently in force.
func (c *Client) PolicyHash() string {
	return c.rt.PolicyHash()
}

// Close releases the ledger and flushes the logger.
func (c *Client) Close() error {
	return c.rt.Close()
}
