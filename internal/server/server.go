package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/toolgate/internal/alert"
	"github.com/ppiankov/toolgate/internal/approval"
	"github.com/ppiankov/toolgate/internal/audit"
	"github.com/ppiankov/toolgate/internal/config"
	"github.com/ppiankov/toolgate/internal/cooldown"
	"github.com/ppiankov/toolgate/internal/escalate"
	"github.com/ppiankov/toolgate/internal/executor"
	"github.com/ppiankov/toolgate/internal/gate"
	"github.com/ppiankov/toolgate/internal/model"
	"github.com/ppiankov/toolgate/internal/policy"
	"github.com/ppiankov/toolgate/internal/registry"
)

// Options configures a Runtime. Zero values pull the defaults the CLI
// uses: config from ConfigPath, builtin tools, the approval-store
// confirmation channel.
type Options struct {
	ConfigPath  string
	Config      *config.Config // skips ConfigPath entirely when set
	LedgerPath  string         // overrides the config's sqlite path
	ApprovalDir string
	Channel     gate.ConfirmationChannel
	Registry    *registry.Registry
	Logger      *zap.Logger
}

// Runtime is the composition root: it owns the ledger, the policy
// engine, the gate and the executor, and swaps the config-derived parts
// atomically on reload. Every entry point (serve, run, check, certify,
// the SDK) goes through one of these.
type Runtime struct {
	mu         sync.RWMutex
	cfg        *config.Config
	engine     *policy.Engine
	policyHash string
	exec       *executor.Executor

	cfgPath    string
	store      audit.Store
	queries    *audit.Queries
	approvals  *approval.Store
	registry   *registry.Registry
	cooldown   *cooldown.Tracker
	channel    gate.ConfirmationChannel
	escalation *escalate.Builder
	logger     *zap.Logger
}

// NewRuntime wires the full pipeline from configuration.
func NewRuntime(ctx context.Context, opts Options) (*Runtime, error) {
	cfg := opts.Config
	var hash string
	if cfg == nil {
		var err error
		cfg, hash, err = config.LoadWithHash(opts.ConfigPath)
		if err != nil {
			return nil, err
		}
	} else {
		var err error
		hash, err = config.HashOf(cfg)
		if err != nil {
			return nil, err
		}
	}

	logger := opts.Logger
	if logger == nil {
		var err error
		logger, err = NewLogger(cfg.Logging.Level)
		if err != nil {
			return nil, fmt.Errorf("build logger: %w", err)
		}
	}

	store, err := openStore(ctx, cfg, opts.LedgerPath)
	if err != nil {
		return nil, err
	}

	approvalDir := opts.ApprovalDir
	if approvalDir == "" {
		approvalDir = approval.DefaultDir()
	}
	approvals, err := approval.NewStore(approvalDir)
	if err != nil {
		store.Close()
		return nil, err
	}

	reg := opts.Registry
	if reg == nil {
		reg = registry.NewRegistry()
		if err := registry.RegisterBuiltins(reg); err != nil {
			store.Close()
			return nil, err
		}
	}

	channel := opts.Channel
	if channel == nil {
		channel = approval.NewPollChannel(approvals, time.Second)
	}

	rt := &Runtime{
		cfg:        cfg,
		policyHash: hash,
		cfgPath:    opts.ConfigPath,
		store:      store,
		queries:    audit.NewQueries(store),
		approvals:  approvals,
		registry:   reg,
		cooldown:   cooldown.NewTracker(),
		channel:    channel,
		logger:     logger,
	}
	rt.engine = policy.NewEngine(cfg)
	rt.escalation = escalate.NewBuilder(rt.queries, rt.Thresholds, logger)
	rt.rebuildLocked()

	logger.Info("toolgate runtime ready",
		zap.String("policy_hash", hash),
		zap.Int("rules", len(cfg.Policies)),
		zap.String("ledger", cfg.Ledger.Driver),
		zap.Bool("gate", cfg.Gate.IsEnabled()))
	return rt, nil
}

func openStore(ctx context.Context, cfg *config.Config, override string) (audit.Store, error) {
	switch cfg.Ledger.Driver {
	case "", "sqlite":
		path := override
		if path == "" {
			var err error
			path, err = cfg.LedgerPath()
			if err != nil {
				return nil, err
			}
		}
		return audit.NewSQLite(path)
	case "postgres":
		return audit.NewPostgres(ctx, cfg.Ledger.DSN)
	default:
		return nil, fmt.Errorf("unknown ledger driver %q", cfg.Ledger.Driver)
	}
}

// rebuildLocked reassembles the config-derived components. Callers hold
// the write lock (or are inside NewRuntime, before the Runtime leaks).
func (rt *Runtime) rebuildLocked() {
	g := gate.NewGate(
		rt.cfg.Gate.IsEnabled(),
		rt.cfg.Gate.ConfirmationTimeout(),
		rt.channel,
		rt.approvals,
		rt.logger,
	)
	rt.exec = executor.New(executor.Deps{
		Policies:   rt,
		Registry:   rt.registry,
		Store:      rt.store,
		Escalation: rt.escalation,
		Gate:       g,
		Cooldown:   rt.cooldown,
		PolicyHash: rt.PolicyHash,
		Alerts:     alert.NewDispatcher(rt.cfg.Alerts),
		Logger:     rt.logger,
	})
}

// Reload re-reads the config file and swaps the policy-derived parts.
// Calls in flight keep the executor they started with; the ledger and
// cooldown history carry over.
func (rt *Runtime) Reload() error {
	if rt.cfgPath == "" {
		return errors.New("runtime has no config path to reload from")
	}

	cfg, hash, err := config.LoadWithHash(rt.cfgPath)
	if err != nil {
		return err
	}

	rt.mu.Lock()
	rt.cfg = cfg
	rt.policyHash = hash
	rt.engine = policy.NewEngine(cfg)
	rt.rebuildLocked()
	rt.mu.Unlock()

	rt.logger.Info("policy reloaded",
		zap.String("policy_hash", hash),
		zap.Int("rules", len(cfg.Policies)))
	return nil
}

// Resolve implements executor.PolicySource over the live engine.
func (rt *Runtime) Resolve(tool string) model.Policy {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.engine.Resolve(tool)
}

// Thresholds implements executor.PolicySource over the live engine.
func (rt *Runtime) Thresholds() model.Thresholds {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.engine.Thresholds()
}

// PolicyHash returns the hash of the policy text currently in force.
func (rt *Runtime) PolicyHash() string {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.policyHash
}

// Executor returns the live pipeline.
func (rt *Runtime) Executor() *executor.Executor {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.exec
}

// Execute runs one call through the live pipeline.
func (rt *Runtime) Execute(ctx context.Context, call model.ToolCall, cctx model.CallContext) model.ToolResult {
	return rt.Executor().Execute(ctx, call, cctx)
}

// ExecuteBatch runs calls strictly in order.
func (rt *Runtime) ExecuteBatch(ctx context.Context, calls []model.ToolCall, cctx model.CallContext) []model.ToolResult {
	return rt.Executor().ExecuteBatch(ctx, calls, cctx)
}

// CheckReport is the dry-run view of one call: what the pipeline would
// decide, without asking the gate, writing the ledger, or running the
// tool.
type CheckReport struct {
	Tool        string              `json:"tool"`
	Known       bool                `json:"known"`
	Level       model.SecurityLevel `json:"security_level,omitempty"`
	GateApplies bool                `json:"gate_applies"`
	Decision    model.Decision      `json:"decision"`
}

// Check dry-runs the decision for a call.
func (rt *Runtime) Check(ctx context.Context, call model.ToolCall, cctx model.CallContext) CheckReport {
	rep := CheckReport{Tool: call.Name}

	def, known := rt.registry.Get(call.Name)
	rep.Known = known
	if known {
		rep.Level = def.Security.Level
	}

	rt.mu.RLock()
	eng := rt.engine
	gateOn := rt.cfg.Gate.IsEnabled()
	rt.mu.RUnlock()

	ec := rt.escalation.Build(ctx, cctx.User, call.Arguments)
	rep.Decision = policy.Decide(eng.Resolve(call.Name), ec)
	if known {
		rep.GateApplies = gateOn && (def.Security.Level.AboveRead() || def.Security.ConfirmRequired)
	}
	return rep
}

// Config returns the configuration currently in force.
func (rt *Runtime) Config() *config.Config {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.cfg
}

// Store exposes the ledger for the audit subcommands.
func (rt *Runtime) Store() audit.Store {
	return rt.store
}

// Queries exposes the ledger read path.
func (rt *Runtime) Queries() *audit.Queries {
	return rt.queries
}

// Approvals exposes the approval store for approve/deny/pending.
func (rt *Runtime) Approvals() *approval.Store {
	return rt.approvals
}

// Registry exposes the tool registry.
func (rt *Runtime) Registry() *registry.Registry {
	return rt.registry
}

// Logger exposes the process logger.
func (rt *Runtime) Logger() *zap.Logger {
	return rt.logger
}

// Close flushes the logger and closes the ledger.
func (rt *Runtime) Close() error {
	_ = rt.logger.Sync()
	return rt.store.Close()
}
