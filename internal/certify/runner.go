package certify

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

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

// CaseResult holds the outcome of one certification case.
type CaseResult struct {
	Index    int      `json:"index"`
	Name     string   `json:"name"`
	Tool     string   `json:"tool"`
	Passed   bool     `json:"passed"`
	Failures []string `json:"failures,omitempty"`
}

// CategoryResult holds pass/fail results for one category.
type CategoryResult struct {
	Name   string       `json:"name"`
	Total  int          `json:"total"`
	Passed int          `json:"passed"`
	Failed int          `json:"failed"`
	Cases  []CaseResult `json:"cases"`
}

// Result holds the full certification outcome.
type Result struct {
	Suite      string           `json:"suite"`
	Version    string           `json:"version"`
	Total      int              `json:"total"`
	Passed     int              `json:"passed"`
	Failed     int              `json:"failed"`
	Categories []CategoryResult `json:"categories"`
}

// Run executes a certification suite. Every category gets a real
// pipeline: a fresh SQLite ledger in a scratch directory, the builtin
// tools, and a scripted confirmation channel steered by each case.
func Run(ctx context.Context, suite *Suite) (*Result, error) {
	dir, err := os.MkdirTemp("", "toolgate-certify-")
	if err != nil {
		return nil, fmt.Errorf("scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	result := &Result{
		Suite:   suite.Name,
		Version: suite.Version,
	}

	for i, cat := range suite.Categories {
		cr, err := runCategory(ctx, cat, filepath.Join(dir, fmt.Sprintf("cat-%d", i)))
		if err != nil {
			return nil, fmt.Errorf("category %q: %w", cat.Name, err)
		}
		result.Total += cr.Total
		result.Passed += cr.Passed
		result.Failed += cr.Failed
		result.Categories = append(result.Categories, cr)
	}

	return result, nil
}

func runCategory(ctx context.Context, cat Category, dir string) (CategoryResult, error) {
	cr := CategoryResult{
		Name:  cat.Name,
		Total: len(cat.Cases),
	}

	p, err := newPipeline(cat, dir)
	if err != nil {
		return cr, err
	}
	defer p.close()

	for i, c := range cat.Cases {
		res := p.runCase(ctx, c)
		res.Index = i + 1
		if res.Passed {
			cr.Passed++
		} else {
			cr.Failed++
		}
		cr.Cases = append(cr.Cases, res)
	}

	return cr, nil
}

// pipeline is one category's executor graph.
type pipeline struct {
	store   audit.Store
	exec    *executor.Executor
	confirm *scriptedChannel
	dir     string
}

func newPipeline(cat Category, dir string) (*pipeline, error) {
	cfg, err := cat.BuildConfig()
	if err != nil {
		return nil, err
	}
	hash, err := config.HashOf(cfg)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("category dir: %w", err)
	}
	var store audit.Store
	store, err = audit.NewSQLite(filepath.Join(dir, "ledger.db"))
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	if cat.Ledger == "broken" {
		store = &failingLedger{Store: store}
	}

	reg := registry.NewRegistry()
	if err := registry.RegisterBuiltins(reg); err != nil {
		store.Close()
		return nil, err
	}

	eng := policy.NewEngine(cfg)
	queries := audit.NewQueries(store)
	confirm := &scriptedChannel{mode: "yes"}
	logger := zap.NewNop()

	exec := executor.New(executor.Deps{
		Policies:   eng,
		Registry:   reg,
		Store:      store,
		Escalation: escalate.NewBuilder(queries, eng.Thresholds, logger),
		Gate:       gate.NewGate(cfg.Gate.IsEnabled(), cfg.Gate.ConfirmationTimeout(), confirm, nil, logger),
		Cooldown:   cooldown.NewTracker(),
		PolicyHash: func() string { return hash },
		Logger:     logger,
	})

	return &pipeline{store: store, exec: exec, confirm: confirm, dir: dir}, nil
}

func (p *pipeline) close() {
	p.store.Close()
}

// runCase pushes one call through the pipeline and checks it against
// the case's expectations.
func (p *pipeline) runCase(ctx context.Context, c Case) CaseResult {
	res := CaseResult{Name: c.Name, Tool: c.Tool}

	p.confirm.mode = c.Confirm
	if p.confirm.mode == "" {
		p.confirm.mode = "yes"
	}

	before, err := p.entryCount(ctx)
	if err != nil {
		res.Failures = append(res.Failures, "count ledger: "+err.Error())
		return res
	}

	user := c.User
	if user == "" {
		user = "cert-user"
	}
	out := p.exec.Execute(ctx, model.ToolCall{
		ID:        "cert-" + c.Name,
		Name:      c.Tool,
		Arguments: c.Args,
	}, model.CallContext{
		User:      user,
		Channel:   "certify",
		Workspace: p.dir,
	})

	res.Failures = p.check(ctx, c.Expect, out, before)
	res.Passed = len(res.Failures) == 0
	return res
}

func (p *pipeline) check(ctx context.Context, want Expect, out model.ToolResult, before int) []string {
	var fails []string

	if out.Success != want.Success {
		fails = append(fails, fmt.Sprintf("success = %v, want %v (error %q)", out.Success, want.Success, out.Error))
	}
	if want.ErrorContains != "" && !strings.Contains(out.Error, want.ErrorContains) {
		fails = append(fails, fmt.Sprintf("error %q does not contain %q", out.Error, want.ErrorContains))
	}
	if want.OutputContains != "" && !strings.Contains(out.Output, want.OutputContains) {
		fails = append(fails, fmt.Sprintf("output %q does not contain %q", out.Output, want.OutputContains))
	}

	if !want.NoEntry && want.Entry == "" {
		return fails
	}

	after, err := p.entryCount(ctx)
	if err != nil {
		return append(fails, "count ledger: "+err.Error())
	}
	wrote := after - before

	if want.NoEntry {
		if wrote != 0 {
			fails = append(fails, fmt.Sprintf("call wrote %d ledger entries, want none", wrote))
		}
		return fails
	}

	if wrote != 1 {
		return append(fails, fmt.Sprintf("call wrote %d ledger entries, want 1", wrote))
	}
	last, err := p.store.Tail(ctx, 1)
	if err != nil || len(last) == 0 {
		return append(fails, "read last entry failed")
	}
	e := last[0]
	if string(e.Result) != want.Entry {
		fails = append(fails, fmt.Sprintf("entry result = %s, want %s (reason %q)", e.Result, want.Entry, e.Reason))
	}
	if want.ReasonContains != "" && !strings.Contains(e.Reason, want.ReasonContains) {
		fails = append(fails, fmt.Sprintf("entry reason %q does not contain %q", e.Reason, want.ReasonContains))
	}
	return fails
}

func (p *pipeline) entryCount(ctx context.Context) (int, error) {
	entries, err := p.store.All(ctx)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// scriptedChannel answers confirmations per the running case: yes, no,
// or stall until the gate gives up waiting.
type scriptedChannel struct {
	mode string
}

func (s *scriptedChannel) Confirm(ctx context.Context, target, prompt string) (bool, error) {
	switch s.mode {
	case "no":
		return false, nil
	case "stall":
		<-ctx.Done()
		return false, ctx.Err()
	default:
		return true, nil
	}
}

// failingLedger fails every pre-log write while leaving reads intact.
type failingLedger struct {
	audit.Store
}

func (f *failingLedger) PreLog(ctx context.Context, e *audit.Entry) error {
	return errors.New("ledger unavailable")
}
