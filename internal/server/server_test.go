package server

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/toolgate/internal/config"
	"github.com/ppiankov/toolgate/internal/gate"
	"github.com/ppiankov/toolgate/internal/model"
)

const minimalYAML = `
thresholds:
  per_tier_usd:
    low: 20
    guarded: 250
    critical: 1000
  daily_usd: 500
  consecutive_denial_ceiling: 3
gate:
  enabled: false
ledger:
  driver: sqlite
`

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "toolgate.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// testRuntime builds a runtime off a temp config file with an isolated
// ledger and approval dir.
func testRuntime(t *testing.T, yaml string) (*Runtime, string) {
	t.Helper()
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, yaml)

	rt, err := NewRuntime(context.Background(), Options{
		ConfigPath:  cfgPath,
		LedgerPath:  filepath.Join(dir, "ledger.db"),
		ApprovalDir: filepath.Join(dir, "approvals"),
		Channel:     gate.Scripted(true),
		Logger:      zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	t.Cleanup(func() { rt.Close() })
	return rt, cfgPath
}

func testCall(name string, args map[string]any) (model.ToolCall, model.CallContext) {
	return model.ToolCall{ID: "c1", Name: name, Arguments: args},
		model.CallContext{User: "alice", Channel: "ops", SessionKey: "sess-1"}
}

func TestRuntimeExecutesAndAudits(t *testing.T) {
	rt, _ := testRuntime(t, minimalYAML)

	call, cctx := testCall("echo", map[string]any{"text": "hello"})
	res := rt.Execute(context.Background(), call, cctx)
	if !res.Success {
		t.Fatalf("Execute failed: %s", res.Error)
	}
	if res.Output != "hello" {
		t.Errorf("Output = %q, want %q", res.Output, "hello")
	}

	entries, err := rt.Store().Tail(context.Background(), 10)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d ledger entries, want 1", len(entries))
	}
	if entries[0].Result != "success" {
		t.Errorf("entry result = %q, want success", entries[0].Result)
	}
	if entries[0].PolicyHash != rt.PolicyHash() {
		t.Errorf("entry policy hash %q != runtime hash %q", entries[0].PolicyHash, rt.PolicyHash())
	}
}

func TestRuntimeInlineConfig(t *testing.T) {
	dir := t.TempDir()
	rt, err := NewRuntime(context.Background(), Options{
		Config:      config.Default(),
		LedgerPath:  filepath.Join(dir, "ledger.db"),
		ApprovalDir: filepath.Join(dir, "approvals"),
		Channel:     gate.Scripted(true),
		Logger:      zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	defer rt.Close()

	if !strings.HasPrefix(rt.PolicyHash(), "sha256:") {
		t.Errorf("inline config hash = %q, want sha256: prefix", rt.PolicyHash())
	}

	call, cctx := testCall("clock", nil)
	if res := rt.Execute(context.Background(), call, cctx); !res.Success {
		t.Fatalf("Execute failed: %s", res.Error)
	}
}

func TestRuntimeUnknownLedgerDriver(t *testing.T) {
	cfg := config.Default()
	cfg.Ledger.Driver = "bolt"

	_, err := NewRuntime(context.Background(), Options{
		Config:      cfg,
		ApprovalDir: filepath.Join(t.TempDir(), "approvals"),
		Logger:      zap.NewNop(),
	})
	if err == nil {
		t.Fatal("expected error for unknown ledger driver")
	}
	if !strings.Contains(err.Error(), "bolt") {
		t.Errorf("error %q does not name the driver", err)
	}
}

func TestRuntimeReloadSwapsPolicy(t *testing.T) {
	rt, cfgPath := testRuntime(t, minimalYAML)

	call, cctx := testCall("echo", map[string]any{"text": "hi"})
	if res := rt.Execute(context.Background(), call, cctx); !res.Success {
		t.Fatalf("Execute before reload failed: %s", res.Error)
	}
	oldHash := rt.PolicyHash()

	denyEcho := minimalYAML + `
policies:
  - tool: echo
    action: deny
`
	if err := os.WriteFile(cfgPath, []byte(denyEcho), 0644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	if err := rt.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	if rt.PolicyHash() == oldHash {
		t.Error("policy hash did not change after reload")
	}
	res := rt.Execute(context.Background(), call, cctx)
	if res.Success {
		t.Fatal("echo should be denied after reload")
	}
	if !strings.Contains(res.Error, "not authorized") {
		t.Errorf("Error = %q, want a denial", res.Error)
	}
}

func TestRuntimeReloadBadConfigKeepsOld(t *testing.T) {
	rt, cfgPath := testRuntime(t, minimalYAML)
	oldHash := rt.PolicyHash()

	if err := os.WriteFile(cfgPath, []byte("policies: {not a list"), 0644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	if err := rt.Reload(); err == nil {
		t.Fatal("expected reload error for malformed config")
	}
	if rt.PolicyHash() != oldHash {
		t.Error("bad reload must not swap the policy")
	}

	call, cctx := testCall("echo", map[string]any{"text": "still here"})
	if res := rt.Execute(context.Background(), call, cctx); !res.Success {
		t.Fatalf("runtime broken after failed reload: %s", res.Error)
	}
}

func TestRuntimeReloadWithoutPath(t *testing.T) {
	dir := t.TempDir()
	rt, err := NewRuntime(context.Background(), Options{
		Config:      config.Default(),
		LedgerPath:  filepath.Join(dir, "ledger.db"),
		ApprovalDir: filepath.Join(dir, "approvals"),
		Logger:      zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	defer rt.Close()

	if err := rt.Reload(); err == nil {
		t.Fatal("expected error reloading an inline-config runtime")
	}
}

func TestRuntimeCheckDryRun(t *testing.T) {
	rt, _ := testRuntime(t, minimalYAML+`
policies:
  - tool: wallet_transfer
    tier: critical
`)

	call, cctx := testCall("wallet_transfer", map[string]any{"to": "bob", "amount_usd": 5000})
	rep := rt.Check(context.Background(), call, cctx)

	if !rep.Known {
		t.Fatal("wallet_transfer should be a known tool")
	}
	if rep.Level != model.LevelSign {
		t.Errorf("Level = %v, want sign", rep.Level)
	}
	if rep.Decision.Action != model.ActionEscalate {
		t.Errorf("Decision = %v, want escalate for $5000", rep.Decision.Action)
	}
	if rep.GateApplies {
		t.Error("gate disabled in config, GateApplies should be false")
	}

	entries, err := rt.Store().Tail(context.Background(), 10)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("dry run wrote %d ledger entries", len(entries))
	}
}

func TestRuntimeCheckUnknownTool(t *testing.T) {
	rt, _ := testRuntime(t, minimalYAML)

	call, cctx := testCall("nonesuch", nil)
	rep := rt.Check(context.Background(), call, cctx)
	if rep.Known {
		t.Error("nonesuch should not be known")
	}
	if rep.GateApplies {
		t.Error("unknown tool cannot be gated")
	}
	if rep.Decision.Action != model.ActionAllow {
		t.Errorf("default decision = %v, want allow", rep.Decision.Action)
	}
}

func TestReloaderSkipsMissingPaths(t *testing.T) {
	rt, cfgPath := testRuntime(t, minimalYAML)

	r, err := NewReloader(rt, []string{"", "/does/not/exist.yaml", cfgPath})
	if err != nil {
		t.Fatalf("NewReloader: %v", err)
	}
	defer r.watcher.Close()

	if len(r.paths) != 1 || r.paths[0] != cfgPath {
		t.Errorf("watched = %v, want just the config", r.paths)
	}
}

func TestReloaderReloadsOnWrite(t *testing.T) {
	rt, cfgPath := testRuntime(t, minimalYAML)
	oldHash := rt.PolicyHash()

	r, err := NewReloader(rt, []string{cfgPath})
	if err != nil {
		t.Fatalf("NewReloader: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(ctx)
	}()

	denyEcho := minimalYAML + `
policies:
  - tool: echo
    action: deny
`
	if err := os.WriteFile(cfgPath, []byte(denyEcho), 0644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for rt.PolicyHash() == oldHash {
		select {
		case <-deadline:
			t.Fatal("reloader did not pick up the config change")
		case <-time.After(50 * time.Millisecond):
		}
	}

	cancel()
	<-done
}

func TestNewLoggerLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "", "bogus"} {
		logger, err := NewLogger(level)
		if err != nil {
			t.Fatalf("NewLogger(%q): %v", level, err)
		}
		logger.Sync()
	}
}
