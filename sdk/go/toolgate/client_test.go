package toolgate

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

const testYAML = `
gate:
  enabled: false
policies:
  - tool: debug_*
    action: deny
    tier: low
`

func newTestClient(t *testing.T, opts ...Option) *Client {
	t.Helper()
	dir := t.TempDir()
	base := []Option{
		WithConfigYAML([]byte(testYAML)),
		WithLedgerPath(filepath.Join(dir, "ledger.db")),
		WithApprovalDir(filepath.Join(dir, "pending")),
		WithWorkspace(dir),
		WithIdentity("alice", "test"),
		WithLogger(zap.NewNop()),
	}
	c, err := New(context.Background(), append(base, opts...)...)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestExecuteBuiltinAllowed(t *testing.T) {
	c := newTestClient(t)

	res := c.Execute(context.Background(), "echo", map[string]any{"text": "hello"})
	if !res.Success {
		t.Fatalf("echo should succeed: %s", res.Error)
	}
	if res.Output != "hello" {
		t.Errorf("output = %q, want hello", res.Output)
	}
}

func TestExecuteForcedDeny(t *testing.T) {
	c := newTestClient(t)

	res := c.Execute(context.Background(), "debug_dump", map[string]any{})
	if res.Success {
		t.Fatal("debug_dump should be denied by policy")
	}
	if !strings.Contains(res.Error, "not authorized") {
		t.Errorf("error = %q, want not authorized", res.Error)
	}
}

func TestExecuteUnknownTool(t *testing.T) {
	c := newTestClient(t)

	res := c.Execute(context.Background(), "nonesuch", nil)
	if res.Success {
		t.Fatal("unknown tool should fail")
	}
	if !strings.Contains(res.Error, "unknown tool") {
		t.Errorf("error = %q, want unknown tool", res.Error)
	}
}

func TestCustomToolReplacesBuiltins(t *testing.T) {
	called := false
	c := newTestClient(t, WithTool(Tool{
		Name:  "greet",
		Level: "read",
		Run: func(ctx context.Context, req ToolRequest) (Result, error) {
			called = true
			name, _ := req.Args["name"].(string)
			return Result{Success: true, Output: "hi " + name}, nil
		},
	}))

	res := c.Execute(context.Background(), "greet", map[string]any{"name": "bob"})
	if !res.Success || res.Output != "hi bob" {
		t.Fatalf("greet failed: %+v", res)
	}
	if !called {
		t.Error("custom tool was not invoked")
	}

	// Builtins are omitted once a custom tool is registered.
	res = c.Execute(context.Background(), "echo", map[string]any{"text": "x"})
	if res.Success {
		t.Error("echo should be unknown when custom tools are registered")
	}
}

func TestCustomToolBadLevel(t *testing.T) {
	_, err := New(context.Background(),
		WithConfigYAML([]byte(testYAML)),
		WithLedgerPath(filepath.Join(t.TempDir(), "ledger.db")),
		WithTool(Tool{
			Name:  "bad",
			Level: "root",
			Run: func(ctx context.Context, req ToolRequest) (Result, error) {
				return Result{Success: true}, nil
			},
		}),
	)
	if err == nil {
		t.Fatal("expected error for unknown level")
	}
	if !strings.Contains(err.Error(), "unknown level") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestConfirmerDecline(t *testing.T) {
	yaml := `
policies:
  - tool: transfer
    tier: low
`
	declined := ConfirmerFunc(func(ctx context.Context, key, prompt string) (bool, error) {
		return false, nil
	})

	c := newTestClient(t,
		WithConfigYAML([]byte(yaml)),
		WithConfirmer(declined),
		WithTool(Tool{
			Name:         "transfer",
			Level:        "sign",
			DeclineError: "Transfer cancelled by user",
			Run: func(ctx context.Context, req ToolRequest) (Result, error) {
				t.Error("tool must not run after gate decline")
				return Result{Success: true}, nil
			},
		}),
	)

	res := c.Execute(context.Background(), "transfer", map[string]any{"amount_usd": 5})
	if res.Success {
		t.Fatal("declined transfer should fail")
	}
	if res.Error != "Transfer cancelled by user" {
		t.Errorf("error = %q, want decline message", res.Error)
	}
}

func TestConfirmerApprove(t *testing.T) {
	yaml := `
policies:
  - tool: transfer
    tier: low
`
	approved := ConfirmerFunc(func(ctx context.Context, key, prompt string) (bool, error) {
		return true, nil
	})

	c := newTestClient(t,
		WithConfigYAML([]byte(yaml)),
		WithConfirmer(approved),
		WithTool(Tool{
			Name:  "transfer",
			Level: "sign",
			Run: func(ctx context.Context, req ToolRequest) (Result, error) {
				return Result{Success: true, Ref: "tx-1"}, nil
			},
		}),
	)

	res := c.Execute(context.Background(), "transfer", map[string]any{"amount_usd": 5})
	if !res.Success {
		t.Fatalf("approved transfer should succeed: %s", res.Error)
	}
	if res.Ref != "tx-1" {
		t.Errorf("ref = %q, want tx-1", res.Ref)
	}
}

func TestCheckReport(t *testing.T) {
	c := newTestClient(t)

	rep := c.Check(context.Background(), "debug_dump", nil)
	if rep.Known {
		t.Error("debug_dump is not a registered tool")
	}
	if rep.Action != "deny" {
		t.Errorf("action = %q, want deny", rep.Action)
	}
	if !rep.Blocked() {
		t.Error("report should count as blocked")
	}

	rep = c.Check(context.Background(), "echo", map[string]any{"text": "x"})
	if !rep.Known || rep.Blocked() {
		t.Errorf("echo should be known and unblocked: %+v", rep)
	}
}

func TestPolicyHash(t *testing.T) {
	c := newTestClient(t)
	if !strings.HasPrefix(c.PolicyHash(), "sha256:") {
		t.Errorf("policy hash = %q", c.PolicyHash())
	}
}
