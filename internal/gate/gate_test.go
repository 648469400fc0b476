package gate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/toolgate/internal/approval"
	"github.com/ppiankov/toolgate/internal/model"
)

func testCall() model.ToolCall {
	return model.ToolCall{
		ID:        "call-1",
		Name:      "wallet_transfer",
		Arguments: map[string]any{"amount_usd": 50.0, "to": "bob"},
	}
}

func testCtx() model.CallContext {
	return model.CallContext{
		User:       "alice",
		Channel:    "ops",
		SessionKey: "sess-1",
		Workspace:  "/tmp/ws",
	}
}

func TestDisabledGateAllows(t *testing.T) {
	g := NewGate(false, time.Second, nil, nil, zap.NewNop())

	v, err := g.Check(context.Background(), testCall(), testCtx())
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !v.Allowed || v.Reason != ReasonDisabled {
		t.Errorf("got %+v, want allowed with disabled reason", v)
	}
}

func TestMissingChannelWiringIsConfigError(t *testing.T) {
	g := NewGate(true, time.Second, nil, nil, zap.NewNop())

	_, err := g.Check(context.Background(), testCall(), testCtx())
	if err == nil {
		t.Fatal("expected configuration error for nil channel")
	}
}

func TestMissingCallChannelIsConfigError(t *testing.T) {
	g := NewGate(true, time.Second, Scripted(true), nil, zap.NewNop())

	cctx := testCtx()
	cctx.Channel = ""
	if _, err := g.Check(context.Background(), testCall(), cctx); err == nil {
		t.Fatal("expected configuration error for empty channel")
	}
}

func TestMissingWorkspaceIsConfigError(t *testing.T) {
	g := NewGate(true, time.Second, Scripted(true), nil, zap.NewNop())

	cctx := testCtx()
	cctx.Workspace = ""
	if _, err := g.Check(context.Background(), testCall(), cctx); err == nil {
		t.Fatal("expected configuration error for empty workspace")
	}
}

func TestConfirmedYes(t *testing.T) {
	g := NewGate(true, time.Second, Scripted(true), nil, zap.NewNop())

	v, err := g.Check(context.Background(), testCall(), testCtx())
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !v.Allowed || v.Reason != ReasonConfirmed {
		t.Errorf("got %+v, want confirmed allow", v)
	}
}

func TestDeclinedNo(t *testing.T) {
	g := NewGate(true, time.Second, Scripted(false), nil, zap.NewNop())

	v, err := g.Check(context.Background(), testCall(), testCtx())
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if v.Allowed || v.Reason != ReasonDeclined {
		t.Errorf("got %+v, want declined", v)
	}
}

func TestTimeoutDenies(t *testing.T) {
	stall := ChannelFunc(func(ctx context.Context, _, _ string) (bool, error) {
		<-ctx.Done()
		return false, ctx.Err()
	})
	g := NewGate(true, 20*time.Millisecond, stall, nil, zap.NewNop())

	v, err := g.Check(context.Background(), testCall(), testCtx())
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if v.Allowed {
		t.Fatal("timeout must deny")
	}
	if !IsTimeout(v.Reason) {
		t.Errorf("reason %q should name a timeout", v.Reason)
	}
	if !strings.Contains(v.Reason, "20ms") {
		t.Errorf("reason %q should carry the configured timeout", v.Reason)
	}
}

func TestChannelErrorFailsClosed(t *testing.T) {
	broken := ChannelFunc(func(context.Context, string, string) (bool, error) {
		return true, errors.New("slack is down")
	})
	g := NewGate(true, time.Second, broken, nil, zap.NewNop())

	v, err := g.Check(context.Background(), testCall(), testCtx())
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if v.Allowed || v.Reason != ReasonChannelError {
		t.Errorf("got %+v, want channel-error deny", v)
	}
}

func TestStandingApprovalShortCircuits(t *testing.T) {
	store, err := approval.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	key := approval.KeyFor("alice", "wallet_transfer")
	store.Request(key, "wallet_transfer", "alice", "q")
	store.Approve(key, time.Hour)

	// The channel would say no; the standing grant must win.
	g := NewGate(true, time.Second, Scripted(false), store, zap.NewNop())

	v, err := g.Check(context.Background(), testCall(), testCtx())
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !v.Allowed || v.Reason != ReasonStanding {
		t.Errorf("got %+v, want standing approval", v)
	}

	// Still standing: a second call passes too.
	v, _ = g.Check(context.Background(), testCall(), testCtx())
	if !v.Allowed {
		t.Error("standing approval should survive repeated use")
	}
}

func TestOneTimeApprovalConsumedOnUse(t *testing.T) {
	store, err := approval.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	key := approval.KeyFor("alice", "wallet_transfer")
	store.Request(key, "wallet_transfer", "alice", "q")
	store.Approve(key, 0)

	g := NewGate(true, time.Second, Scripted(false), store, zap.NewNop())

	v, err := g.Check(context.Background(), testCall(), testCtx())
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !v.Allowed || v.Reason != ReasonStanding {
		t.Fatalf("got %+v, want standing approval", v)
	}

	// Grant spent: the second call falls through to the channel.
	v, err = g.Check(context.Background(), testCall(), testCtx())
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if v.Allowed || v.Reason != ReasonDeclined {
		t.Errorf("got %+v, want declined after grant consumed", v)
	}
}

func TestTerminalParsesAnswers(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"Y\n", true},
		{"yes\n", true},
		{"n\n", false},
		{"no\n", false},
		{"\n", false},
		{"whatever\n", false},
	}

	for _, tt := range tests {
		term := &Terminal{In: strings.NewReader(tt.input), Out: &strings.Builder{}}
		got, err := term.Confirm(context.Background(), "k", "ok?")
		if err != nil {
			t.Fatalf("Confirm(%q) failed: %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("Confirm(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestPromptNamesUserToolAndArgs(t *testing.T) {
	p := Prompt(testCall(), testCtx())
	for _, want := range []string{"alice", "wallet_transfer", "amount_usd"} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt %q missing %q", p, want)
		}
	}

	bare := Prompt(model.ToolCall{Name: "clock"}, testCtx())
	if !strings.Contains(bare, "clock") || strings.Contains(bare, "{") {
		t.Errorf("bare prompt %q should skip empty arguments", bare)
	}
}
