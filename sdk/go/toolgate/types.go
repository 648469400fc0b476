package toolgate

import (
	"context"
	"fmt"

	"github.com/ppiankov/toolgate/internal/model"
	"github.com/ppiankov/toolgate/internal/registry"
	"github.com/ppiankov/toolgate/internal/server"
)

// Confirmer answers gate questions. The key names the pending approval;
// interactive implementations may ignore it.
type Confirmer interface {
	Confirm(ctx context.Context, key, prompt string) (bool, error)
}

// ConfirmerFunc adapts a plain function to a Confirmer.
type ConfirmerFunc func(ctx context.Context, key, prompt string) (bool, error)

// Confirm calls f.
func (f ConfirmerFunc) Confirm(ctx context.Context, key, prompt string) (bool, error) {
	return f(ctx, key, prompt)
}

// ToolRequest carries one invocation into a custom tool.
type ToolRequest struct {
	Args      map[string]any
	User      string
	Channel   string
	Workspace string

	// Confirm asks the calling human a yes/no question. Pre-wired by the
	// pipeline; non-nil whenever Run is invoked.
	Confirm func(ctx context.Context, question string) (bool, error)
}

// Tool is a custom tool exposed through the gateway.
type Tool struct {
	Name        string
	Description string

	// Level is the security level: "read", "write" or "sign".
	// Empty means read.
	Level string

	// ConfirmRequired forces the write gate even at read level.
	ConfirmRequired bool

	// DeclineError is reported when a human blocks this tool.
	// Empty means "cancelled by user".
	DeclineError string

	Run func(ctx context.Context, req ToolRequest) (Result, error)
}

// Result is the outcome of one call, blocked or executed.
type Result struct {
	Success bool   `json:"success"`
	Output  string `json:"output,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Ref     string `json:"ref,omitempty"`
}

// Report is the dry-run view of one call: what the pipeline would
// decide without executing anything or writing the ledger.
type Report struct {
	Tool        string `json:"tool"`
	Known       bool   `json:"known"`
	Level       string `json:"security_level,omitempty"`
	GateApplies bool   `json:"gate_applies"`
	Action      string `json:"action"`
	Tier        string `json:"tier"`
	Reason      string `json:"reason,omitempty"`
}

// Blocked reports whether the decision would stop the call.
func (r Report) Blocked() bool {
	return !r.Known || r.Action == string(model.ActionDeny) || r.Action == string(model.ActionEscalate)
}

func toDefinition(t Tool) (registry.Definition, error) {
	var lvl model.SecurityLevel
	switch t.Level {
	case "", "read":
		lvl = model.LevelRead
	case "write":
		lvl = model.LevelWrite
	case "sign":
		lvl = model.LevelSign
	default:
		return registry.Definition{}, fmt.Errorf("toolgate: tool %q: unknown level %q", t.Name, t.Level)
	}

	run := t.Run
	return registry.Definition{
		Name:         t.Name,
		Description:  t.Description,
		Security:     registry.Security{Level: lvl, ConfirmRequired: t.ConfirmRequired},
		DeclineError: t.DeclineError,
		Execute: func(ctx context.Context, args map[string]any, tc registry.ToolContext) (model.ToolResult, error) {
			res, err := run(ctx, ToolRequest{
				Args:      args,
				User:      tc.Call.User,
				Channel:   tc.Call.Channel,
				Workspace: tc.Call.Workspace,
				Confirm:   tc.Confirm,
			})
			return model.ToolResult{
				Success: res.Success,
				Output:  res.Output,
				Data:    res.Data,
				Error:   res.Error,
				Ref:     res.Ref,
			}, err
		},
	}, nil
}

func toResult(r model.ToolResult) Result {
	return Result{
		Success: r.Success,
		Output:  r.Output,
		Data:    r.Data,
		Error:   r.Error,
		Ref:     r.Ref,
	}
}

func toReport(r server.CheckReport) Report {
	return Report{
		Tool:        r.Tool,
		Known:       r.Known,
		Level:       string(r.Level),
		GateApplies: r.GateApplies,
		Action:      string(r.Decision.Action),
		Tier:        r.Decision.EffectiveTier.String(),
		Reason:      r.Decision.Reason,
	}
}
