package mcp

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/toolgate/internal/approval"
	"github.com/ppiankov/toolgate/internal/model"
)

// --- Input/Output types ---

// RunInput defines parameters for the toolgate_run tool.
type RunInput struct {
	Tool string         `json:"tool" jsonschema:"name of the tool to execute"`
	Args map[string]any `json:"args,omitempty" jsonschema:"tool arguments"`
}

// RunOutput carries the tool result or the blocking decision.
type RunOutput struct {
	Output  string `json:"output,omitempty"`
	Data    any    `json:"data,omitempty"`
	Ref     string `json:"ref,omitempty"`
	Blocked bool   `json:"blocked,omitempty"`
	Error   string `json:"error,omitempty"`
}

// CheckInput defines parameters for the toolgate_check tool.
type CheckInput struct {
	Tool string         `json:"tool" jsonschema:"name of the tool to check"`
	Args map[string]any `json:"args,omitempty" jsonschema:"tool arguments (amount_usd feeds the spend checks)"`
}

// CheckOutput is the dry-run decision.
type CheckOutput struct {
	Known       bool   `json:"known"`
	Level       string `json:"security_level,omitempty"`
	GateApplies bool   `json:"gate_applies"`
	Action      string `json:"action"`
	Tier        string `json:"tier"`
	Reason      string `json:"reason,omitempty"`
}

// PendingInput has no parameters.
type PendingInput struct{}

// PendingOutput lists approval requests.
type PendingOutput struct {
	Approvals []PendingItem `json:"approvals"`
}

// PendingItem describes one approval request.
type PendingItem struct {
	Key       string `json:"key"`
	Status    string `json:"status"`
	Tool      string `json:"tool"`
	User      string `json:"user"`
	Prompt    string `json:"prompt,omitempty"`
	CreatedAt string `json:"created_at"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

// ApproveInput defines parameters for the toolgate_approve tool.
type ApproveInput struct {
	Key      string `json:"key" jsonschema:"approval key (user.tool)"`
	Duration string `json:"duration,omitempty" jsonschema:"standing approval duration (e.g. 30m), omit for one-time"`
}

// ApproveOutput confirms the approval.
type ApproveOutput struct {
	Key      string `json:"key"`
	Status   string `json:"status"`
	Duration string `json:"duration,omitempty"`
}

// AuditTailInput defines parameters for the toolgate_audit_tail tool.
type AuditTailInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"number of recent entries to return (default 20)"`
}

// AuditTailOutput lists recent ledger entries.
type AuditTailOutput struct {
	Entries []EntryView `json:"entries"`
}

// EntryView is the compact ledger row exposed over MCP.
type EntryView struct {
	ID        string   `json:"id"`
	CreatedAt string   `json:"created_at"`
	Tool      string   `json:"tool"`
	User      string   `json:"user"`
	Tier      string   `json:"tier"`
	Result    string   `json:"result"`
	Reason    string   `json:"reason,omitempty"`
	AmountUSD *float64 `json:"amount_usd,omitempty"`
	Ref       string   `json:"ref,omitempty"`
}

// AuditVerifyInput has no parameters.
type AuditVerifyInput struct{}

// AuditVerifyOutput reports the chain check.
type AuditVerifyOutput struct {
	Valid    bool   `json:"valid"`
	Entries  int    `json:"entries"`
	Error    string `json:"error,omitempty"`
	ErrorSeq int    `json:"error_seq,omitempty"`
	ErrorID  string `json:"error_id,omitempty"`
}

// --- Handlers ---

func (s *Server) handleRun(ctx context.Context, req *mcpsdk.CallToolRequest, input RunInput) (*mcpsdk.CallToolResult, RunOutput, error) {
	res := s.rt.Execute(ctx, model.ToolCall{
		ID:        uuid.NewString(),
		Name:      input.Tool,
		Arguments: input.Args,
	}, s.callContext())

	if !res.Success {
		out := RunOutput{Blocked: true, Error: res.Error}
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}

	return nil, RunOutput{
		Output: res.Output,
		Data:   res.Data,
		Ref:    res.Ref,
	}, nil
}

func (s *Server) handleCheck(ctx context.Context, req *mcpsdk.CallToolRequest, input CheckInput) (*mcpsdk.CallToolResult, CheckOutput, error) {
	rep := s.rt.Check(ctx, model.ToolCall{
		Name:      input.Tool,
		Arguments: input.Args,
	}, s.callContext())

	return nil, CheckOutput{
		Known:       rep.Known,
		Level:       string(rep.Level),
		GateApplies: rep.GateApplies,
		Action:      string(rep.Decision.Action),
		Tier:        rep.Decision.EffectiveTier.String(),
		Reason:      rep.Decision.Reason,
	}, nil
}

func (s *Server) handlePending(ctx context.Context, req *mcpsdk.CallToolRequest, input PendingInput) (*mcpsdk.CallToolResult, PendingOutput, error) {
	list, err := s.rt.Approvals().List()
	if err != nil {
		return nil, PendingOutput{}, err
	}

	sort.SliceStable(list, func(i, j int) bool {
		pi := list[i].Status == approval.StatusPending
		pj := list[j].Status == approval.StatusPending
		if pi != pj {
			return pi
		}
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})

	items := make([]PendingItem, len(list))
	for i, a := range list {
		items[i] = PendingItem{
			Key:       a.Key,
			Status:    string(a.Status),
			Tool:      a.Tool,
			User:      a.User,
			Prompt:    a.Prompt,
			CreatedAt: a.CreatedAt.Format(time.RFC3339),
		}
		if a.ExpiresAt != nil {
			items[i].ExpiresAt = a.ExpiresAt.Format(time.RFC3339)
		}
	}

	return nil, PendingOutput{Approvals: items}, nil
}

func (s *Server) handleApprove(ctx context.Context, req *mcpsdk.CallToolRequest, input ApproveInput) (*mcpsdk.CallToolResult, ApproveOutput, error) {
	var duration time.Duration
	if input.Duration != "" {
		var err error
		duration, err = time.ParseDuration(input.Duration)
		if err != nil {
			return nil, ApproveOutput{}, fmt.Errorf("invalid duration %q: %w", input.Duration, err)
		}
	}

	if err := s.rt.Approvals().Approve(input.Key, duration); err != nil {
		return nil, ApproveOutput{}, err
	}

	out := ApproveOutput{
		Key:    input.Key,
		Status: string(approval.StatusApproved),
	}
	if duration > 0 {
		out.Duration = duration.String()
	}
	return nil, out, nil
}

func (s *Server) handleAuditTail(ctx context.Context, req *mcpsdk.CallToolRequest, input AuditTailInput) (*mcpsdk.CallToolResult, AuditTailOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 20
	}

	entries, err := s.rt.Store().Tail(ctx, limit)
	if err != nil {
		return nil, AuditTailOutput{}, err
	}

	views := make([]EntryView, len(entries))
	for i, e := range entries {
		views[i] = EntryView{
			ID:        e.ID,
			CreatedAt: e.CreatedAt,
			Tool:      e.Tool,
			User:      e.User,
			Tier:      e.EffectiveTier.String(),
			Result:    string(e.Result),
			Reason:    e.Reason,
			AmountUSD: e.AmountUSD,
			Ref:       e.Ref,
		}
	}

	return nil, AuditTailOutput{Entries: views}, nil
}

func (s *Server) handleAuditVerify(ctx context.Context, req *mcpsdk.CallToolRequest, input AuditVerifyInput) (*mcpsdk.CallToolResult, AuditVerifyOutput, error) {
	v, err := s.rt.Store().VerifyChain(ctx)
	if err != nil {
		return nil, AuditVerifyOutput{}, err
	}

	out := AuditVerifyOutput{
		Valid:    v.Valid,
		Entries:  v.Entries,
		Error:    v.Error,
		ErrorSeq: v.ErrorSeq,
		ErrorID:  v.ErrorID,
	}
	if !v.Valid {
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}
	return nil, out, nil
}

func (s *Server) callContext() model.CallContext {
	return model.CallContext{
		User:      s.id.User,
		Channel:   s.id.Channel,
		Workspace: s.id.Workspace,
	}
}
