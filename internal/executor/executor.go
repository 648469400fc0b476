package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/toolgate/internal/alert"
	"github.com/ppiankov/toolgate/internal/audit"
	"github.com/ppiankov/toolgate/internal/cooldown"
	"github.com/ppiankov/toolgate/internal/escalate"
	"github.com/ppiankov/toolgate/internal/gate"
	"github.com/ppiankov/toolgate/internal/model"
	"github.com/ppiankov/toolgate/internal/policy"
	"github.com/ppiankov/toolgate/internal/registry"
)

// PolicySource yields the current policy view. Implementations swap it
// atomically on config reload; the executor reads it fresh per call.
type PolicySource interface {
	Resolve(tool string) model.Policy
	Thresholds() model.Thresholds
}

// Deps wires an Executor. Alerts may be nil; everything else is
// required.
type Deps struct {
	Policies   PolicySource
	Registry   *registry.Registry
	Store      audit.Store
	Escalation *escalate.Builder
	Gate       *gate.Gate
	Cooldown   *cooldown.Tracker
	PolicyHash func() string
	Alerts     *alert.Dispatcher
	Logger     *zap.Logger
}

// Executor runs the authorization and audit pipeline for tool calls.
// Every call that reaches a decision leaves exactly one ledger entry,
// settled by the time Execute returns.
type Executor struct {
	deps Deps

	// mu serializes the decide-and-prelog phase so escalation queries
	// always observe every entry whose pre-log completed earlier. Tool
	// execution runs outside it.
	mu sync.Mutex
}

// New builds an Executor from its dependencies.
func New(deps Deps) *Executor {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.PolicyHash == nil {
		deps.PolicyHash = func() string { return "" }
	}
	return &Executor{deps: deps}
}

// Execute runs one call through the full pipeline. It never panics and
// never returns internal storage detail; failures come back as a
// ToolResult with Success false.
func (x *Executor) Execute(ctx context.Context, call model.ToolCall, cctx model.CallContext) model.ToolResult {
	def, ok := x.deps.Registry.Get(call.Name)
	if !ok {
		return model.ToolResult{Success: false, Error: "unknown tool: " + call.Name}
	}

	// The gate runs before any ledger write. A misconfigured gate means
	// the pipeline is not wired enough to attempt the call at all; an
	// answered no is an authenticated decision and belongs in the
	// ledger.
	verdict := model.GateVerdict{Allowed: true}
	gated := def.Security.Level.AboveRead() || def.Security.ConfirmRequired
	if gated && x.deps.Gate.Enabled() {
		v, err := x.deps.Gate.Check(ctx, call, cctx)
		if err != nil {
			x.deps.Logger.Error("write gate configuration error",
				zap.String("tool", call.Name),
				zap.String("user", cctx.User),
				zap.Error(err))
			return failure(&ConfigurationError{Reason: err.Error()})
		}
		verdict = v
		if !v.Allowed {
			return x.settleGateRefusal(ctx, call, cctx, def, v)
		}
	}

	return x.run(ctx, call, cctx, def, verdict)
}

// ExecuteBatch runs calls strictly in order; each call settles before
// the next starts.
func (x *Executor) ExecuteBatch(ctx context.Context, calls []model.ToolCall, cctx model.CallContext) []model.ToolResult {
	results := make([]model.ToolResult, 0, len(calls))
	for _, call := range calls {
		results = append(results, x.Execute(ctx, call, cctx))
	}
	return results
}

// run covers everything after the gate: decide, pre-log, execute,
// finalize.
func (x *Executor) run(ctx context.Context, call model.ToolCall, cctx model.CallContext, def registry.Definition, verdict model.GateVerdict) model.ToolResult {
	x.mu.Lock()
	locked := true
	unlock := func() {
		if locked {
			locked = false
			x.mu.Unlock()
		}
	}
	defer unlock()

	ec := x.deps.Escalation.Build(ctx, cctx.User, call.Arguments)
	pol := x.deps.Policies.Resolve(call.Name)
	dec := policy.Decide(pol, ec)

	entry := x.newEntry(call, cctx, def, dec, ec)

	if !pol.AllowedUsers.Permits(cctx.User, def.Security.Level) {
		err := &AuthorizationDenied{User: cctx.User, Tool: call.Name, Reason: "not-in-allowedUsers"}
		return x.settleDenied(ctx, entry, "not-in-allowedUsers", err)
	}

	if cv := x.deps.Cooldown.Check(call.Name, pol.Cooldown); !cv.Allowed {
		err := &AuthorizationDenied{Reason: cv.Reason}
		return x.settleDenied(ctx, entry, cv.Reason, err)
	}

	pending, err := audit.Begin(ctx, x.deps.Store, entry)
	if err != nil {
		x.deps.Logger.Error("audit pre-log failed",
			zap.String("tool", call.Name),
			zap.String("user", cctx.User),
			zap.Error(err))
		return failure(&AuditFailure{})
	}
	defer pending.Release(context.WithoutCancel(ctx), "pipeline abandoned entry")

	switch dec.Action {
	case model.ActionDeny:
		x.finalize(ctx, pending, entry, audit.ResultDenied, dec.Reason, audit.Finalization{})
		return failure(&AuthorizationDenied{Reason: dec.Reason})
	case model.ActionEscalate:
		x.finalize(ctx, pending, entry, audit.ResultEscalated, dec.Reason, audit.Finalization{})
		return failure(&Escalated{Reason: dec.Reason})
	case model.ActionConfirm:
		x.finalize(ctx, pending, entry, audit.ResultDenied, "confirmation-not-implemented", audit.Finalization{})
		return failure(&AuthorizationDenied{Reason: "confirmation-not-implemented"})
	}

	// Allowed. Execution happens outside the decision lock.
	unlock()

	start := time.Now()
	res := x.invoke(ctx, def, call, cctx, verdict)
	durMs := time.Since(start).Milliseconds()
	fin := audit.Finalization{DurationMs: &durMs, Ref: res.Ref}

	if res.Success {
		x.finalize(ctx, pending, entry, audit.ResultSuccess, "", fin)
		x.deps.Cooldown.Record(call.Name, pol.Cooldown)
	} else {
		x.finalize(ctx, pending, entry, audit.ResultError, res.Error, fin)
	}
	return res
}

// settleGateRefusal records an answered no: pre-log, finalize denied,
// hand back the tool's declared decline message.
func (x *Executor) settleGateRefusal(ctx context.Context, call model.ToolCall, cctx model.CallContext, def registry.Definition, v model.GateVerdict) model.ToolResult {
	x.mu.Lock()
	defer x.mu.Unlock()

	ec := x.deps.Escalation.Build(ctx, cctx.User, call.Arguments)
	pol := x.deps.Policies.Resolve(call.Name)
	dec := policy.Decide(pol, ec)
	entry := x.newEntry(call, cctx, def, dec, ec)

	var reserr error
	if gate.IsTimeout(v.Reason) {
		reserr = &GateTimeout{Message: def.Decline()}
	} else {
		reserr = &GateDeclined{Message: def.Decline()}
	}
	return x.settleDenied(ctx, entry, v.Reason, reserr)
}

// settleDenied writes a denied entry for a call that never executed.
func (x *Executor) settleDenied(ctx context.Context, entry *audit.Entry, reason string, reserr error) model.ToolResult {
	pending, err := audit.Begin(ctx, x.deps.Store, entry)
	if err != nil {
		x.deps.Logger.Error("audit pre-log failed",
			zap.String("tool", entry.Tool),
			zap.String("user", entry.User),
			zap.Error(err))
		return failure(&AuditFailure{})
	}
	x.finalize(ctx, pending, entry, audit.ResultDenied, reason, audit.Finalization{})
	return failure(reserr)
}

// finalize settles the entry and fans out alerts for the results worth
// waking someone for.
func (x *Executor) finalize(ctx context.Context, pending *audit.Pending, entry *audit.Entry, result audit.Result, reason string, fin audit.Finalization) {
	if err := pending.Finalize(ctx, result, reason, fin); err != nil {
		x.deps.Logger.Error("audit finalize failed",
			zap.String("entry", pending.ID()),
			zap.String("result", string(result)),
			zap.Error(err))
	}

	switch result {
	case audit.ResultDenied, audit.ResultEscalated, audit.ResultError:
		x.deps.Alerts.Dispatch(alert.AlertEvent{
			Timestamp:  audit.Now(),
			EntryID:    pending.ID(),
			Tool:       entry.Tool,
			User:       entry.User,
			Channel:    entry.Channel,
			Result:     string(result),
			Reason:     reason,
			Tier:       int(entry.EffectiveTier),
			PolicyHash: entry.PolicyHash,
		})
	}
}

// invoke runs the tool with panic containment. The confirmation
// callback is pre-wired to the gate verdict: by the time a tool runs,
// the human either said yes or the gate is off.
func (x *Executor) invoke(ctx context.Context, def registry.Definition, call model.ToolCall, cctx model.CallContext, verdict model.GateVerdict) (res model.ToolResult) {
	defer func() {
		if r := recover(); r != nil {
			x.deps.Logger.Error("tool panicked",
				zap.String("tool", call.Name),
				zap.Any("panic", r))
			res = model.ToolResult{Success: false, Error: fmt.Sprintf("tool panicked: %v", r)}
		}
	}()

	tc := registry.ToolContext{
		Call: cctx,
		Confirm: func(context.Context, string) (bool, error) {
			return verdict.Allowed, nil
		},
	}

	res, err := def.Execute(ctx, call.Arguments, tc)
	if err != nil {
		res.Success = false
		if res.Error == "" {
			res.Error = (&ExecutionError{Tool: call.Name, Err: err}).Error()
		}
	}
	return res
}

// newEntry drafts the pre-log row for a call. Params are snapshotted
// here, before the tool can mutate its argument map.
func (x *Executor) newEntry(call model.ToolCall, cctx model.CallContext, def registry.Definition, dec model.Decision, ec model.EscalationContext) *audit.Entry {
	params, err := audit.SnapshotParams(call.Arguments)
	if err != nil {
		x.deps.Logger.Warn("params snapshot failed",
			zap.String("tool", call.Name),
			zap.Error(err))
		params = "{}"
	}

	return &audit.Entry{
		Tool:          call.Name,
		Tier:          dec.Tier,
		EffectiveTier: dec.EffectiveTier,
		SecurityLevel: def.Security.Level,
		User:          cctx.User,
		Channel:       cctx.Channel,
		SessionKey:    cctx.SessionKey,
		Params:        params,
		AmountUSD:     ec.AmountUSD,
		PolicyHash:    x.deps.PolicyHash(),
	}
}

func failure(err error) model.ToolResult {
	return model.ToolResult{Success: false, Error: err.Error()}
}
