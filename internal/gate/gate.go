package gate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/toolgate/internal/approval"
	"github.com/ppiankov/toolgate/internal/model"
)

// Verdict reasons the executor and ledger report verbatim.
const (
	ReasonDisabled     = "write gate disabled"
	ReasonStanding     = "standing approval"
	ReasonConfirmed    = "confirmed by user"
	ReasonDeclined     = "declined by user"
	ReasonChannelError = "confirmation channel error"

	timeoutPrefix = "confirmation timed out after "
)

// IsTimeout reports whether a verdict reason names a confirmation timeout.
func IsTimeout(reason string) bool {
	return strings.HasPrefix(reason, timeoutPrefix)
}

// Gate holds every call above the read level until a human says yes.
type Gate struct {
	enabled   bool
	timeout   time.Duration
	channel   ConfirmationChannel
	approvals *approval.Store
	logger    *zap.Logger
}

// NewGate builds a gate. The approval store is optional; without one the
// standing-approval fast path is skipped. A nil channel is tolerated at
// construction so a disabled gate needs no wiring, but Check fails
// closed on it.
func NewGate(enabled bool, timeout time.Duration, channel ConfirmationChannel, approvals *approval.Store, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		enabled:   enabled,
		timeout:   timeout,
		channel:   channel,
		approvals: approvals,
		logger:    logger,
	}
}

// Enabled reports whether the gate guards calls at all.
func (g *Gate) Enabled() bool {
	return g.enabled
}

// Check solicits a yes/no for one call. A non-nil error means the gate
// is not wired well enough to ask anyone; the caller must treat that as
// a deny. A nil error with Allowed=false is an answered no: either a
// human declined or the question expired.
func (g *Gate) Check(ctx context.Context, call model.ToolCall, cctx model.CallContext) (model.GateVerdict, error) {
	if !g.enabled {
		return model.GateVerdict{Allowed: true, Reason: ReasonDisabled}, nil
	}
	if g.channel == nil {
		return model.GateVerdict{}, errors.New("write gate: no confirmation channel configured")
	}
	if cctx.Channel == "" {
		return model.GateVerdict{}, errors.New("write gate: call context has no channel")
	}
	if cctx.Workspace == "" {
		return model.GateVerdict{}, errors.New("write gate: call context has no workspace")
	}

	key := approval.KeyFor(cctx.User, call.Name)

	if g.approvals != nil && g.standing(key) {
		return model.GateVerdict{Allowed: true, Reason: ReasonStanding}, nil
	}

	cctxTimeout, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	yes, err := g.channel.Confirm(cctxTimeout, key, Prompt(call, cctx))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return model.GateVerdict{
				Allowed: false,
				Reason:  timeoutPrefix + g.timeout.String(),
			}, nil
		}
		g.logger.Warn("confirmation channel failed, denying",
			zap.String("tool", call.Name),
			zap.String("user", cctx.User),
			zap.Error(err))
		return model.GateVerdict{Allowed: false, Reason: ReasonChannelError}, nil
	}
	if !yes {
		return model.GateVerdict{Allowed: false, Reason: ReasonDeclined}, nil
	}
	return model.GateVerdict{Allowed: true, Reason: ReasonConfirmed}, nil
}

// standing consumes a pre-approved grant if one is valid right now.
func (g *Gate) standing(key string) bool {
	status, err := g.approvals.Check(key)
	if err != nil || status != approval.StatusApproved {
		return false
	}

	one, err := g.approvals.OneTime(key)
	if err != nil {
		return false
	}
	if one {
		if err := g.approvals.Consume(key); err != nil {
			// Lost the race for a one-time grant; ask properly.
			return false
		}
	}
	return true
}

// Prompt renders the yes/no question for a call.
func Prompt(call model.ToolCall, cctx model.CallContext) string {
	if len(call.Arguments) == 0 {
		return fmt.Sprintf("%s wants to run %s. Approve?", cctx.User, call.Name)
	}
	args, err := json.Marshal(call.Arguments)
	if err != nil {
		return fmt.Sprintf("%s wants to run %s. Approve?", cctx.User, call.Name)
	}
	return fmt.Sprintf("%s wants to run %s with %s. Approve?", cctx.User, call.Name, args)
}
