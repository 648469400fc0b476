package escalate

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/toolgate/internal/audit"
	"github.com/ppiankov/toolgate/internal/model"
)

// Builder assembles the spend and denial history a policy decision needs.
type Builder struct {
	queries    *audit.Queries
	thresholds func() model.Thresholds
	logger     *zap.Logger
	now        func() time.Time
}

// NewBuilder wires the ledger read path and a thresholds source. The
// source is a func so config reloads take effect without rebuilding.
func NewBuilder(q *audit.Queries, thresholds func() model.Thresholds, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		queries:    q,
		thresholds: thresholds,
		logger:     logger,
		now:        time.Now,
	}
}

// Build returns the escalation context for one call, keyed by the stable
// actor identity, never the session key: sessions rotate while spend
// ceilings must not.
//
// A ledger read failure degrades to zero spend and zero denials with a
// warning. The pre-log write remains the blocking check, so a read
// outage does not take every tool down with it.
func (b *Builder) Build(ctx context.Context, user string, args map[string]any) model.EscalationContext {
	ec := model.EscalationContext{
		AmountUSD:  AmountFromArgs(args),
		Thresholds: b.thresholds(),
	}

	spent, err := b.queries.DailySpentUSD(ctx, user, b.now())
	if err != nil {
		b.logger.Warn("escalation context read failed, using zero spend",
			zap.String("user", user), zap.Error(err))
	} else {
		ec.DailySpentUSD = spent
	}

	denials, err := b.queries.ConsecutiveDenials(ctx, user)
	if err != nil {
		b.logger.Warn("escalation context read failed, using zero denials",
			zap.String("user", user), zap.Error(err))
	} else {
		ec.ConsecutiveDenials = denials
	}

	return ec
}

// AmountFromArgs extracts the call's USD amount from its arguments.
// amount_usd is preferred, amountUsd accepted; numeric strings are
// coerced. Anything else means no amount.
func AmountFromArgs(args map[string]any) *float64 {
	for _, key := range []string{"amount_usd", "amountUsd"} {
		if v, ok := args[key]; ok {
			if f, ok := toFloat(v); ok {
				return &f
			}
		}
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
