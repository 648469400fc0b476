package policy

import (
	"fmt"

	"github.com/ppiankov/toolgate/internal/model"
)

// Decide produces the decision for one call from its resolved policy and
// escalation context. Evaluation order is fixed:
//
//  1. Forced rule action (deny/confirm/escalate) short-circuits. A forced
//     allow still passes through the spend checks.
//  2. Tier none allows unconditionally.
//  3. amount_usd at or above the effective tier's ceiling escalates.
//  4. Daily spend (including this call's amount) at or above the daily
//     ceiling escalates.
//  5. Consecutive denials at or above the ceiling denies.
//
// Escalations carry an explanatory reason naming the amount and the
// ceiling; downstream they always resolve to denial with that reason
// preserved, because no human escalation workflow exists yet.
func Decide(pol model.Policy, ec model.EscalationContext) model.Decision {
	d := model.Decision{
		Action:        model.ActionAllow,
		Tier:          pol.Tier,
		EffectiveTier: pol.EffectiveTier,
	}

	if pol.Action != "" && pol.Action != model.ActionAllow {
		d.Action = pol.Action
		d.Reason = fmt.Sprintf("policy rule %q forces %s", pol.Pattern, pol.Action)
		return d
	}

	if pol.Tier == model.TierNone {
		return d
	}

	if ec.AmountUSD != nil {
		if ceiling, ok := ec.Thresholds.TierCeiling(pol.EffectiveTier); ok && *ec.AmountUSD >= ceiling {
			d.Action = model.ActionEscalate
			d.Reason = fmt.Sprintf("amount $%.2f reaches the %s tier ceiling $%.2f",
				*ec.AmountUSD, pol.EffectiveTier, ceiling)
			return d
		}
	}

	if ec.Thresholds.DailyUSD > 0 {
		projected := ec.DailySpentUSD
		if ec.AmountUSD != nil {
			projected += *ec.AmountUSD
		}
		if projected >= ec.Thresholds.DailyUSD {
			d.Action = model.ActionEscalate
			d.Reason = fmt.Sprintf("daily spend $%.2f reaches the daily ceiling $%.2f",
				projected, ec.Thresholds.DailyUSD)
			return d
		}
	}

	if ec.Thresholds.ConsecutiveDenialCeiling > 0 && ec.ConsecutiveDenials >= ec.Thresholds.ConsecutiveDenialCeiling {
		d.Action = model.ActionDeny
		d.Reason = "too many consecutive denials"
		return d
	}

	return d
}
