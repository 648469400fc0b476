package sim

import (
	"context"
	"fmt"

	"github.com/ppiankov/toolgate/internal/audit"
	"github.com/ppiankov/toolgate/internal/config"
	"github.com/ppiankov/toolgate/internal/model"
	"github.com/ppiankov/toolgate/internal/policy"
)

// Simulate replays the ledger against a candidate config file and
// reports every call the new policy would have decided differently.
func Simulate(ctx context.Context, store audit.Store, candidatePath string) (*Result, error) {
	cfg, err := config.Load(candidatePath)
	if err != nil {
		return nil, fmt.Errorf("load candidate config: %w", err)
	}

	entries, err := store.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}

	result := Replay(entries, cfg)
	result.CandidatePath = candidatePath
	return result, nil
}

// Replay runs recorded calls through a candidate policy. History stays
// as recorded: the running spend and denial counters feeding each
// decision come from what actually happened, not from the hypothetical
// outcomes, so each diff answers "what would this call have gotten"
// in isolation.
func Replay(entries []audit.Entry, cfg *config.Config) *Result {
	eng := policy.NewEngine(cfg)
	result := &Result{}
	state := make(map[string]*userState)

	for _, e := range entries {
		old := outcomeOf(e.Result)
		if old == "" {
			result.Unsettled++
			continue
		}
		result.TotalCalls++

		st := state[e.User]
		if st == nil {
			st = &userState{}
			state[e.User] = st
		}
		st.rollDay(day(e.CreatedAt))

		outcome, reason, dec := decide(eng, e, st)
		if outcome != old {
			result.Changes = append(result.Changes, DiffEntry{
				Timestamp:  e.CreatedAt,
				EntryID:    e.ID,
				Tool:       e.Tool,
				User:       e.User,
				OldOutcome: old,
				NewOutcome: outcome,
				OldReason:  e.Reason,
				NewReason:  reason,
				OldTier:    e.EffectiveTier.String(),
				NewTier:    dec.EffectiveTier.String(),
			})
			result.ChangedCalls++
			if isPermissive(old) && !isPermissive(outcome) {
				result.NewlyBlocked++
			}
			if !isPermissive(old) && isPermissive(outcome) {
				result.NewlyAllowed++
			}
		}

		// Counters observe earlier entries only, mirroring the live
		// pipeline's pre-log ordering.
		st.record(e)
	}

	return result
}

// decide reruns one recorded call under the candidate policy, in the
// live pipeline's order: allowed-users first, then the escalation
// ladder. Cooldowns are timing-bound and are not replayed.
func decide(eng *policy.Engine, e audit.Entry, st *userState) (string, string, model.Decision) {
	pol := eng.Resolve(e.Tool)
	if !pol.AllowedUsers.Permits(e.User, e.SecurityLevel) {
		return "deny", "not-in-allowedUsers", model.Decision{
			Action:        model.ActionDeny,
			Tier:          pol.Tier,
			EffectiveTier: pol.EffectiveTier,
		}
	}

	dec := policy.Decide(pol, model.EscalationContext{
		AmountUSD:          e.AmountUSD,
		DailySpentUSD:      st.spent,
		ConsecutiveDenials: st.denials,
		Thresholds:         eng.Thresholds(),
	})
	return string(dec.Action), dec.Reason, dec
}

// userState is the running history one user accumulates during replay.
type userState struct {
	day     string
	spent   float64
	denials int
}

// rollDay resets the daily spend counter when the ledger crosses UTC
// midnight, matching the live query's day boundary.
func (st *userState) rollDay(d string) {
	if d != st.day {
		st.day = d
		st.spent = 0
	}
}

// record folds one recorded outcome into the running counters.
func (st *userState) record(e audit.Entry) {
	switch e.Result {
	case audit.ResultSuccess:
		if e.AmountUSD != nil {
			st.spent += *e.AmountUSD
		}
		st.denials = 0
	case audit.ResultDenied:
		st.denials++
	default:
		st.denials = 0
	}
}

// day extracts the UTC date from a ledger timestamp.
func day(ts string) string {
	if len(ts) < 10 {
		return ts
	}
	return ts[:10]
}

// outcomeOf maps a recorded result back to the decision that produced
// it. Success and error both mean the call was allowed to run; pending
// entries never settled and cannot be compared.
func outcomeOf(r audit.Result) string {
	switch r {
	case audit.ResultSuccess, audit.ResultError:
		return "allow"
	case audit.ResultDenied:
		return "deny"
	case audit.ResultEscalated:
		return "escalate"
	default:
		return ""
	}
}
