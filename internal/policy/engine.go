package policy

import (
	"strings"

	"github.com/ppiankov/toolgate/internal/config"
	"github.com/ppiankov/toolgate/internal/model"
)

// Engine resolves per-tool policies from the ordered rule list.
type Engine struct {
	rules      []compiledRule
	thresholds model.Thresholds
}

type compiledRule struct {
	pattern string
	policy  model.Policy
}

// NewEngine compiles the configured rules. Rules keep their file order;
// Resolve applies them first match wins.
func NewEngine(cfg *config.Config) *Engine {
	e := &Engine{thresholds: cfg.Thresholds.Model()}
	for _, r := range cfg.Policies {
		tier := model.ParseTier(r.Tier)
		eff := tier
		if r.EffectiveTier != "" {
			eff = model.ParseTier(r.EffectiveTier)
		}
		e.rules = append(e.rules, compiledRule{
			pattern: r.Tool,
			policy: model.Policy{
				Pattern:       r.Tool,
				Action:        model.ParseAction(r.Action),
				Tier:          tier,
				EffectiveTier: eff,
				Cooldown:      r.Cooldown.Model(),
				AllowedUsers:  r.AllowedUsers.Model(),
			},
		})
	}
	return e
}

// DefaultPolicy is what unknown tools resolve to: tier none, no cooldown,
// unrestricted users. Unknown tools are treated as read-only plumbing;
// anything sensitive must be enumerated in the policy file.
func DefaultPolicy() model.Policy {
	return model.Policy{
		Tier:          model.TierNone,
		EffectiveTier: model.TierNone,
		AllowedUsers:  model.AnyUsers(),
	}
}

// Resolve returns the policy for a tool name. First matching rule wins;
// no match returns DefaultPolicy.
func (e *Engine) Resolve(tool string) model.Policy {
	for _, r := range e.rules {
		if matchTool(r.pattern, tool) {
			return r.policy
		}
	}
	return DefaultPolicy()
}

// Thresholds returns the compiled global ceilings.
func (e *Engine) Thresholds() model.Thresholds {
	return e.thresholds
}

// Rules returns the compiled policies in evaluation order.
func (e *Engine) Rules() []model.Policy {
	out := make([]model.Policy, 0, len(e.rules))
	for _, r := range e.rules {
		out = append(out, r.policy)
	}
	return out
}

// matchTool checks a rule pattern against a tool name.
// *x* for contains, *suffix for suffix, prefix* for prefix, exact otherwise.
// Matching is case-insensitive.
func matchTool(pattern, tool string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}

	lowerTool := strings.ToLower(tool)
	lowerPattern := strings.ToLower(pattern)

	// *x*: contains
	if strings.HasPrefix(lowerPattern, "*") && strings.HasSuffix(lowerPattern, "*") && len(lowerPattern) > 1 {
		inner := lowerPattern[1 : len(lowerPattern)-1]
		return strings.Contains(lowerTool, inner)
	}

	// *suffix: suffix
	if strings.HasPrefix(lowerPattern, "*") {
		return strings.HasSuffix(lowerTool, lowerPattern[1:])
	}

	// prefix*: prefix
	if strings.HasSuffix(lowerPattern, "*") {
		return strings.HasPrefix(lowerTool, lowerPattern[:len(lowerPattern)-1])
	}

	// Exact match
	return lowerTool == lowerPattern
}
