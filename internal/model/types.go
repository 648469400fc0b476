package model

import (
	"strings"
	"time"
)

// SecurityLevel classifies how dangerous a tool is to run.
type SecurityLevel string

const (
	LevelRead  SecurityLevel = "read"
	LevelWrite SecurityLevel = "write"
	LevelSign  SecurityLevel = "sign"
)

// LevelRank maps security levels to comparable integers.
var LevelRank = map[SecurityLevel]int{
	LevelRead:  0,
	LevelWrite: 1,
	LevelSign:  2,
}

// AboveRead reports whether the level requires write gating.
func (l SecurityLevel) AboveRead() bool {
	return LevelRank[l] > LevelRank[LevelRead]
}

// Tier ranks how much scrutiny a tool's spending gets.
type Tier int

const (
	TierNone Tier = iota
	TierLow
	TierGuarded
	TierCritical
)

// String returns the tier's configuration name.
func (t Tier) String() string {
	switch t {
	case TierNone:
		return "none"
	case TierLow:
		return "low"
	case TierGuarded:
		return "guarded"
	case TierCritical:
		return "critical"
	}
	return "critical"
}

// ParseTier maps a configuration string to a tier.
// Unknown strings fail closed to TierCritical.
func ParseTier(s string) Tier {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return TierNone
	case "low":
		return TierLow
	case "guarded":
		return TierGuarded
	case "critical":
		return TierCritical
	default:
		return TierCritical
	}
}

// ToolCall is one tool invocation requested by an agent.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// CallContext carries the ambient identity of a call. User is the stable
// actor identity; SessionKey rotates and must never key spend or denial
// history.
type CallContext struct {
	User       string `json:"user"`
	Channel    string `json:"channel"`
	SessionKey string `json:"session_key,omitempty"`
	Workspace  string `json:"workspace,omitempty"`
}

// ToolResult is what the executor returns upstream for every call,
// successful or not.
type ToolResult struct {
	Success bool   `json:"success"`
	Output  string `json:"output,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Ref     string `json:"ref,omitempty"`
}

// DecisionAction is the policy decision outcome.
type DecisionAction string

const (
	ActionAllow    DecisionAction = "allow"
	ActionDeny     DecisionAction = "deny"
	ActionConfirm  DecisionAction = "confirm"
	ActionEscalate DecisionAction = "escalate"
)

// ParseAction maps a configuration string to a forced decision action.
// Empty means no forced action; unknown strings fail closed to deny.
func ParseAction(s string) DecisionAction {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return ""
	case "allow":
		return ActionAllow
	case "deny":
		return ActionDeny
	case "confirm":
		return ActionConfirm
	case "escalate":
		return ActionEscalate
	default:
		return ActionDeny
	}
}

// Decision is the output of policy evaluation for one call.
type Decision struct {
	Action        DecisionAction `json:"action"`
	Tier          Tier           `json:"tier"`
	EffectiveTier Tier           `json:"effective_tier"`
	Reason        string         `json:"reason,omitempty"`
}

// AllowedUsersKind discriminates the allowed-users variants.
type AllowedUsersKind string

const (
	UsersAny          AllowedUsersKind = "any"
	UsersList         AllowedUsersKind = "list"
	UsersAssigneeOnly AllowedUsersKind = "assignee-only"
)

// AllowedUsers restricts which actors may invoke a tool. The zero value
// is unrestricted.
type AllowedUsers struct {
	Kind  AllowedUsersKind `json:"kind"`
	Users []string         `json:"users,omitempty"`
}

// AnyUsers returns the unrestricted variant.
func AnyUsers() AllowedUsers {
	return AllowedUsers{Kind: UsersAny}
}

// UserList returns the explicit-list variant.
func UserList(users ...string) AllowedUsers {
	return AllowedUsers{Kind: UsersList, Users: users}
}

// AssigneeOnly returns the assignee-only variant.
func AssigneeOnly() AllowedUsers {
	return AllowedUsers{Kind: UsersAssigneeOnly}
}

// Permits reports whether user may invoke a tool at the given level.
// assignee-only has no assignee resolver yet: it denies everything above
// read and allows all reads.
func (au AllowedUsers) Permits(user string, level SecurityLevel) bool {
	switch au.Kind {
	case UsersList:
		for _, u := range au.Users {
			if u == user {
				return true
			}
		}
		return false
	case UsersAssigneeOnly:
		return !level.AboveRead()
	default:
		return true
	}
}

// CooldownRule bounds how often a tool may run.
type CooldownRule struct {
	Window   time.Duration `json:"window"`
	MaxCount int           `json:"max_count"`
}

// Enabled reports whether the rule actually throttles anything.
func (c CooldownRule) Enabled() bool {
	return c.Window > 0 && c.MaxCount > 0
}

// Policy is the resolved per-tool policy after pattern matching.
// EffectiveTier selects the spend threshold row and defaults to Tier.
type Policy struct {
	Pattern       string         `json:"pattern"`
	Action        DecisionAction `json:"action,omitempty"`
	Tier          Tier           `json:"tier"`
	EffectiveTier Tier           `json:"effective_tier"`
	Cooldown      CooldownRule   `json:"cooldown"`
	AllowedUsers  AllowedUsers   `json:"allowed_users"`
}

// Thresholds are the global spend and denial ceilings.
type Thresholds struct {
	PerTierUSD               map[Tier]float64 `json:"per_tier_usd"`
	DailyUSD                 float64          `json:"daily_usd"`
	ConsecutiveDenialCeiling int              `json:"consecutive_denial_ceiling"`
}

// TierCeiling returns the per-call spend ceiling for a tier. ok is false
// when the tier has no configured ceiling, meaning no per-call limit.
func (t Thresholds) TierCeiling(tier Tier) (float64, bool) {
	c, ok := t.PerTierUSD[tier]
	if !ok || c <= 0 {
		return 0, false
	}
	return c, true
}

// EscalationContext is the spend and denial history a decision considers.
type EscalationContext struct {
	AmountUSD          *float64   `json:"amount_usd,omitempty"`
	Thresholds         Thresholds `json:"thresholds"`
	DailySpentUSD      float64    `json:"daily_spent_usd"`
	ConsecutiveDenials int        `json:"consecutive_denials"`
}

// GateVerdict is the write gate's answer for one call.
type GateVerdict struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// CooldownVerdict is the cooldown tracker's answer for one call.
type CooldownVerdict struct {
	Allowed    bool
	Reason     string
	RetryAfter time.Duration
}
