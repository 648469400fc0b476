package model

import (
	"testing"
	"time"
)

func TestParseTierKnownNames(t *testing.T) {
	cases := map[string]Tier{
		"":         TierNone,
		"none":     TierNone,
		"low":      TierLow,
		"guarded":  TierGuarded,
		"critical": TierCritical,
		"  LOW  ":  TierLow,
	}
	for in, want := range cases {
		if got := ParseTier(in); got != want {
			t.Errorf("ParseTier(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestParseTierUnknownFailsClosed(t *testing.T) {
	if got := ParseTier("elevted"); got != TierCritical {
		t.Errorf("unknown tier parsed to %v, want TierCritical", got)
	}
}

func TestParseActionUnknownFailsClosedToDeny(t *testing.T) {
	if got := ParseAction("alow"); got != ActionDeny {
		t.Errorf("unknown action parsed to %q, want deny", got)
	}
	if got := ParseAction(""); got != DecisionAction("") {
		t.Errorf("empty action parsed to %q, want empty", got)
	}
}

func TestAllowedUsersZeroValuePermitsEveryone(t *testing.T) {
	var au AllowedUsers
	if !au.Permits("anyone", LevelSign) {
		t.Fatal("zero-value AllowedUsers should permit every user")
	}
}

func TestUserListPermitsOnlyMembers(t *testing.T) {
	au := UserList("u1", "u3")
	if !au.Permits("u1", LevelSign) {
		t.Error("member u1 should be permitted")
	}
	if au.Permits("u2", LevelRead) {
		t.Error("non-member u2 should be rejected even for reads")
	}
}

func TestAssigneeOnlyDeniesAboveRead(t *testing.T) {
	au := AssigneeOnly()
	if !au.Permits("u1", LevelRead) {
		t.Error("assignee-only should permit read-level calls")
	}
	if au.Permits("u1", LevelWrite) {
		t.Error("assignee-only should deny write-level calls")
	}
	if au.Permits("u1", LevelSign) {
		t.Error("assignee-only should deny sign-level calls")
	}
}

func TestTierCeilingMissingTierMeansNoLimit(t *testing.T) {
	th := Thresholds{PerTierUSD: map[Tier]float64{TierCritical: 1000}}
	if _, ok := th.TierCeiling(TierLow); ok {
		t.Error("tier without a configured ceiling should report no limit")
	}
	c, ok := th.TierCeiling(TierCritical)
	if !ok || c != 1000 {
		t.Errorf("TierCeiling(critical) = %v, %v; want 1000, true", c, ok)
	}
}

func TestCooldownRuleEnabled(t *testing.T) {
	if (CooldownRule{}).Enabled() {
		t.Error("zero rule should be disabled")
	}
	if (CooldownRule{Window: time.Minute}).Enabled() {
		t.Error("rule without max count should be disabled")
	}
	if !(CooldownRule{Window: time.Minute, MaxCount: 1}).Enabled() {
		t.Error("window + max count should enable the rule")
	}
}

func TestSecurityLevelAboveRead(t *testing.T) {
	if LevelRead.AboveRead() {
		t.Error("read is not above read")
	}
	if !LevelWrite.AboveRead() || !LevelSign.AboveRead() {
		t.Error("write and sign are above read")
	}
}
