package audit

import (
	"strings"
	"testing"

	"github.com/ppiankov/toolgate/internal/model"
)

func TestFormatTableRendersEntriesAndSummary(t *testing.T) {
	entries := []Entry{
		{
			Tool:          "wallet_transfer",
			Tier:          model.TierCritical,
			EffectiveTier: model.TierCritical,
			SecurityLevel: model.LevelSign,
			User:          "u1",
			CreatedAt:     "2026-03-10T08:15:00.000Z",
			Result:        ResultDenied,
			Reason:        "declined by user",
			AmountUSD:     amt(42.5),
		},
		{
			Tool:      "echo",
			User:      "u1",
			CreatedAt: "2026-03-10T08:16:00.000Z",
			Result:    ResultSuccess,
		},
	}

	out := FormatTable(entries)
	for _, want := range []string{"DENIED", "SUCCESS", "wallet_transfer", "declined by user", "$42.50", "Summary: 1 success, 1 denied"} {
		if !strings.Contains(out, want) {
			t.Errorf("table output missing %q:\n%s", want, out)
		}
	}
}

func TestFormatTableEmpty(t *testing.T) {
	if out := FormatTable(nil); !strings.Contains(out, "No audit entries") {
		t.Errorf("empty table output = %q", out)
	}
}

func TestFormatTableTruncatesLongValues(t *testing.T) {
	entries := []Entry{{
		Tool:      "a_very_long_tool_name_that_exceeds_the_column",
		User:      "u1",
		CreatedAt: "2026-03-10T08:15:00.000Z",
		Result:    ResultSuccess,
	}}
	if out := FormatTable(entries); !strings.Contains(out, "...") {
		t.Errorf("long tool name should be truncated:\n%s", out)
	}
}
