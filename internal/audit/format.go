package audit

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const separator = "──────────────────────────────────────────────────────────────────"

// FormatTable renders ledger entries as a human-readable text table with
// a per-result summary footer.
func FormatTable(entries []Entry) string {
	if len(entries) == 0 {
		return "No audit entries.\n"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("%-9s %-10s %-9s %-18s %-12s %s\n",
		"TIME", "RESULT", "TIER", "TOOL", "USER", "REASON"))
	b.WriteString(separator + "\n")

	counts := map[Result]int{}
	for _, e := range entries {
		counts[e.Result]++
		amount := ""
		if e.AmountUSD != nil {
			amount = fmt.Sprintf(" ($%.2f)", *e.AmountUSD)
		}
		b.WriteString(fmt.Sprintf("%-9s %-10s %-9s %-18s %-12s %s%s\n",
			formatTimeOnly(e.CreatedAt),
			strings.ToUpper(string(e.Result)),
			e.Tier.String(),
			truncate(e.Tool, 18),
			truncate(e.User, 12),
			truncate(e.Reason, 40),
			amount,
		))
	}

	b.WriteString(separator + "\n")
	b.WriteString(formatSummary(counts))
	return b.String()
}

// FormatJSON renders entries as indented JSON.
func FormatJSON(entries []Entry) (string, error) {
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return "", fmt.Errorf("audit: marshal entries: %w", err)
	}
	return string(data), nil
}

func formatSummary(counts map[Result]int) string {
	order := []Result{ResultSuccess, ResultDenied, ResultEscalated, ResultError, ResultPending}
	parts := []string{}
	for _, r := range order {
		if counts[r] > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", counts[r], r))
		}
	}
	return fmt.Sprintf("Summary: %s\n", strings.Join(parts, ", "))
}

func formatTimeOnly(ts string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format("15:04:05")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
