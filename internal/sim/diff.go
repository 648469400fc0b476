package sim

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DiffEntry is one recorded call whose decision changed under the
// candidate policy.
type DiffEntry struct {
	Timestamp  string `json:"ts"`
	EntryID    string `json:"entry_id"`
	Tool       string `json:"tool"`
	User       string `json:"user"`
	OldOutcome string `json:"old_outcome"`
	NewOutcome string `json:"new_outcome"`
	OldReason  string `json:"old_reason,omitempty"`
	NewReason  string `json:"new_reason,omitempty"`
	OldTier    string `json:"old_tier"`
	NewTier    string `json:"new_tier"`
}

// Result holds the complete simulation output.
type Result struct {
	CandidatePath string      `json:"candidate_path,omitempty"`
	TotalCalls    int         `json:"total_calls"`
	Unsettled     int         `json:"unsettled,omitempty"`
	ChangedCalls  int         `json:"changed_calls"`
	NewlyBlocked  int         `json:"newly_blocked"`
	NewlyAllowed  int         `json:"newly_allowed"`
	Changes       []DiffEntry `json:"changes"`
}

// isPermissive returns true for outcomes that let the tool run.
func isPermissive(outcome string) bool {
	return outcome == "allow"
}

// FormatText renders the simulation result as human-readable text.
func FormatText(r *Result) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Simulating %s against %d recorded calls...\n", r.CandidatePath, r.TotalCalls)

	if len(r.Changes) == 0 {
		b.WriteString("\nNo changes detected.\n")
		return b.String()
	}

	b.WriteString("\n")
	for _, d := range r.Changes {
		ts := d.Timestamp
		if len(ts) >= 19 {
			// Extract HH:MM:SS from timestamp
			ts = ts[11:19]
		}
		fmt.Fprintf(&b, "  CHANGED  %s  %-18s %-12s %s → %s\n",
			ts, d.Tool, d.User, d.OldOutcome, d.NewOutcome)
	}

	fmt.Fprintf(&b, "\n%d of %d calls changed.", r.ChangedCalls, r.TotalCalls)
	if r.NewlyBlocked > 0 || r.NewlyAllowed > 0 {
		fmt.Fprintf(&b, " %d newly blocked, %d newly allowed.", r.NewlyBlocked, r.NewlyAllowed)
	}
	b.WriteString("\n")

	return b.String()
}

// FormatJSON renders the simulation result as JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal sim result: %w", err)
	}
	return string(data), nil
}
