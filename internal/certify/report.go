package certify

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatText renders a certification result as human-readable text.
func FormatText(r *Result) string {
	var b strings.Builder

	header := fmt.Sprintf("Certification: %s v%s", r.Suite, r.Version)
	fmt.Fprintln(&b, header)
	fmt.Fprintln(&b, strings.Repeat("═", len(header)))

	for _, cat := range r.Categories {
		status := "PASS"
		if cat.Failed > 0 {
			status = "FAIL"
		}
		fmt.Fprintf(&b, "  %-30s %d/%-4d %s\n", cat.Name, cat.Passed, cat.Total, status)

		if cat.Failed > 0 {
			for _, c := range cat.Cases {
				if !c.Passed {
					fmt.Fprintf(&b, "    FAIL  case %d: %s (%s)\n", c.Index, c.Name, c.Tool)
					for _, f := range c.Failures {
						fmt.Fprintf(&b, "          %s\n", f)
					}
				}
			}
		}
	}

	fmt.Fprintln(&b, strings.Repeat("─", len(header)))

	status := "PASS"
	if r.Failed > 0 {
		status = "FAIL"
	}
	fmt.Fprintf(&b, "Result: %s (%d/%d)\n", status, r.Passed, r.Total)

	return b.String()
}

// FormatJSON renders a certification result as JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal cert result: %w", err)
	}
	return string(data), nil
}
