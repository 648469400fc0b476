package alert

import (
	"encoding/json"
	"fmt"
)

// FormatPayload builds the webhook body for the given format.
func FormatPayload(format string, event AlertEvent) ([]byte, error) {
	switch format {
	case "slack":
		return formatSlack(event)
	case "pagerduty":
		return formatPagerDuty(event)
	default:
		return formatGeneric(event)
	}
}

func formatGeneric(event AlertEvent) ([]byte, error) {
	return json.Marshal(event)
}

func formatSlack(event AlertEvent) ([]byte, error) {
	tierLabel := tierLabelFor(event.Tier)

	payload := map[string]any{
		"blocks": []any{
			map[string]any{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": fmt.Sprintf("toolgate: %s", event.Result),
				},
			},
			map[string]any{
				"type": "section",
				"fields": []any{
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Tool:* %s", event.Tool)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*User:* %s", event.User)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Tier:* %d (%s)", event.Tier, tierLabel)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Reason:* %s", event.Reason)},
				},
			},
		},
	}
	return json.Marshal(payload)
}

func formatPagerDuty(event AlertEvent) ([]byte, error) {
	severity := "info"
	switch {
	case event.Tier >= 3:
		severity = "critical"
	case event.Tier >= 2:
		severity = "error"
	case event.Tier >= 1:
		severity = "warning"
	}

	payload := map[string]any{
		"event_action": "trigger",
		"payload": map[string]any{
			"summary":  fmt.Sprintf("toolgate %s: %s by %s", event.Result, event.Tool, event.User),
			"severity": severity,
			"source":   "toolgate",
			"custom_details": map[string]any{
				"tool":     event.Tool,
				"user":     event.User,
				"channel":  event.Channel,
				"tier":     event.Tier,
				"reason":   event.Reason,
				"entry_id": event.EntryID,
			},
		},
	}
	return json.Marshal(payload)
}

func tierLabelFor(tier int) string {
	switch tier {
	case 0:
		return "none"
	case 1:
		return "low"
	case 2:
		return "guarded"
	case 3:
		return "critical"
	default:
		return "unknown"
	}
}
