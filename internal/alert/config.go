package alert

// AlertConfig defines a webhook alert destination.
type AlertConfig struct {
	URL     string            `yaml:"url"     json:"url"`
	Format  string            `yaml:"format"  json:"format"` // "generic", "slack", "pagerduty"
	Events  []string          `yaml:"events"  json:"events"` // ["denied", "escalated", "error"]
	Headers map[string]string `yaml:"headers" json:"headers"`
}

// AlertEvent is the payload sent to webhook endpoints.
type AlertEvent struct {
	Timestamp  string `json:"timestamp"`
	EntryID    string `json:"entry_id"`
	Tool       string `json:"tool"`
	User       string `json:"user"`
	Channel    string `json:"channel"`
	Result     string `json:"result"`
	Reason     string `json:"reason"`
	Tier       int    `json:"tier"`
	PolicyHash string `json:"policy_hash"`
}
