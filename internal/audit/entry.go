package audit

import (
	"time"

	"github.com/ppiankov/toolgate/internal/model"
)

// TimestampFormat is the fixed-width UTC layout for ledger timestamps.
// Fixed width keeps lexicographic order equal to chronological order, so
// both backends can range-scan on the stored string.
const TimestampFormat = "2006-01-02T15:04:05.000Z"

// Now returns the current time formatted for the ledger.
func Now() string {
	return time.Now().UTC().Format(TimestampFormat)
}

// Result is the lifecycle state of an audit entry.
type Result string

const (
	ResultPending   Result = "pending"
	ResultSuccess   Result = "success"
	ResultError     Result = "error"
	ResultDenied    Result = "denied"
	ResultEscalated Result = "escalated"
)

// Terminal reports whether the result is a final state.
func (r Result) Terminal() bool {
	switch r {
	case ResultSuccess, ResultError, ResultDenied, ResultEscalated:
		return true
	}
	return false
}

// Entry is one row in the audit ledger.
//
// Everything up to CreatedAt is the immutable pre-log core covered by the
// hash chain. Finalize mutates only the result fields below it; the
// update-once model keeps the chain verifiable after finalization.
type Entry struct {
	ID            string              `json:"id"`
	Tool          string              `json:"tool"`
	Tier          model.Tier          `json:"tier"`
	EffectiveTier model.Tier          `json:"effective_tier"`
	SecurityLevel model.SecurityLevel `json:"security_level"`
	User          string              `json:"user"`
	Channel       string              `json:"channel,omitempty"`
	SessionKey    string              `json:"session_key,omitempty"`
	Params        string              `json:"params"`
	AmountUSD     *float64            `json:"amount_usd,omitempty"`
	PolicyHash    string              `json:"policy_hash,omitempty"`
	PrevHash      string              `json:"prev_hash"`
	EntryHash     string              `json:"entry_hash"`
	CreatedAt     string              `json:"created_at"`

	Result      Result `json:"result"`
	Reason      string `json:"reason,omitempty"`
	DurationMs  *int64 `json:"duration_ms,omitempty"`
	Ref         string `json:"ref,omitempty"`
	FinalizedAt string `json:"finalized_at,omitempty"`
}

// Finalization carries the optional completion metadata recorded alongside
// a terminal result.
type Finalization struct {
	DurationMs *int64
	Ref        string
}
