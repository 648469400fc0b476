package cooldown

import (
	"fmt"
	"sync"
	"time"

	"github.com/ppiankov/toolgate/internal/model"
)

// Tracker enforces per-tool sliding-window cooldowns. State lives in
// memory only and a restart clears it: cooldowns throttle, the ledger
// audits.
type Tracker struct {
	mu   sync.Mutex
	hist map[string][]time.Time
	now  func() time.Time
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		hist: make(map[string][]time.Time),
		now:  time.Now,
	}
}

// Check reports whether a call to the tool may proceed under the rule.
// Check does not count the call; Record does, and only after the tool
// succeeded. Both share one mutex so the read-modify-write on a tool's
// window is never interleaved.
func (t *Tracker) Check(tool string, rule model.CooldownRule) model.CooldownVerdict {
	if !rule.Enabled() {
		return model.CooldownVerdict{Allowed: true}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	recent := t.prune(tool, rule.Window, now)
	if len(recent) < rule.MaxCount {
		return model.CooldownVerdict{Allowed: true}
	}

	// A slot frees when enough of the oldest calls leave the window.
	oldest := recent[len(recent)-rule.MaxCount]
	retry := oldest.Add(rule.Window).Sub(now)
	if retry < 0 {
		retry = 0
	}
	return model.CooldownVerdict{
		Allowed:    false,
		RetryAfter: retry,
		Reason: fmt.Sprintf("cooldown active: %d/%d calls in %s window, retry in %s",
			len(recent), rule.MaxCount, rule.Window, retry.Round(time.Second)),
	}
}

// Record counts a successful call against the tool's window.
func (t *Tracker) Record(tool string, rule model.CooldownRule) {
	if !rule.Enabled() {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.prune(tool, rule.Window, now)
	t.hist[tool] = append(t.hist[tool], now)
}

// prune drops timestamps older than the window. Caller holds the mutex.
func (t *Tracker) prune(tool string, window time.Duration, now time.Time) []time.Time {
	kept := t.hist[tool][:0]
	for _, ts := range t.hist[tool] {
		if now.Sub(ts) < window {
			kept = append(kept, ts)
		}
	}
	t.hist[tool] = kept
	return kept
}
