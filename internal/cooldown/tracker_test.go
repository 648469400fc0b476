package cooldown

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ppiankov/toolgate/internal/model"
)

func frozenTracker(at time.Time) (*Tracker, *time.Time) {
	t := NewTracker()
	current := at
	t.now = func() time.Time { return current }
	return t, &current
}

func TestCheckAllowsUnderLimit(t *testing.T) {
	tr := NewTracker()
	rule := model.CooldownRule{Window: time.Minute, MaxCount: 2}

	if v := tr.Check("wallet_transfer", rule); !v.Allowed {
		t.Fatalf("first call blocked: %s", v.Reason)
	}
	tr.Record("wallet_transfer", rule)
	if v := tr.Check("wallet_transfer", rule); !v.Allowed {
		t.Fatalf("second call blocked at 1/2: %s", v.Reason)
	}
}

func TestCheckBlocksAtLimitWithRetryAfter(t *testing.T) {
	start := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	tr, now := frozenTracker(start)
	rule := model.CooldownRule{Window: time.Minute, MaxCount: 1}

	tr.Record("wallet_transfer", rule)
	*now = start.Add(18 * time.Second)

	v := tr.Check("wallet_transfer", rule)
	if v.Allowed {
		t.Fatal("call at 1/1 should be blocked")
	}
	if v.RetryAfter != 42*time.Second {
		t.Errorf("retry after = %v, want 42s", v.RetryAfter)
	}
	if !strings.Contains(v.Reason, "1/1") || !strings.Contains(v.Reason, "retry in 42s") {
		t.Errorf("reason = %q", v.Reason)
	}
}

func TestWindowExpiryFreesSlot(t *testing.T) {
	start := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	tr, now := frozenTracker(start)
	rule := model.CooldownRule{Window: time.Minute, MaxCount: 1}

	tr.Record("wallet_transfer", rule)
	*now = start.Add(time.Minute + time.Second)

	if v := tr.Check("wallet_transfer", rule); !v.Allowed {
		t.Fatalf("call after window expiry blocked: %s", v.Reason)
	}
}

func TestZeroRuleNeverBlocks(t *testing.T) {
	tr := NewTracker()
	var rule model.CooldownRule
	for i := 0; i < 100; i++ {
		tr.Record("echo", rule)
		if v := tr.Check("echo", rule); !v.Allowed {
			t.Fatalf("disabled rule blocked call %d", i)
		}
	}
}

func TestToolsTrackIndependently(t *testing.T) {
	tr := NewTracker()
	rule := model.CooldownRule{Window: time.Minute, MaxCount: 1}

	tr.Record("wallet_transfer", rule)
	if v := tr.Check("note_append", rule); !v.Allowed {
		t.Fatalf("other tool blocked by wallet_transfer's window: %s", v.Reason)
	}
}

func TestConcurrentRecordAndCheck(t *testing.T) {
	tr := NewTracker()
	rule := model.CooldownRule{Window: time.Minute, MaxCount: 1000}

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Record("echo", rule)
			tr.Check("echo", rule)
		}()
	}
	wg.Wait()

	v := tr.Check("echo", rule)
	if !v.Allowed {
		t.Fatalf("100 calls under a 1000 limit should pass: %s", v.Reason)
	}
	if got := len(tr.hist["echo"]); got != 100 {
		t.Errorf("recorded %d calls, want 100", got)
	}
}
