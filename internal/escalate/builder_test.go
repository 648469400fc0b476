package escalate

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/toolgate/internal/audit"
	"github.com/ppiankov/toolgate/internal/model"
)

func testThresholds() model.Thresholds {
	return model.Thresholds{
		PerTierUSD: map[model.Tier]float64{
			model.TierLow:      20,
			model.TierGuarded:  250,
			model.TierCritical: 1000,
		},
		DailyUSD:                 500,
		ConsecutiveDenialCeiling: 3,
	}
}

func newTestBuilder(t *testing.T, at time.Time) (*Builder, audit.Store) {
	t.Helper()
	store, err := audit.NewSQLite(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	b := NewBuilder(audit.NewQueries(store), testThresholds, zap.NewNop())
	b.now = func() time.Time { return at }
	return b, store
}

func logFinalized(t *testing.T, store audit.Store, user string, result audit.Result, amount float64, at time.Time) {
	t.Helper()
	ctx := context.Background()
	e := &audit.Entry{
		Tool:          "wallet_transfer",
		Tier:          model.TierCritical,
		EffectiveTier: model.TierCritical,
		SecurityLevel: model.LevelSign,
		User:          user,
		Channel:       "ops",
		SessionKey:    "sess-1",
		CreatedAt:     at.UTC().Format(audit.TimestampFormat),
	}
	if amount > 0 {
		e.AmountUSD = &amount
	}
	if err := store.PreLog(ctx, e); err != nil {
		t.Fatalf("prelog: %v", err)
	}
	if err := store.Finalize(ctx, e.ID, result, "", audit.Finalization{}); err != nil {
		t.Fatalf("finalize: %v", err)
	}
}

func TestBuildAssemblesSpendAndDenials(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	b, store := newTestBuilder(t, now)

	logFinalized(t, store, "alice", audit.ResultSuccess, 120, now.Add(-4*time.Hour))
	logFinalized(t, store, "alice", audit.ResultSuccess, 30, now.Add(-2*time.Hour))
	logFinalized(t, store, "alice", audit.ResultDenied, 0, now.Add(-30*time.Minute))
	logFinalized(t, store, "alice", audit.ResultDenied, 0, now.Add(-10*time.Minute))

	ec := b.Build(context.Background(), "alice", map[string]any{"amount_usd": 55.5})

	if ec.AmountUSD == nil || *ec.AmountUSD != 55.5 {
		t.Fatalf("AmountUSD = %v, want 55.5", ec.AmountUSD)
	}
	if ec.DailySpentUSD != 150 {
		t.Errorf("DailySpentUSD = %.2f, want 150", ec.DailySpentUSD)
	}
	if ec.ConsecutiveDenials != 2 {
		t.Errorf("ConsecutiveDenials = %d, want 2", ec.ConsecutiveDenials)
	}
	if ec.Thresholds.DailyUSD != 500 {
		t.Errorf("Thresholds.DailyUSD = %.2f, want 500", ec.Thresholds.DailyUSD)
	}
}

func TestBuildKeysHistoryByUser(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	b, store := newTestBuilder(t, now)

	logFinalized(t, store, "alice", audit.ResultSuccess, 200, now.Add(-time.Hour))
	logFinalized(t, store, "bob", audit.ResultDenied, 0, now.Add(-time.Minute))

	ec := b.Build(context.Background(), "bob", nil)

	if ec.DailySpentUSD != 0 {
		t.Errorf("DailySpentUSD = %.2f, want 0 for bob", ec.DailySpentUSD)
	}
	if ec.ConsecutiveDenials != 1 {
		t.Errorf("ConsecutiveDenials = %d, want 1", ec.ConsecutiveDenials)
	}
}

// failingStore stands in for a ledger whose read path is down.
type failingStore struct {
	audit.Store
}

func (failingStore) SuccessAmountSince(ctx context.Context, user string, since time.Time) (float64, error) {
	return 0, errors.New("disk gone")
}

func (failingStore) RecentResults(ctx context.Context, user string, limit int) ([]audit.Result, error) {
	return nil, errors.New("disk gone")
}

func TestBuildLedgerFailureFailsOpen(t *testing.T) {
	b := NewBuilder(audit.NewQueries(failingStore{}), testThresholds, zap.NewNop())

	ec := b.Build(context.Background(), "alice", map[string]any{"amount_usd": 10})

	if ec.DailySpentUSD != 0 || ec.ConsecutiveDenials != 0 {
		t.Errorf("got spend=%.2f denials=%d, want zero values on read failure",
			ec.DailySpentUSD, ec.ConsecutiveDenials)
	}
	if ec.AmountUSD == nil || *ec.AmountUSD != 10 {
		t.Errorf("AmountUSD = %v, want 10", ec.AmountUSD)
	}
	if ec.Thresholds.ConsecutiveDenialCeiling != 3 {
		t.Errorf("thresholds lost on read failure: %+v", ec.Thresholds)
	}
}

func TestAmountFromArgs(t *testing.T) {
	f := func(v float64) *float64 { return &v }

	tests := []struct {
		name string
		args map[string]any
		want *float64
	}{
		{"float", map[string]any{"amount_usd": 42.5}, f(42.5)},
		{"int", map[string]any{"amount_usd": 42}, f(42)},
		{"numeric string", map[string]any{"amount_usd": "19.99"}, f(19.99)},
		{"json number", map[string]any{"amount_usd": json.Number("7.5")}, f(7.5)},
		{"camel case fallback", map[string]any{"amountUsd": 12.0}, f(12)},
		{"snake wins over camel", map[string]any{"amount_usd": 1.0, "amountUsd": 2.0}, f(1)},
		{"non-numeric string", map[string]any{"amount_usd": "lots"}, nil},
		{"wrong type", map[string]any{"amount_usd": []string{"5"}}, nil},
		{"absent", map[string]any{"to": "bob"}, nil},
		{"nil args", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AmountFromArgs(tt.args)
			switch {
			case tt.want == nil && got != nil:
				t.Errorf("got %v, want nil", *got)
			case tt.want != nil && got == nil:
				t.Errorf("got nil, want %v", *tt.want)
			case tt.want != nil && got != nil && *got != *tt.want:
				t.Errorf("got %v, want %v", *got, *tt.want)
			}
		})
	}
}
