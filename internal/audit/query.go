package audit

import (
	"context"
	"time"
)

// denialScanLimit bounds the streak walk. Denial ceilings are single
// digits in practice; a streak longer than this reads as "at least".
const denialScanLimit = 50

// Queries is the read path over the ledger: the spend and denial history
// the escalation context is built from.
type Queries struct {
	store Store
}

// NewQueries wraps a ledger store.
func NewQueries(s Store) *Queries {
	return &Queries{store: s}
}

// DailySpentUSD sums the user's successful spend since 00:00 UTC of the
// given instant's day. Only successes count: denied, errored, escalated
// and pending entries spend nothing.
func (q *Queries) DailySpentUSD(ctx context.Context, user string, now time.Time) (float64, error) {
	midnight := now.UTC().Truncate(24 * time.Hour)
	return q.store.SuccessAmountSince(ctx, user, midnight)
}

// ConsecutiveDenials counts the user's unbroken run of denied entries,
// newest first. The first non-denial of any kind ends the streak.
func (q *Queries) ConsecutiveDenials(ctx context.Context, user string) (int, error) {
	results, err := q.store.RecentResults(ctx, user, denialScanLimit)
	if err != nil {
		return 0, err
	}
	streak := 0
	for _, r := range results {
		if r != ResultDenied {
			break
		}
		streak++
	}
	return streak, nil
}
