package audit

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/toolgate/internal/model"
)

// Store is the ledger surface shared by the sqlite and postgres backends.
//
// PreLog appends an entry with Result "pending" and links the hash chain;
// any error from it must block tool execution upstream. Finalize mutates
// only the result fields of one entry and is last-write-wins: calling it
// again overwrites the previous terminal state instead of failing, so a
// crash-handler double-finalize cannot corrupt the ledger.
type Store interface {
	PreLog(ctx context.Context, e *Entry) error
	Finalize(ctx context.Context, id string, result Result, reason string, fin Finalization) error
	Get(ctx context.Context, id string) (*Entry, error)
	Tail(ctx context.Context, limit int) ([]Entry, error)
	All(ctx context.Context) ([]Entry, error)
	SuccessAmountSince(ctx context.Context, user string, since time.Time) (float64, error)
	RecentResults(ctx context.Context, user string, limit int) ([]Result, error)
	VerifyChain(ctx context.Context) (VerifyResult, error)
	Close() error
}

// prepareEntry fills the generated pre-log fields and forces the entry
// into the pending state.
func prepareEntry(e *Entry) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt == "" {
		e.CreatedAt = Now()
	}
	if e.Params == "" {
		e.Params = "{}"
	}
	e.Result = ResultPending
	e.Reason = ""
	e.DurationMs = nil
	e.Ref = ""
	e.FinalizedAt = ""
}

// Pending tracks a pre-logged entry that must not stay pending. The
// executor defers Release right after Begin; Release finalizes the entry
// as "error" if nothing settled it first, which is what catches panics
// and forgotten return paths.
type Pending struct {
	store Store
	id    string
	mu    sync.Mutex
	done  bool
}

// Begin pre-logs the entry and returns its release guard.
func Begin(ctx context.Context, s Store, e *Entry) (*Pending, error) {
	if err := s.PreLog(ctx, e); err != nil {
		return nil, err
	}
	return &Pending{store: s, id: e.ID}, nil
}

// ID returns the pre-logged entry's ID.
func (p *Pending) ID() string {
	return p.id
}

// Finalize settles the entry with a terminal result.
func (p *Pending) Finalize(ctx context.Context, result Result, reason string, fin Finalization) error {
	p.mu.Lock()
	p.done = true
	p.mu.Unlock()
	return p.store.Finalize(ctx, p.id, result, reason, fin)
}

// Release finalizes the entry as "error" when it was never settled.
// Calling it after Finalize is a no-op.
func (p *Pending) Release(ctx context.Context, reason string) error {
	p.mu.Lock()
	if p.done {
		p.mu.Unlock()
		return nil
	}
	p.done = true
	p.mu.Unlock()
	return p.store.Finalize(ctx, p.id, ResultError, reason, Finalization{})
}

// entryColumns is the scan order shared by every SELECT in both backends.
const entryColumns = `id, tool, tier, effective_tier, security_level, user_id, channel,
	session_key, params, amount_usd, policy_hash, prev_hash, entry_hash, created_at,
	result, reason, duration_ms, ref, finalized_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var (
		e        Entry
		tier     int
		effTier  int
		level    string
		result   string
		amount   sql.NullFloat64
		duration sql.NullInt64
	)
	err := row.Scan(
		&e.ID, &e.Tool, &tier, &effTier, &level, &e.User, &e.Channel,
		&e.SessionKey, &e.Params, &amount, &e.PolicyHash, &e.PrevHash, &e.EntryHash, &e.CreatedAt,
		&result, &e.Reason, &duration, &e.Ref, &e.FinalizedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Tier = model.Tier(tier)
	e.EffectiveTier = model.Tier(effTier)
	e.SecurityLevel = model.SecurityLevel(level)
	e.Result = Result(result)
	if amount.Valid {
		v := amount.Float64
		e.AmountUSD = &v
	}
	if duration.Valid {
		v := duration.Int64
		e.DurationMs = &v
	}
	return &e, nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// reverseEntries flips a newest-first page into chronological order.
func reverseEntries(entries []Entry) {
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
}
