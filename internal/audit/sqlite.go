package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the default single-file ledger backend. Writes are
// serialized: one open connection plus a store mutex around the chain
// update, mirroring the single-writer model the chain requires.
type SQLiteStore struct {
	db       *sql.DB
	prevHash string
	mu       sync.Mutex
}

// NewSQLite opens (or creates) the ledger database at path and recovers
// the chain tail from the newest row.
func NewSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("audit: create ledger directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("audit: open ledger: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db, prevHash: GenesisHash}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.recoverTail(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS audit_entries (
			seq            INTEGER PRIMARY KEY AUTOINCREMENT,
			id             TEXT NOT NULL UNIQUE,
			tool           TEXT NOT NULL,
			tier           INTEGER NOT NULL,
			effective_tier INTEGER NOT NULL,
			security_level TEXT NOT NULL,
			user_id        TEXT NOT NULL,
			channel        TEXT NOT NULL DEFAULT '',
			session_key    TEXT NOT NULL DEFAULT '',
			params         TEXT NOT NULL DEFAULT '{}',
			amount_usd     REAL,
			policy_hash    TEXT NOT NULL DEFAULT '',
			prev_hash      TEXT NOT NULL,
			entry_hash     TEXT NOT NULL,
			created_at     TEXT NOT NULL,
			result         TEXT NOT NULL DEFAULT 'pending',
			reason         TEXT NOT NULL DEFAULT '',
			duration_ms    INTEGER,
			ref            TEXT NOT NULL DEFAULT '',
			finalized_at   TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_audit_user_created ON audit_entries(user_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_audit_user_seq ON audit_entries(user_id, seq);
	`)
	if err != nil {
		return fmt.Errorf("audit: migrate ledger: %w", err)
	}
	return nil
}

func (s *SQLiteStore) recoverTail() error {
	var tail string
	err := s.db.QueryRow(`SELECT entry_hash FROM audit_entries ORDER BY seq DESC LIMIT 1`).Scan(&tail)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("audit: recover chain tail: %w", err)
	}
	s.prevHash = tail
	return nil
}

// PreLog appends the entry with Result "pending", linking the hash chain.
func (s *SQLiteStore) PreLog(ctx context.Context, e *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prepareEntry(e)
	e.PrevHash = s.prevHash
	hash, err := HashEntry(e)
	if err != nil {
		return err
	}
	e.EntryHash = hash

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_entries (
			id, tool, tier, effective_tier, security_level, user_id, channel,
			session_key, params, amount_usd, policy_hash, prev_hash, entry_hash, created_at,
			result, reason, duration_ms, ref, finalized_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, '', NULL, '', '')`,
		e.ID, e.Tool, int(e.Tier), int(e.EffectiveTier), string(e.SecurityLevel), e.User, e.Channel,
		e.SessionKey, e.Params, e.AmountUSD, e.PolicyHash, e.PrevHash, e.EntryHash, e.CreatedAt,
		string(ResultPending),
	)
	if err != nil {
		return fmt.Errorf("audit: pre-log entry: %w", err)
	}

	s.prevHash = e.EntryHash
	return nil
}

// Finalize writes the terminal result fields for one entry. Last write wins.
func (s *SQLiteStore) Finalize(ctx context.Context, id string, result Result, reason string, fin Finalization) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE audit_entries
		SET result = ?, reason = ?, duration_ms = ?, ref = ?, finalized_at = ?
		WHERE id = ?`,
		string(result), reason, fin.DurationMs, fin.Ref, Now(), id,
	)
	if err != nil {
		return fmt.Errorf("audit: finalize entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("audit: finalize entry: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("audit: finalize: unknown entry %s", id)
	}
	return nil
}

// Get returns one entry by ID.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM audit_entries WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("audit: unknown entry %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("audit: get entry: %w", err)
	}
	return e, nil
}

// Tail returns the newest entries in chronological order.
func (s *SQLiteStore) Tail(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM audit_entries ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: tail: %w", err)
	}
	defer rows.Close()
	entries, err := scanEntries(rows)
	if err != nil {
		return nil, fmt.Errorf("audit: tail: %w", err)
	}
	reverseEntries(entries)
	return entries, nil
}

// All returns every entry in insertion order.
func (s *SQLiteStore) All(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM audit_entries ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("audit: all: %w", err)
	}
	defer rows.Close()
	entries, err := scanEntries(rows)
	if err != nil {
		return nil, fmt.Errorf("audit: all: %w", err)
	}
	return entries, nil
}

// SuccessAmountSince sums successful spend for the user since a UTC instant.
func (s *SQLiteStore) SuccessAmountSince(ctx context.Context, user string, since time.Time) (float64, error) {
	var total float64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount_usd), 0) FROM audit_entries
		WHERE user_id = ? AND result = ? AND amount_usd IS NOT NULL AND created_at >= ?`,
		user, string(ResultSuccess), since.UTC().Format(TimestampFormat),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("audit: sum spend: %w", err)
	}
	return total, nil
}

// RecentResults returns the user's newest results, newest first.
func (s *SQLiteStore) RecentResults(ctx context.Context, user string, limit int) ([]Result, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT result FROM audit_entries WHERE user_id = ? ORDER BY seq DESC LIMIT ?`,
		user, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: recent results: %w", err)
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		var r string
		if err := rows.Scan(&r); err != nil {
			return nil, fmt.Errorf("audit: recent results: %w", err)
		}
		out = append(out, Result(r))
	}
	return out, rows.Err()
}

// VerifyChain walks every row in insertion order and validates the hash
// chain. The first row must reference the genesis hash.
func (s *SQLiteStore) VerifyChain(ctx context.Context) (VerifyResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM audit_entries ORDER BY seq`)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("audit: verify: %w", err)
	}
	defer rows.Close()
	return verifyRows(rows)
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
