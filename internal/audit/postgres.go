package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore is the fleet ledger backend. Unlike the sqlite store it
// cannot assume a single writer, so PreLog links the chain inside a
// transaction that locks the tail row.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres connects to the ledger database at dsn and ensures the
// schema exists.
func NewPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: open ledger: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: ping ledger: %w", err)
	}

	s := &PostgresStore{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS audit_entries (
			seq            BIGSERIAL PRIMARY KEY,
			id             TEXT NOT NULL UNIQUE,
			tool           TEXT NOT NULL,
			tier           INTEGER NOT NULL,
			effective_tier INTEGER NOT NULL,
			security_level TEXT NOT NULL,
			user_id        TEXT NOT NULL,
			channel        TEXT NOT NULL DEFAULT '',
			session_key    TEXT NOT NULL DEFAULT '',
			params         TEXT NOT NULL DEFAULT '{}',
			amount_usd     DOUBLE PRECISION,
			policy_hash    TEXT NOT NULL DEFAULT '',
			prev_hash      TEXT NOT NULL,
			entry_hash     TEXT NOT NULL,
			created_at     TEXT NOT NULL,
			result         TEXT NOT NULL DEFAULT 'pending',
			reason         TEXT NOT NULL DEFAULT '',
			duration_ms    BIGINT,
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

// PreLog appends the entry with Result "pending". The tail row is locked
// for the duration of the transaction so concurrent writers serialize on
// the chain link.
func (s *PostgresStore) PreLog(ctx context.Context, e *Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("audit: pre-log begin: %w", err)
	}
	defer tx.Rollback()

	prev := GenesisHash
	err = tx.QueryRowContext(ctx,
		`SELECT entry_hash FROM audit_entries ORDER BY seq DESC LIMIT 1 FOR UPDATE`,
	).Scan(&prev)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("audit: read chain tail: %w", err)
	}

	prepareEntry(e)
	e.PrevHash = prev
	hash, err := HashEntry(e)
	if err != nil {
		return err
	}
	e.EntryHash = hash

	_, err = tx.ExecContext(ctx, `
		INSERT INTO audit_entries (
			id, tool, tier, effective_tier, security_level, user_id, channel,
			session_key, params, amount_usd, policy_hash, prev_hash, entry_hash, created_at,
			result, reason, duration_ms, ref, finalized_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, '', NULL, '', '')`,
		e.ID, e.Tool, int(e.Tier), int(e.EffectiveTier), string(e.SecurityLevel), e.User, e.Channel,
		e.SessionKey, e.Params, e.AmountUSD, e.PolicyHash, e.PrevHash, e.EntryHash, e.CreatedAt,
		string(ResultPending),
	)
	if err != nil {
		return fmt.Errorf("audit: pre-log entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("audit: pre-log commit: %w", err)
	}
	return nil
}

// Finalize writes the terminal result fields for one entry. Last write wins.
func (s *PostgresStore) Finalize(ctx context.Context, id string, result Result, reason string, fin Finalization) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE audit_entries
		SET result = $1, reason = $2, duration_ms = $3, ref = $4, finalized_at = $5
		WHERE id = $6`,
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
func (s *PostgresStore) Get(ctx context.Context, id string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM audit_entries WHERE id = $1`, id)
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
func (s *PostgresStore) Tail(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM audit_entries ORDER BY seq DESC LIMIT $1`, limit)
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
func (s *PostgresStore) All(ctx context.Context) ([]Entry, error) {
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
func (s *PostgresStore) SuccessAmountSince(ctx context.Context, user string, since time.Time) (float64, error) {
	var total float64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount_usd), 0) FROM audit_entries
		WHERE user_id = $1 AND result = $2 AND amount_usd IS NOT NULL AND created_at >= $3`,
		user, string(ResultSuccess), since.UTC().Format(TimestampFormat),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("audit: sum spend: %w", err)
	}
	return total, nil
}

// RecentResults returns the user's newest results, newest first.
func (s *PostgresStore) RecentResults(ctx context.Context, user string, limit int) ([]Result, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT result FROM audit_entries WHERE user_id = $1 ORDER BY seq DESC LIMIT $2`,
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

// VerifyChain walks every row in insertion order and validates the chain.
func (s *PostgresStore) VerifyChain(ctx context.Context) (VerifyResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM audit_entries ORDER BY seq`)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("audit: verify: %w", err)
	}
	defer rows.Close()
	return verifyRows(rows)
}

// Close closes the underlying database.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
