package audit

import (
	"database/sql"
	"fmt"
)

// VerifyResult holds the outcome of a hash chain verification.
type VerifyResult struct {
	Valid    bool   `json:"valid"`
	Entries  int    `json:"entries"`
	Error    string `json:"error,omitempty"`
	ErrorSeq int    `json:"error_seq,omitempty"`
	ErrorID  string `json:"error_id,omitempty"`
}

// verifyRows walks entries in insertion order and validates the hash
// chain. Shared by both backends; rows must be ordered by seq. Returns
// Valid=true if the chain is intact, or details about the first broken
// link. Tampering with any hashed field, deleting a row, or inserting a
// row shows up as the first mismatch.
func verifyRows(rows *sql.Rows) (VerifyResult, error) {
	prev := GenesisHash
	n := 0

	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return VerifyResult{}, fmt.Errorf("audit: verify scan: %w", err)
		}
		n++

		if e.PrevHash != prev {
			msg := fmt.Sprintf("chain break: prev_hash %s does not match previous entry hash %s", e.PrevHash, prev)
			if n == 1 {
				msg = fmt.Sprintf("first entry prev_hash is %q, expected genesis hash", e.PrevHash)
			}
			return VerifyResult{Entries: n, Error: msg, ErrorSeq: n, ErrorID: e.ID}, nil
		}

		recomputed, err := HashEntry(e)
		if err != nil {
			return VerifyResult{}, err
		}
		if recomputed != e.EntryHash {
			return VerifyResult{
				Entries:  n,
				Error:    fmt.Sprintf("entry hash mismatch: stored %s, recomputed %s", e.EntryHash, recomputed),
				ErrorSeq: n,
				ErrorID:  e.ID,
			}, nil
		}

		prev = e.EntryHash
	}

	if err := rows.Err(); err != nil {
		return VerifyResult{}, fmt.Errorf("audit: verify: %w", err)
	}
	return VerifyResult{Valid: true, Entries: n}, nil
}
