package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// GenesisHash is the prev_hash for the first entry in a new ledger.
const GenesisHash = "sha256:0000000000000000000000000000000000000000000000000000000000000000"

// hashCore is the canonical form of the immutable pre-log core.
// All fields are scalars to guarantee deterministic json.Marshal field
// order for reproducible hashing.
type hashCore struct {
	ID            string   `json:"id"`
	Tool          string   `json:"tool"`
	Tier          int      `json:"tier"`
	EffectiveTier int      `json:"effective_tier"`
	SecurityLevel string   `json:"security_level"`
	User          string   `json:"user"`
	Channel       string   `json:"channel"`
	SessionKey    string   `json:"session_key"`
	Params        string   `json:"params"`
	AmountUSD     *float64 `json:"amount_usd"`
	PolicyHash    string   `json:"policy_hash"`
	CreatedAt     string   `json:"created_at"`
	PrevHash      string   `json:"prev_hash"`
}

// HashEntry computes "sha256:<hex>" over the entry's immutable core,
// including its prev_hash link. Finalize fields stay outside the hash so
// finalization does not break the chain.
func HashEntry(e *Entry) (string, error) {
	core := hashCore{
		ID:            e.ID,
		Tool:          e.Tool,
		Tier:          int(e.Tier),
		EffectiveTier: int(e.EffectiveTier),
		SecurityLevel: string(e.SecurityLevel),
		User:          e.User,
		Channel:       e.Channel,
		SessionKey:    e.SessionKey,
		Params:        e.Params,
		AmountUSD:     e.AmountUSD,
		PolicyHash:    e.PolicyHash,
		CreatedAt:     e.CreatedAt,
		PrevHash:      e.PrevHash,
	}
	line, err := json.Marshal(core)
	if err != nil {
		return "", fmt.Errorf("audit: marshal hash core: %w", err)
	}
	h := sha256.Sum256(line)
	return "sha256:" + hex.EncodeToString(h[:]), nil
}

// SnapshotParams marshals the call arguments at pre-log time. Map keys are
// sorted by encoding/json, so equal arguments always snapshot to equal
// bytes; later mutation of the map cannot change what was recorded.
func SnapshotParams(args map[string]any) (string, error) {
	if len(args) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("audit: snapshot params: %w", err)
	}
	return string(data), nil
}
