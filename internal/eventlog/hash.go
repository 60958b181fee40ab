package eventlog

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// canonicalJSON renders v as JSON with object keys sorted and no
// insignificant whitespace, so the same logical content always hashes to the
// same bytes regardless of map iteration order.
func canonicalJSON(v any) ([]byte, error) {
	normalized, err := normalize(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(normalized)
}

// normalize round-trips v through encoding/json into a generic
// representation so nested values become map[string]any. Go's json package
// sorts map[string]any keys on Marshal, so the round trip alone yields
// sorted keys; this function keeps that guarantee explicit and local to one
// place.
func normalize(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// hashInput is the subset of Event fields that participate in the hash
// chain. Hash is excluded; ID is included, and PrevHash is included so the
// chain breaks if any prior event is altered.
type hashInput struct {
	ID             string         `json:"id"`
	Seq            int64          `json:"seq"`
	ContextRoot    string         `json:"context_root"`
	SessionID      string         `json:"session_id,omitempty"`
	RunID          string         `json:"run_id,omitempty"`
	Type           string         `json:"type"`
	TimestampUnix  int64          `json:"timestamp_unix_ns"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
	Data           map[string]any `json:"data,omitempty"`
	PrevHash       string         `json:"prev_hash"`
}

// ComputeHash returns hex(sha256(canonical_json(e))) over the hash-bearing
// fields of e, per the fixed hash-chain algorithm (canonical JSON with
// sorted keys, event_hash itself excluded).
func ComputeHash(e Event) (string, error) {
	input := hashInput{
		ID:             e.ID,
		Seq:            e.Seq,
		ContextRoot:    e.ContextRoot,
		SessionID:      e.SessionID,
		RunID:          e.RunID,
		Type:           e.Type,
		TimestampUnix:  e.Timestamp.UnixNano(),
		IdempotencyKey: e.IdempotencyKey,
		Data:           e.Data,
		PrevHash:       e.PrevHash,
	}
	b, err := canonicalJSON(input)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// sortedKeys has no callers; it is kept here since it documents the
// invariant canonicalJSON relies on (encoding/json already sorts
// map[string]any keys on marshal).
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
