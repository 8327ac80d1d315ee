package model

import (
	"encoding/json"
	"time"
)

// MinIdempotencyTTL is the shortest lifetime a stored replay snapshot may have.
const MinIdempotencyTTL = 300 * time.Second

// IdempotencyRecord maps (scope, key) to the hash of the first request and its response snapshot.
type IdempotencyRecord struct {
	ID               string          `json:"id"                db:"id"`
	Scope            string          `json:"scope"             db:"scope"`
	Key              string          `json:"key"               db:"idem_key"`
	RequestHash      string          `json:"request_hash"      db:"request_hash"`
	ResponseSnapshot json.RawMessage `json:"response_snapshot" db:"response_snapshot"`
	ExpiresAt        time.Time       `json:"expires_at"        db:"expires_at"`
	CreatedAt        time.Time       `json:"created_at"        db:"created_at"`
}

// Expired reports whether the record is no longer replayable at now.
func (r *IdempotencyRecord) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}

// EffectiveIdempotencyTTL applies the TTL floor to a caller-requested lifetime.
func EffectiveIdempotencyTTL(ttl time.Duration) time.Duration {
	return max(ttl, MinIdempotencyTTL)
}
