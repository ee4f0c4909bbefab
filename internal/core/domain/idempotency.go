package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// IdempotencyRecord marks a completed operation request. Any request
// presenting an unexpired, previously recorded key is rejected before any
// balance is touched.
type IdempotencyRecord struct {
	Key       string    `json:"key"`
	UserID    uuid.UUID `json:"user_id"`
	Operation string    `json:"operation"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// DeriveIdempotencyKey builds a deterministic key bucketed by a short time
// window, so identical rapid retries collide while later legitimate repeats
// produce a fresh key.
func DeriveIdempotencyKey(userID uuid.UUID, operation string, amount int64, recipient string, windowSeconds int64, now time.Time) string {
	bucket := now.Unix() / windowSeconds
	payload := fmt.Sprintf("%s|%s|%d|%s|%d", userID, operation, amount, recipient, bucket)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// ClientIdempotencyKey scopes a caller-supplied key to its user so two users
// cannot collide on the same UUID.
func ClientIdempotencyKey(userID uuid.UUID, key string) string {
	return userID.String() + ":" + key
}
