package port

import (
	"context"
	"time"

	"github.com/arklim/tollgate/internal/core/domain"
)

// SessionStore persists session records in a key-value store with TTL.
// Storage TTL is a sliding window refreshed on every successful validation
// and is independent of the session's logical expiry.
type SessionStore interface {
	// Put stores the session under its token and, when the session carries a
	// refresh credential, indexes it for single-use claiming.
	Put(ctx context.Context, session domain.Session, ttl time.Duration) error

	// Get returns the session stored under the token, or repository.ErrNotFound.
	Get(ctx context.Context, token string) (*domain.Session, error)

	// Touch refreshes the storage TTL and last-accessed time without moving
	// the logical expiry.
	Touch(ctx context.Context, session domain.Session, ttl time.Duration) error

	// ClaimRefresh atomically consumes the refresh credential index entry and
	// returns the session token it pointed at. Exactly one concurrent caller
	// observes the value; everyone else gets repository.ErrNotFound.
	ClaimRefresh(ctx context.Context, refreshCredential string) (string, error)

	// Delete removes the session and its refresh index entry.
	Delete(ctx context.Context, token string) error
}
