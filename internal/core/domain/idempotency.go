package domain

import "time"

// IdempotencyRecord captures the outcome of a single logical debit attempt.
// It is created inside the same transaction that moves the balance, so a
// record either exists together with its decrement or not at all. Lookup by
// ActionID is the sole deduplication mechanism; repeated attempts with the
// same ActionID observe the stored outcome instead of re-applying the debit.
type IdempotencyRecord struct {
	ActionID      string
	IdentityID    string
	Operation     string
	AmountDebited int64
	BalanceAfter  int64
	InputDigest   string
	OutcomeDigest string
	Success       bool
	CreatedAt     time.Time
}
