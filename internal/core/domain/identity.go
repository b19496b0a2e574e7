package domain

import "time"

// Identity represents an authenticated principal on whose behalf tokens are consumed.
type Identity struct {
	ID          string
	Label       string
	SecretHash  string
	Deactivated bool
	CreatedAt   time.Time
}

// CanExecute reports whether the identity is allowed to invoke operations.
func (i Identity) CanExecute() bool {
	return !i.Deactivated
}

// Balance is the prepaid usage counter owned by a single identity.
// The amount is mutated only through the ledger's atomic debit/credit operations
// and is never allowed to go negative.
type Balance struct {
	IdentityID string
	Amount     int64
	UpdatedAt  time.Time
}

// Covers reports whether the balance can absorb a debit of the given amount.
func (b Balance) Covers(amount int64) bool {
	return amount >= 0 && b.Amount >= amount
}
