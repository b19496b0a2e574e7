package port

import (
	"context"

	"github.com/arklim/tollgate/internal/core/domain"
)

// BalanceStatus is the advisory result of a read-only balance check. It
// reflects the latest committed value but is never trusted at debit time;
// sufficiency is re-validated inside the debit transaction.
type BalanceStatus struct {
	Sufficient  bool
	Current     int64
	Deactivated bool
}

// DebitRequest describes one atomic debit attempt against an identity's balance.
type DebitRequest struct {
	IdentityID  string
	Amount      int64
	ActionID    string
	Operation   string
	InputDigest string
}

// DebitOutcome reports the committed result of a debit. Replayed is true when
// the action ID had already been applied and the stored outcome was returned
// instead of decrementing again.
type DebitOutcome struct {
	Success      bool
	BalanceAfter int64
	Replayed     bool
}

// LedgerRepository is the durable source of truth for per-identity balances.
type LedgerRepository interface {
	// CheckBalance returns the advisory sufficiency of the identity's balance
	// for the required amount. A missing or deactivated identity yields
	// Deactivated=true and Sufficient=false regardless of amount.
	CheckBalance(ctx context.Context, identityID string, required int64) (BalanceStatus, error)

	// Debit atomically creates the idempotency record for the action ID and
	// decrements the balance, or does neither. Sufficiency is re-checked
	// inside the transaction. An existing record for the action ID is
	// returned as a replayed outcome without touching the balance.
	Debit(ctx context.Context, req DebitRequest) (DebitOutcome, error)

	// Credit increases the identity's balance and returns the new amount.
	Credit(ctx context.Context, identityID string, amount int64) (int64, error)
}

// IdempotencyRepository reads and finalizes debit attempt records.
type IdempotencyRepository interface {
	Get(ctx context.Context, actionID string) (*domain.IdempotencyRecord, error)

	// RecordOutcome writes the operation outcome digest back onto the record
	// created by the debit, for audit traceability. Best effort; it is not
	// atomic with anything.
	RecordOutcome(ctx context.Context, actionID string, outcomeDigest string, success bool) error
}

// IdentityRepository manages principal records.
type IdentityRepository interface {
	Create(ctx context.Context, identity domain.Identity, initialBalance int64) error
	GetByID(ctx context.Context, id string) (*domain.Identity, error)
	Deactivate(ctx context.Context, id string) error
}
