package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/arklim/tollgate/internal/core/port"
	"github.com/arklim/tollgate/internal/repository"
)

// LedgerRepository implements port.LedgerRepository using PostgreSQL.
// The debit path runs as a single transaction: idempotency reservation,
// row lock on the balance, sufficiency re-check, decrement. Either the
// record and the decrement commit together or neither does.
type LedgerRepository struct {
	pool pgPool
}

// NewLedgerRepository wires a PostgreSQL-backed ledger.
func NewLedgerRepository(pool pgPool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

// CheckBalance returns the advisory balance status for the identity.
// Read-only and uncached; the value reflects the latest committed state but
// may be stale by debit time, which re-validates inside its transaction.
func (r *LedgerRepository) CheckBalance(ctx context.Context, identityID string, required int64) (port.BalanceStatus, error) {
	var (
		deactivated bool
		amount      int64
	)
	err := r.pool.QueryRow(ctx,
		`SELECT i.deactivated, COALESCE(b.amount, 0)
		   FROM identities i
		   LEFT JOIN balances b ON b.identity_id = i.id
		  WHERE i.id = $1`,
		identityID,
	).Scan(&deactivated, &amount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Unknown identity is reported the same way as a deactivated one.
			return port.BalanceStatus{Sufficient: false, Deactivated: true}, nil
		}
		return port.BalanceStatus{}, classifyError("check balance", err)
	}

	if deactivated {
		return port.BalanceStatus{Sufficient: false, Current: amount, Deactivated: true}, nil
	}

	return port.BalanceStatus{Sufficient: amount >= required, Current: amount}, nil
}

// Debit atomically applies one debit attempt. An existing record for the
// action ID short-circuits into a replayed outcome without touching the
// balance. Insufficient balance commits a failed record so later replays of
// the same action ID observe the original rejection.
func (r *LedgerRepository) Debit(ctx context.Context, req port.DebitRequest) (port.DebitOutcome, error) {
	if req.Amount < 0 {
		return port.DebitOutcome{}, fmt.Errorf("debit amount must be non-negative")
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return port.DebitOutcome{}, classifyError("begin debit tx", err)
	}
	defer tx.Rollback(ctx)

	var (
		debited int64
		after   int64
		success bool
	)
	err = tx.QueryRow(ctx,
		"SELECT amount_debited, balance_after, success FROM idempotency_records WHERE action_id = $1",
		req.ActionID,
	).Scan(&debited, &after, &success)
	if err == nil {
		return port.DebitOutcome{Success: success, BalanceAfter: after, Replayed: true}, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return port.DebitOutcome{}, classifyError("lookup idempotency record", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO idempotency_records (action_id, identity_id, operation, input_digest, success)
		 VALUES ($1, $2, $3, $4, FALSE)`,
		req.ActionID, req.IdentityID, req.Operation, req.InputDigest,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// A concurrent request holds the same action ID. Report the store
			// as busy; the retry loop re-enters and lands on the replay path
			// once the winner commits.
			return port.DebitOutcome{}, fmt.Errorf("%w: action id reserved concurrently", repository.ErrStorageUnavailable)
		}
		return port.DebitOutcome{}, classifyError("reserve action id", err)
	}

	var (
		amount      int64
		deactivated bool
	)
	err = tx.QueryRow(ctx,
		`SELECT b.amount, i.deactivated
		   FROM balances b
		   JOIN identities i ON i.id = b.identity_id
		  WHERE b.identity_id = $1
		    FOR UPDATE OF b`,
		req.IdentityID,
	).Scan(&amount, &deactivated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return port.DebitOutcome{}, repository.ErrIdentityDeactivated
		}
		return port.DebitOutcome{}, classifyError("lock balance", err)
	}

	if deactivated {
		return port.DebitOutcome{}, repository.ErrIdentityDeactivated
	}

	if amount < req.Amount {
		// Record the rejection under the action ID so the attempt is not
		// silently re-runnable with the same key after a top-up.
		if _, err := tx.Exec(ctx,
			"UPDATE idempotency_records SET balance_after = $2 WHERE action_id = $1",
			req.ActionID, amount,
		); err != nil {
			return port.DebitOutcome{}, classifyError("record insufficient balance", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return port.DebitOutcome{}, classifyError("commit debit tx", err)
		}
		return port.DebitOutcome{Success: false, BalanceAfter: amount}, repository.ErrInsufficientBalance
	}

	err = tx.QueryRow(ctx,
		`UPDATE balances
		    SET amount = amount - $2, updated_at = now()
		  WHERE identity_id = $1
		  RETURNING amount`,
		req.IdentityID, req.Amount,
	).Scan(&after)
	if err != nil {
		return port.DebitOutcome{}, classifyError("decrement balance", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE idempotency_records
		    SET success = TRUE, amount_debited = $2, balance_after = $3
		  WHERE action_id = $1`,
		req.ActionID, req.Amount, after,
	); err != nil {
		return port.DebitOutcome{}, classifyError("finalize idempotency record", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return port.DebitOutcome{}, classifyError("commit debit tx", err)
	}

	return port.DebitOutcome{Success: true, BalanceAfter: after}, nil
}

// Credit increases the identity's balance and returns the new amount.
func (r *LedgerRepository) Credit(ctx context.Context, identityID string, amount int64) (int64, error) {
	if amount < 0 {
		return 0, fmt.Errorf("credit amount must be non-negative")
	}

	var after int64
	err := r.pool.QueryRow(ctx,
		`UPDATE balances
		    SET amount = amount + $2, updated_at = now()
		  WHERE identity_id = $1
		  RETURNING amount`,
		identityID, amount,
	).Scan(&after)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, repository.ErrNotFound
		}
		return 0, classifyError("credit balance", err)
	}

	return after, nil
}
