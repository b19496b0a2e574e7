package postgres

import (
	"context"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/tollgate/internal/core/domain"
	"github.com/arklim/tollgate/internal/repository"
)

// IdempotencyRepository implements port.IdempotencyRepository using PostgreSQL.
// Records are created by the ledger's debit transaction; this repository only
// reads them and writes the operation outcome digest back after execution.
type IdempotencyRepository struct {
	pool    pgPool
	builder squirrel.StatementBuilderType
}

// NewIdempotencyRepository wires a PostgreSQL-backed idempotency record store.
func NewIdempotencyRepository(pool pgPool) *IdempotencyRepository {
	return &IdempotencyRepository{
		pool:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Get returns the record for the action ID or repository.ErrNotFound.
func (r *IdempotencyRepository) Get(ctx context.Context, actionID string) (*domain.IdempotencyRecord, error) {
	sql, args, err := r.builder.
		Select("action_id", "identity_id", "operation", "amount_debited", "balance_after", "input_digest", "outcome_digest", "success", "created_at").
		From("idempotency_records").
		Where(squirrel.Eq{"action_id": actionID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select idempotency record sql: %w", err)
	}

	var record domain.IdempotencyRecord
	err = r.pool.QueryRow(ctx, sql, args...).Scan(
		&record.ActionID,
		&record.IdentityID,
		&record.Operation,
		&record.AmountDebited,
		&record.BalanceAfter,
		&record.InputDigest,
		&record.OutcomeDigest,
		&record.Success,
		&record.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, classifyError("select idempotency record", err)
	}

	return &record, nil
}

// RecordOutcome stores the operation outcome digest for audit traceability.
func (r *IdempotencyRepository) RecordOutcome(ctx context.Context, actionID string, outcomeDigest string, success bool) error {
	sql, args, err := r.builder.Update("idempotency_records").
		Set("outcome_digest", outcomeDigest).
		Set("success", success).
		Where(squirrel.Eq{"action_id": actionID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update idempotency record sql: %w", err)
	}

	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return classifyError("update idempotency record", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}
