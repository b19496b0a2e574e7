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

// IdentityRepository implements port.IdentityRepository using PostgreSQL.
type IdentityRepository struct {
	pool    pgPool
	builder squirrel.StatementBuilderType
}

// NewIdentityRepository wires a PostgreSQL-backed identity repository.
func NewIdentityRepository(pool pgPool) *IdentityRepository {
	return &IdentityRepository{
		pool:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts the identity together with its balance row in one transaction.
func (r *IdentityRepository) Create(ctx context.Context, identity domain.Identity, initialBalance int64) error {
	if initialBalance < 0 {
		return fmt.Errorf("initial balance must be non-negative")
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return classifyError("begin create identity tx", err)
	}
	defer tx.Rollback(ctx)

	sql, args, err := r.builder.Insert("identities").
		Columns("id", "label", "secret_hash", "deactivated", "created_at").
		Values(identity.ID, identity.Label, identity.SecretHash, identity.Deactivated, identity.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert identity sql: %w", err)
	}
	if _, err := tx.Exec(ctx, sql, args...); err != nil {
		return classifyError("insert identity", err)
	}

	sql, args, err = r.builder.Insert("balances").
		Columns("identity_id", "amount").
		Values(identity.ID, initialBalance).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert balance sql: %w", err)
	}
	if _, err := tx.Exec(ctx, sql, args...); err != nil {
		return classifyError("insert balance", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return classifyError("commit create identity tx", err)
	}

	return nil
}

// GetByID returns the identity record or repository.ErrNotFound.
func (r *IdentityRepository) GetByID(ctx context.Context, id string) (*domain.Identity, error) {
	sql, args, err := r.builder.
		Select("id", "label", "secret_hash", "deactivated", "created_at").
		From("identities").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select identity sql: %w", err)
	}

	var identity domain.Identity
	err = r.pool.QueryRow(ctx, sql, args...).Scan(
		&identity.ID,
		&identity.Label,
		&identity.SecretHash,
		&identity.Deactivated,
		&identity.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, classifyError("select identity", err)
	}

	return &identity, nil
}

// Deactivate soft-deletes the identity; all further execution is blocked.
func (r *IdentityRepository) Deactivate(ctx context.Context, id string) error {
	sql, args, err := r.builder.Update("identities").
		Set("deactivated", true).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build deactivate identity sql: %w", err)
	}

	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return classifyError("deactivate identity", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}
