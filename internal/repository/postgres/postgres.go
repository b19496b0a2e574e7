package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/arklim/tollgate/internal/repository"
)

// pgExecutor is the subset of pgx operations shared by pools and transactions.
type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// pgPool extends pgExecutor with transaction support. *pgxpool.Pool and
// pgxmock pools both satisfy it.
type pgPool interface {
	pgExecutor
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS identities (
	id          TEXT PRIMARY KEY,
	label       TEXT NOT NULL DEFAULT '',
	secret_hash TEXT NOT NULL,
	deactivated BOOLEAN NOT NULL DEFAULT FALSE,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS balances (
	identity_id TEXT PRIMARY KEY REFERENCES identities(id),
	amount      BIGINT NOT NULL CHECK (amount >= 0),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS idempotency_records (
	action_id      TEXT PRIMARY KEY,
	identity_id    TEXT NOT NULL,
	operation      TEXT NOT NULL,
	amount_debited BIGINT NOT NULL DEFAULT 0,
	balance_after  BIGINT NOT NULL DEFAULT 0,
	input_digest   TEXT NOT NULL DEFAULT '',
	outcome_digest TEXT NOT NULL DEFAULT '',
	success        BOOLEAN NOT NULL DEFAULT FALSE,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_idempotency_identity
	ON idempotency_records (identity_id, created_at);
`

// InitSchema creates the gateway tables when they do not exist yet.
func InitSchema(ctx context.Context, pool pgExecutor) error {
	if _, err := pool.Exec(ctx, schemaDDL); err != nil {
		return classifyError("init schema", err)
	}
	return nil
}

// classifyError maps storage failures onto repository sentinels. Serialization
// conflicts, deadlocks, connection-class failures, and shutdown signals are
// transient and safe to retry with the same action ID.
func classifyError(op string, err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "40001", // serialization_failure
			pgErr.Code == "40P01",             // deadlock_detected
			pgErr.Code == "55P03",             // lock_not_available
			pgErr.Code == "57P01",             // admin_shutdown
			len(pgErr.Code) >= 2 && pgErr.Code[:2] == "08": // connection_exception class
			return fmt.Errorf("%w: %s: %v", repository.ErrStorageUnavailable, op, err)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %v", repository.ErrStorageUnavailable, op, err)
	}

	return fmt.Errorf("%s: %w", op, err)
}
