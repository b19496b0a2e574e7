package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/arklim/tollgate/internal/core/port"
	"github.com/arklim/tollgate/internal/repository"
)

func newLedgerMock(t *testing.T) (pgxmock.PgxPoolIface, *LedgerRepository) {
	t.Helper()

	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	t.Cleanup(mock.Close)

	return mock, NewLedgerRepository(mock)
}

func TestLedgerRepository_Debit_Success(t *testing.T) {
	mock, repo := newLedgerMock(t)

	req := port.DebitRequest{
		IdentityID:  "id-1",
		Amount:      5,
		ActionID:    "a1",
		Operation:   "summarize",
		InputDigest: "digest-1",
	}

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	mock.ExpectQuery(`SELECT amount_debited, balance_after, success FROM idempotency_records`).
		WithArgs(req.ActionID).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(`INSERT INTO idempotency_records`).
		WithArgs(req.ActionID, req.IdentityID, req.Operation, req.InputDigest).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`SELECT b\.amount, i\.deactivated`).
		WithArgs(req.IdentityID).
		WillReturnRows(pgxmock.NewRows([]string{"amount", "deactivated"}).AddRow(int64(10), false))
	mock.ExpectQuery(`UPDATE balances`).
		WithArgs(req.IdentityID, req.Amount).
		WillReturnRows(pgxmock.NewRows([]string{"amount"}).AddRow(int64(5)))
	mock.ExpectExec(`UPDATE idempotency_records`).
		WithArgs(req.ActionID, req.Amount, int64(5)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	outcome, err := repo.Debit(context.Background(), req)
	if err != nil {
		t.Fatalf("Debit returned error: %v", err)
	}
	if !outcome.Success || outcome.Replayed {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if outcome.BalanceAfter != 5 {
		t.Fatalf("expected balance 5, got %d", outcome.BalanceAfter)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestLedgerRepository_Debit_Replay(t *testing.T) {
	mock, repo := newLedgerMock(t)

	req := port.DebitRequest{IdentityID: "id-1", Amount: 5, ActionID: "a1", Operation: "summarize"}

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	mock.ExpectQuery(`SELECT amount_debited, balance_after, success FROM idempotency_records`).
		WithArgs(req.ActionID).
		WillReturnRows(pgxmock.NewRows([]string{"amount_debited", "balance_after", "success"}).
			AddRow(int64(5), int64(5), true))
	mock.ExpectRollback()

	outcome, err := repo.Debit(context.Background(), req)
	if err != nil {
		t.Fatalf("Debit returned error: %v", err)
	}
	if !outcome.Replayed {
		t.Fatalf("expected replayed outcome, got %+v", outcome)
	}
	if !outcome.Success || outcome.BalanceAfter != 5 {
		t.Fatalf("replay must return the recorded outcome, got %+v", outcome)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestLedgerRepository_Debit_InsufficientBalance(t *testing.T) {
	mock, repo := newLedgerMock(t)

	req := port.DebitRequest{IdentityID: "id-1", Amount: 5, ActionID: "a2", Operation: "summarize"}

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	mock.ExpectQuery(`SELECT amount_debited, balance_after, success FROM idempotency_records`).
		WithArgs(req.ActionID).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(`INSERT INTO idempotency_records`).
		WithArgs(req.ActionID, req.IdentityID, req.Operation, "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`SELECT b\.amount, i\.deactivated`).
		WithArgs(req.IdentityID).
		WillReturnRows(pgxmock.NewRows([]string{"amount", "deactivated"}).AddRow(int64(3), false))
	mock.ExpectExec(`UPDATE idempotency_records`).
		WithArgs(req.ActionID, int64(3)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	outcome, err := repo.Debit(context.Background(), req)
	if !errors.Is(err, repository.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if outcome.Success {
		t.Fatalf("insufficient debit must not succeed")
	}
	if outcome.BalanceAfter != 3 {
		t.Fatalf("balance must be unchanged, got %d", outcome.BalanceAfter)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestLedgerRepository_Debit_DeactivatedIdentity(t *testing.T) {
	mock, repo := newLedgerMock(t)

	req := port.DebitRequest{IdentityID: "id-off", Amount: 1, ActionID: "a3", Operation: "summarize"}

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	mock.ExpectQuery(`SELECT amount_debited, balance_after, success FROM idempotency_records`).
		WithArgs(req.ActionID).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(`INSERT INTO idempotency_records`).
		WithArgs(req.ActionID, req.IdentityID, req.Operation, "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`SELECT b\.amount, i\.deactivated`).
		WithArgs(req.IdentityID).
		WillReturnRows(pgxmock.NewRows([]string{"amount", "deactivated"}).AddRow(int64(100), true))
	mock.ExpectRollback()

	_, err := repo.Debit(context.Background(), req)
	if !errors.Is(err, repository.ErrIdentityDeactivated) {
		t.Fatalf("expected ErrIdentityDeactivated, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestLedgerRepository_Debit_ConcurrentReservation(t *testing.T) {
	mock, repo := newLedgerMock(t)

	req := port.DebitRequest{IdentityID: "id-1", Amount: 5, ActionID: "a4", Operation: "summarize"}

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	mock.ExpectQuery(`SELECT amount_debited, balance_after, success FROM idempotency_records`).
		WithArgs(req.ActionID).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(`INSERT INTO idempotency_records`).
		WithArgs(req.ActionID, req.IdentityID, req.Operation, "").
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	_, err := repo.Debit(context.Background(), req)
	if !errors.Is(err, repository.ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable for concurrent reservation, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestLedgerRepository_CheckBalance(t *testing.T) {
	tests := []struct {
		name        string
		rows        *pgxmock.Rows
		rowErr      error
		required    int64
		wantStatus  port.BalanceStatus
	}{
		{
			name:       "sufficient",
			rows:       pgxmock.NewRows([]string{"deactivated", "amount"}).AddRow(false, int64(10)),
			required:   5,
			wantStatus: port.BalanceStatus{Sufficient: true, Current: 10},
		},
		{
			name:       "insufficient",
			rows:       pgxmock.NewRows([]string{"deactivated", "amount"}).AddRow(false, int64(3)),
			required:   5,
			wantStatus: port.BalanceStatus{Sufficient: false, Current: 3},
		},
		{
			name:       "deactivated despite balance",
			rows:       pgxmock.NewRows([]string{"deactivated", "amount"}).AddRow(true, int64(100)),
			required:   5,
			wantStatus: port.BalanceStatus{Sufficient: false, Current: 100, Deactivated: true},
		},
		{
			name:       "unknown identity",
			rowErr:     pgx.ErrNoRows,
			required:   5,
			wantStatus: port.BalanceStatus{Sufficient: false, Deactivated: true},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			mock, repo := newLedgerMock(t)

			query := mock.ExpectQuery(`SELECT i\.deactivated, COALESCE`).WithArgs("id-1")
			if tc.rowErr != nil {
				query.WillReturnError(tc.rowErr)
			} else {
				query.WillReturnRows(tc.rows)
			}

			status, err := repo.CheckBalance(context.Background(), "id-1", tc.required)
			if err != nil {
				t.Fatalf("CheckBalance returned error: %v", err)
			}
			if status != tc.wantStatus {
				t.Fatalf("expected %+v, got %+v", tc.wantStatus, status)
			}

			if err := mock.ExpectationsWereMet(); err != nil {
				t.Fatalf("unmet expectations: %v", err)
			}
		})
	}
}
