package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/arklim/tollgate/internal/core/port"
	"github.com/arklim/tollgate/internal/repository"
)

// fakeLedger scripts per-call debit behavior and tracks applied debits.
type fakeLedger struct {
	balances map[string]int64
	applied  map[string]port.DebitOutcome
	failures []error
	calls    int
}

func newFakeLedger(balances map[string]int64) *fakeLedger {
	return &fakeLedger{
		balances: balances,
		applied:  make(map[string]port.DebitOutcome),
	}
}

func (f *fakeLedger) CheckBalance(_ context.Context, identityID string, required int64) (port.BalanceStatus, error) {
	amount, ok := f.balances[identityID]
	if !ok {
		return port.BalanceStatus{Sufficient: false, Deactivated: true}, nil
	}
	return port.BalanceStatus{Sufficient: amount >= required, Current: amount}, nil
}

func (f *fakeLedger) Debit(_ context.Context, req port.DebitRequest) (port.DebitOutcome, error) {
	f.calls++

	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		if err != nil {
			return port.DebitOutcome{}, err
		}
	}

	if outcome, ok := f.applied[req.ActionID]; ok {
		outcome.Replayed = true
		return outcome, nil
	}

	amount, ok := f.balances[req.IdentityID]
	if !ok {
		return port.DebitOutcome{}, repository.ErrIdentityDeactivated
	}
	if amount < req.Amount {
		outcome := port.DebitOutcome{Success: false, BalanceAfter: amount}
		f.applied[req.ActionID] = outcome
		return outcome, repository.ErrInsufficientBalance
	}

	f.balances[req.IdentityID] = amount - req.Amount
	outcome := port.DebitOutcome{Success: true, BalanceAfter: amount - req.Amount}
	f.applied[req.ActionID] = outcome
	return outcome, nil
}

func (f *fakeLedger) Credit(_ context.Context, identityID string, amount int64) (int64, error) {
	if _, ok := f.balances[identityID]; !ok {
		return 0, repository.ErrNotFound
	}
	f.balances[identityID] += amount
	return f.balances[identityID], nil
}

func noSleep(context.Context, time.Duration) error { return nil }

func TestDebitController_RetriesTransientFailuresThenSucceeds(t *testing.T) {
	ledger := newFakeLedger(map[string]int64{"id-1": 10})
	ledger.failures = []error{
		fmt.Errorf("%w: connection reset", repository.ErrStorageUnavailable),
		fmt.Errorf("%w: connection reset", repository.ErrStorageUnavailable),
		nil,
	}

	controller := NewDebitController(ledger, nil).withSleeper(noSleep)

	outcome, err := controller.Execute(context.Background(), port.DebitRequest{
		IdentityID: "id-1", Amount: 5, ActionID: "a1", Operation: "op",
	})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if !outcome.Success || outcome.BalanceAfter != 5 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if ledger.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", ledger.calls)
	}
	// Same final balance as a single immediate success.
	if ledger.balances["id-1"] != 5 {
		t.Fatalf("expected exactly one debit applied, balance %d", ledger.balances["id-1"])
	}
}

func TestDebitController_ReplayAfterPartialCommit(t *testing.T) {
	ledger := newFakeLedger(map[string]int64{"id-1": 10})
	controller := NewDebitController(ledger, nil).withSleeper(noSleep)

	req := port.DebitRequest{IdentityID: "id-1", Amount: 5, ActionID: "a1", Operation: "op"}

	first, err := controller.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("first Execute returned error: %v", err)
	}

	// The retried request discovers the committed attempt instead of re-applying it.
	second, err := controller.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("second Execute returned error: %v", err)
	}
	if !second.Replayed {
		t.Fatalf("expected replayed outcome, got %+v", second)
	}
	if second.BalanceAfter != first.BalanceAfter {
		t.Fatalf("replay must return the recorded outcome")
	}
	if ledger.balances["id-1"] != 5 {
		t.Fatalf("expected exactly one decrement, balance %d", ledger.balances["id-1"])
	}
}

func TestDebitController_ClientErrorsAreNotRetried(t *testing.T) {
	ledger := newFakeLedger(map[string]int64{"id-1": 3})
	controller := NewDebitController(ledger, nil).withSleeper(noSleep)

	_, err := controller.Execute(context.Background(), port.DebitRequest{
		IdentityID: "id-1", Amount: 5, ActionID: "a1", Operation: "op",
	})
	if !errors.Is(err, repository.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if ledger.calls != 1 {
		t.Fatalf("client errors must not be retried, got %d calls", ledger.calls)
	}
	if ledger.balances["id-1"] != 3 {
		t.Fatalf("balance must be unchanged, got %d", ledger.balances["id-1"])
	}
}

func TestDebitController_ExhaustionSurfacesPersistenceFailed(t *testing.T) {
	ledger := newFakeLedger(map[string]int64{"id-1": 10})
	ledger.failures = []error{
		fmt.Errorf("%w: down", repository.ErrStorageUnavailable),
		fmt.Errorf("%w: down", repository.ErrStorageUnavailable),
		fmt.Errorf("%w: down", repository.ErrStorageUnavailable),
		fmt.Errorf("%w: down", repository.ErrStorageUnavailable),
	}

	controller := NewDebitController(ledger, nil).WithRetryPolicy(4, time.Millisecond).withSleeper(noSleep)

	_, err := controller.Execute(context.Background(), port.DebitRequest{
		IdentityID: "id-1", Amount: 5, ActionID: "a1", Operation: "op",
	})
	if !errors.Is(err, ErrPersistenceFailed) {
		t.Fatalf("expected ErrPersistenceFailed, got %v", err)
	}
	if ledger.calls != 4 {
		t.Fatalf("expected 4 attempts, got %d", ledger.calls)
	}
	if ledger.balances["id-1"] != 10 {
		t.Fatalf("no debit must be applied, balance %d", ledger.balances["id-1"])
	}
}

func TestDebitController_BackoffDoubles(t *testing.T) {
	ledger := newFakeLedger(map[string]int64{"id-1": 10})
	ledger.failures = []error{
		fmt.Errorf("%w: down", repository.ErrStorageUnavailable),
		fmt.Errorf("%w: down", repository.ErrStorageUnavailable),
		nil,
	}

	var delays []time.Duration
	controller := NewDebitController(ledger, nil).
		WithRetryPolicy(4, 100*time.Millisecond).
		withSleeper(func(_ context.Context, d time.Duration) error {
			delays = append(delays, d)
			return nil
		})

	if _, err := controller.Execute(context.Background(), port.DebitRequest{
		IdentityID: "id-1", Amount: 1, ActionID: "a1", Operation: "op",
	}); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}
	if len(delays) != len(want) {
		t.Fatalf("expected %d backoffs, got %d", len(want), len(delays))
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Fatalf("backoff %d: expected %v, got %v", i, want[i], delays[i])
		}
	}
}

func TestDebitController_CancellationDuringBackoff(t *testing.T) {
	ledger := newFakeLedger(map[string]int64{"id-1": 10})
	ledger.failures = []error{fmt.Errorf("%w: down", repository.ErrStorageUnavailable)}

	ctx, cancel := context.WithCancel(context.Background())
	controller := NewDebitController(ledger, nil).withSleeper(func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	})

	_, err := controller.Execute(ctx, port.DebitRequest{
		IdentityID: "id-1", Amount: 5, ActionID: "a1", Operation: "op",
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	// Cancelled before any commit; balance untouched.
	if ledger.balances["id-1"] != 10 {
		t.Fatalf("expected balance unchanged, got %d", ledger.balances["id-1"])
	}
}
