package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/tollgate/internal/core/domain"
	"github.com/arklim/tollgate/internal/core/port"
	"github.com/arklim/tollgate/internal/infra/security"
	"github.com/arklim/tollgate/internal/infra/telemetry"
	"github.com/arklim/tollgate/internal/repository"
)

// ErrUnknownOperation indicates the requested operation is not registered.
var ErrUnknownOperation = errors.New("unknown operation")

// Executor is the per-identity execution context handle. It is stateless
// with respect to accounting: losing it to eviction or restart only costs a
// rebuild, never correctness.
type Executor struct {
	IdentityID string
	CreatedAt  time.Time
}

// OperationFunc runs one registered operation against an execution context.
type OperationFunc func(ctx context.Context, exec *Executor, input json.RawMessage) (json.RawMessage, error)

// Operation is a named, metered unit of work with a fixed token cost.
type Operation struct {
	Name string
	Cost int64
	Run  OperationFunc
}

// Dispatcher orchestrates one metered invocation: advisory balance check,
// executor resolution through the instance cache, idempotent debit with
// retries, operation execution, outcome write-back, and exactly one audit
// record per terminal outcome.
type Dispatcher struct {
	ledger  port.LedgerRepository
	debits  *DebitController
	records port.IdempotencyRepository
	cache   port.InstanceCache
	audit   port.AuditPublisher
	ops     map[string]Operation
	logger  *zap.Logger
	metrics *telemetry.Metrics
	now     func() time.Time
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(
	ledger port.LedgerRepository,
	debits *DebitController,
	records port.IdempotencyRepository,
	instanceCache port.InstanceCache,
	audit port.AuditPublisher,
	logger *zap.Logger,
) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}

	d := &Dispatcher{
		ledger:  ledger,
		debits:  debits,
		records: records,
		cache:   instanceCache,
		audit:   audit,
		ops:     make(map[string]Operation),
		logger:  logger,
	}
	d.now = func() time.Time { return time.Now().UTC() }
	return d
}

// WithClock overrides the dispatcher clock for deterministic tests.
func (d *Dispatcher) WithClock(clock func() time.Time) {
	if clock != nil {
		d.now = clock
	}
}

// WithMetrics attaches engine metrics.
func (d *Dispatcher) WithMetrics(metrics *telemetry.Metrics) *Dispatcher {
	d.metrics = metrics
	return d
}

// RegisterOperation adds an operation to the registry. Registering a name
// twice replaces the previous definition.
func (d *Dispatcher) RegisterOperation(op Operation) error {
	if op.Name == "" {
		return fmt.Errorf("operation name is required")
	}
	if op.Cost < 0 {
		return fmt.Errorf("operation cost must be non-negative")
	}
	if op.Run == nil {
		return fmt.Errorf("operation handler is required")
	}

	d.ops[op.Name] = op
	return nil
}

// Operations lists the registered operation names and costs.
func (d *Dispatcher) Operations() []Operation {
	ops := make([]Operation, 0, len(d.ops))
	for _, op := range d.ops {
		ops = append(ops, op)
	}
	return ops
}

// Dispatch executes one metered invocation end to end. Tokens consumed by a
// successful debit stay consumed even when the operation itself fails
// afterwards; the failure and the charge are both recorded.
func (d *Dispatcher) Dispatch(ctx context.Context, req domain.InvocationRequest) (domain.InvocationResult, error) {
	if req.IdentityID == "" {
		return domain.InvocationResult{}, fmt.Errorf("identity id is required")
	}

	// The action ID is fixed here, before any side effect, and reused by
	// every retry of this logical request.
	actionID := req.ActionID
	if actionID == "" {
		actionID = uuid.NewString()
	}

	result, err := d.dispatch(ctx, req, actionID)
	if err != nil {
		return domain.InvocationResult{}, err
	}

	result.ActionID = actionID
	return result, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, req domain.InvocationRequest, actionID string) (domain.InvocationResult, error) {
	// A caller-supplied action ID may belong to an attempt that already
	// committed. The recorded outcome wins over any fresh evaluation: the
	// balance may have drained or the identity been deactivated since, and
	// neither turns a committed attempt into a new rejection or a second
	// audit record.
	if req.ActionID != "" {
		record, err := d.records.Get(ctx, req.ActionID)
		switch {
		case err == nil:
			d.metrics.ObserveDebitReplay()
			return d.recordedResult(record), nil
		case !errors.Is(err, repository.ErrNotFound):
			// The debit transaction re-checks the action ID; deferring to it
			// keeps a transient lookup failure from double-charging.
			d.logger.Warn("idempotency lookup failed, deferring to debit",
				zap.String("action_id", req.ActionID),
				zap.Error(err),
			)
		}
	}

	op, ok := d.ops[req.Operation]
	if !ok {
		result := domain.InvocationResult{ErrorCode: domain.CodeUnknownOperation}
		d.emitAudit(ctx, req, actionID, result)
		return result, nil
	}

	status, err := d.ledger.CheckBalance(ctx, req.IdentityID, op.Cost)
	if err != nil {
		return domain.InvocationResult{}, fmt.Errorf("check balance: %w", err)
	}
	if status.Deactivated {
		result := domain.InvocationResult{ErrorCode: domain.CodeIdentityDeactivated}
		d.emitAudit(ctx, req, actionID, result)
		return result, nil
	}
	if !status.Sufficient {
		// Advisory rejection before doing expensive work. The authoritative
		// check still happens inside the debit transaction.
		d.metrics.ObserveInsufficientBalance()
		result := domain.InvocationResult{ErrorCode: domain.CodeInsufficientBalance, BalanceAfter: status.Current}
		d.emitAudit(ctx, req, actionID, result)
		return result, nil
	}

	exec := d.resolveExecutor(req.IdentityID)

	outcome, err := d.debits.Execute(ctx, port.DebitRequest{
		IdentityID:  req.IdentityID,
		Amount:      op.Cost,
		ActionID:    actionID,
		Operation:   op.Name,
		InputDigest: security.Digest(req.Input),
	})
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrInsufficientBalance):
		d.metrics.ObserveInsufficientBalance()
		result := domain.InvocationResult{ErrorCode: domain.CodeInsufficientBalance, BalanceAfter: outcome.BalanceAfter}
		d.emitAudit(ctx, req, actionID, result)
		return result, nil
	case errors.Is(err, repository.ErrIdentityDeactivated):
		result := domain.InvocationResult{ErrorCode: domain.CodeIdentityDeactivated}
		d.emitAudit(ctx, req, actionID, result)
		return result, nil
	case errors.Is(err, ErrPersistenceFailed):
		// Best-effort failure audit; deliberately not atomic with anything.
		result := domain.InvocationResult{ErrorCode: domain.CodePersistenceFailed}
		d.emitAudit(ctx, req, actionID, result)
		return result, nil
	default:
		return domain.InvocationResult{}, fmt.Errorf("debit: %w", err)
	}

	if outcome.Replayed {
		// Duplicate of an attempt that was already audited once; return the
		// recorded outcome without a second audit record or a second charge.
		return d.replayResult(ctx, actionID, outcome), nil
	}

	output, opErr := d.runOperation(ctx, op, exec, req.Input)
	if opErr != nil {
		// Fail-forward accounting: the tokens stay consumed and the failure
		// is recorded. Refunds are a separate administrative action.
		d.recordOutcome(ctx, actionID, security.Digest([]byte(opErr.Error())), false)
		result := domain.InvocationResult{
			ErrorCode:      domain.CodeOperationFailed,
			TokensConsumed: op.Cost,
			BalanceAfter:   outcome.BalanceAfter,
		}
		d.emitAudit(ctx, req, actionID, result)
		return result, nil
	}

	d.recordOutcome(ctx, actionID, security.Digest(output), true)

	result := domain.InvocationResult{
		Success:        true,
		Output:         output,
		TokensConsumed: op.Cost,
		BalanceAfter:   outcome.BalanceAfter,
	}
	d.emitAudit(ctx, req, actionID, result)
	return result, nil
}

// resolveExecutor returns the cached execution context for the identity or
// rebuilds it. A miss is always recoverable; the cache is never the system
// of record.
func (d *Dispatcher) resolveExecutor(identityID string) *Executor {
	if cached, ok := d.cache.Get(identityID); ok {
		if exec, ok := cached.(*Executor); ok {
			return exec
		}
	}

	exec := &Executor{IdentityID: identityID, CreatedAt: d.now()}
	d.cache.Set(identityID, exec)
	return exec
}

func (d *Dispatcher) runOperation(ctx context.Context, op Operation, exec *Executor, input json.RawMessage) (output json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("operation panic: %v", r)
		}
	}()

	return op.Run(ctx, exec, input)
}

func (d *Dispatcher) recordOutcome(ctx context.Context, actionID, digest string, success bool) {
	if err := d.records.RecordOutcome(ctx, actionID, digest, success); err != nil {
		d.logger.Warn("record outcome failed",
			zap.String("action_id", actionID),
			zap.Error(err),
		)
	}
}

// recordedResult rebuilds the invocation result directly from a stored
// idempotency record, without re-entering the ledger.
func (d *Dispatcher) recordedResult(record *domain.IdempotencyRecord) domain.InvocationResult {
	result := domain.InvocationResult{
		Success:        record.Success,
		TokensConsumed: record.AmountDebited,
		BalanceAfter:   record.BalanceAfter,
		Replayed:       true,
	}
	if !record.Success {
		result.ErrorCode = domain.CodeInsufficientBalance
		if record.OutcomeDigest != "" {
			result.ErrorCode = domain.CodeOperationFailed
		}
	}
	return result
}

// replayResult reconstructs the invocation result from the stored record.
func (d *Dispatcher) replayResult(ctx context.Context, actionID string, outcome port.DebitOutcome) domain.InvocationResult {
	result := domain.InvocationResult{
		Success:      outcome.Success,
		BalanceAfter: outcome.BalanceAfter,
		Replayed:     true,
	}
	if !outcome.Success {
		result.ErrorCode = domain.CodeInsufficientBalance
	}

	if record, err := d.records.Get(ctx, actionID); err == nil {
		result.TokensConsumed = record.AmountDebited
		if !record.Success && record.OutcomeDigest != "" {
			result.ErrorCode = domain.CodeOperationFailed
		}
	} else if !errors.Is(err, repository.ErrNotFound) {
		d.logger.Warn("load idempotency record failed",
			zap.String("action_id", actionID),
			zap.Error(err),
		)
	}

	return result
}

// emitAudit publishes the terminal outcome exactly once. Publish failures are
// logged, never allowed to fail the invocation.
func (d *Dispatcher) emitAudit(ctx context.Context, req domain.InvocationRequest, actionID string, result domain.InvocationResult) {
	outcome := domain.CodeInternal
	if result.Success {
		outcome = "OK"
	} else if result.ErrorCode != "" {
		outcome = result.ErrorCode
	}
	d.metrics.ObserveInvocation(req.Operation, outcome)

	record := domain.AuditRecord{
		EventID:        uuid.NewString(),
		Timestamp:      d.now(),
		IdentityID:     req.IdentityID,
		Operation:      req.Operation,
		ActionID:       actionID,
		TokensConsumed: result.TokensConsumed,
		Success:        result.Success,
	}
	if !result.Success {
		record.ErrorCode = result.ErrorCode
	}

	if err := d.audit.Publish(ctx, record); err != nil {
		d.logger.Error("audit publish failed",
			zap.String("action_id", actionID),
			zap.Error(err),
		)
	}
}
