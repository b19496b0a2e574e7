package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/tollgate/internal/core/port"
	"github.com/arklim/tollgate/internal/infra/telemetry"
	"github.com/arklim/tollgate/internal/repository"
)

// ErrPersistenceFailed indicates the debit could not be committed after
// exhausting retries. The caller is told the operation did not complete; if a
// prior attempt had in fact committed silently, the idempotency record
// guarantees a later retry with the same action ID observes that state
// instead of double-billing.
var ErrPersistenceFailed = errors.New("persistence failed after retries")

const (
	defaultDebitAttempts  = 4
	defaultDebitBaseDelay = 100 * time.Millisecond
)

// DebitController wraps ledger debits with bounded exponential backoff for
// transient storage errors. Every retry reuses the caller's action ID, so a
// partially-committed earlier attempt is discovered as an idempotent replay
// rather than re-applied. Client errors are surfaced immediately, never
// retried.
type DebitController struct {
	ledger      port.LedgerRepository
	maxAttempts int
	baseDelay   time.Duration
	logger      *zap.Logger
	metrics     *telemetry.Metrics
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewDebitController constructs a controller with the default retry policy.
func NewDebitController(ledger port.LedgerRepository, logger *zap.Logger) *DebitController {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DebitController{
		ledger:      ledger,
		maxAttempts: defaultDebitAttempts,
		baseDelay:   defaultDebitBaseDelay,
		logger:      logger,
		sleep:       sleepContext,
	}
}

// WithRetryPolicy overrides the attempt budget and base delay.
func (c *DebitController) WithRetryPolicy(maxAttempts int, baseDelay time.Duration) *DebitController {
	if maxAttempts > 0 {
		c.maxAttempts = maxAttempts
	}
	if baseDelay > 0 {
		c.baseDelay = baseDelay
	}
	return c
}

// WithMetrics attaches engine metrics.
func (c *DebitController) WithMetrics(metrics *telemetry.Metrics) *DebitController {
	c.metrics = metrics
	return c
}

// withSleeper overrides the backoff sleeper for deterministic tests.
func (c *DebitController) withSleeper(sleep func(ctx context.Context, d time.Duration) error) *DebitController {
	if sleep != nil {
		c.sleep = sleep
	}
	return c
}

// Execute applies the debit, retrying transient storage failures. The three
// terminal branches are kept distinct: already applied (replay, success),
// still failing (retry, then ErrPersistenceFailed), and never apply (client
// error, no retry).
func (c *DebitController) Execute(ctx context.Context, req port.DebitRequest) (port.DebitOutcome, error) {
	var lastErr error
	delay := c.baseDelay

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		outcome, err := c.ledger.Debit(ctx, req)
		switch {
		case err == nil:
			if outcome.Replayed {
				c.metrics.ObserveDebitReplay()
			}
			return outcome, nil

		case errors.Is(err, repository.ErrInsufficientBalance),
			errors.Is(err, repository.ErrIdentityDeactivated):
			return outcome, err

		case errors.Is(err, repository.ErrStorageUnavailable):
			lastErr = err
			if attempt == c.maxAttempts {
				break
			}
			c.metrics.ObserveDebitRetry()
			c.logger.Warn("transient debit failure, retrying",
				zap.String("action_id", req.ActionID),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", delay),
				zap.Error(err),
			)
			if sleepErr := c.sleep(ctx, delay); sleepErr != nil {
				// Cancelled before the debit committed; no balance effect.
				return port.DebitOutcome{}, sleepErr
			}
			delay *= 2

		default:
			return port.DebitOutcome{}, err
		}
	}

	return port.DebitOutcome{}, fmt.Errorf("%w: %v", ErrPersistenceFailed, lastErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
