package kafka

import (
	"context"

	"go.uber.org/zap"

	"github.com/arklim/tollgate/internal/core/domain"
	"github.com/arklim/tollgate/internal/core/port"
)

// StubPublisher logs audit records instead of sending them to Kafka. Used
// when no brokers are configured, typically in development.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a logging-only audit publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) Publish(_ context.Context, record domain.AuditRecord) error {
	p.logger.Info("audit record",
		zap.String("event_id", record.EventID),
		zap.Time("timestamp", record.Timestamp),
		zap.String("identity_id", record.IdentityID),
		zap.String("operation", record.Operation),
		zap.String("action_id", record.ActionID),
		zap.Int64("tokens_consumed", record.TokensConsumed),
		zap.Bool("success", record.Success),
		zap.String("error_code", record.ErrorCode),
	)
	return nil
}

func (p *StubPublisher) Close() error { return nil }

var _ port.AuditPublisher = (*StubPublisher)(nil)
