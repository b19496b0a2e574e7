package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arklim/tollgate/internal/core/domain"
	"github.com/arklim/tollgate/internal/core/port"
)

// auditSink is the slice of Producer the publisher needs; tests inject a fake.
type auditSink interface {
	Input() chan<- *sarama.ProducerMessage
	Topic() string
	Close() error
}

// AuditPublisher serializes audit records and hands them to the async
// producer. Records are keyed by identity so per-identity ordering is
// preserved within a partition.
type AuditPublisher struct {
	sink   auditSink
	logger *zap.Logger
}

// NewAuditPublisher constructs the Kafka-backed audit publisher.
func NewAuditPublisher(producer *Producer, logger *zap.Logger) *AuditPublisher {
	return newAuditPublisher(producer, logger)
}

func newAuditPublisher(sink auditSink, logger *zap.Logger) *AuditPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditPublisher{sink: sink, logger: logger}
}

// Publish enqueues one audit record. The active trace ID, when present, is
// stamped onto the record so operators can correlate audit entries with traces.
func (p *AuditPublisher) Publish(ctx context.Context, record domain.AuditRecord) error {
	if span := trace.SpanContextFromContext(ctx); span.HasTraceID() {
		record.TraceID = span.TraceID().String()
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.sink.Topic(),
		Key:   sarama.StringEncoder(record.IdentityID),
		Value: sarama.ByteEncoder(payload),
	}

	select {
	case p.sink.Input() <- msg:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("enqueue audit record: %w", ctx.Err())
	}
}

// Close shuts down the underlying producer.
func (p *AuditPublisher) Close() error {
	return p.sink.Close()
}

var _ port.AuditPublisher = (*AuditPublisher)(nil)
