package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap/zaptest"

	"github.com/arklim/tollgate/internal/core/domain"
)

type fakeSink struct {
	input  chan *sarama.ProducerMessage
	topic  string
	closed bool
}

func newFakeSink() *fakeSink {
	return &fakeSink{input: make(chan *sarama.ProducerMessage, 1), topic: "tollgate.audit"}
}

func (f *fakeSink) Input() chan<- *sarama.ProducerMessage { return f.input }
func (f *fakeSink) Topic() string                         { return f.topic }
func (f *fakeSink) Close() error                          { f.closed = true; return nil }

func TestAuditPublisher_PublishEnqueuesRecord(t *testing.T) {
	sink := newFakeSink()
	publisher := newAuditPublisher(sink, zaptest.NewLogger(t))

	record := domain.AuditRecord{
		EventID:        "ev-1",
		Timestamp:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		IdentityID:     "id-1",
		Operation:      "summarize",
		ActionID:       "a1",
		TokensConsumed: 3,
		Success:        true,
	}
	if err := publisher.Publish(context.Background(), record); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}

	msg := <-sink.input
	if msg.Topic != "tollgate.audit" {
		t.Fatalf("unexpected topic %q", msg.Topic)
	}

	key, err := msg.Key.Encode()
	if err != nil {
		t.Fatalf("encode key: %v", err)
	}
	if string(key) != "id-1" {
		t.Fatalf("records must be keyed by identity, got %q", key)
	}

	value, err := msg.Value.Encode()
	if err != nil {
		t.Fatalf("encode value: %v", err)
	}
	var decoded domain.AuditRecord
	if err := json.Unmarshal(value, &decoded); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if decoded.ActionID != "a1" || decoded.TokensConsumed != 3 || !decoded.Success {
		t.Fatalf("unexpected payload: %+v", decoded)
	}
}

func TestAuditPublisher_PublishHonorsCancellation(t *testing.T) {
	sink := newFakeSink()
	sink.input <- &sarama.ProducerMessage{} // fill the buffer so the enqueue blocks

	publisher := newAuditPublisher(sink, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := publisher.Publish(ctx, domain.AuditRecord{IdentityID: "id-1"}); err == nil {
		t.Fatalf("expected cancellation error")
	}
}

func TestAuditPublisher_CloseClosesSink(t *testing.T) {
	sink := newFakeSink()
	publisher := newAuditPublisher(sink, zaptest.NewLogger(t))

	if err := publisher.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if !sink.closed {
		t.Fatalf("expected sink to be closed")
	}
}
