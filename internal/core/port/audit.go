package port

import (
	"context"

	"github.com/arklim/tollgate/internal/core/domain"
)

// AuditPublisher delivers audit records to the operator-facing sink.
// Publish is called exactly once per terminal invocation outcome.
type AuditPublisher interface {
	Publish(ctx context.Context, record domain.AuditRecord) error
	Close() error
}
