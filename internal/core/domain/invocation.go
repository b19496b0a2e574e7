package domain

import (
	"encoding/json"
	"time"
)

// Error codes surfaced across the gateway boundary. Raw storage errors are
// never exposed; every terminal failure maps to one of these.
const (
	CodeUnauthenticated     = "UNAUTHENTICATED"
	CodeIdentityDeactivated = "IDENTITY_DEACTIVATED"
	CodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	CodeUnknownOperation    = "UNKNOWN_OPERATION"
	CodePersistenceFailed   = "PERSISTENCE_FAILED"
	CodeOperationFailed     = "OPERATION_FAILED"
	CodeInternal            = "INTERNAL"
)

// InvocationRequest is one inbound metered operation call. ActionID is
// generated once per logical attempt; callers retrying the same logical
// request must present the same ActionID.
type InvocationRequest struct {
	Operation  string
	IdentityID string
	ActionID   string
	Input      json.RawMessage
}

// InvocationResult is the terminal outcome of a dispatched invocation.
// ActionID is always populated: when the caller omitted one, it carries the
// gateway-generated ID so the same logical request can be retried idempotently.
type InvocationResult struct {
	ActionID       string
	Success        bool
	Output         json.RawMessage
	ErrorCode      string
	TokensConsumed int64
	BalanceAfter   int64
	Replayed       bool
}

// AuditRecord is the structured record emitted exactly once per terminal
// outcome of an invocation, never per retry attempt.
type AuditRecord struct {
	EventID        string    `json:"event_id"`
	Timestamp      time.Time `json:"timestamp"`
	IdentityID     string    `json:"identity_id"`
	Operation      string    `json:"operation"`
	ActionID       string    `json:"action_id"`
	TokensConsumed int64     `json:"tokens_consumed"`
	Success        bool      `json:"success"`
	ErrorCode      string    `json:"error_code,omitempty"`
	TraceID        string    `json:"trace_id,omitempty"`
}
