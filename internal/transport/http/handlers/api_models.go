package handlers

import (
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arklim/tollgate/internal/core/domain"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, code, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		Code:    code,
		TraceID: traceIDStr,
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// IdentitySummary describes a minimal view of an identity returned by the API.
type IdentitySummary struct {
	ID        string    `json:"id"`
	Label     string    `json:"label,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionSummary provides a compact view of session context in auth responses.
type SessionSummary struct {
	Token     string    `json:"token"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RegisterRequest defines the identity registration payload.
type RegisterRequest struct {
	Label          string `json:"label"`
	Secret         string `json:"secret" binding:"required,min=16"`
	InitialBalance int64  `json:"initial_balance" binding:"min=0"`
}

// RegisterResponse contains the created identity.
type RegisterResponse struct {
	Identity IdentitySummary `json:"identity"`
	Balance  int64           `json:"balance"`
}

// LoginRequest defines the payload for the login endpoint. The refresh
// credential is optional; without one the session expires terminally.
type LoginRequest struct {
	IdentityID        string `json:"identity_id" binding:"required"`
	Secret            string `json:"secret" binding:"required"`
	RefreshCredential string `json:"refresh_credential"`
}

// LoginResponse describes the response returned for a successful login.
type LoginResponse struct {
	AccessToken string          `json:"access_token"`
	TokenType   string          `json:"token_type"`
	Identity    IdentitySummary `json:"identity"`
	Session     SessionSummary  `json:"session"`
}

// RefreshRequest exchanges a single-use refresh credential explicitly.
type RefreshRequest struct {
	RefreshCredential string `json:"refresh_credential" binding:"required"`
}

// RefreshResponse returns the renewed session.
type RefreshResponse struct {
	Session SessionSummary `json:"session"`
}

// InvokeRequest is one metered operation call. ActionID is optional; when the
// client retries a request it must resend the same ActionID to be charged once.
type InvokeRequest struct {
	Operation string          `json:"operation" binding:"required"`
	ActionID  string          `json:"action_id"`
	Input     json.RawMessage `json:"input"`
}

// InvokeResponse is the terminal outcome of an invocation. ActionID echoes
// the effective action ID — the caller's own, or the gateway-generated one —
// so the same logical request can be retried idempotently after a timeout or
// a PERSISTENCE_FAILED outcome.
type InvokeResponse struct {
	ActionID       string          `json:"action_id"`
	Success        bool            `json:"success"`
	Output         json.RawMessage `json:"output,omitempty"`
	ErrorCode      string          `json:"error_code,omitempty"`
	TokensConsumed int64           `json:"tokens_consumed"`
	BalanceAfter   int64           `json:"balance_after"`
	Replayed       bool            `json:"replayed,omitempty"`
}

// OperationSummary describes one registered operation and its token cost.
type OperationSummary struct {
	Name string `json:"name"`
	Cost int64  `json:"cost"`
}

// OperationListResponse wraps the operation registry.
type OperationListResponse struct {
	Operations []OperationSummary `json:"operations"`
}

// CreditRequest tops up an identity's balance.
type CreditRequest struct {
	Amount int64 `json:"amount" binding:"required,gt=0"`
}

// CreditResponse returns the balance after the credit.
type CreditResponse struct {
	IdentityID   string `json:"identity_id"`
	BalanceAfter int64  `json:"balance_after"`
}

// BalanceResponse reports the advisory balance of an identity.
type BalanceResponse struct {
	IdentityID  string `json:"identity_id"`
	Balance     int64  `json:"balance"`
	Deactivated bool   `json:"deactivated"`
}

// HealthResponse describes the service health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

// ReadyResponse describes readiness probe results with dependency checks.
type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func newIdentitySummary(identity domain.Identity) IdentitySummary {
	return IdentitySummary{
		ID:        identity.ID,
		Label:     identity.Label,
		CreatedAt: identity.CreatedAt,
	}
}

func newSessionSummary(session domain.Session) SessionSummary {
	return SessionSummary{
		Token:     session.Token,
		IssuedAt:  session.IssuedAt,
		ExpiresAt: session.ExpiresAt,
	}
}
