package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/tollgate/internal/core/domain"
	"github.com/arklim/tollgate/internal/core/port"
	"github.com/arklim/tollgate/internal/infra/security"
	"github.com/arklim/tollgate/internal/infra/telemetry"
	"github.com/arklim/tollgate/internal/repository"
)

// ValidateReason is the typed outcome of a failed session validation. An
// absent token and an expired-terminal session are deliberately reported the
// same way externally; the reason codes below are the full vocabulary.
type ValidateReason string

const (
	ReasonNoSession     ValidateReason = "NO_SESSION"
	ReasonExpired       ValidateReason = "EXPIRED"
	ReasonRefreshFailed ValidateReason = "REFRESH_FAILED"
)

// ValidateResult is the non-throwing outcome of ValidateAndRefresh. Absent or
// invalid tokens are normal, typed outcomes, never errors.
type ValidateResult struct {
	Valid   bool
	Session *domain.Session
	Reason  ValidateReason
}

// SessionService coordinates session creation, sliding validation, and
// single-use refresh credential rotation against the identity provider.
type SessionService struct {
	sessions        port.SessionStore
	provider        port.IdentityProvider
	sessionDuration time.Duration
	storeTTL        time.Duration
	logger          *zap.Logger
	metrics         *telemetry.Metrics
	now             func() time.Time
}

// NewSessionService constructs a SessionService. sessionDuration is the
// logical expiry window; storeTTL is the sliding window applied at the
// storage layer, independent of the logical expiry.
func NewSessionService(
	sessions port.SessionStore,
	provider port.IdentityProvider,
	sessionDuration time.Duration,
	storeTTL time.Duration,
	logger *zap.Logger,
) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}

	service := &SessionService{
		sessions:        sessions,
		provider:        provider,
		sessionDuration: sessionDuration,
		storeTTL:        storeTTL,
		logger:          logger,
	}
	service.now = func() time.Time { return time.Now().UTC() }
	return service
}

// WithClock overrides the service clock for deterministic tests.
func (s *SessionService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// WithMetrics attaches engine metrics.
func (s *SessionService) WithMetrics(metrics *telemetry.Metrics) *SessionService {
	s.metrics = metrics
	return s
}

// Create stores a new session for the identity. The refresh credential is
// optional; without one the session expires terminally.
func (s *SessionService) Create(ctx context.Context, identityID, refreshCredential string) (*domain.Session, error) {
	if identityID == "" {
		return nil, fmt.Errorf("identity id is required")
	}

	token, err := security.GenerateSecureToken(32)
	if err != nil {
		return nil, fmt.Errorf("generate session token: %w", err)
	}

	now := s.now()
	session := domain.Session{
		Token:             token,
		IdentityID:        identityID,
		IssuedAt:          now,
		ExpiresAt:         now.Add(s.sessionDuration),
		LastAccessedAt:    now,
		RefreshCredential: refreshCredential,
	}

	if err := s.sessions.Put(ctx, session, s.storeTTL); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}

	return &session, nil
}

// ValidateAndRefresh checks the session and, when it is expired but carries a
// refresh credential, attempts a single-use rotation through the identity
// provider. All expiry comparisons use one clock read. Unexpected provider or
// storage failures propagate as errors; everything else is a typed outcome.
func (s *SessionService) ValidateAndRefresh(ctx context.Context, token string) (ValidateResult, error) {
	now := s.now()

	session, err := s.sessions.Get(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Never issued or evicted by TTL; indistinguishable by design.
			return ValidateResult{Valid: false, Reason: ReasonNoSession}, nil
		}
		return ValidateResult{}, fmt.Errorf("load session: %w", err)
	}

	if session.IsValid(now) {
		session.Touch(now)
		if err := s.sessions.Touch(ctx, *session, s.storeTTL); err != nil {
			s.logger.Warn("session touch failed", zap.Error(err))
		}
		return ValidateResult{Valid: true, Session: session}, nil
	}

	if !session.Refreshable() {
		return ValidateResult{Valid: false, Reason: ReasonExpired}, nil
	}

	if _, err := s.sessions.ClaimRefresh(ctx, session.RefreshCredential); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// A concurrent refresh claimed the credential. Converge on the
			// winner's rotation when it already landed.
			fresh, ferr := s.sessions.Get(ctx, token)
			if ferr == nil && fresh.IsValid(now) {
				return ValidateResult{Valid: true, Session: fresh}, nil
			}
			s.metrics.ObserveSessionRefresh("lost_claim")
			return ValidateResult{Valid: false, Reason: ReasonRefreshFailed}, nil
		}
		return ValidateResult{}, fmt.Errorf("claim refresh credential: %w", err)
	}

	rotated, err := s.rotate(ctx, *session, now)
	if err != nil {
		if errors.Is(err, port.ErrRefreshRejected) {
			s.metrics.ObserveSessionRefresh("rejected")
			s.dropSession(ctx, token)
			return ValidateResult{Valid: false, Reason: ReasonRefreshFailed}, nil
		}
		return ValidateResult{}, err
	}

	s.metrics.ObserveSessionRefresh("rotated")
	return ValidateResult{Valid: true, Session: rotated}, nil
}

// RefreshByCredential exchanges an explicitly presented refresh credential.
// The credential is single-use: the first caller consumes it; reuse reports
// REFRESH_FAILED.
func (s *SessionService) RefreshByCredential(ctx context.Context, refreshCredential string) (ValidateResult, error) {
	now := s.now()

	token, err := s.sessions.ClaimRefresh(ctx, refreshCredential)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.metrics.ObserveSessionRefresh("rejected")
			return ValidateResult{Valid: false, Reason: ReasonRefreshFailed}, nil
		}
		return ValidateResult{}, fmt.Errorf("claim refresh credential: %w", err)
	}

	session, err := s.sessions.Get(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ValidateResult{Valid: false, Reason: ReasonNoSession}, nil
		}
		return ValidateResult{}, fmt.Errorf("load session: %w", err)
	}

	rotated, err := s.rotate(ctx, *session, now)
	if err != nil {
		if errors.Is(err, port.ErrRefreshRejected) {
			s.metrics.ObserveSessionRefresh("rejected")
			s.dropSession(ctx, token)
			return ValidateResult{Valid: false, Reason: ReasonRefreshFailed}, nil
		}
		return ValidateResult{}, err
	}

	s.metrics.ObserveSessionRefresh("rotated")
	return ValidateResult{Valid: true, Session: rotated}, nil
}

// Logout removes the session and its refresh index entry.
func (s *SessionService) Logout(ctx context.Context, token string) error {
	if err := s.sessions.Delete(ctx, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// rotate exchanges the session's refresh credential with the identity
// provider and persists the renewed session. Expiry never moves backwards
// across a refresh chain.
func (s *SessionService) rotate(ctx context.Context, session domain.Session, now time.Time) (*domain.Session, error) {
	tokens, err := s.provider.RefreshSession(ctx, session.RefreshCredential)
	if err != nil {
		return nil, err
	}

	expiresAt := now.Add(s.sessionDuration)
	if tokens.ExpiresIn > 0 {
		expiresAt = now.Add(tokens.ExpiresIn)
	}
	if !expiresAt.After(session.ExpiresAt) {
		expiresAt = session.ExpiresAt.Add(time.Second)
	}

	session.ExpiresAt = expiresAt
	session.RefreshCredential = tokens.RefreshCredential
	session.LastAccessedAt = now

	if err := s.sessions.Put(ctx, session, s.storeTTL); err != nil {
		return nil, fmt.Errorf("store rotated session: %w", err)
	}

	return &session, nil
}

func (s *SessionService) dropSession(ctx context.Context, token string) {
	if err := s.sessions.Delete(ctx, token); err != nil {
		s.logger.Warn("drop session failed", zap.String("token", security.Digest([]byte(token))[:8]), zap.Error(err))
	}
}
