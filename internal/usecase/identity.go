package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/tollgate/internal/core/domain"
	"github.com/arklim/tollgate/internal/core/port"
	"github.com/arklim/tollgate/internal/infra/security"
	"github.com/arklim/tollgate/internal/repository"
)

var (
	// ErrInvalidCredentials indicates the identity or secret did not match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrIdentityNotFound indicates the identity does not exist.
	ErrIdentityNotFound = errors.New("identity not found")
	// ErrIdentityDeactivated indicates the identity is flagged deactivated.
	ErrIdentityDeactivated = errors.New("identity deactivated")
)

// IdentityService manages identity registration, authentication, and
// administrative balance actions.
type IdentityService struct {
	identities port.IdentityRepository
	ledger     port.LedgerRepository
	sessions   *SessionService
	tokens     *security.JWTManager
	logger     *zap.Logger
	now        func() time.Time
}

// NewIdentityService constructs an IdentityService.
func NewIdentityService(
	identities port.IdentityRepository,
	ledger port.LedgerRepository,
	sessions *SessionService,
	tokens *security.JWTManager,
	logger *zap.Logger,
) *IdentityService {
	if logger == nil {
		logger = zap.NewNop()
	}

	service := &IdentityService{
		identities: identities,
		ledger:     ledger,
		sessions:   sessions,
		tokens:     tokens,
		logger:     logger,
	}
	service.now = func() time.Time { return time.Now().UTC() }
	return service
}

// WithClock overrides the service clock for deterministic tests.
func (s *IdentityService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Register creates an identity with an Argon2id-hashed API secret and its
// initial balance.
func (s *IdentityService) Register(ctx context.Context, label, secret string, initialBalance int64) (*domain.Identity, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("secret is required")
	}
	if initialBalance < 0 {
		return nil, fmt.Errorf("initial balance must be non-negative")
	}

	hash, err := security.HashSecret(secret)
	if err != nil {
		return nil, fmt.Errorf("hash secret: %w", err)
	}

	identity := domain.Identity{
		ID:         uuid.NewString(),
		Label:      strings.TrimSpace(label),
		SecretHash: hash,
		CreatedAt:  s.now(),
	}

	if err := s.identities.Create(ctx, identity, initialBalance); err != nil {
		return nil, fmt.Errorf("create identity: %w", err)
	}

	s.logger.Info("identity registered",
		zap.String("identity_id", identity.ID),
		zap.Int64("initial_balance", initialBalance),
	)

	return &identity, nil
}

// LoginResult carries the artifacts of a successful login.
type LoginResult struct {
	AccessToken string
	Session     *domain.Session
	Identity    *domain.Identity
}

// Login verifies the API secret, creates a session, and mints an access
// token bound to it. The optional refresh credential (obtained by the client
// from the identity provider) makes the session renewable.
func (s *IdentityService) Login(ctx context.Context, identityID, secret, refreshCredential string) (*LoginResult, error) {
	identity, err := s.identities.GetByID(ctx, identityID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Same answer as a bad secret; do not leak which one it was.
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load identity: %w", err)
	}

	if !identity.CanExecute() {
		return nil, ErrIdentityDeactivated
	}

	ok, err := security.VerifySecret(secret, identity.SecretHash)
	if err != nil {
		return nil, fmt.Errorf("verify secret: %w", err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	session, err := s.sessions.Create(ctx, identity.ID, refreshCredential)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	accessToken, err := s.tokens.Issue(identity.ID, session.Token)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	return &LoginResult{AccessToken: accessToken, Session: session, Identity: identity}, nil
}

// Deactivate soft-deletes the identity, blocking all further execution.
func (s *IdentityService) Deactivate(ctx context.Context, identityID string) error {
	if err := s.identities.Deactivate(ctx, identityID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrIdentityNotFound
		}
		return fmt.Errorf("deactivate identity: %w", err)
	}
	return nil
}

// Credit tops up the identity's balance. This is the administrative
// compensation path; failed post-debit operations are never refunded
// automatically.
func (s *IdentityService) Credit(ctx context.Context, identityID string, amount int64) (int64, error) {
	after, err := s.ledger.Credit(ctx, identityID, amount)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, ErrIdentityNotFound
		}
		return 0, fmt.Errorf("credit balance: %w", err)
	}

	s.logger.Info("balance credited",
		zap.String("identity_id", identityID),
		zap.Int64("amount", amount),
		zap.Int64("balance_after", after),
	)

	return after, nil
}

// Balance returns the advisory balance status for the identity.
func (s *IdentityService) Balance(ctx context.Context, identityID string) (port.BalanceStatus, error) {
	status, err := s.ledger.CheckBalance(ctx, identityID, 0)
	if err != nil {
		return port.BalanceStatus{}, fmt.Errorf("check balance: %w", err)
	}
	return status, nil
}
