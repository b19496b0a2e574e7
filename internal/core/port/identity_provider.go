package port

import (
	"context"
	"errors"
	"time"
)

// ErrRefreshRejected indicates the identity provider refused the refresh
// credential (revoked, already used, or unknown). Distinct from transport or
// provider outages, which surface as ordinary errors.
var ErrRefreshRejected = errors.New("identity provider rejected refresh credential")

// ProviderTokens is the identity provider's response to a refresh exchange.
type ProviderTokens struct {
	AccessToken       string
	RefreshCredential string
	ExpiresIn         time.Duration
}

// IdentityProvider is the external service that exchanges a single-use
// refresh credential for a renewed access/refresh pair.
type IdentityProvider interface {
	RefreshSession(ctx context.Context, refreshCredential string) (ProviderTokens, error)
}
