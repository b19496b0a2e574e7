// Package idp implements the HTTP client for the upstream identity provider
// that exchanges single-use refresh credentials.
package idp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/tollgate/internal/core/port"
	"github.com/arklim/tollgate/internal/infra/config"
)

// Client calls the provider's token endpoint. Authentication rejections map
// to port.ErrRefreshRejected; transport failures and 5xx responses surface as
// ordinary errors so callers can treat them as outages.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient constructs the provider client.
func NewClient(cfg config.ProviderSettings, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// RefreshSession exchanges the refresh credential for a renewed pair.
func (c *Client) RefreshSession(ctx context.Context, refreshCredential string) (port.ProviderTokens, error) {
	body, err := json.Marshal(refreshRequest{RefreshToken: refreshCredential})
	if err != nil {
		return port.ProviderTokens{}, fmt.Errorf("marshal refresh request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/token/refresh", bytes.NewReader(body))
	if err != nil {
		return port.ProviderTokens{}, fmt.Errorf("build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return port.ProviderTokens{}, fmt.Errorf("call identity provider: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return port.ProviderTokens{}, port.ErrRefreshRejected
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		// Malformed or unknown credential; treated as a rejection, not an outage.
		return port.ProviderTokens{}, fmt.Errorf("%w: status %d", port.ErrRefreshRejected, resp.StatusCode)
	default:
		return port.ProviderTokens{}, fmt.Errorf("identity provider returned status %d", resp.StatusCode)
	}

	var payload refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return port.ProviderTokens{}, fmt.Errorf("decode refresh response: %w", err)
	}

	return port.ProviderTokens{
		AccessToken:       payload.AccessToken,
		RefreshCredential: payload.RefreshToken,
		ExpiresIn:         time.Duration(payload.ExpiresIn) * time.Second,
	}, nil
}

var _ port.IdentityProvider = (*Client)(nil)
