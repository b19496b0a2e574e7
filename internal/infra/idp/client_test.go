package idp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/arklim/tollgate/internal/core/port"
	"github.com/arklim/tollgate/internal/infra/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewClient(config.ProviderSettings{
		BaseURL: server.URL,
		Timeout: 2 * time.Second,
	}, zaptest.NewLogger(t))
}

func TestClient_RefreshSessionSuccess(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/token/refresh" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body struct {
			RefreshToken string `json:"refresh_token"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if body.RefreshToken != "cred-1" {
			t.Errorf("unexpected credential %q", body.RefreshToken)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "access-2",
			"refresh_token": "cred-2",
			"expires_in":    1800,
		})
	})

	tokens, err := client.RefreshSession(context.Background(), "cred-1")
	if err != nil {
		t.Fatalf("RefreshSession returned error: %v", err)
	}
	if tokens.RefreshCredential != "cred-2" || tokens.AccessToken != "access-2" {
		t.Fatalf("unexpected tokens: %+v", tokens)
	}
	if tokens.ExpiresIn != 30*time.Minute {
		t.Fatalf("unexpected expiry: %v", tokens.ExpiresIn)
	}
}

func TestClient_RefreshSessionRejected(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusBadRequest} {
		client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(status)
		})

		_, err := client.RefreshSession(context.Background(), "cred-1")
		if !errors.Is(err, port.ErrRefreshRejected) {
			t.Fatalf("status %d: expected ErrRefreshRejected, got %v", status, err)
		}
	}
}

func TestClient_RefreshSessionOutageIsNotRejection(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.RefreshSession(context.Background(), "cred-1")
	if err == nil {
		t.Fatalf("expected error")
	}
	if errors.Is(err, port.ErrRefreshRejected) {
		t.Fatalf("outages must not map to rejection: %v", err)
	}
}
