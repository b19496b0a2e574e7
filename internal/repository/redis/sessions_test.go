package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	red "github.com/redis/go-redis/v9"

	"github.com/arklim/tollgate/internal/core/domain"
	"github.com/arklim/tollgate/internal/repository"
)

func newTestRedis(t *testing.T) (*red.Client, *miniredis.Miniredis) {
	t.Helper()

	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := red.NewClient(&red.Options{Addr: server.Addr()})

	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})

	return client, server
}

func testSession(token string) domain.Session {
	now := time.Now().UTC().Truncate(time.Second)
	return domain.Session{
		Token:             token,
		IdentityID:        "id-1",
		IssuedAt:          now,
		ExpiresAt:         now.Add(30 * time.Minute),
		LastAccessedAt:    now,
		RefreshCredential: "cred-" + token,
	}
}

func TestSessionStore_PutAndGet(t *testing.T) {
	client, _ := newTestRedis(t)
	store := NewSessionStore(client, "sess")
	ctx := context.Background()

	session := testSession("tok-1")
	if err := store.Put(ctx, session, time.Hour); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}

	got, err := store.Get(ctx, "tok-1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got.IdentityID != session.IdentityID {
		t.Fatalf("expected identity %q, got %q", session.IdentityID, got.IdentityID)
	}
	if !got.ExpiresAt.Equal(session.ExpiresAt) {
		t.Fatalf("expected expiry %v, got %v", session.ExpiresAt, got.ExpiresAt)
	}
}

func TestSessionStore_GetMissing(t *testing.T) {
	client, _ := newTestRedis(t)
	store := NewSessionStore(client, "sess")

	if _, err := store.Get(context.Background(), "never-issued"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSessionStore_TTLExpiry(t *testing.T) {
	client, server := newTestRedis(t)
	store := NewSessionStore(client, "sess")
	ctx := context.Background()

	if err := store.Put(ctx, testSession("tok-ttl"), time.Minute); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}

	server.FastForward(2 * time.Minute)

	if _, err := store.Get(ctx, "tok-ttl"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after TTL expiry, got %v", err)
	}
}

func TestSessionStore_TouchSlidesTTL(t *testing.T) {
	client, server := newTestRedis(t)
	store := NewSessionStore(client, "sess")
	ctx := context.Background()

	session := testSession("tok-touch")
	if err := store.Put(ctx, session, time.Minute); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}

	server.FastForward(30 * time.Second)

	session.Touch(time.Now().UTC())
	if err := store.Touch(ctx, session, time.Minute); err != nil {
		t.Fatalf("Touch returned error: %v", err)
	}

	// Past the original deadline but inside the slid window.
	server.FastForward(45 * time.Second)

	if _, err := store.Get(ctx, "tok-touch"); err != nil {
		t.Fatalf("expected session to survive after touch, got %v", err)
	}
}

func TestSessionStore_TouchUpdatesLastAccessedAt(t *testing.T) {
	client, _ := newTestRedis(t)
	store := NewSessionStore(client, "sess")
	ctx := context.Background()

	session := testSession("tok-access")
	if err := store.Put(ctx, session, time.Hour); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}

	accessed := session.LastAccessedAt.Add(10 * time.Minute)
	session.Touch(accessed)
	if err := store.Touch(ctx, session, time.Hour); err != nil {
		t.Fatalf("Touch returned error: %v", err)
	}

	got, err := store.Get(ctx, session.Token)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if !got.LastAccessedAt.Equal(accessed) {
		t.Fatalf("expected last accessed %v, got %v", accessed, got.LastAccessedAt)
	}
	if !got.ExpiresAt.Equal(session.ExpiresAt) {
		t.Fatalf("logical expiry must be untouched, got %v", got.ExpiresAt)
	}
}

func TestSessionStore_TouchDoesNotOverwriteConcurrentRotation(t *testing.T) {
	client, _ := newTestRedis(t)
	store := NewSessionStore(client, "sess")
	ctx := context.Background()

	session := testSession("tok-race")
	if err := store.Put(ctx, session, time.Hour); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}

	// A validation reads the session, then a refresh rotates it before the
	// validation's touch lands.
	stale := session
	stale.Touch(session.LastAccessedAt.Add(time.Minute))

	rotated := session
	rotated.ExpiresAt = session.ExpiresAt.Add(45 * time.Minute)
	rotated.RefreshCredential = "cred-rotated"
	if err := store.Put(ctx, rotated, time.Hour); err != nil {
		t.Fatalf("Put rotated returned error: %v", err)
	}

	if err := store.Touch(ctx, stale, time.Hour); err != nil {
		t.Fatalf("Touch returned error: %v", err)
	}

	got, err := store.Get(ctx, session.Token)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got.RefreshCredential != "cred-rotated" {
		t.Fatalf("stale touch must not revert the rotated credential, got %q", got.RefreshCredential)
	}
	if !got.ExpiresAt.Equal(rotated.ExpiresAt) {
		t.Fatalf("stale touch must not regress the rotated expiry: got %v want %v", got.ExpiresAt, rotated.ExpiresAt)
	}

	// The rotated credential stays claimable exactly once.
	token, err := store.ClaimRefresh(ctx, "cred-rotated")
	if err != nil {
		t.Fatalf("ClaimRefresh returned error: %v", err)
	}
	if token != session.Token {
		t.Fatalf("expected token %q, got %q", session.Token, token)
	}
}

func TestSessionStore_TouchMissingSessionIsNoop(t *testing.T) {
	client, _ := newTestRedis(t)
	store := NewSessionStore(client, "sess")

	session := testSession("tok-gone")
	if err := store.Touch(context.Background(), session, time.Hour); err != nil {
		t.Fatalf("Touch on a missing session must not error, got %v", err)
	}
}

func TestSessionStore_ClaimRefreshIsSingleUse(t *testing.T) {
	client, _ := newTestRedis(t)
	store := NewSessionStore(client, "sess")
	ctx := context.Background()

	session := testSession("tok-claim")
	if err := store.Put(ctx, session, time.Hour); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}

	token, err := store.ClaimRefresh(ctx, session.RefreshCredential)
	if err != nil {
		t.Fatalf("ClaimRefresh returned error: %v", err)
	}
	if token != session.Token {
		t.Fatalf("expected token %q, got %q", session.Token, token)
	}

	if _, err := store.ClaimRefresh(ctx, session.RefreshCredential); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("second claim must fail with ErrNotFound, got %v", err)
	}
}

func TestSessionStore_DeleteRemovesRefreshIndex(t *testing.T) {
	client, _ := newTestRedis(t)
	store := NewSessionStore(client, "sess")
	ctx := context.Background()

	session := testSession("tok-del")
	if err := store.Put(ctx, session, time.Hour); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}

	if err := store.Delete(ctx, session.Token); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}

	if _, err := store.Get(ctx, session.Token); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected session gone, got %v", err)
	}
	if _, err := store.ClaimRefresh(ctx, session.RefreshCredential); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected refresh index gone, got %v", err)
	}
}
