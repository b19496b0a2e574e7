package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/arklim/tollgate/internal/core/domain"
	"github.com/arklim/tollgate/internal/repository"
)

const (
	defaultSessionPrefix = "sess"
	defaultRefreshPrefix = "refresh"
)

// SessionStore implements port.SessionStore on Redis. Sessions live under
// sess:{token} with a sliding TTL; when a session carries a refresh
// credential, refresh:{sha256(credential)} points back at the token and is
// consumed atomically with GETDEL so a credential can be claimed exactly once.
type SessionStore struct {
	client        *red.Client
	sessionPrefix string
	refreshPrefix string
}

// NewSessionStore constructs a Redis-backed session store.
func NewSessionStore(client *red.Client, keyPrefix string) *SessionStore {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultSessionPrefix
	}

	return &SessionStore{
		client:        client,
		sessionPrefix: prefix,
		refreshPrefix: defaultRefreshPrefix,
	}
}

// Put stores the session and, when present, its refresh credential index.
func (s *SessionStore) Put(ctx context.Context, session domain.Session, ttl time.Duration) error {
	if strings.TrimSpace(session.Token) == "" {
		return fmt.Errorf("session token is required")
	}
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive")
	}

	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe red.Pipeliner) error {
		pipe.Set(ctx, s.sessionKey(session.Token), payload, ttl)
		if session.RefreshCredential != "" {
			pipe.Set(ctx, s.refreshKey(session.RefreshCredential), session.Token, ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}

	return nil
}

// Get returns the session stored under the token.
func (s *SessionStore) Get(ctx context.Context, token string) (*domain.Session, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("session token is required")
	}

	payload, err := s.client.Get(ctx, s.sessionKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("redis get session: %w", err)
	}

	var session domain.Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}

	return &session, nil
}

// Touch records activity on the session and slides the storage TTL forward.
// The payload is only rewritten when the stored record still matches the
// caller's snapshot: a concurrent rotation owns the record, and a stale
// snapshot must never overwrite the rotated expiry or credential. In that
// case only the TTL slides.
func (s *SessionStore) Touch(ctx context.Context, session domain.Session, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive")
	}

	key := s.sessionKey(session.Token)

	err := s.client.Watch(ctx, func(tx *red.Tx) error {
		payload, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, red.Nil) {
				// Evicted between the caller's read and now; nothing to touch.
				return nil
			}
			return err
		}

		var stored domain.Session
		if err := json.Unmarshal(payload, &stored); err != nil {
			return fmt.Errorf("unmarshal session: %w", err)
		}

		if !stored.ExpiresAt.Equal(session.ExpiresAt) || stored.RefreshCredential != session.RefreshCredential {
			_, err = tx.TxPipelined(ctx, func(pipe red.Pipeliner) error {
				pipe.Expire(ctx, key, ttl)
				return nil
			})
			return err
		}

		stored.LastAccessedAt = session.LastAccessedAt
		updated, err := json.Marshal(stored)
		if err != nil {
			return fmt.Errorf("marshal session: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe red.Pipeliner) error {
			pipe.Set(ctx, key, updated, ttl)
			if stored.RefreshCredential != "" {
				pipe.Expire(ctx, s.refreshKey(stored.RefreshCredential), ttl)
			}
			return nil
		})
		return err
	}, key)
	if errors.Is(err, red.TxFailedErr) {
		// Lost the race to a concurrent writer; their state stands.
		return nil
	}
	if err != nil {
		return fmt.Errorf("redis touch session: %w", err)
	}

	return nil
}

// ClaimRefresh consumes the refresh credential index entry atomically and
// returns the token it pointed at. A second concurrent claim, or reuse of an
// already-rotated credential, observes repository.ErrNotFound.
func (s *SessionStore) ClaimRefresh(ctx context.Context, refreshCredential string) (string, error) {
	if strings.TrimSpace(refreshCredential) == "" {
		return "", fmt.Errorf("refresh credential is required")
	}

	token, err := s.client.GetDel(ctx, s.refreshKey(refreshCredential)).Result()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return "", repository.ErrNotFound
		}
		return "", fmt.Errorf("redis claim refresh credential: %w", err)
	}

	return token, nil
}

// Delete removes the session and its refresh index entry.
func (s *SessionStore) Delete(ctx context.Context, token string) error {
	session, err := s.Get(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	}

	keys := []string{s.sessionKey(token)}
	if session.RefreshCredential != "" {
		keys = append(keys, s.refreshKey(session.RefreshCredential))
	}

	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis delete session: %w", err)
	}

	return nil
}

func (s *SessionStore) sessionKey(token string) string {
	return fmt.Sprintf("%s:%s", s.sessionPrefix, token)
}

func (s *SessionStore) refreshKey(credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return fmt.Sprintf("%s:%s", s.refreshPrefix, hex.EncodeToString(sum[:]))
}
