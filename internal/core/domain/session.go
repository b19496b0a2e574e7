package domain

import "time"

// Session represents a persisted authorization record bound to an identity.
// The refresh credential, when present, is a single-use secret exchanged with
// the identity provider for a renewed session.
type Session struct {
	Token             string    `json:"token"`
	IdentityID        string    `json:"identity_id"`
	IssuedAt          time.Time `json:"issued_at"`
	ExpiresAt         time.Time `json:"expires_at"`
	LastAccessedAt    time.Time `json:"last_accessed_at"`
	RefreshCredential string    `json:"refresh_credential,omitempty"`
}

// IsValid reports whether the session has not yet reached its logical expiry
// at the supplied moment.
func (s Session) IsValid(at time.Time) bool {
	return at.Before(s.ExpiresAt)
}

// Refreshable reports whether an expired session still carries a refresh
// credential that can be exchanged for a renewed one.
func (s Session) Refreshable() bool {
	return s.RefreshCredential != ""
}

// Touch records activity on the session without moving its logical expiry.
func (s *Session) Touch(at time.Time) {
	s.LastAccessedAt = at
}
