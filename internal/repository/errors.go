package repository

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrInsufficientBalance indicates the debit would drive the balance negative.
	ErrInsufficientBalance = errors.New("repository: insufficient balance")
	// ErrIdentityDeactivated indicates the identity is missing or flagged deactivated.
	ErrIdentityDeactivated = errors.New("repository: identity deactivated")
	// ErrStorageUnavailable marks a transient storage failure that is safe to
	// retry with the same action ID.
	ErrStorageUnavailable = errors.New("repository: storage unavailable")
)
