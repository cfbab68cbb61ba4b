package credstore

import (
	"context"
	"fmt"
)

var ErrCredentialNotFound = fmt.Errorf("credential not found")

// Record is the persisted form of a session's tokens. Both tokens are opaque.
type Record struct {
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// Empty reports whether the record holds no token at all.
func (r Record) Empty() bool {
	return r.AccessToken == "" && r.RefreshToken == ""
}

// Store persists the credential record of exactly one session.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the stored record or ErrCredentialNotFound.
	Get(ctx context.Context) (*Record, error)

	// Put overwrites the stored record.
	Put(ctx context.Context, rec Record) error

	// Clear removes the stored record. Clearing an empty store is not an error.
	Clear(ctx context.Context) error
}

// StoreError indicates a failing storage backend.
type StoreError struct {
	Op      string // "get", "put", "clear"
	Backend string
	Cause   error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s credentials (%s): %v", e.Op, e.Backend, e.Cause)
}

func (e *StoreError) Unwrap() error {
	return e.Cause
}
