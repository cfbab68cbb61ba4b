package session

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials is returned when the issuer rejects a login.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrNoRefreshToken is returned when a refresh is needed but nothing is stored to refresh with.
	ErrNoRefreshToken = errors.New("no refresh token available")

	// ErrRefreshFailed matches every *RefreshError.
	ErrRefreshFailed = errors.New("refresh failed")

	// ErrSessionEnded is returned to callers of a refresh whose session was
	// logged out (or replaced by a new login) before the refresh resolved.
	ErrSessionEnded = errors.New("session ended")
)

// RefreshError wraps the reason a refresh token exchange failed.
type RefreshError struct {
	Cause error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("refresh failed: %v", e.Cause)
}

func (e *RefreshError) Unwrap() error {
	return e.Cause
}

func (e *RefreshError) Is(target error) bool {
	return target == ErrRefreshFailed
}
