// Package audit records the token grants of the dev server.
package audit

import "time"

// Actions.
const (
	ActionTokenObtain  = "token.obtain"
	ActionTokenRefresh = "token.refresh"
)

// Entry is one grant decision.
type Entry struct {
	// ID is the request's correlation id (X-Correlation-ID).
	ID      string    `json:"id"`
	Time    time.Time `json:"time"`
	Action  string    `json:"action"`
	Subject string    `json:"subject,omitempty"`
	Granted bool      `json:"granted"`
	Error   string    `json:"error,omitempty"`

	// TokenFingerprint identifies the issued access token.
	TokenFingerprint string `json:"token_fingerprint,omitempty"`
	Rotated          bool   `json:"rotated,omitempty"`
}

type Auditor interface {
	Log(entry Entry) error
	Close() error
}
