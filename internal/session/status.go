package session

// Status is the state of the session.
type Status int

const (
	Unauthenticated Status = iota
	Authenticating
	Authenticated
	Refreshing
)

func (s Status) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	case Refreshing:
		return "refreshing"
	default:
		return "unknown"
	}
}

// Snapshot is a read-only view of the session.
type Snapshot struct {
	Status Status

	// HasToken is true while an access token is applied to outgoing requests.
	// During a refresh this may be the stale token.
	HasToken bool

	// Epoch increases with every login and logout.
	Epoch uint64
}

// Authenticated reports whether requests currently carry a token.
func (s Snapshot) Authenticated() bool {
	return s.HasToken
}

// LogoutReason tags why a session was torn down.
type LogoutReason string

const (
	ReasonUser                   LogoutReason = "user"
	ReasonNoRefreshToken         LogoutReason = "no_refresh_token"
	ReasonRefreshFailed          LogoutReason = "refresh_failed"
	ReasonUnauthorizedAfterRetry LogoutReason = "unauthorized_after_retry"
	ReasonOrphanCredentials      LogoutReason = "orphan_credentials"
	ReasonStoreError             LogoutReason = "store_error"
)
