package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/gitdm/gitdm/internal/credstore"
	"github.com/gitdm/gitdm/internal/metrics"
)

const DefaultRefreshTimeout = 15 * time.Second

// Tokens is what the issuer hands out. RefreshToken may be empty on refresh.
type Tokens struct {
	AccessToken  string
	RefreshToken string
}

// CredentialIssuer exchanges user credentials for tokens.
type CredentialIssuer interface {
	Issue(ctx context.Context, email, password string) (Tokens, error)
}

// CredentialRefresher exchanges a refresh token for a new access token.
// It is expected to enforce its own timeout as well.
type CredentialRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (Tokens, error)
}

type Option func(*Manager)

// WithMetrics records refreshes and logouts.
func WithMetrics(m *metrics.Session) Option {
	return func(mgr *Manager) {
		mgr.metrics = m
	}
}

// WithRefreshTimeout bounds a single refresh token exchange.
func WithRefreshTimeout(d time.Duration) Option {
	return func(mgr *Manager) {
		if d > 0 {
			mgr.refreshTimeout = d
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(mgr *Manager) {
		mgr.logger = l
	}
}

// Manager is the session state machine. Construct one per process.
type Manager struct {
	store     credstore.Store
	issuer    CredentialIssuer
	refresher CredentialRefresher

	metrics        *metrics.Session
	refreshTimeout time.Duration
	logger         zerolog.Logger

	// loginMu serialises logins.
	loginMu sync.Mutex
	// writeMu serialises every transition that writes the store, so an epoch
	// check and the store write that depends on it cannot be split by a logout.
	writeMu sync.Mutex

	mu         sync.Mutex
	epoch      uint64
	access     string
	refreshing bool
	loggingIn  bool
	observers  map[int]func(Snapshot)
	nextObsID  int

	notifyMu sync.Mutex

	group singleflight.Group
	// flight is the single-flight key of the running refresh, "" if none.
	// flightSeq makes every refresh of one epoch use a fresh key. Both are
	// guarded by mu.
	flight    string
	flightSeq uint64
}

func New(store credstore.Store, issuer CredentialIssuer, refresher CredentialRefresher, opts ...Option) *Manager {
	m := &Manager{
		store:          store,
		issuer:         issuer,
		refresher:      refresher,
		refreshTimeout: DefaultRefreshTimeout,
		logger:         log.Logger,
		observers:      make(map[int]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With().Str("component", "session").Logger()
	return m
}

// Snapshot returns the current state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() Snapshot {
	status := Unauthenticated
	switch {
	case m.refreshing:
		status = Refreshing
	case m.loggingIn:
		status = Authenticating
	case m.access != "":
		status = Authenticated
	}
	return Snapshot{Status: status, HasToken: m.access != "", Epoch: m.epoch}
}

// AccessToken returns the token applied to outgoing requests, or "".
func (m *Manager) AccessToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.access
}

// Subscribe registers fn to be called after every state transition.
// fn must not call back into the Manager. The returned function removes the subscription.
func (m *Manager) Subscribe(fn func(Snapshot)) func() {
	m.mu.Lock()
	id := m.nextObsID
	m.nextObsID++
	m.observers[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.observers, id)
		m.mu.Unlock()
	}
}

func (m *Manager) notify() {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	snap := m.snapshotLocked()
	observers := make([]func(Snapshot), 0, len(m.observers))
	for _, fn := range m.observers {
		observers = append(observers, fn)
	}
	m.mu.Unlock()

	m.logger.Debug().
		Str("status", snap.Status.String()).
		Uint64("epoch", snap.Epoch).
		Msg("session.transition")

	for _, fn := range observers {
		fn(snap)
	}
}

// Login exchanges credentials for tokens and starts a new session.
// A failed login leaves any existing session untouched.
func (m *Manager) Login(ctx context.Context, email, password string) error {
	m.loginMu.Lock()
	defer m.loginMu.Unlock()

	m.setLoggingIn(true)
	tokens, err := m.issuer.Issue(ctx, email, password)
	if err != nil {
		m.setLoggingIn(false)
		return fmt.Errorf("login: %w", err)
	}
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		m.setLoggingIn(false)
		return fmt.Errorf("login: issuer returned incomplete credentials")
	}

	m.writeMu.Lock()
	err = m.store.Put(context.WithoutCancel(ctx), credstore.Record{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	})
	if err != nil {
		m.writeMu.Unlock()
		m.setLoggingIn(false)
		return fmt.Errorf("login: saving credentials: %w", err)
	}
	m.mu.Lock()
	m.epoch++
	m.access = tokens.AccessToken
	m.refreshing = false
	m.loggingIn = false
	m.mu.Unlock()
	m.writeMu.Unlock()

	m.logger.Info().Str("token", Fingerprint(tokens.AccessToken)).Msg("session.login")
	m.notify()
	return nil
}

func (m *Manager) setLoggingIn(v bool) {
	m.mu.Lock()
	m.loggingIn = v
	m.mu.Unlock()
	m.notify()
}

// Logout ends the session. It is safe from any state and idempotent.
// The in-memory session is always reset; a store error is still returned.
func (m *Manager) Logout(ctx context.Context) error {
	return m.ForceLogout(ctx, ReasonUser, nil)
}

// ForceLogout ends the session because of cause.
func (m *Manager) ForceLogout(ctx context.Context, reason LogoutReason, cause error) error {
	m.writeMu.Lock()
	err := m.endSessionLocked(ctx, reason, cause)
	m.writeMu.Unlock()

	m.notify()
	return err
}

// endSessionLocked requires writeMu. The caller notifies observers after releasing it.
func (m *Manager) endSessionLocked(ctx context.Context, reason LogoutReason, cause error) error {
	m.mu.Lock()
	m.epoch++
	m.access = ""
	m.refreshing = false
	m.mu.Unlock()

	err := m.store.Clear(context.WithoutCancel(ctx))

	ev := m.logger.Info()
	if reason != ReasonUser {
		ev = m.logger.Warn()
	}
	ev.Str("reason", string(reason)).AnErr("cause", cause).Msg("session.logout")
	m.metrics.Logout(string(reason))

	if err != nil {
		return fmt.Errorf("logout: clearing credentials: %w", err)
	}
	return nil
}

// ForceLogoutIfCurrent ends the session because of cause, but only while it
// still applies the access token used. A rejection of a token the session
// has already replaced, or of an earlier session, leaves the current one alone.
func (m *Manager) ForceLogoutIfCurrent(ctx context.Context, used string, reason LogoutReason, cause error) (bool, error) {
	m.writeMu.Lock()
	m.mu.Lock()
	current := m.access == used
	m.mu.Unlock()
	if !current {
		m.writeMu.Unlock()
		m.logger.Debug().Str("token", Fingerprint(used)).Msg("session.logout.stale")
		return false, nil
	}
	err := m.endSessionLocked(ctx, reason, cause)
	m.writeMu.Unlock()

	m.notify()
	return true, err
}

// logoutIfEpoch tears down the session only if it is still the one of epoch.
func (m *Manager) logoutIfEpoch(ctx context.Context, epoch uint64, reason LogoutReason, cause error) (bool, error) {
	m.writeMu.Lock()
	if !m.isCurrent(epoch) {
		m.writeMu.Unlock()
		return false, nil
	}
	err := m.endSessionLocked(ctx, reason, cause)
	m.writeMu.Unlock()

	m.notify()
	return true, err
}

// endSessionIfCurrent is logoutIfEpoch for the refresh path, which has no
// caller to report a store error to.
func (m *Manager) endSessionIfCurrent(epoch uint64, reason LogoutReason, cause error) bool {
	ended, err := m.logoutIfEpoch(context.Background(), epoch, reason, cause)
	if err != nil {
		m.logger.Error().Err(err).Msg("session.teardown_failed")
	}
	return ended
}

func (m *Manager) isCurrent(epoch uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epoch == epoch
}

// Restore revalidates a persisted session at startup. A stored refresh token
// is exchanged before the session is trusted; anything else ends up
// Unauthenticated with a cleared store.
//
// A Login that completes while Restore runs wins: Restore then leaves the
// session alone and reports its status.
func (m *Manager) Restore(ctx context.Context) (Status, error) {
	m.mu.Lock()
	epoch := m.epoch
	m.mu.Unlock()

	rec, err := m.store.Get(ctx)
	switch {
	case errors.Is(err, credstore.ErrCredentialNotFound):
		return m.Snapshot().Status, nil
	case err != nil:
		if ended, _ := m.logoutIfEpoch(ctx, epoch, ReasonStoreError, err); !ended {
			return m.Snapshot().Status, nil
		}
		return Unauthenticated, fmt.Errorf("restoring session: %w", err)
	case rec.RefreshToken == "":
		// an access token alone is never trusted
		ended, err := m.logoutIfEpoch(ctx, epoch, ReasonOrphanCredentials, nil)
		if !ended {
			return m.Snapshot().Status, nil
		}
		if err != nil {
			return Unauthenticated, fmt.Errorf("restoring session: %w", err)
		}
		return Unauthenticated, nil
	}

	// the stale token stays usable while the refresh is running
	m.mu.Lock()
	if m.epoch != epoch {
		snap := m.snapshotLocked()
		m.mu.Unlock()
		return snap.Status, nil
	}
	m.access = rec.AccessToken
	m.mu.Unlock()

	if _, err := m.joinEpoch(ctx, epoch, ""); err != nil {
		if errors.Is(err, ErrSessionEnded) && !m.isCurrent(epoch) {
			return m.Snapshot().Status, nil
		}
		return Unauthenticated, fmt.Errorf("restoring session: %w", err)
	}
	return Authenticated, nil
}

// EnsureFreshToken exchanges the stored refresh token for a new access token.
// Concurrent callers share one exchange and all observe its outcome. A caller
// whose ctx ends stops waiting; the exchange itself keeps running.
func (m *Manager) EnsureFreshToken(ctx context.Context) (string, error) {
	return m.join(ctx, "")
}

// RefreshIfStale is EnsureFreshToken for a caller that was rejected while
// using token used. If the session already moved on to another token, that
// token is returned without spending the refresh token again.
func (m *Manager) RefreshIfStale(ctx context.Context, used string) (string, error) {
	m.mu.Lock()
	current, refreshing := m.access, m.refreshing
	m.mu.Unlock()

	if !refreshing && current != "" && current != used {
		return current, nil
	}
	return m.join(ctx, used)
}

func (m *Manager) join(ctx context.Context, used string) (string, error) {
	m.mu.Lock()
	epoch := m.epoch
	m.mu.Unlock()
	return m.joinEpoch(ctx, epoch, used)
}

// joinEpoch joins or starts the refresh of the session of epoch.
func (m *Manager) joinEpoch(ctx context.Context, epoch uint64, used string) (string, error) {
	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return "", ErrSessionEnded
	}
	key := m.flight
	joined := key != "" && strings.HasPrefix(key, strconv.FormatUint(epoch, 10)+"/")
	if !joined {
		m.flightSeq++
		key = strconv.FormatUint(epoch, 10) + "/" + strconv.FormatUint(m.flightSeq, 10)
		m.flight = key
	}
	// DoChan does not run fn on this goroutine, so holding mu is fine
	ch := m.group.DoChan(key, func() (any, error) {
		token, err := m.refresh(epoch, used)
		m.mu.Lock()
		if m.flight == key {
			m.flight = ""
		}
		m.mu.Unlock()
		return token, err
	})
	m.mu.Unlock()

	if joined {
		m.metrics.Joined()
	}

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// refresh runs once per single-flight key. It is detached from any caller's
// context and bounded by refreshTimeout. With a non-empty used token it is a
// no-op if the session already carries a different token.
func (m *Manager) refresh(epoch uint64, used string) (string, error) {
	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return "", ErrSessionEnded
	}
	if current := m.access; used != "" && current != "" && current != used {
		m.mu.Unlock()
		return current, nil
	}
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.refreshTimeout)
	defer cancel()

	rec, err := m.store.Get(ctx)
	if errors.Is(err, credstore.ErrCredentialNotFound) || (err == nil && rec.RefreshToken == "") {
		if !m.endSessionIfCurrent(epoch, ReasonNoRefreshToken, nil) {
			return "", ErrSessionEnded
		}
		return "", ErrNoRefreshToken
	}
	if err != nil {
		m.metrics.Refresh(metrics.OutcomeFailure)
		if !m.endSessionIfCurrent(epoch, ReasonStoreError, err) {
			return "", ErrSessionEnded
		}
		return "", &RefreshError{Cause: err}
	}

	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return "", ErrSessionEnded
	}
	m.refreshing = true
	m.mu.Unlock()
	m.notify()

	m.logger.Debug().Str("refresh", Fingerprint(rec.RefreshToken)).Msg("session.refresh.start")
	tokens, err := m.refresher.Refresh(ctx, rec.RefreshToken)
	if err == nil && tokens.AccessToken == "" {
		err = fmt.Errorf("issuer returned no access token")
	}
	if err != nil {
		if !m.endSessionIfCurrent(epoch, ReasonRefreshFailed, err) {
			m.metrics.Refresh(metrics.OutcomeDiscarded)
			return "", ErrSessionEnded
		}
		m.metrics.Refresh(metrics.OutcomeFailure)
		return "", &RefreshError{Cause: err}
	}

	// the server may or may not rotate the refresh token; keep the old one only if it sent none
	next := credstore.Record{AccessToken: tokens.AccessToken, RefreshToken: tokens.RefreshToken}
	if next.RefreshToken == "" {
		next.RefreshToken = rec.RefreshToken
	}

	m.writeMu.Lock()
	if !m.isCurrent(epoch) {
		m.writeMu.Unlock()
		m.metrics.Refresh(metrics.OutcomeDiscarded)
		m.logger.Debug().Msg("session.refresh.discarded")
		return "", ErrSessionEnded
	}
	if err := m.store.Put(ctx, next); err != nil {
		_ = m.endSessionLocked(ctx, ReasonStoreError, err)
		m.writeMu.Unlock()
		m.notify()
		m.metrics.Refresh(metrics.OutcomeFailure)
		return "", &RefreshError{Cause: fmt.Errorf("saving credentials: %w", err)}
	}
	m.mu.Lock()
	m.access = next.AccessToken
	m.refreshing = false
	m.mu.Unlock()
	m.writeMu.Unlock()

	m.metrics.Refresh(metrics.OutcomeSuccess)
	m.logger.Debug().
		Str("token", Fingerprint(next.AccessToken)).
		Bool("rotated", tokens.RefreshToken != "").
		Msg("session.refresh.done")
	m.notify()
	return next.AccessToken, nil
}

// Fingerprint identifies a token in logs without revealing it.
func Fingerprint(token string) string {
	if token == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:4])
}
