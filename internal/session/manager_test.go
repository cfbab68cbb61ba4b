package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitdm/gitdm/internal/credstore"
	"github.com/gitdm/gitdm/internal/metrics"
)

type fakeIssuer struct {
	tokens Tokens
	err    error
	calls  atomic.Int32
}

func (f *fakeIssuer) Issue(_ context.Context, email, password string) (Tokens, error) {
	f.calls.Add(1)
	if f.err != nil {
		return Tokens{}, f.err
	}
	if email != "a@b.com" || password != "pw" {
		return Tokens{}, ErrInvalidCredentials
	}
	return f.tokens, nil
}

// fakeRefresher answers from a table keyed by refresh token. If gate is set,
// every call blocks until it is closed.
type fakeRefresher struct {
	mu      sync.Mutex
	answers map[string]Tokens
	err     error
	gate    chan struct{}
	seen    []string
	calls   atomic.Int32
}

func (f *fakeRefresher) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.seen = append(f.seen, refreshToken)
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return Tokens{}, ctx.Err()
		}
	}
	if f.err != nil {
		return Tokens{}, f.err
	}
	tokens, ok := f.answers[refreshToken]
	if !ok {
		return Tokens{}, fmt.Errorf("refresh token %q expired", refreshToken)
	}
	return tokens, nil
}

type fixture struct {
	store     *credstore.InMemoryStore
	issuer    *fakeIssuer
	refresher *fakeRefresher
	metrics   *metrics.Session
	manager   *Manager
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	f := &fixture{
		store:  credstore.NewInMemoryStore(),
		issuer: &fakeIssuer{tokens: Tokens{AccessToken: "T1", RefreshToken: "R1"}},
		refresher: &fakeRefresher{answers: map[string]Tokens{
			"R1": {AccessToken: "T2", RefreshToken: "R2"},
			"R2": {AccessToken: "T3", RefreshToken: "R3"},
		}},
		metrics: metrics.NewSession(prometheus.NewRegistry()),
	}
	opts = append([]Option{WithMetrics(f.metrics), WithLogger(zerolog.Nop())}, opts...)
	f.manager = New(f.store, f.issuer, f.refresher, opts...)
	return f
}

func (f *fixture) login(t *testing.T) {
	t.Helper()
	require.NoError(t, f.manager.Login(context.Background(), "a@b.com", "pw"))
}

func (f *fixture) stored(t *testing.T) *credstore.Record {
	t.Helper()
	rec, err := f.store.Get(context.Background())
	if errors.Is(err, credstore.ErrCredentialNotFound) {
		return nil
	}
	require.NoError(t, err)
	return rec
}

func TestManager_Login(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, Unauthenticated, f.manager.Snapshot().Status)

	f.login(t)

	assert.Equal(t, Authenticated, f.manager.Snapshot().Status)
	assert.Equal(t, "T1", f.manager.AccessToken())
	assert.Equal(t, &credstore.Record{AccessToken: "T1", RefreshToken: "R1"}, f.stored(t))
}

func TestManager_LoginRejected(t *testing.T) {
	f := newFixture(t)

	err := f.manager.Login(context.Background(), "a@b.com", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	assert.Equal(t, Unauthenticated, f.manager.Snapshot().Status)
	assert.Nil(t, f.stored(t))
	assert.Equal(t, int32(1), f.issuer.calls.Load(), "a rejected login must not be retried")
}

func TestManager_FailedLoginKeepsExistingSession(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	err := f.manager.Login(context.Background(), "someone@else.com", "pw")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	assert.Equal(t, Authenticated, f.manager.Snapshot().Status)
	assert.Equal(t, "T1", f.manager.AccessToken())
	assert.Equal(t, "R1", f.stored(t).RefreshToken)
}

func TestManager_LoginIncompleteCredentials(t *testing.T) {
	f := newFixture(t)
	f.issuer.tokens = Tokens{AccessToken: "T1"}

	err := f.manager.Login(context.Background(), "a@b.com", "pw")
	require.Error(t, err)
	assert.Equal(t, Unauthenticated, f.manager.Snapshot().Status)
	assert.Nil(t, f.stored(t))
}

func TestManager_EnsureFreshToken(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	token, err := f.manager.EnsureFreshToken(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "T2", token)
	assert.Equal(t, "T2", f.manager.AccessToken())
	assert.Equal(t, Authenticated, f.manager.Snapshot().Status)
	assert.Equal(t, &credstore.Record{AccessToken: "T2", RefreshToken: "R2"}, f.stored(t))
	assert.Equal(t, []string{"R1"}, f.refresher.seen)

	// the marker is cleared, so a later call refreshes again with the rotated token
	token, err = f.manager.EnsureFreshToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "T3", token)
	assert.Equal(t, []string{"R1", "R2"}, f.refresher.seen)
}

func TestManager_RefreshKeepsRefreshTokenWhenNotRotated(t *testing.T) {
	f := newFixture(t)
	f.refresher.answers["R1"] = Tokens{AccessToken: "T2"}
	f.login(t)

	_, err := f.manager.EnsureFreshToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &credstore.Record{AccessToken: "T2", RefreshToken: "R1"}, f.stored(t))
}

func TestManager_RefreshFailureLogsOut(t *testing.T) {
	f := newFixture(t)
	f.refresher.answers = map[string]Tokens{}
	f.login(t)

	_, err := f.manager.EnsureFreshToken(context.Background())
	require.ErrorIs(t, err, ErrRefreshFailed)
	var refreshErr *RefreshError
	require.ErrorAs(t, err, &refreshErr)

	assert.Equal(t, Unauthenticated, f.manager.Snapshot().Status)
	assert.Empty(t, f.manager.AccessToken())
	assert.Nil(t, f.stored(t))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.LogoutTotal.WithLabelValues(string(ReasonRefreshFailed))))
}

func TestManager_RefreshTimeout(t *testing.T) {
	f := newFixture(t, WithRefreshTimeout(20*time.Millisecond))
	f.refresher.gate = make(chan struct{}) // never released
	f.login(t)

	_, err := f.manager.EnsureFreshToken(context.Background())
	require.ErrorIs(t, err, ErrRefreshFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, Unauthenticated, f.manager.Snapshot().Status)
	assert.Nil(t, f.stored(t))
}

func TestManager_NoRefreshToken(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager.EnsureFreshToken(context.Background())
	require.ErrorIs(t, err, ErrNoRefreshToken)

	assert.Equal(t, Unauthenticated, f.manager.Snapshot().Status)
	assert.Zero(t, f.refresher.calls.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.LogoutTotal.WithLabelValues(string(ReasonNoRefreshToken))))
}

func TestManager_SingleFlight(t *testing.T) {
	for _, n := range []int{2, 16, 64} {
		t.Run(fmt.Sprintf("success/%d callers", n), func(t *testing.T) {
			f := newFixture(t)
			f.refresher.gate = make(chan struct{})
			f.login(t)

			results := runConcurrently(t, f, n)

			assert.Equal(t, int32(1), f.refresher.calls.Load(), "exactly one refresh must be issued")
			for _, res := range results {
				require.NoError(t, res.err)
				assert.Equal(t, "T2", res.token)
			}
			assert.Equal(t, &credstore.Record{AccessToken: "T2", RefreshToken: "R2"}, f.stored(t))
			assert.Equal(t, float64(n-1), testutil.ToFloat64(f.metrics.RefreshJoined), "the leader does not count as joined")
		})

		t.Run(fmt.Sprintf("failure/%d callers", n), func(t *testing.T) {
			f := newFixture(t)
			f.refresher.gate = make(chan struct{})
			f.refresher.err = errors.New("refresh token expired")
			f.login(t)

			results := runConcurrently(t, f, n)

			assert.Equal(t, int32(1), f.refresher.calls.Load())
			for _, res := range results {
				assert.ErrorIs(t, res.err, ErrRefreshFailed)
			}
			assert.Equal(t, Unauthenticated, f.manager.Snapshot().Status)
			assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.LogoutTotal.WithLabelValues(string(ReasonRefreshFailed))))
		})
	}
}

type refreshResult struct {
	token string
	err   error
}

// runConcurrently starts n EnsureFreshToken calls, waits until one of them
// reached the refresher and the others joined it, then opens the gate.
func runConcurrently(t *testing.T, f *fixture, n int) []refreshResult {
	t.Helper()

	results := make([]refreshResult, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			token, err := f.manager.EnsureFreshToken(context.Background())
			results[i] = refreshResult{token: token, err: err}
		}(i)
	}

	require.Eventually(t, func() bool {
		return f.refresher.calls.Load() == 1 &&
			testutil.ToFloat64(f.metrics.RefreshJoined) == float64(n-1)
	}, time.Second, time.Millisecond)
	close(f.refresher.gate)
	wg.Wait()
	return results
}

func TestManager_RefreshIfStale(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	token, err := f.manager.RefreshIfStale(context.Background(), "T1")
	require.NoError(t, err)
	assert.Equal(t, "T2", token)

	// a second request that was rejected with T1 must not spend R2
	token, err = f.manager.RefreshIfStale(context.Background(), "T1")
	require.NoError(t, err)
	assert.Equal(t, "T2", token)
	assert.Equal(t, int32(1), f.refresher.calls.Load())

	// a rejection of the current token does refresh
	token, err = f.manager.RefreshIfStale(context.Background(), "T2")
	require.NoError(t, err)
	assert.Equal(t, "T3", token)
}

func TestManager_LogoutIdempotent(t *testing.T) {
	t.Run("without login", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.manager.Logout(context.Background()))
		require.NoError(t, f.manager.Logout(context.Background()))
		assert.Equal(t, Unauthenticated, f.manager.Snapshot().Status)
		assert.Nil(t, f.stored(t))
	})

	t.Run("after login", func(t *testing.T) {
		f := newFixture(t)
		f.login(t)
		for i := 0; i < 2; i++ {
			require.NoError(t, f.manager.Logout(context.Background()))
			assert.Equal(t, Unauthenticated, f.manager.Snapshot().Status)
			assert.Empty(t, f.manager.AccessToken())
			assert.Nil(t, f.stored(t))
		}
	})
}

func TestManager_DiscardAfterLogout(t *testing.T) {
	f := newFixture(t)
	f.refresher.gate = make(chan struct{})
	f.login(t)

	done := make(chan error, 1)
	go func() {
		_, err := f.manager.EnsureFreshToken(context.Background())
		done <- err
	}()
	require.Eventually(t, func() bool {
		return f.manager.Snapshot().Status == Refreshing
	}, time.Second, time.Millisecond)

	require.NoError(t, f.manager.Logout(context.Background()))
	close(f.refresher.gate)

	err := <-done
	require.ErrorIs(t, err, ErrSessionEnded)
	assert.Equal(t, Unauthenticated, f.manager.Snapshot().Status)
	assert.Empty(t, f.manager.AccessToken())
	assert.Nil(t, f.stored(t), "a discarded refresh must not write the store")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.RefreshTotal.WithLabelValues(metrics.OutcomeDiscarded)))
}

func TestManager_LoginDuringRefreshWins(t *testing.T) {
	f := newFixture(t)
	f.refresher.gate = make(chan struct{})
	f.login(t)

	done := make(chan error, 1)
	go func() {
		_, err := f.manager.EnsureFreshToken(context.Background())
		done <- err
	}()
	require.Eventually(t, func() bool {
		return f.manager.Snapshot().Status == Refreshing
	}, time.Second, time.Millisecond)

	require.NoError(t, f.manager.Logout(context.Background()))
	f.issuer.tokens = Tokens{AccessToken: "N1", RefreshToken: "NR1"}
	f.login(t)
	close(f.refresher.gate)

	require.ErrorIs(t, <-done, ErrSessionEnded)
	assert.Equal(t, Authenticated, f.manager.Snapshot().Status)
	assert.Equal(t, "N1", f.manager.AccessToken())
	assert.Equal(t, &credstore.Record{AccessToken: "N1", RefreshToken: "NR1"}, f.stored(t))
}

func TestManager_CallerCancelDoesNotAbortRefresh(t *testing.T) {
	f := newFixture(t)
	f.refresher.gate = make(chan struct{})
	f.login(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := f.manager.EnsureFreshToken(ctx)
		done <- err
	}()
	require.Eventually(t, func() bool {
		return f.manager.Snapshot().Status == Refreshing
	}, time.Second, time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	close(f.refresher.gate)
	require.Eventually(t, func() bool {
		return f.manager.AccessToken() == "T2"
	}, time.Second, time.Millisecond)
	assert.Equal(t, Authenticated, f.manager.Snapshot().Status)
}

func TestManager_Restore(t *testing.T) {
	tests := []struct {
		name       string
		stored     *credstore.Record
		refreshErr error
		wantStatus Status
		wantErr    bool
		wantStored *credstore.Record
		wantCalls  int32
	}{
		{
			name:       "nothing stored",
			wantStatus: Unauthenticated,
		},
		{
			name:       "refresh token only, refresh succeeds",
			stored:     &credstore.Record{RefreshToken: "R1"},
			wantStatus: Authenticated,
			wantStored: &credstore.Record{AccessToken: "T2", RefreshToken: "R2"},
			wantCalls:  1,
		},
		{
			name:       "stale pair, refresh succeeds",
			stored:     &credstore.Record{AccessToken: "T1", RefreshToken: "R1"},
			wantStatus: Authenticated,
			wantStored: &credstore.Record{AccessToken: "T2", RefreshToken: "R2"},
			wantCalls:  1,
		},
		{
			name:       "refresh fails",
			stored:     &credstore.Record{AccessToken: "T1", RefreshToken: "R1"},
			refreshErr: errors.New("expired"),
			wantStatus: Unauthenticated,
			wantErr:    true,
			wantCalls:  1,
		},
		{
			name:       "access token alone is not trusted",
			stored:     &credstore.Record{AccessToken: "T1"},
			wantStatus: Unauthenticated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.refresher.err = tt.refreshErr
			if tt.stored != nil {
				require.NoError(t, f.store.Put(context.Background(), *tt.stored))
			}

			status, err := f.manager.Restore(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Restore() error = %v, wantErr %v", err, tt.wantErr)
			}
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantStatus, f.manager.Snapshot().Status)
			assert.Equal(t, tt.wantStored, f.stored(t))
			assert.Equal(t, tt.wantCalls, f.refresher.calls.Load())
		})
	}
}

func TestManager_Subscribe(t *testing.T) {
	f := newFixture(t)

	var mu sync.Mutex
	var seen []Status
	unsubscribe := f.manager.Subscribe(func(s Snapshot) {
		mu.Lock()
		seen = append(seen, s.Status)
		mu.Unlock()
	})

	f.login(t)
	_, err := f.manager.EnsureFreshToken(context.Background())
	require.NoError(t, err)
	require.NoError(t, f.manager.Logout(context.Background()))

	unsubscribe()
	f.login(t)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Status{
		Authenticating,
		Authenticated,
		Refreshing,
		Authenticated,
		Unauthenticated,
	}, seen)
}

func TestManager_TokenSource(t *testing.T) {
	f := newFixture(t)
	ts := f.manager.TokenSource()

	_, err := ts.Token()
	require.ErrorIs(t, err, ErrNoRefreshToken)

	f.login(t)
	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "T1", tok.AccessToken)
	assert.Equal(t, "Bearer", tok.TokenType)
	assert.Zero(t, f.refresher.calls.Load())
}

func TestManager_SequentialRefreshesDoNotJoin(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	_, err := f.manager.EnsureFreshToken(context.Background())
	require.NoError(t, err)
	token, err := f.manager.EnsureFreshToken(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "T3", token)
	assert.Equal(t, int32(2), f.refresher.calls.Load())
	assert.Zero(t, testutil.ToFloat64(f.metrics.RefreshJoined))
}

func TestManager_ForceLogoutIfCurrent(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	ended, err := f.manager.ForceLogoutIfCurrent(context.Background(), "T0", ReasonUnauthorizedAfterRetry, nil)
	require.NoError(t, err)
	assert.False(t, ended, "a token the session no longer applies must not end it")
	assert.Equal(t, Authenticated, f.manager.Snapshot().Status)
	assert.NotNil(t, f.stored(t))

	ended, err = f.manager.ForceLogoutIfCurrent(context.Background(), "T1", ReasonUnauthorizedAfterRetry, nil)
	require.NoError(t, err)
	assert.True(t, ended)
	assert.Equal(t, Unauthenticated, f.manager.Snapshot().Status)
	assert.Nil(t, f.stored(t))
}

// hookStore runs onGet once, after the first Get has read the record.
type hookStore struct {
	*credstore.InMemoryStore
	once  sync.Once
	onGet func()
}

func (s *hookStore) Get(ctx context.Context) (*credstore.Record, error) {
	rec, err := s.InMemoryStore.Get(ctx)
	s.once.Do(s.onGet)
	return rec, err
}

func TestManager_RestoreYieldsToConcurrentLogin(t *testing.T) {
	store := &hookStore{InMemoryStore: credstore.NewInMemoryStore()}
	require.NoError(t, store.Put(context.Background(), credstore.Record{AccessToken: "T1", RefreshToken: "R1"}))

	issuer := &fakeIssuer{tokens: Tokens{AccessToken: "L1", RefreshToken: "LR1"}}
	refresher := &fakeRefresher{answers: map[string]Tokens{"R1": {AccessToken: "T2", RefreshToken: "R2"}}}
	m := New(store, issuer, refresher, WithLogger(zerolog.Nop()))
	store.onGet = func() {
		require.NoError(t, m.Login(context.Background(), "a@b.com", "pw"))
	}

	status, err := m.Restore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Authenticated, status)
	assert.Equal(t, "L1", m.AccessToken())
	assert.Zero(t, refresher.calls.Load(), "the stale stored refresh token must not be spent")

	rec, err := store.InMemoryStore.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, credstore.Record{AccessToken: "L1", RefreshToken: "LR1"}, *rec)
}
