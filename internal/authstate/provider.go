// Package authstate is the read side of the session for the rest of the
// application: whether the user is signed in, whether the startup check is
// still running, and the login/logout entry points.
package authstate

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/gitdm/gitdm/internal/session"
)

// LoginRequiredError is returned by RequireAuth. ReturnTo is the page (or
// command) to continue with after a successful login.
type LoginRequiredError struct {
	ReturnTo string
}

func (e LoginRequiredError) Error() string {
	if e.ReturnTo == "" {
		return "login required"
	}
	return fmt.Sprintf("login required to access %s", e.ReturnTo)
}

// Manager is the part of session.Manager the provider forwards to.
type Manager interface {
	Snapshot() session.Snapshot
	Subscribe(fn func(session.Snapshot)) func()
	Restore(ctx context.Context) (session.Status, error)
	Login(ctx context.Context, email, password string) error
	Logout(ctx context.Context) error
}

var _ Manager = (*session.Manager)(nil)

type Provider struct {
	manager Manager

	startOnce sync.Once
	ready     chan struct{}

	mu          sync.RWMutex
	loading     bool
	snap        session.Snapshot
	listeners   map[int]chan session.Snapshot
	nextID      int
	unsubscribe func()
}

func NewProvider(m Manager) *Provider {
	p := &Provider{
		manager:   m,
		ready:     make(chan struct{}),
		loading:   true,
		snap:      m.Snapshot(),
		listeners: make(map[int]chan session.Snapshot),
	}
	p.unsubscribe = m.Subscribe(p.update)
	return p
}

// Start runs the startup revalidation once. Loading ends when it returns,
// whatever the outcome. Later calls return nil immediately.
func (p *Provider) Start(ctx context.Context) error {
	var err error
	p.startOnce.Do(func() {
		defer p.finishLoading()

		var status session.Status
		status, err = p.manager.Restore(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("session could not be restored")
			return
		}
		log.Debug().Str("status", status.String()).Msg("session restored")
	})
	return err
}

func (p *Provider) finishLoading() {
	snap := p.manager.Snapshot()
	p.mu.Lock()
	p.loading = false
	p.snap = snap
	p.mu.Unlock()

	close(p.ready)
	p.broadcast(snap)
}

// Ready is closed once the startup check has finished.
func (p *Provider) Ready() <-chan struct{} {
	return p.ready
}

func (p *Provider) IsLoading() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.loading
}

// IsAuthenticated is false while loading.
func (p *Provider) IsAuthenticated() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return !p.loading && p.snap.Authenticated()
}

// Status returns the last observed session status.
func (p *Provider) Status() session.Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snap.Status
}

func (p *Provider) Login(ctx context.Context, email, password string) error {
	return p.manager.Login(ctx, email, password)
}

func (p *Provider) Logout(ctx context.Context) error {
	return p.manager.Logout(ctx)
}

// RequireAuth waits for loading to finish and returns LoginRequiredError
// unless a session is active.
func (p *Provider) RequireAuth(ctx context.Context, returnTo string) error {
	select {
	case <-p.ready:
	case <-ctx.Done():
		return ctx.Err()
	}
	if !p.IsAuthenticated() {
		return LoginRequiredError{ReturnTo: returnTo}
	}
	return nil
}

// Changes returns a channel receiving every state change. Slow receivers
// miss intermediate states but always get the latest one. Call the returned
// function to stop receiving.
func (p *Provider) Changes() (<-chan session.Snapshot, func()) {
	ch := make(chan session.Snapshot, 1)

	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = ch
	p.mu.Unlock()

	return ch, func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

// Close detaches the provider from the manager.
func (p *Provider) Close() {
	p.unsubscribe()
}

func (p *Provider) update(snap session.Snapshot) {
	p.mu.Lock()
	p.snap = snap
	p.mu.Unlock()
	p.broadcast(snap)
}

func (p *Provider) broadcast(snap session.Snapshot) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, ch := range p.listeners {
		select {
		case ch <- snap:
		default:
			// replace the stale value nobody picked up yet
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}
