// Package transport attaches the session's bearer token to outgoing requests
// and turns a 401 into one refresh-and-replay before giving up.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/xid"
	"github.com/rs/zerolog/log"

	"github.com/gitdm/gitdm/internal/metrics"
	"github.com/gitdm/gitdm/internal/session"
)

const CorrelationIDHeader = "X-Correlation-ID"

// ErrUnauthorizedAfterRetry is returned when a request is still rejected after
// it was replayed with a freshly refreshed token.
var ErrUnauthorizedAfterRetry = errors.New("unauthorized after token refresh")

// Session is the part of session.Manager the transport depends on.
type Session interface {
	AccessToken() string
	RefreshIfStale(ctx context.Context, used string) (string, error)
	ForceLogoutIfCurrent(ctx context.Context, used string, reason session.LogoutReason, cause error) (bool, error)
}

var _ Session = (*session.Manager)(nil)

type Option func(*RoundTripper)

func WithMetrics(m *metrics.Session) Option {
	return func(t *RoundTripper) {
		t.metrics = m
	}
}

// RoundTripper wraps a base transport. It never modifies the caller's request.
type RoundTripper struct {
	base    http.RoundTripper
	session Session
	metrics *metrics.Session
}

// New returns a RoundTripper around base (http.DefaultTransport if nil).
func New(base http.RoundTripper, s Session, opts ...Option) *RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	t := &RoundTripper{base: base, session: s}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// attempt is one send of a logical request.
type attempt struct {
	// token is the bearer token the attempt was sent with ("" if none).
	token string
	// explicit is set when the caller supplied its own Authorization header.
	explicit bool
	// replayed is set on the second and last send.
	replayed bool
}

func (t *RoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	orig, err := prepare(req)
	if err != nil {
		return nil, err
	}

	out, a := t.beforeRequest(orig, false)
	resp, err := t.base.RoundTrip(out)
	if err != nil {
		return nil, err
	}
	return t.onResponse(orig, resp, a)
}

// prepare clones req, makes its body replayable and pins a correlation id
// that every attempt of this request shares.
func prepare(req *http.Request) (*http.Request, error) {
	orig := req.Clone(req.Context())
	if orig.Body != nil && orig.Body != http.NoBody && orig.GetBody == nil {
		body, err := io.ReadAll(orig.Body)
		_ = orig.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("buffering request body: %w", err)
		}
		orig.Body = io.NopCloser(bytes.NewReader(body))
		orig.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
	}
	if orig.Header.Get(CorrelationIDHeader) == "" {
		orig.Header.Set(CorrelationIDHeader, xid.New().String())
	}
	return orig, nil
}

// beforeRequest returns the request to send. A replay gets a fresh body.
func (t *RoundTripper) beforeRequest(orig *http.Request, replayed bool) (*http.Request, attempt) {
	out := orig.Clone(orig.Context())
	a := attempt{replayed: replayed}

	if replayed && orig.GetBody != nil {
		if body, err := orig.GetBody(); err == nil {
			out.Body = body
		}
	}

	if out.Header.Get("Authorization") != "" {
		a.explicit = true
		return out, a
	}
	if token := t.session.AccessToken(); token != "" {
		out.Header.Set("Authorization", "Bearer "+token)
		a.token = token
	}
	return out, a
}

func (t *RoundTripper) onResponse(orig *http.Request, resp *http.Response, a attempt) (*http.Response, error) {
	if resp.StatusCode != http.StatusUnauthorized || a.explicit {
		if a.replayed {
			t.metrics.Replay(metrics.OutcomeSuccess)
		}
		return resp, nil
	}
	drain(resp)

	ctx := orig.Context()
	l := log.Ctx(ctx).With().
		Str("correlation_id", orig.Header.Get(CorrelationIDHeader)).
		Str("method", orig.Method).
		Str("url", orig.URL.Redacted()).
		Logger()

	if a.replayed {
		t.metrics.Replay("unauthorized")
		err := fmt.Errorf("%w: %s %s", ErrUnauthorizedAfterRetry, orig.Method, orig.URL.Redacted())
		// the session may have been replaced while the replay was in flight
		ended, logoutErr := t.session.ForceLogoutIfCurrent(ctx, a.token, session.ReasonUnauthorizedAfterRetry, err)
		if logoutErr != nil {
			l.Error().Err(logoutErr).Msg("transport.logout_failed")
		}
		if !ended {
			l.Debug().Msg("transport.unauthorized.stale_session")
		}
		return nil, err
	}

	l.Debug().Msg("transport.unauthorized")
	if _, err := t.session.RefreshIfStale(ctx, a.token); err != nil {
		t.metrics.Replay(metrics.OutcomeFailure)
		return nil, fmt.Errorf("refreshing session: %w", err)
	}

	out, next := t.beforeRequest(orig, true)
	resp, err := t.base.RoundTrip(out)
	if err != nil {
		t.metrics.Replay(metrics.OutcomeFailure)
		return nil, err
	}
	return t.onResponse(orig, resp, next)
}

// drain lets the connection be reused.
func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
