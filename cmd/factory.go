package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/gitdm/gitdm/internal/authstate"
	"github.com/gitdm/gitdm/internal/config"
	"github.com/gitdm/gitdm/internal/credstore"
	"github.com/gitdm/gitdm/internal/metrics"
	"github.com/gitdm/gitdm/internal/session"
	"github.com/gitdm/gitdm/internal/transport"
	"github.com/gitdm/gitdm/pkg/client"
)

// Factory builds the session stack from the resolved configuration. Every
// getter builds its component once per command invocation.
type Factory struct {
	store    credstore.Store
	closer   io.Closer
	manager  *session.Manager
	provider *authstate.Provider

	registry *prometheus.Registry
	metrics  *metrics.Session
}

func NewFactory() *Factory {
	reg := prometheus.NewRegistry()
	return &Factory{
		registry: reg,
		metrics:  metrics.NewSession(reg),
	}
}

func (f *Factory) Settings() config.Client {
	return config.ClientFrom(viper.GetViper())
}

// Store returns the configured credential backend.
func (f *Factory) Store(ctx context.Context) (credstore.Store, error) {
	if f.store != nil {
		return f.store, nil
	}
	s := f.Settings()

	switch s.CredentialBackend {
	case config.BackendFile, "":
		fs, err := credstore.NewFileStore(s.CredentialPath, s.Addr)
		if err != nil {
			return nil, err
		}
		f.store = fs
	case config.BackendMemory:
		f.store = credstore.NewInMemoryStore()
	case config.BackendRedis:
		if s.RedisURL == "" {
			return nil, fmt.Errorf("redis credential backend needs %s", config.KeyCredentialRedis)
		}
		rdb, err := credstore.DialRedis(ctx, s.RedisURL)
		if err != nil {
			return nil, err
		}
		rs, err := credstore.NewRedisStore(rdb, s.Addr)
		if err != nil {
			_ = rdb.Close()
			return nil, err
		}
		f.store, f.closer = rs, rdb
	default:
		return nil, fmt.Errorf("unknown credential backend '%s'", s.CredentialBackend)
	}
	return f.store, nil
}

// authClient talks to the token endpoints without the session transport.
func (f *Factory) authClient() (*client.AuthClient, error) {
	s := f.Settings()
	c, err := client.New(s.Addr, client.WithTimeout(s.HTTPTimeout))
	if err != nil {
		return nil, err
	}
	return client.NewAuthClient(c), nil
}

func (f *Factory) Manager(ctx context.Context) (*session.Manager, error) {
	if f.manager != nil {
		return f.manager, nil
	}
	store, err := f.Store(ctx)
	if err != nil {
		return nil, err
	}
	auth, err := f.authClient()
	if err != nil {
		return nil, err
	}
	f.manager = session.New(store, auth, auth,
		session.WithLogger(log.Logger),
		session.WithMetrics(f.metrics),
		session.WithRefreshTimeout(f.Settings().RefreshTimeout))
	return f.manager, nil
}

// Provider returns the session context, restored from the credential store.
func (f *Factory) Provider(ctx context.Context) (*authstate.Provider, error) {
	if f.provider != nil {
		return f.provider, nil
	}
	m, err := f.Manager(ctx)
	if err != nil {
		return nil, err
	}
	p := authstate.NewProvider(m)
	_ = p.Start(ctx) // failures end in a logged-out session and are logged by Start
	f.provider = p
	return p, nil
}

// APIClient returns a client whose requests carry the session's access token.
func (f *Factory) APIClient(ctx context.Context) (*client.Client, error) {
	m, err := f.Manager(ctx)
	if err != nil {
		return nil, err
	}
	s := f.Settings()
	return client.New(s.Addr,
		client.WithTimeout(s.HTTPTimeout),
		client.WithTransport(transport.New(http.DefaultTransport, m, transport.WithMetrics(f.metrics))))
}

// Close releases backend connections.
func (f *Factory) Close() {
	f.logMetrics()
	if f.provider != nil {
		f.provider.Close()
		f.provider = nil
	}
	if f.closer != nil {
		_ = f.closer.Close()
		f.closer = nil
	}
}

// logMetrics writes the session counters of this invocation at debug level.
func (f *Factory) logMetrics() {
	if f.manager == nil || log.Logger.GetLevel() > zerolog.DebugLevel {
		return
	}
	families, err := f.registry.Gather()
	if err != nil {
		log.Debug().Err(err).Msg("gathering session metrics")
		return
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			dict := zerolog.Dict()
			for _, l := range m.GetLabel() {
				dict = dict.Str(l.GetName(), l.GetValue())
			}
			log.Debug().
				Str("metric", mf.GetName()).
				Dict("labels", dict).
				Float64("value", m.GetCounter().GetValue()).
				Msg("session.metrics")
		}
	}
}
