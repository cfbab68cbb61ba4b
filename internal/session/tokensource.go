package session

import (
	"context"

	"golang.org/x/oauth2"
)

var _ oauth2.TokenSource = tokenSource{}

type tokenSource struct {
	m *Manager
}

// TokenSource exposes the session to code built on golang.org/x/oauth2.
// It returns the applied token and only refreshes when none is applied.
func (m *Manager) TokenSource() oauth2.TokenSource {
	return tokenSource{m: m}
}

func (ts tokenSource) Token() (*oauth2.Token, error) {
	access := ts.m.AccessToken()
	if access == "" {
		var err error
		if access, err = ts.m.EnsureFreshToken(context.Background()); err != nil {
			return nil, err
		}
	}
	return &oauth2.Token{AccessToken: access, TokenType: "Bearer"}, nil
}
