package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gitdm/gitdm/internal/api"
	"github.com/gitdm/gitdm/internal/session"
)

// Token exchanges an email and password for a token pair.
func (c *Client) Token(ctx context.Context, email, password string) (*api.TokenPair, string, error) {
	var pair api.TokenPair
	correlation, err := c.post(ctx, c.url().
		setPath(api.TokenRoute).
		build(), api.TokenObtainPayload{Email: email, Password: password}, &pair)
	if err != nil {
		return nil, correlation, err
	}
	return &pair, correlation, nil
}

// RefreshToken exchanges a refresh token for a new access token. The
// returned pair carries a refresh token only if the server rotated it.
func (c *Client) RefreshToken(ctx context.Context, refresh string) (*api.TokenPair, string, error) {
	var pair api.TokenPair
	correlation, err := c.post(ctx, c.url().
		setPath(api.TokenRefreshRoute).
		build(), api.TokenRefreshPayload{Refresh: refresh}, &pair)
	if err != nil {
		return nil, correlation, err
	}
	return &pair, correlation, nil
}

var (
	_ session.CredentialIssuer    = (*AuthClient)(nil)
	_ session.CredentialRefresher = (*AuthClient)(nil)
)

// AuthClient serves the token endpoints to a session.Manager.
//
// It must not be built on the session transport: a refresh that itself
// answers 401 would wait on its own refresh.
type AuthClient struct {
	c *Client
}

func NewAuthClient(c *Client) *AuthClient {
	return &AuthClient{c: c}
}

func (a *AuthClient) Issue(ctx context.Context, email, password string) (session.Tokens, error) {
	pair, correlation, err := a.c.Token(ctx, email, password)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) &&
			(apiErr.Status == http.StatusBadRequest || apiErr.Status == http.StatusUnauthorized) {
			return session.Tokens{}, fmt.Errorf("%w: %s (correlation: %s)",
				session.ErrInvalidCredentials, apiErr.Message, correlation)
		}
		return session.Tokens{}, err
	}
	return session.Tokens{AccessToken: pair.Access, RefreshToken: pair.Refresh}, nil
}

func (a *AuthClient) Refresh(ctx context.Context, refreshToken string) (session.Tokens, error) {
	pair, _, err := a.c.RefreshToken(ctx, refreshToken)
	if err != nil {
		return session.Tokens{}, err
	}
	return session.Tokens{AccessToken: pair.Access, RefreshToken: pair.Refresh}, nil
}
