package api

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/xid"
)

const tokenIssuer = "gitdm-devserver"

var (
	ErrInvalidToken = errors.New("token is invalid or expired")
	ErrSigningKey   = errors.New("signing key must not be empty")
)

// AuthorityConfig configures token lifetimes of the dev server.
type AuthorityConfig struct {
	SigningKey []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// Rotate issues a new refresh token on every refresh and revokes the
	// presented one. When false the refresh response carries no refresh
	// token and the presented one stays valid.
	Rotate bool
	// Clock defaults to time.Now.
	Clock func() time.Time
}

type refreshGrant struct {
	subject string
	expires time.Time
}

// Authority mints HS256 access tokens and opaque, single-use refresh tokens.
type Authority struct {
	cfg AuthorityConfig
	now func() time.Time

	mu      sync.Mutex
	refresh map[string]refreshGrant
}

func NewAuthority(cfg AuthorityConfig) (*Authority, error) {
	if len(cfg.SigningKey) == 0 {
		return nil, ErrSigningKey
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 5 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 24 * time.Hour
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Authority{
		cfg:     cfg,
		now:     cfg.Clock,
		refresh: make(map[string]refreshGrant),
	}, nil
}

// Issue creates a new token pair for subject.
func (a *Authority) Issue(subject string) (TokenPair, error) {
	access, err := a.signAccess(subject)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		Access:  access,
		Refresh: a.newRefresh(subject),
	}, nil
}

// Refresh exchanges a refresh token for a new access token and returns the
// subject it was issued to. With rotation enabled the presented token is
// consumed and a replacement is returned.
func (a *Authority) Refresh(refreshToken string) (string, TokenPair, error) {
	a.mu.Lock()
	grant, ok := a.refresh[refreshToken]
	if ok && a.cfg.Rotate {
		delete(a.refresh, refreshToken)
	}
	a.mu.Unlock()

	if !ok {
		return "", TokenPair{}, ErrInvalidToken
	}
	if a.now().After(grant.expires) {
		return grant.subject, TokenPair{}, ErrInvalidToken
	}

	access, err := a.signAccess(grant.subject)
	if err != nil {
		return grant.subject, TokenPair{}, err
	}
	pair := TokenPair{Access: access}
	if a.cfg.Rotate {
		pair.Refresh = a.newRefresh(grant.subject)
	}
	return grant.subject, pair, nil
}

// VerifyAccess validates an access token and returns its subject.
func (a *Authority) VerifyAccess(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return a.cfg.SigningKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims.Subject, nil
}

// Revoke drops every refresh token of subject.
func (a *Authority) Revoke(subject string) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := 0
	for tok, grant := range a.refresh {
		if grant.subject == subject {
			delete(a.refresh, tok)
			n++
		}
	}
	return n
}

// Prune drops expired refresh tokens and returns how many were removed.
func (a *Authority) Prune() int {
	now := a.now()
	a.mu.Lock()
	defer a.mu.Unlock()

	n := 0
	for tok, grant := range a.refresh {
		if now.After(grant.expires) {
			delete(a.refresh, tok)
			n++
		}
	}
	return n
}

func (a *Authority) signAccess(subject string) (string, error) {
	now := a.now()
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.cfg.AccessTTL)),
		ID:        xid.New().String(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.cfg.SigningKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

func (a *Authority) newRefresh(subject string) string {
	tok := uuid.NewString()
	a.mu.Lock()
	a.refresh[tok] = refreshGrant{subject: subject, expires: a.now().Add(a.cfg.RefreshTTL)}
	a.mu.Unlock()
	return tok
}
