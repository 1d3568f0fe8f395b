package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoToken is returned by a StaticToken with nothing in it.
var ErrNoToken = errors.New("no token configured")

// CredentialProvider supplies the bearer token for each request.
type CredentialProvider interface {
	Token(ctx context.Context) (string, error)
}

// Invalidator is implemented by providers that can drop a token the server
// rejected, so the next Token call fetches a fresh one.
type Invalidator interface {
	Invalidate()
}

// StaticToken always returns the same token.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	if t == "" {
		return "", ErrNoToken
	}
	return string(t), nil
}

// LoginProvider logs in with a password and caches the JWT. It logs in again
// when the cached token is within RefreshBefore of its expiry or after the
// server rejected it.
type LoginProvider struct {
	RefreshBefore time.Duration

	client   *Client
	email    string
	password string
	now      func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewLoginProvider creates a LoginProvider against the portal at baseURL.
func NewLoginProvider(baseURL, email, password string, hc *http.Client) *LoginProvider {
	opts := []Option{}
	if hc != nil {
		opts = append(opts, WithHTTPClient(hc))
	}
	return &LoginProvider{
		RefreshBefore: time.Minute,
		client:        New(baseURL, nil, opts...),
		email:         email,
		password:      password,
		now:           time.Now,
	}
}

func (p *LoginProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != "" && p.now().Add(p.RefreshBefore).Before(p.expires) {
		return p.token, nil
	}

	res, err := p.client.Login(ctx, p.email, p.password)
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	expires, err := tokenExpiry(res.Token)
	if err != nil {
		return "", err
	}
	p.token, p.expires = res.Token, expires
	return p.token, nil
}

func (p *LoginProvider) Invalidate() {
	p.mu.Lock()
	p.token = ""
	p.mu.Unlock()
}

// tokenExpiry reads exp without verifying the signature; the server does that.
func tokenExpiry(token string) (time.Time, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, fmt.Errorf("parse token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, errors.New("token has no expiry")
	}
	return claims.ExpiresAt.Time, nil
}
