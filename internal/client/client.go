// Package client talks to the portal's REST API on behalf of a student.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-portal/internal/response"
)

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 4 << 20

// APIError is a non-2xx reply from the portal.
type APIError struct {
	Status  int
	Code    response.ErrCode
	Message string
	Fields  map[string]string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("portal returned %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("portal returned %d %s: %s", e.Status, e.Code, e.Message)
}

// IsCode reports whether err is an *APIError carrying code.
func IsCode(err error, code response.ErrCode) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the client's logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log.With().Str("component", "portal_client").Logger() }
}

// Client is a thin JSON client for the portal API.
type Client struct {
	baseURL string
	http    *http.Client
	creds   CredentialProvider
	log     zerolog.Logger
}

// New creates a Client for the portal at baseURL. creds may be nil for
// unauthenticated use, such as logging in.
func New(baseURL string, creds CredentialProvider, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		creds:   creds,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// do sends a JSON request and decodes the envelope's data into T.
func do[T any](ctx context.Context, c *Client, method, path string, in any) (T, error) {
	var zero T

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return zero, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return zero, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "br")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.creds != nil {
		token, err := c.creds.Token(ctx)
		if err != nil {
			return zero, fmt.Errorf("credentials: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return zero, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("Portal request")

	var reader io.Reader = io.LimitReader(resp.Body, maxBodyBytes)
	if resp.Header.Get("Content-Encoding") == "br" {
		reader = brotli.NewReader(reader)
	}
	raw, err := io.ReadAll(reader)
	if err != nil {
		return zero, fmt.Errorf("read response: %w", err)
	}

	var env response.Envelope[T]
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode/100 != 2 {
		apiErr := &APIError{Status: resp.StatusCode, Message: resp.Status}
		if decodeErr == nil && env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
			apiErr.Fields = env.Error.Fields
		}
		if resp.StatusCode == http.StatusUnauthorized {
			if inv, ok := c.creds.(Invalidator); ok {
				inv.Invalidate()
			}
		}
		return zero, apiErr
	}
	if decodeErr != nil {
		return zero, fmt.Errorf("decode response: %w", decodeErr)
	}
	return env.Data, nil
}
