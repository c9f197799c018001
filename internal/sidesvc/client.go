// Package sidesvc calls the HTTP side service that handles group
// membership, weekly recaps, link previews, question generation and
// translation.
package sidesvc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

const maxErrorBody = 4 << 10

// TokenSource supplies the bearer token for authenticated calls.
type TokenSource interface {
	IDToken(ctx context.Context) (string, error)
}

// Error is a non-2xx response. Message is the server's error text when the
// body is JSON with an error or message field, else the raw body.
type Error struct {
	Status  int
	Body    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("side service: %d: %s", e.Status, e.Message)
}

// Client is safe for concurrent use.
type Client struct {
	baseURL  string
	http     *http.Client
	previews *ttlcache.Cache[string, LinkPreview]
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithPreviewTTL sets how long link previews are cached.
func WithPreviewTTL(ttl time.Duration) Option {
	return func(c *Client) {
		c.previews = newPreviewCache(ttl)
	}
}

// New returns a client for baseURL. Call Close to stop the preview cache.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.previews == nil {
		c.previews = newPreviewCache(30 * time.Minute)
	}
	go c.previews.Start()
	return c
}

func newPreviewCache(ttl time.Duration) *ttlcache.Cache[string, LinkPreview] {
	return ttlcache.New[string, LinkPreview](
		ttlcache.WithTTL[string, LinkPreview](ttl),
		ttlcache.WithCapacity[string, LinkPreview](5_000),
	)
}

// Close stops background cache eviction.
func (c *Client) Close() {
	c.previews.Stop()
}

// do sends a JSON request and decodes a JSON response into out (if non-nil).
// tokens may be nil for unauthenticated endpoints.
func (c *Client) do(ctx context.Context, method, path string, tokens TokenSource, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if tokens != nil {
		token, err := tokens.IDToken(ctx)
		if err != nil {
			return fmt.Errorf("side service: id token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return newError(resp.StatusCode, raw)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("side service: decode %s: %w", path, err)
	}
	return nil
}

func newError(status int, raw []byte) *Error {
	e := &Error{Status: status, Body: string(raw)}
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &payload) == nil {
		if payload.Error != "" {
			e.Message = payload.Error
		} else {
			e.Message = payload.Message
		}
	}
	if e.Message == "" {
		e.Message = strings.TrimSpace(e.Body)
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}
