// Package apiclient talks to the health-log REST API on behalf of a
// logged-in user. It attaches the bearer token to every request and,
// when the API answers 401, runs a single shared token refresh and
// replays the waiting requests.
package apiclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	retry "github.com/appleboy/go-httpretry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// Default timeouts.
const (
	DefaultTimeout        = 10 * time.Second
	DefaultRefreshTimeout = 10 * time.Second
)

const refreshPath = "/auth/refresh"

// TokenStore is the session state the client reads and updates.
type TokenStore interface {
	AccessToken() string
	SetAccessToken(token string)
	Clear()
}

// Navigator receives the signal to show the login view after the
// session could not be refreshed.
type Navigator interface {
	RedirectToLogin()
}

// Notifier receives every error the client surfaces to a caller.
type Notifier interface {
	APIError(err *Error)
}

// Request describes one API call. Path is relative to the base URL.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any

	// ID is sent as X-Request-ID and kept across the replay after a
	// refresh. Generated when empty.
	ID string

	// SkipRefresh makes a 401 fail immediately. Used by the auth
	// endpoints, where a 401 means bad credentials.
	SkipRefresh bool

	// Silent suppresses the error event for this call; the error is
	// still returned.
	Silent bool

	// NotFoundOK suppresses the error event for a 404 only. Other
	// failures are still reported.
	NotFoundOK bool

	retried bool
}

// Client is safe for concurrent use. Each Client owns its own refresh
// state, so independent sessions do not interfere.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	doer           *retry.Client
	timeout        time.Duration
	refreshTimeout time.Duration
	store          TokenStore
	refresher      Refresher
	navigator      Navigator
	notifier       Notifier
	logger         zerolog.Logger

	mu         sync.Mutex
	refreshing bool
	pending    []chan refreshResult
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client. Its cookie jar carries
// the refresh credential.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithRefreshTimeout sets the timeout of the refresh call.
func WithRefreshTimeout(d time.Duration) Option {
	return func(c *Client) { c.refreshTimeout = d }
}

// WithRefresher replaces the cookie based refresher.
func WithRefresher(r Refresher) Option {
	return func(c *Client) { c.refresher = r }
}

// WithNavigator sets the navigation layer notified on session expiry.
func WithNavigator(n Navigator) Option {
	return func(c *Client) { c.navigator = n }
}

// WithNotifier sets the receiver of error events.
func WithNotifier(n Notifier) Option {
	return func(c *Client) { c.notifier = n }
}

// WithLogger sets the diagnostic logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a Client for the API at baseURL.
func New(baseURL string, store TokenStore, opts ...Option) (*Client, error) {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		timeout:        DefaultTimeout,
		refreshTimeout: DefaultRefreshTimeout,
		store:          store,
		logger:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		jar, err := NewCookieJar()
		if err != nil {
			return nil, err
		}
		c.httpClient = &http.Client{
			Jar: jar,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				TLSClientConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
				},
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		}
	}

	// Retries stay off: the only retry this client performs is the replay
	// after a token refresh.
	doer, err := retry.NewBackgroundClient(
		retry.WithHTTPClient(c.httpClient),
		retry.WithMaxRetries(0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http client: %w", err)
	}
	c.doer = doer

	if c.refresher == nil {
		c.refresher = &CookieRefresher{URL: c.baseURL + refreshPath, Doer: doer}
	}
	c.logger = c.logger.With().Str("component", "apiclient").Logger()

	return c, nil
}

// BaseURL returns the API root the client was built with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Get issues a GET and decodes the response into out.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.Do(ctx, &Request{Method: http.MethodGet, Path: path, Query: query}, out)
}

// Post issues a POST with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, &Request{Method: http.MethodPost, Path: path, Body: body}, out)
}

// Put issues a PUT with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, &Request{Method: http.MethodPut, Path: path, Body: body}, out)
}

// Delete issues a DELETE.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.Do(ctx, &Request{Method: http.MethodDelete, Path: path}, nil)
}

// Do sends r and decodes a successful JSON body into out (when out is
// non-nil). Failures are returned as *Error.
func (c *Client) Do(ctx context.Context, r *Request, out any) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}

	var payload []byte
	if r.Body != nil {
		data, err := json.Marshal(r.Body)
		if err != nil {
			return c.fail(r, &Error{
				Kind:    KindUnknown,
				Message: msgUnknown,
				Err:     fmt.Errorf("failed to encode request body: %w", err),
			})
		}
		payload = data
	}

	resp, err := c.send(ctx, r, payload, c.accessToken())
	if err != nil {
		return c.fail(r, transportError(err))
	}

	if resp.status == http.StatusUnauthorized && !r.retried && !r.SkipRefresh {
		token, err := c.awaitRefresh(ctx, r)
		if err != nil {
			return err
		}

		c.logger.Debug().Str("request_id", r.ID).Str("path", r.Path).Msg("replaying request with refreshed token")
		resp, err = c.send(ctx, r, payload, token)
		if err != nil {
			return c.fail(r, transportError(err))
		}
	}

	if resp.status < 200 || resp.status > 299 {
		return c.fail(r, statusError(resp.status, resp.body))
	}

	if out == nil || len(bytes.TrimSpace(resp.body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return c.fail(r, &Error{
			Kind:    KindUnknown,
			Status:  resp.status,
			Message: msgUnknown,
			Err:     fmt.Errorf("failed to parse response: %w", err),
		})
	}
	return nil
}

type response struct {
	status int
	body   []byte
}

// send performs one round trip. A non-empty token is attached as the
// bearer credential.
func (c *Client) send(ctx context.Context, r *Request, payload []byte, token string) (*response, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	target := c.baseURL + r.Path
	if len(r.Query) > 0 {
		target += "?" + r.Query.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(reqCtx, r.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", r.ID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}).SetAuthHeader(req)
	}

	resp, err := c.doer.DoWithContext(reqCtx, req)
	if err != nil {
		if ctxErr := reqCtx.Err(); ctxErr != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: %v", ctxErr, err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &response{status: resp.StatusCode, body: data}, nil
}

// accessToken reads the store, tolerating a missing one.
func (c *Client) accessToken() string {
	if c.store == nil {
		return ""
	}
	return c.store.AccessToken()
}

// fail enriches, logs and reports e, then returns it.
func (c *Client) fail(r *Request, e *Error) *Error {
	e.RequestID = r.ID
	e.Method = r.Method
	e.Path = r.Path

	c.logger.Warn().
		Err(e.Err).
		Str("request_id", r.ID).
		Str("method", r.Method).
		Str("path", r.Path).
		Int("status", e.Status).
		Str("kind", e.Kind.String()).
		Msg(e.Message)

	if !r.Silent && !(r.NotFoundOK && e.Kind == KindNotFound) {
		c.notify(e)
	}
	return e
}

func (c *Client) notify(e *Error) {
	if c.notifier != nil {
		c.notifier.APIError(e)
	}
}
