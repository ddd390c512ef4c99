package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	retry "github.com/appleboy/go-httpretry"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// Refresher obtains a new access token without using the current one.
type Refresher interface {
	Refresh(ctx context.Context) (*oauth2.Token, error)
}

// TokenResponse is the body returned by the login and refresh endpoints.
type TokenResponse struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
	ExpiresIn   int64  `json:"expiresIn"` // milliseconds
}

// Token converts the response into an oauth2.Token.
func (t *TokenResponse) Token() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken: t.AccessToken,
		TokenType:   t.TokenType,
	}
	if t.ExpiresIn > 0 {
		tok.Expiry = time.Now().Add(time.Duration(t.ExpiresIn) * time.Millisecond)
	}
	return tok
}

// Validate checks the fields the client depends on.
func (t *TokenResponse) Validate() error {
	if t.AccessToken == "" {
		return errors.New("accessToken is empty")
	}
	// Token type is optional, but if present, should be "Bearer"
	if t.TokenType != "" && !strings.EqualFold(t.TokenType, "Bearer") {
		return fmt.Errorf("unexpected tokenType: %s (expected Bearer)", t.TokenType)
	}
	return nil
}

// CookieRefresher calls the refresh endpoint with no Authorization
// header. The refresh credential travels as an HTTP-only cookie held by
// the cookie jar of the Doer's HTTP client.
type CookieRefresher struct {
	URL  string
	Doer *retry.Client
}

// Refresh implements Refresher.
func (r *CookieRefresher) Refresh(ctx context.Context) (*oauth2.Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL, strings.NewReader("{}"))
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := r.Doer.DoWithContext(ctx, req)
	if err != nil {
		return nil, transportError(fmt.Errorf("refresh request failed: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read refresh response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode, body)
	}

	var tokenResp TokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("failed to parse refresh response: %w", err)
	}
	if err := tokenResp.Validate(); err != nil {
		return nil, fmt.Errorf("invalid refresh response: %w", err)
	}

	return tokenResp.Token(), nil
}

type refreshResult struct {
	token string
	err   *Error
}

// awaitRefresh returns a fresh access token for r and marks r retried.
func (c *Client) awaitRefresh(ctx context.Context, r *Request) (string, error) {
	r.retried = true
	return c.refresh(ctx, r)
}

// Refresh obtains a new access token from the refresh cookie. It joins
// a refresh already in flight instead of starting a second one. On
// failure the session is cleared and the navigator is told to show the
// login view.
func (c *Client) Refresh(ctx context.Context) (string, error) {
	return c.refresh(ctx, &Request{
		Method: http.MethodPost,
		Path:   refreshPath,
		ID:     uuid.NewString(),
	})
}

// refresh runs the single shared refresh. The first caller to arrive
// calls the refresher; callers arriving while it is in flight queue
// behind it and receive the same outcome.
//
// The flag is set before the refresh call starts, and the queue is
// drained before the flag is cleared, both under c.mu.
func (c *Client) refresh(ctx context.Context, r *Request) (string, error) {
	c.mu.Lock()
	if c.refreshing {
		ch := make(chan refreshResult, 1)
		c.pending = append(c.pending, ch)
		c.mu.Unlock()

		c.logger.Debug().Str("request_id", r.ID).Msg("waiting for token refresh")
		select {
		case res := <-ch:
			if res.err != nil {
				return "", res.err
			}
			return res.token, nil
		case <-ctx.Done():
			return "", c.fail(r, transportError(ctx.Err()))
		}
	}
	c.refreshing = true
	c.mu.Unlock()

	c.logger.Debug().Str("request_id", r.ID).Msg("refreshing access token")

	// The refresh outlives the caller that triggered it; others depend on it.
	refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.refreshTimeout)
	tok, err := c.refresher.Refresh(refreshCtx)
	cancel()
	if err == nil && (tok == nil || tok.AccessToken == "") {
		err = errors.New("refresh returned no access token")
	}

	var res refreshResult
	if err != nil {
		res.err = sessionExpired(err)
		res.err.RequestID = r.ID
		res.err.Method = http.MethodPost
		res.err.Path = refreshPath
	} else {
		res.token = tok.AccessToken
	}

	queued := c.settle(res)

	if res.err != nil {
		c.logger.Warn().Err(err).Str("request_id", r.ID).Msg("token refresh failed, session cleared")
		c.notify(res.err)
		if c.navigator != nil {
			c.navigator.RedirectToLogin()
		}
		return "", res.err
	}

	c.logger.Debug().Int("queued", queued).Str("request_id", r.ID).Msg("token refreshed")
	return res.token, nil
}

// settle stores the outcome, hands it to every queued caller and ends
// the refresh cycle. The queue is drained and the flag cleared even if
// the store panics.
func (c *Client) settle(res refreshResult) (queued int) {
	c.mu.Lock()
	defer func() {
		queued = len(c.pending)
		for _, ch := range c.pending {
			ch <- res
		}
		c.pending = nil
		c.refreshing = false
		c.mu.Unlock()
	}()

	if c.store == nil {
		return
	}
	if res.err == nil {
		c.store.SetAccessToken(res.token)
	} else {
		c.store.Clear()
	}
	return
}
