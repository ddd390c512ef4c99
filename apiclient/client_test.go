package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/d361120041/health-log/session"
)

type countingNavigator struct {
	redirects atomic.Int32
}

func (n *countingNavigator) RedirectToLogin() {
	n.redirects.Add(1)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []*Error
}

func (n *recordingNotifier) APIError(err *Error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, err)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

// pendingCount reports the number of callers waiting on the refresh.
func (c *Client) pendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// waitForPending blocks until n callers are queued behind the refresh.
func waitForPending(t *testing.T, c *Client, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for c.pendingCount() < n {
		if time.Now().After(deadline) {
			t.Errorf("timed out waiting for %d queued requests, have %d", n, c.pendingCount())
			return
		}
		time.Sleep(time.Millisecond)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, url string, store TokenStore, opts ...Option) *Client {
	t.Helper()
	c, err := New(url, store, append([]Option{WithLogger(zerolog.Nop())}, opts...)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestDo_AttachesBearerToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer current-token" {
			t.Errorf("Authorization = %q, want %q", got, "Bearer current-token")
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Errorf("X-Request-ID header missing")
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}))
	defer server.Close()

	store := session.NewStore(zerolog.Nop())
	store.SetAccessToken("current-token")
	c := newTestClient(t, server.URL, store)

	var out struct {
		Status string `json:"status"`
	}
	if err := c.Get(context.Background(), "/records", nil, &out); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if out.Status != "ok" {
		t.Errorf("Status = %q, want %q", out.Status, "ok")
	}
}

func TestDo_WithoutStoreSendsNoAuthorization(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "" {
			t.Errorf("Authorization = %q, want none", got)
		}
		writeJSON(w, http.StatusOK, []string{})
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, nil)
	if err := c.Get(context.Background(), "/settings/fields", nil, nil); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
}

func TestDo_RefreshesAndReplaysOriginalRequest(t *testing.T) {
	var refreshCalls atomic.Int32
	var mu sync.Mutex
	var seenIDs []string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/refresh":
			refreshCalls.Add(1)
			if got := r.Header.Get("Authorization"); got != "" {
				t.Errorf("refresh sent Authorization = %q, want none", got)
			}
			writeJSON(w, http.StatusOK, map[string]any{"accessToken": "new", "tokenType": "Bearer"})
		case "/records/2024-01-01":
			mu.Lock()
			seenIDs = append(seenIDs, r.Header.Get("X-Request-ID"))
			mu.Unlock()
			if r.Header.Get("Authorization") != "Bearer new" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"recordDate": "2024-01-01"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	store := session.NewStore(zerolog.Nop())
	c := newTestClient(t, server.URL, store)

	var out struct {
		RecordDate string `json:"recordDate"`
	}
	if err := c.Get(context.Background(), "/records/2024-01-01", nil, &out); err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	if out.RecordDate != "2024-01-01" {
		t.Errorf("RecordDate = %q, want %q", out.RecordDate, "2024-01-01")
	}
	if n := refreshCalls.Load(); n != 1 {
		t.Errorf("refresh calls = %d, want 1", n)
	}
	if got := store.AccessToken(); got != "new" {
		t.Errorf("stored token = %q, want %q", got, "new")
	}
	if len(seenIDs) != 2 || seenIDs[0] != seenIDs[1] {
		t.Errorf("replay should reuse the request id, got %v", seenIDs)
	}
}

func TestDo_ConcurrentUnauthorizedSharesOneRefresh(t *testing.T) {
	const callers = 8

	var (
		refreshCalls atomic.Int32
		freshHits    atomic.Int32
		client       atomic.Pointer[Client]
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/refresh":
			refreshCalls.Add(1)
			waitForPending(t, client.Load(), callers-1)
			writeJSON(w, http.StatusOK, map[string]any{"accessToken": "fresh"})
		case "/records":
			if r.Header.Get("Authorization") != "Bearer fresh" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			freshHits.Add(1)
			writeJSON(w, http.StatusOK, []any{})
		}
	}))
	defer server.Close()

	store := session.NewStore(zerolog.Nop())
	store.SetAccessToken("stale")
	c := newTestClient(t, server.URL, store)
	client.Store(c)

	var wg sync.WaitGroup
	errs := make(chan error, callers)
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			errs <- c.Get(context.Background(), "/records", nil, nil)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Get() error = %v", err)
		}
	}
	if n := refreshCalls.Load(); n != 1 {
		t.Errorf("refresh calls = %d, want 1", n)
	}
	if n := freshHits.Load(); n != callers {
		t.Errorf("replayed requests = %d, want %d", n, callers)
	}
	if n := c.pendingCount(); n != 0 {
		t.Errorf("pending after refresh = %d, want 0", n)
	}
}

func TestDo_RefreshFailureRejectsEveryCaller(t *testing.T) {
	const callers = 5

	var (
		refreshCalls atomic.Int32
		client       atomic.Pointer[Client]
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/refresh":
			refreshCalls.Add(1)
			waitForPending(t, client.Load(), callers-1)
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid refresh token"})
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	defer server.Close()

	store := session.NewStore(zerolog.Nop())
	store.SetAccessToken("stale")
	nav := &countingNavigator{}
	notifier := &recordingNotifier{}
	c := newTestClient(t, server.URL, store, WithNavigator(nav), WithNotifier(notifier))
	client.Store(c)

	var wg sync.WaitGroup
	errs := make(chan error, callers)
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			errs <- c.Get(context.Background(), "/reports/number", nil, nil)
		}()
	}
	wg.Wait()
	close(errs)

	var first *Error
	for err := range errs {
		var apiErr *Error
		if !errors.As(err, &apiErr) {
			t.Fatalf("error = %v, want *Error", err)
		}
		if first == nil {
			first = apiErr
		}
		if apiErr != first {
			t.Errorf("callers observed different errors: %v vs %v", apiErr, first)
		}
	}

	if first.Kind != KindUnauthorized || first.Status != http.StatusBadRequest {
		t.Errorf("error = %v, want Unauthorized with status 400", first)
	}
	if first.Message != msgSessionExpired {
		t.Errorf("Message = %q, want %q", first.Message, msgSessionExpired)
	}
	if n := refreshCalls.Load(); n != 1 {
		t.Errorf("refresh calls = %d, want 1", n)
	}
	if store.IsAuthenticated() {
		t.Errorf("store should be cleared after refresh failure")
	}
	if n := nav.redirects.Load(); n != 1 {
		t.Errorf("redirects = %d, want 1", n)
	}
	if n := notifier.count(); n != 1 {
		t.Errorf("error events = %d, want 1", n)
	}
}

func TestDo_SecondUnauthorizedIsNotRefreshedAgain(t *testing.T) {
	var refreshCalls, dataCalls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/refresh" {
			refreshCalls.Add(1)
			writeJSON(w, http.StatusOK, map[string]any{"accessToken": "still-rejected"})
			return
		}
		dataCalls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	store := session.NewStore(zerolog.Nop())
	store.SetAccessToken("old")
	c := newTestClient(t, server.URL, store)

	err := c.Get(context.Background(), "/records", nil, nil)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("error = %v, want Unauthorized", err)
	}
	if n := refreshCalls.Load(); n != 1 {
		t.Errorf("refresh calls = %d, want 1", n)
	}
	if n := dataCalls.Load(); n != 2 {
		t.Errorf("data calls = %d, want 2", n)
	}
}

func TestDo_SkipRefresh(t *testing.T) {
	var refreshCalls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/refresh" {
			refreshCalls.Add(1)
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	nav := &countingNavigator{}
	c := newTestClient(t, server.URL, session.NewStore(zerolog.Nop()), WithNavigator(nav))

	err := c.Do(context.Background(), &Request{
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Body:        map[string]string{"email": "a@b.c", "password": "wrong"},
		SkipRefresh: true,
	}, nil)

	if KindOf(err) != KindUnauthorized {
		t.Fatalf("error = %v, want Unauthorized", err)
	}
	if n := refreshCalls.Load(); n != 0 {
		t.Errorf("refresh calls = %d, want 0", n)
	}
	if n := nav.redirects.Load(); n != 0 {
		t.Errorf("redirects = %d, want 0", n)
	}
}

func TestDo_ClassifiesErrorResponses(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        any
		wantKind    Kind
		wantMessage string
	}{
		{"bad request with server message", http.StatusBadRequest, map[string]string{"message": "recordDate is required"}, KindBadRequest, "recordDate is required"},
		{"forbidden fallback", http.StatusForbidden, nil, KindForbidden, msgForbidden},
		{"not found fallback", http.StatusNotFound, nil, KindNotFound, msgNotFound},
		{"server error with message", http.StatusInternalServerError, map[string]string{"message": "database down"}, KindServer, "database down"},
		{"server error fallback", http.StatusServiceUnavailable, nil, KindServer, msgServer},
		{"oauth style error body", http.StatusBadRequest, map[string]string{"error": "invalid_request", "error_description": "missing field"}, KindBadRequest, "missing field"},
		{"unknown status", http.StatusTeapot, nil, KindUnknownHTTP, "request failed with status 418"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				if tt.body == nil {
					w.WriteHeader(tt.status)
					return
				}
				writeJSON(w, tt.status, tt.body)
			}))
			defer server.Close()

			notifier := &recordingNotifier{}
			c := newTestClient(t, server.URL, nil, WithNotifier(notifier))

			err := c.Get(context.Background(), "/records", nil, nil)

			var apiErr *Error
			if !errors.As(err, &apiErr) {
				t.Fatalf("error = %v, want *Error", err)
			}
			if apiErr.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", apiErr.Kind, tt.wantKind)
			}
			if apiErr.Status != tt.status {
				t.Errorf("Status = %d, want %d", apiErr.Status, tt.status)
			}
			if apiErr.Message != tt.wantMessage {
				t.Errorf("Message = %q, want %q", apiErr.Message, tt.wantMessage)
			}
			if n := hits.Load(); n != 1 {
				t.Errorf("server hits = %d, want 1 (no retry)", n)
			}
			if n := notifier.count(); n != 1 {
				t.Errorf("error events = %d, want 1", n)
			}
		})
	}
}

func TestDo_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, nil, WithTimeout(50*time.Millisecond))

	err := c.Get(context.Background(), "/records", nil, nil)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("error = %v, want TimeoutError", err)
	}
}

func TestDo_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	c := newTestClient(t, url, nil)

	err := c.Get(context.Background(), "/records", nil, nil)
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("error = %v, want NetworkError", err)
	}
}

func TestDo_SilentSkipsNotification(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	notifier := &recordingNotifier{}
	c := newTestClient(t, server.URL, nil, WithNotifier(notifier))

	err := c.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/records/2024-02-02", Silent: true}, nil)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want NotFound", err)
	}
	if n := notifier.count(); n != 0 {
		t.Errorf("error events = %d, want 0", n)
	}
}

func TestCookieRefresher_SendsRefreshCookie(t *testing.T) {
	var refreshCalls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/login":
			http.SetCookie(w, &http.Cookie{Name: "refresh_token", Value: "refresh-123", Path: "/", HttpOnly: true})
			writeJSON(w, http.StatusOK, map[string]any{"accessToken": "first"})
		case "/auth/refresh":
			refreshCalls.Add(1)
			cookie, err := r.Cookie("refresh_token")
			if err != nil || cookie.Value != "refresh-123" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			if r.Header.Get("Authorization") != "" {
				t.Errorf("refresh carried a bearer token")
			}
			writeJSON(w, http.StatusOK, map[string]any{"accessToken": "second"})
		case "/records":
			if r.Header.Get("Authorization") != "Bearer second" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			writeJSON(w, http.StatusOK, []any{})
		}
	}))
	defer server.Close()

	store := session.NewStore(zerolog.Nop())
	c := newTestClient(t, server.URL, store)

	var login TokenResponse
	if err := c.Do(context.Background(), &Request{
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Body:        map[string]string{"email": "a@b.c", "password": "pw"},
		SkipRefresh: true,
	}, &login); err != nil {
		t.Fatalf("login error = %v", err)
	}
	store.SetAccessToken(login.AccessToken)

	if err := c.Get(context.Background(), "/records", nil, nil); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if n := refreshCalls.Load(); n != 1 {
		t.Errorf("refresh calls = %d, want 1", n)
	}
	if got := store.AccessToken(); got != "second" {
		t.Errorf("stored token = %q, want %q", got, "second")
	}
}

func TestTokenResponse_Validate(t *testing.T) {
	tests := []struct {
		name    string
		resp    TokenResponse
		wantErr bool
	}{
		{"valid", TokenResponse{AccessToken: "abc", TokenType: "Bearer"}, false},
		{"lowercase type", TokenResponse{AccessToken: "abc", TokenType: "bearer"}, false},
		{"empty type", TokenResponse{AccessToken: "abc"}, false},
		{"empty token", TokenResponse{TokenType: "Bearer"}, true},
		{"wrong type", TokenResponse{AccessToken: "abc", TokenType: "Basic"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.resp.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestError_IsMatchesKindAndStatus(t *testing.T) {
	err := error(&Error{Kind: KindNotFound, Status: http.StatusNotFound, Message: msgNotFound})

	if !errors.Is(err, ErrNotFound) {
		t.Errorf("errors.Is(err, ErrNotFound) = false")
	}
	if errors.Is(err, ErrForbidden) {
		t.Errorf("errors.Is(err, ErrForbidden) = true")
	}
	if !errors.Is(err, &Error{Kind: KindNotFound, Status: http.StatusNotFound}) {
		t.Errorf("errors.Is with matching status = false")
	}
	if errors.Is(err, &Error{Kind: KindNotFound, Status: http.StatusGone}) {
		t.Errorf("errors.Is with different status = true")
	}
	if KindOf(errors.New("plain")) != KindUnknown {
		t.Errorf("KindOf(plain error) should be KindUnknown")
	}
}

func TestDo_NotFoundOKReportsOtherFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/records/2024-02-02" {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "no record"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "boom"})
	}))
	defer server.Close()

	notifier := &recordingNotifier{}
	c := newTestClient(t, server.URL, nil, WithNotifier(notifier))

	err := c.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/records/2024-02-02", NotFoundOK: true}, nil)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Do() error = %v, want ErrNotFound", err)
	}
	if n := notifier.count(); n != 0 {
		t.Errorf("events after 404 = %d, want 0", n)
	}

	err = c.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/records/2024-02-03", NotFoundOK: true}, nil)
	if !errors.Is(err, ErrServer) {
		t.Fatalf("Do() error = %v, want ErrServer", err)
	}
	if n := notifier.count(); n != 1 {
		t.Errorf("events after 500 = %d, want 1", n)
	}
}

func TestRefresh_JoinsInFlightRefresh(t *testing.T) {
	var (
		refreshCalls    atomic.Int32
		bearerOnRefresh atomic.Bool
		client          atomic.Pointer[Client]
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/refresh":
			refreshCalls.Add(1)
			if r.Header.Get("Authorization") != "" {
				bearerOnRefresh.Store(true)
			}
			// Hold the refresh until the manual caller has queued
			waitForPending(t, client.Load(), 1)
			writeJSON(w, http.StatusOK, map[string]any{"accessToken": "fresh"})
		case "/records":
			if r.Header.Get("Authorization") != "Bearer fresh" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			writeJSON(w, http.StatusOK, []any{})
		}
	}))
	defer server.Close()

	store := session.NewStore(zerolog.Nop())
	store.SetAccessToken("stale")
	c := newTestClient(t, server.URL, store)
	client.Store(c)

	getErr := make(chan error, 1)
	go func() { getErr <- c.Get(context.Background(), "/records", nil, nil) }()

	// Wait until the rejected request has started the refresh
	deadline := time.Now().Add(5 * time.Second)
	for refreshCalls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("refresh never started")
		}
		time.Sleep(time.Millisecond)
	}

	token, err := c.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if token != "fresh" {
		t.Errorf("Refresh() token = %q, want %q", token, "fresh")
	}
	if err := <-getErr; err != nil {
		t.Errorf("Get() error = %v", err)
	}
	if n := refreshCalls.Load(); n != 1 {
		t.Errorf("refresh calls = %d, want 1", n)
	}
	if bearerOnRefresh.Load() {
		t.Error("refresh call carried an Authorization header")
	}
}

func TestRefresh_Standalone(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Errorf("refresh sent Authorization = %q, want none", r.Header.Get("Authorization"))
		}
		writeJSON(w, http.StatusOK, map[string]any{"accessToken": "fresh"})
	}))
	defer server.Close()

	store := session.NewStore(zerolog.Nop())
	store.SetAccessToken("stale")
	c := newTestClient(t, server.URL, store)

	if _, err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if got := store.AccessToken(); got != "fresh" {
		t.Errorf("stored token = %q, want %q", got, "fresh")
	}
	if c.refreshing {
		t.Error("refresh flag still set")
	}
}

func TestDo_NilSessionStoreSurvivesRefresh(t *testing.T) {
	var fail atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/refresh":
			if fail.Load() {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"accessToken": "fresh"})
		default:
			if r.Header.Get("Authorization") != "Bearer fresh" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			writeJSON(w, http.StatusOK, []any{})
		}
	}))
	defer server.Close()

	var store *session.Store
	c := newTestClient(t, server.URL, store)

	if err := c.Get(context.Background(), "/records", nil, nil); err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	fail.Store(true)
	if err := c.Get(context.Background(), "/records", nil, nil); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Get() error = %v, want ErrUnauthorized", err)
	}

	// The client lock and refresh flag must be free for the next caller
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.refreshing || len(c.pending) != 0 {
			t.Error("refresh state left behind")
		}
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("client lock still held")
	}
}
