// Package navigation maps the client's screens to paths and applies the
// access guards before every move.
package navigation

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Route names.
const (
	Home          = "Home"
	Login         = "Login"
	Register      = "Register"
	VerifyEmail   = "VerifyEmail"
	RecordList    = "RecordList"
	RecordNew     = "RecordNew"
	RecordEdit    = "RecordEdit"
	TrendChart    = "TrendChart"
	FieldSettings = "FieldSettings"
)

const maxRedirects = 5

// Route is one entry of the route table.
type Route struct {
	Name          string
	Path          string // segments starting with ':' are parameters
	RequiresAuth  bool
	RequiresAdmin bool
}

// Routes is the route table. Unknown paths resolve to Home.
var Routes = []Route{
	{Name: Home, Path: "/", RequiresAuth: true},
	{Name: Login, Path: "/login"},
	{Name: Register, Path: "/register"},
	{Name: VerifyEmail, Path: "/verify-email"},
	{Name: RecordList, Path: "/records", RequiresAuth: true},
	{Name: RecordNew, Path: "/records/new", RequiresAuth: true},
	{Name: RecordEdit, Path: "/records/:date", RequiresAuth: true},
	{Name: TrendChart, Path: "/reports", RequiresAuth: true},
	{Name: FieldSettings, Path: "/admin/settings", RequiresAuth: true, RequiresAdmin: true},
}

// Session reports the caller's access level.
type Session interface {
	IsAuthenticated() bool
	IsAdmin() bool
}

// Location is a resolved route with its parameters and query.
type Location struct {
	Route  Route
	Path   string
	Params map[string]string
	Query  url.Values
}

// FullPath returns the path with its encoded query.
func (l Location) FullPath() string {
	if len(l.Query) == 0 {
		return l.Path
	}
	return l.Path + "?" + l.Query.Encode()
}

// Router tracks the current location.
type Router struct {
	session Session
	logger  zerolog.Logger

	mu      sync.Mutex
	current Location
	history []Location
}

// New creates a Router positioned at Login.
func New(s Session, logger zerolog.Logger) *Router {
	r := &Router{
		session: s,
		logger:  logger.With().Str("component", "navigation").Logger(),
	}
	r.current, _ = resolve("/login")
	return r
}

// Push moves to target after applying the guards and returns where the
// router ended up.
func (r *Router) Push(target string) (Location, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.push(target)
}

func (r *Router) push(target string) (Location, error) {
	from := r.current
	for range maxRedirects {
		to, redirected := resolve(target)
		next, ok := r.guard(from, to)
		if ok {
			if redirected {
				r.logger.Debug().Str("from", target).Str("to", to.FullPath()).Msg("unknown path")
			}
			r.history = append(r.history, r.current)
			r.current = to
			return to, nil
		}
		r.logger.Debug().Str("to", to.FullPath()).Str("redirect", next).Msg("navigation redirected")
		target = next
	}
	return r.current, fmt.Errorf("too many redirects navigating to %s", target)
}

// guard returns ok when to may be entered, or the path to go to instead.
func (r *Router) guard(from, to Location) (string, bool) {
	authed := r.session != nil && r.session.IsAuthenticated()

	if to.Route.RequiresAuth {
		if !authed {
			return "/login?" + url.Values{"redirect": {to.FullPath()}}.Encode(), false
		}
		if to.Route.RequiresAdmin && !r.session.IsAdmin() {
			return "/?" + url.Values{"error": {"unauthorized"}}.Encode(), false
		}
	}

	if authed && isGuestRoute(to.Route.Name) {
		if redirect := from.Query.Get("redirect"); redirect != "" {
			return redirect, false
		}
		return "/", false
	}
	return "", true
}

// RedirectToLogin sends the user to Login unless already there.
func (r *Router) RedirectToLogin() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current.Route.Name == Login {
		return
	}
	if _, err := r.push("/login"); err != nil {
		r.logger.Warn().Err(err).Msg("redirect to login failed")
	}
}

// Current returns the current location.
func (r *Router) Current() Location {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Back returns to the previous location without running the guards.
func (r *Router) Back() (Location, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.history) == 0 {
		return r.current, false
	}
	r.current = r.history[len(r.history)-1]
	r.history = r.history[:len(r.history)-1]
	return r.current, true
}

func isGuestRoute(name string) bool {
	return name == Login || name == Register || name == VerifyEmail
}

// resolve matches target against the route table. The second result
// reports that the path was unknown and Home was used.
func resolve(target string) (Location, bool) {
	u, err := url.Parse(target)
	if err != nil {
		u = &url.URL{Path: "/"}
	}
	path := "/" + strings.Trim(u.Path, "/")

	for _, route := range Routes {
		if params, ok := match(route.Path, path); ok {
			return Location{Route: route, Path: path, Params: params, Query: u.Query()}, false
		}
	}
	return Location{Route: Routes[0], Path: "/", Query: url.Values{}}, true
}

// match compares a route pattern with a path segment by segment. Static
// segments win over parameters because the table lists them first.
func match(pattern, path string) (map[string]string, bool) {
	ps := strings.Split(strings.Trim(pattern, "/"), "/")
	xs := strings.Split(strings.Trim(path, "/"), "/")
	if len(ps) != len(xs) {
		return nil, false
	}

	var params map[string]string
	for i, p := range ps {
		if name, ok := strings.CutPrefix(p, ":"); ok {
			if xs[i] == "" {
				return nil, false
			}
			if params == nil {
				params = make(map[string]string)
			}
			v, err := url.PathUnescape(xs[i])
			if err != nil {
				return nil, false
			}
			params[name] = v
			continue
		}
		if p != xs[i] {
			return nil, false
		}
	}
	return params, true
}
