// Package session keeps the in-memory login state: the current access
// token and the identity decoded from it.
package session

import (
	"sync"

	"github.com/rs/zerolog"
)

// RoleAdmin is the role name granting access to field administration.
const RoleAdmin = "ADMIN"

// Store holds the access token for the running process.
//
// The identity is non-nil only while the token is non-empty and decodes
// cleanly; a malformed token leaves the identity nil.
type Store struct {
	mu       sync.RWMutex
	token    string
	identity *Identity
	logger   zerolog.Logger
}

// NewStore creates an empty Store.
func NewStore(logger zerolog.Logger) *Store {
	return &Store{logger: logger.With().Str("component", "session").Logger()}
}

// SetAccessToken replaces the token and recomputes the identity. It is
// a no-op on a nil Store.
func (s *Store) SetAccessToken(token string) {
	if s == nil {
		return
	}
	var identity *Identity
	if token != "" {
		id, err := DecodeIdentity(token)
		if err != nil {
			s.logger.Error().Err(err).Msg("failed to parse access token")
		} else {
			identity = id
		}
	}

	s.mu.Lock()
	s.token = token
	s.identity = identity
	s.mu.Unlock()
}

// AccessToken returns the current token, or "" when logged out.
// A nil Store behaves as an empty one.
func (s *Store) AccessToken() string {
	if s == nil {
		return ""
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Identity returns a copy of the decoded identity, or nil.
func (s *Store) Identity() *Identity {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return nil
	}
	id := *s.identity
	return &id
}

// Clear drops the token and identity.
func (s *Store) Clear() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.token = ""
	s.identity = nil
	s.mu.Unlock()
}

// IsAuthenticated reports whether a non-empty token is held.
func (s *Store) IsAuthenticated() bool {
	return s.AccessToken() != ""
}

// IsAdmin reports whether the decoded identity carries the admin role.
func (s *Store) IsAdmin() bool {
	id := s.Identity()
	return id != nil && id.Role == RoleAdmin
}
