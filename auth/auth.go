// Package auth implements the account endpoints: registration, email
// verification, login, logout and manual token refresh.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"

	"github.com/rs/zerolog"

	"github.com/d361120041/health-log/apiclient"
	"github.com/d361120041/health-log/session"
)

var (
	ErrInvalidEmail     = errors.New("invalid email address")
	ErrEmptyPassword    = errors.New("password must not be empty")
	ErrPasswordMismatch = errors.New("passwords do not match")
	ErrEmptyVerifyToken = errors.New("verification token must not be empty")
)

// API sends requests and runs the client's shared token refresh.
type API interface {
	Do(ctx context.Context, r *apiclient.Request, out any) error
	Refresh(ctx context.Context) (string, error)
}

// Session receives the access token on login and refresh.
type Session interface {
	SetAccessToken(token string)
	Clear()
	Identity() *session.Identity
}

// Credentials identify a user at login.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Registration is the body of a sign-up request.
type Registration struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

// Validate checks the registration locally before it is sent.
func (r Registration) Validate() error {
	if _, err := mail.ParseAddress(r.Email); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidEmail, r.Email)
	}
	if r.Password == "" {
		return ErrEmptyPassword
	}
	if r.Password != r.ConfirmPassword {
		return ErrPasswordMismatch
	}
	return nil
}

// Message is the plain acknowledgement returned by account endpoints.
type Message struct {
	Message string `json:"message"`
}

// Service calls the auth endpoints. None of them takes part in the
// transparent refresh.
type Service struct {
	api     API
	session Session
	logger  zerolog.Logger
}

func NewService(api API, s Session, logger zerolog.Logger) *Service {
	return &Service{
		api:     api,
		session: s,
		logger:  logger.With().Str("component", "auth").Logger(),
	}
}

// Register creates an account. The server sends a verification email.
func (s *Service) Register(ctx context.Context, r Registration) (*Message, error) {
	r.Email = strings.TrimSpace(r.Email)
	if err := r.Validate(); err != nil {
		return nil, err
	}

	var msg Message
	if err := s.post(ctx, "/auth/register", r, &msg); err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	s.logger.Info().Str("email", r.Email).Msg("account registered")
	return &msg, nil
}

// VerifyEmail confirms an account with the token from the email.
func (s *Service) VerifyEmail(ctx context.Context, token string) (*Message, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrEmptyVerifyToken
	}

	var msg Message
	if err := s.post(ctx, "/auth/verify-email", map[string]string{"token": token}, &msg); err != nil {
		return nil, fmt.Errorf("verify email: %w", err)
	}
	return &msg, nil
}

// Login exchanges credentials for an access token. The refresh token
// arrives as an HttpOnly cookie and stays in the client's jar.
func (s *Service) Login(ctx context.Context, c Credentials) (*session.Identity, error) {
	c.Email = strings.TrimSpace(c.Email)
	if c.Email == "" {
		return nil, ErrInvalidEmail
	}
	if c.Password == "" {
		return nil, ErrEmptyPassword
	}

	var resp apiclient.TokenResponse
	if err := s.post(ctx, "/auth/login", c, &resp); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if err := resp.Validate(); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	s.session.SetAccessToken(resp.AccessToken)
	id := s.session.Identity()
	if id != nil {
		s.logger.Info().Str("email", id.Email).Str("role", id.Role).Msg("logged in")
	}
	return id, nil
}

// Logout revokes the refresh token on the server. Local state is
// cleared even when the call fails; the failure is still returned.
func (s *Service) Logout(ctx context.Context) error {
	defer s.session.Clear()

	if err := s.post(ctx, "/auth/logout", nil, nil); err != nil {
		s.logger.Warn().Err(err).Msg("logout call failed, local session cleared")
		return fmt.Errorf("logout: %w", err)
	}
	s.logger.Info().Msg("logged out")
	return nil
}

// Refresh obtains a new access token from the refresh cookie. It shares
// the client's refresh cycle, so it never races a refresh started by a
// rejected request. The client updates the session with the outcome.
func (s *Service) Refresh(ctx context.Context) error {
	if _, err := s.api.Refresh(ctx); err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	s.logger.Debug().Msg("access token refreshed")
	return nil
}

func (s *Service) post(ctx context.Context, path string, body, out any) error {
	return s.api.Do(ctx, &apiclient.Request{
		Method:      http.MethodPost,
		Path:        path,
		Body:        body,
		SkipRefresh: true,
	}, out)
}
