// Package service: authentication business logic.
//
// AuthService sits between the HTTP handlers and the credential store:
//
//	AuthHandler (HTTP) → AuthService (business rules) → UserRepository (DB)
//	                   ↘ TokenService (JWT), PasswordService (bcrypt)
//
// It never sees an *http.Request; handlers pass plain values in and
// translate the returned apperror values into status codes.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/sakif/todo-api/internal/apperror"
	"github.com/sakif/todo-api/internal/auth"
	"github.com/sakif/todo-api/internal/metrics"
	"github.com/sakif/todo-api/internal/model"
	"github.com/sakif/todo-api/internal/repository"
)

const (
	MaxEmailLength    = 255
	MinPasswordLength = 8
)

// invalidCredentialsMessage is shared by "no such user" and "wrong
// password" so a login response never reveals which one happened.
const invalidCredentialsMessage = "Invalid email or password"

// AuthService handles registration, login and identity lookup.
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    zerolog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger zerolog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
	}
}

// AuthResult bundles the user and the freshly issued token.
type AuthResult struct {
	User  *model.User
	Token string
}

// Register creates an account and signs the caller in.
//
// Duplicate emails are detected by the store's UNIQUE constraint, so
// two racing registrations for one address yield exactly one account
// and one apperror.Conflict.
func (s *AuthService) Register(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.TrimSpace(email)
	if err := validateCredentials(email, password); err != nil {
		return nil, err
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: %w", err)
	}

	user := &model.User{Email: email, PasswordHash: hash}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			metrics.AuthAttemptsTotal.WithLabelValues("register", "conflict").Inc()
			return nil, err
		}
		metrics.AuthAttemptsTotal.WithLabelValues("register", "error").Inc()
		s.logger.Error().Err(err).Msg("failed to create user")
		return nil, fmt.Errorf("service/auth: creating user: %w", err)
	}

	result, err := s.issue(user)
	if err != nil {
		return nil, err
	}

	metrics.AuthAttemptsTotal.WithLabelValues("register", "success").Inc()
	s.logger.Info().Str("user_id", user.ID).Msg("user registered")
	return result, nil
}

// Login verifies credentials and issues a token.
//
// An unknown email still costs one bcrypt comparison (Mismatch), so
// "no such user" and "wrong password" are indistinguishable in both
// the response body and its timing.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.TrimSpace(email)

	user, err := s.users.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, apperror.ErrNotFound):
		_ = s.passwords.Mismatch(password)
		return nil, s.invalidCredentials()
	case err != nil:
		metrics.AuthAttemptsTotal.WithLabelValues("login", "error").Inc()
		return nil, fmt.Errorf("service/auth: looking up user: %w", err)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, s.invalidCredentials()
		}
		metrics.AuthAttemptsTotal.WithLabelValues("login", "error").Inc()
		s.logger.Error().Err(err).Str("user_id", user.ID).Msg("stored password hash is unreadable")
		return nil, fmt.Errorf("service/auth: verifying password: %w", err)
	}

	result, err := s.issue(user)
	if err != nil {
		return nil, err
	}

	metrics.AuthAttemptsTotal.WithLabelValues("login", "success").Inc()
	s.logger.Info().Str("user_id", user.ID).Msg("user logged in")
	return result, nil
}

// CurrentUser returns the account behind an authenticated identity.
// A valid token for a user that no longer exists is treated as
// unauthenticated.
func (s *AuthService) CurrentUser(ctx context.Context, id auth.Identity) (*model.User, error) {
	user, err := s.users.GetByID(ctx, id.Subject)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthenticated("User no longer exists")
		}
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", id.Subject, err)
	}
	return user, nil
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("service/auth: issuing token for user %s: %w", user.ID, err)
	}
	return &AuthResult{User: user, Token: token}, nil
}

func (s *AuthService) invalidCredentials() error {
	metrics.AuthAttemptsTotal.WithLabelValues("login", "invalid_credentials").Inc()
	return apperror.Unauthenticated(invalidCredentialsMessage)
}

// validateCredentials enforces the registration rules. Every violated
// field is reported, not just the first.
func validateCredentials(email, password string) error {
	var fields []apperror.FieldError

	switch {
	case email == "":
		fields = append(fields, apperror.FieldError{Field: "email", Message: "email is required", Type: "required"})
	case utf8.RuneCountInString(email) > MaxEmailLength:
		fields = append(fields, apperror.FieldError{Field: "email",
			Message: fmt.Sprintf("email must be at most %d characters", MaxEmailLength), Type: "max"})
	case !strings.Contains(email, "@"):
		fields = append(fields, apperror.FieldError{Field: "email", Message: "email must be a valid email", Type: "email"})
	}

	switch {
	case utf8.RuneCountInString(password) < MinPasswordLength:
		fields = append(fields, apperror.FieldError{Field: "password",
			Message: fmt.Sprintf("password must be at least %d characters", MinPasswordLength), Type: "min"})
	case len(password) > auth.MaxPasswordBytes:
		fields = append(fields, apperror.FieldError{Field: "password",
			Message: fmt.Sprintf("password must be at most %d bytes", auth.MaxPasswordBytes), Type: "max"})
	}

	if len(fields) > 0 {
		return apperror.Invalid(fields...)
	}
	return nil
}
