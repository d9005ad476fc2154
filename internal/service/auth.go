// Package service holds the business rules of forkwatch.
//
// Services sit between the HTTP handlers and the storage/GitHub layers:
//
//	Handler (HTTP) → Service (rules) → repository / registrar
//
// They never touch http.Request or status codes. Failures are returned as
// *apperror.AppError so handlers can map them with errors.Is.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/forkwatch/internal/apperror"
	"github.com/sakif/forkwatch/internal/auth"
	"github.com/sakif/forkwatch/internal/model"
	"github.com/sakif/forkwatch/internal/repository"
)

// AuthService handles sign-in and the signed-in user's profile.
type AuthService struct {
	users  repository.UserRepository
	tokens *auth.TokenService
	logger *slog.Logger
	now    func() time.Time
}

// NewAuthService creates an AuthService.
func NewAuthService(users repository.UserRepository, tokens *auth.TokenService, logger *slog.Logger) *AuthService {
	return &AuthService{
		users:  users,
		tokens: tokens,
		logger: logger,
		now:    time.Now,
	}
}

// AuthResult bundles the stored user with the session token issued for them,
// so the handler can set the cookie and respond in one step.
type AuthResult struct {
	User    *model.User
	Session *auth.Session
	Token   string
}

// SignIn handles the end of the GitHub OAuth callback.
//
// The user record is upserted on every sign-in: first sign-in inserts it,
// later ones refresh login, name, avatar and LastSignIn. The webhook pipeline
// relies on this record existing for every owner of a tracked repository.
func (s *AuthService) SignIn(ctx context.Context, gh *auth.GitHubUser) (*AuthResult, error) {
	if gh == nil {
		return nil, fmt.Errorf("service/auth: GitHub user must not be nil")
	}
	if gh.Email == "" {
		return nil, apperror.ValidationFailed("email", "GitHub account has no verified email address")
	}

	user := &model.User{
		Email:      gh.Email,
		Login:      gh.Login,
		Name:       gh.Name,
		Image:      gh.AvatarURL,
		LastSignIn: s.now().UTC(),
	}
	if err := s.users.Upsert(ctx, user); err != nil {
		s.logger.Error("user upsert failed",
			slog.String("login", gh.Login),
			slog.String("error", err.Error()),
		)
		return nil, apperror.StoreUnavailable("Failed to save user profile", err)
	}

	sess := &auth.Session{
		Email:       user.Email,
		Login:       user.Login,
		Name:        user.Name,
		GitHubToken: gh.AccessToken,
	}
	token, err := s.tokens.Generate(*sess)
	if err != nil {
		return nil, fmt.Errorf("service/auth: issuing session for %s: %w", user.Login, err)
	}

	s.logger.Info("user signed in via GitHub",
		slog.String("login", user.Login),
		slog.String("email", user.Email),
	)
	return &AuthResult{User: user, Session: sess, Token: token}, nil
}

// Profile returns the stored profile for the session's email.
func (s *AuthService) Profile(ctx context.Context, sess *auth.Session) (*model.User, error) {
	if sess == nil || sess.Email == "" {
		return nil, fmt.Errorf("service/auth: session must carry an email")
	}

	user, err := s.users.GetByEmail(ctx, sess.Email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.NotFoundMessage("User profile not found")
		}
		return nil, apperror.StoreUnavailable("Failed to load user profile", err)
	}
	return user, nil
}
