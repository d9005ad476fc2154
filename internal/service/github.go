package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/forkwatch/internal/apperror"
	"github.com/sakif/forkwatch/internal/auth"
	"github.com/sakif/forkwatch/internal/registrar"
)

// RepoBrowser reads repository data from GitHub with the user's own token.
type RepoBrowser interface {
	AuthenticatedLogin(ctx context.Context, token string) (string, error)
	ListOwnedRepos(ctx context.Context, token string) ([]registrar.RepoSummary, error)
	RepoActivity(ctx context.Context, owner, name, token string, now time.Time) (*registrar.Activity, error)
}

// GitHubService serves the dashboard's read-only GitHub views.
type GitHubService struct {
	github RepoBrowser
	logger *slog.Logger
	now    func() time.Time
}

// NewGitHubService creates a GitHubService.
func NewGitHubService(github RepoBrowser, logger *slog.Logger) *GitHubService {
	return &GitHubService{github: github, logger: logger, now: time.Now}
}

// OwnedRepos lists the repositories the signed-in user owns, most recently
// updated first.
func (s *GitHubService) OwnedRepos(ctx context.Context, sess *auth.Session) ([]registrar.RepoSummary, error) {
	if err := requireToken(sess); err != nil {
		return nil, err
	}
	repos, err := s.github.ListOwnedRepos(ctx, sess.GitHubToken)
	if err != nil {
		return nil, apperror.UpstreamUnavailable("Failed to fetch repositories", err)
	}
	return repos, nil
}

// Activity summarises one of the signed-in user's repositories by name. For
// a fork the parent repository is summarised.
func (s *GitHubService) Activity(ctx context.Context, sess *auth.Session, repo string) (*registrar.Activity, error) {
	repo = strings.TrimSpace(repo)
	if repo == "" {
		return nil, apperror.ValidationFailed("repo", "Repo parameter required")
	}
	if err := requireToken(sess); err != nil {
		return nil, err
	}

	login, err := s.github.AuthenticatedLogin(ctx, sess.GitHubToken)
	if err != nil {
		return nil, apperror.UpstreamUnavailable("Failed to get user info", err)
	}

	activity, err := s.github.RepoActivity(ctx, login, repo, sess.GitHubToken, s.now())
	if err != nil {
		if errors.Is(err, registrar.ErrNotFound) {
			return nil, apperror.NotFoundMessage("Repository not found")
		}
		s.logger.Warn("activity lookup failed",
			slog.String("repo", login+"/"+repo),
			slog.String("error", err.Error()),
		)
		return nil, apperror.UpstreamUnavailable("Failed to fetch repository activity", err)
	}
	return activity, nil
}

func requireToken(sess *auth.Session) error {
	if sess == nil || sess.GitHubToken == "" {
		return apperror.Forbidden("Sign in with GitHub again to grant repository access")
	}
	return nil
}
