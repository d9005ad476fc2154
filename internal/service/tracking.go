package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/sakif/forkwatch/internal/apperror"
	"github.com/sakif/forkwatch/internal/auth"
	"github.com/sakif/forkwatch/internal/model"
	"github.com/sakif/forkwatch/internal/registrar"
	"github.com/sakif/forkwatch/internal/repository"
)

const (
	messageTracked         = "Repository added successfully. A webhook now reports new forks."
	messageTrackedDegraded = "Repository added without a webhook: webhook registration is disabled in this environment, so no fork notifications will be sent."
)

// Registrar is the part of the GitHub client tracking depends on.
type Registrar interface {
	AuthenticatedLogin(ctx context.Context, token string) (string, error)
	Repository(ctx context.Context, owner, name, token string) (*registrar.Repository, error)
	CreateForkWebhook(ctx context.Context, owner, name, callbackURL, secret, token string) (int64, error)
	DeleteWebhook(ctx context.Context, owner, name string, id int64, token string) error
}

// TrackingObserver receives the outcome of every track and untrack call.
type TrackingObserver interface {
	ObserveTracking(op, result string)
}

// TrackingConfig is the deployment-dependent part of tracking.
type TrackingConfig struct {
	// WebhooksEnabled switches between live webhooks and degraded mode.
	WebhooksEnabled bool
	CallbackURL     string
	WebhookSecret   string
	// AdminToken, when set, is used for repository lookups and hook
	// management instead of the signed-in user's OAuth token.
	AdminToken string
}

// TrackingService owns the lifecycle of tracked repositories: a record
// exists iff the user asked to track the repository and, when webhooks are
// enabled, a live webhook backs it.
type TrackingService struct {
	repos     repository.TrackedRepoRepository
	registrar Registrar
	cfg       TrackingConfig
	observer  TrackingObserver
	logger    *slog.Logger
}

// NewTrackingService creates a TrackingService. observer may be nil.
func NewTrackingService(
	repos repository.TrackedRepoRepository,
	reg Registrar,
	cfg TrackingConfig,
	observer TrackingObserver,
	logger *slog.Logger,
) *TrackingService {
	return &TrackingService{
		repos:     repos,
		registrar: reg,
		cfg:       cfg,
		observer:  observer,
		logger:    logger,
	}
}

// TrackResult is returned by a successful Track.
type TrackResult struct {
	Repository    *model.TrackedRepository
	Message       string
	WebhookActive bool
}

// UntrackResult is returned by a successful Untrack. WebhookError is set
// when the upstream hook could not be removed; the record is gone anyway.
type UntrackResult struct {
	Repository   *model.TrackedRepository
	WebhookError string
}

// Track registers repoURL for fork notifications on behalf of sess.
//
// On success exactly one webhook is created (when enabled) and one record is
// stored. Every failure before the store write leaves no record behind.
func (s *TrackingService) Track(ctx context.Context, sess *auth.Session, repoURL string) (*TrackResult, error) {
	res, err := s.track(ctx, sess, repoURL)
	s.observe("track", trackOutcome(res, err))
	return res, err
}

func (s *TrackingService) track(ctx context.Context, sess *auth.Session, repoURL string) (*TrackResult, error) {
	owner, name, err := ParseRepoURL(repoURL)
	if err != nil {
		return nil, err
	}
	log := s.logger.With(
		slog.String("user", sess.Email),
		slog.String("repo", owner+"/"+name),
	)

	login, err := s.authenticatedLogin(ctx, sess)
	if err != nil {
		log.Warn("resolving GitHub login failed", slog.String("error", err.Error()))
		return nil, apperror.UpstreamUnavailable("Failed to verify your GitHub account", err)
	}
	if !strings.EqualFold(owner, login) {
		log.Info("track refused: not the owner", slog.String("login", login))
		return nil, apperror.Forbidden("You can only track repositories you own")
	}

	token := s.registrarToken(sess)
	repo, err := s.registrar.Repository(ctx, owner, name, token)
	if err != nil {
		if errors.Is(err, registrar.ErrNotFound) {
			return nil, apperror.NotFoundMessage("Repository not found on GitHub")
		}
		return nil, apperror.UpstreamUnavailable("Failed to look up repository on GitHub", err)
	}

	_, err = s.repos.FindByNameAndOwner(ctx, repo.FullName, sess.Email)
	switch {
	case err == nil:
		return nil, apperror.AlreadyTracked(repo.FullName)
	case !errors.Is(err, apperror.ErrNotFound):
		log.Error("duplicate check failed", slog.String("error", err.Error()))
		return nil, apperror.StoreUnavailable("Failed to check tracked repositories", err)
	}

	record := &model.TrackedRepository{
		RepoFullName: repo.FullName,
		OwnerEmail:   sess.Email,
	}
	if s.cfg.WebhooksEnabled {
		id, err := s.registrar.CreateForkWebhook(ctx, repo.Owner, repo.Name, s.cfg.CallbackURL, s.cfg.WebhookSecret, token)
		if err != nil {
			log.Error("webhook creation failed",
				slog.Int("status", registrar.Status(err)),
				slog.String("error", err.Error()),
			)
			return nil, apperror.WebhookSetupFailed(registrar.Status(err), registrar.Message(err), err)
		}
		record.WebhookID = &id
	}

	if err := s.repos.Create(ctx, record); err != nil {
		s.rollbackWebhook(ctx, log, repo, record, token)
		if errors.Is(err, apperror.ErrConflict) {
			return nil, apperror.AlreadyTracked(repo.FullName)
		}
		log.Error("storing tracked repository failed", slog.String("error", err.Error()))
		return nil, apperror.StoreUnavailable("Failed to save tracked repository", err)
	}

	if record.HasWebhook() {
		log.Info("repository tracked", slog.Int64("webhookID", *record.WebhookID))
		return &TrackResult{Repository: record, Message: messageTracked, WebhookActive: true}, nil
	}
	log.Info("repository tracked without webhook")
	return &TrackResult{Repository: record, Message: messageTrackedDegraded}, nil
}

// rollbackWebhook removes a hook created for a record that could not be
// stored. Failure is only logged: the orphaned hook delivers to no one.
func (s *TrackingService) rollbackWebhook(ctx context.Context, log *slog.Logger, repo *registrar.Repository, record *model.TrackedRepository, token string) {
	if !record.HasWebhook() {
		return
	}
	// The insert may have failed because the caller went away; the hook
	// must still be removed.
	ctx = context.WithoutCancel(ctx)
	err := s.registrar.DeleteWebhook(ctx, repo.Owner, repo.Name, *record.WebhookID, token)
	if err != nil && !errors.Is(err, registrar.ErrNotFound) {
		log.Warn("orphaned webhook left behind",
			slog.Int64("webhookID", *record.WebhookID),
			slog.String("error", err.Error()),
		)
	}
}

// Untrack removes the record id owned by sess and its webhook.
//
// A webhook already gone upstream counts as removed. Any other hook failure
// is reported in UntrackResult.WebhookError and the record is deleted anyway.
func (s *TrackingService) Untrack(ctx context.Context, sess *auth.Session, id string) (*UntrackResult, error) {
	res, err := s.untrack(ctx, sess, id)
	outcome := "success"
	switch {
	case err != nil:
		outcome = errorOutcome(err)
	case res.WebhookError != "":
		outcome = "webhook_error"
	}
	s.observe("untrack", outcome)
	return res, err
}

func (s *TrackingService) untrack(ctx context.Context, sess *auth.Session, id string) (*UntrackResult, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperror.ValidationFailed("repoId", "Repository ID is required")
	}

	rec, err := s.repos.GetForOwner(ctx, id, sess.Email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.NotFoundMessage("Repository not found")
		}
		return nil, apperror.StoreUnavailable("Failed to load tracked repository", err)
	}
	log := s.logger.With(
		slog.String("user", sess.Email),
		slog.String("repo", rec.RepoFullName),
		slog.String("trackedID", rec.ID),
	)

	res := &UntrackResult{Repository: rec}
	if rec.HasWebhook() {
		res.WebhookError = s.removeWebhook(ctx, log, sess, rec)
	}

	if err := s.repos.DeleteForOwner(ctx, rec.ID, sess.Email); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			// A concurrent untrack removed it first.
			return nil, apperror.NotFoundMessage("Repository not found")
		}
		log.Error("deleting tracked repository failed", slog.String("error", err.Error()))
		return nil, apperror.DeleteFailed("repository", err)
	}
	log.Info("repository untracked")
	return res, nil
}

func (s *TrackingService) removeWebhook(ctx context.Context, log *slog.Logger, sess *auth.Session, rec *model.TrackedRepository) string {
	owner, name, ok := registrar.SplitFullName(rec.RepoFullName)
	if !ok {
		log.Error("stored repository name is malformed; webhook left in place")
		return fmt.Sprintf("cannot derive owner and name from %q", rec.RepoFullName)
	}

	err := s.registrar.DeleteWebhook(ctx, owner, name, *rec.WebhookID, s.registrarToken(sess))
	switch {
	case err == nil:
		return ""
	case errors.Is(err, registrar.ErrNotFound):
		log.Info("webhook already removed upstream", slog.Int64("webhookID", *rec.WebhookID))
		return ""
	default:
		log.Warn("webhook deletion failed; deleting record anyway",
			slog.Int64("webhookID", *rec.WebhookID),
			slog.String("error", err.Error()),
		)
		return registrar.Message(err)
	}
}

// ListTracked returns the repositories sess tracks, newest first.
func (s *TrackingService) ListTracked(ctx context.Context, sess *auth.Session) ([]model.TrackedRepository, error) {
	repos, err := s.repos.ListByOwner(ctx, sess.Email)
	if err != nil {
		return nil, apperror.StoreUnavailable("Failed to fetch repositories", err)
	}
	if repos == nil {
		repos = []model.TrackedRepository{}
	}
	return repos, nil
}

// authenticatedLogin asks GitHub who the session's token belongs to. A
// session without a token falls back to the login recorded at sign-in.
func (s *TrackingService) authenticatedLogin(ctx context.Context, sess *auth.Session) (string, error) {
	if sess.GitHubToken == "" {
		if sess.Login == "" {
			return "", fmt.Errorf("service/tracking: session has neither token nor login")
		}
		return sess.Login, nil
	}
	return s.registrar.AuthenticatedLogin(ctx, sess.GitHubToken)
}

func (s *TrackingService) registrarToken(sess *auth.Session) string {
	if s.cfg.AdminToken != "" {
		return s.cfg.AdminToken
	}
	return sess.GitHubToken
}

func (s *TrackingService) observe(op, result string) {
	if s.observer != nil {
		s.observer.ObserveTracking(op, result)
	}
}

var repoSegment = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ParseRepoURL extracts owner and name from a GitHub URL
// ("https://github.com/owner/name", optionally with ".git" or further path
// segments) or a bare "owner/name".
func ParseRepoURL(raw string) (owner, name string, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", "", apperror.ValidationFailed("repoUrl", "Repository URL is required")
	}
	invalid := apperror.ValidationFailed("repoUrl", "Invalid repository URL format")

	var segments []string
	switch {
	case strings.Contains(raw, "://"):
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "https" && u.Scheme != "http") || !isGitHubHost(u.Host) {
			return "", "", invalid
		}
		segments = strings.Split(strings.Trim(u.Path, "/"), "/")
	case isGitHubHost(strings.SplitN(raw, "/", 2)[0]):
		segments = strings.Split(strings.Trim(raw, "/"), "/")[1:]
	default:
		segments = strings.Split(raw, "/")
		if len(segments) != 2 {
			return "", "", invalid
		}
	}
	if len(segments) < 2 {
		return "", "", invalid
	}

	owner, name = segments[0], strings.TrimSuffix(segments[1], ".git")
	if !repoSegment.MatchString(owner) || !repoSegment.MatchString(name) || name == "." || name == ".." {
		return "", "", invalid
	}
	return owner, name, nil
}

func isGitHubHost(host string) bool {
	host = strings.ToLower(host)
	return host == "github.com" || host == "www.github.com"
}

func trackOutcome(res *TrackResult, err error) string {
	switch {
	case err != nil:
		return errorOutcome(err)
	case res.WebhookActive:
		return "success"
	default:
		return "degraded"
	}
}

// errorOutcome names an AppError kind for metrics labels. Kinds that wrap a
// cause are checked first: the cause may itself match a simpler kind.
func errorOutcome(err error) string {
	switch {
	case errors.Is(err, apperror.ErrWebhookSetup):
		return "webhook_error"
	case errors.Is(err, apperror.ErrUpstream):
		return "upstream_error"
	case errors.Is(err, apperror.ErrDelete):
		return "delete_error"
	case errors.Is(err, apperror.ErrStore):
		return "store_error"
	case errors.Is(err, apperror.ErrValidation):
		return "invalid"
	case errors.Is(err, apperror.ErrForbidden):
		return "forbidden"
	case errors.Is(err, apperror.ErrNotFound):
		return "not_found"
	case errors.Is(err, apperror.ErrConflict):
		return "already_tracked"
	default:
		return "error"
	}
}
