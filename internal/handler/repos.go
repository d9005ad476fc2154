package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/forkwatch/internal/auth"
	"github.com/sakif/forkwatch/internal/model"
	"github.com/sakif/forkwatch/internal/service"
)

const maxRequestBody = 64 << 10

// RepoHandler serves tracking and the user's GitHub repository views.
type RepoHandler struct {
	tracking *service.TrackingService
	github   *service.GitHubService
	logger   *slog.Logger
}

// NewRepoHandler creates a RepoHandler.
func NewRepoHandler(tracking *service.TrackingService, github *service.GitHubService, logger *slog.Logger) *RepoHandler {
	return &RepoHandler{tracking: tracking, github: github, logger: logger}
}

type trackRequest struct {
	RepoURL string `json:"repoUrl"`
}

// TrackResponse is the 200 body of POST /api/repos/add.
type TrackResponse struct {
	Status        string                   `json:"status"`
	Message       string                   `json:"message"`
	WebhookActive bool                     `json:"webhookActive"`
	Repository    *model.TrackedRepository `json:"repository"`
}

// UntrackResponse is the 200 body of DELETE /api/repos/delete.
type UntrackResponse struct {
	Success      bool   `json:"success"`
	WebhookError string `json:"webhookError,omitempty"`
}

// HandleTrack starts tracking a repository.
//
// HTTP: POST /api/repos/add  {"repoUrl": "https://github.com/owner/name"}
// Auth: required
func (h *RepoHandler) HandleTrack(w http.ResponseWriter, r *http.Request) {
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "Authentication required"})
		return
	}

	var req trackRequest
	if err := decodeJSON(w, r, maxRequestBody, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.tracking.Track(r.Context(), sess, req.RepoURL)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, TrackResponse{
		Status:        "success",
		Message:       res.Message,
		WebhookActive: res.WebhookActive,
		Repository:    res.Repository,
	})
}

// HandleUntrack stops tracking a repository and removes its webhook.
//
// HTTP: DELETE /api/repos/delete?repoId=xxx
// Auth: required
func (h *RepoHandler) HandleUntrack(w http.ResponseWriter, r *http.Request) {
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "Authentication required"})
		return
	}

	res, err := h.tracking.Untrack(r.Context(), sess, r.URL.Query().Get("repoId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, UntrackResponse{Success: true, WebhookError: res.WebhookError})
}

// HandleListTracked returns the caller's tracked repositories, newest first.
//
// HTTP: GET /api/repos/get
func (h *RepoHandler) HandleListTracked(w http.ResponseWriter, r *http.Request) {
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "Authentication required"})
		return
	}

	repos, err := h.tracking.ListTracked(r.Context(), sess)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, repos)
}

// HandleListOwned returns the caller's own GitHub repositories.
//
// HTTP: GET /api/repos/list
func (h *RepoHandler) HandleListOwned(w http.ResponseWriter, r *http.Request) {
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "Authentication required"})
		return
	}

	repos, err := h.github.OwnedRepos(r.Context(), sess)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, repos)
}

// HandleActivity returns recent contributors and forks of one of the
// caller's repositories.
//
// HTTP: GET /api/hoverlay?repo=name
func (h *RepoHandler) HandleActivity(w http.ResponseWriter, r *http.Request) {
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "Authentication required"})
		return
	}

	activity, err := h.github.Activity(r.Context(), sess, r.URL.Query().Get("repo"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, activity)
}
