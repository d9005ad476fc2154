package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/forkwatch/internal/service"
	"github.com/sakif/forkwatch/internal/webhook"
)

// SimulateHandler feeds a synthetic fork event through the webhook pipeline.
// It is only mounted outside production.
type SimulateHandler struct {
	processor WebhookProcessor
	logger    *slog.Logger
	now       func() time.Time
}

// NewSimulateHandler creates a SimulateHandler.
func NewSimulateHandler(processor WebhookProcessor, logger *slog.Logger) *SimulateHandler {
	return &SimulateHandler{processor: processor, logger: logger, now: time.Now}
}

// SimulateResponse is the body of POST /api/test/simulate-fork.
type SimulateResponse struct {
	Status          string           `json:"status"`
	Message         string           `json:"message"`
	WebhookResponse *webhook.Outcome `json:"webhookResponse"`
}

// HandleSimulateFork builds a fork payload for repoUrl and processes it
// exactly as a real delivery would be.
//
// HTTP: POST /api/test/simulate-fork  {"repoUrl": "owner/name"}
func (h *SimulateHandler) HandleSimulateFork(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if err := decodeJSON(w, r, maxRequestBody, &req); err != nil {
		writeError(w, err)
		return
	}
	owner, name, err := service.ParseRepoURL(req.RepoURL)
	if err != nil {
		writeError(w, err)
		return
	}

	body, err := json.Marshal(map[string]any{
		"action":     "created",
		"repository": map[string]string{"full_name": owner + "/" + name},
		"sender": map[string]string{
			"login":    "test-user",
			"html_url": "https://github.com/test-user",
		},
		"forkee": map[string]string{
			"full_name":  "test-user/" + name,
			"html_url":   "https://github.com/test-user/" + name,
			"created_at": h.now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		writeError(w, err)
		return
	}

	out, err := h.processor.Process(r.Context(), "application/json", body)
	if err != nil {
		h.logger.Error("simulated fork failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Failed to simulate fork", Details: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, SimulateResponse{
		Status:          "success",
		Message:         "Fork event simulated",
		WebhookResponse: out,
	})
}
