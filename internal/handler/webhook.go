package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/forkwatch/internal/apperror"
	"github.com/sakif/forkwatch/internal/webhook"
)

// GitHub caps webhook payloads at 25 MB.
const maxWebhookBody = 25 << 20

// WebhookProcessor is the ingestion pipeline.
type WebhookProcessor interface {
	Process(ctx context.Context, contentType string, body []byte) (*webhook.Outcome, error)
	Ping() *webhook.Outcome
}

// WebhookHandler receives GitHub deliveries.
//
// Every understood delivery is answered 200 with a status in the body, so
// GitHub does not retry it. Only undecodable bodies and store outages get a
// non-2xx answer.
type WebhookHandler struct {
	processor WebhookProcessor
	verifier  *webhook.Verifier
	// strict answers undecodable bodies with 400 instead of 500.
	strict bool
	logger *slog.Logger
}

// NewWebhookHandler creates a WebhookHandler.
func NewWebhookHandler(processor WebhookProcessor, verifier *webhook.Verifier, strict bool, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		processor: processor,
		verifier:  verifier,
		strict:    strict,
		logger:    logger,
	}
}

// HandleWebhook runs one delivery through the pipeline.
//
// HTTP: POST /api/webhook
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	log := h.logger.With(
		slog.String("delivery", r.Header.Get(webhook.DeliveryHeader)),
		slog.String("event", r.Header.Get(webhook.EventHeader)),
	)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		log.Warn("reading webhook body failed", slog.String("error", err.Error()))
		h.writeParseError(w, err)
		return
	}

	if err := h.verifier.Verify(r.Header.Get(webhook.SignatureHeader), body); err != nil {
		log.Warn("webhook signature rejected", slog.String("error", err.Error()))
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "Invalid signature"})
		return
	}

	if r.Header.Get(webhook.EventHeader) == "ping" {
		writeJSON(w, http.StatusOK, h.processor.Ping())
		return
	}

	out, err := h.processor.Process(r.Context(), r.Header.Get("Content-Type"), body)
	if err != nil {
		if errors.Is(err, apperror.ErrStore) {
			log.Error("webhook processing failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Internal server error"})
			return
		}
		h.writeParseError(w, err)
		return
	}

	log.Info("webhook processed",
		slog.String("status", string(out.Status)),
		slog.Duration("duration", time.Since(start)),
	)
	writeJSON(w, http.StatusOK, out)
}

// writeParseError answers a body that could not be decoded.
func (h *WebhookHandler) writeParseError(w http.ResponseWriter, err error) {
	status, summary := http.StatusInternalServerError, "Internal server error"
	if h.strict {
		status, summary = http.StatusBadRequest, "Invalid webhook payload"
	}
	details := err.Error()
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		details = appErr.Message
	}
	writeJSON(w, status, ErrorResponse{Error: summary, Details: details})
}
