package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/forkwatch/internal/apperror"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid input", apperror.ValidationFailed("repoUrl", "Invalid repository URL format"), http.StatusBadRequest},
		{"already tracked", apperror.AlreadyTracked("Alice/Demo"), http.StatusBadRequest},
		{"forbidden", apperror.Forbidden("nope"), http.StatusForbidden},
		{"not found", apperror.NotFoundMessage("Repository not found"), http.StatusNotFound},
		{"upstream", apperror.UpstreamUnavailable("GitHub down", errors.New("503")), http.StatusBadGateway},
		{"webhook setup", apperror.WebhookSetupFailed(422, "Validation Failed", errors.New("422")), http.StatusInternalServerError},
		{"store", apperror.StoreUnavailable("db down", errors.New("timeout")), http.StatusInternalServerError},
		// The cause of a failed delete is a not-found from the store; the
		// delete kind must win.
		{"delete wraps not found", apperror.DeleteFailed("repository", apperror.NotFound("tracked repository", "x")), http.StatusInternalServerError},
		{"upstream wraps not found", apperror.UpstreamUnavailable("x", apperror.NotFound("a", "b")), http.StatusBadGateway},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	return body
}

func TestWriteError_WebhookSetupCarriesUpstreamDetail(t *testing.T) {
	rr := httptest.NewRecorder()
	writeError(rr, apperror.WebhookSetupFailed(422, "Validation Failed (Hook already exists)", errors.New("x")))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	body := decodeError(t, rr)
	assert.Equal(t, "Failed to set up webhook", body.Error)
	assert.Equal(t, "GitHub responded 422: Validation Failed (Hook already exists)", body.Details)
}

func TestWriteError_StoreHidesCause(t *testing.T) {
	rr := httptest.NewRecorder()
	writeError(rr, apperror.StoreUnavailable("Failed to save tracked repository", errors.New("SELECT * FROM secret_table")))

	body := decodeError(t, rr)
	assert.Equal(t, "Failed to save tracked repository", body.Error)
	assert.Empty(t, body.Details)
}

func TestWriteError_UnknownIsGeneric(t *testing.T) {
	rr := httptest.NewRecorder()
	writeError(rr, errors.New("/var/lib/forkwatch.db: permission denied"))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, ErrorResponse{Error: "Internal server error"}, decodeError(t, rr))
}

func TestWriteError_ValidationIncludesField(t *testing.T) {
	rr := httptest.NewRecorder()
	writeError(rr, apperror.ValidationFailed("repoUrl", "Repository URL is required"))

	body := decodeError(t, rr)
	assert.Equal(t, "Repository URL is required", body.Error)
	assert.Equal(t, "repoUrl", body.Field)
}

func TestDecodeJSON(t *testing.T) {
	var dst trackRequest
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"repoUrl":"alice/demo"}`))
	require.NoError(t, decodeJSON(httptest.NewRecorder(), r, 1024, &dst))
	assert.Equal(t, "alice/demo", dst.RepoURL)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{not json`))
	err := decodeJSON(httptest.NewRecorder(), r, 1024, &dst)
	assert.True(t, errors.Is(err, apperror.ErrValidation))

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"repoUrl":"`+strings.Repeat("a", 100)+`"}`))
	err = decodeJSON(httptest.NewRecorder(), r, 16, &dst)
	assert.Error(t, err, "bodies over the limit are rejected")
}
