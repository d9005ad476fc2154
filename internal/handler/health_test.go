package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/forkwatch/internal/handler"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func getHealth(t *testing.T, p handler.Pinger) (int, handler.HealthResponse) {
	t.Helper()
	h := handler.NewHealthHandler(p, "1.2.3", "development", testLogger())
	rr := httptest.NewRecorder()
	h.HandleHealth(rr, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	var body handler.HealthResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	return rr.Code, body
}

func TestHealth_OK(t *testing.T) {
	code, body := getHealth(t, pingerFunc(func(ctx context.Context) error {
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline, "store ping must be bounded")
		return nil
	}))

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "forkwatch", body.Service)
	assert.Equal(t, "1.2.3", body.Version)
	assert.Equal(t, "ok", body.Store)
	assert.Empty(t, body.Error)
	assert.NotEmpty(t, body.Timestamp)
}

func TestHealth_StoreDown(t *testing.T) {
	code, body := getHealth(t, pingerFunc(func(context.Context) error {
		return errors.New("dial tcp: connection refused")
	}))

	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", body.Status)
	assert.Equal(t, "unreachable", body.Store)
	assert.Equal(t, "Health check failed", body.Error)
}
