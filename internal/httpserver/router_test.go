package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(deps map[string]Pinger) http.Handler {
	return NewRouter(RouterDeps{
		Health: NewHealthHandler(time.Now().Add(-time.Minute), deps),
		Log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthIsLive(t *testing.T) {
	rec := get(t, newTestRouter(nil), "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var body liveResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.GreaterOrEqual(t, body.UptimeSec, int64(59))
}

func TestReadyReportsEachDependency(t *testing.T) {
	ok := PingFunc(func(context.Context) error { return nil })
	down := PingFunc(func(context.Context) error { return errors.New("connection refused") })

	rec := get(t, newTestRouter(map[string]Pinger{"postgres": ok}), "/ready")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = get(t, newTestRouter(map[string]Pinger{"postgres": ok, "redis": down}), "/ready")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body readinessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.True(t, body.Dependencies["postgres"].Reachable)
	assert.False(t, body.Dependencies["redis"].Reachable)
	assert.Equal(t, "connection refused", body.Dependencies["redis"].Error)
}

func TestMetricsExposition(t *testing.T) {
	rec := get(t, newTestRouter(nil), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "go_goroutines"))
}

func TestUnknownRoute(t *testing.T) {
	rec := get(t, newTestRouter(nil), "/orders")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
