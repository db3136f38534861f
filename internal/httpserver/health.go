package httpserver

import (
	"context"
	"net/http"
	"time"
)

// Pinger is a dependency readiness depends on, such as the database pool or
// the Redis client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type HealthHandler struct {
	startedAt time.Time
	timeout   time.Duration
	deps      map[string]Pinger
	now       func() time.Time
}

func NewHealthHandler(startedAt time.Time, deps map[string]Pinger) *HealthHandler {
	start := startedAt.UTC()
	if start.IsZero() {
		start = time.Now().UTC()
	}
	return &HealthHandler{
		startedAt: start,
		timeout:   time.Second,
		deps:      deps,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

type liveResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	UptimeSec int64  `json:"uptime_sec"`
	Uptime    string `json:"uptime"`
}

type dependencyStat struct {
	Reachable bool   `json:"reachable"`
	PingMs    int64  `json:"ping_ms"`
	Error     string `json:"error,omitempty"`
}

type readinessResponse struct {
	Status       string                    `json:"status"`
	Timestamp    string                    `json:"timestamp"`
	UptimeSec    int64                     `json:"uptime_sec"`
	Dependencies map[string]dependencyStat `json:"dependencies"`
}

func (h *HealthHandler) uptime(now time.Time) time.Duration {
	uptime := now.Sub(h.startedAt)
	if uptime < 0 {
		return 0
	}
	return uptime
}

// Live does not touch any dependency.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	uptime := h.uptime(now)
	writeJSON(w, http.StatusOK, liveResponse{
		Status:    "ok",
		Timestamp: now.Format(time.RFC3339),
		UptimeSec: int64(uptime.Seconds()),
		Uptime:    uptime.String(),
	})
}

// Ready pings every dependency and returns 503 when any is unreachable.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	status := "ok"
	httpStatus := http.StatusOK
	stats := make(map[string]dependencyStat, len(h.deps))
	for name, dep := range h.deps {
		stat := h.ping(r.Context(), dep)
		if !stat.Reachable {
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
		}
		stats[name] = stat
	}
	writeJSON(w, httpStatus, readinessResponse{
		Status:       status,
		Timestamp:    now.Format(time.RFC3339),
		UptimeSec:    int64(h.uptime(now).Seconds()),
		Dependencies: stats,
	})
}

func (h *HealthHandler) ping(ctx context.Context, dep Pinger) dependencyStat {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	start := time.Now()
	err := dep.Ping(ctx)
	stat := dependencyStat{PingMs: time.Since(start).Milliseconds()}
	if err != nil {
		stat.Error = err.Error()
		return stat
	}
	stat.Reachable = true
	return stat
}
