package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bobbyswhip/x402c/internal/model"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SnapshotProvider is the interface the admin server uses to read the
// current aggregate state. In production this is satisfied by
// *statecache.Cache; tests can supply a simple func-backed mock.
type SnapshotProvider interface {
	Snapshot() *model.AppStateSnapshot
}

// EventSubscriber is the interface the admin server uses to stream
// BroadcastEvents to SSE clients. Satisfied by broadcast.Sink.
type EventSubscriber interface {
	Subscribe(ctx context.Context) (ch <-chan model.BroadcastEvent, unsubscribe func())
}

// HealthChecker reports whether the process considers itself live. In
// production this is a trivial always-true check; tests can inject a
// failing one to exercise the 503 path.
type HealthChecker interface {
	Healthy() bool
}

// Server provides the read-only HTTP surface operators and dashboard
// clients use to observe the agent: liveness, the current state
// snapshot, a live event stream, and Prometheus metrics.
type Server struct {
	snapshots SnapshotProvider
	events    EventSubscriber
	health    HealthChecker
	rateLimit *RateLimitMiddleware
	logger    *slog.Logger
}

// NewServer constructs an admin server. snapshots and events are required;
// use options to attach a health checker or rate limiter.
func NewServer(snapshots SnapshotProvider, events EventSubscriber, logger *slog.Logger, opts ...ServerOption) *Server {
	s := &Server{
		snapshots: snapshots,
		events:    events,
		health:    alwaysHealthy{},
		logger:    logger.With("component", "admin"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ServerOption configures optional dependencies on the admin server.
type ServerOption func(*Server)

// WithHealthChecker overrides the default always-healthy liveness check.
func WithHealthChecker(h HealthChecker) ServerOption {
	return func(s *Server) { s.health = h }
}

// WithRateLimit attaches a rate-limiting middleware wrapped around every
// route registered by Handler.
func WithRateLimit(rl *RateLimitMiddleware) ServerOption {
	return func(s *Server) { s.rateLimit = rl }
}

type alwaysHealthy struct{}

func (alwaysHealthy) Healthy() bool { return true }

// Handler returns the HTTP handler for the admin surface.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /state", s.handleState)
	mux.HandleFunc("GET /events", s.handleEvents)
	mux.Handle("GET /metrics", promhttp.Handler())

	if s.rateLimit != nil {
		return s.rateLimit.Wrap(mux)
	}
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if !s.health.Healthy() {
		http.Error(w, `{"status":"unhealthy"}`, http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type stateResponse struct {
	*model.AppStateSnapshot
	CacheAgeMs int64 `json:"cacheAgeMs"`
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshots.Snapshot()
	if snap == nil {
		http.Error(w, `{"error":"snapshot not yet available"}`, http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, stateResponse{
		AppStateSnapshot: snap,
		CacheAgeMs:       snap.CacheAgeMs(time.Now()),
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, `{"error":"streaming unsupported"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	ch, unsubscribe := s.events.Subscribe(ctx)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				s.logger.Warn("failed to marshal SSE event", "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
