package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/onnwee/idlekick/moderation"
)

// loopProbeTimeout bounds how long a handler waits on the engine loop.
const loopProbeTimeout = 2 * time.Second

// StatusSource reports engine status; *moderation.Engine implements it.
type StatusSource interface {
	Status(ctx context.Context) (moderation.Status, error)
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	source StatusSource
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(source StatusSource) *Handlers {
	return &Handlers{source: source}
}

// HandleHealthz reports healthy while the engine loop is responsive.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), loopProbeTimeout)
	defer cancel()
	if _, err := h.source.Status(ctx); err != nil {
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleStatus returns tracked rooms, tracked participants and removals as JSON.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), loopProbeTimeout)
	defer cancel()
	status, err := h.source.Status(ctx)
	if err != nil {
		slog.Warn("status unavailable", slog.Any("err", err), slog.String("component", "http"))
		http.Error(w, "status unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(status)
}
