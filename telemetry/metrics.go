// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	RemovalsTotal          prometheus.Counter
	RemovalFailures        prometheus.Counter
	CommandsThrottled      prometheus.Counter
	AuthorizationDecisions *prometheus.CounterVec // decision=allow|deny
	RankQueries            *prometheus.CounterVec // result=found|missing|error|timeout
	EventsDropped          *prometheus.CounterVec // event type

	// Histograms (seconds)
	RankQueryDuration prometheus.Observer

	// Gauges
	TrackedRooms        prometheus.Gauge
	TrackedParticipants prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		RemovalsTotal = promauto.NewCounter(prometheus.CounterOpts{Name: "idlekick_removals_total", Help: "Number of idle removals committed"})
		RemovalFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "idlekick_removal_failures_total", Help: "Number of removal requests the transport rejected"})
		CommandsThrottled = promauto.NewCounter(prometheus.CounterOpts{Name: "idlekick_commands_throttled_total", Help: "Number of status commands ignored by the throttle"})
		AuthorizationDecisions = promauto.NewCounterVec(prometheus.CounterOpts{Name: "idlekick_authorization_decisions_total", Help: "Kick authorization outcomes"}, []string{"decision"})
		RankQueries = promauto.NewCounterVec(prometheus.CounterOpts{Name: "idlekick_rank_queries_total", Help: "Rank queries by result"}, []string{"result"})
		EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{Name: "idlekick_events_dropped_total", Help: "Events dropped because the room is not monitored"}, []string{"event"})
		RankQueryDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "idlekick_rank_query_duration_seconds", Help: "Rank query round-trip seconds", Buckets: prometheus.DefBuckets})
		TrackedRooms = promauto.NewGauge(prometheus.GaugeOpts{Name: "idlekick_tracked_rooms", Help: "Rooms with at least one idle timer"})
		TrackedParticipants = promauto.NewGauge(prometheus.GaugeOpts{Name: "idlekick_tracked_participants", Help: "Idle timers across all rooms"})
	})
}

// IncRemovals counts a committed removal.
func IncRemovals() {
	if RemovalsTotal != nil {
		RemovalsTotal.Inc()
	}
}

// IncRemovalFailures counts a removal the transport failed to perform.
func IncRemovalFailures() {
	if RemovalFailures != nil {
		RemovalFailures.Inc()
	}
}

// IncThrottled counts a throttled command.
func IncThrottled() {
	if CommandsThrottled != nil {
		CommandsThrottled.Inc()
	}
}

// IncDropped counts an event for an unmonitored room.
func IncDropped(event string) {
	if EventsDropped != nil {
		EventsDropped.WithLabelValues(event).Inc()
	}
}

// ObserveAuthorization records a kick authorization outcome.
func ObserveAuthorization(allowed bool) {
	if AuthorizationDecisions == nil {
		return
	}
	if allowed {
		AuthorizationDecisions.WithLabelValues("allow").Inc()
	} else {
		AuthorizationDecisions.WithLabelValues("deny").Inc()
	}
}

// ObserveRankQuery records the result and latency of a rank query.
func ObserveRankQuery(result string, d time.Duration) {
	if RankQueries != nil {
		RankQueries.WithLabelValues(result).Inc()
	}
	if RankQueryDuration != nil {
		RankQueryDuration.Observe(d.Seconds())
	}
}

// SetTracked records the current tracker size.
func SetTracked(rooms, participants int) {
	if TrackedRooms != nil {
		TrackedRooms.Set(float64(rooms))
	}
	if TrackedParticipants != nil {
		TrackedParticipants.Set(float64(participants))
	}
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
