package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsInitialized(t *testing.T) {
	Init()
	Init() // idempotent

	if RemovalsTotal == nil || RemovalFailures == nil || CommandsThrottled == nil {
		t.Fatal("counters not initialized")
	}
	if AuthorizationDecisions == nil || RankQueries == nil || EventsDropped == nil {
		t.Fatal("counter vectors not initialized")
	}
	if RankQueryDuration == nil || TrackedRooms == nil || TrackedParticipants == nil {
		t.Fatal("histogram or gauges not initialized")
	}
}

func TestCounterHelpers(t *testing.T) {
	Init()

	before := testutil.ToFloat64(RemovalsTotal)
	IncRemovals()
	IncRemovals()
	if got := testutil.ToFloat64(RemovalsTotal) - before; got != 2 {
		t.Errorf("removals delta = %v, want 2", got)
	}

	before = testutil.ToFloat64(AuthorizationDecisions.WithLabelValues("deny"))
	ObserveAuthorization(false)
	if got := testutil.ToFloat64(AuthorizationDecisions.WithLabelValues("deny")) - before; got != 1 {
		t.Errorf("deny delta = %v, want 1", got)
	}

	before = testutil.ToFloat64(RankQueries.WithLabelValues("timeout"))
	ObserveRankQuery("timeout", 10*time.Second)
	if got := testutil.ToFloat64(RankQueries.WithLabelValues("timeout")) - before; got != 1 {
		t.Errorf("timeout delta = %v, want 1", got)
	}

	before = testutil.ToFloat64(EventsDropped.WithLabelValues("activity"))
	IncDropped("activity")
	if got := testutil.ToFloat64(EventsDropped.WithLabelValues("activity")) - before; got != 1 {
		t.Errorf("dropped delta = %v, want 1", got)
	}
}

func TestSetTracked(t *testing.T) {
	Init()

	SetTracked(3, 17)
	if got := testutil.ToFloat64(TrackedRooms); got != 3 {
		t.Errorf("tracked rooms = %v, want 3", got)
	}
	if got := testutil.ToFloat64(TrackedParticipants); got != 17 {
		t.Errorf("tracked participants = %v, want 17", got)
	}
}

func TestCorrelation(t *testing.T) {
	ctx := context.Background()
	if got := GetCorrelation(ctx); got != "" {
		t.Errorf("GetCorrelation on empty ctx = %q", got)
	}
	ctx = WithCorrelation(ctx, "abc")
	if got := GetCorrelation(ctx); got != "abc" {
		t.Errorf("GetCorrelation = %q, want abc", got)
	}
	if LoggerWithCorr(ctx) == nil {
		t.Error("LoggerWithCorr returned nil")
	}
}
