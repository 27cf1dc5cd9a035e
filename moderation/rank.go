package moderation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/onnwee/idlekick/telemetry"
)

// Rank is a participant's privilege tier within one room.
type Rank int

const (
	RankNone Rank = iota
	RankOperator
	RankOwner
)

func (r Rank) String() string {
	switch r {
	case RankOperator:
		return "operator"
	case RankOwner:
		return "owner"
	default:
		return "none"
	}
}

// RankFromMarker maps a room prefix to a Rank. Unknown markers are RankNone.
func RankFromMarker(marker string) Rank {
	switch marker {
	case "~":
		return RankOwner
	case "@":
		return RankOperator
	default:
		return RankNone
	}
}

// DefaultRankQueryTimeout bounds a single rank lookup.
const DefaultRankQueryTimeout = 10 * time.Second

// RankQuerier is the subset of Transport a RankResolver needs.
type RankQuerier interface {
	RankQuery(ctx context.Context, participant string) ([]Membership, error)
}

// RankResolver looks up a participant's rank in a room. It never fails: a
// participant that is missing, an error or a timeout all resolve to RankNone.
type RankResolver struct {
	querier RankQuerier
	timeout time.Duration
}

// NewRankResolver returns a resolver bounded by timeout (DefaultRankQueryTimeout if <= 0).
func NewRankResolver(q RankQuerier, timeout time.Duration) *RankResolver {
	if timeout <= 0 {
		timeout = DefaultRankQueryTimeout
	}
	return &RankResolver{querier: q, timeout: timeout}
}

// Query blocks until the rank is known or the lookup gives up.
func (r *RankResolver) Query(ctx context.Context, room, participant string) Rank {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	memberships, err := r.querier.RankQuery(ctx, participant)
	elapsed := time.Since(start)
	log := telemetry.LoggerWithCorr(ctx)
	if err != nil {
		result := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			result = "timeout"
		}
		telemetry.ObserveRankQuery(result, elapsed)
		log.Warn("rank query failed", slog.String("room", room), slog.String("participant", participant), slog.Any("err", err), slog.String("component", "rank"))
		return RankNone
	}
	for _, m := range memberships {
		if m.Room == room {
			telemetry.ObserveRankQuery("found", elapsed)
			rank := RankFromMarker(m.Marker)
			log.Debug("rank resolved", slog.String("room", room), slog.String("participant", participant), slog.String("rank", rank.String()), slog.String("component", "rank"))
			return rank
		}
	}
	telemetry.ObserveRankQuery("missing", elapsed)
	return RankNone
}
