package moderation

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/idlekick/telemetry"
)

// KickAuthorizer decides whether the bot may remove a participant right now.
// It holds no state of its own.
type KickAuthorizer struct {
	ranks    *RankResolver
	identity func() string
}

// NewKickAuthorizer builds an authorizer; identity returns the bot's current name.
func NewKickAuthorizer(ranks *RankResolver, identity func() string) *KickAuthorizer {
	return &KickAuthorizer{ranks: ranks, identity: identity}
}

// CanAct blocks on up to two rank queries. An operator bot may remove anyone.
// An owner bot may remove anyone who is not an operator, which includes other
// owners. Any other bot rank is denied without querying the target.
func (a *KickAuthorizer) CanAct(ctx context.Context, room, participant string) bool {
	ctx, span := telemetry.StartSpan(ctx, "moderation", "authorize",
		attribute.String("room", room),
		attribute.String("participant", participant),
	)
	defer span.End()

	self := a.ranks.Query(ctx, room, a.identity())
	span.SetAttributes(attribute.String("self_rank", self.String()))

	allowed := false
	switch self {
	case RankOperator:
		allowed = true
	case RankOwner:
		target := a.ranks.Query(ctx, room, participant)
		span.SetAttributes(attribute.String("target_rank", target.String()))
		allowed = target != RankOperator
	}

	telemetry.ObserveAuthorization(allowed)
	telemetry.LoggerWithCorr(ctx).Debug("kick authorization",
		slog.String("room", room),
		slog.String("participant", participant),
		slog.String("self_rank", self.String()),
		slog.Bool("allowed", allowed),
		slog.String("component", "authorizer"))
	telemetry.SetSpanSuccess(span)
	return allowed
}
