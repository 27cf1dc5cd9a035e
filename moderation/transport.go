package moderation

import (
	"context"
	"time"
)

// Membership is one room entry of a rank-query response. Marker is the room
// prefix the transport reports for the participant ("~", "@" or "").
type Membership struct {
	Room   string
	Marker string
}

// Transport is the chat connection the engine drives. Implementations deliver
// events through Engine.Deliver and must tolerate requests for participants
// who have already left.
type Transport interface {
	// Identity returns the bot's current name.
	Identity() string
	// RankQuery reports the rooms the participant occupies and its marker in
	// each. A participant that cannot be found yields an empty list.
	RankQuery(ctx context.Context, participant string) ([]Membership, error)
	PerformRemoval(ctx context.Context, room, participant, reason string) error
	SendReply(ctx context.Context, target, text string) error
	JoinRoom(ctx context.Context, room string) error
	// RequestRoster asks the transport to deliver a fresh PresenceSnapshot.
	RequestRoster(ctx context.Context, room string) error
}

// RoomConfig describes one monitored room. It is not modified after load.
type RoomConfig struct {
	Name          string
	IdleThreshold time.Duration
	Whitelist     map[string]struct{}
}

// Whitelisted reports whether participant is exempt from idle tracking.
func (r RoomConfig) Whitelisted(participant string) bool {
	_, ok := r.Whitelist[participant]
	return ok
}
