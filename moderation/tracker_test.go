package moderation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivityReschedulesFromLatestCall(t *testing.T) {
	ft := newFakeTransport("bot")
	e, clock := startEngine(t, ft, Options{Rooms: []RoomConfig{roomCfg("lobby", time.Minute)}})

	deliver(t, e, Activity{Room: "lobby", Participant: "alice"})
	clock.Advance(30 * time.Second)
	second := clock.Now()
	deliver(t, e, Activity{Room: "lobby", Participant: "alice"})

	onLoop(t, e, func() {
		deadline, ok := e.tracker.Deadline("lobby", "alice")
		require.True(t, ok)
		assert.Equal(t, second.Add(time.Minute), deadline)
		assert.Equal(t, Snapshot{Rooms: 1, Participants: 1}, e.tracker.Snapshot())
	})

	// The first timer would have fired at t=60s; only the second one is live.
	clock.Advance(45 * time.Second)
	require.NoError(t, e.Sync(context.Background()))
	assert.Never(t, func() bool { return ft.queryCount() > 0 }, 50*time.Millisecond, tick)
}

func TestWhitelistAndSelfNeverTracked(t *testing.T) {
	ft := newFakeTransport("bot")
	e, clock := startEngine(t, ft, Options{Rooms: []RoomConfig{roomCfg("lobby", time.Second, "carol")}})

	deliver(t, e,
		PresenceSnapshot{Room: "lobby", Participants: []string{"bot", "carol", "alice"}},
		Activity{Room: "lobby", Participant: "bot"},
		Activity{Room: "lobby", Participant: "carol"},
		IdentityChange{Old: "alice", New: "carol", Rooms: []string{"lobby"}},
	)

	onLoop(t, e, func() {
		assert.False(t, e.tracker.Tracked("lobby", "bot"))
		assert.False(t, e.tracker.Tracked("lobby", "carol"))
		assert.False(t, e.tracker.Tracked("lobby", "alice"))
		assert.Equal(t, 0, e.tracker.Snapshot().Participants)
	})

	clock.Advance(time.Minute)
	assert.Never(t, func() bool { return ft.queryCount() > 0 }, 50*time.Millisecond, tick)
}

func TestPresenceSnapshotTracksEveryoneButSelf(t *testing.T) {
	ft := newFakeTransport("bot")
	e, _ := startEngine(t, ft, Options{Rooms: []RoomConfig{roomCfg("lobby", time.Minute)}})

	deliver(t, e, PresenceSnapshot{Room: "lobby", Participants: []string{"alice", "bot", "dave"}})

	onLoop(t, e, func() {
		assert.True(t, e.tracker.Tracked("lobby", "alice"))
		assert.True(t, e.tracker.Tracked("lobby", "dave"))
		assert.False(t, e.tracker.Tracked("lobby", "bot"))
	})
}

func TestDepartureCancelsTimer(t *testing.T) {
	ft := newFakeTransport("bot")
	ft.setMarker("bot", "lobby", "@")
	e, clock := startEngine(t, ft, Options{Rooms: []RoomConfig{roomCfg("lobby", 60*time.Second)}})

	deliver(t, e, Activity{Room: "lobby", Participant: "alice"})
	clock.Advance(59 * time.Second)
	deliver(t, e, Departure{Room: "lobby", Participant: "alice"})
	clock.Advance(2 * time.Second)
	require.NoError(t, e.Sync(context.Background()))

	assert.Never(t, func() bool { return ft.removalCount() > 0 }, 100*time.Millisecond, tick)
	assert.Equal(t, int64(0), e.Removals())
}

func TestRemoveIsIdempotent(t *testing.T) {
	ft := newFakeTransport("bot")
	e, _ := startEngine(t, ft, Options{Rooms: []RoomConfig{roomCfg("lobby", time.Minute)}})

	deliver(t, e,
		Departure{Room: "lobby", Participant: "ghost"},
		Departure{Room: "nowhere", Participant: "ghost"},
		Activity{Room: "lobby", Participant: "alice"},
		Departure{Room: "lobby", Participant: "alice"},
		Departure{Room: "lobby", Participant: "alice"},
	)
	onLoop(t, e, func() {
		assert.Equal(t, Snapshot{}, e.tracker.Snapshot())
	})
}

func TestRemoveAllClearsEveryRoom(t *testing.T) {
	ft := newFakeTransport("bot")
	e, _ := startEngine(t, ft, Options{Rooms: []RoomConfig{
		roomCfg("r1", time.Minute),
		roomCfg("r2", time.Minute),
		roomCfg("r3", time.Minute),
	}})

	deliver(t, e,
		Activity{Room: "r1", Participant: "alice"},
		Activity{Room: "r2", Participant: "alice"},
		Activity{Room: "r2", Participant: "bob"},
		Disconnect{Participant: "alice", Rooms: []string{"r1", "r2", "r3"}},
	)

	onLoop(t, e, func() {
		assert.False(t, e.tracker.Tracked("r1", "alice"))
		assert.False(t, e.tracker.Tracked("r2", "alice"))
		assert.True(t, e.tracker.Tracked("r2", "bob"))
		assert.Equal(t, Snapshot{Rooms: 1, Participants: 1}, e.tracker.Snapshot())
	})
}

func TestIdentityChangeMovesTimer(t *testing.T) {
	ft := newFakeTransport("bot")
	e, _ := startEngine(t, ft, Options{Rooms: []RoomConfig{roomCfg("r1", time.Minute), roomCfg("r2", time.Minute)}})

	deliver(t, e,
		Activity{Room: "r1", Participant: "alice"},
		Activity{Room: "r2", Participant: "alice"},
		IdentityChange{Old: "alice", New: "alyx", Rooms: []string{"r1", "r2"}},
	)

	onLoop(t, e, func() {
		for _, r := range []string{"r1", "r2"} {
			assert.False(t, e.tracker.Tracked(r, "alice"), r)
			assert.True(t, e.tracker.Tracked(r, "alyx"), r)
		}
	})
}

func TestBotDepartureForgetsRoom(t *testing.T) {
	ft := newFakeTransport("bot")
	e, _ := startEngine(t, ft, Options{Rooms: []RoomConfig{roomCfg("r1", time.Minute), roomCfg("r2", time.Minute)}})

	deliver(t, e,
		PresenceSnapshot{Room: "r1", Participants: []string{"alice", "bob"}},
		Activity{Room: "r2", Participant: "alice"},
		Departure{Room: "r1", Participant: "bot"},
	)

	onLoop(t, e, func() {
		assert.Equal(t, Snapshot{Rooms: 1, Participants: 1}, e.tracker.Snapshot())
		assert.True(t, e.tracker.Tracked("r2", "alice"))
	})
}

func TestIdleParticipantRemovedOnce(t *testing.T) {
	ft := newFakeTransport("bot")
	ft.setMarker("bot", "lobby", "@")
	e, clock := startEngine(t, ft, Options{Rooms: []RoomConfig{roomCfg("lobby", 5*time.Second)}})

	deliver(t, e, Activity{Room: "lobby", Participant: "alice"})
	clock.Advance(5 * time.Second)

	require.Eventually(t, func() bool { return ft.removalCount() == 1 }, waitFor, tick)
	assert.Equal(t, int64(1), e.Removals())

	ft.mu.Lock()
	got := ft.removals[0]
	ft.mu.Unlock()
	assert.Equal(t, removal{
		room:        "lobby",
		participant: "alice",
		reason:      "alice should've spoken up, they've been removed after being idle for 5 seconds",
	}, got)

	clock.Advance(time.Minute)
	require.NoError(t, e.Sync(context.Background()))
	assert.Never(t, func() bool { return ft.removalCount() > 1 }, 50*time.Millisecond, tick)
	onLoop(t, e, func() {
		assert.False(t, e.tracker.Tracked("lobby", "alice"))
	})
}

func TestDeniedRemovalRearmsFullThreshold(t *testing.T) {
	ft := newFakeTransport("bot") // no marker: bot rank is None
	e, clock := startEngine(t, ft, Options{Rooms: []RoomConfig{roomCfg("lobby", time.Minute)}})

	deliver(t, e, Activity{Room: "lobby", Participant: "alice"})
	clock.Advance(time.Minute)
	expired := clock.Now()

	require.Eventually(t, func() bool {
		var ok bool
		var deadline time.Time
		_ = e.loop.Do(context.Background(), func() {
			deadline, ok = e.tracker.Deadline("lobby", "alice")
		})
		return ok && deadline.Equal(expired.Add(time.Minute))
	}, waitFor, tick)

	// Short-circuit: only the bot's own rank was queried.
	assert.Equal(t, 1, ft.queryCount())
	assert.Equal(t, 0, ft.removalCount())
	assert.Equal(t, int64(0), e.Removals())
}

func TestActivityDuringEvaluationDiscardsResult(t *testing.T) {
	ft := newFakeTransport("bot")
	ft.setMarker("bot", "lobby", "@")
	gate := make(chan struct{})
	ft.gate = gate
	e, clock := startEngine(t, ft, Options{Rooms: []RoomConfig{roomCfg("lobby", 10*time.Second)}})

	deliver(t, e, Activity{Room: "lobby", Participant: "alice"})
	clock.Advance(10 * time.Second)
	require.Eventually(t, func() bool { return ft.queryCount() == 1 }, waitFor, tick)

	deliver(t, e, Activity{Room: "lobby", Participant: "alice"})
	resumed := clock.Now()
	close(gate)

	assert.Never(t, func() bool { return ft.removalCount() > 0 }, 100*time.Millisecond, tick)
	onLoop(t, e, func() {
		deadline, ok := e.tracker.Deadline("lobby", "alice")
		require.True(t, ok)
		assert.Equal(t, resumed.Add(10*time.Second), deadline)
	})
}

func TestUnknownRoomEventsDropped(t *testing.T) {
	ft := newFakeTransport("bot")
	e, _ := startEngine(t, ft, Options{Rooms: []RoomConfig{roomCfg("lobby", time.Minute)}})

	deliver(t, e,
		Activity{Room: "elsewhere", Participant: "alice"},
		PresenceSnapshot{Room: "elsewhere", Participants: []string{"bob"}},
		ModeChange{Room: "elsewhere"},
		TransportError{Message: "connection reset"},
	)
	onLoop(t, e, func() {
		assert.Equal(t, Snapshot{}, e.tracker.Snapshot())
	})
	assert.Never(t, func() bool {
		ft.mu.Lock()
		defer ft.mu.Unlock()
		return len(ft.rosters) > 0
	}, 50*time.Millisecond, tick)
}
