package moderation

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/onnwee/idlekick/telemetry"
)

// Authorizer answers whether a removal may proceed. It may block.
type Authorizer interface {
	CanAct(ctx context.Context, room, participant string) bool
}

// CommitFunc performs a removal that has been authorized.
type CommitFunc func(room RoomConfig, participant string)

// Snapshot summarizes tracker state for status replies.
type Snapshot struct {
	Rooms        int `json:"rooms"`
	Participants int `json:"participants"`
}

type idleEntry struct {
	room       RoomConfig
	deadline   time.Time
	timer      clockwork.Timer
	evaluating bool
}

// IdleTracker owns the per-(room, participant) idle timers. All methods must
// be called on the loop.
type IdleTracker struct {
	clock     clockwork.Clock
	loop      *Loop
	self      func() string
	authorize Authorizer
	commit    CommitFunc
	ctx       context.Context

	rooms map[string]map[string]*idleEntry
}

// NewIdleTracker wires a tracker to its loop. Expired timers are evaluated
// with authorize; authorized removals are handed to commit.
func NewIdleTracker(clock clockwork.Clock, loop *Loop, self func() string, authorize Authorizer, commit CommitFunc) *IdleTracker {
	return &IdleTracker{
		clock:     clock,
		loop:      loop,
		self:      self,
		authorize: authorize,
		commit:    commit,
		ctx:       context.Background(),
		rooms:     make(map[string]map[string]*idleEntry),
	}
}

// Activity restarts the participant's idle timer with a full threshold.
func (t *IdleTracker) Activity(room RoomConfig, participant string) {
	if participant == t.self() || room.Whitelisted(participant) {
		return
	}
	t.arm(room, participant)
}

// Remove cancels the participant's timer in room, if any.
func (t *IdleTracker) Remove(room, participant string) {
	participants, ok := t.rooms[room]
	if !ok {
		return
	}
	e, ok := participants[participant]
	if !ok {
		return
	}
	stop(e)
	delete(participants, participant)
	if len(participants) == 0 {
		delete(t.rooms, room)
	}
	t.report()
}

// RemoveAll cancels the participant's timers in every listed room.
func (t *IdleTracker) RemoveAll(participant string, rooms []string) {
	for _, room := range rooms {
		t.Remove(room, participant)
	}
}

// ForgetRoom cancels every timer in room.
func (t *IdleTracker) ForgetRoom(room string) {
	for _, e := range t.rooms[room] {
		stop(e)
	}
	delete(t.rooms, room)
	t.report()
}

// Deadline returns when the participant's pending timer fires. Entries that
// are being evaluated have no deadline.
func (t *IdleTracker) Deadline(room, participant string) (time.Time, bool) {
	e, ok := t.rooms[room][participant]
	if !ok || e.evaluating {
		return time.Time{}, false
	}
	return e.deadline, true
}

// Tracked reports whether the participant has a pending or evaluating entry.
func (t *IdleTracker) Tracked(room, participant string) bool {
	_, ok := t.rooms[room][participant]
	return ok
}

// Snapshot counts tracked rooms and entries.
func (t *IdleTracker) Snapshot() Snapshot {
	s := Snapshot{Rooms: len(t.rooms)}
	for _, participants := range t.rooms {
		s.Participants += len(participants)
	}
	return s
}

func (t *IdleTracker) arm(room RoomConfig, participant string) {
	participants, ok := t.rooms[room.Name]
	if !ok {
		participants = make(map[string]*idleEntry)
		t.rooms[room.Name] = participants
	}
	if old, ok := participants[participant]; ok {
		stop(old)
	}
	e := &idleEntry{room: room, deadline: t.clock.Now().Add(room.IdleThreshold)}
	e.timer = t.clock.AfterFunc(room.IdleThreshold, func() {
		t.loop.Post(func() { t.expire(participant, e) })
	})
	participants[participant] = e
	t.report()
}

// expire starts evaluation unless e was superseded after its timer fired.
func (t *IdleTracker) expire(participant string, e *idleEntry) {
	if t.rooms[e.room.Name][participant] != e || e.evaluating {
		return
	}
	e.evaluating = true
	e.timer = nil

	ctx := telemetry.WithCorrelation(t.ctx, uuid.NewString())
	telemetry.LoggerWithCorr(ctx).Debug("idle threshold reached",
		slog.String("room", e.room.Name),
		slog.String("participant", participant),
		slog.Duration("threshold", e.room.IdleThreshold),
		slog.String("component", "tracker"))
	await(t.loop, func() bool {
		return t.authorize.CanAct(ctx, e.room.Name, participant)
	}, func(allowed bool) {
		t.settle(ctx, participant, e, allowed)
	})
}

func (t *IdleTracker) settle(ctx context.Context, participant string, e *idleEntry, allowed bool) {
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("room", e.room.Name), slog.String("participant", participant), slog.String("component", "tracker"))
	if t.rooms[e.room.Name][participant] != e {
		log.Debug("discarding authorization for superseded entry", slog.Bool("allowed", allowed))
		return
	}
	if !allowed {
		log.Debug("removal denied; rearming")
		t.arm(e.room, participant)
		return
	}
	t.Remove(e.room.Name, participant)
	t.commit(e.room, participant)
}

func (t *IdleTracker) report() {
	s := t.Snapshot()
	telemetry.SetTracked(s.Rooms, s.Participants)
}

func stop(e *idleEntry) {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}
