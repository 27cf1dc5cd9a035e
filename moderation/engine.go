package moderation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/samber/lo"

	"github.com/onnwee/idlekick/telemetry"
)

// StatusCommand is the command name answered with a status reply.
const StatusCommand = "status"

// Options configures an Engine.
type Options struct {
	Rooms            []RoomConfig
	CommandPrefix    string
	ThrottleWindow   time.Duration
	RankQueryTimeout time.Duration
	// Clock drives idle timers; nil means the real clock.
	Clock clockwork.Clock
}

// Status is the combined view returned to status queries.
type Status struct {
	Snapshot
	Removals int64 `json:"removals"`
}

// Engine routes transport events into the idle tracker and the command
// throttle, and sends removals and replies back to the transport.
type Engine struct {
	transport Transport
	loop      *Loop
	rooms     map[string]RoomConfig
	order     []string
	prefix    string

	tracker  *IdleTracker
	throttle *CommandThrottle
	removals atomic.Int64

	ctx context.Context
}

// NewEngine builds an engine for the given transport. Nothing runs until Run.
func NewEngine(transport Transport, opts Options) *Engine {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	prefix := opts.CommandPrefix
	if prefix == "" {
		prefix = "!"
	}
	e := &Engine{
		transport: transport,
		loop:      NewLoop(0),
		rooms:     make(map[string]RoomConfig, len(opts.Rooms)),
		prefix:    prefix,
		throttle:  NewCommandThrottle(opts.ThrottleWindow),
		ctx:       context.Background(),
	}
	for _, r := range opts.Rooms {
		if _, dup := e.rooms[r.Name]; !dup {
			e.order = append(e.order, r.Name)
		}
		e.rooms[r.Name] = r
	}
	authorizer := NewKickAuthorizer(NewRankResolver(transport, opts.RankQueryTimeout), transport.Identity)
	e.tracker = NewIdleTracker(clock, e.loop, transport.Identity, authorizer, e.commitRemoval)
	return e
}

// Run joins every configured room and processes events until ctx is done.
func (e *Engine) Run(ctx context.Context) {
	e.ctx = ctx
	e.tracker.ctx = ctx
	for _, name := range e.order {
		room := name
		e.dispatch("join", func(ctx context.Context) error {
			return e.transport.JoinRoom(ctx, room)
		}, slog.String("room", room))
	}
	slog.Info("moderation engine started", slog.Int("rooms", len(e.order)), slog.String("identity", e.transport.Identity()), slog.String("component", "engine"))
	e.loop.Run(ctx)
	slog.Info("moderation engine stopped", slog.String("component", "engine"))
}

// Deliver queues an event for processing on the loop.
func (e *Engine) Deliver(ev Event) {
	e.loop.Post(func() { e.handle(ev) })
}

// Sync waits until every event delivered before the call has been handled.
func (e *Engine) Sync(ctx context.Context) error {
	return e.loop.Do(ctx, func() {})
}

// Status returns the monitored room count, tracked participants and the removal count.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	var s Status
	err := e.loop.Do(ctx, func() { s = e.status() })
	return s, err
}

// Removals returns the number of removals committed so far. Safe from any goroutine.
func (e *Engine) Removals() int64 {
	return e.removals.Load()
}

// Room returns the configuration of a monitored room.
func (e *Engine) Room(name string) (RoomConfig, bool) {
	r, ok := e.rooms[name]
	return r, ok
}

// status reports every configured room as monitored, whether or not it
// currently holds timers.
func (e *Engine) status() Status {
	s := Status{Snapshot: e.tracker.Snapshot(), Removals: e.removals.Load()}
	s.Rooms = len(e.rooms)
	return s
}

func (e *Engine) handle(ev Event) {
	self := e.transport.Identity()
	switch ev := ev.(type) {
	case PresenceSnapshot:
		room, ok := e.lookup(ev.Room, "presence")
		if !ok {
			return
		}
		for _, p := range lo.Without(ev.Participants, self) {
			e.tracker.Activity(room, p)
		}
	case Activity:
		if room, ok := e.lookup(ev.Room, "activity"); ok {
			e.tracker.Activity(room, ev.Participant)
		}
	case Departure:
		if ev.Participant == self {
			slog.Info("left room", slog.String("room", ev.Room), slog.String("component", "engine"))
			e.tracker.ForgetRoom(ev.Room)
			return
		}
		e.tracker.Remove(ev.Room, ev.Participant)
	case Disconnect:
		e.tracker.RemoveAll(ev.Participant, ev.Rooms)
	case IdentityChange:
		for _, name := range ev.Rooms {
			e.tracker.Remove(name, ev.Old)
			if room, ok := e.lookup(name, "rename"); ok {
				e.tracker.Activity(room, ev.New)
			}
		}
	case ModeChange:
		if _, ok := e.lookup(ev.Room, "mode"); !ok {
			return
		}
		e.dispatch("roster", func(ctx context.Context) error {
			return e.transport.RequestRoster(ctx, ev.Room)
		}, slog.String("room", ev.Room))
	case InboundMessage:
		e.handleCommand(ev)
	case TransportError:
		slog.Warn("transport error", slog.String("message", ev.Message), slog.String("component", "engine"))
	default:
		slog.Warn("unhandled event", slog.String("type", fmt.Sprintf("%T", ev)), slog.String("component", "engine"))
	}
}

func (e *Engine) lookup(name, event string) (RoomConfig, bool) {
	room, ok := e.rooms[name]
	if !ok {
		telemetry.IncDropped(event)
		slog.Debug("event for unmonitored room dropped", slog.String("room", name), slog.String("event", event), slog.String("component", "engine"))
	}
	return room, ok
}

func (e *Engine) handleCommand(msg InboundMessage) {
	fields := strings.Fields(msg.Text)
	if len(fields) == 0 || fields[0] != e.prefix+StatusCommand {
		return
	}
	if !e.throttle.TryAcquire(msg.Participant) {
		slog.Debug("status command throttled", slog.String("participant", msg.Participant), slog.String("component", "engine"))
		return
	}
	target := msg.Target
	if target == "" || target == e.transport.Identity() {
		target = msg.Participant
	}
	text := StatusReply(e.status())
	e.dispatch("reply", func(ctx context.Context) error {
		return e.transport.SendReply(ctx, target, text)
	}, slog.String("target", target))
}

func (e *Engine) commitRemoval(room RoomConfig, participant string) {
	n := e.removals.Add(1)
	telemetry.IncRemovals()
	slog.Info("removing idle participant",
		slog.String("room", room.Name),
		slog.String("participant", participant),
		slog.Int64("removals", n),
		slog.String("component", "engine"))
	reason := RemovalReason(participant, room.IdleThreshold)
	e.dispatch("removal", func(ctx context.Context) error {
		return e.transport.PerformRemoval(ctx, room.Name, participant, reason)
	}, slog.String("room", room.Name), slog.String("participant", participant))
}

// dispatch runs a transport request off the loop and logs its failure.
func (e *Engine) dispatch(op string, f func(ctx context.Context) error, attrs ...slog.Attr) {
	ctx := e.ctx
	go func() {
		if err := f(ctx); err != nil {
			if op == "removal" {
				telemetry.IncRemovalFailures()
			}
			args := []any{slog.String("op", op), slog.Any("err", err), slog.String("component", "engine")}
			for _, a := range attrs {
				args = append(args, a)
			}
			slog.Warn("transport request failed", args...)
		}
	}()
}

// RemovalReason is the user-visible reason attached to a removal.
func RemovalReason(participant string, threshold time.Duration) string {
	return fmt.Sprintf("%s should've spoken up, they've been removed after being idle for %d seconds", participant, int64(threshold/time.Second))
}

// StatusReply formats a status snapshot for chat.
func StatusReply(s Status) string {
	return fmt.Sprintf("monitoring %d rooms, tracking %d participants, %d removals so far", s.Rooms, s.Participants, s.Removals)
}
