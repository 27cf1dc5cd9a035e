package moderation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

type removal struct{ room, participant, reason string }

type reply struct{ target, text string }

// fakeTransport records requests and answers rank queries from a static table.
type fakeTransport struct {
	self string

	mu       sync.Mutex
	markers  map[string]map[string]string // participant -> room -> marker
	gate     chan struct{}                // when set, RankQuery waits for it to close
	queries  []string
	removals []removal
	replies  []reply
	joins    []string
	rosters  []string
}

func newFakeTransport(self string) *fakeTransport {
	return &fakeTransport{self: self, markers: make(map[string]map[string]string)}
}

func (f *fakeTransport) setMarker(participant, room, marker string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markers[participant] == nil {
		f.markers[participant] = make(map[string]string)
	}
	f.markers[participant][room] = marker
}

func (f *fakeTransport) Identity() string { return f.self }

func (f *fakeTransport) RankQuery(ctx context.Context, participant string) ([]Membership, error) {
	f.mu.Lock()
	f.queries = append(f.queries, participant)
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Membership
	for room, marker := range f.markers[participant] {
		out = append(out, Membership{Room: room, Marker: marker})
	}
	return out, nil
}

func (f *fakeTransport) PerformRemoval(_ context.Context, room, participant, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removals = append(f.removals, removal{room, participant, reason})
	return nil
}

func (f *fakeTransport) SendReply(_ context.Context, target, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, reply{target, text})
	return nil
}

func (f *fakeTransport) JoinRoom(_ context.Context, room string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joins = append(f.joins, room)
	return nil
}

func (f *fakeTransport) RequestRoster(_ context.Context, room string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rosters = append(f.rosters, room)
	return nil
}

func (f *fakeTransport) removalCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.removals)
}

func (f *fakeTransport) queryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

func (f *fakeTransport) replyList() []reply {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]reply(nil), f.replies...)
}

const (
	waitFor = time.Second
	tick    = 5 * time.Millisecond
)

func roomCfg(name string, threshold time.Duration, whitelist ...string) RoomConfig {
	wl := make(map[string]struct{}, len(whitelist))
	for _, w := range whitelist {
		wl[w] = struct{}{}
	}
	return RoomConfig{Name: name, IdleThreshold: threshold, Whitelist: wl}
}

// startEngine runs an engine on a fake clock until the test ends.
func startEngine(t *testing.T, ft *fakeTransport, opts Options) (*Engine, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	opts.Clock = clock
	e := NewEngine(ft, opts)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		e.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return e, clock
}

// deliver hands events to the engine and waits until they are processed.
func deliver(t *testing.T, e *Engine, events ...Event) {
	t.Helper()
	for _, ev := range events {
		e.Deliver(ev)
	}
	require.NoError(t, e.Sync(context.Background()))
}

// onLoop runs f on the engine loop.
func onLoop(t *testing.T, e *Engine, f func()) {
	t.Helper()
	require.NoError(t, e.loop.Do(context.Background(), f))
}
