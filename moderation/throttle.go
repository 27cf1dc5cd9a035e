package moderation

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/onnwee/idlekick/telemetry"
)

// DefaultThrottleWindow is the status command cooldown used when none is configured.
const DefaultThrottleWindow = 30 * time.Second

// CommandThrottle lets each requester through once per window. Entries leave
// only by expiry; the cache has no size bound, so a cooldown cannot be pushed
// out early by other requesters.
type CommandThrottle struct {
	window  time.Duration
	entries *expirable.LRU[string, struct{}]
}

// NewCommandThrottle returns a throttle with the given cooldown window.
func NewCommandThrottle(window time.Duration) *CommandThrottle {
	if window <= 0 {
		window = DefaultThrottleWindow
	}
	return &CommandThrottle{
		window:  window,
		entries: expirable.NewLRU[string, struct{}](0, nil, window),
	}
}

// TryAcquire reports whether requester may run a command now and, if so,
// starts its cooldown.
func (c *CommandThrottle) TryAcquire(requester string) bool {
	if _, ok := c.entries.Peek(requester); ok {
		telemetry.IncThrottled()
		return false
	}
	c.entries.Add(requester, struct{}{})
	return true
}
