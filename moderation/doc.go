// Package moderation contains the idle-kick core: the per-room idle tracker,
// the rank-gated kick authorizer, the status command throttle and the engine
// that wires them to a chat Transport.
//
// Everything that mutates tracker or throttle state runs on a single Loop
// goroutine. Timer callbacks and rank-query results never touch that state
// directly; they post a task back onto the loop. Rank queries and transport
// requests run on their own goroutines so the loop never blocks on I/O.
//
// The Transport interface is the only dependency on the outside world. The
// chat package provides a Twitch implementation; tests use an in-memory fake.
package moderation
