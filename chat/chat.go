package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/onnwee/idlekick/moderation"
	"github.com/onnwee/idlekick/twitchapi"
)

// ircClient is the part of *twitch.Client the transport issues requests on.
type ircClient interface {
	Join(channels ...string)
	Say(channel, text string)
	Userlist(channel string) ([]string, error)
}

// Banner times users out of a channel.
type Banner interface {
	Ban(ctx context.Context, br twitchapi.BanRequest) error
}

// Sink receives normalized events; *moderation.Engine implements it.
type Sink interface {
	Deliver(ev moderation.Event)
}

// Options configures a TwitchTransport.
type Options struct {
	Username   string
	OAuthToken string
	Helix      Banner
	// RemovalDuration is the timeout length used as a removal.
	RemovalDuration time.Duration
}

// TwitchTransport implements moderation.Transport over Twitch IRC and Helix.
type TwitchTransport struct {
	username        string
	client          ircClient
	conn            *twitch.Client
	helix           Banner
	removalDuration time.Duration

	sinkMu sync.RWMutex
	sink   Sink

	mu     sync.RWMutex
	badges map[string]map[string]string // user -> channel -> marker
}

var _ moderation.Transport = (*TwitchTransport)(nil)

// NewTwitchTransport creates the IRC client and registers its handlers.
// Events are dropped until Bind is called.
func NewTwitchTransport(opts Options) *TwitchTransport {
	conn := twitch.NewClient(opts.Username, opts.OAuthToken)
	t := newTransport(opts, conn)
	t.conn = conn

	conn.OnPrivateMessage(t.onPrivateMessage)
	conn.OnUserJoinMessage(t.onUserJoin)
	conn.OnUserPartMessage(t.onUserPart)
	conn.OnNamesMessage(t.onNames)
	conn.OnClearChatMessage(t.onClearChat)
	conn.OnUserStateMessage(t.onUserState)
	conn.OnNoticeMessage(t.onNotice)
	conn.OnConnect(func() {
		slog.Info("twitch chat connected", slog.String("username", t.username), slog.String("component", "chat"))
	})
	return t
}

func newTransport(opts Options, client ircClient) *TwitchTransport {
	d := opts.RemovalDuration
	if d < time.Second {
		d = time.Second
	}
	return &TwitchTransport{
		username:        strings.ToLower(opts.Username),
		client:          client,
		helix:           opts.Helix,
		removalDuration: d,
		badges:          make(map[string]map[string]string),
	}
}

// Bind sets the event sink.
func (t *TwitchTransport) Bind(sink Sink) {
	t.sinkMu.Lock()
	defer t.sinkMu.Unlock()
	t.sink = sink
}

// Connect blocks until the connection ends or ctx is cancelled.
func (t *TwitchTransport) Connect(ctx context.Context) error {
	if t.conn == nil {
		return errors.New("transport has no irc connection")
	}
	go func() {
		<-ctx.Done()
		if err := t.conn.Disconnect(); err != nil {
			slog.Debug("twitch chat disconnect", slog.Any("err", err), slog.String("component", "chat"))
		}
	}()
	err := t.conn.Connect()
	if errors.Is(err, twitch.ErrClientDisconnected) || ctx.Err() != nil {
		return nil
	}
	return err
}

// Identity returns the bot login.
func (t *TwitchTransport) Identity() string { return t.username }

// RankQuery answers from the badges last seen for participant.
func (t *TwitchTransport) RankQuery(ctx context.Context, participant string) ([]moderation.Membership, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	channels := t.badges[strings.ToLower(participant)]
	out := make([]moderation.Membership, 0, len(channels))
	for channel, marker := range channels {
		out = append(out, moderation.Membership{Room: channel, Marker: marker})
	}
	return out, nil
}

// PerformRemoval times participant out of room.
func (t *TwitchTransport) PerformRemoval(ctx context.Context, room, participant, reason string) error {
	if t.helix == nil {
		return errors.New("no helix client configured for removals")
	}
	err := t.helix.Ban(ctx, twitchapi.BanRequest{
		Channel:   room,
		Moderator: t.username,
		User:      participant,
		Duration:  t.removalDuration,
		Reason:    reason,
	})
	if err != nil {
		return fmt.Errorf("timeout %s in %s: %w", participant, room, err)
	}
	return nil
}

// SendReply says text in the target channel.
func (t *TwitchTransport) SendReply(_ context.Context, target, text string) error {
	t.client.Say(target, text)
	return nil
}

// JoinRoom joins a channel.
func (t *TwitchTransport) JoinRoom(_ context.Context, room string) error {
	t.client.Join(room)
	return nil
}

// RequestRoster delivers the client's current user list for room.
func (t *TwitchTransport) RequestRoster(_ context.Context, room string) error {
	users, err := t.client.Userlist(room)
	if err != nil {
		return fmt.Errorf("userlist %s: %w", room, err)
	}
	t.deliver(moderation.PresenceSnapshot{Room: room, Participants: users})
	return nil
}

func (t *TwitchTransport) deliver(ev moderation.Event) {
	t.sinkMu.RLock()
	sink := t.sink
	t.sinkMu.RUnlock()
	if sink == nil {
		return
	}
	sink.Deliver(ev)
}

// setMarker records a user's marker in channel and returns the previous one.
func (t *TwitchTransport) setMarker(user, channel, marker string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	channels, ok := t.badges[user]
	if !ok {
		channels = make(map[string]string)
		t.badges[user] = channels
	}
	prev, seen := channels[channel]
	channels[channel] = marker
	return prev, seen
}

func (t *TwitchTransport) forget(user, channel string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.badges[user], channel)
	if len(t.badges[user]) == 0 {
		delete(t.badges, user)
	}
}

func (t *TwitchTransport) onPrivateMessage(msg twitch.PrivateMessage) {
	user := strings.ToLower(msg.User.Name)
	t.setMarker(user, msg.Channel, markerFromBadges(msg.User.Badges))
	t.deliver(moderation.Activity{Room: msg.Channel, Participant: user})
	t.deliver(moderation.InboundMessage{Participant: user, Target: msg.Channel, Text: msg.Message})
}

func (t *TwitchTransport) onUserJoin(msg twitch.UserJoinMessage) {
	t.deliver(moderation.Activity{Room: msg.Channel, Participant: strings.ToLower(msg.User)})
}

func (t *TwitchTransport) onUserPart(msg twitch.UserPartMessage) {
	user := strings.ToLower(msg.User)
	t.forget(user, msg.Channel)
	t.deliver(moderation.Departure{Room: msg.Channel, Participant: user})
}

func (t *TwitchTransport) onNames(msg twitch.NamesMessage) {
	users := make([]string, 0, len(msg.Users))
	for _, u := range msg.Users {
		users = append(users, strings.ToLower(u))
	}
	t.deliver(moderation.PresenceSnapshot{Room: msg.Channel, Participants: users})
}

func (t *TwitchTransport) onClearChat(msg twitch.ClearChatMessage) {
	if msg.TargetUsername == "" {
		return // whole-channel clear
	}
	t.deliver(moderation.Departure{Room: msg.Channel, Participant: strings.ToLower(msg.TargetUsername)})
}

func (t *TwitchTransport) onUserState(msg twitch.UserStateMessage) {
	marker := markerFromBadges(msg.User.Badges)
	prev, seen := t.setMarker(t.username, msg.Channel, marker)
	if seen && prev != marker {
		slog.Info("bot badges changed", slog.String("channel", msg.Channel), slog.String("from", prev), slog.String("to", marker), slog.String("component", "chat"))
		t.deliver(moderation.ModeChange{Room: msg.Channel})
	}
}

func (t *TwitchTransport) onNotice(msg twitch.NoticeMessage) {
	t.deliver(moderation.TransportError{Message: fmt.Sprintf("%s: %s (%s)", msg.Channel, msg.Message, msg.MsgID)})
}

// markerFromBadges maps Twitch badges onto room markers.
func markerFromBadges(badges map[string]int) string {
	if _, ok := badges["broadcaster"]; ok {
		return "~"
	}
	if _, ok := badges["moderator"]; ok {
		return "@"
	}
	return ""
}
