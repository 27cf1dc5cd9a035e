// Package config loads environment variables and provides a typed Config used across the service.
// Required settings are validated up front; Load fails rather than letting the bot start half-configured.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"github.com/samber/lo"

	"github.com/onnwee/idlekick/moderation"
)

type Config struct {
	// Twitch
	TwitchBotUsername  string `envconfig:"TWITCH_BOT_USERNAME" validate:"required"`
	TwitchOAuthToken   string `envconfig:"TWITCH_OAUTH_TOKEN" validate:"required"`
	TwitchClientID     string `envconfig:"TWITCH_CLIENT_ID" validate:"required"`
	TwitchClientSecret string `envconfig:"TWITCH_CLIENT_SECRET"`

	// Moderation
	Rooms            RoomList      `envconfig:"IDLEKICK_ROOMS" validate:"required,min=1,dive"`
	CommandPrefix    string        `envconfig:"IDLEKICK_COMMAND_PREFIX" default:"!" validate:"len=1"`
	ThrottleWindow   time.Duration `envconfig:"IDLEKICK_THROTTLE_WINDOW" default:"30s" validate:"gt=0"`
	RankQueryTimeout time.Duration `envconfig:"IDLEKICK_RANK_QUERY_TIMEOUT" default:"10s" validate:"gt=0"`
	RemovalDuration  time.Duration `envconfig:"IDLEKICK_REMOVAL_DURATION" default:"1s" validate:"gte=1s"`

	// HTTP
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`
}

// Room is one entry of IDLEKICK_ROOMS.
type Room struct {
	Name          string        `validate:"required"`
	IdleThreshold time.Duration `validate:"gt=0"`
	Whitelist     []string
}

// RoomList decodes IDLEKICK_ROOMS: comma separated entries of the form
// name:seconds[:nick|nick...].
type RoomList []Room

// Decode implements envconfig.Decoder.
func (l *RoomList) Decode(value string) error {
	var rooms RoomList
	for _, raw := range strings.Split(value, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		room, err := parseRoom(raw)
		if err != nil {
			return err
		}
		rooms = append(rooms, room)
	}
	*l = rooms
	return nil
}

func parseRoom(raw string) (Room, error) {
	parts := strings.SplitN(raw, ":", 3)
	if len(parts) < 2 {
		return Room{}, fmt.Errorf("room %q: want name:seconds[:whitelist]", raw)
	}
	secs, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return Room{}, fmt.Errorf("room %q: invalid idle seconds: %w", raw, err)
	}
	room := Room{
		Name:          strings.ToLower(strings.TrimPrefix(strings.TrimSpace(parts[0]), "#")),
		IdleThreshold: time.Duration(secs) * time.Second,
	}
	if len(parts) == 3 {
		nicks := lo.Map(strings.Split(parts[2], "|"), func(s string, _ int) string {
			return strings.ToLower(strings.TrimSpace(s))
		})
		room.Whitelist = lo.Uniq(lo.Compact(nicks))
	}
	return room, nil
}

var validate = validator.New()

// Load reads and validates the environment. Any error is fatal for the caller.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}
	cfg.TwitchBotUsername = strings.ToLower(cfg.TwitchBotUsername)
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if dups := lo.FindDuplicatesBy(cfg.Rooms, func(r Room) string { return r.Name }); len(dups) > 0 {
		return nil, fmt.Errorf("invalid config: room %q listed twice", dups[0].Name)
	}
	return cfg, nil
}

// RoomConfigs converts the configured rooms into engine room configs.
func (c *Config) RoomConfigs() []moderation.RoomConfig {
	return lo.Map(c.Rooms, func(r Room, _ int) moderation.RoomConfig {
		return moderation.RoomConfig{
			Name:          r.Name,
			IdleThreshold: r.IdleThreshold,
			Whitelist:     lo.SliceToMap(r.Whitelist, func(n string) (string, struct{}) { return n, struct{}{} }),
		}
	})
}
