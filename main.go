// Command idlekick is an idle-moderation bot for Twitch chat.
// It:
//   - Loads configuration and initializes structured logging.
//   - Joins every configured channel and times out viewers who stay silent
//     past the channel's idle threshold, when the bot's rank allows it.
//   - Answers the status command, throttled per requester.
//   - Exposes a minimal HTTP server with /healthz, /status, and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/onnwee/idlekick/chat"
	"github.com/onnwee/idlekick/config"
	"github.com/onnwee/idlekick/moderation"
	"github.com/onnwee/idlekick/server"
	"github.com/onnwee/idlekick/telemetry"
	"github.com/onnwee/idlekick/twitchapi"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load(".env")

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()
	shutdown, err := telemetry.InitTracing("idlekick", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	helix := &twitchapi.HelixClient{
		ClientID:   cfg.TwitchClientID,
		UserTokens: twitchapi.StaticToken(cfg.TwitchOAuthToken),
	}
	if cfg.TwitchClientSecret != "" {
		helix.LookupTokens = &twitchapi.AppToken{ClientID: cfg.TwitchClientID, ClientSecret: cfg.TwitchClientSecret}
	}

	transport := chat.NewTwitchTransport(chat.Options{
		Username:        cfg.TwitchBotUsername,
		OAuthToken:      cfg.TwitchOAuthToken,
		Helix:           helix,
		RemovalDuration: cfg.RemovalDuration,
	})
	engine := moderation.NewEngine(transport, moderation.Options{
		Rooms:            cfg.RoomConfigs(),
		CommandPrefix:    cfg.CommandPrefix,
		ThrottleWindow:   cfg.ThrottleWindow,
		RankQueryTimeout: cfg.RankQueryTimeout,
	})
	transport.Bind(engine)

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go engine.Run(ctx)
	go func() {
		if err := transport.Connect(ctx); err != nil {
			slog.Error("twitch chat connection ended", slog.Any("err", err))
			stop()
		}
	}()
	go func() {
		if err := server.Start(ctx, engine, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down", slog.Int64("removals", engine.Removals()))
}
