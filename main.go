// Command pelibot is the movie review Discord bot.
// It:
//   - Loads configuration and initializes structured logging.
//   - Opens the JSON-file store for rated movies and per-thread raters.
//   - Connects the Discord gateway and serves the !rate/!buscar/!lista
//     commands plus the star-rating widget inside review threads.
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

	"github.com/cineclub/pelibot/bot"
	"github.com/cineclub/pelibot/config"
	"github.com/cineclub/pelibot/omdb"
	"github.com/cineclub/pelibot/server"
	"github.com/cineclub/pelibot/store"
	"github.com/cineclub/pelibot/telemetry"
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
		// keep default
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
	slog.Info("logger initialized", slog.String("level", lvl.String()))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.ValidateBotReady(); err != nil {
		slog.Error("config incomplete", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()

	shutdown, err := telemetry.InitTracing("pelibot", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// Store
	st, err := store.Open(cfg.MoviesFile, cfg.UsersFile)
	if err != nil {
		slog.Error("failed to open store", slog.Any("err", err))
		os.Exit(1)
	}
	telemetry.SetRatedMovies(st.MovieCount())
	slog.Info("store loaded", slog.Int("rated_movies", st.MovieCount()), slog.Int("reviews", st.ReviewCount()))

	movies := &omdb.Client{APIKey: cfg.OMDBAPIKey, BaseURL: cfg.OMDBBaseURL}

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// HTTP server (health/status/metrics)
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	go func() {
		if err := server.Start(ctx, st, addr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	b, err := bot.New(cfg, st, movies)
	if err != nil {
		slog.Error("failed to create bot", slog.Any("err", err))
		os.Exit(1)
	}
	if err := b.Run(ctx); err != nil {
		slog.Error("bot exited with error", slog.Any("err", err))
		os.Exit(1)
	}
	slog.Info("shutting down")
}
