package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("OMDB_BASE_URL", "")
	t.Setenv("DATA_DIR", "")
	t.Setenv("RATE_REPLY_TIMEOUT", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.OMDBBaseURL != "http://www.omdbapi.com" {
		t.Errorf("OMDBBaseURL = %q, want default", cfg.OMDBBaseURL)
	}
	if cfg.DataDir != "data" {
		t.Errorf("DataDir = %q, want data", cfg.DataDir)
	}
	if cfg.ReplyTimeout != 60*time.Second {
		t.Errorf("ReplyTimeout = %v, want 60s", cfg.ReplyTimeout)
	}
}

func TestLoadFilePaths(t *testing.T) {
	t.Setenv("DATA_DIR", "/var/lib/pelibot")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.MoviesFile != "/var/lib/pelibot/rated_movies_db.json" {
		t.Errorf("MoviesFile = %q", cfg.MoviesFile)
	}
	if cfg.UsersFile != "/var/lib/pelibot/rated_users_db.json" {
		t.Errorf("UsersFile = %q", cfg.UsersFile)
	}
}

func TestLoadInvalidReplyTimeout(t *testing.T) {
	t.Setenv("RATE_REPLY_TIMEOUT", "soon")
	if _, err := Load(); err == nil {
		t.Error("expected error for invalid RATE_REPLY_TIMEOUT")
	}
	t.Setenv("RATE_REPLY_TIMEOUT", "90s")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.ReplyTimeout != 90*time.Second {
		t.Errorf("ReplyTimeout = %v, want 90s", cfg.ReplyTimeout)
	}
}

func TestValidateBotReady(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "token")
	t.Setenv("MOVIE_ROLE_ID", "1")
	t.Setenv("PERMITTED_CHANNEL_ID", "2")
	t.Setenv("OMDB_API_KEY", "key")
	cfg, _ := Load()
	if err := cfg.ValidateBotReady(); err != nil {
		t.Errorf("expected valid bot config, got %v", err)
	}

	t.Setenv("DISCORD_TOKEN", "")
	cfg, _ = Load()
	if err := cfg.ValidateBotReady(); err == nil {
		t.Error("expected error when DISCORD_TOKEN missing")
	}
}
