// Package config loads environment variables and provides a typed Config used across the bot.
// It applies sensible defaults so the binary can run locally with minimal setup.
// For required credentials (Discord token, role/channel ids, OMDb key), use ValidateBotReady.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type Config struct {
	// Discord
	DiscordToken       string
	MovieRoleID        string
	PermittedChannelID string

	// OMDb
	OMDBAPIKey  string
	OMDBBaseURL string

	// Storage
	DataDir    string
	MoviesFile string
	UsersFile  string

	// Interactive flows
	ReplyTimeout time.Duration
}

// Load reads environment variables and applies defaults. It doesn't fail if Discord creds are
// missing; use ValidateBotReady() before connecting the gateway. Missing optional variables fall
// back to defaults (local data dir, public OMDb endpoint, 60s reply timeout).
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.DiscordToken = os.Getenv("DISCORD_TOKEN")
	cfg.MovieRoleID = os.Getenv("MOVIE_ROLE_ID")
	cfg.PermittedChannelID = os.Getenv("PERMITTED_CHANNEL_ID")

	cfg.OMDBAPIKey = os.Getenv("OMDB_API_KEY")
	cfg.OMDBBaseURL = os.Getenv("OMDB_BASE_URL")
	if cfg.OMDBBaseURL == "" {
		cfg.OMDBBaseURL = "http://www.omdbapi.com"
	}

	cfg.DataDir = os.Getenv("DATA_DIR")
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
	cfg.MoviesFile = filepath.Join(cfg.DataDir, "rated_movies_db.json")
	cfg.UsersFile = filepath.Join(cfg.DataDir, "rated_users_db.json")

	cfg.ReplyTimeout = 60 * time.Second
	if v := os.Getenv("RATE_REPLY_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid RATE_REPLY_TIMEOUT (Go duration): %w", err)
		}
		cfg.ReplyTimeout = d
	}

	return cfg, nil
}

// ValidateBotReady checks required fields before opening the Discord gateway.
func (c *Config) ValidateBotReady() error {
	if c.DiscordToken == "" || c.MovieRoleID == "" || c.PermittedChannelID == "" || c.OMDBAPIKey == "" {
		return fmt.Errorf("missing env: require DISCORD_TOKEN, MOVIE_ROLE_ID, PERMITTED_CHANNEL_ID, OMDB_API_KEY")
	}
	return nil
}
