package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"

	"github.com/GetStream/chat-feed-sync/validator"
	"github.com/joho/godotenv"
)

// MaxPageSize bounds PAGE_SIZE.
const MaxPageSize = 100

// Config holds the settings of the feed service.
type Config struct {
	ListenAddr  string
	DatabaseURL string
	RedisAddr   string
	FeedID      string
	PageSize    int
	LogLevel    slog.Level
}

// Load reads the configuration from the environment. Variables set in a .env
// file in the working directory are loaded first, without overriding the
// environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from the variables returned by getenv.
func FromEnv(getenv func(string) string) (Config, error) {
	cfg := Config{
		ListenAddr:  getenv("LISTEN_ADDR"),
		DatabaseURL: getenv("DATABASE_URL"),
		RedisAddr:   getenv("REDIS_ADDR"),
		FeedID:      getenv("FEED_ID"),
		PageSize:    20,
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.RedisAddr == "" {
		cfg.RedisAddr = "localhost:6379"
	}
	if cfg.FeedID == "" {
		cfg.FeedID = "default"
	}
	if cfg.DatabaseURL == "" {
		return Config{}, errors.New("DATABASE_URL is required")
	}

	if v := getenv("PAGE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid PAGE_SIZE %q", v)
		}
		if errs := validator.New().Validate(n, fmt.Sprintf("min=1,max=%d", MaxPageSize)); len(errs) > 0 {
			return Config{}, fmt.Errorf("invalid PAGE_SIZE %q: must be between 1 and %d", v, MaxPageSize)
		}
		cfg.PageSize = n
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return Config{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
	}
	return cfg, nil
}
