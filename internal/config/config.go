// Package config loads relay and client settings from a .env file, an
// optional YAML file and the environment, in that order of precedence
// (environment wins).
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"whiteboard/internal/middleware"
)

const (
	TransportWebSocket = "websocket"
	TransportRedis     = "redis"
)

// Config is the full application configuration
type Config struct {
	// Addr is the relay listen address
	Addr string `yaml:"addr"`

	// Domains are the browser origins allowed to open a websocket
	Domains []string `yaml:"domains"`

	LogLevel string `yaml:"log_level"`

	Limits LimitsConfig `yaml:"limits"`
	Client ClientConfig `yaml:"client"`
}

// LimitsConfig holds the relay's capacity and rate limits. These are the
// settings picked up on hot reload.
type LimitsConfig struct {
	MaxRooms       int     `yaml:"max_rooms"`
	MaxRoomSize    int     `yaml:"max_room_size"`
	MaxMessageSize int     `yaml:"max_message_size"`
	DrawRate       float64 `yaml:"draw_rate"`
	DrawBurst      int     `yaml:"draw_burst"`
	CursorRate     float64 `yaml:"cursor_rate"`
	CursorBurst    int     `yaml:"cursor_burst"`
}

// ClientConfig is read by the sketch client
type ClientConfig struct {
	RelayURL    string `yaml:"relay_url"`
	Channel     string `yaml:"channel"`
	Transport   string `yaml:"transport"`
	RedisAddr   string `yaml:"redis_addr"`
	DisplayName string `yaml:"display_name"`
}

// Load reads .env (if present), then the YAML file at path (if path is not
// empty), then applies environment overrides.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse yaml: %w", err)
		}
	}

	applyEnv(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// RateLimit converts the limits section for the relay
func (c *Config) RateLimit() middleware.RateLimit {
	return middleware.RateLimit{
		MaxRoomSize:     c.Limits.MaxRoomSize,
		MaxRooms:        c.Limits.MaxRooms,
		MaxMessageSize:  c.Limits.MaxMessageSize,
		DrawPerSecond:   c.Limits.DrawRate,
		DrawBurst:       c.Limits.DrawBurst,
		CursorPerSecond: c.Limits.CursorRate,
		CursorBurst:     c.Limits.CursorBurst,
	}
}

// ParseLevel maps debug|info|warn|error to a slog level. Anything else is info.
func ParseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return level
}

func defaults() *Config {
	rl := middleware.DefaultRateLimit()
	return &Config{
		Addr:     ":8080",
		LogLevel: "info",
		Limits: LimitsConfig{
			MaxRooms:       rl.MaxRooms,
			MaxRoomSize:    rl.MaxRoomSize,
			MaxMessageSize: rl.MaxMessageSize,
			DrawRate:       rl.DrawPerSecond,
			DrawBurst:      rl.DrawBurst,
			CursorRate:     rl.CursorPerSecond,
			CursorBurst:    rl.CursorBurst,
		},
		Client: ClientConfig{
			RelayURL:  "ws://localhost:8080",
			Channel:   "lobby",
			Transport: TransportWebSocket,
			RedisAddr: "localhost:6379",
		},
	}
}

func applyEnv(cfg *Config) {
	cfg.Addr = envOr("ADDR", cfg.Addr)
	cfg.Domains = envCSV("DOMAINS", cfg.Domains)
	cfg.LogLevel = envOr("LOG_LEVEL", cfg.LogLevel)

	cfg.Limits.MaxRooms = envInt("MAX_ROOMS", cfg.Limits.MaxRooms)
	cfg.Limits.MaxRoomSize = envInt("MAX_ROOM_SIZE", cfg.Limits.MaxRoomSize)
	cfg.Limits.MaxMessageSize = envInt("MAX_MESSAGE_SIZE", cfg.Limits.MaxMessageSize)
	cfg.Limits.DrawRate = envFloat("DRAW_RATE", cfg.Limits.DrawRate)
	cfg.Limits.DrawBurst = envInt("DRAW_BURST", cfg.Limits.DrawBurst)
	cfg.Limits.CursorRate = envFloat("CURSOR_RATE", cfg.Limits.CursorRate)
	cfg.Limits.CursorBurst = envInt("CURSOR_BURST", cfg.Limits.CursorBurst)

	cfg.Client.RelayURL = envOr("RELAY_URL", cfg.Client.RelayURL)
	cfg.Client.Channel = envOr("CHANNEL", cfg.Client.Channel)
	cfg.Client.Transport = envOr("TRANSPORT", cfg.Client.Transport)
	cfg.Client.RedisAddr = envOr("REDIS_ADDR", cfg.Client.RedisAddr)
	cfg.Client.DisplayName = envOr("DISPLAY_NAME", cfg.Client.DisplayName)
}

func validate(cfg *Config) error {
	l := cfg.Limits
	switch {
	case l.MaxRooms <= 0:
		return fmt.Errorf("max_rooms must be positive")
	case l.MaxRoomSize <= 0:
		return fmt.Errorf("max_room_size must be positive")
	case l.MaxMessageSize <= 0:
		return fmt.Errorf("max_message_size must be positive")
	case l.DrawRate <= 0 || l.DrawBurst <= 0:
		return fmt.Errorf("draw_rate and draw_burst must be positive")
	case l.CursorRate <= 0 || l.CursorBurst <= 0:
		return fmt.Errorf("cursor_rate and cursor_burst must be positive")
	}

	switch cfg.Client.Transport {
	case TransportWebSocket, TransportRedis:
	default:
		return fmt.Errorf("transport %q unknown: want websocket|redis", cfg.Client.Transport)
	}
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			slog.Warn("invalid integer, using default", "key", key, "value", v, "default", def)
			return def
		}
		return i
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			slog.Warn("invalid number, using default", "key", key, "value", v, "default", def)
			return def
		}
		return f
	}
	return def
}

func envCSV(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return def
}
