package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config represents the global ~/.relay/config.toml.
type Config struct {
	DefaultWorkspace string         `toml:"default_workspace"`
	Daemon           DaemonConfig   `toml:"daemon"`
	Identity         IdentityConfig `toml:"identity"`
	Notify           NotifyConfig   `toml:"notify"`
	Presence         PresenceConfig `toml:"presence"`
	Limits           LimitsConfig   `toml:"limits"`
	Log              LogConfig      `toml:"log"`
}

type DaemonConfig struct {
	// HTTPAddr serves /healthz, /metrics and /ws. Empty disables the HTTP server.
	HTTPAddr string `toml:"http_addr"`
}

// IdentityConfig verifies bearer tokens minted by the identity provider.
type IdentityConfig struct {
	JWTSecret string `toml:"jwt_secret"`
	Issuer    string `toml:"issuer"`
}

type NotifyConfig struct {
	// Provider is "log" or "resend".
	Provider     string   `toml:"provider"`
	ResendAPIKey string   `toml:"resend_api_key"`
	From         string   `toml:"from"`
	AppURL       string   `toml:"app_url"`
	PollInterval Duration `toml:"poll_interval"`
}

// PresenceConfig enables heartbeat reconciliation when RedisURL is set.
type PresenceConfig struct {
	RedisURL     string   `toml:"redis_url"`
	HeartbeatTTL Duration `toml:"heartbeat_ttl"`
	ReapInterval Duration `toml:"reap_interval"`
}

type LimitsConfig struct {
	RequestTTL   Duration `toml:"request_ttl"`
	TypingWindow Duration `toml:"typing_window"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

// Duration is a time.Duration written as a Go duration string ("15s").
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		DefaultWorkspace: "main",
		Daemon:           DaemonConfig{HTTPAddr: "127.0.0.1:7420"},
		Notify: NotifyConfig{
			Provider:     "log",
			From:         "relay <notifications@relay.local>",
			AppURL:       "http://localhost:3000",
			PollInterval: Duration{2 * time.Second},
		},
		Presence: PresenceConfig{
			HeartbeatTTL: Duration{60 * time.Second},
			ReapInterval: Duration{15 * time.Second},
		},
		Limits: LimitsConfig{
			RequestTTL:   Duration{24 * time.Hour},
			TypingWindow: Duration{2 * time.Second},
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads config from the given path on top of Default. Returns error if file missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is Load, falling back to Default when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// LoadEnv loads the given .env files into the process environment. Missing
// files are ignored and variables already set are never overwritten.
func LoadEnv(paths ...string) error {
	var present []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			present = append(present, p)
		}
	}
	if len(present) == 0 {
		return nil
	}
	return godotenv.Load(present...)
}

// ApplyEnv overrides cfg from RELAY_* variables.
func ApplyEnv(cfg *Config) error {
	str := map[string]*string{
		"RELAY_WORKSPACE":      &cfg.DefaultWorkspace,
		"RELAY_HTTP_ADDR":      &cfg.Daemon.HTTPAddr,
		"RELAY_JWT_SECRET":     &cfg.Identity.JWTSecret,
		"RELAY_JWT_ISSUER":     &cfg.Identity.Issuer,
		"RELAY_NOTIFIER":       &cfg.Notify.Provider,
		"RELAY_RESEND_API_KEY": &cfg.Notify.ResendAPIKey,
		"RELAY_MAIL_FROM":      &cfg.Notify.From,
		"RELAY_APP_URL":        &cfg.Notify.AppURL,
		"RELAY_REDIS_URL":      &cfg.Presence.RedisURL,
		"RELAY_LOG_LEVEL":      &cfg.Log.Level,
	}
	for key, dst := range str {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	durations := map[string]*Duration{
		"RELAY_NOTIFY_INTERVAL": &cfg.Notify.PollInterval,
		"RELAY_HEARTBEAT_TTL":   &cfg.Presence.HeartbeatTTL,
		"RELAY_REAP_INTERVAL":   &cfg.Presence.ReapInterval,
		"RELAY_REQUEST_TTL":     &cfg.Limits.RequestTTL,
		"RELAY_TYPING_WINDOW":   &cfg.Limits.TypingWindow,
	}
	for key, dst := range durations {
		v, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		if err := dst.UnmarshalText([]byte(strings.TrimSpace(v))); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	return nil
}

// Validate rejects settings the daemon cannot start with.
func (c *Config) Validate() error {
	switch c.Notify.Provider {
	case "log", "resend":
	default:
		return fmt.Errorf("notify.provider %q: want log or resend", c.Notify.Provider)
	}
	if c.Limits.RequestTTL.Duration <= 0 {
		return fmt.Errorf("limits.request_ttl must be positive")
	}
	if c.Limits.TypingWindow.Duration <= 0 {
		return fmt.Errorf("limits.typing_window must be positive")
	}
	return nil
}
