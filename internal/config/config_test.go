package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	cfg := Default()
	cfg.DefaultWorkspace = "work"
	cfg.Notify.Provider = "resend"
	cfg.Limits.TypingWindow = Duration{3 * time.Second}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DefaultWorkspace != "work" {
		t.Errorf("DefaultWorkspace = %q, want %q", loaded.DefaultWorkspace, "work")
	}
	if loaded.Notify.Provider != "resend" {
		t.Errorf("Notify.Provider = %q, want resend", loaded.Notify.Provider)
	}
	if loaded.Limits.TypingWindow.Duration != 3*time.Second {
		t.Errorf("TypingWindow = %v, want 3s", loaded.Limits.TypingWindow)
	}
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := "default_workspace = \"team\"\n\n[limits]\nrequest_ttl = \"1h\"\n"
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DefaultWorkspace != "team" {
		t.Errorf("DefaultWorkspace = %q, want team", cfg.DefaultWorkspace)
	}
	if cfg.Limits.RequestTTL.Duration != time.Hour {
		t.Errorf("RequestTTL = %v, want 1h", cfg.Limits.RequestTTL)
	}
	if cfg.Limits.TypingWindow.Duration != 2*time.Second {
		t.Errorf("TypingWindow = %v, want default 2s", cfg.Limits.TypingWindow)
	}
	if cfg.Notify.Provider != "log" {
		t.Errorf("Notify.Provider = %q, want default log", cfg.Notify.Provider)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	if err == nil {
		t.Error("Load() expected error for missing file")
	}

	cfg, err := LoadOrDefault("/nonexistent/config.toml")
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v", err)
	}
	if cfg.DefaultWorkspace != "main" {
		t.Errorf("DefaultWorkspace = %q, want main", cfg.DefaultWorkspace)
	}
}

func TestSavePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "nested", "config.toml")

	if err := Save(path, Default()); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("RELAY_WORKSPACE", "ci")
	t.Setenv("RELAY_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("RELAY_REQUEST_TTL", "90m")

	cfg := Default()
	if err := ApplyEnv(cfg); err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}
	if cfg.DefaultWorkspace != "ci" {
		t.Errorf("DefaultWorkspace = %q, want ci", cfg.DefaultWorkspace)
	}
	if cfg.Presence.RedisURL != "redis://localhost:6379/0" {
		t.Errorf("RedisURL = %q", cfg.Presence.RedisURL)
	}
	if cfg.Limits.RequestTTL.Duration != 90*time.Minute {
		t.Errorf("RequestTTL = %v, want 90m", cfg.Limits.RequestTTL)
	}

	t.Setenv("RELAY_TYPING_WINDOW", "soon")
	if err := ApplyEnv(cfg); err == nil {
		t.Error("ApplyEnv() expected error for bad duration")
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("RELAY_JWT_ISSUER=https://id.example\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RELAY_JWT_ISSUER", "")
	os.Unsetenv("RELAY_JWT_ISSUER")

	if err := LoadEnv(path, filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}
	if got := os.Getenv("RELAY_JWT_ISSUER"); got != "https://id.example" {
		t.Errorf("RELAY_JWT_ISSUER = %q", got)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}
	cfg.Notify.Provider = "pigeon"
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() expected error for unknown provider")
	}
}
