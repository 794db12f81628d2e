package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matheus3301/relay/internal/config"
)

func TestPathsFollowHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv(HomeEnv, home)

	if got, want := Dir("main"), filepath.Join(home, "workspaces", "main"); got != want {
		t.Errorf("Dir(main) = %q, want %q", got, want)
	}
	if got := SocketPath("test"); !strings.HasSuffix(got, filepath.Join("workspaces", "test", "relayd.sock")) {
		t.Errorf("SocketPath(test) = %q", got)
	}
	if got := LogPath("test"); !strings.HasSuffix(got, filepath.Join("test", "logs", "relayd.log")) {
		t.Errorf("LogPath(test) = %q", got)
	}
	if got, want := ConfigPath(), filepath.Join(home, "config.toml"); got != want {
		t.Errorf("ConfigPath() = %q, want %q", got, want)
	}
}

func TestEnsureDir(t *testing.T) {
	t.Setenv(HomeEnv, t.TempDir())

	if err := EnsureDir("test"); err != nil {
		t.Fatalf("EnsureDir() error = %v", err)
	}
	info, err := os.Stat(LogDir("test"))
	if err != nil {
		t.Fatalf("log dir not created: %v", err)
	}
	if !info.IsDir() {
		t.Error("log dir is not a directory")
	}
	if perm := info.Mode().Perm(); perm != 0700 {
		t.Errorf("log dir permission = %o, want 0700", perm)
	}
}

func TestResolve(t *testing.T) {
	cfg := &config.Config{DefaultWorkspace: "team"}
	tests := []struct {
		name string
		flag string
		cfg  *config.Config
		want string
	}{
		{"flag wins", "dev", cfg, "dev"},
		{"config default", "", cfg, "team"},
		{"fallback", "", &config.Config{}, DefaultName},
		{"nil config", "", nil, DefaultName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Resolve(tt.flag, tt.cfg); got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.flag, got, tt.want)
			}
		})
	}
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid simple", "main", false},
		{"valid with numbers", "work123", false},
		{"valid with hyphen", "my-space", false},
		{"valid with underscore", "my_space", false},
		{"valid max length", strings.Repeat("a", 64), false},
		{"empty", "", true},
		{"uppercase", "Main", true},
		{"space", "my space", true},
		{"dot", "my.space", true},
		{"too long", strings.Repeat("a", 65), true},
		{"slash", "my/space", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}
