package daemon

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/relay/internal/client"
	"github.com/matheus3301/relay/internal/config"
	"github.com/matheus3301/relay/internal/domain"
	"github.com/matheus3301/relay/internal/httpapi"
	"github.com/matheus3301/relay/internal/lock"
	"github.com/matheus3301/relay/internal/workspace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// testHome points RELAY_HOME at a short /tmp dir to stay under the Unix
// socket path limit.
func testHome(t *testing.T) {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", "relay-fx-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	t.Setenv(workspace.HomeEnv, dir)
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Daemon.HTTPAddr = "127.0.0.1:0"
	cfg.Log.Level = "warn"
	return cfg
}

func TestDaemonLifecycle(t *testing.T) {
	testHome(t)
	const name = "test"

	var gateway *httpapi.Server
	app := fx.New(
		Module(Params{Workspace: name, Config: testConfig()}),
		fx.Populate(&gateway),
		fx.NopLogger,
	)
	if err := app.Err(); err != nil {
		t.Fatalf("fx.New() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	socketPath := workspace.SocketPath(name)
	if info, err := os.Stat(socketPath); err != nil {
		t.Fatalf("socket not created: %v", err)
	} else if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("socket permission = %o, want 0600", perm)
	}
	if _, err := os.Stat(workspace.DBPath(name)); err != nil {
		t.Errorf("store not created: %v", err)
	}
	if holder, err := lock.Inspect(workspace.Dir(name)); err != nil || holder.PID != os.Getpid() {
		t.Errorf("lock holder = %v, %v", holder, err)
	}

	c, err := client.New(socketPath)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = c.Close() }()

	alice, err := c.EnsureUser(ctx, domain.Identity{ExternalID: "ext|alice", DisplayName: "Alice"})
	if err != nil {
		t.Fatalf("EnsureUser error = %v", err)
	}
	if !alice.IsOnline {
		t.Error("EnsureUser should mark the user online")
	}

	resp, err := http.Get("http://" + gateway.Addr().String() + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz error = %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if string(body) != "ok" {
		t.Errorf("/healthz body = %q", body)
	}

	if err := app.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if _, err := os.Stat(socketPath); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("socket still present after stop: %v", err)
	}
	if lock.Held(workspace.Dir(name)) {
		t.Error("workspace lock still held after stop")
	}
}

// TestSecondDaemonRefused verifies a workspace is served by one daemon only.
func TestSecondDaemonRefused(t *testing.T) {
	testHome(t)
	const name = "solo"

	if err := workspace.EnsureDir(name); err != nil {
		t.Fatal(err)
	}
	held, err := lock.Acquire(workspace.Dir(name))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = held.Release() }()

	cfg := testConfig()
	cfg.Daemon.HTTPAddr = ""
	app := fx.New(Module(Params{Workspace: name, Config: cfg}), fx.NopLogger)

	var heldErr *lock.HeldError
	if !errors.As(app.Err(), &heldErr) {
		t.Fatalf("fx.New() error = %v, want HeldError", app.Err())
	}
}

func TestNewServerUsesSocketOverride(t *testing.T) {
	testHome(t)
	dir, err := os.MkdirTemp("/tmp", "relay-sock-*")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.RemoveAll(dir) }()
	socketPath := filepath.Join(dir, "d.sock")

	// A stale socket from a crashed daemon is replaced.
	if err := os.WriteFile(socketPath, nil, 0600); err != nil {
		t.Fatal(err)
	}

	srv, err := NewServer(Params{Workspace: "fxtest", SocketPath: socketPath}, zap.NewNop(), nil, nil)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	if _, err := os.Stat(socketPath); err != nil {
		t.Fatalf("socket not created at %s: %v", socketPath, err)
	}
	srv.Stop(context.Background())
}
