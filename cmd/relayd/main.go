package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/matheus3301/relay/internal/config"
	"github.com/matheus3301/relay/internal/daemon"
	"github.com/matheus3301/relay/internal/workspace"
	"go.uber.org/fx"
)

func main() {
	workspaceFlag := flag.String("workspace", "", "workspace name (overrides config default)")
	configFlag := flag.String("config", "", "config file (default ~/.relay/config.toml)")
	flag.Parse()

	cfg, err := loadConfig(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	name := workspace.Resolve(*workspaceFlag, cfg)
	if err := workspace.ValidateName(name); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{Workspace: name, Config: cfg}),
	)

	app.Run()
}

// loadConfig layers .env files, config.toml and RELAY_* variables.
func loadConfig(path string) (*config.Config, error) {
	if err := config.LoadEnv(".env", workspace.EnvPath()); err != nil {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if path == "" {
		path = workspace.ConfigPath()
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if err := config.ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
