package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/matheus3301/relay/internal/client"
	"github.com/matheus3301/relay/internal/config"
	"github.com/matheus3301/relay/internal/domain"
	"github.com/matheus3301/relay/internal/lock"
	"github.com/matheus3301/relay/internal/workspace"
)

func main() {
	workspaceFlag := flag.String("workspace", "", "workspace name (overrides config default)")
	timeoutFlag := flag.Duration("timeout", 10*time.Second, "per-command timeout")
	flag.Usage = printUsage
	flag.Parse()

	_ = config.LoadEnv(".env", workspace.EnvPath())
	cfg, err := config.LoadOrDefault(workspace.ConfigPath())
	if err == nil {
		err = config.ApplyEnv(cfg)
	}
	if err != nil {
		fail(err)
	}

	name := workspace.Resolve(*workspaceFlag, cfg)
	if err := workspace.ValidateName(name); err != nil {
		fail(err)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}
	if args[0] == "status" {
		cmdStatus(name)
		return
	}

	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
	if len(args)-1 < len(cmd.args) {
		fmt.Fprintf(os.Stderr, "usage: relayctl %s %s\n", args[0], cmd.usage())
		os.Exit(1)
	}

	c, err := client.New(workspace.SocketPath(name))
	if err != nil {
		fail(fmt.Errorf("cannot connect to daemon for workspace %q: %w", name, err))
	}
	defer func() { _ = c.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if !cmd.stream {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeoutFlag)
		defer cancel()
	}

	out, err := cmd.run(ctx, c, args[1:])
	if err != nil {
		fail(err)
	}
	if out != nil {
		outputJSON(out)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: relayctl [--workspace <name>] [--timeout <d>] <command> [args]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintf(os.Stderr, "  %-32s %s\n", "status", "Show daemon status for the workspace")
	names := make([]string, 0, len(commands))
	for n := range commands {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		cmd := commands[n]
		fmt.Fprintf(os.Stderr, "  %-32s %s\n", n+" "+cmd.usage(), cmd.help)
	}
}

func cmdStatus(name string) {
	dir := workspace.Dir(name)
	fmt.Printf("Workspace: %s\n", name)
	fmt.Printf("Socket:    %s\n", workspace.SocketPath(name))
	info, err := lock.Inspect(dir)
	switch {
	case errors.Is(err, os.ErrNotExist) || (err == nil && !lock.Held(dir)):
		fmt.Println("Daemon:    not running")
	case err != nil:
		fail(err)
	default:
		fmt.Printf("Daemon:    running (pid %d, since %s)\n", info.PID, info.Started.Local().Format(time.RFC1123))
	}
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func fail(err error) {
	var de *domain.Error
	if errors.As(err, &de) {
		fmt.Fprintf(os.Stderr, "error [%s]: %s\n", de.Kind, de.Reason)
	} else {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	os.Exit(1)
}
