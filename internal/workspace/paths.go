package workspace

import (
	"os"
	"path/filepath"
)

// HomeEnv overrides the base directory, mainly for tests and containers.
const HomeEnv = "RELAY_HOME"

// BaseDir returns $RELAY_HOME, or ~/.relay.
func BaseDir() string {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".relay")
}

// Dir returns the workspace-specific directory.
func Dir(name string) string {
	return filepath.Join(BaseDir(), "workspaces", name)
}

// SocketPath returns the UDS socket path for a workspace.
func SocketPath(name string) string {
	return filepath.Join(Dir(name), "relayd.sock")
}

// DBPath returns the SQLite store backing the workspace.
func DBPath(name string) string {
	return filepath.Join(Dir(name), "relay.db")
}

func LogDir(name string) string {
	return filepath.Join(Dir(name), "logs")
}

// LogPath returns the daemon log file path.
func LogPath(name string) string {
	return filepath.Join(LogDir(name), "relayd.log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnvPath returns the optional dotenv file read before the config.
func EnvPath() string {
	return filepath.Join(BaseDir(), ".env")
}

// EnsureDir creates the workspace directory tree with proper permissions.
func EnsureDir(name string) error {
	for _, d := range []string{Dir(name), LogDir(name)} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
