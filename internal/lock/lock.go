package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// FileName is the lock file created inside a workspace directory.
const FileName = "LOCK"

// Info is what the holding daemon records in the lock file.
type Info struct {
	PID     int
	Started time.Time
}

// HeldError is returned when another process holds the workspace lock.
type HeldError struct {
	Info
	Path string
}

func (e *HeldError) Error() string {
	return fmt.Sprintf("workspace lock held by PID %d since %s (%s)",
		e.PID, e.Started.Format(time.RFC3339), e.Path)
}

// Lock is an acquired workspace lock. Only one relayd may own a workspace.
type Lock struct {
	file *os.File
	path string
}

// Acquire takes an exclusive flock on <dir>/LOCK and records the caller's PID.
func Acquire(dir string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create workspace dir: %w", err)
	}
	path := filepath.Join(dir, FileName)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		held := &HeldError{Path: path}
		if info, rerr := Inspect(dir); rerr == nil {
			held.Info = *info
		}
		return nil, held
	}

	if err := write(f, Info{PID: os.Getpid(), Started: time.Now().UTC()}); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write lock file: %w", err)
	}
	return &Lock{file: f, path: path}, nil
}

// Inspect reads the lock file in dir without taking the lock.
// It returns an error wrapping os.ErrNotExist when no daemon has written one.
func Inspect(dir string) (*Info, error) {
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		return nil, err
	}
	info := parse(string(data))
	if info.PID == 0 {
		return nil, fmt.Errorf("lock file has no pid: %w", os.ErrNotExist)
	}
	return &info, nil
}

// Held reports whether some process currently holds the lock in dir.
func Held(dir string) bool {
	l, err := Acquire(dir)
	if err != nil {
		var held *HeldError
		return errors.As(err, &held)
	}
	_ = l.Release()
	return false
}

// Release releases the lock. Safe to call on nil receiver and more than once.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	_ = os.Remove(l.path)
	err := l.file.Close()
	l.file = nil
	return err
}

func write(f *os.File, info Info) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	_, err := fmt.Fprintf(f, "pid=%d\nstarted=%s\n", info.PID, info.Started.Format(time.RFC3339))
	return err
}

func parse(content string) Info {
	var info Info
	for _, line := range strings.Split(content, "\n") {
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			info.PID, _ = strconv.Atoi(value)
		case "started":
			info.Started, _ = time.Parse(time.RFC3339, value)
		}
	}
	return info
}
