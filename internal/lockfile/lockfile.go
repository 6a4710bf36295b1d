// Package lockfile keeps two IntakePipe processes from sharing one state directory.
//
// Sessions and the per-contact lock live in process memory, so a second instance on the
// same database would interleave dialog steps. The lock is an flock(2) on a file in the
// state directory; the kernel drops it when the process exits.
package lockfile

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// LockFileName is the lock file created inside the state directory.
const LockFileName = "intakepipe.lock"

// Lock is a held state directory lock.
type Lock struct {
	file *os.File
	path string
}

// Holder describes the process recorded in a lock file.
type Holder struct {
	PID       int
	StartedAt time.Time
	Running   bool
}

func (h Holder) String() string {
	if h.PID == 0 {
		return "unknown process"
	}
	state := "not running, stale lock"
	if h.Running {
		state = "running"
	}
	if h.StartedAt.IsZero() {
		return fmt.Sprintf("PID %d (%s)", h.PID, state)
	}
	return fmt.Sprintf("PID %d started %s (%s)", h.PID, h.StartedAt.Format(time.RFC3339), state)
}

// LockError is returned when another process holds the lock.
type LockError struct {
	LockPath string
	Holder   Holder
	Cause    error
}

func (e *LockError) Error() string {
	return fmt.Sprintf("another IntakePipe instance holds %s (%s); "+
		"if no other instance is running, remove the file and retry", e.LockPath, e.Holder)
}

func (e *LockError) Unwrap() error { return e.Cause }

// AcquireLock takes an exclusive, non-blocking lock on stateDir, creating it if needed.
func AcquireLock(stateDir string) (*Lock, error) {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", stateDir, err)
	}
	path := filepath.Join(stateDir, LockFileName)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", path, err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		holder := ReadHolder(path)
		slog.Error("lockfile.AcquireLock: state directory in use", "lock_path", path, "holder", holder.String())
		return nil, &LockError{LockPath: path, Holder: holder, Cause: err}
	}

	// Only rewrite the contents once the lock is ours.
	record := fmt.Sprintf("pid=%d\nstarted=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	if err := f.Truncate(0); err == nil {
		_, err = f.WriteAt([]byte(record), 0)
	}
	if err != nil {
		syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		f.Close()
		return nil, fmt.Errorf("failed to write lock file %s: %w", path, err)
	}
	f.Sync()

	slog.Info("lockfile.AcquireLock: acquired", "lock_path", path, "pid", os.Getpid())
	return &Lock{file: f, path: path}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// Release unlocks and removes the lock file. Calling it twice is a no-op.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	os.Remove(l.path)
	unlockErr := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil
	if unlockErr != nil {
		return fmt.Errorf("failed to unlock %s: %w", l.path, unlockErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close %s: %w", l.path, closeErr)
	}
	slog.Info("lockfile.Release: released", "lock_path", l.path)
	return nil
}

// ReadHolder parses the lock file at path. Missing or malformed files yield a zero PID.
func ReadHolder(path string) Holder {
	f, err := os.Open(path)
	if err != nil {
		return Holder{}
	}
	defer f.Close()
	return parseHolder(bufio.NewScanner(f))
}

func parseHolder(sc *bufio.Scanner) Holder {
	var h Holder
	for sc.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(sc.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			if pid, err := strconv.Atoi(value); err == nil && pid > 0 {
				h.PID = pid
			}
		case "started":
			if ts, err := time.Parse(time.RFC3339, value); err == nil {
				h.StartedAt = ts
			}
		}
	}
	if h.PID > 0 {
		h.Running = processAlive(h.PID)
	}
	return h
}

// processAlive probes pid with signal 0.
func processAlive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return p.Signal(syscall.Signal(0)) == nil
}
