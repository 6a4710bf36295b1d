package lockfile

import (
	"bufio"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAcquireLock_WritesHolder(t *testing.T) {
	dir := t.TempDir()
	lock, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}
	defer lock.Release()

	if lock.Path() != filepath.Join(dir, LockFileName) {
		t.Errorf("Path = %s", lock.Path())
	}
	h := ReadHolder(lock.Path())
	if h.PID != os.Getpid() {
		t.Errorf("holder PID = %d, want %d", h.PID, os.Getpid())
	}
	if !h.Running {
		t.Error("own process should be reported as running")
	}
	if h.StartedAt.IsZero() {
		t.Error("start time not recorded")
	}
}

func TestAcquireLock_Conflict(t *testing.T) {
	dir := t.TempDir()
	first, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("first AcquireLock failed: %v", err)
	}
	defer first.Release()

	_, err = AcquireLock(dir)
	var lockErr *LockError
	if !errors.As(err, &lockErr) {
		t.Fatalf("expected *LockError, got %v", err)
	}
	if lockErr.Holder.PID != os.Getpid() {
		t.Errorf("conflict holder PID = %d", lockErr.Holder.PID)
	}
	if lockErr.Unwrap() == nil {
		t.Error("LockError should wrap the flock error")
	}
	if !strings.Contains(lockErr.Error(), LockFileName) {
		t.Errorf("error message should name the lock file: %s", lockErr.Error())
	}
}

func TestRelease_AllowsReacquire(t *testing.T) {
	dir := t.TempDir()
	lock, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("second Release should be a no-op, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, LockFileName)); !os.IsNotExist(err) {
		t.Error("lock file should be removed on release")
	}

	again, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("reacquire failed: %v", err)
	}
	again.Release()
}

func TestAcquireLock_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state", "nested")
	lock, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}
	lock.Release()
}

func TestParseHolder(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantPID int
	}{
		{"pid and start", "pid=4242\nstarted=2026-01-02T03:04:05Z\n", 4242},
		{"pid only", "pid=17\n", 17},
		{"garbage", "hello\n", 0},
		{"empty", "", 0},
		{"negative", "pid=-3\n", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := parseHolder(bufio.NewScanner(strings.NewReader(tt.content)))
			if h.PID != tt.wantPID {
				t.Errorf("PID = %d, want %d", h.PID, tt.wantPID)
			}
		})
	}
}

func TestHolderString(t *testing.T) {
	if got := (Holder{}).String(); got != "unknown process" {
		t.Errorf("zero holder = %q", got)
	}
	if got := (Holder{PID: 9, Running: false}).String(); !strings.Contains(got, "stale") {
		t.Errorf("stale holder = %q", got)
	}
}
