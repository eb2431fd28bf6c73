//go:build !windows

package index

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func TestAcquireAndReleaseLock(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "index.db")

	lock, err := AcquireLock(dbPath)
	if err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}

	content, err := os.ReadFile(dbPath + LockSuffix)
	if err != nil {
		t.Fatalf("failed to read lock file: %v", err)
	}
	pid, err := strconv.Atoi(string(content))
	if err != nil {
		t.Fatalf("lock file should contain PID: %v", err)
	}
	if pid != os.Getpid() {
		t.Errorf("PID: got %d, want %d", pid, os.Getpid())
	}

	lock.Release()
	if _, err := os.Stat(dbPath + LockSuffix); !os.IsNotExist(err) {
		t.Error("lock file should be removed after release")
	}
}

func TestAcquireLock_AlreadyLocked(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "index.db")

	lock1, err := AcquireLock(dbPath)
	if err != nil {
		t.Fatalf("first AcquireLock failed: %v", err)
	}
	defer lock1.Release()

	lock2, err := AcquireLock(dbPath)
	if err == nil {
		lock2.Release()
		t.Fatal("second AcquireLock should fail when already locked")
	}
	if !strings.Contains(err.Error(), "locked") {
		t.Errorf("error = %q, want mention of lock", err)
	}
}

func TestReleaseLock_NilSafe(t *testing.T) {
	var lock *Lock
	lock.Release()
}
