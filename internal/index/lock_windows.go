//go:build windows

package index

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// LockSuffix is appended to the database path to name its writer lock.
const LockSuffix = ".lock"

// Lock is a best-effort writer lock. Windows has no flock; the lock file
// is only created with O_EXCL.
type Lock struct {
	path string
	file *os.File
}

// AcquireLock takes the writer lock of the index database at dbPath.
func AcquireLock(dbPath string) (*Lock, error) {
	path := dbPath + LockSuffix

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("index %s is locked by another process", dbPath)
		}
		return nil, fmt.Errorf("opening lock file: %w", err)
	}
	if _, err := file.WriteString(strconv.Itoa(os.Getpid())); err != nil {
		file.Close()
		os.Remove(path)
		return nil, fmt.Errorf("writing PID to lock file: %w", err)
	}
	return &Lock{path: path, file: file}, nil
}

// Release releases the lock and removes the lock file.
func (l *Lock) Release() {
	if l == nil || l.file == nil {
		return
	}
	l.file.Close()
	os.Remove(l.path)
}
