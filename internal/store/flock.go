package store

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// migrationLock serializes schema migrations across processes with an
// exclusive flock on a sidecar file next to the database. SQLite's own
// locking does not cover goose's version bookkeeping, so two processes
// opening the same fresh database could otherwise race the first migration.
type migrationLock struct {
	f *os.File
}

// acquireMigrationLock blocks until the exclusive lock is held.
func acquireMigrationLock(dbPath string) (*migrationLock, error) {
	path := dbPath + ".migrate.lock"
	if dir := filepath.Dir(path); dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644) //nolint:gosec // G304: path derived from operator-provided dbPath
	if err != nil {
		return nil, fmt.Errorf("open migration lock %s: %w", path, err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("flock %s: %w", path, err)
	}
	return &migrationLock{f: f}, nil
}

// release drops the lock and closes the sidecar file. Nil-safe.
func (l *migrationLock) release() {
	if l == nil || l.f == nil {
		return
	}
	_ = syscall.Flock(int(l.f.Fd()), syscall.LOCK_UN)
	_ = l.f.Close()
}
