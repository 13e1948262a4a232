package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/dotcommander/taskbrew/internal/app"
	_ "modernc.org/sqlite"
)

// defaultBusyTimeoutMS is the SQLite busy_timeout in milliseconds.
// Override with TASKBREW_BUSY_TIMEOUT_MS for environments with high contention.
const defaultBusyTimeoutMS = 5000

// Store owns the database handles: one exclusive writer connection plus a
// small pool of read connections. All mutations go through the writer
// (serialized by Transact); board listings and search use the read pool.
type Store struct {
	write *sql.DB
	read  *sql.DB
	path  string
}

// Open initializes the database at dbPath with WAL mode, runs migrations,
// and opens the read pool. poolSize <= 0 uses the default of 5.
func Open(dbPath string, poolSize int) (*Store, error) {
	if poolSize <= 0 {
		poolSize = app.DefaultPoolSize
	}

	dsn := normalizeSQLiteDSN(dbPath)

	write, err := initDBAtDSN(dbPath, dsn)
	if err != nil {
		return nil, err
	}

	read, err := openConn(dsn, poolSize)
	if err != nil {
		_ = write.Close()
		return nil, fmt.Errorf("open read pool: %w", err)
	}

	return &Store{write: write, read: read, path: dbPath}, nil
}

// Writer returns the single-connection write handle.
func (s *Store) Writer() *sql.DB { return s.write }

// Reader returns the read-pool handle.
func (s *Store) Reader() *sql.DB { return s.read }

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Transact runs fn in a serialized write transaction with busy-retry.
func (s *Store) Transact(fn func(tx *sql.Tx) error) error {
	return Transact(s.write, fn)
}

// Close closes the read pool and the write connection.
func (s *Store) Close() error {
	var firstErr error
	if s.read != nil {
		if err := s.read.Close(); err != nil {
			firstErr = err
		}
	}
	if s.write != nil {
		if err := s.write.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// InitDB initializes the write connection at the resolved config path.
func InitDB() (*sql.DB, error) {
	dbPath, err := app.GetDBPath()
	if err != nil {
		return nil, err
	}
	return InitDBWithPath(dbPath)
}

// InitDBWithPath initializes a write connection at a specific path and runs
// migrations (useful for testing with ":memory:").
func InitDBWithPath(dbPath string) (*sql.DB, error) {
	return initDBAtDSN(dbPath, normalizeSQLiteDSN(dbPath))
}

func initDBAtDSN(dbPath, dsn string) (*sql.DB, error) {
	if _, err := app.EnsureDBDir(dbPath); err != nil {
		return nil, err
	}

	db, err := openConn(dsn, 1)
	if err != nil {
		return nil, err
	}

	if err := RetryWithBackoff(func() error { return RunMigrations(db) }); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

// openConn opens a connection set with the standard pragmas applied.
// dsn must already be normalized.
//
// modernc.org/sqlite is strict about DSNs. Use a file: URI with mode=rwc
// so the database can be created/written consistently across platforms.
func openConn(dsn string, maxConns int) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)

	busyTimeout := defaultBusyTimeoutMS
	if v := os.Getenv("TASKBREW_BUSY_TIMEOUT_MS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			busyTimeout = parsed
		}
	}

	// Trade-offs:
	//   busy_timeout  — blocks writers up to N ms instead of failing immediately.
	//   synchronous=NORMAL — skips fsync on every commit (WAL still provides
	//                        crash safety for committed txns).
	//   journal_mode=WAL   — allows concurrent readers + one writer; required
	//                        for the read pool alongside the writer.
	pragmas := []string{
		// Set busy_timeout first so subsequent pragmas (including WAL) will wait on locks.
		fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeout),
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA journal_mode=WAL",
	}

	for _, pragma := range pragmas {
		if err := RetryWithBackoff(func() error {
			_, err := db.ExecContext(context.Background(), pragma)
			return err
		}); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	return db, nil
}

// memSeq makes each ":memory:" database distinct within the process, so
// independent opens (tests in particular) never share state.
var memSeq atomic.Int64

func normalizeSQLiteDSN(dbPath string) string {
	// Support an explicit file: DSN as-is.
	if strings.HasPrefix(dbPath, "file:") {
		return dbPath
	}

	// cache=shared lets the read pool observe the writer's in-memory database.
	// The generated name keeps separate opens isolated from each other.
	if dbPath == ":memory:" {
		return fmt.Sprintf("file:memdb%d?mode=memory&cache=shared", memSeq.Add(1))
	}

	// mode=rwc => read/write/create. Without this, some environments open read-only.
	return "file:" + dbPath + "?mode=rwc"
}
