// Package db owns the embedded SQLite store holding usage samples and daily rollups.
//
// All access goes through a single *DB whose methods are serialized: no two
// operations ever touch the underlying handle at the same time, and callers
// block until their operation completes.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	// Import modernc.org/sqlite as a blank import to register the driver
	_ "modernc.org/sqlite"

	"github.com/wesm/vibepulse/internal/logger"
)

// MemoryPath opens a transient store that is discarded on Close.
const MemoryPath = ":memory:"

// DB wraps the SQL database connection with the usage store operations.
type DB struct {
	mu   sync.Mutex
	conn *sql.DB
	path string
	now  func() time.Time
}

// New opens (creating if needed) the store at path and migrates its schema.
func New(path string) (*DB, error) {
	if path != MemoryPath {
		dir := filepath.Dir(path)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("%w: create database directory: %v", ErrOpen, err)
			}
		}
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}

	// One connection: serializes access and keeps an in-memory database alive.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	if err := sqlDB.PingContext(context.Background()); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("%w: connect: %v", ErrOpen, err)
	}

	db := &DB{
		conn: sqlDB,
		path: path,
		now:  time.Now,
	}

	if err := db.configure(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("%w: configure: %v", ErrOpen, err)
	}

	if err := db.migrate(); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	return db, nil
}

// NewMemory opens a transient in-memory store.
func NewMemory() (*DB, error) {
	return New(MemoryPath)
}

// OpenOrMemory opens the store at path, falling back to a transient in-memory
// store when that fails. The returned error is the open failure, if any; the
// returned *DB is usable either way.
func OpenOrMemory(path string) (*DB, error) {
	db, openErr := New(path)
	if openErr == nil {
		return db, nil
	}

	logger.Warn("database unavailable, running without persistence", "path", path, "error", openErr)

	mem, err := NewMemory()
	if err != nil {
		return nil, fmt.Errorf("%w; in-memory fallback: %v", openErr, err)
	}
	return mem, openErr
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// InMemory reports whether the store is transient.
func (db *DB) InMemory() bool {
	return db.path == MemoryPath
}

// configure sets up database pragmas.
func (db *DB) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}

	for _, pragma := range pragmas {
		if _, err := db.conn.ExecContext(context.Background(), pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}

	return nil
}

// Close checkpoints the WAL and closes the database.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if !db.InMemory() {
		_, _ = db.conn.ExecContext(context.Background(), "PRAGMA wal_checkpoint(TRUNCATE)")
	}
	return db.conn.Close()
}

// Vacuum performs database maintenance to reclaim space.
func (db *DB) Vacuum() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.ExecContext(context.Background(), "VACUUM")
	return err
}

// toEpoch encodes an instant as floating-point seconds since the Unix epoch.
func toEpoch(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/float64(time.Second)
}

// fromEpoch decodes seconds since the Unix epoch, rounded to the microsecond.
func fromEpoch(seconds float64) time.Time {
	whole, frac := math.Modf(seconds)
	micros := math.Round(frac * 1e6)
	return time.Unix(int64(whole), int64(micros)*int64(time.Microsecond))
}
