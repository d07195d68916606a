package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"agricam/internal/repository"

	"github.com/mattn/go-sqlite3"
)

const (
	// maxTxAttempts bounds retries of a write transaction that hit SQLITE_BUSY/SQLITE_LOCKED.
	maxTxAttempts = 3
	txRetryDelay  = 50 * time.Millisecond
)

// DB wraps the SQLite connection pool. WAL mode lets readers run while a
// single writer holds the database; writers serialize through the busy
// timeout and withTx retries.
type DB struct {
	conn *sql.DB
	path string
}

// New opens (creating if needed) the database at dbPath and applies the schema.
func New(dbPath string) (*DB, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate"
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(4)
	conn.SetConnMaxLifetime(0)

	db := &DB{conn: conn, path: dbPath}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

// migrate creates the necessary tables if they don't exist.
func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS profiles (
		profile_id TEXT PRIMARY KEY,
		operator_id TEXT NOT NULL,
		created_at TEXT NOT NULL,
		camera_config TEXT NOT NULL,
		distance_policy TEXT NOT NULL,
		notes TEXT,
		is_current INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS images (
		image_id TEXT PRIMARY KEY,
		profile_id TEXT,
		camera_id TEXT NOT NULL,
		ts TEXT NOT NULL,
		distance_bucket TEXT DEFAULT 'unknown',
		focus_state TEXT,
		quality_score REAL DEFAULT 0,
		file_path TEXT NOT NULL,
		metadata_path TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (profile_id) REFERENCES profiles(profile_id)
	);

	CREATE INDEX IF NOT EXISTS idx_profiles_is_current ON profiles(is_current);
	CREATE INDEX IF NOT EXISTS idx_profiles_created_at ON profiles(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_images_ts ON images(ts DESC);
	CREATE INDEX IF NOT EXISTS idx_images_profile_id ON images(profile_id);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying database connection for use by repositories.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Path returns the file the database was opened from.
func (db *DB) Path() string {
	return db.path
}

// withTx runs fn inside a write transaction, retrying the whole transaction
// when SQLite reports contention. Errors returned by fn that are not
// contention are passed through unchanged.
func (db *DB) withTx(fn func(tx *sql.Tx) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = db.runTx(fn)
		if err == nil || !isContention(err) {
			return err
		}
		time.Sleep(time.Duration(attempt) * txRetryDelay)
	}
	return fmt.Errorf("%w: retries exhausted: %v", repository.ErrPersistence, err)
}

func (db *DB) runTx(fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// isContention reports SQLITE_BUSY and SQLITE_LOCKED.
func isContention(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
}
