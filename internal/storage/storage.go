// Package storage provides the swap journal using SQLite.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DBFileName is the journal database file inside the data directory.
const DBFileName = "embarcadero.db"

// Storage provides persistent storage for the swap client.
type Storage struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// Config holds storage configuration.
type Config struct {
	DataDir string
}

// New creates a new Storage instance.
func New(cfg *Config) (*Storage, error) {
	dataDir := expandPath(cfg.DataDir)

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, DBFileName)

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Storage{
		db:     db,
		dbPath: dbPath,
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection.
func (s *Storage) DB() *sql.DB {
	return s.db
}

// Path returns the database file path.
func (s *Storage) Path() string {
	return s.dbPath
}

// initSchema creates all database tables.
func (s *Storage) initSchema() error {
	schema := `
	-- One row per swap ID, updated with every new summary
	CREATE TABLE IF NOT EXISTS swaps (
		id TEXT PRIMARY KEY,
		transaction_json TEXT NOT NULL,
		stage INTEGER NOT NULL,
		status TEXT NOT NULL,

		-- Summary from our point of view
		receive_sf INTEGER NOT NULL DEFAULT 0,
		receive_sc INTEGER NOT NULL DEFAULT 0,
		pay_fee INTEGER NOT NULL DEFAULT 0,
		amount_sc TEXT NOT NULL DEFAULT '0',
		amount_sf TEXT NOT NULL DEFAULT '0',
		amount_fee TEXT NOT NULL DEFAULT '0',

		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		completed_at INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_swaps_updated ON swaps(updated_at);
	CREATE INDEX IF NOT EXISTS idx_swaps_status ON swaps(status);

	-- Session events, append only
	CREATE TABLE IF NOT EXISTS swap_events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT UNIQUE NOT NULL,
		session_id TEXT NOT NULL,
		swap_id TEXT,
		event_type TEXT NOT NULL,
		status TEXT,
		route TEXT,
		error_message TEXT,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_swap_events_swap ON swap_events(swap_id, seq);
	CREATE INDEX IF NOT EXISTS idx_swap_events_session ON swap_events(session_id, seq);
	`

	_, err := s.db.Exec(schema)
	return err
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
