package coursesync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	// SQLite driver using pure Go implementation
	_ "modernc.org/sqlite"
)

// SQLiteStoreConfig configures the SQLite change store.
type SQLiteStoreConfig struct {
	// Path to the SQLite database file.
	Path string `json:"path" yaml:"path"`

	// JournalMode sets the SQLite journal mode (WAL, DELETE, TRUNCATE, etc.)
	JournalMode string `json:"journal_mode,omitempty" yaml:"journal_mode,omitempty"`

	// Synchronous sets the synchronous flag (OFF, NORMAL, FULL, EXTRA)
	Synchronous string `json:"synchronous,omitempty" yaml:"synchronous,omitempty"`

	// BusyTimeout is the timeout for acquiring locks in milliseconds.
	BusyTimeout int `json:"busy_timeout,omitempty" yaml:"busy_timeout,omitempty"`
}

// DefaultSQLiteStoreConfig returns default configuration.
func DefaultSQLiteStoreConfig() SQLiteStoreConfig {
	return SQLiteStoreConfig{
		Path:        "coursesync.db",
		JournalMode: "WAL",
		Synchronous: "NORMAL",
		BusyTimeout: 5000,
	}
}

// SQLiteStore implements ChangeStore using SQLite. This allows the offline
// queue to be inspected with standard SQLite tools.
type SQLiteStore struct {
	db     *sql.DB
	config SQLiteStoreConfig
	mu     sync.RWMutex
	closed bool

	selectStmt *sql.Stmt
	upsertStmt *sql.Stmt
	deleteStmt *sql.Stmt
}

// NewSQLiteStore creates a new SQLite-backed change store.
func NewSQLiteStore(config SQLiteStoreConfig) (*SQLiteStore, error) {
	if config.Path == "" {
		config.Path = "coursesync.db"
	}
	if config.JournalMode == "" {
		config.JournalMode = "WAL"
	}
	if config.Synchronous == "" {
		config.Synchronous = "NORMAL"
	}
	if config.BusyTimeout <= 0 {
		config.BusyTimeout = 5000
	}

	dsn := fmt.Sprintf("%s?_journal_mode=%s&_synchronous=%s&_busy_timeout=%d",
		config.Path, config.JournalMode, config.Synchronous, config.BusyTimeout)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	store := &SQLiteStore{db: db, config: config}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := store.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS offline_state (
			key TEXT PRIMARY KEY,
			data BLOB NOT NULL,
			updated_at INTEGER NOT NULL
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) prepareStatements() error {
	var err error
	if s.selectStmt, err = s.db.Prepare(
		`SELECT data FROM offline_state WHERE key = ?`); err != nil {
		return err
	}
	if s.upsertStmt, err = s.db.Prepare(
		`INSERT INTO offline_state (key, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`); err != nil {
		return err
	}
	if s.deleteStmt, err = s.db.Prepare(
		`DELETE FROM offline_state WHERE key = ?`); err != nil {
		return err
	}
	return nil
}

func (s *SQLiteStore) Read(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	var data []byte
	err := s.selectStmt.QueryRowContext(ctx, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, os.ErrNotExist
	}
	if err != nil {
		return nil, newStoreError(StoreErrorTypeRead, "sqlite read failed", key, err)
	}
	return data, nil
}

func (s *SQLiteStore) Write(ctx context.Context, key string, data []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}

	if _, err := s.upsertStmt.ExecContext(ctx, key, data, time.Now().UnixMilli()); err != nil {
		return newStoreError(StoreErrorTypeWrite, "sqlite write failed", key, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}

	if _, err := s.deleteStmt.ExecContext(ctx, key); err != nil {
		return newStoreError(StoreErrorTypeWrite, "sqlite delete failed", key, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	for _, stmt := range []*sql.Stmt{s.selectStmt, s.upsertStmt, s.deleteStmt} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
	return s.db.Close()
}
