package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

const memoryPath = ":memory:"

// DB is the on-device sqlite database.
type DB struct {
	*sql.DB
	path   string
	logger *zerolog.Logger
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if path != memoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite serialises writers; one connection also keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("database initialized")
	return &DB{DB: db, path: path, logger: logger}, nil
}

func dsn(path string) string {
	if path == memoryPath {
		return path
	}
	return "file:" + path + "?_busy_timeout=5000&_journal_mode=WAL"
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS kv_store (
            key TEXT PRIMARY KEY,
            value BLOB NOT NULL,
            updated_at DATETIME NOT NULL
        )`,
	}
	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// KVStore persists timeline keys as rows of the kv_store table.
type KVStore struct {
	db     *DB
	prefix string
}

func NewKVStore(db *DB, prefix string) *KVStore {
	return &KVStore{db: db, prefix: prefix}
}

// Get returns nil without error when the key does not exist.
func (s *KVStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv_store WHERE key = ?`, s.prefix+key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read key %s: %w", key, err)
	}
	return value, nil
}

func (s *KVStore) Set(ctx context.Context, key string, value []byte) error {
	query := `INSERT INTO kv_store (key, value, updated_at) VALUES (?, ?, ?)
              ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	if value == nil {
		value = []byte{}
	}
	if _, err := s.db.ExecContext(ctx, query, s.prefix+key, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to write key %s: %w", key, err)
	}
	return nil
}

func (s *KVStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv_store WHERE key = ?`, s.prefix+key); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

// Keys lists stored keys with the prefix stripped, ordered by name.
func (s *KVStore) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM kv_store WHERE substr(key, 1, ?) = ? ORDER BY key`, len(s.prefix), s.prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, key[len(s.prefix):])
	}
	return keys, rows.Err()
}
