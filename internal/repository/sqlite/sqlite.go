package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite database connection with thread-safe access.
type DB struct {
	conn *sql.DB
	mu   sync.RWMutex
}

// New opens (creating if needed) the database at dbPath and applies the schema.
func New(dbPath string) (*DB, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

// migrate creates the codes table and adds columns missing from databases
// written by older versions.
func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS codes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		code TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		annotated INTEGER NOT NULL DEFAULT 0,
		duplicate INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'available'
	);

	CREATE INDEX IF NOT EXISTS idx_codes_code ON codes(code);
	`

	if _, err := db.conn.Exec(schema); err != nil {
		return err
	}

	for column, ddl := range map[string]string{
		"description": "ALTER TABLE codes ADD COLUMN description TEXT NOT NULL DEFAULT ''",
		"status":      "ALTER TABLE codes ADD COLUMN status TEXT NOT NULL DEFAULT 'available'",
	} {
		exists, err := db.hasColumn("codes", column)
		if err != nil {
			return err
		}
		if !exists {
			if _, err := db.conn.Exec(ddl); err != nil {
				return fmt.Errorf("failed to add column %s: %w", column, err)
			}
		}
	}

	_, err := db.conn.Exec("CREATE INDEX IF NOT EXISTS idx_codes_status ON codes(status)")
	return err
}

func (db *DB) hasColumn(table, column string) (bool, error) {
	rows, err := db.conn.Query("SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return false, fmt.Errorf("failed to inspect %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying database connection for use by repositories.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Lock acquires a write lock.
func (db *DB) Lock() {
	db.mu.Lock()
}

// Unlock releases the write lock.
func (db *DB) Unlock() {
	db.mu.Unlock()
}

// RLock acquires a read lock.
func (db *DB) RLock() {
	db.mu.RLock()
}

// RUnlock releases the read lock.
func (db *DB) RUnlock() {
	db.mu.RUnlock()
}
