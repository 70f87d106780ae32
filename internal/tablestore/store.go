// Package tablestore is the transactional table/column storage engine behind a
// store file. Classes map to SQLite tables, fields to columns; nullability is
// the column's NOT NULL constraint and indexes are single-column SQLite
// indexes, so every structural property is read back from the file itself.
package tablestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	rerrors "github.com/arkilian/realmstore/internal/errors"
	"github.com/arkilian/realmstore/pkg/types"
	"github.com/mattn/go-sqlite3"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB is one open connection to a store file.
type DB struct {
	db   *sql.DB // single writer; SQLite serializes write transactions
	path string
	bare bool // read-only file without metadata tables
}

// Open opens or creates the store file at path.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("tablestore: failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("tablestore: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, classify("failed to connect to database", err)
	}

	store := &DB{db: db, path: path}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("tablestore: failed to initialize schema: %w", err)
	}
	return store, nil
}

// OpenReadOnly opens an existing store file for reading. Nothing is created or
// written; a file without metadata tables reads as an empty unversioned store.
func OpenReadOnly(path string) (*DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("tablestore: failed to open database: %w", err)
	}

	db, err := sql.Open("sqlite3", "file:"+filepath.ToSlash(path)+"?mode=ro&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("tablestore: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	var n int
	err = db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'realm_metadata'`).Scan(&n)
	if err != nil {
		db.Close()
		return nil, classify("failed to read catalog", err)
	}
	return &DB{db: db, path: path, bare: n == 0}, nil
}

func (d *DB) initSchema() error {
	for _, stmt := range AllSchemaSQL() {
		if _, err := d.db.Exec(stmt); err != nil {
			return classify("failed to execute schema statement", err)
		}
	}
	return nil
}

// Path returns the file path the store was opened with.
func (d *DB) Path() string {
	return d.path
}

// Close closes the connection. The last close of a WAL store folds the log
// back into the main file.
func (d *DB) Close() error {
	if d.db == nil {
		return nil
	}
	return d.db.Close()
}

// Begin starts a write transaction.
func (d *DB) Begin(ctx context.Context) (*Tx, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify("failed to begin transaction", err)
	}
	return &Tx{tx: tx}, nil
}

// Version returns the stored schema version, or types.Unversioned for a store
// that was never initialized.
func (d *DB) Version(ctx context.Context) (int64, error) {
	if d.bare {
		return types.Unversioned, nil
	}
	return readVersion(ctx, d.db)
}

// ReadSchema reads the actual schema of every class in the store.
func (d *DB) ReadSchema(ctx context.Context) (*types.Schema, error) {
	if d.bare {
		return &types.Schema{}, nil
	}
	return readSchema(ctx, d.db)
}

// Checkpoint copies the WAL into the main database file so the file alone is
// a complete copy of the store.
func (d *DB) Checkpoint(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return classify("failed to checkpoint", err)
	}
	return nil
}

// Files returns every file that belongs to the store at path.
func Files(path string) []string {
	return []string{path, path + "-wal", path + "-shm", path + "-journal"}
}

func readVersion(ctx context.Context, q querier) (int64, error) {
	var version int64
	err := q.QueryRowContext(ctx, "SELECT version FROM realm_metadata WHERE id = 1").Scan(&version)
	if err != nil {
		if err == sql.ErrNoRows {
			return types.Unversioned, nil
		}
		return 0, classify("failed to read version", err)
	}
	return version, nil
}

// classify wraps driver errors, marking lock contention as retryable.
func classify(message string, err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) && (se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked) {
		return rerrors.NewStorageError(rerrors.CodeStoreBusy, "tablestore: "+message, err)
	}
	return rerrors.NewStorageError(rerrors.CodeStorageFailed, "tablestore: "+message, err)
}

func tableName(class string) string {
	return classTablePrefix + class
}

func indexName(class, field string) string {
	return "idx_" + tableName(class) + "__" + field
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
