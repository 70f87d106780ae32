// Package realm opens schema-checked object stores.
//
// Every Open compares the schema the application expects with the schema the
// store holds. A store at the expected version must match it exactly; an older
// store is brought up to date by the configured migration in one transaction
// and verified again; a newer store is refused. Field access on an open handle
// goes through column positions resolved for that handle alone.
package realm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/arkilian/realmstore/internal/columns"
	rerrors "github.com/arkilian/realmstore/internal/errors"
	"github.com/arkilian/realmstore/internal/migration"
	"github.com/arkilian/realmstore/internal/schema"
	"github.com/arkilian/realmstore/internal/tablestore"
	"github.com/arkilian/realmstore/pkg/types"
)

type (
	// DynamicRealm is the schema handle a migration edits.
	DynamicRealm = migration.Session
	// DynamicClass is the per-class handle of a DynamicRealm.
	DynamicClass = migration.Class
	// MigrationFunc upgrades a store from oldVersion to newVersion.
	MigrationFunc = migration.Procedure
	// ColumnIndexTable maps fields to column positions for one handle.
	ColumnIndexTable = columns.Table
	// Error is the structured error returned by every operation.
	Error = rerrors.Error
)

// Sentinels for errors.Is.
var (
	ErrVersionDowngrade    = rerrors.ErrVersionDowngrade
	ErrMigrationNeeded     = rerrors.ErrMigrationNeeded
	ErrProcedureFailed     = rerrors.ErrProcedureFailed
	ErrMigrationConflict   = rerrors.ErrMigrationConflict
	ErrStoreInUse          = rerrors.ErrStoreInUse
	ErrStoreClosed         = rerrors.ErrStoreClosed
	ErrInvalidSchema       = rerrors.ErrInvalidSchema
	ErrNullValuesPresent   = rerrors.ErrNullValuesPresent
	ErrRequiredField       = rerrors.ErrRequiredField
	ErrDuplicatePrimaryKey = rerrors.ErrDuplicatePrimaryKey
	ErrUnknownField        = rerrors.ErrUnknownField
)

// Mismatches returns every mismatch message of a migration-needed error.
func Mismatches(err error) []string {
	return rerrors.Mismatches(err)
}

// Realm is an open store handle.
type Realm struct {
	path    string
	version int64
	schema  *types.Schema // expected
	actual  *types.Schema
	cols    *columns.Table
	db      *tablestore.DB
	logger  *slog.Logger

	mu     sync.Mutex
	closed bool
}

// Open opens the store described by cfg, migrating it if needed.
func Open(ctx context.Context, cfg Config) (*Realm, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	path, err := canonicalPath(cfg.Path)
	if err != nil {
		return nil, err
	}
	logger := cfg.logger().With("path", path)

	unlock := handles.lock(path)
	defer unlock()

	db, err := tablestore.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := open(ctx, db, &cfg, path, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	handles.add(path)
	return r, nil
}

func open(ctx context.Context, db *tablestore.DB, cfg *Config, path string, logger *slog.Logger) (*Realm, error) {
	stored, err := db.Version(ctx)
	if err != nil {
		return nil, err
	}
	verifier := schema.Verifier{StrictIndexes: cfg.StrictIndexes}

	decision := schema.Gate(stored, cfg.SchemaVersion)
	logger.Info("opening realm",
		"stored_version", stored,
		"expected_version", cfg.SchemaVersion,
		"decision", decision.String())

	switch decision {
	case schema.IllegalDowngrade:
		return nil, rerrors.NewVersionDowngrade(path, stored, cfg.SchemaVersion)

	case schema.MigrationRequired:
		// Open handles resolved their column positions against the current
		// structure.
		if n := handles.open(path); n > 0 {
			logger.Warn("refusing to migrate a realm with open handles", "handles", n)
			return nil, rerrors.NewMigrationConflict(path)
		}
		proc := cfg.Migration
		if proc == nil {
			if stored != types.Unversioned {
				return nil, rerrors.NewMigrationNeeded(path, []string{
					fmt.Sprintf("Realm on disk needs to migrate from v%d to v%d", stored, cfg.SchemaVersion),
				})
			}
			proc = migration.Initialize(cfg.Schema)
		} else if err := beforeMigration(ctx, cfg, path, stored); err != nil {
			return nil, err
		}
		exec := migration.NewExecutor(db, verifier, logger)
		if _, err := exec.Run(ctx, proc, cfg.Schema, cfg.SchemaVersion); err != nil {
			return nil, err
		}

	case schema.NoActionNeeded:
		actual, err := db.ReadSchema(ctx)
		if err != nil {
			return nil, err
		}
		report := verifier.Verify(cfg.Schema, actual)
		if err := report.Err(path); err != nil {
			first, _ := report.First()
			logger.Warn("schema mismatch", "mismatches", len(report.Mismatches), "first", first.Message)
			return nil, err
		}
		for _, m := range report.Tolerated {
			logger.Warn("tolerated schema difference", "class", m.Class, "field", m.Field, "detail", m.Message)
		}
	}

	actual, err := db.ReadSchema(ctx)
	if err != nil {
		return nil, err
	}
	return &Realm{
		path:    path,
		version: cfg.SchemaVersion,
		schema:  cfg.Schema.Clone(),
		actual:  actual,
		cols:    columns.Resolve(actual),
		db:      db,
		logger:  logger,
	}, nil
}

// Migrate runs cfg.Migration against a store that no handle has open. It
// fails with MIGRATION_CONFLICT while any handle for the path is open. A store
// already at the expected version is left alone.
func Migrate(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Migration == nil {
		return rerrors.NewInvalidSchema("realm: a migration is required", nil)
	}
	path, err := canonicalPath(cfg.Path)
	if err != nil {
		return err
	}
	logger := cfg.logger().With("path", path)

	unlock := handles.lock(path)
	defer unlock()

	if handles.open(path) > 0 {
		return rerrors.NewMigrationConflict(path)
	}

	db, err := tablestore.Open(path)
	if err != nil {
		return err
	}
	defer db.Close()

	stored, err := db.Version(ctx)
	if err != nil {
		return err
	}
	switch schema.Gate(stored, cfg.SchemaVersion) {
	case schema.IllegalDowngrade:
		return rerrors.NewVersionDowngrade(path, stored, cfg.SchemaVersion)
	case schema.NoActionNeeded:
		logger.Info("realm already at expected version", "version", stored)
		return nil
	}

	if err := beforeMigration(ctx, &cfg, path, stored); err != nil {
		return err
	}
	exec := migration.NewExecutor(db, schema.Verifier{StrictIndexes: cfg.StrictIndexes}, logger)
	_, err = exec.Run(ctx, cfg.Migration, cfg.Schema, cfg.SchemaVersion)
	return err
}

// Delete removes the store files at path. It fails with STORE_IN_USE while any
// handle for the path is open.
func Delete(path string) error {
	canonical, err := canonicalPath(path)
	if err != nil {
		return err
	}
	unlock := handles.lock(canonical)
	defer unlock()

	if handles.open(canonical) > 0 {
		return rerrors.NewStoreInUse(canonical, "cannot delete a realm that is open")
	}
	for _, f := range tablestore.Files(canonical) {
		if err := os.Remove(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return rerrors.NewStorageError(rerrors.CodeStorageFailed, "realm: failed to delete "+f, err)
		}
	}
	return nil
}

func beforeMigration(ctx context.Context, cfg *Config, path string, stored int64) error {
	if cfg.BeforeMigration == nil || stored == types.Unversioned {
		return nil
	}
	if err := cfg.BeforeMigration(ctx, path, stored, cfg.SchemaVersion); err != nil {
		return fmt.Errorf("realm: before-migration hook failed: %w", err)
	}
	return nil
}

// Path returns the canonical path of the store.
func (r *Realm) Path() string {
	return r.path
}

// Version returns the schema version the handle was opened at.
func (r *Realm) Version() int64 {
	return r.version
}

// Schema returns a copy of the expected schema.
func (r *Realm) Schema() *types.Schema {
	return r.schema.Clone()
}

// ActualSchema returns a copy of the schema read from the store after open.
func (r *Realm) ActualSchema() *types.Schema {
	return r.actual.Clone()
}

// Columns returns the column index table of this handle.
func (r *Realm) Columns() *ColumnIndexTable {
	return r.cols
}

// Close releases the handle. Closing twice is a no-op.
func (r *Realm) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	handles.release(r.path)
	return r.db.Close()
}

func (r *Realm) checkOpen() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return rerrors.New(rerrors.ErrCategoryState, rerrors.CodeStoreClosed, "realm is closed").WithPath(r.path)
	}
	return nil
}

// Initialize returns the migration that builds s from scratch and ensures the
// parts of it a store already has. Useful as the unversioned branch of a
// hand-written migration.
func Initialize(s *types.Schema) MigrationFunc {
	return migration.Initialize(s)
}
