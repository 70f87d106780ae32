// Package app wires configuration, logging, snapshot storage and store
// operations together for the realmstore command.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/arkilian/realmstore/internal/columns"
	"github.com/arkilian/realmstore/internal/config"
	rerrors "github.com/arkilian/realmstore/internal/errors"
	"github.com/arkilian/realmstore/internal/migration"
	"github.com/arkilian/realmstore/internal/schema"
	"github.com/arkilian/realmstore/internal/snapshot"
	"github.com/arkilian/realmstore/internal/storage"
	"github.com/arkilian/realmstore/internal/tablestore"
	"github.com/arkilian/realmstore/pkg/realm"
	"github.com/arkilian/realmstore/pkg/types"
)

// App runs store operations with the configured environment.
type App struct {
	cfg       *config.Config
	logger    *slog.Logger
	storage   storage.ObjectStorage
	snapshots *snapshot.Snapshotter
}

// New resolves and validates cfg and initializes snapshot storage.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	a := &App{cfg: cfg, logger: logger}
	if err := a.initStorage(ctx); err != nil {
		return nil, err
	}
	a.snapshots = snapshot.New(a.storage, cfg.Snapshot.Prefix, logger)
	return a, nil
}

func (a *App) initStorage(ctx context.Context) error {
	var err error
	switch a.cfg.Storage.Type {
	case config.StorageLocal:
		a.storage, err = storage.NewLocalStorage(a.cfg.Storage.Path)
	case config.StorageS3:
		s3Cfg := storage.DefaultS3Config()
		if a.cfg.Storage.S3.Region != "" {
			s3Cfg.Region = a.cfg.Storage.S3.Region
		}
		s3Cfg.Endpoint = a.cfg.Storage.S3.Endpoint
		s3Cfg.UsePathStyle = a.cfg.Storage.S3.UsePathStyle
		a.storage, err = storage.NewS3Storage(ctx, a.cfg.Storage.S3.Bucket, s3Cfg)
	default:
		return fmt.Errorf("unsupported storage type: %s", a.cfg.Storage.Type)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.logger.Debug("snapshot storage initialized",
		"type", a.cfg.Storage.Type,
		"path", a.cfg.Storage.Path,
		"bucket", a.cfg.Storage.S3.Bucket)
	return nil
}

// Config returns the resolved configuration.
func (a *App) Config() *config.Config {
	return a.cfg
}

// Inspection is what a store holds, read without any expectation.
type Inspection struct {
	Path        string
	Version     int64
	Schema      *types.Schema
	Fingerprint string
	Columns     *columns.Table
}

// Inspect reads the version and schema of an existing store.
func (a *App) Inspect(ctx context.Context, store string) (*Inspection, error) {
	path, db, err := a.openExisting(store)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	version, err := db.Version(ctx)
	if err != nil {
		return nil, err
	}
	actual, err := db.ReadSchema(ctx)
	if err != nil {
		return nil, err
	}
	return &Inspection{
		Path:        path,
		Version:     version,
		Schema:      actual,
		Fingerprint: actual.Fingerprint(),
		Columns:     columns.Resolve(actual),
	}, nil
}

// Verification is the outcome of checking a store against a schema file.
type Verification struct {
	Path            string
	StoredVersion   int64
	ExpectedVersion int64
	Decision        schema.Decision
	Report          *schema.Report
}

// OK reports whether opening the store with the schema would succeed without
// a migration.
func (v *Verification) OK() bool {
	return v.Decision == schema.NoActionNeeded && v.Report.OK()
}

// Verify checks a store against the schema in schemaFile without changing it.
func (a *App) Verify(ctx context.Context, store, schemaFile string) (*Verification, error) {
	expected, version, err := LoadSchemaFile(schemaFile)
	if err != nil {
		return nil, err
	}
	path, db, err := a.openExisting(store)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	stored, err := db.Version(ctx)
	if err != nil {
		return nil, err
	}
	actual, err := db.ReadSchema(ctx)
	if err != nil {
		return nil, err
	}

	v := &Verification{
		Path:            path,
		StoredVersion:   stored,
		ExpectedVersion: version,
		Decision:        schema.Gate(stored, version),
		Report:          schema.Verifier{StrictIndexes: a.cfg.StrictIndexes}.Verify(expected, actual),
	}
	a.logger.Debug("verified store",
		"path", path,
		"decision", v.Decision.String(),
		"mismatches", len(v.Report.Mismatches))
	return v, nil
}

// MigrateResult summarizes a migrate run.
type MigrateResult struct {
	Path        string
	FromVersion int64
	ToVersion   int64
	Pruned      int
}

// Migrate brings a store to the schema in schemaFile by running the plan in
// planFile. A pre-migration snapshot is taken when enabled.
func (a *App) Migrate(ctx context.Context, store, schemaFile, planFile string) (*MigrateResult, error) {
	expected, version, err := LoadSchemaFile(schemaFile)
	if err != nil {
		return nil, err
	}
	plan, err := migration.LoadPlan(planFile)
	if err != nil {
		return nil, err
	}

	path := a.cfg.StorePath(store)
	from := types.Unversioned
	if _, err := os.Stat(path); err == nil {
		info, err := a.Inspect(ctx, store)
		if err != nil {
			return nil, err
		}
		from = info.Version
	}

	cfg := realm.Config{
		Path:          path,
		Schema:        expected,
		SchemaVersion: version,
		Migration:     plan.Procedure(),
		StrictIndexes: a.cfg.StrictIndexes,
		Logger:        a.logger,
	}
	if a.cfg.Snapshot.Enabled {
		cfg.BeforeMigration = a.snapshots.Hook()
	}
	if err := realm.Migrate(ctx, cfg); err != nil {
		return nil, err
	}

	result := &MigrateResult{Path: path, FromVersion: from, ToVersion: version}
	if a.cfg.Snapshot.Enabled && a.cfg.Snapshot.Keep > 0 {
		result.Pruned, err = a.snapshots.Prune(ctx, snapshot.StoreName(path), a.cfg.Snapshot.Keep)
		if err != nil {
			a.logger.Warn("failed to prune snapshots", "path", path, "error", err)
		}
	}
	return result, nil
}

// Snapshots lists the snapshots of a store, oldest first.
func (a *App) Snapshots(ctx context.Context, store string) ([]snapshot.Snapshot, error) {
	return a.snapshots.List(ctx, snapshot.StoreName(a.cfg.StorePath(store)))
}

// Restore replaces a store with one of its snapshots. An empty id or "latest"
// picks the newest; otherwise id may be any unique prefix of a snapshot id.
func (a *App) Restore(ctx context.Context, store, id string) (*snapshot.Snapshot, error) {
	path := a.cfg.StorePath(store)
	name := snapshot.StoreName(path)

	var snap *snapshot.Snapshot
	if id == "" || id == "latest" {
		latest, err := a.snapshots.Latest(ctx, name)
		if err != nil {
			return nil, err
		}
		snap = latest
	} else {
		snaps, err := a.snapshots.List(ctx, name)
		if err != nil {
			return nil, err
		}
		for i := range snaps {
			if !strings.HasPrefix(snaps[i].ID, id) {
				continue
			}
			if snap != nil {
				return nil, fmt.Errorf("snapshot id %q is ambiguous", id)
			}
			snap = &snaps[i]
		}
		if snap == nil {
			return nil, rerrors.NewStorageError(rerrors.CodeSnapshotFailed,
				fmt.Sprintf("no snapshot %q for store %q", id, name), storage.ErrObjectNotFound)
		}
	}

	if n := realm.OpenHandles(path); n > 0 {
		return nil, rerrors.NewStoreInUse(path, fmt.Sprintf("cannot restore a realm with %d open handles", n))
	}
	if err := a.snapshots.Restore(ctx, snap.Object, path); err != nil {
		return nil, err
	}
	return snap, nil
}

// Delete removes a store's files.
func (a *App) Delete(store string) error {
	return realm.Delete(a.cfg.StorePath(store))
}

// openExisting opens an existing store read-only, so inspection never creates
// or changes one.
func (a *App) openExisting(store string) (string, *tablestore.DB, error) {
	path := a.cfg.StorePath(store)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil, fmt.Errorf("store %s does not exist", path)
		}
		return "", nil, err
	}
	db, err := tablestore.OpenReadOnly(path)
	if err != nil {
		return "", nil, err
	}
	return path, db, nil
}
