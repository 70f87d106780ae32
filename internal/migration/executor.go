package migration

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	rerrors "github.com/arkilian/realmstore/internal/errors"
	"github.com/arkilian/realmstore/internal/schema"
	"github.com/arkilian/realmstore/internal/tablestore"
	"github.com/arkilian/realmstore/pkg/types"
)

// Procedure transforms a store's schema from oldVersion to newVersion.
// oldVersion is types.Unversioned for a store that was never initialized, in
// which case the procedure must create the whole schema.
type Procedure func(ctx context.Context, s *Session, oldVersion, newVersion int64) error

// Result describes a committed migration.
type Result struct {
	OldVersion int64
	NewVersion int64
	Changes    []types.SchemaChange
	Report     *schema.Report
	Duration   time.Duration
}

// Executor runs procedures against one open store.
type Executor struct {
	db       *tablestore.DB
	verifier schema.Verifier
	logger   *slog.Logger
}

// NewExecutor creates an executor for db. The logger is used as given; callers
// scope it to the store.
func NewExecutor(db *tablestore.DB, verifier schema.Verifier, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		db:       db,
		verifier: verifier,
		logger:   logger,
	}
}

// Run executes proc in a single write transaction and stamps newVersion.
//
// The procedure's change list is applied in order, then the resulting schema
// is verified against expected before commit. A procedure error or panic, an
// invalid change, a failed apply or a failed verification rolls back the whole
// transaction; the store is left exactly as it was.
func (e *Executor) Run(ctx context.Context, proc Procedure, expected *types.Schema, newVersion int64) (*Result, error) {
	path := e.db.Path()
	start := time.Now()

	tx, err := e.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil {
				e.logger.Warn("rollback failed", "error", rbErr)
			}
		}
	}()

	oldVersion, err := tx.Version(ctx)
	if err != nil {
		return nil, err
	}
	actual, err := tx.ReadSchema(ctx)
	if err != nil {
		return nil, err
	}

	e.logger.Info("running migration",
		"from", oldVersion,
		"to", newVersion)

	session := NewSession(actual)
	if err := invoke(ctx, proc, session, oldVersion, newVersion); err != nil {
		e.logger.Warn("migration procedure failed, rolling back", "error", err)
		return nil, rerrors.NewProcedureFailed(path, err)
	}
	if err := session.Err(); err != nil {
		e.logger.Warn("migration recorded an invalid change, rolling back", "error", err)
		return nil, rerrors.NewProcedureFailed(path, err)
	}

	changes := session.Changes()
	for _, c := range changes {
		e.logger.Debug("applying schema change", "change", c.String())
		if err := tx.Apply(ctx, c); err != nil {
			e.logger.Warn("schema change failed, rolling back", "change", c.String(), "error", err)
			return nil, rerrors.NewProcedureFailed(path, fmt.Errorf("%s: %w", c, err))
		}
	}

	if err := tx.SetVersion(ctx, newVersion); err != nil {
		return nil, err
	}

	after, err := tx.ReadSchema(ctx)
	if err != nil {
		return nil, err
	}
	report := e.verifier.Verify(expected, after)
	if !report.OK() {
		first, _ := report.First()
		e.logger.Warn("migrated schema does not match, rolling back",
				"mismatches", len(report.Mismatches),
			"first", first.Message)
		return nil, report.Err(path)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true

	for _, m := range report.Tolerated {
		e.logger.Warn("tolerated schema difference", "class", m.Class, "field", m.Field, "detail", m.Message)
	}

	result := &Result{
		OldVersion: oldVersion,
		NewVersion: newVersion,
		Changes:    changes,
		Report:     report,
		Duration:   time.Since(start),
	}
	e.logger.Info("migration committed",
		"from", oldVersion,
		"to", newVersion,
		"changes", len(changes),
		"fingerprint", after.Fingerprint(),
		"duration", result.Duration)
	return result, nil
}

// invoke calls the procedure, turning a panic into an error.
func invoke(ctx context.Context, proc Procedure, s *Session, oldVersion, newVersion int64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("migration panicked: %v", r)
		}
	}()
	return proc(ctx, s, oldVersion, newVersion)
}

// Initialize returns the procedure that builds expected from scratch: classes
// in declaration order, then their fields, indexes and primary keys. Parts
// already present are kept, so it can run against a partially built store.
func Initialize(expected *types.Schema) Procedure {
	return func(_ context.Context, s *Session, _, _ int64) error {
		for _, c := range expected.Classes {
			if !s.HasClass(c.Name) {
				s.CreateClass(c.Name)
			}
		}
		for _, c := range expected.Classes {
			class := s.Class(c.Name)
			for _, f := range c.Fields {
				class.Add(f)
			}
		}
		return s.Err()
	}
}
