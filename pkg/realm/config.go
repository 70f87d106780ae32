package realm

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	rerrors "github.com/arkilian/realmstore/internal/errors"
	"github.com/arkilian/realmstore/pkg/types"
)

// Config describes one open or migrate attempt.
type Config struct {
	// Path is the store file. Relative paths are resolved against the working
	// directory; handles are tracked by the canonical path.
	Path string

	// Schema is the schema the application expects.
	Schema *types.Schema

	// SchemaVersion is the expected version. It must be >= 0.
	SchemaVersion int64

	// Migration upgrades an older store. Without it, an unversioned store is
	// initialized from Schema and any other version gap fails the open.
	Migration MigrationFunc

	// StrictIndexes treats an index the store holds but Schema does not declare
	// as a mismatch.
	StrictIndexes bool

	// BeforeMigration runs before Migration is applied to a versioned store,
	// outside the migration transaction. An error aborts the attempt.
	BeforeMigration func(ctx context.Context, path string, from, to int64) error

	// Logger receives engine logs. Nil means slog.Default().
	Logger *slog.Logger
}

// Validate checks the configuration before any store access.
func (c *Config) Validate() error {
	if c.Path == "" {
		return rerrors.NewInvalidSchema("realm: path is required", nil)
	}
	if c.Schema == nil {
		return rerrors.NewInvalidSchema("realm: schema is required", nil)
	}
	if c.SchemaVersion < 0 {
		return rerrors.NewInvalidSchema(fmt.Sprintf("realm: schema version %d must not be negative", c.SchemaVersion), nil)
	}
	if err := c.Schema.Validate(); err != nil {
		return rerrors.NewInvalidSchema("realm: invalid schema", err)
	}
	return nil
}

func (c *Config) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

// canonicalPath makes path absolute and resolves symlinks in its directory,
// so every spelling of the same file maps to one registry entry.
func canonicalPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("realm: failed to resolve path: %w", err)
	}
	dir, base := filepath.Split(abs)
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		return filepath.Join(resolved, base), nil
	}
	return abs, nil
}
