package tablestore

import (
	"context"
	"database/sql"
	"fmt"

	rerrors "github.com/arkilian/realmstore/internal/errors"
	"github.com/arkilian/realmstore/pkg/types"
)

// Tx is a write transaction over the store. Every structural operation runs
// inside it; nothing is visible to other connections until Commit.
type Tx struct {
	tx   *sql.Tx
	done bool
}

// Commit makes every change of the transaction durable.
func (t *Tx) Commit() error {
	if t.done {
		return fmt.Errorf("tablestore: transaction already finished")
	}
	t.done = true
	if err := t.tx.Commit(); err != nil {
		return classify("failed to commit", err)
	}
	return nil
}

// Rollback discards the transaction. It is a no-op after Commit or an earlier
// Rollback, so it can be deferred unconditionally.
func (t *Tx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return classify("failed to roll back", err)
	}
	return nil
}

// Version returns the stored schema version as seen by the transaction.
func (t *Tx) Version(ctx context.Context) (int64, error) {
	return readVersion(ctx, t.tx)
}

// SetVersion stamps the store with a schema version.
func (t *Tx) SetVersion(ctx context.Context, version int64) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO realm_metadata (id, version) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET version = excluded.version`, version)
	if err != nil {
		return classify("failed to set version", err)
	}
	return nil
}

// ReadSchema reads the actual schema including uncommitted changes.
func (t *Tx) ReadSchema(ctx context.Context) (*types.Schema, error) {
	return readSchema(ctx, t.tx)
}

// HasTable reports whether a class table exists.
func (t *Tx) HasTable(ctx context.Context, class string) (bool, error) {
	return tableExists(ctx, t.tx, class)
}

// CreateTable creates an empty class table holding only the hidden row key.
func (t *Tx) CreateTable(ctx context.Context, class string) error {
	if !types.ValidateName(class) {
		return rerrors.NewInvalidChange(fmt.Sprintf("invalid class name %q", class))
	}
	exists, err := t.HasTable(ctx, class)
	if err != nil {
		return err
	}
	if exists {
		return rerrors.NewInvalidChange(fmt.Sprintf("class '%s' already exists", class))
	}
	stmt := fmt.Sprintf("CREATE TABLE %s (%s INTEGER PRIMARY KEY)",
		quoteIdent(tableName(class)), quoteIdent(types.ReservedField))
	if _, err := t.tx.ExecContext(ctx, stmt); err != nil {
		return classify("failed to create class", err)
	}
	return nil
}

// DropTable removes a class with all of its objects and metadata.
func (t *Tx) DropTable(ctx context.Context, class string) error {
	if err := t.requireTable(ctx, class); err != nil {
		return err
	}
	var (
		from  string
		field string
	)
	err := t.tx.QueryRowContext(ctx,
		"SELECT class_name, field_name FROM realm_links WHERE target_class = ? AND class_name != ? LIMIT 1",
		class, class).Scan(&from, &field)
	switch {
	case err == nil:
		return rerrors.NewInvalidChange(fmt.Sprintf("class '%s' is referenced by field '%s.%s'", class, from, field))
	case err != sql.ErrNoRows:
		return classify("failed to check references", err)
	}

	stmts := []struct {
		query string
		args  []any
	}{
		{fmt.Sprintf("DROP TABLE %s", quoteIdent(tableName(class))), nil},
		{"DELETE FROM realm_primary_keys WHERE class_name = ?", []any{class}},
		{"DELETE FROM realm_links WHERE class_name = ?", []any{class}},
	}
	for _, s := range stmts {
		if _, err := t.tx.ExecContext(ctx, s.query, s.args...); err != nil {
			return classify("failed to remove class", err)
		}
	}
	return nil
}

// RenameTable renames a class, carrying its indexes, primary key and the
// links that point to it.
func (t *Tx) RenameTable(ctx context.Context, class, newName string) error {
	if !types.ValidateName(newName) {
		return rerrors.NewInvalidChange(fmt.Sprintf("invalid class name %q", newName))
	}
	desc, err := t.readClass(ctx, class)
	if err != nil {
		return err
	}
	exists, err := t.HasTable(ctx, newName)
	if err != nil {
		return err
	}
	if exists {
		return rerrors.NewInvalidChange(fmt.Sprintf("class '%s' already exists", newName))
	}

	if err := t.dropIndexes(ctx, desc); err != nil {
		return err
	}
	stmt := fmt.Sprintf("ALTER TABLE %s RENAME TO %s", quoteIdent(tableName(class)), quoteIdent(tableName(newName)))
	if _, err := t.tx.ExecContext(ctx, stmt); err != nil {
		return classify("failed to rename class", err)
	}
	desc.Name = newName
	if err := t.createIndexes(ctx, desc); err != nil {
		return err
	}

	updates := []string{
		"UPDATE realm_primary_keys SET class_name = ? WHERE class_name = ?",
		"UPDATE realm_links SET class_name = ? WHERE class_name = ?",
		"UPDATE realm_links SET target_class = ? WHERE target_class = ?",
	}
	for _, q := range updates {
		if _, err := t.tx.ExecContext(ctx, q, newName, class); err != nil {
			return classify("failed to update class metadata", err)
		}
	}
	return nil
}

// AddColumn adds a field to a class. Adding a field that already exists with
// the same type, nullability and link target is a no-op; any other collision
// is an error. Index and primary key flags on the descriptor are applied too.
func (t *Tx) AddColumn(ctx context.Context, class string, field types.FieldDescriptor) error {
	if err := field.Validate(); err != nil {
		return rerrors.NewInvalidChange(fmt.Sprintf("class '%s': %v", class, err))
	}
	desc, err := t.readClass(ctx, class)
	if err != nil {
		return err
	}

	if existing, ok := desc.Field(field.Name); ok {
		if existing.Type != field.Type || existing.Nullable != field.Nullable || existing.LinkTarget != field.LinkTarget {
			return rerrors.NewInvalidChange(fmt.Sprintf("field '%s' already exists in class '%s' with a different definition", field.Name, class))
		}
	} else {
		if field.Type.IsLink() {
			ok, err := t.HasTable(ctx, field.LinkTarget)
			if err != nil {
				return err
			}
			if !ok {
				return rerrors.NewInvalidChange(fmt.Sprintf("field '%s' links to unknown class '%s'", field.Name, field.LinkTarget))
			}
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", quoteIdent(tableName(class)), columnDef(field))
		if _, err := t.tx.ExecContext(ctx, stmt); err != nil {
			return classify("failed to add field", err)
		}
		if field.Type.IsLink() {
			_, err := t.tx.ExecContext(ctx,
				"INSERT INTO realm_links (class_name, field_name, target_class) VALUES (?, ?, ?)",
				class, field.Name, field.LinkTarget)
			if err != nil {
				return classify("failed to record link target", err)
			}
		}
	}

	if field.Indexed || field.PrimaryKey {
		if err := t.AddSearchIndex(ctx, class, field.Name); err != nil {
			return err
		}
	}
	if field.PrimaryKey {
		return t.SetPrimaryKey(ctx, class, field.Name)
	}
	return nil
}

// RemoveColumn removes a field and its data. Column positions of the fields
// after it shift down.
func (t *Tx) RemoveColumn(ctx context.Context, class, field string) error {
	desc, err := t.readClass(ctx, class)
	if err != nil {
		return err
	}
	if _, ok := desc.Field(field); !ok {
		return rerrors.NewInvalidChange(fmt.Sprintf("field '%s' does not exist in class '%s'", field, class))
	}

	if err := t.rebuild(ctx, desc, rebuildPlan{drop: field}); err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(ctx,
		"DELETE FROM realm_primary_keys WHERE class_name = ? AND field_name = ?", class, field); err != nil {
		return classify("failed to clear primary key", err)
	}
	if _, err := t.tx.ExecContext(ctx,
		"DELETE FROM realm_links WHERE class_name = ? AND field_name = ?", class, field); err != nil {
		return classify("failed to clear link target", err)
	}
	return nil
}

// RenameColumn renames a field, keeping its data, index and primary key.
func (t *Tx) RenameColumn(ctx context.Context, class, field, newName string) error {
	if !types.ValidateName(newName) || newName == types.ReservedField {
		return rerrors.NewInvalidChange(fmt.Sprintf("invalid field name %q", newName))
	}
	desc, err := t.readClass(ctx, class)
	if err != nil {
		return err
	}
	f, ok := desc.Field(field)
	if !ok {
		return rerrors.NewInvalidChange(fmt.Sprintf("field '%s' does not exist in class '%s'", field, class))
	}
	if _, taken := desc.Field(newName); taken {
		return rerrors.NewInvalidChange(fmt.Sprintf("field '%s' already exists in class '%s'", newName, class))
	}

	if f.Indexed {
		if err := t.dropIndex(ctx, class, field); err != nil {
			return err
		}
	}
	stmt := fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s",
		quoteIdent(tableName(class)), quoteIdent(field), quoteIdent(newName))
	if _, err := t.tx.ExecContext(ctx, stmt); err != nil {
		return classify("failed to rename field", err)
	}
	if f.Indexed {
		if err := t.createIndex(ctx, class, newName); err != nil {
			return err
		}
	}

	updates := []string{
		"UPDATE realm_primary_keys SET field_name = ? WHERE class_name = ? AND field_name = ?",
		"UPDATE realm_links SET field_name = ? WHERE class_name = ? AND field_name = ?",
	}
	for _, q := range updates {
		if _, err := t.tx.ExecContext(ctx, q, newName, class, field); err != nil {
			return classify("failed to update field metadata", err)
		}
	}
	return nil
}

// AddSearchIndex indexes a field. Indexing an indexed field is a no-op.
func (t *Tx) AddSearchIndex(ctx context.Context, class, field string) error {
	desc, err := t.readClass(ctx, class)
	if err != nil {
		return err
	}
	f, ok := desc.Field(field)
	if !ok {
		return rerrors.NewInvalidChange(fmt.Sprintf("field '%s' does not exist in class '%s'", field, class))
	}
	if !f.Type.Indexable() {
		return rerrors.NewInvalidChange(fmt.Sprintf("field '%s' of type %s cannot be indexed", field, f.Type))
	}
	if f.Indexed {
		return nil
	}
	return t.createIndex(ctx, class, field)
}

// RemoveSearchIndex drops a field's index. Removing an absent index is a no-op.
func (t *Tx) RemoveSearchIndex(ctx context.Context, class, field string) error {
	desc, err := t.readClass(ctx, class)
	if err != nil {
		return err
	}
	f, ok := desc.Field(field)
	if !ok {
		return rerrors.NewInvalidChange(fmt.Sprintf("field '%s' does not exist in class '%s'", field, class))
	}
	if f.PrimaryKey {
		return rerrors.NewInvalidChange(fmt.Sprintf("cannot remove the index of primary key field '%s'", field))
	}
	if !f.Indexed {
		return nil
	}
	return t.dropIndex(ctx, class, field)
}

// HasSearchIndex reports whether a field carries a search index.
func (t *Tx) HasSearchIndex(ctx context.Context, class, field string) (bool, error) {
	if err := t.requireTable(ctx, class); err != nil {
		return false, err
	}
	indexed, err := indexedColumns(ctx, t.tx, class)
	if err != nil {
		return false, err
	}
	return indexed[field], nil
}

// ConvertColumnToNullable lets a required field accept nulls. Existing values
// are kept. Converting a nullable field is a no-op.
func (t *Tx) ConvertColumnToNullable(ctx context.Context, class, field string) error {
	desc, err := t.readClass(ctx, class)
	if err != nil {
		return err
	}
	f, ok := desc.Field(field)
	if !ok {
		return rerrors.NewInvalidChange(fmt.Sprintf("field '%s' does not exist in class '%s'", field, class))
	}
	if f.Type.IsLink() {
		return rerrors.NewInvalidChange(fmt.Sprintf("nullability of %s field '%s' cannot be changed", f.Type, field))
	}
	if f.PrimaryKey {
		return rerrors.NewInvalidChange(fmt.Sprintf("primary key field '%s' cannot be nullable", field))
	}
	if f.Nullable {
		return nil
	}
	return t.rebuild(ctx, desc, rebuildPlan{convert: field, nullable: true})
}

// ConvertColumnToNotNullable makes a nullable field required. Existing nulls
// are replaced by def; with a nil def any null fails the conversion with
// NULL_VALUES_PRESENT. Converting a required field is a no-op.
func (t *Tx) ConvertColumnToNotNullable(ctx context.Context, class, field string, def any) error {
	desc, err := t.readClass(ctx, class)
	if err != nil {
		return err
	}
	f, ok := desc.Field(field)
	if !ok {
		return rerrors.NewInvalidChange(fmt.Sprintf("field '%s' does not exist in class '%s'", field, class))
	}
	if f.Type.IsLink() {
		return rerrors.NewInvalidChange(fmt.Sprintf("nullability of %s field '%s' cannot be changed", f.Type, field))
	}
	if !f.Nullable {
		return nil
	}

	if def == nil {
		var nulls int64
		query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s IS NULL", quoteIdent(tableName(class)), quoteIdent(field))
		if err := t.tx.QueryRowContext(ctx, query).Scan(&nulls); err != nil {
			return classify("failed to count nulls", err)
		}
		if nulls > 0 {
			return rerrors.NewStorageError(rerrors.CodeNullValuesPresent,
				fmt.Sprintf("field '%s.%s' has %d null values and no default was given", class, field, nulls), nil)
		}
	}
	return t.rebuild(ctx, desc, rebuildPlan{convert: field, nullable: false, def: def})
}

// SetPrimaryKey designates field as the class primary key, replacing any
// previous designation. The field is indexed and its values must be unique.
func (t *Tx) SetPrimaryKey(ctx context.Context, class, field string) error {
	desc, err := t.readClass(ctx, class)
	if err != nil {
		return err
	}
	f, ok := desc.Field(field)
	if !ok {
		return rerrors.NewInvalidChange(fmt.Sprintf("field '%s' does not exist in class '%s'", field, class))
	}
	if f.Type != types.Integer && f.Type != types.String {
		return rerrors.NewInvalidChange(fmt.Sprintf("field '%s' of type %s cannot be a primary key", field, f.Type))
	}
	if f.Nullable {
		return rerrors.NewInvalidChange(fmt.Sprintf("field '%s' must be required to be a primary key", field))
	}
	if f.PrimaryKey && f.Indexed {
		return nil
	}

	var dup any
	query := fmt.Sprintf("SELECT %[1]s FROM %[2]s GROUP BY %[1]s HAVING COUNT(*) > 1 LIMIT 1",
		quoteIdent(field), quoteIdent(tableName(class)))
	err = t.tx.QueryRowContext(ctx, query).Scan(&dup)
	switch {
	case err == nil:
		return rerrors.NewValidationError(rerrors.CodeDuplicatePrimaryKey,
			fmt.Sprintf("field '%s.%s' has duplicate value %v", class, field, dup))
	case err != sql.ErrNoRows:
		return classify("failed to check primary key values", err)
	}

	if !f.Indexed {
		if err := t.createIndex(ctx, class, field); err != nil {
			return err
		}
	}
	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO realm_primary_keys (class_name, field_name) VALUES (?, ?)
		 ON CONFLICT(class_name) DO UPDATE SET field_name = excluded.field_name`, class, field)
	if err != nil {
		return classify("failed to set primary key", err)
	}
	return nil
}

// RemovePrimaryKey clears the class primary key. The field keeps its index.
func (t *Tx) RemovePrimaryKey(ctx context.Context, class string) error {
	if err := t.requireTable(ctx, class); err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(ctx, "DELETE FROM realm_primary_keys WHERE class_name = ?", class); err != nil {
		return classify("failed to remove primary key", err)
	}
	return nil
}

// PrimaryKey returns the primary key field of a class, or "".
func (t *Tx) PrimaryKey(ctx context.Context, class string) (string, error) {
	if err := t.requireTable(ctx, class); err != nil {
		return "", err
	}
	return primaryKey(ctx, t.tx, class)
}

// Apply performs one recorded schema change.
func (t *Tx) Apply(ctx context.Context, c types.SchemaChange) error {
	switch c.Op {
	case types.OpCreateClass:
		return t.CreateTable(ctx, c.Class)
	case types.OpRemoveClass:
		return t.DropTable(ctx, c.Class)
	case types.OpRenameClass:
		return t.RenameTable(ctx, c.Class, c.NewName)
	case types.OpAddField:
		if c.Descriptor == nil {
			return rerrors.NewInvalidChange(fmt.Sprintf("%s: missing field descriptor", c))
		}
		return t.AddColumn(ctx, c.Class, *c.Descriptor)
	case types.OpRemoveField:
		return t.RemoveColumn(ctx, c.Class, c.Field)
	case types.OpRenameField:
		return t.RenameColumn(ctx, c.Class, c.Field, c.NewName)
	case types.OpAddIndex:
		return t.AddSearchIndex(ctx, c.Class, c.Field)
	case types.OpRemoveIndex:
		return t.RemoveSearchIndex(ctx, c.Class, c.Field)
	case types.OpSetPrimaryKey:
		return t.SetPrimaryKey(ctx, c.Class, c.Field)
	case types.OpRemovePrimaryKey:
		return t.RemovePrimaryKey(ctx, c.Class)
	case types.OpSetNullable:
		return t.ConvertColumnToNullable(ctx, c.Class, c.Field)
	case types.OpSetRequired:
		return t.ConvertColumnToNotNullable(ctx, c.Class, c.Field, c.Default)
	default:
		return rerrors.NewInvalidChange(fmt.Sprintf("unknown schema change %q", c.Op))
	}
}

func (t *Tx) requireTable(ctx context.Context, class string) error {
	exists, err := t.HasTable(ctx, class)
	if err != nil {
		return err
	}
	if !exists {
		return rerrors.NewInvalidChange(fmt.Sprintf("class '%s' does not exist", class))
	}
	return nil
}

func (t *Tx) readClass(ctx context.Context, class string) (types.ClassDescriptor, error) {
	if err := t.requireTable(ctx, class); err != nil {
		return types.ClassDescriptor{}, err
	}
	return readClass(ctx, t.tx, class)
}

func (t *Tx) createIndex(ctx context.Context, class, field string) error {
	stmt := fmt.Sprintf("CREATE INDEX %s ON %s (%s)",
		quoteIdent(indexName(class, field)), quoteIdent(tableName(class)), quoteIdent(field))
	if _, err := t.tx.ExecContext(ctx, stmt); err != nil {
		return classify("failed to create index", err)
	}
	return nil
}

// dropIndex drops every single-column index on field, whatever its name.
func (t *Tx) dropIndex(ctx context.Context, class, field string) error {
	names, err := indexNames(ctx, t.tx, class)
	if err != nil {
		return err
	}
	for _, name := range names {
		cols, err := indexColumns(ctx, t.tx, name)
		if err != nil {
			return err
		}
		if len(cols) != 1 || cols[0] != field {
			continue
		}
		if _, err := t.tx.ExecContext(ctx, "DROP INDEX "+quoteIdent(name)); err != nil {
			return classify("failed to drop index", err)
		}
	}
	return nil
}

func (t *Tx) dropIndexes(ctx context.Context, desc types.ClassDescriptor) error {
	for _, f := range desc.Fields {
		if f.Indexed {
			if err := t.dropIndex(ctx, desc.Name, f.Name); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *Tx) createIndexes(ctx context.Context, desc types.ClassDescriptor) error {
	for _, f := range desc.Fields {
		if f.Indexed {
			if err := t.createIndex(ctx, desc.Name, f.Name); err != nil {
				return err
			}
		}
	}
	return nil
}
