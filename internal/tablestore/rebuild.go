package tablestore

import (
	"context"
	"fmt"
	"strings"

	"github.com/arkilian/realmstore/pkg/types"
)

// zeroDefaults are the column defaults of required fields. A required column
// added to a class with existing objects takes this value.
var zeroDefaults = map[types.FieldType]string{
	types.Boolean: "0",
	types.Integer: "0",
	types.Float:   "0.0",
	types.Double:  "0.0",
	types.String:  "''",
	types.Binary:  "X''",
	types.Date:    "0",
	types.List:    "'[]'",
}

// columnDef renders the column definition of a field.
func columnDef(f types.FieldDescriptor) string {
	def := quoteIdent(f.Name) + " " + f.Type.ColumnType()
	if !f.Nullable {
		def += " NOT NULL DEFAULT " + zeroDefaults[f.Type]
	}
	return def
}

// rebuildPlan describes how a class table is rewritten. SQLite cannot alter
// a column's constraints in place, so the table is copied.
type rebuildPlan struct {
	drop     string // field removed from the table
	convert  string // field whose nullability changes
	nullable bool   // target nullability of convert
	def      any    // replacement for nulls when convert becomes required
}

// rebuild copies a class into a new table shaped by plan, swaps it in and
// restores the indexes. Row keys are preserved so links stay valid.
func (t *Tx) rebuild(ctx context.Context, desc types.ClassDescriptor, plan rebuildPlan) error {
	table := tableName(desc.Name)
	tmp := table + rebuildSuffix

	defs := []string{quoteIdent(types.ReservedField) + " INTEGER PRIMARY KEY"}
	cols := []string{quoteIdent(types.ReservedField)}
	exprs := []string{quoteIdent(types.ReservedField)}
	var args []any
	var kept []types.FieldDescriptor

	for _, f := range desc.Fields {
		if f.Name == plan.drop {
			continue
		}
		expr := quoteIdent(f.Name)
		if f.Name == plan.convert {
			f.Nullable = plan.nullable
			if !plan.nullable && plan.def != nil {
				expr = fmt.Sprintf("COALESCE(%s, ?)", expr)
				args = append(args, plan.def)
			}
		}
		defs = append(defs, columnDef(f))
		cols = append(cols, quoteIdent(f.Name))
		exprs = append(exprs, expr)
		kept = append(kept, f)
	}

	stmts := []struct {
		query string
		args  []any
	}{
		{fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(tmp), strings.Join(defs, ", ")), nil},
		{fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
			quoteIdent(tmp), strings.Join(cols, ", "), strings.Join(exprs, ", "), quoteIdent(table)), args},
		{fmt.Sprintf("DROP TABLE %s", quoteIdent(table)), nil},
		{fmt.Sprintf("ALTER TABLE %s RENAME TO %s", quoteIdent(tmp), quoteIdent(table)), nil},
	}
	for _, s := range stmts {
		if _, err := t.tx.ExecContext(ctx, s.query, s.args...); err != nil {
			return classify(fmt.Sprintf("failed to rebuild class %s", desc.Name), err)
		}
	}

	return t.createIndexes(ctx, types.ClassDescriptor{Name: desc.Name, Fields: kept})
}
