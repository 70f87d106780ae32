package tablestore

import (
	"context"
	"fmt"
	"strings"

	"github.com/arkilian/realmstore/pkg/types"
)

// Row is one object as stored: values indexed by column position, with the
// row key at position 0.
type Row []any

// Insert adds an object and returns its row key. Columns not named take their
// default, which is null for nullable fields.
func (d *DB) Insert(ctx context.Context, class string, columns []string, values []any) (int64, error) {
	if len(columns) != len(values) {
		return 0, fmt.Errorf("tablestore: %d columns but %d values", len(columns), len(values))
	}

	var query string
	if len(columns) == 0 {
		query = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", quoteIdent(tableName(class)))
	} else {
		quoted := make([]string, len(columns))
		for i, c := range columns {
			quoted[i] = quoteIdent(c)
		}
		query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			quoteIdent(tableName(class)), strings.Join(quoted, ", "),
			strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", "))
	}

	res, err := d.db.ExecContext(ctx, query, values...)
	if err != nil {
		return 0, classify(fmt.Sprintf("failed to insert into %s", class), err)
	}
	key, err := res.LastInsertId()
	if err != nil {
		return 0, classify("failed to read row key", err)
	}
	return key, nil
}

// SelectEqual returns every object whose column equals value, in row key
// order. A nil value matches nulls.
func (d *DB) SelectEqual(ctx context.Context, class, column string, value any) ([]Row, error) {
	query, args := equalQuery("*", class, column, value)
	rows, err := d.db.QueryContext(ctx, query+" ORDER BY "+quoteIdent(types.ReservedField), args...)
	if err != nil {
		return nil, classify(fmt.Sprintf("failed to query %s", class), err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, classify("failed to read columns", err)
	}

	var out []Row
	for rows.Next() {
		row := make(Row, len(cols))
		ptrs := make([]any, len(cols))
		for i := range row {
			ptrs[i] = &row[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, classify("failed to scan object", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("error iterating objects", err)
	}
	return out, nil
}

// Count returns the number of objects in a class.
func (d *DB) Count(ctx context.Context, class string) (int64, error) {
	var n int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteIdent(tableName(class)))
	if err := d.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, classify(fmt.Sprintf("failed to count %s", class), err)
	}
	return n, nil
}

// CountEqual returns the number of objects whose column equals value.
func (d *DB) CountEqual(ctx context.Context, class, column string, value any) (int64, error) {
	var n int64
	query, args := equalQuery("COUNT(*)", class, column, value)
	if err := d.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, classify(fmt.Sprintf("failed to count %s", class), err)
	}
	return n, nil
}

func equalQuery(what, class, column string, value any) (string, []any) {
	if value == nil {
		return fmt.Sprintf("SELECT %s FROM %s WHERE %s IS NULL", what, quoteIdent(tableName(class)), quoteIdent(column)), nil
	}
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", what, quoteIdent(tableName(class)), quoteIdent(column)), []any{value}
}
