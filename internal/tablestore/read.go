package tablestore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/arkilian/realmstore/pkg/types"
)

// readSchema reads every class table. Classes are sorted by name; fields keep
// their physical column order and carry their column position.
func readSchema(ctx context.Context, q querier) (*types.Schema, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name LIKE 'class\_%' ESCAPE '\' ORDER BY name`)
	if err != nil {
		return nil, classify("failed to list classes", err)
	}
	var classes []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, classify("failed to scan class", err)
		}
		if strings.HasSuffix(name, rebuildSuffix) {
			continue
		}
		classes = append(classes, strings.TrimPrefix(name, classTablePrefix))
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, classify("error iterating classes", err)
	}
	rows.Close()

	schema := &types.Schema{}
	for _, class := range classes {
		desc, err := readClass(ctx, q, class)
		if err != nil {
			return nil, err
		}
		schema.Classes = append(schema.Classes, desc)
	}
	return schema, nil
}

// readClass reads one class's columns, indexes, primary key and link targets.
func readClass(ctx context.Context, q querier, class string) (types.ClassDescriptor, error) {
	desc := types.ClassDescriptor{Name: class}

	rows, err := q.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(tableName(class))))
	if err != nil {
		return desc, classify(fmt.Sprintf("failed to read columns of %s", class), err)
	}
	for rows.Next() {
		var (
			cid     int
			name    string
			decl    string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &decl, &notNull, &dflt, &pk); err != nil {
			rows.Close()
			return desc, classify("failed to scan column", err)
		}
		if name == types.ReservedField {
			continue
		}
		typ, ok := types.FieldTypeFromColumn(decl)
		if !ok {
			rows.Close()
			return desc, fmt.Errorf("tablestore: column %s.%s has unsupported type %q", class, name, decl)
		}
		desc.Fields = append(desc.Fields, types.FieldDescriptor{
			Name:     name,
			Type:     typ,
			Nullable: notNull == 0,
			Position: cid,
		})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return desc, classify("error iterating columns", err)
	}
	rows.Close()

	if len(desc.Fields) == 0 {
		exists, err := tableExists(ctx, q, class)
		if err != nil {
			return desc, err
		}
		if !exists {
			return desc, fmt.Errorf("tablestore: class %q does not exist", class)
		}
	}

	indexed, err := indexedColumns(ctx, q, class)
	if err != nil {
		return desc, err
	}
	pk, err := primaryKey(ctx, q, class)
	if err != nil {
		return desc, err
	}
	links, err := linkTargets(ctx, q, class)
	if err != nil {
		return desc, err
	}

	for i := range desc.Fields {
		f := &desc.Fields[i]
		f.Indexed = indexed[f.Name]
		f.PrimaryKey = f.Name == pk
		f.LinkTarget = links[f.Name]
	}
	return desc, nil
}

func tableExists(ctx context.Context, q querier, class string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", tableName(class)).Scan(&n)
	if err != nil {
		return false, classify("failed to look up class", err)
	}
	return n > 0, nil
}

// indexedColumns returns the columns covered by a single-column, explicitly
// created index.
func indexedColumns(ctx context.Context, q querier, class string) (map[string]bool, error) {
	names, err := indexNames(ctx, q, class)
	if err != nil {
		return nil, err
	}

	indexed := make(map[string]bool)
	for _, name := range names {
		cols, err := indexColumns(ctx, q, name)
		if err != nil {
			return nil, err
		}
		if len(cols) == 1 {
			indexed[cols[0]] = true
		}
	}
	return indexed, nil
}

func indexNames(ctx context.Context, q querier, class string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT name FROM pragma_index_list(?) WHERE origin = 'c'", tableName(class))
	if err != nil {
		return nil, classify("failed to list indexes", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, classify("failed to scan index", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("error iterating indexes", err)
	}
	return names, nil
}

func indexColumns(ctx context.Context, q querier, index string) ([]string, error) {
	rows, err := q.QueryContext(ctx, "SELECT name FROM pragma_index_info(?)", index)
	if err != nil {
		return nil, classify("failed to read index", err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name sql.NullString
		if err := rows.Scan(&name); err != nil {
			return nil, classify("failed to scan index column", err)
		}
		cols = append(cols, name.String)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("error iterating index columns", err)
	}
	return cols, nil
}

func primaryKey(ctx context.Context, q querier, class string) (string, error) {
	var field string
	err := q.QueryRowContext(ctx,
		"SELECT field_name FROM realm_primary_keys WHERE class_name = ?", class).Scan(&field)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", classify("failed to read primary key", err)
	}
	return field, nil
}

func linkTargets(ctx context.Context, q querier, class string) (map[string]string, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT field_name, target_class FROM realm_links WHERE class_name = ?", class)
	if err != nil {
		return nil, classify("failed to read links", err)
	}
	defer rows.Close()

	links := make(map[string]string)
	for rows.Next() {
		var field, target string
		if err := rows.Scan(&field, &target); err != nil {
			return nil, classify("failed to scan link", err)
		}
		links[field] = target
	}
	if err := rows.Err(); err != nil {
		return nil, classify("error iterating links", err)
	}
	return links, nil
}
