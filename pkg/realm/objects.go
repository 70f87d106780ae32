package realm

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	rerrors "github.com/arkilian/realmstore/internal/errors"
	"github.com/arkilian/realmstore/internal/tablestore"
	"github.com/arkilian/realmstore/pkg/types"
)

// Object is one stored object read through a handle.
type Object struct {
	class *types.ClassDescriptor
	cols  *ColumnIndexTable
	row   tablestore.Row
}

// Key returns the object's row key.
func (o Object) Key() int64 {
	k, _ := o.row[0].(int64)
	return k
}

// Get returns a field value converted to its Go type: bool, int64, float64,
// string, []byte, time.Time, an int64 row key for Object links and []int64 for
// List links. Null values are returned as nil.
func (o Object) Get(field string) (any, bool) {
	f, ok := o.class.Field(field)
	if !ok {
		return nil, false
	}
	pos, ok := o.cols.Position(o.class.Name, field)
	if !ok || pos >= len(o.row) {
		return nil, false
	}
	return fromColumn(f.Type, o.row[pos]), true
}

// Insert adds an object to class and returns its row key. Fields not given take
// their zero value, or null when nullable. Writing null to a required field or
// a duplicate primary key is rejected.
func (r *Realm) Insert(ctx context.Context, class string, values map[string]any) (int64, error) {
	if err := r.checkOpen(); err != nil {
		return 0, err
	}
	desc, err := r.class(class)
	if err != nil {
		return 0, err
	}

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	cols := make([]string, 0, len(names))
	args := make([]any, 0, len(names))
	for _, name := range names {
		f, err := r.field(desc, name)
		if err != nil {
			return 0, err
		}
		v := values[name]
		if v == nil && !f.Nullable {
			return 0, rerrors.NewValidationError(rerrors.CodeRequiredField,
				fmt.Sprintf("field '%s.%s' is required and cannot be null", class, name)).WithPath(r.path)
		}
		cv, err := toColumn(f.Type, v)
		if err != nil {
			return 0, rerrors.NewValidationError(rerrors.CodeInvalidValue,
				fmt.Sprintf("field '%s.%s': %v", class, name, err)).WithPath(r.path)
		}
		cols = append(cols, name)
		args = append(args, cv)
	}

	if pk := desc.PrimaryKey(); pk != "" {
		v, ok := values[pk]
		if !ok {
			return 0, rerrors.NewValidationError(rerrors.CodeRequiredField,
				fmt.Sprintf("primary key '%s.%s' must be set", class, pk)).WithPath(r.path)
		}
		n, err := r.db.CountEqual(ctx, class, pk, v)
		if err != nil {
			return 0, err
		}
		if n > 0 {
			return 0, rerrors.NewValidationError(rerrors.CodeDuplicatePrimaryKey,
				fmt.Sprintf("primary key value %v already exists in '%s'", v, class)).WithPath(r.path)
		}
	}

	key, err := r.db.Insert(ctx, class, cols, args)
	if err != nil {
		return 0, err
	}
	r.logger.Debug("inserted object", "class", class, "key", key)
	return key, nil
}

// FindEqual returns the objects of class whose field equals value, in
// insertion order. A nil value matches nulls.
func (r *Realm) FindEqual(ctx context.Context, class, field string, value any) ([]Object, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}
	desc, err := r.class(class)
	if err != nil {
		return nil, err
	}
	f, err := r.field(desc, field)
	if err != nil {
		return nil, err
	}
	cv, err := toColumn(f.Type, value)
	if err != nil {
		return nil, rerrors.NewValidationError(rerrors.CodeInvalidValue,
			fmt.Sprintf("field '%s.%s': %v", class, field, err)).WithPath(r.path)
	}

	rows, err := r.db.SelectEqual(ctx, class, field, cv)
	if err != nil {
		return nil, err
	}
	out := make([]Object, len(rows))
	for i, row := range rows {
		out[i] = Object{class: desc, cols: r.cols, row: row}
	}
	return out, nil
}

// Count returns the number of objects in class.
func (r *Realm) Count(ctx context.Context, class string) (int64, error) {
	if err := r.checkOpen(); err != nil {
		return 0, err
	}
	if _, err := r.class(class); err != nil {
		return 0, err
	}
	return r.db.Count(ctx, class)
}

func (r *Realm) class(name string) (*types.ClassDescriptor, error) {
	desc, ok := r.schema.Class(name)
	if !ok {
		return nil, rerrors.NewValidationError(rerrors.CodeUnknownField,
			fmt.Sprintf("class '%s' is not part of the schema", name)).WithPath(r.path)
	}
	return desc, nil
}

func (r *Realm) field(desc *types.ClassDescriptor, name string) (*types.FieldDescriptor, error) {
	f, ok := desc.Field(name)
	if !ok {
		return nil, rerrors.NewValidationError(rerrors.CodeUnknownField,
			fmt.Sprintf("field '%s' is not declared in class '%s'", name, desc.Name)).WithPath(r.path)
	}
	if _, ok := r.cols.Position(desc.Name, name); !ok {
		return nil, rerrors.NewValidationError(rerrors.CodeUnknownField,
			fmt.Sprintf("field '%s.%s' has no column in this realm", desc.Name, name)).WithPath(r.path)
	}
	return f, nil
}

// toColumn converts a Go value to its stored representation.
func toColumn(typ types.FieldType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch typ {
	case types.Date:
		switch t := v.(type) {
		case time.Time:
			return t.UnixMilli(), nil
		case int64:
			return t, nil
		}
		return nil, fmt.Errorf("expected time.Time, got %T", v)
	case types.List:
		keys, ok := v.([]int64)
		if !ok {
			return nil, fmt.Errorf("expected []int64, got %T", v)
		}
		if keys == nil {
			keys = []int64{}
		}
		data, err := json.Marshal(keys)
		if err != nil {
			return nil, err
		}
		return string(data), nil
	}
	return v, nil
}

// fromColumn converts a stored value back to the field's Go type.
func fromColumn(typ types.FieldType, v any) any {
	if v == nil {
		return nil
	}
	switch typ {
	case types.Boolean:
		switch b := v.(type) {
		case int64:
			return b != 0
		case bool:
			return b
		}
	case types.Float, types.Double:
		switch n := v.(type) {
		case int64:
			return float64(n)
		case float64:
			return n
		}
	case types.String:
		if b, ok := v.([]byte); ok {
			return string(b)
		}
	case types.Date:
		if ms, ok := v.(int64); ok {
			return time.UnixMilli(ms).UTC()
		}
	case types.List:
		var raw []byte
		switch s := v.(type) {
		case string:
			raw = []byte(s)
		case []byte:
			raw = s
		}
		var keys []int64
		if err := json.Unmarshal(raw, &keys); err == nil {
			return keys
		}
		return []int64{}
	}
	return v
}
