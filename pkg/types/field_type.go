package types

import (
	"fmt"
	"strings"
)

// FieldType is the persisted type of a field.
type FieldType int

const (
	Boolean FieldType = iota + 1
	Integer
	Float
	Double
	String
	Binary
	Date
	Object
	List
)

var fieldTypeNames = map[FieldType]string{
	Boolean: "boolean",
	Integer: "integer",
	Float:   "float",
	Double:  "double",
	String:  "string",
	Binary:  "binary",
	Date:    "date",
	Object:  "object",
	List:    "list",
}

// columnTypes maps field types to the declared column type in the store.
// The declared names are chosen so neither SQLite type affinity nor the driver
// rewrites values; dates are stored as Unix milliseconds.
var columnTypes = map[FieldType]string{
	Boolean: "BOOLEAN",
	Integer: "INTEGER",
	Float:   "FLOAT",
	Double:  "DOUBLE",
	String:  "TEXT",
	Binary:  "BLOB",
	Date:    "DATE_MS",
	Object:  "LINK",
	List:    "LINKLIST",
}

// String returns the lowercase type name.
func (t FieldType) String() string {
	if name, ok := fieldTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("FieldType(%d)", int(t))
}

// Valid reports whether t is a known field type.
func (t FieldType) Valid() bool {
	_, ok := fieldTypeNames[t]
	return ok
}

// IsLink reports whether the field references another class.
func (t FieldType) IsLink() bool {
	return t == Object || t == List
}

// Indexable reports whether a search index may be placed on fields of this type.
func (t FieldType) Indexable() bool {
	switch t {
	case Boolean, Integer, String, Date:
		return true
	}
	return false
}

// DefaultNullable is the nullability a field gets when no modifier says otherwise.
// Value types are required, reference-like types are nullable and lists are never null.
func (t FieldType) DefaultNullable() bool {
	switch t {
	case String, Binary, Date, Object:
		return true
	}
	return false
}

// ColumnType returns the declared column type used by the store.
func (t FieldType) ColumnType() string {
	return columnTypes[t]
}

// ParseFieldType parses a lowercase or uppercase type name.
func ParseFieldType(s string) (FieldType, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for t, n := range fieldTypeNames {
		if n == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown field type %q", s)
}

// FieldTypeFromColumn maps a declared column type back to its field type.
func FieldTypeFromColumn(decl string) (FieldType, bool) {
	decl = strings.ToUpper(strings.TrimSpace(decl))
	for t, c := range columnTypes {
		if c == decl {
			return t, true
		}
	}
	return 0, false
}

// MarshalText implements encoding.TextMarshaler.
func (t FieldType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid field type %d", int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *FieldType) UnmarshalText(text []byte) error {
	parsed, err := ParseFieldType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
