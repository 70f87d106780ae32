package types

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"

	"github.com/spaolacci/murmur3"
)

// Unversioned is the schema version of a store that has never been initialized.
const Unversioned int64 = -1

// ReservedField is the name of the hidden row key column every class table carries.
const ReservedField = "_key"

// Schema is an ordered set of class descriptors. The same shape describes the
// schema an application expects and the schema read back from a store.
type Schema struct {
	// Classes in declaration order (expected) or sorted by name (actual)
	Classes []ClassDescriptor `json:"classes" yaml:"classes"`
}

// ClassDescriptor describes one persisted type.
type ClassDescriptor struct {
	// Name is the class name
	Name string `json:"name" yaml:"name"`

	// Fields in declaration order (expected) or physical order (actual)
	Fields []FieldDescriptor `json:"fields" yaml:"fields"`
}

// FieldDescriptor describes a single field of a class.
type FieldDescriptor struct {
	// Name is unique within the class
	Name string `json:"name" yaml:"name"`

	// Type is the persisted type; no implicit widening between types
	Type FieldType `json:"type" yaml:"type"`

	// Nullable indicates whether the field accepts null values
	Nullable bool `json:"nullable" yaml:"nullable"`

	// Indexed indicates whether the field carries a search index
	Indexed bool `json:"indexed" yaml:"indexed"`

	// PrimaryKey marks the class's primary key; at most one per class
	PrimaryKey bool `json:"primary_key" yaml:"primary_key"`

	// LinkTarget is the referenced class for Object and List fields
	LinkTarget string `json:"link_target,omitempty" yaml:"link_target,omitempty"`

	// Position is the physical column position. Only set on schemas read from a store.
	Position int `json:"-" yaml:"-"`
}

// Modifier adjusts a field descriptor built with Field.
type Modifier func(*FieldDescriptor)

var (
	// Required makes the field non-nullable.
	Required Modifier = func(f *FieldDescriptor) { f.Nullable = false }
	// Nullable makes the field accept nulls.
	Nullable Modifier = func(f *FieldDescriptor) { f.Nullable = true }
	// Indexed adds a search index to the field.
	Indexed Modifier = func(f *FieldDescriptor) { f.Indexed = true }
	// PrimaryKey designates the field as the class primary key. Primary keys are required and indexed.
	PrimaryKey Modifier = func(f *FieldDescriptor) {
		f.PrimaryKey = true
		f.Indexed = true
		f.Nullable = false
	}
)

// LinkTo sets the target class of an Object or List field.
func LinkTo(class string) Modifier {
	return func(f *FieldDescriptor) { f.LinkTarget = class }
}

// Field builds a field descriptor with the type's default nullability.
func Field(name string, typ FieldType, mods ...Modifier) FieldDescriptor {
	f := FieldDescriptor{
		Name:     name,
		Type:     typ,
		Nullable: typ.DefaultNullable(),
	}
	for _, mod := range mods {
		mod(&f)
	}
	return f
}

// Class builds a class descriptor.
func Class(name string, fields ...FieldDescriptor) ClassDescriptor {
	return ClassDescriptor{Name: name, Fields: fields}
}

// NewSchema builds a schema from classes in declaration order.
func NewSchema(classes ...ClassDescriptor) *Schema {
	return &Schema{Classes: classes}
}

// Class returns the class with the given name.
func (s *Schema) Class(name string) (*ClassDescriptor, bool) {
	for i := range s.Classes {
		if s.Classes[i].Name == name {
			return &s.Classes[i], true
		}
	}
	return nil, false
}

// ClassNames returns the class names in schema order.
func (s *Schema) ClassNames() []string {
	names := make([]string, len(s.Classes))
	for i, c := range s.Classes {
		names[i] = c.Name
	}
	return names
}

// Clone returns a deep copy of the schema.
func (s *Schema) Clone() *Schema {
	out := &Schema{Classes: make([]ClassDescriptor, len(s.Classes))}
	for i, c := range s.Classes {
		out.Classes[i] = c.Clone()
	}
	return out
}

// Field returns the field with the given name.
func (c *ClassDescriptor) Field(name string) (*FieldDescriptor, bool) {
	for i := range c.Fields {
		if c.Fields[i].Name == name {
			return &c.Fields[i], true
		}
	}
	return nil, false
}

// PrimaryKey returns the name of the primary key field, or "" if none.
func (c *ClassDescriptor) PrimaryKey() string {
	for _, f := range c.Fields {
		if f.PrimaryKey {
			return f.Name
		}
	}
	return ""
}

// FieldNames returns the field names in descriptor order.
func (c *ClassDescriptor) FieldNames() []string {
	names := make([]string, len(c.Fields))
	for i, f := range c.Fields {
		names[i] = f.Name
	}
	return names
}

// Clone returns a deep copy of the class.
func (c ClassDescriptor) Clone() ClassDescriptor {
	out := ClassDescriptor{Name: c.Name, Fields: make([]FieldDescriptor, len(c.Fields))}
	copy(out.Fields, c.Fields)
	return out
}

// Validate checks the schema's structural rules: valid and unique names, known
// types, at most one required primary key per class, indexable index targets
// and resolvable link targets.
func (s *Schema) Validate() error {
	seen := make(map[string]bool, len(s.Classes))
	for _, c := range s.Classes {
		if !ValidateName(c.Name) {
			return fmt.Errorf("invalid class name %q", c.Name)
		}
		if seen[c.Name] {
			return fmt.Errorf("duplicate class %q", c.Name)
		}
		seen[c.Name] = true
	}

	for _, c := range s.Classes {
		if err := c.validate(); err != nil {
			return err
		}
		for _, f := range c.Fields {
			if f.Type.IsLink() && !seen[f.LinkTarget] {
				return fmt.Errorf("field '%s.%s' links to unknown class %q", c.Name, f.Name, f.LinkTarget)
			}
		}
	}
	return nil
}

func (c *ClassDescriptor) validate() error {
	fields := make(map[string]bool, len(c.Fields))
	pk := ""
	for _, f := range c.Fields {
		if err := f.Validate(); err != nil {
			return fmt.Errorf("class %q: %w", c.Name, err)
		}
		if fields[f.Name] {
			return fmt.Errorf("class %q: duplicate field %q", c.Name, f.Name)
		}
		fields[f.Name] = true
		if f.PrimaryKey {
			if pk != "" {
				return fmt.Errorf("class %q: multiple primary keys %q and %q", c.Name, pk, f.Name)
			}
			pk = f.Name
		}
	}
	return nil
}

// Validate checks the rules that apply to a single field.
func (f FieldDescriptor) Validate() error {
	if !ValidateName(f.Name) {
		return fmt.Errorf("invalid field name %q", f.Name)
	}
	if f.Name == ReservedField {
		return fmt.Errorf("field name %q is reserved", f.Name)
	}
	if !f.Type.Valid() {
		return fmt.Errorf("field %q: invalid type %d", f.Name, int(f.Type))
	}
	if f.Type.IsLink() {
		if f.LinkTarget == "" {
			return fmt.Errorf("field %q: %s field requires a link target", f.Name, f.Type)
		}
		if f.Type == List && f.Nullable {
			return fmt.Errorf("field %q: list fields cannot be nullable", f.Name)
		}
		if f.Type == Object && !f.Nullable {
			return fmt.Errorf("field %q: object fields must be nullable", f.Name)
		}
	} else if f.LinkTarget != "" {
		return fmt.Errorf("field %q: %s field cannot have a link target", f.Name, f.Type)
	}
	if f.Indexed && !f.Type.Indexable() {
		return fmt.Errorf("field %q: %s fields cannot be indexed", f.Name, f.Type)
	}
	if f.PrimaryKey {
		if f.Type != Integer && f.Type != String {
			return fmt.Errorf("field %q: %s fields cannot be primary keys", f.Name, f.Type)
		}
		if f.Nullable {
			return fmt.Errorf("field %q: primary keys cannot be nullable", f.Name)
		}
	}
	return nil
}

// Fingerprint returns a 128-bit murmur3 hash of the schema structure. Class and
// field order do not contribute, so stores that reached the same shape through
// different migrations share a fingerprint.
func (s *Schema) Fingerprint() string {
	classes := make([]ClassDescriptor, len(s.Classes))
	copy(classes, s.Classes)
	sort.Slice(classes, func(i, j int) bool { return classes[i].Name < classes[j].Name })

	h := murmur3.New128()
	for _, c := range classes {
		fields := make([]FieldDescriptor, len(c.Fields))
		copy(fields, c.Fields)
		sort.Slice(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })

		h.Write([]byte(c.Name))
		h.Write([]byte{0})
		for _, f := range fields {
			h.Write([]byte(f.Name))
			h.Write([]byte{0})
			h.Write([]byte(f.Type.String()))
			h.Write([]byte{0})
			h.Write([]byte(strconv.FormatBool(f.Nullable)))
			h.Write([]byte(strconv.FormatBool(f.Indexed || f.PrimaryKey)))
			h.Write([]byte(strconv.FormatBool(f.PrimaryKey)))
			h.Write([]byte(f.LinkTarget))
			h.Write([]byte{1})
		}
		h.Write([]byte{2})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ValidateName checks that a class or field name is a plain identifier:
// a letter or underscore followed by letters, digits or underscores, at most
// 100 characters.
func ValidateName(name string) bool {
	if len(name) == 0 || len(name) > 100 {
		return false
	}
	first := name[0]
	if (first < 'a' || first > 'z') && (first < 'A' || first > 'Z') && first != '_' {
		return false
	}
	for i := 1; i < len(name); i++ {
		c := name[i]
		if (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') && (c < '0' || c > '9') && c != '_' {
			return false
		}
	}
	return true
}
