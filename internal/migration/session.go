// Package migration runs migration procedures against a store. A procedure
// edits the schema through a Session, which checks each call against a working
// copy of the schema and records a change list; the Executor applies that list
// in one transaction and verifies the result before committing.
package migration

import (
	"fmt"

	rerrors "github.com/arkilian/realmstore/internal/errors"
	"github.com/arkilian/realmstore/pkg/types"
)

// Session is the dynamic schema handle passed to a migration procedure.
//
// Calls never fail loudly: the first invalid call is recorded and every later
// call becomes a no-op, so procedures can chain calls and check Err once. The
// executor fails the migration when Err is set.
type Session struct {
	schema  *types.Schema
	changes []types.SchemaChange
	err     error
}

// NewSession starts a session over the store's current schema.
func NewSession(actual *types.Schema) *Session {
	return &Session{schema: actual.Clone()}
}

// Err returns the first error recorded by the session.
func (s *Session) Err() error {
	return s.err
}

// Changes returns the recorded change list in call order.
func (s *Session) Changes() []types.SchemaChange {
	out := make([]types.SchemaChange, len(s.changes))
	copy(out, s.changes)
	return out
}

// Schema returns a copy of the schema as it will be after the recorded changes.
func (s *Session) Schema() *types.Schema {
	return s.schema.Clone()
}

// HasClass reports whether a class exists.
func (s *Session) HasClass(name string) bool {
	_, ok := s.schema.Class(name)
	return ok
}

// ClassNames returns the current class names.
func (s *Session) ClassNames() []string {
	return s.schema.ClassNames()
}

// Class returns the handle for an existing class. A missing class records an
// error.
func (s *Session) Class(name string) *Class {
	if s.err == nil && !s.HasClass(name) {
		s.fail("class '%s' does not exist", name)
	}
	return &Class{s: s, name: name}
}

// CreateClass adds an empty class. Creating a class that exists is an error.
func (s *Session) CreateClass(name string) *Class {
	c := &Class{s: s, name: name}
	if s.err != nil {
		return c
	}
	switch {
	case !types.ValidateName(name):
		s.fail("invalid class name %q", name)
	case s.HasClass(name):
		s.fail("class '%s' already exists", name)
	default:
		s.schema.Classes = append(s.schema.Classes, types.ClassDescriptor{Name: name})
		s.record(types.SchemaChange{Op: types.OpCreateClass, Class: name})
	}
	return c
}

// RemoveClass drops a class with all of its objects.
func (s *Session) RemoveClass(name string) error {
	if s.err != nil {
		return s.err
	}
	idx := s.classIndex(name)
	if idx < 0 {
		return s.fail("class '%s' does not exist", name)
	}
	for _, c := range s.schema.Classes {
		if c.Name == name {
			continue
		}
		for _, f := range c.Fields {
			if f.LinkTarget == name {
				return s.fail("class '%s' is referenced by field '%s.%s'", name, c.Name, f.Name)
			}
		}
	}
	s.schema.Classes = append(s.schema.Classes[:idx], s.schema.Classes[idx+1:]...)
	s.record(types.SchemaChange{Op: types.OpRemoveClass, Class: name})
	return nil
}

// RenameClass renames a class; links to it follow.
func (s *Session) RenameClass(name, newName string) error {
	if s.err != nil {
		return s.err
	}
	idx := s.classIndex(name)
	switch {
	case idx < 0:
		return s.fail("class '%s' does not exist", name)
	case !types.ValidateName(newName):
		return s.fail("invalid class name %q", newName)
	case s.HasClass(newName):
		return s.fail("class '%s' already exists", newName)
	}
	s.schema.Classes[idx].Name = newName
	for i := range s.schema.Classes {
		for j := range s.schema.Classes[i].Fields {
			if f := &s.schema.Classes[i].Fields[j]; f.LinkTarget == name {
				f.LinkTarget = newName
			}
		}
	}
	s.record(types.SchemaChange{Op: types.OpRenameClass, Class: name, NewName: newName})
	return nil
}

// Apply performs a declarative change through the same checks as the fluent
// calls.
func (s *Session) Apply(c types.SchemaChange) error {
	if s.err != nil {
		return s.err
	}
	switch c.Op {
	case types.OpCreateClass:
		s.CreateClass(c.Class)
	case types.OpRemoveClass:
		return s.RemoveClass(c.Class)
	case types.OpRenameClass:
		return s.RenameClass(c.Class, c.NewName)
	case types.OpAddField:
		if c.Descriptor == nil {
			return s.fail("%s: missing field descriptor", c)
		}
		s.Class(c.Class).Add(*c.Descriptor)
	case types.OpRemoveField:
		s.Class(c.Class).RemoveField(c.Field)
	case types.OpRenameField:
		s.Class(c.Class).RenameField(c.Field, c.NewName)
	case types.OpAddIndex:
		s.Class(c.Class).AddIndex(c.Field)
	case types.OpRemoveIndex:
		s.Class(c.Class).RemoveIndex(c.Field)
	case types.OpSetPrimaryKey:
		s.Class(c.Class).SetPrimaryKey(c.Field)
	case types.OpRemovePrimaryKey:
		s.Class(c.Class).RemovePrimaryKey()
	case types.OpSetNullable:
		s.Class(c.Class).SetNullable(c.Field)
	case types.OpSetRequired:
		s.Class(c.Class).SetRequired(c.Field, c.Default)
	default:
		return s.fail("unknown schema change %q", c.Op)
	}
	return s.err
}

func (s *Session) classIndex(name string) int {
	for i, c := range s.schema.Classes {
		if c.Name == name {
			return i
		}
	}
	return -1
}

func (s *Session) record(c types.SchemaChange) {
	s.changes = append(s.changes, c)
}

func (s *Session) fail(format string, args ...any) error {
	if s.err == nil {
		s.err = rerrors.NewInvalidChange(fmt.Sprintf(format, args...))
	}
	return s.err
}

// Class is the session handle for one class. Methods return the handle so
// calls can be chained.
type Class struct {
	s    *Session
	name string
}

// Name returns the class name.
func (c *Class) Name() string {
	return c.name
}

// AddField adds a value field. Adding a field that already exists with the
// same type and nullability is a no-op.
func (c *Class) AddField(name string, typ types.FieldType, mods ...types.Modifier) *Class {
	if typ.IsLink() {
		c.s.fail("field '%s': use AddLink for %s fields", name, typ)
		return c
	}
	return c.Add(types.Field(name, typ, mods...))
}

// AddLink adds an Object or List field referencing target.
func (c *Class) AddLink(name string, typ types.FieldType, target string) *Class {
	if !typ.IsLink() {
		c.s.fail("field '%s': %s is not a link type", name, typ)
		return c
	}
	return c.Add(types.Field(name, typ, types.LinkTo(target)))
}

// Add adds a field from a complete descriptor, including its index and
// primary key flags. It is the ensure form used to build a schema from
// declarations: parts already present are left alone.
func (c *Class) Add(f types.FieldDescriptor) *Class {
	class, ok := c.class()
	if !ok {
		return c
	}
	if err := f.Validate(); err != nil {
		c.s.fail("class '%s': %v", c.name, err)
		return c
	}
	if f.Type.IsLink() && !c.s.HasClass(f.LinkTarget) {
		c.s.fail("field '%s' links to unknown class '%s'", f.Name, f.LinkTarget)
		return c
	}

	if existing, ok := class.Field(f.Name); ok {
		if existing.Type != f.Type || existing.Nullable != f.Nullable || existing.LinkTarget != f.LinkTarget {
			c.s.fail("field '%s' already exists in class '%s' with a different definition", f.Name, c.name)
			return c
		}
		if f.Indexed {
			c.AddIndex(f.Name)
		}
		if f.PrimaryKey {
			c.SetPrimaryKey(f.Name)
		}
		return c
	}

	if f.PrimaryKey {
		f.Indexed = true
		clearPrimaryKey(class)
	}
	f.Position = 0
	class.Fields = append(class.Fields, f)
	desc := f
	c.s.record(types.SchemaChange{Op: types.OpAddField, Class: c.name, Descriptor: &desc})
	return c
}

// RemoveField drops a field and its data.
func (c *Class) RemoveField(name string) *Class {
	class, ok := c.class()
	if !ok {
		return c
	}
	idx := fieldIndex(class, name)
	if idx < 0 {
		c.s.fail("field '%s' does not exist in class '%s'", name, c.name)
		return c
	}
	class.Fields = append(class.Fields[:idx], class.Fields[idx+1:]...)
	c.s.record(types.SchemaChange{Op: types.OpRemoveField, Class: c.name, Field: name})
	return c
}

// RenameField renames a field, keeping its data and flags.
func (c *Class) RenameField(name, newName string) *Class {
	f, ok := c.field(name)
	if !ok {
		return c
	}
	class, _ := c.class()
	switch {
	case !types.ValidateName(newName) || newName == types.ReservedField:
		c.s.fail("invalid field name %q", newName)
		return c
	case fieldIndex(class, newName) >= 0:
		c.s.fail("field '%s' already exists in class '%s'", newName, c.name)
		return c
	}
	f.Name = newName
	c.s.record(types.SchemaChange{Op: types.OpRenameField, Class: c.name, Field: name, NewName: newName})
	return c
}

// AddIndex adds a search index. Indexing an indexed field is a no-op.
func (c *Class) AddIndex(name string) *Class {
	f, ok := c.field(name)
	if !ok {
		return c
	}
	if !f.Type.Indexable() {
		c.s.fail("field '%s' of type %s cannot be indexed", name, f.Type)
		return c
	}
	if f.Indexed {
		return c
	}
	f.Indexed = true
	c.s.record(types.SchemaChange{Op: types.OpAddIndex, Class: c.name, Field: name})
	return c
}

// RemoveIndex drops a search index. Removing an absent index is a no-op.
func (c *Class) RemoveIndex(name string) *Class {
	f, ok := c.field(name)
	if !ok {
		return c
	}
	if f.PrimaryKey {
		c.s.fail("cannot remove the index of primary key field '%s'", name)
		return c
	}
	if !f.Indexed {
		return c
	}
	f.Indexed = false
	c.s.record(types.SchemaChange{Op: types.OpRemoveIndex, Class: c.name, Field: name})
	return c
}

// HasIndex reports whether a field carries a search index.
func (c *Class) HasIndex(name string) bool {
	class, ok := c.s.schema.Class(c.name)
	if !ok {
		return false
	}
	f, ok := class.Field(name)
	return ok && f.Indexed
}

// SetPrimaryKey designates the class primary key, replacing any previous one.
// The field is indexed. Setting the current primary key again is a no-op.
func (c *Class) SetPrimaryKey(name string) *Class {
	f, ok := c.field(name)
	if !ok {
		return c
	}
	switch {
	case f.Type != types.Integer && f.Type != types.String:
		c.s.fail("field '%s' of type %s cannot be a primary key", name, f.Type)
		return c
	case f.Nullable:
		c.s.fail("field '%s' must be required to be a primary key", name)
		return c
	case f.PrimaryKey:
		return c
	}
	class, _ := c.class()
	clearPrimaryKey(class)
	f, _ = class.Field(name)
	f.PrimaryKey = true
	f.Indexed = true
	c.s.record(types.SchemaChange{Op: types.OpSetPrimaryKey, Class: c.name, Field: name})
	return c
}

// RemovePrimaryKey clears the class primary key. The field keeps its index.
func (c *Class) RemovePrimaryKey() *Class {
	class, ok := c.class()
	if !ok {
		return c
	}
	if class.PrimaryKey() == "" {
		return c
	}
	clearPrimaryKey(class)
	c.s.record(types.SchemaChange{Op: types.OpRemovePrimaryKey, Class: c.name})
	return c
}

// PrimaryKey returns the primary key field name, or "".
func (c *Class) PrimaryKey() string {
	class, ok := c.s.schema.Class(c.name)
	if !ok {
		return ""
	}
	return class.PrimaryKey()
}

// SetNullable converts a required field to nullable, keeping its values.
func (c *Class) SetNullable(name string) *Class {
	f, ok := c.field(name)
	if !ok {
		return c
	}
	switch {
	case f.Type.IsLink():
		c.s.fail("nullability of %s field '%s' cannot be changed", f.Type, name)
		return c
	case f.PrimaryKey:
		c.s.fail("primary key field '%s' cannot be nullable", name)
		return c
	case f.Nullable:
		return c
	}
	f.Nullable = true
	c.s.record(types.SchemaChange{Op: types.OpSetNullable, Class: c.name, Field: name})
	return c
}

// SetRequired converts a nullable field to required. Existing nulls are
// replaced by def; with a nil def the migration fails if any null remains.
func (c *Class) SetRequired(name string, def any) *Class {
	f, ok := c.field(name)
	if !ok {
		return c
	}
	switch {
	case f.Type.IsLink():
		c.s.fail("nullability of %s field '%s' cannot be changed", f.Type, name)
		return c
	case !f.Nullable:
		return c
	}
	f.Nullable = false
	c.s.record(types.SchemaChange{Op: types.OpSetRequired, Class: c.name, Field: name, Default: def})
	return c
}

// FieldNames returns the field names in column order.
func (c *Class) FieldNames() []string {
	class, ok := c.s.schema.Class(c.name)
	if !ok {
		return nil
	}
	return class.FieldNames()
}

// ColumnIndex returns the column position the field will have once the
// recorded changes are applied.
func (c *Class) ColumnIndex(name string) (int, bool) {
	class, ok := c.s.schema.Class(c.name)
	if !ok {
		return 0, false
	}
	idx := fieldIndex(class, name)
	if idx < 0 {
		return 0, false
	}
	return idx + 1, true
}

// class returns the working descriptor, or false when the session has failed
// or the class is gone.
func (c *Class) class() (*types.ClassDescriptor, bool) {
	if c.s.err != nil {
		return nil, false
	}
	class, ok := c.s.schema.Class(c.name)
	if !ok {
		c.s.fail("class '%s' does not exist", c.name)
		return nil, false
	}
	return class, true
}

func (c *Class) field(name string) (*types.FieldDescriptor, bool) {
	class, ok := c.class()
	if !ok {
		return nil, false
	}
	f, ok := class.Field(name)
	if !ok {
		c.s.fail("field '%s' does not exist in class '%s'", name, c.name)
		return nil, false
	}
	return f, true
}

func fieldIndex(class *types.ClassDescriptor, name string) int {
	for i, f := range class.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

func clearPrimaryKey(class *types.ClassDescriptor) {
	for i := range class.Fields {
		class.Fields[i].PrimaryKey = false
	}
}
