package types

import "fmt"

// ChangeOp names a single structural schema change.
type ChangeOp string

const (
	OpCreateClass      ChangeOp = "create_class"
	OpRemoveClass      ChangeOp = "remove_class"
	OpRenameClass      ChangeOp = "rename_class"
	OpAddField         ChangeOp = "add_field"
	OpRemoveField      ChangeOp = "remove_field"
	OpRenameField      ChangeOp = "rename_field"
	OpAddIndex         ChangeOp = "add_index"
	OpRemoveIndex      ChangeOp = "remove_index"
	OpSetPrimaryKey    ChangeOp = "set_primary_key"
	OpRemovePrimaryKey ChangeOp = "remove_primary_key"
	OpSetNullable      ChangeOp = "set_nullable"
	OpSetRequired      ChangeOp = "set_required"
)

// SchemaChange is one entry of a migration's change list. Changes are recorded
// by the dynamic schema handle and applied in order inside one transaction.
type SchemaChange struct {
	Op    ChangeOp `json:"op" yaml:"op"`
	Class string   `json:"class" yaml:"class"`

	// Field names the affected field for field-level operations.
	Field string `json:"field,omitempty" yaml:"field,omitempty"`

	// NewName is the target name for renames.
	NewName string `json:"new_name,omitempty" yaml:"new_name,omitempty"`

	// Descriptor is the field added by OpAddField.
	Descriptor *FieldDescriptor `json:"descriptor,omitempty" yaml:"descriptor,omitempty"`

	// Default replaces existing nulls when converting a field to required.
	Default any `json:"default,omitempty" yaml:"default,omitempty"`
}

// String renders the change for logs and CLI output.
func (c SchemaChange) String() string {
	switch c.Op {
	case OpCreateClass, OpRemoveClass, OpRemovePrimaryKey:
		return fmt.Sprintf("%s %s", c.Op, c.Class)
	case OpRenameClass:
		return fmt.Sprintf("%s %s -> %s", c.Op, c.Class, c.NewName)
	case OpRenameField:
		return fmt.Sprintf("%s %s.%s -> %s", c.Op, c.Class, c.Field, c.NewName)
	case OpAddField:
		if c.Descriptor != nil {
			return fmt.Sprintf("%s %s.%s %s nullable=%t", c.Op, c.Class, c.Descriptor.Name, c.Descriptor.Type, c.Descriptor.Nullable)
		}
	case OpSetRequired:
		if c.Default != nil {
			return fmt.Sprintf("%s %s.%s default=%v", c.Op, c.Class, c.Field, c.Default)
		}
	}
	return fmt.Sprintf("%s %s.%s", c.Op, c.Class, c.Field)
}
