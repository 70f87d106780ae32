package types

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestField_DefaultNullability(t *testing.T) {
	tests := []struct {
		typ      FieldType
		nullable bool
	}{
		{Boolean, false},
		{Integer, false},
		{Float, false},
		{Double, false},
		{String, true},
		{Binary, true},
		{Date, true},
		{Object, true},
		{List, false},
	}
	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			f := Field("f", tt.typ)
			assert.Equal(t, tt.nullable, f.Nullable)
		})
	}
}

func TestField_Modifiers(t *testing.T) {
	pk := Field("id", String, Nullable, PrimaryKey)
	assert.True(t, pk.PrimaryKey)
	assert.True(t, pk.Indexed)
	assert.False(t, pk.Nullable, "primary key overrides an earlier Nullable")

	age := Field("age", Integer, Nullable)
	assert.True(t, age.Nullable)

	name := Field("name", String, Required, Indexed)
	assert.False(t, name.Nullable)
	assert.True(t, name.Indexed)

	owner := Field("owner", Object, LinkTo("Person"))
	assert.Equal(t, "Person", owner.LinkTarget)
}

func TestSchema_Validate(t *testing.T) {
	person := Class("Person", Field("name", String))

	tests := []struct {
		name    string
		schema  *Schema
		wantErr string
	}{
		{
			name:   "valid",
			schema: NewSchema(person, Class("Dog", Field("id", Integer, PrimaryKey), Field("owner", Object, LinkTo("Person")))),
		},
		{
			name:   "empty",
			schema: NewSchema(),
		},
		{
			name:    "invalid class name",
			schema:  NewSchema(Class("1Dog")),
			wantErr: "invalid class name",
		},
		{
			name:    "duplicate class",
			schema:  NewSchema(person, person),
			wantErr: "duplicate class",
		},
		{
			name:    "duplicate field",
			schema:  NewSchema(Class("Dog", Field("a", Integer), Field("a", String))),
			wantErr: "duplicate field",
		},
		{
			name:    "reserved field",
			schema:  NewSchema(Class("Dog", Field(ReservedField, Integer))),
			wantErr: "reserved",
		},
		{
			name:    "two primary keys",
			schema:  NewSchema(Class("Dog", Field("a", Integer, PrimaryKey), Field("b", String, PrimaryKey))),
			wantErr: "multiple primary keys",
		},
		{
			name:    "nullable primary key",
			schema:  NewSchema(Class("Dog", FieldDescriptor{Name: "a", Type: String, Nullable: true, PrimaryKey: true})),
			wantErr: "cannot be nullable",
		},
		{
			name:    "boolean primary key",
			schema:  NewSchema(Class("Dog", Field("a", Boolean, PrimaryKey))),
			wantErr: "cannot be primary keys",
		},
		{
			name:    "indexed binary",
			schema:  NewSchema(Class("Dog", Field("a", Binary, Indexed))),
			wantErr: "cannot be indexed",
		},
		{
			name:    "link without target",
			schema:  NewSchema(Class("Dog", Field("owner", Object))),
			wantErr: "requires a link target",
		},
		{
			name:    "link to unknown class",
			schema:  NewSchema(Class("Dog", Field("owner", Object, LinkTo("Cat")))),
			wantErr: `unknown class "Cat"`,
		},
		{
			name:    "nullable list",
			schema:  NewSchema(person, Class("Dog", Field("owners", List, LinkTo("Person"), Nullable))),
			wantErr: "list fields cannot be nullable",
		},
		{
			name:    "required object",
			schema:  NewSchema(person, Class("Dog", Field("owner", Object, LinkTo("Person"), Required))),
			wantErr: "object fields must be nullable",
		},
		{
			name:    "target on value field",
			schema:  NewSchema(person, Class("Dog", Field("name", String, LinkTo("Person")))),
			wantErr: "cannot have a link target",
		},
		{
			name:    "invalid type",
			schema:  NewSchema(Class("Dog", FieldDescriptor{Name: "a", Type: FieldType(42)})),
			wantErr: "invalid type 42",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.schema.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateName(t *testing.T) {
	assert.True(t, ValidateName("Dog"))
	assert.True(t, ValidateName("_private"))
	assert.True(t, ValidateName("field_2"))
	assert.True(t, ValidateName(strings.Repeat("a", 100)))

	assert.False(t, ValidateName(""))
	assert.False(t, ValidateName("2fast"))
	assert.False(t, ValidateName("with-dash"))
	assert.False(t, ValidateName("with space"))
	assert.False(t, ValidateName(strings.Repeat("a", 101)))
}

func TestSchema_Clone(t *testing.T) {
	s := NewSchema(Class("Dog", Field("name", String)))
	c := s.Clone()
	c.Classes[0].Fields[0].Indexed = true
	c.Classes[0].Name = "Cat"

	assert.False(t, s.Classes[0].Fields[0].Indexed)
	assert.Equal(t, "Dog", s.Classes[0].Name)
}

func TestSchema_Lookups(t *testing.T) {
	s := NewSchema(
		Class("Dog", Field("id", String, PrimaryKey), Field("age", Integer)),
		Class("Cat", Field("name", String)),
	)

	dog, ok := s.Class("Dog")
	require.True(t, ok)
	assert.Equal(t, "id", dog.PrimaryKey())
	assert.Equal(t, []string{"id", "age"}, dog.FieldNames())

	cat, ok := s.Class("Cat")
	require.True(t, ok)
	assert.Empty(t, cat.PrimaryKey())

	_, ok = dog.Field("missing")
	assert.False(t, ok)
	_, ok = s.Class("Bird")
	assert.False(t, ok)

	assert.Equal(t, []string{"Dog", "Cat"}, s.ClassNames())
}

func TestSchema_Fingerprint(t *testing.T) {
	a := NewSchema(
		Class("Dog", Field("name", String), Field("age", Integer)),
		Class("Cat", Field("name", String)),
	)
	b := NewSchema(
		Class("Cat", Field("name", String)),
		Class("Dog", Field("age", Integer), Field("name", String)),
	)
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.Len(t, a.Fingerprint(), 32)

	indexed := NewSchema(
		Class("Dog", Field("name", String, Indexed), Field("age", Integer)),
		Class("Cat", Field("name", String)),
	)
	assert.NotEqual(t, a.Fingerprint(), indexed.Fingerprint())

	required := NewSchema(
		Class("Dog", Field("name", String, Required), Field("age", Integer)),
		Class("Cat", Field("name", String)),
	)
	assert.NotEqual(t, a.Fingerprint(), required.Fingerprint())
}

func TestSchemaChange_String(t *testing.T) {
	desc := Field("age", Integer)
	tests := []struct {
		change SchemaChange
		want   string
	}{
		{SchemaChange{Op: OpCreateClass, Class: "Dog"}, "create_class Dog"},
		{SchemaChange{Op: OpRenameClass, Class: "Dog", NewName: "Hound"}, "rename_class Dog -> Hound"},
		{SchemaChange{Op: OpRenameField, Class: "Dog", Field: "name", NewName: "title"}, "rename_field Dog.name -> title"},
		{SchemaChange{Op: OpAddField, Class: "Dog", Descriptor: &desc}, "add_field Dog.age integer nullable=false"},
		{SchemaChange{Op: OpSetRequired, Class: "Dog", Field: "name", Default: ""}, "set_required Dog.name default="},
		{SchemaChange{Op: OpSetRequired, Class: "Dog", Field: "name"}, "set_required Dog.name"},
		{SchemaChange{Op: OpAddIndex, Class: "Dog", Field: "name"}, "add_index Dog.name"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.change.String())
	}
}
