package migration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rerrors "github.com/arkilian/realmstore/internal/errors"
	"github.com/arkilian/realmstore/pkg/types"
)

func dogSchema() *types.Schema {
	return types.NewSchema(types.Class("Dog",
		types.Field("name", types.String),
		types.Field("age", types.Integer),
	))
}

func TestSession_RecordsChanges(t *testing.T) {
	s := NewSession(dogSchema())

	s.CreateClass("Owner").
		AddField("name", types.String, types.Required).
		AddLink("dogs", types.List, "Dog")
	s.Class("Dog").
		AddIndex("name").
		SetNullable("age")

	require.NoError(t, s.Err())
	ops := make([]types.ChangeOp, 0)
	for _, c := range s.Changes() {
		ops = append(ops, c.Op)
	}
	assert.Equal(t, []types.ChangeOp{
		types.OpCreateClass,
		types.OpAddField,
		types.OpAddField,
		types.OpAddIndex,
		types.OpSetNullable,
	}, ops)

	owner, ok := s.Schema().Class("Owner")
	require.True(t, ok)
	dogs, _ := owner.Field("dogs")
	assert.Equal(t, "Dog", dogs.LinkTarget)
}

func TestSession_IdempotentOperations(t *testing.T) {
	s := NewSession(dogSchema())
	dog := s.Class("Dog")

	dog.AddIndex("name").AddIndex("name")
	dog.AddField("name", types.String)
	dog.SetNullable("age").SetNullable("age")
	dog.SetRequired("age", int64(0)).SetRequired("age", nil)
	dog.RemoveIndex("age")
	dog.RemovePrimaryKey()

	require.NoError(t, s.Err())
	assert.Len(t, s.Changes(), 3, "only the first index, nullable and required conversions are recorded")
	assert.True(t, dog.HasIndex("name"))
}

func TestSession_StickyError(t *testing.T) {
	s := NewSession(dogSchema())

	s.Class("Cat").AddField("name", types.String)
	s.CreateClass("Owner")

	err := s.Err()
	require.Error(t, err)
	assert.Equal(t, rerrors.CodeInvalidChange, rerrors.GetCode(err))
	assert.Contains(t, err.Error(), "class 'Cat' does not exist")
	assert.Empty(t, s.Changes(), "calls after the first error are ignored")
}

func TestSession_InvalidCalls(t *testing.T) {
	tests := []struct {
		name string
		call func(s *Session)
		msg  string
	}{
		{"create existing class", func(s *Session) { s.CreateClass("Dog") }, "class 'Dog' already exists"},
		{"conflicting field", func(s *Session) { s.Class("Dog").AddField("name", types.Integer) }, "different definition"},
		{"remove missing field", func(s *Session) { s.Class("Dog").RemoveField("color") }, "field 'color' does not exist"},
		{"index double", func(s *Session) { s.Class("Dog").AddField("w", types.Double).AddIndex("w") }, "cannot be indexed"},
		{"nullable primary key", func(s *Session) { s.Class("Dog").SetPrimaryKey("name") }, "must be required"},
		{"link via AddField", func(s *Session) { s.Class("Dog").AddField("pal", types.Object) }, "use AddLink"},
		{"link to missing class", func(s *Session) { s.Class("Dog").AddLink("pal", types.Object, "Cat") }, "unknown class 'Cat'"},
		{"remove missing class", func(s *Session) { s.RemoveClass("Cat") }, "class 'Cat' does not exist"},
		{"list nullability", func(s *Session) {
			s.CreateClass("Owner").AddLink("dogs", types.List, "Dog").SetNullable("dogs")
		}, "cannot be changed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSession(dogSchema())
			tt.call(s)
			require.Error(t, s.Err())
			assert.Contains(t, s.Err().Error(), tt.msg)
		})
	}
}

func TestSession_PrimaryKey(t *testing.T) {
	s := NewSession(types.NewSchema(types.Class("Dog",
		types.Field("id", types.Integer),
		types.Field("tag", types.String, types.Required),
	)))
	dog := s.Class("Dog")

	dog.SetPrimaryKey("id").SetPrimaryKey("id")
	assert.Equal(t, "id", dog.PrimaryKey())
	assert.True(t, dog.HasIndex("id"))

	dog.SetPrimaryKey("tag")
	assert.Equal(t, "tag", dog.PrimaryKey())
	assert.True(t, dog.HasIndex("id"), "the previous key keeps its index")

	dog.RemovePrimaryKey()
	assert.Empty(t, dog.PrimaryKey())

	require.NoError(t, s.Err())
	assert.Len(t, s.Changes(), 3)
}

func TestSession_ColumnIndexFollowsChanges(t *testing.T) {
	s := NewSession(dogSchema())
	dog := s.Class("Dog")

	pos, ok := dog.ColumnIndex("age")
	require.True(t, ok)
	assert.Equal(t, 2, pos)

	dog.RemoveField("name").AddField("weight", types.Double)
	pos, _ = dog.ColumnIndex("age")
	assert.Equal(t, 1, pos)
	pos, _ = dog.ColumnIndex("weight")
	assert.Equal(t, 2, pos)
	assert.Equal(t, []string{"age", "weight"}, dog.FieldNames())
}

func TestSession_RenameClassUpdatesLinks(t *testing.T) {
	s := NewSession(dogSchema())
	s.CreateClass("Owner").AddLink("pet", types.Object, "Dog")
	require.NoError(t, s.RenameClass("Dog", "Canine"))

	owner, _ := s.Schema().Class("Owner")
	pet, _ := owner.Field("pet")
	assert.Equal(t, "Canine", pet.LinkTarget)
	assert.False(t, s.HasClass("Dog"))

	assert.Error(t, s.RemoveClass("Canine"), "still referenced by Owner.pet")
}

func TestSession_Apply(t *testing.T) {
	s := NewSession(dogSchema())
	required := types.Field("color", types.String, types.Required)

	changes := []types.SchemaChange{
		{Op: types.OpAddField, Class: "Dog", Descriptor: &required},
		{Op: types.OpAddIndex, Class: "Dog", Field: "color"},
		{Op: types.OpRenameField, Class: "Dog", Field: "age", NewName: "years"},
		{Op: types.OpSetRequired, Class: "Dog", Field: "name", Default: ""},
	}
	for _, c := range changes {
		require.NoError(t, s.Apply(c))
	}
	assert.Equal(t, []string{"name", "years", "color"}, s.Class("Dog").FieldNames())

	err := s.Apply(types.SchemaChange{Op: "explode", Class: "Dog"})
	assert.Error(t, err)
}
