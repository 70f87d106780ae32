package columns

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkilian/realmstore/pkg/types"
)

func withPositions(c types.ClassDescriptor, positions ...int) types.ClassDescriptor {
	c = c.Clone()
	for i := range c.Fields {
		c.Fields[i].Position = positions[i]
	}
	return c
}

func TestResolve_Positions(t *testing.T) {
	actual := types.NewSchema(withPositions(
		types.Class("Dog",
			types.Field("name", types.String),
			types.Field("age", types.Integer),
		), 1, 2))

	table := Resolve(actual)

	pos, ok := table.Position("Dog", "age")
	require.True(t, ok)
	assert.Equal(t, 2, pos)

	_, ok = table.Position("Dog", "missing")
	assert.False(t, ok)
	_, ok = table.Position("Cat", "name")
	assert.False(t, ok)

	assert.Equal(t, []string{"name", "age"}, table.Fields("Dog"))
	assert.Equal(t, []string{"Dog"}, table.Classes())
}

// Two stores that reached the same logical schema through different
// migration orders resolve each field to their own column.
func TestResolve_IndependentPerInstance(t *testing.T) {
	fields := []types.FieldDescriptor{
		types.Field("a", types.Integer),
		types.Field("b", types.String),
	}
	first := Resolve(types.NewSchema(withPositions(types.Class("Thing", fields...), 1, 2)))
	second := Resolve(types.NewSchema(withPositions(types.Class("Thing", fields...), 2, 1)))

	pos, _ := first.Position("Thing", "a")
	assert.Equal(t, 1, pos)
	pos, _ = second.Position("Thing", "a")
	assert.Equal(t, 2, pos)
	assert.Equal(t, []string{"a", "b"}, first.Fields("Thing"))
	assert.Equal(t, []string{"b", "a"}, second.Fields("Thing"))

	// Resolving again is deterministic and leaves the first table untouched.
	again := Resolve(types.NewSchema(withPositions(types.Class("Thing", fields...), 1, 2)))
	assert.Equal(t, first.String(), again.String())
	assert.Equal(t, "Thing a=1 b=2\n", first.String())
}

func TestResolve_SkipsUnplacedFields(t *testing.T) {
	table := Resolve(types.NewSchema(types.Class("Dog", types.Field("name", types.String))))
	_, ok := table.Position("Dog", "name")
	assert.False(t, ok)
	assert.Empty(t, table.Fields("Dog"))
}

func TestPosition_UnknownClass(t *testing.T) {
	table := Resolve(types.NewSchema())
	_, ok := table.Position("Dog", "name")
	assert.False(t, ok)
	assert.Empty(t, table.Classes())
}
