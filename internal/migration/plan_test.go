package migration

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkilian/realmstore/internal/schema"
	"github.com/arkilian/realmstore/pkg/types"
)

const dogPlan = `
steps:
  - from: -1
    description: initial schema
    changes:
      - op: create_class
        class: Dog
      - op: add_field
        class: Dog
        descriptor:
          name: name
          type: string
          nullable: true
  - from: 0
    description: ages are required
    changes:
      - op: add_field
        class: Dog
        descriptor:
          name: age
          type: integer
          nullable: true
      - op: set_required
        class: Dog
        field: age
        default: 0
      - op: add_index
        class: Dog
        field: name
`

func TestParsePlan(t *testing.T) {
	plan, err := ParsePlan([]byte(dogPlan))
	require.NoError(t, err)
	require.Len(t, plan.Steps, 2)

	first := plan.Steps[0]
	assert.Equal(t, types.Unversioned, first.From)
	require.Len(t, first.Changes, 2)
	assert.Equal(t, types.OpAddField, first.Changes[1].Op)
	assert.Equal(t, types.String, first.Changes[1].Descriptor.Type)

	assert.Len(t, plan.Pending(types.Unversioned, 1), 2)
	assert.Len(t, plan.Pending(0, 1), 1)
	assert.Empty(t, plan.Pending(1, 1))
}

func TestParsePlan_Invalid(t *testing.T) {
	_, err := ParsePlan([]byte("steps:\n  - from: 1\n  - from: 1\n"))
	assert.Error(t, err)

	_, err = ParsePlan([]byte("steps:\n  - from: -2\n"))
	assert.Error(t, err)

	_, err = ParsePlan([]byte("steps: ["))
	assert.Error(t, err)
}

func TestLoadPlan(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(dogPlan), 0644))

	plan, err := LoadPlan(path)
	require.NoError(t, err)
	assert.Len(t, plan.Steps, 2)

	_, err = LoadPlan(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestPlan_ProcedureAcrossVersions(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	plan, err := ParsePlan([]byte(dogPlan))
	require.NoError(t, err)
	exec := NewExecutor(db, schema.Verifier{}, nil)

	v0 := types.NewSchema(types.Class("Dog", types.Field("name", types.String)))
	_, err = exec.Run(ctx, plan.Procedure(), v0, 0)
	require.NoError(t, err)

	_, err = db.Insert(ctx, "Dog", []string{"name"}, []any{"Fido"})
	require.NoError(t, err)

	v1 := types.NewSchema(types.Class("Dog",
		types.Field("name", types.String, types.Indexed),
		types.Field("age", types.Integer),
	))
	result, err := exec.Run(ctx, plan.Procedure(), v1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.OldVersion)
	assert.Len(t, result.Changes, 3)

	n, err := db.CountEqual(ctx, "Dog", "age", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
