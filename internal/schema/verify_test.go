package schema

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rerrors "github.com/arkilian/realmstore/internal/errors"
	"github.com/arkilian/realmstore/pkg/types"
)

// physical returns a copy of s as a store would report it: fields carry
// column positions starting after the row key.
func physical(s *types.Schema) *types.Schema {
	out := s.Clone()
	for i := range out.Classes {
		for j := range out.Classes[i].Fields {
			out.Classes[i].Fields[j].Position = j + 1
		}
	}
	return out
}

func annotationTypes() *types.Schema {
	return types.NewSchema(
		types.Class("AnnotationTypes",
			types.Field("id", types.Integer, types.PrimaryKey),
			types.Field("indexString", types.String, types.Indexed),
			types.Field("notIndexString", types.String),
		),
	)
}

func TestVerify_Identical(t *testing.T) {
	expected := annotationTypes()
	report := Verifier{}.Verify(expected, physical(expected))
	assert.True(t, report.OK())
	assert.Empty(t, report.Tolerated)
	assert.NoError(t, report.Err("/tmp/default.realm"))
}

func TestVerify_MissingPrimaryKey(t *testing.T) {
	actual := physical(annotationTypes())
	id, _ := actual.Classes[0].Field("id")
	id.PrimaryKey = false
	id.Indexed = false

	report := Verifier{}.Verify(annotationTypes(), actual)
	require.False(t, report.OK())

	first, _ := report.First()
	assert.Equal(t, PrimaryKeyMissing, first.Kind)
	assert.Equal(t, "Primary key not defined for field 'id' in existing Realm file. Add @PrimaryKey.", first.Message)
	assert.Equal(t, []string{
		"Primary key not defined for field 'id' in existing Realm file. Add @PrimaryKey.",
		"Index not defined for field 'id'",
	}, report.Messages())
}

func TestVerify_PrimaryKeyChanged(t *testing.T) {
	expected := types.NewSchema(types.Class("Dog",
		types.Field("id", types.Integer, types.PrimaryKey),
		types.Field("tag", types.String, types.Required, types.Indexed),
	))
	actual := physical(types.NewSchema(types.Class("Dog",
		types.Field("id", types.Integer, types.Indexed),
		types.Field("tag", types.String, types.PrimaryKey),
	)))

	report := Verifier{}.Verify(expected, actual)
	assert.Equal(t, []string{
		"Primary Key annotation definition was changed, from field 'tag' to field 'id'",
	}, report.Messages())
}

func TestVerify_PrimaryKeyRemoved(t *testing.T) {
	expected := types.NewSchema(types.Class("Dog",
		types.Field("id", types.Integer, types.Indexed),
	))
	actual := physical(types.NewSchema(types.Class("Dog",
		types.Field("id", types.Integer, types.PrimaryKey),
	)))

	report := Verifier{}.Verify(expected, actual)
	assert.Equal(t, []string{"Primary Key defined for field 'id' was removed."}, report.Messages())
}

func TestVerify_Nullability(t *testing.T) {
	tests := []struct {
		name     string
		expected types.FieldDescriptor
		actual   types.FieldDescriptor
		message  string
	}{
		{
			name:     "required string stored nullable",
			expected: types.Field("chars", types.String, types.Required),
			actual:   types.Field("chars", types.String),
			message:  "Field 'chars' does support null values in the existing Realm file. Remove @Required or @PrimaryKey from field 'chars' or migrate using Table.ConvertColumnToNotNullable().",
		},
		{
			name:     "nullable string stored required",
			expected: types.Field("chars", types.String),
			actual:   types.Field("chars", types.String, types.Required),
			message:  "Field 'chars' is required. Either set @Required to field 'chars' or migrate using Table.ConvertColumnToNullable().",
		},
		{
			name:     "nullable binary stored required",
			expected: types.Field("fieldBytesNull", types.Binary),
			actual:   types.Field("fieldBytesNull", types.Binary, types.Required),
			message:  "Field 'fieldBytesNull' is required. Either set @Required to field 'fieldBytesNull' or migrate using Table.ConvertColumnToNullable().",
		},
		{
			name:     "nullable integer stored required",
			expected: types.Field("fieldLongNull", types.Integer, types.Nullable),
			actual:   types.Field("fieldLongNull", types.Integer),
			message:  "Field 'fieldLongNull' does not support null values in the existing Realm file. Either set @Required to field 'fieldLongNull' or migrate using Table.ConvertColumnToNullable().",
		},
		{
			name:     "required boolean stored nullable",
			expected: types.Field("fieldBooleanNotNull", types.Boolean),
			actual:   types.Field("fieldBooleanNotNull", types.Boolean, types.Nullable),
			message:  "Field 'fieldBooleanNotNull' does support null values in the existing Realm file. Remove @Required or @PrimaryKey from field 'fieldBooleanNotNull' or migrate using Table.ConvertColumnToNotNullable().",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expected := types.NewSchema(types.Class("NullTypes", tt.expected))
			actual := physical(types.NewSchema(types.Class("NullTypes", tt.actual)))

			report := Verifier{}.Verify(expected, actual)
			require.Len(t, report.Mismatches, 1)
			assert.Equal(t, NullabilityMismatch, report.Mismatches[0].Kind)
			assert.Equal(t, tt.expected.Name, report.Mismatches[0].Field)
			assert.Equal(t, tt.message, report.Mismatches[0].Message)
		})
	}
}

func TestVerify_TypeMismatchSkipsFurtherFieldChecks(t *testing.T) {
	expected := types.NewSchema(types.Class("Dog", types.Field("age", types.Integer, types.Indexed)))
	actual := physical(types.NewSchema(types.Class("Dog", types.Field("age", types.String))))

	report := Verifier{}.Verify(expected, actual)
	assert.Equal(t, []string{"Invalid type 'string' for field 'age'"}, report.Messages())
}

func TestVerify_ListTarget(t *testing.T) {
	expected := types.NewSchema(
		types.Class("Owner", types.Field("dogs", types.List, types.LinkTo("Dog"))),
	)
	actual := physical(types.NewSchema(
		types.Class("Owner", types.Field("dogs", types.List, types.LinkTo("Cat"))),
	))

	report := Verifier{}.Verify(expected, actual)
	assert.Equal(t, []string{"Invalid RealmList type for field 'dogs': 'Cat' - expected 'Dog'"}, report.Messages())
}

func TestVerify_ExtraIndexTolerance(t *testing.T) {
	expected := types.NewSchema(types.Class("Dog", types.Field("name", types.String)))
	actual := physical(types.NewSchema(types.Class("Dog", types.Field("name", types.String, types.Indexed))))

	lenient := Verifier{}.Verify(expected, actual)
	assert.True(t, lenient.OK())
	require.Len(t, lenient.Tolerated, 1)
	assert.Equal(t, IndexExtra, lenient.Tolerated[0].Kind)

	strict := Verifier{StrictIndexes: true}.Verify(expected, actual)
	require.False(t, strict.OK())
	assert.Equal(t,
		"Index defined for field 'name' in existing Realm file. Either add @Index or remove the index using Table.RemoveSearchIndex().",
		strict.Mismatches[0].Message)
}

func TestVerify_ExtraActualClassIgnored(t *testing.T) {
	expected := types.NewSchema(types.Class("Dog", types.Field("name", types.String)))
	actual := physical(types.NewSchema(
		types.Class("Cat", types.Field("name", types.String)),
		types.Class("Dog", types.Field("name", types.String)),
	))
	assert.True(t, Verifier{}.Verify(expected, actual).OK())
}

func TestReport_ErrCarriesPathAndAllMismatches(t *testing.T) {
	actual := physical(types.NewSchema(types.Class("AnnotationTypes",
		types.Field("id", types.Integer),
	)))
	report := Verifier{}.Verify(annotationTypes(), actual)

	err := report.Err("/data/default.realm")
	require.Error(t, err)
	assert.True(t, errors.Is(err, rerrors.ErrMigrationNeeded))
	assert.Equal(t, "/data/default.realm", rerrors.GetPath(err))
	assert.Equal(t, report.Messages(), rerrors.Mismatches(err))
	assert.Len(t, rerrors.Mismatches(err), 4)
}

func TestReport_Golden(t *testing.T) {
	expected := types.NewSchema(
		annotationTypes().Classes[0],
		types.Class("Dog",
			types.Field("name", types.String, types.Required),
			types.Field("age", types.Integer, types.Nullable),
			types.Field("owner", types.Object, types.LinkTo("Person")),
		),
		types.Class("Person", types.Field("name", types.String)),
	)
	actual := physical(types.NewSchema(
		types.Class("AnnotationTypes",
			types.Field("id", types.Integer),
			types.Field("indexString", types.String),
			types.Field("notIndexString", types.String, types.Indexed),
			types.Field("extra", types.Integer),
		),
		types.Class("Dog",
			types.Field("name", types.String),
			types.Field("age", types.Integer),
			types.Field("owner", types.Object, types.LinkTo("Cat")),
		),
	))

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)

	g.Assert(t, "report_mixed", []byte(Verifier{}.Verify(expected, actual).String()))
	g.Assert(t, "report_compatible", []byte(Verifier{}.Verify(annotationTypes(), physical(annotationTypes())).String()))
}

// TestProperty_FieldOrderIrrelevant checks that any permutation of the stored
// column order verifies against the declared order.
func TestProperty_FieldOrderIrrelevant(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	expected := types.NewSchema(
		types.Class("AllTypes",
			types.Field("id", types.String, types.PrimaryKey),
			types.Field("flag", types.Boolean, types.Indexed),
			types.Field("count", types.Integer, types.Nullable),
			types.Field("ratio", types.Float),
			types.Field("score", types.Double, types.Nullable),
			types.Field("blob", types.Binary, types.Required),
			types.Field("when", types.Date, types.Indexed),
			types.Field("owner", types.Object, types.LinkTo("Owner")),
			types.Field("friends", types.List, types.LinkTo("AllTypes")),
		),
		types.Class("Owner",
			types.Field("name", types.String, types.Required),
			types.Field("age", types.Integer),
		),
	)

	properties.Property("shuffled physical order verifies", prop.ForAll(
		func(seed int64) bool {
			rng := rand.New(rand.NewSource(seed))
			actual := expected.Clone()
			rng.Shuffle(len(actual.Classes), func(i, j int) {
				actual.Classes[i], actual.Classes[j] = actual.Classes[j], actual.Classes[i]
			})
			for i := range actual.Classes {
				fields := actual.Classes[i].Fields
				rng.Shuffle(len(fields), func(a, b int) { fields[a], fields[b] = fields[b], fields[a] })
				for j := range fields {
					fields[j].Position = j + 1
				}
			}
			return Verifier{StrictIndexes: true}.Verify(expected, actual).OK()
		},
		gen.Int64(),
	))

	properties.Property("dropping any field is always reported", prop.ForAll(
		func(seed int64) bool {
			rng := rand.New(rand.NewSource(seed))
			actual := physical(expected)
			class := &actual.Classes[rng.Intn(len(actual.Classes))]
			victim := rng.Intn(len(class.Fields))
			name := class.Fields[victim].Name
			class.Fields = append(class.Fields[:victim], class.Fields[victim+1:]...)

			report := Verifier{}.Verify(expected, actual)
			for _, m := range report.Mismatches {
				if m.Kind == FieldMissing && m.Class == class.Name && m.Field == name {
					return true
				}
			}
			return false
		},
		gen.Int64(),
	))

	properties.TestingRun(t)
}
