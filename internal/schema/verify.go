package schema

import (
	"github.com/arkilian/realmstore/pkg/types"
)

// Verifier compares an expected schema against the actual schema of a store.
// Column order never matters; every other structural property must match.
type Verifier struct {
	// StrictIndexes reports an index the store holds but the expected schema
	// does not declare as a mismatch instead of tolerating it.
	StrictIndexes bool
}

// Verify checks every expected class against actual and returns an exhaustive
// report. Classes are visited in declaration order and, within a class, each
// field is checked for type, link target, nullability, primary key and index in
// that order. Classes present only in actual are ignored.
func (v Verifier) Verify(expected, actual *types.Schema) *Report {
	r := &Report{}
	for i := range expected.Classes {
		ec := &expected.Classes[i]
		ac, ok := actual.Class(ec.Name)
		if !ok {
			r.add(ClassMissing, ec.Name, "", "The '%s' class is missing from the schema for this Realm.", ec.Name)
			continue
		}
		v.verifyClass(r, ec, ac)
	}
	return r
}

func (v Verifier) verifyClass(r *Report, ec, ac *types.ClassDescriptor) {
	actualPK := ac.PrimaryKey()

	for _, ef := range ec.Fields {
		af, ok := ac.Field(ef.Name)
		if !ok {
			r.add(FieldMissing, ec.Name, ef.Name, "Missing field '%s'", ef.Name)
			continue
		}
		if af.Type != ef.Type {
			r.add(TypeMismatch, ec.Name, ef.Name, "Invalid type '%s' for field '%s'", af.Type, ef.Name)
			continue
		}

		if ef.Type.IsLink() {
			if af.LinkTarget != ef.LinkTarget {
				format := "Invalid RealmObject for field '%s': '%s' - expected '%s'"
				if ef.Type == types.List {
					format = "Invalid RealmList type for field '%s': '%s' - expected '%s'"
				}
				r.add(LinkMismatch, ec.Name, ef.Name, format, ef.Name, af.LinkTarget, ef.LinkTarget)
				continue
			}
		} else {
			verifyNullability(r, ec.Name, ef, af)
		}

		if ef.PrimaryKey && !af.PrimaryKey {
			if actualPK == "" {
				r.add(PrimaryKeyMissing, ec.Name, ef.Name,
					"Primary key not defined for field '%s' in existing Realm file. Add @PrimaryKey.", ef.Name)
			} else {
				r.add(PrimaryKeyChanged, ec.Name, ef.Name,
					"Primary Key annotation definition was changed, from field '%s' to field '%s'", actualPK, ef.Name)
			}
		}

		wantIndex := ef.Indexed || ef.PrimaryKey
		switch {
		case wantIndex && !af.Indexed:
			r.add(IndexMissing, ec.Name, ef.Name, "Index not defined for field '%s'", ef.Name)
		case !wantIndex && af.Indexed:
			format := "Index defined for field '%s' in existing Realm file. Either add @Index or remove the index using Table.RemoveSearchIndex()."
			if v.StrictIndexes {
				r.add(IndexExtra, ec.Name, ef.Name, format, ef.Name)
			} else {
				r.tolerate(IndexExtra, ec.Name, ef.Name, format, ef.Name)
			}
		}
	}

	if actualPK != "" && ec.PrimaryKey() == "" {
		r.add(PrimaryKeyRemoved, ec.Name, actualPK, "Primary Key defined for field '%s' was removed.", actualPK)
	}

	for _, af := range ac.Fields {
		if _, ok := ec.Field(af.Name); !ok {
			r.add(FieldExtra, ec.Name, af.Name,
				"Field '%s' in the existing Realm file is not declared in class '%s'. Remove it using Table.RemoveColumn() or add it to the model.",
				af.Name, ec.Name)
		}
	}
}

func verifyNullability(r *Report, class string, ef types.FieldDescriptor, af *types.FieldDescriptor) {
	switch {
	case ef.Nullable && !af.Nullable:
		if ef.Type.DefaultNullable() {
			r.add(NullabilityMismatch, class, ef.Name,
				"Field '%s' is required. Either set @Required to field '%s' or migrate using Table.ConvertColumnToNullable().",
				ef.Name, ef.Name)
		} else {
			r.add(NullabilityMismatch, class, ef.Name,
				"Field '%s' does not support null values in the existing Realm file. Either set @Required to field '%s' or migrate using Table.ConvertColumnToNullable().",
				ef.Name, ef.Name)
		}
	case !ef.Nullable && af.Nullable:
		r.add(NullabilityMismatch, class, ef.Name,
			"Field '%s' does support null values in the existing Realm file. Remove @Required or @PrimaryKey from field '%s' or migrate using Table.ConvertColumnToNotNullable().",
			ef.Name, ef.Name)
	}
}
