package schema

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/arkilian/realmstore/pkg/types"
)

func TestGate(t *testing.T) {
	tests := []struct {
		name     string
		stored   int64
		expected int64
		want     Decision
	}{
		{"equal", 3, 3, NoActionNeeded},
		{"equal zero", 0, 0, NoActionNeeded},
		{"older", 1, 2, MigrationRequired},
		{"unversioned", types.Unversioned, 0, MigrationRequired},
		{"unversioned to later", types.Unversioned, 42, MigrationRequired},
		{"newer", 5, 4, IllegalDowngrade},
		{"newer than zero", 1, 0, IllegalDowngrade},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Gate(tt.stored, tt.expected); got != tt.want {
				t.Errorf("Gate(%d, %d) = %s, want %s", tt.stored, tt.expected, got, tt.want)
			}
		})
	}
}

func TestProperty_GateIsTotalAndConsistent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("exactly one decision follows the version ordering", prop.ForAll(
		func(stored, expected int64) bool {
			switch Gate(stored, expected) {
			case NoActionNeeded:
				return stored == expected
			case MigrationRequired:
				return stored < expected
			case IllegalDowngrade:
				return stored > expected
			}
			return false
		},
		gen.Int64Range(types.Unversioned, 1000),
		gen.Int64Range(0, 1000),
	))

	properties.Property("unversioned stores always migrate", prop.ForAll(
		func(expected int64) bool {
			return Gate(types.Unversioned, expected) == MigrationRequired
		},
		gen.Int64Range(0, 1<<40),
	))

	properties.TestingRun(t)
}

func TestDecision_String(t *testing.T) {
	if NoActionNeeded.String() != "no_action_needed" {
		t.Errorf("unexpected %q", NoActionNeeded.String())
	}
	if IllegalDowngrade.String() != "illegal_downgrade" {
		t.Errorf("unexpected %q", IllegalDowngrade.String())
	}
	if Decision(9).String() != "Decision(9)" {
		t.Errorf("unexpected %q", Decision(9).String())
	}
}
