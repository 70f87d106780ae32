// Package schema decides whether a store needs reconciliation and compares the
// schema an application expects with the schema a store actually holds.
package schema

import "fmt"

// Decision is the outcome of the version gate.
type Decision int

const (
	// NoActionNeeded means the versions match. The structure must still be
	// verified, but no migration procedure runs.
	NoActionNeeded Decision = iota
	// MigrationRequired means the store is older than the application,
	// including a store that was never versioned.
	MigrationRequired
	// IllegalDowngrade means the store is newer than the application. Opening
	// must fail.
	IllegalDowngrade
)

func (d Decision) String() string {
	switch d {
	case NoActionNeeded:
		return "no_action_needed"
	case MigrationRequired:
		return "migration_required"
	case IllegalDowngrade:
		return "illegal_downgrade"
	}
	return fmt.Sprintf("Decision(%d)", int(d))
}

// Gate compares a stored schema version with the expected one. The unversioned
// sentinel is below every real version.
func Gate(stored, expected int64) Decision {
	switch {
	case stored == expected:
		return NoActionNeeded
	case stored < expected:
		return MigrationRequired
	default:
		return IllegalDowngrade
	}
}
