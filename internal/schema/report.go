package schema

import (
	"fmt"
	"strings"

	rerrors "github.com/arkilian/realmstore/internal/errors"
)

// MismatchKind classifies a single structural discrepancy.
type MismatchKind string

const (
	ClassMissing        MismatchKind = "class_missing"
	FieldMissing        MismatchKind = "field_missing"
	FieldExtra          MismatchKind = "field_extra"
	TypeMismatch        MismatchKind = "type_mismatch"
	LinkMismatch        MismatchKind = "link_mismatch"
	NullabilityMismatch MismatchKind = "nullability_mismatch"
	PrimaryKeyMissing   MismatchKind = "primary_key_missing"
	PrimaryKeyChanged   MismatchKind = "primary_key_changed"
	PrimaryKeyRemoved   MismatchKind = "primary_key_removed"
	IndexMissing        MismatchKind = "index_missing"
	IndexExtra          MismatchKind = "index_extra"
)

// Mismatch is one discrepancy between the expected and the actual schema,
// with the diagnostic shown to the user.
type Mismatch struct {
	Kind    MismatchKind `json:"kind" yaml:"kind"`
	Class   string       `json:"class" yaml:"class"`
	Field   string       `json:"field,omitempty" yaml:"field,omitempty"`
	Message string       `json:"message" yaml:"message"`
}

func (m Mismatch) String() string {
	target := m.Class
	if m.Field != "" {
		target += "." + m.Field
	}
	return fmt.Sprintf("[%s] %s: %s", m.Kind, target, m.Message)
}

// Report is the result of one verification pass. Mismatches are in detection
// order; Tolerated holds discrepancies that do not fail verification.
type Report struct {
	Mismatches []Mismatch `json:"mismatches" yaml:"mismatches"`
	Tolerated  []Mismatch `json:"tolerated,omitempty" yaml:"tolerated,omitempty"`
}

// OK reports whether the schemas are compatible.
func (r *Report) OK() bool {
	return len(r.Mismatches) == 0
}

// First returns the first detected mismatch.
func (r *Report) First() (Mismatch, bool) {
	if len(r.Mismatches) == 0 {
		return Mismatch{}, false
	}
	return r.Mismatches[0], true
}

// Messages returns every mismatch message in order.
func (r *Report) Messages() []string {
	msgs := make([]string, len(r.Mismatches))
	for i, m := range r.Mismatches {
		msgs[i] = m.Message
	}
	return msgs
}

// Err converts a failed report into the migration-needed error for the store
// at path. It returns nil for a compatible report.
func (r *Report) Err(path string) error {
	if r.OK() {
		return nil
	}
	return rerrors.NewMigrationNeeded(path, r.Messages())
}

// String renders the report for logs and command output.
func (r *Report) String() string {
	var b strings.Builder
	switch n := len(r.Mismatches); n {
	case 0:
		b.WriteString("schema is compatible\n")
	case 1:
		b.WriteString("1 mismatch\n")
	default:
		fmt.Fprintf(&b, "%d mismatches\n", n)
	}
	for _, m := range r.Mismatches {
		fmt.Fprintf(&b, "  %s\n", m)
	}
	for _, m := range r.Tolerated {
		fmt.Fprintf(&b, "  tolerated %s\n", m)
	}
	return b.String()
}

func (r *Report) add(kind MismatchKind, class, field, format string, args ...any) {
	r.Mismatches = append(r.Mismatches, Mismatch{
		Kind:    kind,
		Class:   class,
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	})
}

func (r *Report) tolerate(kind MismatchKind, class, field, format string, args ...any) {
	r.Tolerated = append(r.Tolerated, Mismatch{
		Kind:    kind,
		Class:   class,
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	})
}
