// Package columns resolves field names to physical column positions for one
// open store. A Table is owned by the handle that resolved it; nothing here is
// cached across handles, because two stores with the same logical schema may
// lay their columns out differently.
package columns

import (
	"fmt"
	"sort"
	"strings"

	"github.com/arkilian/realmstore/pkg/types"
)

// Table maps (class, field) to a column position within one store handle.
type Table struct {
	classes map[string]*classColumns
}

type classColumns struct {
	positions map[string]int
	fields    []string // physical order
}

// Resolve builds the table from a schema read back from the store. Fields
// without a physical position are skipped.
func Resolve(actual *types.Schema) *Table {
	t := &Table{classes: make(map[string]*classColumns, len(actual.Classes))}
	for _, c := range actual.Classes {
		cc := &classColumns{positions: make(map[string]int, len(c.Fields))}
		fields := make([]types.FieldDescriptor, 0, len(c.Fields))
		for _, f := range c.Fields {
			if f.Position > 0 {
				fields = append(fields, f)
			}
		}
		sort.SliceStable(fields, func(i, j int) bool { return fields[i].Position < fields[j].Position })
		for _, f := range fields {
			cc.positions[f.Name] = f.Position
			cc.fields = append(cc.fields, f.Name)
		}
		t.classes[c.Name] = cc
	}
	return t
}

// Position returns the column position of a field.
func (t *Table) Position(class, field string) (int, bool) {
	cc, ok := t.classes[class]
	if !ok {
		return 0, false
	}
	pos, ok := cc.positions[field]
	return pos, ok
}

// Fields returns the field names of a class in physical column order.
func (t *Table) Fields(class string) []string {
	cc, ok := t.classes[class]
	if !ok {
		return nil
	}
	out := make([]string, len(cc.fields))
	copy(out, cc.fields)
	return out
}

// Classes returns the resolved class names, sorted.
func (t *Table) Classes() []string {
	names := make([]string, 0, len(t.classes))
	for name := range t.classes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// String renders the table as "Class.field=position" entries, one class per line.
func (t *Table) String() string {
	var b strings.Builder
	for _, class := range t.Classes() {
		cc := t.classes[class]
		b.WriteString(class)
		for _, f := range cc.fields {
			fmt.Fprintf(&b, " %s=%d", f, cc.positions[f])
		}
		b.WriteByte('\n')
	}
	return b.String()
}
