package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/arkilian/realmstore/pkg/types"
)

// InspectResult is the JSON form of inspect.
type InspectResult struct {
	Path        string        `json:"path"`
	Version     int64         `json:"version"`
	Fingerprint string        `json:"fingerprint"`
	Classes     []ClassResult `json:"classes"`
}

// ClassResult lists a class's fields in physical order.
type ClassResult struct {
	Name   string        `json:"name"`
	Fields []FieldResult `json:"fields"`
}

// FieldResult is one column of a class.
type FieldResult struct {
	Position   int    `json:"position"`
	Name       string `json:"name"`
	Type       string `json:"type"`
	Nullable   bool   `json:"nullable"`
	Indexed    bool   `json:"indexed"`
	PrimaryKey bool   `json:"primary_key"`
	Link       string `json:"link,omitempty"`
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <store>",
		Short: "Show the version and schema a store holds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, f, err := newApp(cmd, rootOpts)
			if err != nil {
				return fail(f, err)
			}
			info, err := a.Inspect(cmd.Context(), args[0])
			if err != nil {
				return fail(f, err)
			}

			result := InspectResult{
				Path:        info.Path,
				Version:     info.Version,
				Fingerprint: info.Fingerprint,
				Classes:     classResults(info.Schema),
			}
			return f.Success(result, func(w io.Writer) {
				fmt.Fprintf(w, "path:        %s\n", info.Path)
				fmt.Fprintf(w, "version:     %s\n", versionString(info.Version))
				fmt.Fprintf(w, "fingerprint: %s\n", info.Fingerprint)
				renderSchema(w, result.Classes)
			})
		},
	}
}

func classResults(s *types.Schema) []ClassResult {
	out := make([]ClassResult, 0, len(s.Classes))
	for _, c := range s.Classes {
		cr := ClassResult{Name: c.Name, Fields: make([]FieldResult, 0, len(c.Fields))}
		for _, fd := range c.Fields {
			cr.Fields = append(cr.Fields, FieldResult{
				Position:   fd.Position,
				Name:       fd.Name,
				Type:       fd.Type.String(),
				Nullable:   fd.Nullable,
				Indexed:    fd.Indexed,
				PrimaryKey: fd.PrimaryKey,
				Link:       fd.LinkTarget,
			})
		}
		out = append(out, cr)
	}
	return out
}

// renderSchema prints one block per class:
//
//	Dog
//	  1  id    integer  primary_key indexed
//	  2  name  string   nullable
func renderSchema(w io.Writer, classes []ClassResult) {
	for _, c := range classes {
		fmt.Fprintf(w, "\n%s\n", c.Name)
		nameWidth, typeWidth := 0, 0
		for _, fr := range c.Fields {
			nameWidth = max(nameWidth, len(fr.Name))
			typeWidth = max(typeWidth, len(typeLabel(fr)))
		}
		for _, fr := range c.Fields {
			line := fmt.Sprintf("  %d  %-*s  %-*s  %s", fr.Position, nameWidth, fr.Name, typeWidth, typeLabel(fr), strings.Join(flags(fr), " "))
			fmt.Fprintln(w, strings.TrimRight(line, " "))
		}
	}
}

func typeLabel(fr FieldResult) string {
	if fr.Link != "" {
		return fmt.Sprintf("%s<%s>", fr.Type, fr.Link)
	}
	return fr.Type
}

func flags(fr FieldResult) []string {
	var out []string
	if fr.PrimaryKey {
		out = append(out, "primary_key")
	}
	if fr.Indexed {
		out = append(out, "indexed")
	}
	if fr.Nullable {
		out = append(out, "nullable")
	}
	return out
}

func versionString(v int64) string {
	if v == types.Unversioned {
		return "unversioned"
	}
	return fmt.Sprint(v)
}
