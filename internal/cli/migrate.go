package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// MigrateResult is the JSON form of migrate.
type MigrateResult struct {
	Path        string `json:"path"`
	FromVersion int64  `json:"from_version"`
	ToVersion   int64  `json:"to_version"`
	Pruned      int    `json:"pruned_snapshots"`
}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	var schemaFile, planFile string

	cmd := &cobra.Command{
		Use:   "migrate <store>",
		Short: "Migrate a store to a schema file's version with a plan",
		Long: `Migrate a store to the version of a schema file by running the pending
steps of a migration plan in one transaction. The result is verified against
the schema before it is committed; on any failure the store is unchanged.

A store that does not exist yet is created from the plan's initial step.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, f, err := newApp(cmd, rootOpts)
			if err != nil {
				return fail(f, err)
			}
			res, err := a.Migrate(cmd.Context(), args[0], schemaFile, planFile)
			if err != nil {
				return fail(f, err)
			}

			result := MigrateResult{
				Path:        res.Path,
				FromVersion: res.FromVersion,
				ToVersion:   res.ToVersion,
				Pruned:      res.Pruned,
			}
			return f.Success(result, func(w io.Writer) {
				if res.FromVersion == res.ToVersion {
					fmt.Fprintf(w, "%s is already at version %d\n", res.Path, res.ToVersion)
					return
				}
				fmt.Fprintf(w, "migrated %s from %s to %d\n", res.Path, versionString(res.FromVersion), res.ToVersion)
			})
		},
	}

	cmd.Flags().StringVarP(&schemaFile, "schema", "s", "", "expected schema file (YAML)")
	cmd.Flags().StringVarP(&planFile, "plan", "p", "", "migration plan file (YAML)")
	_ = cmd.MarkFlagRequired("schema")
	_ = cmd.MarkFlagRequired("plan")
	return cmd
}
