package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// VerifyResult is the JSON form of verify.
type VerifyResult struct {
	Path            string   `json:"path"`
	StoredVersion   int64    `json:"stored_version"`
	ExpectedVersion int64    `json:"expected_version"`
	Decision        string   `json:"decision"`
	OK              bool     `json:"ok"`
	Mismatches      []string `json:"mismatches,omitempty"`
	Tolerated       []string `json:"tolerated,omitempty"`
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	var schemaFile string

	cmd := &cobra.Command{
		Use:   "verify <store>",
		Short: "Check a store against a schema file without changing it",
		Long: `Check a store against a schema file without changing it.

Exits 1 when opening the store with that schema would fail or migrate.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, f, err := newApp(cmd, rootOpts)
			if err != nil {
				return fail(f, err)
			}
			v, err := a.Verify(cmd.Context(), args[0], schemaFile)
			if err != nil {
				return fail(f, err)
			}

			result := VerifyResult{
				Path:            v.Path,
				StoredVersion:   v.StoredVersion,
				ExpectedVersion: v.ExpectedVersion,
				Decision:        v.Decision.String(),
				OK:              v.OK(),
				Mismatches:      v.Report.Messages(),
			}
			for _, m := range v.Report.Tolerated {
				result.Tolerated = append(result.Tolerated, m.Message)
			}

			err = f.Success(result, func(w io.Writer) {
				fmt.Fprintf(w, "%s: stored %s, expected %s (%s)\n",
					v.Path, versionString(v.StoredVersion), versionString(v.ExpectedVersion), v.Decision)
				fmt.Fprint(w, v.Report.String())
			})
			if err != nil {
				return err
			}
			if !result.OK {
				return NewExitError(ExitFailure, "store does not match schema")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&schemaFile, "schema", "s", "", "expected schema file (YAML)")
	_ = cmd.MarkFlagRequired("schema")
	return cmd
}
