package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/arkilian/realmstore/internal/snapshot"
)

// NewSnapshotsCommand creates the snapshots command.
func NewSnapshotsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshots <store>",
		Short: "List the pre-migration snapshots of a store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, f, err := newApp(cmd, rootOpts)
			if err != nil {
				return fail(f, err)
			}
			snaps, err := a.Snapshots(cmd.Context(), args[0])
			if err != nil {
				return fail(f, err)
			}
			if snaps == nil {
				snaps = []snapshot.Snapshot{}
			}
			return f.Success(snaps, func(w io.Writer) {
				if len(snaps) == 0 {
					fmt.Fprintln(w, "no snapshots")
					return
				}
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tFROM\tTO\tSIZE\tCREATED")
				for _, s := range snaps {
					fmt.Fprintf(tw, "%s\tv%d\tv%d\t%d\t%s\n", s.ID, s.From, s.To, s.Size, s.CreatedAt.Format(time.RFC3339))
				}
				tw.Flush()
			})
		},
	}
}

// NewRestoreCommand creates the restore command.
func NewRestoreCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <store> [snapshot-id]",
		Short: "Replace a store with one of its snapshots",
		Long: `Replace a store with one of its snapshots. Without an id the newest snapshot
is restored; an id may be shortened to any unique prefix.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, f, err := newApp(cmd, rootOpts)
			if err != nil {
				return fail(f, err)
			}
			id := ""
			if len(args) == 2 {
				id = args[1]
			}
			snap, err := a.Restore(cmd.Context(), args[0], id)
			if err != nil {
				return fail(f, err)
			}
			return f.Success(snap, func(w io.Writer) {
				fmt.Fprintf(w, "restored %s to version %d (snapshot %s)\n", args[0], snap.From, snap.ID)
			})
		},
	}
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <store>",
		Short: "Delete a store's files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return NewExitError(ExitCommandError, "refusing to delete without --yes")
			}
			a, f, err := newApp(cmd, rootOpts)
			if err != nil {
				return fail(f, err)
			}
			if err := a.Delete(args[0]); err != nil {
				return fail(f, err)
			}
			path := a.Config().StorePath(args[0])
			return f.Success(map[string]string{"deleted": path}, func(w io.Writer) {
				fmt.Fprintf(w, "deleted %s\n", path)
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm deletion")
	return cmd
}
