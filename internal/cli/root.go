// Package cli implements the realmstore command line.
package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/arkilian/realmstore/internal/app"
	"github.com/arkilian/realmstore/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigFile string
	DataDir    string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "realmstore",
		Short: "Inspect, verify and migrate schema-versioned object stores",
		Long: `realmstore checks object stores against an expected schema and migrates
them between schema versions with declarative plans. Migrations of versioned
stores are preceded by a compressed snapshot kept in local or S3 storage.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", "", "configuration file (YAML or JSON)")
	cmd.PersistentFlags().StringVar(&opts.DataDir, "data-dir", "", "directory for stores given by name")

	cmd.AddCommand(NewInspectCommand(opts))
	cmd.AddCommand(NewVerifyCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewSnapshotsCommand(opts))
	cmd.AddCommand(NewRestoreCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// loadConfig layers defaults or the config file, the environment and flags.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	var cfg *config.Config
	var err error

	if opts.ConfigFile != "" {
		cfg, err = config.LoadFromFile(opts.ConfigFile)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.DefaultConfig()
	}

	config.LoadFromEnv(cfg)

	if opts.DataDir != "" {
		cfg.DataDir = opts.DataDir
	}
	if opts.Verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

// newApp builds the application for one command run. Logs go to stderr so
// JSON output stays parseable.
func newApp(cmd *cobra.Command, opts *RootOptions) (*app.App, *OutputFormatter, error) {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, formatter, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	level, err := cfg.Level()
	if err != nil {
		return nil, formatter, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	a, err := app.New(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, formatter, WrapExitError(ExitCommandError, "failed to initialize", err)
	}
	return a, formatter, nil
}

// fail reports err through the formatter and returns it for the exit code.
func fail(f *OutputFormatter, err error) error {
	_ = f.Error(err)
	return err
}
