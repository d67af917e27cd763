package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

// MigrateResult lists the tables ensured by migrate.
type MigrateResult struct {
	Driver string   `json:"driver"`
	Tables []string `json:"tables"`
}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create missing tables for the configured schema",
		Long: `Create every table of the configured schema that does not exist yet.

Existing tables are left untouched; columns are never altered or dropped.
Resource commands migrate on open as well, so this is mostly useful to
prepare a database ahead of time.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(rootOpts, cmd)
		},
	}
	return cmd
}

func runMigrate(opts *RootOptions, cmd *cobra.Command) (err error) {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	e, err := openEnv(opts)
	if err != nil {
		_ = formatter.Failure(err)
		return err
	}
	defer func() {
		if closeErr := e.Close(); closeErr != nil && err == nil {
			err = WrapExitError(ExitCommandError, "close", closeErr)
		}
	}()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := e.store.Migrate(ctx); err != nil {
		_ = formatter.Failure(err)
		return WrapExitError(ExitCommandError, "migrate", err)
	}

	result := MigrateResult{Driver: e.cfg.Database.Driver}
	for _, name := range e.schema.Names() {
		result.Tables = append(result.Tables, e.schema[name].Table)
	}
	slog.Info("migrated", "driver", result.Driver, "tables", len(result.Tables))

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ Migrated %d table(s)\n", len(result.Tables))
	for _, t := range result.Tables {
		fmt.Fprintf(formatter.Writer, "  %s\n", t)
	}
	return nil
}
