package main

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/dashcraft/tagmigrate/server/analytics"
	"github.com/dashcraft/tagmigrate/server/config"
	"github.com/dashcraft/tagmigrate/server/contexts/ctxerr"
	"github.com/spf13/cobra"
)

func createPrepareCmd(configManager config.Manager) *cobra.Command {
	prepareCmd := &cobra.Command{
		Use:   "prepare",
		Short: "Subcommands for initializing the analytics database",
		Long: `
Subcommands for initializing the analytics database

To migrate the database, use one of the available commands.
`,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help() //nolint:errcheck
		},
	}

	noPrompt := false

	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Given correct database configurations, apply all pending migrations",
		Long:  ``,
		Run: func(cmd *cobra.Command, args []string) {
			cfg := configManager.LoadConfig()
			logger := initLogger(cfg, os.Stderr)
			ctx := ctxerr.NewContext(cmd.Context(), logger)

			ds := openDatastore(cfg, logger)
			defer ds.Close()

			status, err := ds.MigrationStatus(ctx)
			if err != nil {
				initFatal(ctxerr.Handle(ctx, err), "retrieve migration status")
			}

			prepareMigrationStatusCheck(cmd.OutOrStdout(), os.Stdin, status, noPrompt, cfg.Mysql.Database)

			if err := ds.MigrateTables(ctx); err != nil {
				initFatal(ctxerr.Handle(ctx, err), "migrate db schema")
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Migrations completed.")
		},
	}

	dbCmd.PersistentFlags().BoolVar(&noPrompt, "no-prompt", false, "disable prompting before migrations (for use in scripts)")

	prepareCmd.AddCommand(dbCmd)

	return prepareCmd
}

func prepareMigrationStatusCheck(w io.Writer, in io.Reader, status *analytics.MigrationStatus, noPrompt bool, dbName string) {
	switch status.StatusCode {
	case analytics.NoMigrationsCompleted:
		// OK
	case analytics.AllMigrationsCompleted:
		fmt.Fprintf(w, "Migrations already completed for %q. Nothing to do.\n", dbName)
	case analytics.SomeMigrationsCompleted:
		if !noPrompt {
			fmt.Fprintf(w, "################################################################################\n"+
				"# WARNING:\n"+
				"#   This will perform %q database migrations. Please back up your data before\n"+
				"#   continuing.\n"+
				"#\n"+
				"#   Missing migrations: %v.\n"+
				"#\n"+
				"#   Press Enter to continue, or Control-c to exit.\n"+
				"################################################################################\n",
				dbName, status.Missing)
			bufio.NewScanner(in).Scan()
		}
	case analytics.UnknownMigrations:
		fmt.Fprintf(w, "################################################################################\n"+
			"# WARNING:\n"+
			"#   Your %q database has unrecognized migrations. This could happen when\n"+
			"#   running an older version of tagmigrate on a newer migrated database.\n"+
			"#\n"+
			"#   Unknown migrations: %v.\n"+
			"################################################################################\n",
			dbName, status.Unknown)
	}
}
