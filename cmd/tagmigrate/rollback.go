package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dashcraft/tagmigrate/server/config"
	"github.com/dashcraft/tagmigrate/server/contexts/ctxerr"
	"github.com/dashcraft/tagmigrate/server/datastore/mysql/migrations/tables"
	"github.com/spf13/cobra"
)

func createRollbackCmd(configManager config.Manager) *cobra.Command {
	rollbackCmd := &cobra.Command{
		Use:   "rollback",
		Short: "Subcommands for reverting migrations",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help() //nolint:errcheck
		},
	}

	noPrompt := false

	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Revert the most recently applied migration",
		Long: `
Revert the most recently applied migration.

Reverting the tags migration deletes every tag attached to an insight or a
dashboard. Tags added after the migration ran are lost, the deprecated_tags
columns are left as they were.
`,
		Run: func(cmd *cobra.Command, args []string) {
			cfg := configManager.LoadConfig()
			logger := initLogger(cfg, os.Stderr)
			ctx := ctxerr.NewContext(cmd.Context(), logger)

			ds := openDatastore(cfg, logger)
			defer ds.Close()

			current, err := ds.CurrentVersion(ctx)
			if err != nil {
				initFatal(ctxerr.Handle(ctx, err), "retrieve current version")
			}
			if current == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No migrations applied to %q. Nothing to do.\n", cfg.Mysql.Database)
				return
			}

			if !rollbackConfirm(cmd.OutOrStdout(), os.Stdin, current, noPrompt, cfg.Mysql.Database) {
				return
			}

			if err := ds.RollbackTables(ctx); err != nil {
				initFatal(ctxerr.Handle(ctx, err), "roll back migration")
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Rolled back migration %d.\n", current)
		},
	}

	dbCmd.PersistentFlags().BoolVar(&noPrompt, "no-prompt", false, "disable prompting before rolling back (for use in scripts)")

	rollbackCmd.AddCommand(dbCmd)

	return rollbackCmd
}

// rollbackConfirm warns about the migration about to be reverted and waits
// for the user to press Enter. Any input other than an empty line cancels.
func rollbackConfirm(w io.Writer, in io.Reader, version int64, noPrompt bool, dbName string) bool {
	if noPrompt {
		return true
	}

	name := fmt.Sprint(version)
	if m, err := tables.MigrationClient.Migrations.Current(version); err == nil {
		name = filepath.Base(m.Source)
	}

	fmt.Fprintf(w, "################################################################################\n"+
		"# WARNING:\n"+
		"#   This will revert migration %s on the %q database.\n"+
		"#   Please back up your data before continuing.\n"+
		"#\n"+
		"#   Press Enter to continue, or type anything else to exit.\n"+
		"################################################################################\n",
		name, dbName)

	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		return false
	}
	return scanner.Text() == ""
}
