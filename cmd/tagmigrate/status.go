package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dashcraft/tagmigrate/server/analytics"
	"github.com/dashcraft/tagmigrate/server/config"
	"github.com/dashcraft/tagmigrate/server/contexts/ctxerr"
	"github.com/dashcraft/tagmigrate/server/datastore/mysql/migrations/tables"
	"github.com/spf13/cobra"
)

func createStatusCmd(configManager config.Manager) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the migrations known to this binary and the ones applied to the database",
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
			current, err := ds.CurrentVersion(ctx)
			if err != nil {
				initFatal(ctxerr.Handle(ctx, err), "retrieve current version")
			}

			printStatus(cmd.OutOrStdout(), status, current)
		},
	}
}

func printStatus(w io.Writer, status *analytics.MigrationStatus, current int64) {
	missing := make(map[int64]bool, len(status.Missing))
	for _, v := range status.Missing {
		missing[v] = true
	}

	fmt.Fprintf(w, "Status: %s\n", status.StatusCode)
	fmt.Fprintf(w, "Current version: %d\n", current)
	for _, m := range tables.MigrationClient.Migrations {
		state := "applied"
		if status.StatusCode == analytics.NoMigrationsCompleted || missing[m.Version] {
			state = "pending"
		}
		fmt.Fprintf(w, "  %-8s %s\n", state, filepath.Base(m.Source))
	}
	for _, v := range status.Unknown {
		fmt.Fprintf(w, "  %-8s %d\n", "unknown", v)
	}
}
