package main

import (
	"fmt"

	"github.com/dashcraft/tagmigrate/server/goose"
	"github.com/spf13/cobra"
)

func createNewMigrationCmd() *cobra.Command {
	var (
		dir  string
		noTx bool
	)
	cmd := &cobra.Command{
		Use:   "new_migration <Name>",
		Short: "Write a blank table migration and its test",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := goose.Create(dir, args[0], noTx); err != nil {
				return fmt.Errorf("create migration: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "server/datastore/mysql/migrations/tables", "directory of the table migrations")
	cmd.Flags().BoolVar(&noTx, "no-tx", false, "the migration manages its own transactions")
	return cmd
}
