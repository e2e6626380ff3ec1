package main

import (
	"github.com/dashcraft/tagmigrate/server/config"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"
)

const configDumpLong = `
Print the configuration tagmigrate would run with, as yaml.

Every key can be set in four places. The first one that sets a key wins:
  1. a command line flag, e.g. --mysql_address=db:3306
  2. an environment variable, e.g. TAGMIGRATE_MYSQL_ADDRESS=db:3306
  3. the yaml file given with --config
  4. the built in default

The output can be saved and passed back with --config.
`

func createConfigDumpCmd(configManager config.Manager) *cobra.Command {
	return &cobra.Command{
		Use:   "config_dump",
		Short: "Print the merged configuration as yaml",
		Long:  configDumpLong,
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out, err := yaml.Marshal(configManager.LoadConfig())
			if err != nil {
				initFatal(err, "encode config as yaml")
			}
			cmd.OutOrStdout().Write(out) //nolint:errcheck
		},
	}
}
