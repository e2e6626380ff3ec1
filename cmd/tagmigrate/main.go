// Command tagmigrate prepares the analytics database and runs the tags
// normalization migration forwards or backwards.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/dashcraft/tagmigrate/server/config"
	"github.com/dashcraft/tagmigrate/server/datastore/mysql"
	"github.com/dashcraft/tagmigrate/server/health"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/spf13/cobra"
)

func main() {
	if err := createRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func createRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tagmigrate",
		Short: "Analytics database migrations",
		Long: `
tagmigrate applies the analytics table migrations, including the one that
moves the free-text tags of insights and dashboards to the tags and
tagged_items tables.

Configurable by flags, environment variables (TAGMIGRATE_ prefix) or a yaml
file given with --config.
`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to a configuration file")
	configManager := config.NewManager(rootCmd)

	rootCmd.AddCommand(
		createPrepareCmd(configManager),
		createRollbackCmd(configManager),
		createStatusCmd(configManager),
		createConfigDumpCmd(configManager),
		createNewMigrationCmd(),
	)

	return rootCmd
}

func initLogger(cfg config.TagMigrateConfig, w io.Writer) log.Logger {
	var logger log.Logger
	if cfg.Logging.JSON {
		logger = log.NewJSONLogger(log.NewSyncWriter(w))
	} else {
		logger = log.NewLogfmtLogger(log.NewSyncWriter(w))
	}

	if cfg.Logging.Debug {
		logger = level.NewFilter(logger, level.AllowDebug())
	} else {
		logger = level.NewFilter(logger, level.AllowInfo())
	}

	return log.With(logger, "ts", log.DefaultTimestampUTC)
}

// initFatal prints an error message and exits with a non-zero status.
func initFatal(err error, message string) {
	fmt.Fprintf(os.Stderr, "Failed to %s: %s\n", message, err)
	os.Exit(1)
}

func openDatastore(cfg config.TagMigrateConfig, logger log.Logger) *mysql.Datastore {
	ds, err := mysql.New(cfg.Mysql,
		mysql.Logger(logger),
		mysql.LimitAttempts(cfg.Migration.MaxConnectAttempts),
		mysql.ConnectTimeout(cfg.Migration.ConnectTimeout),
		mysql.TagBatchSize(cfg.Migration.TagBatchSize),
	)
	if err != nil {
		initFatal(err, "create db connection")
	}
	if err := health.CheckHealth(logger, map[string]health.Checker{"mysql": ds}); err != nil {
		initFatal(err, "check db health")
	}
	return ds
}
