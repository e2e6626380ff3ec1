package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	envPrefix = "TAGMIGRATE"
)

// MysqlConfig defines configs related to MySQL
type MysqlConfig struct {
	Protocol        string
	Address         string
	Username        string
	Password        string
	PasswordPath    string `yaml:"password_path"`
	Database        string
	TLSConfig       string `yaml:"tls_config"` // tls=customValue in DSN
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime"`
}

// LoggingConfig defines configs related to logging
type LoggingConfig struct {
	Debug bool
	JSON  bool
}

// MigrationConfig defines configs for running the migrations.
type MigrationConfig struct {
	// TagBatchSize is the number of records read and tags written per
	// statement while normalizing tags.
	TagBatchSize int `yaml:"tag_batch_size"`
	// MaxConnectAttempts bounds the ping retries when opening the database.
	MaxConnectAttempts int `yaml:"max_connect_attempts"`
	// ConnectTimeout bounds the total time spent retrying the initial ping.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// TagMigrateConfig stores the application configuration. When editing any of
// these structs, Manager.addConfigs and Manager.LoadConfig should be updated
// to set and retrieve the configurations as appropriate.
type TagMigrateConfig struct {
	Mysql     MysqlConfig
	Logging   LoggingConfig
	Migration MigrationConfig
}

// addConfigs adds the configuration keys and default values that will be
// filled into the TagMigrateConfig struct
func (man Manager) addConfigs() {
	// MySQL
	man.addConfigString("mysql.protocol", "tcp",
		"MySQL server communication protocol (tcp,unix,...)")
	man.addConfigString("mysql.address", "localhost:3306",
		"MySQL server address (host:port)")
	man.addConfigString("mysql.username", "analytics",
		"MySQL server username")
	man.addConfigString("mysql.password", "",
		"MySQL server password (prefer env variable for security)")
	man.addConfigString("mysql.password_path", "",
		"Path to file containg MySQL server password")
	man.addConfigString("mysql.database", "analytics",
		"MySQL database name")
	man.addConfigString("mysql.tls_config", "",
		"MySQL TLS config value. Use skip-verify, true, false or custom key.")
	man.addConfigInt("mysql.max_open_conns", 10, "MySQL maximum open connection handles.")
	man.addConfigInt("mysql.max_idle_conns", 10, "MySQL maximum idle connection handles.")
	man.addConfigInt("mysql.conn_max_lifetime", 0, "MySQL maximum amount of time a connection may be reused.")

	// Logging
	man.addConfigBool("logging.debug", false,
		"Enable debug logging")
	man.addConfigBool("logging.json", false,
		"Log in JSON format")

	// Migration
	man.addConfigInt("migration.tag_batch_size", 1000,
		"Number of rows read and written per statement when normalizing tags (at most 16383)")
	man.addConfigInt("migration.max_connect_attempts", 10,
		"Number of attempts to reach the database before giving up")
	man.addConfigDuration("migration.connect_timeout", 30*time.Second,
		"Maximum time spent retrying the initial database connection")
}

// LoadConfig will load the config variables into a fully initialized
// TagMigrateConfig struct
func (man Manager) LoadConfig() TagMigrateConfig {
	man.loadConfigFile()

	return TagMigrateConfig{
		Mysql: MysqlConfig{
			Protocol:        man.getConfigString("mysql.protocol"),
			Address:         man.getConfigString("mysql.address"),
			Username:        man.getConfigString("mysql.username"),
			Password:        man.getConfigString("mysql.password"),
			PasswordPath:    man.getConfigString("mysql.password_path"),
			Database:        man.getConfigString("mysql.database"),
			TLSConfig:       man.getConfigString("mysql.tls_config"),
			MaxOpenConns:    man.getConfigInt("mysql.max_open_conns"),
			MaxIdleConns:    man.getConfigInt("mysql.max_idle_conns"),
			ConnMaxLifetime: man.getConfigInt("mysql.conn_max_lifetime"),
		},
		Logging: LoggingConfig{
			Debug: man.getConfigBool("logging.debug"),
			JSON:  man.getConfigBool("logging.json"),
		},
		Migration: MigrationConfig{
			TagBatchSize:       man.getConfigInt("migration.tag_batch_size"),
			MaxConnectAttempts: man.getConfigInt("migration.max_connect_attempts"),
			ConnectTimeout:     man.getConfigDuration("migration.connect_timeout"),
		},
	}
}

// IsSet determines whether a given config key has been explicitly set by any
// of the configuration sources. If false, the default value is being used.
func (man Manager) IsSet(key string) bool {
	return man.viper.IsSet(key)
}

// envNameFromConfigKey converts a config key into the corresponding
// environment variable name
func envNameFromConfigKey(key string) string {
	return envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// flagNameFromConfigKey converts a config key into the corresponding flag name
func flagNameFromConfigKey(key string) string {
	return strings.ReplaceAll(key, ".", "_")
}

// Manager manages the addition and retrieval of config values. It's only
// public API method is LoadConfig, which will return the populated
// TagMigrateConfig struct.
type Manager struct {
	viper    *viper.Viper
	command  *cobra.Command
	defaults map[string]any
}

// NewManager initializes a Manager wrapping the provided cobra
// command. All config flags will be attached to that command (and inherited by
// the subcommands). Typically this should be called just once, with the root
// command.
func NewManager(command *cobra.Command) Manager {
	man := Manager{
		viper:    viper.New(),
		command:  command,
		defaults: map[string]any{},
	}
	man.addConfigs()
	return man
}

// addDefault will check for duplication, then add a default value to the
// defaults map
func (man Manager) addDefault(key string, defVal any) {
	if _, exists := man.defaults[key]; exists {
		panic("Trying to add duplicate config for key " + key)
	}

	man.defaults[key] = defVal
}

func getFlagUsage(key string, usage string) string {
	return fmt.Sprintf("Env: %s\n\t\t%s", envNameFromConfigKey(key), usage)
}

// getInterfaceVal is a helper function used by the getConfig* functions to
// retrieve the config value as any, which will then be cast to the
// appropriate type by the getConfig* function.
func (man Manager) getInterfaceVal(key string) any {
	interfaceVal := man.viper.Get(key)
	if interfaceVal == nil {
		var ok bool
		interfaceVal, ok = man.defaults[key]
		if !ok {
			panic("Tried to look up default value for nonexistent config option: " + key)
		}
	}
	return interfaceVal
}

func (man Manager) bind(key string) {
	man.viper.BindPFlag(key, man.command.PersistentFlags().Lookup(flagNameFromConfigKey(key))) //nolint:errcheck
	man.viper.BindEnv(key, envNameFromConfigKey(key))                                          //nolint:errcheck
}

// addConfigString adds a string config to the config options
func (man Manager) addConfigString(key, defVal, usage string) {
	man.command.PersistentFlags().String(flagNameFromConfigKey(key), defVal, getFlagUsage(key, usage))
	man.bind(key)
	man.addDefault(key, defVal)
}

// getConfigString retrieves a string from the loaded config
func (man Manager) getConfigString(key string) string {
	interfaceVal := man.getInterfaceVal(key)
	stringVal, err := cast.ToStringE(interfaceVal)
	if err != nil {
		panic("Unable to cast to string for key " + key + ": " + err.Error())
	}

	return stringVal
}

// addConfigInt adds a int config to the config options
func (man Manager) addConfigInt(key string, defVal int, usage string) {
	man.command.PersistentFlags().Int(flagNameFromConfigKey(key), defVal, getFlagUsage(key, usage))
	man.bind(key)
	man.addDefault(key, defVal)
}

// getConfigInt retrieves a int from the loaded config
func (man Manager) getConfigInt(key string) int {
	interfaceVal := man.getInterfaceVal(key)
	intVal, err := cast.ToIntE(interfaceVal)
	if err != nil {
		panic("Unable to cast to int for key " + key + ": " + err.Error())
	}

	return intVal
}

// addConfigBool adds a bool config to the config options
func (man Manager) addConfigBool(key string, defVal bool, usage string) {
	man.command.PersistentFlags().Bool(flagNameFromConfigKey(key), defVal, getFlagUsage(key, usage))
	man.bind(key)
	man.addDefault(key, defVal)
}

// getConfigBool retrieves a bool from the loaded config
func (man Manager) getConfigBool(key string) bool {
	interfaceVal := man.getInterfaceVal(key)
	boolVal, err := cast.ToBoolE(interfaceVal)
	if err != nil {
		panic("Unable to cast to bool for key " + key + ": " + err.Error())
	}

	return boolVal
}

// addConfigDuration adds a duration config to the config options
func (man Manager) addConfigDuration(key string, defVal time.Duration, usage string) {
	man.command.PersistentFlags().Duration(flagNameFromConfigKey(key), defVal, getFlagUsage(key, usage))
	man.bind(key)
	man.addDefault(key, defVal)
}

// getConfigDuration retrieves a duration from the loaded config
func (man Manager) getConfigDuration(key string) time.Duration {
	interfaceVal := man.getInterfaceVal(key)
	durationVal, err := cast.ToDurationE(interfaceVal)
	if err != nil {
		panic("Unable to cast to duration for key " + key + ": " + err.Error())
	}

	return durationVal
}

// loadConfigFile handles the loading of the config file.
func (man Manager) loadConfigFile() {
	man.viper.SetConfigType("yaml")

	configFile := man.command.PersistentFlags().Lookup("config").Value.String()

	if configFile == "" {
		// No config file set, only use configs from env
		// vars/flags/defaults
		return
	}

	man.viper.SetConfigFile(configFile)
	err := man.viper.ReadInConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error loading config file:", err)
		os.Exit(1)
	}

	fmt.Fprintln(os.Stderr, "Using config file: ", man.viper.ConfigFileUsed())
}

// TestConfig returns a barebones configuration suitable for use in tests.
// Individual tests may want to override some of the values provided.
func TestConfig() TagMigrateConfig {
	return TagMigrateConfig{
		Mysql: MysqlConfig{
			Protocol: "tcp",
			Address:  "localhost:3307",
			Username: "analytics",
			Password: "insecure",
			Database: "analytics_test",
		},
		Logging: LoggingConfig{
			Debug: true,
		},
		Migration: MigrationConfig{
			TagBatchSize:       100,
			MaxConnectAttempts: 1,
		},
	}
}
