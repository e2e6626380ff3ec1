// Package mysql opens the analytics MySQL database and drives its table
// migrations.
package mysql

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dashcraft/tagmigrate/server/analytics"
	"github.com/dashcraft/tagmigrate/server/config"
	"github.com/dashcraft/tagmigrate/server/contexts/ctxerr"
	"github.com/dashcraft/tagmigrate/server/datastore/mysql/migrations/tables"
	"github.com/dashcraft/tagmigrate/server/goose"
	"github.com/dashcraft/tagmigrate/server/tagsv2"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

// Datastore wraps the connection to the analytics database.
type Datastore struct {
	db *sqlx.DB

	logger       log.Logger
	config       config.MysqlConfig
	tagBatchSize int
}

// New creates an MySQL datastore.
func New(config config.MysqlConfig, opts ...DBOption) (*Datastore, error) {
	options := &dbOptions{
		maxAttempts:    defaultMaxAttempts,
		connectTimeout: defaultConnectTimeout,
		logger:         log.NewNopLogger(),
	}

	for _, setOpt := range opts {
		if setOpt != nil {
			if err := setOpt(options); err != nil {
				return nil, err
			}
		}
	}

	if err := checkConfig(&config); err != nil {
		return nil, err
	}

	db, err := newDB(&config, options)
	if err != nil {
		return nil, err
	}

	return &Datastore{
		db:           db,
		logger:       options.logger,
		config:       config,
		tagBatchSize: options.tagBatchSize,
	}, nil
}

func newDB(conf *config.MysqlConfig, opts *dbOptions) (*sqlx.DB, error) {
	dsn := generateMysqlConnectionString(*conf)
	db, err := sqlx.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(conf.MaxIdleConns)
	db.SetMaxOpenConns(conf.MaxOpenConns)
	db.SetConnMaxLifetime(time.Second * time.Duration(conf.ConnMaxLifetime))

	attempts := opts.maxAttempts
	if attempts < 1 {
		attempts = 1
	}
	expBo := backoff.NewExponentialBackOff()
	expBo.MaxElapsedTime = opts.connectTimeout
	bo := backoff.WithMaxRetries(expBo, uint64(attempts-1))

	ping := func() error {
		err := db.Ping()
		if err != nil && isPermanentConnectError(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, interval time.Duration) {
		level.Info(opts.logger).Log("mysql", fmt.Sprintf(
			"could not connect to db: %v, sleeping %v", err, interval))
	}
	if err := backoff.RetryNotify(ping, bo, notify); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func checkConfig(conf *config.MysqlConfig) error {
	if conf.PasswordPath != "" && conf.Password != "" {
		return errors.New("A MySQL password and a MySQL password file were provided - please specify only one")
	}

	// Check to see if the flag is populated
	// Check if file exists on disk
	// If file exists read contents
	if conf.PasswordPath != "" {
		fileContents, err := os.ReadFile(conf.PasswordPath)
		if err != nil {
			return err
		}
		conf.Password = strings.TrimSpace(string(fileContents))
	}
	return nil
}

func (d *Datastore) tagsV2Options() tagsv2.Options {
	return tagsv2.Options{
		BatchSize: d.tagBatchSize,
		Logger:    log.With(d.logger, "component", "tags_v2"),
	}
}

// MigrateTables applies every pending table migration, in order.
func (d *Datastore) MigrateTables(ctx context.Context) error {
	tables.SetTagsV2Options(d.tagsV2Options())
	return ctxerr.Wrap(ctx, tables.MigrationClient.Up(d.db.DB), "migrate tables")
}

// RollbackTables reverts the most recently applied table migration.
func (d *Datastore) RollbackTables(ctx context.Context) error {
	tables.SetTagsV2Options(d.tagsV2Options())
	return ctxerr.Wrap(ctx, tables.MigrationClient.Down(d.db.DB), "rollback tables")
}

// CurrentVersion returns the version of the last applied table migration, 0
// if none.
func (d *Datastore) CurrentVersion(ctx context.Context) (int64, error) {
	v, err := tables.MigrationClient.GetDBVersion(d.db.DB)
	if err != nil {
		return 0, ctxerr.Wrap(ctx, err, "get db version")
	}
	return v, nil
}

// MigrationStatus will return the current status of the migrations
// comparing the known migrations in code and the applied migrations in the database.
//
// It assumes some deployments may perform migrations out of order.
func (d *Datastore) MigrationStatus(ctx context.Context) (*analytics.MigrationStatus, error) {
	if tables.MigrationClient.Migrations == nil {
		return nil, ctxerr.New(ctx, "unexpected nil migrations list")
	}
	applied, err := tables.MigrationClient.AppliedVersions(d.db.DB)
	if err != nil {
		return nil, ctxerr.Wrap(ctx, err, "cannot load migrations")
	}
	if len(applied) == 0 {
		return &analytics.MigrationStatus{
			StatusCode: analytics.NoMigrationsCompleted,
		}, nil
	}

	missing, unknown, equal := compareVersions(
		getVersionsFromMigrations(tables.MigrationClient.Migrations),
		applied,
		knownUnknownTableMigrations,
	)
	switch {
	case equal:
		return &analytics.MigrationStatus{
			StatusCode: analytics.AllMigrationsCompleted,
		}, nil
	case len(unknown) > 0:
		return &analytics.MigrationStatus{
			StatusCode: analytics.UnknownMigrations,
			Unknown:    unknown,
		}, nil
	default:
		return &analytics.MigrationStatus{
			StatusCode: analytics.SomeMigrationsCompleted,
			Missing:    missing,
		}, nil
	}
}

// knownUnknownTableMigrations lists versions that may be recorded in the
// database without a matching migration and must not be reported.
var knownUnknownTableMigrations = map[int64]struct{}{}

func unknownUnknowns(in []int64, knownUnknowns map[int64]struct{}) []int64 {
	var result []int64
	for _, t := range in {
		if _, ok := knownUnknowns[t]; !ok {
			result = append(result, t)
		}
	}
	return result
}

// compareVersions returns any missing or extra elements in v2 with respect to v1
// (v1 or v2 need not be ordered).
func compareVersions(v1, v2 []int64, knownUnknowns map[int64]struct{}) (missing []int64, unknown []int64, equal bool) {
	v1s := make(map[int64]struct{})
	for _, m := range v1 {
		v1s[m] = struct{}{}
	}
	v2s := make(map[int64]struct{})
	for _, m := range v2 {
		v2s[m] = struct{}{}
	}
	for _, m := range v1 {
		if _, ok := v2s[m]; !ok {
			missing = append(missing, m)
		}
	}
	for _, m := range v2 {
		if _, ok := v1s[m]; !ok {
			unknown = append(unknown, m)
		}
	}
	unknown = unknownUnknowns(unknown, knownUnknowns)
	if len(missing) == 0 && len(unknown) == 0 {
		return nil, nil, true
	}
	return missing, unknown, false
}

func getVersionsFromMigrations(migrations goose.Migrations) []int64 {
	return migrations.Versions()
}

// HealthCheck returns an error if the MySQL backend is not healthy.
func (d *Datastore) HealthCheck() error {
	_, err := d.db.ExecContext(context.Background(), "select 1")
	return err
}

// Close frees resources associated with underlying mysql connection
func (d *Datastore) Close() error {
	return d.db.Close()
}

// generateMysqlConnectionString returns a MySQL connection string using the
// provided configuration.
func generateMysqlConnectionString(conf config.MysqlConfig) string {
	tz := url.QueryEscape("'-00:00'")
	dsn := fmt.Sprintf(
		"%s:%s@%s(%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC&time_zone=%s&clientFoundRows=true&allowNativePasswords=true&multiStatements=true",
		conf.Username,
		conf.Password,
		conf.Protocol,
		conf.Address,
		conf.Database,
		tz,
	)

	if conf.TLSConfig != "" {
		dsn = fmt.Sprintf("%s&tls=%s", dsn, conf.TLSConfig)
	}

	return dsn
}
