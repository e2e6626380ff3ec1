// Package goose is a small migration runner derived from pressly/goose. It
// only runs Go migrations registered at init time, records applied versions
// in a version table, and supports migrations that must not run inside a
// transaction.
package goose

import (
	"database/sql"
	"errors"
	"fmt"
	"runtime"
	"sort"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

var (
	ErrNoCurrentVersion  = errors.New("no current version found")
	ErrNoNextVersion     = errors.New("no next version found")
	ErrNoPreviousVersion = errors.New("no previous version found")
)

// Client registers migrations and applies them against a database. The
// version table name and the SQL dialect are fixed at creation.
type Client struct {
	TableName  string
	Dialect    SqlDialect
	Migrations Migrations

	// Logger receives one line per applied migration. Defaults to a no-op
	// logger.
	Logger log.Logger
}

func New(tableName string, dialect SqlDialect) *Client {
	return &Client{
		TableName: tableName,
		Dialect:   dialect,
	}
}

func (c *Client) logger() log.Logger {
	if c.Logger == nil {
		return log.NewNopLogger()
	}
	return c.Logger
}

// AddMigration registers a migration that runs inside a transaction. The
// version is taken from the name of the calling file, which must look like
// 20220301234100_DescriptiveName.go.
func (c *Client) AddMigration(up func(*sql.Tx) error, down func(*sql.Tx) error) {
	_, filename, _, _ := runtime.Caller(1)
	c.AddNamedMigration(filename, up, down)
}

// AddMigrationNoTx registers a migration that receives the database handle
// itself, for migrations that commit in many small steps.
func (c *Client) AddMigrationNoTx(up func(*sql.DB) error, down func(*sql.DB) error) {
	_, filename, _, _ := runtime.Caller(1)
	c.AddNamedMigrationNoTx(filename, up, down)
}

func (c *Client) AddNamedMigration(filename string, up func(*sql.Tx) error, down func(*sql.Tx) error) {
	c.register(&Migration{Source: filename, UseTx: true, UpFn: up, DownFn: down})
}

func (c *Client) AddNamedMigrationNoTx(filename string, up func(*sql.DB) error, down func(*sql.DB) error) {
	c.register(&Migration{Source: filename, UpFnNoTx: up, DownFnNoTx: down})
}

func (c *Client) register(m *Migration) {
	v, err := NumericComponent(m.Source)
	if err != nil {
		panic(fmt.Sprintf("goose: invalid migration file name %q: %v", m.Source, err))
	}
	for _, existing := range c.Migrations {
		if existing.Version == v {
			panic(fmt.Sprintf("goose: duplicate version %d in %s and %s", v, existing.Source, m.Source))
		}
	}
	m.Version = v
	m.Next, m.Previous = -1, -1

	c.Migrations = append(c.Migrations, m)
	sort.Sort(c.Migrations)
	c.Migrations.link()
}

// Up applies every registered migration newer than the current version.
func (c *Client) Up(db *sql.DB) error {
	for {
		current, err := c.GetDBVersion(db)
		if err != nil {
			return err
		}

		next, err := c.Migrations.Next(current)
		if err != nil {
			if errors.Is(err, ErrNoNextVersion) {
				level.Info(c.logger()).Log("msg", "no migrations to run", "current_version", current)
				return nil
			}
			return err
		}

		if err = c.runMigration(db, next, migrateUp); err != nil {
			return err
		}
	}
}

// UpByOne applies the next migration only.
func (c *Client) UpByOne(db *sql.DB) error {
	current, err := c.GetDBVersion(db)
	if err != nil {
		return err
	}

	next, err := c.Migrations.Next(current)
	if err != nil {
		return err
	}

	return c.runMigration(db, next, migrateUp)
}

// Down rolls back the current migration.
func (c *Client) Down(db *sql.DB) error {
	current, err := c.GetDBVersion(db)
	if err != nil {
		return err
	}

	m, err := c.Migrations.Current(current)
	if err != nil {
		return err
	}

	return c.runMigration(db, m, migrateDown)
}

// GetDBVersion returns the version of the most recently applied migration,
// creating the version table if needed.
func (c *Client) GetDBVersion(db *sql.DB) (int64, error) {
	return c.EnsureDBVersion(db)
}

// EnsureDBVersion retrieves the current version for this DB and creates and
// initializes the version table if it doesn't exist.
func (c *Client) EnsureDBVersion(db *sql.DB) (int64, error) {
	rows, err := c.Dialect.dbVersionQuery(db, c.TableName)
	if err != nil {
		// the version table is created lazily, assume any error here means
		// it is missing
		return 0, c.createVersionTable(db)
	}
	defer rows.Close()

	// The most recent record for each migration specifies whether it has
	// been applied or rolled back. The first version we find that has been
	// applied is the current version.
	toSkip := make(map[int64]struct{})
	for rows.Next() {
		var row MigrationRecord
		if err = rows.Scan(&row.VersionId, &row.IsApplied); err != nil {
			return 0, fmt.Errorf("scan version row: %w", err)
		}

		if _, ok := toSkip[row.VersionId]; ok {
			continue
		}
		if row.IsApplied {
			return row.VersionId, nil
		}
		// latest record for this version is a rollback
		toSkip[row.VersionId] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate version rows: %w", err)
	}

	return 0, nil
}

// AppliedVersions returns the versions whose latest record marks them as
// applied, in ascending order. Version 0, written when the table is created,
// is not included.
func (c *Client) AppliedVersions(db *sql.DB) ([]int64, error) {
	if _, err := c.EnsureDBVersion(db); err != nil {
		return nil, err
	}

	rows, err := c.Dialect.dbVersionQuery(db, c.TableName)
	if err != nil {
		return nil, fmt.Errorf("query versions: %w", err)
	}
	defer rows.Close()

	latest := make(map[int64]bool)
	for rows.Next() {
		var row MigrationRecord
		if err := rows.Scan(&row.VersionId, &row.IsApplied); err != nil {
			return nil, fmt.Errorf("scan version row: %w", err)
		}
		// rows come most recent first
		if _, seen := latest[row.VersionId]; !seen {
			latest[row.VersionId] = row.IsApplied
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate version rows: %w", err)
	}

	var applied []int64
	for v, ok := range latest {
		if ok && v > 0 {
			applied = append(applied, v)
		}
	}
	sort.Slice(applied, func(i, j int) bool { return applied[i] < applied[j] })
	return applied, nil
}

// Create the version table and insert the initial 0 value into it.
func (c *Client) createVersionTable(db *sql.DB) error {
	txn, err := db.Begin()
	if err != nil {
		return err
	}

	if _, err := txn.Exec(c.Dialect.createVersionTableSql(c.TableName)); err != nil {
		txn.Rollback() //nolint:errcheck
		return err
	}

	version := 0
	applied := true
	if _, err := txn.Exec(c.Dialect.insertVersionSql(c.TableName), version, applied); err != nil {
		txn.Rollback() //nolint:errcheck
		return err
	}

	return txn.Commit()
}
