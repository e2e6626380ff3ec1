package goose

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/go-kit/log/level"
)

type MigrationRecord struct {
	VersionId int64
	TStamp    time.Time
	IsApplied bool // was this a result of up() or down()
}

type Migration struct {
	Version  int64
	Next     int64  // next version, or -1 if none
	Previous int64  // previous version, -1 if none
	Source   string // path to the .go file that registered it

	// UseTx selects between the transactional functions and the NoTx ones.
	UseTx      bool
	UpFn       func(*sql.Tx) error // Up go migration function
	DownFn     func(*sql.Tx) error // Down go migration function
	UpFnNoTx   func(*sql.DB) error
	DownFnNoTx func(*sql.DB) error
}

const (
	migrateUp   = true
	migrateDown = !migrateUp
)

func (m *Migration) String() string {
	return fmt.Sprint(m.Source)
}

func (c *Client) runMigration(db *sql.DB, m *Migration, direction bool) error {
	name, date := parseNameAndDate(m.Source)
	dir := "up"
	if !direction {
		dir = "down"
	}
	level.Info(c.logger()).Log("msg", "running migration", "version", m.Version, "name", name, "date", date, "direction", dir)

	if !m.UseTx {
		fn := m.UpFnNoTx
		if !direction {
			fn = m.DownFnNoTx
		}
		if fn != nil {
			if err := fn(db); err != nil {
				return fmt.Errorf("FAIL %s (%w), quitting migration", filepath.Base(m.Source), err)
			}
		}
		if _, err := db.Exec(c.Dialect.insertVersionSql(c.TableName), m.Version, direction); err != nil {
			return fmt.Errorf("error finalizing migration %s: %w", filepath.Base(m.Source), err)
		}
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("db.Begin: %w", err)
	}

	fn := m.UpFn
	if !direction {
		fn = m.DownFn
	}
	if fn != nil {
		if err := fn(tx); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("FAIL %s (%w), quitting migration", filepath.Base(m.Source), err)
		}
	}

	if err = c.FinalizeMigration(tx, direction, m.Version); err != nil {
		return fmt.Errorf("error finalizing migration %s: %w", filepath.Base(m.Source), err)
	}
	return nil
}

var (
	upperReplace         = regexp.MustCompile("([a-z])([A-Z])")       // e.g. UpdateBuiltin -> Update Builtin
	allUpperWordsReplace = regexp.MustCompile("([A-Z]+)([A-Z][a-z])") // e.g. IDIn -> ID In
)

func parseNameAndDate(source string) (name string, date string) {
	parts := strings.SplitN(strings.TrimSuffix(filepath.Base(source), ".go"), "_", 2)
	if len(parts) != 2 || len(parts[0]) < 8 {
		return filepath.Base(source), ""
	}
	// Only the day is kept, the rest of the timestamp is often adjusted by
	// hand to reorder migrations and may not be a valid time.
	mt, err := time.Parse("20060102", parts[0][:8])
	if err == nil {
		date = mt.Format("2006-01-02")
	}
	name = upperReplace.ReplaceAllString(parts[1], "$1 $2")     // add spaces in the filename
	name = allUpperWordsReplace.ReplaceAllString(name, "$1 $2") // add spaces in the filename
	return name, date
}

// look for migration scripts with names in the form:
//
//	XXX_descriptivename.go
//
// where XXX specifies the version number
func NumericComponent(name string) (int64, error) {
	base := filepath.Base(name)

	if ext := filepath.Ext(base); ext != ".go" {
		return 0, errors.New("not a recognized migration file type")
	}

	idx := strings.Index(base, "_")
	if idx < 0 {
		return 0, errors.New("no separator found")
	}

	n, e := strconv.ParseInt(base[:idx], 10, 64)
	if e == nil && n <= 0 {
		return 0, errors.New("migration IDs must be greater than zero")
	}

	return n, e
}

// CreateMigration writes a Go migration and its test under dir, named after
// t. A non-transactional skeleton is written when noTx is set.
func CreateMigration(name, dir string, noTx bool, t time.Time) ([]string, error) {
	if name == "" {
		return nil, errors.New("migration name is required")
	}

	timestamp := t.Format("20060102150405")
	filename := fmt.Sprintf("%s_%s.go", timestamp, name)

	tmpl := goSqlMigrationTemplate
	if noTx {
		tmpl = goSqlMigrationNoTxTemplate
	}

	var paths []string

	fpath := filepath.Join(dir, filename)
	migrationPath, err := writeTemplateToFile(fpath, tmpl, timestamp)
	if err != nil {
		return nil, err
	}
	paths = append(paths, migrationPath)

	fpath = strings.Replace(fpath, ".go", "_test.go", 1)
	migrationTestPath, err := writeTemplateToFile(fpath, goSqlMigrationTestTemplate, timestamp)
	if err != nil {
		return nil, err
	}
	paths = append(paths, migrationTestPath)

	return paths, nil
}

// Update the version table for the given migration,
// and finalize the transaction.
func (c *Client) FinalizeMigration(tx *sql.Tx, direction bool, v int64) error {
	stmt := c.Dialect.insertVersionSql(c.TableName)
	if _, err := tx.Exec(stmt, v, direction); err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}

	return tx.Commit()
}

var goSqlMigrationTemplate = template.Must(template.New("goose.go-migration").Parse(`package tables

import (
	"database/sql"
)

func init() {
	MigrationClient.AddMigration(Up_{{.}}, Down_{{.}})
}

func Up_{{.}}(tx *sql.Tx) error {
	return nil
}

func Down_{{.}}(tx *sql.Tx) error {
	return nil
}
`))

var goSqlMigrationNoTxTemplate = template.Must(template.New("goose.go-migration-notx").Parse(`package tables

import (
	"database/sql"
)

func init() {
	MigrationClient.AddMigrationNoTx(Up_{{.}}, Down_{{.}})
}

func Up_{{.}}(db *sql.DB) error {
	return nil
}

func Down_{{.}}(db *sql.DB) error {
	return nil
}
`))

var goSqlMigrationTestTemplate = template.Must(template.New("goose.go-migration-test").Parse(`package tables

import "testing"

func TestUp_{{.}}(t *testing.T) {
	db := applyUpToPrev(t)

	//
	// Insert data to test the migration
	//
	// ...

	// Apply current migration.
	applyNext(t, db)

	//
	// Check data, insert new entries, e.g. to verify migration is safe.
	//
	// ...
}
`))
