package tables

import (
	"database/sql"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dashcraft/tagmigrate/server/goose"
	"github.com/dashcraft/tagmigrate/server/tagsv2"
	"github.com/pkg/errors"
)

var MigrationClient = goose.New("migration_status_tables", goose.MySqlDialect{})

// can override in tests
var outputTo io.Writer = os.Stderr

// tagsV2Options is passed to the forwards and reverse tag procedures run by
// the data migration.
var tagsV2Options tagsv2.Options

// SetTagsV2Options configures the batch size and logger used by the tags
// normalization migration. It must be called before the migrations run.
func SetTagsV2Options(opts tagsv2.Options) {
	tagsV2Options = opts
	if opts.Logger != nil {
		MigrationClient.Logger = opts.Logger
	}
}

type migrationStep func(tx *sql.Tx) error

func basicMigrationStep(statement string, errorMessage string) migrationStep {
	return func(tx *sql.Tx) error {
		_, err := tx.Exec(statement)
		return errors.Wrap(err, errorMessage)
	}
}

func withSteps(steps []migrationStep, tx *sql.Tx) error {
	stepCount := len(steps)
	for i, step := range steps {
		if stepCount > 1 {
			_, _ = fmt.Fprintf(outputTo, "  Step %d of %d\n", i+1, stepCount)
		}
		if err := step(tx); err != nil {
			return err
		}
	}
	return nil
}

func constraintExists(tx *sql.Tx, table, name string) bool {
	var count int
	err := tx.QueryRow(`
SELECT COUNT(1)
FROM information_schema.TABLE_CONSTRAINTS
WHERE CONSTRAINT_SCHEMA = DATABASE()
AND TABLE_NAME = ?
AND CONSTRAINT_NAME = ?
	`, table, name).Scan(&count)
	if err != nil {
		return false
	}

	return count > 0
}

func columnExists(tx *sql.Tx, table, column string) bool {
	return columnsExists(tx, table, column)
}

func columnsExists(tx *sql.Tx, table string, columns ...string) bool {
	if len(columns) == 0 {
		return false
	}
	inColumns := strings.TrimRight(strings.Repeat("?,", len(columns)), ",")
	args := make([]any, 0, len(columns)+1)
	args = append(args, table)
	for _, column := range columns {
		args = append(args, column)
	}

	var count int
	err := tx.QueryRow(
		fmt.Sprintf(`
SELECT
    count(*)
FROM
    information_schema.columns
WHERE
    TABLE_SCHEMA = DATABASE()
    AND TABLE_NAME = ?
    AND COLUMN_NAME IN (%s)
`, inColumns), args...,
	).Scan(&count)
	if err != nil {
		return false
	}

	return count == len(columns)
}

func tableExists(tx *sql.Tx, table string) bool {
	var count int
	err := tx.QueryRow(
		`
SELECT
    count(*)
FROM
    information_schema.columns
WHERE
    TABLE_SCHEMA = DATABASE()
    AND TABLE_NAME = ?
`,
		table,
	).Scan(&count)
	if err != nil {
		return false
	}

	return count > 0
}

func indexExistsTx(tx *sql.Tx, table, index string) bool {
	var count int
	err := tx.QueryRow(`
SELECT COUNT(1)
FROM INFORMATION_SCHEMA.STATISTICS
WHERE table_schema = DATABASE()
AND table_name = ?
AND index_name = ?
`, table, index).Scan(&count)
	if err != nil {
		return false
	}

	return count > 0
}
