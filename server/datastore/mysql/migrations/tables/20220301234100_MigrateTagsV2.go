package tables

import (
	"context"
	"database/sql"

	"github.com/dashcraft/tagmigrate/server/tagsv2"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

func init() {
	MigrationClient.AddMigrationNoTx(Up_20220301234100, Down_20220301234100)
}

// Up_20220301234100 copies deprecated_tags into tags and tagged_items. It
// commits batch by batch, a failed run is resumed by running it again.
func Up_20220301234100(db *sql.DB) error {
	_, err := tagsv2.Forwards(context.Background(), sqlx.NewDb(db, "mysql"), tagsV2Options)
	return errors.Wrap(err, "tags v2 forwards")
}

func Down_20220301234100(db *sql.DB) error {
	err := tagsv2.Reverse(context.Background(), sqlx.NewDb(db, "mysql"), tagsV2Options)
	return errors.Wrap(err, "tags v2 reverse")
}
