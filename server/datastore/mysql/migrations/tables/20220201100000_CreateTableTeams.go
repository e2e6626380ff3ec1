package tables

import (
	"database/sql"
)

func init() {
	MigrationClient.AddMigration(Up_20220201100000, Down_20220201100000)
}

func Up_20220201100000(tx *sql.Tx) error {
	return withSteps([]migrationStep{
		basicMigrationStep(`
			CREATE TABLE IF NOT EXISTS teams (
				id INT UNSIGNED NOT NULL AUTO_INCREMENT,
				name VARCHAR(255) NOT NULL,
				created_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
				PRIMARY KEY (id),
				UNIQUE KEY idx_teams_name (name)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
			"create teams table",
		),
	}, tx)
}

func Down_20220201100000(tx *sql.Tx) error {
	_, err := tx.Exec(`DROP TABLE IF EXISTS teams`)
	return err
}
