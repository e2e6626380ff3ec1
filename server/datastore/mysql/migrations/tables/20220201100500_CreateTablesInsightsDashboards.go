package tables

import (
	"database/sql"
	"fmt"
)

func init() {
	MigrationClient.AddMigration(Up_20220201100500, Down_20220201100500)
}

// Both tables carry their free-text labels in deprecated_tags, a JSON array
// of strings that is later normalized into tags and tagged_items.
func Up_20220201100500(tx *sql.Tx) error {
	var steps []migrationStep
	for _, table := range []string{"insights", "dashboards"} {
		steps = append(steps, basicMigrationStep(fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %[1]s (
				id INT UNSIGNED NOT NULL AUTO_INCREMENT,
				team_id INT UNSIGNED NOT NULL,
				name VARCHAR(255) NOT NULL DEFAULT '',
				deprecated_tags JSON NULL,
				created_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
				updated_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6) ON UPDATE CURRENT_TIMESTAMP(6),
				PRIMARY KEY (id),
				KEY idx_%[1]s_created_at_id (created_at, id),
				CONSTRAINT fk_%[1]s_team_id FOREIGN KEY (team_id) REFERENCES teams (id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`, table),
			"create "+table+" table",
		))
	}
	return withSteps(steps, tx)
}

func Down_20220201100500(tx *sql.Tx) error {
	_, err := tx.Exec(`DROP TABLE IF EXISTS dashboards, insights`)
	return err
}
