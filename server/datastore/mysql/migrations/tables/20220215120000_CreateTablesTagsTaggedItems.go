package tables

import (
	"database/sql"
)

func init() {
	MigrationClient.AddMigration(Up_20220215120000, Down_20220215120000)
}

func Up_20220215120000(tx *sql.Tx) error {
	return withSteps([]migrationStep{
		// utf8mb4_bin so that tags which differ only in accents or width are
		// kept apart, the names are already normalized when written.
		basicMigrationStep(`
			CREATE TABLE IF NOT EXISTS tags (
				id CHAR(36) CHARACTER SET ascii NOT NULL,
				name VARCHAR(255) CHARACTER SET utf8mb4 COLLATE utf8mb4_bin NOT NULL,
				team_id INT UNSIGNED NOT NULL,
				created_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
				PRIMARY KEY (id),
				CONSTRAINT fk_tags_team_id FOREIGN KEY (team_id) REFERENCES teams (id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
			"create tags table",
		),
		basicMigrationStep(`
			CREATE TABLE IF NOT EXISTS tagged_items (
				id CHAR(36) CHARACTER SET ascii NOT NULL,
				tag_id CHAR(36) CHARACTER SET ascii NOT NULL,
				insight_id INT UNSIGNED NULL,
				dashboard_id INT UNSIGNED NULL,
				created_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
				PRIMARY KEY (id),
				CONSTRAINT fk_tagged_items_tag_id FOREIGN KEY (tag_id) REFERENCES tags (id) ON DELETE CASCADE,
				CONSTRAINT fk_tagged_items_insight_id FOREIGN KEY (insight_id) REFERENCES insights (id) ON DELETE CASCADE,
				CONSTRAINT fk_tagged_items_dashboard_id FOREIGN KEY (dashboard_id) REFERENCES dashboards (id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
			"create tagged_items table",
		),
	}, tx)
}

func Down_20220215120000(tx *sql.Tx) error {
	_, err := tx.Exec(`DROP TABLE IF EXISTS tagged_items, tags`)
	return err
}
