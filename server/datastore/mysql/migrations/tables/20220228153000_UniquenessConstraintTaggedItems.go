package tables

import (
	"database/sql"
)

func init() {
	MigrationClient.AddMigration(Up_20220228153000, Down_20220228153000)
}

// At most one tag per (name, team) and one tagged item per (tag, record). The
// second constraint on tagged_items holds because NULL never collides in a
// unique index, so an item tagging an insight does not conflict with one
// tagging a dashboard.
func Up_20220228153000(tx *sql.Tx) error {
	var steps []migrationStep
	if !indexExistsTx(tx, "tags", "idx_tags_name_team_id") {
		steps = append(steps, basicMigrationStep(
			`ALTER TABLE tags ADD UNIQUE INDEX idx_tags_name_team_id (name, team_id)`,
			"adding (name, team_id) unique index to tags table",
		))
	}
	if !indexExistsTx(tx, "tagged_items", "idx_tagged_items_tag_id_insight_id") {
		steps = append(steps, basicMigrationStep(
			`ALTER TABLE tagged_items ADD UNIQUE INDEX idx_tagged_items_tag_id_insight_id (tag_id, insight_id)`,
			"adding (tag_id, insight_id) unique index to tagged_items table",
		))
	}
	if !indexExistsTx(tx, "tagged_items", "idx_tagged_items_tag_id_dashboard_id") {
		steps = append(steps, basicMigrationStep(
			`ALTER TABLE tagged_items ADD UNIQUE INDEX idx_tagged_items_tag_id_dashboard_id (tag_id, dashboard_id)`,
			"adding (tag_id, dashboard_id) unique index to tagged_items table",
		))
	}
	return withSteps(steps, tx)
}

func Down_20220228153000(tx *sql.Tx) error {
	return withSteps([]migrationStep{
		basicMigrationStep(`ALTER TABLE tags DROP INDEX idx_tags_name_team_id`,
			"dropping (name, team_id) unique index from tags table"),
		// the foreign key on tag_id needs an index starting with it
		basicMigrationStep(`ALTER TABLE tagged_items ADD INDEX idx_tagged_items_tag_id (tag_id)`,
			"adding tag_id index to tagged_items table"),
		basicMigrationStep(`ALTER TABLE tagged_items DROP INDEX idx_tagged_items_tag_id_insight_id, DROP INDEX idx_tagged_items_tag_id_dashboard_id`,
			"dropping unique indexes from tagged_items table"),
	}, tx)
}
