package tagsv2

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dashcraft/tagmigrate/server/analytics"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

// schema mirrors, in SQLite syntax, the tables the MySQL migrations create up
// to and including the tagged_items uniqueness constraints.
const schema = `
CREATE TABLE teams (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL
);
CREATE TABLE insights (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	team_id         INTEGER NOT NULL REFERENCES teams (id) ON DELETE CASCADE,
	name            TEXT NOT NULL DEFAULT '',
	deprecated_tags TEXT NULL,
	created_at      TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE dashboards (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	team_id         INTEGER NOT NULL REFERENCES teams (id) ON DELETE CASCADE,
	name            TEXT NOT NULL DEFAULT '',
	deprecated_tags TEXT NULL,
	created_at      TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE tags (
	id      TEXT PRIMARY KEY,
	name    TEXT NOT NULL,
	team_id INTEGER NOT NULL REFERENCES teams (id) ON DELETE CASCADE,
	UNIQUE (name, team_id)
);
CREATE TABLE tagged_items (
	id           TEXT PRIMARY KEY,
	tag_id       TEXT NOT NULL REFERENCES tags (id) ON DELETE CASCADE,
	insight_id   INTEGER NULL REFERENCES insights (id) ON DELETE CASCADE,
	dashboard_id INTEGER NULL REFERENCES dashboards (id) ON DELETE CASCADE,
	UNIQUE (tag_id, insight_id),
	UNIQUE (tag_id, dashboard_id)
)`

func newSqliteDB(t *testing.T) *sqlx.DB {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "tags.db") + "?_pragma=foreign_keys(1)"
	db, err := sqlx.Open("sqlite", dsn)
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	for _, stmt := range strings.Split(schema, ";") {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	return db
}

func execNoErrLastID(t *testing.T, db *sqlx.DB, query string, args ...any) int64 {
	t.Helper()
	res, err := db.Exec(query, args...)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func insertTeam(t *testing.T, db *sqlx.DB, name string) uint {
	return uint(execNoErrLastID(t, db, `INSERT INTO teams (name) VALUES (?)`, name)) //nolint:gosec // dismiss G115
}

// insertRecord inserts an insight or a dashboard. A nil labels stores NULL,
// a json.RawMessage is stored as is, anything else is marshaled.
func insertRecord(t *testing.T, db *sqlx.DB, kind analytics.SourceKind, teamID uint, labels any) uint {
	t.Helper()
	var raw any
	switch v := labels.(type) {
	case nil:
	case json.RawMessage:
		raw = string(v)
	default:
		b, err := json.Marshal(v)
		require.NoError(t, err)
		raw = string(b)
	}
	id := execNoErrLastID(t, db, `INSERT INTO `+kind.Table()+` (team_id, deprecated_tags) VALUES (?, ?)`, teamID, raw)
	return uint(id) //nolint:gosec // dismiss G115
}

func insertExistingTag(t *testing.T, db *sqlx.DB, id, name string, teamID uint) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO tags (id, name, team_id) VALUES (?, ?, ?)`, id, name, teamID)
	require.NoError(t, err)
}

func listTags(t *testing.T, db *sqlx.DB) []analytics.Tag {
	t.Helper()
	var tags []analytics.Tag
	require.NoError(t, db.Select(&tags, `SELECT id, name, team_id FROM tags ORDER BY team_id, name`))
	return tags
}

func listTaggedItems(t *testing.T, db *sqlx.DB) []analytics.TaggedItem {
	t.Helper()
	var items []analytics.TaggedItem
	require.NoError(t, db.Select(&items, `SELECT id, tag_id, insight_id, dashboard_id FROM tagged_items ORDER BY tag_id, insight_id, dashboard_id`))
	return items
}

// recordTagNames returns the tag names attached to the record of the given
// kind, sorted.
func recordTagNames(t *testing.T, db *sqlx.DB, kind analytics.SourceKind, id uint) []string {
	t.Helper()
	var names []string
	require.NoError(t, db.Select(&names, `
SELECT tags.name
FROM tagged_items
JOIN tags ON tags.id = tagged_items.tag_id
WHERE tagged_items.`+kind.ForeignKey()+` = ?
ORDER BY tags.name`, id))
	return names
}

func assertRowCount(t *testing.T, db *sqlx.DB, table string, count int) {
	t.Helper()
	var n int
	require.NoError(t, db.Get(&n, `SELECT COUNT(*) FROM `+table))
	assert.Equal(t, count, n, table)
}

// assertUnique checks the invariants that must hold after any number of
// runs: one tag per (name, team) and one tagged item per (record, tag).
func assertUnique(t *testing.T, db *sqlx.DB) {
	t.Helper()
	var dups int
	require.NoError(t, db.Get(&dups, `
SELECT COUNT(*) FROM (
	SELECT name, team_id FROM tags GROUP BY name, team_id HAVING COUNT(*) > 1
) d`))
	assert.Zero(t, dups, "duplicate tags")

	for _, kind := range analytics.SourceKinds {
		require.NoError(t, db.Get(&dups, `
SELECT COUNT(*) FROM (
	SELECT tag_id, `+kind.ForeignKey()+` FROM tagged_items
	WHERE `+kind.ForeignKey()+` IS NOT NULL
	GROUP BY tag_id, `+kind.ForeignKey()+` HAVING COUNT(*) > 1
) d`))
		assert.Zero(t, dups, "duplicate tagged items for %s", kind)
	}
}
