package tagsv2

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/dashcraft/tagmigrate/server/analytics"
	"github.com/go-kit/log"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func forwards(t *testing.T, db *sqlx.DB, opts Options) *Stats {
	t.Helper()
	stats, err := Forwards(context.Background(), db, opts)
	require.NoError(t, err)
	return stats
}

func TestForwardsSingleRecord(t *testing.T) {
	db := newSqliteDB(t)
	team := insertTeam(t, db, "t1")
	r1 := insertRecord(t, db, analytics.SourceInsight, team, []string{"bug", "Bug", ""})

	stats := forwards(t, db, Options{})

	tags := listTags(t, db)
	require.Len(t, tags, 1)
	assert.Equal(t, "bug", tags[0].Name)
	assert.Equal(t, team, tags[0].TeamID)

	items := listTaggedItems(t, db)
	require.Len(t, items, 1)
	assert.Equal(t, tags[0].ID, items[0].TagID)
	require.NotNil(t, items[0].InsightID)
	assert.Equal(t, r1, *items[0].InsightID)
	assert.Nil(t, items[0].DashboardID)

	assert.Equal(t, 1, stats.Records[analytics.SourceInsight])
	assert.Equal(t, 0, stats.Records[analytics.SourceDashboard])
	assert.Equal(t, 1, stats.Staged)
	assert.EqualValues(t, 1, stats.TagsInserted)
	assert.EqualValues(t, 1, stats.TaggedItemsInserted)
}

func TestForwardsCaseAndWhitespace(t *testing.T) {
	db := newSqliteDB(t)
	t1 := insertTeam(t, db, "t1")
	t2 := insertTeam(t, db, "t2")
	insight := insertRecord(t, db, analytics.SourceInsight, t1, []string{"A", "a", " b "})
	dashboard := insertRecord(t, db, analytics.SourceDashboard, t2, []string{"A", "a", " b "})

	forwards(t, db, Options{})

	tags := listTags(t, db)
	require.Len(t, tags, 4)
	byTeam := map[uint][]string{}
	for _, tag := range tags {
		byTeam[tag.TeamID] = append(byTeam[tag.TeamID], tag.Name)
	}
	assert.Equal(t, []string{"a", "b"}, byTeam[t1])
	assert.Equal(t, []string{"a", "b"}, byTeam[t2])

	assert.Equal(t, []string{"a", "b"}, recordTagNames(t, db, analytics.SourceInsight, insight))
	assert.Equal(t, []string{"a", "b"}, recordTagNames(t, db, analytics.SourceDashboard, dashboard))
	assertRowCount(t, db, "tagged_items", 4)
	assertUnique(t, db)
}

func TestForwardsDiscardsInvalidLabels(t *testing.T) {
	db := newSqliteDB(t)
	team := insertTeam(t, db, "t1")

	mixed := insertRecord(t, db, analytics.SourceInsight, team, json.RawMessage(`[1, null, true, {"a": "b"}, ["nested"], "  ", "\t\n", "ok"]`))
	blank := insertRecord(t, db, analytics.SourceInsight, team, []string{"", "   ", "\t"})
	empty := insertRecord(t, db, analytics.SourceDashboard, team, []string{})
	notList := insertRecord(t, db, analytics.SourceDashboard, team, json.RawMessage(`"bug"`))
	null := insertRecord(t, db, analytics.SourceDashboard, team, nil)

	stats := forwards(t, db, Options{})

	tags := listTags(t, db)
	require.Len(t, tags, 1)
	assert.Equal(t, "ok", tags[0].Name)
	assert.Equal(t, []string{"ok"}, recordTagNames(t, db, analytics.SourceInsight, mixed))
	assert.Empty(t, recordTagNames(t, db, analytics.SourceInsight, blank))
	assert.Empty(t, recordTagNames(t, db, analytics.SourceDashboard, empty))
	assert.Empty(t, recordTagNames(t, db, analytics.SourceDashboard, notList))
	assert.Empty(t, recordTagNames(t, db, analytics.SourceDashboard, null))

	// NULL columns are never read, empty lists and non-lists are read but
	// contribute nothing.
	assert.Equal(t, 2, stats.Records[analytics.SourceInsight])
	assert.Equal(t, 2, stats.Records[analytics.SourceDashboard])
	assert.Equal(t, 1, stats.Staged)
}

func TestForwardsInvalidJSON(t *testing.T) {
	db := newSqliteDB(t)
	team := insertTeam(t, db, "t1")
	insertRecord(t, db, analytics.SourceInsight, team, json.RawMessage(`["bug"`))

	_, err := Forwards(context.Background(), db, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode tags of insight")
	assertRowCount(t, db, "tags", 0)
}

func TestForwardsIdempotent(t *testing.T) {
	db := newSqliteDB(t)
	t1 := insertTeam(t, db, "t1")
	t2 := insertTeam(t, db, "t2")
	insertRecord(t, db, analytics.SourceInsight, t1, []string{"bug", "Feature", "feature "})
	insertRecord(t, db, analytics.SourceInsight, t1, []string{"bug"})
	insertRecord(t, db, analytics.SourceDashboard, t1, []string{"BUG", "ops"})
	insertRecord(t, db, analytics.SourceDashboard, t2, []string{"bug"})

	first := forwards(t, db, Options{})
	tags := listTags(t, db)
	items := listTaggedItems(t, db)
	assert.Len(t, tags, 4)
	assert.Len(t, items, 6)
	assert.EqualValues(t, 4, first.TagsInserted)
	assert.EqualValues(t, 6, first.TaggedItemsInserted)

	second := forwards(t, db, Options{})
	assert.Equal(t, first.Staged, second.Staged)
	assert.Zero(t, second.TagsInserted)
	assert.Zero(t, second.TaggedItemsInserted)
	assert.Equal(t, tags, listTags(t, db))
	assert.Equal(t, items, listTaggedItems(t, db))
	assertUnique(t, db)
}

func TestForwardsLongLabels(t *testing.T) {
	db := newSqliteDB(t)
	team := insertTeam(t, db, "t1")
	prefix := strings.Repeat("Quarterly Reviews ", 20)
	r1 := insertRecord(t, db, analytics.SourceInsight, team, []string{prefix + "one", prefix + "two"})
	r2 := insertRecord(t, db, analytics.SourceDashboard, team, []string{prefix + "three"})

	forwards(t, db, Options{})
	tags := listTags(t, db)
	require.Len(t, tags, 1)
	assert.Equal(t, analytics.MaxTagNameLength, utf8.RuneCountInString(tags[0].Name))
	assert.Equal(t, []string{tags[0].Name}, recordTagNames(t, db, analytics.SourceInsight, r1))
	assert.Equal(t, []string{tags[0].Name}, recordTagNames(t, db, analytics.SourceDashboard, r2))
	items := listTaggedItems(t, db)
	require.Len(t, items, 2)

	second := forwards(t, db, Options{})
	assert.Zero(t, second.TagsInserted)
	assert.Zero(t, second.TaggedItemsInserted)
	assert.Equal(t, tags, listTags(t, db))
	assert.Equal(t, items, listTaggedItems(t, db))
}

func TestForwardsResumesPartialRun(t *testing.T) {
	db := newSqliteDB(t)
	team := insertTeam(t, db, "t1")
	r1 := insertRecord(t, db, analytics.SourceInsight, team, []string{"bug", "ops"})
	r2 := insertRecord(t, db, analytics.SourceDashboard, team, []string{"ops"})

	// a crashed run after the tags were created but before all tagged items
	// were written
	forwards(t, db, Options{})
	_, err := db.Exec(`DELETE FROM tagged_items WHERE dashboard_id IS NOT NULL`)
	require.NoError(t, err)
	tags := listTags(t, db)

	stats := forwards(t, db, Options{})
	assert.Zero(t, stats.TagsInserted)
	assert.EqualValues(t, 1, stats.TaggedItemsInserted)
	assert.Equal(t, tags, listTags(t, db))
	assert.Equal(t, []string{"bug", "ops"}, recordTagNames(t, db, analytics.SourceInsight, r1))
	assert.Equal(t, []string{"ops"}, recordTagNames(t, db, analytics.SourceDashboard, r2))
	assertUnique(t, db)
}

func TestForwardsReusesExistingTags(t *testing.T) {
	db := newSqliteDB(t)
	t1 := insertTeam(t, db, "t1")
	t2 := insertTeam(t, db, "t2")
	insertExistingTag(t, db, "existing-bug", "bug", t1)
	r1 := insertRecord(t, db, analytics.SourceInsight, t1, []string{"Bug"})
	r2 := insertRecord(t, db, analytics.SourceInsight, t2, []string{"bug"})

	stats := forwards(t, db, Options{})
	assert.EqualValues(t, 1, stats.TagsInserted)

	tags := listTags(t, db)
	require.Len(t, tags, 2)
	assert.Equal(t, analytics.Tag{ID: "existing-bug", Name: "bug", TeamID: t1}, tags[0])
	assert.Equal(t, t2, tags[1].TeamID)

	var tagID string
	require.NoError(t, db.Get(&tagID, `SELECT tag_id FROM tagged_items WHERE insight_id = ?`, r1))
	assert.Equal(t, "existing-bug", tagID)
	require.NoError(t, db.Get(&tagID, `SELECT tag_id FROM tagged_items WHERE insight_id = ?`, r2))
	assert.Equal(t, tags[1].ID, tagID)
}

func TestForwardsSmallBatches(t *testing.T) {
	db := newSqliteDB(t)
	team := insertTeam(t, db, "t1")
	labels := [][]string{
		{"alpha", "beta"},
		{"Beta", "gamma"},
		{"alpha"},
		{"delta", "ALPHA", "gamma"},
		{"beta"},
	}
	want := map[uint][]string{}
	for _, l := range labels {
		id := insertRecord(t, db, analytics.SourceInsight, team, l)
		seen := map[string]bool{}
		for _, label := range l {
			if name := analytics.Tagify(label); !seen[name] {
				seen[name] = true
				want[id] = append(want[id], name)
			}
		}
	}

	var logs bytes.Buffer
	stats := forwards(t, db, Options{BatchSize: 2, Logger: log.NewLogfmtLogger(&logs)})
	assert.Equal(t, 5, stats.Records[analytics.SourceInsight])
	assert.Equal(t, 9, stats.Staged)
	assert.EqualValues(t, 4, stats.TagsInserted)
	assert.EqualValues(t, 9, stats.TaggedItemsInserted)

	assertRowCount(t, db, "tags", 4)
	for id, names := range want {
		got := recordTagNames(t, db, analytics.SourceInsight, id)
		assert.ElementsMatch(t, names, got, "insight %d", id)
	}
	assertUnique(t, db)

	out := logs.String()
	assert.Contains(t, out, "msg=insight_tag_batch_get_start limit=2 offset=4")
	assert.Contains(t, out, "msg=insight_tag_get_end tags_count=9")
	assert.Contains(t, out, "msg=dashboard_tag_get_end tags_count=0")
	assert.Contains(t, out, "msg=tagged_item_batch_create_start limit=2 offset=8")
}

func TestForwardsNoRecords(t *testing.T) {
	db := newSqliteDB(t)
	stats := forwards(t, db, Options{})
	assert.Zero(t, stats.Staged)
	assertRowCount(t, db, "tags", 0)
	assertRowCount(t, db, "tagged_items", 0)
}

func TestForwardsCanceled(t *testing.T) {
	db := newSqliteDB(t)
	team := insertTeam(t, db, "t1")
	insertRecord(t, db, analytics.SourceInsight, team, []string{"bug"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Forwards(ctx, db, Options{})
	require.ErrorIs(t, err, context.Canceled)
	assertRowCount(t, db, "tags", 0)
}

func TestReverse(t *testing.T) {
	db := newSqliteDB(t)
	team := insertTeam(t, db, "t1")
	insight := insertRecord(t, db, analytics.SourceInsight, team, []string{"Bug ", "ops"})
	insertRecord(t, db, analytics.SourceDashboard, team, []string{"ops"})
	forwards(t, db, Options{})
	assertRowCount(t, db, "tags", 2)
	assertRowCount(t, db, "tagged_items", 3)

	require.NoError(t, Reverse(context.Background(), db, Options{}))
	assertRowCount(t, db, "tagged_items", 0)
	assertRowCount(t, db, "tags", 0)

	// The reverse procedure does not write the normalized tags back: the
	// embedded column still holds what it held before forwards ran, and the
	// original spelling of a label is not recoverable from the tags table.
	var raw string
	require.NoError(t, db.Get(&raw, `SELECT deprecated_tags FROM insights WHERE id = ?`, insight))
	assert.JSONEq(t, `["Bug ", "ops"]`, raw)

	forwards(t, db, Options{})
	assert.Equal(t, []string{"bug", "ops"}, recordTagNames(t, db, analytics.SourceInsight, insight))
}

func TestReverseKeepsTagsStillInUse(t *testing.T) {
	db := newSqliteDB(t)
	team := insertTeam(t, db, "t1")
	insertRecord(t, db, analytics.SourceInsight, team, []string{"bug"})
	forwards(t, db, Options{})

	// a tagged item that points at neither an insight nor a dashboard keeps
	// its tag alive
	tags := listTags(t, db)
	require.Len(t, tags, 1)
	_, err := db.Exec(`INSERT INTO tagged_items (id, tag_id) VALUES ('orphan', ?)`, tags[0].ID)
	require.NoError(t, err)

	require.NoError(t, Reverse(context.Background(), db, Options{}))
	assertRowCount(t, db, "tagged_items", 1)
	assert.Equal(t, tags, listTags(t, db))
}

func TestReverseKeepsUnusedTags(t *testing.T) {
	db := newSqliteDB(t)
	team := insertTeam(t, db, "t1")
	insertRecord(t, db, analytics.SourceInsight, team, []string{"bug"})
	insertExistingTag(t, db, "unused", "triage", team)
	forwards(t, db, Options{})
	assertRowCount(t, db, "tags", 2)

	require.NoError(t, Reverse(context.Background(), db, Options{}))
	assertRowCount(t, db, "tagged_items", 0)
	assert.Equal(t, []analytics.Tag{{ID: "unused", Name: "triage", TeamID: team}}, listTags(t, db))
}
