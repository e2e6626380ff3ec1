package tagsv2

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dashcraft/tagmigrate/server/analytics"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// insertIgnoreStmt returns a multi-row insert of rows rows into table that
// skips rows conflicting with a unique constraint instead of failing.
func insertIgnoreStmt(driverName, table string, columns []string, rows int) string {
	tuple := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ") + ")"
	values := strings.TrimSuffix(strings.Repeat(tuple+", ", rows), ", ")
	cols := strings.Join(columns, ", ")

	switch driverName {
	case "mysql", "nrmysql":
		return fmt.Sprintf("INSERT IGNORE INTO %s (%s) VALUES %s", table, cols, values)
	default:
		return fmt.Sprintf("INSERT INTO %s (%s) VALUES %s ON CONFLICT DO NOTHING", table, cols, values)
	}
}

func insertTags(ctx context.Context, db *sqlx.DB, tags []analytics.Tag) (int64, error) {
	if len(tags) == 0 {
		return 0, nil
	}
	args := make([]any, 0, len(tags)*3)
	for _, t := range tags {
		args = append(args, t.ID, t.Name, t.TeamID)
	}
	stmt := db.Rebind(insertIgnoreStmt(db.DriverName(), "tags", []string{"id", "name", "team_id"}, len(tags)))
	res, err := db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, errors.Wrap(err, "bulk insert tags")
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func insertTaggedItems(ctx context.Context, db *sqlx.DB, items []analytics.TaggedItem) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}
	args := make([]any, 0, len(items)*4)
	for _, it := range items {
		args = append(args, it.ID, it.TagID, it.InsightID, it.DashboardID)
	}
	columns := []string{"id", "tag_id", "insight_id", "dashboard_id"}
	stmt := db.Rebind(insertIgnoreStmt(db.DriverName(), "tagged_items", columns, len(items)))
	res, err := db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, errors.Wrap(err, "bulk insert tagged items")
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// tagsByID returns the set of ids among ids that exist in the tags table.
func tagsByID(ctx context.Context, db *sqlx.DB, ids []string) (map[string]bool, error) {
	found := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return found, nil
	}
	stmt, args, err := sqlx.In(`SELECT id FROM tags WHERE id IN (?)`, ids)
	if err != nil {
		return nil, errors.Wrap(err, "build select tags by id")
	}
	var existing []string
	if err := db.SelectContext(ctx, &existing, db.Rebind(stmt), args...); err != nil {
		return nil, errors.Wrap(err, "select tags by id")
	}
	for _, id := range existing {
		found[id] = true
	}
	return found, nil
}

func tagIDByName(ctx context.Context, db *sqlx.DB, name string, teamID uint) (string, error) {
	var id string
	err := db.GetContext(ctx, &id, db.Rebind(`SELECT id FROM tags WHERE name = ? AND team_id = ? LIMIT 1`), name, teamID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", errors.Errorf("tag %q of team %d neither inserted nor found", name, teamID)
	}
	if err != nil {
		return "", errors.Wrapf(err, "select tag %q of team %d", name, teamID)
	}
	return id, nil
}
