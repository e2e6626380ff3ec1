package tagsv2

import (
	"context"

	"github.com/go-kit/log/level"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// Reverse deletes every tagged item pointing at an insight or a dashboard,
// then the tags those items referenced that are left without a tagged item.
// Tags that had no tagged item before Reverse ran are kept. The
// deprecated_tags columns are not touched, so tags created after Forwards ran
// are lost.
func Reverse(ctx context.Context, db *sqlx.DB, opts Options) error {
	logger := opts.logger()
	level.Info(logger).Log("msg", "tags_v2_reverse_start")

	var tagIDs []string
	if err := db.SelectContext(ctx, &tagIDs, `
SELECT DISTINCT tag_id FROM tagged_items
WHERE insight_id IS NOT NULL OR dashboard_id IS NOT NULL`); err != nil {
		return errors.Wrap(err, "select tags of tagged items")
	}

	res, err := db.ExecContext(ctx, `DELETE FROM tagged_items WHERE insight_id IS NOT NULL OR dashboard_id IS NOT NULL`)
	if err != nil {
		return errors.Wrap(err, "delete tagged items")
	}
	items, _ := res.RowsAffected()

	tags, err := deleteOrphanedTags(ctx, db, tagIDs, opts.batchSize())
	if err != nil {
		return err
	}

	level.Info(logger).Log("msg", "tags_v2_reverse_end", "tagged_items_deleted", items, "tags_deleted", tags)
	return nil
}

// deleteOrphanedTags deletes, among ids, the tags no tagged item references.
func deleteOrphanedTags(ctx context.Context, db *sqlx.DB, ids []string, batchSize int) (int64, error) {
	var deleted int64
	for start := 0; start < len(ids); start += batchSize {
		end := min(start+batchSize, len(ids))
		stmt, args, err := sqlx.In(`
DELETE FROM tags
WHERE id IN (?) AND NOT EXISTS (
	SELECT 1 FROM tagged_items WHERE tagged_items.tag_id = tags.id
)`, ids[start:end])
		if err != nil {
			return deleted, errors.Wrap(err, "build delete orphaned tags")
		}
		res, err := db.ExecContext(ctx, db.Rebind(stmt), args...)
		if err != nil {
			return deleted, errors.Wrap(err, "delete orphaned tags")
		}
		n, _ := res.RowsAffected()
		deleted += n
	}
	return deleted, nil
}
