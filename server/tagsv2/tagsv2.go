// Package tagsv2 moves the free-text tags embedded on insights and dashboards
// into the normalized tags and tagged_items tables, and back out again.
//
// None of the procedures run inside a single transaction. Every bulk
// statement commits on its own so that large tables never hold one long
// lived transaction, and a run that stops half way can simply be started
// again: rows that already exist are skipped by the unique constraints on
// tags (name, team_id) and on tagged_items.
package tagsv2

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/dashcraft/tagmigrate/server/analytics"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// DefaultBatchSize is the page size used to read tagged records and the
// number of rows written per bulk insert.
const DefaultBatchSize = 1000

// MaxBatchSize keeps a tagged_items bulk insert, 4 placeholders per row,
// under the 65535 placeholders MySQL accepts in one prepared statement.
const MaxBatchSize = 65535 / 4

// Options configures a forwards or reverse run.
type Options struct {
	// BatchSize defaults to DefaultBatchSize when zero or negative, and is
	// capped at MaxBatchSize.
	BatchSize int
	// Logger defaults to a no-op logger.
	Logger log.Logger
}

func (o Options) batchSize() int {
	switch {
	case o.BatchSize <= 0:
		return DefaultBatchSize
	case o.BatchSize > MaxBatchSize:
		return MaxBatchSize
	}
	return o.BatchSize
}

func (o Options) logger() log.Logger {
	if o.Logger == nil {
		return log.NewNopLogger()
	}
	return o.Logger
}

// Stats summarizes a forwards run.
type Stats struct {
	// Records counts, per source kind, the records read that had a non-null
	// tags column.
	Records map[analytics.SourceKind]int
	// Staged is the number of (tag, tagged item) candidates, one per unique
	// tag on each record.
	Staged int
	// TagsInserted and TaggedItemsInserted count the rows actually written,
	// conflicting rows excluded.
	TagsInserted        int64
	TaggedItemsInserted int64
}

// candidate pairs a tag that may or may not already exist with the tagged
// item that will point at it once its identity is resolved.
type candidate struct {
	tag  analytics.Tag
	item analytics.TaggedItem
}

type taggedRecord struct {
	ID             uint   `db:"id"`
	TeamID         uint   `db:"team_id"`
	DeprecatedTags []byte `db:"deprecated_tags"`
}

// Forwards creates a tag per unique (name, team) found in the deprecated_tags
// column of insights and dashboards, and a tagged item per unique tag on
// each record.
func Forwards(ctx context.Context, db *sqlx.DB, opts Options) (*Stats, error) {
	logger := opts.logger()
	batchSize := opts.batchSize()
	level.Info(logger).Log("msg", "tags_v2_forwards_start", "batch_size", batchSize)

	stats := &Stats{Records: make(map[analytics.SourceKind]int)}
	var candidates []candidate
	for _, kind := range analytics.SourceKinds {
		before := len(candidates)
		var err error
		candidates, err = collect(ctx, db, kind, batchSize, logger, candidates, stats)
		if err != nil {
			return nil, err
		}
		level.Info(logger).Log("msg", fmt.Sprintf("%s_tag_get_end", kind), "tags_count", len(candidates)-before)
	}
	stats.Staged = len(candidates)

	// Stable ordering by name keeps independent runs reproducible.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].tag.Name < candidates[j].tag.Name
	})

	tags := make([]analytics.Tag, len(candidates))
	for i := range candidates {
		tags[i] = candidates[i].tag
	}
	for offset := 0; offset < len(tags); offset += batchSize {
		n, err := insertTags(ctx, db, tags[offset:min(offset+batchSize, len(tags))])
		if err != nil {
			return nil, err
		}
		stats.TagsInserted += n
	}
	level.Info(logger).Log("msg", "tags_bulk_created", "inserted", stats.TagsInserted)

	// The insert above does not report which candidates were skipped, so each
	// batch is resolved again: inserted candidates are found by their own id,
	// the rest by (name, team).
	resolved := make(map[teamTag]string)
	for offset := 0; offset < len(candidates); offset += batchSize {
		level.Info(logger).Log("msg", "tagged_item_batch_create_start", "limit", batchSize, "offset", offset)
		batch := candidates[offset:min(offset+batchSize, len(candidates))]
		items, err := resolveBatch(ctx, db, batch, resolved)
		if err != nil {
			return nil, err
		}
		n, err := insertTaggedItems(ctx, db, items)
		if err != nil {
			return nil, err
		}
		stats.TaggedItemsInserted += n
	}

	level.Info(logger).Log(
		"msg", "tags_v2_forwards_end",
		"insights", stats.Records[analytics.SourceInsight],
		"dashboards", stats.Records[analytics.SourceDashboard],
		"staged", stats.Staged,
		"tags_inserted", stats.TagsInserted,
		"tagged_items_inserted", stats.TaggedItemsInserted,
	)
	return stats, nil
}

// collect pages through the records of the given kind and appends a
// candidate for every unique tag of every record.
func collect(
	ctx context.Context,
	db *sqlx.DB,
	kind analytics.SourceKind,
	batchSize int,
	logger log.Logger,
	candidates []candidate,
	stats *Stats,
) ([]candidate, error) {
	stmt := db.Rebind(fmt.Sprintf(`
SELECT
	id,
	team_id,
	deprecated_tags
FROM
	%s
WHERE
	deprecated_tags IS NOT NULL
ORDER BY
	created_at, id
LIMIT ? OFFSET ?`, kind.Table()))

	for offset := 0; ; offset += batchSize {
		level.Info(logger).Log("msg", fmt.Sprintf("%s_tag_batch_get_start", kind), "limit", batchSize, "offset", offset)

		var page []taggedRecord
		if err := db.SelectContext(ctx, &page, stmt, batchSize, offset); err != nil {
			return nil, errors.Wrapf(err, "select %s tags", kind)
		}
		for _, rec := range page {
			names, err := recordTags(rec.DeprecatedTags)
			if err != nil {
				var typeErr *json.UnmarshalTypeError
				if errors.As(err, &typeErr) {
					level.Warn(logger).Log("msg", "skipping tags that are not a list", "kind", kind, "id", rec.ID)
					continue
				}
				return nil, errors.Wrapf(err, "decode tags of %s %d", kind, rec.ID)
			}
			for _, name := range names {
				candidates = append(candidates, candidate{
					tag:  analytics.Tag{ID: uuid.NewString(), Name: name, TeamID: rec.TeamID},
					item: kind.NewTaggedItem(uuid.NewString(), "", rec.ID),
				})
			}
		}
		stats.Records[kind] += len(page)
		if len(page) < batchSize {
			return candidates, nil
		}
	}
}

// recordTags decodes a JSON list of labels and returns the unique tag names
// it holds, in order of first appearance. Entries that are not strings or
// that are blank are dropped.
func recordTags(raw []byte) ([]string, error) {
	var labels []any
	if err := json.Unmarshal(raw, &labels); err != nil {
		return nil, err
	}

	var names []string
	seen := make(map[string]struct{}, len(labels))
	for _, label := range labels {
		s, ok := label.(string)
		if !ok || strings.TrimSpace(s) == "" {
			continue
		}
		name := analytics.Tagify(s)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names, nil
}

type teamTag struct {
	name   string
	teamID uint
}

// resolveBatch sets the id of the stored tag on the tagged item of every
// candidate in batch.
func resolveBatch(ctx context.Context, db *sqlx.DB, batch []candidate, resolved map[teamTag]string) ([]analytics.TaggedItem, error) {
	ids := make([]string, 0, len(batch))
	for _, c := range batch {
		ids = append(ids, c.tag.ID)
	}
	inserted, err := tagsByID(ctx, db, ids)
	if err != nil {
		return nil, err
	}

	items := make([]analytics.TaggedItem, 0, len(batch))
	for _, c := range batch {
		key := teamTag{name: c.tag.Name, teamID: c.tag.TeamID}
		switch id, ok := resolved[key]; {
		case inserted[c.tag.ID]:
			resolved[key] = c.tag.ID
			c.item.TagID = c.tag.ID
		case ok:
			c.item.TagID = id
		default:
			id, err := tagIDByName(ctx, db, c.tag.Name, c.tag.TeamID)
			if err != nil {
				return nil, err
			}
			resolved[key] = id
			c.item.TagID = id
		}
		items = append(items, c.item)
	}
	return items, nil
}
