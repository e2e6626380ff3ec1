// Package analytics holds the domain types shared by the tag migration, the
// datastore and the command line tool.
package analytics

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Tag is a normalized, team-scoped label. Name is unique within a team.
type Tag struct {
	// ID is generated client side so that a candidate tag can be found again
	// after an insert that may have silently skipped it.
	ID     string `json:"id" db:"id"`
	Name   string `json:"name" db:"name"`
	TeamID uint   `json:"team_id" db:"team_id"`
}

// TaggedItem links a tag to exactly one tagged record.
type TaggedItem struct {
	ID          string `json:"id" db:"id"`
	TagID       string `json:"tag_id" db:"tag_id"`
	InsightID   *uint  `json:"insight_id" db:"insight_id"`
	DashboardID *uint  `json:"dashboard_id" db:"dashboard_id"`
}

// SourceKind identifies a record type that carried embedded tags before the
// normalized schema existed.
type SourceKind string

const (
	SourceInsight   SourceKind = "insight"
	SourceDashboard SourceKind = "dashboard"
)

// SourceKinds lists the tagged record types in the order they are migrated.
var SourceKinds = []SourceKind{SourceInsight, SourceDashboard}

// Table returns the table holding records of this kind.
func (k SourceKind) Table() string {
	switch k {
	case SourceInsight:
		return "insights"
	case SourceDashboard:
		return "dashboards"
	}
	return ""
}

// ForeignKey returns the tagged_items column referencing records of this
// kind.
func (k SourceKind) ForeignKey() string {
	switch k {
	case SourceInsight:
		return "insight_id"
	case SourceDashboard:
		return "dashboard_id"
	}
	return ""
}

// NewTaggedItem returns an item tagging the record of kind k identified by
// recordID.
func (k SourceKind) NewTaggedItem(id, tagID string, recordID uint) TaggedItem {
	item := TaggedItem{ID: id, TagID: tagID}
	switch k {
	case SourceInsight:
		item.InsightID = &recordID
	case SourceDashboard:
		item.DashboardID = &recordID
	}
	return item
}

// MaxTagNameLength is the width, in characters, of the tags.name column.
const MaxTagNameLength = 255

// Tagify maps a free-text label to its canonical tag name. Labels that only
// differ by surrounding or repeated whitespace, case or Unicode compatibility
// form get the same name. Names are cut to MaxTagNameLength characters, so
// labels sharing such a prefix map to the same tag. It returns "" for a blank
// label.
func Tagify(label string) string {
	label = norm.NFKC.String(strings.TrimSpace(label))
	if label == "" {
		return ""
	}
	// Casers are stateful and must not be shared between goroutines.
	name := cases.Lower(language.Und).String(strings.Join(strings.FieldsFunc(label, unicode.IsSpace), " "))
	if utf8.RuneCountInString(name) > MaxTagNameLength {
		name = strings.TrimRightFunc(string([]rune(name)[:MaxTagNameLength]), unicode.IsSpace)
	}
	return name
}
