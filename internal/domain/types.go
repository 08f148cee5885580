// Package domain defines the core types shared across the marketdash
// packages: column configurations, normalized submissions, and ticker quotes.
package domain

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Columns
// ---------------------------------------------------------------------------

// SourceKind identifies which source adapter serves a column.
type SourceKind string

const (
	SourceListing SourceKind = "listing"
	SourceFeed    SourceKind = "feed"
)

// Valid reports whether k is a known source kind.
func (k SourceKind) Valid() bool {
	return k == SourceListing || k == SourceFeed
}

// ColumnConfig is one user-configured column. Params are interpreted by the
// adapter matching SourceKind.
type ColumnConfig struct {
	ID         string            `json:"id" yaml:"id"`
	SourceKind SourceKind        `json:"sourceKind" yaml:"source_kind"`
	Params     map[string]string `json:"params" yaml:"params"`
}

// Validate checks the fields every column must carry regardless of kind.
func (c ColumnConfig) Validate() error {
	if c.ID == "" {
		return errors.New("column id is empty")
	}
	if !c.SourceKind.Valid() {
		return fmt.Errorf("column %s: unknown source kind %q", c.ID, c.SourceKind)
	}
	return nil
}

// Clone returns a deep copy of c.
func (c ColumnConfig) Clone() ColumnConfig {
	out := c
	out.Params = maps.Clone(c.Params)
	if out.Params == nil {
		out.Params = map[string]string{}
	}
	return out
}

// Equal reports whether two configs describe the same column with the same
// parameters.
func (c ColumnConfig) Equal(o ColumnConfig) bool {
	if c.ID != o.ID || c.SourceKind != o.SourceKind || len(c.Params) != len(o.Params) {
		return false
	}
	for k, v := range c.Params {
		if ov, ok := o.Params[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// Label returns a short human-readable description of the column.
func (c ColumnConfig) Label() string {
	switch c.SourceKind {
	case SourceListing:
		return fmt.Sprintf("%s by %s", c.Params["community"], c.Params["sortMode"])
	case SourceFeed:
		if name := c.Params["name"]; name != "" {
			return "RSS from " + name
		}
		return "RSS from " + c.Params["url"]
	default:
		return c.ID
	}
}

// SortMode selects which listing of a community is read.
type SortMode string

const (
	SortHot    SortMode = "hot"
	SortRising SortMode = "rising"
	SortNew    SortMode = "new"
)

// ParseSortMode parses s case-insensitively.
func ParseSortMode(s string) (SortMode, error) {
	switch m := SortMode(strings.ToLower(strings.TrimSpace(s))); m {
	case SortHot, SortRising, SortNew:
		return m, nil
	default:
		return "", fmt.Errorf("unknown sort mode %q", s)
	}
}

// ---------------------------------------------------------------------------
// Submissions
// ---------------------------------------------------------------------------

// ContentType mirrors the upstream post hint for media-bearing submissions.
type ContentType string

const (
	ContentNone        ContentType = ""
	ContentImage       ContentType = "image"
	ContentHostedVideo ContentType = "hosted:video"
	ContentRichVideo   ContentType = "rich:video"
	ContentLink        ContentType = "link"
	ContentSelf        ContentType = "self"
)

// Submission is the normalized unit of content produced by every source
// adapter. Optional fields are nil or empty when the source lacks them.
type Submission struct {
	ID           string      `json:"id"`
	Title        string      `json:"title"`
	URL          string      `json:"url,omitempty"`
	Permalink    string      `json:"permalink,omitempty"`
	PublishedAt  time.Time   `json:"publishedAt"`
	Score        *int        `json:"score,omitempty"`
	UpvoteRatio  *float64    `json:"upvoteRatio,omitempty"`
	Flairs       []string    `json:"flairs,omitempty"`
	ContentType  ContentType `json:"contentType,omitempty"`
	ThumbnailURL string      `json:"thumbnailUrl,omitempty"`
	BodyHTML     string      `json:"bodyHtml,omitempty"`
}

// Link returns the URL a reader should open for s: the permalink when the
// source has one, otherwise the item URL.
func (s Submission) Link() string {
	if s.Permalink != "" {
		return s.Permalink
	}
	return s.URL
}

// CloneSubmissions copies a submission list so callers can hand it out
// without sharing backing arrays.
func CloneSubmissions(in []Submission) []Submission {
	if in == nil {
		return nil
	}
	out := make([]Submission, len(in))
	for i, s := range in {
		s.Flairs = slices.Clone(s.Flairs)
		out[i] = s
	}
	return out
}

// ---------------------------------------------------------------------------
// Quotes
// ---------------------------------------------------------------------------

// Quote is a point-in-time price for a symbol.
type Quote struct {
	Open      float64   `json:"open"`
	Current   float64   `json:"current"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// Change returns the percentage move from Open to Current, or 0 when Open
// is not positive.
func (q Quote) Change() float64 {
	if q.Open <= 0 {
		return 0
	}
	return (q.Current - q.Open) / q.Open * 100
}

// Up reports whether the price is above the open.
func (q Quote) Up() bool {
	return q.Current > q.Open
}

// TickerEntry pairs a canonical symbol with the quote fetched for it.
type TickerEntry struct {
	Symbol string `json:"symbol"`
	Quote  Quote  `json:"quote"`
}
