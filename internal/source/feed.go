package source

import (
	"context"
	"encoding/json"
	"maps"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"marketdash/internal/domain"
	"marketdash/internal/news"
)

// Compile-time interface check.
var _ Adapter = (*FeedAdapter)(nil)

// FeedFetcher fetches and parses a syndication feed.
type FeedFetcher interface {
	ParseURL(ctx context.Context, url string) (*gofeed.Feed, error)
}

// FeedAdapter reads RSS, Atom and JSON feeds.
type FeedAdapter struct {
	interval time.Duration
	fetcher  FeedFetcher
}

// NewFeedAdapter returns an adapter that recommends a fixed interval. A
// non-positive interval selects one minute.
func NewFeedAdapter(interval time.Duration, fetcher FeedFetcher) *FeedAdapter {
	if interval <= 0 {
		interval = time.Minute
	}
	return &FeedAdapter{interval: interval, fetcher: fetcher}
}

// Kind implements Adapter.
func (a *FeedAdapter) Kind() domain.SourceKind { return domain.SourceFeed }

type feedParams struct {
	url    string
	fields map[string]string // normalized name -> source field
}

// Validate checks feed parameters without fetching.
func (a *FeedAdapter) Validate(params map[string]string) error {
	_, err := parseFeedParams(params)
	return err
}

func parseFeedParams(params map[string]string) (feedParams, error) {
	var p feedParams

	raw := strings.TrimSpace(params["url"])
	if raw == "" {
		return p, invalidParams(domain.SourceFeed, "url is required")
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return p, invalidParams(domain.SourceFeed, "url %q must be an absolute http(s) URL", raw)
	}
	p.url = raw

	if f := strings.TrimSpace(params["fields"]); f != "" {
		if err := json.Unmarshal([]byte(f), &p.fields); err != nil {
			return p, invalidParams(domain.SourceFeed, "fields must be a JSON object of strings: %v", err)
		}
	}
	return p, nil
}

// FetchOnce implements Adapter.
func (a *FeedAdapter) FetchOnce(ctx context.Context, params map[string]string) (Result, error) {
	p, err := parseFeedParams(params)
	if err != nil {
		return Result{}, err
	}

	feed, err := a.fetcher.ParseURL(ctx, p.url)
	if err != nil {
		return Result{}, unavailable(domain.SourceFeed, err)
	}

	subs := make([]domain.Submission, 0, len(feed.Items))
	seen := make(map[string]bool, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		s, ok := feedSubmission(applyFieldMap(news.Fields(item), p.fields))
		if !ok || seen[s.ID] {
			continue
		}
		seen[s.ID] = true
		subs = append(subs, s)
	}

	return Result{Submissions: subs, Interval: a.interval}, nil
}

// applyFieldMap renames fields: each target takes the value of its source
// field, or is cleared when the item has no such field. Lookups read the
// unmapped item so that swaps behave.
func applyFieldMap(f, mapping map[string]string) map[string]string {
	if len(mapping) == 0 {
		return f
	}
	out := maps.Clone(f)
	for target, src := range mapping {
		if v, ok := f[src]; ok {
			out[target] = v
		} else {
			delete(out, target)
		}
	}
	return out
}

// feedSubmission maps a flattened item to a submission. Items with neither
// an id nor a title are dropped.
func feedSubmission(f map[string]string) (domain.Submission, bool) {
	s := domain.Submission{
		ID:    f[news.FieldGUID],
		Title: news.StripHTML(f[news.FieldTitle]),
		URL:   f[news.FieldLink],
	}
	if s.ID == "" {
		s.ID = s.URL
	}
	if s.ID == "" {
		s.ID = s.Title
	}
	if s.ID == "" {
		return s, false
	}

	for _, k := range []string{news.FieldPubDate, news.FieldUpdated} {
		if t, ok := parseTime(f[k]); ok {
			s.PublishedAt = t
			break
		}
	}

	body := f[news.FieldContent]
	if body == "" {
		body = f[news.FieldDescription]
	}
	s.BodyHTML = body

	switch {
	case f[news.FieldImage] != "":
		s.ThumbnailURL = f[news.FieldImage]
	case f[news.FieldEnclosure] != "":
		s.ThumbnailURL = f[news.FieldEnclosure]
	default:
		s.ThumbnailURL = news.FirstImage(body)
	}
	if s.ThumbnailURL != "" {
		s.ContentType = domain.ContentImage
	} else if s.URL != "" {
		s.ContentType = domain.ContentLink
	}

	if c := f[news.FieldCategories]; c != "" {
		for _, cat := range strings.Split(c, ",") {
			if cat = strings.TrimSpace(cat); cat != "" {
				s.Flairs = append(s.Flairs, cat)
			}
		}
	}
	return s, true
}

var timeLayouts = []string{
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 02 Jan 2006 15:04 MST",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
