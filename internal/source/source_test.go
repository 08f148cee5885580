package source

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"

	"marketdash/internal/domain"
	"marketdash/internal/news"
	"marketdash/internal/reddit"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeListing struct {
	posts []reddit.Post
	err   error

	community, sort string
	limit           int
}

func (f *fakeListing) Listing(_ context.Context, community, sort string, limit int) ([]reddit.Post, error) {
	f.community, f.sort, f.limit = community, sort, limit
	return f.posts, f.err
}

type fakeFeed struct {
	feed *gofeed.Feed
	err  error
}

func (f *fakeFeed) ParseURL(context.Context, string) (*gofeed.Feed, error) {
	return f.feed, f.err
}

func newListing(t *testing.T, client ListingClient) *ListingAdapter {
	t.Helper()
	a, err := NewListingAdapter(DefaultListingConfig(), client)
	if err != nil {
		t.Fatalf("NewListingAdapter: %v", err)
	}
	return a
}

func strPtr(s string) *string { return &s }

// ---------------------------------------------------------------------------
// Listing adapter
// ---------------------------------------------------------------------------

func TestListingIntervals(t *testing.T) {
	a := newListing(t, &fakeListing{})

	hot, hotJitter := a.Interval(domain.SortHot)
	rising, _ := a.Interval(domain.SortRising)
	newest, newJitter := a.Interval(domain.SortNew)

	if hot != 10*time.Minute || rising != 2*time.Minute || newest != 10*time.Second {
		t.Errorf("intervals = %v/%v/%v, want 10m/2m/10s", hot, rising, newest)
	}
	if !(newest < rising && rising < hot) {
		t.Errorf("want new < rising < hot, got %v %v %v", newest, rising, hot)
	}
	if hotJitter != 0 || newJitter != 2*time.Second {
		t.Errorf("jitter hot=%v new=%v, want 0 and 2s", hotJitter, newJitter)
	}
}

func TestNewListingAdapterRejectsBadOrdering(t *testing.T) {
	cfg := DefaultListingConfig()
	cfg.NewInterval = cfg.HotInterval
	if _, err := NewListingAdapter(cfg, &fakeListing{}); err == nil {
		t.Error("expected error when new >= hot")
	}

	cfg = DefaultListingConfig()
	cfg.Multiplier = 0
	if _, err := NewListingAdapter(cfg, &fakeListing{}); err == nil {
		t.Error("expected error for zero multiplier")
	}
}

func TestListingFetchOnce(t *testing.T) {
	client := &fakeListing{posts: []reddit.Post{
		{
			ID: "a1", Title: "Buy $GME", Permalink: "/r/wallstreetbets/comments/a1/x/",
			URL: "https://i.redd.it/x.png", CreatedUTC: 1625493600, Score: 1234, UpvoteRatio: 0.97,
			PostHint:  "image",
			Thumbnail: "https://thumbs/x.jpg",
			LinkFlairRichtext: []reddit.FlairPart{
				{E: "emoji", U: "https://emoji/rocket.png"},
				{E: "text", T: " DD "},
			},
			Preview: &reddit.Preview{Images: []reddit.PreviewImage{{Resolutions: []reddit.ImageRef{
				{URL: "r0"}, {URL: "r1"}, {URL: "r2"}, {URL: "r3"}, {URL: "r4"},
			}}}},
		},
		{
			ID: "b2", Title: "Daily", Permalink: "/r/wallstreetbets/comments/b2/d/",
			CreatedUTC: 1625490000, Thumbnail: "self", IsSelf: true, LinkFlairText: "Daily Discussion",
			SelftextHTML: strPtr("&lt;p&gt;hi&lt;/p&gt;"),
			Preview:      &reddit.Preview{Images: []reddit.PreviewImage{{Resolutions: []reddit.ImageRef{{URL: "r0"}}}}},
		},
		{
			ID: "c3", Title: "Small preview",
			Preview: &reddit.Preview{Images: []reddit.PreviewImage{{Resolutions: []reddit.ImageRef{{URL: "s0"}, {URL: "s1"}}}}},
		},
		{Title: "no id is dropped"},
	}}
	a := newListing(t, client)

	res, err := a.FetchOnce(context.Background(), map[string]string{"community": "wallstreetbets", "sortMode": "new"})
	if err != nil {
		t.Fatalf("FetchOnce() error: %v", err)
	}
	if client.community != "wallstreetbets" || client.sort != "new" || client.limit != 25 {
		t.Errorf("client called with %s/%s/%d", client.community, client.sort, client.limit)
	}
	if res.Interval != 10*time.Second || res.Jitter != 2*time.Second {
		t.Errorf("interval=%v jitter=%v", res.Interval, res.Jitter)
	}
	if len(res.Submissions) != 3 {
		t.Fatalf("len(Submissions) = %d, want 3", len(res.Submissions))
	}

	s := res.Submissions[0]
	if s.Permalink != "https://old.reddit.com/r/wallstreetbets/comments/a1/x/" {
		t.Errorf("Permalink = %q", s.Permalink)
	}
	if !s.PublishedAt.Equal(time.Date(2021, 7, 5, 14, 0, 0, 0, time.UTC)) {
		t.Errorf("PublishedAt = %v", s.PublishedAt)
	}
	if s.Score == nil || *s.Score != 1234 || s.UpvoteRatio == nil || *s.UpvoteRatio != 0.97 {
		t.Errorf("score/ratio = %v/%v", s.Score, s.UpvoteRatio)
	}
	if len(s.Flairs) != 1 || s.Flairs[0] != "DD" {
		t.Errorf("Flairs = %v, want [DD]", s.Flairs)
	}
	if s.ContentType != domain.ContentImage {
		t.Errorf("ContentType = %q", s.ContentType)
	}
	if s.ThumbnailURL != "r3" {
		t.Errorf("ThumbnailURL = %q, want r3", s.ThumbnailURL)
	}

	self := res.Submissions[1]
	if self.ThumbnailURL != "" {
		t.Errorf("self post thumbnail = %q, want empty", self.ThumbnailURL)
	}
	if self.BodyHTML != "<p>hi</p>" {
		t.Errorf("BodyHTML = %q", self.BodyHTML)
	}
	if self.ContentType != domain.ContentSelf {
		t.Errorf("ContentType = %q, want self", self.ContentType)
	}
	if len(self.Flairs) != 1 || self.Flairs[0] != "Daily Discussion" {
		t.Errorf("Flairs = %v", self.Flairs)
	}

	if got := res.Submissions[2].ThumbnailURL; got != "s1" {
		t.Errorf("short preview thumbnail = %q, want largest (s1)", got)
	}
}

func TestListingInvalidParams(t *testing.T) {
	client := &fakeListing{}
	a := newListing(t, client)

	tests := []struct {
		name   string
		params map[string]string
	}{
		{"missing community", map[string]string{"sortMode": "hot"}},
		{"short community", map[string]string{"community": "ab", "sortMode": "hot"}},
		{"bad characters", map[string]string{"community": "wall street", "sortMode": "hot"}},
		{"missing sort", map[string]string{"community": "stocks"}},
		{"unknown sort", map[string]string{"community": "stocks", "sortMode": "top"}},
		{"limit zero", map[string]string{"community": "stocks", "sortMode": "hot", "limit": "0"}},
		{"limit too big", map[string]string{"community": "stocks", "sortMode": "hot", "limit": "101"}},
		{"limit not a number", map[string]string{"community": "stocks", "sortMode": "hot", "limit": "ten"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.FetchOnce(context.Background(), tt.params)
			if !IsInvalidParams(err) {
				t.Errorf("error = %v, want InvalidParams", err)
			}
			if IsSourceUnavailable(err) {
				t.Error("InvalidParams must not also be SourceUnavailable")
			}
		})
	}
	if client.community != "" {
		t.Error("transport must not be called for invalid params")
	}
}

func TestListingTransportFailure(t *testing.T) {
	cause := &reddit.APIError{StatusCode: 503}
	a := newListing(t, &fakeListing{err: cause})

	_, err := a.FetchOnce(context.Background(), map[string]string{"community": "stocks", "sortMode": "HOT", "limit": "5"})
	if !IsSourceUnavailable(err) {
		t.Fatalf("error = %v, want SourceUnavailable", err)
	}
	var apiErr *reddit.APIError
	if !errors.As(err, &apiErr) {
		t.Error("cause should remain reachable with errors.As")
	}
}

// ---------------------------------------------------------------------------
// Feed adapter
// ---------------------------------------------------------------------------

const feedDoc = `<?xml version="1.0"?>
<rss version="2.0"><channel><title>T</title>
<item>
  <title>Fed holds rates</title>
  <link>https://example.com/fed</link>
  <guid>urn:fed-1</guid>
  <pubDate>Mon, 05 Jul 2021 14:00:00 +0000</pubDate>
  <description><![CDATA[<p>Body</p><img src="https://img/fed.jpg">]]></description>
  <headline>Fed holds, again</headline>
</item>
<item>
  <title>Duplicate</title>
  <guid>urn:fed-1</guid>
</item>
<item>
  <title>No guid</title>
  <link>https://example.com/noguid</link>
  <category>macro</category>
</item>
</channel></rss>`

func parsedFeed(t *testing.T) *gofeed.Feed {
	t.Helper()
	feed, err := news.ParseString(feedDoc)
	if err != nil {
		t.Fatalf("ParseString: %v", err)
	}
	return feed
}

func TestFeedFetchOnce(t *testing.T) {
	a := NewFeedAdapter(0, &fakeFeed{feed: parsedFeed(t)})

	res, err := a.FetchOnce(context.Background(), map[string]string{"url": "https://example.com/rss"})
	if err != nil {
		t.Fatalf("FetchOnce() error: %v", err)
	}
	if res.Interval != time.Minute || res.Jitter != 0 {
		t.Errorf("interval=%v jitter=%v, want 1m/0", res.Interval, res.Jitter)
	}
	if len(res.Submissions) != 2 {
		t.Fatalf("len(Submissions) = %d, want 2 (duplicate guid dropped)", len(res.Submissions))
	}

	s := res.Submissions[0]
	if s.ID != "urn:fed-1" || s.Title != "Fed holds rates" || s.URL != "https://example.com/fed" {
		t.Errorf("submission = %+v", s)
	}
	if s.Link() != "https://example.com/fed" {
		t.Errorf("Link() = %q", s.Link())
	}
	if !s.PublishedAt.Equal(time.Date(2021, 7, 5, 14, 0, 0, 0, time.UTC)) {
		t.Errorf("PublishedAt = %v", s.PublishedAt)
	}
	if s.ThumbnailURL != "https://img/fed.jpg" || s.ContentType != domain.ContentImage {
		t.Errorf("thumbnail = %q type = %q", s.ThumbnailURL, s.ContentType)
	}
	if s.Score != nil || s.UpvoteRatio != nil {
		t.Error("feed items carry no score or ratio")
	}

	noGUID := res.Submissions[1]
	if noGUID.ID != "https://example.com/noguid" {
		t.Errorf("ID = %q, want link fallback", noGUID.ID)
	}
	if len(noGUID.Flairs) != 1 || noGUID.Flairs[0] != "macro" {
		t.Errorf("Flairs = %v", noGUID.Flairs)
	}
}

func TestFeedFieldMapping(t *testing.T) {
	a := NewFeedAdapter(time.Minute, &fakeFeed{feed: parsedFeed(t)})

	res, err := a.FetchOnce(context.Background(), map[string]string{
		"url":    "https://example.com/rss",
		"fields": `{"title":"headline"}`,
	})
	if err != nil {
		t.Fatalf("FetchOnce() error: %v", err)
	}
	if got := res.Submissions[0].Title; got != "Fed holds, again" {
		t.Errorf("Title = %q, want mapped headline", got)
	}
	// An item without the source field loses the target field.
	if got := res.Submissions[1].Title; got != "" {
		t.Errorf("Title = %q, want empty", got)
	}
}

func TestApplyFieldMapSwap(t *testing.T) {
	got := applyFieldMap(
		map[string]string{"title": "A", "link": "B"},
		map[string]string{"title": "link", "link": "title"},
	)
	if got["title"] != "B" || got["link"] != "A" {
		t.Errorf("swap = %v", got)
	}
}

func TestFeedInvalidParams(t *testing.T) {
	a := NewFeedAdapter(time.Minute, &fakeFeed{feed: parsedFeed(t)})

	for _, params := range []map[string]string{
		{},
		{"url": "not a url"},
		{"url": "ftp://example.com/feed"},
		{"url": "/relative/feed.xml"},
		{"url": "https://example.com/rss", "fields": `["title"]`},
	} {
		if _, err := a.FetchOnce(context.Background(), params); !IsInvalidParams(err) {
			t.Errorf("FetchOnce(%v) error = %v, want InvalidParams", params, err)
		}
	}
}

func TestFeedUnavailable(t *testing.T) {
	a := NewFeedAdapter(time.Minute, &fakeFeed{err: errors.New("connection refused")})
	_, err := a.FetchOnce(context.Background(), map[string]string{"url": "https://example.com/rss"})
	if !IsSourceUnavailable(err) {
		t.Errorf("error = %v, want SourceUnavailable", err)
	}
}

// ---------------------------------------------------------------------------
// Registry
// ---------------------------------------------------------------------------

func TestRegistry(t *testing.T) {
	listing := newListing(t, &fakeListing{})
	feed := NewFeedAdapter(time.Minute, &fakeFeed{})
	r := NewRegistry(listing, feed)

	if a, err := r.Lookup(domain.SourceListing); err != nil || a != Adapter(listing) {
		t.Errorf("Lookup(listing) = %v, %v", a, err)
	}
	if _, err := r.Lookup("reddit"); !IsInvalidParams(err) {
		t.Errorf("Lookup(unknown) error = %v, want InvalidParams", err)
	}

	bad := domain.ColumnConfig{ID: "x", SourceKind: domain.SourceListing, Params: map[string]string{"community": "x"}}
	if err := r.Validate(bad); !IsInvalidParams(err) {
		t.Errorf("Validate() error = %v, want InvalidParams", err)
	}
	good := domain.ColumnConfig{ID: "y", SourceKind: domain.SourceFeed, Params: map[string]string{"url": "https://a.b/rss"}}
	if err := r.Validate(good); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}
