// Package news fetches and flattens syndication feeds (RSS, Atom and JSON
// Feed) and provides small HTML helpers for feed item bodies.
package news

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

// FeedParser fetches and parses feeds over a shared HTTP client. It is safe
// for concurrent use.
type FeedParser struct {
	client    *http.Client
	userAgent string
	logger    *slog.Logger
}

// ParserOption configures a FeedParser.
type ParserOption func(*FeedParser)

// NewFeedParser creates a FeedParser. One parser is built at process start
// and shared by every feed column.
func NewFeedParser(opts ...ParserOption) *FeedParser {
	p := &FeedParser{
		client:    &http.Client{Timeout: 15 * time.Second},
		userAgent: "marketdash/0.1",
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WithTimeout sets the HTTP timeout for feed fetches.
func WithTimeout(d time.Duration) ParserOption {
	return func(p *FeedParser) {
		p.client.Timeout = d
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) ParserOption {
	return func(p *FeedParser) {
		p.userAgent = ua
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ParserOption {
	return func(p *FeedParser) {
		p.client = hc
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ParserOption {
	return func(p *FeedParser) {
		p.logger = logger
	}
}

// ParseURL fetches url and parses the document.
func (p *FeedParser) ParseURL(ctx context.Context, url string) (*gofeed.Feed, error) {
	// gofeed parsers keep per-document state, so each call gets its own.
	fp := gofeed.NewParser()
	fp.Client = p.client
	fp.UserAgent = p.userAgent

	start := time.Now()
	feed, err := fp.ParseURLWithContext(url, ctx)
	if err != nil {
		var httpErr gofeed.HTTPError
		if errors.As(err, &httpErr) {
			return nil, fmt.Errorf("feed %s: http %d", url, httpErr.StatusCode)
		}
		return nil, fmt.Errorf("feed %s: %w", url, err)
	}

	p.logger.Debug("feed parsed",
		"url", url,
		"items", len(feed.Items),
		"elapsed", time.Since(start),
	)
	return feed, nil
}

// ParseString parses an in-memory feed document.
func ParseString(doc string) (*gofeed.Feed, error) {
	return gofeed.NewParser().ParseString(doc)
}

// ---------------------------------------------------------------------------
// Item flattening
// ---------------------------------------------------------------------------

// Item field names produced by Fields.
const (
	FieldTitle       = "title"
	FieldLink        = "link"
	FieldPubDate     = "pubDate"
	FieldUpdated     = "updated"
	FieldGUID        = "guid"
	FieldDescription = "description"
	FieldContent     = "content"
	FieldAuthor      = "author"
	FieldCategories  = "categories"
	FieldImage       = "image"
	FieldEnclosure   = "enclosure"
)

// Fields flattens an item into a map of field name to string value. Custom
// elements the parser did not recognise are included under their own names
// unless they collide with a standard field. Timestamps are RFC 3339.
func Fields(item *gofeed.Item) map[string]string {
	f := make(map[string]string, 12+len(item.Custom))
	for k, v := range item.Custom {
		f[k] = v
	}

	set := func(k, v string) {
		if v = strings.TrimSpace(v); v != "" {
			f[k] = v
		}
	}

	set(FieldTitle, item.Title)
	set(FieldLink, item.Link)
	if item.Link == "" && len(item.Links) > 0 {
		set(FieldLink, item.Links[0])
	}
	set(FieldGUID, item.GUID)
	set(FieldDescription, item.Description)
	set(FieldContent, item.Content)
	set(FieldCategories, strings.Join(item.Categories, ", "))

	if item.PublishedParsed != nil {
		set(FieldPubDate, item.PublishedParsed.UTC().Format(time.RFC3339))
	} else {
		set(FieldPubDate, item.Published)
	}
	if item.UpdatedParsed != nil {
		set(FieldUpdated, item.UpdatedParsed.UTC().Format(time.RFC3339))
	} else {
		set(FieldUpdated, item.Updated)
	}

	if len(item.Authors) > 0 && item.Authors[0] != nil {
		set(FieldAuthor, item.Authors[0].Name)
	}
	if item.Image != nil {
		set(FieldImage, item.Image.URL)
	}
	for _, enc := range item.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image/") {
			set(FieldEnclosure, enc.URL)
			break
		}
	}
	return f
}
