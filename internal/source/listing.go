package source

import (
	"context"
	"errors"
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"
	"time"

	"marketdash/internal/domain"
	"marketdash/internal/reddit"
)

// Compile-time interface check.
var _ Adapter = (*ListingAdapter)(nil)

// ListingClient fetches one page of a community listing.
type ListingClient interface {
	Listing(ctx context.Context, community, sort string, limit int) ([]reddit.Post, error)
}

// ListingConfig holds the refresh tiers for listing columns. The effective
// interval is the tier value times Multiplier.
type ListingConfig struct {
	Multiplier     int
	HotInterval    time.Duration
	RisingInterval time.Duration
	NewInterval    time.Duration
	NewJitter      time.Duration
	PermalinkBase  string
	DefaultLimit   int
}

// DefaultListingConfig returns the stock refresh tiers.
func DefaultListingConfig() ListingConfig {
	return ListingConfig{
		Multiplier:     2,
		HotInterval:    5 * time.Minute,
		RisingInterval: time.Minute,
		NewInterval:    5 * time.Second,
		NewJitter:      2 * time.Second,
		PermalinkBase:  "https://old.reddit.com",
		DefaultLimit:   25,
	}
}

// ListingAdapter reads community listings.
type ListingAdapter struct {
	cfg    ListingConfig
	client ListingClient
}

// NewListingAdapter validates cfg and returns an adapter. The tiers must
// satisfy new < rising < hot so that faster-moving listings refresh sooner.
func NewListingAdapter(cfg ListingConfig, client ListingClient) (*ListingAdapter, error) {
	if cfg.Multiplier < 1 {
		return nil, fmt.Errorf("listing: multiplier must be at least 1, got %d", cfg.Multiplier)
	}
	if !(0 < cfg.NewInterval && cfg.NewInterval < cfg.RisingInterval && cfg.RisingInterval < cfg.HotInterval) {
		return nil, fmt.Errorf("listing: intervals must satisfy 0 < new < rising < hot (got %s, %s, %s)",
			cfg.NewInterval, cfg.RisingInterval, cfg.HotInterval)
	}
	if cfg.NewJitter < 0 {
		return nil, errors.New("listing: jitter must not be negative")
	}
	if cfg.DefaultLimit < 1 || cfg.DefaultLimit > maxLimit {
		cfg.DefaultLimit = 25
	}
	cfg.PermalinkBase = strings.TrimRight(cfg.PermalinkBase, "/")
	return &ListingAdapter{cfg: cfg, client: client}, nil
}

// Kind implements Adapter.
func (a *ListingAdapter) Kind() domain.SourceKind { return domain.SourceListing }

// Interval returns the refresh interval and jitter bound for mode.
func (a *ListingAdapter) Interval(mode domain.SortMode) (time.Duration, time.Duration) {
	m := time.Duration(a.cfg.Multiplier)
	switch mode {
	case domain.SortHot:
		return a.cfg.HotInterval * m, 0
	case domain.SortRising:
		return a.cfg.RisingInterval * m, 0
	default:
		return a.cfg.NewInterval * m, a.cfg.NewJitter
	}
}

const maxLimit = 100

var communityRe = regexp.MustCompile(`^[A-Za-z0-9_]{3,21}$`)

type listingParams struct {
	community string
	sort      domain.SortMode
	limit     int
}

// Validate checks listing parameters without fetching.
func (a *ListingAdapter) Validate(params map[string]string) error {
	_, err := a.parseParams(params)
	return err
}

func (a *ListingAdapter) parseParams(params map[string]string) (listingParams, error) {
	p := listingParams{limit: a.cfg.DefaultLimit}

	p.community = strings.TrimSpace(params["community"])
	if p.community == "" {
		return p, invalidParams(domain.SourceListing, "community is required")
	}
	if !communityRe.MatchString(p.community) {
		return p, invalidParams(domain.SourceListing, "community %q is not a valid name", p.community)
	}

	raw, ok := params["sortMode"]
	if !ok || raw == "" {
		return p, invalidParams(domain.SourceListing, "sortMode is required")
	}
	mode, err := domain.ParseSortMode(raw)
	if err != nil {
		return p, invalidParams(domain.SourceListing, "%v", err)
	}
	p.sort = mode

	if raw := params["limit"]; raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxLimit {
			return p, invalidParams(domain.SourceListing, "limit must be between 1 and %d, got %q", maxLimit, raw)
		}
		p.limit = n
	}
	return p, nil
}

// FetchOnce implements Adapter.
func (a *ListingAdapter) FetchOnce(ctx context.Context, params map[string]string) (Result, error) {
	p, err := a.parseParams(params)
	if err != nil {
		return Result{}, err
	}

	posts, err := a.client.Listing(ctx, p.community, string(p.sort), p.limit)
	if err != nil {
		return Result{}, unavailable(domain.SourceListing, err)
	}

	subs := make([]domain.Submission, 0, len(posts))
	for _, post := range posts {
		if post.ID == "" {
			continue
		}
		subs = append(subs, a.normalize(post))
	}

	interval, jitter := a.Interval(p.sort)
	return Result{Submissions: subs, Interval: interval, Jitter: jitter}, nil
}

// ---------------------------------------------------------------------------
// Normalization
// ---------------------------------------------------------------------------

func (a *ListingAdapter) normalize(p reddit.Post) domain.Submission {
	score := p.Score
	ratio := p.UpvoteRatio

	s := domain.Submission{
		ID:           p.ID,
		Title:        p.Title,
		URL:          p.URL,
		PublishedAt:  unixSeconds(p.CreatedUTC),
		Score:        &score,
		UpvoteRatio:  &ratio,
		Flairs:       flairs(p),
		ContentType:  contentType(p),
		ThumbnailURL: thumbnail(p),
	}
	if p.Permalink != "" {
		s.Permalink = a.cfg.PermalinkBase + p.Permalink
	}
	if p.SelftextHTML != nil {
		s.BodyHTML = unescapeBody(*p.SelftextHTML)
	}
	return s
}

func unixSeconds(f float64) time.Time {
	sec := int64(f)
	nsec := int64((f - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}

// flairs returns the text segments of a rich flair, falling back to the
// plain flair text.
func flairs(p reddit.Post) []string {
	var out []string
	for _, part := range p.LinkFlairRichtext {
		if part.E != "" && part.E != "text" {
			continue
		}
		if t := strings.TrimSpace(part.T); t != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		if t := strings.TrimSpace(p.LinkFlairText); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func contentType(p reddit.Post) domain.ContentType {
	switch ct := domain.ContentType(p.PostHint); ct {
	case domain.ContentImage, domain.ContentHostedVideo, domain.ContentRichVideo, domain.ContentLink, domain.ContentSelf:
		return ct
	}
	if p.IsSelf {
		return domain.ContentSelf
	}
	return domain.ContentNone
}

// thumbnail picks a mid-size preview rendition: the fourth resolution or the
// largest available when fewer exist. Text posts have no thumbnail.
func thumbnail(p reddit.Post) string {
	if p.Thumbnail == "self" || p.Preview == nil || len(p.Preview.Images) == 0 {
		return ""
	}
	res := p.Preview.Images[0].Resolutions
	if len(res) == 0 {
		return ""
	}
	return res[min(len(res)-1, 3)].URL
}

// unescapeBody decodes selftext HTML that arrives entity-escaped when the
// listing is requested without raw_json.
func unescapeBody(s string) string {
	if strings.HasPrefix(strings.TrimSpace(s), "&lt;") {
		return html.UnescapeString(s)
	}
	return s
}
