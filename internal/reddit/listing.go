package reddit

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// Listing returns up to limit posts of community in the given sort order
// ("hot", "rising" or "new"). Paging beyond the first page is not needed by
// any caller.
func (c *Client) Listing(ctx context.Context, community, sort string, limit int) ([]Post, error) {
	path := fmt.Sprintf("/r/%s/%s.json", url.PathEscape(community), url.PathEscape(sort))

	query := url.Values{}
	query.Set("raw_json", "1")
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var resp listingResponse
	if err := c.get(ctx, path, query, &resp); err != nil {
		return nil, fmt.Errorf("listing %s/%s: %w", community, sort, err)
	}
	if resp.Kind != "Listing" {
		return nil, fmt.Errorf("listing %s/%s: unexpected kind %q", community, sort, resp.Kind)
	}

	posts := make([]Post, 0, len(resp.Data.Children))
	for _, child := range resp.Data.Children {
		if child.Kind != "t3" {
			continue
		}
		posts = append(posts, child.Data)
	}
	return posts, nil
}
