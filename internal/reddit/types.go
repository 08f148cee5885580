package reddit

// listingResponse is the envelope of /r/{community}/{sort}.json.
type listingResponse struct {
	Kind string `json:"kind"`
	Data struct {
		After    string  `json:"after"`
		Children []thing `json:"children"`
	} `json:"data"`
}

type thing struct {
	Kind string `json:"kind"`
	Data Post   `json:"data"`
}

// Post is a raw submission record as returned by the listing endpoint.
type Post struct {
	ID                string      `json:"id"`
	Name              string      `json:"name"`
	Title             string      `json:"title"`
	Permalink         string      `json:"permalink"`
	URL               string      `json:"url"`
	CreatedUTC        float64     `json:"created_utc"`
	Score             int         `json:"score"`
	UpvoteRatio       float64     `json:"upvote_ratio"`
	LinkFlairText     string      `json:"link_flair_text"`
	LinkFlairRichtext []FlairPart `json:"link_flair_richtext"`
	PostHint          string      `json:"post_hint"`
	Thumbnail         string      `json:"thumbnail"`
	Preview           *Preview    `json:"preview"`
	SelftextHTML      *string     `json:"selftext_html"`
	IsSelf            bool        `json:"is_self"`
	Stickied          bool        `json:"stickied"`
}

// FlairPart is one segment of a rich-text flair. E is "text" or "emoji".
type FlairPart struct {
	E string `json:"e"`
	T string `json:"t"`
	U string `json:"u"`
}

// Preview holds the image renditions attached to a post.
type Preview struct {
	Images []PreviewImage `json:"images"`
}

// PreviewImage is one source image with its downscaled resolutions.
type PreviewImage struct {
	Source      ImageRef   `json:"source"`
	Resolutions []ImageRef `json:"resolutions"`
}

// ImageRef is a single rendition.
type ImageRef struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}
