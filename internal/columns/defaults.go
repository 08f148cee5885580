package columns

import (
	"github.com/google/uuid"

	"marketdash/internal/domain"
)

// Listing returns a new listing column for community sorted by mode.
func Listing(community string, mode domain.SortMode) domain.ColumnConfig {
	return domain.ColumnConfig{
		ID:         uuid.NewString(),
		SourceKind: domain.SourceListing,
		Params: map[string]string{
			"community": community,
			"sortMode":  string(mode),
		},
	}
}

// Feed returns a new feed column for url.
func Feed(url, name string) domain.ColumnConfig {
	params := map[string]string{"url": url}
	if name != "" {
		params["name"] = name
	}
	return domain.ColumnConfig{
		ID:         uuid.NewString(),
		SourceKind: domain.SourceFeed,
		Params:     params,
	}
}

// Defaults returns the column set used on first run or after the saved
// configuration is found corrupt. Ids are freshly generated on every call.
func Defaults() []domain.ColumnConfig {
	return []domain.ColumnConfig{
		Listing("wallstreetbets", domain.SortHot),
		Listing("wallstreetbets", domain.SortRising),
		Listing("wallstreetbets", domain.SortNew),
		Listing("smallstreetbets", domain.SortHot),
		Listing("smallstreetbets", domain.SortRising),
		Listing("smallstreetbets", domain.SortNew),
	}
}

// NewColumnParams are the parameters given to a column added without
// explicit configuration.
func NewColumnParams() map[string]string {
	return map[string]string{
		"community": "wallstreetbets",
		"sortMode":  string(domain.SortRising),
	}
}
