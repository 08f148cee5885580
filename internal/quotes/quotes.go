// Package quotes fetches point-in-time quotes (session open and latest
// price) from a market-data provider.
package quotes

import (
	"context"
	"errors"

	"marketdash/internal/domain"
)

// ErrUnknownSymbol is returned when the provider has no data for a symbol.
// Retrying will not help.
var ErrUnknownSymbol = errors.New("unknown symbol")

// Source fetches a quote for one canonical (uppercase) symbol.
type Source interface {
	Name() string
	Quote(ctx context.Context, symbol string) (domain.Quote, error)
}
