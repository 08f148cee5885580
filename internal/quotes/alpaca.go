package quotes

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"marketdash/internal/domain"
)

// Compile-time interface check.
var _ Source = (*AlpacaSource)(nil)

// SnapshotClient is the subset of the Alpaca market-data client used here.
type SnapshotClient interface {
	GetSnapshot(symbol string, req marketdata.GetSnapshotRequest) (*marketdata.Snapshot, error)
}

// AlpacaSource reads quotes from Alpaca market-data snapshots: the daily
// bar's open and the latest trade price.
type AlpacaSource struct {
	client SnapshotClient
	feed   string
	logger *slog.Logger
}

// NewAlpacaClient creates the market-data client for an AlpacaSource. An
// empty dataURL selects the SDK default.
func NewAlpacaClient(apiKey, apiSecret, dataURL string) *marketdata.Client {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	return marketdata.NewClient(opts)
}

// NewAlpacaSource wraps client. feed selects the data feed ("iex" or
// "sip"); empty uses the account default.
func NewAlpacaSource(client SnapshotClient, feed string, logger *slog.Logger) *AlpacaSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &AlpacaSource{client: client, feed: feed, logger: logger}
}

// Name implements Source.
func (a *AlpacaSource) Name() string { return "alpaca" }

// Quote implements Source. The SDK call does not take a context, so ctx is
// only checked before the request.
func (a *AlpacaSource) Quote(ctx context.Context, symbol string) (domain.Quote, error) {
	if err := ctx.Err(); err != nil {
		return domain.Quote{}, err
	}

	snap, err := a.client.GetSnapshot(symbol, marketdata.GetSnapshotRequest{Feed: marketdata.Feed(a.feed)})
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "not found") {
			return domain.Quote{}, fmt.Errorf("alpaca snapshot %s: %w", symbol, ErrUnknownSymbol)
		}
		return domain.Quote{}, fmt.Errorf("alpaca snapshot %s: %w", symbol, err)
	}
	if snap == nil || snap.DailyBar == nil || snap.LatestTrade == nil {
		return domain.Quote{}, fmt.Errorf("alpaca snapshot %s: %w", symbol, ErrUnknownSymbol)
	}

	a.logger.Debug("alpaca quote", "symbol", symbol, "open", snap.DailyBar.Open, "current", snap.LatestTrade.Price)
	return domain.Quote{
		Open:      snap.DailyBar.Open,
		Current:   snap.LatestTrade.Price,
		FetchedAt: time.Now(),
	}, nil
}
