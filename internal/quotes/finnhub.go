package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"marketdash/internal/domain"
)

// Compile-time interface check.
var _ Source = (*FinnhubSource)(nil)

// DefaultFinnhubURL is the public Finnhub REST endpoint.
const DefaultFinnhubURL = "https://finnhub.io/api/v1"

// maxQuoteBody caps how much of a quote response is read.
const maxQuoteBody = 1 << 20

// FinnhubSource reads quotes from Finnhub's /quote endpoint.
type FinnhubSource struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewFinnhubSource creates a Finnhub quote source. An empty baseURL selects
// DefaultFinnhubURL.
func NewFinnhubSource(baseURL, token string, timeout time.Duration, logger *slog.Logger) *FinnhubSource {
	if baseURL == "" {
		baseURL = DefaultFinnhubURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FinnhubSource{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Name implements Source.
func (f *FinnhubSource) Name() string { return "finnhub" }

type finnhubQuote struct {
	Current       float64 `json:"c"`
	Open          float64 `json:"o"`
	High          float64 `json:"h"`
	Low           float64 `json:"l"`
	PreviousClose float64 `json:"pc"`
	Timestamp     int64   `json:"t"`
}

// Quote implements Source.
func (f *FinnhubSource) Quote(ctx context.Context, symbol string) (domain.Quote, error) {
	q := url.Values{}
	q.Set("symbol", symbol)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/quote?"+q.Encode(), nil)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	// Kept out of the URL so transport errors never carry it.
	req.Header.Set("X-Finnhub-Token", f.token)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("finnhub quote %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxQuoteBody))
	if err != nil {
		return domain.Quote{}, fmt.Errorf("finnhub quote %s: read response: %w", symbol, err)
	}
	if resp.StatusCode >= 400 {
		return domain.Quote{}, fmt.Errorf("finnhub quote %s: http %d", symbol, resp.StatusCode)
	}

	var fq finnhubQuote
	if err := json.Unmarshal(body, &fq); err != nil {
		return domain.Quote{}, fmt.Errorf("finnhub quote %s: unmarshal: %w", symbol, err)
	}

	// Unknown symbols come back as an all-zero quote.
	if fq.Current == 0 && fq.Open == 0 && fq.PreviousClose == 0 {
		return domain.Quote{}, fmt.Errorf("finnhub quote %s: %w", symbol, ErrUnknownSymbol)
	}

	f.logger.Debug("finnhub quote", "symbol", symbol, "open", fq.Open, "current", fq.Current)
	return domain.Quote{
		Open:      fq.Open,
		Current:   fq.Current,
		FetchedAt: time.Now(),
	}, nil
}
