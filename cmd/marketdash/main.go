package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"marketdash/internal/columns"
	"marketdash/internal/config"
	"marketdash/internal/dashboard"
	"marketdash/internal/marketclock"
	"marketdash/internal/news"
	"marketdash/internal/poller"
	"marketdash/internal/quotes"
	"marketdash/internal/reddit"
	"marketdash/internal/source"
	"marketdash/internal/store"
	"marketdash/internal/ticker"
	"marketdash/internal/util"
)

func main() {
	cfgPath := "config/marketdash.yaml"
	if p := os.Getenv("MARKETDASH_CONFIG"); p != "" {
		cfgPath = p
	}
	flag.StringVar(&cfgPath, "config", cfgPath, "path to the YAML configuration file")
	rows := flag.Int("rows", 10, "submissions shown per column (0 = all)")
	refresh := flag.Duration("refresh", time.Second, "screen refresh interval")
	reload := flag.Duration("reload", 5*time.Second, "how often to pick up column changes made with marketdash-cli (0 disables)")
	plain := flag.Bool("plain", false, "print plain text frames instead of the interactive view")
	logPath := flag.String("log-file", "", "log file for the interactive view (default /tmp/marketdash-<date>.log)")
	flag.Parse()

	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Logs go to stderr in plain mode; the interactive view owns the
	// terminal, so logs go to a file instead.
	logOut := os.Stderr
	if !*plain {
		if *logPath == "" {
			*logPath = fmt.Sprintf("/tmp/marketdash-%s.log", time.Now().Format("2006-01-02"))
		}
		logFile, err := os.OpenFile(*logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Fatalf("opening log file: %v", err)
		}
		defer logFile.Close()
		logOut = logFile
	}
	logger := util.NewLoggerTo(logOut, cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	kv, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		logger.Error("opening column store", "path", cfg.Storage.SQLitePath, "error", err)
		os.Exit(1)
	}
	defer kv.Close()

	defaults := cfg.Columns
	if len(defaults) == 0 {
		defaults = columns.Defaults()
	}
	colStore, err := columns.Load(ctx, kv, defaults, logger)
	if err != nil {
		logger.Error("loading columns", "error", err)
		os.Exit(1)
	}
	if colStore.UsingDefaults() {
		if err := colStore.Save(ctx); err != nil {
			logger.Warn("saving default columns", "error", err)
		}
	}

	registry, err := newRegistry(cfg, logger)
	if err != nil {
		logger.Error("building source adapters", "error", err)
		os.Exit(1)
	}

	clock, err := marketclock.New(marketclock.Config{
		Timezone: cfg.Market.Timezone,
		Open:     cfg.Market.Open,
		Close:    cfg.Market.Close,
		Holidays: cfg.Market.Holidays,
	})
	if err != nil {
		logger.Error("building market clock", "error", err)
		os.Exit(1)
	}
	if year := time.Now().In(clock.Location()).Year(); !clock.HasHolidays(year) {
		logger.Warn("no holiday list configured for current year, only weekends count as closed", "year", year)
	}

	tickers := ticker.NewStore(ticker.Config{
		Concurrency: cfg.Quotes.Concurrency,
		Timeout:     cfg.Quotes.Timeout,
		Attempts:    cfg.Quotes.Attempts,
	}, newQuoteSource(cfg, logger), logger)

	var archive store.SubmissionArchive
	if cfg.Storage.ArchiveDir != "" {
		archive = store.NewParquetArchive(cfg.Storage.ArchiveDir)
		logger.Info("archiving submissions", "dir", cfg.Storage.ArchiveDir)
	}

	engine := dashboard.New(dashboard.Deps{
		Columns:  colStore,
		Adapters: registry,
		Tickers:  tickers,
		Clock:    clock,
		Archive:  archive,
		Poller: poller.Config{
			DefaultInterval: cfg.Polling.DefaultInterval,
			FetchTimeout:    cfg.Polling.FetchTimeout,
		},
	}, logger)

	opts := dashboard.RenderOptions{MaxPerColumn: *rows}
	done := make(chan error, 1)
	go func() { done <- engine.Run(ctx) }()
	if *reload > 0 {
		go reloadLoop(ctx, colStore, *reload)
	}

	if *plain {
		go renderLoop(ctx, engine, *refresh, opts)
	} else {
		p := tea.NewProgram(
			initialModel(engine, opts, *refresh, cancel),
			tea.WithAltScreen(),
			tea.WithMouseCellMotion(),
			tea.WithContext(ctx),
		)
		if _, err := p.Run(); err != nil && ctx.Err() == nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		cancel()
	}

	if err := <-done; err != nil {
		logger.Error("dashboard stopped with error", "error", err)
		os.Exit(1)
	}
}

func newRegistry(cfg *config.Config, logger *slog.Logger) (*source.Registry, error) {
	client := reddit.NewClient(cfg.Reddit.BaseURL,
		reddit.WithTimeout(cfg.Reddit.Timeout),
		reddit.WithUserAgent(cfg.Reddit.UserAgent),
		reddit.WithRateLimit(cfg.Reddit.RateLimitPerMin),
		reddit.WithLogger(logger),
	)
	listing, err := source.NewListingAdapter(source.ListingConfig{
		Multiplier:     cfg.Polling.RefreshMultiplier,
		HotInterval:    cfg.Polling.HotInterval,
		RisingInterval: cfg.Polling.RisingInterval,
		NewInterval:    cfg.Polling.NewInterval,
		NewJitter:      cfg.Polling.NewJitter,
		PermalinkBase:  cfg.Reddit.PermalinkBase,
		DefaultLimit:   cfg.Reddit.Limit,
	}, client)
	if err != nil {
		return nil, err
	}

	parser := news.NewFeedParser(
		news.WithTimeout(cfg.Feeds.Timeout),
		news.WithUserAgent(cfg.Feeds.UserAgent),
		news.WithLogger(logger),
	)
	feed := source.NewFeedAdapter(cfg.Polling.FeedInterval, parser)

	return source.NewRegistry(listing, feed), nil
}

// newQuoteSource returns nil when quotes are disabled or not configured.
func newQuoteSource(cfg *config.Config, logger *slog.Logger) quotes.Source {
	switch cfg.Quotes.Provider {
	case config.ProviderFinnhub:
		if cfg.Quotes.FinnhubToken == "" {
			logger.Warn("finnhub token not set, ticker quotes disabled")
			return nil
		}
		return quotes.NewFinnhubSource(cfg.Quotes.FinnhubURL, cfg.Quotes.FinnhubToken, cfg.Quotes.Timeout, logger)
	case config.ProviderAlpaca:
		if cfg.Alpaca.APIKey == "" || cfg.Alpaca.APISecret == "" {
			logger.Warn("alpaca credentials not set, ticker quotes disabled")
			return nil
		}
		client := quotes.NewAlpacaClient(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL)
		return quotes.NewAlpacaSource(client, cfg.Alpaca.Feed, logger)
	default:
		return nil
	}
}

// reloadLoop picks up column edits persisted by other processes.
func reloadLoop(ctx context.Context, cols *columns.Store, every time.Duration) {
	tick := time.NewTicker(every)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			if err := cols.Reload(ctx); err != nil {
				slog.Warn("reloading columns", "error", err)
			}
		}
	}
}

// renderLoop redraws the dashboard on every tick.
func renderLoop(ctx context.Context, engine *dashboard.Engine, every time.Duration, opts dashboard.RenderOptions) {
	tick := time.NewTicker(every)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-tick.C:
			// Clear screen and draw.
			fmt.Print("\033[H\033[2J")
			if err := dashboard.Render(os.Stdout, engine.Snapshot(now), opts); err != nil {
				slog.Warn("render failed", "error", err)
			}
		}
	}
}
