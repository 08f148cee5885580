package config

import "time"

// DefaultHolidays is the fixed exchange holiday list shipped with the
// dashboard, keyed by year. Only explicit dates are honoured; floating
// holidays for other years must be added here or in the config file.
var DefaultHolidays = map[int][]string{
	2021: {
		"2021-01-04", // New Years Day
		"2021-01-21", // Martin Luther King, Jr. Day
		"2021-02-18", // Washington's Birthday
		"2021-04-05", // Good Friday
		"2021-06-03", // Memorial Day
		"2021-07-08", // Independence Day
		"2021-09-09", // Labor Day
		"2021-11-28", // Thanksgiving Day
		"2021-12-27", // Christmas
	},
}

// ApplyDefaults fills every zero-valued field with its default.
func (c *Config) ApplyDefaults() {
	setString(&c.Storage.SQLitePath, "marketdash.db")

	setString(&c.Logging.Level, "info")
	setString(&c.Logging.Format, "json")

	setString(&c.Reddit.BaseURL, "https://www.reddit.com")
	setString(&c.Reddit.PermalinkBase, "https://old.reddit.com")
	setString(&c.Reddit.UserAgent, "marketdash/0.1 (personal dashboard)")
	setDuration(&c.Reddit.Timeout, 15*time.Second)
	setInt(&c.Reddit.RateLimitPerMin, 60)
	setInt(&c.Reddit.Limit, 25)

	setString(&c.Feeds.UserAgent, "marketdash/0.1 (personal dashboard)")
	setDuration(&c.Feeds.Timeout, 15*time.Second)

	setInt(&c.Polling.RefreshMultiplier, 2)
	setDuration(&c.Polling.HotInterval, 5*time.Minute)
	setDuration(&c.Polling.RisingInterval, time.Minute)
	setDuration(&c.Polling.NewInterval, 5*time.Second)
	setDuration(&c.Polling.NewJitter, 2*time.Second)
	setDuration(&c.Polling.FeedInterval, time.Minute)
	setDuration(&c.Polling.DefaultInterval, 30*time.Second)
	setDuration(&c.Polling.FetchTimeout, 20*time.Second)

	setString(&c.Quotes.Provider, ProviderFinnhub)
	setString(&c.Quotes.FinnhubURL, "https://finnhub.io/api/v1")
	setDuration(&c.Quotes.Timeout, 10*time.Second)
	setInt(&c.Quotes.Concurrency, 4)
	setInt(&c.Quotes.Attempts, 2)

	setString(&c.Alpaca.Feed, "iex")

	setString(&c.Market.Timezone, "America/New_York")
	setString(&c.Market.Open, "09:30")
	setString(&c.Market.Close, "16:00")
	if c.Market.Holidays == nil {
		c.Market.Holidays = DefaultHolidays
	}
}

func setString(p *string, v string) {
	if *p == "" {
		*p = v
	}
}

func setInt(p *int, v int) {
	if *p == 0 {
		*p = v
	}
}

func setDuration(p *time.Duration, v time.Duration) {
	if *p == 0 {
		*p = v
	}
}
