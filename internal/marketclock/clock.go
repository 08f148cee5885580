// Package marketclock computes exchange session boundaries and countdowns
// from wall-clock time, a fixed daily session and a per-year holiday list.
//
// Only explicit holiday dates are honoured. Floating holidays (e.g. "third
// Monday of January") must be listed per year in configuration; a year
// without a list is treated as having no holidays.
package marketclock

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config describes the exchange session.
type Config struct {
	Timezone string           // IANA zone, e.g. "America/New_York"
	Open     string           // HH:MM exchange-local
	Close    string           // HH:MM exchange-local
	Holidays map[int][]string // year -> YYYY-MM-DD dates
}

// Clock answers session questions for one exchange. It is immutable and safe
// for concurrent use.
type Clock struct {
	loc      *time.Location
	open     int // minutes after local midnight
	close    int
	holidays map[string]bool
	years    map[int]bool
}

// Session is one trading day's open and close instants.
type Session struct {
	Open  time.Time
	Close time.Time
}

// New builds a Clock from cfg.
func New(cfg Config) (*Clock, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("marketclock: timezone %q: %w", cfg.Timezone, err)
	}
	open, err := parseHHMM(cfg.Open)
	if err != nil {
		return nil, fmt.Errorf("marketclock: open: %w", err)
	}
	closeMin, err := parseHHMM(cfg.Close)
	if err != nil {
		return nil, fmt.Errorf("marketclock: close: %w", err)
	}
	if closeMin <= open {
		return nil, fmt.Errorf("marketclock: close %s must be after open %s", cfg.Close, cfg.Open)
	}

	c := &Clock{
		loc:      loc,
		open:     open,
		close:    closeMin,
		holidays: make(map[string]bool),
		years:    make(map[int]bool),
	}
	for year, dates := range cfg.Holidays {
		c.years[year] = true
		for _, d := range dates {
			t, err := time.Parse("2006-01-02", d)
			if err != nil {
				return nil, fmt.Errorf("marketclock: holiday %q: %w", d, err)
			}
			c.holidays[t.Format("2006-01-02")] = true
		}
	}
	return c, nil
}

func parseHHMM(s string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("%q is not HH:MM", s)
	}
	h, err1 := strconv.Atoi(hh)
	m, err2 := strconv.Atoi(mm)
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("%q is not HH:MM", s)
	}
	return h*60 + m, nil
}

// Location returns the exchange time zone.
func (c *Clock) Location() *time.Location { return c.loc }

// HasHolidays reports whether a holiday list was configured for year.
func (c *Clock) HasHolidays(year int) bool { return c.years[year] }

// Session returns the open and close instants for now's exchange-local date,
// whether or not that date is a trading day.
func (c *Clock) Session(now time.Time) Session {
	y, m, d := now.In(c.loc).Date()
	return c.sessionOn(y, m, d)
}

func (c *Clock) sessionOn(y int, m time.Month, d int) Session {
	return Session{
		Open:  time.Date(y, m, d, c.open/60, c.open%60, 0, 0, c.loc),
		Close: time.Date(y, m, d, c.close/60, c.close%60, 0, 0, c.loc),
	}
}

// IsTradingDay reports whether t's exchange-local date is neither a weekend
// nor a listed holiday.
func (c *Clock) IsTradingDay(t time.Time) bool {
	local := t.In(c.loc)
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return !c.holidays[local.Format("2006-01-02")]
}

// IsOpen reports whether now falls strictly between today's open and close
// on a trading day.
func (c *Clock) IsOpen(now time.Time) bool {
	if !c.IsTradingDay(now) {
		return false
	}
	s := c.Session(now)
	return now.After(s.Open) && now.Before(s.Close)
}

// NextOpen returns the first session open strictly after now. Today counts
// when its open is still ahead; otherwise days are scanned forward, skipping
// weekends and holidays.
func (c *Clock) NextOpen(now time.Time) time.Time {
	return c.nextSession(now, func(s Session) time.Time { return s.Open })
}

// NextClose returns the first session close strictly after now.
func (c *Clock) NextClose(now time.Time) time.Time {
	return c.nextSession(now, func(s Session) time.Time { return s.Close })
}

func (c *Clock) nextSession(now time.Time, boundary func(Session) time.Time) time.Time {
	y, m, d := now.In(c.loc).Date()
	// Weekends recur every 7 days and the holiday list is finite.
	for i := 0; ; i++ {
		s := c.sessionOn(y, m, d+i)
		if !c.IsTradingDay(s.Open) {
			continue
		}
		if b := boundary(s); b.After(now) {
			return b
		}
	}
}

// Countdown is the time remaining to the next boundary: the close while the
// market is open, the next open otherwise.
type Countdown struct {
	Open      bool
	Boundary  time.Time
	Remaining time.Duration
	Hours     int
	Minutes   int
	Seconds   int
}

// Countdown computes the countdown at now. Remaining is a magnitude.
func (c *Clock) Countdown(now time.Time) Countdown {
	cd := Countdown{Open: c.IsOpen(now)}
	if cd.Open {
		cd.Boundary = c.Session(now).Close
	} else {
		cd.Boundary = c.NextOpen(now)
	}

	rem := cd.Boundary.Sub(now)
	if rem < 0 {
		rem = -rem
	}
	cd.Remaining = rem

	secs := int(rem / time.Second)
	cd.Hours = secs / 3600
	cd.Minutes = secs / 60 % 60
	cd.Seconds = secs % 60
	return cd
}

// String formats the countdown as H:MM:SS.
func (cd Countdown) String() string {
	return fmt.Sprintf("%d:%02d:%02d", cd.Hours, cd.Minutes, cd.Seconds)
}
