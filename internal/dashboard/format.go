package dashboard

import (
	"fmt"
	"math"
	"strings"
	"time"

	"marketdash/internal/marketclock"
)

// FormatInt formats an integer with comma separators.
func FormatInt(n int) string {
	if n < 0 {
		return "-" + FormatInt(-n)
	}
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	start := len(s) % 3
	if start > 0 {
		b.WriteString(s[:start])
	}
	for i := start; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// FormatScore formats an optional score, or "-" when absent.
func FormatScore(score *int) string {
	if score == nil {
		return "-"
	}
	return FormatInt(*score)
}

// FormatRatio formats an upvote ratio as a whole percentage, rounded down.
func FormatRatio(r *float64) string {
	if r == nil {
		return "-"
	}
	return fmt.Sprintf("%d%%", int(math.Floor(*r*100+1e-9)))
}

// FormatPrice formats a price value as $X.XX, or "-" for zero.
func FormatPrice(p float64) string {
	if p == 0 {
		return "-"
	}
	return fmt.Sprintf("$%.2f", p)
}

// FormatChange formats a percentage move with an explicit sign and two
// decimals.
func FormatChange(pct float64) string {
	return fmt.Sprintf("%+.2f%%", pct)
}

// FormatAgo formats the time elapsed from t to now in coarse units.
func FormatAgo(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return plural(int(d/time.Minute), "minute") + " ago"
	case d < 24*time.Hour:
		return plural(int(d/time.Hour), "hour") + " ago"
	case d < 30*24*time.Hour:
		return plural(int(d/(24*time.Hour)), "day") + " ago"
	default:
		return t.Format("Jan 2, 2006")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// FormatCountdown describes the next market boundary.
func FormatCountdown(cd marketclock.Countdown) string {
	if cd.Open {
		return "market open, closes in " + cd.String()
	}
	return "market closed, opens in " + cd.String()
}
