package dashboard

import (
	"fmt"
	"io"
	"strings"
)

// RenderOptions tunes Render.
type RenderOptions struct {
	MaxPerColumn int // submissions shown per column; 0 shows all
}

// Render writes v as plain text.
func Render(w io.Writer, v View, opts RenderOptions) error {
	var b strings.Builder

	fmt.Fprintf(&b, "%s  |  %s\n", v.Now.Format("2006-01-02 15:04:05"), FormatCountdown(v.Market))

	if len(v.Tickers) > 0 {
		parts := make([]string, 0, len(v.Tickers))
		for _, t := range v.Tickers {
			dir := "v"
			if t.Quote.Up() {
				dir = "^"
			}
			parts = append(parts, fmt.Sprintf("%s %s %s [%s]", t.Symbol, dir, FormatChange(t.Quote.Change()), FormatPrice(t.Quote.Current)))
		}
		fmt.Fprintf(&b, "tickers: %s\n", strings.Join(parts, "   "))
	}

	for _, c := range v.Columns {
		b.WriteString("\n")
		status := ""
		switch {
		case c.IsLoading:
			status = " [loading]"
		case c.CurrentInterval > 0:
			status = fmt.Sprintf(" [every %s]", c.CurrentInterval)
		}
		fmt.Fprintf(&b, "=== %s%s ===\n", c.Column.Label(), status)
		if c.LastError != nil {
			fmt.Fprintf(&b, "  ! %v\n", c.LastError)
		}

		subs := c.Submissions
		if opts.MaxPerColumn > 0 && len(subs) > opts.MaxPerColumn {
			subs = subs[:opts.MaxPerColumn]
		}
		for _, s := range subs {
			line := "  "
			if s.Score != nil {
				line += fmt.Sprintf("%7s %4s  ", FormatScore(s.Score), FormatRatio(s.UpvoteRatio))
			}
			line += s.Title
			if len(s.Flairs) > 0 {
				line += " [" + strings.Join(s.Flairs, "] [") + "]"
			}
			if ago := FormatAgo(s.PublishedAt, v.Now); ago != "" {
				line += "  (" + ago + ")"
			}
			b.WriteString(line + "\n")
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}
