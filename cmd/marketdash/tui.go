package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"marketdash/internal/dashboard"
)

var (
	openStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("10"))
	closedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("1"))
	gainStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	lossStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	symbolStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("15")).Background(lipgloss.Color("8"))
)

type tickMsg time.Time

func tickCmd(every time.Duration) tea.Cmd {
	return tea.Tick(every, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Model.
type model struct {
	engine  *dashboard.Engine
	opts    dashboard.RenderOptions
	refresh time.Duration
	cancel  context.CancelFunc

	view          dashboard.View
	viewport      viewport.Model
	ready         bool
	width, height int
}

func initialModel(engine *dashboard.Engine, opts dashboard.RenderOptions, refresh time.Duration, cancel context.CancelFunc) model {
	return model{
		engine:  engine,
		opts:    opts,
		refresh: refresh,
		cancel:  cancel,
		view:    engine.Snapshot(time.Now()),
	}
}

func (m model) Init() tea.Cmd {
	return tickCmd(m.refresh)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.cancel()
			return m, tea.Quit
		case "+":
			m.opts.MaxPerColumn++
			m.setContent()
			return m, nil
		case "-":
			if m.opts.MaxPerColumn > 1 {
				m.opts.MaxPerColumn--
				m.setContent()
			}
			return m, nil
		case "home":
			m.viewport.GotoTop()
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		vpHeight := max(m.height-2, 1) // header + footer
		if !m.ready {
			m.viewport = viewport.New(m.width, vpHeight)
			m.viewport.MouseWheelEnabled = true
			m.ready = true
		} else {
			m.viewport.Width = m.width
			m.viewport.Height = vpHeight
		}
		m.setContent()
		return m, nil

	case tickMsg:
		m.view = m.engine.Snapshot(time.Time(msg))
		m.setContent()
		return m, tickCmd(m.refresh)
	}

	if m.ready {
		m.viewport, cmd = m.viewport.Update(msg)
	}
	return m, cmd
}

func (m *model) setContent() {
	if !m.ready {
		return
	}
	var b strings.Builder
	if err := dashboard.Render(&b, m.view, m.opts); err != nil {
		b.WriteString(err.Error())
	}
	m.viewport.SetContent(b.String())
}

func (m model) View() string {
	if !m.ready {
		return "Loading..."
	}

	header := fmt.Sprintf(" %s  %s ", m.view.Now.Format("Mon Jan 2 15:04:05"), dashboard.FormatCountdown(m.view.Market))
	style := closedStyle
	if m.view.Market.Open {
		style = openStyle
	}
	headerBar := style.Render(padOrTrunc(header, m.width))
	if quotes := m.renderTickers(); quotes != "" {
		headerBar = style.Render(header) + " " + quotes
	}

	footerLeft := " q quit  +/- rows  home top  pgup/dn scroll"
	footerRight := fmt.Sprintf("%.0f%% ", m.viewport.ScrollPercent()*100)
	gap := max(m.width-len(footerLeft)-len(footerRight), 0)
	footerBar := footerStyle.Render(padOrTrunc(footerLeft+strings.Repeat(" ", gap)+footerRight, m.width))

	return headerBar + "\n" + m.viewport.View() + "\n" + footerBar
}

func (m model) renderTickers() string {
	parts := make([]string, 0, len(m.view.Tickers))
	for _, t := range m.view.Tickers {
		change := lossStyle.Render(dashboard.FormatChange(t.Quote.Change()))
		if t.Quote.Up() {
			change = gainStyle.Render(dashboard.FormatChange(t.Quote.Change()))
		}
		parts = append(parts, symbolStyle.Render(t.Symbol)+" "+change+" "+dashboard.FormatPrice(t.Quote.Current))
	}
	return strings.Join(parts, "  ")
}

// padOrTrunc pads s with spaces to width, or truncates if longer.
func padOrTrunc(s string, width int) string {
	n := len(s)
	if n >= width {
		return s[:width]
	}
	return s + strings.Repeat(" ", width-n)
}
