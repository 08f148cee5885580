// Package dashboard wires the column store, pollers, ticker pipeline and
// market clock into one engine and renders its state as text.
package dashboard

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"marketdash/internal/columns"
	"marketdash/internal/domain"
	"marketdash/internal/marketclock"
	"marketdash/internal/poller"
	"marketdash/internal/store"
	"marketdash/internal/ticker"
)

// Deps are the components the engine drives. Archive is optional.
type Deps struct {
	Columns  *columns.Store
	Adapters poller.AdapterLookup
	Tickers  *ticker.Store
	Clock    *marketclock.Clock
	Archive  store.SubmissionArchive
	Poller   poller.Config
}

// ColumnView is what the presentation layer receives per column.
type ColumnView struct {
	Column          domain.ColumnConfig
	Submissions     []domain.Submission
	IsLoading       bool
	LastError       error
	CurrentInterval time.Duration
	UpdatedAt       time.Time
}

// View is a consistent snapshot of everything on screen.
type View struct {
	Now     time.Time
	Columns []ColumnView
	Tickers []domain.TickerEntry
	Market  marketclock.Countdown
}

type archiveJob struct {
	columnID  string
	fetchedAt time.Time
	subs      []domain.Submission
}

// Engine runs the dashboard core.
type Engine struct {
	deps    Deps
	group   *poller.Group
	scanner *ticker.Scanner
	logger  *slog.Logger

	archiveCh chan archiveJob
}

// New creates an engine. Call Run to start polling.
func New(deps Deps, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		deps:    deps,
		scanner: ticker.NewScanner(deps.Tickers),
		logger:  logger.With("component", "dashboard"),
	}
	if deps.Archive != nil {
		e.archiveCh = make(chan archiveJob, 64)
	}
	e.group = poller.NewGroup(deps.Poller, deps.Adapters, poller.StateHandlerFunc(e.handleState), logger)
	return e
}

// handleState runs on poller goroutines. It must stay non-blocking and must
// not call into the group.
func (e *Engine) handleState(s poller.PollerState) {
	if s.Phase != poller.PhaseScheduled || s.LastError != nil {
		return
	}

	e.scanner.Scan(s.ColumnID, s.Submissions)

	if e.archiveCh == nil || len(s.Submissions) == 0 {
		return
	}
	select {
	case e.archiveCh <- archiveJob{columnID: s.ColumnID, fetchedAt: s.UpdatedAt, subs: s.Submissions}:
	default:
		e.logger.Warn("archive queue full, dropping snapshot", "column", s.ColumnID)
	}
}

// Run starts a poller per column, follows column changes and blocks until
// ctx is done. On return every poller is stopped and the ticker store is
// closed.
func (e *Engine) Run(ctx context.Context) error {
	subID, changes := e.deps.Columns.Subscribe(32)
	defer e.deps.Columns.Unsubscribe(subID)

	g, gctx := errgroup.WithContext(ctx)

	if err := e.group.Sync(gctx, e.deps.Columns.List()); err != nil {
		return err
	}
	e.logger.Info("dashboard engine started", "columns", len(e.deps.Columns.List()))

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case ch, ok := <-changes:
				if !ok {
					return nil
				}
				if ch.Type == columns.ChangeRemoved || ch.Type == columns.ChangeEdited {
					e.scanner.Forget(ch.Column.ID)
				}
				if err := e.group.Sync(gctx, e.deps.Columns.List()); err != nil {
					return err
				}
			}
		}
	})

	if e.archiveCh != nil {
		g.Go(func() error {
			e.archiveLoop(gctx)
			return nil
		})
	}

	err := g.Wait()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if stopErr := e.group.Stop(stopCtx); stopErr != nil {
		e.logger.Warn("pollers did not stop in time", "err", stopErr)
	}
	e.deps.Tickers.Close()

	e.logger.Info("dashboard engine stopped")
	return err
}

func (e *Engine) archiveLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-e.archiveCh:
			if err := e.deps.Archive.WriteSubmissions(ctx, job.columnID, job.fetchedAt, job.subs); err != nil {
				e.logger.Warn("archive write failed", "column", job.columnID, "err", err)
			}
		}
	}
}

// Snapshot returns the current view. Columns appear in display order;
// columns whose poller has not started yet are shown as loading.
func (e *Engine) Snapshot(now time.Time) View {
	cols := e.deps.Columns.List()
	v := View{
		Now:     now,
		Columns: make([]ColumnView, 0, len(cols)),
		Tickers: e.deps.Tickers.Entries(),
		Market:  e.deps.Clock.Countdown(now),
	}
	for _, c := range cols {
		cv := ColumnView{Column: c, IsLoading: true}
		if s, ok := e.group.State(c.ID); ok {
			cv.Submissions = s.Submissions
			cv.IsLoading = s.IsLoading || s.Cycles == 0
			cv.LastError = s.LastError
			cv.CurrentInterval = s.CurrentInterval
			cv.UpdatedAt = s.UpdatedAt
		}
		v.Columns = append(v.Columns, cv)
	}
	return v
}
