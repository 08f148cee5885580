package poller

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"marketdash/internal/domain"
	"marketdash/internal/source"
)

// AdapterLookup resolves the adapter serving a source kind.
type AdapterLookup interface {
	Lookup(kind domain.SourceKind) (source.Adapter, error)
}

// Group supervises one poller per column. A failing or panicking column
// never affects the others.
type Group struct {
	cfg      Config
	adapters AdapterLookup
	handler  StateHandler
	logger   *slog.Logger

	mu      sync.Mutex
	pollers map[string]*Poller
	order   []string
}

// NewGroup creates an empty group. handler receives the states of every
// column and must not call back into the group; it may be nil.
func NewGroup(cfg Config, adapters AdapterLookup, handler StateHandler, logger *slog.Logger) *Group {
	if logger == nil {
		logger = slog.Default()
	}
	return &Group{
		cfg:      cfg,
		adapters: adapters,
		handler:  handler,
		logger:   logger,
		pollers:  make(map[string]*Poller),
	}
}

// Sync reconciles the running pollers with cols: pollers of removed columns
// are stopped, columns whose parameters changed are restarted and new
// columns are started. New pollers run until ctx is done or they are
// stopped; ctx also bounds the stops.
func (g *Group) Sync(ctx context.Context, cols []domain.ColumnConfig) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	want := make(map[string]domain.ColumnConfig, len(cols))
	order := make([]string, 0, len(cols))
	for _, c := range cols {
		if _, dup := want[c.ID]; dup {
			continue
		}
		want[c.ID] = c
		order = append(order, c.ID)
	}

	var stale []*Poller
	for id, p := range g.pollers {
		c, ok := want[id]
		if ok && p.column.Equal(c) {
			continue
		}
		stale = append(stale, p)
		delete(g.pollers, id)
	}
	if err := stopAll(ctx, stale); err != nil {
		return err
	}

	var started int
	for _, id := range order {
		if _, ok := g.pollers[id]; ok {
			continue
		}
		c := want[id]
		p := New(g.cfg, c, g.adapterFor(c), g.handler, g.logger)
		if err := p.Start(ctx); err != nil {
			return err
		}
		g.pollers[id] = p
		started++
	}
	g.order = order

	if started > 0 || len(stale) > 0 {
		g.logger.Info("column pollers synced",
			"columns", len(order),
			"started", started,
			"stopped", len(stale),
		)
	}
	return nil
}

// adapterFor returns the registered adapter, or one that always reports
// the lookup error so the column surfaces it as LastError.
func (g *Group) adapterFor(c domain.ColumnConfig) source.Adapter {
	a, err := g.adapters.Lookup(c.SourceKind)
	if err != nil {
		return failingAdapter{kind: c.SourceKind, err: err}
	}
	return a
}

// States returns the state of every column in display order.
func (g *Group) States() []PollerState {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]PollerState, 0, len(g.order))
	for _, id := range g.order {
		if p, ok := g.pollers[id]; ok {
			out = append(out, p.State())
		}
	}
	return out
}

// State returns the state of one column.
func (g *Group) State(columnID string) (PollerState, bool) {
	g.mu.Lock()
	p, ok := g.pollers[columnID]
	g.mu.Unlock()
	if !ok {
		return PollerState{}, false
	}
	return p.State(), true
}

// Stop stops every poller.
func (g *Group) Stop(ctx context.Context) error {
	g.mu.Lock()
	all := make([]*Poller, 0, len(g.pollers))
	for _, p := range g.pollers {
		all = append(all, p)
	}
	g.pollers = make(map[string]*Poller)
	g.order = nil
	g.mu.Unlock()

	return stopAll(ctx, all)
}

func stopAll(ctx context.Context, pollers []*Poller) error {
	var eg errgroup.Group
	for _, p := range pollers {
		eg.Go(func() error {
			return p.Stop(ctx)
		})
	}
	return eg.Wait()
}

type failingAdapter struct {
	kind domain.SourceKind
	err  error
}

func (f failingAdapter) Kind() domain.SourceKind { return f.kind }

func (f failingAdapter) FetchOnce(context.Context, map[string]string) (source.Result, error) {
	return source.Result{}, f.err
}
