package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"marketdash/internal/domain"
	"marketdash/internal/source"
)

// Phase is the lifecycle position of a poller.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseFetching  Phase = "fetching"
	PhaseScheduled Phase = "scheduled"
	PhaseStopped   Phase = "stopped"
)

// PollerState is the observable state of one column.
type PollerState struct {
	ColumnID        string
	Submissions     []domain.Submission
	IsLoading       bool
	CurrentInterval time.Duration
	LastError       error
	Phase           Phase
	Cycles          int
	UpdatedAt       time.Time // last successful fetch
}

func (s PollerState) clone() PollerState {
	s.Submissions = domain.CloneSubmissions(s.Submissions)
	return s
}

// StateHandler receives a copy of the state after every change.
// Handlers must not call Stop on the poller that invoked them.
type StateHandler interface {
	HandleState(state PollerState)
}

// StateHandlerFunc is a function adapter for StateHandler.
type StateHandlerFunc func(PollerState)

func (f StateHandlerFunc) HandleState(s PollerState) {
	f(s)
}

// ErrAlreadyStarted is returned by Start on a poller that was started before.
var ErrAlreadyStarted = errors.New("poller already started")

// Config holds poller configuration.
type Config struct {
	DefaultInterval time.Duration // delay before the adapter has recommended one
	FetchTimeout    time.Duration // per-fetch deadline
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		DefaultInterval: 30 * time.Second,
		FetchTimeout:    30 * time.Second,
	}
}

// Poller drives the fetch cycle for a single column.
type Poller struct {
	cfg     Config
	column  domain.ColumnConfig
	adapter source.Adapter
	handler StateHandler
	logger  *slog.Logger

	mu      sync.Mutex
	state   PollerState
	jitter  time.Duration
	started bool
	stopped bool

	// emitMu serialises handler calls; Stop acquires it once to wait out a
	// call already in progress.
	emitMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Poller for column.
func New(cfg Config, column domain.ColumnConfig, adapter source.Adapter, handler StateHandler, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DefaultInterval <= 0 {
		cfg.DefaultInterval = DefaultConfig().DefaultInterval
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultConfig().FetchTimeout
	}
	return &Poller{
		cfg:     cfg,
		column:  column.Clone(),
		adapter: adapter,
		handler: handler,
		logger:  logger.With("component", "poller", "column", column.ID),
		state: PollerState{
			ColumnID: column.ID,
			Phase:    PhaseIdle,
		},
	}
}

// Column returns the configuration the poller was created with.
func (p *Poller) Column() domain.ColumnConfig {
	return p.column.Clone()
}

// State returns a copy of the current state.
func (p *Poller) State() PollerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.clone()
}

// Start begins the fetch loop. The first fetch happens immediately.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return ErrAlreadyStarted
	}
	p.started = true
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()

	p.wg.Add(1)
	go p.run()

	p.logger.Info("column poller started",
		"source", p.column.SourceKind,
		"label", p.column.Label(),
	)
	return nil
}

// Stop cancels the pending timer and any in-flight fetch and waits for the
// loop to exit, bounded by ctx. Once Stop has been called no further state
// change is made; once it returns no further handler call is made.
func (p *Poller) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	p.state.IsLoading = false
	p.state.Phase = PhaseStopped
	cancel := p.cancel
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		p.emitMu.Lock()
		p.emitMu.Unlock()
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("column poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the fetch loop. The next timer is armed only after the previous
// cycle has settled, so fetches never overlap.
func (p *Poller) run() {
	defer p.wg.Done()

	for {
		delay, ok := p.cycle()
		if !ok {
			return
		}

		timer := time.NewTimer(delay)
		select {
		case <-p.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// cycle performs one fetch and returns the delay before the next one. It
// returns false when the poller was stopped.
func (p *Poller) cycle() (time.Duration, bool) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return 0, false
	}
	p.state.IsLoading = true
	p.state.Phase = PhaseFetching
	snapshot := p.state.clone()
	p.mu.Unlock()
	p.emit(snapshot)

	start := time.Now()
	res, err := p.fetch()

	p.mu.Lock()
	if p.stopped {
		// Late result after Stop: discard.
		p.mu.Unlock()
		return 0, false
	}
	p.state.IsLoading = false
	p.state.Cycles++
	if err != nil {
		p.state.LastError = err
	} else {
		p.state.Submissions = domain.CloneSubmissions(res.Submissions)
		if p.state.Submissions == nil {
			p.state.Submissions = []domain.Submission{}
		}
		p.state.LastError = nil
		p.state.UpdatedAt = time.Now()
		if res.Interval > 0 {
			p.state.CurrentInterval = res.Interval
		}
		p.jitter = max(0, res.Jitter)
	}
	delay := p.nextDelay()
	p.state.Phase = PhaseScheduled
	snapshot = p.state.clone()
	p.mu.Unlock()

	if err != nil {
		p.logger.Warn("column fetch failed",
			"err", err,
			"retry_in", delay,
		)
	} else {
		p.logger.Debug("column fetched",
			"submissions", len(snapshot.Submissions),
			"duration", time.Since(start),
			"next_in", delay,
		)
	}

	p.emit(snapshot)
	return delay, true
}

// nextDelay must be called with mu held.
func (p *Poller) nextDelay() time.Duration {
	interval := p.state.CurrentInterval
	if interval <= 0 {
		interval = p.cfg.DefaultInterval
	}
	if p.jitter > 0 {
		interval += time.Duration(rand.Int64N(int64(p.jitter) + 1))
	}
	return interval
}

// fetch calls the adapter with a deadline. A panicking adapter is reported
// as an unavailable source.
func (p *Poller) fetch() (res source.Result, err error) {
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.FetchTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("adapter panicked", "panic", r)
			res = source.Result{}
			err = &source.Error{
				Kind:   source.ErrSourceUnavailable,
				Source: p.column.SourceKind,
				Err:    fmt.Errorf("adapter panic: %v", r),
			}
		}
	}()

	return p.adapter.FetchOnce(ctx, p.column.Params)
}

// emit delivers a state copy to the handler unless the poller has been
// stopped.
func (p *Poller) emit(s PollerState) {
	if p.handler == nil {
		return
	}

	p.emitMu.Lock()
	defer p.emitMu.Unlock()

	p.mu.Lock()
	stopped := p.stopped
	p.mu.Unlock()
	if stopped {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("state handler panicked", "panic", r)
		}
	}()
	p.handler.HandleState(s)
}
