package ticker

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"marketdash/internal/domain"
	"marketdash/internal/quotes"
	"marketdash/internal/util"
)

// ErrQuoteUnavailable is logged when every attempt to fetch a quote failed.
// The symbol may be observed again later.
var ErrQuoteUnavailable = errors.New("quote unavailable")

// Config holds quote fetch tuning.
type Config struct {
	Concurrency int           // max concurrent quote fetches
	Timeout     time.Duration // per-attempt timeout
	Attempts    int           // attempts per observation
	RetryDelay  time.Duration // initial backoff between attempts
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency: 4,
		Timeout:     10 * time.Second,
		Attempts:    2,
		RetryDelay:  500 * time.Millisecond,
	}
}

// Store resolves each observed symbol to a quote at most once per session.
// Quotes are never refreshed.
type Store struct {
	cfg    Config
	src    quotes.Source
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	sem    chan struct{}

	mu       sync.Mutex
	idle     *sync.Cond
	entries  []resolvedEntry // first-observed order
	resolved map[string]bool
	inflight map[string]uint64 // symbol -> observation sequence
	seq      uint64
	closed   bool

	subsMu     sync.Mutex
	nextSubID  int
	subs       map[int]chan domain.TickerEntry
	subsClosed bool
}

// resolvedEntry keeps the observation sequence that fixes an entry's position.
type resolvedEntry struct {
	seq   uint64
	entry domain.TickerEntry
}

// NewStore creates a store backed by src. A nil src disables fetching.
func NewStore(cfg Config, src quotes.Source, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.Concurrency < 1 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Attempts < 1 {
		cfg.Attempts = def.Attempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		cfg:      cfg,
		src:      src,
		logger:   logger.With("component", "ticker"),
		ctx:      ctx,
		cancel:   cancel,
		sem:      make(chan struct{}, cfg.Concurrency),
		resolved: make(map[string]bool),
		inflight: make(map[string]uint64),
		subs:     make(map[int]chan domain.TickerEntry),
	}
	s.idle = sync.NewCond(&s.mu)
	return s
}

// Observe requests a quote for symbol. It is a no-op when the symbol is
// invalid, already resolved or already being fetched, and returns whether a
// fetch was started. It never blocks on the network.
func (s *Store) Observe(symbol string) bool {
	sym := Canonical(symbol)
	if sym == "" || s.src == nil {
		return false
	}

	s.mu.Lock()
	if _, busy := s.inflight[sym]; busy || s.closed || s.resolved[sym] {
		s.mu.Unlock()
		return false
	}
	s.seq++
	seq := s.seq
	s.inflight[sym] = seq
	s.mu.Unlock()

	go s.fetch(sym, seq)
	return true
}

func (s *Store) fetch(sym string, seq uint64) {
	var q domain.Quote
	err := s.acquire()
	if err == nil {
		err = util.Retry(s.ctx, s.cfg.Attempts, s.cfg.RetryDelay, func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
			defer cancel()

			var err error
			q, err = s.src.Quote(ctx, sym)
			if errors.Is(err, quotes.ErrUnknownSymbol) {
				return util.Permanent(err)
			}
			return err
		})
		<-s.sem
	}

	if err == nil && q.FetchedAt.IsZero() {
		q.FetchedAt = time.Now()
	}

	s.mu.Lock()
	delete(s.inflight, sym)
	var entry domain.TickerEntry
	added := false
	if err == nil && !s.closed {
		entry = domain.TickerEntry{Symbol: sym, Quote: q}
		i, _ := slices.BinarySearchFunc(s.entries, seq, func(e resolvedEntry, target uint64) int {
			return cmp.Compare(e.seq, target)
		})
		s.entries = slices.Insert(s.entries, i, resolvedEntry{seq: seq, entry: entry})
		s.resolved[sym] = true
		added = true
	}
	s.idle.Broadcast()
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("quote fetch failed",
			"symbol", sym,
			"source", s.src.Name(),
			"err", fmt.Errorf("%w: %w", ErrQuoteUnavailable, err),
		)
		return
	}
	if added {
		s.logger.Debug("quote resolved",
			"symbol", sym,
			"open", q.Open,
			"current", q.Current,
		)
		s.broadcast(entry)
	}
}

// acquire takes a concurrency slot unless the store is closed.
func (s *Store) acquire() error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}

// Entries returns resolved symbols with their quotes in the order the
// symbols were first observed. A symbol whose fetch failed takes the
// position of the observation that eventually resolved it.
func (s *Store) Entries() []domain.TickerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.TickerEntry, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.entry
	}
	return out
}

// Lookup returns the quote for symbol if it has been resolved.
func (s *Store) Lookup(symbol string) (domain.Quote, bool) {
	sym := Canonical(symbol)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.entry.Symbol == sym {
			return e.entry.Quote, true
		}
	}
	return domain.Quote{}, false
}

// Pending returns the symbols currently being fetched, sorted.
func (s *Store) Pending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.inflight))
	for sym := range s.inflight {
		out = append(out, sym)
	}
	slices.Sort(out)
	return out
}

// Wait blocks until no fetch is in flight.
func (s *Store) Wait() {
	s.mu.Lock()
	for len(s.inflight) > 0 {
		s.idle.Wait()
	}
	s.mu.Unlock()
}

// Close cancels in-flight fetches, waits for them to settle and closes all
// subscriber channels. Later observations are ignored.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.Wait()

	s.subsMu.Lock()
	s.subsClosed = true
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	s.subsMu.Unlock()
}

// Subscribe returns a channel that receives newly resolved entries. bufSize
// controls the channel buffer; slow consumers will have entries dropped.
func (s *Store) Subscribe(bufSize int) (int, <-chan domain.TickerEntry) {
	ch := make(chan domain.TickerEntry, bufSize)
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	id := s.nextSubID
	s.nextSubID++
	if s.subsClosed {
		close(ch)
		return id, ch
	}
	s.subs[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (s *Store) Unsubscribe(id int) {
	s.subsMu.Lock()
	if ch, ok := s.subs[id]; ok {
		delete(s.subs, id)
		close(ch)
	}
	s.subsMu.Unlock()
}

// broadcast sends an entry to all subscribers non-blocking (drop on full).
func (s *Store) broadcast(e domain.TickerEntry) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	if s.subsClosed {
		return
	}
	for _, ch := range s.subs {
		select {
		case ch <- e:
		default:
		}
	}
}
