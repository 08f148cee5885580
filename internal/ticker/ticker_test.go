package ticker

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"marketdash/internal/domain"
	"marketdash/internal/quotes"
)

// ---------------------------------------------------------------------------
// Extract
// ---------------------------------------------------------------------------

func TestExtract(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"Check $GME and $gme and $STONK", []string{"GME"}},
		{"$TSLA to the moon, $AAPL flat", []string{"AAPL", "TSLA"}},
		{"$stonk $Stonk", nil},
		{"paid $5 for it", nil},
		{"$ alone", nil},
		{"$GME2 and $BB!", []string{"BB", "GME"}},
		{"no symbols here", nil},
		{"", nil},
	}
	for _, tt := range tests {
		got := Extract(tt.in)
		if len(got) == 0 && len(tt.want) == 0 {
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Extract(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestCanonical(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"gme", "GME"},
		{" $aapl ", "AAPL"},
		{"stonk", ""},
		{"BRK.B", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Canonical(tt.in); got != tt.want {
			t.Errorf("Canonical(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Scanner
// ---------------------------------------------------------------------------

type countingObserver struct {
	mu    sync.Mutex
	calls map[string]int
}

func (o *countingObserver) Observe(sym string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.calls == nil {
		o.calls = map[string]int{}
	}
	o.calls[sym]++
	return true
}

func TestScannerScansEachSubmissionOnce(t *testing.T) {
	obs := &countingObserver{}
	sc := NewScanner(obs)

	batch := []domain.Submission{
		{ID: "1", Title: "$GME squeeze"},
		{ID: "2", Title: "$gme again and $AMC"},
	}
	if got := sc.Scan("col", batch); !reflect.DeepEqual(got, []string{"GME", "AMC"}) {
		t.Errorf("first Scan = %v", got)
	}
	// A refresh delivering the same submissions finds nothing new.
	if got := sc.Scan("col", batch); len(got) != 0 {
		t.Errorf("second Scan = %v, want none", got)
	}
	// The same submission in another column is scanned for that column.
	if got := sc.Scan("other", batch[:1]); !reflect.DeepEqual(got, []string{"GME"}) {
		t.Errorf("other column Scan = %v", got)
	}

	if obs.calls["GME"] != 2 || obs.calls["AMC"] != 1 {
		t.Errorf("observer calls = %v", obs.calls)
	}

	sc.Forget("col")
	if got := sc.Scan("col", batch[:1]); len(got) != 1 {
		t.Errorf("Scan after Forget = %v, want rescan", got)
	}
}

// ---------------------------------------------------------------------------
// Store
// ---------------------------------------------------------------------------

type fakeSource struct {
	fn       func(ctx context.Context, sym string, call int) (domain.Quote, error)
	calls    atomic.Int32
	inflight atomic.Int32
	peak     atomic.Int32
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Quote(ctx context.Context, sym string) (domain.Quote, error) {
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	return f.fn(ctx, sym, int(f.calls.Add(1)))
}

func quick() Config {
	return Config{Concurrency: 4, Timeout: time.Second, Attempts: 1, RetryDelay: time.Millisecond}
}

func TestStoreObserveAtMostOnce(t *testing.T) {
	gate := make(chan struct{})
	src := &fakeSource{fn: func(context.Context, string, int) (domain.Quote, error) {
		<-gate
		return domain.Quote{Open: 100, Current: 110}, nil
	}}
	s := NewStore(quick(), src, nil)
	defer s.Close()

	var wg sync.WaitGroup
	var started atomic.Int32
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Observe("AAPL") {
				started.Add(1)
			}
		}()
	}
	wg.Wait()

	if s.Observe("aapl") {
		t.Error("case-folded duplicate should be a no-op while in flight")
	}
	if got := s.Pending(); !reflect.DeepEqual(got, []string{"AAPL"}) {
		t.Errorf("Pending() = %v", got)
	}

	close(gate)
	s.Wait()

	if started.Load() != 1 || src.calls.Load() != 1 {
		t.Errorf("fetches started = %d, source calls = %d, want 1 and 1", started.Load(), src.calls.Load())
	}
	if s.Observe("AAPL") {
		t.Error("resolved symbol should not be fetched again")
	}

	entries := s.Entries()
	if len(entries) != 1 || entries[0].Symbol != "AAPL" || entries[0].Quote.Current != 110 {
		t.Errorf("Entries() = %+v", entries)
	}
	if entries[0].Quote.FetchedAt.IsZero() {
		t.Error("FetchedAt should be filled in")
	}
	if q, ok := s.Lookup("aapl"); !ok || q.Change() != 10 {
		t.Errorf("Lookup = %+v, %v", q, ok)
	}
}

func TestStoreEntriesInObservationOrder(t *testing.T) {
	src := &fakeSource{fn: func(ctx context.Context, sym string, _ int) (domain.Quote, error) {
		if sym == "AAPL" {
			select {
			case <-time.After(100 * time.Millisecond):
			case <-ctx.Done():
				return domain.Quote{}, ctx.Err()
			}
		}
		return domain.Quote{Open: 1, Current: 2}, nil
	}}
	s := NewStore(quick(), src, nil)
	defer s.Close()

	s.Observe("AAPL")
	s.Observe("MSFT")
	s.Observe("GME")
	s.Wait()

	var got []string
	for _, e := range s.Entries() {
		got = append(got, e.Symbol)
	}
	if want := []string{"AAPL", "MSFT", "GME"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Entries() symbols = %v, want %v", got, want)
	}
}

func TestStoreRetryTakesNewPosition(t *testing.T) {
	src := &fakeSource{fn: func(_ context.Context, sym string, call int) (domain.Quote, error) {
		if sym == "GME" && call == 1 {
			return domain.Quote{}, errors.New("connection reset")
		}
		return domain.Quote{Open: 1, Current: 2}, nil
	}}
	s := NewStore(quick(), src, nil)
	defer s.Close()

	s.Observe("GME")
	s.Wait()
	s.Observe("TSLA")
	s.Wait()
	s.Observe("GME")
	s.Wait()

	var got []string
	for _, e := range s.Entries() {
		got = append(got, e.Symbol)
	}
	if want := []string{"TSLA", "GME"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Entries() symbols = %v, want %v", got, want)
	}
}

func TestStoreFailureAllowsRetry(t *testing.T) {
	src := &fakeSource{fn: func(_ context.Context, _ string, call int) (domain.Quote, error) {
		if call == 1 {
			return domain.Quote{}, errors.New("connection reset")
		}
		return domain.Quote{Open: 1, Current: 2}, nil
	}}
	s := NewStore(quick(), src, nil)
	defer s.Close()

	s.Observe("GME")
	s.Wait()
	if len(s.Entries()) != 0 {
		t.Fatal("failed fetch must not add an entry")
	}
	if len(s.Pending()) != 0 {
		t.Fatal("failed fetch must clear the in-flight marker")
	}

	if !s.Observe("GME") {
		t.Fatal("symbol should be observable again after a failure")
	}
	s.Wait()
	if len(s.Entries()) != 1 {
		t.Errorf("Entries() = %v, want GME", s.Entries())
	}
}

func TestStoreRetriesTransientButNotUnknown(t *testing.T) {
	cfg := quick()
	cfg.Attempts = 3

	flaky := &fakeSource{fn: func(_ context.Context, _ string, call int) (domain.Quote, error) {
		if call < 3 {
			return domain.Quote{}, errors.New("timeout")
		}
		return domain.Quote{Open: 1, Current: 1}, nil
	}}
	s := NewStore(cfg, flaky, nil)
	s.Observe("AMC")
	s.Wait()
	s.Close()
	if flaky.calls.Load() != 3 || len(s.Entries()) != 1 {
		t.Errorf("flaky: calls = %d entries = %d, want 3 and 1", flaky.calls.Load(), len(s.Entries()))
	}

	unknown := &fakeSource{fn: func(context.Context, string, int) (domain.Quote, error) {
		return domain.Quote{}, quotes.ErrUnknownSymbol
	}}
	s = NewStore(cfg, unknown, nil)
	s.Observe("ZZZZ")
	s.Wait()
	s.Close()
	if unknown.calls.Load() != 1 {
		t.Errorf("unknown symbol: calls = %d, want 1", unknown.calls.Load())
	}
}

func TestStoreBoundedConcurrency(t *testing.T) {
	cfg := quick()
	cfg.Concurrency = 2
	src := &fakeSource{fn: func(context.Context, string, int) (domain.Quote, error) {
		time.Sleep(5 * time.Millisecond)
		return domain.Quote{Open: 1, Current: 1}, nil
	}}
	s := NewStore(cfg, src, nil)
	defer s.Close()

	for _, sym := range []string{"A", "B", "C", "D", "E", "F"} {
		s.Observe(sym)
	}
	s.Wait()

	if got := src.peak.Load(); got > 2 {
		t.Errorf("peak concurrent fetches = %d, want <= 2", got)
	}
	if got := len(s.Entries()); got != 6 {
		t.Errorf("len(Entries()) = %d, want 6", got)
	}
}

func TestStoreClose(t *testing.T) {
	src := &fakeSource{fn: func(ctx context.Context, _ string, _ int) (domain.Quote, error) {
		<-ctx.Done()
		return domain.Quote{}, ctx.Err()
	}}
	s := NewStore(quick(), src, nil)
	_, ch := s.Subscribe(1)

	s.Observe("TSLA")
	s.Close()

	if len(s.Pending()) != 0 || len(s.Entries()) != 0 {
		t.Error("Close should settle in-flight fetches without entries")
	}
	if s.Observe("NVDA") {
		t.Error("Observe after Close should be a no-op")
	}
	if _, ok := <-ch; ok {
		t.Error("subscriber channel should be closed")
	}
}

func TestStoreSubscribe(t *testing.T) {
	src := &fakeSource{fn: func(context.Context, string, int) (domain.Quote, error) {
		return domain.Quote{Open: 10, Current: 9}, nil
	}}
	s := NewStore(quick(), src, nil)
	defer s.Close()

	id, ch := s.Subscribe(4)
	s.Observe("BB")

	select {
	case e := <-ch:
		if e.Symbol != "BB" || e.Quote.Up() {
			t.Errorf("entry = %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("no entry received")
	}
	s.Unsubscribe(id)
}

func TestStoreWithoutSource(t *testing.T) {
	s := NewStore(quick(), nil, nil)
	defer s.Close()
	if s.Observe("GME") {
		t.Error("Observe without a source should not start a fetch")
	}
	s.Wait()
}
