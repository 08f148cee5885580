package quotes

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
)

func TestFinnhubQuote(t *testing.T) {
	var gotSymbol, gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/quote" {
			t.Errorf("path = %q, want /quote", r.URL.Path)
		}
		gotSymbol = r.URL.Query().Get("symbol")
		gotToken = r.Header.Get("X-Finnhub-Token")
		if r.URL.Query().Has("token") {
			t.Error("token must not be sent in the query string")
		}
		w.Write([]byte(`{"c":210.5,"o":200,"h":212,"l":199,"pc":198,"t":1625493600}`))
	}))
	defer srv.Close()

	src := NewFinnhubSource(srv.URL, "secret", time.Second, nil)
	q, err := src.Quote(context.Background(), "GME")
	if err != nil {
		t.Fatalf("Quote() error: %v", err)
	}
	if gotSymbol != "GME" || gotToken != "secret" {
		t.Errorf("symbol=%q token header=%q", gotSymbol, gotToken)
	}
	if q.Open != 200 || q.Current != 210.5 {
		t.Errorf("quote = %+v", q)
	}
	if q.FetchedAt.IsZero() {
		t.Error("FetchedAt should be set")
	}
	if src.Name() != "finnhub" {
		t.Errorf("Name() = %q", src.Name())
	}
}

func TestFinnhubErrorsOmitToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close() // nothing listens any more

	_, err := NewFinnhubSource(addr, "SECRET-TOKEN", time.Second, nil).Quote(context.Background(), "AAPL")
	if err == nil {
		t.Fatal("Quote() should fail when the server is unreachable")
	}
	if strings.Contains(err.Error(), "SECRET-TOKEN") {
		t.Errorf("error leaks the token: %v", err)
	}
}

func TestFinnhubUnknownSymbol(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"c":0,"d":null,"dp":null,"h":0,"l":0,"o":0,"pc":0,"t":0}`))
	}))
	defer srv.Close()

	_, err := NewFinnhubSource(srv.URL, "t", time.Second, nil).Quote(context.Background(), "ZZZZ")
	if !errors.Is(err, ErrUnknownSymbol) {
		t.Errorf("error = %v, want ErrUnknownSymbol", err)
	}
}

func TestFinnhubHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewFinnhubSource(srv.URL, "t", time.Second, nil).Quote(context.Background(), "GME")
	if err == nil || errors.Is(err, ErrUnknownSymbol) {
		t.Errorf("error = %v, want retryable http error", err)
	}
}

type fakeSnapshots struct {
	snap *marketdata.Snapshot
	err  error
	req  marketdata.GetSnapshotRequest
}

func (f *fakeSnapshots) GetSnapshot(_ string, req marketdata.GetSnapshotRequest) (*marketdata.Snapshot, error) {
	f.req = req
	return f.snap, f.err
}

func TestAlpacaQuote(t *testing.T) {
	fake := &fakeSnapshots{snap: &marketdata.Snapshot{
		DailyBar:    &marketdata.Bar{Open: 100, Close: 95},
		LatestTrade: &marketdata.Trade{Price: 96.5},
	}}
	src := NewAlpacaSource(fake, "iex", nil)

	q, err := src.Quote(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("Quote() error: %v", err)
	}
	if q.Open != 100 || q.Current != 96.5 {
		t.Errorf("quote = %+v", q)
	}
	if fake.req.Feed != "iex" {
		t.Errorf("feed = %q, want iex", fake.req.Feed)
	}
	if q.Up() {
		t.Error("Up() should be false when current < open")
	}
}

func TestAlpacaMissingData(t *testing.T) {
	src := NewAlpacaSource(&fakeSnapshots{snap: &marketdata.Snapshot{}}, "", nil)
	if _, err := src.Quote(context.Background(), "NOPE"); !errors.Is(err, ErrUnknownSymbol) {
		t.Errorf("error = %v, want ErrUnknownSymbol", err)
	}

	src = NewAlpacaSource(&fakeSnapshots{err: errors.New("connection reset")}, "", nil)
	_, err := src.Quote(context.Background(), "AAPL")
	if err == nil || errors.Is(err, ErrUnknownSymbol) {
		t.Errorf("error = %v, want transport error", err)
	}
}

func TestAlpacaCancelledContext(t *testing.T) {
	fake := &fakeSnapshots{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewAlpacaSource(fake, "", nil).Quote(ctx, "AAPL"); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}
