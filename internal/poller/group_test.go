package poller

import (
	"context"
	"testing"
	"time"

	"marketdash/internal/domain"
	"marketdash/internal/source"
)

func TestGroup_Sync(t *testing.T) {
	listing := &fakeAdapter{kind: domain.SourceListing, fn: func(context.Context, int) (source.Result, error) {
		return source.Result{Submissions: subs("l"), Interval: time.Hour}, nil
	}}
	feed := &fakeAdapter{kind: domain.SourceFeed, fn: func(context.Context, int) (source.Result, error) {
		panic("feed adapter bug")
	}}
	g := NewGroup(DefaultConfig(), source.NewRegistry(listing, feed), nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	defer g.Stop(ctx)

	a := testColumn("a")
	b := domain.ColumnConfig{ID: "b", SourceKind: domain.SourceFeed, Params: map[string]string{"url": "https://x/rss"}}
	c := testColumn("c")

	if err := g.Sync(ctx, []domain.ColumnConfig{a, b, c}); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	waitFor(t, "all columns fetched", func() bool {
		for _, s := range g.States() {
			if s.Cycles == 0 {
				return false
			}
		}
		return true
	})

	states := g.States()
	if len(states) != 3 || states[0].ColumnID != "a" || states[1].ColumnID != "b" || states[2].ColumnID != "c" {
		t.Fatalf("States() order = %v", states)
	}
	if states[1].LastError == nil {
		t.Error("panicking column should carry an error")
	}
	if states[0].LastError != nil || states[2].LastError != nil {
		t.Error("a panicking column must not affect the others")
	}

	pa, pc := g.pollers["a"], g.pollers["c"]

	// Reorder, drop b, edit c.
	c2 := c.Clone()
	c2.Params["sortMode"] = "hot"
	if err := g.Sync(ctx, []domain.ColumnConfig{c2, a}); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	if _, ok := g.State("b"); ok {
		t.Error("removed column still has a poller")
	}
	if g.pollers["a"] != pa {
		t.Error("unchanged column should keep its poller")
	}
	if g.pollers["c"] == pc {
		t.Error("edited column should be restarted")
	}
	if pc.State().Phase != PhaseStopped {
		t.Error("old poller of edited column should be stopped")
	}

	states = g.States()
	if len(states) != 2 || states[0].ColumnID != "c" || states[1].ColumnID != "a" {
		t.Errorf("States() after reorder = %v", states)
	}
}

func TestGroup_UnknownKindSurfacesError(t *testing.T) {
	g := NewGroup(DefaultConfig(), source.NewRegistry(), nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	defer g.Stop(ctx)

	g.Sync(ctx, []domain.ColumnConfig{testColumn("x")})
	waitFor(t, "first cycle", func() bool {
		s, _ := g.State("x")
		return s.Cycles > 0
	})
	s, _ := g.State("x")
	if !source.IsInvalidParams(s.LastError) {
		t.Errorf("LastError = %v, want InvalidParams", s.LastError)
	}
}

func TestGroup_Stop(t *testing.T) {
	adapter := &fakeAdapter{fn: func(context.Context, int) (source.Result, error) {
		return source.Result{Interval: time.Hour}, nil
	}}
	g := NewGroup(DefaultConfig(), source.NewRegistry(adapter), nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	g.Sync(ctx, []domain.ColumnConfig{testColumn("a"), testColumn("b")})
	if err := g.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if len(g.States()) != 0 {
		t.Error("States() should be empty after Stop")
	}
}
