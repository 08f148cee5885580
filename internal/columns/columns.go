// Package columns holds the ordered list of dashboard column configurations,
// persists it as a single JSON snapshot after every mutation and notifies
// subscribers of changes.
package columns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"github.com/google/uuid"

	"marketdash/internal/domain"
	"marketdash/internal/store"
)

// Key is the KV key holding the JSON array of column configurations.
const Key = "columns"

var (
	// ErrPersistenceCorrupt is reported (and recovered from) when the saved
	// configuration cannot be decoded.
	ErrPersistenceCorrupt = errors.New("persisted column configuration is corrupt")

	// ErrNotFound is returned when a column id does not exist.
	ErrNotFound = errors.New("column not found")
)

// ChangeType describes a column mutation.
type ChangeType string

const (
	ChangeAdded   ChangeType = "added"
	ChangeRemoved ChangeType = "removed"
	ChangeEdited  ChangeType = "edited"
	ChangeMoved   ChangeType = "moved"
)

// Change is broadcast to subscribers after a mutation has been persisted.
type Change struct {
	Type   ChangeType
	Column domain.ColumnConfig
}

// Store is the single source of truth for the column list.
type Store struct {
	mu       sync.Mutex
	cols     []domain.ColumnConfig
	defaults bool // cols came from defaults and were never saved
	kv       store.KV
	log      *slog.Logger

	subsMu    sync.Mutex
	nextSubID int
	subs      map[int]chan Change
}

// Load reads the persisted configuration once. A missing key falls back to
// defaults silently; an undecodable or invalid snapshot falls back to
// defaults with a warning. Only a KV read failure is returned as an error.
func Load(ctx context.Context, kv store.KV, defaults []domain.ColumnConfig, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	s := &Store{
		kv:   kv,
		log:  log.With("component", "columns"),
		subs: make(map[int]chan Change),
	}

	data, ok, err := kv.Get(ctx, Key)
	if err != nil {
		return nil, fmt.Errorf("loading columns: %w", err)
	}

	switch {
	case !ok:
		s.cols = cloneAll(defaults)
		s.defaults = true
		s.log.Info("no saved columns, using defaults", "columns", len(s.cols))
	default:
		cols, err := Decode(data)
		if err != nil {
			s.log.Warn("saved columns unreadable, using defaults", "error", err)
			s.cols = cloneAll(defaults)
			s.defaults = true
		} else {
			s.cols = cols
			s.log.Info("loaded columns", "columns", len(cols))
		}
	}
	return s, nil
}

// Decode parses a persisted snapshot. Errors wrap ErrPersistenceCorrupt.
func Decode(data []byte) ([]domain.ColumnConfig, error) {
	var cols []domain.ColumnConfig
	if err := json.Unmarshal(data, &cols); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistenceCorrupt, err)
	}
	if cols == nil {
		return nil, fmt.Errorf("%w: not a JSON array", ErrPersistenceCorrupt)
	}

	seen := make(map[string]bool, len(cols))
	for i := range cols {
		if err := cols[i].Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPersistenceCorrupt, err)
		}
		if seen[cols[i].ID] {
			return nil, fmt.Errorf("%w: duplicate column id %q", ErrPersistenceCorrupt, cols[i].ID)
		}
		seen[cols[i].ID] = true
		if cols[i].Params == nil {
			cols[i].Params = map[string]string{}
		}
	}
	return cols, nil
}

// Encode serialises a column list in the persisted format.
func Encode(cols []domain.ColumnConfig) ([]byte, error) {
	if cols == nil {
		cols = []domain.ColumnConfig{}
	}
	return json.Marshal(cols)
}

// List returns a snapshot of the columns in display order.
func (s *Store) List() []domain.ColumnConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneAll(s.cols)
}

// Get returns the column with the given id.
func (s *Store) Get(id string) (domain.ColumnConfig, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(id); i >= 0 {
		return s.cols[i].Clone(), true
	}
	return domain.ColumnConfig{}, false
}

// Add appends a new column with a fresh id and persists the list.
func (s *Store) Add(ctx context.Context, kind domain.SourceKind, params map[string]string) (domain.ColumnConfig, error) {
	col := domain.ColumnConfig{
		ID:         uuid.NewString(),
		SourceKind: kind,
		Params:     maps.Clone(params),
	}
	if col.Params == nil {
		col.Params = map[string]string{}
	}
	if err := col.Validate(); err != nil {
		return domain.ColumnConfig{}, err
	}

	s.mu.Lock()
	next := append(cloneAll(s.cols), col)
	if err := s.commit(ctx, next); err != nil {
		s.mu.Unlock()
		return domain.ColumnConfig{}, err
	}
	s.mu.Unlock()

	s.broadcast(Change{Type: ChangeAdded, Column: col.Clone()})
	return col.Clone(), nil
}

// Remove deletes a column and persists the list.
func (s *Store) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	removed := s.cols[i].Clone()
	next := cloneAll(s.cols)
	next = append(next[:i], next[i+1:]...)
	if err := s.commit(ctx, next); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	s.broadcast(Change{Type: ChangeRemoved, Column: removed})
	return nil
}

// Edit merges params into the column's existing parameters. An empty value
// deletes the key.
func (s *Store) Edit(ctx context.Context, id string, params map[string]string) (domain.ColumnConfig, error) {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return domain.ColumnConfig{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	next := cloneAll(s.cols)
	for k, v := range params {
		if v == "" {
			delete(next[i].Params, k)
			continue
		}
		next[i].Params[k] = v
	}
	edited := next[i].Clone()
	if err := s.commit(ctx, next); err != nil {
		s.mu.Unlock()
		return domain.ColumnConfig{}, err
	}
	s.mu.Unlock()

	s.broadcast(Change{Type: ChangeEdited, Column: edited.Clone()})
	return edited, nil
}

// Move repositions a column; index is clamped to the list bounds.
func (s *Store) Move(ctx context.Context, id string, index int) error {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	next := cloneAll(s.cols)
	col := next[i]
	next = append(next[:i], next[i+1:]...)
	index = max(0, min(index, len(next)))
	next = append(next[:index], append([]domain.ColumnConfig{col}, next[index:]...)...)
	if err := s.commit(ctx, next); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	s.broadcast(Change{Type: ChangeMoved, Column: col.Clone()})
	return nil
}

// UsingDefaults reports whether the list came from the defaults and has not
// been persisted yet.
func (s *Store) UsingDefaults() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.defaults
}

// Save persists the current list without mutating it, e.g. to materialise
// the defaults on first run.
func (s *Store) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commit(ctx, cloneAll(s.cols))
}

// Reload re-reads the persisted list, picking up changes written by another
// process, and broadcasts one change per column that differs. A missing or
// corrupt snapshot leaves the list unchanged.
func (s *Store) Reload(ctx context.Context) error {
	data, ok, err := s.kv.Get(ctx, Key)
	if err != nil {
		return fmt.Errorf("reloading columns: %w", err)
	}
	if !ok {
		return nil
	}
	next, err := Decode(data)
	if err != nil {
		s.log.Warn("saved columns unreadable, keeping current list", "error", err)
		return nil
	}

	s.mu.Lock()
	changes := diff(s.cols, next)
	if len(changes) > 0 {
		s.cols = next
		s.defaults = false
	}
	s.mu.Unlock()

	if len(changes) > 0 {
		s.log.Info("columns reloaded", "changes", len(changes))
	}
	for _, c := range changes {
		s.broadcast(c)
	}
	return nil
}

// diff describes how prev became next.
func diff(prev, next []domain.ColumnConfig) []Change {
	prevByID := make(map[string]int, len(prev))
	for i, c := range prev {
		prevByID[c.ID] = i
	}
	nextIDs := make(map[string]bool, len(next))

	var changes []Change
	moved := false
	for i, c := range next {
		nextIDs[c.ID] = true
		j, ok := prevByID[c.ID]
		switch {
		case !ok:
			changes = append(changes, Change{Type: ChangeAdded, Column: c.Clone()})
		case c.SourceKind != prev[j].SourceKind || !maps.Equal(c.Params, prev[j].Params):
			changes = append(changes, Change{Type: ChangeEdited, Column: c.Clone()})
		case i != j:
			moved = true
		}
	}
	for _, c := range prev {
		if !nextIDs[c.ID] {
			changes = append(changes, Change{Type: ChangeRemoved, Column: c.Clone()})
		}
	}
	if moved && len(changes) == 0 {
		changes = append(changes, Change{Type: ChangeMoved})
	}
	return changes
}

// commit writes next as a complete snapshot and, on success, makes it the
// current list. Must be called with mu held.
func (s *Store) commit(ctx context.Context, next []domain.ColumnConfig) error {
	data, err := Encode(next)
	if err != nil {
		return fmt.Errorf("encoding columns: %w", err)
	}
	if err := s.kv.Put(ctx, Key, data); err != nil {
		return fmt.Errorf("saving columns: %w", err)
	}
	s.cols = next
	s.defaults = false
	return nil
}

// indexOf must be called with mu held.
func (s *Store) indexOf(id string) int {
	for i := range s.cols {
		if s.cols[i].ID == id {
			return i
		}
	}
	return -1
}

// Subscribe returns a channel that receives changes. bufSize controls the
// channel buffer; slow consumers will have changes dropped.
func (s *Store) Subscribe(bufSize int) (int, <-chan Change) {
	ch := make(chan Change, bufSize)
	s.subsMu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subs[id] = ch
	s.subsMu.Unlock()
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

// broadcast sends a change to all subscribers non-blocking (drop on full).
func (s *Store) broadcast(c Change) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- c:
		default:
			s.log.Warn("column subscriber full, dropping change", "type", c.Type, "column", c.Column.ID)
		}
	}
}

func cloneAll(in []domain.ColumnConfig) []domain.ColumnConfig {
	out := make([]domain.ColumnConfig, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}
