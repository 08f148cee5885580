package ticker

import (
	"sync"

	"marketdash/internal/domain"
)

// Observer is notified of every newly discovered symbol.
type Observer interface {
	Observe(symbol string) bool
}

// Scanner runs Extract over submission titles, scanning each submission of
// a column at most once no matter how many refreshes deliver it.
type Scanner struct {
	obs Observer

	mu   sync.Mutex
	seen map[string]map[string]struct{} // column -> submission ids
}

// NewScanner creates a scanner feeding obs.
func NewScanner(obs Observer) *Scanner {
	return &Scanner{
		obs:  obs,
		seen: make(map[string]map[string]struct{}),
	}
}

// Scan extracts symbols from submissions not yet scanned for columnID and
// passes them to the observer. It returns the symbols found in this call.
func (s *Scanner) Scan(columnID string, subs []domain.Submission) []string {
	s.mu.Lock()
	seen, ok := s.seen[columnID]
	if !ok {
		seen = make(map[string]struct{})
		s.seen[columnID] = seen
	}
	var titles []string
	for _, sub := range subs {
		if _, done := seen[sub.ID]; done {
			continue
		}
		seen[sub.ID] = struct{}{}
		titles = append(titles, sub.Title)
	}
	s.mu.Unlock()

	var found []string
	dedup := make(map[string]bool)
	for _, title := range titles {
		for _, sym := range Extract(title) {
			if dedup[sym] {
				continue
			}
			dedup[sym] = true
			found = append(found, sym)
			if s.obs != nil {
				s.obs.Observe(sym)
			}
		}
	}
	return found
}

// Forget drops the scan history of a removed column.
func (s *Scanner) Forget(columnID string) {
	s.mu.Lock()
	delete(s.seen, columnID)
	s.mu.Unlock()
}
