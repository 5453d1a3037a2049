package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/hupe1980/messplanner/core"
)

type scope struct{ app, user string }

// InMemoryStore is a process local MemoryStore. Records are grouped per
// application user and deduplicated by (session, event).
//
// Concurrency: protected by RWMutex.
// Search: linear scan scored with Score. Suitable for tests and single
// process servers.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[scope][]core.MemoryRecord
	seen    map[string]bool // session key + event id
}

// NewInMemoryStore creates a new in-memory memory store
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records: make(map[scope][]core.MemoryRecord),
		seen:    make(map[string]bool),
	}
}

// AddSession implements core.MemoryStore.
func (m *InMemoryStore) AddSession(_ context.Context, sess *core.Session) error {
	records := RecordsFromSession(sess)

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range records {
		id := sess.Key.String() + "#" + r.EventID
		if m.seen[id] {
			continue
		}
		m.seen[id] = true

		sc := scope{r.AppName, r.UserID}
		m.records[sc] = append(m.records[sc], r)
	}

	return nil
}

// Search implements core.MemoryStore.
func (m *InMemoryStore) Search(_ context.Context, appName, userID, query string, limit int) ([]core.SearchResult, error) {
	m.mu.RLock()
	records := append([]core.MemoryRecord(nil), m.records[scope{appName, userID}]...)
	m.mu.RUnlock()

	return Rank(records, query, limit), nil
}

// Len reports the number of records stored for an application user.
func (m *InMemoryStore) Len(appName, userID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records[scope{appName, userID}])
}

// Rank scores records against query and returns the best limit hits. Ties
// and empty queries fall back to recency.
func Rank(records []core.MemoryRecord, query string, limit int) []core.SearchResult {
	tokens := Tokenize(query)

	results := make([]core.SearchResult, 0, len(records))
	for _, r := range records {
		score := 1.0
		if len(tokens) > 0 {
			score = Score(tokens, r.Content)
			if score == 0 {
				continue
			}
		}
		results = append(results, core.SearchResult{Record: r, Score: score})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Record.CreatedAt.After(results[j].Record.CreatedAt)
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	return results
}
