// Package dedupe defines the event store that suppresses repeat deliveries.
package dedupe

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/okian/hookline/internal/domain/model"
)

// Store remembers accepted events by eventId.
//
// Callers that need check-then-insert atomicity (the request handler) must
// serialize Has and Put themselves; each call is individually safe.
type Store interface {
	// Has reports whether id is already stored.
	Has(ctx context.Context, id string) bool
	// Put stores ev under its event key and counts it.
	Put(ctx context.Context, ev model.EventEnvelope) error
	// RecordDuplicate counts a suppressed repeat of id.
	RecordDuplicate(ctx context.Context, id string)
	// Counters returns a snapshot of the store counters.
	Counters() Counters
}

// Counters are monotonic for the lifetime of a store.
type Counters struct {
	StoredEvents  int64 `json:"storedEvents"`
	DedupedEvents int64 `json:"dedupedEvents"`
}

// node is one entry in the insertion-ordered list.
type node struct {
	ev   model.EventEnvelope
	next *node
}

func (n *node) reset() {
	n.ev = model.EventEnvelope{}
	n.next = nil
}

// InMemoryStore keeps events in a map plus an insertion-ordered list.
// When bounded (maxSize > 0) the oldest entry is evicted first; the
// counters are unaffected by eviction.
type InMemoryStore struct {
	mu       sync.RWMutex
	byID     map[string]*node
	oldest   *node
	newest   *node
	maxSize  int
	nodePool sync.Pool

	stored  atomic.Int64
	deduped atomic.Int64
}

var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates a store. Unbounded unless WithMaxSize is given.
func NewInMemoryStore(opts ...Option) *InMemoryStore {
	s := &InMemoryStore{
		byID: make(map[string]*node),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.nodePool = sync.Pool{
		New: func() any { return &node{} },
	}
	return s
}

// Has reports whether id is currently retained.
func (s *InMemoryStore) Has(_ context.Context, id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.byID[strings.TrimSpace(id)]
	return ok
}

// Put stores ev. Re-putting a retained id replaces the event in place.
func (s *InMemoryStore) Put(_ context.Context, ev model.EventEnvelope) error {
	id := ev.EventKey()
	if id == "" {
		return ErrEmptyID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byID[id]; ok {
		existing.ev = ev
		s.stored.Add(1)
		return nil
	}

	if s.maxSize > 0 && len(s.byID) >= s.maxSize {
		s.evictOldest()
	}

	n := s.nodePool.Get().(*node)
	n.ev = ev
	if s.newest == nil {
		s.oldest = n
	} else {
		s.newest.next = n
	}
	s.newest = n
	s.byID[id] = n
	s.stored.Add(1)
	return nil
}

// RecordDuplicate counts a suppressed repeat delivery.
func (s *InMemoryStore) RecordDuplicate(_ context.Context, _ string) {
	s.deduped.Add(1)
}

// Get returns a retained event.
func (s *InMemoryStore) Get(_ context.Context, id string) (model.EventEnvelope, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return model.EventEnvelope{}, false
	}
	return n.ev, true
}

// Len returns the number of retained events.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// Counters returns the stored and deduped totals.
func (s *InMemoryStore) Counters() Counters {
	return Counters{
		StoredEvents:  s.stored.Load(),
		DedupedEvents: s.deduped.Load(),
	}
}

// evictOldest drops the head of the list. Must be called with s.mu held.
func (s *InMemoryStore) evictOldest() {
	n := s.oldest
	if n == nil {
		return
	}
	delete(s.byID, n.ev.EventKey())
	s.oldest = n.next
	if s.oldest == nil {
		s.newest = nil
	}
	n.reset()
	s.nodePool.Put(n)
}
