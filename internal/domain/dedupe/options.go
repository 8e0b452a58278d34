package dedupe

// Option configures an InMemoryStore.
type Option func(*InMemoryStore)

// WithMaxSize bounds the number of retained event ids.
// If maxSize > 0 the oldest id is evicted first once the bound is hit.
// If maxSize <= 0 the store is unbounded.
func WithMaxSize(maxSize int) Option {
	return func(s *InMemoryStore) {
		s.maxSize = maxSize
	}
}
