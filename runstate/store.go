package runstate

import (
	"sync"

	"github.com/pithecene-io/dossier/types"
)

// Store is the single authoritative, mutable representation of one run's
// state. Apply is the only mutator and is meant to be called from exactly
// one goroutine (the watch supervisor); Current and Changes may be used
// freely from any goroutine.
type Store struct {
	mu      sync.RWMutex
	run     *types.Run
	changes chan struct{}
}

// NewStore creates an empty store. The first Apply seeds it.
func NewStore() *Store {
	return &Store{
		changes: make(chan struct{}, 1),
	}
}

// Apply merges an incoming payload into the held state and signals
// Changes. Returns merge diagnostics for the caller to log or count.
func (s *Store) Apply(incoming *types.Run) Info {
	s.mu.Lock()
	merged, info := Merge(s.run, incoming)
	s.run = merged
	s.mu.Unlock()

	s.notify()
	return info
}

// Current returns a copy of the held run, or nil before the first Apply.
// The copy is safe to retain and read without coordination.
func (s *Store) Current() *types.Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.run.Clone()
}

// Changes returns a coalesced change-notification channel. A receive
// means "the run changed at least once since the last receive"; readers
// then call Current for the latest state. The channel is never closed.
func (s *Store) Changes() <-chan struct{} {
	return s.changes
}

func (s *Store) notify() {
	select {
	case s.changes <- struct{}{}:
	default:
		// A notification is already pending; the reader will see the
		// latest state when it gets to it.
	}
}
