package dataset

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Store owns the active dataset. Loads build a complete Dataset off to the
// side and install it with Swap, so readers see either the old or the new
// dataset, never a mix.
type Store struct {
	mu      sync.RWMutex
	current *Dataset

	gen atomic.Uint64
}

func NewStore() *Store {
	return &Store{}
}

// Swap installs ds as the active dataset under a fresh generation and
// returns that generation. The previous dataset is dropped.
func (s *Store) Swap(ds *Dataset) uint64 {
	if ds.LoadedAt.IsZero() {
		ds.LoadedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	gen := s.gen.Add(1)
	ds.Generation = gen
	s.current = ds
	return gen
}

// Current returns the active dataset, or ErrNoDataset.
func (s *Store) Current() (*Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil, ErrNoDataset
	}
	return s.current, nil
}

// Identity returns the active identity; zero when nothing is loaded.
func (s *Store) Identity() Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return Identity{}
	}
	return s.current.Identity
}

// Generation returns the active generation; 0 when nothing is loaded.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return 0
	}
	return s.current.Generation
}

// Matches reports whether id names the active dataset. Both the subject and
// the metadata file must match exactly; nothing matches an empty store.
func (s *Store) Matches(id Identity) bool {
	if id.IsZero() {
		return false
	}
	return s.Identity() == id
}

// Guard returns the active dataset when id matches it and a *MismatchError
// otherwise. It never mutates the store.
func (s *Store) Guard(id Identity) (*Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil || id.IsZero() || s.current.Identity != id {
		active := Identity{}
		if s.current != nil {
			active = s.current.Identity
		}
		return nil, &MismatchError{Requested: id, Active: active}
	}
	return s.current, nil
}

// CommitStreamlines merges entries into the full streamline cache of the
// dataset installed under gen. The read lock is held across the check and the
// merge so a concurrent Swap cannot slip in between them.
func (s *Store) CommitStreamlines(gen uint64, entries map[int]any) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil || s.current.Generation != gen {
		return fmt.Errorf("commit %d streamline entries for generation %d: %w", len(entries), gen, ErrStaleGeneration)
	}
	s.current.Full.Merge(entries)
	return nil
}
