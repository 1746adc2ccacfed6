package catalog

import (
	"sync"
)

// Store holds the current manifest and lets it be swapped at runtime.
// Readers always see a complete manifest, never a partially loaded one.
type Store struct {
	mu       sync.RWMutex
	manifest *Manifest
	subs     []func(*Manifest)
}

// NewStore creates a store serving m.
func NewStore(m *Manifest) *Store {
	return &Store{manifest: m}
}

// Current returns the manifest in use.
func (s *Store) Current() *Manifest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.manifest
}

// Replace swaps in m and notifies subscribers.
func (s *Store) Replace(m *Manifest) {
	s.mu.Lock()
	s.manifest = m
	subs := make([]func(*Manifest), len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(m)
	}
}

// Subscribe registers fn to be called after every Replace.
func (s *Store) Subscribe(fn func(*Manifest)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}

// CanRunInBrowser reports whether moduleID is sandbox-eligible in the
// current manifest.
func (s *Store) CanRunInBrowser(moduleID string) bool {
	return s.Current().CanRunInBrowser(moduleID)
}

// Exercise resolves an exercise against the current manifest.
func (s *Store) Exercise(moduleID, exerciseID string) (Ref, error) {
	return s.Current().Exercise(moduleID, exerciseID)
}

// DayOf resolves a module's day against the current manifest.
func (s *Store) DayOf(moduleID string) (int, error) {
	return s.Current().DayOf(moduleID)
}
