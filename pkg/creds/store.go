package creds

import (
	"sync"
	"sync/atomic"
)

// Rotation is delivered to watchers whenever the store's snapshot is
// replaced.
type Rotation struct {
	Epoch       uint64
	Credentials *Credentials
}

type snapshot struct {
	epoch uint64
	creds *Credentials
}

// Store holds the authoritative credentials snapshot behind an atomically
// swapped read handle. Readers always see a complete snapshot: Replace
// installs a new one without blocking in-flight readers, which keep whatever
// epoch they already loaded.
type Store struct {
	current atomic.Pointer[snapshot]

	mu       sync.Mutex
	watchers []chan Rotation
}

// NewStore returns a store seeded with the initial snapshot at epoch 1.
func NewStore(initial *Credentials) *Store {
	s := &Store{}
	s.current.Store(&snapshot{epoch: 1, creds: initial})
	return s
}

// Current returns the latest snapshot.
func (s *Store) Current() *Credentials {
	return s.current.Load().creds
}

// Epoch returns the rotation epoch of the current snapshot. It increases by
// one on every Replace.
func (s *Store) Epoch() uint64 {
	return s.current.Load().epoch
}

// Snapshot returns the current snapshot together with its epoch, read
// atomically.
func (s *Store) Snapshot() (*Credentials, uint64) {
	snap := s.current.Load()
	return snap.creds, snap.epoch
}

// Replace installs creds as the new authoritative snapshot and notifies
// watchers. It returns the new epoch.
func (s *Store) Replace(creds *Credentials) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	epoch := s.current.Load().epoch + 1
	s.current.Store(&snapshot{epoch: epoch, creds: creds})

	for _, w := range s.watchers {
		// Coalesce: a watcher that has not drained the previous rotation
		// only needs to learn about the newest one.
		select {
		case <-w:
		default:
		}
		w <- Rotation{Epoch: epoch, Credentials: creds}
	}

	return epoch
}

// Watch registers a watcher that receives every rotation. Delivery is
// coalescing: if the watcher falls behind it sees only the most recent
// rotation. The channel is closed by nothing; watchers live for the process.
func (s *Store) Watch() <-chan Rotation {
	ch := make(chan Rotation, 1)
	s.mu.Lock()
	s.watchers = append(s.watchers, ch)
	s.mu.Unlock()
	return ch
}
