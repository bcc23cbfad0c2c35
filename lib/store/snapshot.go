package store

import (
	"github.com/ValentinKolb/snapKV/lib/codec"
	"sync"
	"sync/atomic"
)

// Snapshot is a repeatable read view of a store at one generation.
// Every read returns the version that was newest at the generation, no matter which
// writes happened since. Only Refresh of such a version is visible.
//
// Thread-safety: A Snapshot is safe for concurrent use.
type Snapshot struct {
	gen    int64
	getAt  func(key string, gen int64) (codec.Value, bool, error)
	unpin  func() error
	once   sync.Once
	closed atomic.Bool
}

// NewSnapshot creates a snapshot at gen. Reads go through getAt, unpin is called once on
// Close. Store implementations pin gen before calling NewSnapshot.
func NewSnapshot(gen int64, getAt func(key string, gen int64) (codec.Value, bool, error), unpin func() error) *Snapshot {
	return &Snapshot{gen: gen, getAt: getAt, unpin: unpin}
}

// Gen returns the generation of the snapshot
func (s *Snapshot) Gen() int64 {
	return s.gen
}

// Get returns the value of key at the snapshot generation
func (s *Snapshot) Get(key string) (codec.Value, bool, error) {
	if s.closed.Load() {
		return nil, false, NewError(RetCInvalidOperation, "snapshot is closed")
	}
	return s.getAt(key, s.gen)
}

// Has returns whether key has a live version at the snapshot generation
func (s *Snapshot) Has(key string) (bool, error) {
	_, ok, err := s.Get(key)
	return ok, err
}

// Close releases the pin of the snapshot. Closing twice is a no-op.
func (s *Snapshot) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		if s.unpin != nil {
			err = s.unpin()
		}
	})
	return err
}
