package snap

import (
	"iter"
	"sync/atomic"
)

// Slot is one version of a value in a chain.
//
// The generation and the link to the next (older) slot are fixed at construction. The
// value is kept in an atomic cell so the head of a chain can be refreshed in place, see
// Head.Refresh.
//
// Thread-safety: A slot must only be used by its constructor until it is published
// through an atomic reference (Head or an equivalent). After that all methods are safe
// for concurrent use.
type Slot[V any] struct {
	gen   int64
	next  *Slot[V]
	value atomic.Pointer[V]
}

// New creates a slot for value at generation gen, linked to next (nil for the oldest
// version). It fails with an InvalidValueError if value is nil and with a
// GenerationOrderError if next is not strictly older than gen.
func New[V any](value *V, gen int64, next *Slot[V]) (*Slot[V], error) {
	if value == nil {
		return nil, &InvalidValueError{Gen: gen}
	}
	if next != nil && next.gen >= gen {
		return nil, &GenerationOrderError{Gen: gen, NextGen: next.gen}
	}
	s := &Slot[V]{gen: gen, next: next}
	s.value.Store(value)
	return s, nil
}

// Gen returns the generation the slot was published at.
func (s *Slot[V]) Gen() int64 {
	return s.gen
}

// Next returns the next older slot or nil.
func (s *Slot[V]) Next() *Slot[V] {
	return s.next
}

// Value returns the current value of the slot. It is never nil.
func (s *Slot[V]) Value() *V {
	return s.value.Load()
}

// refresh replaces the value of the slot without changing its generation. Only the
// current head of a chain may be refreshed, so it is reached through Head.Refresh.
//
// This is the only mutation of a published slot. Readers of this slot see either the
// old or the new value, so a refresh is visible to every snapshot that resolves to this
// slot, including ones that started before it. Callers that need isolation must publish
// a new generation instead.
func (s *Slot[V]) refresh(value *V) error {
	if value == nil {
		return &InvalidValueError{Gen: s.gen}
	}
	s.value.Store(value)
	return nil
}

// At returns the first slot starting at s whose generation is at most gen.
// ok is false if no version of the chain is visible at gen.
func (s *Slot[V]) At(gen int64) (slot *Slot[V], ok bool) {
	for cur := s; cur != nil; cur = cur.next {
		if cur.gen <= gen {
			return cur, true
		}
	}
	return nil, false
}

// Versions iterates the chain from s to the oldest slot.
func (s *Slot[V]) Versions() iter.Seq[*Slot[V]] {
	return func(yield func(*Slot[V]) bool) {
		for cur := s; cur != nil; cur = cur.next {
			if !yield(cur) {
				return
			}
		}
	}
}

// Depth returns the number of slots from s to the end of the chain.
// A nil slot has depth 0.
func (s *Slot[V]) Depth() int {
	n := 0
	for cur := s; cur != nil; cur = cur.next {
		n++
	}
	return n
}
