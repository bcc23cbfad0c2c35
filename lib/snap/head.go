package snap

import "sync/atomic"

// Head is the published reference to the newest slot of one key.
//
// The zero value is an empty chain ready to use. Publishing swaps the reference with
// compare-and-swap, so concurrent writers of the same key never lose a version and a
// writer that lost against a newer generation fails with a StaleGenerationError.
//
// Thread-safety: All methods are safe for concurrent use. A Head must not be copied
// after first use.
type Head[V any] struct {
	ptr atomic.Pointer[Slot[V]]
}

// Load returns the current head slot or nil for an empty chain. The returned slot is a
// consistent point in time view, later publishes do not change what it reaches.
func (h *Head[V]) Load() *Slot[V] {
	return h.ptr.Load()
}

// Publish prepends value at generation gen and makes it the new head.
func (h *Head[V]) Publish(value *V, gen int64) (*Slot[V], error) {
	for {
		cur := h.ptr.Load()
		if cur != nil && gen <= cur.gen {
			return nil, &StaleGenerationError{Gen: gen, HeadGen: cur.gen}
		}
		s, err := New(value, gen, cur)
		if err != nil {
			return nil, err
		}
		if h.ptr.CompareAndSwap(cur, s) {
			return s, nil
		}
	}
}

// ReadAt returns the value visible at generation gen.
func (h *Head[V]) ReadAt(gen int64) (*V, bool) {
	s, ok := h.ptr.Load().At(gen)
	if !ok {
		return nil, false
	}
	return s.Value(), true
}

// Refresh replaces the value of the current head in place without changing its
// generation. Older slots of the chain are never touched.
func (h *Head[V]) Refresh(value *V) error {
	cur := h.ptr.Load()
	if cur == nil {
		return ErrEmptyChain
	}
	return cur.refresh(value)
}

// Replace swaps the head from old to new if it still is old. Collectors use it to
// install a compacted copy of a chain or to clear it (new == nil).
func (h *Head[V]) Replace(old, new *Slot[V]) bool {
	return h.ptr.CompareAndSwap(old, new)
}
