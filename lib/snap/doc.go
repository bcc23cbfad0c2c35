// Package snap provides the version chain primitive of snapKV.
//
// A chain is a singly linked list of Slot values for one key, newest first. Every slot
// carries the generation it was published at and a link to the next older version.
// Writers never modify a published chain, they prepend a new slot and swap the head
// reference atomically. Readers capture the head once and walk the links until they
// reach the first version visible at their generation, without taking any lock.
//
// The package contains:
//   - Slot: an immutable node (generation and link) with one atomic value cell
//   - Head: a reference implementation of the head reference owned by a map
//   - Errors: InvalidValueError, GenerationOrderError, StaleGenerationError, ErrEmptyChain
//
// In-place refresh:
//
// Head.Refresh replaces the value of the head slot without minting a new generation. It is the
// only mutation a published slot supports and it gives up snapshot isolation for that
// substitution: readers holding the slot observe either the old or the new value.
// Whether a map allows it is a policy decision of the map.
//
// Reclamation:
//
// The package never removes slots. A collector that wants to shorten a chain builds a
// fresh copy of the prefix that is still visible and installs it with Head.Replace, the
// old slots stay intact for readers that already reached them.
//
// Example:
//
//	var h snap.Head[string]
//	a, b := "a", "b"
//	_, _ = h.Publish(&a, 1)
//	_, _ = h.Publish(&b, 2)
//	v, ok := h.ReadAt(1) // *v == "a", ok == true
package snap
