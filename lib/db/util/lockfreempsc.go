// Package util
//
// This file provides a lock-free Multi-Producer Single-Consumer (MPSC) queue.
//
// Features and Guarantees:
//
//   - Lock-Free producers: Push only uses atomic operations, even under high contention
//   - Unbounded Size: the queue grows as needed, limited only by available memory
//   - Single Consumer: values are delivered in order to one goroutine via the Recv() channel,
//     which makes the queue usable in select statements next to timers
//   - No Strict FIFO Guarantee across producers: concurrent pushes are ordered by the
//     producer that completes first; pushes of a single producer keep their order
//   - Close is graceful: values pushed before Close are still delivered, then Recv is closed
package util

import (
	"runtime"
	"sync/atomic"
)

// mpscNode is a single element of the queue
type mpscNode[T any] struct {
	value T
	next  atomic.Pointer[mpscNode[T]]
}

// LockFreeMPSC is a lock-free multi-producer single-consumer queue.
// Producers append to a linked list with compare-and-swap, a forwarding goroutine
// moves values from the list head to the output channel.
type LockFreeMPSC[T any] struct {
	head   atomic.Pointer[mpscNode[T]] // sentinel, only touched by the forwarder
	tail   atomic.Pointer[mpscNode[T]]
	out    chan T
	wake   chan struct{} // buffered (1), a pending wake-up is never lost
	closed atomic.Bool
}

// NewLockFreeMPSC creates a new queue and starts its forwarding goroutine.
// The goroutine ends after Close once all pending values were received.
func NewLockFreeMPSC[T any]() *LockFreeMPSC[T] {
	sentinel := &mpscNode[T]{}

	q := &LockFreeMPSC[T]{
		out:  make(chan T),
		wake: make(chan struct{}, 1),
	}
	q.head.Store(sentinel)
	q.tail.Store(sentinel)

	go q.forward()

	return q
}

// Push adds a value to the queue.
// Returns false if the queue is closed.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (q *LockFreeMPSC[T]) Push(value T) bool {
	if q.closed.Load() {
		return false
	}

	n := &mpscNode[T]{value: value}
	var backoff uint8

	for {
		tail := q.tail.Load()
		next := tail.next.Load()

		if next == nil {
			if tail.next.CompareAndSwap(nil, n) {
				// another producer may advance the tail for us, both outcomes are fine
				q.tail.CompareAndSwap(tail, n)
				q.notify()
				return true
			}
		} else {
			// help a producer that appended but did not yet advance the tail
			q.tail.CompareAndSwap(tail, next)
		}

		// exponential backoff: spin with yields first, then yield once per retry
		if backoff < 10 {
			backoff++
			for i := 0; i < 1<<backoff; i++ {
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}
}

// notify wakes the forwarder without blocking
func (q *LockFreeMPSC[T]) notify() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// forward moves values from the list to the output channel
func (q *LockFreeMPSC[T]) forward() {
	defer close(q.out)

	for {
		q.drain()

		if q.closed.Load() {
			// values appended by producers that raced with Close
			q.drain()
			return
		}

		<-q.wake
	}
}

// drain sends every value currently in the list
func (q *LockFreeMPSC[T]) drain() {
	var zero T
	for {
		head := q.head.Load()
		next := head.next.Load()
		if next == nil {
			return
		}

		value := next.value
		next.value = zero // next becomes the sentinel, drop the reference for the go gc
		q.head.Store(next)

		q.out <- value
	}
}

// Recv returns the receive-only channel delivering the queued values.
// The channel is closed after Close once all values were delivered.
func (q *LockFreeMPSC[T]) Recv() <-chan T {
	return q.out
}

// Close prevents further pushes. Values already in the queue are still delivered.
// Close is idempotent.
func (q *LockFreeMPSC[T]) Close() {
	if q.closed.CompareAndSwap(false, true) {
		q.notify()
	}
}

// IsClosed returns true if the queue is closed.
func (q *LockFreeMPSC[T]) IsClosed() bool {
	return q.closed.Load()
}

// Len returns the number of values not yet handed to the output channel.
// This is O(n) and should only be used for debugging and tests.
func (q *LockFreeMPSC[T]) Len() int {
	count := 0
	for cur := q.head.Load().next.Load(); cur != nil; cur = cur.next.Load() {
		count++
	}
	return count
}
