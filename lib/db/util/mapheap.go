// Package util
//
// This file provides a specialized priority queue for garbage collection purposes.
//
// The queue combines a binary heap with a hash map, so it supports both priority
// based operations and direct access by key:
//   - O(log n) for Push, Pop, AddItem and RemoveByKey
//   - O(1) for Contains, GetByKey and Peek
//
// The vchain collector keys the queue by the string key of a chain and uses the
// generation at which the chain becomes collectable as priority, so Peek always
// returns the chain that becomes collectable first.
//
// Note: This implementation is not thread-safe, use it from a single goroutine or
// apply external synchronization.
//
// Example usage:
//
//	q := NewMapHeap[string]()
//	q.AddItem("a", 7)
//	q.AddItem("b", 3)
//	it, _ := q.Peek() // it.Key == "b"
//	q.RemoveByKey("b")
package util

import (
	"container/heap"
	"fmt"
)

// Item is an entry of a MapHeap
type Item[K comparable] struct {
	Key      K     // Unique identifier for the item
	Priority int64 // Priority used for ordering in the heap (lowest first)
	index    int   // Index in the heap, maintained by the heap package
}

func (i *Item[K]) String() string {
	return fmt.Sprintf("{Key: %v, Priority: %d}", i.Key, i.Priority)
}

// MapHeap implements a min priority queue with key-based access
type MapHeap[K comparable] struct {
	items    []*Item[K]
	itemsMap map[K]*Item[K]
}

// NewMapHeap creates a new empty queue
func NewMapHeap[K comparable]() *MapHeap[K] {
	return &MapHeap[K]{
		items:    make([]*Item[K], 0),
		itemsMap: make(map[K]*Item[K]),
	}
}

// Len returns the number of items in the queue (part of heap.Interface)
func (q *MapHeap[K]) Len() int { return len(q.items) }

// Less compares items by priority (part of heap.Interface)
func (q *MapHeap[K]) Less(i, j int) bool {
	return q.items[i].Priority < q.items[j].Priority
}

// Swap exchanges items at positions i and j (part of heap.Interface)
func (q *MapHeap[K]) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
	q.items[i].index = i
	q.items[j].index = j
}

// Push adds an item to the heap (part of heap.Interface, use AddItem instead)
func (q *MapHeap[K]) Push(x any) {
	it := x.(*Item[K])
	it.index = len(q.items)
	q.items = append(q.items, it)
	q.itemsMap[it.Key] = it
}

// Pop removes and returns the last item (part of heap.Interface, use heap.Pop)
func (q *MapHeap[K]) Pop() any {
	old := q.items
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	q.items = old[:n-1]
	delete(q.itemsMap, it.Key)
	return it
}

// AddItem adds a new item to the queue or updates the priority of an existing one
func (q *MapHeap[K]) AddItem(key K, priority int64) {
	if it, exists := q.itemsMap[key]; exists {
		it.Priority = priority
		heap.Fix(q, it.index)
		return
	}
	heap.Push(q, &Item[K]{Key: key, Priority: priority})
}

// AddItemIfLower adds a new item or lowers the priority of an existing one.
// An existing item with a lower or equal priority is left untouched.
func (q *MapHeap[K]) AddItemIfLower(key K, priority int64) {
	if it, exists := q.itemsMap[key]; exists && it.Priority <= priority {
		return
	}
	q.AddItem(key, priority)
}

// RemoveByKey removes an item by its key and returns its priority
func (q *MapHeap[K]) RemoveByKey(key K) (int64, bool) {
	it, exists := q.itemsMap[key]
	if !exists {
		return 0, false
	}
	heap.Remove(q, it.index)
	return it.Priority, true
}

// Peek returns the item with the lowest priority without removing it
func (q *MapHeap[K]) Peek() (*Item[K], bool) {
	if len(q.items) == 0 {
		return nil, false
	}
	return q.items[0], true
}

// PopItem removes and returns the item with the lowest priority
func (q *MapHeap[K]) PopItem() (*Item[K], bool) {
	if len(q.items) == 0 {
		return nil, false
	}
	return heap.Pop(q).(*Item[K]), true
}

// Contains checks if a key exists in the queue
func (q *MapHeap[K]) Contains(key K) bool {
	_, exists := q.itemsMap[key]
	return exists
}

// GetByKey retrieves an item by its key without removing it
func (q *MapHeap[K]) GetByKey(key K) (*Item[K], bool) {
	it, exists := q.itemsMap[key]
	return it, exists
}

// Clear removes all items
func (q *MapHeap[K]) Clear() {
	clear(q.items)
	q.items = q.items[:0]
	clear(q.itemsMap)
}
