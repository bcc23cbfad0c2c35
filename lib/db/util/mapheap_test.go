package util

import (
	"container/heap"
	"fmt"
	"math/rand"
	"sort"
	"testing"
)

// TestNewMapHeap tests the creation of a new MapHeap
func TestNewMapHeap(t *testing.T) {
	mh := NewMapHeap[string]()

	if mh.Len() != 0 {
		t.Errorf("New heap should be empty, but has length %d", mh.Len())
	}
	if _, exists := mh.Peek(); exists {
		t.Error("Peek on empty heap should return exists=false")
	}
	if _, exists := mh.PopItem(); exists {
		t.Error("PopItem on empty heap should return exists=false")
	}
}

// TestAddItem tests adding and updating items
func TestAddItem(t *testing.T) {
	mh := NewMapHeap[string]()

	mh.AddItem("a", 100)
	mh.AddItem("b", 200)
	mh.AddItem("c", -50)

	if mh.Len() != 3 {
		t.Fatalf("Heap should have 3 items, but has %d", mh.Len())
	}
	for _, k := range []string{"a", "b", "c"} {
		if !mh.Contains(k) {
			t.Errorf("Heap should contain key %s", k)
		}
	}

	it, _ := mh.Peek()
	if it.Key != "c" || it.Priority != -50 {
		t.Errorf("Expected min item to be (c,-50), got %s", it)
	}

	// raise the min item
	mh.AddItem("c", 300)
	it, _ = mh.Peek()
	if it.Key != "a" {
		t.Errorf("Min item should now be a, got %s", it)
	}
	if got, _ := mh.GetByKey("c"); got.Priority != 300 {
		t.Errorf("Item c should have priority 300, got %d", got.Priority)
	}
}

// TestAddItemIfLower tests that only lower priorities replace existing ones
func TestAddItemIfLower(t *testing.T) {
	mh := NewMapHeap[string]()

	mh.AddItemIfLower("k", 10)
	mh.AddItemIfLower("k", 20)
	if it, _ := mh.GetByKey("k"); it.Priority != 10 {
		t.Errorf("higher priority must not replace lower one, got %d", it.Priority)
	}

	mh.AddItemIfLower("k", 5)
	if it, _ := mh.GetByKey("k"); it.Priority != 5 {
		t.Errorf("lower priority should replace, got %d", it.Priority)
	}
	if mh.Len() != 1 {
		t.Errorf("expected a single item, got %d", mh.Len())
	}
}

// TestRemoveByKey tests removing items by key
func TestRemoveByKey(t *testing.T) {
	mh := NewMapHeap[string]()
	mh.AddItem("a", 1)
	mh.AddItem("b", 2)
	mh.AddItem("c", 3)

	prio, exists := mh.RemoveByKey("b")
	if !exists || prio != 2 {
		t.Fatalf("RemoveByKey(b) = %d, %v", prio, exists)
	}
	if mh.Contains("b") || mh.Len() != 2 {
		t.Error("b should be gone")
	}
	if _, exists := mh.RemoveByKey("zz"); exists {
		t.Error("RemoveByKey should return false for non-existent key")
	}
}

// TestPopOrder tests if items are popped in priority order
func TestPopOrder(t *testing.T) {
	mh := NewMapHeap[string]()

	prios := rand.Perm(200)
	for i, p := range prios {
		mh.AddItem(fmt.Sprintf("key-%d", i), int64(p))
	}
	sort.Ints(prios)

	for i, want := range prios {
		it, ok := mh.PopItem()
		if !ok {
			t.Fatalf("Heap empty after %d items", i)
		}
		if it.Priority != int64(want) {
			t.Fatalf("Pop %d: expected priority %d, got %s", i, want, it)
		}
		if mh.Contains(it.Key) {
			t.Fatalf("popped key %s still indexed", it.Key)
		}
	}
}

// TestHeapInterface tests that the container/heap functions keep the index in sync
func TestHeapInterface(t *testing.T) {
	mh := NewMapHeap[int]()
	heap.Init(mh)

	for i := 0; i < 50; i++ {
		mh.AddItem(i, int64(50-i))
	}
	for i := 0; i < 50; i += 3 {
		mh.RemoveByKey(i)
	}
	for k, it := range mh.itemsMap {
		if mh.items[it.index] != it {
			t.Fatalf("index of key %d is out of sync", k)
		}
	}

	prev := int64(-1)
	for mh.Len() > 0 {
		it := heap.Pop(mh).(*Item[int])
		if it.Priority < prev {
			t.Fatalf("heap order violated: %d after %d", it.Priority, prev)
		}
		prev = it.Priority
	}
}

// TestClear tests emptying the heap
func TestClear(t *testing.T) {
	mh := NewMapHeap[string]()
	mh.AddItem("a", 1)
	mh.AddItem("b", 2)
	mh.Clear()

	if mh.Len() != 0 || mh.Contains("a") {
		t.Error("heap should be empty after Clear")
	}
	mh.AddItem("c", 3)
	if it, _ := mh.Peek(); it.Key != "c" {
		t.Error("heap should be usable after Clear")
	}
}
