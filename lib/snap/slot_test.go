package snap

import (
	"errors"
	"slices"
	"testing"
)

func ptr[V any](v V) *V { return &v }

// TestChainOrdering publishes three generations and reads every point in time
func TestChainOrdering(t *testing.T) {
	var h Head[string]
	for i, v := range []string{"a", "b", "c"} {
		if _, err := h.Publish(ptr(v), int64(i+1)); err != nil {
			t.Fatalf("Publish(%q): %v", v, err)
		}
	}

	tests := []struct {
		gen    int64
		want   string
		wantOk bool
	}{
		{0, "", false},
		{1, "a", true},
		{2, "b", true},
		{3, "c", true},
		{100, "c", true},
	}

	for _, tt := range tests {
		v, ok := h.ReadAt(tt.gen)
		if ok != tt.wantOk {
			t.Errorf("ReadAt(%d) ok = %v, want %v", tt.gen, ok, tt.wantOk)
			continue
		}
		if ok && *v != tt.want {
			t.Errorf("ReadAt(%d) = %q, want %q", tt.gen, *v, tt.want)
		}
	}

	if d := h.Load().Depth(); d != 3 {
		t.Errorf("Depth() = %d, want 3", d)
	}
}

// TestGapsInGenerations checks that a read between two versions resolves to the older one
func TestGapsInGenerations(t *testing.T) {
	var h Head[int]
	_, _ = h.Publish(ptr(10), 10)
	_, _ = h.Publish(ptr(20), 20)

	if v, ok := h.ReadAt(15); !ok || *v != 10 {
		t.Errorf("ReadAt(15) = %v, %v, want 10", v, ok)
	}
	if _, ok := h.ReadAt(9); ok {
		t.Error("ReadAt(9) should see no version")
	}
}

// TestConstructionGuard checks the nil value guard for several value types
func TestConstructionGuard(t *testing.T) {
	assertInvalid := func(t *testing.T, err error) {
		t.Helper()
		var invalid *InvalidValueError
		if !errors.As(err, &invalid) {
			t.Fatalf("expected InvalidValueError, got %v", err)
		}
	}

	t.Run("string", func(t *testing.T) {
		s, err := New[string](nil, 1, nil)
		assertInvalid(t, err)
		if s != nil {
			t.Error("no slot should be returned")
		}
	})
	t.Run("struct", func(t *testing.T) {
		_, err := New[struct{ A, B int }](nil, 1, nil)
		assertInvalid(t, err)
	})
	t.Run("slice", func(t *testing.T) {
		_, err := New[[]byte](nil, 1, nil)
		assertInvalid(t, err)
	})
	t.Run("head publish", func(t *testing.T) {
		var h Head[int]
		_, err := h.Publish(nil, 1)
		assertInvalid(t, err)
		if h.Load() != nil {
			t.Error("failed publish must not change the head")
		}
	})
	t.Run("refresh", func(t *testing.T) {
		s, _ := New(ptr(1), 1, nil)
		assertInvalid(t, s.refresh(nil))
		if *s.Value() != 1 {
			t.Error("failed refresh must keep the value")
		}
	})
}

// TestGenerationOrder checks that links always point to strictly older slots
func TestGenerationOrder(t *testing.T) {
	older, _ := New(ptr("old"), 5, nil)

	for _, gen := range []int64{5, 4, -1} {
		_, err := New(ptr("new"), gen, older)
		var order *GenerationOrderError
		if !errors.As(err, &order) {
			t.Errorf("New at %d: expected GenerationOrderError, got %v", gen, err)
			continue
		}
		if order.Gen != gen || order.NextGen != 5 {
			t.Errorf("unexpected error details: %+v", order)
		}
	}

	if s, err := New(ptr("new"), 6, older); err != nil || s.Next() != older {
		t.Errorf("New at 6 = %v, %v", s, err)
	}
}

// TestStalePublish checks that the head rejects generations that are not newer
func TestStalePublish(t *testing.T) {
	var h Head[string]
	first, _ := h.Publish(ptr("a"), 3)

	_, err := h.Publish(ptr("b"), 3)
	var stale *StaleGenerationError
	if !errors.As(err, &stale) {
		t.Fatalf("expected StaleGenerationError, got %v", err)
	}
	if stale.Gen != 3 || stale.HeadGen != 3 {
		t.Errorf("unexpected error details: %+v", stale)
	}
	if h.Load() != first {
		t.Error("stale publish must not change the head")
	}
}

// TestRefresh checks the in place exception
func TestRefresh(t *testing.T) {
	var h Head[string]
	if err := h.Refresh(ptr("x")); !errors.Is(err, ErrEmptyChain) {
		t.Fatalf("expected ErrEmptyChain, got %v", err)
	}

	_, _ = h.Publish(ptr("a"), 1)
	captured := h.Load()

	if err := h.Refresh(ptr("a2")); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if h.Load() != captured {
		t.Error("refresh must not replace the slot")
	}
	if captured.Gen() != 1 {
		t.Errorf("refresh changed the generation to %d", captured.Gen())
	}
	// visible through the captured reference too
	if *captured.Value() != "a2" {
		t.Errorf("captured slot sees %q, want a2", *captured.Value())
	}
}

// TestRefreshOnlyTouchesHead checks that older versions keep their values
func TestRefreshOnlyTouchesHead(t *testing.T) {
	var h Head[string]
	for g, v := range []string{"v1", "v2", "v3"} {
		if _, err := h.Publish(ptr(v), int64(g+1)); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	if err := h.Refresh(ptr("v3b")); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	var got []string
	for s := range h.Load().Versions() {
		got = append(got, *s.Value())
	}
	if !slices.Equal(got, []string{"v3b", "v2", "v1"}) {
		t.Errorf("versions after refresh = %v", got)
	}
	for gen, want := range map[int64]string{1: "v1", 2: "v2", 3: "v3b"} {
		if v, ok := h.ReadAt(gen); !ok || *v != want {
			t.Errorf("ReadAt(%d) = %v, %v, want %q", gen, v, ok, want)
		}
	}
}

// TestVersionsIterator checks the iteration order and early stop
func TestVersionsIterator(t *testing.T) {
	var h Head[int]
	for g := int64(1); g <= 5; g++ {
		_, _ = h.Publish(ptr(int(g)*10), g)
	}

	var gens []int64
	for s := range h.Load().Versions() {
		gens = append(gens, s.Gen())
	}
	if !slices.Equal(gens, []int64{5, 4, 3, 2, 1}) {
		t.Errorf("Versions() = %v", gens)
	}

	n := 0
	for range h.Load().Versions() {
		n++
		if n == 2 {
			break
		}
	}
	if n != 2 {
		t.Errorf("iteration did not stop, n = %d", n)
	}

	var empty *Slot[int]
	if empty.Depth() != 0 {
		t.Error("nil slot should have depth 0")
	}
	for range empty.Versions() {
		t.Error("nil slot should yield nothing")
	}
}

// TestReplace checks the collector hook
func TestReplace(t *testing.T) {
	var h Head[string]
	_, _ = h.Publish(ptr("a"), 1)
	old, _ := h.Publish(ptr("b"), 2)

	compacted, _ := New(old.Value(), old.Gen(), nil)
	if !h.Replace(old, compacted) {
		t.Fatal("Replace should succeed on the current head")
	}
	if h.Replace(old, nil) {
		t.Error("Replace must fail once the head moved on")
	}
	if h.Load().Depth() != 1 {
		t.Errorf("compacted depth = %d, want 1", h.Load().Depth())
	}

	// readers that held the old head still reach the old tail
	if v, ok := old.At(1); !ok || *v.Value() != "a" {
		t.Error("old chain must stay intact")
	}
}
