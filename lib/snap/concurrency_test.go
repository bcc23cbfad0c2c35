package snap

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

// TestConcurrentPublishAndRead lets writers race on one head while readers walk it
func TestConcurrentPublishAndRead(t *testing.T) {
	type payload struct {
		gen   int64
		check int64
	}

	const (
		writers   = 4
		perWriter = 2000
		readers   = 8
	)

	var h Head[payload]
	var nextGen atomic.Int64
	var published atomic.Int64
	done := make(chan struct{})

	var wg sync.WaitGroup
	for r := 0; r < readers; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				head := h.Load()
				prev := int64(1<<62)
				for s := range head.Versions() {
					v := s.Value()
					if v == nil || v.gen != s.Gen() || v.check != -s.Gen() {
						t.Errorf("torn slot at generation %d: %+v", s.Gen(), v)
						return
					}
					if s.Gen() >= prev {
						t.Errorf("generations not decreasing: %d after %d", s.Gen(), prev)
						return
					}
					prev = s.Gen()
				}
			}
		}()
	}

	var wwg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wwg.Add(1)
		go func() {
			defer wwg.Done()
			for i := 0; i < perWriter; i++ {
				g := nextGen.Add(1)
				_, err := h.Publish(&payload{gen: g, check: -g}, g)
				var stale *StaleGenerationError
				switch {
				case err == nil:
					published.Add(1)
				case errors.As(err, &stale):
					// a writer with a newer generation won the race
				default:
					t.Errorf("Publish(%d): %v", g, err)
				}
			}
		}()
	}
	wwg.Wait()
	close(done)
	wg.Wait()

	if got := int64(h.Load().Depth()); got != published.Load() {
		t.Errorf("depth %d does not match %d successful publishes", got, published.Load())
	}
}

// TestCapturedHeadIsStable checks that a captured head keeps its view while publishes continue
func TestCapturedHeadIsStable(t *testing.T) {
	var h Head[int]
	for g := int64(1); g <= 10; g++ {
		_, _ = h.Publish(ptr(int(g)), g)
	}
	captured := h.Load()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for g := int64(11); g <= 1000; g++ {
			_, _ = h.Publish(ptr(int(g)), g)
		}
	}()

	for i := 0; i < 100; i++ {
		if captured.Depth() != 10 || captured.Gen() != 10 {
			t.Fatalf("captured head changed: gen %d depth %d", captured.Gen(), captured.Depth())
		}
	}
	wg.Wait()

	if h.Load().Gen() != 1000 {
		t.Errorf("final head at %d, want 1000", h.Load().Gen())
	}
}
