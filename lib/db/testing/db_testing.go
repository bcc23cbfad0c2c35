package testing

import (
	"bytes"
	"errors"
	"fmt"
	"github.com/ValentinKolb/snapKV/lib/codec"
	"github.com/ValentinKolb/snapKV/lib/db"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// SnapDBFactory is a function that creates a new instance of a SnapDB implementation
type SnapDBFactory func() db.SnapDB

// RunSnapDBTests runs a comprehensive test suite for a SnapDB implementation.
func RunSnapDBTests(t *testing.T, name string, factory SnapDBFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Publish&Get", func(t *testing.T) {
			testPublishGet(t, factory())
		})

		t.Run("StaleGeneration", func(t *testing.T) {
			testStaleGeneration(t, factory())
		})

		t.Run("GetAt", func(t *testing.T) {
			testGetAt(t, factory())
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory())
		})

		t.Run("Refresh", func(t *testing.T) {
			testRefresh(t, factory())
		})

		t.Run("Has&Depth", func(t *testing.T) {
			testHasDepth(t, factory())
		})

		t.Run("Gen", func(t *testing.T) {
			testGen(t, factory())
		})

		t.Run("PinKeepsVersions", func(t *testing.T) {
			testPinKeepsVersions(t, factory())
		})

		t.Run("PinCurrent", func(t *testing.T) {
			testPinCurrent(t, factory())
		})

		t.Run("CollectTombstones", func(t *testing.T) {
			testCollectTombstones(t, factory())
		})

		t.Run("SaveLoad", func(t *testing.T) {
			testSaveLoad(t, factory)
		})

		t.Run("SaveAt", func(t *testing.T) {
			testSaveAt(t, factory)
		})

		t.Run("LoadCorrupt", func(t *testing.T) {
			testLoadCorrupt(t, factory())
		})

		t.Run("EdgeCases", func(t *testing.T) {
			testEdgeCases(t, factory())
		})

		t.Run("ConcurrentPublish", func(t *testing.T) {
			testConcurrentPublish(t, factory())
		})

		t.Run("SnapshotIsolation", func(t *testing.T) {
			testSnapshotIsolation(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// Checks if the database supports the specified feature
// Skip the test if it is not supported
func requireFeature(t testing.TB, database db.SnapDB, feature db.Feature) {
	if !database.SupportsFeature(feature) {
		t.Skip()
	}
}

// mustPublish publishes and fails the test on error
func mustPublish(t testing.TB, database db.SnapDB, key string, value codec.Value, gen int64) {
	t.Helper()
	if err := database.Publish(key, value, gen); err != nil {
		t.Fatalf("Publish(%q, %v, %d) failed: %v", key, value, gen, err)
	}
}

// expectValue checks the result of a Get or GetAt call
func expectValue(t testing.TB, what string, got codec.Value, loaded bool, want codec.Value) {
	t.Helper()
	if want == nil {
		if loaded {
			t.Errorf("%s: expected no value, got %v", what, got)
		}
		return
	}
	if !loaded {
		t.Errorf("%s: expected %v, got nothing", what, want)
		return
	}
	if !codec.Equal(got, want) {
		t.Errorf("%s: expected %v, got %v", what, want, got)
	}
}

// eventually polls cond until it holds or the timeout passes
func eventually(t testing.TB, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met within %s: %s", timeout, what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testPublishGet(t *testing.T, database db.SnapDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePublish|db.FeatureGet)

	testKey := "test-key"

	mustPublish(t, database, testKey, codec.String("test-value1"), 1)
	got, loaded := database.Get(testKey)
	expectValue(t, "Get after first publish", got, loaded, codec.String("test-value1"))

	mustPublish(t, database, testKey, codec.Int64(42), 2)
	got, loaded = database.Get(testKey)
	expectValue(t, "Get after second publish", got, loaded, codec.Int64(42))

	_, loaded = database.Get("nonexistent-key")
	if loaded {
		t.Errorf("Expected nonexistent key to return loaded=false")
	}

	// byte values are copied on the way in and out
	raw := []byte("bytes-value")
	mustPublish(t, database, testKey, codec.Bytes(raw), 3)
	raw[0] = 'X'

	got, _ = database.Get(testKey)
	retrieved := got.(codec.Bytes)
	if !bytes.Equal(retrieved, []byte("bytes-value")) {
		t.Errorf("Publish should copy byte values, got %s", retrieved)
	}
	retrieved[0] = 'Y'

	original, _ := database.Get(testKey)
	if bytes.Equal(retrieved, original.(codec.Bytes)) {
		t.Errorf("Get should return a copy, not a reference to the stored value")
	}
}

func testStaleGeneration(t *testing.T, database db.SnapDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePublish|db.FeatureGet)

	testKey := "stale-key"
	mustPublish(t, database, testKey, codec.String("v5"), 5)

	for _, gen := range []int64{5, 3, -1} {
		err := database.Publish(testKey, codec.String("stale"), gen)
		if !errors.Is(err, db.ErrStaleGeneration) {
			t.Errorf("Publish at generation %d: expected ErrStaleGeneration, got %v", gen, err)
		}
	}

	got, loaded := database.Get(testKey)
	expectValue(t, "Get after stale publishes", got, loaded, codec.String("v5"))

	// other keys are independent
	mustPublish(t, database, "other-key", codec.String("v3"), 3)
	got, loaded = database.Get("other-key")
	expectValue(t, "Get of independent key", got, loaded, codec.String("v3"))
}

func testGetAt(t *testing.T, database db.SnapDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePublish|db.FeatureGetAt|db.FeaturePin)

	// keep every version for the duration of the test
	defer database.Pin(0)()

	testKey := "history-key"
	mustPublish(t, database, testKey, codec.String("v10"), 10)
	mustPublish(t, database, testKey, codec.String("v20"), 20)
	mustPublish(t, database, testKey, codec.String("v30"), 30)

	tests := []struct {
		gen  int64
		want codec.Value
	}{
		{gen: 0, want: nil},
		{gen: 9, want: nil},
		{gen: 10, want: codec.String("v10")},
		{gen: 19, want: codec.String("v10")},
		{gen: 20, want: codec.String("v20")},
		{gen: 25, want: codec.String("v20")},
		{gen: 30, want: codec.String("v30")},
		{gen: 1000, want: codec.String("v30")},
	}

	for _, tt := range tests {
		got, loaded := database.GetAt(testKey, tt.gen)
		expectValue(t, fmt.Sprintf("GetAt(%d)", tt.gen), got, loaded, tt.want)
	}

	_, loaded := database.GetAt("nonexistent-key", 1000)
	if loaded {
		t.Errorf("Expected nonexistent key to return loaded=false")
	}
}

func testDelete(t *testing.T, database db.SnapDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePublish|db.FeatureDelete|db.FeatureGetAt|db.FeaturePin)

	defer database.Pin(0)()

	testKey := "delete-test-key"
	mustPublish(t, database, testKey, codec.String("delete-test-value"), 1)

	if err := database.Delete(testKey, 2); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	_, loaded := database.Get(testKey)
	if loaded {
		t.Errorf("Expected key %s to not exist after Delete", testKey)
	}
	if database.Has(testKey) {
		t.Errorf("Expected Has to be false after Delete")
	}

	// older readers still see the value
	got, loaded := database.GetAt(testKey, 1)
	expectValue(t, "GetAt before delete", got, loaded, codec.String("delete-test-value"))

	_, loaded = database.GetAt(testKey, 2)
	if loaded {
		t.Errorf("Expected no value at the generation of the tombstone")
	}

	// deleting a deleted or missing key fails
	if err := database.Delete(testKey, 3); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for deleting a deleted key, got %v", err)
	}
	if err := database.Delete("nonexistent-key", 4); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for deleting a missing key, got %v", err)
	}

	// stale deletes fail like stale publishes
	mustPublish(t, database, testKey, codec.String("revived"), 10)
	if err := database.Delete(testKey, 5); !errors.Is(err, db.ErrStaleGeneration) {
		t.Errorf("Expected ErrStaleGeneration for stale delete, got %v", err)
	}

	got, loaded = database.Get(testKey)
	expectValue(t, "Get after revive", got, loaded, codec.String("revived"))
}

func testRefresh(t *testing.T, database db.SnapDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePublish|db.FeatureRefresh|db.FeatureGetAt|db.FeaturePin)

	defer database.Pin(0)()

	testKey := "refresh-key"
	mustPublish(t, database, testKey, codec.String("old"), 1)
	mustPublish(t, database, testKey, codec.String("current"), 2)

	if err := database.Refresh(testKey, codec.String("refreshed")); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	// every reader resolving to the newest version sees the substitution
	got, loaded := database.Get(testKey)
	expectValue(t, "Get after refresh", got, loaded, codec.String("refreshed"))
	got, loaded = database.GetAt(testKey, 100)
	expectValue(t, "GetAt(100) after refresh", got, loaded, codec.String("refreshed"))

	// older versions and the depth are untouched
	got, loaded = database.GetAt(testKey, 1)
	expectValue(t, "GetAt(1) after refresh", got, loaded, codec.String("old"))
	if depth := database.Depth(testKey); depth != 2 {
		t.Errorf("Refresh must not add a version, depth is %d", depth)
	}
	if gen := database.Gen(); gen != 2 {
		t.Errorf("Refresh must not advance the generation, gen is %d", gen)
	}

	if err := database.Refresh("nonexistent-key", codec.String("x")); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for refreshing a missing key, got %v", err)
	}

	if database.SupportsFeature(db.FeatureDelete) {
		if err := database.Delete(testKey, 3); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if err := database.Refresh(testKey, codec.String("x")); !errors.Is(err, db.ErrNotFound) {
			t.Errorf("Expected ErrNotFound for refreshing a deleted key, got %v", err)
		}
	}
}

func testHasDepth(t *testing.T, database db.SnapDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePublish|db.FeatureHas|db.FeaturePin)

	defer database.Pin(0)()

	testKey := "has-key"
	if database.Has(testKey) {
		t.Errorf("Expected Has to be false before publish")
	}
	if depth := database.Depth(testKey); depth != 0 {
		t.Errorf("Expected depth 0 before publish, got %d", depth)
	}

	for gen := int64(1); gen <= 5; gen++ {
		mustPublish(t, database, testKey, codec.Int64(gen), gen)
		if !database.Has(testKey) {
			t.Errorf("Expected Has to be true after publish at %d", gen)
		}
		if depth := database.Depth(testKey); depth != int(gen) {
			t.Errorf("Expected depth %d, got %d", gen, depth)
		}
	}

	// a null value is a value
	mustPublish(t, database, "null-key", codec.Null{}, 6)
	if !database.Has("null-key") {
		t.Errorf("Expected Has to be true for a null value")
	}
}

func testGen(t *testing.T, database db.SnapDB) {
	defer database.Close()

	if gen := database.Gen(); gen != 0 {
		t.Errorf("Expected initial generation 0, got %d", gen)
	}

	database.SetGen(10)
	database.SetGen(5)
	if gen := database.Gen(); gen != 10 {
		t.Errorf("SetGen must not go backwards, got %d", gen)
	}

	requireFeature(t, database, db.FeaturePublish)

	mustPublish(t, database, "gen-key", codec.Int32(1), 20)
	if gen := database.Gen(); gen != 20 {
		t.Errorf("Publish must advance the generation, got %d", gen)
	}
}

func testPinKeepsVersions(t *testing.T, database db.SnapDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePublish|db.FeatureGetAt|db.FeaturePin|db.FeatureGarbageCollect)

	testKey := "pinned-key"
	release := database.Pin(10)

	mustPublish(t, database, testKey, codec.String("v10"), 10)
	mustPublish(t, database, testKey, codec.String("v20"), 20)
	mustPublish(t, database, testKey, codec.String("v30"), 30)

	// give the collector a few cycles, the pinned version must survive them
	time.Sleep(300 * time.Millisecond)

	got, loaded := database.GetAt(testKey, 10)
	expectValue(t, "GetAt(10) while pinned", got, loaded, codec.String("v10"))

	release()
	release() // idempotent

	eventually(t, 5*time.Second, "old versions collected after release", func() bool {
		return database.Depth(testKey) == 1
	})

	got, loaded = database.Get(testKey)
	expectValue(t, "Get after collection", got, loaded, codec.String("v30"))
}

func testPinCurrent(t *testing.T, database db.SnapDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePublish|db.FeatureGetAt|db.FeaturePin)

	testKey := "pin-current-key"
	for gen := int64(1); gen <= 3; gen++ {
		mustPublish(t, database, testKey, codec.Int64(gen), gen)
	}

	gen, release := database.PinCurrent()
	defer release()
	if gen != 3 {
		t.Fatalf("PinCurrent returned generation %d, want 3", gen)
	}

	mustPublish(t, database, testKey, codec.Int64(4), 4)
	mustPublish(t, database, testKey, codec.Int64(5), 5)

	// give a collector a few cycles
	time.Sleep(300 * time.Millisecond)

	got, loaded := database.GetAt(testKey, gen)
	expectValue(t, "GetAt at the pinned generation", got, loaded, codec.Int64(3))
}

func testCollectTombstones(t *testing.T, database db.SnapDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePublish|db.FeatureDelete|db.FeatureGarbageCollect)

	numKeys := 100
	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("tomb-key-%d", i)
		mustPublish(t, database, key, codec.Int32(int32(i)), int64(2*i+1))
		if err := database.Delete(key, int64(2*i+2)); err != nil {
			t.Fatalf("Delete(%q) failed: %v", key, err)
		}
	}

	eventually(t, 5*time.Second, "deleted keys removed", func() bool {
		for i := 0; i < numKeys; i++ {
			if database.Depth(fmt.Sprintf("tomb-key-%d", i)) != 0 {
				return false
			}
		}
		return true
	})

	// a removed key can be published again
	mustPublish(t, database, "tomb-key-0", codec.String("back"), 1000)
	got, loaded := database.Get("tomb-key-0")
	expectValue(t, "Get after re-publish", got, loaded, codec.String("back"))
}

func testSaveLoad(t *testing.T, factory SnapDBFactory) {
	database := factory()
	defer database.Close()

	requireFeature(t, database, db.FeaturePublish|db.FeatureSave|db.FeatureLoad|db.FeaturePin)

	defer database.Pin(0)()

	values := map[string][]codec.Value{
		"string": {codec.String("a"), codec.String("b")},
		"int":    {codec.Int32(-1), codec.Int64(1 << 40)},
		"float":  {codec.Float32(1.5), codec.Float64(-2.25)},
		"time":   {codec.NewTime(time.Date(2024, 5, 1, 12, 0, 0, 123, time.UTC))},
		"bytes":  {codec.Bytes{1, 2, 3}, codec.Bytes{}},
		"small":  {codec.Byte(7), codec.Uint16(65535), codec.Uint32(1 << 31)},
		"null":   {codec.Null{}},
	}

	gen := int64(0)
	for key, versions := range values {
		for _, v := range versions {
			gen++
			mustPublish(t, database, key, v, gen)
		}
	}
	gen++
	mustPublish(t, database, "deleted", codec.String("gone"), gen)
	if database.SupportsFeature(db.FeatureDelete) {
		gen++
		if err := database.Delete("deleted", gen); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
	}

	var buf bytes.Buffer
	if err := database.Save(&buf); err != nil {
		t.Fatalf("Failed to save database: %v", err)
	}

	newDB := factory()
	defer newDB.Close()
	defer newDB.Pin(0)()

	if err := newDB.Load(bytes.NewReader(buf.Bytes())); err != nil {
		t.Fatalf("Failed to load database: %v", err)
	}

	if newDB.Gen() != database.Gen() {
		t.Errorf("Generation mismatch after load: expected %d, got %d", database.Gen(), newDB.Gen())
	}

	for key := range values {
		if newDB.Depth(key) != database.Depth(key) {
			t.Errorf("Depth mismatch for %q: expected %d, got %d", key, database.Depth(key), newDB.Depth(key))
		}
		for g := int64(0); g <= gen; g++ {
			want, wantLoaded := database.GetAt(key, g)
			got, loaded := newDB.GetAt(key, g)
			if loaded != wantLoaded || (loaded && !codec.Equal(got, want)) {
				t.Errorf("Mismatch for %q at %d: expected %v (%v), got %v (%v)", key, g, want, wantLoaded, got, loaded)
			}
		}
	}

	if database.SupportsFeature(db.FeatureDelete) {
		if newDB.Has("deleted") {
			t.Errorf("Deleted key should stay deleted after load")
		}
		got, loaded := newDB.GetAt("deleted", gen-1)
		expectValue(t, "GetAt before delete after load", got, loaded, codec.String("gone"))
	}

	// the loaded generation guards further writes
	if err := newDB.Publish("string", codec.String("stale"), 1); !errors.Is(err, db.ErrStaleGeneration) {
		t.Errorf("Expected ErrStaleGeneration after load, got %v", err)
	}
	mustPublish(t, newDB, "string", codec.String("after-load"), gen+1)
}

func testSaveAt(t *testing.T, factory SnapDBFactory) {
	database := factory()
	defer database.Close()

	requireFeature(t, database, db.FeaturePublish|db.FeatureSave|db.FeatureLoad|db.FeaturePin)

	defer database.Pin(0)()

	mustPublish(t, database, "a", codec.String("a1"), 1)
	mustPublish(t, database, "b", codec.String("b2"), 2)
	mustPublish(t, database, "a", codec.String("a3"), 3)
	mustPublish(t, database, "c", codec.String("c4"), 4)

	var buf bytes.Buffer
	if err := database.SaveAt(&buf, 2); err != nil {
		t.Fatalf("SaveAt failed: %v", err)
	}

	newDB := factory()
	defer newDB.Close()
	defer newDB.Pin(0)()

	if err := newDB.Load(&buf); err != nil {
		t.Fatalf("Failed to load database: %v", err)
	}

	if gen := newDB.Gen(); gen != 2 {
		t.Errorf("Expected generation 2 after load, got %d", gen)
	}
	got, loaded := newDB.Get("a")
	expectValue(t, "Get(a)", got, loaded, codec.String("a1"))
	got, loaded = newDB.Get("b")
	expectValue(t, "Get(b)", got, loaded, codec.String("b2"))
	_, loaded = newDB.Get("c")
	if loaded {
		t.Errorf("Key published after the saved generation must not be loaded")
	}

	// the newer versions can be applied again
	mustPublish(t, newDB, "a", codec.String("a3"), 3)
	mustPublish(t, newDB, "c", codec.String("c4"), 4)
}

func testLoadCorrupt(t *testing.T, database db.SnapDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePublish|db.FeatureSave|db.FeatureLoad)

	mustPublish(t, database, "keep", codec.String("kept"), 1)

	var buf bytes.Buffer
	if err := database.Save(&buf); err != nil {
		t.Fatalf("Failed to save database: %v", err)
	}
	full := buf.Bytes()

	inputs := map[string][]byte{
		"empty":     {},
		"garbage":   []byte("definitely not a snapshot"),
		"truncated": full[:len(full)-1],
	}
	for name, input := range inputs {
		if err := database.Load(bytes.NewReader(input)); err == nil {
			t.Errorf("Load(%s) should fail", name)
		}
	}

	// a failed load keeps the previous content and the database stays usable
	got, loaded := database.Get("keep")
	expectValue(t, "Get after failed load", got, loaded, codec.String("kept"))
	mustPublish(t, database, "keep", codec.String("still writable"), 2)
}

func testEdgeCases(t *testing.T, database db.SnapDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePublish|db.FeatureGet)

	// empty key
	mustPublish(t, database, "", codec.String("empty-key-value"), 1)
	got, loaded := database.Get("")
	expectValue(t, "Get empty key", got, loaded, codec.String("empty-key-value"))

	// unicode key
	mustPublish(t, database, "schlüssel-🔑", codec.String("wert"), 2)
	got, loaded = database.Get("schlüssel-🔑")
	expectValue(t, "Get unicode key", got, loaded, codec.String("wert"))

	// explicit null value
	mustPublish(t, database, "null", codec.Null{}, 3)
	got, loaded = database.Get("null")
	expectValue(t, "Get null value", got, loaded, codec.Null{})

	// large value
	large := make(codec.Bytes, 1024*1024)
	for i := range large {
		large[i] = byte(i % 256)
	}
	mustPublish(t, database, "large", large, 4)
	got, loaded = database.Get("large")
	expectValue(t, "Get large value", got, loaded, large)

	// a missing value is not a value
	if err := database.Publish("nil", nil, 5); err == nil {
		t.Errorf("Publish with a nil value should fail")
	}
	if _, loaded := database.Get("nil"); loaded {
		t.Errorf("Failed publish must not create a version")
	}
}

func testConcurrentPublish(t *testing.T, database db.SnapDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePublish|db.FeatureGet)

	const (
		writers   = 8
		perWriter = 500
		readers   = 4
	)

	var (
		gen     atomic.Int64
		maxGen  atomic.Int64
		wg      sync.WaitGroup
		done    = make(chan struct{})
		readErr atomic.Value
	)

	// readers only ever observe complete values
	for r := 0; r < readers; r++ {
		go func() {
			for {
				select {
				case <-done:
					return
				default:
				}
				if v, ok := database.Get("contended"); ok {
					if _, isInt := v.(codec.Int64); !isInt {
						readErr.Store(fmt.Sprintf("unexpected value %v", v))
					}
				}
			}
		}()
	}

	wg.Add(writers)
	for w := 0; w < writers; w++ {
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				g := gen.Add(1)
				err := database.Publish("contended", codec.Int64(g), g)
				switch {
				case err == nil:
					for {
						cur := maxGen.Load()
						if g <= cur || maxGen.CompareAndSwap(cur, g) {
							break
						}
					}
				case errors.Is(err, db.ErrStaleGeneration):
				default:
					t.Errorf("unexpected publish error: %v", err)
				}
			}
		}()
	}
	wg.Wait()
	close(done)

	if msg := readErr.Load(); msg != nil {
		t.Error(msg)
	}

	// the highest successful generation wins
	got, loaded := database.Get("contended")
	expectValue(t, "Get after concurrent publish", got, loaded, codec.Int64(maxGen.Load()))
}

func testSnapshotIsolation(t *testing.T, database db.SnapDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePublish|db.FeatureGetAt|db.FeaturePin)

	const numKeys = 50

	// every round publishes all keys with the round number at one generation
	publishRound := func(round int64) {
		for i := 0; i < numKeys; i++ {
			if err := database.Publish(fmt.Sprintf("iso-key-%d", i), codec.Int64(round), round); err != nil {
				t.Errorf("Publish in round %d failed: %v", round, err)
			}
		}
	}
	publishRound(1)

	snapshotGen := database.Gen()
	release := database.Pin(snapshotGen)
	defer release()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for round := int64(2); round <= 20; round++ {
			publishRound(round)
		}
	}()

	// a pinned reader sees round 1 no matter how far the writer got
	for pass := 0; pass < 20; pass++ {
		for i := 0; i < numKeys; i++ {
			got, loaded := database.GetAt(fmt.Sprintf("iso-key-%d", i), snapshotGen)
			expectValue(t, "pinned GetAt", got, loaded, codec.Int64(1))
		}
	}
	wg.Wait()

	got, loaded := database.Get("iso-key-0")
	expectValue(t, "Get after all rounds", got, loaded, codec.Int64(20))
}
