package testing

import (
	"bytes"
	"fmt"
	"github.com/ValentinKolb/snapKV/lib/codec"
	"github.com/ValentinKolb/snapKV/lib/db"
	"math/rand"
	"sync/atomic"
	"testing"
)

// RunSnapDBBenchmarks runs all benchmarks for a multi-version database implementation
func RunSnapDBBenchmarks(b *testing.B, name string, factory SnapDBFactory) {

	b.Run("Publish", func(b *testing.B) {
		benchmarkPublish(b, factory())
	})

	b.Run("PublishExisting", func(b *testing.B) {
		benchmarkPublishExisting(b, factory())
	})

	b.Run("PublishLargeValue", func(b *testing.B) {
		benchmarkPublishLargeValue(b, factory())
	})

	b.Run("Get", func(b *testing.B) {
		benchmarkGet(b, factory())
	})

	b.Run("GetAt", func(b *testing.B) {
		benchmarkGetAt(b, factory())
	})

	b.Run("Delete", func(b *testing.B) {
		benchmarkDelete(b, factory())
	})

	b.Run("Has", func(b *testing.B) {
		benchmarkHas(b, factory())
	})

	b.Run("Has(not)", func(b *testing.B) {
		benchmarkHasNot(b, factory())
	})

	b.Run("SaveLoad", func(b *testing.B) {
		benchmarkSaveLoad(b, factory)
	})

	b.Run("MixedUsage", func(b *testing.B) {
		benchmarkMixedUsage(b, factory())
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// populate publishes numKeys keys with a string value each, starting at generation 1.
// It returns the keys and the last used generation.
func populate(database db.SnapDB, numKeys int) ([]string, int64) {
	keys := make([]string, numKeys)
	for i := 0; i < numKeys; i++ {
		keys[i] = fmt.Sprintf("test-key-%d", i)
		_ = database.Publish(keys[i], codec.String(fmt.Sprintf("test-value-%d", i)), int64(i+1))
	}
	return keys, int64(numKeys)
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

// Benchmark for Publish operation on new keys
func benchmarkPublish(b *testing.B, database db.SnapDB) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeaturePublish)

	var gen atomic.Int64

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			g := gen.Add(1)
			_ = database.Publish(fmt.Sprintf("test-key-%d", g), codec.Int64(g), g)
		}
	})
}

// Benchmark for Publish operation on existing keys, every publish adds a version
// the collector has to remove
func benchmarkPublishExisting(b *testing.B, database db.SnapDB) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeaturePublish)

	// Prepare data
	keys, last := populate(database, 10000)
	var gen atomic.Int64
	gen.Store(last)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			g := gen.Add(1)
			// stale publishes are possible under contention and count as an operation
			_ = database.Publish(keys[int(g)%len(keys)], codec.Int64(g), g)
		}
	})
}

// Benchmark for Publish operation with large values
func benchmarkPublishLargeValue(b *testing.B, database db.SnapDB) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeaturePublish)

	largeValue := make(codec.Bytes, 1*1024*1024) // 1MB
	var gen atomic.Int64

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			g := gen.Add(1)
			_ = database.Publish(fmt.Sprintf("test-key-%d", g), largeValue, g)
		}
	})
}

// Parallel benchmarking for Get operation
func benchmarkGet(b *testing.B, database db.SnapDB) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeaturePublish|db.FeatureGet)

	keys, _ := populate(database, 10000)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			database.Get(keys[counter%len(keys)])
			counter++
		}
	})
}

// Parallel benchmarking for GetAt operation on chains with several versions
func benchmarkGetAt(b *testing.B, database db.SnapDB) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeaturePublish|db.FeatureGetAt|db.FeaturePin)

	// keep all versions
	release := database.Pin(0)
	b.Cleanup(release)

	const (
		numKeys  = 1000
		versions = 8
	)
	gen := int64(0)
	for v := 0; v < versions; v++ {
		for i := 0; i < numKeys; i++ {
			gen++
			_ = database.Publish(fmt.Sprintf("test-key-%d", i), codec.Int64(gen), gen)
		}
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			database.GetAt(fmt.Sprintf("test-key-%d", r.Intn(numKeys)), r.Int63n(gen)+1)
		}
	})
}

// Parallel benchmarking for Delete operation
func benchmarkDelete(b *testing.B, database db.SnapDB) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeaturePublish|db.FeatureDelete)

	numKeys := 100000
	if b.N < numKeys {
		numKeys = b.N
	}

	// Prepare data
	keys, last := populate(database, numKeys)
	var gen atomic.Int64
	gen.Store(last)

	// Counter for atomic access
	var counter int64

	// Reset timer since we were doing setup
	b.ResetTimer()

	// Run parallel delete operations, keys deleted twice fail with ErrNotFound
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			idx := int(atomic.AddInt64(&counter, 1)-1) % numKeys
			_ = database.Delete(keys[idx], gen.Add(1))
		}
	})
}

// Parallel benchmarking for Has operation (with key miss)
func benchmarkHasNot(b *testing.B, database db.SnapDB) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureHas)
	const key = "test-key"

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			database.Has(key)
		}
	})
}

// Parallel benchmarking for Has operation
func benchmarkHas(b *testing.B, database db.SnapDB) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeaturePublish|db.FeatureHas)

	keys, _ := populate(database, 10000)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			database.Has(keys[counter%len(keys)])
			counter++
		}
	})
}

// Benchmark for Save and Load operations
// For these operations, parallelization is not meaningful as Load replaces
// the entire database
func benchmarkSaveLoad(b *testing.B, factory SnapDBFactory) {

	database := factory()

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeaturePublish|db.FeatureSave|db.FeatureLoad)

	// Create a database with some data
	populate(database, 10000)

	b.Run("Save", func(b *testing.B) {
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			var buf bytes.Buffer
			if err := database.Save(&buf); err != nil {
				b.Fatal(err)
			}
		}
	})

	// Prepare a data buffer for Load benchmark
	var loadBuf bytes.Buffer
	if err := database.Save(&loadBuf); err != nil {
		b.Fatal(err)
	}
	data := loadBuf.Bytes()

	b.Run("Load", func(b *testing.B) {
		loadDB := factory()
		defer loadDB.Close()

		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			if err := loadDB.Load(bytes.NewReader(data)); err != nil {
				b.Fatal(err)
			}
		}
	})
}

// Benchmark for mixed usage patterns
func benchmarkMixedUsage(b *testing.B, database db.SnapDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeaturePublish|db.FeatureGet|db.FeatureGetAt|db.FeatureDelete|db.FeatureHas)

	// Number of pre-populated keys
	numKeys := 100000
	if b.N < numKeys {
		numKeys = b.N
	}

	keys, last := populate(database, numKeys)
	var gen atomic.Int64
	gen.Store(last)

	// Counter for atomic access
	var counter int64

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		// Local counter for each goroutine
		localCounter := 0

		for pb.Next() {
			idx := int(atomic.AddInt64(&counter, 1)-1) % numKeys

			// For every 10th operation, use a completely new key
			var key string
			if localCounter%10 == 0 {
				key = fmt.Sprintf("new-key-%d", localCounter)
			} else {
				key = keys[idx]
			}

			// Select operation (0-4: get, publish, get at, has, delete)
			switch localCounter % 5 {
			case 0:
				database.Get(key)
			case 1:
				g := gen.Add(1)
				_ = database.Publish(key, codec.Int64(g), g)
			case 2:
				database.GetAt(key, database.Gen()-1)
			case 3:
				database.Has(key)
			case 4:
				_ = database.Delete(key, gen.Add(1))
			}

			localCounter++
		}
	})
}
