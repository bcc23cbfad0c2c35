package vchain

import (
	"errors"
	"fmt"
	"github.com/ValentinKolb/snapKV/lib/codec"
	"github.com/ValentinKolb/snapKV/lib/common"
	"github.com/ValentinKolb/snapKV/lib/db"
	"github.com/ValentinKolb/snapKV/lib/db/engines/vchain/internal"
	"github.com/ValentinKolb/snapKV/lib/db/util"
	"github.com/ValentinKolb/snapKV/lib/snap"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"io"
	"runtime"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var log = logger.GetLogger(common.LoggerDB)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	defaultGCInterval = 100 * time.Millisecond // Default interval between GC runs
)

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

// RefreshMode decides whether Refresh may replace the newest value of a key in place
type RefreshMode int

const (
	RefreshInPlace  RefreshMode = iota // Refresh swaps the value atomically, readers see the old or the new value
	RefreshDisabled                    // Refresh fails with db.ErrRefreshDisabled
)

func (m RefreshMode) String() string {
	switch m {
	case RefreshInPlace:
		return "in-place"
	case RefreshDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// ParseRefreshMode parses the names returned by RefreshMode.String
func ParseRefreshMode(s string) (RefreshMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "in-place", "inplace", "":
		return RefreshInPlace, nil
	case "disabled", "off":
		return RefreshDisabled, nil
	default:
		return RefreshInPlace, fmt.Errorf("invalid refresh mode: %s (expected one of: in-place, disabled)", s)
	}
}

// DBOptions configures the vchain database during initialization
type DBOptions struct {
	NumShards         int           // Number of shards (0 = number of CPUs)
	GCInterval        time.Duration // Time between GC runs (0 = default)
	RetainGenerations int64         // Generations kept below the oldest reader
	RefreshMode       RefreshMode   // In-place refresh policy
	Compress          bool          // Compress the output of Save with zstd
}

// DefaultOptions returns the default options
func DefaultOptions() *DBOptions {
	return &DBOptions{
		NumShards:   runtime.NumCPU(),
		GCInterval:  defaultGCInterval,
		RefreshMode: RefreshInPlace,
	}
}

// OptionsFromConfig derives the engine options from a store configuration
func OptionsFromConfig(c *common.Config) (*DBOptions, error) {
	mode, err := ParseRefreshMode(c.RefreshMode)
	if err != nil {
		return nil, err
	}
	return &DBOptions{
		NumShards:         c.Shards,
		GCInterval:        c.GCInterval,
		RetainGenerations: c.RetainGenerations,
		RefreshMode:       mode,
		Compress:          c.Compress,
	}, nil
}

// --------------------------------------------------------------------------
// Public types
// --------------------------------------------------------------------------

// Version describes one stored version of a key
type Version struct {
	Gen     int64
	Value   codec.Value
	Deleted bool
}

// VChainDB is a db.SnapDB with engine specific introspection and maintenance
type VChainDB interface {
	db.SnapDB

	// Keys returns all keys with at least one version (tombstones included), sorted.
	Keys() []string

	// Versions returns the versions kept for key, newest first.
	Versions(key string) []Version

	// Horizon returns the generation below which versions are collectable.
	Horizon() int64

	// Collect runs a synchronous collection over all chains and returns the number of
	// dropped versions and removed keys.
	Collect() (dropped, removed int)

	// WritePrometheus writes the metrics of this database in Prometheus text format.
	WritePrometheus(w io.Writer)
}

// --------------------------------------------------------------------------
// Core vchain database structure
// --------------------------------------------------------------------------

// vchainImpl implements a multi-version database with sharded version chains
type vchainImpl struct {
	opts   DBOptions
	seed   uint64
	shards []*internal.Shard
	gen    atomic.Int64

	// live reader generations -> number of pins
	pins *xsync.MapOf[int64, int64]
	// held exclusively while a collection horizon is computed
	pinMu sync.RWMutex

	metrics *dbMetrics

	// garbage collection
	gcMu      sync.Mutex
	gcRunning bool
	gcWg      sync.WaitGroup
}

// NewVChainDB creates a new database with the specified options (optional)
//
// Thread-safety: This function is not thread-safe and should only be called once
// during initialization.
func NewVChainDB(opts *DBOptions) VChainDB {
	if opts == nil {
		opts = DefaultOptions()
	}
	o := *opts
	if o.NumShards <= 0 {
		o.NumShards = runtime.NumCPU()
	}
	if o.GCInterval <= 0 {
		o.GCInterval = defaultGCInterval
	}
	if o.RetainGenerations < 0 {
		o.RetainGenerations = 0
	}

	v := &vchainImpl{
		opts: o,
		seed: util.GenerateSeed(),
		pins: xsync.NewMapOf[int64, int64](),
	}
	v.shards = v.newShards()
	v.metrics = newDBMetrics(v)

	v.startGC()

	return v
}

// newShards creates empty shards with the seed of the database
func (v *vchainImpl) newShards() []*internal.Shard {
	shards := make([]*internal.Shard, v.opts.NumShards)
	for i := range shards {
		shards[i] = internal.NewShard(v.seed)
	}
	return shards
}

// shardFor returns the shard responsible for key
func (v *vchainImpl) shardFor(key string) *internal.Shard {
	return util.ShardFor(util.HashString(key, v.seed), v.shards)
}

// --------------------------------------------------------------------------
// SnapDB Interface Methods - Write Operations
// --------------------------------------------------------------------------

// Publish adds a new version of key at generation gen.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (v *vchainImpl) Publish(key string, value codec.Value, gen int64) error {
	if err := codec.Validate(value); err != nil {
		return err
	}
	err := v.write(key, gen, &internal.Entry{Value: codec.Clone(value)})
	if err == nil {
		v.metrics.publish.Inc()
	}
	return err
}

// Delete publishes a tombstone version of key at generation gen.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (v *vchainImpl) Delete(key string, gen int64) error {
	err := v.write(key, gen, internal.Tombstone)
	if err == nil {
		v.metrics.delete.Inc()
	}
	return err
}

// write prepends entry to the chain of key. Writers of the same key are serialized by
// the map bucket, the head itself is still published with compare-and-swap so readers
// never block.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (v *vchainImpl) write(key string, gen int64, entry *internal.Entry) error {
	// the generation is advanced once the version is visible, even a rejected write
	// has been seen
	defer v.SetGen(gen)

	shard := v.shardFor(key)

	var (
		err       error
		event     internal.Event
		needEvent bool
	)

	shard.Data.Compute(key, func(chain *internal.Chain, loaded bool) (*internal.Chain, bool) {
		if !loaded {
			chain = &internal.Chain{}
		}

		// deleting requires a live newest version
		if entry.Deleted {
			if head := chain.Load(); head == nil || head.Value().Deleted {
				err = db.ErrNotFound
				return chain, !loaded
			}
		}

		head, pubErr := chain.Publish(entry, gen)
		if pubErr != nil {
			err = pubErr
			return chain, !loaded
		}

		// schedule the chain for the gc once it holds something collectable
		if next, ok := internal.NextCollectable(head); ok {
			event = internal.Event{Type: internal.EventTPublish, Key: key, Gen: next}
			if entry.Deleted {
				event.Type = internal.EventTDelete
			}
			needEvent = true
		}
		return chain, false
	})

	if err != nil {
		return v.wrapWriteErr(key, err)
	}
	if needEvent {
		shard.Events.Push(event)
	}
	return nil
}

// wrapWriteErr maps chain errors onto db errors and counts them
func (v *vchainImpl) wrapWriteErr(key string, err error) error {
	var stale *snap.StaleGenerationError
	switch {
	case errors.As(err, &stale):
		v.metrics.stale.Inc()
		return fmt.Errorf("%w: key %q: %w", db.ErrStaleGeneration, key, err)
	case errors.Is(err, db.ErrNotFound):
		v.metrics.notFound.Inc()
		return fmt.Errorf("%w: %q", db.ErrNotFound, key)
	default:
		return err
	}
}

// Refresh replaces the value of the newest version of key in place.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (v *vchainImpl) Refresh(key string, value codec.Value) error {
	if v.opts.RefreshMode == RefreshDisabled {
		return db.ErrRefreshDisabled
	}
	if err := codec.Validate(value); err != nil {
		return err
	}
	entry := &internal.Entry{Value: codec.Clone(value)}

	var err error
	v.shardFor(key).Data.Compute(key, func(chain *internal.Chain, loaded bool) (*internal.Chain, bool) {
		if !loaded {
			err = db.ErrNotFound
			return chain, true
		}
		head := chain.Load()
		if head.Value().Deleted {
			err = db.ErrNotFound
			return chain, false
		}
		err = chain.Refresh(entry)
		return chain, false
	})

	if err != nil {
		return v.wrapWriteErr(key, err)
	}
	v.metrics.refresh.Inc()
	return nil
}

// --------------------------------------------------------------------------
// SnapDB Interface Methods - Read Operations
// --------------------------------------------------------------------------

// head returns the newest slot of key or nil
func (v *vchainImpl) head(key string) *internal.Slot {
	chain, ok := v.shardFor(key).Data.Load(key)
	if !ok {
		return nil
	}
	return chain.Load()
}

// Get retrieves the newest value of key.
// Bytes values are returned as copies and therefore safe to modify.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (v *vchainImpl) Get(key string) (codec.Value, bool) {
	v.metrics.reads.Inc()
	head := v.head(key)
	if head == nil {
		return nil, false
	}
	e := head.Value()
	if e.Deleted {
		return nil, false
	}
	return codec.Clone(e.Value), true
}

// GetAt retrieves the value of key visible at generation gen.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (v *vchainImpl) GetAt(key string, gen int64) (codec.Value, bool) {
	v.metrics.snapshotReads.Inc()

	var (
		slot  *internal.Slot
		steps int
	)
	for s := range v.head(key).Versions() {
		steps++
		if s.Gen() <= gen {
			slot = s
			break
		}
	}
	v.metrics.walkDepth.Update(float64(steps))
	if slot == nil {
		v.metrics.snapshotMisses.Inc()
		return nil, false
	}
	e := slot.Value()
	if e.Deleted {
		return nil, false
	}
	return codec.Clone(e.Value), true
}

// Has checks whether the newest version of key is live.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (v *vchainImpl) Has(key string) bool {
	head := v.head(key)
	return head != nil && !head.Value().Deleted
}

// Depth returns the number of versions kept for key.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (v *vchainImpl) Depth(key string) int {
	return v.head(key).Depth()
}

// Keys returns all keys with at least one version, sorted
func (v *vchainImpl) Keys() []string {
	var keys []string
	for _, shard := range v.shards {
		shard.Data.Range(func(key string, _ *internal.Chain) bool {
			keys = append(keys, key)
			return true
		})
	}
	slices.Sort(keys)
	return keys
}

// Versions returns the versions kept for key, newest first
func (v *vchainImpl) Versions(key string) []Version {
	var out []Version
	for s := range v.head(key).Versions() {
		e := s.Value()
		out = append(out, Version{Gen: s.Gen(), Value: codec.Clone(e.Value), Deleted: e.Deleted})
	}
	return out
}

// --------------------------------------------------------------------------
// Snapshot Operations
// --------------------------------------------------------------------------

// Pin registers a reader at generation gen. Versions a GetAt at gen can return are kept
// until release is called. Pins below the current Horizon do not bring back versions
// that were already collected.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (v *vchainImpl) Pin(gen int64) (release func()) {
	v.pins.Compute(gen, func(n int64, _ bool) (int64, bool) {
		return n + 1, false
	})

	var once sync.Once
	return func() {
		once.Do(func() {
			v.pins.Compute(gen, func(n int64, loaded bool) (int64, bool) {
				return n - 1, !loaded || n <= 1
			})
		})
	}
}

// PinCurrent pins the current generation and returns it.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (v *vchainImpl) PinCurrent() (int64, func()) {
	v.pinMu.RLock()
	defer v.pinMu.RUnlock()
	gen := v.gen.Load()
	return gen, v.Pin(gen)
}

// collectionHorizon computes the horizon a collection may use. Pins taken with
// PinCurrent after it returns are at or above the result.
func (v *vchainImpl) collectionHorizon() int64 {
	v.pinMu.Lock()
	defer v.pinMu.Unlock()
	return v.Horizon()
}

// Horizon returns min(pinned generations, current generation) - RetainGenerations.
// Every version a read at the horizon or later can return is kept.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (v *vchainImpl) Horizon() int64 {
	h := v.gen.Load()
	v.pins.Range(func(gen, _ int64) bool {
		if gen < h {
			h = gen
		}
		return true
	})
	return h - v.opts.RetainGenerations
}

// --------------------------------------------------------------------------
// SnapDB Interface Implementation - Features and Metadata
// --------------------------------------------------------------------------

// supportedFeatures returns the feature mask of this instance
func (v *vchainImpl) supportedFeatures() db.Feature {
	features := db.FeaturePublish |
		db.FeatureDelete |
		db.FeatureGet |
		db.FeatureGetAt |
		db.FeatureHas |
		db.FeaturePin |
		db.FeatureSave |
		db.FeatureLoad |
		db.FeatureGarbageCollect
	if v.opts.RefreshMode == RefreshInPlace {
		features |= db.FeatureRefresh
	}
	return features
}

// SupportsFeature checks if this instance supports a specific feature
func (v *vchainImpl) SupportsFeature(feature db.Feature) bool {
	return v.supportedFeatures()&feature == feature
}

// GetInfo returns statistics about the database. Sizes and depths are estimated from
// a sample of every shard.
func (v *vchainImpl) GetInfo() db.DatabaseInfo {
	const samplesPerShard = 100

	sizes := util.NewSizeHistogram()
	depths := util.NewDepthHistogram()

	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		samples      int
		tombstones   int
		totalKeys    int
		shardSizes   = make([]float64, len(v.shards))
		currentGen   = v.gen.Load()
		horizon      = v.Horizon()
		pinnedReader = v.pins.Size()
	)

	wg.Add(len(v.shards))
	for i, shard := range v.shards {
		go func(i int, s *internal.Shard) {
			defer wg.Done()
			count, tombs := 0, 0
			s.Data.Range(func(_ string, chain *internal.Chain) bool {
				head := chain.Load()
				if head == nil {
					return true
				}
				sizes.AddSample(codec.Size(head.Value().Value))
				depths.AddSample(head.Depth())
				if head.Value().Deleted {
					tombs++
				}
				count++
				return count < samplesPerShard
			})

			mu.Lock()
			defer mu.Unlock()
			samples += count
			tombstones += tombs
			size := s.Data.Size()
			totalKeys += size
			shardSizes[i] = float64(size)
		}(i, shard)
	}
	wg.Wait()

	// per version: value, generation, slot and entry overhead
	const versionOverhead = 48
	perVersion := (sizes.MedianEstimate()*60+sizes.Average()*40)/100 + versionOverhead
	avgDepth := max(depths.Average(), 1)

	var tombstoneBacklog float64
	if samples > 0 {
		tombstoneBacklog = float64(tombstones) / float64(samples)
	}

	meta := &struct {
		CurrentGen        int64                  `json:"current_gen"`
		Horizon           int64                  `json:"horizon"`
		PinnedReaders     int                    `json:"pinned_readers"`
		Keys              int                    `json:"keys"`
		ShardCount        int                    `json:"shard_count"`
		ShardDistribution util.DistributionStats `json:"shard_distribution"`
		MedianDepth       int                    `json:"median_depth"`
		P99Depth          int                    `json:"p99_depth"`
		TombstoneBacklog  float64                `json:"tombstone_backlog"`
		RefreshMode       string                 `json:"refresh_mode"`
		Info              string                 `json:"info"`
	}{
		CurrentGen:        currentGen,
		Horizon:           horizon,
		PinnedReaders:     pinnedReader,
		Keys:              totalKeys,
		ShardCount:        len(v.shards),
		ShardDistribution: util.NewDistributionStats(shardSizes),
		MedianDepth:       depths.MedianEstimate(),
		P99Depth:          depths.GetPercentileEstimate(99),
		TombstoneBacklog:  tombstoneBacklog,
		RefreshMode:       v.opts.RefreshMode.String(),
		Info:              "All values (including SizeBytes) are estimates and may vary depending on the database state.",
	}

	var features []db.Feature
	mask := v.supportedFeatures()
	for f := db.FeaturePublish; f <= db.FeatureGarbageCollect; f <<= 1 {
		if mask&f != 0 {
			features = append(features, f)
		}
	}

	return db.DatabaseInfo{
		SizeBytes:         perVersion * avgDepth * totalKeys,
		DbType:            db.ImplVChain,
		SupportedFeatures: features,
		Metadata:          meta,
	}
}

// Close stops the garbage collector. The data stays readable.
func (v *vchainImpl) Close() error {
	v.stopGC()
	return nil
}

// --------------------------------------------------------------------------
// Generation Management
// --------------------------------------------------------------------------

// SetGen safely advances the current generation, lower values are ignored
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (v *vchainImpl) SetGen(gen int64) {
	for {
		cur := v.gen.Load()
		if gen <= cur {
			return
		}
		if v.gen.CompareAndSwap(cur, gen) {
			return
		}
	}
}

// Gen returns the current generation of the database
func (v *vchainImpl) Gen() int64 {
	return v.gen.Load()
}
