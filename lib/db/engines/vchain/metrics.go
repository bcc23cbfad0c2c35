package vchain

import (
	"fmt"
	"github.com/VictoriaMetrics/metrics"
	"io"
)

// dbMetrics holds the metrics of one database instance. Every instance registers its
// metrics in its own set, so several databases can live in one process.
type dbMetrics struct {
	set *metrics.Set

	publish *metrics.Counter
	delete  *metrics.Counter
	refresh *metrics.Counter

	stale    *metrics.Counter
	notFound *metrics.Counter

	reads          *metrics.Counter
	snapshotReads  *metrics.Counter
	snapshotMisses *metrics.Counter
	walkDepth      *metrics.Histogram

	collectedVersions *metrics.Counter
	removedKeys       *metrics.Counter

	saveDuration *metrics.Histogram
	loadDuration *metrics.Histogram
}

func opCounter(set *metrics.Set, op string) *metrics.Counter {
	return set.NewCounter(fmt.Sprintf(`vchain_ops_total{op=%q}`, op))
}

func newDBMetrics(v *vchainImpl) *dbMetrics {
	set := metrics.NewSet()

	m := &dbMetrics{
		set:               set,
		publish:           opCounter(set, "publish"),
		delete:            opCounter(set, "delete"),
		refresh:           opCounter(set, "refresh"),
		reads:             opCounter(set, "get"),
		snapshotReads:     opCounter(set, "get_at"),
		stale:             set.NewCounter(`vchain_write_errors_total{reason="stale_generation"}`),
		notFound:          set.NewCounter(`vchain_write_errors_total{reason="not_found"}`),
		snapshotMisses:    set.NewCounter(`vchain_snapshot_misses_total`),
		walkDepth:         set.NewHistogram(`vchain_get_at_walk_depth`),
		collectedVersions: set.NewCounter(`vchain_gc_collected_versions_total`),
		removedKeys:       set.NewCounter(`vchain_gc_removed_keys_total`),
		saveDuration:      set.NewHistogram(`vchain_save_duration_seconds`),
		loadDuration:      set.NewHistogram(`vchain_load_duration_seconds`),
	}

	set.NewGauge(`vchain_generation`, func() float64 {
		return float64(v.Gen())
	})
	set.NewGauge(`vchain_horizon`, func() float64 {
		return float64(v.Horizon())
	})
	set.NewGauge(`vchain_pinned_generations`, func() float64 {
		return float64(v.pins.Size())
	})
	set.NewGauge(`vchain_gc_pending_chains`, func() float64 {
		var n int64
		for _, shard := range v.shards {
			n += shard.PendingLen.Load()
		}
		return float64(n)
	})

	return m
}

// WritePrometheus writes the metrics of this database in Prometheus text format
func (v *vchainImpl) WritePrometheus(w io.Writer) {
	v.metrics.set.WritePrometheus(w)
}
