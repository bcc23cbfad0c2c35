// Package util
//
// This file implements summary statistics and a bucketed histogram used by database
// implementations to report on their state without performing expensive full scans.
//
// A Histogram counts samples in exponentially growing buckets. Two presets exist:
// NewSizeHistogram for byte sizes (16B up to 4GB) and NewDepthHistogram for the number
// of versions kept per key.
package util

import (
	"math"
	"sync"
)

// ----------------------------------------------------------------------------
// Summary statistics
// ----------------------------------------------------------------------------

type Stats struct {
	StdDeviation float64 `json:"std_deviation"`
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	Mean         float64 `json:"mean"`
	MinMaxRatio  float64 `json:"min_max_ratio"`
}

// NewStats computes mean, population standard deviation, minimum and maximum of values
func NewStats(values []float64) Stats {
	if len(values) == 0 {
		return Stats{}
	}

	lo, hi := values[0], values[0]
	var sum float64
	for _, v := range values {
		sum += v
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	mean := sum / float64(len(values))

	var squared float64
	for _, v := range values {
		squared += (v - mean) * (v - mean)
	}

	ratio := 1.0
	if hi > 0 {
		ratio = lo / hi
	}

	return Stats{
		StdDeviation: math.Sqrt(squared / float64(len(values))),
		Min:          lo,
		Max:          hi,
		Mean:         mean,
		MinMaxRatio:  ratio,
	}
}

type DistributionStats struct {
	Stats
	DistributionQuality float64 `json:"distribution_quality"`
}

// NewDistributionStats computes how evenly values (e.g. shard sizes) are distributed.
// The quality is 1 for a perfectly even distribution and approaches 0 for a skewed one.
func NewDistributionStats(values []float64) DistributionStats {
	stats := NewStats(values)

	var cv float64
	if stats.Mean > 0 {
		cv = stats.StdDeviation / stats.Mean
	}

	return DistributionStats{
		Stats:               stats,
		DistributionQuality: (1.0-math.Min(1.0, cv))*0.5 + stats.MinMaxRatio*0.5,
	}
}

// ----------------------------------------------------------------------------
// Histogram
// ----------------------------------------------------------------------------

// Histogram tracks the distribution of non-negative integer samples in buckets.
// Bucket i counts samples <= boundaries[i], the last bucket counts everything larger.
//
// Thread-safety: All methods are safe for concurrent use.
type Histogram struct {
	mutex      sync.RWMutex
	boundaries []int
	buckets    []int64
	count      int64
	sum        int64
}

// NewHistogram creates a histogram with the given ascending bucket boundaries
func NewHistogram(boundaries ...int) *Histogram {
	return &Histogram{
		boundaries: boundaries,
		buckets:    make([]int64, len(boundaries)+1),
	}
}

// NewSizeHistogram creates a histogram calibrated for byte sizes from bytes to gigabytes
func NewSizeHistogram() *Histogram {
	return NewHistogram(
		16, 64, 256, 1024, 4096, // Bytes: 16B to 4KB
		16384, 65536, 262144, 1048576, // KB range: 16KB to 1MB
		4194304, 16777216, 67108864, // MB range: 4MB to 64MB
		268435456, 1073741824, 4294967296, // Above 256MB to 4GB
	)
}

// NewDepthHistogram creates a histogram calibrated for version chain depths
func NewDepthHistogram() *Histogram {
	return NewHistogram(1, 2, 4, 8, 16, 32, 64, 128, 256, 1024)
}

// AddSample adds a sample to the histogram
func (h *Histogram) AddSample(v int) {
	bucket := len(h.boundaries)
	for i, boundary := range h.boundaries {
		if v <= boundary {
			bucket = i
			break
		}
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.buckets[bucket]++
	h.count++
	h.sum += int64(v)
}

// GetCount returns the total number of samples
func (h *Histogram) GetCount() int64 {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.count
}

// Average returns the exact average of all samples
func (h *Histogram) Average() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	if h.count == 0 {
		return 0
	}
	return int(h.sum / h.count)
}

// MedianEstimate estimates the median from the bucket counts
func (h *Histogram) MedianEstimate() int {
	return h.GetPercentileEstimate(50)
}

// GetPercentileEstimate returns an estimate for the given percentile (0-100)
func (h *Histogram) GetPercentileEstimate(percentile int) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if h.count == 0 || percentile < 0 || percentile > 100 {
		return 0
	}

	target := int64(math.Ceil(float64(h.count) * float64(percentile) / 100.0))
	var cumulative int64
	for i, n := range h.buckets {
		cumulative += n
		if cumulative >= target {
			return h.bucketEstimate(i)
		}
	}
	return int(h.sum / h.count)
}

// bucketEstimate returns a representative value for bucket i
func (h *Histogram) bucketEstimate(i int) int {
	switch {
	case len(h.boundaries) == 0:
		return int(h.sum / max(h.count, 1))
	case i == 0:
		return max(h.boundaries[0]/2, min(h.boundaries[0], 1))
	case i < len(h.boundaries):
		return (h.boundaries[i-1] + h.boundaries[i]) / 2
	default:
		return h.boundaries[len(h.boundaries)-1] * 2
	}
}

// Distribution returns the bucket boundaries and the percentage of samples per bucket
func (h *Histogram) Distribution() ([]int, []float64) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	percentages := make([]float64, len(h.buckets))
	if h.count == 0 {
		return h.boundaries, percentages
	}
	for i, n := range h.buckets {
		percentages[i] = float64(n) * 100.0 / float64(h.count)
	}
	return h.boundaries, percentages
}

// Reset clears all samples
func (h *Histogram) Reset() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.count = 0
	h.sum = 0
	clear(h.buckets)
}
