// Package util provides utility components for database implementations that satisfy
// the db.SnapDB interface.
//
// The package contains:
//   - statistics: summary statistics and bucketed histograms (sizes, chain depths)
//   - functions: seeded string hashing and shard selection
//   - mapheap: a generic priority queue with key-based access, used to schedule chains for collection
//   - lockfreempsc: a lock-free Multi-Producer Single-Consumer (MPSC) queue feeding write events to collectors
package util
