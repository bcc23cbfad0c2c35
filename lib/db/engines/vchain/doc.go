// Package vchain implements a multi-version key-value database (db.SnapDB) on top of
// snap version chains. Every key owns a chain of immutable versions ordered by
// generation, readers resolve the version visible at any generation without locks and
// a background collector drops versions no reader can reach anymore.
//
// Key Components:
//
//   - vchainImpl: The central database structure implementing VChainDB. It owns the
//     shards, the current generation, the reader pins and the garbage collector.
//     Like the rest of the stack it never assigns generations itself, the caller passes
//     the generation of every write (a raft log index, a counter, ...).
//
//   - Shard: A partition of the key space. Each shard holds an xsync map from key to
//     chain head, a lock free event queue and a heap of chains waiting for the
//     collection horizon.
//
//   - Entry: The payload of one version, a codec value or a tombstone. Tombstones
//     share a single Entry.
//
// Write Path:
//
//   - Publish and Delete run inside the Compute callback of the shard map, so writes of
//     the same key are serialized by the map bucket while writes of different keys run in
//     parallel. Inside the callback the new version is published with compare-and-swap
//     on the chain head. A generation that is not newer than the head fails with
//     db.ErrStaleGeneration and leaves the chain untouched.
//
//   - Refresh swaps the value of the head version in place. Readers that resolve to the
//     head observe the old or the new value, never a mix. Refresh can be disabled with
//     RefreshDisabled.
//
// Read Path:
//
//   - Get, GetAt and Has load the head and walk towards older versions. A loaded head
//     is a stable view, neither writers nor the collector modify slots that are
//     reachable from it.
//
// Garbage Collection:
//
//   - Readers announce the generation they read at with Pin. The horizon is the lowest
//     pinned generation (or the current generation without pins) minus
//     RetainGenerations. A GetAt at the horizon or later resolves to the same version
//     before and after a collection.
//
//   - Every write that leaves a chain with something collectable pushes an event with
//     the generation at which the chain can shrink. One goroutine per shard consumes
//     the events into its heap, and once per GCInterval it compacts all chains whose
//     generation is at or below the horizon. Compaction builds a shortened copy of the
//     chain and installs it under the bucket lock. Chains that end in a collectable
//     tombstone are removed from the map.
//
//   - Collect runs the same compaction synchronously over all chains.
//
// Persistence Format:
//
//  1. Magic number "SNAPKVDB\x00" to identify the file format
//  2. Format version (currently 1) and a flag byte (bit 0: zstd compressed body)
//  3. A codec stream with the current generation, the number of chains and for each
//     chain its key, depth and all versions (newest first) with generation, tombstone
//     flag and value
//
// Save does not stop writers. It pins the current generation and writes the state
// visible at it (SaveAt), so the output is a consistent cut of the database.
//
// Metrics: every database registers counters, histograms and gauges in its own
// VictoriaMetrics set, exposed with WritePrometheus. GetInfo adds sampled size and
// depth estimates.
package vchain
