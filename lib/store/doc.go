// Package store provides a high-level interface for multi-version key-value storage
// with generation allocation, repeatable snapshots and unified error handling.
// It serves as an abstraction layer over the lower-level db.SnapDB implementations.
//
// Key Components:
//
//   - IStore Interface: The core abstraction for writing and reading versioned values.
//     The store, not the caller, decides the generation of every write and returns it.
//     All implementations share this interface, so applications can switch between
//     local and replicated storage without code changes.
//
//   - Snapshot: A read view pinned at one generation. The underlying database keeps
//     every version the snapshot can resolve to until the snapshot is closed.
//
//   - Error System: Errors carry a RetCode. FromDBError maps the errors of the db and
//     codec layers onto codes, so callers can tell a stale write (RetCStaleGeneration)
//     from corrupt data (RetCCorruptValue) or a programming error
//     (RetCInvalidOperation). The Err* sentinels work with errors.Is.
//
//   - DBFactory: A function type that abstracts the creation of the underlying
//     db.SnapDB instance.
//
// Implementations:
//
//	- Local Store (lstore): A single-node store that uses a db.SnapDB directly and
//	  allocates generations from an atomic counter. It can persist its content to a
//	  file on Close and load it on open.
//	  Available in the "github.com/ValentinKolb/snapKV/lib/store/lstore" package.
//
//	- Distributed Store (dstore): A store replicated with the Dragonboat RAFT library.
//	  The raft log index of a write is its generation, so all replicas agree on the
//	  version history.
//	  Available in the "github.com/ValentinKolb/snapKV/lib/store/dstore" package.
package store
