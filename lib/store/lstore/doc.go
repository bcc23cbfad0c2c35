// Package lstore implements a local, single-node multi-version store based on the
// store.IStore interface. It is a thin wrapper around any db.SnapDB implementation that
// allocates the generation of every write.
//
// Implementation Details:
//
//   - Generation Management: The store keeps a counter that is incremented for each
//     write. Writes are serialized with a mutex, so when a generation becomes visible all
//     lower generations are applied too. This gives Snapshot the same guarantees as the
//     raft log gives the distributed store.
//
//   - Feature Detection: Before executing operations, the store checks if the underlying
//     db.SnapDB implementation supports the requested feature through the
//     SupportsFeature method. Unsupported operations return RetCUnsupportedOperation.
//
//   - Persistence: A store opened with OpenLocalStore loads its file at open and writes
//     the database back on Close. The file is replaced atomically, a crash during Close
//     keeps the previous content.
//
// Thread Safety:
//
//	All operations are thread-safe. Reads never block, writes of the same store are
//	serialized.
//
// Usage Example:
//
//	factory := func() db.SnapDB { return vchain.NewVChainDB(nil) }
//	s, err := lstore.OpenLocalStore(factory, "/var/lib/snapkv/data.snap")
//	defer s.Close()
//
//	gen, err := s.Publish("page:/index", codec.String("<html>..."))
//
//	snap, err := s.Snapshot()
//	defer snap.Close()
//	value, ok, err := snap.Get("page:/index")
//
// For distributed scenarios requiring consensus across multiple nodes, consider
// using the dstore package instead, which provides a RAFT-based implementation
// of the same interface.
package lstore
