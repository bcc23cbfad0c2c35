// Package internal provides the communication protocol structures and serialization
// logic for the dstore package.
//
// This package is intended for internal use by the dstore implementation and should
// not be imported directly by external code.
//
//   - Command System: Write operations (Publish, Delete, Refresh) that are proposed to
//     the RAFT cluster and applied by the state machine. Commands are serialized with
//     the tagged codec, so values keep their kind through the log:
//
//     O  command type
//     S  key
//     *  value (any tag, N for Delete)
//
//   - Query System: Read operations (Get, GetAt, Has, Gen, Pin, Unpin, GetDBInfo).
//     Queries are executed on the local replica and are not serialized.
//
// Thread Safety:
//
//	The types in this package are not thread-safe and should not be shared across
//	goroutines without external synchronization.
package internal
