// Package dstore implements a distributed, fault-tolerant snapshot store using
// the Dragonboat RAFT consensus library. It provides a strongly consistent implementation
// of the store.IStore interface that can operate across multiple nodes.
//
// Architecture:
//
// The dstore implementation consists of three main components:
//
//   - Store Client: Implements the store.IStore interface and communicates with
//     the RAFT cluster. It serializes writes into commands, sends them to the
//     consensus layer, and decodes the generation of the write from the response.
//
//   - State Machine: A Dragonboat IConcurrentStateMachine implementation that applies
//     commands and answers queries on each node. The state machine owns the db.SnapDB
//     instance.
//
//   - Communication Protocol: Defined in the internal package. Commands are encoded with
//     the tagged codec, queries stay local to the replica and are never serialized.
//
// Generations:
//
//	The RAFT log index of an entry is the generation of the write it carries. All
//	replicas apply the same entries in the same order, so they all publish every
//	version at the same generation. Entries that fail (stale, not found, corrupt)
//	still advance the generation of the database, so Gen always equals the index of
//	the newest applied entry.
//
// Write Operations:
//
//	All write operations (Publish, Delete, Refresh) follow this flow:
//
//	1. The operation is serialized into a Command
//	2. The Command is proposed to the RAFT cluster via SyncPropose
//	3. Once committed, the command is applied on each node (Update in statemachine.go)
//	4. The return code and the generation (codec encoded) are returned to the client
//
// Read Operations:
//
//   - Linearizable Reads: Get, GetAt, Has and Gen use SyncRead, the replica has
//     applied all committed entries before it answers.
//
//   - Stale Reads: GetDBInfo and the reads of a Snapshot use StaleRead.
//
// Snapshots (read views):
//
//	Snapshot sends a Pin query to the local replica. The replica pins its current
//	generation and returns a pin id. Reads of the snapshot go to the same replica and
//	are repeatable, Close sends an Unpin query. Pins are not replicated, a snapshot is
//	bound to the NodeHost it was created on.
//
// Snapshotting and Recovery (RAFT):
//
//   - PrepareSnapshot pins the generation of the snapshot index. SaveSnapshot then writes
//     the state at exactly that generation with SaveAt while updates continue, so a
//     replica that recovers from the snapshot and replays the later entries reaches the
//     same state, Refresh entries included.
//
//   - RecoverFromSnapshot replaces the content of the database with db.SnapDB.Load.
//
// Usage:
//
//	// Create NodeHost (RAFT client)
//	nh, err := dragonboat.NewNodeHost(cfg.ToNodeHostConfig())
//	if err != nil { ... }
//
//	// DB factory for store
//	dbFactory := func() db.SnapDB { return vchain.NewVChainDB(vchain.OptionsFromConfig(cfg)) }
//
//	// Create and start shard (RAFT server)
//	err = nh.StartConcurrentReplica(
//	    cfg.ClusterMembers,
//	    false,
//	    dstore.CreateStateMachineFactory(dbFactory),
//	    cfg.ToDragonboatConfig(cfg.ShardID))
//	if err != nil { ... }
//
//	s := dstore.NewDistributedStore(nh, cfg.ShardID, cfg.Timeout())
//
// For scenarios where distributed consensus is not required, use the lstore package,
// which provides a single-node implementation of the same interface.
package dstore
