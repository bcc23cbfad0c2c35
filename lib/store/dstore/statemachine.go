package dstore

import (
	"fmt"
	"github.com/ValentinKolb/snapKV/lib/codec"
	"github.com/ValentinKolb/snapKV/lib/db"
	"github.com/ValentinKolb/snapKV/lib/store"
	"github.com/ValentinKolb/snapKV/lib/store/dstore/internal"
	sm "github.com/lni/dragonboat/v4/statemachine"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// --------------------------------------------------------------------------
// State Machine Implementation
// --------------------------------------------------------------------------

// SnapStateMachine is a state machine implementation for Dragonboat RAFT.
// The index of a log entry is the generation of the write it carries.
type SnapStateMachine struct {
	replicaID uint64
	shardID   uint64
	database  db.SnapDB // the actual dataStorage

	// pins created by QueryTPin on this replica
	pinMu  sync.Mutex
	pins   map[uint64]func()
	nextID atomic.Uint64
}

// snapshotContext is created by PrepareSnapshot and consumed by SaveSnapshot
type snapshotContext struct {
	gen     int64
	release func()
}

// CreateStateMachineFactory returns a function that can be used by dragonboat to create a new state machine for a node host
// The factory pattern is used to enable the caller to pass an interchangeable dbFactory
func CreateStateMachineFactory(dbFactory store.DBFactory) func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
	return func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
		return &SnapStateMachine{
			replicaID: replicaID,
			shardID:   shardID,
			database:  dbFactory(),
			pins:      make(map[uint64]func()),
		}
	}
}

// Lookup handles read-only queries by mapping each Query operation to the corresponding SnapDB method.
func (fsm *SnapStateMachine) Lookup(itf interface{}) (interface{}, error) {

	// try to parse Query into Query struct
	q, ok := itf.(internal.Query)
	if !ok {
		return nil, store.NewError(store.RetCInternalError, fmt.Sprintf("invalid Query type: %T", itf))
	}

	// Handle different Query types
	switch q.Type {
	case internal.QueryTGet:
		if !fsm.database.SupportsFeature(db.FeatureGet) {
			return nil, store.NewError(store.RetCUnsupportedOperation, "Get operation is not supported")
		}
		val, ok := fsm.database.Get(q.Key)
		return internal.QueryResult{Value: val, Ok: ok}, nil
	case internal.QueryTGetAt:
		if !fsm.database.SupportsFeature(db.FeatureGetAt) {
			return nil, store.NewError(store.RetCUnsupportedOperation, "GetAt operation is not supported")
		}
		val, ok := fsm.database.GetAt(q.Key, q.Gen)
		return internal.QueryResult{Value: val, Ok: ok}, nil
	case internal.QueryTHas:
		if !fsm.database.SupportsFeature(db.FeatureHas) {
			return nil, store.NewError(store.RetCUnsupportedOperation, "Has operation is not supported")
		}
		return fsm.database.Has(q.Key), nil
	case internal.QueryTGen:
		return fsm.database.Gen(), nil
	case internal.QueryTPin:
		if !fsm.database.SupportsFeature(db.FeaturePin) {
			return nil, store.NewError(store.RetCUnsupportedOperation, "Pin operation is not supported")
		}
		return fsm.pin(), nil
	case internal.QueryTUnpin:
		return fsm.unpin(q.PinID), nil
	case internal.QueryTGetDBInfo:
		return fsm.database.GetInfo(), nil
	default:
		return nil, store.NewError(store.RetCInvalidOperation, fmt.Sprintf("unknown Query operation: %d", q.Type))
	}
}

// pin pins the current generation of the replica and remembers the release function
func (fsm *SnapStateMachine) pin() internal.PinResult {
	gen, release := fsm.database.PinCurrent()
	id := fsm.nextID.Add(1)

	fsm.pinMu.Lock()
	fsm.pins[id] = release
	fsm.pinMu.Unlock()

	return internal.PinResult{ID: id, Gen: gen}
}

// unpin releases a pin, it returns false for unknown pins
func (fsm *SnapStateMachine) unpin(id uint64) bool {
	fsm.pinMu.Lock()
	release, ok := fsm.pins[id]
	delete(fsm.pins, id)
	fsm.pinMu.Unlock()

	if ok {
		release()
	}
	return ok
}

// Update handles write commands on the SnapDB instance.
// All write operations are serialized into []byte and are accessible via the entries struct.
// A successful write returns RetCSuccess and its generation (the entry index) as a
// codec encoded L value in Result.Data.
func (fsm *SnapStateMachine) Update(entries []sm.Entry) ([]sm.Entry, error) {

	// Nothing to do
	if len(entries) == 0 {
		return entries, nil
	}

	// Stats
	start := time.Now()

	for idx, e := range entries {
		entries[idx].Result = fsm.apply(e)
	}

	// Log if the update took long
	if elapsed := time.Since(start); elapsed > time.Millisecond {
		log.Infof("State machine took long to update. Batch updated %d entries, took %.2fms", len(entries), float64(elapsed)/float64(time.Millisecond))
	}
	return entries, nil
}

// apply applies a single log entry
func (fsm *SnapStateMachine) apply(e sm.Entry) sm.Result {
	gen := int64(e.Index)

	// every entry moves the generation, even ones that fail
	defer fsm.database.SetGen(gen)

	if len(e.Cmd) == 0 {
		return failure(store.NewError(store.RetCInvalidOperation, "empty command ignored"))
	}

	// Deserialize the command
	cmd := internal.Command{}
	if err := cmd.Deserialize(e.Cmd); err != nil {
		return failure(store.NewError(store.RetCCorruptValue, fmt.Sprintf("failed to deserialize command: %v", err)))
	}

	// Check if the db supports the operation
	feat, err := cmd.Type.ToDBFeature()
	if err != nil {
		return failure(store.NewError(store.RetCInvalidOperation, fmt.Sprintf("unknown Command operation: %s", cmd.Type)))
	}
	if !fsm.database.SupportsFeature(feat) {
		return failure(store.NewError(store.RetCUnsupportedOperation, fmt.Sprintf("%s operation is not supported", cmd.Type)))
	}

	switch cmd.Type {
	case internal.CommandTPublish:
		err = fsm.database.Publish(cmd.Key, cmd.Value, gen)
	case internal.CommandTDelete:
		err = fsm.database.Delete(cmd.Key, gen)
	case internal.CommandTRefresh:
		err = fsm.database.Refresh(cmd.Key, cmd.Value)
	}
	if err != nil {
		return failure(store.FromDBError(err))
	}

	data, _ := codec.Marshal(codec.Int64(gen))
	return sm.Result{Value: uint64(store.RetCSuccess), Data: data}
}

// failure converts a store error into a result
func failure(err error) sm.Result {
	storeErr, ok := err.(*store.Error)
	if !ok {
		storeErr = store.NewError(store.RetCInternalError, err.Error())
	}
	return sm.Result{Value: uint64(storeErr.Code), Data: []byte(storeErr.Msg)}
}

// PrepareSnapshot pins the generation of the snapshot. Dragonboat does not run Update
// concurrently with PrepareSnapshot, so the generation matches the snapshot index.
func (fsm *SnapStateMachine) PrepareSnapshot() (interface{}, error) {
	gen, release := fsm.database.PinCurrent()
	return &snapshotContext{gen: gen, release: release}, nil
}

// SaveSnapshot writes the state at the prepared generation to the writer. Updates
// applied meanwhile are not part of the snapshot.
func (fsm *SnapStateMachine) SaveSnapshot(ctx interface{}, writer io.Writer, _ sm.ISnapshotFileCollection, _ <-chan struct{}) error {
	snapCtx, ok := ctx.(*snapshotContext)
	if !ok {
		return fmt.Errorf("invalid snapshot context %T", ctx)
	}
	defer snapCtx.release()

	if !fsm.database.SupportsFeature(db.FeatureSave) {
		return fmt.Errorf("the used SnapDB implementation does not support Save() operations")
	}
	return fsm.database.SaveAt(writer, snapCtx.gen)
}

// RecoverFromSnapshot replaces the database content with a snapshot.
func (fsm *SnapStateMachine) RecoverFromSnapshot(r io.Reader, _ []sm.SnapshotFile, _ <-chan struct{}) error {
	if !fsm.database.SupportsFeature(db.FeatureLoad) {
		return fmt.Errorf("the used SnapDB implementation does not support Load() operations")
	}
	return fsm.database.Load(r)
}

// Close releases all pins and closes the database.
func (fsm *SnapStateMachine) Close() error {
	fsm.pinMu.Lock()
	for id, release := range fsm.pins {
		release()
		delete(fsm.pins, id)
	}
	fsm.pinMu.Unlock()

	return fsm.database.Close()
}
