package dstore

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/snapKV/lib/codec"
	"github.com/ValentinKolb/snapKV/lib/common"
	"github.com/ValentinKolb/snapKV/lib/db"
	"github.com/ValentinKolb/snapKV/lib/store"
	"github.com/ValentinKolb/snapKV/lib/store/dstore/internal"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/client"
	"github.com/lni/dragonboat/v4/logger"
	"time"
)

var (
	retries = 5
	log     = logger.GetLogger(common.LoggerStore)
)

// storeImpl is the concrete implementation of the IStore interface.
// It encapsulates a Dragonboat NodeHost which is used to communicate with the state machine.
type storeImpl struct {
	nh      *dragonboat.NodeHost
	shardID uint64
	cs      *client.Session
	timeout time.Duration
}

// NewDistributedStore creates a new distributed store instance which uses raft consensus to ensure strict linearizability
// across multiple nodes. The raft log index of a write is its generation.
func NewDistributedStore(nh *dragonboat.NodeHost, shardID uint64, timeout time.Duration) store.IStore {
	cs := nh.GetNoOPSession(shardID)
	return &storeImpl{
		nh:      nh,
		shardID: shardID,
		cs:      cs,
		timeout: timeout,
	}
}

// --------------------------------------------------------------------------
// Internal write and read operations (used by interface methods)
// --------------------------------------------------------------------------

// write serializes a Command and sends it via SyncPropose.
// It returns the generation of the write, or a *store.Error if an error occurs.
func (s *storeImpl) write(cmd internal.Command) (int64, error) {
	data, err := cmd.Serialize()
	if err != nil {
		return 0, store.FromDBError(err)
	}

	for i := 0; i < retries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)

		res, err := s.nh.SyncPropose(ctx, s.cs, data)
		cancel()

		// Check for system busy errors
		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncPropose: System busy, retrying (%d/%d)...", i+1, retries)
			time.Sleep(s.timeout / 10)
			continue
		}

		if err != nil {
			return 0, store.NewError(store.RetCInternalError, err.Error())
		}
		if res.Value != uint64(store.RetCSuccess) {
			return 0, store.NewError(store.RetCode(res.Value), string(res.Data))
		}
		return decodeGen(res.Data)
	}
	return 0, store.NewError(store.RetCInternalError, "timeout")
}

// decodeGen decodes the generation returned by a successful Update
func decodeGen(data []byte) (int64, error) {
	v, err := codec.Unmarshal(data)
	if err != nil {
		return 0, store.NewError(store.RetCCorruptValue, fmt.Sprintf("invalid write result: %v", err))
	}
	gen, ok := v.(codec.Int64)
	if !ok {
		return 0, store.NewError(store.RetCCorruptValue, fmt.Sprintf("invalid write result: unexpected %T", v))
	}
	return int64(gen), nil
}

// read is a generic helper function queries the statemachine
// and attempts to convert the response into the expected type R.
//
// This function uses the SyncRead function (dragonboat) by default to Query the state machine.
// If linearizability is not required, the stale parameter can be set to true to use the faster StaleRead function.
//
// Is the read operation fails due to a system busy error, the function retries up to 5 times.
//
// It returns the response of type R and a error (nil on success).
func read[R any](r *storeImpl, q internal.Query, stale bool) (R, error) {
	var zero R
	for i := 0; i < retries; i++ {

		var res interface{}
		var err error

		// Query the state machine, use StaleRead if stale is set otherwise use SyncRead (default)
		if stale {
			res, err = r.nh.StaleRead(r.shardID, q)
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
			res, err = r.nh.SyncRead(ctx, r.shardID, q)
			cancel()
		}

		// Check for system busy errors
		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncRead: System busy, retrying (%d/%d)...", i+1, retries)
			time.Sleep(r.timeout / 10)
			continue
		}

		if err != nil {
			var rse *store.Error
			if errors.As(err, &rse) {
				return zero, rse
			}
			return zero, store.NewError(store.RetCInternalError, err.Error())
		}

		// The state machine is expected to return the response in the expected type R.
		casted, ok := res.(R)
		if !ok {
			return zero, store.NewError(store.RetCInternalError,
				fmt.Sprintf("unexpected type: received %T, expected %T", res, zero))
		}
		return casted, nil
	}
	return zero, store.NewError(store.RetCInternalError, "timeout")
}

// --------------------------------------------------------------------------
// Interface Methods (docs see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Publish(key string, value codec.Value) (int64, error) {
	return s.write(internal.Command{
		Type:  internal.CommandTPublish,
		Key:   key,
		Value: value,
	})
}

func (s *storeImpl) Delete(key string) (int64, error) {
	return s.write(internal.Command{
		Type: internal.CommandTDelete,
		Key:  key,
	})
}

func (s *storeImpl) Refresh(key string, value codec.Value) error {
	_, err := s.write(internal.Command{
		Type:  internal.CommandTRefresh,
		Key:   key,
		Value: value,
	})
	return err
}

func (s *storeImpl) Get(key string) (codec.Value, bool, error) {
	res, err := read[internal.QueryResult](s, internal.Query{
		Type: internal.QueryTGet,
		Key:  key,
	}, false)
	if err != nil {
		return nil, false, err
	}
	return res.Value, res.Ok, nil
}

func (s *storeImpl) GetAt(key string, gen int64) (codec.Value, bool, error) {
	res, err := read[internal.QueryResult](s, internal.Query{
		Type: internal.QueryTGetAt,
		Key:  key,
		Gen:  gen,
	}, false)
	if err != nil {
		return nil, false, err
	}
	return res.Value, res.Ok, nil
}

func (s *storeImpl) Has(key string) (bool, error) {
	return read[bool](s, internal.Query{
		Type: internal.QueryTHas,
		Key:  key,
	}, false)
}

func (s *storeImpl) Gen() (int64, error) {
	return read[int64](s, internal.Query{
		Type: internal.QueryTGen,
	}, false)
}

// Snapshot pins the generation on the local replica. The snapshot reads from the same
// replica with stale reads, they are repeatable because the replica keeps the pinned
// versions until Close.
func (s *storeImpl) Snapshot() (*store.Snapshot, error) {
	pin, err := read[internal.PinResult](s, internal.Query{
		Type: internal.QueryTPin,
	}, false)
	if err != nil {
		return nil, err
	}

	getAt := func(key string, gen int64) (codec.Value, bool, error) {
		res, err := read[internal.QueryResult](s, internal.Query{
			Type: internal.QueryTGetAt,
			Key:  key,
			Gen:  gen,
		}, true)
		if err != nil {
			return nil, false, err
		}
		return res.Value, res.Ok, nil
	}

	unpin := func() error {
		ok, err := read[bool](s, internal.Query{
			Type:  internal.QueryTUnpin,
			PinID: pin.ID,
		}, true)
		if err != nil {
			return err
		}
		if !ok {
			log.Warningf("Snapshot at generation %d: pin %d was already released", pin.Gen, pin.ID)
		}
		return nil
	}

	return store.NewSnapshot(pin.Gen, getAt, unpin), nil
}

func (s *storeImpl) GetDBInfo() (db.DatabaseInfo, error) {
	return read[db.DatabaseInfo](
		s,
		internal.Query{
			Type: internal.QueryTGetDBInfo,
		},
		true, // Note: allow for stale reads
	)
}

// Close is a no-op, the NodeHost is owned by the caller.
func (s *storeImpl) Close() error {
	return nil
}
