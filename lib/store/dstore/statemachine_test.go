package dstore

import (
	"bytes"
	"github.com/ValentinKolb/snapKV/lib/codec"
	"github.com/ValentinKolb/snapKV/lib/db"
	"github.com/ValentinKolb/snapKV/lib/db/engines/vchain"
	"github.com/ValentinKolb/snapKV/lib/store"
	"github.com/ValentinKolb/snapKV/lib/store/dstore/internal"
	sm "github.com/lni/dragonboat/v4/statemachine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func factory() db.SnapDB {
	return vchain.NewVChainDB(nil)
}

func newMachine(t *testing.T) sm.IConcurrentStateMachine {
	t.Helper()
	fsm := CreateStateMachineFactory(factory)(1, 1)
	t.Cleanup(func() { _ = fsm.Close() })
	return fsm
}

// entry serializes cmd into a log entry at index
func entry(t *testing.T, index uint64, cmd internal.Command) sm.Entry {
	t.Helper()
	data, err := cmd.Serialize()
	require.NoError(t, err)
	return sm.Entry{Index: index, Cmd: data}
}

func publish(t *testing.T, index uint64, key string, value codec.Value) sm.Entry {
	return entry(t, index, internal.Command{Type: internal.CommandTPublish, Key: key, Value: value})
}

func lookup[R any](t *testing.T, fsm sm.IConcurrentStateMachine, q internal.Query) R {
	t.Helper()
	res, err := fsm.Lookup(q)
	require.NoError(t, err)
	casted, ok := res.(R)
	require.Truef(t, ok, "unexpected lookup result %T", res)
	return casted
}

func TestUpdateUsesIndexAsGeneration(t *testing.T) {
	fsm := newMachine(t)

	entries, err := fsm.Update([]sm.Entry{
		publish(t, 1, "a", codec.String("a1")),
		publish(t, 2, "a", codec.String("a2")),
		entry(t, 3, internal.Command{Type: internal.CommandTDelete, Key: "missing"}),
		{Index: 4, Cmd: []byte{0xff}},
		entry(t, 5, internal.Command{Type: internal.CommandTRefresh, Key: "a", Value: codec.String("a2*")}),
	})
	require.NoError(t, err)
	require.Len(t, entries, 5)

	codes := make([]store.RetCode, len(entries))
	for i, e := range entries {
		codes[i] = store.RetCode(e.Result.Value)
	}
	assert.Equal(t, []store.RetCode{
		store.RetCSuccess,
		store.RetCSuccess,
		store.RetCNotFound,
		store.RetCCorruptValue,
		store.RetCSuccess,
	}, codes)

	gen, err := decodeGen(entries[1].Result.Data)
	require.NoError(t, err)
	assert.Equal(t, int64(2), gen)

	// failed entries still move the generation
	assert.Equal(t, int64(5), lookup[int64](t, fsm, internal.Query{Type: internal.QueryTGen}))

	res := lookup[internal.QueryResult](t, fsm, internal.Query{Type: internal.QueryTGet, Key: "a"})
	assert.True(t, res.Ok)
	assert.Equal(t, codec.String("a2*"), res.Value)

	res = lookup[internal.QueryResult](t, fsm, internal.Query{Type: internal.QueryTGetAt, Key: "a", Gen: 1})
	assert.True(t, res.Ok)
	assert.Equal(t, codec.String("a1"), res.Value)

	assert.True(t, lookup[bool](t, fsm, internal.Query{Type: internal.QueryTHas, Key: "a"}))
	assert.False(t, lookup[bool](t, fsm, internal.Query{Type: internal.QueryTHas, Key: "missing"}))
}

func TestUpdateStaleGeneration(t *testing.T) {
	fsm := newMachine(t)

	entries, err := fsm.Update([]sm.Entry{
		publish(t, 7, "a", codec.Int32(1)),
		publish(t, 3, "a", codec.Int32(2)),
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(store.RetCSuccess), entries[0].Result.Value)
	assert.Equal(t, uint64(store.RetCStaleGeneration), entries[1].Result.Value)
	assert.NotEmpty(t, entries[1].Result.Data)
}

func TestLookupInvalidQuery(t *testing.T) {
	fsm := newMachine(t)

	_, err := fsm.Lookup("not a query")
	assert.ErrorIs(t, err, &store.Error{Code: store.RetCInternalError})

	_, err = fsm.Lookup(internal.Query{Type: internal.QueryType(99)})
	assert.ErrorIs(t, err, &store.Error{Code: store.RetCInvalidOperation})
}

func TestPinAndUnpin(t *testing.T) {
	fsm := newMachine(t)
	_, err := fsm.Update([]sm.Entry{publish(t, 1, "a", codec.String("a1"))})
	require.NoError(t, err)

	pin := lookup[internal.PinResult](t, fsm, internal.Query{Type: internal.QueryTPin})
	assert.Equal(t, int64(1), pin.Gen)

	_, err = fsm.Update([]sm.Entry{publish(t, 2, "a", codec.String("a2"))})
	require.NoError(t, err)

	res := lookup[internal.QueryResult](t, fsm, internal.Query{Type: internal.QueryTGetAt, Key: "a", Gen: pin.Gen})
	assert.Equal(t, codec.String("a1"), res.Value)

	assert.True(t, lookup[bool](t, fsm, internal.Query{Type: internal.QueryTUnpin, PinID: pin.ID}))
	assert.False(t, lookup[bool](t, fsm, internal.Query{Type: internal.QueryTUnpin, PinID: pin.ID}))
}

func TestSnapshotIsTakenAtPreparedGeneration(t *testing.T) {
	fsm := newMachine(t)
	_, err := fsm.Update([]sm.Entry{
		publish(t, 1, "a", codec.String("a1")),
		publish(t, 2, "b", codec.String("b1")),
	})
	require.NoError(t, err)

	ctx, err := fsm.PrepareSnapshot()
	require.NoError(t, err)

	// applied after the snapshot index
	_, err = fsm.Update([]sm.Entry{
		publish(t, 3, "a", codec.String("a2")),
		publish(t, 4, "c", codec.String("c1")),
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, fsm.SaveSnapshot(ctx, &buf, nil, nil))

	recovered := newMachine(t)
	require.NoError(t, recovered.RecoverFromSnapshot(&buf, nil, nil))

	assert.Equal(t, int64(2), lookup[int64](t, recovered, internal.Query{Type: internal.QueryTGen}))
	res := lookup[internal.QueryResult](t, recovered, internal.Query{Type: internal.QueryTGet, Key: "a"})
	assert.Equal(t, codec.String("a1"), res.Value)
	assert.False(t, lookup[bool](t, recovered, internal.Query{Type: internal.QueryTHas, Key: "c"}))

	// replaying the log after the snapshot index reaches the same state
	_, err = recovered.Update([]sm.Entry{
		publish(t, 3, "a", codec.String("a2")),
		publish(t, 4, "c", codec.String("c1")),
	})
	require.NoError(t, err)
	res = lookup[internal.QueryResult](t, recovered, internal.Query{Type: internal.QueryTGet, Key: "a"})
	assert.Equal(t, codec.String("a2"), res.Value)
	assert.True(t, lookup[bool](t, recovered, internal.Query{Type: internal.QueryTHas, Key: "c"}))
}

func TestSaveSnapshotInvalidContext(t *testing.T) {
	fsm := newMachine(t)
	var buf bytes.Buffer
	assert.Error(t, fsm.SaveSnapshot("nope", &buf, nil, nil))
}
