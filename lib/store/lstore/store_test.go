package lstore

import (
	"errors"
	"fmt"
	"github.com/ValentinKolb/snapKV/lib/codec"
	"github.com/ValentinKolb/snapKV/lib/db"
	"github.com/ValentinKolb/snapKV/lib/db/engines/vchain"
	"github.com/ValentinKolb/snapKV/lib/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func factory() db.SnapDB {
	return vchain.NewVChainDB(nil)
}

func newStore(t *testing.T) store.IStore {
	t.Helper()
	s := NewLocalStore(factory)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPublishAllocatesGenerations(t *testing.T) {
	s := newStore(t)

	gen1, err := s.Publish("a", codec.String("a1"))
	require.NoError(t, err)
	gen2, err := s.Publish("b", codec.String("b1"))
	require.NoError(t, err)
	gen3, err := s.Publish("a", codec.String("a2"))
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 2, 3}, []int64{gen1, gen2, gen3})

	current, err := s.Gen()
	require.NoError(t, err)
	assert.Equal(t, int64(3), current)

	v, ok, err := s.Get("a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, codec.String("a2"), v)

	v, ok, err = s.GetAt("a", gen2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, codec.String("a1"), v)
}

func TestDelete(t *testing.T) {
	s := newStore(t)

	_, err := s.Publish("k", codec.Int64(1))
	require.NoError(t, err)

	gen, err := s.Delete("k")
	require.NoError(t, err)
	assert.Equal(t, int64(2), gen)

	has, err := s.Has("k")
	require.NoError(t, err)
	assert.False(t, has)

	_, err = s.Delete("k")
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrNotFound), "got %v", err)

	var storeErr *store.Error
	require.True(t, errors.As(err, &storeErr))
	assert.Equal(t, store.RetCNotFound, storeErr.Code)
}

func TestInvalidValue(t *testing.T) {
	s := newStore(t)

	_, err := s.Publish("k", nil)
	var storeErr *store.Error
	require.True(t, errors.As(err, &storeErr), "got %v", err)
	assert.Equal(t, store.RetCInvalidOperation, storeErr.Code)
}

func TestSnapshot(t *testing.T) {
	s := newStore(t)

	_, err := s.Publish("page", codec.String("v1"))
	require.NoError(t, err)

	snap, err := s.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.Gen())

	_, err = s.Publish("page", codec.String("v2"))
	require.NoError(t, err)
	_, err = s.Publish("other", codec.String("new"))
	require.NoError(t, err)

	v, ok, err := snap.Get("page")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, codec.String("v1"), v)

	has, err := snap.Has("other")
	require.NoError(t, err)
	assert.False(t, has, "keys published after the snapshot are invisible")

	require.NoError(t, snap.Close())
	require.NoError(t, snap.Close())

	_, _, err = snap.Get("page")
	var storeErr *store.Error
	require.True(t, errors.As(err, &storeErr))
	assert.Equal(t, store.RetCInvalidOperation, storeErr.Code)
}

func TestRefreshVisibleInSnapshot(t *testing.T) {
	s := newStore(t)

	_, err := s.Publish("page", codec.String("stale content"))
	require.NoError(t, err)

	snap, err := s.Snapshot()
	require.NoError(t, err)
	defer snap.Close()

	require.NoError(t, s.Refresh("page", codec.String("fresh content")))

	v, ok, err := snap.Get("page")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, codec.String("fresh content"), v)

	err = s.Refresh("missing", codec.String("x"))
	assert.True(t, errors.Is(err, store.ErrNotFound), "got %v", err)
}

func TestRefreshDisabled(t *testing.T) {
	s := NewLocalStore(func() db.SnapDB {
		return vchain.NewVChainDB(&vchain.DBOptions{RefreshMode: vchain.RefreshDisabled})
	})
	defer s.Close()

	_, err := s.Publish("k", codec.Int32(1))
	require.NoError(t, err)

	err = s.Refresh("k", codec.Int32(2))
	var storeErr *store.Error
	require.True(t, errors.As(err, &storeErr))
	assert.Equal(t, store.RetCUnsupportedOperation, storeErr.Code)
}

func TestConcurrentPublish(t *testing.T) {
	s := newStore(t)

	const (
		writers   = 8
		perWriter = 200
	)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[int64]bool)
	)
	wg.Add(writers)
	for w := 0; w < writers; w++ {
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				gen, err := s.Publish(fmt.Sprintf("key-%d", i%10), codec.Int32(int32(w)))
				if err != nil {
					t.Errorf("Publish: %v", err)
					return
				}
				mu.Lock()
				seen[gen] = true
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()

	assert.Len(t, seen, writers*perWriter, "generations must be unique")
	gen, err := s.Gen()
	require.NoError(t, err)
	assert.Equal(t, int64(writers*perWriter), gen)
}

func TestPersistence(t *testing.T) {
	file := filepath.Join(t.TempDir(), "data.snap")

	s, err := OpenLocalStore(factory, file)
	require.NoError(t, err)

	_, err = s.Publish("a", codec.String("a1"))
	require.NoError(t, err)
	_, err = s.Publish("a", codec.String("a2"))
	require.NoError(t, err)
	_, err = s.Publish("b", codec.Bytes{1, 2, 3})
	require.NoError(t, err)
	_, err = s.Delete("b")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = os.Stat(file)
	require.NoError(t, err)

	reopened, err := OpenLocalStore(factory, file)
	require.NoError(t, err)
	defer reopened.Close()

	gen, err := reopened.Gen()
	require.NoError(t, err)
	assert.Equal(t, int64(4), gen)

	v, ok, err := reopened.Get("a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, codec.String("a2"), v)

	has, err := reopened.Has("b")
	require.NoError(t, err)
	assert.False(t, has)

	// generations continue after the loaded one
	next, err := reopened.Publish("c", codec.Null{})
	require.NoError(t, err)
	assert.Equal(t, int64(5), next)
}

func TestCorruptPersistenceFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "data.snap")
	require.NoError(t, os.WriteFile(file, []byte("not a snapshot"), 0o600))

	_, err := OpenLocalStore(factory, file)
	var storeErr *store.Error
	require.True(t, errors.As(err, &storeErr), "got %v", err)
	assert.Equal(t, store.RetCCorruptValue, storeErr.Code)
}

func TestGetDBInfo(t *testing.T) {
	s := newStore(t)

	info, err := s.GetDBInfo()
	require.NoError(t, err)
	assert.Equal(t, db.ImplVChain, info.DbType)
}
