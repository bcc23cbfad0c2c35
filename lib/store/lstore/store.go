package lstore

import (
	"bufio"
	"errors"
	"fmt"
	"github.com/ValentinKolb/snapKV/lib/codec"
	"github.com/ValentinKolb/snapKV/lib/common"
	"github.com/ValentinKolb/snapKV/lib/db"
	"github.com/ValentinKolb/snapKV/lib/store"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/natefinch/atomic"
	"io"
	"io/fs"
	"os"
	"sync"
	"time"
)

var log = logger.GetLogger(common.LoggerStore)

type storeImpl struct {
	db  db.SnapDB
	gen int64 // last allocated generation, guarded by mu

	// writes are serialized, so a generation is only observable once all lower
	// generations are applied (the order the raft log gives dstore)
	mu sync.Mutex

	persistFile string
	closeOnce   sync.Once
	closeErr    error
}

// NewLocalStore creates a new local store instance.
// This store implementation is not distributed and only works on a single node.
func NewLocalStore(factory store.DBFactory) store.IStore {
	return &storeImpl{
		db: factory(),
	}
}

// OpenLocalStore creates a local store backed by persistFile. If the file exists, its
// content is loaded. On Close the content is written back atomically.
func OpenLocalStore(factory store.DBFactory, persistFile string) (store.IStore, error) {
	s := &storeImpl{
		db:          factory(),
		persistFile: persistFile,
	}

	if err := s.load(); err != nil {
		_ = s.db.Close()
		return nil, err
	}
	s.gen = s.db.Gen()
	return s, nil
}

// load reads the persistence file if there is one
func (s *storeImpl) load() error {
	f, err := os.Open(s.persistFile)
	if errors.Is(err, fs.ErrNotExist) {
		log.Infof("no persistence file at %s, starting empty", s.persistFile)
		return nil
	}
	if err != nil {
		return store.NewError(store.RetCInternalError, fmt.Sprintf("opening %s: %v", s.persistFile, err))
	}
	defer f.Close()

	if !s.db.SupportsFeature(db.FeatureLoad) {
		return store.NewError(store.RetCUnsupportedOperation, "Load operation is not supported")
	}

	start := time.Now()
	if err := s.db.Load(bufio.NewReader(f)); err != nil {
		return store.NewError(store.RetCCorruptValue, fmt.Sprintf("loading %s: %v", s.persistFile, err))
	}
	log.Infof("loaded %s at generation %d in %s", s.persistFile, s.db.Gen(), time.Since(start))
	return nil
}

// persist writes the database to the persistence file. The file is replaced
// atomically, a crash leaves the previous content in place.
func (s *storeImpl) persist() error {
	if !s.db.SupportsFeature(db.FeatureSave) {
		return store.NewError(store.RetCUnsupportedOperation, "Save operation is not supported")
	}

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(s.db.Save(pw))
	}()

	if err := atomic.WriteFile(s.persistFile, pr); err != nil {
		// unblock the writer if WriteFile gave up early
		pr.CloseWithError(err)
		return store.NewError(store.RetCInternalError, fmt.Sprintf("writing %s: %v", s.persistFile, err))
	}
	log.Infof("saved generation %d to %s", s.db.Gen(), s.persistFile)
	return nil
}

// incAndGetGen increments the generation and returns the new value.
// It is used to ensure that each write operation has a unique generation.
//
// Thread-safety: The caller must hold s.mu.
func (s *storeImpl) incAndGetGen() int64 {
	s.gen++
	return s.gen
}

// write allocates a generation and applies op with it
func (s *storeImpl) write(feature db.Feature, name string, op func(gen int64) error) (int64, error) {
	if !s.db.SupportsFeature(feature) {
		return 0, store.NewError(store.RetCUnsupportedOperation, name+" operation is not supported")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	gen := s.incAndGetGen()
	if err := op(gen); err != nil {
		return 0, store.FromDBError(err)
	}
	return gen, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Publish(key string, value codec.Value) (int64, error) {
	return s.write(db.FeaturePublish, "Publish", func(gen int64) error {
		return s.db.Publish(key, value, gen)
	})
}

func (s *storeImpl) Delete(key string) (int64, error) {
	return s.write(db.FeatureDelete, "Delete", func(gen int64) error {
		return s.db.Delete(key, gen)
	})
}

func (s *storeImpl) Refresh(key string, value codec.Value) error {
	if !s.db.SupportsFeature(db.FeatureRefresh) {
		return store.NewError(store.RetCUnsupportedOperation, "Refresh operation is not supported")
	}
	return store.FromDBError(s.db.Refresh(key, value))
}

func (s *storeImpl) Get(key string) (codec.Value, bool, error) {
	if !s.db.SupportsFeature(db.FeatureGet) {
		return nil, false, store.NewError(store.RetCUnsupportedOperation, "Get operation is not supported")
	}
	val, ok := s.db.Get(key)
	return val, ok, nil
}

func (s *storeImpl) GetAt(key string, gen int64) (codec.Value, bool, error) {
	if !s.db.SupportsFeature(db.FeatureGetAt) {
		return nil, false, store.NewError(store.RetCUnsupportedOperation, "GetAt operation is not supported")
	}
	val, ok := s.db.GetAt(key, gen)
	return val, ok, nil
}

func (s *storeImpl) Has(key string) (bool, error) {
	if !s.db.SupportsFeature(db.FeatureHas) {
		return false, store.NewError(store.RetCUnsupportedOperation, "Has operation is not supported")
	}
	return s.db.Has(key), nil
}

func (s *storeImpl) Gen() (int64, error) {
	return s.db.Gen(), nil
}

func (s *storeImpl) Snapshot() (*store.Snapshot, error) {
	if !s.db.SupportsFeature(db.FeaturePin | db.FeatureGetAt) {
		return nil, store.NewError(store.RetCUnsupportedOperation, "Snapshot operation is not supported")
	}
	gen, release := s.db.PinCurrent()
	return store.NewSnapshot(gen, s.GetAt, func() error {
		release()
		return nil
	}), nil
}

func (s *storeImpl) GetDBInfo() (db.DatabaseInfo, error) {
	return s.db.GetInfo(), nil
}

// Close persists the store (if it was opened with a file) and closes the database.
func (s *storeImpl) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.persistFile != "" {
			s.closeErr = s.persist()
		}
		if err := s.db.Close(); err != nil && s.closeErr == nil {
			s.closeErr = store.FromDBError(err)
		}
	})
	return s.closeErr
}
