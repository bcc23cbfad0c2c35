package vchain

import (
	"bufio"
	"errors"
	"fmt"
	"github.com/ValentinKolb/snapKV/lib/codec"
	"github.com/ValentinKolb/snapKV/lib/db/engines/vchain/internal"
	"github.com/ValentinKolb/snapKV/lib/db/util"
	"github.com/ValentinKolb/snapKV/lib/snap"
	"github.com/klauspost/compress/zstd"
	"io"
	"time"
)

// --------------------------------------------------------------------------
// File format
// --------------------------------------------------------------------------

/*
	header:  magic (9 bytes) | format version (1 byte) | flags (1 byte)
	body:    codec stream, zstd compressed if flagCompressed is set

	body layout:
		L current generation
		L number of chains
		per chain:
			S key
			I number of versions
			per version (newest first):
				L generation
				O 1 for tombstones, 0 otherwise
				value (any tag)
*/

const (
	magicNum      = "SNAPKVDB\x00" // File format identifier
	formatVersion = 1              // Snapshot format version

	flagCompressed byte = 1 << 0 // body is zstd compressed
)

// ErrCorruptSnapshot is returned by Load for input that is not a valid snapshot
var ErrCorruptSnapshot = errors.New("vchain: corrupt snapshot")

// --------------------------------------------------------------------------
// Persistence Operations
// --------------------------------------------------------------------------

// chainSnapshot is the newest saved version of one chain
type chainSnapshot struct {
	key  string
	head *internal.Slot
}

// Save persists the database as of the current generation. The generation is pinned
// while Save runs, writes that happen meanwhile are not part of the output.
//
// Thread-safety: This function allows concurrent operations with all other functions
// except Load.
func (v *vchainImpl) Save(w io.Writer) error {
	gen, release := v.PinCurrent()
	defer release()
	return v.SaveAt(w, gen)
}

// SaveAt persists every version visible at gen or older. Refresh of a saved version
// that happens while SaveAt runs may or may not be part of the output.
//
// Thread-safety: This function allows concurrent operations with all other functions
// except Load.
func (v *vchainImpl) SaveAt(w io.Writer, gen int64) (err error) {
	start := time.Now()
	defer func() {
		if err == nil {
			v.metrics.saveDuration.UpdateDuration(start)
		}
	}()

	var chains []chainSnapshot
	for _, shard := range v.shards {
		shard.Data.Range(func(key string, chain *internal.Chain) bool {
			if head, ok := chain.Load().At(gen); ok {
				chains = append(chains, chainSnapshot{key: key, head: head})
			}
			return true
		})
	}

	// Write header
	var flags byte
	if v.opts.Compress {
		flags |= flagCompressed
	}
	header := append([]byte(magicNum), formatVersion, flags)
	if _, err := w.Write(header); err != nil {
		return err
	}

	// Write body
	body := w
	var zw *zstd.Encoder
	if v.opts.Compress {
		if zw, err = zstd.NewWriter(w); err != nil {
			return err
		}
		body = zw
	}
	bw := bufio.NewWriterSize(body, 1024*1024) // 1 MB buffer
	enc := codec.NewEncoder(bw)

	if err := enc.WriteValue(codec.Int64(gen)); err != nil {
		return err
	}
	if err := enc.WriteValue(codec.Int64(len(chains))); err != nil {
		return err
	}
	for _, c := range chains {
		if err := writeChain(enc, c); err != nil {
			return fmt.Errorf("writing chain %q: %w", c.key, err)
		}
	}

	// Flush buffer and compressor to ensure all data is written
	if err := bw.Flush(); err != nil {
		return err
	}
	if zw != nil {
		return zw.Close()
	}
	return nil
}

// writeChain writes one chain, newest version first
func writeChain(enc *codec.Encoder, c chainSnapshot) error {
	if err := enc.WriteValue(codec.String(c.key)); err != nil {
		return err
	}
	if err := enc.WriteValue(codec.Int32(c.head.Depth())); err != nil {
		return err
	}
	for s := range c.head.Versions() {
		e := s.Value()
		var deleted codec.Byte
		if e.Deleted {
			deleted = 1
		}
		if err := enc.WriteValue(codec.Int64(s.Gen())); err != nil {
			return err
		}
		if err := enc.WriteValue(deleted); err != nil {
			return err
		}
		if err := enc.WriteValue(e.Value); err != nil {
			return err
		}
	}
	return nil
}

// Load replaces the content of the database with a snapshot written by Save.
// If the snapshot can't be read, the database keeps its previous content.
// Loading into a closed database does not restart the gc.
//
// Thread-safety: This function is not thread-safe and should not be called concurrently
func (v *vchainImpl) Load(r io.Reader) (err error) {
	start := time.Now()

	// stop gc during load
	wasRunning := v.stopGC()

	shards, gen, err := v.readSnapshot(r)
	if err != nil {
		if wasRunning {
			// the old shards lost their event queues when the gc stopped
			v.rearmShards()
			v.startGC()
		}
		return err
	}

	v.shards = shards
	v.gen.Store(gen)
	if wasRunning {
		v.startGC()
	} else {
		closeShards(shards)
	}

	v.metrics.loadDuration.UpdateDuration(start)
	log.Infof("loaded snapshot at generation %d", gen)
	return nil
}

// readSnapshot decodes a snapshot into new shards. On error the event queues of the
// new shards are closed again.
func (v *vchainImpl) readSnapshot(r io.Reader) (shards []*internal.Shard, gen int64, err error) {
	// Read and verify header
	header := make([]byte, len(magicNum)+2)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, 0, fmt.Errorf("%w: reading header: %w", ErrCorruptSnapshot, err)
	}
	if string(header[:len(magicNum)]) != magicNum {
		return nil, 0, fmt.Errorf("%w: magic number mismatch", ErrCorruptSnapshot)
	}
	if version := header[len(magicNum)]; version != formatVersion {
		return nil, 0, fmt.Errorf("unsupported version: %d (expected %d)", version, formatVersion)
	}

	body := r
	if flags := header[len(magicNum)+1]; flags&flagCompressed != 0 {
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, 0, err
		}
		defer zr.Close()
		body = zr
	}
	dec := codec.NewDecoder(bufio.NewReaderSize(body, 1024*1024)) // 1 MB buffer

	gen, err = readInt64(dec)
	if err != nil {
		return nil, 0, corrupt("generation", err)
	}
	count, err := readInt64(dec)
	if err != nil {
		return nil, 0, corrupt("chain count", err)
	}
	if count < 0 {
		return nil, 0, fmt.Errorf("%w: negative chain count %d", ErrCorruptSnapshot, count)
	}

	fresh := v.newShards()
	defer func() {
		if err != nil {
			closeShards(fresh)
		}
	}()

	for i := int64(0); i < count; i++ {
		key, head, err := readChain(dec)
		if err != nil {
			return nil, 0, corrupt(fmt.Sprintf("chain %d", i), err)
		}
		if head.Gen() > gen {
			return nil, 0, fmt.Errorf("%w: key %q has generation %d beyond snapshot generation %d",
				ErrCorruptSnapshot, key, head.Gen(), gen)
		}

		shard := util.ShardFor(util.HashString(key, v.seed), fresh)

		chain := &internal.Chain{}
		chain.Replace(nil, head)
		if _, loaded := shard.Data.LoadOrStore(key, chain); loaded {
			return nil, 0, fmt.Errorf("%w: duplicate key %q", ErrCorruptSnapshot, key)
		}

		// add chain directly to gc, we can do this here because the gc is stopped
		if next, ok := internal.NextCollectable(head); ok {
			shard.Pending.AddItem(key, next)
		}
	}

	if _, err := dec.ReadTag(); !errors.Is(err, io.EOF) {
		return nil, 0, fmt.Errorf("%w: trailing data after %d chains", ErrCorruptSnapshot, count)
	}

	return fresh, gen, nil
}

// closeShards closes the event queues of shards no gc goroutine will consume
func closeShards(shards []*internal.Shard) {
	for _, shard := range shards {
		shard.Events.Close()
	}
}

// readChain reads one chain and links it oldest first
func readChain(dec *codec.Decoder) (string, *internal.Slot, error) {
	key, ok, err := dec.ReadStringField(true)
	if err != nil {
		return "", nil, err
	}
	if !ok {
		return "", nil, errors.New("missing key")
	}
	depth, ok, err := dec.ReadInt32Field()
	if err != nil {
		return "", nil, err
	}
	if !ok || depth <= 0 {
		return "", nil, fmt.Errorf("invalid depth for key %q", key)
	}

	type version struct {
		gen   int64
		entry *internal.Entry
	}
	versions := make([]version, 0, min(int(depth), 1024))
	for j := int32(0); j < depth; j++ {
		gen, err := readInt64(dec)
		if err != nil {
			return "", nil, err
		}
		deleted, ok, err := codec.ReadExpected(dec, codec.TagByte, (*codec.Decoder).ReadByte)
		if err != nil {
			return "", nil, err
		}
		if !ok {
			return "", nil, errors.New("missing tombstone flag")
		}
		value, err := dec.ReadValue()
		if err != nil {
			return "", nil, err
		}

		entry := &internal.Entry{Value: value}
		if deleted != 0 {
			entry = internal.Tombstone
		}
		versions = append(versions, version{gen: gen, entry: entry})
	}

	var head *internal.Slot
	for j := len(versions) - 1; j >= 0; j-- {
		s, err := snap.New(versions[j].entry, versions[j].gen, head)
		if err != nil {
			return "", nil, fmt.Errorf("key %q: %w", key, err)
		}
		head = s
	}
	return key, head, nil
}

// readInt64 reads a non null L value
func readInt64(dec *codec.Decoder) (int64, error) {
	v, ok, err := dec.ReadInt64Field()
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, errors.New("unexpected null")
	}
	return v, nil
}

// corrupt wraps a decoding error of the named part
func corrupt(what string, err error) error {
	return fmt.Errorf("%w: reading %s: %w", ErrCorruptSnapshot, what, err)
}

// rearmShards gives the current shards new event queues and rebuilds their pending
// heaps, so the gc can be started again after a failed Load.
func (v *vchainImpl) rearmShards() {
	for i, shard := range v.shards {
		fresh := internal.NewShard(v.seed)
		fresh.Data = shard.Data
		shard.Data.Range(func(key string, chain *internal.Chain) bool {
			if next, ok := internal.NextCollectable(chain.Load()); ok {
				fresh.Pending.AddItem(key, next)
			}
			return true
		})
		v.shards[i] = fresh
	}
}
