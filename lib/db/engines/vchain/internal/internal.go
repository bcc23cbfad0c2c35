package internal

import (
	"fmt"
	"github.com/ValentinKolb/snapKV/lib/codec"
	"github.com/ValentinKolb/snapKV/lib/db/util"
	"github.com/ValentinKolb/snapKV/lib/snap"
	"github.com/puzpuzpuz/xsync/v3"
	"sync/atomic"
)

// --------------------------------------------------------------------------
// Entry Type (one version of a key)
// --------------------------------------------------------------------------

// Entry is the value stored in a version slot
type Entry struct {
	Value   codec.Value // the published value (codec.Null{} for tombstones)
	Deleted bool        // true if this version is a tombstone
}

// Tombstone is the shared entry of every delete version
var Tombstone = &Entry{Value: codec.Null{}, Deleted: true}

// Chain is the head of the version chain of one key
type Chain = snap.Head[Entry]

// Slot is one version in a chain
type Slot = snap.Slot[Entry]

// --------------------------------------------------------------------------
// Event Types are used to signal chains that may become collectable
// --------------------------------------------------------------------------

type EventType int

const (
	EventTPublish EventType = iota // a version was prepended to a chain with older versions
	EventTDelete                   // a tombstone was published
)

func (e EventType) String() string {
	switch e {
	case EventTPublish:
		return "Publish"
	case EventTDelete:
		return "Delete"
	default:
		return "Unknown"
	}
}

type Event struct {
	Type EventType
	Key  string
	Gen  int64 // generation of the version that caused the event
}

func (e Event) String() string {
	return fmt.Sprintf("Event{Type: %s, Key: %q, Gen: %d}", e.Type, e.Key, e.Gen)
}

// --------------------------------------------------------------------------
// Shard Type (partition of the database)
// --------------------------------------------------------------------------

// Shard represents a partition of the database.
// Writers of a key serialize on the bucket of Data via Compute, readers only load the
// chain head and walk it.
type Shard struct {
	Data    *xsync.MapOf[string, *Chain] // chains by key
	Pending *util.MapHeap[string]        // chains waiting for the gc horizon, owned by the gc goroutine
	Events  *util.LockFreeMPSC[Event]    // closed to stop the gc of this shard

	PendingLen atomic.Int64 // size of Pending after the last gc cycle
}

// NewShard creates a new shard whose map hashes keys with seed
func NewShard(seed uint64) *Shard {
	return &Shard{
		Data:    xsync.NewMapOfWithHasher[string, *Chain](util.StringHasher(seed)),
		Pending: util.NewMapHeap[string](),
		Events:  util.NewLockFreeMPSC[Event](),
	}
}

// --------------------------------------------------------------------------
// Chain helpers
// --------------------------------------------------------------------------

// Compact returns a copy of the chain starting at head that keeps every version a read
// at horizon or later can resolve to. The oldest kept version is dropped too if it is a
// tombstone, in that case the result may be nil (the key can be removed).
// changed is false if nothing can be dropped, the caller should then keep head.
func Compact(head *Slot, horizon int64) (compacted *Slot, dropped int, changed bool) {
	if head == nil {
		return nil, 0, false
	}

	var kept []*Slot
	for s := range head.Versions() {
		kept = append(kept, s)
		if s.Gen() <= horizon {
			break
		}
	}

	total := head.Depth()
	floor := kept[len(kept)-1]
	if floor.Gen() <= horizon && floor.Value().Deleted {
		kept = kept[:len(kept)-1]
	}
	if len(kept) == total {
		return head, 0, false
	}

	// rebuild oldest first, entries are shared with the old chain
	var next *Slot
	for i := len(kept) - 1; i >= 0; i-- {
		s, err := snap.New(kept[i].Value(), kept[i].Gen(), next)
		if err != nil {
			// kept is a strictly ordered prefix of a valid chain
			panic(fmt.Sprintf("compacting chain: %v", err))
		}
		next = s
	}
	return next, total - len(kept), true
}

// NextCollectable returns the lowest horizon at which Compact would drop a version of
// the chain starting at head. ok is false for chains that can never shrink (a single
// live version).
func NextCollectable(head *Slot) (horizon int64, ok bool) {
	var prev, tail *Slot
	for s := range head.Versions() {
		prev, tail = tail, s
	}
	switch {
	case tail == nil:
		return 0, false
	case tail.Value().Deleted:
		return tail.Gen(), true
	case prev != nil:
		return prev.Gen(), true
	default:
		return 0, false
	}
}
