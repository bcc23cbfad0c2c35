package db

import (
	"errors"
	"github.com/ValentinKolb/snapKV/lib/codec"
	"io"
)

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplVChain Implementation = "vchain"
)

// Feature represents database features as bit flags
type Feature uint64

const (
	FeaturePublish        Feature = 1 << iota // Support for Publish operations
	FeatureDelete                             // Support for Delete operations (tombstone versions)
	FeatureRefresh                            // Support for in-place Refresh operations
	FeatureGet                                // Support for Get operations
	FeatureGetAt                              // Support for point-in-time GetAt operations
	FeatureHas                                // Support for Has operations
	FeaturePin                                // Support for pinning reader generations
	FeatureSave                               // Support for Save operations
	FeatureLoad                               // Support for Load operations
	FeatureGarbageCollect                     // Support for collecting versions no reader can see
)

func (f Feature) String() string {
	switch f {
	case FeaturePublish:
		return "Publish"
	case FeatureDelete:
		return "Delete"
	case FeatureRefresh:
		return "Refresh"
	case FeatureGet:
		return "Get"
	case FeatureGetAt:
		return "GetAt"
	case FeatureHas:
		return "Has"
	case FeaturePin:
		return "Pin"
	case FeatureSave:
		return "Save"
	case FeatureLoad:
		return "Load"
	case FeatureGarbageCollect:
		return "GarbageCollect"
	default:
		return "Unknown"
	}
}

type DatabaseInfo struct {
	SizeBytes         int            `json:"size_bytes"`
	DbType            Implementation `json:"db_type"`
	SupportedFeatures []Feature      `json:"supported_features"`
	Metadata          interface{}    `json:"metadata"`
}

// --------------------------------------------------------------------------
// Errors
// --------------------------------------------------------------------------

var (
	// ErrStaleGeneration is returned when a write carries a generation that is not newer
	// than the newest version of the key.
	ErrStaleGeneration = errors.New("db: stale generation")

	// ErrNotFound is returned by operations on keys without a visible version.
	ErrNotFound = errors.New("db: key not found")

	// ErrRefreshDisabled is returned by Refresh when in-place refresh is switched off.
	ErrRefreshDisabled = errors.New("db: in-place refresh is disabled")
)

// --------------------------------------------------------------------------
// Database Interface
// --------------------------------------------------------------------------

// SnapDB defines an interface for multi-version key-value databases.
// Every write publishes a new version of a key at a generation chosen by the caller.
// Readers either read the newest version or the version visible at a given generation.
// Implementations can vary in their feature support, which can be queried with SupportsFeature.
type SnapDB interface {

	// --------------------------------------------------------------------------
	// Write Operations
	// --------------------------------------------------------------------------

	// Publish adds a new version of key with the given value at generation gen.
	// gen must be greater than the generation of the newest version of key, otherwise
	// the write fails with ErrStaleGeneration and nothing changes.
	// Value must be a codec value, use codec.Null{} to store an explicit absent value.
	Publish(key string, value codec.Value, gen int64) (err error)

	// Delete publishes a tombstone version of key at generation gen. Readers at gen or
	// later no longer find the key, readers at earlier generations still do.
	// Deleting a key without versions fails with ErrNotFound.
	Delete(key string, gen int64) (err error)

	// Refresh replaces the value of the newest version of key in place, without a new
	// generation. All readers resolving to that version observe the new value, this
	// breaks snapshot isolation for the substitution.
	// Returns ErrRefreshDisabled if the database does not allow it and ErrNotFound if
	// the newest version is missing or a tombstone.
	Refresh(key string, value codec.Value) (err error)

	// --------------------------------------------------------------------------
	// Query Operations
	// --------------------------------------------------------------------------

	// Get retrieves the newest value of key.
	// The boolean return value indicates whether a value for the key was found.
	Get(key string) (value codec.Value, loaded bool)

	// GetAt retrieves the value of key visible at generation gen, that is the newest
	// version published at or before gen.
	GetAt(key string, gen int64) (value codec.Value, loaded bool)

	// Has checks whether the newest version of key exists and is not a tombstone.
	Has(key string) (loaded bool)

	// Depth returns the number of versions currently kept for key (tombstones included).
	Depth(key string) (depth int)

	// --------------------------------------------------------------------------
	// Snapshot Operations
	// --------------------------------------------------------------------------

	// Pin registers a reader at generation gen. Until release is called the database
	// keeps every version a GetAt at gen may return. release is idempotent.
	Pin(gen int64) (release func())

	// PinCurrent pins the current generation and returns it. Unlike Gen followed by
	// Pin, no collection can run between reading the generation and pinning it.
	PinCurrent() (gen int64, release func())

	// --------------------------------------------------------------------------
	// Persistence Operations
	// --------------------------------------------------------------------------

	// Save persists the current state of the database to the provided io.Writer.
	// The output is a consistent cut at the current generation.
	Save(w io.Writer) (err error)

	// SaveAt persists the state visible at generation gen, versions published later are
	// left out. The caller keeps gen pinned while SaveAt runs.
	SaveAt(w io.Writer, gen int64) (err error)

	// Load restores the database state data provided by an io.Reader.
	Load(r io.Reader) (err error)

	// --------------------------------------------------------------------------
	// Feature Support
	// --------------------------------------------------------------------------

	// SupportsFeature checks if the database implementation supports the specified feature.
	// Multiple features can be checked at once using bitwise OR (|) operator.
	SupportsFeature(feature Feature) (ok bool)

	// GetInfo returns information about the database.
	GetInfo() (info DatabaseInfo)

	// --------------------------------------------------------------------------
	// Generation Operations
	// --------------------------------------------------------------------------

	// SetGen advances the current generation of the database. Lower values are ignored.
	SetGen(gen int64)

	// Gen returns the current generation of the database, the highest generation seen.
	Gen() (gen int64)

	// Close stops background work of the database.
	Close() (err error)
}
