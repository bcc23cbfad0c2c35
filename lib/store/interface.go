package store

import (
	"errors"
	"fmt"
	"github.com/ValentinKolb/snapKV/lib/codec"
	"github.com/ValentinKolb/snapKV/lib/db"
	"io"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// DBFactory is a function type that creates a new db used by the store.
// This is used to abstract the creation of the db from the store implementation.
type DBFactory func() db.SnapDB

// IStore is the generic interface for interacting with a multi-version key-value store.
// The store allocates the generation of every write. All errors returned by a store are
// of type *Error.
type IStore interface {
	// Publish adds a new version of key and returns its generation.
	Publish(key string, value codec.Value) (gen int64, err error)
	// Delete publishes a tombstone for key and returns its generation.
	// Deleting a key without a live version fails with RetCNotFound.
	Delete(key string) (gen int64, err error)
	// Refresh replaces the value of the newest version of key in place. Readers of every
	// snapshot that resolves to this version observe the new value.
	Refresh(key string, value codec.Value) (err error)
	// Get returns the newest value of key. The boolean return value indicates whether a value for the key was found.
	Get(key string) (value codec.Value, loaded bool, err error)
	// GetAt returns the value of key visible at generation gen. Versions below the
	// collection horizon may already be gone, use Snapshot for repeatable reads.
	GetAt(key string, gen int64) (value codec.Value, loaded bool, err error)
	// Has returns whether the newest version of key exists and is not a tombstone.
	Has(key string) (loaded bool, err error)
	// Gen returns the generation of the newest applied write.
	Gen() (gen int64, err error)
	// Snapshot pins the current generation and returns a read view at it.
	// The snapshot must be closed to allow the collection of old versions.
	Snapshot() (snapshot *Snapshot, err error)
	// GetDBInfo returns metadata about the database underlying the store.
	// It is not guaranteed that all fields are filled in or that the information is up-to-date!
	GetDBInfo() (info db.DatabaseInfo, err error)
	// Close releases the resources of the store.
	Close() (err error)
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("StoreError (code %s): %s", e.Code, e.Msg)
}

// Is makes errors.Is match errors with the same code, see the Err* sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Msg == "" && t.Code == e.Code
}

// NewError creates a new store error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// Sentinels for errors.Is, they match any *Error with the same code
var (
	ErrStaleGeneration = &Error{Code: RetCStaleGeneration}
	ErrNotFound        = &Error{Code: RetCNotFound}
	ErrCorruptValue    = &Error{Code: RetCCorruptValue}
)

// FromDBError maps an error of the db or codec layer onto a store error.
// nil stays nil and *Error values are returned unchanged.
func FromDBError(err error) error {
	if err == nil {
		return nil
	}

	var storeErr *Error
	if errors.As(err, &storeErr) {
		return storeErr
	}

	var (
		unsupportedValue *codec.UnsupportedValueTypeError
		unsupportedTag   *codec.UnsupportedTagError
		tagMismatch      *codec.TagMismatchError
	)

	switch {
	case errors.Is(err, db.ErrStaleGeneration):
		return NewError(RetCStaleGeneration, err.Error())
	case errors.Is(err, db.ErrNotFound):
		return NewError(RetCNotFound, err.Error())
	case errors.Is(err, db.ErrRefreshDisabled):
		return NewError(RetCUnsupportedOperation, err.Error())
	case errors.As(err, &unsupportedValue):
		return NewError(RetCInvalidOperation, err.Error())
	case errors.As(err, &unsupportedTag),
		errors.As(err, &tagMismatch),
		errors.Is(err, codec.ErrPayloadTooLarge),
		errors.Is(err, io.ErrUnexpectedEOF):
		return NewError(RetCCorruptValue, err.Error())
	default:
		return NewError(RetCInternalError, err.Error())
	}
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess              RetCode = iota // 0: Command executed successfully.
	RetCInternalError                       // 1: Command failed due to an internal error.
	RetCUnsupportedOperation                // 2: Operation is not supported by underlying database.
	RetCInvalidOperation                    // 3: Invalid operation.
	RetCStaleGeneration                     // 4: Write carried a generation that is not newer than the key's newest version.
	RetCCorruptValue                        // 5: Stored or transmitted data could not be decoded.
	RetCNotFound                            // 6: Key has no live version.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCUnsupportedOperation:
		return "UnsupportedOperation"
	case RetCInvalidOperation:
		return "InvalidOperation"
	case RetCStaleGeneration:
		return "StaleGeneration"
	case RetCCorruptValue:
		return "CorruptValue"
	case RetCNotFound:
		return "NotFound"
	default:
		return "Unknown"
	}
}
