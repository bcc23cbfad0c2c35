package internal

import "github.com/ValentinKolb/snapKV/lib/codec"

// QueryType defines the possible queries for the state machine.
type QueryType uint8

const (
	QueryTGet       QueryType = iota // Retrieve the newest value of a key.
	QueryTGetAt                      // Retrieve the value of a key at a generation.
	QueryTHas                        // Check if the newest version of a key is live.
	QueryTGen                        // Retrieve the generation of the replica.
	QueryTPin                        // Pin the current generation of the replica.
	QueryTUnpin                      // Release a pin created with QueryTPin.
	QueryTGetDBInfo                  // Retrieve metadata about the database underlying the machine.
)

func (q QueryType) String() string {
	switch q {
	case QueryTGet:
		return "Get"
	case QueryTGetAt:
		return "GetAt"
	case QueryTHas:
		return "Has"
	case QueryTGen:
		return "Gen"
	case QueryTPin:
		return "Pin"
	case QueryTUnpin:
		return "Unpin"
	case QueryTGetDBInfo:
		return "GetDBInfo"
	default:
		return "Unknown"
	}
}

// Query defines the structure for lookup requests sent via SyncRead or StaleRead.
// Queries run on the local replica and are never serialized.
type Query struct {
	Type  QueryType // The type of Query to perform.
	Key   string    // The key for the Query (empty for some queries).
	Gen   int64     // The generation for QueryTGetAt.
	PinID uint64    // The pin for QueryTUnpin.
}

// QueryResult is the result of QueryTGet and QueryTGetAt.
// All other query results are primitive types or predefined structs (bool, int64, PinResult, db.DatabaseInfo).
type QueryResult struct {
	Ok    bool
	Value codec.Value
}

// PinResult is the result of QueryTPin. Pins are local to the replica that created them.
type PinResult struct {
	ID  uint64
	Gen int64
}
