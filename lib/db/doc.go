// Package db provides a standardized interface for multi-version key-value databases.
// It defines the SnapDB interface that lets snapKV stores publish versions of keys and
// serve point-in-time reads while abstracting the implementation details.
//
// The package focuses on:
//   - A unified interface for versioned key-value operations
//   - Feature discovery through capability flags
//   - Standardized persistence operations
//   - Metadata reporting
//
// Key Components:
//
//   - SnapDB Interface: The core interface that all database implementations must satisfy.
//     It provides write operations (Publish, Delete, Refresh), newest and point-in-time
//     reads (Get, GetAt, Has, Depth), reader registration (Pin) and persistence (Save, Load).
//
//   - Feature Flags: The Feature type defines capability flags that implementations
//     can advertise through the SupportsFeature method.
//
//   - Implementation Identifiers: The Implementation type provides string constants
//     for the database backends (currently "vchain").
//
//   - Database Information: The DatabaseInfo structure reports the database state,
//     including size statistics, implementation type, and implementation-specific
//     metadata. Most size statistics are estimated.
//
// Note on Generations:
//   - Generations are chosen by the caller (the store). Every write names the generation
//     it belongs to and must be newer than the newest version of the written key.
//   - Readers that need a stable view pick a generation, Pin it, read with GetAt and
//     release the pin afterwards. Versions older than every pinned generation may be
//     collected, so an unpinned GetAt far in the past may miss.
//   - Values are codec values (see package codec), which is also the format used for
//     persistence.
package db
