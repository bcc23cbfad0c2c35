// Package testing provides standardised tests and benchmarks for
// database implementations that satisfy the db.SnapDB interface.
//
// The package contains:
//   - testing: A test suite for validating conformance to the SnapDB interface contract
//     (generation ordering, point in time reads, tombstones, pins and persistence)
//   - benchmark: Performance tests for measuring throughput of common database operations
//
// Tests for optional features are skipped if the implementation does not report them
// with SupportsFeature.
//
// Example usage:
//
//	// Creating a factory function for your implementation
//	factory := func() db.SnapDB {
//		return NewMyDatabase()
//	}
//
//	// Running the standard test suite
//	dbtesting.RunSnapDBTests(t, "MyDatabase", factory)
//
//	// Running performance benchmarks
//	dbtesting.RunSnapDBBenchmarks(b, "MyDatabase", factory)
package testing
