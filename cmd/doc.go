// Package cmd implements the command-line interface of snapKV.
//
// The package is organized into several subpackages:
//
//   - inspect: Loads a saved snapshot file and prints its keys and version chains
//   - perf: In-process benchmark of the lstore and dstore implementations
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// All flags can also be set with environment variables in the format SNAPKV_<flag>
// (e.g. SNAPKV_GC_INTERVAL=1s), .env and .env.local files are loaded on startup.
//
// See snapkv -help for a list of all commands.
package cmd
