// Package common provides the configuration and logging shared by the snapKV stores
// and the command line tool.
//
// Key Components:
//
//   - Config: all tuning parameters of a store, the vchain engine (shards, garbage
//     collection, refresh policy, persistence) and the RAFT replica used by dstore.
//     Provides helpers for converting to Dragonboat configurations.
//
//   - Logger: a logging implementation of Dragonboat's logger.ILogger, installed as
//     the global logger factory so that snapKV packages and Dragonboat share one
//     format and one level.
package common
