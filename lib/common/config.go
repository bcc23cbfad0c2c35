package common

import (
	"fmt"
	"github.com/lni/dragonboat/v4/config"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// helper functions to interface with Dragonboat
// --------------------------------------------------------------------------

// Dragonboat uses RTT (Round Trip Time) to determine the timing of elections and heartbeats.
// These default values are selected according to the RAFT Paper
const (
	electionRTTFactor  = 10
	heartbeatRTTFactor = 1
)

// ToDragonboatConfig converts the Config to a Dragonboat Config for the replica of shard shardID
func (c *Config) ToDragonboatConfig(shardID uint64) config.Config {
	return config.Config{
		ReplicaID:          c.ReplicaID,
		ShardID:            shardID,
		ElectionRTT:        electionRTTFactor,
		HeartbeatRTT:       heartbeatRTTFactor,
		CheckQuorum:        true,
		SnapshotEntries:    c.SnapshotEntries,
		CompactionOverhead: c.CompactionOverhead,
		MaxInMemLogSize:    0,
	}
}

// ToNodeHostConfig creates a NodeHostConfig for Dragonboat
func (c *Config) ToNodeHostConfig() config.NodeHostConfig {
	return config.NodeHostConfig{
		WALDir:         c.DataDir,
		NodeHostDir:    c.DataDir,
		RTTMillisecond: c.RTTMillisecond,
		RaftAddress:    c.ClusterMembers[c.ReplicaID],
	}
}

// --------------------------------------------------------------------------
// Configuration struct
// --------------------------------------------------------------------------

// Config holds all configuration parameters of a snapKV store.
type Config struct {
	// vchain engine parameters
	Shards            int           // number of engine shards (0 = number of CPUs)
	GCInterval        time.Duration // time between collector runs
	RetainGenerations int64         // generations kept below the oldest live reader
	RefreshMode       string        // "in-place" or "disabled"

	// local store persistence
	PersistFile string // file the store is loaded from and saved to ("" = no persistence)
	Compress    bool   // compress persisted snapshots with zstd

	// Dragonboat parameters
	ShardID            uint64
	RTTMillisecond     uint64
	SnapshotEntries    uint64
	CompactionOverhead uint64
	DataDir            string
	ReplicaID          uint64
	ClusterMembers     map[uint64]string
	TimeoutSecond      int64

	// Logging configuration
	LogLevel string
}

// DefaultConfig returns a configuration with sensible defaults for a single process
func DefaultConfig() *Config {
	return &Config{
		Shards:             runtime.NumCPU(),
		GCInterval:         100 * time.Millisecond,
		RetainGenerations:  0,
		RefreshMode:        "in-place",
		ShardID:            100,
		RTTMillisecond:     100,
		SnapshotEntries:    1000,
		CompactionOverhead: 500,
		DataDir:            "data",
		ReplicaID:          1,
		ClusterMembers:     map[uint64]string{1: "localhost:63001"},
		TimeoutSecond:      5,
		LogLevel:           "info",
	}
}

// Validate checks the configuration for values no store can work with
func (c *Config) Validate() error {
	if c.Shards < 0 {
		return fmt.Errorf("shards must not be negative, got %d", c.Shards)
	}
	if c.GCInterval <= 0 {
		return fmt.Errorf("gc interval must be positive, got %s", c.GCInterval)
	}
	if c.RetainGenerations < 0 {
		return fmt.Errorf("retain generations must not be negative, got %d", c.RetainGenerations)
	}
	switch c.RefreshMode {
	case "in-place", "disabled":
	default:
		return fmt.Errorf("invalid refresh mode: %s (expected one of: in-place, disabled)", c.RefreshMode)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	if c.TimeoutSecond <= 0 {
		return fmt.Errorf("timeout must be positive, got %d", c.TimeoutSecond)
	}
	return nil
}

// ValidateCluster additionally checks the RAFT settings needed by dstore
func (c *Config) ValidateCluster() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.ReplicaID == 0 {
		return fmt.Errorf("replica id is required for a replicated store")
	}
	if _, ok := c.ClusterMembers[c.ReplicaID]; !ok {
		return fmt.Errorf("no address found for replica ID %d in cluster members", c.ReplicaID)
	}
	if c.RTTMillisecond == 0 {
		return fmt.Errorf("rtt must be positive")
	}
	return nil
}

// Timeout returns TimeoutSecond as a duration
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecond) * time.Second
}

// String returns a formatted string representation of the configuration
func (c *Config) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Engine")
	addField("Shards", strconv.Itoa(c.Shards))
	addField("GC Interval", c.GCInterval.String())
	addField("Retain Generations", strconv.FormatInt(c.RetainGenerations, 10))
	addField("Refresh Mode", c.RefreshMode)

	addSection("Persistence")
	if c.PersistFile == "" {
		addField("File", "(disabled)")
	} else {
		addField("File", c.PersistFile)
	}
	addField("Compress", strconv.FormatBool(c.Compress))

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	addSection("RAFT Parameters")
	addField("Shard ID", strconv.FormatUint(c.ShardID, 10))
	addField("Node ID", strconv.FormatUint(c.ReplicaID, 10))
	addField("Round Trip Time (ms)", fmt.Sprintf("%d ms", c.RTTMillisecond))
	addField("Election RTT (ms)", fmt.Sprintf("%d", c.RTTMillisecond*electionRTTFactor))
	addField("Heartbeat RTT (ms)", fmt.Sprintf("%d", c.RTTMillisecond*heartbeatRTTFactor))
	addField("Snapshot Entries", fmt.Sprintf("%d", c.SnapshotEntries))
	addField("Compaction Overhead", fmt.Sprintf("%d", c.CompactionOverhead))
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Data Directory", c.DataDir)

	addSection("Cluster")
	var keys []uint64
	for k := range c.ClusterMembers {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for _, k := range keys {
		sb.WriteString(fmt.Sprintf("    Node %d: %s\n", k, c.ClusterMembers[k]))
	}

	return sb.String()
}
