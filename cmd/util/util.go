package util

import (
	"fmt"
	"github.com/ValentinKolb/snapKV/lib/common"
	"github.com/ValentinKolb/snapKV/lib/db"
	"github.com/ValentinKolb/snapKV/lib/db/engines/vchain"
	"github.com/ValentinKolb/snapKV/lib/db/util"
	"github.com/ValentinKolb/snapKV/lib/store"
	"github.com/ValentinKolb/snapKV/lib/store/dstore"
	"github.com/ValentinKolb/snapKV/lib/store/lstore"
	"github.com/joho/godotenv"
	"github.com/lni/dragonboat/v4"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"strconv"
	"strings"
	"time"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		// Add the word
		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	// Add any remaining text
	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// --------------------------------------------------------------------------
// Configuration
// --------------------------------------------------------------------------

// InitConfig loads .env files and makes viper read SNAPKV_* environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("snapkv")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// SetupEngineFlags adds the flags of the vchain engine to a command
func SetupEngineFlags(cmd *cobra.Command) {
	def := common.DefaultConfig()

	key := "engine-shards"
	cmd.PersistentFlags().Int(key, def.Shards, WrapString("Number of engine shards (0 = number of CPUs)"))

	key = "gc-interval"
	cmd.PersistentFlags().Duration(key, def.GCInterval, WrapString("Time between two runs of the version collector of a shard"))

	key = "retain-generations"
	cmd.PersistentFlags().Int64(key, def.RetainGenerations, WrapString("Number of generations kept below the oldest pinned reader"))

	key = "refresh-mode"
	cmd.PersistentFlags().String(key, def.RefreshMode, WrapString("How Refresh behaves (in-place, disabled)"))

	key = "compress"
	cmd.PersistentFlags().Bool(key, def.Compress, WrapString("Compress saved snapshots with zstd"))
}

// SetupStoreFlags adds the flags needed to open a store to a command
func SetupStoreFlags(cmd *cobra.Command) {
	SetupEngineFlags(cmd)
	def := common.DefaultConfig()

	key := "persist-file"
	cmd.PersistentFlags().String(key, "", WrapString("(lstore) File the store is loaded from and saved to on exit"))

	key = "shard"
	cmd.PersistentFlags().Uint64(key, def.ShardID, WrapString("(dstore) ID of the RAFT shard"))

	key = "rtt-millisecond"
	cmd.PersistentFlags().Uint64(key, def.RTTMillisecond, WrapString("(dstore) Average Round Trip Time (RTT) in milliseconds between two NodeHost instances. ElectionRTT and HeartbeatRTT are derived from this value"))

	key = "snapshot-entries"
	cmd.PersistentFlags().Uint64(key, def.SnapshotEntries, WrapString("(dstore) Number of applied RAFT log entries between two automatic snapshots (0 = disabled)"))

	key = "compaction-overhead"
	cmd.PersistentFlags().Uint64(key, def.CompactionOverhead, WrapString("(dstore) Number of log entries kept after a snapshot"))

	key = "data-dir"
	cmd.PersistentFlags().String(key, def.DataDir, WrapString("(dstore) Directory used for the RAFT log and snapshots"))

	key = "replica-id"
	cmd.PersistentFlags().String(key, "node-1", WrapString("(dstore) Unique name of this NodeHost instance (e.g. 'node-1')"))

	key = "cluster-members"
	cmd.PersistentFlags().String(key, "node-1=localhost:63001", WrapString("(dstore) Comma-separated list of NodeHost addresses in the format 'node-1=localhost:63001,node-2=localhost:63002,...'"))

	key = "timeout"
	cmd.PersistentFlags().Int64(key, def.TimeoutSecond, WrapString("Timeout of store operations in seconds"))
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// GetConfig reads the configuration from viper. Keys without a flag keep their default.
func GetConfig() (*common.Config, error) {
	conf := common.DefaultConfig()

	if viper.IsSet("engine-shards") {
		conf.Shards = viper.GetInt("engine-shards")
	}
	if viper.IsSet("gc-interval") {
		conf.GCInterval = viper.GetDuration("gc-interval")
	}
	if viper.IsSet("retain-generations") {
		conf.RetainGenerations = viper.GetInt64("retain-generations")
	}
	if viper.IsSet("refresh-mode") {
		conf.RefreshMode = viper.GetString("refresh-mode")
	}
	conf.Compress = viper.GetBool("compress")
	conf.PersistFile = viper.GetString("persist-file")
	if viper.IsSet("shard") {
		conf.ShardID = viper.GetUint64("shard")
	}
	if viper.IsSet("rtt-millisecond") {
		conf.RTTMillisecond = viper.GetUint64("rtt-millisecond")
	}
	if viper.IsSet("snapshot-entries") {
		conf.SnapshotEntries = viper.GetUint64("snapshot-entries")
	}
	if viper.IsSet("compaction-overhead") {
		conf.CompactionOverhead = viper.GetUint64("compaction-overhead")
	}
	if viper.IsSet("data-dir") {
		conf.DataDir = viper.GetString("data-dir")
	}
	if viper.IsSet("timeout") {
		conf.TimeoutSecond = viper.GetInt64("timeout")
	}
	if viper.IsSet("log-level") {
		conf.LogLevel = viper.GetString("log-level")
	}

	// parse replica id and cluster members, names are hashed to numeric ids
	if id := viper.GetString("replica-id"); id != "" {
		conf.ReplicaID = ReplicaID(id)
	}
	if members := viper.GetString("cluster-members"); members != "" {
		parsed, err := ParseClusterMembers(members)
		if err != nil {
			return nil, err
		}
		conf.ClusterMembers = parsed
	}

	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// ReplicaID converts a replica name to a numeric id. Numeric names are used as they are.
func ReplicaID(name string) uint64 {
	if id, err := strconv.ParseUint(name, 10, 64); err == nil && id != 0 {
		return id
	}
	return uint64(util.HashString(name, 0))
}

// ParseClusterMembers parses 'name=address,...' into a map of replica ids to addresses
func ParseClusterMembers(s string) (map[uint64]string, error) {
	members := make(map[uint64]string)
	for _, member := range strings.Split(s, ",") {
		parts := strings.Split(strings.TrimSpace(member), "=")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid cluster member format: %s (expected ID=address)", member)
		}
		id := ReplicaID(parts[0])
		if _, ok := members[id]; ok {
			return nil, fmt.Errorf("duplicate cluster member: %s", parts[0])
		}
		members[id] = parts[1]
	}
	return members, nil
}

// --------------------------------------------------------------------------
// Stores
// --------------------------------------------------------------------------

// DBFactory returns a factory creating vchain databases for conf
func DBFactory(conf *common.Config) (store.DBFactory, error) {
	opts, err := vchain.OptionsFromConfig(conf)
	if err != nil {
		return nil, err
	}
	return func() db.SnapDB { return vchain.NewVChainDB(opts) }, nil
}

// OpenStore opens a store of the given type ("lstore" or "dstore"). The returned
// function closes the store and everything started for it.
func OpenStore(conf *common.Config, storeType string) (store.IStore, func() error, error) {
	factory, err := DBFactory(conf)
	if err != nil {
		return nil, nil, err
	}

	switch storeType {
	case "lstore":
		var s store.IStore
		if conf.PersistFile != "" {
			s, err = lstore.OpenLocalStore(factory, conf.PersistFile)
			if err != nil {
				return nil, nil, err
			}
		} else {
			s = lstore.NewLocalStore(factory)
		}
		return s, s.Close, nil
	case "dstore":
		return openDistributedStore(conf, factory)
	default:
		return nil, nil, fmt.Errorf("invalid store type %s (expected one of: lstore, dstore)", storeType)
	}
}

// openDistributedStore starts a NodeHost with one replica of conf.ShardID and waits
// until the shard has a leader
func openDistributedStore(conf *common.Config, factory store.DBFactory) (store.IStore, func() error, error) {
	if err := conf.ValidateCluster(); err != nil {
		return nil, nil, err
	}

	nh, err := dragonboat.NewNodeHost(conf.ToNodeHostConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create NodeHost: %w", err)
	}

	err = nh.StartConcurrentReplica(conf.ClusterMembers, false, dstore.CreateStateMachineFactory(factory), conf.ToDragonboatConfig(conf.ShardID))
	if err != nil {
		nh.Close()
		return nil, nil, fmt.Errorf("failed to start replica of shard %d: %w", conf.ShardID, err)
	}

	// wait for the shard to be ready
	deadline := time.Now().Add(conf.Timeout())
	for {
		if _, _, ok, err := nh.GetLeaderID(conf.ShardID); err == nil && ok {
			break
		}
		if time.Now().After(deadline) {
			nh.Close()
			return nil, nil, fmt.Errorf("shard %d has no leader after %s", conf.ShardID, conf.Timeout())
		}
		time.Sleep(10 * time.Millisecond)
	}

	s := dstore.NewDistributedStore(nh, conf.ShardID, conf.Timeout())
	closeFn := func() error {
		err := s.Close()
		nh.Close()
		return err
	}
	return s, closeFn, nil
}
