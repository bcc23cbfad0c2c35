package common

import (
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	c := DefaultConfig()
	require.NoError(t, c.Validate())
	require.NoError(t, c.ValidateCluster())
	require.Equal(t, 5*time.Second, c.Timeout())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"negative shards", func(c *Config) { c.Shards = -1 }},
		{"zero gc interval", func(c *Config) { c.GCInterval = 0 }},
		{"negative retain", func(c *Config) { c.RetainGenerations = -3 }},
		{"refresh mode", func(c *Config) { c.RefreshMode = "sometimes" }},
		{"log level", func(c *Config) { c.LogLevel = "loud" }},
		{"timeout", func(c *Config) { c.TimeoutSecond = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(c)
			require.Error(t, c.Validate())
		})
	}
}

func TestValidateCluster(t *testing.T) {
	c := DefaultConfig()
	c.ReplicaID = 7
	require.ErrorContains(t, c.ValidateCluster(), "no address found")

	c.ClusterMembers[7] = "localhost:63007"
	require.NoError(t, c.ValidateCluster())
}

func TestDragonboatConfig(t *testing.T) {
	c := DefaultConfig()
	rc := c.ToDragonboatConfig(42)
	require.Equal(t, uint64(42), rc.ShardID)
	require.Equal(t, c.ReplicaID, rc.ReplicaID)
	require.NoError(t, rc.Validate())

	nh := c.ToNodeHostConfig()
	require.Equal(t, "localhost:63001", nh.RaftAddress)
	require.Equal(t, c.DataDir, nh.NodeHostDir)
}

func TestConfigString(t *testing.T) {
	s := DefaultConfig().String()
	for _, section := range []string{"ENGINE", "PERSISTENCE", "LOGGING", "RAFT PARAMETERS", "CLUSTER"} {
		require.Contains(t, s, section)
	}
	require.Contains(t, s, "(disabled)")
}
