package config

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// BindFlags registers every Config knob as a persistent flag on cmd and
// binds each one into v, so Load can later resolve values with
// flag > environment > config-file > default precedence, covering the
// fuller knob set a multi-node deployment needs.
func BindFlags(cmd *cobra.Command, v *viper.Viper) {
	d := Default()
	flags := cmd.PersistentFlags()

	flags.String("node-id", d.NodeID, "Unique node identifier")
	flags.String("http-addr", d.HTTPAddr, "HTTP listen address (host:port)")
	flags.String("peers", "", "Comma-separated list of peer nodes: id=host:port")
	flags.String("auth-token", d.AuthToken, "Bearer token required on the Client API (empty disables auth)")
	flags.String("log-file", d.LogFile, "Path to a rotated log file (empty logs to stderr)")

	flags.String("wal-dir", d.WALDir, "Directory for the write-ahead log")
	flags.String("snapshot-dir", d.SnapshotDir, "Directory for periodic snapshots")
	flags.Duration("dedupe-ttl", d.DedupeTTL, "Op-id dedupe window")
	flags.Int64("wal-rotate-bytes", d.WALRotateBytes, "WAL segment rotation threshold in bytes")
	flags.Int("snapshot-every-ops", d.SnapshotEveryOp, "Snapshot after this many applied writes (0 disables)")

	flags.Int("vnodes-per-node", d.VnodesPerNode, "Virtual nodes per physical node on the hash ring")
	flags.Int("replication-factor", d.ReplicationFactor, "Replication factor N")
	flags.Int("read-quorum", d.ReadQuorum, "Read quorum R")
	flags.Int("write-quorum", d.WriteQuorum, "Write quorum W")

	flags.Int("merkle-leaf-count", d.MerkleLeafCount, "Merkle tree leaf count (power of two)")
	flags.Duration("gossip-interval", d.GossipInterval, "Anti-entropy daemon tick interval")
	flags.Int("repair-rate-capacity", d.RepairRate.Capacity, "Repair rate limiter token-bucket capacity")
	flags.Float64("repair-rate-refill-per-second", d.RepairRate.RefillPerSecond, "Repair rate limiter refill rate")
	flags.String("anti-entropy-mode", string(d.AntiEntropyMode), `Repair scheduling mode: "fifo" or "raae"`)

	flags.String("config", "", "Path to a config file (yaml/json/toml)")

	_ = v.BindPFlags(flags)
}

// Load resolves a Config from v after cobra has parsed flags: environment
// variables are read under the KVSTORE_ prefix (dashes become
// underscores, e.g. --replication-factor binds to KVSTORE_REPLICATION_FACTOR),
// an optional config file is merged in if --config points at one, and
// flags take precedence over both.
func Load(v *viper.Viper) (Config, error) {
	v.SetEnvPrefix("kvstore")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read config file: %w", err)
		}
	}

	peers, err := ParsePeers(v.GetString("peers"))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		NodeID:    v.GetString("node-id"),
		HTTPAddr:  v.GetString("http-addr"),
		Peers:     peers,
		AuthToken: v.GetString("auth-token"),
		LogFile:   v.GetString("log-file"),

		WALDir:          v.GetString("wal-dir"),
		SnapshotDir:     v.GetString("snapshot-dir"),
		DedupeTTL:       v.GetDuration("dedupe-ttl"),
		WALRotateBytes:  v.GetInt64("wal-rotate-bytes"),
		SnapshotEveryOp: v.GetInt("snapshot-every-ops"),

		VnodesPerNode:     v.GetInt("vnodes-per-node"),
		ReplicationFactor: v.GetInt("replication-factor"),
		ReadQuorum:        v.GetInt("read-quorum"),
		WriteQuorum:       v.GetInt("write-quorum"),

		MerkleLeafCount: v.GetInt("merkle-leaf-count"),
		GossipInterval:  v.GetDuration("gossip-interval"),
		RepairRate: RepairRate{
			Capacity:        v.GetInt("repair-rate-capacity"),
			RefillPerSecond: v.GetFloat64("repair-rate-refill-per-second"),
		},
		AntiEntropyMode: AntiEntropyMode(v.GetString("anti-entropy-mode")),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
