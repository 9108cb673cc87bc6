// Package config binds the node's configuration surface through
// github.com/spf13/viper (file + environment + flag precedence) with
// github.com/spf13/cobra supplying the flags, covering the full set of
// knobs the node's replication, anti-entropy, and repair layers need.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Peer is one other node in the static cluster membership list.
type Peer struct {
	ID      string
	Address string
}

// AntiEntropyMode selects the repair scheduler's operation mode.
type AntiEntropyMode string

const (
	ModeFIFO AntiEntropyMode = "fifo"
	ModeRAAE AntiEntropyMode = "raae"
)

// RepairRate is the repair scheduler's global token-bucket policy.
type RepairRate struct {
	Capacity        int
	RefillPerSecond float64
}

// Config is the complete set of knobs a node is started with.
type Config struct {
	NodeID    string
	HTTPAddr  string
	Peers     []Peer
	AuthToken string // empty disables the Client API's bearer-token check
	LogFile   string // empty logs to stderr instead of a rotated file

	WALDir          string
	SnapshotDir     string
	DedupeTTL       time.Duration
	WALRotateBytes  int64
	SnapshotEveryOp int

	VnodesPerNode     int
	ReplicationFactor int
	ReadQuorum        int
	WriteQuorum       int

	MerkleLeafCount int
	GossipInterval  time.Duration
	RepairRate      RepairRate
	AntiEntropyMode AntiEntropyMode
}

// Default returns a Config with sensible single-node defaults
// (N=3, W=2, R=2, :8080, /tmp/kvstore).
func Default() Config {
	return Config{
		NodeID:   "node1",
		HTTPAddr: ":8080",

		WALDir:          "/tmp/kvstore/wal",
		SnapshotDir:     "/tmp/kvstore/snapshots",
		DedupeTTL:       5 * time.Minute,
		WALRotateBytes:  64 * 1024 * 1024,
		SnapshotEveryOp: 10000,

		VnodesPerNode:     150,
		ReplicationFactor: 3,
		ReadQuorum:        2,
		WriteQuorum:       2,

		MerkleLeafCount: 1024,
		GossipInterval:  30 * time.Second,
		RepairRate: RepairRate{
			Capacity:        1000,
			RefillPerSecond: 100,
		},
		AntiEntropyMode: ModeFIFO,
	}
}

// Validate checks the quorum invariant (W+R must exceed N for strong
// consistency) plus the structural constraints the rest of the
// configuration depends on.
func (c Config) Validate() error {
	if c.NodeID == "" {
		return fmt.Errorf("config: nodeId must not be empty")
	}
	if c.ReplicationFactor <= 0 {
		return fmt.Errorf("config: replicationFactor must be positive")
	}
	if c.WriteQuorum <= 0 || c.WriteQuorum > c.ReplicationFactor {
		return fmt.Errorf("config: writeQuorum must be in (0, replicationFactor]")
	}
	if c.ReadQuorum <= 0 || c.ReadQuorum > c.ReplicationFactor {
		return fmt.Errorf("config: readQuorum must be in (0, replicationFactor]")
	}
	if c.WriteQuorum+c.ReadQuorum <= c.ReplicationFactor {
		return fmt.Errorf("config: writeQuorum(%d) + readQuorum(%d) must exceed replicationFactor(%d) for strong consistency",
			c.WriteQuorum, c.ReadQuorum, c.ReplicationFactor)
	}
	if c.MerkleLeafCount <= 0 || c.MerkleLeafCount&(c.MerkleLeafCount-1) != 0 {
		return fmt.Errorf("config: merkleLeafCount must be a power of two, got %d", c.MerkleLeafCount)
	}
	if c.RepairRate.Capacity <= 0 || c.RepairRate.RefillPerSecond <= 0 {
		return fmt.Errorf("config: repairRate capacity and refillPerSecond must be positive")
	}
	switch c.AntiEntropyMode {
	case ModeFIFO, ModeRAAE:
	default:
		return fmt.Errorf("config: antiEntropyMode must be %q or %q, got %q", ModeFIFO, ModeRAAE, c.AntiEntropyMode)
	}
	return nil
}

// ParsePeers parses a "id=host:port,id=host:port" flag value.
func ParsePeers(raw string) ([]Peer, error) {
	if raw == "" {
		return nil, nil
	}
	var peers []Peer
	for _, entry := range strings.Split(raw, ",") {
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("config: invalid peer entry %q, expected id=host:port", entry)
		}
		peers = append(peers, Peer{ID: parts[0], Address: parts[1]})
	}
	return peers, nil
}
