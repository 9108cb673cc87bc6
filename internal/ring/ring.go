// Package ring implements the consistent-hash ring that maps keys to their
// owning replica set: a sorted sequence of (token, owner) virtual-node
// positions built once at startup, with no mutation after construction.
package ring

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"
)

const defaultVnodes = 150

// entry is one virtual-node position on the ring.
type entry struct {
	token uint64
	owner string
}

// Ring is an immutable, sorted consistent-hash ring. Build it once with
// Build; there is no AddNode/RemoveNode, since the node set is static
// after startup.
type Ring struct {
	vnodes  int
	entries []entry // sorted by token, ascending, unsigned comparison
	nodes   []string
}

// Build constructs a ring from the given physical node ids. vnodes <= 0
// falls back to a sensible default. Identical (nodes, vnodes) inputs always
// produce an identical ring (same token assignment, same sort order).
func Build(nodes []string, vnodes int) *Ring {
	if vnodes <= 0 {
		vnodes = defaultVnodes
	}

	entries := make([]entry, 0, len(nodes)*vnodes)
	for _, node := range nodes {
		for i := 0; i < vnodes; i++ {
			entries = append(entries, entry{
				token: tokenOf(fmt.Sprintf("%s#%d", node, i)),
				owner: node,
			})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].token < entries[j].token })

	distinct := make([]string, 0, len(nodes))
	seen := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		if !seen[n] {
			seen[n] = true
			distinct = append(distinct, n)
		}
	}
	sort.Strings(distinct)

	return &Ring{vnodes: vnodes, entries: entries, nodes: distinct}
}

// tokenOf hashes s with SHA-256 and returns the upper 64 bits, big-endian,
// as the unsigned ring position. Anti-entropy is handed TokenForKey as its
// token function, so both layers place keys on the same token axis.
func tokenOf(s string) uint64 {
	h := sha256.Sum256([]byte(s))
	return binary.BigEndian.Uint64(h[:8])
}

// TokenForKey returns key's position on the ring.
func TokenForKey(key string) uint64 { return tokenOf(key) }

// OwnersForKey returns the up-to-N distinct physical nodes responsible for
// key, found by locating the lower bound of key's token and walking
// clockwise (wrapping at the end of the ring), skipping virtual nodes that
// belong to an already-collected physical node.
func (r *Ring) OwnersForKey(key string, n int) []string {
	if len(r.entries) == 0 || n <= 0 {
		return nil
	}

	tok := tokenOf(key)
	start := sort.Search(len(r.entries), func(i int) bool { return r.entries[i].token >= tok })

	seen := make(map[string]bool, n)
	owners := make([]string, 0, n)
	for i := 0; i < len(r.entries) && len(owners) < n; i++ {
		e := r.entries[(start+i)%len(r.entries)]
		if !seen[e.owner] {
			seen[e.owner] = true
			owners = append(owners, e.owner)
		}
	}
	return owners
}

// Nodes returns all distinct physical nodes in the ring, sorted.
func (r *Ring) Nodes() []string { return r.nodes }

// NodeCount reports the number of distinct physical nodes.
func (r *Ring) NodeCount() int { return len(r.nodes) }

// Vnodes reports the configured virtual-node count per physical node.
func (r *Ring) Vnodes() int { return r.vnodes }
