// Package merkle builds fixed-leaf binary Merkle trees over (token, digest)
// entries for anti-entropy comparison between replicas, hashing leaves and
// internal nodes with SHA-256.
package merkle

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/bits"
	"sort"
)

// HashSize is the digest length produced by the hash function used
// throughout this package (SHA-256).
const HashSize = sha256.Size

// Entry is one (token, digest) pair placed into the tree by its token's
// leaf bucket.
type Entry struct {
	Token  uint64
	Digest [HashSize]byte
}

// Tree is an immutable, fully-built Merkle tree with a power-of-two leaf
// count. Node 0 is the root; node n's children are 2n+1 and 2n+2; leaves
// occupy indices [leafCount-1, 2*leafCount-2].
type Tree struct {
	leafCount int
	nodes     [][HashSize]byte   // indexed by node id
	manifests [][]Entry          // indexed by leaf bucket (0..leafCount-1), sorted by token
}

// Build constructs a tree from entries. leafCount must be a power of two.
func Build(entries []Entry, leafCount int) (*Tree, error) {
	if leafCount <= 0 || leafCount&(leafCount-1) != 0 {
		return nil, fmt.Errorf("merkle: leafCount must be a power of two, got %d", leafCount)
	}

	manifests := make([][]Entry, leafCount)
	topBits := log2(leafCount)
	for _, e := range entries {
		bucket := int(e.Token >> (64 - topBits))
		manifests[bucket] = append(manifests[bucket], e)
	}
	for i := range manifests {
		sort.Slice(manifests[i], func(a, b int) bool { return manifests[i][a].Token < manifests[i][b].Token })
	}

	totalNodes := 2*leafCount - 1
	nodes := make([][HashSize]byte, totalNodes)

	leafStart := leafCount - 1
	for i := 0; i < leafCount; i++ {
		nodes[leafStart+i] = leafHash(manifests[i])
	}
	for n := leafStart - 1; n >= 0; n-- {
		left := nodes[2*n+1]
		var right [HashSize]byte
		if 2*n+2 < totalNodes {
			right = nodes[2*n+2]
		}
		nodes[n] = internalHash(left, right)
	}

	return &Tree{leafCount: leafCount, nodes: nodes, manifests: manifests}, nil
}

// log2 returns the base-2 logarithm of a power-of-two n.
func log2(n int) uint {
	return uint(bits.Len(uint(n)) - 1)
}

// leafHash hashes the concatenation of token_big_endian||digest over every
// manifest entry, in sorted order. An empty manifest hashes to the
// SHA-256 of empty input, not to a zero block.
func leafHash(manifest []Entry) [HashSize]byte {
	var buf bytes.Buffer
	for _, e := range manifest {
		var tokBuf [8]byte
		binary.BigEndian.PutUint64(tokBuf[:], e.Token)
		buf.Write(tokBuf[:])
		buf.Write(e.Digest[:])
	}
	return sha256.Sum256(buf.Bytes())
}

// internalHash combines a node's children. A missing (out-of-range) child
// is treated as a zero block of hash length, per the construction rule.
func internalHash(left, right [HashSize]byte) [HashSize]byte {
	var buf bytes.Buffer
	buf.Write(left[:])
	buf.Write(right[:])
	return sha256.Sum256(buf.Bytes())
}

// Root returns the root hash.
func (t *Tree) Root() [HashSize]byte { return t.nodes[0] }

// LeafCount reports the tree's leaf count.
func (t *Tree) LeafCount() int { return t.leafCount }

// Manifest returns the sorted (token, digest) entries assigned to leaf
// bucket i.
func (t *Tree) Manifest(i int) []Entry { return t.manifests[i] }

// LeafDiff names one leaf whose manifests differ between two trees.
type LeafDiff struct {
	LeafBucket int
	ManifestA  []Entry
	ManifestB  []Entry
}

// Diff compares two trees of identical leaf count and returns every leaf
// bucket whose manifest differs. If the roots are equal, it returns
// immediately with no diffs — the trees are known identical without
// descending further.
func Diff(a, b *Tree) ([]LeafDiff, error) {
	if a.leafCount != b.leafCount {
		return nil, fmt.Errorf("merkle: leaf count mismatch: %d vs %d", a.leafCount, b.leafCount)
	}
	if a.Root() == b.Root() {
		return nil, nil
	}

	var diffs []LeafDiff
	var descend func(nodeID int)
	descend = func(nodeID int) {
		if a.nodes[nodeID] == b.nodes[nodeID] {
			return
		}
		leafStart := a.leafCount - 1
		if nodeID >= leafStart {
			bucket := nodeID - leafStart
			diffs = append(diffs, LeafDiff{
				LeafBucket: bucket,
				ManifestA:  a.manifests[bucket],
				ManifestB:  b.manifests[bucket],
			})
			return
		}
		descend(2*nodeID + 1)
		if 2*nodeID+2 < len(a.nodes) {
			descend(2*nodeID + 2)
		}
	}
	descend(0)
	return diffs, nil
}
