// Package storage implements the durable, multi-version key-value store:
// an in-memory sibling-set map backed by a WAL and periodic snapshots, with
// op-id dedupe for at-most-once application. It is the orchestration point
// where the codec, WAL, snapshotter, deduper, and vector-clock merge all
// meet.
package storage

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"distributed-kvstore/internal/apierr"
	"distributed-kvstore/internal/causal"
	"distributed-kvstore/internal/codec"
	"distributed-kvstore/internal/dedupe"
	"distributed-kvstore/internal/snapshot"
	"distributed-kvstore/internal/wal"
)

// Config bundles the directories and policy knobs a Store is built from.
type Config struct {
	NodeID          string
	WALDir          string
	SnapshotDir     string
	WALRotateBytes  int64
	DedupeTTL       time.Duration
	SnapshotEveryOp int // 0 disables automatic snapshotting
}

// Store is the per-node durable, multi-version map. Writes for a single key
// are serialized by mu; the published sibling set for a key is swapped as a
// whole so reads never observe a partial merge.
type Store struct {
	cfg Config
	log *zap.Logger

	mu   sync.RWMutex
	data map[string]causal.Siblings

	appliedOpIDs map[string]struct{}

	wal             *wal.WAL
	snaps           *snapshot.Manager
	dedup           *dedupe.Deduper
	writesSinceSnap int

	nowMillis func() int64
}

// Open recovers a Store from disk (snapshot + WAL replay) and returns it
// ready to serve traffic. Recovery order: load the latest snapshot into
// memory and seed the deduper with its recorded op-ids, then replay the WAL
// from the start, applying only records the deduper reports as first-time.
func Open(cfg Config, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.DedupeTTL <= 0 {
		cfg.DedupeTTL = time.Hour
	}

	s := &Store{
		cfg:          cfg,
		log:          log,
		data:         make(map[string]causal.Siblings),
		appliedOpIDs: make(map[string]struct{}),
		snaps:        snapshot.NewManager(cfg.SnapshotDir),
		dedup:        dedupe.New(0, cfg.DedupeTTL),
		nowMillis:    func() int64 { return time.Now().UnixMilli() },
	}

	if err := s.recover(); err != nil {
		return nil, err
	}

	w, err := wal.Open(cfg.WALDir, cfg.WALRotateBytes, log)
	if err != nil {
		return nil, fmt.Errorf("storage: open wal: %w", err)
	}
	s.wal = w

	if err := s.replayWAL(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Store) recover() error {
	snap, err := s.snaps.LoadLatest()
	if err != nil {
		return fmt.Errorf("storage: load snapshot: %w", err)
	}
	if snap == nil {
		return nil
	}
	for _, e := range snap.Entries {
		s.data[e.Key] = e.Siblings
	}
	for _, opID := range snap.AppliedOpIDs {
		s.dedup.Seed(opID)
		s.appliedOpIDs[opID] = struct{}{}
	}
	return nil
}

// replayWAL reads every intact record from the start of the log and
// applies it to memory if the deduper reports first-time — records already
// captured in the snapshot were seeded above and are skipped here, so a
// replica never double-applies a write across a recovery.
func (s *Store) replayWAL() error {
	r, err := wal.OpenReader(s.cfg.WALDir)
	if err != nil {
		return fmt.Errorf("storage: open wal reader: %w", err)
	}
	defer r.Close()

	for {
		rec, err := r.Next()
		if err != nil {
			break // io.EOF, including a torn tail: replay stops here.
		}
		if !s.dedup.FirstTime(rec.OpID) {
			continue
		}
		s.applyLocked(rec.Key, rec.Value)
		s.appliedOpIDs[rec.OpID] = struct{}{}
	}
	return nil
}

// applyLocked merges value into key's sibling set. Caller must hold mu.
func (s *Store) applyLocked(key string, value causal.Value) {
	existing := s.data[key]
	candidates := append(append(causal.Siblings{}, existing...), value)
	merged, err := causal.Merge(candidates)
	if err != nil {
		// Merge is only ever called with a non-empty candidate set here
		// (value is always present), so this is unreachable in practice.
		panic(fmt.Sprintf("storage: %v", err))
	}
	s.data[key] = merged
}

// Put applies a write for key under opID, attributing the causal bump to
// coordNodeID (falling back to the local node id when empty). The returned
// Value reflects this write's own clock and timestamp — not necessarily
// the sibling set's single winner, since a concurrent write elsewhere may
// still be a sibling.
func (s *Store) Put(key string, data []byte, opID, coordNodeID string) (causal.Value, error) {
	return s.write(key, data, false, opID, coordNodeID)
}

// Delete writes a tombstone for key, replicated and merged exactly like a
// live write: tombstones participate in causal order like live values.
func (s *Store) Delete(key string, opID, coordNodeID string) (causal.Value, error) {
	return s.write(key, nil, true, opID, coordNodeID)
}

func (s *Store) write(key string, data []byte, tombstone bool, opID, coordNodeID string) (causal.Value, error) {
	if coordNodeID == "" {
		coordNodeID = s.cfg.NodeID
	}
	if opID == "" {
		opID = fmt.Sprintf("auto-%s-%d", key, s.nowMillis())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existingClocks := make([]causal.Clock, 0, len(s.data[key]))
	for _, v := range s.data[key] {
		existingClocks = append(existingClocks, v.Clock)
	}
	clock := causal.MergeAll(existingClocks).Bump(coordNodeID)

	value := causal.Value{
		Data:      data,
		Tombstone: tombstone,
		Clock:     clock,
		LWWMillis: s.nowMillis(),
	}

	frame := codec.Encode(codec.Record{OpID: opID, Key: key, Value: value})
	if err := s.wal.Append(frame); err != nil {
		return causal.Value{}, apierr.Wrap(apierr.StorageUnavailable, "wal append failed", err)
	}

	// Op-id dedupe guards memory application only; the WAL record above was
	// written unconditionally, so retries stay visible in the durable history.
	if s.dedup.FirstTime(opID) {
		s.applyLocked(key, value)
		s.appliedOpIDs[opID] = struct{}{}
	}

	if err := s.wal.RotateIfNeeded(); err != nil {
		s.log.Warn("wal rotate failed", zap.Error(err))
	}

	s.maybeSnapshotLocked()

	return value, nil
}

// maybeSnapshotLocked dumps the full map after every SnapshotEveryOp writes.
// Caller must hold mu. A snapshot failure is logged and otherwise ignored —
// it is never fatal to the write that triggered it.
func (s *Store) maybeSnapshotLocked() {
	if s.cfg.SnapshotEveryOp <= 0 {
		return
	}
	s.writesSinceSnap++
	if s.writesSinceSnap < s.cfg.SnapshotEveryOp {
		return
	}
	s.writesSinceSnap = 0
	if err := s.snapshotLocked(); err != nil {
		s.log.Warn("periodic snapshot failed", zap.Error(err))
	}
}

// Snapshot dumps the full map to disk immediately, regardless of the
// periodic policy. Safe to call concurrently with writes.
func (s *Store) Snapshot() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() error {
	entries := make([]snapshot.Entry, 0, len(s.data))
	for k, v := range s.data {
		entries = append(entries, snapshot.Entry{Key: k, Siblings: v})
	}
	opIDs := make([]string, 0, len(s.appliedOpIDs))
	for id := range s.appliedOpIDs {
		opIDs = append(opIDs, id)
	}
	return s.snaps.Write(entries, opIDs, s.nowMillis())
}

// Get returns the single live display value for key, per the display
// resolver's policy when multiple siblings are maximal, or (zero, false)
// when the key is unknown or every maximal version is a tombstone.
func (s *Store) Get(key string) (causal.Value, bool) {
	s.mu.RLock()
	siblings := s.data[key]
	s.mu.RUnlock()

	if len(siblings) == 0 || !siblings.Live() {
		return causal.Value{}, false
	}
	return causal.Resolve(siblings, nil), true
}

// GetSiblings exposes the full maximal set for key, for debug and
// anti-entropy use. The returned slice is a snapshot copy; mutating it does
// not affect the store.
func (s *Store) GetSiblings(key string) causal.Siblings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(causal.Siblings, len(s.data[key]))
	copy(out, s.data[key])
	return out
}

// ApplyExternal merges one externally-resolved value (a read-repair
// write-back or an anti-entropy push from a peer) into key's local
// state, using the same WAL-then-merge discipline as a local write. It is
// idempotent: merging a value already dominated locally is a no-op.
func (s *Store) ApplyExternal(key string, value causal.Value, opID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	frame := codec.Encode(codec.Record{OpID: opID, Key: key, Value: value})
	if err := s.wal.Append(frame); err != nil {
		return apierr.Wrap(apierr.StorageUnavailable, "wal append failed", err)
	}
	if s.dedup.FirstTime(opID) {
		s.applyLocked(key, value)
		s.appliedOpIDs[opID] = struct{}{}
	}
	if err := s.wal.RotateIfNeeded(); err != nil {
		s.log.Warn("wal rotate failed", zap.Error(err))
	}
	s.maybeSnapshotLocked()
	return nil
}

// SnapshotAll returns an immutable shallow view of the current map, keyed
// by key, for Merkle-tree construction and anti-entropy shard iteration.
func (s *Store) SnapshotAll() map[string]causal.Siblings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]causal.Siblings, len(s.data))
	for k, v := range s.data {
		cp := make(causal.Siblings, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out
}

// Close flushes a final snapshot and closes the WAL handle. Call once
// during shutdown.
func (s *Store) Close() error {
	if err := s.Snapshot(); err != nil {
		s.log.Warn("final snapshot failed", zap.Error(err))
	}
	return s.wal.Close()
}
