// Package snapshot implements the atomic full-map dump used to bound WAL
// replay time. A snapshot also records the op-ids of every record it
// captured so the deduper can be reseeded on recovery without re-applying
// anything the snapshot already reflects.
package snapshot

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"distributed-kvstore/internal/causal"
	"distributed-kvstore/internal/codec"
)

const filePrefix = "snapshot-"
const fileSuffix = ".bin"

// Entry is one key's full sibling set as captured at snapshot time.
type Entry struct {
	Key      string
	Siblings causal.Siblings
}

// Snapshot is the decoded contents of one snapshot file.
type Snapshot struct {
	Entries      []Entry
	AppliedOpIDs []string
}

// Manager writes and loads snapshot files under dir.
type Manager struct {
	dir string
}

func NewManager(dir string) *Manager {
	return &Manager{dir: dir}
}

// Write serializes entries (plus the op-ids that produced them) to a temp
// file and atomically renames it into place. The rename is the commit
// point: a crash between create and rename leaves the previous snapshot,
// if any, untouched and valid.
func (m *Manager) Write(entries []Entry, appliedOpIDs []string, unixMillis int64) error {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return fmt.Errorf("snapshot: create dir: %w", err)
	}

	data := encode(entries, appliedOpIDs)

	name := fmt.Sprintf("%s%d%s", filePrefix, unixMillis, fileSuffix)
	path := filepath.Join(m.dir, name)
	tmp := path + ".tmp"

	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("snapshot: write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("snapshot: rename into place: %w", err)
	}
	return nil
}

// LoadLatest returns the most recent snapshot (the one whose filename sorts
// last), or (nil, nil) when no snapshot exists yet.
func (m *Manager) LoadLatest() (*Snapshot, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("snapshot: read dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		n := e.Name()
		if e.IsDir() || !strings.HasPrefix(n, filePrefix) || !strings.HasSuffix(n, fileSuffix) {
			continue
		}
		names = append(names, n)
	}
	if len(names) == 0 {
		return nil, nil
	}
	sort.Strings(names)
	latest := names[len(names)-1]

	raw, err := os.ReadFile(filepath.Join(m.dir, latest))
	if err != nil {
		return nil, fmt.Errorf("snapshot: read %s: %w", latest, err)
	}

	snap, err := decode(raw)
	if err != nil {
		return nil, fmt.Errorf("snapshot: decode %s: %w", latest, err)
	}
	return snap, nil
}

func encode(entries []Entry, appliedOpIDs []string) []byte {
	var buf bytes.Buffer

	var count [4]byte
	binary.LittleEndian.PutUint32(count[:], uint32(len(entries)))
	buf.Write(count[:])

	for _, e := range entries {
		codec.WriteString(&buf, e.Key)

		var sibCount [4]byte
		binary.LittleEndian.PutUint32(sibCount[:], uint32(len(e.Siblings)))
		buf.Write(sibCount[:])

		for _, v := range e.Siblings {
			var tomb byte
			if v.Tombstone {
				tomb = 1
			}
			buf.WriteByte(tomb)

			var lww [8]byte
			binary.LittleEndian.PutUint64(lww[:], uint64(v.LWWMillis))
			buf.Write(lww[:])

			codec.WriteValue(&buf, v.Data, v.Tombstone)
			codec.WriteClock(&buf, v.Clock)
		}
	}

	var opCount [4]byte
	binary.LittleEndian.PutUint32(opCount[:], uint32(len(appliedOpIDs)))
	buf.Write(opCount[:])
	for _, id := range appliedOpIDs {
		codec.WriteString(&buf, id)
	}

	return buf.Bytes()
}

func decode(raw []byte) (*Snapshot, error) {
	r := bytes.NewReader(raw)

	var count [4]byte
	if _, err := io.ReadFull(r, count[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(count[:])

	entries := make([]Entry, 0, n)
	for i := uint32(0); i < n; i++ {
		key, err := codec.ReadString(r)
		if err != nil {
			return nil, err
		}

		var sibCount [4]byte
		if _, err := io.ReadFull(r, sibCount[:]); err != nil {
			return nil, err
		}
		sn := binary.LittleEndian.Uint32(sibCount[:])

		siblings := make(causal.Siblings, 0, sn)
		for j := uint32(0); j < sn; j++ {
			tombByte, err := r.ReadByte()
			if err != nil {
				return nil, err
			}
			var lwwBytes [8]byte
			if _, err := io.ReadFull(r, lwwBytes[:]); err != nil {
				return nil, err
			}
			data, err := codec.ReadValue(r)
			if err != nil {
				return nil, err
			}
			clock, err := codec.ReadClock(r)
			if err != nil {
				return nil, err
			}
			siblings = append(siblings, causal.Value{
				Data:      data,
				Tombstone: tombByte != 0,
				Clock:     clock,
				LWWMillis: int64(binary.LittleEndian.Uint64(lwwBytes[:])),
			})
		}
		entries = append(entries, Entry{Key: key, Siblings: siblings})
	}

	var opCount [4]byte
	if _, err := io.ReadFull(r, opCount[:]); err != nil {
		return nil, err
	}
	on := binary.LittleEndian.Uint32(opCount[:])
	opIDs := make([]string, 0, on)
	for i := uint32(0); i < on; i++ {
		id, err := codec.ReadString(r)
		if err != nil {
			return nil, err
		}
		opIDs = append(opIDs, id)
	}

	return &Snapshot{Entries: entries, AppliedOpIDs: opIDs}, nil
}
