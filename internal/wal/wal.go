// Package wal implements the segmented, fsync-durable write-ahead log.
//
// Every mutation is appended and fsync'd before the caller is told the
// write is durable. On restart, a sequential reader replays every intact
// record across every segment in filename order; within a segment it stops
// at the first torn record — the assumed signature of a crash mid-write —
// and goes on with the next segment.
package wal

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
)

const segmentSuffix = ".log"

// WAL is a single-writer, multi-segment append log.
type WAL struct {
	mu   sync.Mutex
	dir  string
	log  *zap.Logger
	cur  *os.File
	seg  int
	size int64

	rotateBytes int64
}

// Open creates dir if needed and opens (or starts) the newest segment for
// append. rotateBytes is the byte threshold at which RotateIfNeeded closes
// the current segment and opens the next-numbered one.
func Open(dir string, rotateBytes int64, log *zap.Logger) (*WAL, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("wal: create dir: %w", err)
	}

	segments, err := listSegments(dir)
	if err != nil {
		return nil, fmt.Errorf("wal: list segments: %w", err)
	}

	w := &WAL{dir: dir, log: log, rotateBytes: rotateBytes}

	segNum := 1
	if len(segments) > 0 {
		segNum = segments[len(segments)-1]
	}

	f, size, err := openForAppend(dir, segNum)
	if err != nil {
		return nil, err
	}
	w.cur, w.seg, w.size = f, segNum, size
	return w, nil
}

func openForAppend(dir string, seg int) (*os.File, int64, error) {
	path := segmentPath(dir, seg)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, 0, fmt.Errorf("wal: open segment %d: %w", seg, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("wal: stat segment %d: %w", seg, err)
	}
	return f, info.Size(), nil
}

func segmentPath(dir string, seg int) string {
	return filepath.Join(dir, fmt.Sprintf("%08d%s", seg, segmentSuffix))
}

func listSegments(dir string) ([]int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var nums []int
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), segmentSuffix) {
			continue
		}
		base := strings.TrimSuffix(e.Name(), segmentSuffix)
		n, err := strconv.Atoi(base)
		if err != nil {
			continue
		}
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums, nil
}

// Append writes the complete framed record and forces it to disk (data +
// metadata) before returning. A successful return means a crash immediately
// afterward will still have this record on replay.
func (w *WAL) Append(frame []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	n, err := w.cur.Write(frame)
	if err != nil {
		return fmt.Errorf("wal: write: %w", err)
	}
	if err := w.cur.Sync(); err != nil {
		return fmt.Errorf("wal: fsync: %w", err)
	}
	w.size += int64(n)
	return nil
}

// RotateIfNeeded closes the current segment and opens the next-numbered one
// once the written byte count reaches the rotation threshold. It is only
// ever called between records, never mid-append, so a rotation can never
// split a frame across two segments.
func (w *WAL) RotateIfNeeded() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.rotateBytes <= 0 || w.size < w.rotateBytes {
		return nil
	}

	if err := w.cur.Close(); err != nil {
		return fmt.Errorf("wal: close segment %d: %w", w.seg, err)
	}

	next := w.seg + 1
	f, _, err := openForAppend(w.dir, next)
	if err != nil {
		return err
	}
	w.log.Info("wal segment rotated", zap.Int("from", w.seg), zap.Int("to", next))
	w.cur, w.seg, w.size = f, next, 0
	return nil
}

// Close closes the current segment handle. Safe to call once during
// shutdown after outstanding writes have been flushed.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cur.Close()
}
