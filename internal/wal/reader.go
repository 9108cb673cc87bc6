package wal

import (
	"errors"
	"fmt"
	"io"
	"os"

	"distributed-kvstore/internal/codec"
)

// Reader is a finite, non-restartable, single-pass iterator over every
// record across every segment in a WAL directory, in sorted filename
// order. It stops at the first torn record within a segment (short header,
// short payload, bad CRC, or invalid magic/version) but still advances to
// the next segment — a torn tail is only ever expected in the segment that
// was being appended to when the process crashed; any segment before it
// was already closed by rotation and is intact.
type Reader struct {
	dir      string
	segments []int
	idx      int
	file     *os.File
}

// OpenReader returns a Reader over dir's segments. It is a read-only,
// separate handle from the writer's own segment file; opening a reader does
// not require the WAL to be closed.
func OpenReader(dir string) (*Reader, error) {
	segments, err := listSegments(dir)
	if err != nil {
		return nil, fmt.Errorf("wal: list segments: %w", err)
	}
	return &Reader{dir: dir, segments: segments}, nil
}

// Next returns the next intact record, or io.EOF once every segment has
// been exhausted (including the case of no segments at all).
func (r *Reader) Next() (codec.Record, error) {
	for {
		if r.file == nil {
			if r.idx >= len(r.segments) {
				return codec.Record{}, io.EOF
			}
			f, err := os.Open(segmentPath(r.dir, r.segments[r.idx]))
			if err != nil {
				return codec.Record{}, fmt.Errorf("wal: open segment for read: %w", err)
			}
			r.file = f
		}

		rec, err := codec.Decode(r.file)
		switch {
		case err == nil:
			return rec, nil
		case errors.Is(err, io.EOF), errors.Is(err, codec.ErrCorruptRecord):
			// Clean end of segment or a torn tail: close this segment and
			// move to the next one.
			r.file.Close()
			r.file = nil
			r.idx++
			continue
		default:
			return codec.Record{}, err
		}
	}
}

// Close releases the currently open segment handle, if any.
func (r *Reader) Close() error {
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}
