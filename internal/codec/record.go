// Package codec implements the bit-exact, length-prefixed, CRC-protected
// framing used for every WAL record (and reused, field for field, by the
// snapshot format). Getting this byte-for-byte right is what lets two nodes
// written independently agree on what a "torn tail" looks like after a
// crash.
//
// Wire format (all integers little-endian):
//
//	header:  2B magic | 1B version | 4B payload length | 4B CRC-32 (IEEE)
//	payload: opID string | key string | tombstone bool | lwwMillis int64 |
//	         value bytes (length-prefixed, -1 sentinel for null) |
//	         clock entry count (uint32) | (id string, counter uint64)...
package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"io"

	"distributed-kvstore/internal/causal"
)

const (
	Magic        uint16 = 0xD7A5
	Version      uint8  = 1
	HeaderLength        = 2 + 1 + 4 + 4 // magic + version + length + crc32
)

// ErrCorruptRecord is returned by Decode when the magic, version, or CRC-32
// fail to validate. The WAL reader treats this (and any short read) as a
// torn tail, not a hard failure.
var ErrCorruptRecord = errors.New("codec: corrupt record")

// Record is one logical mutation as it is framed on disk.
type Record struct {
	OpID  string
	Key   string
	Value causal.Value
}

// Encode serializes rec into the on-disk framed representation.
func Encode(rec Record) []byte {
	payload := encodePayload(rec)

	buf := make([]byte, HeaderLength+len(payload))
	binary.LittleEndian.PutUint16(buf[0:2], Magic)
	buf[2] = Version
	binary.LittleEndian.PutUint32(buf[3:7], uint32(len(payload)))
	binary.LittleEndian.PutUint32(buf[7:11], crc32.ChecksumIEEE(payload))
	copy(buf[HeaderLength:], payload)
	return buf
}

func encodePayload(rec Record) []byte {
	var buf bytes.Buffer
	writeString(&buf, rec.OpID)
	writeString(&buf, rec.Key)

	var tomb byte
	if rec.Value.Tombstone {
		tomb = 1
	}
	buf.WriteByte(tomb)

	var lww [8]byte
	binary.LittleEndian.PutUint64(lww[:], uint64(rec.Value.LWWMillis))
	buf.Write(lww[:])

	writeValueBytes(&buf, rec.Value.Data, rec.Value.Tombstone)
	writeClock(&buf, rec.Value.Clock)

	return buf.Bytes()
}

func writeString(buf *bytes.Buffer, s string) {
	var length [4]byte
	binary.LittleEndian.PutUint32(length[:], uint32(len(s)))
	buf.Write(length[:])
	buf.WriteString(s)
}

// writeValueBytes writes a length-prefixed blob. A tombstone is encoded as
// the -1 sentinel length regardless of what Data holds, matching the
// invariant value=null iff tombstone=true.
func writeValueBytes(buf *bytes.Buffer, data []byte, tombstone bool) {
	var length [4]byte
	if tombstone {
		binary.LittleEndian.PutUint32(length[:], 0xFFFFFFFF) // -1 as int32
		buf.Write(length[:])
		return
	}
	binary.LittleEndian.PutUint32(length[:], uint32(len(data)))
	buf.Write(length[:])
	buf.Write(data)
}

func writeClock(buf *bytes.Buffer, clock causal.Clock) {
	var count [4]byte
	binary.LittleEndian.PutUint32(count[:], uint32(len(clock)))
	buf.Write(count[:])

	// Deterministic order keeps the encoded bytes reproducible for the
	// same clock regardless of map iteration order.
	ids := sortedClockIDs(clock)
	for _, id := range ids {
		writeString(buf, id)
		var ctr [8]byte
		binary.LittleEndian.PutUint64(ctr[:], clock[id])
		buf.Write(ctr[:])
	}
}

// WriteString, WriteValue, and WriteClock expose the record payload's field
// encodings so other formats that share this wire shape (the snapshot file)
// don't reimplement them.
func WriteString(buf *bytes.Buffer, s string)             { writeString(buf, s) }
func WriteValue(buf *bytes.Buffer, data []byte, tomb bool) { writeValueBytes(buf, data, tomb) }
func WriteClock(buf *bytes.Buffer, clock causal.Clock)     { writeClock(buf, clock) }

// ReadString, ReadValue, and ReadClock are the corresponding decoders.
func ReadString(r *bytes.Reader) (string, error)        { return readString(r) }
func ReadValue(r *bytes.Reader) ([]byte, error)         { return readValueBytes(r) }
func ReadClock(r *bytes.Reader) (causal.Clock, error)   { return readClock(r) }

func sortedClockIDs(clock causal.Clock) []string {
	ids := make([]string, 0, len(clock))
	for id := range clock {
		ids = append(ids, id)
	}
	// insertion sort is fine here; clocks are small (one entry per node).
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j] < ids[j-1]; j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
	return ids
}

// Decode reads exactly one framed record from r. It returns io.EOF when r
// has no more bytes at all (clean end of segment), and ErrCorruptRecord for
// anything that looks like a torn or invalid record (short header, short
// payload, bad magic/version, or CRC mismatch) — the caller (the WAL
// reader) treats both as "stop, this is the tail."
func Decode(r io.Reader) (Record, error) {
	header := make([]byte, HeaderLength)
	n, err := io.ReadFull(r, header)
	if n == 0 && errors.Is(err, io.EOF) {
		return Record{}, io.EOF
	}
	if err != nil {
		return Record{}, ErrCorruptRecord
	}

	magic := binary.LittleEndian.Uint16(header[0:2])
	version := header[2]
	length := binary.LittleEndian.Uint32(header[3:7])
	wantCRC := binary.LittleEndian.Uint32(header[7:11])

	if magic != Magic || version != Version {
		return Record{}, ErrCorruptRecord
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Record{}, ErrCorruptRecord
	}

	if crc32.ChecksumIEEE(payload) != wantCRC {
		return Record{}, ErrCorruptRecord
	}

	return decodePayload(payload)
}

func decodePayload(payload []byte) (Record, error) {
	buf := bytes.NewReader(payload)

	opID, err := readString(buf)
	if err != nil {
		return Record{}, ErrCorruptRecord
	}
	key, err := readString(buf)
	if err != nil {
		return Record{}, ErrCorruptRecord
	}

	tombByte, err := buf.ReadByte()
	if err != nil {
		return Record{}, ErrCorruptRecord
	}
	tombstone := tombByte != 0

	var lwwBytes [8]byte
	if _, err := io.ReadFull(buf, lwwBytes[:]); err != nil {
		return Record{}, ErrCorruptRecord
	}
	lww := int64(binary.LittleEndian.Uint64(lwwBytes[:]))

	data, err := readValueBytes(buf)
	if err != nil {
		return Record{}, ErrCorruptRecord
	}

	clock, err := readClock(buf)
	if err != nil {
		return Record{}, ErrCorruptRecord
	}

	return Record{
		OpID: opID,
		Key:  key,
		Value: causal.Value{
			Data:      data,
			Tombstone: tombstone,
			Clock:     clock,
			LWWMillis: lww,
		},
	}, nil
}

func readString(r *bytes.Reader) (string, error) {
	var length [4]byte
	if _, err := io.ReadFull(r, length[:]); err != nil {
		return "", err
	}
	n := binary.LittleEndian.Uint32(length[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func readValueBytes(r *bytes.Reader) ([]byte, error) {
	var length [4]byte
	if _, err := io.ReadFull(r, length[:]); err != nil {
		return nil, err
	}
	n := int32(binary.LittleEndian.Uint32(length[:]))
	if n < 0 {
		return nil, nil // tombstone sentinel
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func readClock(r *bytes.Reader) (causal.Clock, error) {
	var count [4]byte
	if _, err := io.ReadFull(r, count[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(count[:])

	clock := make(causal.Clock, n)
	for i := uint32(0); i < n; i++ {
		id, err := readString(r)
		if err != nil {
			return nil, err
		}
		var ctr [8]byte
		if _, err := io.ReadFull(r, ctr[:]); err != nil {
			return nil, err
		}
		clock[id] = binary.LittleEndian.Uint64(ctr[:])
	}
	return clock, nil
}
