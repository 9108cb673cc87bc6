package snapshot

import (
	"testing"

	"github.com/stretchr/testify/require"

	"distributed-kvstore/internal/causal"
)

func TestWriteLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)

	entries := []Entry{
		{Key: "k1", Siblings: causal.Siblings{{Data: []byte("v1"), Clock: causal.Clock{"n1": 1}}}},
		{Key: "k2", Siblings: causal.Siblings{{Tombstone: true, Clock: causal.Clock{"n1": 2}}}},
	}
	require.NoError(t, m.Write(entries, []string{"op-1", "op-2"}, 1000))

	loaded, err := m.LoadLatest()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Len(t, loaded.Entries, 2)
	require.ElementsMatch(t, []string{"op-1", "op-2"}, loaded.AppliedOpIDs)
}

func TestLoadLatestNoneExists(t *testing.T) {
	m := NewManager(t.TempDir())
	snap, err := m.LoadLatest()
	require.NoError(t, err)
	require.Nil(t, snap)
}

func TestLoadLatestPicksNewestByName(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)

	require.NoError(t, m.Write([]Entry{{Key: "old"}}, nil, 1000))
	require.NoError(t, m.Write([]Entry{{Key: "new"}}, nil, 2000))

	loaded, err := m.LoadLatest()
	require.NoError(t, err)
	require.Equal(t, "new", loaded.Entries[0].Key)
}
