package coordinator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"distributed-kvstore/internal/antientropy"
	"distributed-kvstore/internal/storage"
)

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(storage.Config{
		NodeID:      "n1",
		WALDir:      t.TempDir(),
		SnapshotDir: t.TempDir(),
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func fixedToken(key string) uint64 {
	switch key {
	case "k1":
		return 10
	case "k2":
		return 20
	case "k3":
		return 30
	default:
		return 0
	}
}

func TestRepairExecutorPushesOnlySelectedTokens(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Put("k1", []byte("v1"), "op1", "n1")
	require.NoError(t, err)
	_, err = store.Put("k2", []byte("v2"), "op2", "n1")
	require.NoError(t, err)

	peer := newFakeClient("peer-1")
	executor := NewRepairExecutor(store, fixedToken, map[string]ReplicaClient{"peer-1": peer}, nil, nil)

	err = executor.Repair(context.Background(), "peer-1", antientropy.FullRange(), nil, []uint64{fixedToken("k1")})
	require.NoError(t, err)

	require.Contains(t, peer.applyLog, "k1")
	require.NotContains(t, peer.applyLog, "k2")
}

func TestRepairExecutorNoOpWhenTokenSetsEmpty(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Put("k1", []byte("v1"), "op1", "n1")
	require.NoError(t, err)

	peer := newFakeClient("peer-1")
	executor := NewRepairExecutor(store, fixedToken, map[string]ReplicaClient{"peer-1": peer}, nil, nil)

	err = executor.Repair(context.Background(), "peer-1", antientropy.FullRange(), nil, nil)
	require.NoError(t, err)
	require.Empty(t, peer.applyLog)
}

func TestRepairExecutorErrorsOnUnknownPeer(t *testing.T) {
	store := newTestStore(t)
	executor := NewRepairExecutor(store, fixedToken, map[string]ReplicaClient{}, nil, nil)

	err := executor.Repair(context.Background(), "ghost", antientropy.FullRange(), nil, []uint64{10})
	require.Error(t, err)
}

func TestRepairExecutorPullAndPushBothTriggerPush(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Put("k1", []byte("v1"), "op1", "n1")
	require.NoError(t, err)

	peer := newFakeClient("peer-1")
	executor := NewRepairExecutor(store, fixedToken, map[string]ReplicaClient{"peer-1": peer}, nil, nil)

	err = executor.Repair(context.Background(), "peer-1", antientropy.FullRange(), []uint64{fixedToken("k1")}, nil)
	require.NoError(t, err)
	require.Contains(t, peer.applyLog, "k1")
}
