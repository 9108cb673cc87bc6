package coordinator

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"distributed-kvstore/internal/antientropy"
	"distributed-kvstore/internal/merkle"
)

func TestRemoteClientFetchSnapshotDecodesBase64Digests(t *testing.T) {
	var digest [merkle.HashSize]byte
	digest[0] = 0xAB
	var root [merkle.HashSize]byte
	root[0] = 0xCD

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/merkle/snapshot", r.URL.Path)
		resp := snapshotResponse{
			RootHash:  base64.StdEncoding.EncodeToString(root[:]),
			LeafCount: 4,
			Digests: []digestResponse{
				{Token: 42, Digest: base64.StdEncoding.EncodeToString(digest[:])},
			},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	client := NewRemoteClient("peer-1", srv.URL)
	snap, err := client.FetchSnapshot(context.Background(), antientropy.FullRange(), 4)
	require.NoError(t, err)
	require.Equal(t, root, snap.RootHash)
	require.Equal(t, 4, snap.LeafCount)
	require.Len(t, snap.Digests, 1)
	require.Equal(t, uint64(42), snap.Digests[0].Token)
	require.Equal(t, digest, snap.Digests[0].Digest)
}

func TestRemoteClientFetchSnapshotErrorsOnNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewRemoteClient("peer-1", srv.URL)
	_, err := client.FetchSnapshot(context.Background(), antientropy.FullRange(), 4)
	require.Error(t, err)
}

func TestRemoteClientFetchSnapshotErrorsOnMalformedDigest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := snapshotResponse{
			RootHash:  base64.StdEncoding.EncodeToString(make([]byte, merkle.HashSize)),
			LeafCount: 4,
			Digests:   []digestResponse{{Token: 1, Digest: "not-valid-base64!!"}},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	client := NewRemoteClient("peer-1", srv.URL)
	_, err := client.FetchSnapshot(context.Background(), antientropy.FullRange(), 4)
	require.Error(t, err)
}
