package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPutEncodesValueAsBase64(t *testing.T) {
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/kv/k1", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		require.NoError(t, json.NewEncoder(w).Encode(ValueResponse{LWWMillis: 1}))
	}))
	defer srv.Close()

	c := New(srv.URL, 0)
	_, err := c.Put(context.Background(), "k1", []byte("hello"))
	require.NoError(t, err)
	require.Equal(t, base64.StdEncoding.EncodeToString([]byte("hello")), gotBody["value"])
}

func TestGetSendsBearerTokenWhenConfigured(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewEncoder(w).Encode(GetResult{Found: true}))
	}))
	defer srv.Close()

	c := New(srv.URL, 0).WithAuthToken("s3cr3t")
	_, err := c.Get(context.Background(), "k1", nil)
	require.NoError(t, err)
	require.Equal(t, "Bearer s3cr3t", gotAuth)
}

func TestGetAppendsConsistencyHintQueryParams(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		require.NoError(t, json.NewEncoder(w).Encode(GetResult{Found: true}))
	}))
	defer srv.Close()

	c := New(srv.URL, 0)
	hint := &ConsistencyHint{Mode: "budgeted", DeadlineMillis: 100, MaxBudgetedFraction: 0.25}
	_, err := c.Get(context.Background(), "k1", hint)
	require.NoError(t, err)
	require.Contains(t, gotQuery, "mode=budgeted")
	require.Contains(t, gotQuery, "deadlineMillis=100")
}

func TestGetTranslates404IntoNotFoundResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "key not found"})
	}))
	defer srv.Close()

	c := New(srv.URL, 0)
	result, err := c.Get(context.Background(), "missing", nil)
	require.NoError(t, err)
	require.False(t, result.Found)
}

func TestDoJSONReturnsAPIErrorOnServerFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "boom"})
	}))
	defer srv.Close()

	c := New(srv.URL, 0)
	_, err := c.Put(context.Background(), "k1", []byte("v"))
	require.Error(t, err)
	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	require.Equal(t, http.StatusInternalServerError, apiErr.Status)
	require.Equal(t, "boom", apiErr.Message)
}

func TestValueResponseDecodedHandlesTombstone(t *testing.T) {
	v := ValueResponse{Tombstone: true}
	data, err := v.Decoded()
	require.NoError(t, err)
	require.Nil(t, data)
}

func TestValueResponseDecodedDecodesBase64Value(t *testing.T) {
	v := ValueResponse{Value: base64.StdEncoding.EncodeToString([]byte("hi"))}
	data, err := v.Decoded()
	require.NoError(t, err)
	require.Equal(t, "hi", string(data))
}

func TestMerkleSnapshotRequestsDefaultFullRange(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		require.NoError(t, json.NewEncoder(w).Encode(MerkleSnapshotResult{LeafCount: 4}))
	}))
	defer srv.Close()

	c := New(srv.URL, 0)
	result, err := c.MerkleSnapshot(context.Background(), 0, 0)
	require.NoError(t, err)
	require.Equal(t, 4, result.LeafCount)
	require.Equal(t, "start=0&end=0", gotQuery)
}
