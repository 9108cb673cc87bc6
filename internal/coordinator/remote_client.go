package coordinator

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"distributed-kvstore/internal/antientropy"
	"distributed-kvstore/internal/causal"
	"distributed-kvstore/internal/merkle"
)

// RemoteClient talks to one peer's Replica API over HTTP. Each call makes
// a single attempt with no retry or backoff: a failure is reported
// straight back to the coordinator, which counts it as that replica's
// miss against the quorum.
type RemoteClient struct {
	nodeID  string
	baseURL string
	http    *http.Client
}

// NewRemoteClient creates a client for the peer at baseURL (e.g.
// "http://10.0.0.2:8080").
func NewRemoteClient(nodeID, baseURL string) *RemoteClient {
	return &RemoteClient{
		nodeID:  nodeID,
		baseURL: baseURL,
		http:    &http.Client{Timeout: 3 * time.Second},
	}
}

func (c *RemoteClient) NodeID() string { return c.nodeID }

type putRequest struct {
	Data        []byte `json:"data"`
	OpID        string `json:"opId"`
	CoordNodeID string `json:"coordNodeId"`
}

type valueResponse struct {
	Tombstone bool         `json:"tombstone"`
	LWWMillis int64        `json:"lwwMillis"`
	Data      []byte       `json:"data,omitempty"`
	Clock     causal.Clock `json:"clock"`
}

func (c *RemoteClient) Put(ctx context.Context, key string, data []byte, opID, coordNodeID string) (causal.Value, error) {
	return c.writeReq(ctx, http.MethodPut, key, putRequest{Data: data, OpID: opID, CoordNodeID: coordNodeID})
}

func (c *RemoteClient) Delete(ctx context.Context, key string, opID, coordNodeID string) (causal.Value, error) {
	return c.writeReq(ctx, http.MethodDelete, key, putRequest{OpID: opID, CoordNodeID: coordNodeID})
}

func (c *RemoteClient) writeReq(ctx context.Context, method, key string, body putRequest) (causal.Value, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return causal.Value{}, err
	}

	url := fmt.Sprintf("%s/replica/kv/%s", c.baseURL, key)
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
	if err != nil {
		return causal.Value{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return causal.Value{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest {
		return causal.Value{}, &IllegalArgument{Cause: fmt.Errorf("peer rejected request: HTTP %d", resp.StatusCode)}
	}
	if resp.StatusCode >= 300 {
		return causal.Value{}, fmt.Errorf("peer %s returned HTTP %d", c.nodeID, resp.StatusCode)
	}

	var vr valueResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return causal.Value{}, err
	}
	return causal.Value{Data: vr.Data, Tombstone: vr.Tombstone, Clock: vr.Clock, LWWMillis: vr.LWWMillis}, nil
}

type siblingsResponse struct {
	Siblings []valueResponse `json:"siblings"`
}

func (c *RemoteClient) Get(ctx context.Context, key string) (causal.Siblings, bool, error) {
	url := fmt.Sprintf("%s/replica/kv/%s", c.baseURL, key)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, false, nil
	}
	if resp.StatusCode >= 300 {
		return nil, false, fmt.Errorf("peer %s returned HTTP %d", c.nodeID, resp.StatusCode)
	}

	var sr siblingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, false, err
	}
	siblings := make(causal.Siblings, len(sr.Siblings))
	for i, v := range sr.Siblings {
		siblings[i] = causal.Value{Data: v.Data, Tombstone: v.Tombstone, Clock: v.Clock, LWWMillis: v.LWWMillis}
	}
	return siblings, true, nil
}

type applyRequest struct {
	Value valueResponse `json:"value"`
	OpID  string        `json:"opId"`
}

func (c *RemoteClient) Apply(ctx context.Context, key string, value causal.Value, opID string) error {
	body := applyRequest{
		Value: valueResponse{Tombstone: value.Tombstone, LWWMillis: value.LWWMillis, Data: value.Data, Clock: value.Clock},
		OpID:  opID,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/replica/apply/%s", c.baseURL, key)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("peer %s returned HTTP %d", c.nodeID, resp.StatusCode)
	}
	return nil
}

type digestResponse struct {
	Token  uint64 `json:"token"`
	Digest string `json:"digest"`
}

type snapshotResponse struct {
	RootHash  string           `json:"rootHash"`
	LeafCount int              `json:"leafCount"`
	Digests   []digestResponse `json:"digests"`
}

// FetchSnapshot implements antientropy.AntiEntropyPeer, calling this peer's
// GET /merkle/snapshot to retrieve its current Merkle summary for shard.
func (c *RemoteClient) FetchSnapshot(ctx context.Context, shard antientropy.ShardRange, leafCount int) (antientropy.Snapshot, error) {
	reqURL := fmt.Sprintf("%s/merkle/snapshot?start=%d&end=%d&leafCount=%d",
		c.baseURL, shard.Start, shard.End, leafCount)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return antientropy.Snapshot{}, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return antientropy.Snapshot{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return antientropy.Snapshot{}, fmt.Errorf("peer %s returned HTTP %d", c.nodeID, resp.StatusCode)
	}

	var sr snapshotResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return antientropy.Snapshot{}, err
	}

	root, err := base64.StdEncoding.DecodeString(sr.RootHash)
	if err != nil || len(root) != merkle.HashSize {
		return antientropy.Snapshot{}, fmt.Errorf("peer %s returned malformed root hash", c.nodeID)
	}
	var rootHash [merkle.HashSize]byte
	copy(rootHash[:], root)

	digests := make([]merkle.Entry, len(sr.Digests))
	for i, d := range sr.Digests {
		raw, err := base64.StdEncoding.DecodeString(d.Digest)
		if err != nil || len(raw) != merkle.HashSize {
			return antientropy.Snapshot{}, fmt.Errorf("peer %s returned malformed digest", c.nodeID)
		}
		var digest [merkle.HashSize]byte
		copy(digest[:], raw)
		digests[i] = merkle.Entry{Token: d.Token, Digest: digest}
	}

	return antientropy.Snapshot{RootHash: rootHash, LeafCount: sr.LeafCount, Digests: digests}, nil
}
