// Package client is a small Go SDK for the distributed KV store's Client
// API: base64-encoded values over JSON, an optional bearer token, and the
// SLO hint carried as query parameters on GET.
package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client talks to one node. That node coordinates replication itself; the
// client has no cluster-topology logic of its own.
type Client struct {
	baseURL    string
	httpClient *http.Client
	authToken  string
}

// New creates a Client for baseURL (e.g. "http://localhost:8080").
func New(baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{baseURL: baseURL, httpClient: &http.Client{Timeout: timeout}}
}

// WithAuthToken sets the bearer token sent on every request.
func (c *Client) WithAuthToken(token string) *Client {
	c.authToken = token
	return c
}

// ValueResponse is the server's JSON encoding of one value.
type ValueResponse struct {
	Tombstone bool              `json:"tombstone"`
	LWWMillis int64             `json:"lwwMillis"`
	Value     string            `json:"value,omitempty"` // base64
	Clock     map[string]uint64 `json:"clock"`
}

// Decoded base64-decodes Value, returning nil for a tombstone.
func (v ValueResponse) Decoded() ([]byte, error) {
	if v.Tombstone || v.Value == "" {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(v.Value)
}

// GetResult is the response to a GET.
type GetResult struct {
	Found         bool          `json:"found"`
	Value         ValueResponse `json:"value"`
	SiblingCount  int           `json:"siblingCount"`
	StaleObserved bool          `json:"staleObserved"`
}

// ConsistencyHint carries the GET SLO hint as query parameters.
type ConsistencyHint struct {
	Mode                string // "safe" or "budgeted"; empty omits the parameter entirely
	DeadlineMillis      int64
	MaxBudgetedFraction float64
}

// Put stores key=value.
func (c *Client) Put(ctx context.Context, key string, value []byte) (ValueResponse, error) {
	body, err := json.Marshal(map[string]string{"value": base64.StdEncoding.EncodeToString(value)})
	if err != nil {
		return ValueResponse{}, err
	}
	var out ValueResponse
	err = c.doJSON(ctx, http.MethodPut, "/kv/"+key, body, &out)
	return out, err
}

// Get retrieves key. hint may be nil to omit the SLO hint entirely.
func (c *Client) Get(ctx context.Context, key string, hint *ConsistencyHint) (GetResult, error) {
	path := "/kv/" + key
	if hint != nil && hint.Mode != "" {
		q := url.Values{}
		q.Set("mode", hint.Mode)
		if hint.DeadlineMillis > 0 {
			q.Set("deadlineMillis", strconv.FormatInt(hint.DeadlineMillis, 10))
		}
		if hint.MaxBudgetedFraction > 0 {
			q.Set("maxBudgetedFraction", strconv.FormatFloat(hint.MaxBudgetedFraction, 'f', -1, 64))
		}
		path += "?" + q.Encode()
	}
	var out GetResult
	err := c.doJSON(ctx, http.MethodGet, path, nil, &out)
	if apiErr, ok := err.(*APIError); ok && apiErr.Status == http.StatusNotFound {
		return GetResult{Found: false}, nil
	}
	return out, err
}

// Delete tombstones key.
func (c *Client) Delete(ctx context.Context, key string) (ValueResponse, error) {
	var out ValueResponse
	err := c.doJSON(ctx, http.MethodDelete, "/kv/"+key, nil, &out)
	return out, err
}

// SiblingsResult is the response to DebugSiblings.
type SiblingsResult struct {
	Key      string          `json:"key"`
	Siblings []ValueResponse `json:"siblings"`
}

// DebugSiblings returns key's full, unreconciled sibling set.
func (c *Client) DebugSiblings(ctx context.Context, key string) (SiblingsResult, error) {
	var out SiblingsResult
	err := c.doJSON(ctx, http.MethodGet, "/debug/siblings/"+key, nil, &out)
	return out, err
}

// DigestEntry is one leaf digest in a MerkleSnapshot response.
type DigestEntry struct {
	Token  uint64 `json:"token"`
	Digest string `json:"digest"` // base64
}

// MerkleSnapshotResult is the response to MerkleSnapshot.
type MerkleSnapshotResult struct {
	RootHash  string        `json:"rootHash"` // base64
	LeafCount int           `json:"leafCount"`
	Digests   []DigestEntry `json:"digests"`
}

// MerkleSnapshot fetches the node's Merkle summary over [start, end).
// start == end == 0 requests the full ring range.
func (c *Client) MerkleSnapshot(ctx context.Context, start, end uint64) (MerkleSnapshotResult, error) {
	path := fmt.Sprintf("/merkle/snapshot?start=%d&end=%d", start, end)
	var out MerkleSnapshotResult
	err := c.doJSON(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// Health reports the node's liveness.
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.doJSON(ctx, http.MethodGet, "/health", nil, &out)
	return out, err
}

func (c *Client) doJSON(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// APIError carries the HTTP status and the error message from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(resp.Body)
	var apiErr struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(body, &apiErr)
	msg := apiErr.Error
	if msg == "" {
		msg = string(body)
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}
