package coordinator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"distributed-kvstore/internal/causal"
	"distributed-kvstore/internal/quorum"
	"distributed-kvstore/internal/ring"
)

// fakeClient is an in-memory ReplicaClient for coordinator tests.
type fakeClient struct {
	id       string
	data     map[string]causal.Siblings
	failPut  error
	failGet  error
	applyLog []string
}

func newFakeClient(id string) *fakeClient {
	return &fakeClient{id: id, data: make(map[string]causal.Siblings)}
}

func (f *fakeClient) NodeID() string { return f.id }

func (f *fakeClient) Put(_ context.Context, key string, data []byte, opID, coordNodeID string) (causal.Value, error) {
	if f.failPut != nil {
		return causal.Value{}, f.failPut
	}
	existing := f.data[key]
	var clocks []causal.Clock
	for _, v := range existing {
		clocks = append(clocks, v.Clock)
	}
	clock := causal.MergeAll(clocks).Bump(coordNodeID)
	v := causal.Value{Data: data, Clock: clock, LWWMillis: 1}
	f.data[key] = causal.Siblings{v}
	return v, nil
}

func (f *fakeClient) Delete(ctx context.Context, key, opID, coordNodeID string) (causal.Value, error) {
	return f.Put(ctx, key, nil, opID, coordNodeID)
}

func (f *fakeClient) Get(_ context.Context, key string) (causal.Siblings, bool, error) {
	if f.failGet != nil {
		return nil, false, f.failGet
	}
	s, ok := f.data[key]
	return s, ok, nil
}

func (f *fakeClient) Apply(_ context.Context, key string, value causal.Value, opID string) error {
	f.applyLog = append(f.applyLog, key)
	f.data[key] = causal.Siblings{value}
	return nil
}

func newTestCoordinator(t *testing.T, replicas []ReplicaClient, n, r, w int) *Coordinator {
	t.Helper()
	ids := make([]string, len(replicas))
	for i, rc := range replicas {
		ids[i] = rc.NodeID()
	}
	rg := ring.Build(ids, 50)
	latency := quorum.NewReplicaLatencyTracker(0.3, 16)
	return New(Config{
		NodeID:            ids[0],
		Replicas:          replicas,
		Ring:              rg,
		ReplicationFactor: n,
		BaseReadQuorum:    r,
		BaseWriteQuorum:   w,
		Latency:           latency,
		Budget:            quorum.NewStalenessBudgetTracker(10),
		Slo:               quorum.NewSloMetrics(prometheus.NewRegistry()),
	})
}

func TestPutSucceedsWhenQuorumMet(t *testing.T) {
	replicas := []ReplicaClient{newFakeClient("a"), newFakeClient("b"), newFakeClient("c")}
	c := newTestCoordinator(t, replicas, 3, 2, 2)

	v, err := c.Put(context.Background(), "k1", []byte("v1"), "", "")
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), v.Data)
}

func TestPutFailsWhenQuorumNotMet(t *testing.T) {
	a, b, cl := newFakeClient("a"), newFakeClient("b"), newFakeClient("c")
	a.failPut = errors.New("boom")
	b.failPut = errors.New("boom")
	replicas := []ReplicaClient{a, b, cl}
	c := newTestCoordinator(t, replicas, 3, 2, 2)

	_, err := c.Put(context.Background(), "k1", []byte("v1"), "", "")
	require.Error(t, err)
}

func TestGetReturnsNotFoundWhenNoReplicaHasKey(t *testing.T) {
	replicas := []ReplicaClient{newFakeClient("a"), newFakeClient("b"), newFakeClient("c")}
	c := newTestCoordinator(t, replicas, 3, 2, 2)

	result, err := c.Get(context.Background(), "missing", quorum.ConsistencyHint{})
	require.NoError(t, err)
	require.False(t, result.Found)
}

func TestGetRoundTripsAfterPut(t *testing.T) {
	replicas := []ReplicaClient{newFakeClient("a"), newFakeClient("b"), newFakeClient("c")}
	c := newTestCoordinator(t, replicas, 3, 2, 2)

	_, err := c.Put(context.Background(), "k1", []byte("v1"), "", "")
	require.NoError(t, err)

	result, err := c.Get(context.Background(), "k1", quorum.ConsistencyHint{})
	require.NoError(t, err)
	require.True(t, result.Found)
	require.Equal(t, []byte("v1"), result.Value.Data)
}

func TestGetHedgedReadPathWithReadQuorumOne(t *testing.T) {
	replicas := []ReplicaClient{newFakeClient("a"), newFakeClient("b")}
	c := newTestCoordinator(t, replicas, 2, 1, 1)

	_, err := c.Put(context.Background(), "k1", []byte("v1"), "", "")
	require.NoError(t, err)

	result, err := c.Get(context.Background(), "k1", quorum.ConsistencyHint{})
	require.NoError(t, err)
	require.True(t, result.Found)
}

func TestGetReadRepairsDivergentSiblingOnQuorumRead(t *testing.T) {
	a, b, cl := newFakeClient("a"), newFakeClient("b"), newFakeClient("c")

	// a holds a stale value whose clock is strictly dominated by b/c's.
	staleClock := causal.New().Bump("a")
	a.data["k1"] = causal.Siblings{{Data: []byte("old"), Clock: staleClock, LWWMillis: 1}}

	winningClock := staleClock.Copy().Bump("b")
	winner := causal.Value{Data: []byte("new"), Clock: winningClock, LWWMillis: 2}
	b.data["k1"] = causal.Siblings{winner}
	cl.data["k1"] = causal.Siblings{winner}

	replicas := []ReplicaClient{a, b, cl}
	c := newTestCoordinator(t, replicas, 3, 3, 2)

	result, err := c.Get(context.Background(), "k1", quorum.ConsistencyHint{})
	require.NoError(t, err)
	require.True(t, result.Found)
	require.Equal(t, []byte("new"), result.Value.Data)
	require.True(t, result.StaleObserved)

	require.Eventually(t, func() bool {
		return len(a.applyLog) == 1 && a.applyLog[0] == "k1"
	}, time.Second, 5*time.Millisecond, "dominated replica should receive a read-repair write-back")
}

func TestIllegalArgumentPropagatesImmediately(t *testing.T) {
	a := newFakeClient("a")
	a.failPut = &IllegalArgument{Cause: errors.New("bad value")}
	replicas := []ReplicaClient{a, newFakeClient("b"), newFakeClient("c")}
	c := newTestCoordinator(t, replicas, 3, 2, 2)

	_, err := c.Put(context.Background(), "k1", []byte("v1"), "", "")
	var illegal *IllegalArgument
	require.ErrorAs(t, err, &illegal)
}
