package coordinator

import (
	"context"

	"distributed-kvstore/internal/causal"
	"distributed-kvstore/internal/storage"
)

// LocalClient adapts a Store to ReplicaClient for the node's own replica,
// called in-process rather than over the wire.
type LocalClient struct {
	nodeID string
	store  *storage.Store
}

// NewLocalClient wraps store as the ReplicaClient for nodeID.
func NewLocalClient(nodeID string, store *storage.Store) *LocalClient {
	return &LocalClient{nodeID: nodeID, store: store}
}

func (c *LocalClient) NodeID() string { return c.nodeID }

func (c *LocalClient) Put(_ context.Context, key string, data []byte, opID, coordNodeID string) (causal.Value, error) {
	return c.store.Put(key, data, opID, coordNodeID)
}

func (c *LocalClient) Delete(_ context.Context, key string, opID, coordNodeID string) (causal.Value, error) {
	return c.store.Delete(key, opID, coordNodeID)
}

func (c *LocalClient) Get(_ context.Context, key string) (causal.Siblings, bool, error) {
	siblings := c.store.GetSiblings(key)
	if len(siblings) == 0 {
		return nil, false, nil
	}
	return siblings, true, nil
}

func (c *LocalClient) Apply(_ context.Context, key string, value causal.Value, opID string) error {
	return c.store.ApplyExternal(key, value, opID)
}
