package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"distributed-kvstore/internal/apierr"
	"distributed-kvstore/internal/causal"
)

// replicaWriteRequest mirrors internal/coordinator/remote_client.go's
// putRequest wire shape exactly: that client PUTs and DELETEs this body
// to /replica/kv/:key, so the two sides must agree byte-for-byte.
type replicaWriteRequest struct {
	Data        []byte `json:"data"`
	OpID        string `json:"opId"`
	CoordNodeID string `json:"coordNodeId"`
}

type replicaValueResponse struct {
	Tombstone bool         `json:"tombstone"`
	LWWMillis int64        `json:"lwwMillis"`
	Data      []byte       `json:"data,omitempty"`
	Clock     causal.Clock `json:"clock"`
}

func toReplicaValueResponse(v causal.Value) replicaValueResponse {
	return replicaValueResponse{Tombstone: v.Tombstone, LWWMillis: v.LWWMillis, Data: v.Data, Clock: v.Clock}
}

// ReplicaPut handles PUT /replica/kv/:key — the replica-facing write a
// coordinator's RemoteClient issues directly against this node's durable
// store, bypassing this node's own coordinator entirely.
func (h *Handler) ReplicaPut(c *gin.Context) {
	key := c.Param("key")
	var body replicaWriteRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, apierr.Wrap(apierr.BadRequest, "invalid request body", err))
		return
	}
	v, err := h.store.Put(key, body.Data, body.OpID, body.CoordNodeID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toReplicaValueResponse(v))
}

// ReplicaDelete handles DELETE /replica/kv/:key.
func (h *Handler) ReplicaDelete(c *gin.Context) {
	key := c.Param("key")
	var body replicaWriteRequest
	_ = c.ShouldBindJSON(&body)
	v, err := h.store.Delete(key, body.OpID, body.CoordNodeID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toReplicaValueResponse(v))
}

// ReplicaGet handles GET /replica/kv/:key, returning the replica's full
// sibling set so the coordinator can reconcile across replicas.
func (h *Handler) ReplicaGet(c *gin.Context) {
	key := c.Param("key")
	siblings := h.store.GetSiblings(key)
	if len(siblings) == 0 {
		writeError(c, apierr.New(apierr.NotFound, "key not found"))
		return
	}
	out := make([]replicaValueResponse, len(siblings))
	for i, v := range siblings {
		out[i] = toReplicaValueResponse(v)
	}
	c.JSON(http.StatusOK, gin.H{"siblings": out})
}

type replicaApplyRequest struct {
	Value replicaValueResponse `json:"value"`
	OpID  string               `json:"opId"`
}

// ReplicaApply handles POST /replica/apply/:key — the read-repair
// write-back path a coordinator's RemoteClient.Apply issues.
func (h *Handler) ReplicaApply(c *gin.Context) {
	key := c.Param("key")
	var body replicaApplyRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, apierr.Wrap(apierr.BadRequest, "invalid request body", err))
		return
	}
	value := causal.Value{
		Tombstone: body.Value.Tombstone,
		LWWMillis: body.Value.LWWMillis,
		Data:      body.Value.Data,
		Clock:     body.Value.Clock,
	}
	if err := h.store.ApplyExternal(key, value, body.OpID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
