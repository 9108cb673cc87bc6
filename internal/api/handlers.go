// Package api wires up the Gin HTTP router exposing the Client API
// (PUT/DELETE/GET/DEBUG-SIBLINGS/HEALTH/MERKLE-SNAPSHOT) and the Replica
// API (the node-to-node write/read/apply mirror, without the SLO hint),
// using a route-group-per-concern layout (/kv, /replica, /debug, /health,
// /merkle) and a Handler holding its injected dependencies.
package api

import (
	"encoding/base64"
	"net/http"

	"github.com/gin-gonic/gin"

	"distributed-kvstore/internal/antientropy"
	"distributed-kvstore/internal/apierr"
	"distributed-kvstore/internal/causal"
	"distributed-kvstore/internal/coordinator"
	"distributed-kvstore/internal/storage"
)

// Handler holds every dependency the HTTP layer needs, injected from
// cmd/server's wiring.
type Handler struct {
	coord     *coordinator.Coordinator
	store     *storage.Store
	session   *antientropy.Session
	nodeID    string
	authToken string // empty disables bearer-token auth
}

// Config bundles a Handler's dependencies.
type Config struct {
	Coordinator *coordinator.Coordinator
	Store       *storage.Store
	Session     *antientropy.Session
	NodeID      string
	AuthToken   string
}

// NewHandler constructs a Handler from cfg.
func NewHandler(cfg Config) *Handler {
	return &Handler{
		coord:     cfg.Coordinator,
		store:     cfg.Store,
		session:   cfg.Session,
		nodeID:    cfg.NodeID,
		authToken: cfg.AuthToken,
	}
}

// Register mounts every route on r.
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/health", h.Health)

	kv := r.Group("/kv")
	kv.Use(h.requireAuth())
	kv.GET("/:key", h.Get)
	kv.PUT("/:key", h.Put)
	kv.DELETE("/:key", h.Delete)

	debug := r.Group("/debug")
	debug.Use(h.requireAuth())
	debug.GET("/siblings/:key", h.DebugSiblings)

	r.GET("/merkle/snapshot", h.MerkleSnapshot)

	replica := r.Group("/replica")
	replica.GET("/kv/:key", h.ReplicaGet)
	replica.PUT("/kv/:key", h.ReplicaPut)
	replica.DELETE("/kv/:key", h.ReplicaDelete)
	replica.POST("/apply/:key", h.ReplicaApply)
}

// requireAuth enforces a configured bearer token on the public client API.
// With authToken empty, auth is disabled entirely.
func (h *Handler) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.authToken == "" {
			c.Next()
			return
		}
		if c.GetHeader("Authorization") != "Bearer "+h.authToken {
			writeError(c, apierr.New(apierr.Unauthorized, "missing or invalid bearer token"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"node": h.nodeID, "status": "ok"})
}

type putRequest struct {
	Value       string `json:"value" binding:"required"`
	CoordNodeID string `json:"coordNodeId"`
	OpID        string `json:"opId"`
}

type valueBody struct {
	Tombstone bool         `json:"tombstone"`
	LWWMillis int64        `json:"lwwMillis"`
	Value     string       `json:"value,omitempty"`
	Clock     causal.Clock `json:"clock"`
}

func toValueBody(v causal.Value) valueBody {
	body := valueBody{Tombstone: v.Tombstone, LWWMillis: v.LWWMillis, Clock: v.Clock}
	if !v.Tombstone {
		body.Value = base64.StdEncoding.EncodeToString(v.Data)
	}
	return body
}

// Put handles PUT /kv/:key. Body: {"value": "<base64>", "coordNodeId"?,
// "opId"?}.
func (h *Handler) Put(c *gin.Context) {
	key := c.Param("key")
	var body putRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, apierr.Wrap(apierr.BadRequest, "invalid request body", err))
		return
	}
	data, err := base64.StdEncoding.DecodeString(body.Value)
	if err != nil {
		writeError(c, apierr.Wrap(apierr.BadRequest, "value must be base64", err))
		return
	}

	v, err := h.coord.Put(c.Request.Context(), key, data, body.CoordNodeID, body.OpID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toValueBody(v))
}

// Delete handles DELETE /kv/:key. An empty body is valid.
func (h *Handler) Delete(c *gin.Context) {
	key := c.Param("key")
	var body struct {
		CoordNodeID string `json:"coordNodeId"`
		OpID        string `json:"opId"`
	}
	_ = c.ShouldBindJSON(&body)

	v, err := h.coord.Delete(c.Request.Context(), key, body.CoordNodeID, body.OpID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toValueBody(v))
}

// Get handles GET /kv/:key, with the SLO hint carried as query parameters
// (deadlineMillis, mode=safe|budgeted, maxBudgetedFraction).
func (h *Handler) Get(c *gin.Context) {
	key := c.Param("key")
	hint, err := parseConsistencyHint(c)
	if err != nil {
		writeError(c, err)
		return
	}

	result, err := h.coord.Get(c.Request.Context(), key, hint)
	if err != nil {
		writeError(c, err)
		return
	}
	if !result.Found {
		writeError(c, apierr.New(apierr.NotFound, "key not found"))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"found":         true,
		"value":         toValueBody(result.Value),
		"siblingCount":  result.SiblingCount,
		"staleObserved": result.StaleObserved,
	})
}

// DebugSiblings handles GET /debug/siblings/:key, returning the local
// node's full maximal set without going through the coordinator.
func (h *Handler) DebugSiblings(c *gin.Context) {
	key := c.Param("key")
	siblings := h.store.GetSiblings(key)
	out := make([]valueBody, len(siblings))
	for i, v := range siblings {
		out[i] = toValueBody(v)
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "siblings": out})
}

type digestBody struct {
	Token  uint64 `json:"token"`
	Digest string `json:"digest"`
}

// MerkleSnapshot handles GET /merkle/snapshot?start=&end=&leafCount=,
// returning (rootHash, leafCount, digests[]).
func (h *Handler) MerkleSnapshot(c *gin.Context) {
	shard, err := parseShardQuery(c)
	if err != nil {
		writeError(c, err)
		return
	}

	snapshot, err := h.session.LocalSnapshot(shard)
	if err != nil {
		writeError(c, apierr.Wrap(apierr.Internal, "build merkle snapshot", err))
		return
	}

	digests := make([]digestBody, len(snapshot.Digests))
	for i, e := range snapshot.Digests {
		digests[i] = digestBody{Token: e.Token, Digest: base64.StdEncoding.EncodeToString(e.Digest[:])}
	}
	c.JSON(http.StatusOK, gin.H{
		"rootHash":  base64.StdEncoding.EncodeToString(snapshot.RootHash[:]),
		"leafCount": snapshot.LeafCount,
		"digests":   digests,
	})
}
