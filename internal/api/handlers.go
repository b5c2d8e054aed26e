// Package api wires up the Gin HTTP router with all handler functions,
// generalizing the teacher's flat /kv, /cluster, /internal route groups
// into KoruDelta's namespaced causal-KV, vector, query/view, cluster,
// and peer-reconciliation surface (SPEC_FULL.md §12).
package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"koru-delta/internal/cluster"
	"koru-delta/internal/engine"
	"koru-delta/internal/kerr"
	"koru-delta/internal/query"
	"koru-delta/internal/reconcile"
	"koru-delta/internal/store"
)

// Handler holds all dependencies injected from main.
type Handler struct {
	engine     *engine.Engine
	membership *cluster.Membership
	selfID     string
}

// NewHandler creates a Handler.
func NewHandler(e *engine.Engine, m *cluster.Membership, selfID string) *Handler {
	return &Handler{engine: e, membership: m, selfID: selfID}
}

// Register mounts all routes on r.
func (h *Handler) Register(r *gin.Engine) {
	kv := r.Group("/kv/:ns/:key")
	kv.GET("", h.Get)
	kv.PUT("", h.Put)
	kv.DELETE("", h.Delete)
	kv.GET("/at", h.GetAt)
	kv.GET("/history", h.History)

	vec := r.Group("/vector")
	vec.PUT("/:ns/:key", h.Embed)
	vec.DELETE("/:ns/:key", h.DeleteEmbed)
	vec.POST("/similar", h.Similar)

	r.POST("/query", h.Query)

	views := r.Group("/views")
	views.POST("", h.CreateView)
	views.DELETE("/:name", h.DeleteView)
	views.POST("/:name/refresh", h.RefreshView)
	views.GET("/:name/query", h.QueryView)

	id := r.Group("/identity")
	id.POST("/:name", h.CreateIdentity)
	id.GET("/:name", h.GetIdentity)
	id.POST("/:name/verify", h.VerifyIdentity)

	clusterGroup := r.Group("/cluster")
	clusterGroup.POST("/join", h.Join)
	clusterGroup.POST("/leave", h.Leave)
	clusterGroup.GET("/nodes", h.ListNodes)

	// Internal endpoints used only by peer nodes for reconciliation.
	internal := r.Group("/internal/reconcile")
	internal.GET("/ids", h.ReconcileIDs)
	internal.GET("/bloom", h.ReconcileBloom)
	internal.POST("/missing", h.ReconcileMissing)
}

// ─── Causal KV handlers ───────────────────────────────────────────────────────

// Put handles PUT /kv/:ns/:key. Body is the raw document bytes.
func (h *Handler) Put(c *gin.Context) {
	ns, key := c.Param("ns"), c.Param("key")

	value, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	v, err := h.engine.Put(ns, key, value)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, versionedValueJSON(v))
}

// Get handles GET /kv/:ns/:key.
func (h *Handler) Get(c *gin.Context) {
	ns, key := c.Param("ns"), c.Param("key")
	v, err := h.engine.Get(ns, key)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, versionedValueJSON(v))
}

// GetAt handles GET /kv/:ns/:key/at?t=<unix_nanos>.
func (h *Handler) GetAt(c *gin.Context) {
	ns, key := c.Param("ns"), c.Param("key")
	t, err := strconv.ParseInt(c.Query("t"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "t must be a unix-nanosecond integer"})
		return
	}
	v, err := h.engine.GetAt(ns, key, t)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, versionedValueJSON(v))
}

// History handles GET /kv/:ns/:key/history.
func (h *Handler) History(c *gin.Context) {
	ns, key := c.Param("ns"), c.Param("key")
	versions := h.engine.History(ns, key)
	out := make([]gin.H, len(versions))
	for i, v := range versions {
		out[i] = versionedValueJSON(v)
	}
	c.JSON(http.StatusOK, gin.H{"history": out})
}

// Delete handles DELETE /kv/:ns/:key.
func (h *Handler) Delete(c *gin.Context) {
	ns, key := c.Param("ns"), c.Param("key")
	v, err := h.engine.Delete(ns, key)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, versionedValueJSON(v))
}

// ─── Vector handlers ──────────────────────────────────────────────────────────

// Embed handles PUT /vector/:ns/:key.
// Body: {"vector": [...], "model": "...", "metadata": {...}}
func (h *Handler) Embed(c *gin.Context) {
	ns, key := c.Param("ns"), c.Param("key")

	var body struct {
		Vector   []float32      `json:"vector" binding:"required"`
		Model    string         `json:"model"`
		Metadata map[string]any `json:"metadata"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.engine.Embed(ns, key, body.Vector, body.Model, body.Metadata); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteEmbed handles DELETE /vector/:ns/:key.
func (h *Handler) DeleteEmbed(c *gin.Context) {
	ns, key := c.Param("ns"), c.Param("key")
	if err := h.engine.DeleteEmbed(ns, key); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Similar handles POST /vector/similar.
// Body: {"namespace": "...", "vector": [...], "k": 10, "ef_search": 100,
// "threshold": 0.0, "at": <unix_nanos, optional>}
func (h *Handler) Similar(c *gin.Context) {
	var body struct {
		Namespace string    `json:"namespace"`
		Vector    []float32 `json:"vector" binding:"required"`
		K         int       `json:"k"`
		EfSearch  int       `json:"ef_search"`
		Threshold float64   `json:"threshold"`
		At        *int64    `json:"at"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if body.At != nil {
		hits, err := h.engine.SimilarAt(body.Namespace, body.Vector, *body.At, body.K)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"hits": hits})
		return
	}

	hits, err := h.engine.Similar(body.Namespace, body.Vector, body.K, body.EfSearch, body.Threshold)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"hits": hits})
}

// ─── Query & views handlers ───────────────────────────────────────────────────

// Query handles POST /query.
func (h *Handler) Query(c *gin.Context) {
	var q query.Query
	if err := c.ShouldBindJSON(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := h.engine.Query(q)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// CreateView handles POST /views.
func (h *Handler) CreateView(c *gin.Context) {
	var v query.View
	if err := c.ShouldBindJSON(&v); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.engine.CreateView(v); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"created": v.Name})
}

// DeleteView handles DELETE /views/:name.
func (h *Handler) DeleteView(c *gin.Context) {
	name := c.Param("name")
	if err := h.engine.DeleteView(name); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": name})
}

// RefreshView handles POST /views/:name/refresh.
func (h *Handler) RefreshView(c *gin.Context) {
	name := c.Param("name")
	result, err := h.engine.RefreshView(name)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// QueryView handles GET /views/:name/query.
func (h *Handler) QueryView(c *gin.Context) {
	name := c.Param("name")
	result, err := h.engine.QueryView(name)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ─── Identity handlers ────────────────────────────────────────────────────────

// CreateIdentity handles POST /identity/:name.
func (h *Handler) CreateIdentity(c *gin.Context) {
	name := c.Param("name")
	var body struct {
		Metadata map[string]any `json:"metadata"`
	}
	_ = c.ShouldBindJSON(&body)

	priv, err := h.engine.CreateIdentity(name, body.Metadata)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": name, "private_key": priv})
}

// GetIdentity handles GET /identity/:name.
func (h *Handler) GetIdentity(c *gin.Context) {
	name := c.Param("name")
	rec, err := h.engine.GetIdentity(name)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// VerifyIdentity handles POST /identity/:name/verify.
// Body: {"message": "<base64>", "signature": "<base64>"}
func (h *Handler) VerifyIdentity(c *gin.Context) {
	name := c.Param("name")
	var body struct {
		Message   []byte `json:"message" binding:"required"`
		Signature []byte `json:"signature" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ok, err := h.engine.VerifyIdentity(name, body.Message, body.Signature)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": ok})
}

// ─── Cluster management handlers ─────────────────────────────────────────────

// Join handles POST /cluster/join.
// Body: {"id": "<nodeID>", "address": "<host:port>"}
func (h *Handler) Join(c *gin.Context) {
	var node cluster.Node
	if err := c.ShouldBindJSON(&node); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.membership.Join(node); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"joined": node.ID})
}

// Leave handles POST /cluster/leave.
// Body: {"id": "<nodeID>"}
func (h *Handler) Leave(c *gin.Context) {
	var body struct {
		ID string `json:"id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.membership.Leave(body.ID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"left": body.ID})
}

// ListNodes handles GET /cluster/nodes.
func (h *Handler) ListNodes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"nodes": h.membership.All()})
}

// ─── Internal reconciliation handlers ────────────────────────────────────────

// ReconcileIDs handles GET /internal/reconcile/ids, returning every
// distinction_id this node knows about — the peer side of
// reconcile.HTTPTransport.FetchMerkleRoot.
func (h *Handler) ReconcileIDs(c *gin.Context) {
	ids := h.engine.AllDistinctionIDs()
	hexIDs := make([]string, len(ids))
	for i, d := range ids {
		hexIDs[i] = d.String()
	}
	c.JSON(http.StatusOK, hexIDs)
}

// ReconcileBloom handles GET /internal/reconcile/bloom?n=&fpr=, returning
// this node's id set as a serialized Bloom filter.
func (h *Handler) ReconcileBloom(c *gin.Context) {
	n, _ := strconv.ParseUint(c.DefaultQuery("n", "0"), 10, 64)
	fpr, _ := strconv.ParseFloat(c.DefaultQuery("fpr", "0.01"), 64)

	ids := h.engine.AllDistinctionIDs()
	if n == 0 {
		n = uint64(len(ids))
	}
	filter, err := reconcile.NewBloomFilter(n, fpr)
	if err != nil {
		writeError(c, err)
		return
	}
	for _, d := range ids {
		filter.Add(d)
	}
	data, err := filter.MarshalBinary()
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/octet-stream", data)
}

// ReconcileMissing handles POST /internal/reconcile/missing, accepting a
// hex distinction_id list and returning every version record this node
// holds for them.
func (h *Handler) ReconcileMissing(c *gin.Context) {
	var hexIDs []string
	if err := c.ShouldBindJSON(&hexIDs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var dtos []gin.H
	for _, hx := range hexIDs {
		d, err := h.engine.ParseDistinctionID(hx)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		for _, wv := range h.engine.VersionsByDistinction(d) {
			dtos = append(dtos, wireVersionJSON(wv))
		}
	}
	c.JSON(http.StatusOK, dtos)
}

// ─── helpers ──────────────────────────────────────────────────────────────────

func versionedValueJSON(v store.VersionedValue) gin.H {
	h := gin.H{
		"write_id":       v.WriteID.String(),
		"distinction_id": v.DistinctionID.String(),
		"namespace":      v.Namespace,
		"key":            v.Key,
		"timestamp_ns":   v.TimestampNS,
		"has_previous":   v.HasPrevious,
		"tombstone":      v.Tombstone,
		"value":          v.Value,
	}
	if v.HasPrevious {
		h["previous_write_id"] = v.PreviousWrite.String()
	}
	return h
}

func wireVersionJSON(v reconcile.WireVersion) gin.H {
	h := gin.H{
		"write_id":       v.WriteID.String(),
		"distinction_id": v.DistinctionID.String(),
		"namespace":      v.Namespace,
		"key":            v.Key,
		"timestamp_ns":   v.TimestampNS,
		"has_previous":   v.HasPrevious,
		"tombstone":      v.Tombstone,
		"value":          v.Value,
	}
	if v.HasPrevious {
		h["previous_write_id"] = v.PreviousWrite.String()
	}
	return h
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, kerr.NotFound):
		status = http.StatusNotFound
	case errors.Is(err, kerr.InvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, kerr.PreconditionViolation):
		status = http.StatusPreconditionFailed
	case errors.Is(err, kerr.Timeout):
		status = http.StatusGatewayTimeout
	case errors.Is(err, kerr.CapacityExceeded):
		status = http.StatusInsufficientStorage
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
