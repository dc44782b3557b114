package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/maxinvesting/CardzCheck-sub003/internal/models"
	"github.com/maxinvesting/CardzCheck-sub003/internal/services"
)

type CollectionHandler struct {
	collection *services.CollectionService
	cmv        *services.CmvService
	snapshots  *services.SnapshotService
	thresholds services.CmvStateThresholds
	now        func() time.Time
}

func NewCollectionHandler(collection *services.CollectionService, cmv *services.CmvService, snapshots *services.SnapshotService, th services.CmvStateThresholds) *CollectionHandler {
	return &CollectionHandler{
		collection: collection,
		cmv:        cmv,
		snapshots:  snapshots,
		thresholds: th,
		now:        time.Now,
	}
}

// GetCollection returns the user's cards with their CMV state and display value.
func (h *CollectionHandler) GetCollection(c *gin.Context) {
	items, err := h.collection.List(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, services.BuildCollectionViews(items, h.now(), h.thresholds))
}

func (h *CollectionHandler) AddToCollection(c *gin.Context) {
	var raw map[string]any
	if err := c.ShouldBindJSON(&raw); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req, err := services.NormalizeCardRequest(raw)
	if err != nil {
		respondError(c, err)
		return
	}

	item, err := h.collection.Add(c.Request.Context(), currentUser(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, h.view(item))
}

func (h *CollectionHandler) UpdateCollectionItem(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req models.UpdateCollectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	item, err := h.collection.Update(c.Request.Context(), currentUser(c), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.view(item))
}

func (h *CollectionHandler) DeleteCollectionItem(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.collection.Delete(c.Request.Context(), currentUser(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

// GetSummary returns portfolio totals for the collection page.
func (h *CollectionHandler) GetSummary(c *gin.Context) {
	items, err := h.collection.List(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, services.ComputeCollectionSummary(items))
}

// RefreshCmv queues a recompute for one card and returns it in the pending state.
func (h *CollectionHandler) RefreshCmv(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	item, err := h.collection.RefreshCmv(c.Request.Context(), currentUser(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, h.view(item))
}

// GetDashboard reads the collection through the dashboard's own query.
func (h *CollectionHandler) GetDashboard(c *gin.Context) {
	items, err := h.cmv.ListDashboardItems(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"summary": services.ComputeCollectionSummary(items),
		"items":   services.BuildCollectionViews(items, h.now(), h.thresholds),
	})
}

// GetValueHistory returns collection value snapshots for charting
func (h *CollectionHandler) GetValueHistory(c *gin.Context) {
	if h.snapshots == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "snapshot service not available"})
		return
	}

	period := c.DefaultQuery("period", "month")

	snapshots, err := h.snapshots.GetHistory(c.Request.Context(), currentUser(c), period)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.ValueHistoryResponse{
		Snapshots: snapshots,
		Period:    period,
	})
}

// CmvWiring runs the end-to-end consistency check for one owned card.
func (h *CollectionHandler) CmvWiring(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	user := currentUser(c)
	if _, err := h.collection.Get(c.Request.Context(), user, id); err != nil {
		respondError(c, err)
		return
	}

	report := services.RunCmvWiringCheck(c.Request.Context(), h.cmv.WiringDeps(user), id)
	c.JSON(http.StatusOK, gin.H{"ok": report.OK(), "report": report})
}

func (h *CollectionHandler) view(item models.CollectionItem) models.CollectionItemView {
	return services.BuildCollectionViews([]models.CollectionItem{item}, h.now(), h.thresholds)[0]
}
