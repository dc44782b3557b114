package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/maxinvesting/CardzCheck-sub003/internal/models"
	"github.com/maxinvesting/CardzCheck-sub003/internal/services"
)

type WatchlistHandler struct {
	watchlist *services.WatchlistService
}

func NewWatchlistHandler(watchlist *services.WatchlistService) *WatchlistHandler {
	return &WatchlistHandler{watchlist: watchlist}
}

func (h *WatchlistHandler) GetWatchlist(c *gin.Context) {
	items, err := h.watchlist.List(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (h *WatchlistHandler) AddToWatchlist(c *gin.Context) {
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

	item, err := h.watchlist.Add(c.Request.Context(), currentUser(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (h *WatchlistHandler) UpdateWatchlistItem(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req models.UpdateWatchlistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	item, err := h.watchlist.Update(c.Request.Context(), currentUser(c), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *WatchlistHandler) DeleteWatchlistItem(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.watchlist.Delete(c.Request.Context(), currentUser(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}
