package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/maxinvesting/CardzCheck-sub003/internal/services"
)

type AssistantHandler struct {
	assistant *services.AssistantService
}

func NewAssistantHandler(assistant *services.AssistantService) *AssistantHandler {
	return &AssistantHandler{assistant: assistant}
}

// GetContext returns the data snapshot the assistant answers from.
func (h *AssistantHandler) GetContext(c *gin.Context) {
	snapshot, err := h.assistant.Context(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// Ask answers one question about the caller's own collection.
func (h *AssistantHandler) Ask(c *gin.Context) {
	var req struct {
		Question string `json:"question"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	snapshot, err := h.assistant.Context(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	answer, err := h.assistant.Ask(c.Request.Context(), snapshot, req.Question)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"answer": answer, "context": snapshot})
}
