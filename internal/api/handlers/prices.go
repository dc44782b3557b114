package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/maxinvesting/CardzCheck-sub003/internal/services"
)

// QuotaReporter exposes the remaining daily calls of a metered listing source.
type QuotaReporter interface {
	GetRequestsRemaining() int
}

type PriceHandler struct {
	worker *services.CmvWorker
	quota  QuotaReporter
}

// NewPriceHandler creates the pricing status handler. quota may be nil when the
// active listing source is not metered.
func NewPriceHandler(worker *services.CmvWorker, quota QuotaReporter) *PriceHandler {
	return &PriceHandler{
		worker: worker,
		quota:  quota,
	}
}

// GetPriceStatus returns the CMV worker state and the listing source quota
func (h *PriceHandler) GetPriceStatus(c *gin.Context) {
	resp := gin.H{"worker": h.worker.Status()}
	if h.quota != nil {
		resp["requests_remaining"] = h.quota.GetRequestsRemaining()
	}
	c.JSON(http.StatusOK, resp)
}
