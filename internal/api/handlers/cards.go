package handlers

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/maxinvesting/CardzCheck-sub003/internal/models"
	"github.com/maxinvesting/CardzCheck-sub003/internal/services"
)

// CardHandler serves market lookups: comps, catalog search, query parsing,
// image identification and grading decisions.
type CardHandler struct {
	comps     *services.CompsService
	catalog   *services.CatalogDBSource
	assistant *services.AssistantService
	costs     services.GradingCosts
	limit     int
}

func NewCardHandler(comps *services.CompsService, catalog *services.CatalogDBSource, assistant *services.AssistantService, costs services.GradingCosts, limit int) *CardHandler {
	return &CardHandler{
		comps:     comps,
		catalog:   catalog,
		assistant: assistant,
		costs:     costs,
		limit:     limit,
	}
}

// GetComps prices a card from recent sold listings. A free-text q takes the place
// of the structured parameters.
func (h *CardHandler) GetComps(c *gin.Context) {
	var req models.CardRequest
	var err error
	if q := strings.TrimSpace(c.Query("q")); q != "" {
		req, err = services.CardRequestFromText(q)
	} else {
		req, err = services.CardRequestFromQuery(c.Request.URL.Query())
	}
	if err != nil {
		respondError(c, err)
		return
	}

	result, err := h.comps.Search(c.Request.Context(), currentUser(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type cardSearchBody struct {
	services.CardSearchFilters
	services.CardSearchOptions
}

// CardSearch matches catalog rows against structured filters.
func (h *CardHandler) CardSearch(c *gin.Context) {
	var body cardSearchBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := services.ValidateCardSearchFilters(body.CardSearchFilters); err != nil {
		respondError(c, err)
		return
	}
	if body.Limit == 0 {
		body.Limit = h.limit
	}

	rows, err := h.catalog.SearchRows(c.Request.Context(), body.CardSearchFilters)
	if err != nil {
		respondError(c, err)
		return
	}
	result, err := services.RunCardSearch(rows, body.CardSearchFilters, body.CardSearchOptions)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"results":  result.Results,
		"count":    len(result.Results),
		"relaxed":  result.Relaxed,
		"canRelax": result.CanRelax,
	})
}

// ParseQuery returns the structured intent of a free-text search.
func (h *CardHandler) ParseQuery(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter 'q' is required"})
		return
	}
	intent := services.ParseQuery(q)
	c.JSON(http.StatusOK, gin.H{
		"intent":      intent,
		"player_name": intent.PlayerName(),
	})
}

// IdentifyCardFromImage accepts an uploaded file or a base64 JSON body.
func (h *CardHandler) IdentifyCardFromImage(c *gin.Context) {
	var imageBytes []byte
	knownYear := c.PostForm("known_year")

	// Try to get uploaded file
	file, err := c.FormFile("image")
	if err == nil {
		src, err := file.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to open uploaded file"})
			return
		}
		defer src.Close()

		var buf bytes.Buffer
		if _, err := buf.ReadFrom(src); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read uploaded file"})
			return
		}
		imageBytes = buf.Bytes()
	} else {
		var req struct {
			Image     string `json:"image"` // Base64 or data URL
			KnownYear string `json:"known_year"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || req.Image == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "No image provided",
				"message": "Upload an image file or provide base64 encoded image in JSON body",
			})
			return
		}
		imageBytes, err = services.DecodeImageData(req.Image)
		if err != nil {
			respondError(c, err)
			return
		}
		knownYear = req.KnownYear
	}

	identity, err := h.assistant.IdentifyCard(c.Request.Context(), imageBytes, knownYear)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, identity)
}

type worthGradingBody struct {
	Card          map[string]any     `json:"card" binding:"required"`
	Grader        string             `json:"grader"`
	Probabilities map[string]float64 `json:"probabilities" binding:"required"`
	GradingFee    *float64           `json:"grading_fee"`
	ShippingCost  *float64           `json:"shipping_cost"`
	SellingFeePct *float64           `json:"selling_fee_pct"`
}

// WorthGrading estimates whether submitting a raw card for grading pays off.
func (h *CardHandler) WorthGrading(c *gin.Context) {
	var body worthGradingBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req, err := services.NormalizeCardRequest(body.Card)
	if err != nil {
		respondError(c, err)
		return
	}

	costs := h.costs
	if body.GradingFee != nil {
		costs.GradingFee = *body.GradingFee
	}
	if body.ShippingCost != nil {
		costs.ShippingCost = *body.ShippingCost
	}
	if body.SellingFeePct != nil {
		costs.SellingFeePct = *body.SellingFeePct
	}

	result, err := h.comps.WorthGrading(c.Request.Context(), req, body.Grader, body.Probabilities, costs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
