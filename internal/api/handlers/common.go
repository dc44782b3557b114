package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/maxinvesting/CardzCheck-sub003/internal/services"
)

const (
	// UserHeader carries the caller's user scope. Authentication happens upstream.
	UserHeader  = "X-User-ID"
	DefaultUser = "local"
	userKey     = "userID"
)

// UserScope stores the request's user id in the gin context.
func UserScope() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := strings.TrimSpace(c.GetHeader(UserHeader))
		if user == "" {
			user = DefaultUser
		}
		c.Set(userKey, user)
		c.Next()
	}
}

func currentUser(c *gin.Context) string {
	if v := c.GetString(userKey); v != "" {
		return v
	}
	return DefaultUser
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return uint(id), true
}

// respondError maps service errors onto HTTP responses.
func respondError(c *gin.Context, err error) {
	var missing *services.MissingFiltersError
	var upstream *services.UpstreamError

	switch {
	case errors.As(err, &missing):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "missing": missing.Missing})
	case errors.Is(err, services.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrItemNotFound), errors.Is(err, services.ErrWatchlistItemNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &upstream):
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":     "market data source unavailable",
			"source":    upstream.Source,
			"retryable": upstream.Retryable(),
		})
	case errors.Is(err, services.ErrUpstreamUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "market data source unavailable", "retryable": true})
	case errors.Is(err, services.ErrGeminiDisabled):
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "AI features are not available",
			"message": "Gemini API key not configured",
		})
	default:
		log.Printf("API: %s %s failed: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
