package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/maxinvesting/CardzCheck-sub003/internal/metrics"
	"github.com/maxinvesting/CardzCheck-sub003/internal/models"
)

const (
	catalogAPISourceName     = "catalog_api"
	catalogAPIDefaultTimeout = 10 * time.Second
)

// CatalogAPISource reads sold listings from a JSON sales API with a daily request quota.
type CatalogAPISource struct {
	client     *http.Client
	apiKey     string
	baseURL    string
	dailyLimit int

	// Rate limiting
	mu             sync.Mutex
	requestsToday  int
	lastRequestDay time.Time
}

// catalogSalesResponse is the sales endpoint's envelope
type catalogSalesResponse struct {
	Success bool          `json:"success"`
	Data    []catalogSale `json:"data"`
	Error   string        `json:"error,omitempty"`
}

// catalogSale is one sold item. Only title, price and url are guaranteed.
type catalogSale struct {
	Title      string  `json:"title"`
	Price      float64 `json:"price"`
	SoldAt     string  `json:"sold_at"`
	URL        string  `json:"url"`
	ImageURL   string  `json:"image_url"`
	SetName    string  `json:"set_name"`
	Year       string  `json:"year"`
	Grader     string  `json:"grader"`
	Grade      string  `json:"grade"`
	Variant    string  `json:"variant"`
	CardNumber string  `json:"card_number"`
}

// NewCatalogAPISource creates a sales API client.
func NewCatalogAPISource(baseURL, apiKey string, dailyLimit int) *CatalogAPISource {
	if dailyLimit <= 0 {
		dailyLimit = 100
	}
	metrics.CatalogQuotaLimit.Set(float64(dailyLimit))
	metrics.CatalogQuotaRemaining.Set(float64(dailyLimit))

	return &CatalogAPISource{
		client:     &http.Client{Timeout: catalogAPIDefaultTimeout},
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		dailyLimit: dailyLimit,
	}
}

func (s *CatalogAPISource) Name() string {
	return catalogAPISourceName
}

// checkRateLimit reserves one request from today's quota.
func (s *CatalogAPISource) checkRateLimit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	// Reset counter if new day
	if s.lastRequestDay.Before(today) {
		s.requestsToday = 0
		s.lastRequestDay = today
	}

	if s.requestsToday >= s.dailyLimit {
		return false
	}

	s.requestsToday++
	metrics.CatalogQuotaRemaining.Set(float64(s.dailyLimit - s.requestsToday))
	return true
}

// GetRequestsRemaining returns the number of requests remaining today
func (s *CatalogAPISource) GetRequestsRemaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	if s.lastRequestDay.Before(today) {
		return s.dailyLimit
	}

	remaining := s.dailyLimit - s.requestsToday
	if remaining < 0 {
		return 0
	}
	return remaining
}

// FetchListings queries the sales endpoint for one card.
func (s *CatalogAPISource) FetchListings(ctx context.Context, q ListingQuery) ([]models.Listing, error) {
	if !s.checkRateLimit() {
		metrics.ListingSourceRequestsTotal.WithLabelValues(catalogAPISourceName, "quota_exhausted").Inc()
		return nil, &UpstreamError{Source: catalogAPISourceName, Err: fmt.Errorf("daily request limit of %d exceeded", s.dailyLimit)}
	}

	params := url.Values{}
	params.Set("q", q.Text)
	if q.Request.PlayerName != "" {
		params.Set("player", q.Request.PlayerName)
	}
	if q.Request.Year != "" {
		params.Set("year", q.Request.Year)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/sales?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if s.apiKey != "" {
		req.Header.Set("x-api-key", s.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	metrics.ListingSourceLatency.WithLabelValues(catalogAPISourceName).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ListingSourceRequestsTotal.WithLabelValues(catalogAPISourceName, "network_error").Inc()
		return nil, &UpstreamError{Source: catalogAPISourceName, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		metrics.ListingSourceRequestsTotal.WithLabelValues(catalogAPISourceName, "http_error").Inc()
		return nil, &UpstreamError{Source: catalogAPISourceName, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}

	var body catalogSalesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		metrics.ListingSourceRequestsTotal.WithLabelValues(catalogAPISourceName, "parse_error").Inc()
		return nil, fmt.Errorf("failed to decode sales response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || !body.Success {
		metrics.ListingSourceRequestsTotal.WithLabelValues(catalogAPISourceName, "api_error").Inc()
		return nil, fmt.Errorf("sales API error (HTTP %d): %s", resp.StatusCode, body.Error)
	}

	listings := make([]models.Listing, 0, len(body.Data))
	for _, sale := range body.Data {
		if sale.Title == "" || !validPrice(sale.Price) {
			continue
		}
		listing := models.Listing{
			Title:      sale.Title,
			Price:      sale.Price,
			URL:        sale.URL,
			ImageURL:   sale.ImageURL,
			SetName:    sale.SetName,
			Year:       sale.Year,
			Grader:     sale.Grader,
			Grade:      sale.Grade,
			Variant:    sale.Variant,
			CardNumber: sale.CardNumber,
			Source:     catalogAPISourceName,
		}
		if t, ok := parseSaleTime(sale.SoldAt); ok {
			listing.SoldAt = &t
		}
		listings = append(listings, listing)
	}
	metrics.ListingSourceRequestsTotal.WithLabelValues(catalogAPISourceName, "ok").Inc()
	return listings, nil
}

func parseSaleTime(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
