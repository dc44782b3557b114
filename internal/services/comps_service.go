package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/maxinvesting/CardzCheck-sub003/internal/cache"
	"github.com/maxinvesting/CardzCheck-sub003/internal/metrics"
	"github.com/maxinvesting/CardzCheck-sub003/internal/models"
)

// ErrInvalidRequest is returned for a card request that cannot be searched.
var ErrInvalidRequest = errors.New("invalid card request")

const (
	compsCachePrefix     = "comps:"
	defaultCompsCacheTTL = 24 * time.Hour
	defaultFetchLimit    = 120
)

// CompsConfig tunes the comps pipeline. Zero values fall back to defaults.
type CompsConfig struct {
	Window     time.Duration
	CacheTTL   time.Duration
	FetchLimit int
	Weights    *ScoreWeights
}

// CompsResult is one priced comps search.
type CompsResult struct {
	Query       string             `json:"query"`
	Request     models.CardRequest `json:"request"`
	GradeBucket string             `json:"grade_bucket"`
	GradeCmv    GradeCmv           `json:"grade_cmv"`
	Stats       CompStats          `json:"stats"`
	Listings    TieredListings     `json:"listings"`
	Source      string             `json:"source"`
	Fallback    bool               `json:"fallback"`
	Cached      bool               `json:"cached"`
	FetchedAt   time.Time          `json:"fetched_at"`
}

// CompsService turns a card request into filtered, tiered, priced comps.
type CompsService struct {
	db       *gorm.DB
	source   ListingSource
	catalog  *CatalogDBSource
	store    cache.Store
	weights  ScoreWeights
	window   time.Duration
	cacheTTL time.Duration
	limit    int
	now      func() time.Time
}

// NewCompsService wires the live listing source, the catalog used for saves and
// fallback, and the result cache. catalog and store may be nil.
func NewCompsService(db *gorm.DB, source ListingSource, catalog *CatalogDBSource, store cache.Store, cfg CompsConfig) *CompsService {
	s := &CompsService{
		db:       db,
		source:   source,
		catalog:  catalog,
		store:    store,
		weights:  DefaultScoreWeights,
		window:   cfg.Window,
		cacheTTL: cfg.CacheTTL,
		limit:    cfg.FetchLimit,
		now:      time.Now,
	}
	if cfg.Weights != nil {
		s.weights = *cfg.Weights
	}
	if s.window <= 0 {
		s.window = DefaultCompWindow
	}
	if s.cacheTTL <= 0 {
		s.cacheTTL = defaultCompsCacheTTL
	}
	if s.limit <= 0 {
		s.limit = defaultFetchLimit
	}
	return s
}

func requestBucket(req models.CardRequest) GradeBucket {
	if req.Grader != "" && req.Grade != "" {
		return GradeBucket{Grader: req.Grader, Grade: req.Grade}
	}
	return GradeBucket{}
}

// confidenceForSample maps a comps count to a CMV confidence label.
func confidenceForSample(n int) string {
	switch {
	case n >= 10:
		return string(ConfidenceHigh)
	case n >= 3:
		return string(ConfidenceMedium)
	case n > 0:
		return string(ConfidenceLow)
	}
	return ""
}

// Search prices a card and records the search for the user's assistant context.
func (s *CompsService) Search(ctx context.Context, userID string, req models.CardRequest) (*CompsResult, error) {
	result, err := s.search(ctx, req)
	if err != nil {
		return nil, err
	}
	if userID != "" {
		s.logSearch(ctx, userID, result)
	}
	return result, nil
}

// EstimateCmv prices a collection card from its grade bucket.
func (s *CompsService) EstimateCmv(ctx context.Context, req models.CardRequest) (CmvEstimate, error) {
	result, err := s.search(ctx, req)
	if err != nil {
		return CmvEstimate{}, err
	}
	return CmvEstimate{
		Value:      result.GradeCmv.Price,
		Confidence: confidenceForSample(result.GradeCmv.N),
		CompsCount: result.GradeCmv.N,
	}, nil
}

func (s *CompsService) search(ctx context.Context, req models.CardRequest) (*CompsResult, error) {
	req.PlayerName, _ = CanonicalPlayer(strings.TrimSpace(req.PlayerName))
	if req.PlayerName == "" {
		return nil, fmt.Errorf("%w: player name is required", ErrInvalidRequest)
	}
	req.Year = NormalizeYear(req.Year)
	req.CardNumber = NormalizeCardNumber(req.CardNumber)
	if (req.Grader == "") != (req.Grade == "") {
		return nil, fmt.Errorf("%w: grader and grade must be given together", ErrInvalidRequest)
	}

	key := compsCachePrefix + req.CacheKey()
	if s.store != nil {
		var cached CompsResult
		if err := cache.GetJSON(ctx, s.store, key, &cached); err == nil {
			cached.Cached = true
			metrics.CompsSearchesTotal.WithLabelValues("cached").Inc()
			return &cached, nil
		} else if !errors.Is(err, cache.ErrMiss) {
			log.Printf("Comps: cache read failed for %q: %v", key, err)
		}
	}

	query := req.Query()
	sourceName := s.source.Name()
	fallback := false
	listings, err := s.source.FetchListings(ctx, ListingQuery{Text: query, Request: req, Limit: s.limit})
	if err != nil {
		if !errors.Is(err, ErrUpstreamUnavailable) || s.catalog == nil {
			metrics.CompsSearchesTotal.WithLabelValues("upstream_error").Inc()
			return nil, err
		}
		stored, ferr := s.catalog.FetchListings(ctx, ListingQuery{Text: query, Request: req, Limit: s.limit})
		if ferr != nil || len(stored) == 0 {
			log.Printf("Comps: %s unavailable and no stored sales for %q: %v", sourceName, query, err)
			metrics.CompsSearchesTotal.WithLabelValues("upstream_error").Inc()
			return nil, err
		}
		log.Printf("Comps: %s unavailable, serving %d stored sales for %q", sourceName, len(stored), query)
		listings, sourceName, fallback = stored, s.catalog.Name(), true
	} else if s.catalog != nil {
		if _, serr := s.catalog.SaveListings(ctx, req, filterCardIdentity(listings, req)); serr != nil {
			log.Printf("Comps: %v", serr)
		}
	}

	result := s.price(req, listings)
	result.Query = query
	result.Source = sourceName
	result.Fallback = fallback

	switch {
	case fallback:
		metrics.CompsSearchesTotal.WithLabelValues("fallback").Inc()
	case result.Stats.Count == 0:
		metrics.CompsSearchesTotal.WithLabelValues("empty").Inc()
	default:
		metrics.CompsSearchesTotal.WithLabelValues("ok").Inc()
	}

	// Fallback results are not cached so the next search retries the live source.
	if s.store != nil && !fallback {
		if err := cache.SetJSON(ctx, s.store, key, result, s.cacheTTL); err != nil {
			log.Printf("Comps: cache write failed for %q: %v", key, err)
		}
	}
	return result, nil
}

// price runs the hard filter, relevance tiers and reducers over fetched listings.
func (s *CompsService) price(req models.CardRequest, listings []models.Listing) *CompsResult {
	filtered := FilterListings(listings, req)
	tiers := TierListings(filtered, SignalsFromRequest(req), s.weights)
	metrics.CompsListingsHidden.Add(float64(tiers.Hidden))

	visible := tiers.Visible()
	comps := make([]models.Listing, len(visible))
	for i, v := range visible {
		comps[i] = v.Listing
	}

	bucket := requestBucket(req)
	now := s.now()
	gradeCmv := BuildGradeCmv(comps, bucket, now, s.window)
	// The response carries one current value: the bucketed, windowed one.
	stats := CalculateStats(comps)
	stats.CMV, stats.Method = gradeCmv.Price, gradeCmv.Method
	return &CompsResult{
		Request:     req,
		GradeBucket: bucket.Key(),
		GradeCmv:    gradeCmv,
		Stats:       stats,
		Listings:    tiers,
		FetchedAt:   now,
	}
}

func (s *CompsService) logSearch(ctx context.Context, userID string, result *CompsResult) {
	if s.db == nil {
		return
	}
	entry := models.SearchLog{
		UserID:      userID,
		Query:       result.Query,
		ResultCount: result.Stats.Count,
		Cmv:         result.GradeCmv.Price,
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		log.Printf("Comps: failed to log search for %s: %v", userID, err)
	}
}

// RecentSearches returns a user's latest searches, newest first.
func (s *CompsService) RecentSearches(ctx context.Context, userID string, limit int) ([]models.SearchLog, error) {
	var logs []models.SearchLog
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}
