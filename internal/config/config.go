// Package config loads and validates environment variables at startup.
// A .env file in the working directory is honored when present.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration for the server and CLI.
type Config struct {
	Port             string
	DBPath           string
	RedisURL         string // empty = in-process cache
	GoogleAPIKey     string
	CORSOrigins      []string
	FrontendDistPath string
	CardImagesDir    string

	// Listing sources
	ListingSource     string // "ebay" or "catalog"
	EbaySoldURL       string
	EbayRatePerSec    float64
	CatalogAPIURL     string
	CatalogAPIKey     string
	CatalogDailyLimit int

	// CMV pipeline
	CompWindow          time.Duration
	GradeCmvCacheTTL    time.Duration
	CmvStaleAfter       time.Duration
	CmvLegacyPending    time.Duration
	CmvWorkers          int
	CmvSweepSpec        string
	CmvRetryAfter       time.Duration
	CmvRefreshAfter     time.Duration
	WatchlistSpec       string
	WatchlistMaxAge     time.Duration
	SnapshotHour        int
	DefaultResultLimit  int
	GradingFee          float64
	GradingShipping     float64
	SellingFeePct       float64
	AssistantModelName  string
	AssistantMaxOutputs int
}

// Load reads .env (if any) and environment variables and returns a validated Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Config: ignoring unreadable .env file: %v", err)
	}

	cfg := &Config{
		Port:               getenv("PORT", "8080"),
		DBPath:             getenv("DB_PATH", "./cardzcheck.db"),
		RedisURL:           os.Getenv("REDIS_URL"),
		GoogleAPIKey:       readAPIKey(),
		FrontendDistPath:   os.Getenv("FRONTEND_DIST_PATH"),
		CardImagesDir:      getenv("CARD_IMAGES_DIR", "./data/card_images"),
		ListingSource:      strings.ToLower(getenv("LISTING_SOURCE", "ebay")),
		EbaySoldURL:        getenv("EBAY_SOLD_URL", "https://www.ebay.com/sch/i.html"),
		CatalogAPIURL:      os.Getenv("CATALOG_API_URL"),
		CatalogAPIKey:      os.Getenv("CATALOG_API_KEY"),
		CmvSweepSpec:       getenv("CMV_SWEEP_SPEC", "@every 5m"),
		WatchlistSpec:      getenv("WATCHLIST_REFRESH_SPEC", "@every 1h"),
		AssistantModelName: getenv("ASSISTANT_MODEL", "gemini-2.0-flash"),
	}

	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		cfg.CORSOrigins = strings.Split(origins, ",")
	} else {
		cfg.CORSOrigins = []string{"http://localhost:5173", "http://localhost:3000"}
	}

	if cfg.ListingSource != "ebay" && cfg.ListingSource != "catalog" {
		return nil, fmt.Errorf("LISTING_SOURCE must be \"ebay\" or \"catalog\", got %q", cfg.ListingSource)
	}
	if cfg.ListingSource == "catalog" && cfg.CatalogAPIURL == "" {
		return nil, fmt.Errorf("CATALOG_API_URL is required when LISTING_SOURCE=catalog")
	}

	var err error
	if cfg.EbayRatePerSec, err = getFloat("EBAY_RATE_PER_SEC", 0.5); err != nil {
		return nil, err
	}
	if cfg.CatalogDailyLimit, err = getInt("CATALOG_DAILY_LIMIT", 100); err != nil {
		return nil, err
	}
	if cfg.CmvWorkers, err = getInt("CMV_WORKERS", 2); err != nil {
		return nil, err
	}
	if cfg.SnapshotHour, err = getInt("SNAPSHOT_HOUR", 23); err != nil {
		return nil, err
	}
	if cfg.SnapshotHour > 23 {
		return nil, fmt.Errorf("SNAPSHOT_HOUR must be between 0 and 23, got %d", cfg.SnapshotHour)
	}
	if cfg.DefaultResultLimit, err = getInt("RESULT_LIMIT", 50); err != nil {
		return nil, err
	}
	if cfg.AssistantMaxOutputs, err = getInt("ASSISTANT_MAX_OUTPUT_TOKENS", 1024); err != nil {
		return nil, err
	}

	windowDays, err := getInt("COMP_WINDOW_DAYS", 90)
	if err != nil {
		return nil, err
	}
	cfg.CompWindow = time.Duration(windowDays) * 24 * time.Hour

	ttlHours, err := getInt("GRADE_CMV_CACHE_TTL_HOURS", 24)
	if err != nil {
		return nil, err
	}
	cfg.GradeCmvCacheTTL = time.Duration(ttlHours) * time.Hour

	staleSeconds, err := getInt("CMV_STALE_SECONDS", 15)
	if err != nil {
		return nil, err
	}
	cfg.CmvStaleAfter = time.Duration(staleSeconds) * time.Second

	legacySeconds, err := getInt("CMV_LEGACY_PENDING_SECONDS", 120)
	if err != nil {
		return nil, err
	}
	cfg.CmvLegacyPending = time.Duration(legacySeconds) * time.Second

	retryMinutes, err := getInt("CMV_RETRY_MINUTES", 30)
	if err != nil {
		return nil, err
	}
	cfg.CmvRetryAfter = time.Duration(retryMinutes) * time.Minute

	refreshHours, err := getInt("CMV_REFRESH_HOURS", 24)
	if err != nil {
		return nil, err
	}
	cfg.CmvRefreshAfter = time.Duration(refreshHours) * time.Hour

	watchHours, err := getInt("WATCHLIST_MAX_AGE_HOURS", 6)
	if err != nil {
		return nil, err
	}
	cfg.WatchlistMaxAge = time.Duration(watchHours) * time.Hour

	if cfg.GradingFee, err = getFloat("GRADING_FEE", 25); err != nil {
		return nil, err
	}
	if cfg.GradingShipping, err = getFloat("GRADING_SHIPPING", 10); err != nil {
		return nil, err
	}
	if cfg.SellingFeePct, err = getFloat("SELLING_FEE_PCT", 0.13); err != nil {
		return nil, err
	}
	if cfg.SellingFeePct >= 1 {
		return nil, fmt.Errorf("SELLING_FEE_PCT must be a fraction below 1, got %v", cfg.SellingFeePct)
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer, got %q", key, s)
	}
	return v, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%s must be a non-negative number, got %q", key, s)
	}
	return v, nil
}

// readAPIKey prefers GOOGLE_API_KEY and falls back to the file named by GOOGLE_API_KEY_FILE.
func readAPIKey() string {
	if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
		return key
	}
	if keyPath := os.Getenv("GOOGLE_API_KEY_FILE"); keyPath != "" {
		if data, err := os.ReadFile(keyPath); err == nil {
			return strings.TrimSpace(string(data))
		}
	}
	return ""
}
