package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir()) // no .env
	for _, key := range []string{"PORT", "LISTING_SOURCE", "COMP_WINDOW_DAYS", "CMV_STALE_SECONDS", "REDIS_URL"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.ListingSource != "ebay" {
		t.Errorf("ListingSource = %q, want ebay", cfg.ListingSource)
	}
	if cfg.CompWindow != 90*24*time.Hour {
		t.Errorf("CompWindow = %v, want 90 days", cfg.CompWindow)
	}
	if cfg.CmvStaleAfter != 15*time.Second {
		t.Errorf("CmvStaleAfter = %v, want 15s", cfg.CmvStaleAfter)
	}
	if cfg.CmvLegacyPending != 120*time.Second {
		t.Errorf("CmvLegacyPending = %v, want 120s", cfg.CmvLegacyPending)
	}
	if cfg.GradeCmvCacheTTL != 24*time.Hour {
		t.Errorf("GradeCmvCacheTTL = %v, want 24h", cfg.GradeCmvCacheTTL)
	}
}

func TestLoadInvalidValues(t *testing.T) {
	t.Chdir(t.TempDir())

	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"non-numeric window", "COMP_WINDOW_DAYS", "ninety"},
		{"negative workers", "CMV_WORKERS", "-1"},
		{"unknown source", "LISTING_SOURCE", "craigslist"},
		{"fee above one", "SELLING_FEE_PCT", "1.5"},
		{"snapshot hour out of range", "SNAPSHOT_HOUR", "24"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("Load() with %s=%q succeeded, want error", tt.key, tt.value)
			}
		})
	}
}

func TestLoadCatalogRequiresURL(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("LISTING_SOURCE", "catalog")
	t.Setenv("CATALOG_API_URL", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when catalog source has no URL")
	}

	t.Setenv("CATALOG_API_URL", "http://catalog.local")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.CatalogDailyLimit != 100 {
		t.Errorf("CatalogDailyLimit = %d, want 100", cfg.CatalogDailyLimit)
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("PORT", "")
	os.Unsetenv("PORT")
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("PORT=9999\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("PORT") })

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != "9999" {
		t.Errorf("Port = %q, want 9999 from .env", cfg.Port)
	}
}

func TestReadAPIKeyFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key")
	if err := os.WriteFile(path, []byte("  secret-key\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY_FILE", path)

	if got := readAPIKey(); got != "secret-key" {
		t.Errorf("readAPIKey() = %q, want secret-key", got)
	}
}
