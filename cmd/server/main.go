package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maxinvesting/CardzCheck-sub003/internal/api"
	"github.com/maxinvesting/CardzCheck-sub003/internal/api/handlers"
	"github.com/maxinvesting/CardzCheck-sub003/internal/cache"
	"github.com/maxinvesting/CardzCheck-sub003/internal/config"
	"github.com/maxinvesting/CardzCheck-sub003/internal/database"
	"github.com/maxinvesting/CardzCheck-sub003/internal/scheduler"
	"github.com/maxinvesting/CardzCheck-sub003/internal/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Initialize database
	if err := database.Initialize(cfg.DBPath); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	db := database.GetDB()

	// Create a cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Comps cache: Redis when configured, otherwise in-process
	var store cache.Store
	if cfg.RedisURL != "" {
		client, err := database.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer client.Close()
		store = cache.NewRedisStore(client, "cardz:")
		log.Println("Comps cache: redis")
	} else {
		store = cache.NewMemoryStore(5000, cfg.GradeCmvCacheTTL)
		log.Println("Comps cache: in-memory")
	}

	// Listing source selection; the catalog table is always the fallback
	var source services.ListingSource
	var quota handlers.QuotaReporter
	switch cfg.ListingSource {
	case "catalog":
		catalogAPI := services.NewCatalogAPISource(cfg.CatalogAPIURL, cfg.CatalogAPIKey, cfg.CatalogDailyLimit)
		source = catalogAPI
		quota = catalogAPI
	default:
		source = services.NewEbaySoldSource(cfg.EbaySoldURL, cfg.EbayRatePerSec)
	}
	catalogDB := services.NewCatalogDBSource(db)

	compsService := services.NewCompsService(db, source, catalogDB, store, services.CompsConfig{
		Window:   cfg.CompWindow,
		CacheTTL: cfg.GradeCmvCacheTTL,
	})
	cmvService := services.NewCmvService(db, compsService)
	cmvWorker := services.NewCmvWorker(cmvService, cfg.CmvWorkers)
	imageStorageService := services.NewImageStorageService(cfg.CardImagesDir)
	collectionService := services.NewCollectionService(db, cmvService, cmvWorker, imageStorageService)
	watchlistService := services.NewWatchlistService(db, compsService)
	snapshotService := services.NewSnapshotService(db, cfg.SnapshotHour)

	geminiService := services.NewGeminiService(cfg.GoogleAPIKey, cfg.AssistantModelName, cfg.AssistantMaxOutputs)
	thresholds := services.CmvStateThresholds{StaleAfter: cfg.CmvStaleAfter, LegacyPending: cfg.CmvLegacyPending}
	assistantService := services.NewAssistantService(db, geminiService, thresholds)

	// Start CMV worker in background with panic recovery
	go func() {
		for {
			func() {
				defer func() {
					if r := recover(); r != nil {
						log.Printf("PANIC in CMV worker: %v - restarting in 30 seconds", r)
					}
				}()
				cmvWorker.Start(ctx)
			}()

			select {
			case <-ctx.Done():
				return // Graceful shutdown
			case <-time.After(30 * time.Second):
				log.Println("CMV worker restarting after panic recovery...")
			}
		}
	}()

	// Start snapshot service in background
	go snapshotService.Start(ctx)

	sched := scheduler.New(cmvService, cmvWorker, watchlistService, scheduler.Options{
		SweepSpec:     cfg.CmvSweepSpec,
		WatchlistSpec: cfg.WatchlistSpec,
		StaleAfter:    cfg.CmvStaleAfter,
		RetryAfter:    cfg.CmvRetryAfter,
		RefreshAfter:  cfg.CmvRefreshAfter,
		WatchMaxAge:   cfg.WatchlistMaxAge,
	})
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	router := api.SetupRouter(cfg, api.Services{
		Comps:      compsService,
		Catalog:    catalogDB,
		Cmv:        cmvService,
		Collection: collectionService,
		Watchlist:  watchlistService,
		Snapshots:  snapshotService,
		Assistant:  assistantService,
		Worker:     cmvWorker,
		Quota:      quota,
		Images:     imageStorageService,
	})

	// Create HTTP server for graceful shutdown
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Stop background jobs before the worker context goes away
	sched.Stop()
	cancel()

	// Give outstanding requests a deadline to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
