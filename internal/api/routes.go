package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/maxinvesting/CardzCheck-sub003/internal/api/handlers"
	"github.com/maxinvesting/CardzCheck-sub003/internal/config"
	"github.com/maxinvesting/CardzCheck-sub003/internal/metrics"
	"github.com/maxinvesting/CardzCheck-sub003/internal/services"
)

// Services are the collaborators the HTTP layer is built from.
type Services struct {
	Comps      *services.CompsService
	Catalog    *services.CatalogDBSource
	Cmv        *services.CmvService
	Collection *services.CollectionService
	Watchlist  *services.WatchlistService
	Snapshots  *services.SnapshotService
	Assistant  *services.AssistantService
	Worker     *services.CmvWorker
	Quota      handlers.QuotaReporter
	Images     *services.ImageStorageService
}

func SetupRouter(cfg *config.Config, svc Services) *gin.Engine {
	router := gin.Default()
	router.Use(metrics.GinMiddleware())

	serveFrontend := cfg.FrontendDistPath != "" && dirExists(cfg.FrontendDistPath)

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", handlers.UserHeader}
	corsConfig.AllowCredentials = false // Explicitly set
	router.Use(cors.New(corsConfig))

	thresholds := services.CmvStateThresholds{StaleAfter: cfg.CmvStaleAfter, LegacyPending: cfg.CmvLegacyPending}
	costs := services.GradingCosts{
		GradingFee:    cfg.GradingFee,
		ShippingCost:  cfg.GradingShipping,
		SellingFeePct: cfg.SellingFeePct,
	}

	cardHandler := handlers.NewCardHandler(svc.Comps, svc.Catalog, svc.Assistant, costs, cfg.DefaultResultLimit)
	collectionHandler := handlers.NewCollectionHandler(svc.Collection, svc.Cmv, svc.Snapshots, thresholds)
	watchlistHandler := handlers.NewWatchlistHandler(svc.Watchlist)
	assistantHandler := handlers.NewAssistantHandler(svc.Assistant)
	priceHandler := handlers.NewPriceHandler(svc.Worker, svc.Quota)

	// Serve uploaded card photos
	if svc.Images != nil {
		router.Static("/images/cards", svc.Images.GetStorageDir())
	}

	api := router.Group("/api")
	api.Use(handlers.UserScope())
	{
		api.GET("/comps", cardHandler.GetComps)
		api.POST("/card-search", cardHandler.CardSearch)
		api.GET("/search/parse", cardHandler.ParseQuery)
		api.POST("/worth-grading", cardHandler.WorthGrading)
		api.POST("/cards/identify-image", cardHandler.IdentifyCardFromImage)

		collection := api.Group("/collection")
		{
			collection.GET("", collectionHandler.GetCollection)
			collection.POST("", collectionHandler.AddToCollection)
			collection.GET("/summary", collectionHandler.GetSummary)
			collection.GET("/history", collectionHandler.GetValueHistory)
			collection.PUT("/:id", collectionHandler.UpdateCollectionItem)
			collection.DELETE("/:id", collectionHandler.DeleteCollectionItem)
			collection.POST("/:id/refresh-cmv", collectionHandler.RefreshCmv)
		}
		api.GET("/dashboard", collectionHandler.GetDashboard)

		watchlist := api.Group("/watchlist")
		{
			watchlist.GET("", watchlistHandler.GetWatchlist)
			watchlist.POST("", watchlistHandler.AddToWatchlist)
			watchlist.PUT("/:id", watchlistHandler.UpdateWatchlistItem)
			watchlist.DELETE("/:id", watchlistHandler.DeleteWatchlistItem)
		}

		assistant := api.Group("/assistant")
		{
			assistant.GET("/context", assistantHandler.GetContext)
			assistant.POST("/ask", assistantHandler.Ask)
		}

		api.GET("/prices/status", priceHandler.GetPriceStatus)
		api.GET("/debug/cmv-wiring/:id", collectionHandler.CmvWiring)
	}

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Serve frontend static files
	if serveFrontend {
		indexPath := filepath.Join(cfg.FrontendDistPath, "index.html")

		router.Static("/assets", filepath.Join(cfg.FrontendDistPath, "assets"))
		router.GET("/", func(c *gin.Context) {
			c.File(indexPath)
		})

		// SPA fallback - serve index.html for all non-API routes
		router.NoRoute(func(c *gin.Context) {
			if strings.HasPrefix(c.Request.URL.Path, "/api") {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			c.File(indexPath)
		})
	}

	return router
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
