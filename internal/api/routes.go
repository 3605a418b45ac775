package api

import (
	"strconv"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/codyseavey/pkmn-cataloguer/internal/api/handlers"
	"github.com/codyseavey/pkmn-cataloguer/internal/metrics"
	"github.com/codyseavey/pkmn-cataloguer/internal/services"
)

// requestMetrics counts every request by method, route template, and status.
// The route template keeps label cardinality bounded; unmatched paths all
// share one label.
func requestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
	}
}

func SetupRouter(
	db *gorm.DB,
	scraper *services.PriceChartingService,
	tcgdex *services.TCGdexService,
	ledger *services.JobLedger,
	pricingRefresh *services.PricingRefreshService,
	metadataRefresh *services.MetadataRefreshService,
	scheduler *services.Scheduler,
	corsOrigins []string,
) *gin.Engine {
	router := gin.Default()
	router.Use(requestMetrics())

	// CORS configuration
	config := cors.DefaultConfig()
	config.AllowOrigins = corsOrigins
	config.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	config.AllowCredentials = false
	router.Use(cors.New(config))

	// Initialize handlers
	searchHandler := handlers.NewSearchHandler(db, scraper)
	cardHandler := handlers.NewCardHandler(db)
	collectionHandler := handlers.NewCollectionHandler(db)
	jobHandler := handlers.NewJobHandler(ledger, pricingRefresh, metadataRefresh, scheduler)

	// API routes
	api := router.Group("/api")
	{
		// Search routes
		search := api.Group("/search")
		{
			search.GET("", searchHandler.Search)
			search.POST("/select", searchHandler.SelectResult)
		}

		// Card routes
		cards := api.Group("/cards")
		{
			cards.GET("", cardHandler.ListCards)
			cards.GET("/:id", cardHandler.GetCard)
			cards.GET("/:id/snapshots", cardHandler.GetSnapshots)
		}

		// Collection routes
		collection := api.Group("/collection")
		{
			collection.GET("", collectionHandler.GetCollection)
			collection.POST("", collectionHandler.AddToCollection)
			collection.PUT("/:id", collectionHandler.UpdateEntry)
			collection.DELETE("/:id", collectionHandler.DeleteEntry)
			collection.GET("/stats", collectionHandler.GetStats)
		}

		// Job routes
		jobs := api.Group("/jobs")
		{
			jobs.GET("/current", jobHandler.GetCurrent)
			jobs.GET("/history", jobHandler.GetHistory)
			jobs.GET("/stream", jobHandler.Stream)
		}

		// Admin routes
		admin := api.Group("/admin")
		{
			admin.POST("/refresh-prices", jobHandler.TriggerPriceRefresh)
			admin.POST("/refresh-metadata", jobHandler.TriggerMetadataRefresh)
			admin.GET("/scheduler", jobHandler.GetSchedulerStatus)
		}
	}

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Prometheus metrics
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}
