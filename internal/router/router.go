// internal/router/router.go
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/pricematch/pricematch/internal/config"
	"github.com/pricematch/pricematch/internal/handlers"
	"github.com/pricematch/pricematch/internal/middleware"
	"github.com/pricematch/pricematch/internal/services"
)

const Version = "1.0.0"

func Initialize(db *gorm.DB, cfg *config.Config) *gin.Engine {
	// Initialize services
	productService := services.NewProductService(db, cfg.Pipeline.LockTTL)

	// Initialize handlers
	reportHandler := handlers.NewReportHandler(productService)

	// Initialize Gin router
	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS())
	r.Use(middleware.RateLimit(cfg.Server.RateLimit))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		status, code := "healthy", http.StatusOK
		if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			status, code = "unhealthy", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":  status,
			"version": Version,
		})
	})

	// API v1 routes
	v1 := r.Group("/v1")
	{
		brands := v1.Group("/brands/:brand")
		{
			brands.GET("/stats", reportHandler.GetBrandStats)
			brands.GET("/products", reportHandler.GetBrandProducts)
			brands.GET("/price-comparison", reportHandler.GetPriceComparison)
			brands.GET("/missing", reportHandler.GetMissingProducts)
		}

		products := v1.Group("/products")
		{
			products.GET("/:id", reportHandler.GetProduct)
		}
	}

	return r
}
