package router

import (
	"github.com/gin-gonic/gin"

	"finextract/internal/handler"
	"finextract/internal/middleware"
)

// Setup configures the Gin engine with all routes and middleware.
func Setup(
	extractionH *handler.ExtractionHandler,
	healthH *handler.HealthHandler,
	allowedOrigins []string,
) *gin.Engine {
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS(allowedOrigins))

	// Health checks
	r.GET("/healthz", healthH.Liveness)
	r.GET("/readyz", healthH.Readiness)

	v1 := r.Group("/api/v1")

	extractions := v1.Group("/extractions")
	extractions.POST("", extractionH.Submit)
	extractions.GET("", extractionH.List)
	extractions.GET("/:id", extractionH.Get)
	extractions.GET("/:id/statements", extractionH.Statements)
	extractions.GET("/:id/export", extractionH.Export)
	extractions.GET("/:id/download", extractionH.Download)
	extractions.POST("/:id/retry", extractionH.Retry)

	v1.GET("/tickers/:ticker/statements", extractionH.Latest)

	return r
}
