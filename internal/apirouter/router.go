package apirouter

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/webhookhub/webhookhub/internal/models"
)

// Ingestor is the ingest pipeline as the router sees it.
type Ingestor interface {
	Ingest(ctx context.Context, sourceName, eventType string, rawBody []byte, suppliedSig string) ([]models.Delivery, error)
}

// HealthChecker reports whether the background workers are healthy.
type HealthChecker interface {
	Healthy() bool
}

type RouterConfig struct {
	ServiceName string
	GinMode     string
}

func NewRouter(cfg RouterConfig, ingestor Ingestor, health HealthChecker) *gin.Engine {
	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(ErrorHandlerMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		if health != nil && !health.Healthy() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	ingestHandlers := NewIngestHandlers(ingestor)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/ingest/:source/:type", ingestHandlers.Ingest)
	}

	return router
}
