package server

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/yungbote/atlasgraph-backend/internal/handlers"
	"github.com/yungbote/atlasgraph-backend/internal/middleware"
	"github.com/yungbote/atlasgraph-backend/internal/observability"
	"github.com/yungbote/atlasgraph-backend/internal/utils"
)

type RouterConfig struct {
	ProposalHandler  *handlers.ProposalHandler
	TenantMiddleware *middleware.TenantMiddleware
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	// Cors
	origins := strings.Split(utils.GetEnv("CORS_ALLOW_ORIGINS", "http://localhost:3000", nil), ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With", "X-Correlation-ID"},
		AllowCredentials: true,
	}))
	router.Use(otelgin.Middleware("atlasgraph-backend"))
	router.Use(metricsMiddleware())

	// ===============
	// || Public    ||
	// ===============
	router.GET("/healthcheck", handlers.HealthCheck)
	if m := observability.Current(); m != nil {
		router.GET("/metrics", gin.WrapF(m.WriteHTTP))
	}

	// ===============
	// || Protected ||
	// ===============
	api := router.Group("/api")
	api.Use(cfg.TenantMiddleware.RequireTenant())
	// Proposals
	api.POST("/proposals", cfg.ProposalHandler.Create)
	api.GET("/proposals/:id", cfg.ProposalHandler.Get)
	api.POST("/proposals/:id/approve", cfg.ProposalHandler.Approve)
	api.POST("/proposals/:id/reject", cfg.ProposalHandler.Reject)
	api.POST("/proposals/:id/commit", cfg.ProposalHandler.Commit)

	return router
}

func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		m := observability.Current()
		if m == nil {
			c.Next()
			return
		}
		m.ApiInflightInc()
		start := time.Now()
		c.Next()
		m.ApiInflightDec()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveAPI(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}
