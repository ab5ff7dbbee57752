// Package api wires the HTTP surface onto gin.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"civic-api/internal/iplocate"
	"civic-api/internal/issue"
	"civic-api/internal/logger"
	"civic-api/internal/metrics"
	"civic-api/internal/middleware"
	"civic-api/internal/municipality"
	"civic-api/internal/relay"
	"civic-api/internal/submit"
	"civic-api/internal/support"
	"civic-api/pkg/origindefense"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Deps are the collaborators behind the routes. Optional ones may be nil:
// Locator, Relay, Deduper, DeviceLimiter, GlobalLimit, Admin.
type Deps struct {
	Repo          issue.Repository
	Registry      *municipality.Registry
	Submit        *submit.Service
	Support       *support.Coordinator
	Locator       *iplocate.Locator
	Relay         *relay.Client
	Deduper       *submit.Deduper
	DeviceLimiter *middleware.DeviceLimiter
	GlobalLimit   *middleware.TokenBucket
	Admin         *origindefense.Allowlist
	CORSOrigins   []string
	APIBase       string
	Logger        *slog.Logger
}

type handler struct {
	Deps
}

func NewRouter(d Deps) *gin.Engine {
	if d.APIBase == "" {
		d.APIBase = "/api"
	}
	h := &handler{Deps: d}

	r := gin.New()
	r.Use(gin.Recovery(), logger.GinAccess(d.Logger), middleware.Metrics())
	r.Use(cors.New(corsConfig(d.CORSOrigins)))
	if d.GlobalLimit != nil {
		r.Use(middleware.RateLimit(d.GlobalLimit))
	}

	api := r.Group(d.APIBase)
	api.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	api.GET("/metrics", gin.WrapH(metrics.Handler()))

	issues := api.Group("/issues")
	issues.POST("", d.DeviceLimiter.Handler(), h.createIssue)
	issues.GET("", h.listIssues)
	issues.GET("/nearby", h.nearby)
	issues.GET("/report/:reportId", h.getByReportID)
	issues.GET("/:id", h.getIssue)
	issues.PATCH("/:id/status", d.Admin.Gin(), h.updateStatus)
	issues.POST("/:id/support", h.addSupport)
	issues.DELETE("/:id/support", h.revokeSupport)
	issues.GET("/:id/support", h.supportStatus)

	api.GET("/municipality", h.municipality)
	api.GET("/municipalities", h.municipalities)

	api.Any("/workflow/*path", h.workflow)
	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", middleware.DeviceHeader, logger.RequestIDHeader},
		ExposeHeaders: []string{logger.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}
