package app

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mx-space/newsletter/internal/middleware"
	"github.com/mx-space/newsletter/internal/pkg/metrics"
	"github.com/mx-space/newsletter/internal/pkg/response"
)

const (
	metricsPath = "/metrics"
	adminPrefix = "/api/admin"
)

func (a *App) registerRoutes() {
	r := a.router

	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c)
	})
	r.NoMethod(func(c *gin.Context) {
		response.MethodNotAllowed(c)
	})

	r.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"data": "pong"}) })
	r.GET("/uptime", func(c *gin.Context) {
		uptime := time.Since(a.started)
		c.JSON(http.StatusOK, gin.H{
			"timestamp": uptime.Milliseconds(),
			"humanize":  humanizeDuration(uptime),
		})
	})
	r.GET(metricsPath, metrics.Handler())

	var formMW []gin.HandlerFunc
	if a.rc != nil && a.cfg.Newsletter.RateLimit > 0 {
		formMW = append(formMW, middleware.RateLimit(a.rc.Raw(), a.cfg.Newsletter.RateLimit, time.Minute, a.logger))
	}
	a.handler.RegisterRoutes(r.Group(a.cfg.Newsletter.Prefix), formMW...)
	a.handler.RegisterAdminRoutes(r.Group(adminPrefix), middleware.AdminAuth())
}
