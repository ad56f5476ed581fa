package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter builds the HTTP surface: entry CRUD, CSV import/export, ad-hoc
// discovery, batch scraping and the operational endpoints.
func NewRouter(h *EntryHandler, registry *prometheus.Registry, log *slog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(ginLogger(log))
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	v1 := router.Group("/api/v1")

	entries := v1.Group("/entries")
	entries.POST("", h.Create)
	entries.GET("", h.List)
	entries.GET("/:id", h.GetByID)
	entries.DELETE("/:id", h.Delete)
	entries.POST("/:id/scrape", h.ScrapeOne)
	entries.POST("/import", h.ImportCSV)
	entries.GET("/export", h.ExportCSV)

	v1.POST("/discover", h.Discover)
	v1.POST("/scrape", h.ScrapeAll)
	v1.GET("/scrape/progress", h.Progress)

	return router
}

func ginLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		log.Info("http request.",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", c.Writer.Status()),
			slog.String("client_ip", c.ClientIP()),
			slog.Duration("took", time.Since(start)))
	}
}
