package router

import (
	"github.com/wb-go/wbf/ginext"

	"github.com/resizr/resizr/internal/api/handlers/health"
	"github.com/resizr/resizr/internal/api/handlers/image"
	"github.com/resizr/resizr/internal/middleware"
)

func Setup(h *image.Handler, hh *health.Handler) *ginext.Engine {
	r := ginext.New()

	r.Use(middleware.CORSMiddleware())
	r.Use(ginext.Logger())
	r.Use(ginext.Recovery())

	r.GET("/health", hh.Check)
	r.GET("/", func(c *ginext.Context) {
		c.JSON(200, map[string]string{
			"message": "Image Processing Service",
			"version": "1.0.0",
			"health":  "/health",
			"api":     "/api/v1",
		})
	})

	api := r.Group("/api/v1")

	api.POST("/images", h.Upload)                   // submit an image for processing
	api.GET("/images/:id", h.Get)                   // record lookup
	api.GET("/images/:id/file", h.ViewFile)         // inline view, ?size= for thumbnails
	api.GET("/images/:id/download", h.DownloadFile) // attachment download, ?size= for thumbnails
	api.DELETE("/images/:id", h.Delete)             // remove record and files

	return r
}
