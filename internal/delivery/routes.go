package delivery

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/videoflix/streamcore/internal/logging"
	"github.com/videoflix/streamcore/internal/middleware"
)

// RouterOptions carries the cross-cutting pieces of the HTTP surface.
// JWTSecret empty means no authentication (single-tenant deployments);
// Limiter nil means no rate limiting.
type RouterOptions struct {
	JWTSecret string
	Limiter   *middleware.RateLimiter
}

// Router builds the HTTP routes.
func Router(api *API, log *logging.Logger, opts RouterOptions) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(log))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	v1 := router.Group("/api/v1")
	if opts.JWTSecret != "" {
		v1.Use(middleware.JWTCaller(opts.JWTSecret))
	}
	if opts.Limiter != nil {
		v1.Use(middleware.RateLimit(opts.Limiter))
	}

	videos := v1.Group("/videos")
	{
		videos.POST("", api.createVideo)
		videos.GET("", api.listVideos)
		videos.GET("/:id", api.getVideo)
		videos.DELETE("/:id", api.deleteVideo)
		videos.POST("/:id/transcode", api.enqueueTranscode)
		videos.GET("/:id/renditions", api.listRenditions)
	}

	jobs := v1.Group("/jobs")
	{
		jobs.GET("/:id", api.jobStatus)
		jobs.DELETE("/:id", api.cancelJob)
	}

	// Playlist and segments share one route; the handler splits on the
	// requested filename.
	v1.GET("/stream/:id/:profile/:file", api.media)

	return router
}
