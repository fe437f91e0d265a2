package delivery

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/videoflix/streamcore/internal/cache"
	"github.com/videoflix/streamcore/internal/catalog"
	"github.com/videoflix/streamcore/internal/logging"
	"github.com/videoflix/streamcore/internal/middleware"
	"github.com/videoflix/streamcore/internal/queue"
	"github.com/videoflix/streamcore/internal/storage"
	"github.com/videoflix/streamcore/pkg/models"
)

// VideoStore is the video record admin surface behind the API.
type VideoStore interface {
	CreateVideo(ctx context.Context, video *models.Video) error
	GetVideo(ctx context.Context, id string) (*models.Video, error)
	ListVideos(ctx context.Context) ([]*models.Video, error)
	DeleteVideo(ctx context.Context, id string) error
}

// API is the HTTP surface: video admin, job control and HLS delivery.
type API struct {
	queue   *queue.Queue
	catalog *catalog.Catalog
	blobs   storage.Store
	videos  VideoStore
	jobs    *cache.Cache // optional status cache, may be nil
	authz   middleware.Authorizer
	log     *logging.Logger
}

// New wires the API surface.
func New(q *queue.Queue, cat *catalog.Catalog, blobs storage.Store, videos VideoStore,
	jobs *cache.Cache, authz middleware.Authorizer, log *logging.Logger) *API {
	if authz == nil {
		authz = middleware.AllowAll{}
	}
	return &API{
		queue:   q,
		catalog: cat,
		blobs:   blobs,
		videos:  videos,
		jobs:    jobs,
		authz:   authz,
		log:     log,
	}
}

// authorize checks the caller against one video and writes the 403 itself.
func (api *API) authorize(c *gin.Context, videoID string) bool {
	if api.authz.IsAuthorized(c.Request.Context(), middleware.Caller(c), videoID) {
		return true
	}
	c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
	return false
}

// respondError maps domain errors onto HTTP statuses.
func (api *API) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		api.log.ErrorWithErr("request failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
