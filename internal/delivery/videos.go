package delivery

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/videoflix/streamcore/pkg/models"
)

func (api *API) createVideo(c *gin.Context) {
	var req struct {
		Title     string `json:"title" binding:"required"`
		SourceKey string `json:"source_key" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// The source must exist before a record points at it; jobs enqueue
	// against the record and fail late otherwise.
	if _, err := api.blobs.Stat(c.Request.Context(), req.SourceKey); err != nil {
		api.respondError(c, err)
		return
	}

	video := &models.Video{Title: req.Title, SourceKey: req.SourceKey}
	if err := api.videos.CreateVideo(c.Request.Context(), video); err != nil {
		api.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, video)
}

func (api *API) listVideos(c *gin.Context) {
	videos, err := api.videos.ListVideos(c.Request.Context())
	if err != nil {
		api.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"videos": videos, "count": len(videos)})
}

func (api *API) getVideo(c *gin.Context) {
	videoID := c.Param("id")
	if !api.authorize(c, videoID) {
		return
	}
	video, err := api.videos.GetVideo(c.Request.Context(), videoID)
	if err != nil {
		api.respondError(c, err)
		return
	}
	profiles, err := api.catalog.List(c.Request.Context(), videoID)
	if err != nil {
		api.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"video":      video,
		"renditions": profiles,
	})
}

// deleteVideo removes the record, its catalog entries, the rendition trees
// and the source object, in that order. Players lose the catalog entry
// first, so nothing serves from a half-deleted tree.
func (api *API) deleteVideo(c *gin.Context) {
	videoID := c.Param("id")
	if !api.authorize(c, videoID) {
		return
	}
	ctx := c.Request.Context()

	video, err := api.videos.GetVideo(ctx, videoID)
	if err != nil {
		api.respondError(c, err)
		return
	}
	if err := api.catalog.RemoveVideo(ctx, videoID); err != nil {
		api.respondError(c, err)
		return
	}
	if err := api.blobs.RemovePrefix(ctx, "hls/"+videoID+"/"); err != nil {
		api.respondError(c, err)
		return
	}
	if err := api.blobs.RemovePrefix(ctx, video.SourceKey); err != nil {
		api.respondError(c, err)
		return
	}
	if err := api.videos.DeleteVideo(ctx, videoID); err != nil {
		api.respondError(c, err)
		return
	}

	api.log.WithVideoID(videoID).Infof("video deleted")
	c.JSON(http.StatusOK, gin.H{"deleted": videoID})
}
