package delivery

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/videoflix/streamcore/pkg/models"
)

// enqueueTranscode accepts a transcode request for one profile, or for the
// whole ladder when no profile is named. Always 202: completion is observed
// by polling the job status.
func (api *API) enqueueTranscode(c *gin.Context) {
	videoID := c.Param("id")
	if !api.authorize(c, videoID) {
		return
	}

	var req struct {
		Profile   string `json:"profile"`
		Overwrite bool   `json:"overwrite"`
	}
	// An empty body means the whole ladder with defaults.
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	if req.Profile == "" {
		jobs, err := api.queue.EnqueueAll(ctx, videoID, req.Overwrite)
		if err != nil {
			api.respondError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"jobs": jobs})
		return
	}

	job, err := api.queue.Enqueue(ctx, videoID, req.Profile, req.Overwrite)
	if err != nil {
		api.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job": job})
}

// jobStatus serves the job record, through the short-TTL cache when one is
// configured. Status polling is the hottest read path after segments.
func (api *API) jobStatus(c *gin.Context) {
	jobID := c.Param("id")
	ctx := c.Request.Context()

	if api.jobs != nil {
		if job, err := api.jobs.GetJob(ctx, jobID); err == nil && job != nil {
			c.JSON(http.StatusOK, job)
			return
		}
	}

	job, err := api.queue.Status(ctx, jobID)
	if err != nil {
		api.respondError(c, err)
		return
	}
	if api.jobs != nil {
		if err := api.jobs.SetJob(ctx, job); err != nil {
			api.log.WithJobID(jobID).Debug("failed to cache job status")
		}
	}
	c.JSON(http.StatusOK, job)
}

// cancelJob withdraws a queued job. Running jobs are past the point of no
// return and answer 409.
func (api *API) cancelJob(c *gin.Context) {
	jobID := c.Param("id")
	job, err := api.queue.Cancel(c.Request.Context(), jobID)
	if err != nil {
		api.respondError(c, err)
		return
	}
	if api.jobs != nil {
		// Cancellation must be visible on the next poll.
		if err := api.jobs.DeleteJob(c.Request.Context(), jobID); err != nil {
			api.log.WithJobID(jobID).Debug("failed to evict cached job status")
		}
	}
	c.JSON(http.StatusOK, gin.H{"job": job, "status": models.JobStatusCancelled})
}
