package delivery

import (
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/videoflix/streamcore/internal/metrics"
	"github.com/videoflix/streamcore/internal/storage"
	"github.com/videoflix/streamcore/pkg/models"
)

var segmentNameRe = regexp.MustCompile(`^\d{3,}\.ts$`)

// media serves one file out of a rendition tree: the playlist or a segment,
// depending on the requested name. One route handles both because the names
// live in the same path position.
func (api *API) media(c *gin.Context) {
	videoID, profile := c.Param("id"), c.Param("profile")
	name := c.Param("file")
	if !api.authorize(c, videoID) {
		return
	}

	if name == models.PlaylistName {
		defer api.observe(c, "playlist")
		api.playlist(c, videoID, profile)
		return
	}
	defer api.observe(c, "segment")
	api.segment(c, videoID, profile, name)
}

// playlist serves the rendition playlist. Unknown video or profile and
// unregistered renditions all answer 404; the catalog is the single source
// of truth for what is playable.
func (api *API) playlist(c *gin.Context, videoID, profile string) {
	rendition, err := api.catalog.Lookup(c.Request.Context(), videoID, profile)
	if err != nil {
		api.respondError(c, err)
		return
	}
	api.serveObject(c, rendition.PlaylistKey)
}

// segment serves one media segment, with byte-range support for seeking
// players. An index past the end of a registered rendition is a normal 404;
// a registered segment that fails to open is an integrity violation and
// answers 500.
func (api *API) segment(c *gin.Context, videoID, profile, name string) {
	if !segmentNameRe.MatchString(name) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such segment"})
		return
	}
	// Only the canonical zero-padded spelling of an index is a valid name,
	// so every segment has exactly one URL.
	index, err := strconv.Atoi(strings.TrimSuffix(name, ".ts"))
	if err != nil || models.SegmentName(index) != name {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such segment"})
		return
	}

	rendition, err := api.catalog.Lookup(c.Request.Context(), videoID, profile)
	if err != nil {
		api.respondError(c, err)
		return
	}
	if index >= rendition.SegmentCount() {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such segment"})
		return
	}
	api.serveObject(c, rendition.SegmentKeys[index])
}

// listRenditions returns the playable profiles for a video in ladder order.
func (api *API) listRenditions(c *gin.Context) {
	videoID := c.Param("id")
	if !api.authorize(c, videoID) {
		return
	}
	if _, err := api.videos.GetVideo(c.Request.Context(), videoID); err != nil {
		api.respondError(c, err)
		return
	}
	profiles, err := api.catalog.List(c.Request.Context(), videoID)
	if err != nil {
		api.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"video_id": videoID, "renditions": profiles})
}

// serveObject streams a catalog-registered object. The key was verified at
// registration time, so a missing or unreadable object here is storage
// corruption, not a client error.
func (api *API) serveObject(c *gin.Context, key string) {
	obj, info, err := api.blobs.Open(c.Request.Context(), key)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			api.log.WithField("key", key).ErrorWithErr("registered artifact missing from storage", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "rendition artifact unavailable"})
			return
		}
		api.respondError(c, err)
		return
	}
	defer obj.Close()

	c.Header("Content-Type", storage.ContentTypeFor(key))
	c.Header("Cache-Control", "public, max-age=3600")
	http.ServeContent(c.Writer, c.Request, key, info.ModTime, obj)
}

func (api *API) observe(c *gin.Context, kind string) {
	metrics.DeliveryRequestsTotal.WithLabelValues(kind, strconv.Itoa(c.Writer.Status())).Inc()
	if size := c.Writer.Size(); size > 0 {
		metrics.DeliveryBytesTotal.Add(float64(size))
	}
}
