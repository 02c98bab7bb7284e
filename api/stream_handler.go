package api

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"

	"camstream/database"
	"camstream/hls"
	"camstream/stream"

	"github.com/gin-gonic/gin"
)

var (
	segmentPattern  = regexp.MustCompile(`^segment_\d+\.ts$`)
	streamIDPattern = regexp.MustCompile(`^[A-Za-z0-9-]+$`)
	segmentRefs     = regexp.MustCompile(`segment_\d+\.ts`)
)

// POST /api/v1/cameras/:cameraId/stream/start
func (s *Server) startStream(c *gin.Context) {
	cameraID := c.Param("cameraId")

	streamID, err := s.manager.StartStream(cameraID)
	if err != nil {
		switch {
		case errors.Is(err, database.ErrCameraNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Camera not found"})
		case errors.Is(err, stream.ErrConnectionTimeout):
			c.JSON(http.StatusGatewayTimeout, gin.H{"error": "Failed to connect to camera within timeout"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to start stream: %v", err)})
		}
		return
	}

	hlsURL, _ := s.manager.HlsURL(cameraID)
	c.JSON(http.StatusOK, gin.H{
		"streamId": streamID,
		"hlsUrl":   hlsURL,
	})
}

// POST /api/v1/cameras/:cameraId/stream/stop
func (s *Server) stopStream(c *gin.Context) {
	cameraID := c.Param("cameraId")

	if err := s.manager.StopStream(cameraID); err != nil {
		if errors.Is(err, stream.ErrNotActive) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No active stream for camera"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

// GET /api/v1/cameras/:cameraId/stream/status
func (s *Server) streamStatus(c *gin.Context) {
	cameraID := c.Param("cameraId")

	streamID, active := s.manager.StreamID(cameraID)
	if !active {
		c.JSON(http.StatusOK, gin.H{"active": false})
		return
	}

	hlsURL, _ := s.manager.HlsURL(cameraID)
	quality, _ := s.manager.Quality(cameraID)
	startedAt, _ := s.manager.StartedAt(cameraID)
	c.JSON(http.StatusOK, gin.H{
		"active":    true,
		"streamId":  streamID,
		"hlsUrl":    hlsURL,
		"quality":   quality,
		"startedAt": startedAt.UnixMilli(),
	})
}

// POST /api/v1/cameras/:cameraId/stream/quality
func (s *Server) setStreamQuality(c *gin.Context) {
	cameraID := c.Param("cameraId")

	var body struct {
		Quality string `json:"quality"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	quality, err := hls.ParseQuality(body.Quality)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.manager.SetQuality(cameraID, quality); err != nil {
		if errors.Is(err, stream.ErrNotActive) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No active stream for camera"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "quality": quality})
}

// GET /api/v1/streams/:streamId/hls/:file
// Serves either the playlist (with segment references rewritten to their
// public URLs) or an individual segment.
func (s *Server) serveHLS(c *gin.Context) {
	streamID := c.Param("streamId")
	file := c.Param("file")

	if !streamIDPattern.MatchString(streamID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid stream ID"})
		return
	}

	if file == "playlist.m3u8" {
		s.servePlaylist(c, streamID)
		return
	}
	s.serveSegment(c, streamID, file)
}

func (s *Server) servePlaylist(c *gin.Context, streamID string) {
	playlistPath := filepath.Join(s.config.HLSRoot, streamID, "playlist.m3u8")
	data, err := os.ReadFile(playlistPath)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "HLS playlist not found"})
		return
	}

	// Rewrite bare segment file names to their public URLs
	content := segmentRefs.ReplaceAllStringFunc(string(data), func(name string) string {
		return fmt.Sprintf("/api/v1/streams/%s/hls/%s", streamID, name)
	})

	c.Header("Cache-Control", "no-cache")
	c.Data(http.StatusOK, "application/vnd.apple.mpegurl", []byte(content))
}

func (s *Server) serveSegment(c *gin.Context, streamID, segmentName string) {
	// Only exact segment names pass; anything else is a traversal attempt
	if !segmentPattern.MatchString(segmentName) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid segment name"})
		return
	}

	segmentPath := filepath.Join(s.config.HLSRoot, streamID, segmentName)
	if _, err := os.Stat(segmentPath); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Segment not found"})
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.File(segmentPath)
}
