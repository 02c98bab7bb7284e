package api

import (
	"errors"
	"net/http"

	"camstream/database"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// GET /api/v1/cameras
func (s *Server) listCameras(c *gin.Context) {
	cameras, err := s.db.ListCameras()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	type cameraView struct {
		database.Camera
		Password string `json:"password,omitempty"`
		Active   bool   `json:"active"`
	}
	views := make([]cameraView, 0, len(cameras))
	for _, cam := range cameras {
		views = append(views, cameraView{
			Camera:   cam,
			Password: "", // never leaked over the API
			Active:   s.manager.IsActive(cam.ID),
		})
	}
	c.JSON(http.StatusOK, gin.H{"cameras": views})
}

// GET /api/v1/cameras/:cameraId
func (s *Server) getCamera(c *gin.Context) {
	camera, err := s.db.GetCamera(c.Param("cameraId"))
	if err != nil {
		if errors.Is(err, database.ErrCameraNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Camera not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	camera.Password = ""
	c.JSON(http.StatusOK, camera)
}

// POST /api/v1/cameras
func (s *Server) createCamera(c *gin.Context) {
	var camera database.Camera
	if err := c.ShouldBindJSON(&camera); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if camera.URL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Camera URL is required"})
		return
	}
	if camera.ID == "" {
		camera.ID = uuid.NewString()
	}

	if err := s.db.CreateCamera(camera); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": camera.ID})
}

// DELETE /api/v1/cameras/:cameraId
func (s *Server) deleteCamera(c *gin.Context) {
	cameraID := c.Param("cameraId")

	// A streaming camera is stopped before its record goes away
	if s.manager.IsActive(cameraID) {
		s.manager.StopStream(cameraID)
	}

	if err := s.db.DeleteCamera(cameraID); err != nil {
		if errors.Is(err, database.ErrCameraNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Camera not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
