package database

import (
	"errors"
	"time"
)

// ErrCameraNotFound is returned when a camera ID has no record
var ErrCameraNotFound = errors.New("camera not found")

// Camera represents a registered IP camera
type Camera struct {
	ID           string    `json:"id"`           // Unique identifier for the camera
	Name         string    `json:"name"`         // Human-readable camera name
	URL          string    `json:"url"`          // RTSP URL (e.g., "rtsp://192.168.1.10:554/stream1")
	Username     string    `json:"username"`     // RTSP authentication username
	Password     string    `json:"password"`     // RTSP authentication password
	AudioEnabled bool      `json:"audioEnabled"` // Whether to pull the audio track
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Database defines the interface for camera directory operations
type Database interface {
	CreateCamera(camera Camera) error
	GetCamera(id string) (*Camera, error)
	ListCameras() ([]Camera, error)
	UpdateCamera(camera Camera) error
	DeleteCamera(id string) error
	Close() error
}
