package database

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// TestSQLiteDB tests camera directory operations against a temp database
func TestSQLiteDB(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "camstream-db-test")
	if err != nil {
		t.Fatalf("Failed to create temp directory: %v", err)
	}
	defer os.RemoveAll(tempDir)

	dbPath := filepath.Join(tempDir, "test.db")
	db, err := NewSQLiteDB(dbPath)
	if err != nil {
		t.Fatalf("Failed to create SQLite database: %v", err)
	}
	defer db.Close()

	testCreateAndGetCamera(t, db)
	testListCameras(t, db)
	testUpdateCamera(t, db)
	testDeleteCamera(t, db)
}

func testCreateAndGetCamera(t *testing.T, db *SQLiteDB) {
	camera := Camera{
		ID:           "cam-1",
		Name:         "Front Door",
		URL:          "rtsp://192.168.1.10:554/stream1",
		Username:     "admin",
		Password:     "secret",
		AudioEnabled: true,
	}

	if err := db.CreateCamera(camera); err != nil {
		t.Fatalf("Failed to create camera: %v", err)
	}

	got, err := db.GetCamera("cam-1")
	if err != nil {
		t.Fatalf("Failed to get camera: %v", err)
	}
	if got.Name != camera.Name {
		t.Errorf("Expected name %q, got %q", camera.Name, got.Name)
	}
	if got.URL != camera.URL {
		t.Errorf("Expected URL %q, got %q", camera.URL, got.URL)
	}
	if !got.AudioEnabled {
		t.Errorf("Expected audio enabled")
	}
	if got.CreatedAt.IsZero() {
		t.Errorf("Expected CreatedAt to be set")
	}

	// Unknown camera must map to the sentinel error
	_, err = db.GetCamera("no-such-camera")
	if !errors.Is(err, ErrCameraNotFound) {
		t.Errorf("Expected ErrCameraNotFound, got %v", err)
	}
}

func testListCameras(t *testing.T, db *SQLiteDB) {
	camera := Camera{
		ID:   "cam-2",
		Name: "Backyard",
		URL:  "rtsp://192.168.1.11:554/stream1",
	}
	if err := db.CreateCamera(camera); err != nil {
		t.Fatalf("Failed to create camera: %v", err)
	}

	cameras, err := db.ListCameras()
	if err != nil {
		t.Fatalf("Failed to list cameras: %v", err)
	}
	if len(cameras) != 2 {
		t.Errorf("Expected 2 cameras, got %d", len(cameras))
	}
}

func testUpdateCamera(t *testing.T, db *SQLiteDB) {
	camera := Camera{
		ID:   "cam-2",
		Name: "Backyard East",
		URL:  "rtsp://192.168.1.11:554/stream2",
	}
	if err := db.UpdateCamera(camera); err != nil {
		t.Fatalf("Failed to update camera: %v", err)
	}

	got, err := db.GetCamera("cam-2")
	if err != nil {
		t.Fatalf("Failed to get updated camera: %v", err)
	}
	if got.Name != "Backyard East" {
		t.Errorf("Expected updated name, got %q", got.Name)
	}

	missing := Camera{ID: "no-such-camera"}
	if err := db.UpdateCamera(missing); !errors.Is(err, ErrCameraNotFound) {
		t.Errorf("Expected ErrCameraNotFound on update, got %v", err)
	}
}

func testDeleteCamera(t *testing.T, db *SQLiteDB) {
	if err := db.DeleteCamera("cam-2"); err != nil {
		t.Fatalf("Failed to delete camera: %v", err)
	}
	if _, err := db.GetCamera("cam-2"); !errors.Is(err, ErrCameraNotFound) {
		t.Errorf("Expected ErrCameraNotFound after delete, got %v", err)
	}
	if err := db.DeleteCamera("cam-2"); !errors.Is(err, ErrCameraNotFound) {
		t.Errorf("Expected ErrCameraNotFound on second delete, got %v", err)
	}
}
