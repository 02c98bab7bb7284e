package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteDB implements the Database interface using SQLite
type SQLiteDB struct {
	db *sql.DB
}

// NewSQLiteDB creates a new SQLite database instance
func NewSQLiteDB(dbPath string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %v", err)
	}

	err = initTables(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize tables: %v", err)
	}

	return &SQLiteDB{db: db}, nil
}

// initTables creates the necessary tables if they don't exist
func initTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS cameras (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			url TEXT NOT NULL,
			username TEXT,
			password TEXT,
			audio_enabled INTEGER DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`)
	return err
}

// CreateCamera inserts a new camera record
func (s *SQLiteDB) CreateCamera(camera Camera) error {
	now := time.Now()
	if camera.CreatedAt.IsZero() {
		camera.CreatedAt = now
	}
	camera.UpdatedAt = now

	_, err := s.db.Exec(`
		INSERT INTO cameras (id, name, url, username, password, audio_enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, camera.ID, camera.Name, camera.URL, camera.Username, camera.Password,
		boolToInt(camera.AudioEnabled), camera.CreatedAt, camera.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create camera %s: %v", camera.ID, err)
	}
	return nil
}

// GetCamera retrieves a camera by ID
func (s *SQLiteDB) GetCamera(id string) (*Camera, error) {
	var camera Camera
	var audioEnabled int

	err := s.db.QueryRow(`
		SELECT id, name, url, username, password, audio_enabled, created_at, updated_at
		FROM cameras WHERE id = ?
	`, id).Scan(&camera.ID, &camera.Name, &camera.URL, &camera.Username,
		&camera.Password, &audioEnabled, &camera.CreatedAt, &camera.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrCameraNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get camera %s: %v", id, err)
	}

	camera.AudioEnabled = audioEnabled != 0
	return &camera, nil
}

// ListCameras returns all registered cameras
func (s *SQLiteDB) ListCameras() ([]Camera, error) {
	rows, err := s.db.Query(`
		SELECT id, name, url, username, password, audio_enabled, created_at, updated_at
		FROM cameras ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cameras: %v", err)
	}
	defer rows.Close()

	var cameras []Camera
	for rows.Next() {
		var camera Camera
		var audioEnabled int
		err := rows.Scan(&camera.ID, &camera.Name, &camera.URL, &camera.Username,
			&camera.Password, &audioEnabled, &camera.CreatedAt, &camera.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan camera row: %v", err)
		}
		camera.AudioEnabled = audioEnabled != 0
		cameras = append(cameras, camera)
	}
	return cameras, rows.Err()
}

// UpdateCamera updates an existing camera record
func (s *SQLiteDB) UpdateCamera(camera Camera) error {
	result, err := s.db.Exec(`
		UPDATE cameras
		SET name = ?, url = ?, username = ?, password = ?, audio_enabled = ?, updated_at = ?
		WHERE id = ?
	`, camera.Name, camera.URL, camera.Username, camera.Password,
		boolToInt(camera.AudioEnabled), time.Now(), camera.ID)
	if err != nil {
		return fmt.Errorf("failed to update camera %s: %v", camera.ID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrCameraNotFound
	}
	return nil
}

// DeleteCamera removes a camera record
func (s *SQLiteDB) DeleteCamera(id string) error {
	result, err := s.db.Exec(`DELETE FROM cameras WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete camera %s: %v", id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrCameraNotFound
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
