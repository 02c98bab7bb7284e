package config

import (
	"os"
	"strconv"
	"time"
)

// Config contains all configuration for the application
type Config struct {
	// Server Configuration
	ServerPort string
	BaseURL    string // Base URL for accessing HLS playlists

	// Database Configuration
	DatabasePath string

	// Streaming Configuration
	HLSRoot         string        // Root directory for per-stream HLS output
	FFmpegPath      string        // FFmpeg binary, overridable for hwaccel builds
	ConnectTimeout  time.Duration // Max wait for an RTSP session to become usable
	FrameBufferSize int           // Frame relay capacity per stream

	// Cleanup Configuration
	StreamIdleTimeout time.Duration // Tear down streams idle longer than this
	SweepInterval     time.Duration // How often the idle sweeper runs
}

// LoadConfig loads configuration from environment variables
func LoadConfig() Config {
	return Config{
		ServerPort:        getEnv("SERVER_PORT", "3000"),
		BaseURL:           getEnv("BASE_URL", "http://localhost:3000"),
		DatabasePath:      getEnv("DATABASE_PATH", "./data/cameras.db"),
		HLSRoot:           getEnv("HLS_ROOT", "./streams/hls"),
		FFmpegPath:        getEnv("FFMPEG_PATH", "ffmpeg"),
		ConnectTimeout:    time.Duration(getEnvInt("RTSP_CONNECT_TIMEOUT_SEC", 10)) * time.Second,
		FrameBufferSize:   getEnvInt("FRAME_BUFFER_SIZE", 50),
		StreamIdleTimeout: time.Duration(getEnvInt("STREAM_IDLE_TIMEOUT_MIN", 30)) * time.Minute,
		SweepInterval:     time.Duration(getEnvInt("SWEEP_INTERVAL_MIN", 5)) * time.Minute,
	}
}

// getEnv returns environment variable or fallback value
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt returns environment variable parsed as int or fallback value
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}
