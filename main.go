package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"camstream/api"
	"camstream/config"
	"camstream/database"
	"camstream/events"
	"camstream/hls"
	"camstream/monitoring"
	"camstream/stream"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := config.LoadConfig()

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0755); err != nil {
		log.Fatalf("Failed to create database directory: %v", err)
	}
	db, err := database.NewSQLiteDB(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}

	hub := events.NewHub()
	generator := hls.NewGenerator(cfg.HLSRoot, cfg.FFmpegPath)
	manager := stream.NewManager(cfg, db, generator, hub, nil)
	sweeper := stream.NewSweeper(manager, cfg.StreamIdleTimeout, cfg.SweepInterval)
	sweeper.Start()

	monitoring.StartMonitoring(5*time.Minute, cfg.HLSRoot)

	server := api.NewServer(cfg, db, manager, hub)
	httpServer := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: server.Router(),
	}

	go func() {
		log.Printf("Starting API server on :%s", cfg.ServerPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("API server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error shutting down HTTP server: %v", err)
	}

	sweeper.Stop()
	manager.Close()
	hub.Close()
	if err := db.Close(); err != nil {
		log.Printf("Error closing database: %v", err)
	}
	log.Println("Shutdown complete")
}
