package api

import (
	"fmt"
	"net/http"

	"camstream/config"
	"camstream/database"
	"camstream/events"
	"camstream/monitoring"
	"camstream/stream"

	"github.com/gin-gonic/gin"
)

type Server struct {
	config  config.Config
	db      database.Database
	manager *stream.Manager
	hub     *events.Hub
}

func NewServer(cfg config.Config, db database.Database, manager *stream.Manager, hub *events.Hub) *Server {
	return &Server{
		config:  cfg,
		db:      db,
		manager: manager,
		hub:     hub,
	}
}

// Router builds the gin engine; exposed so main can wrap it in an
// http.Server for graceful shutdown and tests can drive it directly
func (s *Server) Router() *gin.Engine {
	r := gin.Default()
	s.setupCORS(r)
	s.setupRoutes(r)
	return r
}

func (s *Server) Start() error {
	portAddr := ":" + s.config.ServerPort
	fmt.Printf("Starting API server on %s\n", portAddr)
	return s.Router().Run(portAddr)
}

func (s *Server) setupCORS(r *gin.Engine) {
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})
}

func (s *Server) setupRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		cameras := api.Group("/cameras")
		{
			cameras.GET("", s.listCameras)
			cameras.POST("", s.createCamera)
			cameras.GET("/:cameraId", s.getCamera)
			cameras.DELETE("/:cameraId", s.deleteCamera)

			cameras.POST("/:cameraId/stream/start", s.startStream)
			cameras.POST("/:cameraId/stream/stop", s.stopStream)
			cameras.GET("/:cameraId/stream/status", s.streamStatus)
			cameras.POST("/:cameraId/stream/quality", s.setStreamQuality)
		}

		// HLS delivery is unauthenticated so video players can fetch it
		api.GET("/streams/:streamId/hls/:file", s.serveHLS)

		api.GET("/system/health", s.getSystemHealth)
	}

	if s.hub != nil {
		r.GET("/ws", func(c *gin.Context) {
			s.hub.ServeWS(c.Writer, c.Request)
		})
	}
}

// GET /api/v1/system/health
func (s *Server) getSystemHealth(c *gin.Context) {
	usage, err := monitoring.GetCurrentResourceUsage(s.config.HLSRoot)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"cpu":            usage.CPUPercent,
		"memory_used":    usage.MemoryUsedMB,
		"memory_total":   usage.MemoryTotalMB,
		"memory_percent": usage.MemoryPercent,
		"goroutines":     usage.NumGoroutines,
		"storage":        usage.Storage,
		"active_streams": s.manager.ActiveCount(),
	})
}
