package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"scenecut-server/internal/config"
	"scenecut-server/internal/detector"
	"scenecut-server/internal/metrics"
	"scenecut-server/internal/models"
	"scenecut-server/internal/queue"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Store is the persistence the API needs
type Store interface {
	CreateVideo(video *models.Video) error
	GetVideoByID(id uint) (*models.Video, error)
	GetVideoByHash(hash string) (*models.Video, error)
	ListVideos(limit, offset int) ([]models.Video, int64, error)
	DeleteVideo(id uint) error
	GetScenesByVideoID(videoID uint) ([]models.Scene, error)
	CreateProcessingJob(job *models.ProcessingJob) error
	GetProcessingJobsByVideoID(videoID uint) ([]models.ProcessingJob, error)
	GetStats() (*models.DatabaseStats, error)
	Health() error
}

// JobQueue is the part of the redis queue the API uses
type JobQueue interface {
	Enqueue(ctx context.Context, jobType models.JobType, payload interface{}) (*queue.Job, error)
	GetJob(ctx context.Context, jobID string) (*queue.Job, error)
	ListJobs(ctx context.Context, jobType models.JobType, limit int) ([]*queue.Job, error)
	Ping(ctx context.Context) error
}

// VideoDetector runs detection synchronously when no queue is configured
type VideoDetector interface {
	DetectVideo(ctx context.Context, videoID uint, overrides *models.DetectRequest) (*models.Video, error)
}

// Options wires the server's collaborators. Queue and Detector are optional
// but at least one is needed for detection endpoints.
type Options struct {
	Store    Store
	Queue    JobQueue
	Detector VideoDetector
	Metrics  *metrics.Metrics
	Server   config.ServerConfig
	Defaults detector.Config
	Logger   zerolog.Logger
}

// Server is the HTTP API
type Server struct {
	router   *gin.Engine
	store    Store
	queue    JobQueue
	detector VideoDetector
	metrics  *metrics.Metrics
	cfg      config.ServerConfig
	defaults detector.Config
	logger   zerolog.Logger
}

// NewServer builds the router
func NewServer(opts Options) *Server {
	s := &Server{
		store:    opts.Store,
		queue:    opts.Queue,
		detector: opts.Detector,
		metrics:  opts.Metrics,
		cfg:      opts.Server,
		defaults: opts.Defaults,
		logger:   opts.Logger.With().Str("component", "api").Logger(),
	}

	r := gin.New()
	r.MaxMultipartMemory = 32 << 20
	r.Use(gin.Recovery())
	r.Use(requestLogger(s.logger))
	r.Use(corsMiddleware())

	r.GET("/health", s.healthCheck)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
	r.GET("/cdn/:path", s.serveFile)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/videos", s.listVideos)
		v1.POST("/videos", s.createVideo)
		v1.POST("/videos/upload", s.uploadVideo)
		v1.GET("/videos/:id", s.getVideo)
		v1.DELETE("/videos/:id", s.deleteVideo)
		v1.GET("/videos/:id/scenes", s.getScenes)
		v1.POST("/videos/:id/detect", s.detectVideo)

		v1.GET("/stats", s.getStats)

		v1.GET("/jobs", s.listJobs)
		v1.GET("/jobs/:id", s.getJob)
	}

	s.router = r
	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Middleware

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		event := logger.Info()
		if status >= http.StatusInternalServerError {
			event = logger.Error()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}
