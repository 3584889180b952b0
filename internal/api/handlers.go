package api

import (
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"scenecut-server/internal/database"
	"scenecut-server/internal/ffmpeg"
	"scenecut-server/internal/models"
	"scenecut-server/internal/processor"
	"scenecut-server/internal/queue"

	"github.com/gin-gonic/gin"
)

func (s *Server) healthCheck(c *gin.Context) {
	status := http.StatusOK
	dbHealth := "ok"
	if err := s.store.Health(); err != nil {
		dbHealth = "error: " + err.Error()
		status = http.StatusServiceUnavailable
	}

	queueHealth := "disabled"
	if s.queue != nil {
		queueHealth = "ok"
		if err := s.queue.Ping(c.Request.Context()); err != nil {
			queueHealth = "error: " + err.Error()
			status = http.StatusServiceUnavailable
		}
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}

	c.JSON(status, gin.H{
		"status":    overall,
		"service":   "scenecut-server",
		"database":  dbHealth,
		"queue":     queueHealth,
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) listVideos(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	videos, total, err := s.store.ListVideos(limit, offset)
	if err != nil {
		s.internalError(c, "Failed to fetch videos", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"videos": videos,
		"pagination": gin.H{
			"total":  total,
			"limit":  limit,
			"offset": offset,
			"count":  len(videos),
		},
	})
}

func (s *Server) createVideo(c *gin.Context) {
	var req models.VideoCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	if info, err := os.Stat(req.Filepath); err != nil || info.IsDir() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Video file not found"})
		return
	}

	hash, err := hashFile(req.Filepath)
	if err != nil {
		s.internalError(c, "Failed to hash video", err)
		return
	}

	if existing, err := s.store.GetVideoByHash(hash); err == nil {
		c.JSON(http.StatusOK, gin.H{
			"video":   existing,
			"message": "Video already registered",
		})
		return
	}

	video := &models.Video{
		Filename: req.Filename,
		Filepath: req.Filepath,
		FileHash: hash,
		Title:    req.Title,
		Tags:     models.JSONStringArray(req.Tags),
		Metadata: models.JSONObject(req.Metadata),
		Status:   models.VideoStatusPending,
	}

	if err := s.store.CreateVideo(video); err != nil {
		s.internalError(c, "Failed to create video", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"video":   video,
		"message": "Video created successfully",
	})
}

func (s *Server) getVideo(c *gin.Context) {
	video, ok := s.loadVideo(c)
	if !ok {
		return
	}

	jobs, err := s.store.GetProcessingJobsByVideoID(video.ID)
	if err != nil {
		s.logger.Warn().Err(err).Uint("video_id", video.ID).Msg("failed to load processing jobs")
	}

	c.JSON(http.StatusOK, gin.H{
		"video":           video,
		"processing_jobs": jobs,
	})
}

func (s *Server) deleteVideo(c *gin.Context) {
	id, ok := videoID(c)
	if !ok {
		return
	}

	if err := s.store.DeleteVideo(id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Video not found"})
			return
		}
		s.internalError(c, "Failed to delete video", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Video deleted successfully",
	})
}

func (s *Server) getScenes(c *gin.Context) {
	video, ok := s.loadVideo(c)
	if !ok {
		return
	}

	scenes := video.Scenes
	if scenes == nil {
		var err error
		if scenes, err = s.store.GetScenesByVideoID(video.ID); err != nil {
			s.internalError(c, "Failed to fetch scenes", err)
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"video_id": video.ID,
		"status":   video.Status,
		"fps":      video.FPS,
		"scenes":   s.sceneResponses(video, scenes),
		"count":    len(scenes),
	})
}

func (s *Server) sceneResponses(video *models.Video, scenes []models.Scene) []models.SceneResponse {
	out := make([]models.SceneResponse, 0, len(scenes))
	for _, scene := range scenes {
		out = append(out, models.SceneResponse{
			Scene:         scene,
			StartTimecode: ffmpeg.FormatTimecode(scene.StartFrame, video.FPS),
			EndTimecode:   ffmpeg.FormatTimecode(scene.EndFrame, video.FPS),
			ThumbnailURL:  s.fileURL(scene.Thumbnail),
		})
	}
	return out
}

func (s *Server) detectVideo(c *gin.Context) {
	video, ok := s.loadVideo(c)
	if !ok {
		return
	}

	var overrides *models.DetectRequest
	if c.Request.ContentLength != 0 {
		var req models.DetectRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid detection settings",
				"details": err.Error(),
			})
			return
		}
		overrides = &req
	}

	if err := processor.ApplyOverrides(s.defaults, overrides).Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid detection settings",
			"details": err.Error(),
		})
		return
	}

	s.startDetection(c, video, overrides, http.StatusAccepted)
}

// startDetection enqueues a job for the video, or runs detection inline when
// the server has no queue.
func (s *Server) startDetection(c *gin.Context, video *models.Video, overrides *models.DetectRequest, created int) {
	switch {
	case s.queue != nil:
		job, err := s.queue.Enqueue(c.Request.Context(), models.JobTypeSceneDetection, processor.SceneDetectionPayload{
			VideoID:   video.ID,
			Overrides: overrides,
		})
		if err != nil {
			s.internalError(c, "Failed to enqueue scene detection", err)
			return
		}

		record := &models.ProcessingJob{
			VideoID:    &video.ID,
			QueueJobID: job.ID,
			JobType:    models.JobTypeSceneDetection,
			Status:     models.JobStatusPending,
		}
		if err := s.store.CreateProcessingJob(record); err != nil {
			s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("failed to record processing job")
		}
		s.metrics.ObserveJob(string(job.Type), string(models.JobStatusPending))

		c.JSON(created, gin.H{
			"video":   video,
			"job":     job,
			"message": "Scene detection queued",
		})

	case s.detector != nil:
		detected, err := s.detector.DetectVideo(c.Request.Context(), video.ID, overrides)
		if err != nil {
			s.internalError(c, "Scene detection failed", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"video":  detected,
			"scenes": s.sceneResponses(detected, detected.Scenes),
			"count":  len(detected.Scenes),
		})

	default:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Scene detection is not available"})
	}
}

func (s *Server) getStats(c *gin.Context) {
	stats, err := s.store.GetStats()
	if err != nil {
		s.internalError(c, "Failed to get statistics", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"stats":     stats,
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) listJobs(c *gin.Context) {
	if s.queue == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Job queue not configured"})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		limit = 50
	}

	jobs, err := s.queue.ListJobs(c.Request.Context(), models.JobType(c.Query("type")), limit)
	if err != nil {
		s.internalError(c, "Failed to list jobs", err)
		return
	}
	if jobs == nil {
		jobs = []*queue.Job{}
	}

	c.JSON(http.StatusOK, gin.H{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

func (s *Server) getJob(c *gin.Context) {
	if s.queue == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Job queue not configured"})
		return
	}

	job, err := s.queue.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, queue.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		s.internalError(c, "Failed to get job", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"job": job})
}

// Helpers

func videoID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid video ID"})
		return 0, false
	}
	return uint(id), true
}

func (s *Server) loadVideo(c *gin.Context) (*models.Video, bool) {
	id, ok := videoID(c)
	if !ok {
		return nil, false
	}

	video, err := s.store.GetVideoByID(id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Video not found"})
			return nil, false
		}
		s.internalError(c, "Failed to fetch video", err)
		return nil, false
	}
	return video, true
}

func (s *Server) internalError(c *gin.Context, msg string, err error) {
	s.logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg(msg)
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   msg,
		"details": err.Error(),
	})
}
