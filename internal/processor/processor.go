package processor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"scenecut-server/internal/detector"
	"scenecut-server/internal/metrics"
	"scenecut-server/internal/models"
	"scenecut-server/internal/queue"
	"scenecut-server/internal/scenedetect"

	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog"
)

// Store is the persistence the processor needs
type Store interface {
	GetVideoByID(id uint) (*models.Video, error)
	UpdateVideoStatus(id uint, status models.VideoStatus, errorMessage *string) error
	ReplaceScenes(video *models.Video, scenes []models.Scene) error
	CreateProcessingJob(job *models.ProcessingJob) error
	GetProcessingJobByQueueID(queueJobID string) (*models.ProcessingJob, error)
	UpdateProcessingJob(job *models.ProcessingJob) error
}

// JobQueue is the part of the redis queue the worker uses
type JobQueue interface {
	Dequeue(ctx context.Context, timeout time.Duration, jobTypes ...models.JobType) (*queue.Job, error)
	UpdateJobStatus(ctx context.Context, jobID string, status models.JobStatus, progress int, errorMessage *string) error
}

// SceneDetector runs detection on one video file
type SceneDetector interface {
	DetectScenes(ctx context.Context, videoPath, outputDir string) (*scenedetect.Result, error)
}

// DetectorFactory builds a scene detector for the given settings
type DetectorFactory func(cfg detector.Config) (SceneDetector, error)

// SceneDetectionPayload is the queue payload of a scene_detection job
type SceneDetectionPayload struct {
	VideoID   uint                  `json:"video_id"`
	Overrides *models.DetectRequest `json:"overrides,omitempty"`
}

// VideoProcessor handles video processing tasks
type VideoProcessor struct {
	store        Store
	newDetector  DetectorFactory
	base         detector.Config
	thumbnailDir string
	logger       zerolog.Logger
	metrics      *metrics.Metrics
}

// NewVideoProcessor creates a new video processor instance. Thumbnails of
// video N go to thumbnailDir/video_N; an empty thumbnailDir disables them.
func NewVideoProcessor(store Store, newDetector DetectorFactory, base detector.Config, thumbnailDir string, logger zerolog.Logger, m *metrics.Metrics) *VideoProcessor {
	return &VideoProcessor{
		store:        store,
		newDetector:  newDetector,
		base:         base,
		thumbnailDir: thumbnailDir,
		logger:       logger.With().Str("component", "processor").Logger(),
		metrics:      m,
	}
}

// SceneDetectorFactory adapts a configured scene detector into a DetectorFactory
func SceneDetectorFactory(d *scenedetect.Detector) DetectorFactory {
	return func(cfg detector.Config) (SceneDetector, error) {
		configured, err := d.WithConfig(cfg)
		if err != nil {
			return nil, err
		}
		return configured, nil
	}
}

// ApplyOverrides returns base with the non-nil request fields applied
func ApplyOverrides(base detector.Config, req *models.DetectRequest) detector.Config {
	cfg := base
	if req == nil {
		return cfg
	}
	if req.AdaptiveThreshold != nil {
		cfg.AdaptiveThreshold = *req.AdaptiveThreshold
	}
	if req.MinSceneLen != nil {
		cfg.MinSceneLen = *req.MinSceneLen
	}
	if req.WindowWidth != nil {
		cfg.WindowWidth = *req.WindowWidth
	}
	if req.MinContentVal != nil {
		cfg.MinContentVal = *req.MinContentVal
	}
	if req.WeightHue != nil {
		cfg.Weights.Hue = *req.WeightHue
	}
	if req.WeightSat != nil {
		cfg.Weights.Sat = *req.WeightSat
	}
	if req.WeightLuma != nil {
		cfg.Weights.Luma = *req.WeightLuma
	}
	if req.WeightEdges != nil {
		cfg.Weights.Edges = *req.WeightEdges
	}
	if req.KernelSize != nil {
		cfg.KernelSize = *req.KernelSize
	}
	return cfg
}

// ThumbnailDir returns the directory holding the thumbnails of a video
func (vp *VideoProcessor) ThumbnailDir(videoID uint) string {
	if vp.thumbnailDir == "" {
		return ""
	}
	return filepath.Join(vp.thumbnailDir, fmt.Sprintf("video_%d", videoID))
}

// DetectVideo runs scene detection on a stored video and replaces its scenes.
// The video is marked failed when detection does not complete.
func (vp *VideoProcessor) DetectVideo(ctx context.Context, videoID uint, overrides *models.DetectRequest) (*models.Video, error) {
	video, err := vp.store.GetVideoByID(videoID)
	if err != nil {
		return nil, fmt.Errorf("failed to load video %d: %w", videoID, err)
	}

	video, err = vp.detect(ctx, video, overrides)
	if err != nil {
		msg := err.Error()
		if statusErr := vp.store.UpdateVideoStatus(videoID, models.VideoStatusFailed, &msg); statusErr != nil {
			vp.logger.Error().Err(statusErr).Uint("video_id", videoID).Msg("failed to mark video as failed")
		}
		return nil, err
	}
	return video, nil
}

func (vp *VideoProcessor) detect(ctx context.Context, video *models.Video, overrides *models.DetectRequest) (*models.Video, error) {
	cfg := ApplyOverrides(vp.base, overrides)
	det, err := vp.newDetector(cfg)
	if err != nil {
		return nil, err
	}

	if err := vp.store.UpdateVideoStatus(video.ID, models.VideoStatusProcessing, nil); err != nil {
		return nil, fmt.Errorf("failed to update video status: %w", err)
	}

	outputDir := vp.ThumbnailDir(video.ID)
	if outputDir != "" {
		// stale thumbnails from an earlier run would outnumber the new scenes
		if err := os.RemoveAll(outputDir); err != nil {
			return nil, fmt.Errorf("failed to clear thumbnails: %w", err)
		}
	}

	log := vp.logger.With().Uint("video_id", video.ID).Str("path", video.Filepath).Logger()
	log.Info().Msg("processing scene detection")

	result, err := det.DetectScenes(ctx, video.Filepath, outputDir)
	if err != nil {
		return nil, fmt.Errorf("scene detection failed: %w", err)
	}

	now := time.Now().UTC()
	video.Status = models.VideoStatusCompleted
	video.ErrorMessage = nil
	video.LastProcessedAt = &now
	video.FPS = result.FPS
	video.FrameCount = result.FrameCount
	if info := result.Video; info != nil {
		video.Width = info.Width
		video.Height = info.Height
		video.Duration = info.Duration
	}
	if video.Metadata == nil {
		video.Metadata = models.JSONObject{}
	}
	video.Metadata["detector"] = cfg
	video.Metadata["truncated"] = result.Truncated

	scenes := ScenesFromResult(video.ID, result)
	if err := vp.store.ReplaceScenes(video, scenes); err != nil {
		return nil, fmt.Errorf("failed to store scenes: %w", err)
	}
	video.Scenes = scenes

	log.Info().Int("scenes", len(scenes)).Bool("truncated", result.Truncated).Msg("scene detection stored")
	return video, nil
}

// ScenesFromResult converts detection output into scene rows
func ScenesFromResult(videoID uint, result *scenedetect.Result) []models.Scene {
	scenes := make([]models.Scene, 0, len(result.Scenes))
	for _, s := range result.Scenes {
		scene := models.Scene{
			VideoID:    videoID,
			SceneIndex: s.Index,
			StartFrame: s.StartFrame,
			EndFrame:   s.EndFrame,
			StartTime:  s.StartTime,
			EndTime:    s.EndTime,
			Thumbnail:  s.Thumbnail,
		}
		if c := s.Cut; c != nil {
			score, ratio := c.Score, c.Ratio
			scene.CutScore = &score
			scene.CutRatio = &ratio
			if len(c.Window) > 0 {
				window := make([]float32, len(c.Window))
				for i, sample := range c.Window {
					window[i] = float32(sample.Score)
				}
				vec := pgvector.NewVector(window)
				scene.CutWindow = &vec
			}
		}
		scenes = append(scenes, scene)
	}
	return scenes
}

// ProcessSceneDetection handles a scene_detection job taken from the queue
func (vp *VideoProcessor) ProcessSceneDetection(ctx context.Context, q JobQueue, job *queue.Job) error {
	var payload SceneDetectionPayload
	if err := job.Decode(&payload); err != nil {
		return vp.finishJob(ctx, q, job, nil, err)
	}
	if payload.VideoID == 0 {
		return vp.finishJob(ctx, q, job, nil, errors.New("missing video_id in payload"))
	}

	record := vp.trackJob(job, payload.VideoID)
	if err := q.UpdateJobStatus(ctx, job.ID, models.JobStatusRunning, 0, nil); err != nil {
		vp.logger.Warn().Err(err).Str("job_id", job.ID).Msg("failed to mark job running")
	}

	_, err := vp.DetectVideo(ctx, payload.VideoID, payload.Overrides)
	return vp.finishJob(ctx, q, job, record, err)
}

// trackJob loads or creates the ProcessingJob row of a queue job and marks it
// running. Bookkeeping failures are logged and do not stop the job.
func (vp *VideoProcessor) trackJob(job *queue.Job, videoID uint) *models.ProcessingJob {
	record, err := vp.store.GetProcessingJobByQueueID(job.ID)
	if err != nil {
		record = &models.ProcessingJob{
			VideoID:    &videoID,
			QueueJobID: job.ID,
			JobType:    job.Type,
		}
	}

	now := time.Now().UTC()
	record.Status = models.JobStatusRunning
	record.StartedAt = &now

	if record.ID == 0 {
		err = vp.store.CreateProcessingJob(record)
	} else {
		err = vp.store.UpdateProcessingJob(record)
	}
	if err != nil {
		vp.logger.Warn().Err(err).Str("job_id", job.ID).Msg("failed to record processing job")
	}
	return record
}

func (vp *VideoProcessor) finishJob(ctx context.Context, q JobQueue, job *queue.Job, record *models.ProcessingJob, jobErr error) error {
	status, progress := models.JobStatusCompleted, 100
	var msg *string
	if jobErr != nil {
		status, progress = models.JobStatusFailed, 0
		m := jobErr.Error()
		msg = &m
	}
	vp.metrics.ObserveJob(string(job.Type), string(status))

	// ctx may already be cancelled when the job failed on shutdown
	statusCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := q.UpdateJobStatus(statusCtx, job.ID, status, progress, msg); err != nil {
		vp.logger.Warn().Err(err).Str("job_id", job.ID).Msg("failed to update job status")
	}

	if record != nil {
		now := time.Now().UTC()
		record.Status = status
		record.Progress = progress
		record.CompletedAt = &now
		record.ErrorMessage = msg
		if err := vp.store.UpdateProcessingJob(record); err != nil {
			vp.logger.Warn().Err(err).Str("job_id", job.ID).Msg("failed to update processing job")
		}
	}

	return jobErr
}
