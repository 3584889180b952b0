package database

import (
	"errors"
	"fmt"
	"os"
	"time"

	"scenecut-server/internal/models"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("record not found")

// DB represents the database connection
type DB struct {
	*gorm.DB
}

// Config holds database configuration
type Config struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
	TimeZone string `yaml:"timezone"`
}

// DSN renders the config as a libpq connection string
func (c Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		c.Host, c.User, c.Password, c.DBName, c.Port, c.SSLMode, c.TimeZone)
}

// NewConnection creates a new database connection
func NewConnection(config Config, log zerolog.Logger) (*DB, error) {
	return Open(config.DSN(), log)
}

// Open connects using a raw DSN. SQL logging goes through the given logger.
func Open(dsn string, log zerolog.Logger) (*DB, error) {
	sqlLog := log.With().Str("component", "gorm").Logger()

	gormConfig := &gorm.Config{
		Logger: logger.New(
			&sqlLog,
			logger.Config{
				SlowThreshold:             time.Second,
				LogLevel:                  gormLogLevel(log.GetLevel()),
				IgnoreRecordNotFoundError: true,
				Colorful:                  false,
			},
		),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	db, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return &DB{db}, nil
}

func gormLogLevel(level zerolog.Level) logger.LogLevel {
	switch {
	case level <= zerolog.DebugLevel:
		return logger.Info
	case level <= zerolog.WarnLevel:
		return logger.Warn
	case level == zerolog.Disabled:
		return logger.Silent
	default:
		return logger.Error
	}
}

// GetDefaultConfig returns default database configuration from environment variables
func GetDefaultConfig() Config {
	return Config{
		Host:     getEnvOrDefault("DB_HOST", "localhost"),
		Port:     getEnvOrDefault("DB_PORT", "5432"),
		User:     getEnvOrDefault("DB_USER", "scenecut"),
		Password: getEnvOrDefault("DB_PASSWORD", "scenecut_dev_password"),
		DBName:   getEnvOrDefault("DB_NAME", "scenecut"),
		SSLMode:  getEnvOrDefault("DB_SSLMODE", "disable"),
		TimeZone: getEnvOrDefault("DB_TIMEZONE", "UTC"),
	}
}

// AutoMigrate installs the required extensions and migrates all models
func (db *DB) AutoMigrate() error {
	for _, ext := range []string{"uuid-ossp", "vector"} {
		if err := db.Exec(fmt.Sprintf(`CREATE EXTENSION IF NOT EXISTS "%s"`, ext)).Error; err != nil {
			return fmt.Errorf("failed to create extension %s: %w", ext, err)
		}
	}
	return db.DB.AutoMigrate(
		&models.Video{},
		&models.Scene{},
		&models.ProcessingJob{},
	)
}

// GetStats queries database statistics
func (db *DB) GetStats() (*models.DatabaseStats, error) {
	var stats models.DatabaseStats

	err := db.Raw(`
		SELECT
			(SELECT COUNT(*) FROM videos WHERE status <> 'deleted') as total_videos,
			(SELECT COUNT(*) FROM videos WHERE status = 'completed') as completed_videos,
			(SELECT COUNT(*) FROM videos WHERE status = 'failed') as failed_videos,
			(SELECT COUNT(*) FROM scenes) as total_scenes,
			(SELECT COALESCE(SUM(duration), 0) FROM videos WHERE status = 'completed') as total_duration_seconds,
			(SELECT COALESCE(AVG(end_time - start_time), 0) FROM scenes) as avg_scene_duration,
			(SELECT COUNT(*) FROM processing_jobs WHERE status IN ('pending', 'running')) as active_jobs
	`).Scan(&stats).Error

	if err != nil {
		return nil, fmt.Errorf("failed to query database stats: %w", err)
	}

	return &stats, nil
}

// Health checks the database connection
func (db *DB) Health() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	return sqlDB.Close()
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// Video service methods

// CreateVideo creates a new video record
func (db *DB) CreateVideo(video *models.Video) error {
	return db.Create(video).Error
}

// GetVideoByID retrieves a video by ID with its scenes
func (db *DB) GetVideoByID(id uint) (*models.Video, error) {
	var video models.Video
	err := db.Preload("Scenes", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("scene_index ASC")
	}).Where("status <> ?", models.VideoStatusDeleted).First(&video, id).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &video, nil
}

// GetVideoByHash retrieves a video by file hash
func (db *DB) GetVideoByHash(hash string) (*models.Video, error) {
	var video models.Video
	err := db.Where("file_hash = ? AND status <> ?", hash, models.VideoStatusDeleted).First(&video).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &video, nil
}

// ListVideos retrieves videos with pagination
func (db *DB) ListVideos(limit, offset int) ([]models.Video, int64, error) {
	var videos []models.Video
	var total int64

	live := db.Model(&models.Video{}).Where("status <> ?", models.VideoStatusDeleted)
	if err := live.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := db.Where("status <> ?", models.VideoStatusDeleted).
		Limit(limit).Offset(offset).Order("created_at DESC").Find(&videos).Error
	if err != nil {
		return nil, 0, err
	}

	return videos, total, nil
}

// UpdateVideo updates a video record
func (db *DB) UpdateVideo(video *models.Video) error {
	return db.Omit("Scenes", "ProcessingJobs").Save(video).Error
}

// UpdateVideoStatus sets the status and error message of a video
func (db *DB) UpdateVideoStatus(id uint, status models.VideoStatus, errorMessage *string) error {
	res := db.Model(&models.Video{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":        status,
		"error_message": errorMessage,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteVideo soft deletes a video record
func (db *DB) DeleteVideo(id uint) error {
	res := db.Model(&models.Video{}).Where("id = ? AND status <> ?", id, models.VideoStatusDeleted).
		Update("status", models.VideoStatusDeleted)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Scene service methods

// GetScenesByVideoID retrieves scenes for a video
func (db *DB) GetScenesByVideoID(videoID uint) ([]models.Scene, error) {
	var scenes []models.Scene
	err := db.Where("video_id = ?", videoID).Order("scene_index ASC").Find(&scenes).Error
	return scenes, err
}

// ReplaceScenes swaps the stored scenes of a video for a fresh detection
// result and saves the video in the same transaction.
func (db *DB) ReplaceScenes(video *models.Video, scenes []models.Scene) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("video_id = ?", video.ID).Delete(&models.Scene{}).Error; err != nil {
			return fmt.Errorf("failed to delete old scenes: %w", err)
		}
		for i := range scenes {
			scenes[i].VideoID = video.ID
		}
		if len(scenes) > 0 {
			if err := tx.CreateInBatches(&scenes, 200).Error; err != nil {
				return fmt.Errorf("failed to insert scenes: %w", err)
			}
		}
		video.SceneCount = len(scenes)
		if err := tx.Omit("Scenes", "ProcessingJobs").Save(video).Error; err != nil {
			return fmt.Errorf("failed to update video: %w", err)
		}
		return nil
	})
}

// Processing job service methods

// CreateProcessingJob creates a new processing job
func (db *DB) CreateProcessingJob(job *models.ProcessingJob) error {
	return db.Create(job).Error
}

// GetProcessingJobByQueueID retrieves the job tracking a queue entry
func (db *DB) GetProcessingJobByQueueID(queueJobID string) (*models.ProcessingJob, error) {
	var job models.ProcessingJob
	if err := db.Where("queue_job_id = ?", queueJobID).First(&job).Error; err != nil {
		return nil, notFound(err)
	}
	return &job, nil
}

// GetProcessingJobsByVideoID retrieves processing jobs for a video
func (db *DB) GetProcessingJobsByVideoID(videoID uint) ([]models.ProcessingJob, error) {
	var jobs []models.ProcessingJob
	err := db.Where("video_id = ?", videoID).Order("created_at DESC").Find(&jobs).Error
	return jobs, err
}

// UpdateProcessingJob updates a processing job
func (db *DB) UpdateProcessingJob(job *models.ProcessingJob) error {
	return db.Omit("Video").Save(job).Error
}
