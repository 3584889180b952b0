package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/pgvector/pgvector-go"
)

// Video represents a video file in the database
type Video struct {
	ID              uint            `json:"id" gorm:"primaryKey"`
	UUID            string          `json:"uuid" gorm:"type:uuid;default:uuid_generate_v4();unique;not null"`
	Filename        string          `json:"filename" gorm:"size:512;not null"`
	Filepath        string          `json:"filepath" gorm:"size:1024;not null"`
	FileHash        string          `json:"file_hash" gorm:"type:char(64);not null"`
	Title           *string         `json:"title" gorm:"size:256"`
	Duration        float64         `json:"duration" gorm:"default:0;not null"`
	Width           int             `json:"width" gorm:"default:0"`
	Height          int             `json:"height" gorm:"default:0"`
	FPS             float64         `json:"fps" gorm:"default:0"`
	FrameCount      int             `json:"frame_count" gorm:"default:0"`
	SceneCount      int             `json:"scene_count" gorm:"default:0"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	LastProcessedAt *time.Time      `json:"last_processed_at"`
	Tags            JSONStringArray `json:"tags" gorm:"type:jsonb;default:'[]'"`
	Status          VideoStatus     `json:"status" gorm:"default:'pending'"`
	Metadata        JSONObject      `json:"metadata" gorm:"type:jsonb;default:'{}'"`
	ErrorMessage    *string         `json:"error_message"`

	// Relationships
	Scenes         []Scene         `json:"scenes,omitempty" gorm:"foreignKey:VideoID;constraint:OnDelete:CASCADE"`
	ProcessingJobs []ProcessingJob `json:"processing_jobs,omitempty" gorm:"foreignKey:VideoID;constraint:OnDelete:CASCADE"`
}

// JSONStringArray is a custom type for handling JSON arrays of strings
type JSONStringArray []string

// Scan implements the sql.Scanner interface for JSONStringArray
func (j *JSONStringArray) Scan(value interface{}) error {
	if value == nil {
		*j = []string{}
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}

	return json.Unmarshal(bytes, j)
}

// Value implements the driver.Valuer interface for JSONStringArray
func (j JSONStringArray) Value() (driver.Value, error) {
	if j == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(j)
}

// JSONObject is a custom type for handling JSON objects
type JSONObject map[string]interface{}

// Scan implements the sql.Scanner interface for JSONObject
func (j *JSONObject) Scan(value interface{}) error {
	if value == nil {
		*j = make(map[string]interface{})
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}

	return json.Unmarshal(bytes, j)
}

// Value implements the driver.Valuer interface for JSONObject
func (j JSONObject) Value() (driver.Value, error) {
	if j == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(j)
}

// VideoStatus represents the processing status of a video
type VideoStatus string

const (
	VideoStatusPending    VideoStatus = "pending"
	VideoStatusProcessing VideoStatus = "processing"
	VideoStatusCompleted  VideoStatus = "completed"
	VideoStatusFailed     VideoStatus = "failed"
	VideoStatusDeleted    VideoStatus = "deleted"
)

// Scene represents one detected scene, frames [StartFrame, EndFrame)
type Scene struct {
	ID         uint    `json:"id" gorm:"primaryKey"`
	UUID       string  `json:"uuid" gorm:"type:uuid;default:uuid_generate_v4();unique;not null"`
	VideoID    uint    `json:"video_id" gorm:"not null;uniqueIndex:idx_scene_video_index"`
	SceneIndex int     `json:"scene_index" gorm:"not null;uniqueIndex:idx_scene_video_index"`
	StartFrame int     `json:"start_frame" gorm:"not null"`
	EndFrame   int     `json:"end_frame" gorm:"not null"`
	StartTime  float64 `json:"start_time" gorm:"not null"`
	EndTime    float64 `json:"end_time" gorm:"not null"`
	Duration   float64 `json:"duration" gorm:"->;type:double precision GENERATED ALWAYS AS (end_time - start_time) STORED"`

	Thumbnail string `json:"thumbnail" gorm:"size:1024"`

	// Decision details of the cut that opened the scene; empty for the first scene
	CutScore  *float64         `json:"cut_score,omitempty"`
	CutRatio  *float64         `json:"cut_ratio,omitempty"`
	CutWindow *pgvector.Vector `json:"cut_window,omitempty" gorm:"type:vector"`

	CreatedAt time.Time `json:"created_at"`

	// Relationships
	Video *Video `json:"video,omitempty" gorm:"foreignKey:VideoID"`
}

// ProcessingJob represents background processing tasks
type ProcessingJob struct {
	ID           uint       `json:"id" gorm:"primaryKey"`
	UUID         string     `json:"uuid" gorm:"type:uuid;default:uuid_generate_v4();unique;not null"`
	VideoID      *uint      `json:"video_id" gorm:"index"`
	QueueJobID   string     `json:"queue_job_id" gorm:"size:64;index"`
	JobType      JobType    `json:"job_type" gorm:"not null"`
	Status       JobStatus  `json:"status" gorm:"default:'pending'"`
	Progress     int        `json:"progress" gorm:"default:0;check:progress >= 0 AND progress <= 100"`
	StartedAt    *time.Time `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at"`
	ErrorMessage *string    `json:"error_message"`
	Metadata     JSONObject `json:"metadata" gorm:"type:jsonb;default:'{}'"`
	CreatedAt    time.Time  `json:"created_at"`

	// Relationships
	Video *Video `json:"video,omitempty" gorm:"foreignKey:VideoID"`
}

// JobType represents the type of processing job
type JobType string

const (
	JobTypeSceneDetection JobType = "scene_detection"
)

// JobStatus represents the processing status of a job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// DatabaseStats represents statistics about the database
type DatabaseStats struct {
	TotalVideos          int     `json:"total_videos"`
	CompletedVideos      int     `json:"completed_videos"`
	FailedVideos         int     `json:"failed_videos"`
	TotalScenes          int     `json:"total_scenes"`
	TotalDurationSeconds float64 `json:"total_duration_seconds"`
	AvgSceneDuration     float64 `json:"avg_scene_duration"`
	ActiveJobs           int     `json:"active_jobs"`
}

// VideoCreateRequest represents a request to register a video already on disk
type VideoCreateRequest struct {
	Filename string         `json:"filename" binding:"required"`
	Filepath string         `json:"filepath" binding:"required"`
	Title    *string        `json:"title"`
	Tags     []string       `json:"tags"`
	Metadata map[string]any `json:"metadata"`
}

// DetectRequest optionally overrides detector settings for one run
type DetectRequest struct {
	AdaptiveThreshold *float64 `json:"adaptive_threshold" binding:"omitempty,gt=0"`
	MinSceneLen       *int     `json:"min_scene_len" binding:"omitempty,min=1"`
	WindowWidth       *int     `json:"window_width" binding:"omitempty,min=1"`
	MinContentVal     *float64 `json:"min_content_val" binding:"omitempty,min=0"`
	WeightHue         *float64 `json:"weight_hue"`
	WeightSat         *float64 `json:"weight_sat"`
	WeightLuma        *float64 `json:"weight_luma"`
	WeightEdges       *float64 `json:"weight_edges"`
	KernelSize        *int     `json:"kernel_size" binding:"omitempty,min=0"`
}

// SceneResponse is a scene with presentation fields
type SceneResponse struct {
	Scene
	StartTimecode string `json:"start_timecode"`
	EndTimecode   string `json:"end_timecode"`
	ThumbnailURL  string `json:"thumbnail_url,omitempty"`
}

// TableName methods for custom table names if needed
func (Video) TableName() string {
	return "videos"
}

func (Scene) TableName() string {
	return "scenes"
}

func (ProcessingJob) TableName() string {
	return "processing_jobs"
}
