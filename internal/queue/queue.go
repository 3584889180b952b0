package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"scenecut-server/internal/models"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ErrJobNotFound is returned when no job data exists for an ID
var ErrJobNotFound = errors.New("job not found")

// Job represents a processing job in the queue
type Job struct {
	ID           string           `json:"id"`
	Type         models.JobType   `json:"type"`
	Payload      json.RawMessage  `json:"payload"`
	Status       models.JobStatus `json:"status"`
	Progress     int              `json:"progress"`
	CreatedAt    time.Time        `json:"created_at"`
	StartedAt    *time.Time       `json:"started_at,omitempty"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
	ErrorMessage *string          `json:"error_message,omitempty"`
}

// Decode unmarshals the job payload into v
func (j *Job) Decode(v interface{}) error {
	if len(j.Payload) == 0 {
		return fmt.Errorf("job %s has no payload", j.ID)
	}
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("failed to decode payload of job %s: %w", j.ID, err)
	}
	return nil
}

// Finished reports whether the job reached a terminal status
func (j *Job) Finished() bool {
	switch j.Status {
	case models.JobStatusCompleted, models.JobStatusFailed, models.JobStatusCancelled:
		return true
	}
	return false
}

// Queue represents the job queue system
type Queue struct {
	client    *redis.Client
	retention time.Duration
}

// Config holds queue configuration
type Config struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	Retention time.Duration `yaml:"retention"`
}

// NewQueue creates a new queue instance
func NewQueue(ctx context.Context, config Config) (*Queue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	retention := config.Retention
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}

	return &Queue{
		client:    client,
		retention: retention,
	}, nil
}

func queueKey(jobType models.JobType) string {
	return fmt.Sprintf("jobs:%s", jobType)
}

func jobKey(id string) string {
	return fmt.Sprintf("job:%s", id)
}

// Enqueue adds a job to the queue
func (q *Queue) Enqueue(ctx context.Context, jobType models.JobType, payload interface{}) (*Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	job := &Job{
		ID:        uuid.NewString(),
		Type:      jobType,
		Payload:   raw,
		Status:    models.JobStatusPending,
		CreatedAt: time.Now().UTC(),
	}

	jobBytes, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}

	// Tracking data goes in first so a fast worker never sees an unknown job
	if err := q.client.HSet(ctx, jobKey(job.ID), "data", jobBytes).Err(); err != nil {
		return nil, fmt.Errorf("failed to store job data: %w", err)
	}
	if err := q.client.LPush(ctx, queueKey(jobType), jobBytes).Err(); err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	return job, nil
}

// Dequeue blocks up to timeout for a job of one of the given types.
// It returns nil, nil when nothing arrived.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration, jobTypes ...models.JobType) (*Job, error) {
	if len(jobTypes) == 0 {
		return nil, fmt.Errorf("no job types given")
	}
	keys := make([]string, len(jobTypes))
	for i, t := range jobTypes {
		keys[i] = queueKey(t)
	}

	result, err := q.client.BRPop(ctx, timeout, keys...).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to dequeue job: %w", err)
	}

	if len(result) < 2 {
		return nil, fmt.Errorf("invalid dequeue result")
	}

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}

	return &job, nil
}

// UpdateJobStatus updates the status of a job. Terminal jobs expire after the
// retention period.
func (q *Queue) UpdateJobStatus(ctx context.Context, jobID string, status models.JobStatus, progress int, errorMessage *string) error {
	job, err := q.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	job.Status = status
	job.Progress = progress
	if errorMessage != nil {
		job.ErrorMessage = errorMessage
	}

	now := time.Now().UTC()
	switch status {
	case models.JobStatusRunning:
		if job.StartedAt == nil {
			job.StartedAt = &now
		}
	case models.JobStatusCompleted, models.JobStatusFailed, models.JobStatusCancelled:
		job.CompletedAt = &now
	}

	jobBytes, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	key := jobKey(jobID)
	if err := q.client.HSet(ctx, key, "data", jobBytes).Err(); err != nil {
		return fmt.Errorf("failed to update job data: %w", err)
	}
	if job.Finished() {
		if err := q.client.Expire(ctx, key, q.retention).Err(); err != nil {
			return fmt.Errorf("failed to set job expiry: %w", err)
		}
	}

	return nil
}

// GetJob retrieves a job by ID
func (q *Queue) GetJob(ctx context.Context, jobID string) (*Job, error) {
	jobData, err := q.client.HGet(ctx, jobKey(jobID), "data").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
		}
		return nil, fmt.Errorf("failed to get job data: %w", err)
	}

	var job Job
	if err := json.Unmarshal([]byte(jobData), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}

	return &job, nil
}

// ListJobs returns up to limit jobs of a type, newest first. An empty type
// matches all jobs and a non-positive limit returns everything.
func (q *Queue) ListJobs(ctx context.Context, jobType models.JobType, limit int) ([]*Job, error) {
	var cursor uint64
	var jobs []*Job

	for {
		keys, next, err := q.client.Scan(ctx, cursor, "job:*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan job keys: %w", err)
		}

		for _, key := range keys {
			jobData, err := q.client.HGet(ctx, key, "data").Result()
			if err != nil {
				continue // expired between SCAN and HGET
			}

			var job Job
			if err := json.Unmarshal([]byte(jobData), &job); err != nil {
				continue
			}

			if jobType == "" || job.Type == jobType {
				jobs = append(jobs, &job)
			}
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	sortNewestFirst(jobs)
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

func sortNewestFirst(jobs []*Job) {
	sort.SliceStable(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
}

// Ping checks the Redis connection
func (q *Queue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Close closes the queue connection
func (q *Queue) Close() error {
	return q.client.Close()
}
