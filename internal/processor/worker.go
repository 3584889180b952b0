package processor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"scenecut-server/internal/models"
	"scenecut-server/internal/queue"

	"github.com/rs/zerolog"
)

// Worker pulls jobs off the queue and hands them to the processor
type Worker struct {
	queue       JobQueue
	processor   *VideoProcessor
	concurrency int
	poll        time.Duration
	backoff     time.Duration
	logger      zerolog.Logger
}

// NewWorker creates a worker running concurrency job loops
func NewWorker(q JobQueue, p *VideoProcessor, concurrency int, logger zerolog.Logger) *Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Worker{
		queue:       q,
		processor:   p,
		concurrency: concurrency,
		poll:        5 * time.Second,
		backoff:     time.Second,
		logger:      logger.With().Str("component", "worker").Logger(),
	}
}

// Run processes jobs until ctx is cancelled. A job that is running when ctx
// is cancelled fails with the cancellation error.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info().Int("concurrency", w.concurrency).Msg("worker started")

	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w.loop(ctx, id)
		}(i)
	}
	wg.Wait()

	w.logger.Info().Msg("worker stopped")
	return nil
}

func (w *Worker) loop(ctx context.Context, id int) {
	log := w.logger.With().Int("loop", id).Logger()
	for ctx.Err() == nil {
		job, err := w.queue.Dequeue(ctx, w.poll, models.JobTypeSceneDetection)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Msg("failed to dequeue job")
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.backoff):
			}
			continue
		}
		if job == nil {
			continue
		}

		if err := w.Handle(ctx, job); err != nil {
			log.Error().Err(err).Str("job_id", job.ID).Str("type", string(job.Type)).Msg("job failed")
			continue
		}
		log.Info().Str("job_id", job.ID).Str("type", string(job.Type)).Msg("job completed")
	}
}

// Handle dispatches one job by type
func (w *Worker) Handle(ctx context.Context, job *queue.Job) error {
	switch job.Type {
	case models.JobTypeSceneDetection:
		return w.processor.ProcessSceneDetection(ctx, w.queue, job)
	default:
		err := fmt.Errorf("unknown job type: %s", job.Type)
		return w.processor.finishJob(ctx, w.queue, job, nil, err)
	}
}
