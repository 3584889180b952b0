package scenedetect

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"scenecut-server/internal/detector"
	"scenecut-server/internal/ffmpeg"
	"scenecut-server/internal/metrics"
)

// Scene represents a detected scene: frames [StartFrame, EndFrame)
type Scene struct {
	Index         int     `json:"index"`
	StartFrame    int     `json:"start_frame"`
	EndFrame      int     `json:"end_frame"`
	StartTime     float64 `json:"start_time"`
	EndTime       float64 `json:"end_time"`
	StartTimecode string  `json:"start_timecode"`
	EndTimecode   string  `json:"end_timecode"`
	Thumbnail     string  `json:"thumbnail,omitempty"`

	// Cut that opened the scene; nil for the first scene.
	Cut *detector.Cut `json:"-"`
}

// Result is the outcome of one detection run
type Result struct {
	Video      *ffmpeg.VideoInfo `json:"video,omitempty"`
	FPS        float64           `json:"fps"`
	FrameCount int               `json:"frame_count"`
	Scenes     []Scene           `json:"scenes"`
	Count      int               `json:"count"`
	// Truncated is set when decoding stopped at an invalid frame.
	Truncated bool `json:"truncated,omitempty"`
}

// FrameSource is a forward-only sequence of decoded frames
type FrameSource interface {
	Next(dst *detector.Frame) (int, error)
	Close() error
}

// Options configures a detection run
type Options struct {
	Detector         detector.Config
	ThumbnailWidth   int
	ThumbnailQuality int
	Timeout          time.Duration
}

// DefaultOptions returns the default detection options
func DefaultOptions() Options {
	return Options{
		Detector:         detector.DefaultConfig(),
		ThumbnailWidth:   320,
		ThumbnailQuality: 85,
		Timeout:          300 * time.Second,
	}
}

// Detector handles scene detection operations
type Detector struct {
	ffmpeg  *ffmpeg.Client
	opts    Options
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// NewDetector creates a new scene detector instance
func NewDetector(client *ffmpeg.Client, opts Options, logger zerolog.Logger, m *metrics.Metrics) (*Detector, error) {
	if err := opts.Detector.Validate(); err != nil {
		return nil, err
	}
	return &Detector{
		ffmpeg:  client,
		opts:    opts,
		logger:  logger.With().Str("component", "scenedetect").Logger(),
		metrics: m,
	}, nil
}

// Options returns the options the detector runs with
func (d *Detector) Options() Options {
	return d.opts
}

// WithConfig returns a copy of the detector using other detector settings
func (d *Detector) WithConfig(cfg detector.Config) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	clone := *d
	clone.opts.Detector = cfg
	return &clone, nil
}

// CheckDependencies checks that ffmpeg and ffprobe are available
func (d *Detector) CheckDependencies() error {
	if d.ffmpeg == nil {
		return fmt.Errorf("no ffmpeg client configured")
	}
	return d.ffmpeg.CheckFFmpeg()
}

// DetectScenes detects scenes in a video file and writes one thumbnail per
// scene into outputDir. An empty outputDir disables thumbnails.
func (d *Detector) DetectScenes(ctx context.Context, videoPath, outputDir string) (*Result, error) {
	if d.ffmpeg == nil {
		return nil, fmt.Errorf("no ffmpeg client configured")
	}
	if d.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.Timeout)
		defer cancel()
	}

	info, err := d.ffmpeg.Probe(ctx, videoPath)
	if err != nil {
		return nil, fmt.Errorf("failed to probe video: %w", err)
	}

	d.logger.Info().
		Str("video", videoPath).
		Int("width", info.Width).
		Int("height", info.Height).
		Float64("fps", info.FPS).
		Msg("detecting scenes")

	frames, err := d.ffmpeg.OpenFrames(ctx, videoPath, info.Width, info.Height)
	if err != nil {
		return nil, fmt.Errorf("failed to open frame stream: %w", err)
	}

	result, err := d.DetectFrames(ctx, frames, info.FPS, outputDir)
	if closeErr := frames.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	if err != nil {
		return nil, err
	}

	result.Video = info
	return result, nil
}

// DetectFrames runs detection over any frame source. The source is not closed.
func (d *Detector) DetectFrames(ctx context.Context, src FrameSource, fps float64, outputDir string) (*Result, error) {
	started := time.Now()

	det, err := detector.New(d.opts.Detector, d.logger)
	if err != nil {
		return nil, err
	}

	if outputDir != "" {
		if err := os.MkdirAll(outputDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create thumbnails directory: %w", err)
		}
	}

	// The cut frame is WindowWidth frames behind the one being processed, so
	// keep that many earlier frames around for its thumbnail.
	history := newFrameHistory(d.opts.Detector.WindowWidth + 1)

	var (
		cuts       []detector.Cut
		thumbnails = map[int]string{}
		frameCount int
		truncated  bool
	)

	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("scene detection interrupted: %w", err)
		}

		slot := history.slot()
		index, err := src.Next(slot)
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, detector.ErrInvalidFrame) {
			// Skipping would shift every later frame index, so stop here.
			d.metrics.ObserveRejectedFrame()
			d.logger.Warn().Err(err).Int("frames", frameCount).Msg("stopping at undecodable frame")
			truncated = true
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read frame: %w", err)
		}
		history.commit(index)

		if frameCount == 0 {
			thumbnails[index] = d.saveThumbnail(outputDir, len(thumbnails), slot)
		}

		cut, err := det.ProcessFrame(index, slot)
		if err != nil {
			d.metrics.ObserveRejectedFrame()
			d.logger.Warn().Err(err).Int("frame", index).Msg("stopping at unscorable frame")
			truncated = true
			break
		}
		frameCount = index + 1
		d.metrics.ObserveFrame()

		if cut != nil {
			d.metrics.ObserveCut()
			cuts = append(cuts, *cut)
			if f := history.find(cut.Frame); f != nil {
				thumbnails[cut.Frame] = d.saveThumbnail(outputDir, len(thumbnails), f)
			}
		}
	}

	scenes := BuildScenes(cutFrames(cuts), frameCount, fps)
	for i := range scenes {
		scenes[i].Thumbnail = thumbnails[scenes[i].StartFrame]
		for j := range cuts {
			if cuts[j].Frame == scenes[i].StartFrame {
				scenes[i].Cut = &cuts[j]
			}
		}
	}

	elapsed := time.Since(started)
	d.metrics.ObserveDetection(elapsed)
	d.logger.Info().
		Int("frames", frameCount).
		Int("scenes", len(scenes)).
		Dur("elapsed", elapsed).
		Msg("scene detection complete")

	return &Result{
		FPS:        fps,
		FrameCount: frameCount,
		Scenes:     scenes,
		Count:      len(scenes),
		Truncated:  truncated,
	}, nil
}

func cutFrames(cuts []detector.Cut) []int {
	frames := make([]int, len(cuts))
	for i, c := range cuts {
		frames[i] = c.Frame
	}
	return frames
}

// BuildScenes turns cut indices into contiguous scenes covering
// [0, totalFrames). Cuts must be increasing.
func BuildScenes(cuts []int, totalFrames int, fps float64) []Scene {
	if totalFrames <= 0 {
		return nil
	}

	bounds := make([]int, 0, len(cuts)+2)
	bounds = append(bounds, 0)
	for _, c := range cuts {
		if c > bounds[len(bounds)-1] && c < totalFrames {
			bounds = append(bounds, c)
		}
	}
	bounds = append(bounds, totalFrames)

	scenes := make([]Scene, 0, len(bounds)-1)
	for i := 0; i+1 < len(bounds); i++ {
		start, end := bounds[i], bounds[i+1]
		scenes = append(scenes, Scene{
			Index:         i,
			StartFrame:    start,
			EndFrame:      end,
			StartTime:     ffmpeg.FrameToDuration(start, fps).Seconds(),
			EndTime:       ffmpeg.FrameToDuration(end, fps).Seconds(),
			StartTimecode: ffmpeg.FormatTimecode(start, fps),
			EndTimecode:   ffmpeg.FormatTimecode(end, fps),
		})
	}
	return scenes
}
