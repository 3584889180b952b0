// Package detector finds scene cuts in a stream of video frames.
//
// Each frame is reduced to hue, saturation, luma and (optionally) edge planes
// and scored against the previous frame. Scores go through a sliding window
// of 2*WindowWidth+1 samples; the middle sample is a cut when it stands out
// from its neighbours by AdaptiveThreshold and exceeds MinContentVal. The
// decision for a frame is therefore reported WindowWidth frames late.
package detector

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Config holds the detector settings.
type Config struct {
	// AdaptiveThreshold is the minimum ratio between a candidate score and the
	// average score of its neighbours.
	AdaptiveThreshold float64 `yaml:"adaptive_threshold" json:"adaptive_threshold"`
	// MinSceneLen is the minimum number of frames between the last cut and
	// the frame being processed.
	MinSceneLen int `yaml:"min_scene_len" json:"min_scene_len"`
	// WindowWidth is the number of samples on each side of the candidate.
	WindowWidth int `yaml:"window_width" json:"window_width"`
	// MinContentVal is the score floor below which nothing is a cut.
	MinContentVal float64      `yaml:"min_content_val" json:"min_content_val"`
	Weights       ScoreWeights `yaml:"weights" json:"weights"`
	// KernelSize of the edge dilation kernel. Zero estimates it from the
	// dimensions of the first frame.
	KernelSize int `yaml:"kernel_size" json:"kernel_size"`
}

// DefaultConfig returns the stock detector settings.
func DefaultConfig() Config {
	return Config{
		AdaptiveThreshold: 3.0,
		MinSceneLen:       15,
		WindowWidth:       2,
		MinContentVal:     15.0,
		Weights:           DefaultWeights(),
	}
}

// Validate checks the settings and wraps ErrInvalidConfiguration on failure.
func (c Config) Validate() error {
	switch {
	case !(c.AdaptiveThreshold > 0):
		return fmt.Errorf("%w: adaptive threshold must be positive, got %v", ErrInvalidConfiguration, c.AdaptiveThreshold)
	case c.MinSceneLen < 1:
		return fmt.Errorf("%w: min scene length must be at least 1, got %d", ErrInvalidConfiguration, c.MinSceneLen)
	case c.WindowWidth < 1:
		return fmt.Errorf("%w: window width must be at least 1, got %d", ErrInvalidConfiguration, c.WindowWidth)
	case !(c.MinContentVal >= 0):
		return fmt.Errorf("%w: min content value must not be negative, got %v", ErrInvalidConfiguration, c.MinContentVal)
	case !(c.Weights.Norm() > 0):
		return fmt.Errorf("%w: score weights sum to zero", ErrInvalidConfiguration)
	case c.KernelSize < 0:
		return fmt.Errorf("%w: kernel size must not be negative, got %d", ErrInvalidConfiguration, c.KernelSize)
	}
	return nil
}

// Cut describes an accepted scene cut and the window that produced it.
type Cut struct {
	// Frame is the index of the first frame of the new scene.
	Frame        int
	Score        float64
	AverageScore float64
	Ratio        float64
	// Window holds the samples the decision was made on, oldest first.
	Window []ScoreSample
}

// Detector is a streaming adaptive scene cut detector. It is not safe for
// concurrent use; run one Detector per stream.
type Detector struct {
	cfg       Config
	logger    zerolog.Logger
	extractor FeatureExtractor
	scorer    *FrameScorer
	window    *slidingWindow

	started bool
	lastCut int
}

// New validates cfg and returns a fresh detector.
func New(cfg Config, logger zerolog.Logger) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Detector{
		cfg:       cfg,
		logger:    logger.With().Str("component", "detector").Logger(),
		extractor: FeatureExtractor{KernelSize: cfg.KernelSize, Edges: cfg.Weights.UsesEdges()},
		scorer:    NewFrameScorer(cfg.Weights),
		window:    newSlidingWindow(2*cfg.WindowWidth + 1),
	}, nil
}

// Config returns the settings the detector was built with.
func (d *Detector) Config() Config {
	return d.cfg
}

// Process feeds the next frame and reports the index of a detected cut, if
// any. Frames must be passed in strictly increasing index order.
func (d *Detector) Process(frameIndex int, frame *Frame) (int, bool, error) {
	cut, err := d.ProcessFrame(frameIndex, frame)
	if err != nil || cut == nil {
		return 0, false, err
	}
	return cut.Frame, true, nil
}

// ProcessFrame is Process with the details of the decision. It returns a nil
// Cut when the frame does not complete a cut. On error the detector state is
// unchanged.
func (d *Detector) ProcessFrame(frameIndex int, frame *Frame) (*Cut, error) {
	if err := frame.Validate(); err != nil {
		return nil, err
	}
	if d.extractor.Edges && d.extractor.KernelSize == 0 {
		d.extractor.KernelSize = EstimateKernelSize(frame.Width, frame.Height)
	}

	maps, err := d.extractor.Extract(frame)
	if err != nil {
		return nil, err
	}
	score, err := d.scorer.Score(maps)
	if err != nil {
		return nil, err
	}

	if !d.started {
		d.started = true
		d.lastCut = frameIndex
	}

	d.window.push(ScoreSample{Frame: frameIndex, Score: score})
	if !d.window.full() {
		return nil, nil
	}

	w := d.cfg.WindowWidth
	target := d.window.at(w)

	var sum float64
	for i := 0; i < d.window.len(); i++ {
		if i != w {
			sum += d.window.at(i).Score
		}
	}
	average := sum / float64(d.window.len()-1)

	ratio := 255.0
	if average > 1e-5 {
		ratio = target.Score / average
	}

	// The scene length check is against the frame being processed, not the
	// candidate, which lags it by WindowWidth frames.
	if ratio >= d.cfg.AdaptiveThreshold &&
		target.Score >= d.cfg.MinContentVal &&
		frameIndex-d.lastCut >= d.cfg.MinSceneLen {
		d.lastCut = target.Frame

		cut := &Cut{
			Frame:        target.Frame,
			Score:        target.Score,
			AverageScore: average,
			Ratio:        ratio,
			Window:       make([]ScoreSample, d.window.len()),
		}
		for i := range cut.Window {
			cut.Window[i] = d.window.at(i)
		}

		d.logger.Debug().
			Int("frame", cut.Frame).
			Float64("score", cut.Score).
			Float64("ratio", cut.Ratio).
			Msg("scene cut")
		return cut, nil
	}

	return nil, nil
}

// Reset returns the detector to its freshly constructed state.
func (d *Detector) Reset() {
	d.scorer.Reset()
	d.window.reset()
	d.started = false
	d.lastCut = 0
	d.extractor.KernelSize = d.cfg.KernelSize
}
