package detector

import (
	"fmt"
	"math"
)

// ScoreWeights weighs the four per-channel deltas that make up a frame score.
type ScoreWeights struct {
	Hue   float64 `yaml:"hue" json:"hue"`
	Sat   float64 `yaml:"sat" json:"sat"`
	Luma  float64 `yaml:"luma" json:"luma"`
	Edges float64 `yaml:"edges" json:"edges"`
}

// DefaultWeights uses color only; edge extraction is skipped.
func DefaultWeights() ScoreWeights {
	return ScoreWeights{Hue: 1, Sat: 1, Luma: 1, Edges: 0}
}

// Norm is the sum of absolute weights, the divisor of the weighted score.
func (w ScoreWeights) Norm() float64 {
	return math.Abs(w.Hue) + math.Abs(w.Sat) + math.Abs(w.Luma) + math.Abs(w.Edges)
}

// UsesEdges reports whether edge maps have to be computed at all.
func (w ScoreWeights) UsesEdges() bool {
	return w.Edges > 0
}

// Components are the mean absolute differences between two frames, one per
// feature plane.
type Components struct {
	Hue   float64
	Sat   float64
	Luma  float64
	Edges float64
}

// Weighted combines the components into a single score.
func (c Components) Weighted(w ScoreWeights) float64 {
	return (c.Hue*w.Hue + c.Sat*w.Sat + c.Luma*w.Luma + c.Edges*w.Edges) / w.Norm()
}

// FrameScorer scores each frame against the one before it. It keeps only the
// previous frame's feature maps.
type FrameScorer struct {
	weights ScoreWeights
	last    *FeatureMaps
}

// NewFrameScorer creates a scorer with the given weights.
func NewFrameScorer(weights ScoreWeights) *FrameScorer {
	return &FrameScorer{weights: weights}
}

// Score returns the change score of current relative to the previously scored
// maps, then keeps current for the next call. The first call returns 0.
func (s *FrameScorer) Score(current *FeatureMaps) (float64, error) {
	if s.last == nil {
		s.last = current
		return 0, nil
	}
	if current.Width != s.last.Width || current.Height != s.last.Height {
		return 0, fmt.Errorf("%w: frame is %dx%d, previous frame was %dx%d",
			ErrInvalidFrame, current.Width, current.Height, s.last.Width, s.last.Height)
	}

	c := Components{
		Hue:  meanAbsDiff(current.Hue, s.last.Hue),
		Sat:  meanAbsDiff(current.Sat, s.last.Sat),
		Luma: meanAbsDiff(current.Luma, s.last.Luma),
	}
	if current.Edges != nil && s.last.Edges != nil {
		c.Edges = meanAbsDiff(current.Edges, s.last.Edges)
	}

	s.last = current
	return c.Weighted(s.weights), nil
}

// Reset forgets the previous frame.
func (s *FrameScorer) Reset() {
	s.last = nil
}
