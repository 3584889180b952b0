package detector

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero threshold", func(c *Config) { c.AdaptiveThreshold = 0 }},
		{"negative threshold", func(c *Config) { c.AdaptiveThreshold = -1 }},
		{"zero min scene len", func(c *Config) { c.MinSceneLen = 0 }},
		{"zero window", func(c *Config) { c.WindowWidth = 0 }},
		{"negative content floor", func(c *Config) { c.MinContentVal = -0.5 }},
		{"zero weights", func(c *Config) { c.Weights = ScoreWeights{} }},
		{"negative kernel", func(c *Config) { c.KernelSize = -3 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			_, err := New(cfg, zerolog.Nop())
			assert.ErrorIs(t, err, ErrInvalidConfiguration)
		})
	}

	require.NoError(t, DefaultConfig().Validate())
	cfg := DefaultConfig()
	cfg.Weights = ScoreWeights{Hue: -1}
	assert.NoError(t, cfg.Validate(), "negative weights are allowed")
}

func TestGrayToWhiteCut(t *testing.T) {
	d := newTestDetector(t, func(c *Config) { c.MinSceneLen = 5 })

	frames := append(repeat(uniformFrame(128), 20), repeat(uniformFrame(255), 20)...)
	assert.Equal(t, []int{20}, runStream(t, d, frames))
}

func TestCutDetails(t *testing.T) {
	d := newTestDetector(t, func(c *Config) { c.MinSceneLen = 5 })

	frames := append(repeat(uniformFrame(128), 20), repeat(uniformFrame(255), 20)...)
	var cuts []*Cut
	for i, f := range frames {
		cut, err := d.ProcessFrame(i, f)
		require.NoError(t, err)
		if cut != nil {
			require.Equal(t, 22, i, "cut reported WindowWidth frames late")
			cuts = append(cuts, cut)
		}
	}
	require.Len(t, cuts, 1)

	cut := cuts[0]
	assert.Equal(t, 20, cut.Frame)
	assert.InDelta(t, 127.0/3.0, cut.Score, 1e-9)
	assert.Zero(t, cut.AverageScore)
	assert.Equal(t, 255.0, cut.Ratio)
	require.Len(t, cut.Window, 5)
	for i, s := range cut.Window {
		assert.Equal(t, 18+i, s.Frame)
	}
}

func TestStaticStreamHasNoCuts(t *testing.T) {
	d := newTestDetector(t, func(c *Config) { c.MinSceneLen = 1 })
	assert.Empty(t, runStream(t, d, repeat(noiseFrame(5), 30)))
}

func spikeStream() []*Frame {
	frames := repeat(uniformFrame(128), 30)
	frames[10] = noiseFrame(42)
	return frames
}

func TestSpikeBelowContentFloor(t *testing.T) {
	s := NewFrameScorer(DefaultWeights())
	_, err := s.Score(extract(t, uniformFrame(128), false))
	require.NoError(t, err)
	spike, err := s.Score(extract(t, noiseFrame(42), false))
	require.NoError(t, err)

	d := newTestDetector(t, func(c *Config) {
		c.MinSceneLen = 5
		c.MinContentVal = spike + 1
	})
	assert.Empty(t, runStream(t, d, spikeStream()))
}

func TestSpikeAboveContentFloor(t *testing.T) {
	d := newTestDetector(t, func(c *Config) { c.MinSceneLen = 5 })
	assert.Equal(t, []int{10}, runStream(t, d, spikeStream()))
}

func TestNoCutBeforeWindowIsFull(t *testing.T) {
	const width = 3
	d := newTestDetector(t, func(c *Config) {
		c.WindowWidth = width
		c.MinSceneLen = 1
		c.MinContentVal = 0
	})

	frames := make([]*Frame, 40)
	for i := range frames {
		frames[i] = noiseFrame(int64(i % 7))
	}
	frames[1] = uniformFrame(0)

	for i, f := range frames {
		cut, ok, err := d.Process(i, f)
		require.NoError(t, err)
		if !ok {
			continue
		}
		assert.GreaterOrEqual(t, i, 2*width, "cut reported before the window filled")
		assert.Equal(t, i-width, cut, "cut must be the window's middle frame")
	}
}

func TestMinSceneLenUsesProcessedFrame(t *testing.T) {
	gray := func(v uint8, n int) []*Frame { return repeat(uniformFrame(v), n) }

	// Cuts at 10 and 13: only three frames apart, but the second is decided
	// while processing frame 15, five frames after the first cut.
	d := newTestDetector(t, func(c *Config) { c.MinSceneLen = 5 })
	frames := append(append(gray(64, 10), gray(160, 3)...), gray(255, 10)...)
	assert.Equal(t, []int{10, 13}, runStream(t, d, frames))

	// Cuts at 10 and 12: the second is decided at frame 14, four frames after
	// the first cut.
	d = newTestDetector(t, func(c *Config) { c.MinSceneLen = 5 })
	frames = append(append(gray(64, 10), gray(160, 2)...), gray(255, 10)...)
	assert.Equal(t, []int{10}, runStream(t, d, frames))
}

func TestMinSceneLenFromFirstFrame(t *testing.T) {
	// The first frame counts as the last cut, so a change at frame 3 is
	// decided at frame 5 and rejected with MinSceneLen 15.
	d := newTestDetector(t, nil)
	frames := append(repeat(uniformFrame(0), 3), repeat(uniformFrame(255), 20)...)
	assert.Empty(t, runStream(t, d, frames))
}

func TestFirstFrameIndexOffset(t *testing.T) {
	d := newTestDetector(t, func(c *Config) { c.MinSceneLen = 5 })
	frames := append(repeat(uniformFrame(128), 20), repeat(uniformFrame(255), 20)...)

	var cuts []int
	for i, f := range frames {
		cut, ok, err := d.Process(1000+i, f)
		require.NoError(t, err)
		if ok {
			cuts = append(cuts, cut)
		}
	}
	assert.Equal(t, []int{1020}, cuts)
}

func TestDetectorsAreIndependent(t *testing.T) {
	frames := make([]*Frame, 60)
	for i := range frames {
		frames[i] = noiseFrame(int64(i / 9))
	}
	mutate := func(c *Config) { c.MinSceneLen = 3 }

	a := newTestDetector(t, mutate)
	b := newTestDetector(t, mutate)
	cutsA := runStream(t, a, frames)
	require.NotEmpty(t, cutsA)
	assert.Equal(t, cutsA, runStream(t, b, frames))

	a.Reset()
	assert.Equal(t, cutsA, runStream(t, a, frames))
}

func TestInvalidFrameLeavesStateUnchanged(t *testing.T) {
	d := newTestDetector(t, func(c *Config) { c.MinSceneLen = 5 })

	_, _, err := d.Process(0, &Frame{})
	require.ErrorIs(t, err, ErrInvalidFrame)

	var cuts []int
	frames := append(repeat(uniformFrame(128), 20), repeat(uniformFrame(255), 20)...)
	for i, f := range frames {
		if i == 25 {
			_, _, err := d.Process(i, NewFrame(3, 3))
			require.ErrorIs(t, err, ErrInvalidFrame)
		}
		cut, ok, err := d.Process(i, f)
		require.NoError(t, err)
		if ok {
			cuts = append(cuts, cut)
		}
	}
	assert.Equal(t, []int{20}, cuts)
}

func TestEdgeWeightedDetection(t *testing.T) {
	d := newTestDetector(t, func(c *Config) {
		c.MinSceneLen = 5
		c.Weights = ScoreWeights{Hue: 1, Sat: 1, Luma: 1, Edges: 1}
	})
	frames := append(repeat(uniformFrame(128), 20), repeat(noiseFrame(9), 20)...)
	assert.Equal(t, []int{20}, runStream(t, d, frames))
}
