package detector

import (
	"math/rand"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const (
	testWidth  = 16
	testHeight = 12
)

func uniformFrame(v uint8) *Frame {
	f := NewFrame(testWidth, testHeight)
	f.Fill(v, v, v)
	return f
}

func noiseFrame(seed int64) *Frame {
	f := NewFrame(testWidth, testHeight)
	rand.New(rand.NewSource(seed)).Read(f.Pix)
	return f
}

func newTestDetector(t *testing.T, mutate func(*Config)) *Detector {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	d, err := New(cfg, zerolog.Nop())
	require.NoError(t, err)
	return d
}

// runStream feeds frames in order and collects every reported cut.
func runStream(t *testing.T, d *Detector, frames []*Frame) []int {
	t.Helper()
	var cuts []int
	for i, f := range frames {
		cut, ok, err := d.Process(i, f)
		require.NoError(t, err)
		if ok {
			cuts = append(cuts, cut)
		}
	}
	return cuts
}

func repeat(f *Frame, n int) []*Frame {
	frames := make([]*Frame, n)
	for i := range frames {
		frames[i] = f
	}
	return frames
}
