package detector

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateKernelSize(t *testing.T) {
	tests := []struct {
		width, height int
		want          int
	}{
		{1920, 1080, 13},
		{1280, 720, 9},
		{640, 480, 7},
		{1, 1, 5},
		{3840, 2160, 19},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EstimateKernelSize(tt.width, tt.height), "%dx%d", tt.width, tt.height)
	}
}

func TestEstimateKernelSizeIsOdd(t *testing.T) {
	for w := 1; w <= 4096; w += 37 {
		for h := 1; h <= 2304; h += 53 {
			size := EstimateKernelSize(w, h)
			if size%2 != 1 || size < 5 {
				t.Fatalf("EstimateKernelSize(%d, %d) = %d, want odd >= 5", w, h, size)
			}
		}
	}
}
