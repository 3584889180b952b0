package detector

// FeatureMaps holds the per-pixel planes derived from one frame. Every plane
// has Width*Height entries in row-major order. Edges is nil when edge
// weighting is disabled.
type FeatureMaps struct {
	Width  int
	Height int
	Hue    []uint8
	Sat    []uint8
	Luma   []uint8
	Edges  []uint8
}

// FeatureExtractor turns raw frames into FeatureMaps. The zero value extracts
// color planes only.
type FeatureExtractor struct {
	// KernelSize is the side of the square dilation kernel applied to edges.
	KernelSize int
	// Edges enables edge map extraction.
	Edges bool
}

// Extract computes the feature maps of a frame.
func (e FeatureExtractor) Extract(f *Frame) (*FeatureMaps, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	n := f.Width * f.Height
	fm := &FeatureMaps{
		Width:  f.Width,
		Height: f.Height,
		Hue:    make([]uint8, n),
		Sat:    make([]uint8, n),
		Luma:   make([]uint8, n),
	}
	for i := 0; i < n; i++ {
		p := f.Pix[i*3 : i*3+3]
		fm.Hue[i], fm.Sat[i], fm.Luma[i] = rgbToHSV(p[0], p[1], p[2])
	}

	if e.Edges {
		fm.Edges = detectEdges(fm.Luma, f.Width, f.Height, e.KernelSize)
	}
	return fm, nil
}

const hsvShift = 12

var (
	satDiv [256]int
	hueDiv [256]int
)

func init() {
	for i := 1; i < 256; i++ {
		satDiv[i] = int((255<<hsvShift)/float64(i) + 0.5)
		hueDiv[i] = int((180<<hsvShift)/(6*float64(i)) + 0.5)
	}
}

// rgbToHSV converts one pixel to 8-bit HSV: hue in [0,180), saturation and
// value in [0,255]. Fixed-point arithmetic keeps results identical across
// platforms.
func rgbToHSV(r8, g8, b8 uint8) (h, s, v uint8) {
	r, g, b := int(r8), int(g8), int(b8)

	vmax, vmin := r, r
	if g > vmax {
		vmax = g
	}
	if b > vmax {
		vmax = b
	}
	if g < vmin {
		vmin = g
	}
	if b < vmin {
		vmin = b
	}
	diff := vmax - vmin

	sat := (diff*satDiv[vmax] + (1 << (hsvShift - 1))) >> hsvShift

	var hue int
	switch vmax {
	case r:
		hue = g - b
	case g:
		hue = b - r + 2*diff
	default:
		hue = r - g + 4*diff
	}
	hue = (hue*hueDiv[diff] + (1 << (hsvShift - 1))) >> hsvShift
	if hue < 0 {
		hue += 180
	}

	return uint8(hue), uint8(sat), uint8(vmax)
}

// medianU8 returns the median of the plane; for an even number of samples it
// is the mean of the two middle values.
func medianU8(plane []uint8) float64 {
	var hist [256]int
	for _, v := range plane {
		hist[v]++
	}

	n := len(plane)
	lo, hi := (n-1)/2, n/2
	loVal, hiVal := -1, -1
	seen := 0
	for v := 0; v < 256; v++ {
		seen += hist[v]
		if loVal < 0 && seen > lo {
			loVal = v
		}
		if seen > hi {
			hiVal = v
			break
		}
	}
	return float64(loVal+hiVal) / 2
}

// meanAbsDiff is the mean absolute per-pixel difference of two planes.
func meanAbsDiff(a, b []uint8) float64 {
	var sum int64
	for i := range a {
		d := int64(a[i]) - int64(b[i])
		if d < 0 {
			d = -d
		}
		sum += d
	}
	return float64(sum) / float64(len(a))
}
