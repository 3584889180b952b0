package detector

import "math"

const edgeSigma = 1.0 / 3.0

// detectEdges runs a Canny edge detector on the luma plane, with thresholds
// derived from the plane's median, and dilates the binary result with a
// square kernel of the given size.
func detectEdges(luma []uint8, width, height, kernelSize int) []uint8 {
	median := medianU8(luma)
	low := int(math.Max(0, (1-edgeSigma)*median))
	high := int(math.Min(255, (1+edgeSigma)*median))

	edges := canny(luma, width, height, low, high)
	return dilate(edges, width, height, kernelSize)
}

// Gradient direction split points in Q15 fixed point: tan(22.5deg).
const (
	cannyShift = 15
	tan22      = 13573
)

// canny returns a 0/255 edge map. Gradients are 3x3 Sobel with replicated
// borders and L1 magnitude; pixels above high seed edges that are grown
// through 8-connected pixels above low.
func canny(src []uint8, width, height, low, high int) []uint8 {
	if low > high {
		low, high = high, low
	}

	n := width * height
	dx := make([]int, n)
	dy := make([]int, n)
	mag := make([]int, n)

	at := func(x, y int) int {
		if x < 0 {
			x = 0
		} else if x >= width {
			x = width - 1
		}
		if y < 0 {
			y = 0
		} else if y >= height {
			y = height - 1
		}
		return int(src[y*width+x])
	}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			tl, tc, tr := at(x-1, y-1), at(x, y-1), at(x+1, y-1)
			ml, mr := at(x-1, y), at(x+1, y)
			bl, bc, br := at(x-1, y+1), at(x, y+1), at(x+1, y+1)

			gx := (tr + 2*mr + br) - (tl + 2*ml + bl)
			gy := (bl + 2*bc + br) - (tl + 2*tc + tr)
			i := y*width + x
			dx[i], dy[i] = gx, gy
			mag[i] = abs(gx) + abs(gy)
		}
	}

	magAt := func(x, y int) int {
		if x < 0 || x >= width || y < 0 || y >= height {
			return 0
		}
		return mag[y*width+x]
	}

	const (
		none   = 0
		weak   = 1
		strong = 2
	)
	state := make([]uint8, n)
	stack := make([]int, 0, 64)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := y*width + x
			m := mag[i]
			if m <= low {
				continue
			}

			xs, ys := abs(dx[i]), abs(dy[i])
			tg22x := xs * tan22
			ys <<= cannyShift

			var peak bool
			switch {
			case ys < tg22x:
				peak = m > magAt(x-1, y) && m >= magAt(x+1, y)
			case ys > tg22x+(xs<<(cannyShift+1)):
				peak = m > magAt(x, y-1) && m >= magAt(x, y+1)
			default:
				s := 1
				if (dx[i] ^ dy[i]) < 0 {
					s = -1
				}
				peak = m > magAt(x-s, y-1) && m > magAt(x+s, y+1)
			}
			if !peak {
				continue
			}

			if m > high {
				state[i] = strong
				stack = append(stack, i)
			} else {
				state[i] = weak
			}
		}
	}

	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := i%width, i/width
		for oy := -1; oy <= 1; oy++ {
			for ox := -1; ox <= 1; ox++ {
				nx, ny := x+ox, y+oy
				if nx < 0 || nx >= width || ny < 0 || ny >= height {
					continue
				}
				j := ny*width + nx
				if state[j] == weak {
					state[j] = strong
					stack = append(stack, j)
				}
			}
		}
	}

	out := make([]uint8, n)
	for i, s := range state {
		if s == strong {
			out[i] = 255
		}
	}
	return out
}

// dilate applies a size x size maximum filter centered on each pixel.
// Pixels outside the frame are ignored.
func dilate(src []uint8, width, height, size int) []uint8 {
	if size <= 1 {
		out := make([]uint8, len(src))
		copy(out, src)
		return out
	}
	before := (size - 1) / 2
	after := size - 1 - before

	rows := make([]uint8, len(src))
	for y := 0; y < height; y++ {
		row := src[y*width : (y+1)*width]
		for x := 0; x < width; x++ {
			var m uint8
			for k := max(0, x-before); k <= min(width-1, x+after); k++ {
				if row[k] > m {
					m = row[k]
				}
			}
			rows[y*width+x] = m
		}
	}

	out := make([]uint8, len(src))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			var m uint8
			for k := max(0, y-before); k <= min(height-1, y+after); k++ {
				if v := rows[k*width+x]; v > m {
					m = v
				}
			}
			out[y*width+x] = m
		}
	}
	return out
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
