package detector

import "math"

// EstimateKernelSize returns the side of the square dilation kernel used for
// edge maps of a width x height frame. The result is always odd and at least 5.
func EstimateKernelSize(width, height int) int {
	size := 4 + int(math.RoundToEven(math.Sqrt(float64(width)*float64(height))/192))
	if size%2 == 0 {
		size++
	}
	return size
}
