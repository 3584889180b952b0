package detector

import (
	"fmt"
	"image"
	"image/color"
)

// Frame is a decoded color frame in packed RGB24 layout: three bytes per
// pixel, rows stored top to bottom with no padding.
type Frame struct {
	Width  int
	Height int
	Pix    []byte
}

// NewFrame allocates a black frame of the given size.
func NewFrame(width, height int) *Frame {
	return &Frame{
		Width:  width,
		Height: height,
		Pix:    make([]byte, 3*width*height),
	}
}

// Validate reports ErrInvalidFrame for nil, empty or inconsistently sized frames.
func (f *Frame) Validate() error {
	if f == nil {
		return fmt.Errorf("%w: nil frame", ErrInvalidFrame)
	}
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("%w: dimensions %dx%d", ErrInvalidFrame, f.Width, f.Height)
	}
	if want := 3 * f.Width * f.Height; len(f.Pix) != want {
		return fmt.Errorf("%w: have %d bytes, want %d for %dx%d", ErrInvalidFrame, len(f.Pix), want, f.Width, f.Height)
	}
	return nil
}

// Fill paints every pixel with the given color.
func (f *Frame) Fill(r, g, b uint8) {
	for i := 0; i+2 < len(f.Pix); i += 3 {
		f.Pix[i] = r
		f.Pix[i+1] = g
		f.Pix[i+2] = b
	}
}

// Clone returns a deep copy of the frame.
func (f *Frame) Clone() *Frame {
	pix := make([]byte, len(f.Pix))
	copy(pix, f.Pix)
	return &Frame{Width: f.Width, Height: f.Height, Pix: pix}
}

// Image converts the frame to an RGBA image, e.g. for JPEG encoding.
func (f *Frame) Image() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		src := f.Pix[y*f.Width*3 : (y+1)*f.Width*3]
		dst := img.Pix[y*img.Stride : y*img.Stride+f.Width*4]
		for x := 0; x < f.Width; x++ {
			dst[x*4] = src[x*3]
			dst[x*4+1] = src[x*3+1]
			dst[x*4+2] = src[x*3+2]
			dst[x*4+3] = 0xff
		}
	}
	return img
}

// FrameFromImage copies any image into an RGB24 frame. Alpha is dropped.
func FrameFromImage(img image.Image) *Frame {
	b := img.Bounds()
	f := NewFrame(b.Dx(), b.Dy())
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
			f.Pix[i] = c.R
			f.Pix[i+1] = c.G
			f.Pix[i+2] = c.B
			i += 3
		}
	}
	return f
}
