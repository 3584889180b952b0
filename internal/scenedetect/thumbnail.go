package scenedetect

import (
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"

	"scenecut-server/internal/detector"
)

// frameHistory is a ring of the most recently decoded frames. Frames are
// decoded straight into the ring so nothing is copied.
type frameHistory struct {
	frames  []*detector.Frame
	indexes []int
	next    int
}

func newFrameHistory(size int) *frameHistory {
	h := &frameHistory{
		frames:  make([]*detector.Frame, size),
		indexes: make([]int, size),
	}
	for i := range h.frames {
		h.frames[i] = &detector.Frame{}
		h.indexes[i] = -1
	}
	return h
}

// slot returns the frame buffer the next frame should be decoded into.
func (h *frameHistory) slot() *detector.Frame {
	return h.frames[h.next]
}

// commit records that the current slot now holds frame index.
func (h *frameHistory) commit(index int) {
	h.indexes[h.next] = index
	h.next = (h.next + 1) % len(h.frames)
}

func (h *frameHistory) find(index int) *detector.Frame {
	for i, idx := range h.indexes {
		if idx == index {
			return h.frames[i]
		}
	}
	return nil
}

// saveThumbnail writes a JPEG of the frame and returns its path, or "" when
// thumbnails are disabled or the write failed.
func (d *Detector) saveThumbnail(outputDir string, scene int, f *detector.Frame) string {
	if outputDir == "" {
		return ""
	}

	outputPath := filepath.Join(outputDir, fmt.Sprintf("scene_%04d_keyframe.jpg", scene))
	if err := writeThumbnail(outputPath, f, d.opts.ThumbnailWidth, d.opts.ThumbnailQuality); err != nil {
		d.logger.Warn().Err(err).Int("scene", scene).Msg("failed to write thumbnail")
		return ""
	}

	d.logger.Debug().Int("scene", scene).Str("path", outputPath).Msg("wrote thumbnail")
	return outputPath
}

// writeThumbnail encodes the frame as JPEG, downscaled to at most maxWidth
// pixels wide.
func writeThumbnail(path string, f *detector.Frame, maxWidth, quality int) error {
	var img image.Image = f.Image()
	if maxWidth > 0 && f.Width > maxWidth {
		height := f.Height * maxWidth / f.Width
		if height < 1 {
			height = 1
		}
		dst := image.NewRGBA(image.Rect(0, 0, maxWidth, height))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
		img = dst
	}

	if quality <= 0 || quality > 100 {
		quality = jpeg.DefaultQuality
	}

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create thumbnail: %w", err)
	}
	if err := jpeg.Encode(out, img, &jpeg.Options{Quality: quality}); err != nil {
		out.Close()
		return fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return out.Close()
}
