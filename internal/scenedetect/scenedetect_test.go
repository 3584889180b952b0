package scenedetect

import (
	"context"
	"fmt"
	"image/jpeg"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scenecut-server/internal/detector"
	"scenecut-server/internal/ffmpeg"
	"scenecut-server/internal/metrics"
)

// sliceSource replays in-memory frames; failAt makes frame failAt undecodable.
type sliceSource struct {
	frames []*detector.Frame
	next   int
	failAt int
	closed bool
}

func (s *sliceSource) Next(dst *detector.Frame) (int, error) {
	if s.next >= len(s.frames) {
		return 0, io.EOF
	}
	if s.failAt > 0 && s.next == s.failAt {
		return 0, fmt.Errorf("%w: truncated", detector.ErrInvalidFrame)
	}
	src := s.frames[s.next]
	dst.Width, dst.Height = src.Width, src.Height
	dst.Pix = append(dst.Pix[:0], src.Pix...)
	s.next++
	return s.next - 1, nil
}

func (s *sliceSource) Close() error {
	s.closed = true
	return nil
}

func grayFrames(values ...uint8) []*detector.Frame {
	var frames []*detector.Frame
	for _, v := range values {
		f := detector.NewFrame(64, 48)
		f.Fill(v, v, v)
		frames = append(frames, f)
	}
	return frames
}

func twoSceneFrames() []*detector.Frame {
	values := make([]uint8, 40)
	for i := range values {
		values[i] = 128
		if i >= 20 {
			values[i] = 255
		}
	}
	return grayFrames(values...)
}

func newTestDetector(t *testing.T, m *metrics.Metrics) *Detector {
	t.Helper()
	opts := DefaultOptions()
	opts.Detector.MinSceneLen = 5
	opts.ThumbnailWidth = 32
	d, err := NewDetector(nil, opts, zerolog.Nop(), m)
	require.NoError(t, err)
	return d
}

func TestBuildScenes(t *testing.T) {
	scenes := BuildScenes([]int{20, 45}, 60, 10)
	require.Len(t, scenes, 3)

	assert.Equal(t, 0, scenes[0].StartFrame)
	assert.Equal(t, 20, scenes[0].EndFrame)
	assert.Equal(t, 20, scenes[1].StartFrame)
	assert.Equal(t, 45, scenes[1].EndFrame)
	assert.Equal(t, 45, scenes[2].StartFrame)
	assert.Equal(t, 60, scenes[2].EndFrame)

	assert.Equal(t, 2.0, scenes[1].StartTime)
	assert.Equal(t, 4.5, scenes[1].EndTime)
	assert.Equal(t, "00:00:02.000", scenes[1].StartTimecode)
	assert.Equal(t, "00:00:06.000", scenes[2].EndTimecode)
	for i, s := range scenes {
		assert.Equal(t, i, s.Index)
	}
}

func TestBuildScenesEdgeCases(t *testing.T) {
	assert.Nil(t, BuildScenes(nil, 0, 25))

	scenes := BuildScenes(nil, 10, 25)
	require.Len(t, scenes, 1)
	assert.Equal(t, 0, scenes[0].StartFrame)
	assert.Equal(t, 10, scenes[0].EndFrame)

	// Out of range or repeated cuts never yield empty scenes.
	scenes = BuildScenes([]int{0, 5, 5, 10, 12}, 10, 25)
	require.Len(t, scenes, 2)
	assert.Equal(t, 5, scenes[1].StartFrame)
	assert.Equal(t, 10, scenes[1].EndFrame)
}

func TestDetectFrames(t *testing.T) {
	m := metrics.New()
	d := newTestDetector(t, m)
	outputDir := t.TempDir()

	src := &sliceSource{frames: twoSceneFrames()}
	result, err := d.DetectFrames(context.Background(), src, 10, outputDir)
	require.NoError(t, err)

	assert.Equal(t, 40, result.FrameCount)
	assert.False(t, result.Truncated)
	require.Len(t, result.Scenes, 2)
	assert.Equal(t, 2, result.Count)
	assert.Equal(t, 20, result.Scenes[0].EndFrame)
	assert.Equal(t, 20, result.Scenes[1].StartFrame)
	assert.Equal(t, 40, result.Scenes[1].EndFrame)

	assert.Nil(t, result.Scenes[0].Cut)
	require.NotNil(t, result.Scenes[1].Cut)
	assert.Equal(t, 20, result.Scenes[1].Cut.Frame)
	assert.Len(t, result.Scenes[1].Cut.Window, 5)

	for i, s := range result.Scenes {
		require.Equal(t, filepath.Join(outputDir, fmt.Sprintf("scene_%04d_keyframe.jpg", i)), s.Thumbnail)
		file, err := os.Open(s.Thumbnail)
		require.NoError(t, err)
		img, err := jpeg.Decode(file)
		file.Close()
		require.NoError(t, err)
		assert.Equal(t, 32, img.Bounds().Dx())
		assert.Equal(t, 24, img.Bounds().Dy())
	}

	// The second thumbnail shows the white scene, not the gray one before it.
	file, err := os.Open(result.Scenes[1].Thumbnail)
	require.NoError(t, err)
	defer file.Close()
	img, err := jpeg.Decode(file)
	require.NoError(t, err)
	r, _, _, _ := img.At(16, 12).RGBA()
	assert.Greater(t, r>>8, uint32(240))

	assert.False(t, src.closed, "DetectFrames must not close the source")
}

func TestDetectFramesWithoutThumbnails(t *testing.T) {
	d := newTestDetector(t, nil)
	result, err := d.DetectFrames(context.Background(), &sliceSource{frames: twoSceneFrames()}, 10, "")
	require.NoError(t, err)
	require.Len(t, result.Scenes, 2)
	for _, s := range result.Scenes {
		assert.Empty(t, s.Thumbnail)
	}
}

func TestDetectFramesStopsAtInvalidFrame(t *testing.T) {
	d := newTestDetector(t, nil)
	src := &sliceSource{frames: twoSceneFrames(), failAt: 30}
	result, err := d.DetectFrames(context.Background(), src, 10, "")
	require.NoError(t, err)

	assert.True(t, result.Truncated)
	assert.Equal(t, 30, result.FrameCount)
	require.Len(t, result.Scenes, 2)
	assert.Equal(t, 30, result.Scenes[1].EndFrame)
}

func TestDetectFramesEmptySource(t *testing.T) {
	d := newTestDetector(t, nil)
	result, err := d.DetectFrames(context.Background(), &sliceSource{}, 25, "")
	require.NoError(t, err)
	assert.Zero(t, result.FrameCount)
	assert.Empty(t, result.Scenes)
}

func TestDetectFramesCancelled(t *testing.T) {
	d := newTestDetector(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.DetectFrames(ctx, &sliceSource{frames: twoSceneFrames()}, 10, "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewDetectorRejectsBadConfig(t *testing.T) {
	opts := DefaultOptions()
	opts.Detector.WindowWidth = 0
	_, err := NewDetector(nil, opts, zerolog.Nop(), nil)
	assert.ErrorIs(t, err, detector.ErrInvalidConfiguration)

	d := newTestDetector(t, nil)
	cfg := d.Options().Detector
	cfg.MinSceneLen = 0
	_, err = d.WithConfig(cfg)
	assert.ErrorIs(t, err, detector.ErrInvalidConfiguration)
}

func TestDetectScenesFromVideo(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not found in PATH")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not found in PATH")
	}

	path := filepath.Join(t.TempDir(), "cut.mp4")
	cmd := exec.Command("ffmpeg", "-hide_banner", "-loglevel", "error",
		"-f", "lavfi", "-i", "color=c=gray:s=64x48:r=10:d=2",
		"-f", "lavfi", "-i", "color=c=white:s=64x48:r=10:d=2",
		"-filter_complex", "[0:v][1:v]concat=n=2:v=1[v]",
		"-map", "[v]", "-pix_fmt", "yuv444p", "-y", path)
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, string(out))

	opts := DefaultOptions()
	opts.Detector.MinSceneLen = 5
	d, err := NewDetector(ffmpeg.NewClient("", "", zerolog.Nop()), opts, zerolog.Nop(), nil)
	require.NoError(t, err)
	require.NoError(t, d.CheckDependencies())

	result, err := d.DetectScenes(context.Background(), path, t.TempDir())
	require.NoError(t, err)
	require.NotNil(t, result.Video)
	assert.Equal(t, 40, result.FrameCount)
	require.Len(t, result.Scenes, 2)
	assert.Equal(t, 20, result.Scenes[1].StartFrame)
}
