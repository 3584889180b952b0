package ffmpeg

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scenecut-server/internal/detector"
)

func TestParseFrameRate(t *testing.T) {
	tests := map[string]float64{
		"30/1":       30,
		"30000/1001": 30000.0 / 1001.0,
		"25":         25,
		"0/0":        0,
		"":           0,
		"a/b":        0,
		"1/2/3":      0,
	}
	for in, want := range tests {
		assert.InDelta(t, want, ParseFrameRate(in), 1e-9, in)
	}
}

func TestVideoInfo(t *testing.T) {
	result := &FFprobeResult{
		Format: VideoMetadata{Duration: "10.0"},
		Streams: []Stream{
			{Index: 0, CodecType: "audio", CodecName: "aac"},
			{Index: 1, CodecType: "video", CodecName: "h264", Width: 640, Height: 360, AvgFrameRate: "25/1"},
		},
	}
	info, err := result.VideoInfo()
	require.NoError(t, err)
	assert.Equal(t, 640, info.Width)
	assert.Equal(t, 360, info.Height)
	assert.Equal(t, 25.0, info.FPS)
	assert.Equal(t, 10.0, info.Duration)
	assert.Equal(t, 250, info.FrameCount)
	assert.Equal(t, "h264", info.Codec)

	result.Streams[1].NbFrames = "249"
	info, err = result.VideoInfo()
	require.NoError(t, err)
	assert.Equal(t, 249, info.FrameCount)

	_, err = (&FFprobeResult{Streams: []Stream{{CodecType: "audio"}}}).VideoInfo()
	assert.Error(t, err)
}

func TestFormatTimecode(t *testing.T) {
	assert.Equal(t, "00:00:00.000", FormatTimecode(0, 25))
	assert.Equal(t, "00:00:01.000", FormatTimecode(25, 25))
	assert.Equal(t, "00:01:00.040", FormatTimecode(1501, 25))
	assert.Equal(t, "01:00:00.000", FormatTimecode(90000, 25))
	assert.Equal(t, "00:00:00.000", FormatTimecode(10, 0))
	assert.Equal(t, "00:00:01.001", FormatTimecode(30, 30000.0/1001.0))
}

func TestParseTimecode(t *testing.T) {
	d, err := ParseTimecode("01:02:03.456")
	require.NoError(t, err)
	assert.Equal(t, time.Hour+2*time.Minute+3*time.Second+456*time.Millisecond, d)

	d, err = ParseTimecode("00:00:05,250")
	require.NoError(t, err)
	assert.Equal(t, 5250*time.Millisecond, d)

	for _, bad := range []string{"", "1:2:3", "00:61:00.000", "00:00:00"} {
		_, err := ParseTimecode(bad)
		assert.Error(t, err, bad)
	}

	d = 3*time.Hour + 7*time.Minute + 9*time.Second + 12*time.Millisecond
	back, err := ParseTimecode(FormatDuration(d))
	require.NoError(t, err)
	assert.Equal(t, d, back)
}

// skipIfNoFFmpeg skips the test if ffmpeg is not available
func skipIfNoFFmpeg(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not found in PATH")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not found in PATH")
	}
}

// makeTestVideo renders two seconds of gray followed by two seconds of white.
func makeTestVideo(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cut.mp4")
	cmd := exec.Command("ffmpeg", "-hide_banner", "-loglevel", "error",
		"-f", "lavfi", "-i", "color=c=gray:s=64x48:r=10:d=2",
		"-f", "lavfi", "-i", "color=c=white:s=64x48:r=10:d=2",
		"-filter_complex", "[0:v][1:v]concat=n=2:v=1[v]",
		"-map", "[v]", "-pix_fmt", "yuv420p", "-y", path)
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, string(out))
	return path
}

func TestProbeAndDecode(t *testing.T) {
	skipIfNoFFmpeg(t)

	path := makeTestVideo(t)
	client := NewClient("", "", zerolog.New(os.Stderr))
	require.NoError(t, client.CheckFFmpeg())

	ctx := context.Background()
	info, err := client.Probe(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 64, info.Width)
	assert.Equal(t, 48, info.Height)
	assert.InDelta(t, 10.0, info.FPS, 0.01)

	fr, err := client.OpenFrames(ctx, path, info.Width, info.Height)
	require.NoError(t, err)

	var frame detector.Frame
	count := 0
	for {
		index, err := fr.Next(&frame)
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		require.Equal(t, count, index)
		require.NoError(t, frame.Validate())
		count++
	}
	require.NoError(t, fr.Close())
	assert.Equal(t, 40, count)
	assert.Equal(t, 40, fr.Frames())
}

func TestCloseBeforeEnd(t *testing.T) {
	skipIfNoFFmpeg(t)

	path := makeTestVideo(t)
	client := NewClient("", "", zerolog.Nop())

	fr, err := client.OpenFrames(context.Background(), path, 64, 48)
	require.NoError(t, err)

	var frame detector.Frame
	_, err = fr.Next(&frame)
	require.NoError(t, err)
	assert.NoError(t, fr.Close())
}
