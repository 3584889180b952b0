package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// VideoMetadata represents basic container metadata
type VideoMetadata struct {
	Duration       string `json:"duration"`
	BitRate        string `json:"bit_rate"`
	FormatName     string `json:"format_name"`
	FormatLongName string `json:"format_long_name"`
	StartTime      string `json:"start_time"`
	Size           string `json:"size"`
}

// Stream represents a video/audio stream
type Stream struct {
	Index         int               `json:"index"`
	CodecName     string            `json:"codec_name"`
	CodecLongName string            `json:"codec_long_name"`
	CodecType     string            `json:"codec_type"`
	Width         int               `json:"width,omitempty"`
	Height        int               `json:"height,omitempty"`
	Duration      string            `json:"duration"`
	BitRate       string            `json:"bit_rate"`
	AvgFrameRate  string            `json:"avg_frame_rate,omitempty"`
	RFrameRate    string            `json:"r_frame_rate,omitempty"`
	NbFrames      string            `json:"nb_frames,omitempty"`
	Tags          map[string]string `json:"tags,omitempty"`
}

// FFprobeResult represents the result of ffprobe
type FFprobeResult struct {
	Streams []Stream      `json:"streams"`
	Format  VideoMetadata `json:"format"`
}

// VideoInfo is the subset of metadata the scene detector needs
type VideoInfo struct {
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	FPS        float64 `json:"fps"`
	Duration   float64 `json:"duration"`
	FrameCount int     `json:"frame_count"`
	Codec      string  `json:"codec"`
}

// Client handles FFmpeg operations
type Client struct {
	ffprobePath string
	ffmpegPath  string
	logger      zerolog.Logger
}

// NewClient creates a new FFmpeg client. Empty paths fall back to the
// binaries on PATH.
func NewClient(ffmpegPath, ffprobePath string, logger zerolog.Logger) *Client {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Client{
		ffprobePath: ffprobePath,
		ffmpegPath:  ffmpegPath,
		logger:      logger.With().Str("component", "ffmpeg").Logger(),
	}
}

// GetVideoMetadata extracts metadata from a video file
func (c *Client) GetVideoMetadata(ctx context.Context, videoPath string) (*FFprobeResult, error) {
	cmd := exec.CommandContext(ctx, c.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		videoPath)

	var out bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w, stderr: %s", err, stderr.String())
	}

	var result FFprobeResult
	if err := json.Unmarshal(out.Bytes(), &result); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	return &result, nil
}

// Probe returns the dimensions, frame rate and length of the first video stream
func (c *Client) Probe(ctx context.Context, videoPath string) (*VideoInfo, error) {
	meta, err := c.GetVideoMetadata(ctx, videoPath)
	if err != nil {
		return nil, err
	}

	info, err := meta.VideoInfo()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", videoPath, err)
	}

	c.logger.Debug().
		Str("video", videoPath).
		Int("width", info.Width).
		Int("height", info.Height).
		Float64("fps", info.FPS).
		Int("frames", info.FrameCount).
		Msg("probed video")

	return info, nil
}

// VideoInfo picks the first video stream out of the probe result
func (r *FFprobeResult) VideoInfo() (*VideoInfo, error) {
	for _, s := range r.Streams {
		if s.CodecType != "video" {
			continue
		}
		if s.Width <= 0 || s.Height <= 0 {
			return nil, fmt.Errorf("video stream %d has no dimensions", s.Index)
		}

		info := &VideoInfo{
			Width:  s.Width,
			Height: s.Height,
			Codec:  s.CodecName,
			FPS:    ParseFrameRate(s.AvgFrameRate),
		}
		if info.FPS == 0 {
			info.FPS = ParseFrameRate(s.RFrameRate)
		}

		if d, err := strconv.ParseFloat(s.Duration, 64); err == nil {
			info.Duration = d
		} else if d, err := strconv.ParseFloat(r.Format.Duration, 64); err == nil {
			info.Duration = d
		}

		if n, err := strconv.Atoi(s.NbFrames); err == nil {
			info.FrameCount = n
		} else if info.FPS > 0 {
			info.FrameCount = int(info.Duration*info.FPS + 0.5)
		}

		return info, nil
	}
	return nil, fmt.Errorf("no video stream found")
}

// ParseFrameRate parses frame rate from ffprobe format (e.g., "30000/1001")
func ParseFrameRate(s string) float64 {
	parts := strings.Split(s, "/")
	if len(parts) == 1 {
		v, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return 0
		}
		return v
	}
	if len(parts) != 2 {
		return 0
	}
	num, err1 := strconv.ParseFloat(parts[0], 64)
	den, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil || den == 0 {
		return 0
	}
	return num / den
}

// CheckFFmpeg checks if FFmpeg and FFprobe are available
func (c *Client) CheckFFmpeg() error {
	// Check ffprobe
	cmd := exec.Command(c.ffprobePath, "-version")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffprobe not found: %w", err)
	}

	// Check ffmpeg
	cmd = exec.Command(c.ffmpegPath, "-version")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg not found: %w", err)
	}

	return nil
}
