package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"scenecut-server/internal/detector"
)

// ErrInvalidFrame is returned when a frame cannot be decoded in full.
var ErrInvalidFrame = detector.ErrInvalidFrame

// FrameReader is a forward-only stream of decoded RGB24 frames read from an
// ffmpeg child process.
type FrameReader struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	reader *bufio.Reader
	width  int
	height int
	next   int
	eof    bool

	stderrDone chan struct{}
	mu         sync.Mutex
	stderrTail []string
}

const stderrTailLines = 20

// OpenFrames starts decoding the first video stream of videoPath into raw
// frames of the given size. The caller must Close the reader.
func (c *Client) OpenFrames(ctx context.Context, videoPath string, width, height int) (*FrameReader, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", width, height)
	}

	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", videoPath,
		"-map", "0:v:0",
		"-an", "-sn",
		"-vsync", "passthrough",
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-s", fmt.Sprintf("%dx%d", width, height),
		"pipe:1",
	}

	c.logger.Debug().
		Str("cmd", "ffmpeg").
		Strs("args", args).
		Msg("starting frame decoder")

	cmd := exec.CommandContext(ctx, c.ffmpegPath, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	fr := &FrameReader{
		cmd:        cmd,
		stdout:     stdout,
		reader:     bufio.NewReaderSize(stdout, 3*width*height),
		width:      width,
		height:     height,
		stderrDone: make(chan struct{}),
	}

	go func() {
		defer close(fr.stderrDone)
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			line := scanner.Text()
			c.logger.Debug().Str("stderr", line).Msg("ffmpeg decoder output")
			fr.mu.Lock()
			fr.stderrTail = append(fr.stderrTail, line)
			if len(fr.stderrTail) > stderrTailLines {
				fr.stderrTail = fr.stderrTail[1:]
			}
			fr.mu.Unlock()
		}
	}()

	return fr, nil
}

// Next decodes the next frame into dst, reallocating its pixels when needed,
// and returns the frame index. It returns io.EOF after the last frame and
// ErrInvalidFrame when the stream ends in the middle of a frame.
func (fr *FrameReader) Next(dst *detector.Frame) (int, error) {
	size := 3 * fr.width * fr.height
	if len(dst.Pix) != size {
		dst.Pix = make([]byte, size)
	}
	dst.Width, dst.Height = fr.width, fr.height

	n, err := io.ReadFull(fr.reader, dst.Pix)
	switch {
	case err == nil:
		index := fr.next
		fr.next++
		return index, nil
	case errors.Is(err, io.EOF):
		fr.eof = true
		return 0, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		return 0, fmt.Errorf("%w: frame %d truncated after %d of %d bytes", ErrInvalidFrame, fr.next, n, size)
	default:
		return 0, fmt.Errorf("%w: frame %d: %v", ErrInvalidFrame, fr.next, err)
	}
}

// Frames returns the number of frames decoded so far.
func (fr *FrameReader) Frames() int {
	return fr.next
}

// Close stops the decoder. A decoder failure is reported only when the
// stream was read to its end.
func (fr *FrameReader) Close() error {
	_ = fr.stdout.Close()
	<-fr.stderrDone

	err := fr.cmd.Wait()
	if err == nil || !fr.eof {
		// Stopped early: ffmpeg exits on the closed pipe or the cancelled context.
		return nil
	}

	fr.mu.Lock()
	tail := strings.Join(fr.stderrTail, "\n")
	fr.mu.Unlock()
	return fmt.Errorf("ffmpeg decoder failed: %w, stderr: %s", err, tail)
}
