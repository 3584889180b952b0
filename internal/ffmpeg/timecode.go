package ffmpeg

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// FrameToDuration converts a frame index to its presentation offset
func FrameToDuration(frame int, fps float64) time.Duration {
	if fps <= 0 {
		return 0
	}
	return time.Duration(float64(frame) / fps * float64(time.Second))
}

// FormatTimecode formats a frame index as HH:MM:SS.mmm
func FormatTimecode(frame int, fps float64) string {
	return FormatDuration(FrameToDuration(frame, fps))
}

// FormatDuration converts time.Duration to HH:MM:SS.mmm
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Millisecond)
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	milliseconds := int(d.Milliseconds()) % 1000

	return fmt.Sprintf("%02d:%02d:%02d.%03d", hours, minutes, seconds, milliseconds)
}

var timecodeRe = regexp.MustCompile(`^(\d{2,}):(\d{2}):(\d{2})[.,](\d{3})$`)

// ParseTimecode parses HH:MM:SS.mmm (or the SRT form HH:MM:SS,mmm)
func ParseTimecode(s string) (time.Duration, error) {
	matches := timecodeRe.FindStringSubmatch(s)
	if len(matches) != 5 {
		return 0, fmt.Errorf("invalid timecode: %q", s)
	}

	hours, _ := strconv.Atoi(matches[1])
	minutes, _ := strconv.Atoi(matches[2])
	seconds, _ := strconv.Atoi(matches[3])
	milliseconds, _ := strconv.Atoi(matches[4])
	if minutes > 59 || seconds > 59 {
		return 0, fmt.Errorf("invalid timecode: %q", s)
	}

	return time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second +
		time.Duration(milliseconds)*time.Millisecond, nil
}
