package camera

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// FFmpegSource grabs single JPEG stills from a capture device through
// ffmpeg.
type FFmpegSource struct {
	FFmpegPath  string
	InputFormat string
	Device      string
	Timeout     time.Duration

	mu      sync.Mutex
	quality Quality
	seq     uint64
}

func NewFFmpegSource(ffmpegPath, inputFormat, device string, timeout time.Duration) *FFmpegSource {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &FFmpegSource{
		FFmpegPath:  ffmpegPath,
		InputFormat: inputFormat,
		Device:      device,
		Timeout:     timeout,
		quality:     QualityMedium,
	}
}

// SetQuality changes the resolution requested on the next grab.
func (s *FFmpegSource) SetQuality(q Quality) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q.Valid() {
		s.quality = q
	}
}

func (s *FFmpegSource) args(q Quality) []string {
	w, h := q.Dimensions()
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", s.InputFormat,
		"-video_size", fmt.Sprintf("%dx%d", w, h),
		"-i", s.Device,
		"-frames:v", "1",
		"-f", "image2",
		"-c:v", "mjpeg",
		"pipe:1",
	}
}

func (s *FFmpegSource) Ready(ctx context.Context) error {
	if _, err := exec.LookPath(s.FFmpegPath); err != nil {
		return fmt.Errorf("%w: ffmpeg not found: %v", ErrDeviceMissing, err)
	}
	// Only filesystem devices can be checked up front.
	if strings.HasPrefix(s.Device, "/dev/") {
		if _, err := os.Stat(s.Device); err != nil {
			return fmt.Errorf("%w: %v", ErrDeviceMissing, err)
		}
	}
	return nil
}

func (s *FFmpegSource) Grab(ctx context.Context) (Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.Ready(ctx); err != nil {
		return Frame{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, s.FFmpegPath, s.args(s.quality)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	slog.Debug("Executing ffmpeg grab", "command", cmd.String())

	if err := cmd.Run(); err != nil {
		slog.Debug("ffmpeg grab failed",
			"stderr", strings.TrimSpace(stderr.String()),
			"device", s.Device)
		return Frame{}, fmt.Errorf("%w: ffmpeg: %v", ErrDeviceMissing, err)
	}

	data := stdout.Bytes()
	if len(data) == 0 {
		return Frame{}, ErrNoFrame
	}

	s.seq++
	w, h := s.quality.Dimensions()
	return Frame{
		Seq:       s.seq,
		Timestamp: time.Now(),
		Width:     w,
		Height:    h,
		Data:      data,
		MIMEType:  SniffMIME(data),
	}, nil
}

func (s *FFmpegSource) Close() error { return nil }
