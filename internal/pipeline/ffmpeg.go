// Package pipeline inspects local media with the ffmpeg tool suite.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// ErrUnavailable is returned when ffprobe is not installed.
var ErrUnavailable = errors.New("ffprobe not found on PATH")

type ProbeResult struct {
	Duration   float64
	Width      int
	Height     int
	Codec      string
	FrameRate  float64
	AudioCodec string
}

// FFprobe probes files by running the ffprobe binary.
type FFprobe struct {
	bin     string
	timeout time.Duration
	logger  *slog.Logger
}

// NewFFprobe looks ffprobe up on PATH. It returns ErrUnavailable when the
// binary is missing so callers can fall back to client-reported durations.
func NewFFprobe(logger *slog.Logger) (*FFprobe, error) {
	bin, err := exec.LookPath("ffprobe")
	if err != nil {
		return nil, ErrUnavailable
	}
	return &FFprobe{bin: bin, timeout: 15 * time.Second, logger: logger}, nil
}

type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
	} `json:"streams"`
}

func (f *FFprobe) Probe(ctx context.Context, filePath string) (*ProbeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, f.bin, "-v", "quiet", "-print_format", "json", "-show_format", "-show_streams", filePath)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe %s: %w", filePath, err)
	}
	res, err := parseProbe(out)
	if err != nil {
		return nil, fmt.Errorf("ffprobe %s: %w", filePath, err)
	}
	f.logger.Debug("probed media", "duration", res.Duration, "codec", res.Codec)
	return res, nil
}

// ProbeDuration returns the container duration in seconds.
func (f *FFprobe) ProbeDuration(ctx context.Context, filePath string) (float64, error) {
	res, err := f.Probe(ctx, filePath)
	if err != nil {
		return 0, err
	}
	return res.Duration, nil
}

func parseProbe(data []byte) (*ProbeResult, error) {
	var raw ffprobeOutput
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode output: %w", err)
	}
	duration, err := strconv.ParseFloat(raw.Format.Duration, 64)
	if err != nil || duration < 0 {
		return nil, fmt.Errorf("bad duration %q", raw.Format.Duration)
	}
	res := &ProbeResult{Duration: duration}
	for _, s := range raw.Streams {
		switch s.CodecType {
		case "video":
			if res.Codec == "" {
				res.Codec = s.CodecName
				res.Width, res.Height = s.Width, s.Height
				res.FrameRate = parseRate(s.AvgFrameRate)
			}
		case "audio":
			if res.AudioCodec == "" {
				res.AudioCodec = s.CodecName
			}
		}
	}
	return res, nil
}

// parseRate reads ffprobe's "num/den" frame rates.
func parseRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		v, _ := strconv.ParseFloat(s, 64)
		return v
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}
