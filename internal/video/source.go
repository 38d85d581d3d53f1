// Package video reads sampled frames from a local video file.
package video

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// ErrVideoUnavailable is returned when a video cannot be opened or probed.
var ErrVideoUnavailable = errors.New("video unavailable")

// Source gives random access to decoded frames.
type Source interface {
	// FrameCount returns the total number of frames, or 0 when unknown.
	FrameCount() int64
	// FPS returns the frame rate reported by the container.
	FPS() float64
	// FrameAt decodes the frame with the given zero-based index.
	FrameAt(ctx context.Context, index int64) (image.Image, error)
}

// FFmpegSource decodes frames by invoking ffmpeg once per requested frame.
type FFmpegSource struct {
	path       string
	ffmpegPath string
	fps        float64
	frameCount int64
	width      int
	height     int
	duration   float64
}

// ProbeInfo is the subset of ffprobe output the walker needs.
type ProbeInfo struct {
	FPS        float64
	FrameCount int64
	Width      int
	Height     int
	Duration   float64
}

type ffprobeOutput struct {
	Streams []struct {
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
		RFrameRate   string `json:"r_frame_rate"`
		NbFrames     string `json:"nb_frames"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Open probes a local video file with ffprobe.
func Open(ctx context.Context, path string) (*FFmpegSource, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrVideoUnavailable, path, err)
	}
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("%w: ffmpeg not found: %v", ErrVideoUnavailable, err)
	}

	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,avg_frame_rate,r_frame_rate,nb_frames:format=duration",
		"-of", "json",
		path,
	)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%w: ffprobe: %v", ErrVideoUnavailable, err)
	}

	info, err := ParseProbe(output)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVideoUnavailable, err)
	}

	return &FFmpegSource{
		path:       path,
		ffmpegPath: ffmpegPath,
		fps:        info.FPS,
		frameCount: info.FrameCount,
		width:      info.Width,
		height:     info.Height,
		duration:   info.Duration,
	}, nil
}

// ParseProbe extracts frame rate, frame count and dimensions from ffprobe JSON output.
// When the container does not report nb_frames, the count is derived from duration and rate.
func ParseProbe(data []byte) (ProbeInfo, error) {
	var out ffprobeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return ProbeInfo{}, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(out.Streams) == 0 {
		return ProbeInfo{}, errors.New("no video stream")
	}
	stream := out.Streams[0]

	fps := parseRate(stream.AvgFrameRate)
	if fps <= 0 {
		fps = parseRate(stream.RFrameRate)
	}
	if fps <= 0 {
		return ProbeInfo{}, fmt.Errorf("unusable frame rate %q", stream.AvgFrameRate)
	}

	duration, _ := strconv.ParseFloat(strings.TrimSpace(out.Format.Duration), 64)
	frames, err := strconv.ParseInt(strings.TrimSpace(stream.NbFrames), 10, 64)
	if err != nil || frames <= 0 {
		frames = int64(math.Floor(duration * fps))
	}

	return ProbeInfo{
		FPS:        fps,
		FrameCount: frames,
		Width:      stream.Width,
		Height:     stream.Height,
		Duration:   duration,
	}, nil
}

// parseRate parses ffprobe rationals like "30000/1001".
func parseRate(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	num, den, ok := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !ok {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

// FrameCount returns the probed frame count.
func (s *FFmpegSource) FrameCount() int64 { return s.frameCount }

// FPS returns the probed frame rate.
func (s *FFmpegSource) FPS() float64 { return s.fps }

// Size returns the frame dimensions.
func (s *FFmpegSource) Size() (int, int) { return s.width, s.height }

// Duration returns the container duration in seconds.
func (s *FFmpegSource) Duration() float64 { return s.duration }

// FrameAt seeks to the frame's timestamp and decodes exactly one frame as PNG.
func (s *FFmpegSource) FrameAt(ctx context.Context, index int64) (image.Image, error) {
	if index < 0 || (s.frameCount > 0 && index >= s.frameCount) {
		return nil, fmt.Errorf("frame %d out of range [0, %d)", index, s.frameCount)
	}
	ts := float64(index) / s.fps

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, s.ffmpegPath,
		"-v", "error",
		"-ss", strconv.FormatFloat(ts, 'f', 3, 64),
		"-i", s.path,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	)
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg frame %d: %w, output: %s", index, err, strings.TrimSpace(stderr.String()))
	}
	if len(output) == 0 {
		return nil, fmt.Errorf("ffmpeg frame %d: empty output", index)
	}

	img, err := png.Decode(bytes.NewReader(output))
	if err != nil {
		return nil, fmt.Errorf("decode frame %d: %w", index, err)
	}
	return img, nil
}
