package ai

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/clipsight/clipsight/internal/logging"
)

// ExtractedFrame pairs a frame image with the timestamp it was sampled at.
type ExtractedFrame struct {
	Timestamp float64
	Sequence  int
	Data      []byte
}

// FrameExtractor samples stills from a video file with ffmpeg.
type FrameExtractor struct {
	ffmpegPath string
	tempDir    string
}

func NewFrameExtractor() (*FrameExtractor, error) {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}

	tempDir := filepath.Join(os.TempDir(), "clipsight-frames")
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	logging.Debug("frame extractor ready",
		zap.String("ffmpeg", ffmpegPath), zap.String("temp_dir", tempDir))

	return &FrameExtractor{ffmpegPath: ffmpegPath, tempDir: tempDir}, nil
}

// ExtractEvery samples one frame per interval seconds across the whole
// video. Individual frame failures are logged and skipped; only extracting
// nothing at all is an error.
func (fe *FrameExtractor) ExtractEvery(videoPath string, interval float64, size int) ([]ExtractedFrame, error) {
	if _, err := os.Stat(videoPath); err != nil {
		return nil, fmt.Errorf("video file not accessible: %w", err)
	}
	if interval <= 0 {
		interval = 5.0
	}

	duration, err := fe.VideoDuration(videoPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get video duration: %w", err)
	}
	if duration <= 0 {
		return nil, fmt.Errorf("invalid video duration: %f", duration)
	}

	var frames []ExtractedFrame
	seq := 0
	for ts := 0.0; ts < duration; ts += interval {
		data, err := fe.extractSingleFrame(videoPath, ts, size)
		if err != nil {
			logging.Warn("failed to extract frame",
				zap.Float64("timestamp", ts), zap.Error(err))
			seq++
			continue
		}
		frames = append(frames, ExtractedFrame{Timestamp: ts, Sequence: seq, Data: data})
		seq++
	}

	if len(frames) == 0 {
		return nil, fmt.Errorf("failed to extract any frames from video")
	}
	logging.Info("extracted frames",
		zap.String("video", filepath.Base(videoPath)), zap.Int("count", len(frames)))
	return frames, nil
}

// VideoDuration reads the duration in seconds, preferring ffprobe and
// falling back to parsing ffmpeg output.
func (fe *FrameExtractor) VideoDuration(videoPath string) (float64, error) {
	if ffprobePath, err := exec.LookPath("ffprobe"); err == nil {
		cmd := exec.Command(ffprobePath,
			"-v", "error",
			"-show_entries", "format=duration",
			"-of", "default=noprint_wrappers=1:nokey=1",
			videoPath)

		var stdout bytes.Buffer
		cmd.Stdout = &stdout
		if err := cmd.Run(); err == nil {
			if duration, err := strconv.ParseFloat(strings.TrimSpace(stdout.String()), 64); err == nil && duration > 0 {
				return duration, nil
			}
		}
	}

	cmd := exec.Command(fe.ffmpegPath, "-i", videoPath, "-f", "null", "-")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	_ = cmd.Run()

	return parseDuration(stderr.String())
}

func parseDuration(ffmpegOutput string) (float64, error) {
	const prefix = "Duration: "
	start := strings.Index(ffmpegOutput, prefix)
	if start == -1 {
		return 0, fmt.Errorf("duration not found in ffmpeg output")
	}
	value := ffmpegOutput[start+len(prefix):]
	if end := strings.Index(value, ","); end != -1 {
		value = value[:end]
	}

	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("unexpected duration format: %q", value)
	}
	hours, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, err
	}
	minutes, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return 0, err
	}
	seconds, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return 0, err
	}
	return hours*3600 + minutes*60 + seconds, nil
}

func (fe *FrameExtractor) extractSingleFrame(videoPath string, timestamp float64, size int) ([]byte, error) {
	outPath := filepath.Join(fe.tempDir, fmt.Sprintf("frame_%d.jpg", os.Getpid()))
	defer os.Remove(outPath)

	args := []string{
		"-ss", fmt.Sprintf("%.2f", timestamp),
		"-i", videoPath,
		"-vframes", "1",
		"-q:v", "2",
	}
	if size > 0 {
		args = append(args, "-vf", fmt.Sprintf("scale=%d:-1", size))
	}
	args = append(args, "-y", outPath)

	cmd := exec.Command(fe.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg failed: %w (%s)", err, strings.TrimSpace(stderr.String()))
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("reading extracted frame: %w", err)
	}
	return data, nil
}

// ExtractAudio writes the audio track as 16 kHz mono WAV for transcription
// and returns the output path. The caller removes the file when done.
func (fe *FrameExtractor) ExtractAudio(videoPath string) (string, error) {
	outPath := filepath.Join(fe.tempDir, fmt.Sprintf("audio_%d.wav", os.Getpid()))

	cmd := exec.Command(fe.ffmpegPath,
		"-i", videoPath,
		"-vn",
		"-ar", "16000",
		"-ac", "1",
		"-y", outPath)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("audio extraction failed: %w (%s)", err, strings.TrimSpace(stderr.String()))
	}
	return outPath, nil
}
