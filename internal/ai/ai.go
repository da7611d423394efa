// Package ai wraps the OpenAI-compatible endpoints the analysis pipeline
// depends on: frame captioning, object detection, audio transcription, and
// answer generation.
package ai

import (
	"context"
	"os"
	"time"

	"github.com/clipsight/clipsight/internal/models"
)

type Config struct {
	APIKey          string
	BaseURL         string
	VisionModel     string
	TranscribeModel string
	ChatModel       string
	Timeout         time.Duration
}

// ConfigFromEnv reads API settings from the environment, applying defaults
// for everything but the key.
func ConfigFromEnv() Config {
	cfg := Config{
		APIKey:          os.Getenv("OPENAI_API_KEY"),
		BaseURL:         os.Getenv("OPENAI_BASE_URL"),
		VisionModel:     os.Getenv("CLIPSIGHT_VISION_MODEL"),
		TranscribeModel: os.Getenv("CLIPSIGHT_TRANSCRIBE_MODEL"),
		ChatModel:       os.Getenv("CLIPSIGHT_CHAT_MODEL"),
		Timeout:         30 * time.Second,
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.VisionModel == "" {
		c.VisionModel = "gpt-4o"
	}
	if c.TranscribeModel == "" {
		c.TranscribeModel = "whisper-1"
	}
	if c.ChatModel == "" {
		c.ChatModel = "gpt-4o-mini"
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
}

// Captioner describes a single video frame.
type Captioner interface {
	CaptionFrame(ctx context.Context, imageData []byte) (text string, confidence float64, err error)
}

// Detector finds objects in a single video frame.
type Detector interface {
	DetectObjects(ctx context.Context, imageData []byte) ([]models.DetectedObject, error)
}

// Transcriber converts a video's audio track into timed segments.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) ([]models.TranscriptSegment, error)
}

// Completer generates the final assistant answer from an assembled prompt.
type Completer interface {
	Complete(ctx context.Context, persona, prompt string) (string, error)
}
