package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/clipsight/clipsight/internal/models"
)

// WhisperTranscriber calls an OpenAI-compatible audio transcription endpoint
// and returns timed segments.
type WhisperTranscriber struct {
	cfg        Config
	httpClient *http.Client
}

func NewWhisperTranscriber(cfg Config) *WhisperTranscriber {
	cfg.applyDefaults()
	return &WhisperTranscriber{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 5 * cfg.Timeout},
	}
}

type whisperResponse struct {
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (t *WhisperTranscriber) Transcribe(ctx context.Context, audioPath string) ([]models.TranscriptSegment, error) {
	file, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("opening audio file: %w", err)
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, fmt.Errorf("creating form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("copying audio data: %w", err)
	}
	_ = writer.WriteField("model", t.cfg.TranscribeModel)
	_ = writer.WriteField("response_format", "verbose_json")
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("closing form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", t.cfg.BaseURL+"/audio/transcriptions", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+t.cfg.APIKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var parsed whisperResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("API error: %s", parsed.Error.Message)
	}

	segments := make([]models.TranscriptSegment, 0, len(parsed.Segments))
	for _, s := range parsed.Segments {
		segments = append(segments, models.TranscriptSegment{
			Start: s.Start,
			End:   s.End,
			Text:  s.Text,
		})
	}
	return segments, nil
}
