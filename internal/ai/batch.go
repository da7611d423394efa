package ai

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/clipsight/clipsight/internal/logging"
	"github.com/clipsight/clipsight/internal/models"
)

// CaptionFrames captions a batch of frames, skipping individual failures.
// It errors only when every frame fails.
func CaptionFrames(ctx context.Context, c Captioner, videoID string, frames []ExtractedFrame) ([]models.Caption, error) {
	captions := make([]models.Caption, 0, len(frames))
	var lastErr error
	for _, f := range frames {
		text, confidence, err := c.CaptionFrame(ctx, f.Data)
		if err != nil {
			logging.Warn("captioning failed for frame",
				zap.String("video_id", videoID),
				zap.Float64("timestamp", f.Timestamp),
				zap.Error(err))
			lastErr = err
			continue
		}
		captions = append(captions, models.Caption{
			VideoID:    videoID,
			Timestamp:  f.Timestamp,
			Text:       text,
			Confidence: confidence,
		})
	}
	if len(captions) == 0 && lastErr != nil {
		return nil, fmt.Errorf("all %d frames failed to caption: %w", len(frames), lastErr)
	}
	return captions, nil
}

// DetectInFrames runs object detection over a batch of frames with the same
// skip-on-failure policy as captioning.
func DetectInFrames(ctx context.Context, d Detector, videoID string, frames []ExtractedFrame) ([]models.DetectionResult, error) {
	results := make([]models.DetectionResult, 0, len(frames))
	var lastErr error
	for _, f := range frames {
		objects, err := d.DetectObjects(ctx, f.Data)
		if err != nil {
			logging.Warn("detection failed for frame",
				zap.String("video_id", videoID),
				zap.Float64("timestamp", f.Timestamp),
				zap.Error(err))
			lastErr = err
			continue
		}
		results = append(results, models.DetectionResult{
			VideoID:   videoID,
			Timestamp: f.Timestamp,
			Objects:   objects,
		})
	}
	if len(results) == 0 && lastErr != nil {
		return nil, fmt.Errorf("all %d frames failed detection: %w", len(frames), lastErr)
	}
	return results, nil
}
