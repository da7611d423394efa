package ai

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/clipsight/clipsight/internal/database"
	"github.com/clipsight/clipsight/internal/logging"
	"github.com/clipsight/clipsight/internal/models"
	"github.com/clipsight/clipsight/internal/storage"
)

const (
	DefaultFrameInterval = 5.0
	DefaultFrameSize     = 512
)

// Pipeline runs the full analysis pass for one stored video: sample frames,
// caption them, detect objects, transcribe the audio, and persist everything
// the chat engine reads. The batch step used by the offline analyzer and the
// on-demand path during chat both go through here.
type Pipeline struct {
	client    *OpenAIClient
	extractor *FrameExtractor
	store     storage.Storage
	uploadDir string

	videos      *database.VideoRepository
	frames      *database.FrameRepo
	captions    *database.CaptionRepo
	transcripts *database.TranscriptRepo
	detections  *database.DetectionRepo

	Interval float64
	Size     int
}

func NewPipeline(db *database.DB, store storage.Storage, uploadDir string, client *OpenAIClient, extractor *FrameExtractor) *Pipeline {
	return &Pipeline{
		client:      client,
		extractor:   extractor,
		store:       store,
		uploadDir:   uploadDir,
		videos:      database.NewVideoRepository(db),
		frames:      database.NewFrameRepo(db),
		captions:    database.NewCaptionRepo(db),
		transcripts: database.NewTranscriptRepo(db),
		detections:  database.NewDetectionRepo(db),
		Interval:    DefaultFrameInterval,
		Size:        DefaultFrameSize,
	}
}

// AnalyzeVideo runs extraction, captioning, detection, and transcription for
// the video and persists the results, updating the video's status along the
// way. Transcription failures are non-fatal; the visual artifacts already
// written still serve.
func (p *Pipeline) AnalyzeVideo(ctx context.Context, video *models.Video) error {
	if err := p.videos.UpdateStatus(ctx, video.ID, models.StatusProcessing); err != nil {
		return fmt.Errorf("updating status: %w", err)
	}
	if err := p.run(ctx, video); err != nil {
		if serr := p.videos.UpdateStatus(ctx, video.ID, models.StatusError); serr != nil {
			logging.Warn("marking video errored failed",
				zap.String("video_id", video.ID), zap.Error(serr))
		}
		return err
	}
	return p.videos.UpdateStatus(ctx, video.ID, models.StatusComplete)
}

func (p *Pipeline) run(ctx context.Context, video *models.Video) error {
	videoPath := filepath.Join(p.uploadDir, video.StoragePath)

	frames, err := p.extractor.ExtractEvery(videoPath, p.Interval, p.Size)
	if err != nil {
		return fmt.Errorf("extracting frames: %w", err)
	}

	for _, f := range frames {
		imagePath, err := p.store.SaveFrame(video.ID, f.Sequence, f.Data)
		if err != nil {
			return fmt.Errorf("saving frame %d: %w", f.Sequence, err)
		}
		err = p.frames.Insert(ctx, &models.Frame{
			VideoID: video.ID, Timestamp: f.Timestamp, ImagePath: imagePath, Sequence: f.Sequence,
		})
		if err != nil {
			return fmt.Errorf("recording frame %d: %w", f.Sequence, err)
		}
	}
	logging.Info("stored frames", zap.String("video_id", video.ID), zap.Int("count", len(frames)))

	captions, err := CaptionFrames(ctx, p.client, video.ID, frames)
	if err != nil {
		return fmt.Errorf("captioning: %w", err)
	}
	for i := range captions {
		if err := p.captions.Insert(ctx, &captions[i]); err != nil {
			return fmt.Errorf("saving caption: %w", err)
		}
	}
	logging.Info("stored captions", zap.String("video_id", video.ID), zap.Int("count", len(captions)))

	detections, err := DetectInFrames(ctx, p.client, video.ID, frames)
	if err != nil {
		return fmt.Errorf("detection: %w", err)
	}
	for i := range detections {
		if err := p.detections.Insert(ctx, &detections[i]); err != nil {
			return fmt.Errorf("saving detection: %w", err)
		}
	}
	logging.Info("stored detection results", zap.String("video_id", video.ID), zap.Int("count", len(detections)))

	audioPath, err := p.extractor.ExtractAudio(videoPath)
	if err != nil {
		logging.Warn("skipping transcription, audio extraction failed",
			zap.String("video_id", video.ID), zap.Error(err))
		return nil
	}
	defer os.Remove(audioPath)

	transcriber := NewWhisperTranscriber(p.client.Config())
	segments, err := transcriber.Transcribe(ctx, audioPath)
	if err != nil {
		logging.Warn("skipping transcription, transcribe failed",
			zap.String("video_id", video.ID), zap.Error(err))
		return nil
	}
	for i := range segments {
		segments[i].VideoID = video.ID
		if err := p.transcripts.Insert(ctx, &segments[i]); err != nil {
			return fmt.Errorf("saving transcript segment: %w", err)
		}
	}
	logging.Info("stored transcript segments", zap.String("video_id", video.ID), zap.Int("count", len(segments)))
	return nil
}
