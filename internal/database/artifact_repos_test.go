package database

import (
	"context"
	"testing"

	"github.com/clipsight/clipsight/internal/models"
)

func TestFrameRepo_ListInWindow(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewFrameRepo(db)
	ctx := context.Background()

	for i, ts := range []float64{0, 5, 10, 15, 20} {
		frame := &models.Frame{VideoID: "video-1", Timestamp: ts, ImagePath: "frame.jpg", Sequence: i}
		if err := repo.Insert(ctx, frame); err != nil {
			t.Fatalf("Failed to insert frame: %v", err)
		}
	}

	frames, err := repo.ListInWindow(ctx, "video-1", 5, 15)
	if err != nil {
		t.Fatalf("Failed to list frames: %v", err)
	}
	if len(frames) != 3 {
		t.Fatalf("Expected 3 frames in [5,15], got %d", len(frames))
	}
	if frames[0].Timestamp != 5 || frames[2].Timestamp != 15 {
		t.Errorf("Window bounds wrong: got %.1f .. %.1f", frames[0].Timestamp, frames[2].Timestamp)
	}
}

func TestTranscriptRepo_SegmentAt(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewTranscriptRepo(db)
	ctx := context.Background()

	segments := []models.TranscriptSegment{
		{VideoID: "video-1", Start: 0, End: 8, Text: "intro", Confidence: 0.9},
		{VideoID: "video-1", Start: 8, End: 16, Text: "middle", Confidence: 0.9},
	}
	for i := range segments {
		if err := repo.Insert(ctx, &segments[i]); err != nil {
			t.Fatalf("Failed to insert segment: %v", err)
		}
	}

	seg, err := repo.SegmentAt(ctx, "video-1", 10.0)
	if err != nil {
		t.Fatalf("Failed to get segment: %v", err)
	}
	if seg == nil {
		t.Fatal("Expected a segment covering 10s")
	}
	if seg.Text != "middle" {
		t.Errorf("Expected middle segment, got %q", seg.Text)
	}

	seg, err = repo.SegmentAt(ctx, "video-1", 100.0)
	if err != nil {
		t.Fatalf("Failed to get segment: %v", err)
	}
	if seg != nil {
		t.Errorf("Expected nil for uncovered timestamp, got %q", seg.Text)
	}
}

func TestDetectionRepo_RoundTripObjects(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewDetectionRepo(db)
	ctx := context.Background()

	det := &models.DetectionResult{
		VideoID:   "video-1",
		Timestamp: 5.0,
		Objects: []models.DetectedObject{
			{ClassName: "dog", Confidence: 0.92, BoundingBox: models.BoundingBox{X: 10, Y: 20, Width: 100, Height: 80}},
			{ClassName: "person", Confidence: 0.88},
		},
	}
	if err := repo.Insert(ctx, det); err != nil {
		t.Fatalf("Failed to insert detection: %v", err)
	}

	results, err := repo.ListByVideo(ctx, "video-1")
	if err != nil {
		t.Fatalf("Failed to list detections: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Expected 1 detection, got %d", len(results))
	}
	if len(results[0].Objects) != 2 {
		t.Fatalf("Expected 2 objects, got %d", len(results[0].Objects))
	}
	if results[0].Objects[0].ClassName != "dog" {
		t.Errorf("Expected dog, got %s", results[0].Objects[0].ClassName)
	}
	if results[0].Objects[0].BoundingBox.Width != 100 {
		t.Errorf("Bounding box lost in round trip: %+v", results[0].Objects[0].BoundingBox)
	}
}

func TestVideoRepo_StatusLifecycle(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewVideoRepository(db)
	ctx := context.Background()

	video := models.NewVideo("clip.mp4", "/videos/clip.mp4", 42.5)
	if err := repo.InsertVideo(ctx, video); err != nil {
		t.Fatalf("Failed to insert video: %v", err)
	}

	if err := repo.UpdateStatus(ctx, video.ID, models.StatusComplete); err != nil {
		t.Fatalf("Failed to update status: %v", err)
	}

	got, err := repo.GetVideoByID(ctx, video.ID)
	if err != nil {
		t.Fatalf("Failed to get video: %v", err)
	}
	if got.Status != models.StatusComplete {
		t.Errorf("Expected status complete, got %s", got.Status)
	}
	if got.Duration != 42.5 {
		t.Errorf("Expected duration 42.5, got %f", got.Duration)
	}

	if _, err := repo.GetVideoByID(ctx, "missing"); err != ErrVideoNotFound {
		t.Errorf("Expected ErrVideoNotFound, got %v", err)
	}
}
