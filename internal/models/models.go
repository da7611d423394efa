package models

import (
	"time"

	"github.com/google/uuid"
)

// ProcessingStatus tracks where a video sits in the ingestion pipeline.
// Ingestion owns these records; this engine only reads them.
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusComplete   ProcessingStatus = "complete"
	StatusError      ProcessingStatus = "error"
)

type Video struct {
	ID          string
	Filename    string
	StoragePath string
	Duration    float64
	Status      ProcessingStatus
	UploadTime  time.Time
}

func NewVideo(filename, storagePath string, duration float64) *Video {
	return &Video{
		ID:          uuid.New().String(),
		Filename:    filename,
		StoragePath: storagePath,
		Duration:    duration,
		Status:      StatusPending,
		UploadTime:  time.Now(),
	}
}

// Frame is a sampled still. Immutable once written.
type Frame struct {
	VideoID   string
	Timestamp float64
	ImagePath string
	Sequence  int
}

type Caption struct {
	VideoID    string
	Timestamp  float64
	Text       string
	Confidence float64
}

// TranscriptSegment covers [Start, End) seconds. Segments are intended to be
// non-overlapping but that is not enforced by the store.
type TranscriptSegment struct {
	VideoID    string
	Start      float64
	End        float64
	Text       string
	Confidence float64
}

type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

type DetectedObject struct {
	ClassName   string      `json:"class_name"`
	Confidence  float64     `json:"confidence"`
	BoundingBox BoundingBox `json:"bounding_box"`
}

type DetectionResult struct {
	VideoID   string
	Timestamp float64
	Objects   []DetectedObject
}

// Role of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MemoryRecord is one conversation turn. Append-only; removed only via a bulk
// per-video reset.
type MemoryRecord struct {
	MessageID string
	VideoID   string
	Role      Role
	Content   string
	Timestamp time.Time
}

func NewMemoryRecord(videoID string, role Role, content string) *MemoryRecord {
	return &MemoryRecord{
		MessageID: uuid.New().String(),
		VideoID:   videoID,
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// SourceType names one evidence source for a video.
type SourceType string

const (
	SourceCaptions    SourceType = "captions"
	SourceTranscripts SourceType = "transcripts"
	SourceObjects     SourceType = "objects"
)

// SearchResult is one ranked hit from lexical, semantic, or hybrid search.
type SearchResult struct {
	Text          string
	Score         float64
	KeywordScore  float64
	SemanticScore float64
	VideoID       string
	Timestamp     float64
	Source        SourceType
}
