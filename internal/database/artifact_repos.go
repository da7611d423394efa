package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/clipsight/clipsight/internal/models"
)

// FrameRepo persists sampled frames. Frames are immutable once written, so the
// only write path is an upsert keyed by (video_id, seq).
type FrameRepo struct {
	db *DB
}

func NewFrameRepo(db *DB) *FrameRepo {
	return &FrameRepo{db: db}
}

func (r *FrameRepo) Insert(ctx context.Context, frame *models.Frame) error {
	query := `
		INSERT INTO frames (video_id, ts, image_path, seq)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (video_id, seq) DO NOTHING`

	_, err := r.db.conn.ExecContext(ctx, query,
		frame.VideoID, frame.Timestamp, frame.ImagePath, frame.Sequence)
	if err != nil {
		return fmt.Errorf("failed to insert frame: %w", err)
	}
	return nil
}

func (r *FrameRepo) ListByVideo(ctx context.Context, videoID string) ([]models.Frame, error) {
	query := `
		SELECT video_id, ts, image_path, seq
		FROM frames WHERE video_id = $1 ORDER BY seq`

	rows, err := r.db.conn.QueryContext(ctx, query, videoID)
	if err != nil {
		return nil, fmt.Errorf("failed to query frames: %w", err)
	}
	defer rows.Close()

	var frames []models.Frame
	for rows.Next() {
		var f models.Frame
		if err := rows.Scan(&f.VideoID, &f.Timestamp, &f.ImagePath, &f.Sequence); err != nil {
			return nil, fmt.Errorf("failed to scan frame: %w", err)
		}
		frames = append(frames, f)
	}
	return frames, rows.Err()
}

func (r *FrameRepo) ListInWindow(ctx context.Context, videoID string, from, to float64) ([]models.Frame, error) {
	query := `
		SELECT video_id, ts, image_path, seq
		FROM frames WHERE video_id = $1 AND ts >= $2 AND ts <= $3 ORDER BY ts`

	rows, err := r.db.conn.QueryContext(ctx, query, videoID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query frames in window: %w", err)
	}
	defer rows.Close()

	var frames []models.Frame
	for rows.Next() {
		var f models.Frame
		if err := rows.Scan(&f.VideoID, &f.Timestamp, &f.ImagePath, &f.Sequence); err != nil {
			return nil, fmt.Errorf("failed to scan frame: %w", err)
		}
		frames = append(frames, f)
	}
	return frames, rows.Err()
}

// CaptionRepo persists per-frame captions, usually one per frame timestamp.
type CaptionRepo struct {
	db *DB
}

func NewCaptionRepo(db *DB) *CaptionRepo {
	return &CaptionRepo{db: db}
}

func (r *CaptionRepo) Insert(ctx context.Context, caption *models.Caption) error {
	query := `
		INSERT INTO captions (video_id, ts, text, confidence)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (video_id, ts) DO UPDATE SET
			text = EXCLUDED.text,
			confidence = EXCLUDED.confidence`

	_, err := r.db.conn.ExecContext(ctx, query,
		caption.VideoID, caption.Timestamp, caption.Text, caption.Confidence)
	if err != nil {
		return fmt.Errorf("failed to insert caption: %w", err)
	}
	return nil
}

func (r *CaptionRepo) ListByVideo(ctx context.Context, videoID string) ([]models.Caption, error) {
	query := `
		SELECT video_id, ts, text, confidence
		FROM captions WHERE video_id = $1 ORDER BY ts`

	rows, err := r.db.conn.QueryContext(ctx, query, videoID)
	if err != nil {
		return nil, fmt.Errorf("failed to query captions: %w", err)
	}
	defer rows.Close()

	var captions []models.Caption
	for rows.Next() {
		var c models.Caption
		if err := rows.Scan(&c.VideoID, &c.Timestamp, &c.Text, &c.Confidence); err != nil {
			return nil, fmt.Errorf("failed to scan caption: %w", err)
		}
		captions = append(captions, c)
	}
	return captions, rows.Err()
}

func (r *CaptionRepo) ListInWindow(ctx context.Context, videoID string, from, to float64) ([]models.Caption, error) {
	query := `
		SELECT video_id, ts, text, confidence
		FROM captions WHERE video_id = $1 AND ts >= $2 AND ts <= $3 ORDER BY ts`

	rows, err := r.db.conn.QueryContext(ctx, query, videoID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query captions in window: %w", err)
	}
	defer rows.Close()

	var captions []models.Caption
	for rows.Next() {
		var c models.Caption
		if err := rows.Scan(&c.VideoID, &c.Timestamp, &c.Text, &c.Confidence); err != nil {
			return nil, fmt.Errorf("failed to scan caption: %w", err)
		}
		captions = append(captions, c)
	}
	return captions, rows.Err()
}

// TranscriptRepo persists speech transcript segments.
type TranscriptRepo struct {
	db *DB
}

func NewTranscriptRepo(db *DB) *TranscriptRepo {
	return &TranscriptRepo{db: db}
}

func (r *TranscriptRepo) Insert(ctx context.Context, seg *models.TranscriptSegment) error {
	query := `
		INSERT INTO transcript_segments (video_id, start_s, end_s, text, confidence)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.conn.ExecContext(ctx, query,
		seg.VideoID, seg.Start, seg.End, seg.Text, seg.Confidence)
	if err != nil {
		return fmt.Errorf("failed to insert transcript segment: %w", err)
	}
	return nil
}

func (r *TranscriptRepo) ListByVideo(ctx context.Context, videoID string) ([]models.TranscriptSegment, error) {
	query := `
		SELECT video_id, start_s, end_s, text, confidence
		FROM transcript_segments WHERE video_id = $1 ORDER BY start_s`

	return r.scanSegments(ctx, query, videoID)
}

// SegmentAt returns the segment covering the given timestamp, or nil.
// If several segments overlap the timestamp the earliest-starting one wins.
func (r *TranscriptRepo) SegmentAt(ctx context.Context, videoID string, ts float64) (*models.TranscriptSegment, error) {
	query := `
		SELECT video_id, start_s, end_s, text, confidence
		FROM transcript_segments
		WHERE video_id = $1 AND start_s <= $2 AND end_s >= $2
		ORDER BY start_s LIMIT 1`

	segs, err := r.scanSegments(ctx, query, videoID, ts)
	if err != nil {
		return nil, err
	}
	if len(segs) == 0 {
		return nil, nil
	}
	return &segs[0], nil
}

func (r *TranscriptRepo) scanSegments(ctx context.Context, query string, args ...interface{}) ([]models.TranscriptSegment, error) {
	rows, err := r.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transcript segments: %w", err)
	}
	defer rows.Close()

	var segs []models.TranscriptSegment
	for rows.Next() {
		var s models.TranscriptSegment
		if err := rows.Scan(&s.VideoID, &s.Start, &s.End, &s.Text, &s.Confidence); err != nil {
			return nil, fmt.Errorf("failed to scan transcript segment: %w", err)
		}
		segs = append(segs, s)
	}
	return segs, rows.Err()
}

// DetectionRepo persists per-frame object detections. Objects are stored as a
// JSON array, the same way the frame analysis blob was stored upstream.
type DetectionRepo struct {
	db *DB
}

func NewDetectionRepo(db *DB) *DetectionRepo {
	return &DetectionRepo{db: db}
}

func (r *DetectionRepo) Insert(ctx context.Context, det *models.DetectionResult) error {
	objects := det.Objects
	if objects == nil {
		objects = []models.DetectedObject{}
	}
	data, err := json.Marshal(objects)
	if err != nil {
		return fmt.Errorf("failed to marshal detected objects: %w", err)
	}

	query := `
		INSERT INTO detections (video_id, ts, objects)
		VALUES ($1, $2, $3)
		ON CONFLICT (video_id, ts) DO UPDATE SET objects = EXCLUDED.objects`

	_, err = r.db.conn.ExecContext(ctx, query, det.VideoID, det.Timestamp, string(data))
	if err != nil {
		return fmt.Errorf("failed to insert detection: %w", err)
	}
	return nil
}

func (r *DetectionRepo) ListByVideo(ctx context.Context, videoID string) ([]models.DetectionResult, error) {
	query := `
		SELECT video_id, ts, objects
		FROM detections WHERE video_id = $1 ORDER BY ts`

	return r.scanDetections(ctx, query, videoID)
}

func (r *DetectionRepo) ListInWindow(ctx context.Context, videoID string, from, to float64) ([]models.DetectionResult, error) {
	query := `
		SELECT video_id, ts, objects
		FROM detections WHERE video_id = $1 AND ts >= $2 AND ts <= $3 ORDER BY ts`

	return r.scanDetections(ctx, query, videoID, from, to)
}

func (r *DetectionRepo) scanDetections(ctx context.Context, query string, args ...interface{}) ([]models.DetectionResult, error) {
	rows, err := r.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query detections: %w", err)
	}
	defer rows.Close()

	var results []models.DetectionResult
	for rows.Next() {
		var d models.DetectionResult
		var objectsJSON string
		if err := rows.Scan(&d.VideoID, &d.Timestamp, &objectsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan detection: %w", err)
		}
		if objectsJSON != "" {
			if err := json.Unmarshal([]byte(objectsJSON), &d.Objects); err != nil {
				d.Objects = []models.DetectedObject{}
			}
		}
		results = append(results, d)
	}
	return results, rows.Err()
}
