// Package aggregate reads persisted analysis artifacts and exposes the
// search and windowing operations the orchestrator gathers evidence with.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/clipsight/clipsight/internal/database"
	"github.com/clipsight/clipsight/internal/memory"
	"github.com/clipsight/clipsight/internal/models"
)

// DefaultWindow is the half-width, in seconds, used for timestamp lookups.
const DefaultWindow = 5.0

// CaptionScoring holds the caption relevance constants. The formula is a
// compatibility heuristic, kept tunable rather than hard-coded at call sites.
type CaptionScoring struct {
	ExactMatch    float64
	OverlapWeight float64
}

var DefaultCaptionScoring = CaptionScoring{ExactMatch: 100, OverlapWeight: 50}

// VideoContext is the consolidated view of everything persisted for a video.
// Empty collections are a valid "no analysis yet" state, not an error.
type VideoContext struct {
	Video        *models.Video
	Frames       []models.Frame
	Captions     []models.Caption
	Transcript   []models.TranscriptSegment
	Detections   []models.DetectionResult
	Conversation []models.MemoryRecord
}

// HasAnalysis reports whether any analysis artifact exists for the video.
func (vc *VideoContext) HasAnalysis() bool {
	return len(vc.Frames) > 0 || len(vc.Captions) > 0 || len(vc.Transcript) > 0 || len(vc.Detections) > 0
}

// TimestampContext is everything persisted around one moment.
type TimestampContext struct {
	Timestamp         float64
	NearbyFrames      []models.Frame
	NearbyCaptions    []models.Caption
	TranscriptSegment *models.TranscriptSegment
	VisibleObjects    []models.DetectedObject
}

type Aggregator struct {
	videos      *database.VideoRepository
	frames      *database.FrameRepo
	captions    *database.CaptionRepo
	transcripts *database.TranscriptRepo
	detections  *database.DetectionRepo
	memory      *memory.Store
	scoring     CaptionScoring
}

func NewAggregator(
	videos *database.VideoRepository,
	frames *database.FrameRepo,
	captions *database.CaptionRepo,
	transcripts *database.TranscriptRepo,
	detections *database.DetectionRepo,
	memStore *memory.Store,
) *Aggregator {
	return &Aggregator{
		videos:      videos,
		frames:      frames,
		captions:    captions,
		transcripts: transcripts,
		detections:  detections,
		memory:      memStore,
		scoring:     DefaultCaptionScoring,
	}
}

// SetScoring overrides the caption relevance constants.
func (a *Aggregator) SetScoring(s CaptionScoring) {
	a.scoring = s
}

// Build assembles the consolidated view. It fails only when storage itself is
// unreachable; a video with no artifacts comes back with empty collections.
func (a *Aggregator) Build(ctx context.Context, videoID string, includeConversation bool) (*VideoContext, error) {
	vc := &VideoContext{}

	video, err := a.videos.GetVideoByID(ctx, videoID)
	if err != nil && !errors.Is(err, database.ErrVideoNotFound) {
		return nil, fmt.Errorf("loading video: %w", err)
	}
	vc.Video = video

	if vc.Frames, err = a.frames.ListByVideo(ctx, videoID); err != nil {
		return nil, fmt.Errorf("loading frames: %w", err)
	}
	if vc.Captions, err = a.captions.ListByVideo(ctx, videoID); err != nil {
		return nil, fmt.Errorf("loading captions: %w", err)
	}
	if vc.Transcript, err = a.transcripts.ListByVideo(ctx, videoID); err != nil {
		return nil, fmt.Errorf("loading transcript: %w", err)
	}
	if vc.Detections, err = a.detections.ListByVideo(ctx, videoID); err != nil {
		return nil, fmt.Errorf("loading detections: %w", err)
	}

	if includeConversation && a.memory != nil {
		if vc.Conversation, err = a.memory.History(ctx, videoID, 0, 0); err != nil {
			return nil, fmt.Errorf("loading conversation: %w", err)
		}
	}

	return vc, nil
}

// SearchCaptions scores each caption against the query and returns up to topK
// results with score > 0, best first. Ties keep original caption order.
func (a *Aggregator) SearchCaptions(ctx context.Context, videoID, query string, topK int) ([]models.SearchResult, error) {
	if topK <= 0 {
		topK = 5
	}

	captions, err := a.captions.ListByVideo(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("loading captions: %w", err)
	}

	var results []models.SearchResult
	for _, c := range captions {
		score := a.scoreCaption(c, query)
		if score <= 0 {
			continue
		}
		results = append(results, models.SearchResult{
			Text:         c.Text,
			Score:        score,
			KeywordScore: score,
			VideoID:      c.VideoID,
			Timestamp:    c.Timestamp,
			Source:       models.SourceCaptions,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// scoreCaption: full ExactMatch points for a substring match, otherwise
// proportional word overlap scaled by OverlapWeight; either way scaled by the
// caption's own confidence.
func (a *Aggregator) scoreCaption(c models.Caption, query string) float64 {
	queryLower := strings.ToLower(strings.TrimSpace(query))
	if queryLower == "" {
		return 0
	}
	captionLower := strings.ToLower(c.Text)

	var base float64
	if strings.Contains(captionLower, queryLower) {
		base = a.scoring.ExactMatch
	} else {
		queryWords := strings.Fields(queryLower)
		if len(queryWords) == 0 {
			return 0
		}
		captionWords := make(map[string]bool)
		for _, w := range strings.Fields(captionLower) {
			captionWords[strings.Trim(w, ".,!?;:'\"")] = true
		}
		overlap := 0
		for _, w := range queryWords {
			if captionWords[strings.Trim(w, ".,!?;:'\"")] {
				overlap++
			}
		}
		base = float64(overlap) / float64(len(queryWords)) * a.scoring.OverlapWeight
	}

	return base * c.Confidence
}

// SearchTranscripts returns every segment containing the query as a
// case-insensitive substring, in original order, unscored.
func (a *Aggregator) SearchTranscripts(ctx context.Context, videoID, query string) ([]models.TranscriptSegment, error) {
	segments, err := a.transcripts.ListByVideo(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("loading transcript: %w", err)
	}

	queryLower := strings.ToLower(query)
	var matches []models.TranscriptSegment
	for _, s := range segments {
		if strings.Contains(strings.ToLower(s.Text), queryLower) {
			matches = append(matches, s)
		}
	}
	return matches, nil
}

// FramesWithObject finds the timestamps where a detected object's class name
// contains className (case-insensitive) and returns the frames at those exact
// timestamps. When no frame sits at the exact timestamp the nearest frame is
// used: smallest distance, earlier timestamp on ties.
func (a *Aggregator) FramesWithObject(ctx context.Context, videoID, className string) ([]models.Frame, error) {
	detections, err := a.detections.ListByVideo(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("loading detections: %w", err)
	}

	classLower := strings.ToLower(className)
	var timestamps []float64
	for _, det := range detections {
		for _, obj := range det.Objects {
			if strings.Contains(strings.ToLower(obj.ClassName), classLower) {
				timestamps = append(timestamps, det.Timestamp)
				break
			}
		}
	}
	if len(timestamps) == 0 {
		return nil, nil
	}

	frames, err := a.frames.ListByVideo(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("loading frames: %w", err)
	}
	if len(frames) == 0 {
		return nil, nil
	}

	seen := make(map[int]bool)
	var matched []models.Frame
	for _, ts := range timestamps {
		frame := nearestFrame(frames, ts)
		if frame == nil || seen[frame.Sequence] {
			continue
		}
		seen[frame.Sequence] = true
		matched = append(matched, *frame)
	}
	return matched, nil
}

// nearestFrame is the explicit tie-break policy for inexact timestamp
// matches: smallest absolute distance wins, earlier frame on equal distance.
func nearestFrame(frames []models.Frame, ts float64) *models.Frame {
	var best *models.Frame
	bestDist := math.Inf(1)
	for i := range frames {
		dist := math.Abs(frames[i].Timestamp - ts)
		if dist < bestDist || (dist == bestDist && best != nil && frames[i].Timestamp < best.Timestamp) {
			best = &frames[i]
			bestDist = dist
		}
	}
	return best
}

// ContextAtTimestamp returns the frames and captions within the window around
// the timestamp, the transcript segment covering it, and the objects detected
// inside the window.
func (a *Aggregator) ContextAtTimestamp(ctx context.Context, videoID string, timestamp, window float64) (*TimestampContext, error) {
	if window <= 0 {
		window = DefaultWindow
	}
	from, to := timestamp-window, timestamp+window

	tc := &TimestampContext{Timestamp: timestamp}

	var err error
	if tc.NearbyFrames, err = a.frames.ListInWindow(ctx, videoID, from, to); err != nil {
		return nil, fmt.Errorf("loading frames: %w", err)
	}
	if tc.NearbyCaptions, err = a.captions.ListInWindow(ctx, videoID, from, to); err != nil {
		return nil, fmt.Errorf("loading captions: %w", err)
	}
	if tc.TranscriptSegment, err = a.transcripts.SegmentAt(ctx, videoID, timestamp); err != nil {
		return nil, fmt.Errorf("loading transcript segment: %w", err)
	}

	detections, err := a.detections.ListInWindow(ctx, videoID, from, to)
	if err != nil {
		return nil, fmt.Errorf("loading detections: %w", err)
	}
	for _, det := range detections {
		tc.VisibleObjects = append(tc.VisibleObjects, det.Objects...)
	}

	return tc, nil
}
