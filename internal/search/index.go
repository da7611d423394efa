package search

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/clipsight/clipsight/internal/logging"
	"github.com/clipsight/clipsight/internal/models"
)

// embedBatchSize bounds how many documents are embedded before committing
// them to the index. A batch commits or fails as a unit.
const embedBatchSize = 32

// Document is one unit of indexable text with its video provenance.
type Document struct {
	ID        string
	Text      string
	VideoID   string
	Timestamp float64
	Source    models.SourceType
}

type indexedDoc struct {
	Document
	vector Vector
}

// VectorIndex is an in-memory semantic index partitioned by video. Safe for
// concurrent use. The embedding model version is global: changing it marks
// every indexed video stale, and stale videos are re-embedded lazily the
// next time they are added to or searched.
type VectorIndex struct {
	mu           sync.RWMutex
	embedder     Embedder
	byVideo      map[string][]indexedDoc
	ids          map[string]bool
	modelVersion string
	stale        map[string]bool
}

func NewVectorIndex(embedder Embedder) *VectorIndex {
	return &VectorIndex{
		embedder: embedder,
		byVideo:  make(map[string][]indexedDoc),
		ids:      make(map[string]bool),
		stale:    make(map[string]bool),
	}
}

// SetModelVersion records a new embedding model version. Every indexed
// video is marked stale; nothing is re-embedded until the video is next
// touched, and no vectors are dropped here.
func (ix *VectorIndex) SetModelVersion(version string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if version == ix.modelVersion {
		return
	}
	ix.modelVersion = version
	for videoID := range ix.byVideo {
		ix.stale[videoID] = true
	}
}

// ModelVersion reports the current embedding model version.
func (ix *VectorIndex) ModelVersion() string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.modelVersion
}

// refresh re-embeds a stale video's documents. The replacement is built
// fully before it swaps in; on failure the old vectors stay and the video
// remains stale for the next attempt.
func (ix *VectorIndex) refresh(ctx context.Context, videoID string) error {
	ix.mu.RLock()
	stale := ix.stale[videoID]
	version := ix.modelVersion
	docs := make([]indexedDoc, len(ix.byVideo[videoID]))
	copy(docs, ix.byVideo[videoID])
	ix.mu.RUnlock()

	if !stale {
		return nil
	}

	rebuilt := make([]indexedDoc, 0, len(docs))
	for _, d := range docs {
		vec, err := ix.embedder.Embed(ctx, d.Text)
		if err != nil {
			return fmt.Errorf("re-indexing video %s: %w", videoID, err)
		}
		rebuilt = append(rebuilt, indexedDoc{Document: d.Document, vector: vec})
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.modelVersion != version {
		// Version moved again mid-rebuild; leave the video stale.
		return nil
	}
	// Keep documents that landed after the snapshot; they were embedded
	// under the new version already.
	rebuilt = append(rebuilt, ix.byVideo[videoID][len(docs):]...)
	ix.byVideo[videoID] = rebuilt
	delete(ix.stale, videoID)
	return nil
}

// Add embeds and indexes documents in batches. If embedding fails mid-way,
// fully embedded batches stay committed and the failing batch is discarded
// whole. Documents whose ID is already indexed are skipped.
func (ix *VectorIndex) Add(ctx context.Context, docs []Document) error {
	refreshed := make(map[string]bool)
	for _, d := range docs {
		if refreshed[d.VideoID] {
			continue
		}
		refreshed[d.VideoID] = true
		if err := ix.refresh(ctx, d.VideoID); err != nil {
			return err
		}
	}

	for start := 0; start < len(docs); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(docs) {
			end = len(docs)
		}

		batch := make([]indexedDoc, 0, end-start)
		for _, doc := range docs[start:end] {
			if ix.has(doc.ID) {
				continue
			}
			vec, err := ix.embedder.Embed(ctx, doc.Text)
			if err != nil {
				return fmt.Errorf("embedding document %s: %w", doc.ID, err)
			}
			batch = append(batch, indexedDoc{Document: doc, vector: vec})
		}

		ix.mu.Lock()
		for _, d := range batch {
			if ix.ids[d.ID] {
				continue
			}
			ix.ids[d.ID] = true
			ix.byVideo[d.VideoID] = append(ix.byVideo[d.VideoID], d)
		}
		ix.mu.Unlock()
	}
	return nil
}

func (ix *VectorIndex) has(id string) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.ids[id]
}

// Search ranks a video's documents by similarity to the query, where
// similarity is 1/(1+distance) and distance is cosine distance. Results
// scoring below minScore are dropped before the topK cut. topK <= 0
// defaults to 5. A stale video is re-embedded first; if that fails the old
// vectors still serve.
func (ix *VectorIndex) Search(ctx context.Context, videoID, query string, topK int, minScore float64) ([]models.SearchResult, error) {
	if topK <= 0 {
		topK = 5
	}

	if err := ix.refresh(ctx, videoID); err != nil {
		logging.Warn("lazy re-index failed, serving previous vectors",
			zap.String("video_id", videoID), zap.Error(err))
	}

	queryVec, err := ix.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	ix.mu.RLock()
	docs := ix.byVideo[videoID]
	results := make([]models.SearchResult, 0, len(docs))
	for _, d := range docs {
		sim := 1 / (1 + CosineDistance(queryVec, d.vector))
		if sim < minScore {
			continue
		}
		results = append(results, models.SearchResult{
			Text:          d.Text,
			Score:         sim,
			SemanticScore: sim,
			VideoID:       d.VideoID,
			Timestamp:     d.Timestamp,
			Source:        d.Source,
		})
	}
	ix.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Delete drops every document indexed for the video and reports how many
// were removed.
func (ix *VectorIndex) Delete(videoID string) int {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	docs := ix.byVideo[videoID]
	for _, d := range docs {
		delete(ix.ids, d.ID)
	}
	delete(ix.byVideo, videoID)
	delete(ix.stale, videoID)
	return len(docs)
}

// Size reports the total number of indexed documents.
func (ix *VectorIndex) Size() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.ids)
}
