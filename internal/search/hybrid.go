package search

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/clipsight/clipsight/internal/logging"
	"github.com/clipsight/clipsight/internal/models"
)

// DefaultSemanticWeight is how much of the blended score comes from vector
// similarity. The remainder comes from normalized keyword relevance.
const DefaultSemanticWeight = 0.7

// LexicalSearcher provides keyword-scored caption search.
type LexicalSearcher interface {
	SearchCaptions(ctx context.Context, videoID, query string, topK int) ([]models.SearchResult, error)
}

// Hybrid blends lexical and semantic retrieval into a single ranking.
// Either leg failing degrades to the other; only both failing is an error.
type Hybrid struct {
	lexical LexicalSearcher
	index   *VectorIndex
	weight  float64
}

func NewHybrid(lexical LexicalSearcher, index *VectorIndex, weight float64) *Hybrid {
	if weight <= 0 || weight > 1 {
		weight = DefaultSemanticWeight
	}
	return &Hybrid{lexical: lexical, index: index, weight: weight}
}

// Search runs both legs and merges by result text. Lexical scores are
// normalized against the best lexical hit before blending, so the blend is
// scale-free:
//
//	both legs:     (1-w)*lexNorm + w*sem
//	semantic only: w*sem
//	lexical only:  (1-w)*lexNorm
func (h *Hybrid) Search(ctx context.Context, videoID, query string, topK int) ([]models.SearchResult, error) {
	if topK <= 0 {
		topK = 5
	}

	lexResults, lexErr := h.lexical.SearchCaptions(ctx, videoID, query, topK)
	semResults, semErr := h.index.Search(ctx, videoID, query, topK, 0)

	if lexErr != nil && semErr != nil {
		return nil, fmt.Errorf("hybrid search failed: lexical: %v, semantic: %w", lexErr, semErr)
	}
	if lexErr != nil {
		logging.Warn("lexical search failed, using semantic only",
			zap.String("video_id", videoID), zap.Error(lexErr))
		lexResults = nil
	}
	if semErr != nil {
		logging.Warn("semantic search failed, using lexical only",
			zap.String("video_id", videoID), zap.Error(semErr))
		semResults = nil
	}

	var maxLex float64
	for _, r := range lexResults {
		if r.Score > maxLex {
			maxLex = r.Score
		}
	}

	merged := make(map[string]models.SearchResult)
	order := make([]string, 0, len(lexResults)+len(semResults))

	for _, r := range lexResults {
		lexNorm := 0.0
		if maxLex > 0 {
			lexNorm = r.Score / maxLex
		}
		r.KeywordScore = r.Score
		r.Score = (1 - h.weight) * lexNorm
		if _, seen := merged[r.Text]; !seen {
			order = append(order, r.Text)
		}
		merged[r.Text] = r
	}

	for _, r := range semResults {
		if existing, ok := merged[r.Text]; ok {
			existing.SemanticScore = r.SemanticScore
			existing.Score += h.weight * r.SemanticScore
			merged[r.Text] = existing
			continue
		}
		r.Score = h.weight * r.SemanticScore
		merged[r.Text] = r
		order = append(order, r.Text)
	}

	results := make([]models.SearchResult, 0, len(merged))
	for _, text := range order {
		results = append(results, merged[text])
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Invalidate drops the video's documents from the semantic index.
func (h *Hybrid) Invalidate(videoID string) int {
	return h.index.Delete(videoID)
}
