package api

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/clipsight/clipsight/internal/cache"
	"github.com/clipsight/clipsight/internal/database"
	"github.com/clipsight/clipsight/internal/logging"
	"github.com/clipsight/clipsight/internal/memory"
	"github.com/clipsight/clipsight/internal/models"
	"github.com/clipsight/clipsight/internal/orchestrator"
	"github.com/clipsight/clipsight/internal/planner"
	"github.com/clipsight/clipsight/internal/storage"
)

type App struct {
	Orchestrator *orchestrator.Orchestrator
	Planner      *planner.Planner
	Memory       *memory.Store
	VideoRepo    *database.VideoRepository
	FrameRepo    *database.FrameRepo
	Storage      storage.Storage
	Cache        *cache.RelevanceCache
}

func PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("pong"))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// ChatHandler answers a question about a video. Pipeline failures come back
// as 200 with a degraded body; only malformed requests and unknown videos
// are HTTP errors.
func (app *App) ChatHandler(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := app.Orchestrator.Chat(r.Context(), req)
	if err != nil {
		if errors.Is(err, database.ErrVideoNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// AnalyzeQueryHandler exposes the planner directly: what would this
// question need, without running it.
func (app *App) AnalyzeQueryHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	plan := app.Planner.Plan(req.Query)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"query_type":      plan.QueryType,
		"tools_needed":    plan.ToolsNeeded,
		"execution_order": plan.ExecutionOrder,
		"parameters":      plan.Parameters(),
	})
}

type historyEntry struct {
	MessageID string `json:"message_id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

func (app *App) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "videoID")

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	records, err := app.Memory.History(r.Context(), videoID, limit, offset)
	if err != nil {
		logging.Error("loading history failed", zap.String("video_id", videoID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}

	entries := make([]historyEntry, len(records))
	for i, rec := range records {
		entries[i] = historyEntry{
			MessageID: rec.MessageID,
			Role:      string(rec.Role),
			Content:   rec.Content,
			Timestamp: rec.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"video_id": videoID,
		"messages": entries,
	})
}

// ResetHistoryHandler clears the conversation and any cached relevance
// results for the video. Resetting an empty conversation succeeds.
func (app *App) ResetHistoryHandler(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "videoID")

	deleted, err := app.Memory.Reset(r.Context(), videoID)
	if err != nil {
		logging.Error("resetting history failed", zap.String("video_id", videoID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to reset history")
		return
	}
	if app.Cache != nil {
		app.Cache.Invalidate(videoID)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"video_id": videoID,
		"deleted":  deleted,
	})
}

func (app *App) ListVideosHandler(w http.ResponseWriter, r *http.Request) {
	videos, err := app.VideoRepo.ListVideos(r.Context())
	if err != nil {
		logging.Error("listing videos failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list videos")
		return
	}

	type videoEntry struct {
		ID       string  `json:"id"`
		Filename string  `json:"filename"`
		Duration float64 `json:"duration"`
		Status   string  `json:"status"`
	}
	entries := make([]videoEntry, len(videos))
	for i, v := range videos {
		entries[i] = videoEntry{ID: v.ID, Filename: v.Filename, Duration: v.Duration, Status: string(v.Status)}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"videos": entries})
}

// ThumbnailHandler serves the stored frame image nearest to ?t=seconds.
func (app *App) ThumbnailHandler(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "videoID")

	if _, err := app.VideoRepo.GetVideoByID(r.Context(), videoID); err != nil {
		if errors.Is(err, database.ErrVideoNotFound) {
			writeError(w, http.StatusNotFound, "video not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load video")
		return
	}

	ts, err := strconv.ParseFloat(r.URL.Query().Get("t"), 64)
	if err != nil || ts < 0 {
		ts = 0
	}

	frames, err := app.FrameRepo.ListByVideo(r.Context(), videoID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load frames")
		return
	}
	frame := nearestFrame(frames, ts)
	if frame == nil {
		writeError(w, http.StatusNotFound, "no frames available")
		return
	}

	file, err := app.Storage.OpenFile(frame.ImagePath)
	if err != nil {
		writeError(w, http.StatusNotFound, "frame image missing")
		return
	}
	defer file.Close()

	w.Header().Set("Content-Type", "image/jpeg")
	if _, err := io.Copy(w, file); err != nil {
		logging.Warn("streaming thumbnail failed", zap.String("video_id", videoID), zap.Error(err))
	}
}

func nearestFrame(frames []models.Frame, ts float64) *models.Frame {
	var best *models.Frame
	bestDelta := math.Inf(1)
	for i := range frames {
		delta := math.Abs(frames[i].Timestamp - ts)
		if delta < bestDelta {
			best = &frames[i]
			bestDelta = delta
		}
	}
	return best
}

func (app *App) CacheStatsHandler(w http.ResponseWriter, r *http.Request) {
	if app.Cache == nil {
		writeError(w, http.StatusNotFound, "cache disabled")
		return
	}
	keep, reason := app.Cache.Recommend()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"stats":          app.Cache.Stats(),
		"keep_caching":   keep,
		"recommendation": reason,
	})
}
