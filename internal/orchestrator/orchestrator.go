// Package orchestrator runs a chat turn end to end: classify the question,
// plan which evidence to gather, gather it concurrently, compose a budgeted
// prompt, generate the answer, and enrich it with moments and follow-up
// suggestions. Every turn produces a response, degraded if it must be.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/clipsight/clipsight/internal/aggregate"
	"github.com/clipsight/clipsight/internal/ai"
	"github.com/clipsight/clipsight/internal/cache"
	"github.com/clipsight/clipsight/internal/database"
	"github.com/clipsight/clipsight/internal/degrade"
	"github.com/clipsight/clipsight/internal/logging"
	"github.com/clipsight/clipsight/internal/memory"
	"github.com/clipsight/clipsight/internal/models"
	"github.com/clipsight/clipsight/internal/planner"
)

const (
	defaultGatherTimeout  = 10 * time.Second
	defaultAnalyzeTimeout = 3 * time.Minute
	defaultTopK           = 5
)

// Searcher ranks caption text for a query. The hybrid searcher implements
// it; plain lexical caption search is the fallback.
type Searcher interface {
	Search(ctx context.Context, videoID, query string, topK int) ([]models.SearchResult, error)
}

// Analyzer runs the captioning, detection, and transcription tools against
// a video. The orchestrator only reaches for it when a video has no
// persisted analysis at all.
type Analyzer interface {
	AnalyzeVideo(ctx context.Context, video *models.Video) error
}

type ChatRequest struct {
	VideoID string `json:"video_id"`
	Message string `json:"message"`
}

// Moment is a clickable point in the video backing part of the answer.
type Moment struct {
	Timestamp    float64 `json:"timestamp"`
	Display      string  `json:"display"`
	Label        string  `json:"label"`
	ThumbnailURL string  `json:"thumbnail_url"`
}

type ChatResponse struct {
	Answer      string   `json:"answer"`
	Moments     []Moment `json:"moments,omitempty"`
	Suggestions []string `json:"suggestions"`
	QueryType   string   `json:"query_type"`
	Degraded    bool     `json:"degraded"`
	Notice      string   `json:"notice,omitempty"`
}

type Orchestrator struct {
	videos        *database.VideoRepository
	agg           *aggregate.Aggregator
	memory        *memory.Store
	planner       *planner.Planner
	searcher       Searcher
	analyzer       Analyzer
	cache          *cache.RelevanceCache
	completer      ai.Completer
	gatherTimeout  time.Duration
	analyzeTimeout time.Duration
	countTokens    tokenCounter
	tokenBudget    int
}

type Option func(*Orchestrator)

func WithSearcher(s Searcher) Option {
	return func(o *Orchestrator) { o.searcher = s }
}

func WithCache(c *cache.RelevanceCache) Option {
	return func(o *Orchestrator) { o.cache = c }
}

// WithAnalyzer enables on-demand analysis for videos nothing has processed
// yet.
func WithAnalyzer(a Analyzer) Option {
	return func(o *Orchestrator) { o.analyzer = a }
}

func WithAnalyzeTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.analyzeTimeout = d }
}

func WithGatherTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.gatherTimeout = d }
}

func WithTokenBudget(n int) Option {
	return func(o *Orchestrator) { o.tokenBudget = n }
}

func New(videos *database.VideoRepository, agg *aggregate.Aggregator, mem *memory.Store, completer ai.Completer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		videos:         videos,
		agg:            agg,
		memory:         mem,
		planner:        planner.New(),
		completer:      completer,
		gatherTimeout:  defaultGatherTimeout,
		analyzeTimeout: defaultAnalyzeTimeout,
		countTokens:    newTokenCounter(),
		tokenBudget:    defaultTokenBudget,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// evidence is everything the gather stage collected for one turn.
type evidence struct {
	mu          sync.Mutex
	captions    []models.SearchResult
	transcripts []models.TranscriptSegment
	frames      []models.Frame
	tsContext   *aggregate.TimestampContext
	failures    []degrade.ErrorKind
}

// Chat runs one full turn. It returns an error only for malformed requests;
// pipeline failures surface as a degraded response instead.
func (o *Orchestrator) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, fmt.Errorf("message is required")
	}
	if req.VideoID == "" {
		return nil, fmt.Errorf("video_id is required")
	}

	video, err := o.videos.GetVideoByID(ctx, req.VideoID)
	if err != nil {
		if errors.Is(err, database.ErrVideoNotFound) {
			return nil, fmt.Errorf("video %s: %w", req.VideoID, database.ErrVideoNotFound)
		}
		return o.degraded(ctx, req, planner.QueryGeneral, degrade.Classify(err)), nil
	}

	// Small talk never touches the analysis pipeline.
	if reply, ok := smallTalkReply(req.Message); ok {
		resp := &ChatResponse{
			Answer:      reply,
			Suggestions: o.suggest(planner.QueryGeneral, nil, nil, ""),
			QueryType:   string(planner.QueryGeneral),
		}
		o.persist(ctx, req, resp.Answer)
		return resp, nil
	}

	plan := o.planner.Plan(req.Message)

	available, err := o.availableSources(ctx, req.VideoID)
	if err != nil {
		return o.degraded(ctx, req, plan.QueryType, degrade.Classify(err)), nil
	}

	// With nothing persisted at all, run the analysis tools now rather
	// than giving up. Failure falls through to the degraded path.
	if len(available) == 0 && o.analyzer != nil {
		if fresh, ok := o.analyzeOnDemand(ctx, video); ok {
			available = fresh
		}
	}

	dplan := degrade.PlanDegradation(plan.ToolsNeeded, available, plan.QueryType)
	if !dplan.CanProceed {
		resp := &ChatResponse{
			Answer:      dplan.Notice,
			Suggestions: withFallback(dplan.Fallback, o.suggest(plan.QueryType, available, nil, "")),
			QueryType:   string(plan.QueryType),
			Degraded:    true,
			Notice:      dplan.Notice,
		}
		o.persist(ctx, req, resp.Answer)
		return resp, nil
	}

	ev := o.gather(ctx, req, plan, dplan.Usable)

	history, err := o.memory.RecentContext(ctx, req.VideoID, 0)
	if err != nil {
		logging.Warn("loading conversation context failed",
			zap.String("video_id", req.VideoID), zap.Error(err))
		history = ""
	}

	prompt := o.compose(video, req.Message, plan, history, ev)

	answer, err := o.completer.Complete(ctx, persona, prompt)
	if err != nil {
		logging.Error("answer generation failed",
			zap.String("video_id", req.VideoID), zap.Error(err))
		return o.degradedWithEvidence(ctx, req, plan, dplan, ev, degrade.Classify(err)), nil
	}

	resp := &ChatResponse{
		Answer:      answer,
		Moments:     o.moments(req.VideoID, ev),
		Suggestions: withFallback(dplan.Fallback, o.suggest(plan.QueryType, available, ev, answer)),
		QueryType:   string(plan.QueryType),
		Degraded:    len(dplan.Unavailable) > 0 || len(ev.failures) > 0,
		Notice:      dplan.Notice,
	}
	o.persist(ctx, req, resp.Answer)
	return resp, nil
}

// gather runs one goroutine per usable source, each under its own timeout.
// A failed source is recorded and skipped; the turn continues with what
// arrived.
func (o *Orchestrator) gather(ctx context.Context, req ChatRequest, plan *planner.ToolPlan, usable []models.SourceType) *evidence {
	ev := &evidence{}

	if plan.QueryType == planner.QueryTemporal && plan.Timestamp != nil {
		gctx, cancel := context.WithTimeout(ctx, o.gatherTimeout)
		defer cancel()
		tc, err := o.agg.ContextAtTimestamp(gctx, req.VideoID, *plan.Timestamp, aggregate.DefaultWindow)
		if err != nil {
			ev.recordFailure(req.VideoID, models.SourceCaptions, err)
		} else {
			ev.tsContext = tc
		}
		return ev
	}

	var wg sync.WaitGroup
	for _, source := range usable {
		wg.Add(1)
		go func(source models.SourceType) {
			defer wg.Done()
			gctx, cancel := context.WithTimeout(ctx, o.gatherTimeout)
			defer cancel()
			o.gatherSource(gctx, req, plan, source, ev)
		}(source)
	}
	wg.Wait()
	return ev
}

func (o *Orchestrator) gatherSource(ctx context.Context, req ChatRequest, plan *planner.ToolPlan, source models.SourceType, ev *evidence) {
	switch source {
	case models.SourceCaptions:
		results, err := o.searchCaptions(ctx, req.VideoID, req.Message, defaultTopK)
		if err != nil {
			ev.recordFailure(req.VideoID, source, err)
			return
		}
		ev.mu.Lock()
		ev.captions = results
		ev.mu.Unlock()

	case models.SourceTranscripts:
		segments, err := o.agg.SearchTranscripts(ctx, req.VideoID, req.Message)
		if err != nil {
			ev.recordFailure(req.VideoID, source, err)
			return
		}
		if len(segments) > defaultTopK {
			segments = segments[:defaultTopK]
		}
		ev.mu.Lock()
		ev.transcripts = segments
		ev.mu.Unlock()

	case models.SourceObjects:
		object := plan.ObjectName
		if object == "" {
			return
		}
		frames, err := o.agg.FramesWithObject(ctx, req.VideoID, object)
		if err != nil {
			ev.recordFailure(req.VideoID, source, err)
			return
		}
		ev.mu.Lock()
		ev.frames = frames
		ev.mu.Unlock()
	}
}

// searchCaptions consults the relevance cache around whichever searcher is
// wired, falling back to plain lexical caption scoring.
func (o *Orchestrator) searchCaptions(ctx context.Context, videoID, query string, topK int) ([]models.SearchResult, error) {
	if o.cache != nil {
		if results, ok := o.cache.Get(query, videoID, topK); ok {
			return results, nil
		}
	}

	start := time.Now()
	var results []models.SearchResult
	var err error
	if o.searcher != nil {
		results, err = o.searcher.Search(ctx, videoID, query, topK)
	} else {
		results, err = o.agg.SearchCaptions(ctx, videoID, query, topK)
	}
	if err != nil {
		return nil, err
	}

	if o.cache != nil {
		o.cache.RecordLatency(time.Since(start))
		o.cache.Put(query, videoID, topK, results)
	}
	return results, nil
}

func (ev *evidence) recordFailure(videoID string, source models.SourceType, err error) {
	kind := degrade.Classify(err)
	logging.Warn("evidence gathering failed",
		zap.String("video_id", videoID),
		zap.String("source", string(source)),
		zap.String("kind", string(kind)),
		zap.Error(err))
	ev.mu.Lock()
	ev.failures = append(ev.failures, kind)
	ev.mu.Unlock()
}

// analyzeOnDemand invokes the external analysis tools for a video with no
// persisted artifacts, then re-reads what they produced. Both the run and
// the re-read are best effort; the caller proceeds with whatever came back.
func (o *Orchestrator) analyzeOnDemand(ctx context.Context, video *models.Video) ([]models.SourceType, bool) {
	actx, cancel := context.WithTimeout(ctx, o.analyzeTimeout)
	defer cancel()

	logging.Info("no persisted analysis, running tools on demand",
		zap.String("video_id", video.ID))
	if err := o.analyzer.AnalyzeVideo(actx, video); err != nil {
		logging.Warn("on-demand analysis failed",
			zap.String("video_id", video.ID), zap.Error(err))
		return nil, false
	}

	available, err := o.availableSources(ctx, video.ID)
	if err != nil {
		logging.Warn("re-reading sources after analysis failed",
			zap.String("video_id", video.ID), zap.Error(err))
		return nil, false
	}
	return available, true
}

// availableSources reports which evidence kinds exist for the video.
func (o *Orchestrator) availableSources(ctx context.Context, videoID string) ([]models.SourceType, error) {
	vc, err := o.agg.Build(ctx, videoID, false)
	if err != nil {
		return nil, err
	}
	var available []models.SourceType
	if len(vc.Captions) > 0 {
		available = append(available, models.SourceCaptions)
	}
	if len(vc.Transcript) > 0 {
		available = append(available, models.SourceTranscripts)
	}
	if len(vc.Detections) > 0 {
		available = append(available, models.SourceObjects)
	}
	return available, nil
}

// persist appends the user turn and then the assistant turn. Failures are
// logged; the response has already been decided.
func (o *Orchestrator) persist(ctx context.Context, req ChatRequest, answer string) {
	userRec := models.NewMemoryRecord(req.VideoID, models.RoleUser, req.Message)
	if err := o.memory.Append(ctx, userRec); err != nil && !errors.Is(err, database.ErrDuplicateMessage) {
		logging.Warn("persisting user turn failed",
			zap.String("video_id", req.VideoID), zap.Error(err))
		return
	}
	assistantRec := models.NewMemoryRecord(req.VideoID, models.RoleAssistant, answer)
	if err := o.memory.Append(ctx, assistantRec); err != nil && !errors.Is(err, database.ErrDuplicateMessage) {
		logging.Warn("persisting assistant turn failed",
			zap.String("video_id", req.VideoID), zap.Error(err))
	}
}

func (o *Orchestrator) degraded(ctx context.Context, req ChatRequest, queryType planner.QueryType, kind degrade.ErrorKind) *ChatResponse {
	resp := &ChatResponse{
		Answer:      degrade.FormatForUser(kind),
		Suggestions: o.suggest(queryType, nil, nil, ""),
		QueryType:   string(queryType),
		Degraded:    true,
		Notice:      degrade.FormatForUser(kind),
	}
	o.persist(ctx, req, resp.Answer)
	return resp
}

// degradedWithEvidence is the generation-failure path: the answer is gone
// but gathered moments and suggestions still help the user.
func (o *Orchestrator) degradedWithEvidence(ctx context.Context, req ChatRequest, plan *planner.ToolPlan, dplan degrade.Plan, ev *evidence, kind degrade.ErrorKind) *ChatResponse {
	resp := &ChatResponse{
		Answer:      degrade.FormatForUser(kind),
		Moments:     o.moments(req.VideoID, ev),
		Suggestions: withFallback(dplan.Fallback, o.suggest(plan.QueryType, dplan.Usable, ev, "")),
		QueryType:   string(plan.QueryType),
		Degraded:    true,
		Notice:      degrade.FormatForUser(kind),
	}
	o.persist(ctx, req, resp.Answer)
	return resp
}
