package orchestrator

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/clipsight/clipsight/internal/aggregate"
	"github.com/clipsight/clipsight/internal/cache"
	"github.com/clipsight/clipsight/internal/database"
	"github.com/clipsight/clipsight/internal/memory"
	"github.com/clipsight/clipsight/internal/models"
)

type stubCompleter struct {
	answer     string
	err        error
	calls      int
	lastPrompt string
}

func (s *stubCompleter) Complete(_ context.Context, _, prompt string) (string, error) {
	s.calls++
	s.lastPrompt = prompt
	if s.err != nil {
		return "", s.err
	}
	return s.answer, nil
}

type countingSearcher struct {
	calls int
}

func (s *countingSearcher) Search(_ context.Context, videoID, query string, _ int) ([]models.SearchResult, error) {
	s.calls++
	return []models.SearchResult{
		{Text: "a dog runs", Score: 0.9, VideoID: videoID, Timestamp: 5.0, Source: models.SourceCaptions},
	}, nil
}

type fixture struct {
	orch        *Orchestrator
	completer   *stubCompleter
	mem         *memory.Store
	captions    *database.CaptionRepo
	transcripts *database.TranscriptRepo
	detections  *database.DetectionRepo
}

func setup(t *testing.T, opts ...Option) (*fixture, func()) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "orchestrator_test.db")
	db, err := database.NewDB(database.Config{Type: "sqlite", SQLitePath: dbPath})
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	videos := database.NewVideoRepository(db)
	mem := memory.NewStore(database.NewConversationRepo(db))
	f := &fixture{
		completer:   &stubCompleter{answer: "Here is what happens."},
		mem:         mem,
		captions:    database.NewCaptionRepo(db),
		transcripts: database.NewTranscriptRepo(db),
		detections:  database.NewDetectionRepo(db),
	}
	agg := aggregate.NewAggregator(
		videos,
		database.NewFrameRepo(db),
		f.captions,
		f.transcripts,
		f.detections,
		mem,
	)
	f.orch = New(videos, agg, mem, f.completer, opts...)

	video := &models.Video{
		ID: "vid-1", Filename: "demo.mp4", StoragePath: "demo.mp4",
		Duration: 60, Status: models.StatusComplete, UploadTime: time.Now(),
	}
	if err := videos.InsertVideo(context.Background(), video); err != nil {
		t.Fatalf("Failed to insert video: %v", err)
	}

	return f, func() { db.Close() }
}

func (f *fixture) seedCaptions(t *testing.T, videoID string) {
	t.Helper()
	ctx := context.Background()
	for _, c := range []models.Caption{
		{VideoID: videoID, Timestamp: 5, Text: "a dog runs across the yard", Confidence: 1.0},
		{VideoID: videoID, Timestamp: 10, Text: "a person waves at the camera", Confidence: 1.0},
		{VideoID: videoID, Timestamp: 15, Text: "the dog catches a ball", Confidence: 1.0},
		{VideoID: videoID, Timestamp: 20, Text: "clouds drift over the field", Confidence: 1.0},
	} {
		c := c
		if err := f.captions.Insert(ctx, &c); err != nil {
			t.Fatalf("Failed to seed caption: %v", err)
		}
	}
}

func (f *fixture) seedTranscript(t *testing.T, videoID string) {
	t.Helper()
	seg := models.TranscriptSegment{
		VideoID: videoID, Start: 8, End: 12, Text: "watch the dog go", Confidence: 1.0,
	}
	if err := f.transcripts.Insert(context.Background(), &seg); err != nil {
		t.Fatalf("Failed to seed transcript: %v", err)
	}
}

func TestChat_TemporalQuestion(t *testing.T) {
	f, cleanup := setup(t)
	defer cleanup()
	f.seedCaptions(t, "vid-1")
	f.seedTranscript(t, "vid-1")

	resp, err := f.orch.Chat(context.Background(), ChatRequest{
		VideoID: "vid-1", Message: "What happened at 0:10?",
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.QueryType != "temporal" {
		t.Errorf("QueryType = %s, want temporal", resp.QueryType)
	}
	if resp.Answer != "Here is what happens." {
		t.Errorf("Answer = %q", resp.Answer)
	}

	// The prompt carries the context around 10s: captions within the 5s
	// window and the covering speech segment.
	prompt := f.completer.lastPrompt
	if !strings.Contains(prompt, "a person waves at the camera") {
		t.Errorf("prompt missing the caption at 10s:\n%s", prompt)
	}
	if !strings.Contains(prompt, "watch the dog go") {
		t.Errorf("prompt missing the covering transcript:\n%s", prompt)
	}
	if strings.Contains(prompt, "clouds drift over the field") {
		t.Errorf("prompt includes a caption outside the window:\n%s", prompt)
	}

	found := false
	for _, m := range resp.Moments {
		if m.Timestamp == 10.0 {
			found = true
			if m.Display != "0:10" {
				t.Errorf("Display = %q, want 0:10", m.Display)
			}
			if !strings.Contains(m.ThumbnailURL, "vid-1") {
				t.Errorf("ThumbnailURL = %q, want video id in it", m.ThumbnailURL)
			}
		}
	}
	if !found {
		t.Errorf("moments %v missing the requested timestamp", resp.Moments)
	}
}

func TestChat_SuggestionsAlwaysOneToThree(t *testing.T) {
	f, cleanup := setup(t)
	defer cleanup()
	f.seedCaptions(t, "vid-1")

	queries := []string{"hi", "What does the scene look like?", "What happened at 0:10?"}
	for _, q := range queries {
		resp, err := f.orch.Chat(context.Background(), ChatRequest{VideoID: "vid-1", Message: q})
		if err != nil {
			t.Fatalf("Chat(%q): %v", q, err)
		}
		if len(resp.Suggestions) < 1 || len(resp.Suggestions) > 3 {
			t.Errorf("Chat(%q) returned %d suggestions, want 1..3", q, len(resp.Suggestions))
		}
		seen := make(map[string]bool)
		for _, s := range resp.Suggestions {
			if seen[s] {
				t.Errorf("Chat(%q) repeated suggestion %q", q, s)
			}
			seen[s] = true
		}
	}
}

func TestChat_SmallTalkSkipsPipeline(t *testing.T) {
	f, cleanup := setup(t)
	defer cleanup()

	resp, err := f.orch.Chat(context.Background(), ChatRequest{VideoID: "vid-1", Message: "hi"})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if f.completer.calls != 0 {
		t.Errorf("completer called %d times for small talk, want 0", f.completer.calls)
	}
	if resp.Degraded {
		t.Error("small talk must not be degraded")
	}
	if resp.Answer == "" {
		t.Error("expected a direct reply")
	}

	history, err := f.mem.History(context.Background(), "vid-1", 10, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 2 || history[0].Role != models.RoleUser || history[1].Role != models.RoleAssistant {
		t.Errorf("history = %d records, want user then assistant", len(history))
	}
}

func TestChat_NoAnalysisYieldsDegradedResponse(t *testing.T) {
	f, cleanup := setup(t)
	defer cleanup()

	// No artifacts seeded, so an audio question has nothing to stand on.
	resp, err := f.orch.Chat(context.Background(), ChatRequest{
		VideoID: "vid-1", Message: "What did they say?",
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if !resp.Degraded {
		t.Error("expected a degraded response")
	}
	if resp.Answer == "" {
		t.Error("degraded responses still need an answer")
	}
	if f.completer.calls != 0 {
		t.Errorf("completer called %d times with no usable sources, want 0", f.completer.calls)
	}
}

type stubAnalyzer struct {
	calls int
	run   func(ctx context.Context, video *models.Video) error
}

func (a *stubAnalyzer) AnalyzeVideo(ctx context.Context, video *models.Video) error {
	a.calls++
	if a.run != nil {
		return a.run(ctx, video)
	}
	return nil
}

func TestChat_RunsToolsWhenNothingPersisted(t *testing.T) {
	an := &stubAnalyzer{}
	f, cleanup := setup(t, WithAnalyzer(an))
	defer cleanup()

	// The analysis run produces captions; the turn should then answer
	// from them instead of degrading.
	an.run = func(_ context.Context, video *models.Video) error {
		f.seedCaptions(t, video.ID)
		return nil
	}

	resp, err := f.orch.Chat(context.Background(), ChatRequest{
		VideoID: "vid-1", Message: "What does the scene look like?",
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if an.calls != 1 {
		t.Fatalf("analyzer called %d times, want 1", an.calls)
	}
	if f.completer.calls != 1 {
		t.Errorf("completer called %d times, want 1", f.completer.calls)
	}
	if resp.Answer != f.completer.answer {
		t.Errorf("Answer = %q, want the generated answer", resp.Answer)
	}
}

func TestChat_ToolsOnlyRunWhenNothingPersisted(t *testing.T) {
	an := &stubAnalyzer{}
	f, cleanup := setup(t, WithAnalyzer(an))
	defer cleanup()
	f.seedCaptions(t, "vid-1")

	if _, err := f.orch.Chat(context.Background(), ChatRequest{
		VideoID: "vid-1", Message: "What does the scene look like?",
	}); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if an.calls != 0 {
		t.Errorf("analyzer called %d times with persisted artifacts, want 0", an.calls)
	}
}

func TestChat_FailedToolRunStillDegradesGracefully(t *testing.T) {
	an := &stubAnalyzer{run: func(context.Context, *models.Video) error {
		return errors.New("ffmpeg exited with status 1")
	}}
	f, cleanup := setup(t, WithAnalyzer(an))
	defer cleanup()

	resp, err := f.orch.Chat(context.Background(), ChatRequest{
		VideoID: "vid-1", Message: "What does the scene look like?",
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if !resp.Degraded {
		t.Error("expected a degraded response after the tool run failed")
	}
	if strings.Contains(resp.Answer, "ffmpeg") {
		t.Errorf("raw tool error leaked to the user: %q", resp.Answer)
	}
}

func TestChat_FallbackSuggestionSteersToAvailableSource(t *testing.T) {
	f, cleanup := setup(t)
	defer cleanup()
	f.seedCaptions(t, "vid-1")

	// Audio question, but only captions exist.
	resp, err := f.orch.Chat(context.Background(), ChatRequest{
		VideoID: "vid-1", Message: "What did they say?",
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if !resp.Degraded {
		t.Fatal("expected a degraded response with no transcript")
	}
	if len(resp.Suggestions) == 0 || !strings.Contains(resp.Suggestions[0], "scenes") {
		t.Errorf("Suggestions = %v, want a caption-flavored fallback first", resp.Suggestions)
	}
}

func TestChat_AnswerHintsExpandSuggestions(t *testing.T) {
	f, cleanup := setup(t)
	defer cleanup()
	f.seedCaptions(t, "vid-1")
	f.completer.answer = "The dog appears again later in the video."

	resp, err := f.orch.Chat(context.Background(), ChatRequest{
		VideoID: "vid-1", Message: "What does the scene look like?",
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	found := false
	for _, s := range resp.Suggestions {
		if strings.Contains(s, "later") {
			found = true
		}
	}
	if !found {
		t.Errorf("Suggestions = %v, want one picking up on %q", resp.Suggestions, "later")
	}
}

func TestChat_GenerationFailureStaysUserSafe(t *testing.T) {
	f, cleanup := setup(t)
	defer cleanup()
	f.seedCaptions(t, "vid-1")
	f.completer.err = errors.New("status 429: rate limit exceeded")

	resp, err := f.orch.Chat(context.Background(), ChatRequest{
		VideoID: "vid-1", Message: "What does the scene look like?",
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if !resp.Degraded {
		t.Error("expected a degraded response")
	}
	if strings.Contains(resp.Answer, "429") || strings.Contains(resp.Answer, "rate limit") {
		t.Errorf("raw error leaked to the user: %q", resp.Answer)
	}
	if len(resp.Suggestions) == 0 {
		t.Error("degraded responses still carry suggestions")
	}
}

func TestChat_PersistsUserThenAssistant(t *testing.T) {
	f, cleanup := setup(t)
	defer cleanup()
	f.seedCaptions(t, "vid-1")

	if _, err := f.orch.Chat(context.Background(), ChatRequest{
		VideoID: "vid-1", Message: "What does the scene look like?",
	}); err != nil {
		t.Fatalf("Chat: %v", err)
	}

	history, err := f.mem.History(context.Background(), "vid-1", 10, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history has %d records, want 2", len(history))
	}
	if history[0].Role != models.RoleUser || history[0].Content != "What does the scene look like?" {
		t.Errorf("first record = %+v, want the user turn", history[0])
	}
	if history[1].Role != models.RoleAssistant {
		t.Errorf("second record role = %s, want assistant", history[1].Role)
	}
}

func TestChat_UnknownVideo(t *testing.T) {
	f, cleanup := setup(t)
	defer cleanup()

	_, err := f.orch.Chat(context.Background(), ChatRequest{
		VideoID: "nope", Message: "What happens?",
	})
	if err == nil {
		t.Fatal("expected an error for an unknown video")
	}
	if !errors.Is(err, database.ErrVideoNotFound) {
		t.Errorf("err = %v, want it to wrap ErrVideoNotFound", err)
	}
}

func TestChat_EmptyMessage(t *testing.T) {
	f, cleanup := setup(t)
	defer cleanup()

	if _, err := f.orch.Chat(context.Background(), ChatRequest{VideoID: "vid-1", Message: "  "}); err == nil {
		t.Fatal("expected an error for an empty message")
	}
}

func TestChat_RepeatedQuestionHitsCache(t *testing.T) {
	searcher := &countingSearcher{}
	relevance := cache.New()
	f, cleanup := setup(t, WithSearcher(searcher), WithCache(relevance))
	defer cleanup()
	f.seedCaptions(t, "vid-1")

	req := ChatRequest{VideoID: "vid-1", Message: "What does the scene look like?"}
	for i := 0; i < 2; i++ {
		if _, err := f.orch.Chat(context.Background(), req); err != nil {
			t.Fatalf("Chat #%d: %v", i+1, err)
		}
	}

	if searcher.calls != 1 {
		t.Errorf("searcher called %d times, want 1 (second turn served from cache)", searcher.calls)
	}
	if s := relevance.Stats(); s.Hits != 1 {
		t.Errorf("cache hits = %d, want 1", s.Hits)
	}
}

func TestFormatTime(t *testing.T) {
	tests := []struct {
		seconds float64
		want    string
	}{
		{0, "0:00"},
		{10, "0:10"},
		{90, "1:30"},
		{3661, "1:01:01"},
	}
	for _, tt := range tests {
		if got := formatTime(tt.seconds); got != tt.want {
			t.Errorf("formatTime(%v) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

func TestMoments_MergeSortCap(t *testing.T) {
	f, cleanup := setup(t)
	defer cleanup()

	ev := &evidence{
		captions: []models.SearchResult{
			{Text: "c near", Timestamp: 5.3},
			{Text: "c far", Timestamp: 30.0},
		},
		transcripts: []models.TranscriptSegment{
			{Start: 5.0, Text: "t base"},
		},
	}
	for i := 0; i < 15; i++ {
		ev.frames = append(ev.frames, models.Frame{Timestamp: float64(40 + i*2)})
	}

	moments := f.orch.moments("vid-1", ev)
	if len(moments) != maxMoments {
		t.Fatalf("got %d moments, want capped at %d", len(moments), maxMoments)
	}
	// 5.0 and 5.3 merge into one moment keeping the earlier timestamp.
	if moments[0].Timestamp != 5.0 {
		t.Errorf("first moment at %v, want 5.0", moments[0].Timestamp)
	}
	if moments[1].Timestamp != 30.0 {
		t.Errorf("second moment at %v, want 30.0 (5.3 merged away)", moments[1].Timestamp)
	}
	for i := 1; i < len(moments); i++ {
		if moments[i].Timestamp < moments[i-1].Timestamp {
			t.Errorf("moments not sorted ascending: %v", moments)
		}
	}
}
