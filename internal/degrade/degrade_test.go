package degrade

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/clipsight/clipsight/internal/models"
	"github.com/clipsight/clipsight/internal/planner"
)

type fakeNetError struct{}

func (fakeNetError) Error() string   { return "something broke" }
func (fakeNetError) Timeout() bool   { return true }
func (fakeNetError) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, KindUnknown},
		{"deadline", fmt.Errorf("calling captioner: %w", context.DeadlineExceeded), KindNetwork},
		{"typed net error", fmt.Errorf("request: %w", fakeNetError{}), KindNetwork},
		{"api key", errors.New("openai: invalid API key provided"), KindAPI},
		{"rate limit", errors.New("status 429: rate limit exceeded"), KindAPI},
		{"connection", errors.New("dial tcp 10.0.0.1:443: connection refused"), KindNetwork},
		{"validation", errors.New("video_id is required"), KindValidation},
		{"processing", errors.New("ffmpeg exited with code 1"), KindProcessing},
		{"tool", errors.New("caption generation failed"), KindTool},
		{"unknown", errors.New("splines unreticulated"), KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassify_APIKeyBeatsValidation(t *testing.T) {
	// "invalid API key" contains both an api and a validation pattern;
	// the table order makes it an API error.
	if got := Classify(errors.New("invalid api key")); got != KindAPI {
		t.Errorf("Classify = %s, want %s", got, KindAPI)
	}
}

func TestFormatForUser_NeverLeaksErrorText(t *testing.T) {
	raw := "dial tcp 10.0.0.1:443: connection refused (api_key=sk-secret)"
	msg := FormatForUser(Classify(errors.New(raw)))
	if msg == "" {
		t.Fatal("expected a user message")
	}
	if strings.Contains(msg, "sk-secret") || strings.Contains(msg, "10.0.0.1") {
		t.Errorf("user message leaks raw error content: %q", msg)
	}
}

func TestPlanDegradation_PartialAvailability(t *testing.T) {
	requested := []models.SourceType{models.SourceCaptions, models.SourceTranscripts, models.SourceObjects}
	available := []models.SourceType{models.SourceCaptions, models.SourceObjects}

	plan := PlanDegradation(requested, available, planner.QueryGeneral)
	if !plan.CanProceed {
		t.Fatal("expected CanProceed with two usable sources")
	}
	if len(plan.Usable) != 2 || len(plan.Unavailable) != 1 {
		t.Fatalf("usable/unavailable = %d/%d, want 2/1", len(plan.Usable), len(plan.Unavailable))
	}
	if plan.Unavailable[0] != models.SourceTranscripts {
		t.Errorf("Unavailable = %v, want transcripts", plan.Unavailable)
	}
	if plan.Notice == "" {
		t.Error("expected a notice when a source is unavailable")
	}
}

func TestPlanDegradation_NothingAvailable(t *testing.T) {
	requested := []models.SourceType{models.SourceTranscripts}
	plan := PlanDegradation(requested, nil, planner.QueryAudio)

	if plan.CanProceed {
		t.Fatal("expected CanProceed=false with no usable sources")
	}
	if plan.Notice == "" {
		t.Error("expected a notice explaining nothing is available")
	}
}

func TestPlanDegradation_FallbackMatchesQueryIntent(t *testing.T) {
	// An audio question with no transcript gets pointed at the captions.
	requested := []models.SourceType{models.SourceTranscripts}
	available := []models.SourceType{models.SourceCaptions}

	plan := PlanDegradation(requested, available, planner.QueryAudio)
	if plan.CanProceed {
		t.Fatal("expected CanProceed=false, transcripts are missing")
	}
	if !strings.Contains(plan.Fallback, "scenes") {
		t.Errorf("Fallback = %q, want a caption-flavored suggestion", plan.Fallback)
	}

	// A visual question missing captions but with transcripts available.
	plan = PlanDegradation(
		[]models.SourceType{models.SourceCaptions, models.SourceObjects},
		[]models.SourceType{models.SourceTranscripts},
		planner.QueryVisual,
	)
	if !strings.Contains(plan.Fallback, "said") {
		t.Errorf("Fallback = %q, want a transcript-flavored suggestion", plan.Fallback)
	}
}

func TestPlanDegradation_NoFallbackWhenNothingMissing(t *testing.T) {
	requested := []models.SourceType{models.SourceCaptions}
	available := []models.SourceType{models.SourceCaptions, models.SourceTranscripts}

	plan := PlanDegradation(requested, available, planner.QueryVisual)
	if plan.Fallback != "" {
		t.Errorf("Fallback = %q, want none with every requested source present", plan.Fallback)
	}
}

func TestPlanDegradation_FullAvailability(t *testing.T) {
	requested := []models.SourceType{models.SourceCaptions}
	available := []models.SourceType{models.SourceCaptions, models.SourceTranscripts}

	plan := PlanDegradation(requested, available, planner.QueryVisual)
	if !plan.CanProceed || len(plan.Unavailable) != 0 || plan.Notice != "" {
		t.Errorf("plan = %+v, want clean pass with no notice", plan)
	}
}
