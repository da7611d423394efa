package ai

import (
	"context"
	"errors"
	"testing"
)

func TestParseDuration(t *testing.T) {
	output := `Input #0, mov,mp4, from 'test.mp4':
  Duration: 00:01:30.50, start: 0.000000, bitrate: 1205 kb/s`

	d, err := parseDuration(output)
	if err != nil {
		t.Fatalf("parseDuration: %v", err)
	}
	if d != 90.5 {
		t.Errorf("duration = %v, want 90.5", d)
	}

	if _, err := parseDuration("no duration here"); err == nil {
		t.Error("expected error for output without a duration")
	}
}

func TestExtractJSONArray(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`[{"class_name":"dog"}]`, `[{"class_name":"dog"}]`},
		{"Here are the objects:\n```json\n[{\"class_name\":\"dog\"}]\n```", `[{"class_name":"dog"}]`},
		{"no json at all", "no json at all"},
	}
	for _, tt := range tests {
		if got := extractJSONArray(tt.in); got != tt.want {
			t.Errorf("extractJSONArray(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	cfg.applyDefaults()

	if cfg.BaseURL != "https://api.openai.com/v1" {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if cfg.VisionModel == "" || cfg.TranscribeModel == "" || cfg.ChatModel == "" {
		t.Errorf("expected model defaults, got %+v", cfg)
	}
	if cfg.Timeout == 0 {
		t.Error("expected a default timeout")
	}
}

type flakyCaptioner struct {
	calls int
}

func (f *flakyCaptioner) CaptionFrame(_ context.Context, _ []byte) (string, float64, error) {
	f.calls++
	if f.calls%2 == 0 {
		return "", 0, errors.New("rate limit exceeded")
	}
	return "a scene", 0.9, nil
}

func TestCaptionFrames_SkipsFailures(t *testing.T) {
	frames := []ExtractedFrame{
		{Timestamp: 0, Sequence: 0, Data: []byte("f0")},
		{Timestamp: 5, Sequence: 1, Data: []byte("f1")},
		{Timestamp: 10, Sequence: 2, Data: []byte("f2")},
		{Timestamp: 15, Sequence: 3, Data: []byte("f3")},
	}

	captions, err := CaptionFrames(context.Background(), &flakyCaptioner{}, "vid-1", frames)
	if err != nil {
		t.Fatalf("CaptionFrames: %v", err)
	}
	if len(captions) != 2 {
		t.Fatalf("got %d captions, want 2 (every other call fails)", len(captions))
	}
	if captions[0].Timestamp != 0 || captions[1].Timestamp != 10 {
		t.Errorf("caption timestamps = %v, %v, want 0, 10", captions[0].Timestamp, captions[1].Timestamp)
	}
	if captions[0].VideoID != "vid-1" {
		t.Errorf("VideoID = %q, want vid-1", captions[0].VideoID)
	}
}

type deadCaptioner struct{}

func (deadCaptioner) CaptionFrame(_ context.Context, _ []byte) (string, float64, error) {
	return "", 0, errors.New("service unavailable")
}

func TestCaptionFrames_AllFailing(t *testing.T) {
	frames := []ExtractedFrame{{Data: []byte("f0")}, {Data: []byte("f1")}}
	if _, err := CaptionFrames(context.Background(), deadCaptioner{}, "vid-1", frames); err == nil {
		t.Fatal("expected error when every frame fails")
	}
}
