package orchestrator

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/clipsight/clipsight/internal/aggregate"
	"github.com/clipsight/clipsight/internal/logging"
	"github.com/clipsight/clipsight/internal/models"
	"github.com/clipsight/clipsight/internal/planner"
)

const defaultTokenBudget = 3000

const persona = "You are a video analysis assistant. Answer questions about the video " +
	"using only the evidence provided. Cite timestamps like [1:23] when the evidence " +
	"supports them. If the evidence does not answer the question, say so plainly."

type tokenCounter func(string) int

// newTokenCounter prefers a real cl100k_base tokenizer and falls back to a
// bytes/4 estimate when the encoding cannot be loaded (offline).
func newTokenCounter() tokenCounter {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		logging.Warn("tokenizer unavailable, using byte estimate")
		return func(s string) int { return len(s)/4 + 1 }
	}
	return func(s string) int { return len(enc.Encode(s, nil, nil)) }
}

// promptSection is one titled block of evidence. Sections are appended in
// priority order until the token budget runs out; a section that does not
// fit is dropped whole.
type promptSection struct {
	title string
	body  string
}

// compose assembles the generation prompt. The question and conversation
// history always go in; evidence competes for the remaining budget in
// priority order for the query type.
func (o *Orchestrator) compose(video *models.Video, question string, plan *planner.ToolPlan, history string, ev *evidence) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Video: %s (%.0f seconds)\n\n", video.Filename, video.Duration)
	if history != "" {
		fmt.Fprintf(&b, "Conversation so far:\n%s\n\n", history)
	}
	fmt.Fprintf(&b, "Question: %s\n", question)

	used := o.countTokens(b.String()) + o.countTokens(persona)
	for _, section := range o.sections(plan, ev) {
		block := fmt.Sprintf("\n%s:\n%s\n", section.title, section.body)
		cost := o.countTokens(block)
		if used+cost > o.tokenBudget {
			continue
		}
		b.WriteString(block)
		used += cost
	}

	b.WriteString("\nAnswer the question using the evidence above.")
	return b.String()
}

// sections orders evidence by how directly it serves the query type:
// transcripts lead for audio questions, captions otherwise, and a timestamp
// context always leads when present.
func (o *Orchestrator) sections(plan *planner.ToolPlan, ev *evidence) []promptSection {
	var sections []promptSection

	if ev.tsContext != nil {
		sections = append(sections, timestampSection(ev.tsContext))
	}

	captions := captionSection(ev.captions)
	transcripts := transcriptSection(ev.transcripts)
	objects := objectSection(ev.frames, plan.ObjectName)

	if plan.QueryType == planner.QueryAudio {
		sections = append(sections, transcripts, captions)
	} else {
		sections = append(sections, captions, transcripts)
	}
	sections = append(sections, objects)

	kept := sections[:0]
	for _, s := range sections {
		if s.body != "" {
			kept = append(kept, s)
		}
	}
	return kept
}

func timestampSection(tc *aggregate.TimestampContext) promptSection {
	var lines []string
	for _, c := range tc.NearbyCaptions {
		lines = append(lines, fmt.Sprintf("[%s] %s", formatTime(c.Timestamp), c.Text))
	}
	if tc.TranscriptSegment != nil {
		s := tc.TranscriptSegment
		lines = append(lines, fmt.Sprintf("Speech [%s-%s]: %q", formatTime(s.Start), formatTime(s.End), s.Text))
	}
	if len(tc.VisibleObjects) > 0 {
		names := make([]string, len(tc.VisibleObjects))
		for i, obj := range tc.VisibleObjects {
			names[i] = obj.ClassName
		}
		lines = append(lines, "Visible objects: "+strings.Join(names, ", "))
	}
	return promptSection{
		title: fmt.Sprintf("Around %s", formatTime(tc.Timestamp)),
		body:  strings.Join(lines, "\n"),
	}
}

func captionSection(results []models.SearchResult) promptSection {
	var lines []string
	for _, r := range results {
		lines = append(lines, fmt.Sprintf("[%s] %s", formatTime(r.Timestamp), r.Text))
	}
	return promptSection{title: "Relevant scene descriptions", body: strings.Join(lines, "\n")}
}

func transcriptSection(segments []models.TranscriptSegment) promptSection {
	var lines []string
	for _, s := range segments {
		lines = append(lines, fmt.Sprintf("[%s-%s] %q", formatTime(s.Start), formatTime(s.End), s.Text))
	}
	return promptSection{title: "Relevant speech", body: strings.Join(lines, "\n")}
}

func objectSection(frames []models.Frame, object string) promptSection {
	if object == "" || len(frames) == 0 {
		return promptSection{}
	}
	var lines []string
	for _, f := range frames {
		lines = append(lines, fmt.Sprintf("[%s] %s visible", formatTime(f.Timestamp), object))
	}
	return promptSection{title: "Object sightings", body: strings.Join(lines, "\n")}
}
