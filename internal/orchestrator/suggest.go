package orchestrator

import (
	"fmt"
	"strings"

	"github.com/clipsight/clipsight/internal/models"
	"github.com/clipsight/clipsight/internal/planner"
)

const (
	minSuggestions = 1
	maxSuggestions = 3
)

// suggest proposes one to three unique follow-up questions, steered by what
// was just asked, what evidence the video actually has, and hints of more
// content in the generated answer.
func (o *Orchestrator) suggest(queryType planner.QueryType, available []models.SourceType, ev *evidence, answer string) []string {
	avail := make(map[models.SourceType]bool, len(available))
	for _, s := range available {
		avail[s] = true
	}

	var candidates []string

	// Lead the user somewhere new relative to the last question.
	switch queryType {
	case planner.QueryAudio:
		candidates = append(candidates, "What does the scene look like?")
	case planner.QueryVisual, planner.QueryObjectSearch:
		if avail[models.SourceTranscripts] {
			candidates = append(candidates, "What is being said in the video?")
		}
	case planner.QueryTemporal:
		candidates = append(candidates, "What happens next?")
	}

	// The answer itself can hint at more to see.
	if containsWord(answer, "later") {
		candidates = append(candidates, "What happens later in the video?")
	}
	if containsWord(answer, "also") || containsWord(answer, "another") {
		candidates = append(candidates, "What else appears in the video?")
	}

	if ev != nil && ev.tsContext != nil && len(ev.tsContext.VisibleObjects) > 0 {
		obj := ev.tsContext.VisibleObjects[0].ClassName
		candidates = append(candidates, fmt.Sprintf("When does the %s first appear?", obj))
	}
	if avail[models.SourceObjects] {
		candidates = append(candidates, "What objects appear in the video?")
	}
	if avail[models.SourceTranscripts] {
		candidates = append(candidates, "What is being said in the video?")
	}

	candidates = append(candidates,
		"Summarize the video",
		"What happens at the beginning?",
	)

	seen := make(map[string]bool)
	suggestions := make([]string, 0, maxSuggestions)
	for _, c := range candidates {
		key := strings.ToLower(c)
		if seen[key] {
			continue
		}
		seen[key] = true
		suggestions = append(suggestions, c)
		if len(suggestions) == maxSuggestions {
			break
		}
	}
	return suggestions
}

// containsWord reports whether the text contains the word with boundaries,
// so "also" never matches inside another word.
func containsWord(text, word string) bool {
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	}) {
		if w == word {
			return true
		}
	}
	return false
}

// withFallback puts the degradation plan's fallback suggestion first,
// keeping the one-to-three bound.
func withFallback(fallback string, suggestions []string) []string {
	if fallback == "" {
		return suggestions
	}
	out := append([]string{fallback}, suggestions...)
	seen := make(map[string]bool)
	kept := out[:0]
	for _, s := range out {
		key := strings.ToLower(s)
		if seen[key] {
			continue
		}
		seen[key] = true
		kept = append(kept, s)
		if len(kept) == maxSuggestions {
			break
		}
	}
	return kept
}

// smallTalkReply answers greetings and pleasantries directly, skipping the
// analysis pipeline entirely.
func smallTalkReply(message string) (string, bool) {
	msg := strings.ToLower(strings.Trim(strings.TrimSpace(message), "?!.,"))

	greetings := map[string]bool{
		"hi": true, "hello": true, "hey": true, "yo": true,
		"good morning": true, "good afternoon": true, "good evening": true,
	}
	if greetings[msg] {
		return "Hello! Ask me anything about this video.", true
	}

	switch msg {
	case "thanks", "thank you", "thx":
		return "You're welcome! Anything else about the video?", true
	case "bye", "goodbye", "see you":
		return "Goodbye! Come back if you have more questions about the video.", true
	case "how are you":
		return "Doing well and ready to dig into this video. What would you like to know?", true
	}
	return "", false
}
