// Package degrade decides how the assistant behaves when parts of the
// pipeline fail: it classifies errors, plans which evidence sources remain
// usable, and produces user-safe wording that never leaks raw error text.
package degrade

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/clipsight/clipsight/internal/models"
	"github.com/clipsight/clipsight/internal/planner"
)

type ErrorKind string

const (
	KindAPI        ErrorKind = "api"
	KindNetwork    ErrorKind = "network"
	KindValidation ErrorKind = "validation"
	KindProcessing ErrorKind = "processing"
	KindTool       ErrorKind = "tool"
	KindUnknown    ErrorKind = "unknown"
)

// kindPatterns is checked in order; the first matching substring decides the
// kind. Typed checks (net.Error, context deadlines) run before this table.
var kindPatterns = []struct {
	kind     ErrorKind
	patterns []string
}{
	{KindAPI, []string{"api key", "rate limit", "quota", "unauthorized", "status 401", "status 429", "billing"}},
	{KindNetwork, []string{"connection refused", "no such host", "timeout", "timed out", "dial tcp", "network", "eof"}},
	{KindValidation, []string{"invalid", "missing", "required", "empty", "malformed", "unsupported"}},
	{KindProcessing, []string{"ffmpeg", "frame extraction", "decode", "transcode", "corrupt"}},
	{KindTool, []string{"tool", "caption", "transcri", "detect", "embed", "search"}},
}

// Classify maps an error to a coarse kind. Typed network and deadline errors
// win over the substring table so wrapped messages cannot misroute them.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindNetwork
	}

	msg := strings.ToLower(err.Error())
	for _, entry := range kindPatterns {
		for _, p := range entry.patterns {
			if strings.Contains(msg, p) {
				return entry.kind
			}
		}
	}
	return KindUnknown
}

// userMessages is the only wording a user ever sees for a failure.
var userMessages = map[ErrorKind]string{
	KindAPI:        "The AI service is currently unavailable. Please try again in a few minutes.",
	KindNetwork:    "There was a connection problem while analyzing the video. Please try again.",
	KindValidation: "That request could not be understood. Please rephrase your question.",
	KindProcessing: "Part of the video could not be processed, so some details may be missing.",
	KindTool:       "One of the analysis tools is unavailable, so the answer may be incomplete.",
	KindUnknown:    "Something went wrong while answering. Please try again.",
}

// FormatForUser returns a friendly message for the error kind. Raw error
// text is never included.
func FormatForUser(kind ErrorKind) string {
	if msg, ok := userMessages[kind]; ok {
		return msg
	}
	return userMessages[KindUnknown]
}

// Plan is the outcome of degradation planning for one request.
type Plan struct {
	Usable      []models.SourceType
	Unavailable []models.SourceType
	CanProceed  bool
	Notice      string
	Fallback    string
}

// PlanDegradation intersects the sources a query needs with those that are
// actually available. The request proceeds whenever at least one requested
// source survives; with none, it cannot. When something requested is
// missing, Fallback steers the user toward an available source the query
// did not ask for.
func PlanDegradation(requested, available []models.SourceType, queryType planner.QueryType) Plan {
	avail := make(map[models.SourceType]bool, len(available))
	for _, s := range available {
		avail[s] = true
	}

	var plan Plan
	for _, s := range requested {
		if avail[s] {
			plan.Usable = append(plan.Usable, s)
		} else {
			plan.Unavailable = append(plan.Unavailable, s)
		}
	}
	plan.CanProceed = len(plan.Usable) > 0
	plan.Notice = notice(plan)
	plan.Fallback = fallback(plan, requested, available, queryType)
	return plan
}

// fallbackPhrases pairs a substitute source with a follow-up phrased for
// the intent that just went unserved.
var fallbackPhrases = map[planner.QueryType]map[models.SourceType]string{
	planner.QueryAudio: {
		models.SourceCaptions: "There is no transcript yet. Try asking what the scenes look like.",
		models.SourceObjects:  "There is no transcript yet. Try asking what objects appear.",
	},
	planner.QueryVisual: {
		models.SourceTranscripts: "Visual analysis is missing. Try asking what is being said instead.",
		models.SourceObjects:     "Caption analysis is missing. Try asking what objects appear.",
	},
	planner.QueryObjectSearch: {
		models.SourceTranscripts: "Object detection has not run yet. Try asking what is being said.",
		models.SourceCaptions:    "Object detection has not run yet. Try asking what the scenes show.",
	},
}

var genericFallbacks = map[models.SourceType]string{
	models.SourceCaptions:    "Try asking what the scenes look like.",
	models.SourceTranscripts: "Try asking what is being said.",
	models.SourceObjects:     "Try asking what objects appear.",
}

// fallback picks the first available source the query did not request and
// turns it into a suggestion matching the query's intent. All sources
// present, or nothing left to offer, yields no fallback.
func fallback(plan Plan, requested, available []models.SourceType, queryType planner.QueryType) string {
	if len(plan.Unavailable) == 0 {
		return ""
	}
	wanted := make(map[models.SourceType]bool, len(requested))
	for _, s := range requested {
		wanted[s] = true
	}
	for _, s := range available {
		if wanted[s] {
			continue
		}
		if byIntent, ok := fallbackPhrases[queryType]; ok {
			if phrase, ok := byIntent[s]; ok {
				return phrase
			}
		}
		return genericFallbacks[s]
	}
	return ""
}

func notice(p Plan) string {
	if len(p.Unavailable) == 0 {
		return ""
	}
	if !p.CanProceed {
		return "None of the analysis needed for this question is available yet. Try again after the video finishes processing."
	}
	return fmt.Sprintf("Answering from %s only; %s analysis is unavailable right now.",
		joinSources(p.Usable), joinSources(p.Unavailable))
}

func joinSources(sources []models.SourceType) string {
	names := make([]string, len(sources))
	for i, s := range sources {
		names[i] = string(s)
	}
	return strings.Join(names, " and ")
}
