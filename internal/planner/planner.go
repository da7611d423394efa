// Package planner turns free-text questions into tool execution plans:
// a query classification, an optional timestamp, an optional object noun,
// and the evidence sources to gather in cost order.
package planner

import (
	"regexp"
	"strings"

	"github.com/clipsight/clipsight/internal/models"
)

type QueryType string

const (
	QueryTemporal     QueryType = "temporal"
	QueryAudio        QueryType = "audio"
	QueryObjectSearch QueryType = "object_search"
	QueryVisual       QueryType = "visual"
	QueryGeneral      QueryType = "general"
)

// ToolPlan is the per-request decision of what evidence to gather and in what
// order. The order is cheapest-source-first so partial results stay useful
// under a timeout; correctness never depends on it.
type ToolPlan struct {
	QueryType      QueryType
	ToolsNeeded    []models.SourceType
	ExecutionOrder []models.SourceType
	Timestamp      *float64
	ObjectName     string
}

// Parameters flattens the extracted values for transport.
func (p *ToolPlan) Parameters() map[string]interface{} {
	params := map[string]interface{}{
		"query_type": string(p.QueryType),
	}
	if p.Timestamp != nil {
		params["timestamp"] = *p.Timestamp
	}
	if p.ObjectName != "" {
		params["object_name"] = p.ObjectName
	}
	return params
}

// rule is one entry of the ordered classification table. First match wins.
type rule struct {
	queryType QueryType
	keywords  []string
}

// classificationRules is evaluated top to bottom; temporal is handled before
// the table because it needs the timestamp grammar, not keywords.
var classificationRules = []rule{
	{QueryAudio, []string{
		"say", "says", "said", "saying", "speak", "speaks", "spoken", "speech",
		"talk", "talks", "talking", "audio", "sound", "hear", "heard",
		"mention", "mentioned", "voice", "narrat", "dialogue", "dialog",
	}},
	{QueryObjectSearch, []string{
		"find", "search", "locate", "count", "how many", "show me",
		"is there", "are there", "any sign of", "spot",
	}},
	{QueryVisual, []string{
		"look", "looks", "looked", "appear", "appearance", "describe",
		"description", "scene", "visible", "color", "colour", "wearing",
		"shown", "display", "see", "seen", "background", "foreground",
	}},
	{QueryGeneral, []string{
		"summary", "summarize", "summarise", "overview", "about",
		"happen", "happens", "happened", "happening", "main", "gist",
		"topic", "theme",
	}},
}

// sourcesByType maps a classification to the evidence it needs.
var sourcesByType = map[QueryType][]models.SourceType{
	QueryVisual:       {models.SourceCaptions, models.SourceObjects},
	QueryAudio:        {models.SourceTranscripts},
	QueryTemporal:     {models.SourceCaptions, models.SourceTranscripts, models.SourceObjects},
	QueryObjectSearch: {models.SourceObjects, models.SourceCaptions},
	QueryGeneral:      {models.SourceCaptions, models.SourceTranscripts, models.SourceObjects},
}

// costOrder is fixed by source latency, cheapest first.
var costOrder = []models.SourceType{
	models.SourceTranscripts,
	models.SourceCaptions,
	models.SourceObjects,
}

type Planner struct{}

func New() *Planner {
	return &Planner{}
}

// Plan classifies the query and selects evidence sources. Precedence:
// temporal > audio > object search > visual > general > default general.
func (p *Planner) Plan(query string) *ToolPlan {
	queryLower := strings.ToLower(query)

	plan := &ToolPlan{QueryType: QueryGeneral}

	if ts, ok := ExtractTimestamp(queryLower); ok {
		plan.QueryType = QueryTemporal
		plan.Timestamp = &ts
	} else {
	rules:
		for _, r := range classificationRules {
			for _, kw := range r.keywords {
				if !containsKeyword(queryLower, kw) {
					continue
				}
				// Object search needs a resolvable noun; without one the
				// trigger word alone does not count.
				if r.queryType == QueryObjectSearch {
					if noun := ExtractObjectNoun(queryLower); noun != "" {
						plan.QueryType = QueryObjectSearch
						plan.ObjectName = noun
						break rules
					}
					continue
				}
				plan.QueryType = r.queryType
				break rules
			}
		}
	}

	if plan.ObjectName == "" {
		if noun := ExtractObjectNoun(queryLower); noun != "" {
			plan.ObjectName = noun
		}
	}

	plan.ToolsNeeded = sourcesByType[plan.QueryType]
	plan.ExecutionOrder = orderByCost(plan.ToolsNeeded)
	return plan
}

// containsKeyword matches whole words for short keywords and plain substrings
// for phrases and stems.
func containsKeyword(query, keyword string) bool {
	if strings.Contains(keyword, " ") || len(keyword) > 5 {
		return strings.Contains(query, keyword)
	}
	for _, word := range strings.Fields(query) {
		if strings.Trim(word, ".,!?;:'\"") == keyword {
			return true
		}
	}
	return false
}

func orderByCost(needed []models.SourceType) []models.SourceType {
	want := make(map[models.SourceType]bool, len(needed))
	for _, s := range needed {
		want[s] = true
	}
	ordered := make([]models.SourceType, 0, len(needed))
	for _, s := range costOrder {
		if want[s] {
			ordered = append(ordered, s)
		}
	}
	return ordered
}

var (
	hmsPattern     = regexp.MustCompile(`\b(\d{1,2}):(\d{2}):(\d{2})\b`)
	msPattern      = regexp.MustCompile(`\b(\d{1,3}):(\d{2})\b`)
	secondsPattern = regexp.MustCompile(`\b(\d+(?:\.\d+)?)\s*(?:seconds?|secs?)\b`)
	minutesPattern = regexp.MustCompile(`\b(\d+(?:\.\d+)?)\s*(?:minutes?|mins?)\b`)
)

// ExtractTimestamp parses a time expression out of the query. Recognized:
// HH:MM:SS, MM:SS, "<N> seconds", "<N> minutes", and "beginning"/"start" → 0.
func ExtractTimestamp(query string) (float64, bool) {
	queryLower := strings.ToLower(query)

	if m := hmsPattern.FindStringSubmatch(queryLower); m != nil {
		return float64(atoi(m[1]))*3600 + float64(atoi(m[2]))*60 + float64(atoi(m[3])), true
	}
	if m := msPattern.FindStringSubmatch(queryLower); m != nil {
		return float64(atoi(m[1]))*60 + float64(atoi(m[2])), true
	}
	if m := secondsPattern.FindStringSubmatch(queryLower); m != nil {
		return atof(m[1]), true
	}
	if m := minutesPattern.FindStringSubmatch(queryLower); m != nil {
		return atof(m[1]) * 60, true
	}
	if strings.Contains(queryLower, "beginning") || containsKeyword(queryLower, "start") {
		return 0, true
	}
	return 0, false
}

func atoi(s string) int {
	n := 0
	for _, c := range s {
		n = n*10 + int(c-'0')
	}
	return n
}

func atof(s string) float64 {
	whole := 0.0
	frac := 0.0
	div := 1.0
	inFrac := false
	for _, c := range s {
		if c == '.' {
			inFrac = true
			continue
		}
		if inFrac {
			div *= 10
			frac += float64(c-'0') / div
		} else {
			whole = whole*10 + float64(c-'0')
		}
	}
	return whole + frac
}

// objectPatterns are tried in order; the first capture wins.
var objectPatterns = []*regexp.Regexp{
	regexp.MustCompile(`show me all (?:the |of the )?([a-z][a-z ]*)`),
	regexp.MustCompile(`show me (?:the |a |an )?([a-z][a-z ]*)`),
	regexp.MustCompile(`find (?:the |all |a |an |any )?([a-z][a-z ]*)`),
	regexp.MustCompile(`search for (?:the |a |an )?([a-z][a-z ]*)`),
	regexp.MustCompile(`how many ([a-z][a-z ]*)`),
	regexp.MustCompile(`count (?:the |all )?([a-z][a-z ]*)`),
	regexp.MustCompile(`is there (?:a |an |any )?([a-z][a-z ]*)`),
	regexp.MustCompile(`are there (?:any )?([a-z][a-z ]*)`),
	regexp.MustCompile(`locate (?:the |a |an )?([a-z][a-z ]*)`),
	regexp.MustCompile(`any sign of (?:a |an |the )?([a-z][a-z ]*)`),
	regexp.MustCompile(`spot (?:the |a |an )?([a-z][a-z ]*)`),
}

// objectStopWords never count as the noun and are trimmed off the ends of the
// extracted phrase.
var objectStopWords = map[string]bool{
	"the": true, "a": true, "an": true, "in": true, "on": true, "at": true,
	"of": true, "video": true, "clip": true, "scene": true, "frame": true,
	"this": true, "that": true, "there": true, "are": true, "is": true,
	"me": true, "all": true, "any": true, "and": true, "or": true,
	"appear": true, "appears": true, "visible": true, "shown": true,
}

// ExtractObjectNoun pulls the object being asked about, or "" when none of
// the phrase patterns resolve to a usable noun.
func ExtractObjectNoun(query string) string {
	queryLower := strings.ToLower(query)
	queryLower = strings.Trim(queryLower, " ?!.")

	for _, pattern := range objectPatterns {
		m := pattern.FindStringSubmatch(queryLower)
		if m == nil {
			continue
		}
		if noun := trimStopWords(m[1]); noun != "" {
			return noun
		}
	}
	return ""
}

func trimStopWords(phrase string) string {
	words := strings.Fields(phrase)

	// Leading stop-words.
	for len(words) > 0 && objectStopWords[words[0]] {
		words = words[1:]
	}
	// Keep up to the first stop-word after the noun phrase begins.
	end := len(words)
	for i, w := range words {
		if objectStopWords[w] {
			end = i
			break
		}
	}
	words = words[:end]

	// Cap the noun phrase at two words.
	if len(words) > 2 {
		words = words[:2]
	}
	return strings.Join(words, " ")
}
