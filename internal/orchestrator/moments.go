package orchestrator

import (
	"fmt"
	"sort"
)

const (
	momentMergeWindow = 0.5
	maxMoments        = 10
)

type candidateMoment struct {
	timestamp float64
	label     string
}

// moments turns the gathered evidence into clickable timeline points.
// Candidates within half a second merge into one, the result is sorted
// ascending and capped at ten.
func (o *Orchestrator) moments(videoID string, ev *evidence) []Moment {
	var candidates []candidateMoment

	for _, r := range ev.captions {
		candidates = append(candidates, candidateMoment{r.Timestamp, r.Text})
	}
	for _, s := range ev.transcripts {
		candidates = append(candidates, candidateMoment{s.Start, s.Text})
	}
	for _, f := range ev.frames {
		candidates = append(candidates, candidateMoment{f.Timestamp, ""})
	}
	if ev.tsContext != nil {
		label := ""
		if len(ev.tsContext.NearbyCaptions) > 0 {
			label = ev.tsContext.NearbyCaptions[0].Text
		}
		candidates = append(candidates, candidateMoment{ev.tsContext.Timestamp, label})
	}

	if len(candidates) == 0 {
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].timestamp < candidates[j].timestamp
	})

	// Merge near-coincident candidates, keeping the first label seen.
	merged := candidates[:1]
	for _, c := range candidates[1:] {
		last := &merged[len(merged)-1]
		if c.timestamp-last.timestamp <= momentMergeWindow {
			if last.label == "" {
				last.label = c.label
			}
			continue
		}
		merged = append(merged, c)
	}
	if len(merged) > maxMoments {
		merged = merged[:maxMoments]
	}

	result := make([]Moment, len(merged))
	for i, c := range merged {
		result[i] = Moment{
			Timestamp:    c.timestamp,
			Display:      formatTime(c.timestamp),
			Label:        truncateLabel(c.label, 80),
			ThumbnailURL: fmt.Sprintf("/api/videos/%s/thumbnail?t=%.1f", videoID, c.timestamp),
		}
	}
	return result
}

func truncateLabel(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

// formatTime renders seconds as M:SS, or H:MM:SS from an hour up.
func formatTime(seconds float64) string {
	total := int(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
