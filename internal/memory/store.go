// Package memory is the conversation store: an append-only, per-video log of
// chat turns with just enough rendering support to feed generation prompts.
package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/clipsight/clipsight/internal/database"
	"github.com/clipsight/clipsight/internal/models"
)

const (
	// DefaultHistoryLimit bounds history reads so prompts stay bounded too.
	DefaultHistoryLimit = 50

	// DefaultContextChars caps the rendered recent-context narrative.
	DefaultContextChars = 2000
)

type Store struct {
	repo         *database.ConversationRepo
	historyLimit int
	contextChars int
}

type Option func(*Store)

func WithHistoryLimit(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.historyLimit = n
		}
	}
}

func WithContextChars(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.contextChars = n
		}
	}
}

func NewStore(repo *database.ConversationRepo, opts ...Option) *Store {
	s := &Store{
		repo:         repo,
		historyLimit: DefaultHistoryLimit,
		contextChars: DefaultContextChars,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append writes one turn. Fails with database.ErrDuplicateMessage when the
// message id was already logged.
func (s *Store) Append(ctx context.Context, rec *models.MemoryRecord) error {
	if rec.MessageID == "" {
		return fmt.Errorf("memory record has no message id")
	}
	if rec.VideoID == "" {
		return fmt.Errorf("memory record has no video id")
	}
	return s.repo.Insert(ctx, rec)
}

// History returns records oldest-first. Storage retrieves most-recent-first,
// so the page is reversed before returning. limit <= 0 uses the configured
// default.
func (s *Store) History(ctx context.Context, videoID string, limit, offset int) ([]models.MemoryRecord, error) {
	if limit <= 0 || limit > s.historyLimit {
		limit = s.historyLimit
	}
	if offset < 0 {
		offset = 0
	}

	records, err := s.repo.ListRecent(ctx, videoID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}

	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

// Reset deletes every turn for the video. Idempotent: a second call reports 0.
func (s *Store) Reset(ctx context.Context, videoID string) (int64, error) {
	return s.repo.DeleteByVideo(ctx, videoID)
}

// RecentContext renders the most recent maxMessages turns as a flat
// "Role: content" narrative, oldest first, truncated to the character budget.
// Whole messages are dropped from the oldest end first; the final message is
// hard-trimmed if it alone exceeds the budget.
func (s *Store) RecentContext(ctx context.Context, videoID string, maxMessages int) (string, error) {
	if maxMessages <= 0 {
		maxMessages = s.historyLimit
	}

	records, err := s.History(ctx, videoID, maxMessages, 0)
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "", nil
	}

	lines := make([]string, 0, len(records))
	for _, rec := range records {
		lines = append(lines, fmt.Sprintf("%s: %s", roleLabel(rec.Role), rec.Content))
	}

	// Drop oldest lines until the narrative fits.
	for len(lines) > 1 && narrativeLen(lines) > s.contextChars {
		lines = lines[1:]
	}

	narrative := strings.Join(lines, "\n")
	if len(narrative) > s.contextChars {
		narrative = narrative[:s.contextChars]
	}
	return narrative, nil
}

func roleLabel(role models.Role) string {
	switch role {
	case models.RoleUser:
		return "User"
	case models.RoleAssistant:
		return "Assistant"
	default:
		return string(role)
	}
}

func narrativeLen(lines []string) int {
	total := 0
	for _, l := range lines {
		total += len(l) + 1
	}
	return total - 1
}
