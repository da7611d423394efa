package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/clipsight/clipsight/internal/models"
)

// ErrDuplicateMessage is returned when a message id is appended twice.
var ErrDuplicateMessage = errors.New("duplicate message id")

// ConversationRepo is the durable, append-only log of conversation turns.
// Rows are only removed through DeleteByVideo.
type ConversationRepo struct {
	db *DB
}

func NewConversationRepo(db *DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

func (r *ConversationRepo) Insert(ctx context.Context, rec *models.MemoryRecord) error {
	query := `
		INSERT INTO memory_records (message_id, video_id, role, content, ts)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.conn.ExecContext(ctx, query,
		rec.MessageID, rec.VideoID, string(rec.Role), rec.Content, rec.Timestamp)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicateMessage
		}
		return fmt.Errorf("failed to insert memory record: %w", err)
	}
	return nil
}

// ListRecent returns up to limit records for the video, most recent first.
// Ties on timestamp fall back to insertion order.
func (r *ConversationRepo) ListRecent(ctx context.Context, videoID string, limit, offset int) ([]models.MemoryRecord, error) {
	order := "ts DESC, seq DESC"
	if r.db.dbType == "sqlite" {
		order = "ts DESC, rowid DESC"
	}

	query := fmt.Sprintf(`
		SELECT message_id, video_id, role, content, ts
		FROM memory_records
		WHERE video_id = $1
		ORDER BY %s
		LIMIT $2 OFFSET $3`, order)

	rows, err := r.db.conn.QueryContext(ctx, query, videoID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query memory records: %w", err)
	}
	defer rows.Close()

	var records []models.MemoryRecord
	for rows.Next() {
		var rec models.MemoryRecord
		var role string
		if err := rows.Scan(&rec.MessageID, &rec.VideoID, &role, &rec.Content, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan memory record: %w", err)
		}
		rec.Role = models.Role(role)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// DeleteByVideo removes every record for the video and returns how many went.
func (r *ConversationRepo) DeleteByVideo(ctx context.Context, videoID string) (int64, error) {
	res, err := r.db.conn.ExecContext(ctx, `DELETE FROM memory_records WHERE video_id = $1`, videoID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete memory records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted records: %w", err)
	}
	return n, nil
}

// isDuplicateKey recognizes primary-key violations from both backends.
func isDuplicateKey(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || // sqlite
		strings.Contains(msg, "duplicate key value") // postgres
}
