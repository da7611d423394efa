package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/clipsight/clipsight/internal/models"
)

// ErrVideoNotFound is returned when a video id has no record.
var ErrVideoNotFound = errors.New("video not found")

type VideoRepository struct {
	db *DB
}

func NewVideoRepository(db *DB) *VideoRepository {
	return &VideoRepository{db: db}
}

func (r *VideoRepository) InsertVideo(ctx context.Context, video *models.Video) error {
	query := `
		INSERT INTO videos (id, filename, storage_path, duration, status, upload_time)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.db.conn.ExecContext(ctx, query,
		video.ID, video.Filename, video.StoragePath, video.Duration, string(video.Status), video.UploadTime)
	if err != nil {
		return fmt.Errorf("failed to insert video: %w", err)
	}
	return nil
}

func (r *VideoRepository) GetVideoByID(ctx context.Context, id string) (*models.Video, error) {
	query := `
		SELECT id, filename, storage_path, duration, status, upload_time
		FROM videos WHERE id = $1`

	var v models.Video
	var status string
	err := r.db.conn.QueryRowContext(ctx, query, id).Scan(
		&v.ID, &v.Filename, &v.StoragePath, &v.Duration, &status, &v.UploadTime)
	if err == sql.ErrNoRows {
		return nil, ErrVideoNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get video: %w", err)
	}
	v.Status = models.ProcessingStatus(status)
	return &v, nil
}

func (r *VideoRepository) UpdateStatus(ctx context.Context, id string, status models.ProcessingStatus) error {
	query := `UPDATE videos SET status = $1 WHERE id = $2`
	res, err := r.db.conn.ExecContext(ctx, query, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update video status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrVideoNotFound
	}
	return nil
}

func (r *VideoRepository) ListVideos(ctx context.Context) ([]models.Video, error) {
	query := `
		SELECT id, filename, storage_path, duration, status, upload_time
		FROM videos ORDER BY upload_time DESC`

	rows, err := r.db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list videos: %w", err)
	}
	defer rows.Close()

	var videos []models.Video
	for rows.Next() {
		var v models.Video
		var status string
		if err := rows.Scan(&v.ID, &v.Filename, &v.StoragePath, &v.Duration, &status, &v.UploadTime); err != nil {
			return nil, fmt.Errorf("failed to scan video: %w", err)
		}
		v.Status = models.ProcessingStatus(status)
		videos = append(videos, v)
	}
	return videos, rows.Err()
}
