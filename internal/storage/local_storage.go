package storage

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

type LocalStorage struct {
	basePath string
}

func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

func (ls *LocalStorage) SaveFile(file multipart.File, info FileInfo) (string, error) {
	ext := filepath.Ext(info.Filename)
	if ext == "" {
		ext = ".mp4"
	}

	filename := fmt.Sprintf("%s%s", uuid.New().String(), ext)
	fullPath := filepath.Join(ls.basePath, filename)

	dst, err := os.Create(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		os.Remove(fullPath)
		return "", fmt.Errorf("failed to save file: %w", err)
	}

	return filename, nil
}

// SaveFrame writes one extracted frame image under frames/<videoID>/ and
// returns the storage-relative path used as the frame's ImagePath.
func (ls *LocalStorage) SaveFrame(videoID string, sequence int, data []byte) (string, error) {
	if strings.Contains(videoID, "..") || strings.ContainsRune(videoID, filepath.Separator) {
		return "", fmt.Errorf("invalid video id")
	}

	dir := filepath.Join(ls.basePath, "frames", videoID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create frames directory: %w", err)
	}

	relPath := filepath.Join("frames", videoID, fmt.Sprintf("%04d.jpg", sequence))
	if err := os.WriteFile(filepath.Join(ls.basePath, relPath), data, 0644); err != nil {
		return "", fmt.Errorf("failed to save frame: %w", err)
	}
	return relPath, nil
}

func (ls *LocalStorage) OpenFile(path string) (io.ReadSeekCloser, error) {
	cleanPath := filepath.Clean(path)
	if strings.Contains(cleanPath, "..") {
		return nil, fmt.Errorf("invalid path")
	}

	fullPath := filepath.Join(ls.basePath, cleanPath)
	file, err := os.Open(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	return file, nil
}

func (ls *LocalStorage) DeleteFile(path string) error {
	cleanPath := filepath.Clean(path)
	if strings.Contains(cleanPath, "..") {
		return fmt.Errorf("invalid path")
	}

	fullPath := filepath.Join(ls.basePath, cleanPath)
	if err := os.Remove(fullPath); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}

	return nil
}

// DeleteVideoFrames removes every stored frame image for the video.
func (ls *LocalStorage) DeleteVideoFrames(videoID string) error {
	if strings.Contains(videoID, "..") || strings.ContainsRune(videoID, filepath.Separator) {
		return fmt.Errorf("invalid video id")
	}
	return os.RemoveAll(filepath.Join(ls.basePath, "frames", videoID))
}
