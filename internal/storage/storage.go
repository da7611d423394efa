package storage

import (
	"io"
	"mime/multipart"
)

type FileInfo struct {
	Filename    string
	ContentType string
	Size        int64
}

// Storage persists video files and derived frame images.
type Storage interface {
	SaveFile(file multipart.File, info FileInfo) (string, error)
	SaveFrame(videoID string, sequence int, data []byte) (string, error)
	OpenFile(path string) (io.ReadSeekCloser, error)
	DeleteFile(path string) error
	DeleteVideoFrames(videoID string) error
}
