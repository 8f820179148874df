package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrAttachmentTooLarge is returned when an upload exceeds the configured limit
var ErrAttachmentTooLarge = errors.New("attachment exceeds maximum size")

// AttachmentStore persists uploaded files and returns the URL they are served from
type AttachmentStore interface {
	Store(ctx context.Context, r io.Reader, originalName string) (string, error)
}

// LocalAttachmentStore writes uploads to a directory on disk
type LocalAttachmentStore struct {
	dir       string
	urlPrefix string
	maxSize   int64
}

// NewLocalAttachmentStore creates dir if needed. Stored files are addressed as urlPrefix/<name>.
func NewLocalAttachmentStore(dir, urlPrefix string, maxSize int64) (*LocalAttachmentStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalAttachmentStore{
		dir:       dir,
		urlPrefix: strings.TrimRight(urlPrefix, "/"),
		maxSize:   maxSize,
	}, nil
}

// Dir is the directory files are written to
func (s *LocalAttachmentStore) Dir() string {
	return s.dir
}

// Store copies r to a randomly named file keeping the original extension
func (s *LocalAttachmentStore) Store(ctx context.Context, r io.Reader, originalName string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := uuid.NewString() + safeExt(originalName)
	path := filepath.Join(s.dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", &StorageError{Op: "store_attachment", Err: err}
	}

	src := r
	if s.maxSize > 0 {
		src = io.LimitReader(r, s.maxSize+1)
	}
	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", &StorageError{Op: "store_attachment", Err: err}
	}
	if s.maxSize > 0 && n > s.maxSize {
		_ = os.Remove(path)
		return "", ErrAttachmentTooLarge
	}

	return s.urlPrefix + "/" + name, nil
}

func safeExt(name string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(name)))
	if len(ext) < 2 || len(ext) > 10 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
