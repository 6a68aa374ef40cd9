// Package attachments keeps trade images as opaque blobs on local disk.
package attachments

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"trade-market/internal/apperrors"
)

var (
	ErrUnsupportedType = errors.New("unsupported image type")
	ErrTooLarge        = errors.New("image exceeds the upload limit")
)

// AllowedTypes lists the image formats a trade may carry.
var AllowedTypes = []string{"image/png", "image/jpeg", "image/gif", "image/webp"}

// Stored describes a blob written by Put.
type Stored struct {
	Key         string
	ContentType string
	Size        int64
}

// DiskStore writes blobs under a root directory.
type DiskStore struct {
	root     string
	maxBytes int64
}

// NewDiskStore creates root when missing.
func NewDiskStore(root string, maxBytes int64) (*DiskStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &DiskStore{root: root, maxBytes: maxBytes}, nil
}

// Put detects the content type, rejects anything that is not an allowed image
// and stores the bytes under a fresh key.
func (s *DiskStore) Put(ctx context.Context, r io.Reader) (Stored, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return Stored{}, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return Stored{}, ErrTooLarge
	}
	if err := ctx.Err(); err != nil {
		return Stored{}, err
	}

	mt := mimetype.Detect(data)
	if !mimetype.EqualsAny(mt.String(), AllowedTypes...) {
		return Stored{}, fmt.Errorf("%w: %s", ErrUnsupportedType, mt.String())
	}

	key := uuid.NewString() + mt.Extension()
	tmp, err := os.CreateTemp(s.root, ".upload-*")
	if err != nil {
		return Stored{}, err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return Stored{}, err
	}
	if err := tmp.Close(); err != nil {
		return Stored{}, err
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.root, key)); err != nil {
		return Stored{}, err
	}
	return Stored{Key: key, ContentType: mt.String(), Size: int64(len(data))}, nil
}

// Open returns the blob stored under key.
func (s *DiskStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("attachment %s: %w", key, apperrors.ErrNotFound)
	}
	return f, err
}

// Delete removes the blob; deleting a missing blob is not an error.
func (s *DiskStore) Delete(_ context.Context, key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *DiskStore) path(key string) (string, error) {
	if key == "" || key != filepath.Base(key) || strings.HasPrefix(key, ".") {
		return "", fmt.Errorf("attachment %q: %w", key, apperrors.ErrNotFound)
	}
	return filepath.Join(s.root, key), nil
}
