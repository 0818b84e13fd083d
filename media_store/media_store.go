// Package media_store keeps uploaded files on local disk below a single
// media directory.
package media_store

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const PHOTOS_SUBDIR = "photos"

var (
	ErrBadExtension = errors.New("unsupported image file extension")
	ErrBadPath      = errors.New("path escapes the media directory")
)

var allowedPhotoExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
	".webp": {},
	".tif":  {},
	".tiff": {},
	".heic": {},
}

func AllowedPhotoExtension(filename string) bool {
	_, ok := allowedPhotoExtensions[strings.ToLower(filepath.Ext(filename))]
	return ok
}

type MediaStore struct {
	logger         *logrus.Logger
	dir            string
	url            string
	maxUploadBytes int64
}

func (store *MediaStore) Dir() string {
	return store.dir
}

// BaseURL is the configured media url, a path like "/media/" or a full url.
func (store *MediaStore) BaseURL() string {
	return store.url
}

func (store *MediaStore) MaxUploadBytes() int64 {
	return store.maxUploadBytes
}

// fullPath maps a media-relative path like "photos/x.jpg" onto disk.
func (store *MediaStore) fullPath(relPath string) (string, error) {
	cleaned := path.Clean("/" + filepath.ToSlash(relPath))
	if cleaned == "/" {
		return "", ErrBadPath
	}
	return filepath.Join(store.dir, filepath.FromSlash(cleaned[1:])), nil
}

// SavePhoto stores the upload under a fresh name, keeping only the
// original extension. It returns the media-relative path.
func (store *MediaStore) SavePhoto(filename string, r io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := allowedPhotoExtensions[ext]; !ok {
		return "", fmt.Errorf("%w: '%s'", ErrBadExtension, ext)
	}

	relPath := path.Join(PHOTOS_SUBDIR, uuid.New().String()+ext)

	fullPath, err := store.fullPath(relPath)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create photo dir: %w", err)
	}

	f, err := os.CreateTemp(filepath.Dir(fullPath), ".upload.*")
	if err != nil {
		return "", err
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write photo: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}

	if err := os.Rename(f.Name(), fullPath); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to rename uploaded photo: %w", err)
	}

	store.logger.Debugf("MediaStore: saved '%s' as '%s'", filename, relPath)

	return relPath, nil
}

func (store *MediaStore) Open(relPath string) (*os.File, error) {
	fullPath, err := store.fullPath(relPath)
	if err != nil {
		return nil, err
	}
	return os.Open(fullPath)
}

// Delete removes a stored file. A file that is already gone is not an error.
func (store *MediaStore) Delete(relPath string) error {
	if relPath == "" {
		return nil
	}

	fullPath, err := store.fullPath(relPath)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (store *MediaStore) URL(relPath string) string {
	if relPath == "" {
		return ""
	}
	return strings.TrimRight(store.url, "/") + "/" + strings.TrimLeft(filepath.ToSlash(relPath), "/")
}

func NewMediaStore(logger *logrus.Logger, config Config) (*MediaStore, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	dir, err := filepath.Abs(config.Dir)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create media dir '%s': %w", dir, err)
	}

	return &MediaStore{
		logger:         logger,
		dir:            dir,
		url:            config.URL,
		maxUploadBytes: int64(config.MaxUploadMB) << 20,
	}, nil
}
