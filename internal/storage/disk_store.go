package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var ErrInvalidKey = errors.New("invalid blob key")

// Logger is the subset of the service logger the store needs.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
}

// DiskStore keeps image blobs as flat files under one directory.
// Files are served by the web layer under the public base URL.
type DiskStore struct {
	dir           string
	publicBaseURL string
	logger        Logger
}

func NewDiskStore(dir, publicBaseURL string, logger Logger) (*DiskStore, error) {
	if dir == "" {
		return nil, errors.New("blob directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating blob directory: %w", err)
	}
	return &DiskStore{
		dir:           dir,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		logger:        logger,
	}, nil
}

// Dir is the directory blobs are written to.
func (s *DiskStore) Dir() string {
	return s.dir
}

// Upload writes data under key. The write goes through a temp file so a reader never sees a partial blob.
func (s *DiskStore) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	if !validKey(key) {
		return ErrInvalidKey
	}
	if len(data) == 0 {
		return errors.New("blob is empty")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("creating temp blob: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing blob: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("storing blob: %w", err)
	}

	s.logger.Debug("blob uploaded", "key", key, "bytes", len(data), "content_type", contentType)
	return nil
}

// PublicURL is the URL under which the web layer serves key.
func (s *DiskStore) PublicURL(key string) string {
	return s.publicBaseURL + "/" + key
}

// Delete removes every key. Keys that are already gone count as deleted.
// Failures for individual keys are collected and returned together.
func (s *DiskStore) Delete(ctx context.Context, keys []string) error {
	var errs []error
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if !validKey(key) {
			errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidKey, key))
			continue
		}
		err := os.Remove(filepath.Join(s.dir, key))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("deleting blob %s: %w", key, err))
			continue
		}
		s.logger.Debug("blob deleted", "key", key)
	}
	return errors.Join(errs...)
}
