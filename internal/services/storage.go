package services

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"

	gcs "cloud.google.com/go/storage"
	firebase "firebase.google.com/go/v4"
	"github.com/arnold/phasetrack-api/internal/logger"
	"go.uber.org/zap"
)

// LocalFilesURL is where the HTTP server exposes LocalStore files.
const LocalFilesURL = "/files"

// FileStore persists uploaded files under a key and returns a URL for them.
type FileStore interface {
	Put(ctx context.Context, key, contentType string, r io.Reader) (string, error)
}

// Files defaults to local disk; InitStorage switches it to the bucket.
var Files FileStore = LocalStore{Dir: "storage", BaseURL: LocalFilesURL}

type BucketStore struct {
	bucket *gcs.BucketHandle
	name   string
}

func (s *BucketStore) Put(ctx context.Context, key, contentType string, r io.Reader) (string, error) {
	w := s.bucket.Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write object %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close object %s: %w", key, err)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.name, url.PathEscape(key)), nil
}

// LocalStore writes files below Dir. Keys may contain slashes.
type LocalStore struct {
	Dir     string
	BaseURL string
}

func (s LocalStore) Put(_ context.Context, key, _ string, r io.Reader) (string, error) {
	path := filepath.Join(s.Dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return s.BaseURL + "/" + key, nil
}

// InitStorage uses the firebase default bucket when app is set and a bucket
// is configured, otherwise files go to localDir.
func InitStorage(ctx context.Context, app *firebase.App, bucketName, localDir string) {
	Files = LocalStore{Dir: localDir, BaseURL: LocalFilesURL}
	if app == nil || bucketName == "" {
		logger.Log.Info("storage: using local disk", zap.String("dir", localDir))
		return
	}

	client, err := app.Storage(ctx)
	if err != nil {
		logger.Log.Warn("storage: client unavailable, using local disk", zap.Error(err))
		return
	}
	bucket, err := client.DefaultBucket()
	if err != nil {
		logger.Log.Warn("storage: bucket unavailable, using local disk", zap.Error(err))
		return
	}

	Files = &BucketStore{bucket: bucket, name: bucketName}
	logger.Log.Info("storage: using bucket", zap.String("bucket", bucketName))
}
