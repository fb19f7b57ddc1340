// Package media stores uploaded files (expense receipts, product images) on an
// external object host and maps their public URLs back to storage keys.
package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/google/uuid"

	"kasirpos/backend/internal/config"
	"kasirpos/backend/internal/domain"
	"kasirpos/backend/internal/logger"
)

type Store interface {
	Upload(ctx context.Context, name string, contentType string, body io.Reader, size int64) (*domain.UploadResult, error)
	// Delete removes the object with the given key. Callers treat failures as best effort.
	Delete(ctx context.Context, key string) error
	// OpaqueIDFromURL recovers the storage key from a URL this store issued.
	OpaqueIDFromURL(url string) (string, bool)
}

// New selects the S3 store when configured and the local store otherwise.
func New(cfg config.MediaConfig) (Store, error) {
	if cfg.Driver == "s3" && cfg.AccessKeyID != "" {
		return NewS3Store(cfg)
	}
	return NewLocalStore(cfg.PublicBaseURL), nil
}

type S3Store struct {
	client  *s3.S3
	bucket  string
	baseURL string
}

func NewS3Store(cfg config.MediaConfig) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("S3_BUCKET is required for the s3 media driver")
	}
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(cfg.Region),
		Credentials: credentials.NewStaticCredentials(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	baseURL := cfg.PublicBaseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
	}
	return &S3Store{client: s3.New(sess), bucket: cfg.Bucket, baseURL: baseURL}, nil
}

func (s *S3Store) Upload(ctx context.Context, name string, contentType string, body io.Reader, size int64) (*domain.UploadResult, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	key := objectKey(name, time.Now().UTC())

	_, err = s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
		ACL:           aws.String("public-read"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload to S3: %w", err)
	}

	return &domain.UploadResult{
		URL:         s.baseURL + "/" + key,
		Key:         key,
		Size:        int64(len(data)),
		ContentType: contentType,
	}, nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete file from S3: %w", err)
	}
	return nil
}

func (s *S3Store) OpaqueIDFromURL(url string) (string, bool) {
	return keyFromURL(s.baseURL, url)
}

// LocalStore is the development fallback. It issues URLs without persisting
// content anywhere.
type LocalStore struct {
	baseURL string
}

func NewLocalStore(baseURL string) *LocalStore {
	if baseURL == "" {
		baseURL = "http://localhost:8080/uploads"
	}
	return &LocalStore{baseURL: strings.TrimRight(baseURL, "/")}
}

func (s *LocalStore) Upload(ctx context.Context, name string, contentType string, body io.Reader, _ int64) (*domain.UploadResult, error) {
	n, err := io.Copy(io.Discard, body)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	key := objectKey(name, time.Now().UTC())
	logger.Debug(ctx, "local media upload", "key", key, "size", n)
	return &domain.UploadResult{URL: s.baseURL + "/" + key, Key: key, Size: n, ContentType: contentType}, nil
}

func (s *LocalStore) Delete(ctx context.Context, key string) error {
	logger.Info(ctx, "local media delete", "key", key)
	return nil
}

func (s *LocalStore) OpaqueIDFromURL(url string) (string, bool) {
	return keyFromURL(s.baseURL, url)
}

// objectKey names an upload uploads/YYYYMMDD_<uuid>.<ext>.
func objectKey(name string, now time.Time) string {
	ext := strings.ToLower(filepath.Ext(name))
	return fmt.Sprintf("uploads/%s_%s%s", now.Format("20060102"), uuid.NewString(), ext)
}

func keyFromURL(baseURL string, url string) (string, bool) {
	prefix := strings.TrimRight(baseURL, "/") + "/"
	if url == "" || !strings.HasPrefix(url, prefix) {
		return "", false
	}
	key := strings.TrimPrefix(url, prefix)
	if i := strings.IndexAny(key, "?#"); i >= 0 {
		key = key[:i]
	}
	if key == "" {
		return "", false
	}
	return key, true
}
