// Package objectstore wraps the cloud object store (AWS S3) used for raw
// uploads, reconstruction metadata, and presigned upload tickets. Nothing
// in the retrieved corpus shows an S3 client directly, but
// richxcame-ride-hailing's go.mod carries aws-sdk-go-v2/service/s3 as a
// direct dependency, and this pipeline's domain (document ingestion) is
// the natural home for it: bounded-retry puts, UUID-prefixed keys, and
// presigned POST tickets, following the teacher's exponential-backoff
// retry shape in internal/ai/gemini_retry.go (calculateBackoff) adapted
// to a hard cap rather than an open-ended delay series.
package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ocrpipe/docintel/internal/errs"
)

// Config controls retry/backoff behavior.
type Config struct {
	Bucket      string
	MaxAttempts int
	InitialDelay time.Duration
	MaxDelay    time.Duration
}

// UploadTicket is a presigned POST ticket.
type UploadTicket struct {
	URL        string
	FormFields map[string]string
}

// Store wraps an S3 client with the pipeline's retry policy and cached
// health check.
type Store struct {
	client *s3.Client
	presignClient *s3.PresignClient
	cfg    Config
	logger *zap.Logger

	healthMu       sync.Mutex
	healthCachedAt time.Time
	healthCached   bool
}

// New builds a Store. client may be nil only in tests that never call an
// operation requiring it.
func New(client *s3.Client, cfg Config, logger *zap.Logger) *Store {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 100 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 2 * time.Second
	}
	var presign *s3.PresignClient
	if client != nil {
		presign = s3.NewPresignClient(client)
	}
	return &Store{client: client, presignClient: presign, cfg: cfg, logger: logger}
}

// Configured reports whether a bucket is set; most operations no-op
// gracefully when it is not.
func (s *Store) Configured() bool { return s.cfg.Bucket != "" }

// Put uploads body to key with bounded-attempt exponential backoff.
// Non-transient errors stop retrying immediately.
func (s *Store) Put(ctx context.Context, key string, body []byte, contentType string) error {
	if !s.Configured() {
		return errs.ErrNotConfigured
	}

	var lastErr error
	delay := s.cfg.InitialDelay
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.cfg.Bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(body),
			ContentType: aws.String(contentType),
		})
		if err == nil {
			return nil
		}
		lastErr = err
		if !isTransient(err) {
			return errs.Wrap(errs.KindTransport, "objectstore.Put", "non-transient put failure", err)
		}
		if attempt == s.cfg.MaxAttempts {
			break
		}
		if s.logger != nil {
			s.logger.Warn("object store put retrying", zap.String("key", key), zap.Int("attempt", attempt), zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > s.cfg.MaxDelay {
			delay = s.cfg.MaxDelay
		}
	}
	return errs.Wrap(errs.KindTransient, "objectstore.Put", "exhausted retry attempts", lastErr)
}

// PutJSON serializes value as UTF-8 JSON and puts it, surfacing
// serialization errors under KindParse so callers can distinguish them
// from transport failures.
func (s *Store) PutJSON(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errs.Wrap(errs.KindParse, "objectstore.PutJSON", "failed to serialize value", err)
	}
	return s.Put(ctx, key, data, "application/json")
}

// UploadBlob puts raw bytes under "<prefix>/<uuid>-<filename>" and returns
// the key, or "" if the store is not configured (degraded no-op mode).
func (s *Store) UploadBlob(ctx context.Context, data []byte, filename, contentType, prefix string) (string, error) {
	if !s.Configured() {
		return "", nil
	}
	key := fmt.Sprintf("%s/%s-%s", prefix, uuid.New().String(), filename)
	if err := s.Put(ctx, key, data, contentType); err != nil {
		return "", err
	}
	return key, nil
}

// UploadMetadata serializes value to JSON and puts it under
// "<prefix>/<uuid>-<filename>.json".
func (s *Store) UploadMetadata(ctx context.Context, value interface{}, filename, prefix string) (string, error) {
	if !s.Configured() {
		return "", nil
	}
	key := fmt.Sprintf("%s/%s-%s.json", prefix, uuid.New().String(), filename)
	if err := s.PutJSON(ctx, key, value); err != nil {
		return "", err
	}
	return key, nil
}

// IssueUploadTicket returns a presigned POST ticket constrained to content
// types starting with contentType, valid for expiresS seconds.
func (s *Store) IssueUploadTicket(ctx context.Context, key, contentType string, expiresS int) (UploadTicket, error) {
	if !s.Configured() {
		return UploadTicket{}, errs.ErrNotConfigured
	}

	presigned, err := s.presignClient.PresignPostObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, func(opts *s3.PresignPostOptions) {
		opts.Expires = time.Duration(expiresS) * time.Second
		opts.Conditions = []interface{}{
			[]interface{}{"starts-with", "$Content-Type", contentType},
		}
	})
	if err != nil {
		return UploadTicket{}, errs.Wrap(errs.KindTransport, "objectstore.IssueUploadTicket", "presign failed", err)
	}

	fields := make(map[string]string, len(presigned.Values))
	for k, v := range presigned.Values {
		fields[k] = v
	}
	return UploadTicket{URL: presigned.URL, FormFields: fields}, nil
}

// Health checks bucket existence, cached for 60 seconds.
func (s *Store) Health(ctx context.Context) bool {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()

	if time.Since(s.healthCachedAt) < 60*time.Second {
		return s.healthCached
	}

	healthy := false
	if s.Configured() && s.client != nil {
		_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.cfg.Bucket)})
		healthy = err == nil
	}
	s.healthCached = healthy
	s.healthCachedAt = time.Now()
	return healthy
}

// isTransient is a conservative heuristic: anything other than context
// cancellation or deadline expiry is retried. AWS SDK v2 wraps
// throttling/5xx responses in *smithy.OperationError/awsHTTP errors that
// don't have a single common type safe to switch on here without pulling
// in the smithy-go API surface beyond what's already used, so retry stays
// the default and non-retryable outcomes are limited to context
// cancellation.
func isTransient(err error) bool {
	return err != context.Canceled && err != context.DeadlineExceeded
}
