package objectstore

import (
	"context"
	"errors"
	"testing"

	"github.com/ocrpipe/docintel/internal/errs"
)

func TestPutNotConfigured(t *testing.T) {
	s := New(nil, Config{}, nil)
	err := s.Put(context.Background(), "k", []byte("x"), "text/plain")
	if !errors.Is(err, errs.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestUploadBlobNotConfiguredReturnsEmptyKey(t *testing.T) {
	s := New(nil, Config{}, nil)
	key, err := s.UploadBlob(context.Background(), []byte("data"), "file.jpg", "image/jpeg", "processed")
	if err != nil {
		t.Fatalf("expected no error in degraded mode, got %v", err)
	}
	if key != "" {
		t.Fatalf("expected empty key in degraded mode, got %q", key)
	}
}

func TestUploadMetadataNotConfiguredReturnsEmptyKey(t *testing.T) {
	s := New(nil, Config{}, nil)
	key, err := s.UploadMetadata(context.Background(), map[string]string{"a": "b"}, "file", "recon_meta")
	if err != nil {
		t.Fatalf("expected no error in degraded mode, got %v", err)
	}
	if key != "" {
		t.Fatalf("expected empty key in degraded mode, got %q", key)
	}
}

func TestIssueUploadTicketNotConfigured(t *testing.T) {
	s := New(nil, Config{}, nil)
	_, err := s.IssueUploadTicket(context.Background(), "k", "image/jpeg", 60)
	if !errors.Is(err, errs.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestHealthNotConfigured(t *testing.T) {
	s := New(nil, Config{}, nil)
	if s.Health(context.Background()) {
		t.Fatal("expected unhealthy when not configured")
	}
}

func TestConfiguredFlag(t *testing.T) {
	s := New(nil, Config{Bucket: "my-bucket"}, nil)
	if !s.Configured() {
		t.Fatal("expected Configured() true with a bucket set")
	}
}
