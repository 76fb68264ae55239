package queue

import (
	"encoding/base64"
	"testing"

	"github.com/ocrpipe/docintel/internal/jobstore"
)

func TestResolveImageBytesPrefersInline(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte("hello"))
	job := jobstore.Job{ImageBytes: encoded, ImagePath: "/does/not/matter"}
	data, errStr := resolveImageBytes(job)
	if errStr != "" {
		t.Fatalf("unexpected error: %s", errStr)
	}
	if string(data) != "hello" {
		t.Fatalf("unexpected data: %s", data)
	}
}

func TestResolveImageBytesInvalidEncoding(t *testing.T) {
	job := jobstore.Job{ImageBytes: "not-valid-base64!!!"}
	_, errStr := resolveImageBytes(job)
	if errStr != "invalid_image_encoding" {
		t.Fatalf("expected invalid_image_encoding, got %q", errStr)
	}
}

func TestResolveImageBytesMissingInput(t *testing.T) {
	_, errStr := resolveImageBytes(jobstore.Job{})
	if errStr != "missing_input" {
		t.Fatalf("expected missing_input, got %q", errStr)
	}
}

func TestResolveImageBytesMissingFile(t *testing.T) {
	job := jobstore.Job{ImagePath: "/nonexistent/path/file.jpg"}
	_, errStr := resolveImageBytes(job)
	if errStr != "missing_input" {
		t.Fatalf("expected missing_input for unreadable path, got %q", errStr)
	}
}

func TestPanicToErrorWrapsNonError(t *testing.T) {
	err := panicToError("boom")
	if err == nil || err.Error() == "" {
		t.Fatal("expected a non-nil wrapped error")
	}
}
