package processor

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/ocrpipe/docintel/internal/capability"
	"github.com/ocrpipe/docintel/internal/confidence"
	"github.com/ocrpipe/docintel/internal/engine"
	"github.com/ocrpipe/docintel/internal/objectstore"
)

func newTestDispatcher(t *testing.T, ocr engine.OCRFunc) *Dispatcher {
	t.Helper()
	eng := engine.New(engine.Config{MaxIterations: 2}, confidence.New(), capability.NewRegistry(func() (bool, string) { return false, "" }, nil), nil, nil, ocr, nil)
	store := objectstore.New(nil, objectstore.Config{}, nil) // not configured: degraded no-op mode
	return New(eng, store, 10, "textract_outputs/", nil)
}

func TestProcessFileRejectsNonImage(t *testing.T) {
	d := newTestDispatcher(t, func(ctx context.Context, img image.Image) (string, error) { return "x", nil })
	_, err := d.ProcessFile(context.Background(), []byte("data"), "f.txt", "text/plain", Flags{}, "req-1")
	if err == nil {
		t.Fatal("expected error for non-image content type")
	}
}

func TestProcessBytesDegradedStoreNullKey(t *testing.T) {
	data := testPNGBytes(t)
	d := newTestDispatcher(t, func(ctx context.Context, img image.Image) (string, error) {
		return "Invoice Total Date readable words padded to reach a sufficient length for scoring purposes nicely here", nil
	})
	result, err := d.ProcessBytes(context.Background(), data, "f.png", "image/png", Flags{}, "req-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.S3Key != "" {
		t.Fatalf("expected null s3 key in degraded store mode, got %q", result.S3Key)
	}
	if result.RequestID != "req-2" {
		t.Fatalf("expected request id to propagate, got %q", result.RequestID)
	}
}

func TestProcessBytesPropagatesEngineError(t *testing.T) {
	d := newTestDispatcher(t, func(ctx context.Context, img image.Image) (string, error) { return "", errors.New("boom") })
	_, err := d.ProcessBytes(context.Background(), nil, "f.png", "image/png", Flags{}, "req-3")
	if err == nil {
		t.Fatal("expected validation error to propagate for empty body")
	}
}

func testPNGBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8((x + y) * 4)})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode test png: %v", err)
	}
	return buf.Bytes()
}
