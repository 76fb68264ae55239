package engine

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
	imagingpkg "github.com/ocrpipe/docintel/internal/imaging"
)

func testImageBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8((x * y) % 255)})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

func newTestEngine(ocr OCRFunc) *Engine {
	return New(Config{MaxIterations: 3, ConfidenceThreshold: 0.5, ROIPadding: 5}, confidence.New(), nil, nil, nil, ocr, nil)
}

func newTestEngineWithCapability(ocr OCRFunc, available bool) *Engine {
	registry := capability.NewRegistry(func() (bool, string) {
		return available, "test"
	}, nil)
	return New(Config{MaxIterations: 3, ConfidenceThreshold: 0.5, ROIPadding: 5}, confidence.New(), registry, nil, nil, ocr, nil)
}

func TestProcessValidationFailureEmpty(t *testing.T) {
	e := newTestEngine(func(ctx context.Context, img image.Image) (string, error) {
		return "text", nil
	})
	_, err := e.Process(context.Background(), nil, 10, false)
	if err == nil {
		t.Fatal("expected validation error for empty input")
	}
}

func TestProcessDecodeFailure(t *testing.T) {
	e := newTestEngine(func(ctx context.Context, img image.Image) (string, error) {
		return "text", nil
	})
	_, err := e.Process(context.Background(), []byte("not an image"), 10, false)
	if err == nil {
		t.Fatal("expected decode error for garbage bytes")
	}
}

func TestProcessIterationHistoryLength(t *testing.T) {
	data := testImageBytes(t, 40, 40)
	e := newTestEngine(func(ctx context.Context, img image.Image) (string, error) {
		return "Invoice Total Date some readable words here for scoring purposes padded out nicely to reach length threshold okay", nil
	})
	resp, err := e.Process(context.Background(), data, 10, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Iterations) != 3 {
		t.Fatalf("expected 3 iterations, got %d", len(resp.Iterations))
	}
	if !resp.Success {
		t.Fatal("expected success with non-empty text")
	}
}

func TestProcessBestConfidenceWins(t *testing.T) {
	data := testImageBytes(t, 40, 40)
	call := 0
	texts := []string{
		"short",
		"Invoice Total Date Name a genuinely long passage of readable alphabetic words padded to reach the length factor threshold nicely here",
		"medium length text with some words",
	}
	e := newTestEngine(func(ctx context.Context, img image.Image) (string, error) {
		idx := call
		call++
		if idx >= len(texts) {
			idx = len(texts) - 1
		}
		return texts[idx], nil
	})
	resp, err := e.Process(context.Background(), data, 10, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Confidence <= 0 {
		t.Fatalf("expected a positive confidence, got %v", resp.Confidence)
	}
}

func TestProcessAllIterationsFail(t *testing.T) {
	data := testImageBytes(t, 40, 40)
	e := newTestEngine(func(ctx context.Context, img image.Image) (string, error) {
		return "", errors.New("ocr backend unavailable")
	})
	resp, err := e.Process(context.Background(), data, 10, false)
	if err != nil {
		t.Fatalf("unexpected top-level error: %v", err)
	}
	if resp.Success {
		t.Fatal("expected failure when every iteration errors")
	}
	if resp.Confidence != 0 {
		t.Fatalf("expected zero confidence when all iterations fail, got %v", resp.Confidence)
	}
	for _, it := range resp.Iterations {
		if it.Error != "failed" {
			t.Fatalf("expected every iteration to record failed, got %+v", it)
		}
	}
}

// TestPreprocessAlwaysThresholds checks that every iteration — not just
// one gated on reconstruction — grayscales and Otsu-thresholds its input,
// since that step runs unconditionally in the source's
// preprocess_frame/apply_threshold sequence.
func TestPreprocessAlwaysThresholds(t *testing.T) {
	e := newTestEngine(nil)
	img := image.NewRGBA(image.Rect(0, 0, 12, 12))
	for y := 0; y < 12; y++ {
		for x := 0; x < 12; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 20), G: uint8(y * 20), B: 128, A: 255})
		}
	}

	for _, index := range []int{0, 1, 2} {
		prepared, _ := e.preprocess(img, index, false)
		bounds := prepared.Bounds()
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				g := color.GrayModel.Convert(prepared.At(x, y)).(color.Gray)
				if g.Y != 0 && g.Y != 255 {
					t.Fatalf("iteration %d: expected a binarized pixel, got gray level %d at (%d,%d)", index, g.Y, x, y)
				}
			}
		}
	}
}

// TestPreprocessGatesReconstructionToFirstIteration checks that redaction
// and color-overlay removal only run when reconstruction is requested,
// the capability is available, and this is iteration 0 — never on later
// iterations, matching the source's `iteration == 0` gate.
func TestPreprocessGatesReconstructionToFirstIteration(t *testing.T) {
	e := newTestEngineWithCapability(nil, true)
	img := image.NewRGBA(image.Rect(0, 0, 12, 12))

	if _, applied := e.preprocess(img, 0, true); !applied {
		t.Fatal("expected reconstruction to apply on iteration 0 when requested and available")
	}
	if _, applied := e.preprocess(img, 1, true); applied {
		t.Fatal("expected reconstruction to not apply on iteration 1")
	}
	if _, applied := e.preprocess(img, 0, false); applied {
		t.Fatal("expected reconstruction to not apply when not requested")
	}

	unavailable := newTestEngineWithCapability(nil, false)
	if _, applied := unavailable.preprocess(img, 0, true); applied {
		t.Fatal("expected reconstruction to not apply when the capability is unavailable")
	}
}

// TestProcessReconstructionReflectsActualWork checks that
// Response.Reconstruction is only populated when redaction/overlay
// removal genuinely ran during an iteration, not merely when the
// capability registry reports available.
func TestProcessReconstructionReflectsActualWork(t *testing.T) {
	data := testImageBytes(t, 40, 40)
	ocr := func(ctx context.Context, img image.Image) (string, error) {
		return "Invoice Total Date some readable words here for scoring purposes padded out nicely okay", nil
	}

	available := newTestEngineWithCapability(ocr, true)
	resp, err := available.Process(context.Background(), data, 10, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Reconstruction != "reconstruction_applied" {
		t.Fatalf("expected reconstruction_applied when reconstruction ran, got %q", resp.Reconstruction)
	}

	notRequested, err := available.Process(context.Background(), data, 10, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if notRequested.Reconstruction != "" {
		t.Fatalf("expected no reconstruction summary when not requested, got %q", notRequested.Reconstruction)
	}

	unavailable := newTestEngineWithCapability(ocr, false)
	resp, err = unavailable.Process(context.Background(), data, 10, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Reconstruction != "" {
		t.Fatalf("expected no reconstruction summary when the capability is unavailable, got %q", resp.Reconstruction)
	}
}

// TestProbeReconstructionSmokeTest checks the capability probe wired in
// by bootstrap reports the native Go reconstruction routines as usable.
func TestProbeReconstructionSmokeTest(t *testing.T) {
	available, version := imagingpkg.ProbeReconstruction()
	if !available {
		t.Fatal("expected the native reconstruction probe to report available")
	}
	if version == "" {
		t.Fatal("expected a non-empty version string")
	}
}
