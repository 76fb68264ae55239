// Package ocrbackend provides the engine.OCRFunc implementation the
// standard (non-AI) pipeline runs on each iteration: a gosseract-backed
// Tesseract client, one fresh client per call the way wudi-pdfkit's
// ocr/tesseract package builds one per TesseractEngine.Recognize call.
package ocrbackend

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// Tesseract wraps a gosseract client factory that builds one
// *gosseract.Client per Recognize call.
type Tesseract struct {
	languages     []string
	clientFactory func() *gosseract.Client
}

// New builds a Tesseract OCR backend for the given language codes (e.g.
// "eng", "eng+spa"). An empty slice uses gosseract's own default.
func New(languages []string) *Tesseract {
	return &Tesseract{languages: languages, clientFactory: gosseract.NewClient}
}

// Recognize implements engine.OCRFunc.
func (t *Tesseract) Recognize(ctx context.Context, img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode image for ocr: %w", err)
	}

	client := t.clientFactory()
	defer client.Close()

	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	if len(t.languages) > 0 {
		if err := client.SetLanguage(t.languages...); err != nil {
			return "", fmt.Errorf("set language: %w", err)
		}
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("recognize text: %w", err)
	}
	return strings.TrimSpace(text), nil
}
