package imaging

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/ocrpipe/docintel/internal/errs"
)

func encodedTestPNG(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.Gray{Y: uint8((x + y) % 255)})
		}
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

func TestValidateEmpty(t *testing.T) {
	err := Validate(nil, 10)
	if !errors.Is(err, errs.ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}
}

func TestValidateOversized(t *testing.T) {
	data := make([]byte, 2*(1<<20)+1)
	err := Validate(data, 2)
	if !errors.Is(err, errs.ErrOversizedInput) {
		t.Fatalf("expected ErrOversizedInput, got %v", err)
	}
}

func TestValidateOK(t *testing.T) {
	if err := Validate([]byte{1, 2, 3}, 10); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestDecodeCorrupted(t *testing.T) {
	_, err := Decode([]byte("not an image"))
	if err == nil {
		t.Fatal("expected error decoding garbage bytes")
	}
	kind, ok := errs.KindOf(err)
	if !ok || kind != errs.KindInput {
		t.Fatalf("expected KindInput, got %v (ok=%v)", kind, ok)
	}
}

func TestDecodeValid(t *testing.T) {
	data := encodedTestPNG(20, 20)
	img, err := Decode(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if img.Bounds().Dx() != 20 || img.Bounds().Dy() != 20 {
		t.Fatalf("unexpected bounds: %v", img.Bounds())
	}
}

func TestPrepareROIPadding(t *testing.T) {
	data := encodedTestPNG(10, 10)
	img, err := Decode(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	padded := PrepareROI(img, 5)
	b := padded.Bounds()
	if b.Dx() != 20 || b.Dy() != 20 {
		t.Fatalf("expected 20x20 padded image, got %v", b)
	}
}

func TestPrepareROINoPadding(t *testing.T) {
	data := encodedTestPNG(10, 10)
	img, _ := Decode(data)
	same := PrepareROI(img, 0)
	if same.Bounds() != img.Bounds() {
		t.Fatalf("expected unchanged bounds with zero padding")
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	data := encodedTestPNG(12, 12)
	img, _ := Decode(data)
	out, mime, err := Encode(img, false, 90)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if mime != "image/jpeg" || len(out) == 0 {
		t.Fatalf("unexpected encode result: mime=%s len=%d", mime, len(out))
	}
}

func splitImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(40)
			if x > w/2 {
				v = 220
			}
			img.Set(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

func TestThresholdBinarizes(t *testing.T) {
	img := splitImage(20, 20)
	out := Threshold(img)
	bounds := out.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			g := color.GrayModel.Convert(out.At(x, y)).(color.Gray)
			if g.Y != 0 && g.Y != 255 {
				t.Fatalf("expected a binary pixel at (%d,%d), got %d", x, y, g.Y)
			}
		}
	}
}

func TestRemoveColorOverlayBinarizes(t *testing.T) {
	img := splitImage(24, 24)
	out := RemoveColorOverlay(img)
	bounds := out.Bounds()
	if bounds.Dx() != 24 || bounds.Dy() != 24 {
		t.Fatalf("unexpected bounds: %v", bounds)
	}
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			g := color.GrayModel.Convert(out.At(x, y)).(color.Gray)
			if g.Y != 0 && g.Y != 255 {
				t.Fatalf("expected a binary pixel at (%d,%d), got %d", x, y, g.Y)
			}
		}
	}
}

func TestRemoveRedactionsFillsSolidBlock(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 30, 30))
	for y := 0; y < 30; y++ {
		for x := 0; x < 30; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 230, G: 230, B: 230, A: 255})
		}
	}
	for y := 5; y < 15; y++ {
		for x := 5; x < 25; x++ {
			img.SetNRGBA(x, y, color.NRGBA{A: 255})
		}
	}

	out := RemoveRedactions(img)
	c := color.NRGBAModel.Convert(out.At(15, 10)).(color.NRGBA)
	if c.R < 150 {
		t.Fatalf("expected the redaction block to be filled in from its border, got %+v", c)
	}
}

func TestRemoveRedactionsIgnoresThinText(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 20, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 20; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 230, G: 230, B: 230, A: 255})
		}
	}
	for x := 2; x < 18; x++ {
		img.SetNRGBA(x, 10, color.NRGBA{A: 255})
	}

	out := RemoveRedactions(img)
	c := color.NRGBAModel.Convert(out.At(10, 10)).(color.NRGBA)
	if c.R != 0 {
		t.Fatalf("expected a thin stroke to be left untouched, got %+v", c)
	}
}

func TestProbeReconstruction(t *testing.T) {
	available, version := ProbeReconstruction()
	if !available {
		t.Fatal("expected probe to report available for the native routines")
	}
	if version == "" {
		t.Fatal("expected a non-empty version string")
	}
}
