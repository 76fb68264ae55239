package layout

import (
	"image"
	"image/color"
	"testing"
)

func solidWhite(w, h int) image.Image {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	return img
}

func withBlackBlock(w, h, bx, by, bw, bh int) image.Image {
	img := solidWhite(w, h).(*image.Gray)
	for y := by; y < by+bh; y++ {
		for x := bx; x < bx+bw; x++ {
			img.SetGray(x, y, color.Gray{Y: 0})
		}
	}
	return img
}

func TestDetectRegionsNilImage(t *testing.T) {
	if got := DetectRegions(nil); got != nil {
		t.Fatalf("expected nil regions for nil image, got %v", got)
	}
}

func TestDetectRegionsBlankPage(t *testing.T) {
	img := solidWhite(200, 200)
	regions := DetectRegions(img)
	if len(regions) != 0 {
		t.Fatalf("expected no regions on a blank page, got %d", len(regions))
	}
}

func TestDetectRegionsFindsBlock(t *testing.T) {
	img := withBlackBlock(300, 300, 50, 50, 100, 60)
	regions := DetectRegions(img)
	if len(regions) == 0 {
		t.Fatal("expected at least one region for a large ink block")
	}
}

func TestDetectRegionsOrderedTopToBottom(t *testing.T) {
	img := solidWhite(300, 300).(*image.Gray)
	for y := 200; y < 230; y++ {
		for x := 20; x < 60; x++ {
			img.SetGray(x, y, color.Gray{Y: 0})
		}
	}
	for y := 20; y < 50; y++ {
		for x := 20; x < 60; x++ {
			img.SetGray(x, y, color.Gray{Y: 0})
		}
	}
	regions := DetectRegions(img)
	for i := 1; i < len(regions); i++ {
		if regions[i].Y < regions[i-1].Y {
			t.Fatalf("regions not ordered top-to-bottom: %v", regions)
		}
	}
}

func TestClassifyLayoutEmpty(t *testing.T) {
	if got := ClassifyLayout(nil, 100, 100); got != LayoutEmpty {
		t.Fatalf("expected empty, got %s", got)
	}
}

func TestClassifyLayoutLargeBlocks(t *testing.T) {
	regions := []Region{{ID: 0, X: 0, Y: 0, W: 90, H: 90}}
	got := ClassifyLayout(regions, 100, 100)
	if got != LayoutLargeBlocks {
		t.Fatalf("expected large_blocks, got %s", got)
	}
}

func TestClassifyLayoutDenseText(t *testing.T) {
	regions := make([]Region, 25)
	for i := range regions {
		regions[i] = Region{ID: i, X: i, Y: i, W: 2, H: 2}
	}
	got := ClassifyLayout(regions, 1000, 1000)
	if got != LayoutDenseText {
		t.Fatalf("expected dense_text, got %s", got)
	}
}

func TestClassifyLayoutStandardForm(t *testing.T) {
	regions := []Region{
		{ID: 0, X: 0, Y: 0, W: 100, H: 30},
		{ID: 1, X: 0, Y: 40, W: 100, H: 30},
	}
	got := ClassifyLayout(regions, 1000, 1000)
	if got != LayoutStandardForm {
		t.Fatalf("expected standard_form, got %s", got)
	}
}
