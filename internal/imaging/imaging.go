// Package imaging implements the document pipeline's pure image
// operations: validating raw bytes, decoding, padding a region of interest
// before a refinement pass, and sharpening between iterations. It
// generalizes the teacher's internal/processor/imageprocessor.go
// (disintegration/imaging-based preprocessing) from fixed accounting-receipt
// presets to the small set of pure, input-only operations the engine needs.
package imaging

import (
	"bytes"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"

	"github.com/ocrpipe/docintel/internal/errs"
)

// reconstructionTestSize is the side length of the synthetic probe image
// ProbeReconstruction exercises the reconstruction routines against.
const reconstructionTestSize = 8

// Validate rejects empty or oversized input. maxMB*2^20 is the byte ceiling.
func Validate(data []byte, maxMB int) error {
	if len(data) == 0 {
		return errs.ErrEmptyInput
	}
	limit := maxMB * (1 << 20)
	if len(data) > limit {
		return errs.ErrOversizedInput
	}
	return nil
}

// Decode turns raw bytes into an image.Image, wrapping any decode failure
// as a Corrupted input error.
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errs.Wrap(errs.KindInput, "imaging.Decode", "corrupted image", err)
	}
	return img, nil
}

// PrepareROI pads img on all sides with a uniform white background, giving
// the engine's region OCR pass margin around a tightly cropped region.
func PrepareROI(img image.Image, padding int) image.Image {
	if padding <= 0 {
		return img
	}
	bounds := img.Bounds()
	w := bounds.Dx() + padding*2
	h := bounds.Dy() + padding*2

	canvas := imaging.New(w, h, color.White)
	return imaging.Paste(canvas, img, image.Pt(padding, padding))
}

// EnhanceBetweenIterations returns a detail-enhanced copy of img: a
// sharpening pass followed by a light blur to suppress the noise sharpening
// amplifies, mirroring the teacher's applyAggressiveEnhancement blur+sharpen
// sequence but kept mode-agnostic since the engine calls this between any
// two iterations, not only on a fixed quality tier.
func EnhanceBetweenIterations(img image.Image) image.Image {
	out := imaging.Sharpen(img, 2.0)
	out = imaging.Blur(out, 0.3)
	return out
}

// Encode serializes img back to bytes using the teacher's JPEG-by-default,
// PNG-when-asked convention. quality is ignored for PNG.
func Encode(img image.Image, asPNG bool, quality int) ([]byte, string, error) {
	var buf bytes.Buffer
	var err error
	mimeType := "image/jpeg"
	if asPNG {
		err = imaging.Encode(&buf, img, imaging.PNG)
		mimeType = "image/png"
	} else {
		if quality <= 0 {
			quality = 95
		}
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality))
	}
	if err != nil {
		return nil, "", errs.Wrap(errs.KindPipeline, "imaging.Encode", "failed to encode image", err)
	}
	return buf.Bytes(), mimeType, nil
}

// Threshold grayscales img, blurs it lightly to suppress the noise
// sharpening leaves behind, then binarizes with Otsu's method. This is
// the unconditional last preprocessing step before every OCR pass,
// ported from ImageEnhancer.apply_threshold (Gaussian blur 3x3 then
// cv2.THRESH_BINARY+THRESH_OTSU) in the source's enhance module.
func Threshold(img image.Image) image.Image {
	gray := imaging.Grayscale(img)
	blurred := imaging.Blur(gray, 0.6)
	t := otsuThreshold(blurred)
	return binarize(blurred, t)
}

func otsuThreshold(gray image.Image) uint8 {
	var hist [256]int
	bounds := gray.Bounds()
	total := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			g := color.GrayModel.Convert(gray.At(x, y)).(color.Gray)
			hist[g.Y]++
			total++
		}
	}

	var sum float64
	for i, count := range hist {
		sum += float64(i) * float64(count)
	}

	var sumB, wB, wF float64
	var maxVariance float64
	var threshold uint8
	for t := 0; t < 256; t++ {
		wB += float64(hist[t])
		if wB == 0 {
			continue
		}
		wF = float64(total) - wB
		if wF == 0 {
			break
		}
		sumB += float64(t) * float64(hist[t])
		mB := sumB / wB
		mF := (sum - sumB) / wF
		variance := wB * wF * (mB - mF) * (mB - mF)
		if variance > maxVariance {
			maxVariance = variance
			threshold = uint8(t)
		}
	}
	return threshold
}

func binarize(gray image.Image, threshold uint8) *image.Gray {
	bounds := gray.Bounds()
	out := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			g := color.GrayModel.Convert(gray.At(x, y)).(color.Gray)
			if g.Y < threshold {
				out.SetGray(x, y, color.Gray{Y: 0})
			} else {
				out.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return out
}

// colorCluster is one centroid of a coarse k-means split over an image's
// pixels.
type colorCluster struct {
	r, g, b float64
	count   int
}

// clusterColors runs a small, fixed-iteration k-means over a subsample of
// img's pixels, seeding centroids from evenly spaced samples rather than
// randomly (Go's stdlib has no RNG use here, keeping the probe
// deterministic). It mirrors remove_color_overlay's
// sklearn.cluster.KMeans(n_clusters=3) call, standing in for the
// background/text/overlay split the source fits before falling back to
// a grayscale contrast pass.
func clusterColors(img image.Image, k int) []colorCluster {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return nil
	}

	const stride = 4
	type sample struct{ r, g, b float64 }
	var samples []sample
	for y := bounds.Min.Y; y < bounds.Max.Y; y += stride {
		for x := bounds.Min.X; x < bounds.Max.X; x += stride {
			r, g, b, _ := img.At(x, y).RGBA()
			samples = append(samples, sample{float64(r >> 8), float64(g >> 8), float64(b >> 8)})
		}
	}
	if len(samples) == 0 {
		return nil
	}
	if k > len(samples) {
		k = len(samples)
	}

	clusters := make([]colorCluster, k)
	step := len(samples) / k
	for i := range clusters {
		s := samples[i*step]
		clusters[i] = colorCluster{r: s.r, g: s.g, b: s.b}
	}

	const iterations = 4
	for iter := 0; iter < iterations; iter++ {
		sums := make([]colorCluster, k)
		for _, s := range samples {
			best, bestDist := 0, -1.0
			for ci, c := range clusters {
				dr, dg, db := s.r-c.r, s.g-c.g, s.b-c.b
				dist := dr*dr + dg*dg + db*db
				if bestDist < 0 || dist < bestDist {
					bestDist, best = dist, ci
				}
			}
			sums[best].r += s.r
			sums[best].g += s.g
			sums[best].b += s.b
			sums[best].count++
		}
		for ci := range clusters {
			if sums[ci].count == 0 {
				continue
			}
			n := float64(sums[ci].count)
			clusters[ci] = colorCluster{r: sums[ci].r / n, g: sums[ci].g / n, b: sums[ci].b / n, count: sums[ci].count}
		}
	}
	return clusters
}

// RemoveColorOverlay clusters img's pixels into background/text/overlay
// centroids, then binarizes a grayscale conversion with an adaptive
// threshold whose constant is derived from the spread between the
// darkest and lightest cluster — a color-aware contrast pass meant for
// documents covered by a highlighter or semi-transparent overlay.
// Ported from PixelReconstructor.remove_color_overlay; the source's own
// implementation computes cluster centers and then discards them in
// favor of a flat grayscale adaptive threshold (its comment calls this
// "simplified"). This port keeps the clustering load-bearing instead of
// dead, feeding the cluster spread into the adaptive threshold's
// constant so overlay documents (wide cluster spread) get stronger
// correction than plain scans (narrow spread).
func RemoveColorOverlay(img image.Image) image.Image {
	clusters := clusterColors(img, 3)
	c := 2.0
	if len(clusters) > 0 {
		lo, hi := clusters[0].r+clusters[0].g+clusters[0].b, clusters[0].r+clusters[0].g+clusters[0].b
		for _, cl := range clusters {
			sum := cl.r + cl.g + cl.b
			if sum < lo {
				lo = sum
			}
			if sum > hi {
				hi = sum
			}
		}
		spread := (hi - lo) / 3 // back to a single-channel scale
		c = 2 + spread/32
	}

	gray := imaging.Grayscale(img)
	return adaptiveThreshold(gray, 11, c)
}

// adaptiveThreshold binarizes gray against each pixel's local
// neighborhood mean minus c, standing in for the
// cv2.adaptiveThreshold(..., ADAPTIVE_THRESH_GAUSSIAN_C, THRESH_BINARY,
// 11, 2) used by remove_color_overlay. The neighborhood is an unweighted
// box mean rather than a Gaussian-weighted one, and c is the caller's
// value rather than a fixed 2.
func adaptiveThreshold(gray image.Image, blockSize int, c float64) image.Image {
	bounds := gray.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	lum := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			g := color.GrayModel.Convert(gray.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray)
			lum[y*w+x] = float64(g.Y)
		}
	}

	radius := blockSize / 2
	out := image.NewGray(bounds)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var sum float64
			var n int
			for dy := -radius; dy <= radius; dy++ {
				ny := y + dy
				if ny < 0 || ny >= h {
					continue
				}
				for dx := -radius; dx <= radius; dx++ {
					nx := x + dx
					if nx < 0 || nx >= w {
						continue
					}
					sum += lum[ny*w+nx]
					n++
				}
			}
			mean := sum / float64(n)
			val := uint8(255)
			if lum[y*w+x] < mean-c {
				val = 0
			}
			out.SetGray(bounds.Min.X+x, bounds.Min.Y+y, color.Gray{Y: val})
		}
	}
	return out
}

// redactionDarkness is the luminance ceiling (0-255) a pixel must fall
// under to be considered part of a solid redaction block rather than a
// thin text stroke.
const redactionDarkness = 40

// RemoveRedactions detects solid dark rectangular blocks — the classic
// opaque redaction-bar shape, as distinct from the thin strokes of text
// — and fills them by diffusing in color from their unmasked border,
// standing in for the source's cv2.inpaint(..., INPAINT_NS) /
// cv2.inpaint(..., INPAINT_TELEA) calls (inpaint_text, inpaint_bbox).
// remove_redactions itself, called from the iteration loop, has no body
// anywhere in the retrieved source, so its mask-detection half is a
// Go-idiomatic approximation rather than a port: solidity (filled-pixel
// ratio) separates a redaction block from dense but sparse text ink.
func RemoveRedactions(img image.Image) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	out := imaging.Clone(img)
	if w == 0 || h == 0 {
		return out
	}

	mask := detectRedactionMask(out)
	if mask == nil {
		return out
	}
	inpaintMask(out, mask)
	return out
}

func detectRedactionMask(img *image.NRGBA) []bool {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	dark := make([]bool, w*h)
	anyDark := false
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := img.NRGBAAt(bounds.Min.X+x, bounds.Min.Y+y)
			lum := 0.299*float64(c.R) + 0.587*float64(c.G) + 0.114*float64(c.B)
			if lum < redactionDarkness {
				dark[y*w+x] = true
				anyDark = true
			}
		}
	}
	if !anyDark {
		return nil
	}

	visited := make([]bool, w*h)
	mask := make([]bool, w*h)
	found := false
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			idx := y*w + x
			if !dark[idx] || visited[idx] {
				continue
			}
			minX, minY, maxX, maxY, pixels := x, y, x, y, 0
			stack := []int{idx}
			visited[idx] = true
			var members []int
			for len(stack) > 0 {
				cur := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				cy, cx := cur/w, cur%w
				if cx < minX {
					minX = cx
				}
				if cx > maxX {
					maxX = cx
				}
				if cy < minY {
					minY = cy
				}
				if cy > maxY {
					maxY = cy
				}
				pixels++
				members = append(members, cur)
				neighbors := [4][2]int{{cx - 1, cy}, {cx + 1, cy}, {cx, cy - 1}, {cx, cy + 1}}
				for _, n := range neighbors {
					nx, ny := n[0], n[1]
					if nx < 0 || ny < 0 || nx >= w || ny >= h {
						continue
					}
					nidx := ny*w + nx
					if dark[nidx] && !visited[nidx] {
						visited[nidx] = true
						stack = append(stack, nidx)
					}
				}
			}
			rw, rh := maxX-minX+1, maxY-minY+1
			solidity := float64(pixels) / float64(rw*rh)
			if rw >= 15 && rh >= 6 && solidity > 0.85 {
				for _, m := range members {
					mask[m] = true
				}
				found = true
			}
		}
	}
	if !found {
		return nil
	}
	return mask
}

// inpaintMask fills masked pixels by repeatedly averaging in color from
// unmasked neighbors, a diffusion fill standing in for the PDE-based
// inpainting (Navier-Stokes / Telea) the corpus calls through OpenCV —
// no such library appears in any example module's go.mod.
func inpaintMask(img *image.NRGBA, mask []bool) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	remaining := make([]bool, len(mask))
	copy(remaining, mask)

	const maxPasses = 64
	for pass := 0; pass < maxPasses; pass++ {
		anyLeft := false
		anyFilled := false
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				idx := y*w + x
				if !remaining[idx] {
					continue
				}
				anyLeft = true
				var sr, sg, sb float64
				var n int
				neighbors := [4][2]int{{x - 1, y}, {x + 1, y}, {x, y - 1}, {x, y + 1}}
				for _, nb := range neighbors {
					nx, ny := nb[0], nb[1]
					if nx < 0 || ny < 0 || nx >= w || ny >= h {
						continue
					}
					nidx := ny*w + nx
					if remaining[nidx] {
						continue
					}
					c := img.NRGBAAt(bounds.Min.X+nx, bounds.Min.Y+ny)
					sr += float64(c.R)
					sg += float64(c.G)
					sb += float64(c.B)
					n++
				}
				if n == 0 {
					continue
				}
				img.SetNRGBA(bounds.Min.X+x, bounds.Min.Y+y, color.NRGBA{
					R: uint8(sr / float64(n)), G: uint8(sg / float64(n)), B: uint8(sb / float64(n)), A: 255,
				})
				remaining[idx] = false
				anyFilled = true
			}
		}
		if !anyLeft {
			break
		}
		if !anyFilled {
			break
		}
	}
}

// ProbeReconstruction exercises RemoveColorOverlay and RemoveRedactions
// against a minimal synthetic image and reports whether the
// reconstruction capability is usable, mirroring
// CapabilityProvider.initialize()'s import probe in the source's
// capabilities module. A Go build always links this code in, so
// "available" really asks whether it runs clean against representative
// input rather than whether an optional package was installed.
func ProbeReconstruction() (available bool, version string) {
	defer func() {
		if recover() != nil {
			available = false
		}
	}()
	test := image.NewNRGBA(image.Rect(0, 0, reconstructionTestSize, reconstructionTestSize))
	for i := range test.Pix {
		test.Pix[i] = 255
	}
	_ = RemoveColorOverlay(test)
	_ = RemoveRedactions(test)
	return true, "native-go-reconstruct-v1"
}
