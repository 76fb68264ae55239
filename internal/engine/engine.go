// Package engine drives the per-document OCR state machine: decode,
// optional reconstruction, layout analysis, an iterative
// preprocess/OCR/score loop with a region-based fallback pass, and the
// advanced AI-reconstruction shortcut. It is the pipeline's new center of
// gravity, but its step-by-step shape — named sub-steps, best-effort
// recovery per step, a running best-result tracker — follows the
// teacher's internal/common/request_context.go StartStep/EndStep
// discipline and internal/processor/confidence_calculator.go's pattern of
// keeping a structured breakdown alongside the final score.
package engine

import (
	"context"
	"image"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ocrpipe/docintel/internal/capability"
	"github.com/ocrpipe/docintel/internal/common"
	"github.com/ocrpipe/docintel/internal/confidence"
	imagingpkg "github.com/ocrpipe/docintel/internal/imaging"
	"github.com/ocrpipe/docintel/internal/layout"
	"github.com/ocrpipe/docintel/internal/patternstore"
	"github.com/ocrpipe/docintel/internal/vision"
)

// OCRFunc runs the binary OCR step against a prepared, thresholded image
// and returns raw extracted text. It is injected so the engine itself
// never depends on a specific local OCR binary.
type OCRFunc func(ctx context.Context, img image.Image) (string, error)

// IterationRecord is one entry in the response's iteration history.
type IterationRecord struct {
	Index      int     `json:"index"`
	Text       string  `json:"text,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Method     string  `json:"method,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// Response is the Engine's standard-path result shape.
type Response struct {
	Text           string            `json:"text"`
	Confidence     float64           `json:"confidence"`
	Iterations     []IterationRecord `json:"iterations"`
	Success        bool              `json:"success"`
	Reconstruction string            `json:"reconstruction,omitempty"`
}

// AdvancedResponse is the Engine's advanced-path result shape.
type AdvancedResponse struct {
	Text           string           `json:"text"`
	Method         string           `json:"method"`
	Confidence     float64          `json:"confidence"`
	LayoutAnalysis LayoutAnalysis   `json:"layout_analysis"`
	Success        bool             `json:"success"`
}

// LayoutAnalysis is the subset of layout detection surfaced on responses.
type LayoutAnalysis struct {
	Type        string `json:"type"`
	RegionCount int    `json:"region_count"`
}

// Config are the tunables driving the iterative loop.
type Config struct {
	MaxIterations       int
	ConfidenceThreshold float64
	ROIPadding          int
}

// DefaultConfig matches spec.md §6 defaults.
var DefaultConfig = Config{MaxIterations: 3, ConfidenceThreshold: 0.5, ROIPadding: 10}

// Engine wires together the per-document collaborators. Every field is a
// non-owning reference: the Engine never closes or mutates shared state
// belonging to another component.
type Engine struct {
	cfg          Config
	scorer       *confidence.Scorer
	capabilities *capability.Registry
	visionSet    *vision.Set
	patterns     *patternstore.Store
	ocr          OCRFunc
	logger       *zap.Logger
}

// New builds an Engine.
func New(cfg Config, scorer *confidence.Scorer, capabilities *capability.Registry, visionSet *vision.Set, patterns *patternstore.Store, ocr OCRFunc, logger *zap.Logger) *Engine {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultConfig.MaxIterations
	}
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = DefaultConfig.ConfidenceThreshold
	}
	if cfg.ROIPadding <= 0 {
		cfg.ROIPadding = DefaultConfig.ROIPadding
	}
	return &Engine{cfg: cfg, scorer: scorer, capabilities: capabilities, visionSet: visionSet, patterns: patterns, ocr: ocr, logger: logger}
}

// Process runs the standard state machine: validate, decode, analyze
// layout, then iterate preprocess/OCR/score up to MaxIterations times,
// returning the highest-confidence iteration's text. Reconstruction, when
// requested and available, runs inside iteration 0's preprocess step.
func (e *Engine) Process(ctx context.Context, data []byte, maxMB int, useReconstruction bool) (Response, error) {
	rc := common.NewRequestContext(common.RequestIDFromContext(ctx))

	rc.StartStep("validate_input")
	if err := imagingpkg.Validate(data, maxMB); err != nil {
		rc.EndStep(err)
		return Response{}, err
	}
	rc.EndStep(nil)

	rc.StartStep("decode_image")
	img, err := imagingpkg.Decode(data)
	if err != nil {
		rc.EndStep(err)
		return Response{}, err
	}
	rc.EndStep(nil)

	rc.StartStep("analyze_layout")
	regions := layout.DetectRegions(img)
	bounds := img.Bounds()
	layoutType := layout.ClassifyLayout(regions, bounds.Dx(), bounds.Dy())
	rc.EndStep(nil)
	if e.logger != nil {
		e.logger.Debug("layout analyzed", zap.String("type", string(layoutType)), zap.Int("regions", len(regions)))
	}

	iterations := make([]IterationRecord, e.cfg.MaxIterations)
	bestConfidence := 0.0
	bestText := ""
	bestSet := false
	reconstructionApplied := false

	for i := 0; i < e.cfg.MaxIterations; i++ {
		record, applied := e.runIteration(ctx, rc, img, i, useReconstruction, bestConfidence, regions)
		iterations[i] = record
		reconstructionApplied = reconstructionApplied || applied

		if record.Error != "" {
			continue
		}
		if !bestSet || record.Confidence > bestConfidence {
			bestConfidence = record.Confidence
			bestText = record.Text
			bestSet = true
		}

		if i < e.cfg.MaxIterations-1 {
			img = imagingpkg.EnhanceBetweenIterations(img)
		}
	}

	var reconstructionSummary string
	if reconstructionApplied {
		reconstructionSummary = "reconstruction_applied"
	}

	return Response{
		Text:           bestText,
		Confidence:     bestConfidence,
		Iterations:     iterations,
		Success:        len(bestText) > 0,
		Reconstruction: reconstructionSummary,
	}, nil
}

// runIteration returns the iteration's record and whether this call
// actually ran redaction/color-overlay removal (only true for iteration
// 0 of a reconstruction-requested, capability-available run through the
// non-region preprocess path).
func (e *Engine) runIteration(ctx context.Context, rc *common.RequestContext, img image.Image, index int, useRecon bool, bestConfidenceSoFar float64, regions []layout.Region) (IterationRecord, bool) {
	rc.StartStep("iteration")
	defer rc.EndStep(nil)

	if index == 1 && bestConfidenceSoFar < e.cfg.ConfidenceThreshold && len(regions) > 1 {
		text, err := e.regionOCR(ctx, img, regions)
		if err != nil {
			return IterationRecord{Index: index, Error: "failed"}, false
		}
		return IterationRecord{
			Index:      index,
			Text:       text,
			Confidence: e.scorer.Score(text),
			Method:     "region-based",
		}, false
	}

	prepared, applied := e.preprocess(img, index, useRecon)
	text, err := e.ocr(ctx, prepared)
	if err != nil {
		return IterationRecord{Index: index, Error: "failed"}, applied
	}
	return IterationRecord{
		Index:      index,
		Text:       text,
		Confidence: e.scorer.Score(text),
	}, applied
}

// preprocess sharpens img, then on the first iteration of a
// reconstruction-requested run with the capability available strips
// redactions and color overlays before grayscaling and Otsu-thresholding
// the result — the threshold step runs unconditionally on every
// iteration, matching DocumentProcessor.preprocess_frame's sharpen →
// (redaction/overlay removal only at iteration 0) → grayscale →
// threshold sequence.
func (e *Engine) preprocess(img image.Image, index int, useRecon bool) (image.Image, bool) {
	out := imagingpkg.EnhanceBetweenIterations(img)

	applied := false
	if index == 0 && useRecon && e.capabilities != nil && e.capabilities.ReconstructionAvailable() {
		out = imagingpkg.RemoveRedactions(out)
		out = imagingpkg.RemoveColorOverlay(out)
		applied = true
	}

	return imagingpkg.Threshold(out), applied
}

// regionOCR replaces an iteration's text with the concatenation of
// per-region OCR outputs, in top-to-bottom order, joined by "\n\n",
// operating on padded ROIs only.
func (e *Engine) regionOCR(ctx context.Context, img image.Image, regions []layout.Region) (string, error) {
	sorted := make([]layout.Region, len(regions))
	copy(sorted, regions)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Y != sorted[j].Y {
			return sorted[i].Y < sorted[j].Y
		}
		return sorted[i].X < sorted[j].X
	})

	var parts []string
	for _, r := range sorted {
		roi := cropRegion(img, r)
		padded := imagingpkg.PrepareROI(roi, e.cfg.ROIPadding)
		text, err := e.ocr(ctx, padded)
		if err != nil {
			return "", err
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, "\n\n"), nil
}

func cropRegion(img image.Image, r layout.Region) image.Image {
	type subImager interface {
		SubImage(r image.Rectangle) image.Image
	}
	rect := image.Rect(r.X, r.Y, r.X+r.W, r.Y+r.H)
	if si, ok := img.(subImager); ok {
		return si.SubImage(rect)
	}
	return img
}

// AdvancedContext is the doc-type-scoped context the advanced path gathers
// before calling the vision provider set.
type AdvancedContext struct {
	DocType string
}

// ProcessAdvanced runs the AI-reconstruction shortcut: analyze layout and
// fetch the best learned pattern concurrently, call the vision provider
// set with that context, score the result, and schedule (without
// awaiting) a fire-and-forget learning write. On provider-set failure it
// falls back to the standard path with useReconstruction=true.
func (e *Engine) ProcessAdvanced(ctx context.Context, data []byte, maxMB int, docType, preferredProvider string) (AdvancedResponse, error) {
	if err := imagingpkg.Validate(data, maxMB); err != nil {
		return AdvancedResponse{}, err
	}
	img, err := imagingpkg.Decode(data)
	if err != nil {
		return AdvancedResponse{}, err
	}

	type layoutResult struct {
		typ   layout.LayoutType
		count int
	}
	layoutCh := make(chan layoutResult, 1)
	type patternResult struct {
		entry patternstore.Entry
		found bool
	}
	patternCh := make(chan patternResult, 1)

	go func() {
		regions := layout.DetectRegions(img)
		bounds := img.Bounds()
		layoutCh <- layoutResult{typ: layout.ClassifyLayout(regions, bounds.Dx(), bounds.Dy()), count: len(regions)}
	}()
	go func() {
		if e.patterns == nil {
			patternCh <- patternResult{}
			return
		}
		entry, ok := e.patterns.GetBest(ctx, docType)
		patternCh <- patternResult{entry: entry, found: ok}
	}()

	lr := <-layoutCh
	pr := <-patternCh

	reconCtx := &vision.ReconstructContext{
		LayoutType:  string(lr.typ),
		RegionCount: lr.count,
	}
	if pr.found {
		reconCtx.FontMetadata = pr.entry.FontMetadata
		reconCtx.AccuracyScore = formatAccuracy(pr.entry.AccuracyScore)
	}

	result, perr := e.visionSet.ReconstructWithAI(ctx, data, preferredProvider, reconCtx, true)
	if perr != nil {
		fallback, ferr := e.Process(ctx, data, maxMB, true)
		if ferr != nil {
			return AdvancedResponse{}, ferr
		}
		return AdvancedResponse{
			Text:       fallback.Text,
			Method:     "standard_fallback",
			Confidence: fallback.Confidence,
			LayoutAnalysis: LayoutAnalysis{Type: string(lr.typ), RegionCount: lr.count},
			Success:    fallback.Success,
		}, nil
	}

	score := e.scorer.Score(result.Text)
	if e.patterns != nil {
		go e.patterns.Record(context.Background(), docType, result.Model, score)
	}

	return AdvancedResponse{
		Text:           result.Text,
		Method:         "advanced_ai_reconstruction",
		Confidence:     score,
		LayoutAnalysis: LayoutAnalysis{Type: string(lr.typ), RegionCount: lr.count},
		Success:        true,
	}, nil
}

func formatAccuracy(score float64) string {
	return strconv.FormatFloat(score, 'f', 2, 64)
}
