// Package eventtrigger handles object-upload event batches: routing each
// record by content type to either an async Textract job (PDFs) or a
// synchronous analysis, and always persisting a result or error document
// beside the input. There is no direct teacher equivalent — the closest
// corpus shape is adverant's queue consumer turning one popped id into
// one terminal outcome — adapted here to per-record batch processing
// with a partial-failure counter instead of a single job's lifecycle.
package eventtrigger

import (
	"context"
	"net/url"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/ocrpipe/docintel/internal/asyncocr"
	"github.com/ocrpipe/docintel/internal/objectstore"
)

// Record is one object-upload event entry.
type Record struct {
	Bucket string
	Key    string
}

// BatchResult is returned after processing every record in a batch.
type BatchResult struct {
	Status string `json:"status"`
	Failed int    `json:"failed,omitempty"`
}

// Handler routes event-trigger batches to the async or sync OCR path.
type Handler struct {
	store        *objectstore.Store
	async        *asyncocr.Adapter
	outputPrefix string
	logger       *zap.Logger
}

// New builds a Handler.
func New(store *objectstore.Store, async *asyncocr.Adapter, outputPrefix string, logger *zap.Logger) *Handler {
	if outputPrefix == "" {
		outputPrefix = "textract_outputs/"
	}
	return &Handler{store: store, async: async, outputPrefix: outputPrefix, logger: logger}
}

// HandleBatch processes every record, writing a result or error document
// for each, and returns the aggregate batch outcome.
func (h *Handler) HandleBatch(ctx context.Context, records []Record, requestID string) BatchResult {
	failed := 0
	for _, rec := range records {
		if err := h.handleRecord(ctx, rec, requestID); err != nil {
			failed++
		}
	}
	if failed == 0 {
		return BatchResult{Status: "ok"}
	}
	return BatchResult{Status: "partial_failure", Failed: failed}
}

func (h *Handler) handleRecord(ctx context.Context, rec Record, requestID string) error {
	if rec.Bucket == "" || rec.Key == "" {
		if h.logger != nil {
			h.logger.Warn("event-trigger record missing bucket or key, skipping", zap.String("bucket", rec.Bucket), zap.String("key", rec.Key))
		}
		return nil
	}

	key, err := url.QueryUnescape(rec.Key)
	if err != nil {
		key = rec.Key
	}
	outKey := OutputKey(h.outputPrefix, key)

	var payload interface{}
	var procErr error

	if strings.HasSuffix(strings.ToLower(key), ".pdf") {
		jobID, startErr := h.async.StartAsync(ctx, rec.Bucket, key)
		if startErr != nil {
			procErr = startErr
		} else {
			payload = map[string]interface{}{
				"jobId":     jobID,
				"status":    "STARTED",
				"requestId": requestID,
				"input":     key,
			}
		}
	} else {
		analysis, syncErr := h.async.AnalyzeSync(ctx, rec.Bucket, key)
		if syncErr != nil {
			procErr = syncErr
		} else {
			payload = map[string]interface{}{
				"blocks":    analysis.Blocks,
				"requestId": requestID,
			}
		}
	}

	if procErr != nil {
		errDoc := map[string]interface{}{
			"error":     true,
			"message":   procErr.Error(),
			"requestId": requestID,
			"input":     key,
		}
		_ = h.store.PutJSON(ctx, outKey, errDoc)
		return procErr
	}

	return h.store.PutJSON(ctx, outKey, payload)
}

// OutputKey computes trim_trailing_slash(prefix) + "/" + basename(key) + ".json".
func OutputKey(prefix, key string) string {
	trimmed := strings.TrimSuffix(prefix, "/")
	return trimmed + "/" + path.Base(key) + ".json"
}
