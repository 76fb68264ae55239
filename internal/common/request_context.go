package common

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestContext tracks one request's lifecycle: its id, elapsed time per
// pipeline step, and the structured logger to use for the duration. It
// generalizes the teacher's RequestContext (internal/common/request_context.go)
// from Thai-language step descriptions and token-cost bookkeeping to
// OCR-pipeline step names, logged via zap instead of log.Printf.
type RequestContext struct {
	RequestID string
	StartTime time.Time

	logger      *zap.Logger
	currentStep string
	stepStart   time.Time
	steps       []StepLog
}

// StepLog records one completed pipeline step.
type StepLog struct {
	Name       string
	DurationMS int64
	Status     string // "success" | "failed"
	Err        string `json:",omitempty"`
}

// NewRequestContext starts tracking a new request, generating a request id
// if one is not already known (e.g. propagated from an upstream caller).
func NewRequestContext(requestID string) *RequestContext {
	if requestID == "" {
		requestID = uuid.New().String()
	}
	now := time.Now()
	logger := L().With(zap.String("request_id", requestID))
	logger.Info("request started", zap.Time("started_at", now))

	return &RequestContext{
		RequestID: requestID,
		StartTime: now,
		logger:    logger,
	}
}

// StartStep begins timing a named pipeline step.
func (rc *RequestContext) StartStep(name string) {
	rc.currentStep = name
	rc.stepStart = time.Now()
	rc.logger.Debug("step started", zap.String("step", name))
}

// EndStep completes the current step, recording its duration and outcome.
func (rc *RequestContext) EndStep(err error) {
	duration := time.Since(rc.stepStart).Milliseconds()
	status := "success"
	var errMsg string
	if err != nil {
		status = "failed"
		errMsg = err.Error()
		rc.logger.Warn("step failed",
			zap.String("step", rc.currentStep),
			zap.Int64("duration_ms", duration),
			zap.Error(err))
	} else {
		rc.logger.Debug("step completed",
			zap.String("step", rc.currentStep),
			zap.Int64("duration_ms", duration))
	}

	rc.steps = append(rc.steps, StepLog{
		Name:       rc.currentStep,
		DurationMS: duration,
		Status:     status,
		Err:        errMsg,
	})
	rc.currentStep = ""
}

// Logger returns the request-scoped logger for ad-hoc logging.
func (rc *RequestContext) Logger() *zap.Logger { return rc.logger }

// Summary returns a compact record of elapsed time and step outcomes,
// suitable for attaching to a response or job record.
func (rc *RequestContext) Summary() map[string]interface{} {
	totalMS := time.Since(rc.StartTime).Milliseconds()
	breakdown := make(map[string]int64, len(rc.steps))
	for _, s := range rc.steps {
		breakdown[s.Name] = s.DurationMS
	}
	return map[string]interface{}{
		"request_id":        rc.RequestID,
		"total_duration_ms": totalMS,
		"step_breakdown":    breakdown,
		"step_count":        len(rc.steps),
	}
}
