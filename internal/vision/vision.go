// Package vision implements the set of registered vision/LLM OCR providers
// and their fallback orchestration. It generalizes the teacher's
// internal/ai package (interface.go's OCRProvider interface, factory.go's
// primary/fallback selection, gemini_retry.go's categorized-error retry
// loop) from a fixed two-provider gemini/mistral factory to an ordered,
// N-provider registry with a uniform full-jitter backoff policy shared by
// every provider.
package vision

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ocrpipe/docintel/internal/errs"
)

// ErrorCategory enumerates the ways a provider call can fail, mirroring the
// teacher's GeminiError.Category taxonomy collapsed to the cross-provider
// set the set-level orchestration needs to branch on.
type ErrorCategory string

const (
	ErrConfigMissing ErrorCategory = "ConfigMissing"
	ErrTransport      ErrorCategory = "Transport"
	ErrRateLimited    ErrorCategory = "RateLimited"
	ErrHTTPStatus     ErrorCategory = "HttpStatus"
	ErrParseFailure   ErrorCategory = "ParseFailure"
	ErrUnknown        ErrorCategory = "Unknown"
)

// ProviderError is the error shape every provider returns on failure.
type ProviderError struct {
	Category ErrorCategory
	Code     int
	Body     string
	Cause    error
}

func (e *ProviderError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s(%d): %s", e.Category, e.Code, e.Body)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Category, e.Cause)
	}
	return string(e.Category)
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// Result is a successful reconstruction.
type Result struct {
	Text  string
	Model string
}

// Provider is a registered vision/LLM backend able to reconstruct text
// from an image given a prompt.
type Provider interface {
	Name() string
	Reconstruct(ctx context.Context, imageBytes []byte, prompt string) (Result, *ProviderError)
}

// RetryPolicy is the shared request policy every provider call goes
// through: up to MaxAttempts attempts with full-jitter exponential backoff
// starting at 2^n seconds; an HTTP 429 does not count against the budget.
type RetryPolicy struct {
	MaxAttempts int
}

// DefaultRetryPolicy matches the spec's default of 3 attempts.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3}

// Call runs fn under the retry policy, sleeping with full-jitter
// exponential backoff between attempts. A 429 response is retried without
// being counted against MaxAttempts.
func (p RetryPolicy) Call(ctx context.Context, fn func() (Result, *ProviderError)) (Result, *ProviderError) {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultRetryPolicy.MaxAttempts
	}

	attempt := 0
	var lastErr *ProviderError
	for {
		result, perr := fn()
		if perr == nil {
			return result, nil
		}
		lastErr = perr

		if perr.Category == ErrRateLimited || perr.Code == http.StatusTooManyRequests {
			if !sleepBackoff(ctx, attempt) {
				return Result{}, lastErr
			}
			continue
		}

		attempt++
		if attempt >= maxAttempts {
			return Result{}, lastErr
		}
		if !sleepBackoff(ctx, attempt) {
			return Result{}, lastErr
		}
	}
}

// sleepBackoff sleeps for a full-jitter exponential delay starting at
// 2^attempt seconds, returning false if ctx is canceled first.
func sleepBackoff(ctx context.Context, attempt int) bool {
	base := time.Duration(1<<uint(attempt)) * time.Second
	jittered := time.Duration(rand.Int63n(int64(base) + 1))
	select {
	case <-ctx.Done():
		return false
	case <-time.After(jittered):
		return true
	}
}

// Set is an ordered registry of providers sharing one HTTP client.
type Set struct {
	providers []Provider
	byName    map[string]Provider
	client    *http.Client
	policy    RetryPolicy
	logger    *zap.Logger
	closed    bool
}

// NewSet builds a provider set with its own shared HTTP client.
func NewSet(logger *zap.Logger, policy RetryPolicy) *Set {
	return &Set{
		byName: make(map[string]Provider),
		client: &http.Client{Timeout: 60 * time.Second},
		policy: policy,
		logger: logger,
	}
}

// Client returns the shared HTTP client for provider implementations to use.
func (s *Set) Client() *http.Client { return s.client }

// Register adds a provider in registration order. Order determines both
// the default primary and the fallback iteration order.
func (s *Set) Register(p Provider) {
	s.providers = append(s.providers, p)
	s.byName[p.Name()] = p
}

// Close releases the shared HTTP client's idle connections exactly once.
func (s *Set) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.client.CloseIdleConnections()
}

// ReconstructContext carries the extra signal the advanced engine path
// gathers. BuildPrompt folds FontMetadata and AccuracyScore into the
// prompt; LayoutType and RegionCount are carried but not used there.
type ReconstructContext struct {
	FontMetadata  string
	AccuracyScore string
	LayoutType    string
	RegionCount   int
}

const basePrompt = "Extract all readable text from this document image, preserving structure and reading order."

// BuildPrompt composes the base extraction prompt with an optional
// trailing sentence describing prior learned pattern context.
func BuildPrompt(reqCtx *ReconstructContext) string {
	if reqCtx == nil {
		return basePrompt
	}
	fontMetadata := reqCtx.FontMetadata
	if fontMetadata == "" {
		fontMetadata = "No font metadata available"
	}
	accuracy := reqCtx.AccuracyScore
	if accuracy == "" {
		accuracy = "N/A"
	}
	return fmt.Sprintf("%s A similar document was previously processed with font metadata %q and recorded accuracy %s.",
		basePrompt, fontMetadata, accuracy)
}

// ReconstructWithAI runs the set-level orchestration: select primary
// (preferred if registered, else the first registered provider), call it
// under the retry policy, and on failure — if fallbackEnabled — try the
// remaining providers in registration order.
func (s *Set) ReconstructWithAI(ctx context.Context, imageBytes []byte, preferred string, reqCtx *ReconstructContext, fallbackEnabled bool) (Result, *ProviderError) {
	if len(s.providers) == 0 {
		return Result{}, &ProviderError{Category: ErrConfigMissing, Body: "NoProvidersConfigured"}
	}

	primary := s.providers[0]
	if preferred != "" {
		if p, ok := s.byName[preferred]; ok {
			primary = p
		}
	}

	prompt := BuildPrompt(reqCtx)

	result, perr := s.callProvider(ctx, primary, imageBytes, prompt)
	if perr == nil {
		return result, nil
	}
	if s.logger != nil {
		s.logger.Warn("primary vision provider failed", zap.String("provider", primary.Name()), zap.Error(perr))
	}

	if !fallbackEnabled {
		return Result{}, perr
	}

	for _, p := range s.providers {
		if p == primary {
			continue
		}
		result, perr2 := s.callProvider(ctx, p, imageBytes, prompt)
		if perr2 == nil {
			return result, nil
		}
		if s.logger != nil {
			s.logger.Warn("fallback vision provider failed", zap.String("provider", p.Name()), zap.Error(perr2))
		}
	}

	return Result{}, &ProviderError{Category: ErrUnknown, Body: "All AI providers failed", Cause: errs.ErrAllProviders}
}

func (s *Set) callProvider(ctx context.Context, p Provider, imageBytes []byte, prompt string) (Result, *ProviderError) {
	return s.policy.Call(ctx, func() (Result, *ProviderError) {
		return p.Reconstruct(ctx, imageBytes, prompt)
	})
}
