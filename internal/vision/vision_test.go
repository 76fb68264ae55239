package vision

import (
	"context"
	"testing"
	"time"
)

type fakeProvider struct {
	name    string
	results []func() (Result, *ProviderError)
	calls   int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Reconstruct(ctx context.Context, imageBytes []byte, prompt string) (Result, *ProviderError) {
	idx := f.calls
	if idx >= len(f.results) {
		idx = len(f.results) - 1
	}
	f.calls++
	return f.results[idx]()
}

func TestReconstructWithAINoProviders(t *testing.T) {
	s := NewSet(nil, RetryPolicy{MaxAttempts: 1})
	_, perr := s.ReconstructWithAI(context.Background(), []byte("x"), "", nil, false)
	if perr == nil || perr.Category != ErrConfigMissing {
		t.Fatalf("expected ConfigMissing, got %v", perr)
	}
}

func TestReconstructWithAIPrimarySucceeds(t *testing.T) {
	s := NewSet(nil, RetryPolicy{MaxAttempts: 1})
	primary := &fakeProvider{name: "gemini", results: []func() (Result, *ProviderError){
		func() (Result, *ProviderError) { return Result{Text: "hello", Model: "gemini-x"}, nil },
	}}
	s.Register(primary)

	res, perr := s.ReconstructWithAI(context.Background(), []byte("x"), "", nil, false)
	if perr != nil {
		t.Fatalf("unexpected error: %v", perr)
	}
	if res.Text != "hello" {
		t.Fatalf("unexpected text: %s", res.Text)
	}
}

func TestReconstructWithAIFallback(t *testing.T) {
	s := NewSet(nil, RetryPolicy{MaxAttempts: 1})
	primary := &fakeProvider{name: "gemini", results: []func() (Result, *ProviderError){
		func() (Result, *ProviderError) { return Result{}, &ProviderError{Category: ErrTransport} },
	}}
	fallback := &fakeProvider{name: "mistral", results: []func() (Result, *ProviderError){
		func() (Result, *ProviderError) { return Result{Text: "fallback text", Model: "mistral-x"}, nil },
	}}
	s.Register(primary)
	s.Register(fallback)

	res, perr := s.ReconstructWithAI(context.Background(), []byte("x"), "", nil, true)
	if perr != nil {
		t.Fatalf("unexpected error: %v", perr)
	}
	if res.Text != "fallback text" {
		t.Fatalf("expected fallback result, got %q", res.Text)
	}
}

func TestReconstructWithAIAllFail(t *testing.T) {
	s := NewSet(nil, RetryPolicy{MaxAttempts: 1})
	primary := &fakeProvider{name: "gemini", results: []func() (Result, *ProviderError){
		func() (Result, *ProviderError) { return Result{}, &ProviderError{Category: ErrTransport} },
	}}
	fallback := &fakeProvider{name: "mistral", results: []func() (Result, *ProviderError){
		func() (Result, *ProviderError) { return Result{}, &ProviderError{Category: ErrTransport} },
	}}
	s.Register(primary)
	s.Register(fallback)

	_, perr := s.ReconstructWithAI(context.Background(), []byte("x"), "", nil, true)
	if perr == nil {
		t.Fatal("expected an error when all providers fail")
	}
}

func TestReconstructWithAINoFallbackStopsAtPrimary(t *testing.T) {
	s := NewSet(nil, RetryPolicy{MaxAttempts: 1})
	primary := &fakeProvider{name: "gemini", results: []func() (Result, *ProviderError){
		func() (Result, *ProviderError) { return Result{}, &ProviderError{Category: ErrTransport} },
	}}
	fallback := &fakeProvider{name: "mistral", results: []func() (Result, *ProviderError){
		func() (Result, *ProviderError) { return Result{Text: "should not be used"}, nil },
	}}
	s.Register(primary)
	s.Register(fallback)

	_, perr := s.ReconstructWithAI(context.Background(), []byte("x"), "", nil, false)
	if perr == nil {
		t.Fatal("expected primary failure to surface when fallback disabled")
	}
	if fallback.calls != 0 {
		t.Fatalf("expected fallback not to be called, got %d calls", fallback.calls)
	}
}

func TestReconstructWithAIPreferredProvider(t *testing.T) {
	s := NewSet(nil, RetryPolicy{MaxAttempts: 1})
	primary := &fakeProvider{name: "gemini", results: []func() (Result, *ProviderError){
		func() (Result, *ProviderError) { return Result{Text: "primary"}, nil },
	}}
	preferred := &fakeProvider{name: "mistral", results: []func() (Result, *ProviderError){
		func() (Result, *ProviderError) { return Result{Text: "preferred"}, nil },
	}}
	s.Register(primary)
	s.Register(preferred)

	res, perr := s.ReconstructWithAI(context.Background(), []byte("x"), "mistral", nil, false)
	if perr != nil {
		t.Fatalf("unexpected error: %v", perr)
	}
	if res.Text != "preferred" {
		t.Fatalf("expected preferred provider's result, got %q", res.Text)
	}
}

func TestRetryPolicyRetriesOnRateLimitWithoutCountingAttempt(t *testing.T) {
	attempts := 0
	policy := RetryPolicy{MaxAttempts: 1}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, perr := policy.Call(ctx, func() (Result, *ProviderError) {
		attempts++
		if attempts < 3 {
			return Result{}, &ProviderError{Category: ErrRateLimited}
		}
		return Result{Text: "ok"}, nil
	})
	if perr != nil {
		t.Fatalf("unexpected error after rate-limit retries: %v", perr)
	}
	if result.Text != "ok" {
		t.Fatalf("unexpected result: %v", result)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 calls (rate limits excluded from budget), got %d", attempts)
	}
}

func TestBuildPromptDefaults(t *testing.T) {
	p := BuildPrompt(nil)
	if p != basePrompt {
		t.Fatalf("expected base prompt with nil context, got %q", p)
	}
}

func TestBuildPromptWithContext(t *testing.T) {
	p := BuildPrompt(&ReconstructContext{FontMetadata: "arial-12", AccuracyScore: "0.87"})
	if p == basePrompt {
		t.Fatal("expected prompt to include context")
	}
}
