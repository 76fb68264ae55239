package vision

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GeminiProvider implements Provider against the Gemini generative API,
// adapted from the teacher's gemini.go/processOCRAndGemini: same
// client-per-call construction and genai.Blob image attachment, stripped
// of the teacher's fixed accounting JSON response schema since the engine
// only wants raw extracted text back.
type GeminiProvider struct {
	apiKey    string
	modelName string
}

// NewGeminiProvider builds a Gemini provider.
func NewGeminiProvider(apiKey, modelName string) *GeminiProvider {
	return &GeminiProvider{apiKey: apiKey, modelName: modelName}
}

func (g *GeminiProvider) Name() string { return "gemini" }

func (g *GeminiProvider) Reconstruct(ctx context.Context, imageBytes []byte, prompt string) (Result, *ProviderError) {
	if g.apiKey == "" {
		return Result{}, &ProviderError{Category: ErrConfigMissing, Body: "gemini API key not configured"}
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(g.apiKey))
	if err != nil {
		return Result{}, categorizeGeminiErr(err)
	}
	defer client.Close()

	model := client.GenerativeModel(g.modelName)

	resp, err := model.GenerateContent(ctx,
		genai.Text(prompt),
		genai.Blob{MIMEType: "image/jpeg", Data: imageBytes},
	)
	if err != nil {
		return Result{}, categorizeGeminiErr(err)
	}

	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return Result{}, &ProviderError{Category: ErrParseFailure, Body: "no response from Gemini API"}
	}

	var text string
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text = string(t)
			break
		}
	}
	if text == "" {
		return Result{}, &ProviderError{Category: ErrParseFailure, Body: "empty response from Gemini API"}
	}

	return Result{Text: text, Model: g.modelName}, nil
}

// categorizeGeminiErr maps a Gemini client error to the shared
// ErrorCategory taxonomy, following the status-code switch in the
// teacher's internal/ai/gemini_retry.go categorizeGeminiError.
func categorizeGeminiErr(err error) *ProviderError {
	if apiErr, ok := err.(*googleapi.Error); ok {
		switch apiErr.Code {
		case http.StatusTooManyRequests:
			return &ProviderError{Category: ErrRateLimited, Code: apiErr.Code, Body: apiErr.Message, Cause: err}
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusRequestEntityTooLarge:
			return &ProviderError{Category: ErrHTTPStatus, Code: apiErr.Code, Body: apiErr.Message, Cause: err}
		default:
			if apiErr.Code >= 500 {
				return &ProviderError{Category: ErrTransport, Code: apiErr.Code, Body: apiErr.Message, Cause: err}
			}
			return &ProviderError{Category: ErrHTTPStatus, Code: apiErr.Code, Body: apiErr.Message, Cause: err}
		}
	}
	if err == context.DeadlineExceeded || err == context.Canceled {
		return &ProviderError{Category: ErrTransport, Cause: err}
	}
	return &ProviderError{Category: ErrUnknown, Cause: fmt.Errorf("gemini call failed: %w", err)}
}
