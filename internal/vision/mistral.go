package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// MistralProvider implements Provider against the Mistral OCR API,
// adapted from the teacher's internal/ai/mistral.go: same request/response
// shapes and base64 data-URL encoding, but driven off in-memory image
// bytes rather than a file path, and using the Set's shared HTTP client.
type MistralProvider struct {
	apiKey    string
	modelName string
	client    *http.Client
}

// NewMistralProvider builds a Mistral provider sharing client for transport.
func NewMistralProvider(apiKey, modelName string, client *http.Client) *MistralProvider {
	return &MistralProvider{apiKey: apiKey, modelName: modelName, client: client}
}

func (m *MistralProvider) Name() string { return "mistral" }

type mistralOCRDocument struct {
	Type     string `json:"type"`
	ImageURL string `json:"image_url,omitempty"`
}

type mistralOCRRequest struct {
	Model    string             `json:"model"`
	Document mistralOCRDocument `json:"document"`
}

type mistralOCRPage struct {
	Index    int    `json:"index"`
	Markdown string `json:"markdown"`
}

type mistralOCRResponse struct {
	Model string           `json:"model"`
	Pages []mistralOCRPage `json:"pages"`
}

type mistralErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (m *MistralProvider) Reconstruct(ctx context.Context, imageBytes []byte, prompt string) (Result, *ProviderError) {
	if m.apiKey == "" {
		return Result{}, &ProviderError{Category: ErrConfigMissing, Body: "mistral API key not configured"}
	}

	imageURL := fmt.Sprintf("data:image/jpeg;base64,%s", base64.StdEncoding.EncodeToString(imageBytes))
	reqBody := mistralOCRRequest{
		Model: m.modelName,
		Document: mistralOCRDocument{
			Type:     "image_url",
			ImageURL: imageURL,
		},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return Result{}, &ProviderError{Category: ErrParseFailure, Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.mistral.ai/v1/ocr", bytes.NewReader(body))
	if err != nil {
		return Result{}, &ProviderError{Category: ErrTransport, Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return Result{}, &ProviderError{Category: ErrTransport, Cause: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, &ProviderError{Category: ErrTransport, Cause: err}
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return Result{}, &ProviderError{Category: ErrRateLimited, Code: resp.StatusCode, Body: string(respBody)}
	}
	if resp.StatusCode != http.StatusOK {
		var errResp mistralErrorResponse
		msg := string(respBody)
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error.Message != "" {
			msg = errResp.Error.Message
		}
		return Result{}, &ProviderError{Category: ErrHTTPStatus, Code: resp.StatusCode, Body: msg}
	}

	var parsed mistralOCRResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return Result{}, &ProviderError{Category: ErrParseFailure, Cause: err}
	}
	if len(parsed.Pages) == 0 {
		return Result{}, &ProviderError{Category: ErrParseFailure, Body: "no pages returned"}
	}

	var text strings.Builder
	for i, page := range parsed.Pages {
		if i > 0 {
			text.WriteString("\n\n")
		}
		text.WriteString(page.Markdown)
	}

	return Result{Text: text.String(), Model: parsed.Model}, nil
}
