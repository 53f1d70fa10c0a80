// Package providers holds thin HTTP clients for the external generation and
// encoding services. Every client takes its base URL and credentials from
// configuration; nothing here reads the environment.
package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// ErrEmptyImageResponse reports a generate call that returned no usable
// image part.
var ErrEmptyImageResponse = fmt.Errorf("providers: image response carries no image data")

// ImageGenerator calls a synchronous image generation endpoint and returns
// the decoded image bytes.
type ImageGenerator struct {
	baseURL    string
	model      string
	apiKey     string
	httpClient *http.Client
}

// NewImageGenerator returns a client for the synchronous image endpoint.
func NewImageGenerator(baseURL string, model string, apiKey string, httpClient *http.Client) *ImageGenerator {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &ImageGenerator{baseURL: baseURL, model: model, apiKey: apiKey, httpClient: httpClient}
}

type generatePart struct {
	Text       string `json:"text,omitempty"`
	InlineData *struct {
		MimeType string `json:"mimeType"`
		Data     string `json:"data"`
	} `json:"inlineData,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []generatePart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Generate performs one synchronous generation call. The response is parsed
// strictly: the first inline image part wins, and a response without one is
// an error rather than a silent null artifact.
func (generator *ImageGenerator) Generate(ctx context.Context, prompt string) ([]byte, string, error) {
	requestBody, marshalError := json.Marshal(map[string]any{
		"contents": []map[string]any{
			{"parts": []map[string]string{{"text": prompt}}},
		},
		"generationConfig": map[string]any{
			"responseModalities": []string{"IMAGE"},
		},
	})
	if marshalError != nil {
		return nil, "", fmt.Errorf("providers: encode generate request: %w", marshalError)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", generator.baseURL, generator.model)
	request, requestError := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(requestBody))
	if requestError != nil {
		return nil, "", fmt.Errorf("providers: build generate request: %w", requestError)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("x-goog-api-key", generator.apiKey)

	response, callError := generator.httpClient.Do(request)
	if callError != nil {
		return nil, "", fmt.Errorf("providers: generate call: %w", callError)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(response.Body, 4096))
		return nil, "", fmt.Errorf("providers: generate call failed with status %d: %s", response.StatusCode, body)
	}

	var parsed generateResponse
	if decodeError := json.NewDecoder(response.Body).Decode(&parsed); decodeError != nil {
		return nil, "", fmt.Errorf("providers: decode generate response: %w", decodeError)
	}
	return firstInlineImage(parsed)
}

// firstInlineImage walks candidate parts in order and decodes the first
// inline image. There is exactly one fallback, the next part in order; a
// response with no image part fails loudly.
func firstInlineImage(parsed generateResponse) ([]byte, string, error) {
	for _, candidate := range parsed.Candidates {
		for _, part := range candidate.Content.Parts {
			if part.InlineData == nil || part.InlineData.Data == "" {
				continue
			}
			decoded, decodeError := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if decodeError != nil {
				return nil, "", fmt.Errorf("providers: decode inline image: %w", decodeError)
			}
			contentType := part.InlineData.MimeType
			if contentType == "" {
				contentType = "image/png"
			}
			return decoded, contentType, nil
		}
	}
	return nil, "", ErrEmptyImageResponse
}
