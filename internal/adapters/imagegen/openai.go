package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OpenAIImageProvider renders backdrops through POST {baseURL}/images/generations.
// The response must carry a hosted URL: {"data":[{"url":"https://..."}]}.
type OpenAIImageProvider struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
}

func NewOpenAIImageProvider(baseURL, apiKey, model string) *OpenAIImageProvider {
	if model == "" {
		model = "dall-e-3"
	}
	return &OpenAIImageProvider{
		client:  &http.Client{Timeout: 120 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
	}
}

type imageRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	Size           string `json:"size"`
	N              int    `json:"n"`
	ResponseFormat string `json:"response_format"`
}

type imageResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
}

func (p *OpenAIImageProvider) GenerateImage(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(imageRequest{
		Model:          p.model,
		Prompt:         prompt,
		Size:           "1792x1024",
		N:              1,
		ResponseFormat: "url",
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/images/generations", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call image API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("image API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result imageResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode image API response: %w", err)
	}
	if len(result.Data) == 0 || strings.TrimSpace(result.Data[0].URL) == "" {
		return "", errors.New("image API returned no image URL")
	}
	return result.Data[0].URL, nil
}
