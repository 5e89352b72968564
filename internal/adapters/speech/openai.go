package speech

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

const maxAudioBytes = 25 << 20

// OpenAIProvider synthesizes narration with an OpenAI-compatible POST /audio/speech.
type OpenAIProvider struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
	voice   string
}

func NewOpenAIProvider(baseURL, apiKey, model, voice string) *OpenAIProvider {
	if model == "" {
		model = "tts-1"
	}
	if voice == "" {
		voice = "alloy"
	}
	return &OpenAIProvider{
		client:  &http.Client{Timeout: 60 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		voice:   voice,
	}
}

type speechRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format"`
}

// Synthesize returns mp3 audio.
func (p *OpenAIProvider) Synthesize(ctx context.Context, text string) ([]byte, string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, "", errors.New("nothing to synthesize")
	}
	payload, err := json.Marshal(speechRequest{Model: p.model, Input: text, Voice: p.voice, ResponseFormat: "mp3"})
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/audio/speech", bytes.NewReader(payload))
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to call speech API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, "", fmt.Errorf("speech API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, "", errors.New("speech API returned no audio")
	}
	if len(audio) > maxAudioBytes {
		return nil, "", errors.New("speech API returned more audio than allowed")
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" || !strings.HasPrefix(contentType, "audio/") {
		contentType = "audio/mpeg"
	}
	return audio, contentType, nil
}
