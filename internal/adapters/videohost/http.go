package videohost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/manthysbr/aule-weather/internal/core/domain"
	"github.com/manthysbr/aule-weather/internal/core/ports"
)

var _ ports.VideoHost = (*HTTPHost)(nil)

// HTTPHost drives a REST video platform:
//
//	POST {base}/videos      -> {"id": "..."}
//	GET  {base}/videos/{id} -> {"status": "preparing|ready|errored|failed", "error": "..."}
type HTTPHost struct {
	client         *http.Client
	baseURL        string
	apiKey         string
	playerTemplate string
}

func NewHTTPHost(baseURL, apiKey, playerTemplate string) *HTTPHost {
	return &HTTPHost{
		client:         &http.Client{Timeout: 30 * time.Second},
		baseURL:        strings.TrimRight(baseURL, "/"),
		apiKey:         apiKey,
		playerTemplate: playerTemplate,
	}
}

type createVideoRequest struct {
	Title    string            `json:"title"`
	Script   string            `json:"script,omitempty"`
	ImageURL string            `json:"image_url"`
	AudioURL string            `json:"audio_url"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type videoResource struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func (h *HTTPHost) SubmitRender(ctx context.Context, req domain.RenderRequest) (string, error) {
	body, err := json.Marshal(createVideoRequest{
		Title:    req.Title,
		Script:   req.Script,
		ImageURL: req.SourceImageURL,
		AudioURL: req.SourceAudioURL,
		Metadata: req.Options,
	})
	if err != nil {
		return "", fmt.Errorf("marshal render request: %w", err)
	}

	var created videoResource
	if err := h.do(ctx, http.MethodPost, "/videos", body, &created); err != nil {
		return "", err
	}
	return created.ID, nil
}

func (h *HTTPHost) GetStatus(ctx context.Context, externalID string) (domain.ProviderStatus, error) {
	var video videoResource
	if err := h.do(ctx, http.MethodGet, "/videos/"+url.PathEscape(externalID), nil, &video); err != nil {
		return domain.ProviderStatus{}, err
	}
	return domain.ProviderStatus{
		State:       domain.ProviderAssetState(strings.ToLower(video.Status)),
		ErrorDetail: video.Error,
	}, nil
}

func (h *HTTPHost) PlayerURL(externalID string) string {
	return strings.ReplaceAll(h.playerTemplate, "{id}", url.PathEscape(externalID))
}

// do maps every failure to *domain.ProviderError so callers can tell transient from fatal.
func (h *HTTPHost) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return &domain.ProviderError{Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &domain.ProviderError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		// a garbled body from a healthy host is worth another try
		return &domain.ProviderError{Message: "decode response: " + err.Error(), Err: err}
	}
	return nil
}
