package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// saveNode is the id of the SaveImage node in the backdrop workflow.
const saveNode = "9"

// ComfyUIProvider renders backdrops on a running ComfyUI server. It queues a
// workflow on /prompt and waits on /history until the image is saved.
type ComfyUIProvider struct {
	client       *http.Client
	baseURL      string
	checkpoint   string
	pollInterval time.Duration
	maxPolls     int
}

func NewComfyUIProvider(baseURL, checkpoint string) *ComfyUIProvider {
	if checkpoint == "" {
		checkpoint = "v1-5-pruned-emaonly.safetensors"
	}
	return &ComfyUIProvider{
		client:       &http.Client{Timeout: 30 * time.Second},
		baseURL:      strings.TrimRight(baseURL, "/"),
		checkpoint:   checkpoint,
		pollInterval: 2 * time.Second,
		maxPolls:     90,
	}
}

type historyEntry struct {
	Status struct {
		StatusStr string `json:"status_str"`
		Completed bool   `json:"completed"`
	} `json:"status"`
	Outputs map[string]struct {
		Images []struct {
			Filename  string `json:"filename"`
			Subfolder string `json:"subfolder"`
			Type      string `json:"type"`
		} `json:"images"`
	} `json:"outputs"`
}

// GenerateImage returns the /view URL of the rendered image.
func (p *ComfyUIProvider) GenerateImage(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(map[string]any{"prompt": p.workflow(prompt)})
	if err != nil {
		return "", fmt.Errorf("failed to marshal workflow: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/prompt", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call ComfyUI: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("ComfyUI returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var queued struct {
		PromptID string `json:"prompt_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&queued); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if queued.PromptID == "" {
		return "", errors.New("ComfyUI returned no prompt_id")
	}

	return p.awaitImage(ctx, queued.PromptID)
}

func (p *ComfyUIProvider) awaitImage(ctx context.Context, promptID string) (string, error) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for i := 0; i < p.maxPolls; i++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
		}

		entry, err := p.history(ctx, promptID)
		if err == nil && entry != nil {
			if entry.Status.StatusStr == "error" {
				return "", fmt.Errorf("ComfyUI failed prompt %s", promptID)
			}
			if out, ok := entry.Outputs[saveNode]; ok && len(out.Images) > 0 {
				img := out.Images[0]
				q := url.Values{"filename": {img.Filename}, "subfolder": {img.Subfolder}, "type": {"output"}}
				return p.baseURL + "/view?" + q.Encode(), nil
			}
		}
		timer.Reset(p.pollInterval)
	}
	return "", fmt.Errorf("timeout waiting for ComfyUI prompt %s", promptID)
}

// history returns nil while the prompt is still queued.
func (p *ComfyUIProvider) history(ctx context.Context, promptID string) (*historyEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/history/"+url.PathEscape(promptID), nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("history returned status %d", resp.StatusCode)
	}

	var history map[string]historyEntry
	if err := json.NewDecoder(resp.Body).Decode(&history); err != nil {
		return nil, err
	}
	entry, ok := history[promptID]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

// workflow is a plain SD 1.5 text-to-image graph at a 16:9 video size.
func (p *ComfyUIProvider) workflow(prompt string) map[string]any {
	return map[string]any{
		"3": node("KSampler", map[string]any{
			"seed":         time.Now().UnixNano() % 1_000_000,
			"steps":        20,
			"cfg":          7.0,
			"sampler_name": "euler",
			"scheduler":    "normal",
			"denoise":      1.0,
			"model":        []any{"4", 0},
			"positive":     []any{"6", 0},
			"negative":     []any{"7", 0},
			"latent_image": []any{"5", 0},
		}),
		"4": node("CheckpointLoaderSimple", map[string]any{"ckpt_name": p.checkpoint}),
		"5": node("EmptyLatentImage", map[string]any{"width": 1024, "height": 576, "batch_size": 1}),
		"6": node("CLIPTextEncode", map[string]any{"text": prompt, "clip": []any{"4", 1}}),
		"7": node("CLIPTextEncode", map[string]any{"text": "text, watermark, blurry, low quality", "clip": []any{"4", 1}}),
		"8": node("VAEDecode", map[string]any{"samples": []any{"3", 0}, "vae": []any{"4", 2}}),
		saveNode: node("SaveImage", map[string]any{
			"filename_prefix": "aule-weather",
			"images":          []any{"8", 0},
		}),
	}
}

func node(class string, inputs map[string]any) map[string]any {
	return map[string]any{"class_type": class, "inputs": inputs}
}
