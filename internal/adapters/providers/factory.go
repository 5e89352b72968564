package providers

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/manthysbr/aule-weather/internal/adapters/imagegen"
	"github.com/manthysbr/aule-weather/internal/adapters/llm"
	"github.com/manthysbr/aule-weather/internal/adapters/speech"
	"github.com/manthysbr/aule-weather/internal/adapters/videohost"
	"github.com/manthysbr/aule-weather/internal/config"
	"github.com/manthysbr/aule-weather/internal/core/domain"
	"github.com/manthysbr/aule-weather/internal/core/ports"
)

// Set is every model and media provider the kernel needs.
// Speech and Video are nil when their section is not configured.
type Set struct {
	LLM    domain.LLMProvider
	Image  domain.ImageProvider
	Speech domain.SpeechProvider
	Video  ports.VideoHost
	// Docker is set when Video is the local ffmpeg host, for sweeping and media serving.
	Docker *videohost.DockerHost
}

// Build creates providers from app configuration.
// It hides local/remote provider selection from callers.
func Build(ctx context.Context, cfg *config.Config) (*Set, error) {
	llmProvider, err := buildLLMProvider(ctx, cfg.LLM)
	if err != nil {
		return nil, err
	}
	imageProvider, err := buildImageProvider(cfg.Image)
	if err != nil {
		return nil, err
	}

	set := &Set{LLM: llmProvider, Image: imageProvider}
	if url := strings.TrimSpace(cfg.Speech.URL); url != "" {
		set.Speech = speech.NewOpenAIProvider(url, cfg.Speech.APIKey, cfg.Speech.Model, cfg.Speech.Voice)
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Video.Mode)) {
	case "", "none":
	case "http":
		set.Video = videohost.NewHTTPHost(cfg.Video.BaseURL, cfg.Video.APIKey, cfg.Video.PlayerURLTemplate)
	case "docker":
		host, err := videohost.NewDockerHost(cfg.Video.DockerImage, cfg.Video.MediaDir, cfg.Server.PublicURL)
		if err != nil {
			return nil, fmt.Errorf("docker video host: %w", err)
		}
		set.Video = host
		set.Docker = host
	default:
		return nil, fmt.Errorf("unsupported video mode: %s", cfg.Video.Mode)
	}
	return set, nil
}

func buildLLMProvider(ctx context.Context, cfg config.LLMConfig) (domain.LLMProvider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Mode)) {
	case "", "ollama":
		baseURL := strings.TrimSpace(os.Getenv("OLLAMA_HOST"))
		if baseURL == "" {
			baseURL = strings.TrimSpace(cfg.URL)
		}
		return llm.NewOllamaProvider(baseURL, cfg.Model), nil
	case "openai":
		if strings.TrimSpace(cfg.URL) == "" {
			return nil, fmt.Errorf("llm url is required when mode=openai")
		}
		return llm.NewOpenAIProvider(strings.TrimSpace(cfg.URL), strings.TrimSpace(cfg.APIKey), strings.TrimSpace(cfg.Model)), nil
	case "gemini":
		return llm.NewGeminiProvider(ctx, strings.TrimSpace(cfg.APIKey), strings.TrimSpace(cfg.URL), strings.TrimSpace(cfg.Model))
	default:
		return nil, fmt.Errorf("unsupported llm provider mode: %s", cfg.Mode)
	}
}

func buildImageProvider(cfg config.ImageConfig) (domain.ImageProvider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Mode)) {
	case "", "comfyui":
		comfyHost := strings.TrimSpace(os.Getenv("COMFYUI_HOST"))
		if comfyHost == "" {
			comfyHost = strings.TrimSpace(cfg.URL)
		}
		if comfyHost == "" {
			comfyHost = "http://localhost:8188"
		}
		return imagegen.NewComfyUIProvider(comfyHost, cfg.Checkpoint), nil
	case "openai":
		if strings.TrimSpace(cfg.URL) == "" {
			return nil, fmt.Errorf("image url is required when mode=openai")
		}
		return imagegen.NewOpenAIImageProvider(strings.TrimSpace(cfg.URL), strings.TrimSpace(cfg.APIKey), strings.TrimSpace(cfg.Model)), nil
	default:
		return nil, fmt.Errorf("unsupported image provider mode: %s", cfg.Mode)
	}
}
