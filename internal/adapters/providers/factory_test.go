package providers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manthysbr/aule-weather/internal/adapters/imagegen"
	"github.com/manthysbr/aule-weather/internal/adapters/llm"
	"github.com/manthysbr/aule-weather/internal/adapters/videohost"
	"github.com/manthysbr/aule-weather/internal/config"
)

func baseConfig() *config.Config {
	return &config.Config{
		LLM:   config.LLMConfig{Mode: "ollama", URL: "http://localhost:11434", Model: "qwen2.5:latest"},
		Image: config.ImageConfig{Mode: "comfyui", URL: "http://localhost:8188"},
		Video: config.VideoConfig{Mode: "none"},
	}
}

func TestBuild_Defaults(t *testing.T) {
	t.Setenv("OLLAMA_HOST", "")
	t.Setenv("COMFYUI_HOST", "")

	set, err := Build(context.Background(), baseConfig())
	require.NoError(t, err)
	assert.IsType(t, &llm.OllamaProvider{}, set.LLM)
	assert.IsType(t, &imagegen.ComfyUIProvider{}, set.Image)
	assert.Nil(t, set.Speech)
	assert.Nil(t, set.Video)
	assert.Nil(t, set.Docker)
}

func TestBuild_Remote(t *testing.T) {
	cfg := baseConfig()
	cfg.LLM = config.LLMConfig{Mode: "openai", URL: "https://api.openai.com/v1", APIKey: "sk-test"}
	cfg.Image = config.ImageConfig{Mode: "openai", URL: "https://api.openai.com/v1", APIKey: "sk-test"}
	cfg.Speech = config.SpeechConfig{URL: "https://api.openai.com/v1", APIKey: "sk-test"}
	cfg.Video = config.VideoConfig{Mode: "http", BaseURL: "https://video.example.com", PlayerURLTemplate: "https://play.example.com/{id}"}

	set, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &llm.OpenAIProvider{}, set.LLM)
	assert.IsType(t, &imagegen.OpenAIImageProvider{}, set.Image)
	assert.NotNil(t, set.Speech)
	assert.IsType(t, &videohost.HTTPHost{}, set.Video)
	assert.Equal(t, "https://play.example.com/abc", set.Video.PlayerURL("abc"))
}

func TestBuild_Errors(t *testing.T) {
	cases := map[string]func(*config.Config){
		"unknown llm":       func(c *config.Config) { c.LLM.Mode = "bard" },
		"openai llm no url": func(c *config.Config) { c.LLM = config.LLMConfig{Mode: "openai"} },
		"unknown image":     func(c *config.Config) { c.Image.Mode = "midjourney" },
		"openai image no url": func(c *config.Config) {
			c.Image = config.ImageConfig{Mode: "openai"}
		},
		"unknown video": func(c *config.Config) { c.Video.Mode = "vhs" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := baseConfig()
			mutate(cfg)
			_, err := Build(context.Background(), cfg)
			assert.Error(t, err)
		})
	}
}
