package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "ollama", cfg.LLM.Mode)
	assert.Equal(t, "docker", cfg.Video.Mode)
	assert.Equal(t, 2*time.Second, cfg.Poll.Interval)
	assert.Equal(t, 30, cfg.Poll.MaxAttempts)
	assert.Equal(t, 5*time.Minute, cfg.Poll.Timeout)
	assert.Equal(t, int64(8), cfg.Scheduler.MaxConcurrentPolls)
	assert.Equal(t, 10*time.Minute, cfg.Weather.CacheTTL)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aule.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9090"
llm:
  mode: openai
  url: https://api.openai.com/v1
  model: gpt-4o-mini
poll:
  max_attempts: 12
  interval: 3s
`), 0o600))
	t.Setenv("AULE_POLL_MAX_ATTEMPTS", "20")
	t.Setenv("AULE_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "openai", cfg.LLM.Mode)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, 3*time.Second, cfg.Poll.Interval)
	assert.Equal(t, 20, cfg.Poll.MaxAttempts)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_OpensSealedSecrets(t *testing.T) {
	box := NewSecretBox("passphrase")
	sealed, err := box.Seal("gemini-key-1234")
	require.NoError(t, err)

	t.Setenv("AULE_SECRET_KEY", "passphrase")
	t.Setenv("AULE_LLM_MODE", "gemini")
	t.Setenv("AULE_LLM_API_KEY", sealed)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "gemini-key-1234", cfg.LLM.APIKey)
	assert.Equal(t, "****1234", cfg.Redacted().LLM.APIKey)
	assert.Equal(t, "gemini-key-1234", cfg.LLM.APIKey)
}

func TestLoad_SealedSecretWithoutKey(t *testing.T) {
	sealed, err := NewSecretBox("passphrase").Seal("value")
	require.NoError(t, err)
	t.Setenv("AULE_SPEECH_API_KEY", sealed)

	_, err = Load("")
	assert.ErrorContains(t, err, "secret_key is not set")
}

func httpVideo(baseURL, playerTemplate string) func(*Config) {
	return func(c *Config) {
		c.Video.Mode = "http"
		c.Video.BaseURL = baseURL
		c.Video.PlayerURLTemplate = playerTemplate
	}
}

func TestValidate(t *testing.T) {
	base, err := Load("")
	require.NoError(t, err)

	cases := map[string]func(*Config){
		"log level":        func(c *Config) { c.Log.Level = "verbose" },
		"llm mode":         func(c *Config) { c.LLM.Mode = "claude" },
		"gemini key":       func(c *Config) { c.LLM.Mode = "gemini"; c.LLM.APIKey = "" },
		"image mode":       func(c *Config) { c.Image.Mode = "dalle" },
		"http video url":   httpVideo("", "https://v.example.com/{id}"),
		"player template":  httpVideo("https://v.example.com", "https://v.example.com/watch"),
		"poll attempts":    func(c *Config) { c.Poll.MaxAttempts = 0 },
		"poll bounds":      func(c *Config) { c.Poll.MinInterval = time.Hour },
		"scheduler":        func(c *Config) { c.Scheduler.MaxConcurrentPolls = 0 },
		"bucket for video": func(c *Config) { c.Storage.Bucket = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := *base
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := *base
	cfg.Video.Mode = "none"
	cfg.Storage.Bucket = ""
	assert.NoError(t, cfg.Validate())
}

func TestSecretBox(t *testing.T) {
	box := NewSecretBox("test-secret-key-for-unit-tests")

	for _, plain := range []string{"sk-abc123def456xyz", "sk-+/=!@#$%^&*()"} {
		sealed, err := box.Seal(plain)
		require.NoError(t, err)
		assert.True(t, IsSealed(sealed))
		assert.NotContains(t, sealed, plain)

		opened, err := box.Open(sealed)
		require.NoError(t, err)
		assert.Equal(t, plain, opened)
	}

	empty, err := box.Seal("")
	require.NoError(t, err)
	assert.Empty(t, empty)

	plain, err := box.Open("plain-text-value")
	require.NoError(t, err)
	assert.Equal(t, "plain-text-value", plain)

	sealed, err := box.Seal("value")
	require.NoError(t, err)
	_, err = NewSecretBox("other").Open(sealed)
	assert.ErrorContains(t, err, "decryption failed")
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", MaskSecret(""))
	assert.Equal(t, "****", MaskSecret("abcd"))
	assert.Equal(t, "****3def", MaskSecret("sk-abc123def"))
}
