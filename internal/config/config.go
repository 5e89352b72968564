package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration of aule-weather.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Image     ImageConfig     `mapstructure:"image"`
	Speech    SpeechConfig    `mapstructure:"speech"`
	Video     VideoConfig     `mapstructure:"video"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Weather   WeatherConfig   `mapstructure:"weather"`
	Poll      PollConfig      `mapstructure:"poll"`
	DB        DBConfig        `mapstructure:"db"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	SecretKey string          `mapstructure:"secret_key"`
}

type ServerConfig struct {
	Addr        string   `mapstructure:"addr"`
	PublicURL   string   `mapstructure:"public_url"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// LLMConfig selects the text model. Mode is ollama, openai or gemini.
type LLMConfig struct {
	Mode   string `mapstructure:"mode"`
	URL    string `mapstructure:"url"`
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// ImageConfig selects the backdrop renderer. Mode is comfyui or openai.
type ImageConfig struct {
	Mode       string `mapstructure:"mode"`
	URL        string `mapstructure:"url"`
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	Checkpoint string `mapstructure:"checkpoint"`
}

// SpeechConfig points at an OpenAI-compatible /audio/speech endpoint.
type SpeechConfig struct {
	URL    string `mapstructure:"url"`
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
	Voice  string `mapstructure:"voice"`
}

// VideoConfig selects the video host. Mode is http, docker or none.
type VideoConfig struct {
	Mode              string `mapstructure:"mode"`
	BaseURL           string `mapstructure:"base_url"`
	APIKey            string `mapstructure:"api_key"`
	PlayerURLTemplate string `mapstructure:"player_url_template"`
	DockerImage       string `mapstructure:"docker_image"`
	MediaDir          string `mapstructure:"media_dir"`
}

type StorageConfig struct {
	Endpoint  string        `mapstructure:"endpoint"`
	AccessKey string        `mapstructure:"access_key"`
	SecretKey string        `mapstructure:"secret_key"`
	Bucket    string        `mapstructure:"bucket"`
	Region    string        `mapstructure:"region"`
	Secure    bool          `mapstructure:"secure"`
	URLExpiry time.Duration `mapstructure:"url_expiry"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type WeatherConfig struct {
	GeocodingURL string        `mapstructure:"geocoding_url"`
	ForecastURL  string        `mapstructure:"forecast_url"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
}

// PollConfig mirrors the asset poll policy.
type PollConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	Step         time.Duration `mapstructure:"step"`
	MinInterval  time.Duration `mapstructure:"min_interval"`
	MaxInterval  time.Duration `mapstructure:"max_interval"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	Timeout      time.Duration `mapstructure:"timeout"`
	CheckTimeout time.Duration `mapstructure:"check_timeout"`
}

type DBConfig struct {
	Path string `mapstructure:"path"`
}

type SchedulerConfig struct {
	MaxConcurrentPolls int64 `mapstructure:"max_concurrent_polls"`
	QueueSize          int   `mapstructure:"queue_size"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.public_url", "http://localhost:8080")
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("log.level", "info")

	v.SetDefault("llm.mode", "ollama")
	v.SetDefault("llm.url", "http://localhost:11434")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "qwen2.5:latest")

	v.SetDefault("image.mode", "comfyui")
	v.SetDefault("image.url", "http://localhost:8188")
	v.SetDefault("image.api_key", "")
	v.SetDefault("image.model", "gpt-image-1")
	v.SetDefault("image.checkpoint", "v1-5-pruned-emaonly.safetensors")

	v.SetDefault("speech.url", "")
	v.SetDefault("speech.api_key", "")
	v.SetDefault("speech.model", "tts-1")
	v.SetDefault("speech.voice", "alloy")

	v.SetDefault("video.mode", "docker")
	v.SetDefault("video.base_url", "")
	v.SetDefault("video.api_key", "")
	v.SetDefault("video.player_url_template", "")
	v.SetDefault("video.docker_image", "jrottenberg/ffmpeg:6.1-alpine")
	v.SetDefault("video.media_dir", "./data/media")

	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.access_key", "minioadmin")
	v.SetDefault("storage.secret_key", "minioadmin")
	v.SetDefault("storage.bucket", "aule-weather")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.secure", false)
	v.SetDefault("storage.url_expiry", 24*time.Hour)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("weather.geocoding_url", "https://geocoding-api.open-meteo.com/v1/search")
	v.SetDefault("weather.forecast_url", "https://api.open-meteo.com/v1/forecast")
	v.SetDefault("weather.cache_ttl", 10*time.Minute)

	v.SetDefault("poll.interval", 2*time.Second)
	v.SetDefault("poll.step", 2*time.Second)
	v.SetDefault("poll.min_interval", time.Second)
	v.SetDefault("poll.max_interval", 10*time.Second)
	v.SetDefault("poll.max_attempts", 30)
	v.SetDefault("poll.timeout", 5*time.Minute)
	v.SetDefault("poll.check_timeout", 15*time.Second)

	v.SetDefault("db.path", "./data/aule-weather.duckdb")

	v.SetDefault("scheduler.max_concurrent_polls", 8)
	v.SetDefault("scheduler.queue_size", 64)

	v.SetDefault("secret_key", "")
}

// Load reads defaults, the optional config file and AULE_* environment variables,
// in increasing order of precedence. Encrypted secrets are opened with secret_key.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path == "" {
		v.SetConfigName("aule-weather")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("AULE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.openSecrets(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return errors.New("server.addr is required")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q is not one of debug|info|warn|error", c.Log.Level)
	}
	switch strings.ToLower(c.LLM.Mode) {
	case "ollama":
	case "openai":
		if c.LLM.URL == "" {
			return errors.New("llm.url is required when llm.mode=openai")
		}
	case "gemini":
		if c.LLM.APIKey == "" {
			return errors.New("llm.api_key is required when llm.mode=gemini")
		}
	default:
		return fmt.Errorf("unsupported llm.mode %q", c.LLM.Mode)
	}
	switch strings.ToLower(c.Image.Mode) {
	case "comfyui", "openai":
		if c.Image.URL == "" {
			return fmt.Errorf("image.url is required when image.mode=%s", c.Image.Mode)
		}
	default:
		return fmt.Errorf("unsupported image.mode %q", c.Image.Mode)
	}
	switch strings.ToLower(c.Video.Mode) {
	case "none", "docker":
	case "http":
		if c.Video.BaseURL == "" {
			return errors.New("video.base_url is required when video.mode=http")
		}
		if !strings.Contains(c.Video.PlayerURLTemplate, "{id}") {
			return errors.New("video.player_url_template must contain {id}")
		}
	default:
		return fmt.Errorf("unsupported video.mode %q", c.Video.Mode)
	}
	if !strings.EqualFold(c.Video.Mode, "none") && c.Storage.Bucket == "" {
		return errors.New("storage.bucket is required for video rendering")
	}
	if err := c.Poll.validate(); err != nil {
		return err
	}
	if c.Scheduler.MaxConcurrentPolls <= 0 {
		return errors.New("scheduler.max_concurrent_polls must be positive")
	}
	return nil
}

func (p PollConfig) validate() error {
	switch {
	case p.MaxAttempts <= 0:
		return errors.New("poll.max_attempts must be positive")
	case p.Timeout <= 0:
		return errors.New("poll.timeout must be positive")
	case p.MaxInterval <= 0:
		return errors.New("poll.max_interval must be positive")
	case p.MinInterval > p.MaxInterval:
		return errors.New("poll.min_interval exceeds poll.max_interval")
	}
	return nil
}

// openSecrets decrypts "enc:" values in place.
func (c *Config) openSecrets() error {
	fields := []*string{
		&c.LLM.APIKey, &c.Image.APIKey, &c.Speech.APIKey,
		&c.Video.APIKey, &c.Storage.SecretKey, &c.Redis.Password,
	}
	var box *SecretBox
	for _, f := range fields {
		if !IsSealed(*f) {
			continue
		}
		if box == nil {
			if c.SecretKey == "" {
				return errors.New("config holds encrypted values but secret_key is not set")
			}
			box = NewSecretBox(c.SecretKey)
		}
		plain, err := box.Open(*f)
		if err != nil {
			return fmt.Errorf("open secret: %w", err)
		}
		*f = plain
	}
	return nil
}

// Redacted returns a copy safe to log.
func (c Config) Redacted() Config {
	c.LLM.APIKey = MaskSecret(c.LLM.APIKey)
	c.Image.APIKey = MaskSecret(c.Image.APIKey)
	c.Speech.APIKey = MaskSecret(c.Speech.APIKey)
	c.Video.APIKey = MaskSecret(c.Video.APIKey)
	c.Storage.SecretKey = MaskSecret(c.Storage.SecretKey)
	c.Redis.Password = MaskSecret(c.Redis.Password)
	c.SecretKey = MaskSecret(c.SecretKey)
	return c
}
