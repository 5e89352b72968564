package domain

import (
	"context"
	"errors"
	"time"
)

// ToolCall represents an intent execution by the agent
type ToolCall struct {
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`
}

// ImageProvider renders an image for a prompt and returns a fetchable URL.
type ImageProvider interface {
	GenerateImage(ctx context.Context, prompt string) (string, error)
}

// LLMProvider defines the interface for LLM services
type LLMProvider interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// SpeechProvider turns narration text into encoded audio.
type SpeechProvider interface {
	Synthesize(ctx context.Context, text string) (audio []byte, contentType string, err error)
}

// WeatherReport is the current conditions for one resolved location.
type WeatherReport struct {
	Location    string    `json:"location"`
	Country     string    `json:"country,omitempty"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	Temperature float64   `json:"temperature"`
	FeelsLike   float64   `json:"feels_like"`
	Humidity    float64   `json:"humidity"`
	WindSpeed   float64   `json:"wind_speed"`
	WindGust    float64   `json:"wind_gust"`
	Code        int       `json:"weather_code"`
	Condition   string    `json:"condition"`
	ObservedAt  time.Time `json:"observed_at"`
}

var (
	ErrLocationNotFound = errors.New("location not found")
	ErrCacheMiss        = errors.New("cache miss")
)
