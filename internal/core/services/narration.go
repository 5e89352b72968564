package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/manthysbr/aule-weather/internal/core/domain"
	"github.com/manthysbr/aule-weather/internal/core/ports"
)

const maxScriptLen = 600

// NarrationBuilder turns a weather report into everything a video host needs:
// a short script, narration audio and a backdrop image.
type NarrationBuilder struct {
	logger *slog.Logger
	llm    domain.LLMProvider
	speech domain.SpeechProvider
	images domain.ImageProvider
	media  ports.MediaStore
}

func NewNarrationBuilder(
	logger *slog.Logger,
	llm domain.LLMProvider,
	speech domain.SpeechProvider,
	images domain.ImageProvider,
	media ports.MediaStore,
) *NarrationBuilder {
	return &NarrationBuilder{logger: logger, llm: llm, speech: speech, images: images, media: media}
}

// Build produces a render request. Audio or image failures are reported as
// domain.ErrSubmission since no render can be started without them.
func (b *NarrationBuilder) Build(ctx context.Context, report domain.WeatherReport, title string) (domain.RenderRequest, error) {
	if title == "" {
		title = fmt.Sprintf("Weather in %s", report.Location)
	}
	script := b.script(ctx, report)

	if b.speech == nil || b.media == nil || b.images == nil {
		return domain.RenderRequest{}, fmt.Errorf("%w: narration providers are not configured", domain.ErrSubmission)
	}

	audio, contentType, err := b.speech.Synthesize(ctx, script)
	if err != nil {
		return domain.RenderRequest{}, fmt.Errorf("%w: synthesize narration: %w", domain.ErrSubmission, err)
	}
	name := fmt.Sprintf("narration/%s%s", uuid.New().String(), audioExtension(contentType))
	audioURL, err := b.media.Put(ctx, name, bytes.NewReader(audio), int64(len(audio)), contentType)
	if err != nil {
		return domain.RenderRequest{}, fmt.Errorf("%w: upload narration: %w", domain.ErrSubmission, err)
	}

	imageURL, err := b.images.GenerateImage(ctx, backdropPrompt(report))
	if err != nil {
		return domain.RenderRequest{}, fmt.Errorf("%w: render backdrop: %w", domain.ErrSubmission, err)
	}

	b.logger.Info("narration prepared", "location", report.Location, "audio_url", audioURL, "image_url", imageURL)
	return domain.RenderRequest{
		Title:          title,
		Script:         script,
		SourceImageURL: imageURL,
		SourceAudioURL: audioURL,
		Options:        map[string]string{"location": report.Location},
	}, nil
}

// script asks the LLM for a narration and falls back to a fixed template.
func (b *NarrationBuilder) script(ctx context.Context, report domain.WeatherReport) string {
	fallback := TemplateScript(report)
	if b.llm == nil {
		return fallback
	}
	prompt := fmt.Sprintf(
		"Write a friendly two-sentence weather narration for a short video. No markdown, no emojis.\nFacts: %s",
		fallback,
	)
	text, err := b.llm.GenerateText(ctx, prompt)
	if err != nil {
		b.logger.Warn("llm narration failed, using template", "error", err)
		return fallback
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return fallback
	}
	return clip(text, maxScriptLen)
}

// clip shortens s to at most n bytes without splitting a rune.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// TemplateScript is the deterministic narration used when no LLM is available.
func TemplateScript(r domain.WeatherReport) string {
	return fmt.Sprintf(
		"Right now in %s it is %s with %d°C, feeling like %d°C. Humidity is %d%% and the wind is blowing at %d km/h.",
		r.Location, strings.ToLower(r.Condition),
		int(math.Round(r.Temperature)), int(math.Round(r.FeelsLike)),
		int(math.Round(r.Humidity)), int(math.Round(r.WindSpeed)),
	)
}

func backdropPrompt(r domain.WeatherReport) string {
	return fmt.Sprintf("cinematic landscape of %s, %s weather, wide shot, natural light", r.Location, strings.ToLower(r.Condition))
}

func audioExtension(contentType string) string {
	switch contentType {
	case "audio/wav", "audio/x-wav":
		return ".wav"
	case "audio/ogg", "audio/opus":
		return ".ogg"
	default:
		return ".mp3"
	}
}

// errNoNarration is returned by tools when the video pipeline is disabled.
var errNoNarration = errors.New("video narration is not enabled")
