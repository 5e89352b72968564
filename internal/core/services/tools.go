package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/manthysbr/aule-weather/internal/core/domain"
)

// NewGetWeatherTool creates the current-conditions lookup tool
func NewGetWeatherTool(weather *WeatherService) *domain.Tool {
	return &domain.Tool{
		Name:        "get_weather",
		Description: "Returns current temperature, humidity, wind and conditions for a city or place name",
		Parameters: domain.ToolParameters{
			Type: "object",
			Properties: map[string]interface{}{
				"location": map[string]interface{}{
					"type":        "string",
					"description": "City or place name, e.g. \"Lisbon\"",
				},
			},
			Required: []string{"location"},
		},
		Execute: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			location, err := stringParam(params, "location", true)
			if err != nil {
				return nil, err
			}
			report, err := weather.Current(ctx, location)
			if err != nil {
				return nil, err
			}
			return report, nil
		},
	}
}

// NewWeatherVideoTool creates the narrated weather video tool. It answers with
// a player URL immediately and posts the final result to the conversation later.
func NewWeatherVideoTool(weather *WeatherService, narration *NarrationBuilder, videos *NarratedVideoService) *domain.Tool {
	return &domain.Tool{
		Name:        "create_weather_video",
		Description: "Renders a short narrated weather video for a location. Returns a player link right away; the video finishes processing in the background",
		Deferred:    true,
		Parameters: domain.ToolParameters{
			Type: "object",
			Properties: map[string]interface{}{
				"location": map[string]interface{}{
					"type":        "string",
					"description": "City or place name",
				},
				"title": map[string]interface{}{
					"type":        "string",
					"description": "Optional video title",
				},
			},
			Required: []string{"location"},
		},
		Execute: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			location, err := stringParam(params, "location", true)
			if err != nil {
				return nil, err
			}
			title, err := stringParam(params, "title", false)
			if err != nil {
				return nil, err
			}
			if narration == nil || videos == nil {
				return nil, errNoNarration
			}

			report, err := weather.Current(ctx, location)
			if err != nil {
				return nil, err
			}
			req, err := narration.Build(ctx, report, title)
			if err != nil {
				return nil, err
			}

			convID, _ := ConversationFromContext(ctx)
			started, err := videos.Start(ctx, convID, req)
			if err != nil {
				if errors.Is(err, domain.ErrSubmission) {
					return map[string]interface{}{
						"status":  "failed",
						"job_id":  string(started.Job.ID),
						"message": started.Message.Content,
					}, err
				}
				return nil, err
			}
			return map[string]interface{}{
				"status":     "processing",
				"job_id":     string(started.Job.ID),
				"player_url": started.Job.PlayerURL,
				"message":    started.Message.Content,
			}, nil
		},
	}
}

// NewAssetStatusTool reports the state of a rendered video
func NewAssetStatusTool(videos *NarratedVideoService) *domain.Tool {
	return &domain.Tool{
		Name:        "asset_status",
		Description: "Returns the processing state and player link of a video started by create_weather_video",
		Parameters: domain.ToolParameters{
			Type: "object",
			Properties: map[string]interface{}{
				"job_id": map[string]interface{}{"type": "string", "description": "The job_id returned by create_weather_video"},
			},
			Required: []string{"job_id"},
		},
		Execute: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			id, err := stringParam(params, "job_id", true)
			if err != nil {
				return nil, err
			}
			job, err := videos.Status(ctx, domain.AssetJobID(id))
			if err != nil {
				return nil, err
			}
			return job, nil
		},
	}
}

// NewCancelAssetTool stops waiting for a video. The render itself is not aborted.
func NewCancelAssetTool(videos *NarratedVideoService) *domain.Tool {
	return &domain.Tool{
		Name:        "cancel_asset",
		Description: "Stops tracking a video that is still processing",
		Parameters: domain.ToolParameters{
			Type: "object",
			Properties: map[string]interface{}{
				"job_id": map[string]interface{}{"type": "string"},
			},
			Required: []string{"job_id"},
		},
		Execute: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			id, err := stringParam(params, "job_id", true)
			if err != nil {
				return nil, err
			}
			if err := videos.Cancel(domain.AssetJobID(id)); err != nil {
				return nil, err
			}
			return map[string]interface{}{"status": "cancelled", "job_id": id}, nil
		},
	}
}

// RegisterWeatherTools registers every tool the weather agent exposes.
func RegisterWeatherTools(reg *domain.ToolRegistry, weather *WeatherService, narration *NarrationBuilder, videos *NarratedVideoService) error {
	tools := []*domain.Tool{NewGetWeatherTool(weather)}
	if videos != nil {
		tools = append(tools,
			NewWeatherVideoTool(weather, narration, videos),
			NewAssetStatusTool(videos),
			NewCancelAssetTool(videos),
		)
	}
	for _, tool := range tools {
		if err := reg.Register(tool); err != nil {
			return fmt.Errorf("register %s: %w", tool.Name, err)
		}
	}
	return nil
}

func stringParam(params map[string]interface{}, name string, required bool) (string, error) {
	raw, ok := params[name]
	if !ok || raw == nil {
		if required {
			return "", fmt.Errorf("missing required parameter: %s", name)
		}
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string", name)
	}
	if required && s == "" {
		return "", fmt.Errorf("missing required parameter: %s", name)
	}
	return s, nil
}
