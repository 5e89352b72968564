package ports

import (
	"context"
	"io"
	"time"

	"github.com/manthysbr/aule-weather/internal/core/domain"
)

// VideoHost abstracts the platform that encodes and serves narrated videos.
type VideoHost interface {
	// SubmitRender starts an encode and returns the host's asset id without waiting.
	SubmitRender(ctx context.Context, req domain.RenderRequest) (string, error)

	// GetStatus performs one status query for a submitted asset.
	GetStatus(ctx context.Context, externalID string) (domain.ProviderStatus, error)

	// PlayerURL builds the public player link for an asset. Must not do I/O.
	PlayerURL(externalID string) string
}

// WeatherClient resolves a free-form location to current conditions.
type WeatherClient interface {
	Current(ctx context.Context, location string) (domain.WeatherReport, error)
}

// WeatherCache stores recent reports keyed by normalized location.
type WeatherCache interface {
	Get(ctx context.Context, key string) (domain.WeatherReport, error)
	Set(ctx context.Context, key string, report domain.WeatherReport, ttl time.Duration) error
}

// MediaStore keeps generated media and hands out fetchable URLs.
type MediaStore interface {
	Put(ctx context.Context, name string, body io.Reader, size int64, contentType string) (string, error)
}

// AssetObserver receives poll and outcome measurements.
type AssetObserver interface {
	ObservePoll(result string)
	ObserveOutcome(state domain.AssetState, elapsed time.Duration)
}

// Repository abstracts the persistent storage (DuckDB)
type Repository interface {
	// Conversations
	CreateConversation(ctx context.Context, conv domain.Conversation) error
	GetConversation(ctx context.Context, id domain.ConversationID) (domain.Conversation, error)
	ListConversations(ctx context.Context) ([]domain.Conversation, error)
	DeleteConversation(ctx context.Context, id domain.ConversationID) error

	// Messages
	AddMessage(ctx context.Context, msg domain.Message) error
	ListMessages(ctx context.Context, convID domain.ConversationID, limit int) ([]domain.Message, error)

	// Asset jobs
	SaveAssetJob(ctx context.Context, job domain.AssetJob) error
	GetAssetJob(ctx context.Context, id domain.AssetJobID) (domain.AssetJob, error)
	ListAssetJobs(ctx context.Context, convID domain.ConversationID) ([]domain.AssetJob, error)
}
