package services

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/manthysbr/aule-weather/internal/core/domain"
)

// ResponseComposer writes the two user-facing messages of a deferred render:
// the immediate placeholder and the final resolution.
type ResponseComposer struct {
	logger *slog.Logger
	bus    *EventBus
	now    func() time.Time
}

func NewResponseComposer(logger *slog.Logger, bus *EventBus) *ResponseComposer {
	return &ResponseComposer{logger: logger, bus: bus, now: time.Now}
}

// ComposeImmediate needs nothing but the player URL, so it never waits on a poll.
func (c *ResponseComposer) ComposeImmediate(job *domain.AssetJob) (domain.Message, error) {
	if job.PlayerURL == "" {
		return domain.Message{}, domain.ErrPlayerURLUnknown
	}
	content := fmt.Sprintf(
		"⏳ Your video%s is processing. It will be playable here in a minute or two: %s",
		titleSuffix(job.Title), job.PlayerURL,
	)
	msg := c.message(job, content, "processing")
	c.emit(job, "immediate")
	return msg, nil
}

// ComposeResolution describes a terminal job. Failures degrade to an informative
// message and never to an error, except when the job is not terminal yet.
func (c *ResponseComposer) ComposeResolution(job *domain.AssetJob) (domain.Message, error) {
	if !job.State.IsTerminal() {
		return domain.Message{}, fmt.Errorf("%w: %s", domain.ErrAssetNotTerminal, job.State)
	}

	var content string
	switch {
	case job.State == domain.AssetStateReady:
		content = fmt.Sprintf("✅ Your video%s is ready to play: %s", titleSuffix(job.Title), job.PlayerURL)
	case job.PlayerURL == "":
		content = fmt.Sprintf("❌ I couldn't start the video render%s: %s. The weather summary above is still accurate.",
			titleSuffix(job.Title), detailOr(job.ErrorDetail, "the video host rejected the request"))
	case job.State == domain.AssetStateTimedOut:
		content = fmt.Sprintf("⚠️ Your video%s is taking longer than expected. It may still finish; try the link again later: %s",
			titleSuffix(job.Title), job.PlayerURL)
	default:
		content = fmt.Sprintf("⚠️ The video%s could not be encoded (%s). The link may show an error page: %s",
			titleSuffix(job.Title), detailOr(job.ErrorDetail, "unknown error"), job.PlayerURL)
	}

	msg := c.message(job, content, string(job.State))
	c.emit(job, "resolution")
	return msg, nil
}

func (c *ResponseComposer) message(job *domain.AssetJob, content, status string) domain.Message {
	meta := map[string]interface{}{
		"asset_id": string(job.ID),
		"state":    string(job.State),
		"status":   status,
	}
	if job.PlayerURL != "" {
		meta["player_url"] = job.PlayerURL
	}
	return domain.Message{
		ID:             domain.NewMessageID(),
		ConversationID: job.ConversationID,
		Role:           domain.RoleTool,
		Content:        content,
		Metadata:       meta,
		CreatedAt:      c.now(),
	}
}

func (c *ResponseComposer) emit(job *domain.AssetJob, kind string) {
	if c.bus == nil {
		return
	}
	payload, err := json.Marshal(map[string]interface{}{
		"job_id":     string(job.ID),
		"kind":       kind,
		"state":      string(job.State),
		"player_url": job.PlayerURL,
	})
	if err != nil {
		c.logger.Error("failed to marshal compose event", "job_id", string(job.ID), "error", err)
		return
	}
	c.bus.Publish(Event{JobID: string(job.ID), Type: EventTypeCompose, Data: string(payload), Timestamp: c.now().UnixMilli()})
}

func titleSuffix(title string) string {
	if title == "" {
		return ""
	}
	return fmt.Sprintf(" %q", title)
}

func detailOr(detail, fallback string) string {
	if detail == "" {
		return fallback
	}
	return detail
}
