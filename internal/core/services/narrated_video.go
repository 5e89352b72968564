package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/manthysbr/aule-weather/internal/core/domain"
)

type assetRecorder interface {
	SaveAssetJob(ctx context.Context, job domain.AssetJob) error
	GetAssetJob(ctx context.Context, id domain.AssetJobID) (domain.AssetJob, error)
}

// VideoStart is what a caller gets back before any poll has run.
type VideoStart struct {
	Job     domain.AssetJob `json:"job"`
	Message domain.Message  `json:"message"`
}

// NarratedVideoService is the deferred-response seam: it submits a render,
// answers at once with the placeholder message and resolves in the background.
type NarratedVideoService struct {
	logger    *slog.Logger
	poller    *AssetPoller
	composer  *ResponseComposer
	tracker   *AssetTracker
	scheduler *JobScheduler
	convs     *ConversationStore
	bus       *EventBus
	records   assetRecorder
}

func NewNarratedVideoService(
	logger *slog.Logger,
	poller *AssetPoller,
	composer *ResponseComposer,
	tracker *AssetTracker,
	scheduler *JobScheduler,
	convs *ConversationStore,
	bus *EventBus,
	records assetRecorder,
) *NarratedVideoService {
	return &NarratedVideoService{
		logger:    logger,
		poller:    poller,
		composer:  composer,
		tracker:   tracker,
		scheduler: scheduler,
		convs:     convs,
		bus:       bus,
		records:   records,
	}
}

// Start submits the render and returns the immediate message. A submission
// failure is returned synchronously together with the failure message.
func (s *NarratedVideoService) Start(ctx context.Context, convID domain.ConversationID, req domain.RenderRequest) (VideoStart, error) {
	req.ConversationID = convID
	job, err := s.poller.Submit(ctx, req)
	if err != nil {
		s.save(ctx, job)
		msg, composeErr := s.composer.ComposeResolution(job)
		if composeErr != nil {
			return VideoStart{Job: *job}, errors.Join(err, composeErr)
		}
		s.appendMessage(ctx, msg)
		return VideoStart{Job: *job, Message: msg}, err
	}

	msg, err := s.composer.ComposeImmediate(job)
	if err != nil {
		return VideoStart{Job: *job}, err
	}
	s.save(ctx, job)
	s.appendMessage(ctx, msg)

	snapshot := *job
	jobCtx, jobCancel := context.WithCancel(context.Background())
	s.tracker.Track(job, jobCancel)

	// Cancel fires jobCtx directly, so a cancelled job is seen before its first check.
	task := Task{ID: string(job.ID), Run: func(ctx context.Context) {
		stop := context.AfterFunc(ctx, jobCancel)
		defer stop()
		if err := jobCtx.Err(); err != nil {
			s.abandon(ctx, job, err)
			return
		}
		s.resolve(jobCtx, job)
	}}
	if err := s.scheduler.SubmitJob(ctx, task); err != nil {
		// no capacity to poll: give up on the job right away
		s.logger.Error("failed to schedule asset poll", "job_id", string(job.ID), "error", err)
		s.finish(ctx, s.poller.timeOut(job))
	}

	return VideoStart{Job: snapshot, Message: msg}, nil
}

func (s *NarratedVideoService) resolve(ctx context.Context, job *domain.AssetJob) {
	job, err := s.poller.PollUntilTerminal(ctx, job, s.poller.Policy())
	if err != nil {
		s.abandon(ctx, job, err)
		return
	}
	s.finish(ctx, job)
}

// abandon stores the job as it stands without posting a resolution.
func (s *NarratedVideoService) abandon(ctx context.Context, job *domain.AssetJob, err error) {
	s.logger.Info("asset poll abandoned", "job_id", string(job.ID), "state", string(job.State), "error", err)
	s.tracker.Forget(job.ID)
	s.save(ctx, job)
}

// finish delivers the resolution of a terminal job.
func (s *NarratedVideoService) finish(ctx context.Context, job *domain.AssetJob) {
	defer s.tracker.Forget(job.ID)

	msg, err := s.composer.ComposeResolution(job)
	if err != nil {
		s.logger.Error("failed to compose resolution", "job_id", string(job.ID), "error", err)
		return
	}
	s.save(ctx, job)
	s.appendMessage(ctx, msg)
	s.logger.Info("asset resolved", "job_id", string(job.ID), "state", string(job.State), "attempts", job.PollAttempts)
}

// Cancel abandons the background poll. The job keeps its last non-terminal state.
func (s *NarratedVideoService) Cancel(id domain.AssetJobID) error {
	if !s.tracker.Cancel(id) {
		return fmt.Errorf("%w: %s", domain.ErrAssetNotFound, id)
	}
	s.logger.Info("asset poll cancelled by caller", "job_id", string(id))
	return nil
}

// CancelConversation abandons every poll still running for a conversation.
func (s *NarratedVideoService) CancelConversation(id domain.ConversationID) int {
	n := 0
	for _, job := range s.tracker.List() {
		if job.ConversationID == id && s.tracker.Cancel(job.ID) {
			n++
		}
	}
	if n > 0 {
		s.logger.Info("asset polls cancelled with conversation", "conversation_id", string(id), "count", n)
	}
	return n
}

// Status returns the live snapshot when the job is still polling, the stored record otherwise.
func (s *NarratedVideoService) Status(ctx context.Context, id domain.AssetJobID) (domain.AssetJob, error) {
	if job, ok := s.tracker.Get(id); ok {
		return *job, nil
	}
	if s.records == nil {
		return domain.AssetJob{}, fmt.Errorf("%w: %s", domain.ErrAssetNotFound, id)
	}
	return s.records.GetAssetJob(ctx, id)
}

// Pending lists jobs whose poll loop is still running.
func (s *NarratedVideoService) Pending() []domain.AssetJob {
	return s.tracker.List()
}

func (s *NarratedVideoService) save(ctx context.Context, job *domain.AssetJob) {
	if s.records == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.records.SaveAssetJob(ctx, *job); err != nil {
		s.logger.Warn("failed to persist asset job", "job_id", string(job.ID), "error", err)
	}
}

// appendMessage writes a message to its conversation and pushes it to live listeners.
func (s *NarratedVideoService) appendMessage(ctx context.Context, msg domain.Message) {
	if msg.ConversationID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if s.convs != nil {
		if err := s.convs.AddMessage(ctx, msg); err != nil {
			s.logger.Error("failed to persist asset message", "conversation_id", string(msg.ConversationID), "error", err)
		}
	}
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("failed to marshal asset message", "error", err)
		return
	}
	s.bus.Publish(Event{
		JobID:     string(msg.ConversationID),
		Type:      EventTypeNewMessage,
		Data:      string(payload),
		Timestamp: msg.CreatedAt.UnixMilli(),
	})
}
