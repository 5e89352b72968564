package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/manthysbr/aule-weather/internal/core/domain"
	"github.com/manthysbr/aule-weather/internal/core/ports"
)

var errNotSubmitted = errors.New("asset job has not been submitted")

// AssetPoller submits renders to a video host and tracks them to a terminal state.
// A poller holds no per-job state; each AssetJob is owned by one caller at a time.
type AssetPoller struct {
	logger   *slog.Logger
	host     ports.VideoHost
	bus      *EventBus
	observer ports.AssetObserver
	tracker  *AssetTracker
	policy   PollPolicy

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

type PollerOption func(*AssetPoller)

// WithClock replaces the wall clock and the inter-poll sleeper.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) PollerOption {
	return func(p *AssetPoller) {
		p.now = now
		p.sleep = sleep
	}
}

// WithTracker keeps tracker snapshots current after every check.
func WithTracker(t *AssetTracker) PollerOption {
	return func(p *AssetPoller) { p.tracker = t }
}

// WithObserver attaches a metrics sink.
func WithObserver(o ports.AssetObserver) PollerOption {
	return func(p *AssetPoller) { p.observer = o }
}

func NewAssetPoller(logger *slog.Logger, host ports.VideoHost, bus *EventBus, policy PollPolicy, opts ...PollerOption) *AssetPoller {
	p := &AssetPoller{
		logger: logger,
		host:   host,
		bus:    bus,
		policy: policy,
		now:    time.Now,
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Policy returns the default policy jobs are submitted with.
func (p *AssetPoller) Policy() PollPolicy { return p.policy }

// PlayerURL is the host's deterministic player link for an external asset id.
func (p *AssetPoller) PlayerURL(externalID string) string {
	return p.host.PlayerURL(externalID)
}

// Submit starts a render. On success the job is preparing and carries its player URL.
// On failure the job is errored and the error wraps domain.ErrSubmission.
func (p *AssetPoller) Submit(ctx context.Context, req domain.RenderRequest) (*domain.AssetJob, error) {
	now := p.now()
	job := domain.NewAssetJob(req.ConversationID, req.Title, now, now.Add(p.policy.Timeout))

	externalID, err := p.host.SubmitRender(ctx, req)
	if err == nil && strings.TrimSpace(externalID) == "" {
		err = errors.New("video host returned an empty asset id")
	}
	if err != nil {
		p.logger.Error("render submission failed", "job_id", string(job.ID), "error", err)
		p.fail(job, err.Error())
		return job, fmt.Errorf("%w: %w", domain.ErrSubmission, err)
	}

	t, err := job.Accept(externalID, p.host.PlayerURL(externalID), p.now())
	if err != nil {
		return job, err
	}
	p.record(job, t)
	p.logger.Info("render submitted", "job_id", string(job.ID), "asset_id", externalID, "player_url", job.PlayerURL)
	return job, nil
}

// CheckOnce performs exactly one status query and folds the answer into job.
// Transient failures leave the state alone and return an error wrapping
// domain.ErrTransientCheck. Provider-side failures move the job to errored
// and return an error wrapping domain.ErrProviderTerminal.
func (p *AssetPoller) CheckOnce(ctx context.Context, job *domain.AssetJob) (*domain.AssetJob, error) {
	if job.State.IsTerminal() {
		return job, nil
	}
	if job.State == domain.AssetStateSubmitting || job.ExternalAssetID == "" {
		return job, errNotSubmitted
	}

	status, err := p.query(ctx, job)
	return job, p.apply(job, status, err)
}

// query performs the status call and counts the attempt.
func (p *AssetPoller) query(ctx context.Context, job *domain.AssetJob) (domain.ProviderStatus, error) {
	status, err := p.host.GetStatus(ctx, job.ExternalAssetID)
	job.PollAttempts++
	job.LastPolledAt = p.now()
	return status, err
}

// apply folds one status answer into job.
func (p *AssetPoller) apply(job *domain.AssetJob, status domain.ProviderStatus, err error) error {
	if err != nil {
		var perr *domain.ProviderError
		if errors.As(err, &perr) && !perr.Transient() {
			p.observePoll("errored")
			p.fail(job, perr.Error())
			return fmt.Errorf("%w: %w", domain.ErrProviderTerminal, err)
		}
		p.observePoll("transient")
		p.logger.Warn("asset status check inconclusive", "job_id", string(job.ID), "attempt", job.PollAttempts, "error", err)
		return fmt.Errorf("%w: %w", domain.ErrTransientCheck, err)
	}

	switch status.State {
	case domain.ProviderPreparing:
		p.observePoll("preparing")
		return nil
	case domain.ProviderReady:
		p.observePoll("ready")
		t, err := job.Advance(domain.AssetStateReady, p.now())
		if err != nil {
			return err
		}
		p.record(job, t)
		return nil
	case domain.ProviderErrored, domain.ProviderFailed:
		p.observePoll("errored")
		detail := status.ErrorDetail
		if detail == "" {
			detail = "video host reported the encode failed"
		}
		p.fail(job, detail)
		return fmt.Errorf("%w: %s", domain.ErrProviderTerminal, detail)
	default:
		p.observePoll("transient")
		return fmt.Errorf("%w: unknown provider state %q", domain.ErrTransientCheck, status.State)
	}
}

// PollUntilTerminal checks the job with policy-driven delays until it is terminal,
// the attempt budget is spent or the deadline passes. The last two time the job out.
// Cancellation of ctx leaves the job non-terminal and returns ctx.Err(). An answer
// that arrives after cancellation only counts as an attempt.
func (p *AssetPoller) PollUntilTerminal(ctx context.Context, job *domain.AssetJob, policy PollPolicy) (*domain.AssetJob, error) {
	if err := policy.Validate(); err != nil {
		return job, err
	}
	if job.State.IsTerminal() {
		return job, nil
	}
	if job.State == domain.AssetStateSubmitting || job.ExternalAssetID == "" {
		return job, errNotSubmitted
	}

	deadline := job.Deadline
	if deadline.IsZero() {
		deadline = job.CreatedAt.Add(policy.Timeout)
	}
	exhausted := func() bool {
		return job.PollAttempts >= policy.MaxAttempts || !p.now().Before(deadline)
	}

	for {
		if err := ctx.Err(); err != nil {
			p.logger.Info("asset polling cancelled", "job_id", string(job.ID), "attempts", job.PollAttempts)
			return job, err
		}
		if exhausted() {
			return p.timeOut(job), nil
		}

		// an in-flight query is not aborted by cancellation, only bounded by CheckTimeout
		checkCtx := context.WithoutCancel(ctx)
		var cancel context.CancelFunc = func() {}
		if policy.CheckTimeout > 0 {
			checkCtx, cancel = context.WithTimeout(checkCtx, policy.CheckTimeout)
		}
		status, err := p.query(checkCtx, job)
		cancel()
		if ctxErr := ctx.Err(); ctxErr != nil {
			if p.tracker != nil {
				p.tracker.Update(job)
			}
			p.logger.Info("asset polling cancelled", "job_id", string(job.ID), "attempts", job.PollAttempts, "discarded_state", string(status.State))
			return job, ctxErr
		}
		err = p.apply(job, status, err)
		if p.tracker != nil {
			p.tracker.Update(job)
		}
		if err != nil && !errors.Is(err, domain.ErrTransientCheck) && !errors.Is(err, domain.ErrProviderTerminal) {
			return job, err
		}
		if job.State.IsTerminal() {
			return job, nil
		}
		if exhausted() {
			return p.timeOut(job), nil
		}

		if err := ctx.Err(); err != nil {
			p.logger.Info("asset polling cancelled", "job_id", string(job.ID), "attempts", job.PollAttempts)
			return job, err
		}
		if err := p.sleep(ctx, policy.Delay(job.PollAttempts)); err != nil {
			p.logger.Info("asset polling cancelled", "job_id", string(job.ID), "attempts", job.PollAttempts)
			return job, err
		}
	}
}

func (p *AssetPoller) timeOut(job *domain.AssetJob) *domain.AssetJob {
	t, err := job.Advance(domain.AssetStateTimedOut, p.now())
	if err != nil {
		p.logger.Error("failed to time out asset job", "job_id", string(job.ID), "error", err)
		return job
	}
	p.logger.Warn("asset polling gave up", "job_id", string(job.ID), "attempts", job.PollAttempts)
	p.record(job, t)
	return job
}

func (p *AssetPoller) fail(job *domain.AssetJob, detail string) {
	t, err := job.Fail(detail, p.now())
	if err != nil {
		p.logger.Error("failed to mark asset job errored", "job_id", string(job.ID), "error", err)
		return
	}
	p.record(job, t)
}

// record logs, publishes and measures a transition.
func (p *AssetPoller) record(job *domain.AssetJob, t domain.AssetTransition) {
	p.logger.Info("asset state changed",
		"job_id", string(t.JobID),
		"from", string(t.From),
		"to", string(t.To),
		"attempts", t.Attempts,
	)
	if p.tracker != nil {
		p.tracker.Update(job)
	}
	if p.bus != nil {
		p.bus.PublishTransition(job.ConversationID, t)
	}
	if p.observer != nil && t.To.IsTerminal() {
		p.observer.ObserveOutcome(t.To, t.Timestamp.Sub(job.CreatedAt))
	}
}

func (p *AssetPoller) observePoll(result string) {
	if p.observer != nil {
		p.observer.ObservePoll(result)
	}
}
