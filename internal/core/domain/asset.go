package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AssetJobID identifies one render submission tracked by the kernel.
type AssetJobID string

// AssetState is the readiness state of a rendered asset.
type AssetState string

const (
	AssetStateSubmitting AssetState = "submitting"
	AssetStatePreparing  AssetState = "preparing"
	AssetStateReady      AssetState = "ready"
	AssetStateErrored    AssetState = "errored"
	AssetStateTimedOut   AssetState = "timed_out"
)

// assetTransitions lists every allowed edge. Terminal states have none.
var assetTransitions = map[AssetState][]AssetState{
	AssetStateSubmitting: {AssetStatePreparing, AssetStateErrored},
	AssetStatePreparing:  {AssetStateReady, AssetStateErrored, AssetStateTimedOut},
}

// IsTerminal reports whether no further transition is defined from s.
func (s AssetState) IsTerminal() bool {
	return s == AssetStateReady || s == AssetStateErrored || s == AssetStateTimedOut
}

// CanTransitionTo reports whether s -> next is an allowed edge.
func (s AssetState) CanTransitionTo(next AssetState) bool {
	for _, to := range assetTransitions[s] {
		if to == next {
			return true
		}
	}
	return false
}

// AssetJob is one outstanding media-rendering request.
type AssetJob struct {
	ID              AssetJobID     `json:"id"`
	ConversationID  ConversationID `json:"conversation_id,omitempty"`
	Title           string         `json:"title,omitempty"`
	ExternalAssetID string         `json:"external_asset_id,omitempty"`
	State           AssetState     `json:"state"`
	CreatedAt       time.Time      `json:"created_at"`
	LastPolledAt    time.Time      `json:"last_polled_at,omitempty"`
	Deadline        time.Time      `json:"deadline"`
	PollAttempts    int            `json:"poll_attempts"`
	PlayerURL       string         `json:"player_url,omitempty"`
	ErrorDetail     string         `json:"error_detail,omitempty"`
}

// AssetTransition records a single state change of a job.
type AssetTransition struct {
	JobID     AssetJobID `json:"job_id"`
	From      AssetState `json:"from"`
	To        AssetState `json:"to"`
	Attempts  int        `json:"attempts"`
	Timestamp time.Time  `json:"timestamp"`
}

var (
	ErrAssetNotFound      = errors.New("asset job not found")
	ErrInvalidTransition  = errors.New("invalid asset state transition")
	ErrPlayerURLImmutable = errors.New("player url already set")
	ErrPlayerURLUnknown   = errors.New("player url not known yet")
	ErrAssetNotTerminal   = errors.New("asset job is not terminal")

	// ErrSubmission is fatal for a job and never retried.
	ErrSubmission = errors.New("render submission failed")
	// ErrTransientCheck marks an inconclusive status check.
	ErrTransientCheck = errors.New("transient status check failure")
	// ErrProviderTerminal means the host reported the encode itself failed.
	ErrProviderTerminal = errors.New("provider reported asset failure")
)

// NewAssetJob creates a job in the submitting state.
func NewAssetJob(convID ConversationID, title string, now time.Time, deadline time.Time) *AssetJob {
	return &AssetJob{
		ID:             AssetJobID("asset-" + uuid.New().String()),
		ConversationID: convID,
		Title:          title,
		State:          AssetStateSubmitting,
		CreatedAt:      now,
		Deadline:       deadline,
	}
}

// Advance moves the job to next, enforcing the transition table.
func (j *AssetJob) Advance(next AssetState, at time.Time) (AssetTransition, error) {
	if !j.State.CanTransitionTo(next) {
		return AssetTransition{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.State, next)
	}
	t := AssetTransition{JobID: j.ID, From: j.State, To: next, Attempts: j.PollAttempts, Timestamp: at}
	j.State = next
	return t, nil
}

// Accept records a successful submission: external id, player url and the move to preparing.
func (j *AssetJob) Accept(externalID, playerURL string, at time.Time) (AssetTransition, error) {
	if j.State != AssetStateSubmitting {
		return AssetTransition{}, fmt.Errorf("%w: accept in state %s", ErrInvalidTransition, j.State)
	}
	if j.PlayerURL != "" && j.PlayerURL != playerURL {
		return AssetTransition{}, ErrPlayerURLImmutable
	}
	j.ExternalAssetID = externalID
	j.PlayerURL = playerURL
	return j.Advance(AssetStatePreparing, at)
}

// Fail moves the job to errored with detail.
func (j *AssetJob) Fail(detail string, at time.Time) (AssetTransition, error) {
	t, err := j.Advance(AssetStateErrored, at)
	if err != nil {
		return t, err
	}
	j.ErrorDetail = detail
	return t, nil
}

// Clone returns a copy safe to hand to other goroutines.
func (j *AssetJob) Clone() *AssetJob {
	c := *j
	return &c
}

// RenderRequest is what the video host needs to produce a narrated video.
type RenderRequest struct {
	ConversationID ConversationID    `json:"conversation_id,omitempty"`
	Title          string            `json:"title"`
	Script         string            `json:"script"`
	SourceImageURL string            `json:"source_image_url"`
	SourceAudioURL string            `json:"source_audio_url"`
	Options        map[string]string `json:"options,omitempty"`
}

// ProviderAssetState is the raw state reported by a video host.
type ProviderAssetState string

const (
	ProviderPreparing ProviderAssetState = "preparing"
	ProviderReady     ProviderAssetState = "ready"
	ProviderErrored   ProviderAssetState = "errored"
	ProviderFailed    ProviderAssetState = "failed"
)

// ProviderStatus is one status answer from a video host.
type ProviderStatus struct {
	State       ProviderAssetState
	ErrorDetail string
}

// ProviderError carries the HTTP status a provider answered with.
// StatusCode 0 means the request never got an answer.
type ProviderError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("provider unreachable: %s", e.Message)
	}
	return fmt.Sprintf("provider returned status %d: %s", e.StatusCode, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Transient reports whether retrying the same call may succeed.
func (e *ProviderError) Transient() bool {
	return e.StatusCode == 0 || e.StatusCode >= 500 || e.StatusCode == 429
}
