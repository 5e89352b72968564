package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/manthysbr/aule-weather/internal/core/domain"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}

// fakeClock advances only when the poller sleeps.
type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	slept []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.slept = append(c.slept, d)
	return nil
}

func (c *fakeClock) Slept() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.slept...)
}

type MockVideoHost struct {
	mock.Mock
}

func (m *MockVideoHost) SubmitRender(ctx context.Context, req domain.RenderRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockVideoHost) GetStatus(ctx context.Context, externalID string) (domain.ProviderStatus, error) {
	args := m.Called(ctx, externalID)
	return args.Get(0).(domain.ProviderStatus), args.Error(1)
}

func (m *MockVideoHost) PlayerURL(externalID string) string {
	return "https://player.example.com/v/" + externalID
}

var (
	statusPreparing = domain.ProviderStatus{State: domain.ProviderPreparing}
	statusReady     = domain.ProviderStatus{State: domain.ProviderReady}
	networkErr      = &domain.ProviderError{StatusCode: 0, Message: "connection reset"}
)

type fakeObserver struct {
	mu       sync.Mutex
	polls    []string
	outcomes []domain.AssetState
	cache    []string
}

func (o *fakeObserver) ObservePoll(result string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.polls = append(o.polls, result)
}

func (o *fakeObserver) ObserveOutcome(state domain.AssetState, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, state)
}

func (o *fakeObserver) ObserveCache(result string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cache = append(o.cache, result)
}

// memRepo is an in-memory ports.Repository.
type memRepo struct {
	mu       sync.Mutex
	convs    map[domain.ConversationID]domain.Conversation
	messages map[domain.ConversationID][]domain.Message
	assets   map[domain.AssetJobID]domain.AssetJob
}

func newMemRepo() *memRepo {
	return &memRepo{
		convs:    map[domain.ConversationID]domain.Conversation{},
		messages: map[domain.ConversationID][]domain.Message{},
		assets:   map[domain.AssetJobID]domain.AssetJob{},
	}
}

func (r *memRepo) CreateConversation(_ context.Context, conv domain.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.convs[conv.ID] = conv
	return nil
}

func (r *memRepo) GetConversation(_ context.Context, id domain.ConversationID) (domain.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.convs[id]
	if !ok {
		return domain.Conversation{}, domain.ErrConversationNotFound
	}
	return conv, nil
}

func (r *memRepo) ListConversations(_ context.Context) ([]domain.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Conversation, 0, len(r.convs))
	for _, c := range r.convs {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (r *memRepo) DeleteConversation(_ context.Context, id domain.ConversationID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.convs, id)
	delete(r.messages, id)
	return nil
}

func (r *memRepo) AddMessage(_ context.Context, msg domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages[msg.ConversationID] = append(r.messages[msg.ConversationID], msg)
	return nil
}

func (r *memRepo) ListMessages(_ context.Context, convID domain.ConversationID, limit int) ([]domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := r.messages[convID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]domain.Message(nil), msgs...), nil
}

func (r *memRepo) SaveAssetJob(_ context.Context, job domain.AssetJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assets[job.ID] = job
	return nil
}

func (r *memRepo) GetAssetJob(_ context.Context, id domain.AssetJobID) (domain.AssetJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.assets[id]
	if !ok {
		return domain.AssetJob{}, domain.ErrAssetNotFound
	}
	return job, nil
}

func (r *memRepo) ListAssetJobs(_ context.Context, convID domain.ConversationID) ([]domain.AssetJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.AssetJob
	for _, j := range r.assets {
		if convID == "" || j.ConversationID == convID {
			out = append(out, j)
		}
	}
	return out, nil
}

// scriptedLLM replays canned responses in order and records prompts.
type scriptedLLM struct {
	mu        sync.Mutex
	responses []string
	prompts   []string
	err       error
}

func (l *scriptedLLM) GenerateText(_ context.Context, prompt string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prompts = append(l.prompts, prompt)
	if l.err != nil {
		return "", l.err
	}
	if len(l.responses) == 0 {
		return "Final Answer: done", nil
	}
	r := l.responses[0]
	l.responses = l.responses[1:]
	return r, nil
}

func stateFromEvent(t *testing.T, e Event) domain.AssetState {
	t.Helper()
	var tr domain.AssetTransition
	require.NoError(t, json.Unmarshal([]byte(e.Data), &tr))
	return tr.To
}

type fakeWeatherClient struct {
	mu     sync.Mutex
	calls  int
	report domain.WeatherReport
	err    error
}

func (c *fakeWeatherClient) Current(_ context.Context, location string) (domain.WeatherReport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return domain.WeatherReport{}, c.err
	}
	r := c.report
	if r.Location == "" {
		r.Location = location
	}
	return r, nil
}

func (c *fakeWeatherClient) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type memCache struct {
	mu      sync.Mutex
	items   map[string]domain.WeatherReport
	getErr  error
	lastTTL time.Duration
}

func newMemCache() *memCache {
	return &memCache{items: map[string]domain.WeatherReport{}}
}

func (c *memCache) Get(_ context.Context, key string) (domain.WeatherReport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return domain.WeatherReport{}, c.getErr
	}
	r, ok := c.items[key]
	if !ok {
		return domain.WeatherReport{}, domain.ErrCacheMiss
	}
	return r, nil
}

func (c *memCache) Set(_ context.Context, key string, report domain.WeatherReport, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = report
	c.lastTTL = ttl
	return nil
}

type fakeSpeech struct {
	err   error
	texts []string
}

func (s *fakeSpeech) Synthesize(_ context.Context, text string) ([]byte, string, error) {
	s.texts = append(s.texts, text)
	if s.err != nil {
		return nil, "", s.err
	}
	return []byte("ID3-audio"), "audio/mpeg", nil
}

type fakeImages struct {
	err     error
	prompts []string
}

func (i *fakeImages) GenerateImage(_ context.Context, prompt string) (string, error) {
	i.prompts = append(i.prompts, prompt)
	if i.err != nil {
		return "", i.err
	}
	return "https://media.example.com/backdrop.png", nil
}

type memMedia struct {
	mu    sync.Mutex
	names []string
	err   error
}

func (m *memMedia) Put(_ context.Context, name string, body io.Reader, size int64, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	if int64(len(data)) != size {
		return "", fmt.Errorf("size mismatch: %d != %d", len(data), size)
	}
	m.names = append(m.names, name)
	return "https://media.example.com/" + name, nil
}

var lisbonReport = domain.WeatherReport{
	Location:    "Lisbon",
	Country:     "Portugal",
	Temperature: 21.4,
	FeelsLike:   20.6,
	Humidity:    64,
	WindSpeed:   13.2,
	Code:        1,
	Condition:   "Mainly clear",
}
