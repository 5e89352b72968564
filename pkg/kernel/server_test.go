package kernel

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/manthysbr/aule-weather/internal/adapters/duckdb"
	"github.com/manthysbr/aule-weather/internal/core/domain"
	"github.com/manthysbr/aule-weather/internal/core/services"
	"github.com/manthysbr/aule-weather/pkg/mcp"
)

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

type scriptedLLM struct {
	mu        sync.Mutex
	responses []string
}

func (l *scriptedLLM) GenerateText(_ context.Context, _ string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.responses) == 0 {
		return "Final Answer: done", nil
	}
	r := l.responses[0]
	l.responses = l.responses[1:]
	return r, nil
}

type stubWeather struct{}

func (stubWeather) Current(_ context.Context, location string) (domain.WeatherReport, error) {
	if location == "Atlantis" {
		return domain.WeatherReport{}, domain.ErrLocationNotFound
	}
	return domain.WeatherReport{Location: location, Temperature: 21.4, Condition: "Mainly clear"}, nil
}

type harness struct {
	srv    *httptest.Server
	repo   *duckdb.Repository
	llm    *scriptedLLM
	host   *MockVideoHost
	videos *services.NarratedVideoService
	bus    *services.EventBus
	media  string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	repo, err := duckdb.NewRepository(t.TempDir() + "/kernel.duckdb")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	h := &harness{repo: repo, llm: &scriptedLLM{}, host: new(MockVideoHost), media: t.TempDir()}
	h.bus = services.NewEventBus(logger)
	convs := services.NewConversationStore(repo, 16)
	tracker := services.NewAssetTracker()
	// the scheduler is never started so jobs stay in preparing
	scheduler := services.NewJobScheduler(logger, services.SchedulerConfig{MaxConcurrentJobs: 1, QueueSize: 16})
	poller := services.NewAssetPoller(logger, h.host, h.bus, services.DefaultPollPolicy(), services.WithTracker(tracker))
	h.videos = services.NewNarratedVideoService(logger, poller, services.NewResponseComposer(logger, h.bus), tracker, scheduler, convs, h.bus, repo)

	tools := domain.NewToolRegistry()
	weather := services.NewWeatherService(logger, stubWeather{}, nil, 0, nil)
	require.NoError(t, services.RegisterWeatherTools(tools, weather, nil, h.videos))

	spec, err := LoadSpec(context.Background())
	require.NoError(t, err)

	server := NewServer(logger, spec, Deps{
		Agent:    services.NewReActAgentService(logger, h.llm, tools, convs),
		Convs:    convs,
		Videos:   h.videos,
		Tools:    tools,
		Bus:      h.bus,
		MCP:      mcp.NewServer(logger, tools, "test"),
		Metrics:  http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("aule_up 1\n")) }),
		MediaDir: h.media,
	})
	server.heartbeat = 20 * time.Millisecond
	h.srv = httptest.NewServer(server.Handler())
	t.Cleanup(h.srv.Close)
	return h
}

func (h *harness) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, h.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func TestServer_ChatWithTool(t *testing.T) {
	h := newHarness(t)
	h.llm.responses = []string{
		"Thought: I need the weather\nAction: get_weather\nAction Input: {\"location\": \"Lisbon\"}",
		"Thought: done\nFinal Answer: It is 21°C and mainly clear in Lisbon.",
	}

	resp, body := h.do(t, http.MethodPost, "/v1/chat", `{"message":"How warm is Lisbon?"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var out domain.AgentResponse
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, "It is 21°C and mainly clear in Lisbon.", out.Response)
	assert.NotEmpty(t, out.ConversationID)
	require.Len(t, out.Steps, 2)
	assert.Contains(t, out.Steps[0].Observation, "Mainly clear")

	resp, body = h.do(t, http.MethodGet, "/v1/conversations/"+string(out.ConversationID)+"/messages?limit=10", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var msgs []domain.Message
	require.NoError(t, json.Unmarshal(body, &msgs))
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.RoleUser, msgs[0].Role)
	assert.Equal(t, domain.RoleAssistant, msgs[1].Role)

	resp, body = h.do(t, http.MethodGet, "/v1/conversations", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var convs []domain.Conversation
	require.NoError(t, json.Unmarshal(body, &convs))
	assert.Len(t, convs, 1)
}

func TestServer_DeleteConversation(t *testing.T) {
	h := newHarness(t)
	resp, body := h.do(t, http.MethodPost, "/v1/chat", `{"message":"hello"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var out domain.AgentResponse
	require.NoError(t, json.Unmarshal(body, &out))
	convID := string(out.ConversationID)

	h.host.On("SubmitRender", mock.Anything, mock.Anything).Return("ext-del", nil).Once()
	started, err := h.videos.Start(context.Background(), out.ConversationID, domain.RenderRequest{Title: "Porto"})
	require.NoError(t, err)
	require.Len(t, h.videos.Pending(), 1)

	resp, body = h.do(t, http.MethodDelete, "/v1/conversations/"+convID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var deleted map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &deleted))
	assert.Equal(t, "deleted", deleted["status"])
	assert.Equal(t, float64(1), deleted["cancelled_jobs"])
	assert.Empty(t, h.videos.Pending())

	resp, _ = h.do(t, http.MethodGet, "/v1/conversations/"+convID+"/messages", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = h.do(t, http.MethodDelete, "/v1/conversations/"+convID, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// the job record outlives its conversation
	resp, _ = h.do(t, http.MethodGet, "/v1/assets/"+string(started.Job.ID), "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_ChatUnknownConversation(t *testing.T) {
	h := newHarness(t)
	resp, _ := h.do(t, http.MethodPost, "/v1/chat", `{"conversation_id":"conv-nope","message":"hi"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_RequestValidation(t *testing.T) {
	h := newHarness(t)
	cases := []struct {
		name, method, path, body string
	}{
		{"empty message", http.MethodPost, "/v1/chat", `{"message":""}`},
		{"missing message", http.MethodPost, "/v1/chat", `{"conversation_id":"c"}`},
		{"limit below minimum", http.MethodGet, "/v1/conversations/conv-1/messages?limit=0", ""},
		{"limit not a number", http.MethodGet, "/v1/conversations/conv-1/messages?limit=ten", ""},
		{"bad tool name", http.MethodPost, "/v1/tools/Get-Weather/run", `{}`},
		{"mcp without method", http.MethodPost, "/v1/mcp", `{"jsonrpc":"2.0","id":1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := h.do(t, tc.method, tc.path, tc.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode, string(body))
			assert.Contains(t, string(body), `"error"`)
		})
	}
}

func TestServer_MessagesUnknownConversation(t *testing.T) {
	h := newHarness(t)
	resp, _ := h.do(t, http.MethodGet, "/v1/conversations/conv-missing/messages", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_Assets(t *testing.T) {
	h := newHarness(t)
	h.host.On("SubmitRender", mock.Anything, mock.Anything).Return("ext-1", nil).Once()

	started, err := h.videos.Start(context.Background(), "", domain.RenderRequest{Title: "Lisbon"})
	require.NoError(t, err)
	id := string(started.Job.ID)

	resp, body := h.do(t, http.MethodGet, "/v1/assets/"+id, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var job domain.AssetJob
	require.NoError(t, json.Unmarshal(body, &job))
	assert.Equal(t, domain.AssetStatePreparing, job.State)
	assert.Equal(t, "https://player.example.com/v/ext-1", job.PlayerURL)

	resp, _ = h.do(t, http.MethodPost, "/v1/assets/"+id+"/cancel", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = h.do(t, http.MethodPost, "/v1/assets/"+id+"/cancel", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	done := domain.AssetJob{ID: "asset-done", State: domain.AssetStateReady, CreatedAt: time.Now(), Deadline: time.Now()}
	require.NoError(t, h.repo.SaveAssetJob(context.Background(), done))
	resp, body = h.do(t, http.MethodPost, "/v1/assets/asset-done/cancel", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, string(body), "ready")

	resp, _ = h.do(t, http.MethodGet, "/v1/assets/asset-unknown", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_Tools(t *testing.T) {
	h := newHarness(t)

	resp, body := h.do(t, http.MethodGet, "/v1/tools", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var tools []toolInfo
	require.NoError(t, json.Unmarshal(body, &tools))
	names := make([]string, 0, len(tools))
	for _, tl := range tools {
		names = append(names, tl.Name)
		if tl.Name == "create_weather_video" {
			assert.True(t, tl.Async)
		}
	}
	assert.Contains(t, names, "get_weather")

	resp, body = h.do(t, http.MethodPost, "/v1/tools/get_weather/run", `{"arguments":{"location":"Porto"}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Contains(t, string(body), `"location":"Porto"`)

	resp, body = h.do(t, http.MethodPost, "/v1/tools/get_weather/run", `{"arguments":{"location":"Atlantis"}}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, string(body), "location not found")

	resp, _ = h.do(t, http.MethodPost, "/v1/tools/no_such_tool/run", `{}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_MCP(t *testing.T) {
	h := newHarness(t)

	resp, body := h.do(t, http.MethodPost, "/v1/mcp", `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"get_weather"`)

	resp, _ = h.do(t, http.MethodPost, "/v1/mcp", `{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestServer_ConversationSSE(t *testing.T) {
	h := newHarness(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.srv.URL+"/v1/conversations/conv-1/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	h.bus.Publish(services.Event{JobID: "conv-1", Type: services.EventTypeNewMessage, Data: `{"content":"ready"}`})

	rd := bufio.NewReader(resp.Body)
	var lines []string
	for len(lines) < 2 {
		line, err := rd.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		lines = append(lines, line)
	}
	assert.Equal(t, "event: new_message", lines[0])
	assert.Equal(t, `data: {"content":"ready"}`, lines[1])
}

func TestServer_Operational(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.WriteFile(filepath.Join(h.media, "abc-123.mp4"), []byte("fake-mp4"), 0o644))

	resp, body := h.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))

	resp, body = h.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "aule_up")

	resp, body = h.do(t, http.MethodGet, "/v1/media/abc-123.mp4", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "fake-mp4", string(body))

	resp, _ = h.do(t, http.MethodGet, "/v1/media/..%2Fkernel.duckdb", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = h.do(t, http.MethodGet, "/v1/unknown", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
