package videohost

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/manthysbr/aule-weather/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPHost_SubmitAndStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer vk", r.Header.Get("Authorization"))
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/videos":
			var body createVideoRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "Weather in Lisbon", body.Title)
			assert.Equal(t, "https://m/a.mp3", body.AudioURL)
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":"vid 42","status":"preparing"}`))
		case r.Method == http.MethodGet && r.URL.EscapedPath() == "/api/videos/vid%2042":
			_, _ = w.Write([]byte(`{"id":"vid 42","status":"READY"}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	h := NewHTTPHost(srv.URL+"/api/", "vk", "https://watch.example.com/v/{id}")
	id, err := h.SubmitRender(context.Background(), domain.RenderRequest{
		Title: "Weather in Lisbon", SourceImageURL: "https://m/i.png", SourceAudioURL: "https://m/a.mp3",
	})
	require.NoError(t, err)
	assert.Equal(t, "vid 42", id)

	st, err := h.GetStatus(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderReady, st.State)

	assert.Equal(t, "https://watch.example.com/v/vid%2042", h.PlayerURL(id))
	assert.Equal(t, h.PlayerURL(id), h.PlayerURL(id))
}

func TestHTTPHost_ErrorClassification(t *testing.T) {
	cases := []struct {
		status    int
		transient bool
	}{
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
		{http.StatusNotFound, false},
		{http.StatusTooManyRequests, true},
		{http.StatusBadGateway, true},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", tc.status)
		}))
		h := NewHTTPHost(srv.URL, "", "{id}")

		_, err := h.GetStatus(context.Background(), "x")
		var perr *domain.ProviderError
		require.True(t, errors.As(err, &perr))
		assert.Equal(t, tc.status, perr.StatusCode)
		assert.Equal(t, tc.transient, perr.Transient(), "status %d", tc.status)
		srv.Close()
	}
}

func TestHTTPHost_UnreachableIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	_, err := NewHTTPHost(srv.URL, "", "{id}").SubmitRender(context.Background(), domain.RenderRequest{})
	var perr *domain.ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 0, perr.StatusCode)
	assert.True(t, perr.Transient())
}

func TestHTTPHost_ErrorDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"v","status":"errored","error":"audio stream is empty"}`))
	}))
	defer srv.Close()

	st, err := NewHTTPHost(srv.URL, "", "{id}").GetStatus(context.Background(), "v")
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderErrored, st.State)
	assert.Equal(t, "audio stream is empty", st.ErrorDetail)
}
