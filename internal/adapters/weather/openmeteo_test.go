package weather

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/manthysbr/aule-weather/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOpenMeteoServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/search", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("name") == "Atlantis" {
			_, _ = w.Write([]byte(`{"generationtime_ms":0.3}`))
			return
		}
		assert.Equal(t, "1", r.URL.Query().Get("count"))
		_, _ = w.Write([]byte(`{"results":[{"name":"Lisbon","latitude":38.71667,"longitude":-9.13333,"country":"Portugal"}]}`))
	})
	mux.HandleFunc("/v1/forecast", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "38.7167", r.URL.Query().Get("latitude"))
		assert.Equal(t, currentFields, r.URL.Query().Get("current"))
		_, _ = w.Write([]byte(`{"utc_offset_seconds":3600,"current":{"time":"2026-06-01T14:00","temperature_2m":24.1,"relative_humidity_2m":55,"apparent_temperature":25.0,"weather_code":2,"wind_speed_10m":12.5,"wind_gusts_10m":30.2}}`))
	})
	return httptest.NewServer(mux)
}

func TestOpenMeteoClient_Current(t *testing.T) {
	srv := newOpenMeteoServer(t)
	defer srv.Close()

	c := NewOpenMeteoClient(srv.URL+"/v1/search", srv.URL+"/v1/forecast")
	report, err := c.Current(context.Background(), "Lisbon")
	require.NoError(t, err)

	assert.Equal(t, "Lisbon", report.Location)
	assert.Equal(t, "Portugal", report.Country)
	assert.Equal(t, 24.1, report.Temperature)
	assert.Equal(t, 25.0, report.FeelsLike)
	assert.Equal(t, 55.0, report.Humidity)
	assert.Equal(t, 30.2, report.WindGust)
	assert.Equal(t, "Partly cloudy", report.Condition)
	assert.True(t, report.ObservedAt.Equal(time.Date(2026, 6, 1, 13, 0, 0, 0, time.UTC)))
}

func TestOpenMeteoClient_UnknownLocation(t *testing.T) {
	srv := newOpenMeteoServer(t)
	defer srv.Close()

	_, err := NewOpenMeteoClient(srv.URL+"/v1/search", srv.URL+"/v1/forecast").Current(context.Background(), "Atlantis")
	assert.ErrorIs(t, err, domain.ErrLocationNotFound)
}

func TestOpenMeteoClient_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewOpenMeteoClient(srv.URL, srv.URL).Current(context.Background(), "Lisbon")
	assert.ErrorContains(t, err, "status 503")
}

func TestCondition(t *testing.T) {
	assert.Equal(t, "Clear sky", Condition(0))
	assert.Equal(t, "Rain", Condition(63))
	assert.Equal(t, "Thunderstorm with hail", Condition(99))
	assert.Equal(t, "Unknown conditions", Condition(42))
}
