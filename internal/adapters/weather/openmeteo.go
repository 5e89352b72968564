package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/manthysbr/aule-weather/internal/core/domain"
	"github.com/manthysbr/aule-weather/internal/core/ports"
)

var _ ports.WeatherClient = (*OpenMeteoClient)(nil)

const currentFields = "temperature_2m,relative_humidity_2m,apparent_temperature,weather_code,wind_speed_10m,wind_gusts_10m"

// OpenMeteoClient resolves a place name with the geocoding API and then reads
// current conditions from the forecast API. Neither needs a key.
type OpenMeteoClient struct {
	client       *http.Client
	geocodingURL string
	forecastURL  string
}

func NewOpenMeteoClient(geocodingURL, forecastURL string) *OpenMeteoClient {
	return &OpenMeteoClient{
		client:       &http.Client{Timeout: 10 * time.Second},
		geocodingURL: geocodingURL,
		forecastURL:  forecastURL,
	}
}

type geocodingResponse struct {
	Results []struct {
		Name      string  `json:"name"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Country   string  `json:"country"`
	} `json:"results"`
}

type forecastResponse struct {
	UTCOffsetSeconds int `json:"utc_offset_seconds"`
	Current          struct {
		Time                string  `json:"time"`
		Temperature2m       float64 `json:"temperature_2m"`
		RelativeHumidity2m  float64 `json:"relative_humidity_2m"`
		ApparentTemperature float64 `json:"apparent_temperature"`
		WeatherCode         int     `json:"weather_code"`
		WindSpeed10m        float64 `json:"wind_speed_10m"`
		WindGusts10m        float64 `json:"wind_gusts_10m"`
	} `json:"current"`
}

func (c *OpenMeteoClient) Current(ctx context.Context, location string) (domain.WeatherReport, error) {
	q := url.Values{
		"name":     {location},
		"count":    {"1"},
		"language": {"en"},
		"format":   {"json"},
	}
	var geo geocodingResponse
	if err := c.getJSON(ctx, c.geocodingURL, q, &geo); err != nil {
		return domain.WeatherReport{}, fmt.Errorf("geocode: %w", err)
	}
	if len(geo.Results) == 0 {
		return domain.WeatherReport{}, fmt.Errorf("%w: %s", domain.ErrLocationNotFound, location)
	}
	place := geo.Results[0]

	q = url.Values{
		"latitude":        {strconv.FormatFloat(place.Latitude, 'f', 4, 64)},
		"longitude":       {strconv.FormatFloat(place.Longitude, 'f', 4, 64)},
		"current":         {currentFields},
		"timezone":        {"auto"},
		"wind_speed_unit": {"kmh"},
	}
	var fc forecastResponse
	if err := c.getJSON(ctx, c.forecastURL, q, &fc); err != nil {
		return domain.WeatherReport{}, fmt.Errorf("forecast: %w", err)
	}

	cur := fc.Current
	observed, err := time.ParseInLocation("2006-01-02T15:04", cur.Time, time.FixedZone("", fc.UTCOffsetSeconds))
	if err != nil {
		observed = time.Now()
	}
	return domain.WeatherReport{
		Location:    place.Name,
		Country:     place.Country,
		Latitude:    place.Latitude,
		Longitude:   place.Longitude,
		Temperature: cur.Temperature2m,
		FeelsLike:   cur.ApparentTemperature,
		Humidity:    cur.RelativeHumidity2m,
		WindSpeed:   cur.WindSpeed10m,
		WindGust:    cur.WindGusts10m,
		Code:        cur.WeatherCode,
		Condition:   Condition(cur.WeatherCode),
		ObservedAt:  observed,
	}, nil
}

func (c *OpenMeteoClient) getJSON(ctx context.Context, base string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("open-meteo returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Condition describes a WMO weather interpretation code.
func Condition(code int) string {
	switch code {
	case 0:
		return "Clear sky"
	case 1:
		return "Mainly clear"
	case 2:
		return "Partly cloudy"
	case 3:
		return "Overcast"
	case 45, 48:
		return "Fog"
	case 51, 53, 55:
		return "Drizzle"
	case 56, 57:
		return "Freezing drizzle"
	case 61, 63, 65:
		return "Rain"
	case 66, 67:
		return "Freezing rain"
	case 71, 73, 75, 77:
		return "Snow"
	case 80, 81, 82:
		return "Rain showers"
	case 85, 86:
		return "Snow showers"
	case 95:
		return "Thunderstorm"
	case 96, 99:
		return "Thunderstorm with hail"
	default:
		return "Unknown conditions"
	}
}
