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

type cacheObserver interface {
	ObserveCache(result string)
}

// WeatherService answers current-conditions lookups, read-through a cache.
type WeatherService struct {
	logger   *slog.Logger
	client   ports.WeatherClient
	cache    ports.WeatherCache
	ttl      time.Duration
	observer cacheObserver
}

// NewWeatherService builds the service. cache and observer may be nil.
func NewWeatherService(logger *slog.Logger, client ports.WeatherClient, cache ports.WeatherCache, ttl time.Duration, observer cacheObserver) *WeatherService {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &WeatherService{logger: logger, client: client, cache: cache, ttl: ttl, observer: observer}
}

func (s *WeatherService) Current(ctx context.Context, location string) (domain.WeatherReport, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return domain.WeatherReport{}, errors.New("location is required")
	}
	key := weatherCacheKey(location)

	if s.cache != nil {
		report, err := s.cache.Get(ctx, key)
		switch {
		case err == nil:
			s.observe("hit")
			return report, nil
		case errors.Is(err, domain.ErrCacheMiss):
			s.observe("miss")
		default:
			s.observe("error")
			s.logger.Warn("weather cache read failed", "key", key, "error", err)
		}
	}

	report, err := s.client.Current(ctx, location)
	if err != nil {
		return domain.WeatherReport{}, fmt.Errorf("fetch weather for %q: %w", location, err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, report, s.ttl); err != nil {
			s.logger.Warn("weather cache write failed", "key", key, "error", err)
		}
	}
	return report, nil
}

func (s *WeatherService) observe(result string) {
	if s.observer != nil {
		s.observer.ObserveCache(result)
	}
}

func weatherCacheKey(location string) string {
	return "weather:" + strings.Join(strings.Fields(strings.ToLower(location)), " ")
}
