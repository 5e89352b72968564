package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/manthysbr/aule-weather/internal/adapters/cache"
	"github.com/manthysbr/aule-weather/internal/adapters/duckdb"
	"github.com/manthysbr/aule-weather/internal/adapters/metrics"
	"github.com/manthysbr/aule-weather/internal/adapters/providers"
	"github.com/manthysbr/aule-weather/internal/adapters/storage"
	"github.com/manthysbr/aule-weather/internal/adapters/weather"
	"github.com/manthysbr/aule-weather/internal/config"
	"github.com/manthysbr/aule-weather/internal/core/domain"
	"github.com/manthysbr/aule-weather/internal/core/ports"
	"github.com/manthysbr/aule-weather/internal/core/services"
)

// app holds every wired component shared by the serve and mcp commands.
type app struct {
	logger    *slog.Logger
	cfg       *config.Config
	repo      *duckdb.Repository
	providers *providers.Set
	recorder  *metrics.Recorder
	bus       *services.EventBus
	convs     *services.ConversationStore
	scheduler *services.JobScheduler
	videos    *services.NarratedVideoService
	tools     *domain.ToolRegistry
	agent     *services.ReActAgentService
	closers   []io.Closer
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}

func buildApp(ctx context.Context, logger *slog.Logger, cfg *config.Config) (*app, error) {
	a := &app{logger: logger, cfg: cfg}

	if dir := filepath.Dir(cfg.DB.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	repo, err := duckdb.NewRepository(cfg.DB.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to init repository: %w", err)
	}
	a.repo = repo
	a.closers = append(a.closers, repo)

	a.recorder = metrics.NewRecorder()

	var weatherCache ports.WeatherCache
	if cfg.Redis.Addr != "" {
		rc, err := cache.NewRedisCache(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			// lookups still work without the cache
			logger.Warn("weather cache unavailable", "addr", cfg.Redis.Addr, "error", err)
		} else {
			weatherCache = rc
			a.closers = append(a.closers, rc)
		}
	}
	client := weather.NewOpenMeteoClient(cfg.Weather.GeocodingURL, cfg.Weather.ForecastURL)
	weatherSvc := services.NewWeatherService(logger, client, weatherCache, cfg.Weather.CacheTTL, a.recorder)

	set, err := providers.Build(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to build providers: %w", err)
	}
	a.providers = set

	a.bus = services.NewEventBus(logger)
	a.convs = services.NewConversationStore(repo, 64)
	a.scheduler = services.NewJobScheduler(logger, services.SchedulerConfig{
		MaxConcurrentJobs: cfg.Scheduler.MaxConcurrentPolls,
		QueueSize:         cfg.Scheduler.QueueSize,
	})

	var narration *services.NarrationBuilder
	if set.Video != nil {
		narration, err = a.buildVideoPipeline(ctx, set)
		if err != nil {
			a.Close()
			return nil, err
		}
	} else {
		logger.Info("video rendering disabled", "mode", cfg.Video.Mode)
	}

	a.tools = domain.NewToolRegistry()
	if err := services.RegisterWeatherTools(a.tools, weatherSvc, narration, a.videos); err != nil {
		a.Close()
		return nil, err
	}
	a.agent = services.NewReActAgentService(logger, set.LLM, a.tools, a.convs)

	logger.Info("components wired",
		"llm_mode", cfg.LLM.Mode,
		"image_mode", cfg.Image.Mode,
		"video_mode", cfg.Video.Mode,
		"weather_cache", weatherCache != nil,
		"tools", len(a.tools.ListTools()),
	)
	return a, nil
}

func (a *app) buildVideoPipeline(ctx context.Context, set *providers.Set) (*services.NarrationBuilder, error) {
	cfg := a.cfg
	policy := services.PollPolicy(cfg.Poll)
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("poll policy: %w", err)
	}

	store, err := storage.NewMinioStore(storage.Options{
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		Bucket:    cfg.Storage.Bucket,
		Region:    cfg.Storage.Region,
		Secure:    cfg.Storage.Secure,
		URLExpiry: cfg.Storage.URLExpiry,
	})
	if err != nil {
		return nil, err
	}
	if err := store.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("media bucket: %w", err)
	}
	if set.Docker != nil {
		if err := os.MkdirAll(set.Docker.MediaDir(), 0o755); err != nil {
			return nil, fmt.Errorf("create media dir: %w", err)
		}
	}
	if set.Speech == nil {
		a.logger.Warn("speech.url is not set; video requests will fail at submission")
	}

	tracker := services.NewAssetTracker()
	poller := services.NewAssetPoller(a.logger, set.Video, a.bus, policy,
		services.WithTracker(tracker),
		services.WithObserver(a.recorder),
	)
	composer := services.NewResponseComposer(a.logger, a.bus)
	a.videos = services.NewNarratedVideoService(a.logger, poller, composer, tracker, a.scheduler, a.convs, a.bus, a.repo)
	return services.NewNarrationBuilder(a.logger, set.LLM, set.Speech, set.Image, store), nil
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	return errors.Join(errs...)
}
