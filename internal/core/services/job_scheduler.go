package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"
)

var ErrQueueFull = errors.New("scheduling queue full")

// SchedulerConfig defines concurrency limits
type SchedulerConfig struct {
	MaxConcurrentJobs int64 `mapstructure:"max_concurrent"`
	QueueSize         int   `mapstructure:"queue_size"`
}

// Task is a unit of background work, usually one asset poll loop.
type Task struct {
	ID  string
	Run func(ctx context.Context)
}

// JobScheduler runs background tasks with a global concurrency cap.
type JobScheduler struct {
	logger       *slog.Logger
	pendingQueue chan Task
	semaphore    *semaphore.Weighted
	running      sync.WaitGroup
}

func NewJobScheduler(logger *slog.Logger, cfg SchedulerConfig) *JobScheduler {
	limit := cfg.MaxConcurrentJobs
	if limit <= 0 {
		limit = 10
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = 100
	}

	return &JobScheduler{
		logger:       logger,
		pendingQueue: make(chan Task, size),
		semaphore:    semaphore.NewWeighted(limit),
	}
}

// SubmitJob queues a task without blocking.
func (s *JobScheduler) SubmitJob(ctx context.Context, task Task) error {
	select {
	case s.pendingQueue <- task:
		s.logger.Debug("task queued", "task_id", task.ID)
		return nil
	default:
		return ErrQueueFull
	}
}

// Start consumes the queue in a goroutine until ctx is done.
func (s *JobScheduler) Start(ctx context.Context) {
	s.logger.Info("starting job scheduler")

	go func() {
		for {
			select {
			case <-ctx.Done():
				s.logger.Info("stopping scheduler")
				return
			case task := <-s.pendingQueue:
				if err := s.semaphore.Acquire(ctx, 1); err != nil {
					s.logger.Warn("scheduler stopped before task could run", "task_id", task.ID, "error", err)
					return
				}

				s.running.Add(1)
				go func(t Task) {
					defer s.running.Done()
					defer s.semaphore.Release(1)
					t.Run(ctx)
				}(task)
			}
		}
	}()
}

// Run starts the scheduler and blocks until ctx is done and in-flight tasks return.
func (s *JobScheduler) Run(ctx context.Context) error {
	s.Start(ctx)
	<-ctx.Done()
	s.running.Wait()
	return nil
}
