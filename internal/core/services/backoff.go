package services

import (
	"context"
	"errors"
	"time"
)

// PollPolicy bounds how often and for how long an asset is polled.
// Step == 0 gives a fixed interval; Step > 0 grows the interval linearly.
type PollPolicy struct {
	Interval     time.Duration `mapstructure:"interval"`
	Step         time.Duration `mapstructure:"step"`
	MinInterval  time.Duration `mapstructure:"min_interval"`
	MaxInterval  time.Duration `mapstructure:"max_interval"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	Timeout      time.Duration `mapstructure:"timeout"`
	CheckTimeout time.Duration `mapstructure:"check_timeout"`
}

func DefaultPollPolicy() PollPolicy {
	return PollPolicy{
		Interval:     2 * time.Second,
		Step:         2 * time.Second,
		MinInterval:  time.Second,
		MaxInterval:  10 * time.Second,
		MaxAttempts:  30,
		Timeout:      5 * time.Minute,
		CheckTimeout: 15 * time.Second,
	}
}

func (p PollPolicy) Validate() error {
	switch {
	case p.MaxAttempts <= 0:
		return errors.New("poll max_attempts must be positive")
	case p.Timeout <= 0:
		return errors.New("poll timeout must be positive")
	case p.MaxInterval <= 0:
		return errors.New("poll max_interval must be positive")
	case p.Interval < 0 || p.Step < 0 || p.MinInterval < 0:
		return errors.New("poll intervals must not be negative")
	case p.MinInterval > p.MaxInterval:
		return errors.New("poll min_interval exceeds max_interval")
	}
	return nil
}

// Delay returns the wait after the given 1-based attempt, clamped to [MinInterval, MaxInterval].
func (p PollPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.Interval
	if p.Step > 0 {
		// cap the multiplier so a large attempt count cannot overflow
		steps := int64(attempt - 1)
		if limit := int64(p.MaxInterval/p.Step) + 1; steps > limit {
			steps = limit
		}
		d += time.Duration(steps) * p.Step
	}
	if d < p.MinInterval {
		d = p.MinInterval
	}
	if d > p.MaxInterval {
		d = p.MaxInterval
	}
	return d
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
