package scheduler

import (
	"time"

	"github.com/c360/autoprocess/errors"
)

// Config tunes a Scheduler.
type Config struct {
	Workers   int // parallel runs
	QueueSize int // queued runs shared by the workers

	// TriggerDelay postpones runs after a configuration change.
	TriggerDelay time.Duration

	// RateLimit caps the runs per second of one process; zero means unlimited.
	RateLimit float64
	RateBurst int

	// SweepInterval queues every process periodically; zero disables the sweep.
	SweepInterval time.Duration

	Retry       errors.RetryConfig
	StopTimeout time.Duration
}

// DefaultConfig returns the scheduler defaults.
func DefaultConfig() Config {
	return Config{
		Workers:       4,
		QueueSize:     256,
		TriggerDelay:  time.Second,
		RateLimit:     1,
		RateBurst:     2,
		SweepInterval: 10 * time.Minute,
		Retry:         errors.DefaultRetryConfig(),
		StopTimeout:   30 * time.Second,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch {
	case c.Workers <= 0:
		return errors.NewConfigError("scheduler.workers", "must be positive")
	case c.QueueSize < c.Workers:
		return errors.NewConfigError("scheduler.queue_size", "must be at least the number of workers")
	case c.TriggerDelay < 0:
		return errors.NewConfigError("scheduler.trigger_delay", "must not be negative")
	case c.RateLimit < 0:
		return errors.NewConfigError("scheduler.rate_limit", "must not be negative")
	case c.RateLimit > 0 && c.RateBurst <= 0:
		return errors.NewConfigError("scheduler.rate_burst", "must be positive when rate_limit is set")
	case c.SweepInterval < 0:
		return errors.NewConfigError("scheduler.sweep_interval", "must not be negative")
	case c.Retry.MaxRetries < 0:
		return errors.NewConfigError("scheduler.retry.max_retries", "must not be negative")
	}
	return nil
}
