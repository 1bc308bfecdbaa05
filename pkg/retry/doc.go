// Package retry provides exponential backoff retry logic for transient failures.
//
// Do runs a function until it succeeds, the attempts are exhausted, the context is
// cancelled, or the error is not retryable. An error is not retryable when it is wrapped
// with NonRetryable or when Config.Retryable returns false for it.
//
// Presets:
//
//   - DefaultConfig(): 3 attempts, 100ms-5s delay
//   - Quick(): 10 attempts, 50ms-1s delay (connecting at startup)
//   - Persistent(): 30 attempts, 200ms-10s delay
//
// Usage:
//
//	cfg := errors.DefaultRetryConfig().ToRetryConfig()
//	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
//	    logger.Warn("Run failed, retrying", "attempt", attempt, "delay", delay, "error", err)
//	}
//	err := retry.Do(ctx, cfg, func() error {
//	    _, err := eng.Execute(ctx, proc)
//	    return err
//	})
package retry
