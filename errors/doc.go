// Package errors provides standardized error handling for autoprocess.
//
// # Error Classification
//
// Errors fall into three classes that drive the scheduler's retry decision:
//
//   - Transient: storage or NATS unavailable, timeouts (retried with backoff)
//   - Invalid: configuration errors and append conflicts (not retried)
//   - Fatal: corrupted stored data, shutdown (run aborted)
//
// # Domain Errors
//
// A processing run can fail in two ways that are part of its contract.
//
// ConfigError is returned when a process definition cannot be compiled: bounds that
// are not finite, a step or offset string that does not parse, a curve with fewer than
// two points. It always unwraps to ErrInvalidConfig:
//
//	if errors.IsConfig(err) {
//	    // leave the target untouched, wait for a corrected definition
//	}
//
// ErrConflict is returned by a series store when an append would overwrite or precede
// existing records. Stores wrap it with WrapInvalid so it is never retried:
//
//	return errors.WrapInvalid(errors.ErrConflict, "MemStore", "AppendData", "append records")
//
// Empty or all-missing input is not an error; engines return an empty or all-missing
// series for it.
//
// # Wrapping
//
// Wrap produces messages of the form "component.method: action failed: cause":
//
//	if err := store.AppendData(ctx, out); err != nil {
//	    return errors.Wrap(err, "Engine", "Execute", "append target")
//	}
//
// # Retry
//
// RetryConfig.ToRetryConfig converts the policy into a pkg/retry configuration whose
// Retryable hook is IsTransient.
package errors
