// Package health keeps the last known state of every automatic process and of the
// service's dependencies (NATS, configuration watch), and exposes the aggregate on
// /healthz.
//
// States:
//   - healthy: the last run succeeded
//   - degraded: the last run failed with a transient error and will be retried
//   - unhealthy: a configuration error or an append conflict; the process will not
//     recover without operator action
//
// Error messages are passed through Sanitize before they are stored, so URLs, data
// file paths, addresses and credentials do not leak over HTTP.
//
//	monitor := health.NewMonitor("autoprocess")
//	monitor.Update("rain-daily", health.NewHealthy("rain-daily", "appended 3 records").
//	    WithRun(health.Run{ID: runID, Appended: 3}))
//	http.Handle("/healthz", monitor)
package health
