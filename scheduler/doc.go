// Package scheduler decides when automatic processes run.
//
// Runs are executed on a worker pool keyed by process ID, so at most one run of a
// process is in flight while different processes run in parallel. A process is
// queued by:
//
//   - Trigger, after its definition changed; delayed by Config.TriggerDelay and
//     restarted by further changes within the delay
//   - SeriesUpdated, when new data arrived in its source series; received from NATS
//     on autoprocess.series.<station>.<series>.updated
//   - TriggerAll, at startup and every Config.SweepInterval
//
// A trigger for a process that is already queued is coalesced into the queued run.
// A trigger that arrives while the process is running queues one more run, since the
// running one may have read the source before the new data landed.
//
// Transient failures are retried with exponential backoff; configuration errors and
// append conflicts are not. The outcome of each process is reported to a
// health.Monitor. After a run that appended records the scheduler publishes
// autoprocess.process.<id>.done and announces the target series as updated, which
// triggers the processes that read it.
//
// RunOnce executes every process a single time without the pool, ordering processes
// that read another process's target after that process.
package scheduler
