// Package worker provides a generic worker pool with bounded queues.
//
// Every worker owns a queue. Submit never blocks: when the queue an item routes to
// is full it returns ErrQueueFull and counts the item as dropped.
//
// WithKey routes items by key, so items of one key are handled by a single worker,
// one at a time and in submission order. The scheduler keys runs by process ID to
// keep at most one run of a process in flight:
//
//	pool := worker.NewPool(8, 256, run,
//	    worker.WithKey(func(r Run) string { return r.ProcessID }),
//	    worker.WithMetricsRegistry[Run](registry, "scheduler"))
//	if err := pool.Start(ctx); err != nil {
//	    return err
//	}
//	defer pool.Stop(30 * time.Second)
//
// Stop closes the queues and waits for queued items to be processed; cancelling the
// context passed to Start abandons them instead.
//
// Statistics are always tracked (Stats). Prometheus metrics are registered only with
// WithMetricsRegistry, labelled with the pool name.
package worker
