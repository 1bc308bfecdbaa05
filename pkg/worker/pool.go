package worker

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/autoprocess/metric"
)

// Pool processes work items of type T on a fixed set of workers. Each worker owns a
// queue. With a key function, every item with the same key goes to the same worker,
// so items of one key are processed one at a time and in submission order; items of
// different keys run in parallel.
type Pool[T any] struct {
	workers   int
	queueSize int
	processor func(context.Context, T) error
	keyFn     func(T) string

	queues  []chan T
	next    atomic.Uint64
	metrics *Metrics
	wg      *sync.WaitGroup

	lifecycleMu sync.Mutex
	started     bool
	stopped     bool

	submitted int64
	processed int64
	failed    int64
	dropped   int64
	busy      int64

	metricsRegistry *metric.MetricsRegistry
	metricsPrefix   string
}

// Metrics holds Prometheus metrics for worker pool monitoring.
type Metrics struct {
	queueDepth     prometheus.Gauge
	utilization    prometheus.Gauge
	submitted      prometheus.Counter
	processed      prometheus.Counter
	failed         prometheus.Counter
	dropped        prometheus.Counter
	processingTime *prometheus.HistogramVec
}

// Option represents a configuration option for the worker pool.
type Option[T any] func(*Pool[T])

// WithMetricsRegistry registers the pool's metrics under the given pool name.
func WithMetricsRegistry[T any](registry *metric.MetricsRegistry, name string) Option[T] {
	return func(p *Pool[T]) {
		p.metricsRegistry = registry
		p.metricsPrefix = name
	}
}

// WithKey routes items by key. Without it items are spread round-robin.
func WithKey[T any](fn func(T) string) Option[T] {
	return func(p *Pool[T]) {
		p.keyFn = fn
	}
}

// NewPool creates a pool of workers sharing queueSize queued items between them.
func NewPool[T any](workers, queueSize int, processor func(context.Context, T) error, opts ...Option[T]) *Pool[T] {
	if workers <= 0 {
		workers = 10
	}
	if queueSize <= 0 {
		queueSize = 1000
	}
	if processor == nil {
		panic(ErrNilProcessor)
	}

	pool := &Pool[T]{
		workers:   workers,
		queueSize: queueSize,
		processor: processor,
		queues:    make([]chan T, workers),
	}
	perWorker := max(1, queueSize/workers)
	for i := range pool.queues {
		pool.queues[i] = make(chan T, perWorker)
	}

	for _, opt := range opts {
		opt(pool)
	}

	if pool.metricsRegistry != nil && pool.metricsPrefix != "" {
		pool.initializeMetrics()
	}
	return pool
}

func (p *Pool[T]) initializeMetrics() {
	labels := prometheus.Labels{"pool": p.metricsPrefix}
	opts := func(name, help string) prometheus.Opts {
		return prometheus.Opts{
			Namespace:   metric.Namespace,
			Subsystem:   "worker",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		}
	}

	m := &Metrics{
		queueDepth:  prometheus.NewGauge(prometheus.GaugeOpts(opts("queue_depth", "Items waiting in the pool queues"))),
		utilization: prometheus.NewGauge(prometheus.GaugeOpts(opts("utilization", "Fraction of workers busy (0-1)"))),
		submitted:   prometheus.NewCounter(prometheus.CounterOpts(opts("submitted_total", "Items submitted"))),
		processed:   prometheus.NewCounter(prometheus.CounterOpts(opts("processed_total", "Items processed"))),
		failed:      prometheus.NewCounter(prometheus.CounterOpts(opts("failed_total", "Items whose processing failed"))),
		dropped:     prometheus.NewCounter(prometheus.CounterOpts(opts("dropped_total", "Items dropped because the queue was full"))),
		processingTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "worker",
			Name:        "processing_duration_seconds",
			Help:        "Time spent processing items",
			ConstLabels: labels,
			Buckets:     []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 30.0},
		}, []string{"status"}),
	}

	service := "worker_" + p.metricsPrefix
	errs := []error{
		p.metricsRegistry.RegisterGauge(service, "queue_depth", m.queueDepth),
		p.metricsRegistry.RegisterGauge(service, "utilization", m.utilization),
		p.metricsRegistry.RegisterCounter(service, "submitted_total", m.submitted),
		p.metricsRegistry.RegisterCounter(service, "processed_total", m.processed),
		p.metricsRegistry.RegisterCounter(service, "failed_total", m.failed),
		p.metricsRegistry.RegisterCounter(service, "dropped_total", m.dropped),
		p.metricsRegistry.RegisterHistogramVec(service, "processing_duration_seconds", m.processingTime),
	}
	for _, err := range errs {
		if err != nil {
			return
		}
	}
	p.metrics = m
}

func (p *Pool[T]) queueFor(work T) chan T {
	if p.keyFn == nil {
		return p.queues[p.next.Add(1)%uint64(p.workers)]
	}
	return p.queues[Shard(p.keyFn(work), p.workers)]
}

// Shard returns the worker index of key among n workers.
func Shard(key string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(n))
}

// Submit queues work without blocking. It returns ErrQueueFull when the target
// worker's queue is full.
func (p *Pool[T]) Submit(work T) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if !p.started {
		return ErrPoolNotStarted
	}
	if p.stopped {
		return ErrPoolStopped
	}

	select {
	case p.queueFor(work) <- work:
		atomic.AddInt64(&p.submitted, 1)
		if p.metrics != nil {
			p.metrics.submitted.Inc()
			p.metrics.queueDepth.Set(float64(p.depth()))
		}
		return nil
	default:
		atomic.AddInt64(&p.dropped, 1)
		if p.metrics != nil {
			p.metrics.dropped.Inc()
		}
		return ErrQueueFull
	}
}

// Start starts the workers. They exit when ctx is done or the pool is stopped.
func (p *Pool[T]) Start(ctx context.Context) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if p.started {
		return ErrPoolAlreadyStarted
	}

	p.wg = &sync.WaitGroup{}
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, p.queues[i])
	}

	if p.metrics != nil {
		p.wg.Add(1)
		go p.metricsUpdater(ctx)
	}

	p.started = true
	return nil
}

// Stop closes the queues and waits up to timeout for queued work to finish.
func (p *Pool[T]) Stop(timeout time.Duration) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if !p.started || p.stopped {
		return nil
	}
	p.stopped = true
	for _, q := range p.queues {
		close(q)
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		return ErrStopTimeout
	}
}

func (p *Pool[T]) depth() int {
	n := 0
	for _, q := range p.queues {
		n += len(q)
	}
	return n
}

// Stats returns current pool statistics.
func (p *Pool[T]) Stats() PoolStats {
	return PoolStats{
		Workers:    p.workers,
		QueueSize:  p.queueSize,
		QueueDepth: p.depth(),
		Busy:       int(atomic.LoadInt64(&p.busy)),
		Submitted:  atomic.LoadInt64(&p.submitted),
		Processed:  atomic.LoadInt64(&p.processed),
		Failed:     atomic.LoadInt64(&p.failed),
		Dropped:    atomic.LoadInt64(&p.dropped),
	}
}

// PoolStats represents worker pool statistics.
type PoolStats struct {
	Workers    int   `json:"workers"`
	QueueSize  int   `json:"queue_size"`
	QueueDepth int   `json:"queue_depth"`
	Busy       int   `json:"busy"`
	Submitted  int64 `json:"submitted"`
	Processed  int64 `json:"processed"`
	Failed     int64 `json:"failed"`
	Dropped    int64 `json:"dropped"`
}

func (p *Pool[T]) worker(ctx context.Context, queue <-chan T) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case work, ok := <-queue:
			if !ok {
				return
			}

			atomic.AddInt64(&p.busy, 1)
			start := time.Now()
			err := p.processor(ctx, work)
			duration := time.Since(start)
			atomic.AddInt64(&p.busy, -1)

			atomic.AddInt64(&p.processed, 1)
			if err != nil {
				atomic.AddInt64(&p.failed, 1)
			}

			if p.metrics != nil {
				p.metrics.processed.Inc()
				status := "success"
				if err != nil {
					p.metrics.failed.Inc()
					status = "error"
				}
				p.metrics.processingTime.WithLabelValues(status).Observe(duration.Seconds())
			}
		}
	}
}

func (p *Pool[T]) metricsUpdater(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.metrics.queueDepth.Set(float64(p.depth()))
			p.metrics.utilization.Set(float64(atomic.LoadInt64(&p.busy)) / float64(p.workers))
		}
	}
}
