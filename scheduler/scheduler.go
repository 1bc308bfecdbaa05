package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/c360/autoprocess/autoprocess"
	"github.com/c360/autoprocess/engine"
	"github.com/c360/autoprocess/errors"
	"github.com/c360/autoprocess/health"
	"github.com/c360/autoprocess/metric"
	"github.com/c360/autoprocess/pkg/retry"
	"github.com/c360/autoprocess/pkg/worker"
)

// Executor runs one process once.
type Executor interface {
	Execute(ctx context.Context, p *autoprocess.Process) (engine.Result, error)
}

// Bus carries update notifications. natsclient.Client implements it.
type Bus interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Subscribe(ctx context.Context, subject string, handler func(context.Context, []byte)) error
}

// Trigger reasons, used as a metric label.
const (
	ReasonConfig = "config"
	ReasonSeries = "series"
	ReasonSweep  = "sweep"
)

type job struct {
	processID string
	reason    string
}

type processState struct {
	pending     bool
	timer       *time.Timer
	limiter     *rate.Limiter
	failures    int
	lastSuccess time.Time
}

// Scheduler queues and runs the processes of a Set.
type Scheduler struct {
	cfg     Config
	set     *autoprocess.Set
	exec    Executor
	bus     Bus
	monitor *health.Monitor
	logger  *slog.Logger
	metrics *schedulerMetrics
	pool    *worker.Pool[job]

	mu     sync.Mutex
	states map[string]*processState
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithBus subscribes to series updates and publishes run notifications on bus.
// Without a bus, updates of a target series are only propagated in process.
func WithBus(bus Bus) Option {
	return func(s *Scheduler) { s.bus = bus }
}

// WithMonitor reports process outcomes to m.
func WithMonitor(m *health.Monitor) Option {
	return func(s *Scheduler) { s.monitor = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics registers scheduler and pool metrics with registry.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(s *Scheduler) {
		m, err := newSchedulerMetrics(registry)
		if err != nil {
			s.logger.Error("Failed to initialize scheduler metrics", "error", err)
			return
		}
		s.metrics = m
		s.pool = worker.NewPool(s.cfg.Workers, s.cfg.QueueSize, s.run,
			worker.WithKey(jobKey), worker.WithMetricsRegistry[job](registry, "scheduler"))
	}
}

func jobKey(j job) string { return j.processID }

// New creates a scheduler over set.
func New(cfg Config, set *autoprocess.Set, exec Executor, opts ...Option) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Scheduler{
		cfg:     cfg,
		set:     set,
		exec:    exec,
		monitor: health.NewMonitor("processes"),
		logger:  slog.Default(),
		states:  make(map[string]*processState),
	}
	s.pool = worker.NewPool(cfg.Workers, cfg.QueueSize, s.run, worker.WithKey(jobKey))
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "scheduler")
	return s, nil
}

// Monitor returns the health monitor the scheduler reports to.
func (s *Scheduler) Monitor() *health.Monitor { return s.monitor }

// Set returns the processes the scheduler runs.
func (s *Scheduler) Set() *autoprocess.Set { return s.set }

// Stats returns the worker pool statistics.
func (s *Scheduler) Stats() worker.PoolStats { return s.pool.Stats() }

func (s *Scheduler) stateLocked(id string) *processState {
	st, ok := s.states[id]
	if !ok {
		limit, burst := rate.Inf, 1
		if s.cfg.RateLimit > 0 {
			limit, burst = rate.Limit(s.cfg.RateLimit), s.cfg.RateBurst
		}
		st = &processState{limiter: rate.NewLimiter(limit, burst)}
		s.states[id] = st
	}
	return st
}

// Start starts the workers, subscribes to series updates and queues every process.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.pool.Start(ctx); err != nil {
		return errors.Wrap(err, "scheduler", "Start", "start worker pool")
	}
	if s.bus != nil {
		if err := s.bus.Subscribe(ctx, SeriesUpdatedPattern, s.handleSeriesUpdated); err != nil {
			return errors.WrapTransient(err, "scheduler", "Start", "subscribe to series updates")
		}
	}
	s.logger.Info("Scheduler started", "processes", s.set.Len(), "workers", s.cfg.Workers)
	s.TriggerAll()
	return nil
}

// Stop cancels pending delayed triggers and waits for queued runs.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	for _, st := range s.states {
		if st.timer != nil {
			st.timer.Stop()
			st.timer = nil
		}
	}
	s.mu.Unlock()
	if err := s.pool.Stop(s.cfg.StopTimeout); err != nil {
		return errors.Wrap(err, "scheduler", "Stop", "stop worker pool")
	}
	s.logger.Info("Scheduler stopped")
	return nil
}

// Run starts the scheduler, sweeps every SweepInterval and stops when ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	if s.cfg.SweepInterval > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(s.cfg.SweepInterval)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					s.TriggerAll()
				}
			}
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	err := g.Wait()
	if stopErr := s.Stop(); stopErr != nil && err == nil {
		err = stopErr
	}
	return err
}

// Put adds or replaces a process and triggers it after the trigger delay.
func (s *Scheduler) Put(p *autoprocess.Process) error {
	if err := s.set.Put(p); err != nil {
		return err
	}
	s.Trigger(p.ID())
	return nil
}

// Remove forgets a process. A run already in progress completes.
func (s *Scheduler) Remove(id string) {
	s.set.Remove(id)
	s.mu.Lock()
	if st, ok := s.states[id]; ok && st.timer != nil {
		st.timer.Stop()
	}
	delete(s.states, id)
	s.mu.Unlock()
	s.monitor.Remove(componentName(id))
}

// Trigger queues a process after the trigger delay. Triggering again within the
// delay restarts it.
func (s *Scheduler) Trigger(id string) {
	if s.cfg.TriggerDelay == 0 {
		_ = s.enqueue(id, ReasonConfig)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stateLocked(id)
	if st.timer != nil {
		st.timer.Reset(s.cfg.TriggerDelay)
		s.metrics.recordTrigger(ReasonConfig, "coalesced")
		return
	}
	st.timer = time.AfterFunc(s.cfg.TriggerDelay, func() {
		s.mu.Lock()
		st.timer = nil
		s.mu.Unlock()
		_ = s.enqueue(id, ReasonConfig)
	})
}

// SeriesUpdated queues every process reading ref.
func (s *Scheduler) SeriesUpdated(ref autoprocess.SeriesRef) int {
	n := 0
	for _, p := range s.set.BySource(ref) {
		if s.enqueue(p.ID(), ReasonSeries) == nil {
			n++
		}
	}
	return n
}

// TriggerAll queues every process.
func (s *Scheduler) TriggerAll() {
	for _, p := range s.set.All() {
		_ = s.enqueue(p.ID(), ReasonSweep)
	}
}

func (s *Scheduler) enqueue(id, reason string) error {
	s.mu.Lock()
	st := s.stateLocked(id)
	if st.pending {
		s.mu.Unlock()
		s.metrics.recordTrigger(reason, "coalesced")
		return nil
	}
	st.pending = true
	s.mu.Unlock()

	if err := s.pool.Submit(job{processID: id, reason: reason}); err != nil {
		s.mu.Lock()
		st.pending = false
		s.mu.Unlock()
		s.metrics.recordTrigger(reason, "dropped")
		s.logger.Warn("Process run not queued", "process", id, "reason", reason, "error", err)
		return errors.Wrap(err, "scheduler", "enqueue", "queue run of "+id)
	}
	s.metrics.recordTrigger(reason, "queued")
	return nil
}

func (s *Scheduler) handleSeriesUpdated(_ context.Context, data []byte) {
	var ev SeriesUpdatedEvent
	if err := json.Unmarshal(data, &ev); err != nil || ev.Series == "" {
		s.logger.Warn("Ignoring malformed series update", "error", err)
		return
	}
	if n := s.SeriesUpdated(ev.Series); n > 0 {
		s.logger.Debug("Series updated", "series", ev.Series, "queued", n)
	}
}

// run is the worker pool processor.
func (s *Scheduler) run(ctx context.Context, j job) error {
	s.mu.Lock()
	st := s.stateLocked(j.processID)
	st.pending = false
	limiter := st.limiter
	s.mu.Unlock()

	p, ok := s.set.Get(j.processID)
	if !ok {
		return nil
	}
	if err := limiter.Wait(ctx); err != nil {
		return errors.WrapTransient(err, "scheduler", "run", "wait for rate limit")
	}
	_, err := s.execute(ctx, p, j.reason, true)
	return err
}

// execute runs p with retries, records the outcome and announces new output.
func (s *Scheduler) execute(ctx context.Context, p *autoprocess.Process, reason string, propagate bool) (engine.Result, error) {
	runID := uuid.NewString()
	ctx = engine.WithRunID(ctx, runID)
	logger := s.logger.With("process", p.ID(), "run_id", runID)
	logger.Debug("Process run started", "reason", reason)

	cfg := s.cfg.Retry.ToRetryConfig()
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		s.metrics.recordRetry()
		logger.Warn("Retrying process run", "attempt", attempt, "delay", delay, "error", err)
	}
	res, err := retry.DoWithResult(ctx, cfg, func() (engine.Result, error) {
		return s.exec.Execute(ctx, p)
	})

	s.record(p, runID, res, err)
	if err != nil {
		logger.Error("Process run failed", "status", res.Status, "error", err)
		return res, err
	}
	if res.Appended > 0 {
		logger.Info("Process run appended records", "target", p.Target(), "appended", res.Appended)
		s.announce(ctx, p, runID, res, propagate)
	}
	return res, nil
}

func (s *Scheduler) record(p *autoprocess.Process, runID string, res engine.Result, err error) {
	now := time.Now()
	s.mu.Lock()
	st := s.stateLocked(p.ID())
	if err == nil {
		st.failures = 0
		st.lastSuccess = now
	} else {
		st.failures++
	}
	run := health.Run{
		ID:                  runID,
		Finished:            now,
		Duration:            res.Duration,
		Appended:            res.Appended,
		LastSuccess:         st.lastSuccess,
		ConsecutiveFailures: st.failures,
	}
	s.mu.Unlock()

	name := componentName(p.ID())
	var status health.Status
	switch {
	case err == nil:
		status = health.NewHealthy(name, fmt.Sprintf("%s: %d records appended", res.Status, res.Appended))
	case errors.IsTransient(err):
		status = health.FromError(name, health.StateDegraded, err)
	default:
		status = health.FromError(name, health.StateUnhealthy, err)
	}
	s.monitor.Update(name, status.WithRun(run))
	s.metrics.recordOutcome(p.ID(), err == nil, now)
}

func (s *Scheduler) announce(ctx context.Context, p *autoprocess.Process, runID string, res engine.Result, propagate bool) {
	if s.bus == nil {
		if propagate {
			s.SeriesUpdated(p.Target())
		}
		return
	}

	done, _ := json.Marshal(DoneEvent{
		ProcessID: p.ID(),
		RunID:     runID,
		Target:    p.Target(),
		Appended:  res.Appended,
		Finished:  time.Now().UTC(),
	})
	if err := s.bus.Publish(ctx, ProcessDoneSubject(p.ID()), done); err != nil {
		s.logger.Warn("Failed to publish run notification", "process", p.ID(), "error", err)
	}
	if !propagate {
		return
	}
	updated, _ := json.Marshal(SeriesUpdatedEvent{Series: p.Target(), Source: p.ID()})
	if err := s.bus.Publish(ctx, SeriesUpdatedSubject(p.Target()), updated); err != nil {
		s.logger.Warn("Failed to publish series update", "series", p.Target(), "error", err)
		s.SeriesUpdated(p.Target())
	}
}

func componentName(id string) string { return "process/" + id }
