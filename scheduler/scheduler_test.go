package scheduler

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/autoprocess/autoprocess"
	"github.com/c360/autoprocess/engine"
	"github.com/c360/autoprocess/errors"
	"github.com/c360/autoprocess/metric"
	"github.com/c360/autoprocess/processor/rangecheck"
	"github.com/c360/autoprocess/storage/memstore"
	"github.com/c360/autoprocess/testutil"
)

func process(t *testing.T, id, source, target string) *autoprocess.Process {
	t.Helper()
	p, err := autoprocess.Compile(autoprocess.Definition{
		ID:         id,
		Station:    "1334",
		Source:     autoprocess.NewSeriesRef("1334", source),
		Target:     autoprocess.NewSeriesRef("1334", target),
		Kind:       autoprocess.KindRangeCheck,
		RangeCheck: &rangecheck.Config{LowerBound: 0, UpperBound: 100},
	})
	require.NoError(t, err)
	return p
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.TriggerDelay = 0
	cfg.RateLimit = 0
	cfg.SweepInterval = 0
	cfg.Retry = errors.RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, BackoffFactor: 2}
	cfg.StopTimeout = 5 * time.Second
	return cfg
}

type fakeExec struct {
	mu      sync.Mutex
	calls   map[string]int
	running map[string]int
	overlap bool
	delay   time.Duration
	errs    map[string][]error
}

func newFakeExec() *fakeExec {
	return &fakeExec{calls: map[string]int{}, running: map[string]int{}, errs: map[string][]error{}}
}

func (f *fakeExec) Execute(_ context.Context, p *autoprocess.Process) (engine.Result, error) {
	f.mu.Lock()
	f.calls[p.ID()]++
	f.running[p.ID()]++
	if f.running[p.ID()] > 1 {
		f.overlap = true
	}
	var err error
	if q := f.errs[p.ID()]; len(q) > 0 {
		err, f.errs[p.ID()] = q[0], q[1:]
	}
	f.mu.Unlock()

	time.Sleep(f.delay)

	f.mu.Lock()
	f.running[p.ID()]--
	f.mu.Unlock()

	res := engine.Result{ProcessID: p.ID(), Kind: p.Kind(), Status: engine.StatusNoData}
	if err != nil {
		res.Status = engine.StatusFailed
	}
	return res, err
}

func (f *fakeExec) count(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	tests := map[string]func(*Config){
		"no workers":          func(c *Config) { c.Workers = 0 },
		"queue below workers": func(c *Config) { c.QueueSize = 1 },
		"negative delay":      func(c *Config) { c.TriggerDelay = -time.Second },
		"negative rate":       func(c *Config) { c.RateLimit = -1 },
		"rate without burst":  func(c *Config) { c.RateBurst = 0 },
		"negative sweep":      func(c *Config) { c.SweepInterval = -time.Second },
		"negative retries":    func(c *Config) { c.Retry.MaxRetries = -1 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			assert.True(t, errors.IsConfig(cfg.Validate()))
		})
	}
}

func TestStages(t *testing.T) {
	raw := process(t, "a-check", "raw", "checked")
	second := process(t, "b-recheck", "checked", "final")
	other := process(t, "c-other", "level", "level-checked")

	stages := Stages([]*autoprocess.Process{second, raw, other})
	require.Len(t, stages, 2)
	assert.ElementsMatch(t, []*autoprocess.Process{raw, other}, stages[0])
	assert.Equal(t, []*autoprocess.Process{second}, stages[1])

	x := process(t, "x", "s1", "s2")
	y := process(t, "y", "s2", "s1")
	stages = Stages([]*autoprocess.Process{x, y})
	total := 0
	for _, st := range stages {
		total += len(st)
	}
	assert.Equal(t, 2, total, "a cycle still runs every process")
}

func TestRunOnce_Chain(t *testing.T) {
	ctx := context.Background()
	provider := memstore.NewProvider()
	start := testutil.Time(t, "2024-05-03 00:00")
	provider.Set("1334", "raw", testutil.Regular(t, start, time.Hour, 10, 200, 30))

	set := autoprocess.NewSet()
	require.NoError(t, set.Put(process(t, "b-recheck", "checked", "final")))
	require.NoError(t, set.Put(process(t, "a-check", "raw", "checked")))

	s, err := New(testConfig(), set, engine.NewEngine(provider, nil, nil))
	require.NoError(t, err)

	results, err := s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, results["a-check"].Appended)
	assert.Equal(t, 3, results["b-recheck"].Appended, "the second process sees the first one's output")
	assert.Equal(t, 3, provider.Store("1334", "final").Snapshot().Len())

	status, ok := s.Monitor().Get("process/a-check")
	require.True(t, ok)
	assert.True(t, status.IsHealthy())
	require.NotNil(t, status.Run)
	assert.Equal(t, 3, status.Run.Appended)
	assert.NotEmpty(t, status.Run.ID)
}

func TestRunOnce_ReportsFailures(t *testing.T) {
	exec := newFakeExec()
	exec.errs["bad"] = []error{errors.NewConfigError("aggregation", "broken")}

	set := autoprocess.NewSet()
	require.NoError(t, set.Put(process(t, "bad", "raw", "checked")))
	require.NoError(t, set.Put(process(t, "good", "level", "level-checked")))

	s, err := New(testConfig(), set, exec)
	require.NoError(t, err)

	results, err := s.RunOnce(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))
	assert.Len(t, results, 2)
	assert.Equal(t, 1, exec.count("bad"), "configuration errors are not retried")
	assert.Equal(t, 1, exec.count("good"))

	status, _ := s.Monitor().Get("process/bad")
	assert.True(t, status.IsUnhealthy())
	assert.Equal(t, 1, status.Run.ConsecutiveFailures)
}

func TestScheduler_RetriesTransientFailures(t *testing.T) {
	exec := newFakeExec()
	exec.errs["p"] = []error{errors.ErrStorageUnavailable, errors.ErrNoConnection}

	set := autoprocess.NewSet()
	require.NoError(t, set.Put(process(t, "p", "raw", "checked")))
	registry := metric.NewMetricsRegistry()
	s, err := New(testConfig(), set, exec, WithMetrics(registry))
	require.NoError(t, err)

	_, err = s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, exec.count("p"))

	status, _ := s.Monitor().Get("process/p")
	assert.True(t, status.IsHealthy())
	assert.Zero(t, status.Run.ConsecutiveFailures)
}

func TestScheduler_TransientExhaustionDegrades(t *testing.T) {
	exec := newFakeExec()
	exec.errs["p"] = []error{errors.ErrStorageUnavailable, errors.ErrStorageUnavailable, errors.ErrStorageUnavailable}

	set := autoprocess.NewSet()
	require.NoError(t, set.Put(process(t, "p", "raw", "checked")))
	s, err := New(testConfig(), set, exec)
	require.NoError(t, err)

	_, err = s.RunOnce(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))

	status, _ := s.Monitor().Get("process/p")
	assert.True(t, status.IsDegraded())
}

func TestScheduler_OneRunPerProcessInFlight(t *testing.T) {
	exec := newFakeExec()
	exec.delay = 5 * time.Millisecond

	set := autoprocess.NewSet()
	require.NoError(t, set.Put(process(t, "a", "raw", "a-out")))
	require.NoError(t, set.Put(process(t, "b", "raw", "b-out")))

	s, err := New(testConfig(), set, exec)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))

	for i := 0; i < 50; i++ {
		s.SeriesUpdated("1334/raw")
	}
	require.NoError(t, s.Stop())

	exec.mu.Lock()
	defer exec.mu.Unlock()
	assert.False(t, exec.overlap, "a process ran twice at once")
	assert.Less(t, exec.calls["a"], 51, "queued triggers are coalesced")
	assert.GreaterOrEqual(t, exec.calls["a"], 1)
	assert.GreaterOrEqual(t, exec.calls["b"], 1)
}

func TestScheduler_TriggerDelay(t *testing.T) {
	exec := newFakeExec()
	cfg := testConfig()
	cfg.TriggerDelay = 50 * time.Millisecond

	s, err := New(cfg, autoprocess.NewSet(), exec)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	defer func() { _ = s.Stop() }()

	p := process(t, "p", "raw", "checked")
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Put(p))
	}
	assert.Zero(t, exec.count("p"))

	assert.Eventually(t, func() bool { return exec.count("p") == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, exec.count("p"), "edits within the delay collapse into one run")

	require.Error(t, s.Put(process(t, "q", "level", "checked")), "two processes may not share a target")

	s.Remove("p")
	_, ok := s.Monitor().Get("process/p")
	assert.False(t, ok)
	assert.Zero(t, s.SeriesUpdated("1334/raw"))
}

func TestScheduler_BusPropagation(t *testing.T) {
	ctx := context.Background()
	bus := testutil.NewMockNATSClient()
	provider := memstore.NewProvider()

	set := autoprocess.NewSet()
	require.NoError(t, set.Put(process(t, "a-check", "raw", "checked")))
	require.NoError(t, set.Put(process(t, "b-recheck", "checked", "final")))

	s, err := New(testConfig(), set, engine.NewEngine(provider, nil, nil), WithBus(bus))
	require.NoError(t, err)
	require.NoError(t, s.Start(ctx))
	defer func() { _ = s.Stop() }()

	start := testutil.Time(t, "2024-05-03 00:00")
	_, err = provider.Store("1334", "raw").AppendData(ctx, testutil.Regular(t, start, time.Hour, 1, 2))
	require.NoError(t, err)

	payload, _ := json.Marshal(SeriesUpdatedEvent{Series: "1334/raw"})
	require.NoError(t, bus.Publish(ctx, SeriesUpdatedSubject("1334/raw"), payload))

	assert.Eventually(t, func() bool {
		return provider.Store("1334", "final").Snapshot().Len() == 2
	}, 2*time.Second, 10*time.Millisecond)

	testutil.WaitForMessageCount(t, bus, ProcessDoneSubject("a-check"), 1, time.Second)
	var done DoneEvent
	require.NoError(t, json.Unmarshal(bus.GetMessages(ProcessDoneSubject("a-check"))[0], &done))
	assert.Equal(t, 2, done.Appended)
	assert.Equal(t, autoprocess.SeriesRef("1334/checked"), done.Target)
	assert.NotEmpty(t, done.RunID)

	assert.Equal(t, 1, bus.GetMessageCount(SeriesUpdatedSubject("1334/checked")))
}

func TestScheduler_MalformedUpdateIgnored(t *testing.T) {
	exec := newFakeExec()
	bus := testutil.NewMockNATSClient()
	set := autoprocess.NewSet()
	require.NoError(t, set.Put(process(t, "p", "raw", "checked")))

	s, err := New(testConfig(), set, exec, WithBus(bus))
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, bus.Publish(context.Background(), SeriesUpdatedSubject("1334/raw"), []byte("not json")))
	require.NoError(t, s.Stop())

	assert.Equal(t, 1, exec.count("p"), "only the startup sweep ran")
}

func TestSubjects(t *testing.T) {
	assert.Equal(t, "autoprocess.series.1334.rain.updated", SeriesUpdatedSubject("1334/rain"))
	assert.True(t, testutil.SubjectMatches(SeriesUpdatedPattern, SeriesUpdatedSubject("1334/rain")))
	assert.Equal(t, "autoprocess.process.rain-daily.done", ProcessDoneSubject("rain-daily"))
}
