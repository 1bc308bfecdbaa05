package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360/autoprocess/autoprocess"
	"github.com/c360/autoprocess/errors"
	"github.com/c360/autoprocess/metric"
	"github.com/c360/autoprocess/storage"
	"github.com/c360/autoprocess/timeseries"
)

// Run outcomes, also used as the status label of the run metrics.
const (
	StatusAppended = "appended"
	StatusNoData   = "no_data"
	StatusNoOutput = "no_output"
	StatusConflict = "conflict"
	StatusInvalid  = "invalid"
	StatusFailed   = "failed"
)

// Result describes one execution.
type Result struct {
	ProcessID string
	Kind      autoprocess.Kind
	Status    string

	// After is the exclusive source cursor; zero when the target was empty.
	After    time.Time
	HasAfter bool

	Report   autoprocess.Report
	Appended int
	Duration time.Duration
}

// Engine executes processes against the series of a storage.Provider.
type Engine struct {
	provider storage.Provider
	logger   *slog.Logger
	metrics  *engineMetrics
	now      func() time.Time
}

// NewEngine creates an engine. A nil registry disables metrics.
func NewEngine(provider storage.Provider, logger *slog.Logger, registry *metric.MetricsRegistry) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "engine")

	m, err := newEngineMetrics(registry)
	if err != nil {
		logger.Error("Failed to initialize engine metrics", "error", err)
		m = nil
	}
	return &Engine{provider: provider, logger: logger, metrics: m, now: time.Now}
}

func (e *Engine) store(ctx context.Context, ref autoprocess.SeriesRef) (storage.Store, error) {
	station, series, err := ref.Split()
	if err != nil {
		return nil, errors.WrapInvalid(err, "engine", "store", "resolve "+string(ref))
	}
	s, err := e.provider.Series(ctx, station, series)
	if err != nil {
		return nil, errors.Wrap(err, "engine", "store", "open "+string(ref))
	}
	return s, nil
}

// Execute runs p once. The returned Result is filled in as far as the run got, also
// when an error is returned.
func (e *Engine) Execute(ctx context.Context, p *autoprocess.Process) (Result, error) {
	start := e.now()
	res := Result{ProcessID: p.ID(), Kind: p.Kind()}
	logger := e.logger.With("process", p.ID(), "kind", p.Kind())
	if runID, ok := RunIDFromContext(ctx); ok {
		logger = logger.With("run_id", runID)
	}

	err := e.execute(ctx, p, &res)
	res.Duration = e.now().Sub(start)
	res.Status = status(res, err)
	e.metrics.recordRun(res)

	switch {
	case err == nil:
		logger.Debug("Process executed",
			"status", res.Status, "in", res.Report.In, "appended", res.Appended, "duration", res.Duration)
	case errors.IsConflict(err):
		logger.Warn("Process append conflicts with target", "target", p.Target(), "error", err)
	default:
		logger.Error("Process execution failed", "status", res.Status, "error", err)
	}
	return res, err
}

func (e *Engine) execute(ctx context.Context, p *autoprocess.Process, res *Result) error {
	if err := ctx.Err(); err != nil {
		return errors.WrapTransient(err, "engine", "Execute", "start run")
	}

	target, err := e.store(ctx, p.Target())
	if err != nil {
		return err
	}
	source, err := e.store(ctx, p.Source())
	if err != nil {
		return err
	}

	var after *time.Time
	if end, ok, err := target.EndDate(ctx); err != nil {
		return errors.Wrap(err, "engine", "Execute", "read end date of "+string(p.Target()))
	} else if ok {
		res.After, res.HasAfter = p.StartAfter(end), true
		after = &res.After
	}

	slice, err := source.GetData(ctx, after)
	if err != nil {
		return errors.Wrap(err, "engine", "Execute", "read "+string(p.Source()))
	}
	if slice.Empty() {
		return nil
	}

	out, report := p.Apply(slice)
	res.Report = report
	if rst := report.Aggregate.Regularize; rst.Misaligned > 0 {
		step := "no whole-minute time step"
		if !rst.Step.IsZero() {
			step = "time step " + rst.Step.String()
		}
		return errors.WrapInvalid(errors.ErrInvalidData, "engine", "Execute",
			fmt.Sprintf("regularize %s: %d records do not fit %s", p.Source(), rst.Misaligned, step))
	}
	if out.Empty() {
		return nil
	}

	n, err := target.AppendData(ctx, out)
	if err != nil {
		return errors.Wrap(err, "engine", "Execute", "append to "+string(p.Target()))
	}
	res.Appended = n
	return nil
}

func status(res Result, err error) string {
	switch {
	case err == nil && res.Appended > 0:
		return StatusAppended
	case err == nil && res.Report.In == 0:
		return StatusNoData
	case err == nil:
		return StatusNoOutput
	case errors.IsConflict(err):
		return StatusConflict
	case errors.IsInvalid(err):
		return StatusInvalid
	default:
		return StatusFailed
	}
}

// Slice returns the records a run of p would read right now, without applying or
// appending anything.
func (e *Engine) Slice(ctx context.Context, p *autoprocess.Process) (timeseries.Series, error) {
	target, err := e.store(ctx, p.Target())
	if err != nil {
		return timeseries.Series{}, err
	}
	source, err := e.store(ctx, p.Source())
	if err != nil {
		return timeseries.Series{}, err
	}
	end, ok, err := target.EndDate(ctx)
	if err != nil {
		return timeseries.Series{}, err
	}
	if !ok {
		return source.GetData(ctx, nil)
	}
	after := p.StartAfter(end)
	return source.GetData(ctx, &after)
}
