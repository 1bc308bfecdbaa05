// Package main implements the autoprocess service: it keeps derived time series up
// to date by running range checks, curve interpolations and aggregations whenever
// their source series grow.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/autoprocess/autoprocess"
	"github.com/c360/autoprocess/config"
	"github.com/c360/autoprocess/configstore"
	"github.com/c360/autoprocess/engine"
	"github.com/c360/autoprocess/health"
	"github.com/c360/autoprocess/metric"
	"github.com/c360/autoprocess/natsclient"
	"github.com/c360/autoprocess/pkg/tlsutil"
	"github.com/c360/autoprocess/scheduler"
	"github.com/c360/autoprocess/storage"
	"github.com/c360/autoprocess/storage/filestore"
	"github.com/c360/autoprocess/storage/kvstore"
	"github.com/c360/autoprocess/storage/memstore"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "autoprocess"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(os.Args[1:]); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run(args []string) error {
	cliCfg, shouldExit, err := initializeCLI(args)
	if shouldExit || err != nil {
		return err
	}

	cfg, err := loadConfig(cliCfg)
	if err != nil {
		return err
	}

	set, err := cfg.BuildSet()
	if err != nil {
		return fmt.Errorf("compile processes: %w", err)
	}

	if cliCfg.Validate {
		slog.Info("Configuration is valid", "processes", set.Len(), "storage", cfg.Storage.Mode)
		return nil
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	svc, err := newApp(ctx, cfg, set, slog.Default())
	if err != nil {
		return err
	}
	defer svc.close(cliCfg.ShutdownTimeout)

	if cliCfg.Once {
		return svc.runOnce(ctx)
	}
	return svc.serve(ctx, cliCfg.ShutdownTimeout)
}

// initializeCLI parses flags and sets up logging
func initializeCLI(args []string) (*CLIConfig, bool, error) {
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	cliCfg, err := parseFlags(fs, args)
	if err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, fmt.Errorf("invalid flags: %w", err)
	}
	if err := validateFlags(cliCfg); err != nil {
		return nil, false, fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil, true, nil
	}

	if cliCfg.ShowHelp {
		printDetailedHelp(fs)
		return nil, true, nil
	}

	logger := setupLogger(os.Stdout, cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	slog.Info("Starting autoprocess",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	return cliCfg, false, nil
}

// loadConfig loads the file, applies flag overrides and validates the result.
func loadConfig(cliCfg *CLIConfig) (*config.Config, error) {
	loader := config.NewLoader()
	cfg, err := loader.LoadFile(cliCfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cliCfg.DataDir != "" {
		cfg.Storage.DataDir = cliCfg.DataDir
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// app holds the wired service.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	registry  *metric.MetricsRegistry
	nats      *natsclient.Client
	scheduler *scheduler.Scheduler
}

func newApp(ctx context.Context, cfg *config.Config, set *autoprocess.Set, logger *slog.Logger) (*app, error) {
	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: metric.NewMetricsRegistry(),
	}
	a.recordProcesses(set)

	monitor := health.NewMonitor(appName)
	if cfg.NATS.Enabled() {
		if err := a.connectToNATS(ctx, monitor); err != nil {
			return nil, err
		}
	}

	provider, err := a.setupStorage(ctx)
	if err != nil {
		a.close(5 * time.Second)
		return nil, err
	}

	opts := []scheduler.Option{
		scheduler.WithLogger(logger),
		scheduler.WithMetrics(a.registry),
		scheduler.WithMonitor(monitor),
	}
	if a.nats != nil {
		opts = append(opts, scheduler.WithBus(a.nats))
	}
	sched, err := scheduler.New(cfg.SchedulerConfig(), set, engine.NewEngine(provider, logger, a.registry), opts...)
	if err != nil {
		a.close(5 * time.Second)
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	a.scheduler = sched
	return a, nil
}

// connectToNATS establishes the NATS connection and waits for it to be ready
func (a *app) connectToNATS(ctx context.Context, monitor *health.Monitor) error {
	core := a.registry.CoreMetrics()
	opts := []natsclient.ClientOption{
		natsclient.WithLogger(a.logger),
		natsclient.WithName(appName),
		natsclient.WithMaxReconnects(a.cfg.NATS.MaxReconnects),
		natsclient.WithReconnectWait(a.cfg.NATS.ReconnectWait.Std()),
		natsclient.WithTimeout(a.cfg.NATS.Timeout.Std()),
		natsclient.WithMetrics(a.registry),
		natsclient.WithHealthChangeCallback(func(healthy bool) {
			core.RecordNATSStatus(healthy)
			if healthy {
				monitor.UpdateHealthy("nats", "connected")
				return
			}
			core.RecordNATSReconnect()
			monitor.UpdateUnhealthy("nats", "disconnected")
		}),
	}
	if a.cfg.NATS.Username != "" {
		opts = append(opts, natsclient.WithCredentials(a.cfg.NATS.Username, a.cfg.NATS.Password))
	}
	if a.cfg.NATS.Token != "" {
		opts = append(opts, natsclient.WithToken(a.cfg.NATS.Token))
	}
	if a.cfg.NATS.CredsFile != "" {
		opts = append(opts, natsclient.WithCredsFile(a.cfg.NATS.CredsFile))
	}
	tlsConfig, err := tlsutil.LoadClientTLSConfig(a.cfg.NATS.TLS)
	if err != nil {
		return fmt.Errorf("load NATS TLS config: %w", err)
	}
	if tlsConfig != nil {
		opts = append(opts, natsclient.WithTLSConfig(tlsConfig))
	}

	client, err := natsclient.NewClient(a.cfg.NATS.URL(), opts...)
	if err != nil {
		return fmt.Errorf("create NATS client: %w", err)
	}

	a.logger.Info("Connecting to NATS", "urls", a.cfg.NATS.URLs)
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.WaitForConnection(connCtx); err != nil {
		_ = client.Close(ctx)
		return fmt.Errorf("NATS connection timeout: %w", err)
	}

	a.nats = client
	return nil
}

// setupStorage opens the series provider selected by storage.mode.
func (a *app) setupStorage(ctx context.Context) (storage.Provider, error) {
	a.logger.Info("Opening series storage", "mode", a.cfg.Storage.Mode)
	switch a.cfg.Storage.Mode {
	case config.StorageKV:
		p, err := kvstore.NewProvider(ctx, a.nats, a.cfg.NATS.Buckets.Series, a.logger)
		if err != nil {
			return nil, fmt.Errorf("open series bucket: %w", err)
		}
		return p, nil
	case config.StorageMemory:
		a.logger.Warn("Series are kept in memory and lost on exit")
		return memstore.NewProvider(), nil
	default:
		p, err := filestore.NewProvider(a.cfg.Storage.DataDir, a.logger)
		if err != nil {
			return nil, fmt.Errorf("open data directory: %w", err)
		}
		return p, nil
	}
}

// watchProcesses follows the definitions stored in NATS and applies every change to
// the scheduler.
func (a *app) watchProcesses(ctx context.Context) error {
	store, err := configstore.NewStore(ctx, a.nats, a.cfg.NATS.Buckets.Processes, a.logger)
	if err != nil {
		return fmt.Errorf("open processes bucket: %w", err)
	}

	core := a.registry.CoreMetrics()
	return store.Watch(ctx, func(ev configstore.Event) {
		logger := a.logger.With("process", ev.ID)
		switch {
		case ev.Op == configstore.OpDelete:
			a.scheduler.Remove(ev.ID)
			logger.Info("Process removed")
		case ev.Err != nil:
			core.RecordConfigError()
			a.scheduler.Remove(ev.ID)
			logger.Error("Stored process definition rejected", "error", ev.Err)
		case ev.Definition.Disabled:
			a.scheduler.Remove(ev.ID)
			logger.Info("Process disabled")
		default:
			if err := a.scheduler.Put(ev.Process); err != nil {
				core.RecordConfigError()
				logger.Error("Stored process definition rejected", "error", err)
				return
			}
			logger.Info("Process updated", "kind", ev.Process.Kind(), "version", ev.Definition.Version)
		}
		a.recordProcesses(nil)
	})
}

func (a *app) recordProcesses(set *autoprocess.Set) {
	if set == nil {
		if a.scheduler == nil {
			return
		}
		set = a.scheduler.Set()
	}
	byKind := make(map[string]int)
	for _, p := range set.All() {
		byKind[string(p.Kind())]++
	}
	a.registry.CoreMetrics().RecordProcesses(byKind)
}

// runOnce executes every process once and reports the outcome of each.
func (a *app) runOnce(ctx context.Context) error {
	results, err := a.scheduler.RunOnce(ctx)
	for id, res := range results {
		a.logger.Info("Process finished",
			"process", id,
			"status", res.Status,
			"appended", res.Appended,
			"duration", res.Duration)
	}
	if err != nil {
		return fmt.Errorf("run processes: %w", err)
	}
	return nil
}

// serve runs the scheduler until ctx is cancelled.
func (a *app) serve(ctx context.Context, shutdownTimeout time.Duration) error {
	core := a.registry.CoreMetrics()
	core.RecordServiceStatus(appName, metric.StatusStarting)

	if a.cfg.Metrics.Enabled {
		server := metric.NewServer(a.cfg.Metrics.Port, a.cfg.Metrics.Path, a.registry, a.scheduler.Monitor())
		tlsConfig, err := tlsutil.LoadServerTLSConfig(a.cfg.Metrics.TLS)
		if err != nil {
			return fmt.Errorf("load metrics TLS config: %w", err)
		}
		if tlsConfig != nil {
			server.SetTLSConfig(tlsConfig)
		}
		if err := server.Start(); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		a.logger.Info("Metrics server started", "address", server.Address())
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := server.Stop(stopCtx); err != nil {
				a.logger.Error("Error stopping metrics server", "error", err)
			}
		}()
	}

	if a.cfg.NATS.WatchProcesses {
		if err := a.watchProcesses(ctx); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.scheduler.Run(gctx)
	})
	core.RecordServiceStatus(appName, metric.StatusRunning)
	a.logger.Info("autoprocess started", "processes", a.scheduler.Set().Len())

	err := g.Wait()
	core.RecordServiceStatus(appName, metric.StatusStopping)
	if err != nil {
		core.RecordServiceStatus(appName, metric.StatusFailed)
		return fmt.Errorf("scheduler: %w", err)
	}
	core.RecordServiceStatus(appName, metric.StatusStopped)
	a.logger.Info("autoprocess shutdown complete")
	return nil
}

func (a *app) close(timeout time.Duration) {
	if a.nats == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := a.nats.Close(ctx); err != nil {
		a.logger.Error("Error closing NATS connection", "error", err)
	}
}
