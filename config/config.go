package config

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/c360/autoprocess/autoprocess"
	"github.com/c360/autoprocess/configstore"
	"github.com/c360/autoprocess/errors"
	"github.com/c360/autoprocess/pkg/tlsutil"
	"github.com/c360/autoprocess/scheduler"
	"github.com/c360/autoprocess/storage/kvstore"
)

// Storage modes.
const (
	StorageFile   = "file"
	StorageKV     = "kv"
	StorageMemory = "memory"
)

// Config is the complete service configuration.
type Config struct {
	NATS      NATSConfig               `json:"nats"`
	Metrics   MetricsConfig            `json:"metrics"`
	Scheduler SchedulerConfig          `json:"scheduler"`
	Storage   StorageConfig            `json:"storage"`
	Processes []autoprocess.Definition `json:"processes,omitempty"`
}

// NATSConfig defines NATS connection settings. NATS is optional: with no URLs the
// service runs standalone on file or memory storage.
type NATSConfig struct {
	URLs          []string             `json:"urls,omitempty"`
	Username      string               `json:"username,omitempty"`
	Password      string               `json:"password,omitempty"`
	Token         string               `json:"token,omitempty"`
	CredsFile     string               `json:"creds_file,omitempty"`
	MaxReconnects int                  `json:"max_reconnects"`
	ReconnectWait Duration             `json:"reconnect_wait"`
	Timeout       Duration             `json:"timeout"`
	TLS           tlsutil.ClientConfig `json:"tls"`
	Buckets       BucketsConfig        `json:"buckets"`

	// WatchProcesses adds the definitions stored in the processes bucket to the
	// ones listed in the file and follows their changes.
	WatchProcesses bool `json:"watch_processes"`
}

// Enabled reports whether a NATS server is configured.
func (c NATSConfig) Enabled() bool { return len(c.URLs) > 0 }

// URL joins the server URLs the way nats.Connect expects them.
func (c NATSConfig) URL() string { return strings.Join(c.URLs, ",") }

// BucketsConfig names the JetStream key-value buckets.
type BucketsConfig struct {
	Series    string `json:"series"`
	Processes string `json:"processes"`
}

// MetricsConfig configures the /metrics and /healthz endpoint.
type MetricsConfig struct {
	Enabled bool                 `json:"enabled"`
	Port    int                  `json:"port"`
	Path    string               `json:"path"`
	TLS     tlsutil.ServerConfig `json:"tls"`
}

// SchedulerConfig is the file form of scheduler.Config.
type SchedulerConfig struct {
	Workers       int         `json:"workers"`
	QueueSize     int         `json:"queue_size"`
	TriggerDelay  Duration    `json:"trigger_delay"`
	RateLimit     float64     `json:"rate_limit"`
	RateBurst     int         `json:"rate_burst"`
	SweepInterval Duration    `json:"sweep_interval"`
	StopTimeout   Duration    `json:"stop_timeout"`
	Retry         RetryConfig `json:"retry"`
}

// RetryConfig is the file form of errors.RetryConfig.
type RetryConfig struct {
	MaxRetries    int      `json:"max_retries"`
	InitialDelay  Duration `json:"initial_delay"`
	MaxDelay      Duration `json:"max_delay"`
	BackoffFactor float64  `json:"backoff_factor"`
}

// StorageConfig selects where series are kept.
type StorageConfig struct {
	Mode    string `json:"mode"`
	DataDir string `json:"data_dir,omitempty"`
}

// Default returns the configuration used before any file is applied.
func Default() *Config {
	sc := scheduler.DefaultConfig()
	return &Config{
		NATS: NATSConfig{
			MaxReconnects: -1,
			ReconnectWait: Duration(2 * time.Second),
			Timeout:       Duration(5 * time.Second),
			Buckets: BucketsConfig{
				Series:    kvstore.DefaultBucket,
				Processes: configstore.DefaultBucket,
			},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
		Scheduler: SchedulerConfig{
			Workers:       sc.Workers,
			QueueSize:     sc.QueueSize,
			TriggerDelay:  Duration(sc.TriggerDelay),
			RateLimit:     sc.RateLimit,
			RateBurst:     sc.RateBurst,
			SweepInterval: Duration(sc.SweepInterval),
			StopTimeout:   Duration(sc.StopTimeout),
			Retry: RetryConfig{
				MaxRetries:    sc.Retry.MaxRetries,
				InitialDelay:  Duration(sc.Retry.InitialDelay),
				MaxDelay:      Duration(sc.Retry.MaxDelay),
				BackoffFactor: sc.Retry.BackoffFactor,
			},
		},
		Storage: StorageConfig{
			Mode:    StorageFile,
			DataDir: "data",
		},
	}
}

// SchedulerConfig converts the file form into scheduler.Config.
func (c *Config) SchedulerConfig() scheduler.Config {
	s := c.Scheduler
	return scheduler.Config{
		Workers:       s.Workers,
		QueueSize:     s.QueueSize,
		TriggerDelay:  s.TriggerDelay.Std(),
		RateLimit:     s.RateLimit,
		RateBurst:     s.RateBurst,
		SweepInterval: s.SweepInterval.Std(),
		StopTimeout:   s.StopTimeout.Std(),
		Retry: errors.RetryConfig{
			MaxRetries:    s.Retry.MaxRetries,
			InitialDelay:  s.Retry.InitialDelay.Std(),
			MaxDelay:      s.Retry.MaxDelay.Std(),
			BackoffFactor: s.Retry.BackoffFactor,
		},
	}
}

var bucketName = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Validate checks every section and compiles every process definition.
func (c *Config) Validate() error {
	switch c.Storage.Mode {
	case StorageFile:
		if c.Storage.DataDir == "" {
			return errors.NewConfigError("storage.data_dir", "is required for file storage")
		}
	case StorageKV:
		if !c.NATS.Enabled() {
			return errors.NewConfigError("nats.urls", "are required for kv storage")
		}
	case StorageMemory:
	default:
		return errors.ConfigErrorf("storage.mode", "%q is not one of file, kv, memory", c.Storage.Mode)
	}

	if c.NATS.Enabled() {
		for field, name := range map[string]string{
			"nats.buckets.series":    c.NATS.Buckets.Series,
			"nats.buckets.processes": c.NATS.Buckets.Processes,
		} {
			if !bucketName.MatchString(name) {
				return errors.ConfigErrorf(field, "%q is not a valid bucket name", name)
			}
		}
		if c.NATS.Timeout.Std() <= 0 {
			return errors.NewConfigError("nats.timeout", "must be positive")
		}
		if c.NATS.Token != "" && c.NATS.Username != "" {
			return errors.NewConfigError("nats.token", "cannot be combined with username")
		}
		if err := c.NATS.TLS.Validate("nats.tls"); err != nil {
			return err
		}
	} else if c.NATS.WatchProcesses {
		return errors.NewConfigError("nats.watch_processes", "requires nats.urls")
	}

	if c.Metrics.Enabled {
		if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
			return errors.ConfigErrorf("metrics.port", "%d is out of range", c.Metrics.Port)
		}
		if !strings.HasPrefix(c.Metrics.Path, "/") || c.Metrics.Path == "/healthz" {
			return errors.ConfigErrorf("metrics.path", "%q must be an absolute path other than /healthz", c.Metrics.Path)
		}
		if err := c.Metrics.TLS.Validate("metrics.tls"); err != nil {
			return err
		}
	}

	if err := c.SchedulerConfig().Validate(); err != nil {
		return err
	}

	_, err := c.BuildSet()
	return err
}

// BuildSet compiles the enabled process definitions into a Set. Disabled definitions
// are still compiled so that a typo cannot hide until they are switched on.
func (c *Config) BuildSet() (*autoprocess.Set, error) {
	set := autoprocess.NewSet()
	seen := make(map[string]int, len(c.Processes))
	for i, d := range c.Processes {
		field := "processes[" + strconv.Itoa(i) + "]"
		if j, dup := seen[d.ID]; dup && d.ID != "" {
			return nil, errors.ConfigErrorf(field+".id", "%q is already used by processes[%d]", d.ID, j)
		}
		seen[d.ID] = i

		p, err := autoprocess.Compile(d)
		if err != nil {
			return nil, errors.Wrap(err, "config", "BuildSet", field)
		}
		if d.Disabled {
			continue
		}
		if err := set.Put(p); err != nil {
			return nil, errors.Wrap(err, "config", "BuildSet", field)
		}
	}
	return set, nil
}

// String returns the configuration as JSON with credentials masked.
func (c *Config) String() string {
	redacted := *c
	redacted.NATS.Password = mask(c.NATS.Password)
	redacted.NATS.Token = mask(c.NATS.Token)
	data, err := json.MarshalIndent(redacted, "", "  ")
	if err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return string(data)
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "***"
}
