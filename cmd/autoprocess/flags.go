package main

import (
	"flag"
	"fmt"
	"os"
	"slices"
	"strconv"
	"time"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath      string
	DataDir         string
	LogLevel        string
	LogFormat       string
	Debug           bool
	ShutdownTimeout time.Duration
	Once            bool
	ShowVersion     bool
	ShowHelp        bool
	Validate        bool
}

func parseFlags(fs *flag.FlagSet, args []string) (*CLIConfig, error) {
	cfg := &CLIConfig{}

	fs.StringVar(&cfg.ConfigPath, "config",
		getEnv("AUTOPROCESS_CONFIG", "autoprocess.yaml"),
		"Path to configuration file, JSON or YAML (env: AUTOPROCESS_CONFIG)")

	fs.StringVar(&cfg.ConfigPath, "c",
		getEnv("AUTOPROCESS_CONFIG", "autoprocess.yaml"),
		"Path to configuration file, JSON or YAML (env: AUTOPROCESS_CONFIG)")

	fs.StringVar(&cfg.DataDir, "data-dir", "",
		"Series directory for file storage, overrides storage.data_dir")

	fs.StringVar(&cfg.LogLevel, "log-level",
		getEnv("AUTOPROCESS_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: AUTOPROCESS_LOG_LEVEL)")

	fs.StringVar(&cfg.LogFormat, "log-format",
		getEnv("AUTOPROCESS_LOG_FORMAT", "json"),
		"Log format: json, text (env: AUTOPROCESS_LOG_FORMAT)")

	fs.BoolVar(&cfg.Debug, "debug",
		getEnvBool("AUTOPROCESS_DEBUG", false),
		"Enable debug logging (env: AUTOPROCESS_DEBUG)")

	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("AUTOPROCESS_SHUTDOWN_TIMEOUT", 30*time.Second),
		"Graceful shutdown timeout (env: AUTOPROCESS_SHUTDOWN_TIMEOUT)")

	fs.BoolVar(&cfg.Once, "once", false, "Run every process once in dependency order and exit")
	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	fs.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	fs.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	fs.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")
	fs.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	fs.Usage = func() {
		printDetailedHelp(fs)
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.Debug {
		cfg.LogLevel = "debug"
	}

	return cfg, nil
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	if _, err := os.Stat(cfg.ConfigPath); err != nil {
		return fmt.Errorf("config file not found: %s", cfg.ConfigPath)
	}

	if !slices.Contains([]string{"debug", "info", "warn", "error"}, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}

	if !slices.Contains([]string{"json", "text"}, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}

	if cfg.Once && cfg.Validate {
		return fmt.Errorf("--once and --validate are mutually exclusive")
	}

	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid shutdown timeout: %s", cfg.ShutdownTimeout)
	}

	return nil
}

func printDetailedHelp(fs *flag.FlagSet) {
	out := fs.Output()
	_, _ = fmt.Fprintf(out, `%s - incremental quality control and transformation of time series

Usage: %s [options]

Options:
`, appName, fs.Name())
	fs.PrintDefaults()
	_, _ = fmt.Fprintf(out, `
Examples:
  # Run as a service
  %[1]s --config=/etc/autoprocess/autoprocess.yaml

  # Process everything that is pending once, for cron
  %[1]s --config=autoprocess.yaml --once --log-format=text

  # Validate configuration only
  %[1]s --validate

  # Configure through the environment
  export AUTOPROCESS_CONFIG=/etc/autoprocess/autoprocess.yaml
  export AUTOPROCESS_NATS_URLS=nats://nats:4222
  %[1]s

Version: %[2]s
Build: %[3]s
`, fs.Name(), Version, BuildTime)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
