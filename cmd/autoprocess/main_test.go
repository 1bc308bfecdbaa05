package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/autoprocess/timeseries"
)

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func TestParseFlags(t *testing.T) {
	t.Setenv("AUTOPROCESS_CONFIG", "")
	t.Setenv("AUTOPROCESS_LOG_LEVEL", "")

	cfg, err := parseFlags(newFlagSet(), nil)
	require.NoError(t, err)
	assert.Equal(t, "autoprocess.yaml", cfg.ConfigPath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.False(t, cfg.Once)

	cfg, err = parseFlags(newFlagSet(), []string{"-c", "x.json", "--once", "--debug", "--data-dir", "/srv/series"})
	require.NoError(t, err)
	assert.Equal(t, "x.json", cfg.ConfigPath)
	assert.True(t, cfg.Once)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/srv/series", cfg.DataDir)

	t.Setenv("AUTOPROCESS_CONFIG", "/etc/autoprocess.yaml")
	cfg, err = parseFlags(newFlagSet(), nil)
	require.NoError(t, err)
	assert.Equal(t, "/etc/autoprocess.yaml", cfg.ConfigPath)

	_, err = parseFlags(newFlagSet(), []string{"--no-such-flag"})
	assert.Error(t, err)
}

func TestValidateFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "autoprocess.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0644))

	valid := func() *CLIConfig {
		return &CLIConfig{ConfigPath: path, LogLevel: "info", LogFormat: "json", ShutdownTimeout: time.Second}
	}

	tests := map[string]func(*CLIConfig){
		"missing config":      func(c *CLIConfig) { c.ConfigPath = filepath.Join(t.TempDir(), "none.yaml") },
		"bad level":           func(c *CLIConfig) { c.LogLevel = "trace" },
		"bad format":          func(c *CLIConfig) { c.LogFormat = "xml" },
		"once and validate":   func(c *CLIConfig) { c.Once, c.Validate = true, true },
		"no shutdown timeout": func(c *CLIConfig) { c.ShutdownTimeout = 0 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			c := valid()
			mutate(c)
			assert.Error(t, validateFlags(c))
		})
	}

	assert.NoError(t, validateFlags(valid()))
	assert.NoError(t, validateFlags(&CLIConfig{ShowVersion: true}), "version skips validation")
}

func TestSetupLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(&buf, "warn", "json")
	logger.Info("hidden")
	logger.Warn("shown", "process", "temp-range")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "shown", line["msg"])
	assert.Equal(t, appName, line["service"])
	assert.Equal(t, Version, line["version"])
	assert.Equal(t, float64(os.Getpid()), line["pid"])
	assert.Equal(t, "temp-range", line["process"])

	buf.Reset()
	setupLogger(&buf, "debug", "text").Debug("detail")
	assert.Contains(t, buf.String(), "msg=detail")
	assert.Contains(t, buf.String(), "source=")
}

const onceConfig = `
metrics:
  enabled: false
scheduler:
  workers: 2
  queue_size: 4
processes:
  - id: stage-range
    station: "1334"
    source: 1334/stage-raw
    target: 1334/stage
    kind: range_check
    range_check:
      lower_bound: 0
      upper_bound: 100
  - id: stage-discharge
    station: "1334"
    source: 1334/stage
    target: 1334/discharge
    kind: curve_interpolation
    curve_interpolation:
      name: Stage-discharge curve
      periods:
        - start_date: 2024-01-01
          end_date: 2024-12-31
          curve: |
            0,0
            100,1000
`

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "autoprocess.yaml")
	require.NoError(t, os.WriteFile(path, []byte(onceConfig), 0644))
	return path
}

func TestRun_Validate(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir)
	require.NoError(t, run([]string{"--config", path, "--validate", "--log-level", "error"}))

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("storage:\n  mode: s3\n"), 0644))
	assert.Error(t, run([]string{"--config", bad, "--validate", "--log-level", "error"}))
}

func TestRun_Once(t *testing.T) {
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "series")
	path := writeConfig(t, dir)

	require.NoError(t, os.MkdirAll(filepath.Join(dataDir, "1334"), 0755))
	raw := "2024-03-01 00:00,50,\n2024-03-01 00:10,150,\n2024-03-01 00:20,10,\n"
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "1334", "stage-raw.csv"), []byte(raw), 0644))

	args := []string{"--config", path, "--once", "--data-dir", dataDir, "--log-level", "error"}
	require.NoError(t, run(args))

	data, err := os.ReadFile(filepath.Join(dataDir, "1334", "discharge.csv"))
	require.NoError(t, err)
	discharge, err := timeseries.Unmarshal(data)
	require.NoError(t, err)
	require.Equal(t, 3, discharge.Len())
	assert.Equal(t, 500.0, discharge.Records[0].Value)
	assert.True(t, discharge.Records[1].IsMissing())
	assert.Empty(t, discharge.Records[1].Flags, "interpolation resets flags")

	stage, err := os.ReadFile(filepath.Join(dataDir, "1334", "stage.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(stage), "2024-03-01 00:10,,RANGE")
	assert.Equal(t, 100.0, discharge.Records[2].Value)

	require.NoError(t, run(args), "a second run has nothing to do")
	again, err := os.ReadFile(filepath.Join(dataDir, "1334", "discharge.csv"))
	require.NoError(t, err)
	assert.Equal(t, string(data), string(again))
}
