package config

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/autoprocess/errors"
	"github.com/c360/autoprocess/pkg/timestamp"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "AUTOPROCESS"

const (
	formatJSON = "json"
	formatYAML = "yaml"
)

// Loader loads configuration in layers: defaults, then each file in order, then
// environment overrides. Later layers override only the fields they set.
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
	getenv     func(string) string
}

// NewLoader creates a loader with validation disabled.
func NewLoader() *Loader {
	return &Loader{
		envPrefix: EnvPrefix,
		getenv:    os.Getenv,
	}
}

// AddLayer adds a configuration file layer.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation makes Load call Config.Validate.
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads configuration from a single file.
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load merges all layers. Each file is checked against the configuration schema
// before it is merged.
func (l *Loader) Load() (*Config, error) {
	merged, err := toMap(Default())
	if err != nil {
		return nil, errors.Wrap(err, "config", "Load", "encode defaults")
	}

	for _, path := range l.layers {
		raw, err := l.loadRaw(path)
		if err != nil {
			return nil, err
		}
		if err := validateSchema(raw); err != nil {
			return nil, errors.Wrap(err, "config", "Load", "validate "+path)
		}
		merged = deepMergeMaps(merged, raw)
	}

	cfg, err := fromMap(merged)
	if err != nil {
		return nil, errors.Wrap(err, "config", "Load", "decode merged configuration")
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// Parse decodes a single document without defaults or overrides.
func Parse(data []byte, format string) (*Config, error) {
	raw, err := decodeRaw(data, format)
	if err != nil {
		return nil, err
	}
	if err := validateSchema(raw); err != nil {
		return nil, err
	}
	merged, err := toMap(Default())
	if err != nil {
		return nil, err
	}
	return fromMap(deepMergeMaps(merged, raw))
}

func formatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return formatJSON
	case ".yaml", ".yml":
		return formatYAML
	}
	return ""
}

func (l *Loader) loadRaw(path string) (map[string]any, error) {
	data, err := readFile(path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, errors.WrapInvalid(errors.ErrConfigNotFound, "config", "Load", path)
		}
		return nil, errors.WrapInvalid(err, "config", "Load", "read "+path)
	}
	raw, err := decodeRaw(data, formatOf(path))
	if err != nil {
		return nil, errors.Wrap(err, "config", "Load", "parse "+path)
	}
	return raw, nil
}

func decodeRaw(data []byte, format string) (map[string]any, error) {
	if len(data) > maxFileSize {
		return nil, errors.ConfigErrorf("", "document is %d bytes, limit is %d", len(data), maxFileSize)
	}
	raw := map[string]any{}
	switch format {
	case formatJSON:
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, errors.NewConfigError("", fmt.Sprintf("invalid JSON: %v", err))
		}
	case formatYAML:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, errors.NewConfigError("", fmt.Sprintf("invalid YAML: %v", err))
		}
		normalizeYAML(raw)
	default:
		return nil, errors.ConfigErrorf("", "unsupported format %q", format)
	}
	if err := checkNesting(raw, 0); err != nil {
		return nil, errors.NewConfigError("", err.Error())
	}
	return raw, nil
}

// normalizeYAML rewrites the values YAML resolves to types JSON does not have.
// Unquoted dates become time.Time and are turned back into the text form used by
// curve periods.
func normalizeYAML(v any) any {
	switch v := v.(type) {
	case map[string]any:
		for k, item := range v {
			v[k] = normalizeYAML(item)
		}
		return v
	case map[any]any:
		m := make(map[string]any, len(v))
		for k, item := range v {
			m[fmt.Sprint(k)] = normalizeYAML(item)
		}
		return m
	case []any:
		for i, item := range v {
			v[i] = normalizeYAML(item)
		}
		return v
	case time.Time:
		if v.Equal(timestamp.StartOfDate(v)) {
			return timestamp.FormatDate(v)
		}
		return timestamp.Format(v)
	}
	return v
}

func toMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func fromMap(m map[string]any) (*Config, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errors.NewConfigError("", err.Error())
	}
	return &cfg, nil
}

// deepMergeMaps recursively merges two maps, with override taking precedence.
// Lists are replaced, not merged.
func deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base))
	for k, v := range base {
		result[k] = v
	}

	for k, v := range override {
		if v == nil {
			continue
		}
		if baseMap, ok := base[k].(map[string]any); ok {
			if overrideMap, ok := v.(map[string]any); ok {
				result[k] = deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}
	return result
}

// applyEnvOverrides applies AUTOPROCESS_* variables.
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	str := func(name string, dst *string) error {
		key := l.envPrefix + "_" + name
		val := l.getenv(key)
		if val == "" {
			return nil
		}
		if err := checkEnvValue(key, val); err != nil {
			return errors.NewConfigError(key, err.Error())
		}
		*dst = val
		return nil
	}
	num := func(name string, dst *int) error {
		var s string
		if err := str(name, &s); err != nil || s == "" {
			return err
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return errors.ConfigErrorf(l.envPrefix+"_"+name, "%q is not an integer", s)
		}
		*dst = n
		return nil
	}

	var urls string
	for _, err := range []error{
		str("NATS_URLS", &urls),
		str("NATS_USERNAME", &cfg.NATS.Username),
		str("NATS_PASSWORD", &cfg.NATS.Password),
		str("NATS_TOKEN", &cfg.NATS.Token),
		str("NATS_CREDS_FILE", &cfg.NATS.CredsFile),
		str("STORAGE_MODE", &cfg.Storage.Mode),
		str("STORAGE_DATA_DIR", &cfg.Storage.DataDir),
		num("METRICS_PORT", &cfg.Metrics.Port),
		num("SCHEDULER_WORKERS", &cfg.Scheduler.Workers),
	} {
		if err != nil {
			return err
		}
	}
	if urls != "" {
		cfg.NATS.URLs = strings.Split(urls, ",")
	}
	return nil
}
