package config

import (
	stderrors "errors"
	"fmt"
	"os"
	"strings"
)

// Limits on what the loader accepts from files and the environment.
const (
	maxFileSize  = 4 << 20
	maxNesting   = 32
	maxEnvVarLen = 4096
	maxPathLen   = 4096
)

// checkPath accepts a non-empty path of bounded length with a .json, .yaml or .yml
// extension.
func checkPath(path string) error {
	switch {
	case path == "":
		return stderrors.New("empty config path")
	case len(path) > maxPathLen:
		return fmt.Errorf("config path is %d bytes, limit is %d", len(path), maxPathLen)
	case formatOf(path) == "":
		return fmt.Errorf("%s: config files end in .json, .yaml or .yml", path)
	}
	return nil
}

// readFile reads one configuration layer. The path must name a regular file of at
// most maxFileSize bytes. A missing file keeps fs.ErrNotExist in the error chain so
// the loader can report ErrConfigNotFound.
func readFile(path string) ([]byte, error) {
	if err := checkPath(path); err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file", path)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("%s is %d bytes, limit is %d", path, info.Size(), maxFileSize)
	}
	return os.ReadFile(path)
}

// checkNesting walks a decoded document of either format and rejects one nested
// deeper than maxNesting. For YAML it runs after anchors have been expanded.
func checkNesting(v any, depth int) error {
	if depth > maxNesting {
		return fmt.Errorf("document is nested deeper than %d levels", maxNesting)
	}
	switch v := v.(type) {
	case map[string]any:
		for _, item := range v {
			if err := checkNesting(item, depth+1); err != nil {
				return err
			}
		}
	case []any:
		for _, item := range v {
			if err := checkNesting(item, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

// checkEnvValue bounds an AUTOPROCESS_* override and rejects NUL bytes.
func checkEnvValue(key, value string) error {
	if len(value) > maxEnvVarLen {
		return fmt.Errorf("%s is %d bytes, limit is %d", key, len(value), maxEnvVarLen)
	}
	if strings.ContainsRune(value, 0) {
		return fmt.Errorf("%s contains a NUL byte", key)
	}
	return nil
}
