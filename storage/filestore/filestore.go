// Package filestore keeps each series as a CSV file under a data directory:
// <dir>/<station>/<series>.csv.
package filestore

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/c360/autoprocess/errors"
	"github.com/c360/autoprocess/storage"
	"github.com/c360/autoprocess/timeseries"
)

// Store is a series backed by one CSV file.
type Store struct {
	path   string
	logger *slog.Logger
	mu     sync.RWMutex
}

var _ storage.Store = (*Store)(nil)

// Path returns the file backing the series.
func (s *Store) Path() string { return s.path }

func (s *Store) load() (timeseries.Series, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return timeseries.Series{}, nil
	}
	if err != nil {
		return timeseries.Series{}, errors.WrapTransient(err, "filestore", "load", "read "+s.path)
	}
	series, err := timeseries.Unmarshal(data)
	if err != nil {
		return timeseries.Series{}, errors.WrapFatal(errors.ErrDataCorrupted, "filestore", "load",
			"decode "+s.path+": "+err.Error())
	}
	return series, nil
}

// GetData implements storage.Store.
func (s *Store) GetData(ctx context.Context, after *time.Time) (timeseries.Series, error) {
	if err := ctx.Err(); err != nil {
		return timeseries.Series{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	series, err := s.load()
	if err != nil {
		return timeseries.Series{}, err
	}
	return storage.After(series, after), nil
}

// EndDate implements storage.Store.
func (s *Store) EndDate(ctx context.Context) (time.Time, bool, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	series, err := s.load()
	if err != nil {
		return time.Time{}, false, err
	}
	end, ok := series.EndDate()
	return end, ok, nil
}

// AppendData implements storage.Store. The merged series is written to a temporary
// file in the same directory and renamed over the original.
func (s *Store) AppendData(ctx context.Context, more timeseries.Series) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if more.Empty() {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.load()
	if err != nil {
		return 0, err
	}
	merged, err := storage.Merge(existing, more)
	if err != nil {
		return 0, err
	}

	var buf bytes.Buffer
	if err := timeseries.Encode(&buf, merged); err != nil {
		return 0, errors.Wrap(err, "filestore", "AppendData", "encode series")
	}
	if err := writeAtomic(s.path, buf.Bytes()); err != nil {
		return 0, err
	}

	s.logger.Debug("Appended records", "path", s.path, "records", more.Len(), "total", merged.Len())
	return more.Len(), nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.WrapFatal(err, "filestore", "writeAtomic", "create directory "+dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.WrapTransient(err, "filestore", "writeAtomic", "create temporary file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.WrapTransient(err, "filestore", "writeAtomic", "write temporary file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.WrapTransient(err, "filestore", "writeAtomic", "sync temporary file")
	}
	if err := tmp.Close(); err != nil {
		return errors.WrapTransient(err, "filestore", "writeAtomic", "close temporary file")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.WrapTransient(err, "filestore", "writeAtomic", "rename into place")
	}
	return nil
}

// Provider maps series to files under a directory. Stores are cached so that every
// caller of one series shares its lock.
type Provider struct {
	dir    string
	logger *slog.Logger

	mu     sync.Mutex
	stores map[string]*Store
}

var _ storage.Provider = (*Provider)(nil)

// NewProvider returns a provider rooted at dir, creating it if needed.
func NewProvider(dir string, logger *slog.Logger) (*Provider, error) {
	if dir == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "filestore", "NewProvider", "data directory is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.WrapFatal(err, "filestore", "NewProvider", "create data directory")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		dir:    dir,
		logger: logger.With("component", "filestore"),
		stores: make(map[string]*Store),
	}, nil
}

// Series implements storage.Provider.
func (p *Provider) Series(_ context.Context, station, series string) (storage.Store, error) {
	if err := storage.ValidateName("station", station); err != nil {
		return nil, err
	}
	if err := storage.ValidateName("series", series); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	key := storage.Key(station, series)
	if s, ok := p.stores[key]; ok {
		return s, nil
	}
	s := &Store{
		path:   filepath.Join(p.dir, station, series+".csv"),
		logger: p.logger,
	}
	p.stores[key] = s
	return s, nil
}
