// Package memstore keeps series in memory.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/c360/autoprocess/storage"
	"github.com/c360/autoprocess/timeseries"
)

// Store is an in-memory series.
type Store struct {
	mu   sync.RWMutex
	data timeseries.Series
}

var _ storage.Store = (*Store)(nil)

// NewStore returns a store holding a copy of s.
func NewStore(s timeseries.Series) *Store {
	return &Store{data: s.Clone()}
}

// GetData implements storage.Store.
func (s *Store) GetData(ctx context.Context, after *time.Time) (timeseries.Series, error) {
	if err := ctx.Err(); err != nil {
		return timeseries.Series{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return storage.After(s.data, after), nil
}

// AppendData implements storage.Store.
func (s *Store) AppendData(ctx context.Context, more timeseries.Series) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	merged, err := storage.Merge(s.data, more)
	if err != nil {
		return 0, err
	}
	s.data = merged
	return more.Len(), nil
}

// EndDate implements storage.Store.
func (s *Store) EndDate(ctx context.Context) (time.Time, bool, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	end, ok := s.data.EndDate()
	return end, ok, nil
}

// Snapshot returns a copy of the whole series.
func (s *Store) Snapshot() timeseries.Series {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Clone()
}

// Provider hands out in-memory stores, creating them on first use.
type Provider struct {
	mu     sync.Mutex
	series map[string]*Store
}

var _ storage.Provider = (*Provider)(nil)

// NewProvider returns an empty provider.
func NewProvider() *Provider {
	return &Provider{series: make(map[string]*Store)}
}

// Series implements storage.Provider.
func (p *Provider) Series(_ context.Context, station, series string) (storage.Store, error) {
	return p.Store(station, series), nil
}

// Store returns the concrete store for a series.
func (p *Provider) Store(station, series string) *Store {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := storage.Key(station, series)
	s, ok := p.series[key]
	if !ok {
		s = &Store{}
		p.series[key] = s
	}
	return s
}

// Set replaces the content of a series.
func (p *Provider) Set(station, series string, s timeseries.Series) {
	st := p.Store(station, series)
	st.mu.Lock()
	st.data = s.Clone()
	st.mu.Unlock()
}
