package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/c360/autoprocess/storage"
	"github.com/c360/autoprocess/timeseries"
)

// FaultyStore wraps a storage.Store and fails the next calls of chosen operations.
type FaultyStore struct {
	storage.Store

	mu       sync.Mutex
	failures map[string][]error
	calls    map[string]int
}

// Operation names accepted by FailNext.
const (
	OpGetData    = "GetData"
	OpAppendData = "AppendData"
	OpEndDate    = "EndDate"
)

// NewFaultyStore wraps s.
func NewFaultyStore(s storage.Store) *FaultyStore {
	return &FaultyStore{Store: s, failures: make(map[string][]error), calls: make(map[string]int)}
}

// FailNext queues errs to be returned by the next calls of op, one per call.
func (f *FaultyStore) FailNext(op string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = append(f.failures[op], errs...)
}

// Calls returns how many times op was called.
func (f *FaultyStore) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *FaultyStore) next(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	q := f.failures[op]
	if len(q) == 0 {
		return nil
	}
	f.failures[op] = q[1:]
	return q[0]
}

// GetData fails if queued, otherwise delegates.
func (f *FaultyStore) GetData(ctx context.Context, after *time.Time) (timeseries.Series, error) {
	if err := f.next(OpGetData); err != nil {
		return timeseries.Series{}, err
	}
	return f.Store.GetData(ctx, after)
}

// AppendData fails if queued, otherwise delegates.
func (f *FaultyStore) AppendData(ctx context.Context, s timeseries.Series) (int, error) {
	if err := f.next(OpAppendData); err != nil {
		return 0, err
	}
	return f.Store.AppendData(ctx, s)
}

// EndDate fails if queued, otherwise delegates.
func (f *FaultyStore) EndDate(ctx context.Context) (time.Time, bool, error) {
	if err := f.next(OpEndDate); err != nil {
		return time.Time{}, false, err
	}
	return f.Store.EndDate(ctx)
}

// FaultyProvider serves FaultyStores over another provider, one per series key.
type FaultyProvider struct {
	inner storage.Provider

	mu     sync.Mutex
	stores map[string]*FaultyStore
}

// NewFaultyProvider wraps p.
func NewFaultyProvider(p storage.Provider) *FaultyProvider {
	return &FaultyProvider{inner: p, stores: make(map[string]*FaultyStore)}
}

// Series returns the wrapped store for station/series.
func (p *FaultyProvider) Series(ctx context.Context, station, series string) (storage.Store, error) {
	return p.Store(ctx, station, series)
}

// Store is Series with the concrete type, for injecting failures.
func (p *FaultyProvider) Store(ctx context.Context, station, series string) (*FaultyStore, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := storage.Key(station, series)
	if s, ok := p.stores[key]; ok {
		return s, nil
	}
	inner, err := p.inner.Series(ctx, station, series)
	if err != nil {
		return nil, err
	}
	s := NewFaultyStore(inner)
	p.stores[key] = s
	return s, nil
}
