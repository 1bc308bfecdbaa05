// Package kvstore keeps series in a NATS JetStream key-value bucket, one key per
// series holding its CSV encoding. Appends are revision-checked, so two services
// appending to the same series cannot interleave.
package kvstore

import (
	"context"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/autoprocess/errors"
	"github.com/c360/autoprocess/natsclient"
	"github.com/c360/autoprocess/storage"
	"github.com/c360/autoprocess/timeseries"
)

// DefaultBucket is the bucket used when none is configured.
const DefaultBucket = "AUTOPROCESS_SERIES"

// SeriesKey returns the KV key of a series. Station and series names are KV tokens.
func SeriesKey(station, series string) string {
	return station + "." + series
}

// Store is one series in the bucket.
type Store struct {
	kv     *natsclient.KVStore
	key    string
	logger *slog.Logger
}

var _ storage.Store = (*Store)(nil)

func (s *Store) load(ctx context.Context) (timeseries.Series, uint64, error) {
	entry, err := s.kv.Get(ctx, s.key)
	if natsclient.IsKVNotFoundError(err) {
		return timeseries.Series{}, 0, nil
	}
	if err != nil {
		return timeseries.Series{}, 0, errors.WrapTransient(err, "kvstore", "load", "get "+s.key)
	}
	series, err := timeseries.Unmarshal(entry.Value)
	if err != nil {
		return timeseries.Series{}, 0, errors.WrapFatal(errors.ErrDataCorrupted, "kvstore", "load",
			"decode "+s.key+": "+err.Error())
	}
	return series, entry.Revision, nil
}

// GetData returns the records strictly after after, or all of them.
func (s *Store) GetData(ctx context.Context, after *time.Time) (timeseries.Series, error) {
	series, _, err := s.load(ctx)
	if err != nil {
		return timeseries.Series{}, err
	}
	return storage.After(series, after), nil
}

// EndDate returns the timestamp of the last record.
func (s *Store) EndDate(ctx context.Context) (time.Time, bool, error) {
	series, _, err := s.load(ctx)
	if err != nil {
		return time.Time{}, false, err
	}
	end, ok := series.EndDate()
	return end, ok, nil
}

// AppendData merges the records into the stored value under a revision check.
// A concurrent append is retried against the new value; an ordering conflict is not.
func (s *Store) AppendData(ctx context.Context, in timeseries.Series) (int, error) {
	if in.Empty() {
		return 0, nil
	}
	_, err := s.kv.UpdateWithRetry(ctx, s.key, func(current []byte) ([]byte, error) {
		var existing timeseries.Series
		if current != nil {
			var err error
			if existing, err = timeseries.Unmarshal(current); err != nil {
				return nil, errors.WrapFatal(errors.ErrDataCorrupted, "kvstore", "AppendData",
					"decode "+s.key+": "+err.Error())
			}
		}
		merged, err := storage.Merge(existing, in)
		if err != nil {
			return nil, err
		}
		return timeseries.Marshal(merged)
	})
	if err != nil {
		if errors.IsConflict(err) || errors.IsFatal(err) || errors.IsInvalid(err) {
			return 0, err
		}
		return 0, errors.WrapTransient(err, "kvstore", "AppendData", "update "+s.key)
	}
	s.logger.Debug("Appended records", "key", s.key, "count", in.Len())
	return in.Len(), nil
}

// Provider hands out Stores over one bucket.
type Provider struct {
	kv     *natsclient.KVStore
	logger *slog.Logger
}

var _ storage.Provider = (*Provider)(nil)

// NewProvider opens (or creates) bucket and returns a provider over it.
func NewProvider(ctx context.Context, client *natsclient.Client, bucket string, logger *slog.Logger) (*Provider, error) {
	if bucket == "" {
		bucket = DefaultBucket
	}
	if logger == nil {
		logger = slog.Default()
	}
	b, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "Time series data",
		History:     1,
		Storage:     jetstream.FileStorage,
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "kvstore", "NewProvider", "open bucket "+bucket)
	}
	return &Provider{
		kv:     client.NewKVStore(b),
		logger: logger.With("component", "kvstore", "bucket", bucket),
	}, nil
}

// Series returns the Store for a series.
func (p *Provider) Series(_ context.Context, station, series string) (storage.Store, error) {
	if err := storage.ValidateName("station", station); err != nil {
		return nil, err
	}
	if err := storage.ValidateName("series", series); err != nil {
		return nil, err
	}
	return &Store{kv: p.kv, key: SeriesKey(station, series), logger: p.logger}, nil
}
