package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/c360/autoprocess/errors"
	"github.com/c360/autoprocess/timeseries"
)

// Store is one time series.
//
// Implementations must be safe for concurrent use. AppendData is all-or-nothing:
// either every record is stored or none is.
type Store interface {
	// GetData returns the records strictly after the given time, or the whole series
	// when after is nil. An unknown series is empty, not an error.
	GetData(ctx context.Context, after *time.Time) (timeseries.Series, error)

	// AppendData adds records after the current end of the series and returns how
	// many were stored. It returns an error matching errors.ErrConflict when the
	// first new record does not come after the stored end.
	AppendData(ctx context.Context, s timeseries.Series) (int, error)

	// EndDate returns the timestamp of the last stored record; ok is false for an
	// empty series.
	EndDate(ctx context.Context) (end time.Time, ok bool, err error)
}

// Provider resolves a station and series name to its Store.
type Provider interface {
	Series(ctx context.Context, station, series string) (Store, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, station, series string) (Store, error)

// Series calls f.
func (f ProviderFunc) Series(ctx context.Context, station, series string) (Store, error) {
	return f(ctx, station, series)
}

// Key joins a station and series name into the "station/series" form used by
// every backend.
func Key(station, series string) string {
	return station + "/" + series
}

// ValidateName rejects names that cannot be used as a path segment or a NATS KV key
// token.
func ValidateName(kind, name string) error {
	if name == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "storage", "ValidateName", kind+" name is empty")
	}
	if strings.ContainsAny(name, "/\\ .*>") || name == ".." {
		return errors.WrapInvalid(errors.ErrInvalidData, "storage", "ValidateName",
			fmt.Sprintf("%s name %q contains a reserved character", kind, name))
	}
	return nil
}

// Merge appends s to existing after checking ordering. It is the shared conflict
// rule of every backend: s must be ordered, and its first record must be strictly
// after the last record of existing.
func Merge(existing, s timeseries.Series) (timeseries.Series, error) {
	if err := s.Validate(); err != nil {
		return existing, errors.WrapInvalid(err, "storage", "Merge", "validate appended records")
	}
	merged, ok := existing.Append(s)
	if !ok {
		first, _ := s.First()
		end, _ := existing.EndDate()
		return existing, errors.WrapInvalid(errors.ErrConflict, "storage", "Merge",
			fmt.Sprintf("append at %s (series ends at %s)",
				first.Time.Format(time.RFC3339), end.Format(time.RFC3339)))
	}
	return merged, nil
}

// After is the read rule shared by every backend.
func After(s timeseries.Series, after *time.Time) timeseries.Series {
	if after == nil {
		return s.Clone()
	}
	return s.After(*after)
}
