// Package timeseries defines the record and series types shared by the processing
// engines and the series stores.
package timeseries

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Missing returns the value used for a missing reading.
func Missing() float64 {
	return math.NaN()
}

// IsMissing reports whether v is a missing reading.
func IsMissing(v float64) bool {
	return math.IsNaN(v)
}

// Record is one time-stamped reading.
type Record struct {
	Time  time.Time
	Value float64
	Flags Flags
}

// IsMissing reports whether the record has no value.
func (r Record) IsMissing() bool {
	return IsMissing(r.Value)
}

// Clone returns a copy of r with its own flag set.
func (r Record) Clone() Record {
	r.Flags = r.Flags.Clone()
	return r
}

// Equal compares two records; missing values are equal to each other.
func (r Record) Equal(o Record) bool {
	if !r.Time.Equal(o.Time) || !r.Flags.Equal(o.Flags) {
		return false
	}
	if r.IsMissing() || o.IsMissing() {
		return r.IsMissing() && o.IsMissing()
	}
	return r.Value == o.Value
}

// Series is a sequence of records with strictly increasing timestamps.
type Series struct {
	Records []Record
}

// New builds a series from records, sorting them by time. It fails on duplicate
// timestamps and on infinite values.
func New(records ...Record) (Series, error) {
	rs := make([]Record, len(records))
	copy(rs, records)
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].Time.Before(rs[j].Time) })
	s := Series{Records: rs}
	if err := s.Validate(); err != nil {
		return Series{}, err
	}
	return s, nil
}

// Validate checks that timestamps strictly increase and that no value is infinite.
func (s Series) Validate() error {
	for i, r := range s.Records {
		if math.IsInf(r.Value, 0) {
			return fmt.Errorf("record %d (%s): value is not finite", i, r.Time.Format(time.DateTime))
		}
		if i > 0 && !r.Time.After(s.Records[i-1].Time) {
			return fmt.Errorf("record %d (%s): timestamp does not follow %s", i,
				r.Time.Format(time.DateTime), s.Records[i-1].Time.Format(time.DateTime))
		}
	}
	return nil
}

// Len returns the number of records.
func (s Series) Len() int {
	return len(s.Records)
}

// Empty reports whether the series has no records.
func (s Series) Empty() bool {
	return len(s.Records) == 0
}

// First returns the first record.
func (s Series) First() (Record, bool) {
	if len(s.Records) == 0 {
		return Record{}, false
	}
	return s.Records[0], true
}

// Last returns the last record.
func (s Series) Last() (Record, bool) {
	if len(s.Records) == 0 {
		return Record{}, false
	}
	return s.Records[len(s.Records)-1], true
}

// EndDate returns the last timestamp, or false when the series is empty.
func (s Series) EndDate() (time.Time, bool) {
	r, ok := s.Last()
	return r.Time, ok
}

// search returns the index of the first record not before t.
func (s Series) search(t time.Time) int {
	return sort.Search(len(s.Records), func(i int) bool { return !s.Records[i].Time.Before(t) })
}

// After returns a copy of the records strictly after t.
func (s Series) After(t time.Time) Series {
	i := sort.Search(len(s.Records), func(i int) bool { return s.Records[i].Time.After(t) })
	return Series{Records: cloneRecords(s.Records[i:])}
}

// Between returns a copy of the records with from <= time < to.
func (s Series) Between(from, to time.Time) Series {
	i, j := s.search(from), s.search(to)
	if j < i {
		j = i
	}
	return Series{Records: cloneRecords(s.Records[i:j])}
}

// Span returns the index range [i, j) of records with from <= time < to.
func (s Series) Span(from, to time.Time) (int, int) {
	i, j := s.search(from), s.search(to)
	if j < i {
		j = i
	}
	return i, j
}

// Clone returns a deep copy.
func (s Series) Clone() Series {
	return Series{Records: cloneRecords(s.Records)}
}

// Equal compares two series record by record.
func (s Series) Equal(o Series) bool {
	if len(s.Records) != len(o.Records) {
		return false
	}
	for i := range s.Records {
		if !s.Records[i].Equal(o.Records[i]) {
			return false
		}
	}
	return true
}

// Append returns a series with more appended. Every appended timestamp must be after
// the current end; otherwise ok is false and s is returned unchanged.
func (s Series) Append(more Series) (Series, bool) {
	if more.Empty() {
		return s, true
	}
	if end, has := s.EndDate(); has && !more.Records[0].Time.After(end) {
		return s, false
	}
	if more.Validate() != nil {
		return s, false
	}
	out := make([]Record, 0, len(s.Records)+len(more.Records))
	out = append(out, s.Records...)
	out = append(out, cloneRecords(more.Records)...)
	return Series{Records: out}, true
}

// CountMissing returns how many records have no value.
func (s Series) CountMissing() int {
	n := 0
	for _, r := range s.Records {
		if r.IsMissing() {
			n++
		}
	}
	return n
}

func cloneRecords(rs []Record) []Record {
	if len(rs) == 0 {
		return nil
	}
	out := make([]Record, len(rs))
	for i, r := range rs {
		out[i] = r.Clone()
	}
	return out
}
