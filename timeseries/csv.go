package timeseries

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/c360/autoprocess/pkg/timestamp"
)

// Encode writes s as lines of "date,value,flags". Missing values are written as an
// empty field and flags are space-separated.
func Encode(w io.Writer, s Series) error {
	cw := csv.NewWriter(w)
	row := make([]string, 3)
	for _, r := range s.Records {
		row[0] = timestamp.Format(r.Time)
		row[1] = FormatValue(r.Value)
		row[2] = r.Flags.String()
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Marshal returns the CSV text of s.
func Marshal(s Series) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode reads lines of "date,value[,flags]". Blank lines are skipped. Empty,
// "nan" and infinite values decode as missing.
func Decode(r io.Reader) (Series, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	var records []Record
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Series{}, err
		}
		line, _ := cr.FieldPos(0)
		if len(row) < 2 {
			return Series{}, fmt.Errorf("line %d: expected date and value", line)
		}
		t, err := timestamp.Parse(row[0])
		if err != nil {
			return Series{}, fmt.Errorf("line %d: %w", line, err)
		}
		v, err := ParseValue(row[1])
		if err != nil {
			return Series{}, fmt.Errorf("line %d: %w", line, err)
		}
		rec := Record{Time: t, Value: v}
		if len(row) > 2 {
			rec.Flags = ParseFlags(row[2])
		}
		records = append(records, rec)
	}

	s := Series{Records: records}
	if err := s.Validate(); err != nil {
		return Series{}, err
	}
	return s, nil
}

// Unmarshal parses CSV text produced by Marshal.
func Unmarshal(data []byte) (Series, error) {
	return Decode(bytes.NewReader(data))
}

// FormatValue renders a value with the shortest exact representation; missing is "".
func FormatValue(v float64) string {
	if IsMissing(v) || math.IsInf(v, 0) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ParseValue reads a value field. Empty, "nan" and infinite values are missing.
func ParseValue(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Missing(), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", s)
	}
	if math.IsInf(v, 0) {
		return Missing(), nil
	}
	return v, nil
}
