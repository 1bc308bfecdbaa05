package curve

import (
	"bufio"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/c360/autoprocess/errors"
)

// Point is one knot of a calibration curve.
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Points is a list of curve knots.
type Points []Point

// ParsePoints reads one "x,y" pair per line. Commas and tabs are both accepted as
// delimiters, and columns after the second are ignored. Blank lines are skipped.
func ParsePoints(text string) (Points, error) {
	var pts Points
	sc := bufio.NewScanner(strings.NewReader(text))
	line := 0
	for sc.Scan() {
		line++
		raw := sc.Text()
		if strings.TrimSpace(raw) == "" {
			continue
		}
		fields := strings.Split(strings.ReplaceAll(raw, "\t", ","), ",")
		if len(fields) < 2 {
			return nil, badLine(line, raw)
		}
		x, errX := strconv.ParseFloat(strings.TrimSpace(fields[0]), 64)
		y, errY := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
		if errX != nil || errY != nil || !finite(x) || !finite(y) {
			return nil, badLine(line, raw)
		}
		pts = append(pts, Point{X: x, Y: y})
	}
	if err := sc.Err(); err != nil {
		return nil, errors.NewConfigError("points", err.Error())
	}
	return pts, nil
}

func badLine(line int, raw string) error {
	return errors.ConfigErrorf("points", "Error in line %d: %q is not a valid pair of numbers", line, raw)
}

// Format renders the points as tab-separated lines, the inverse of ParsePoints.
func (p Points) Format() string {
	var b strings.Builder
	for _, pt := range p {
		b.WriteString(strconv.FormatFloat(pt.X, 'f', -1, 64))
		b.WriteByte('\t')
		b.WriteString(strconv.FormatFloat(pt.Y, 'f', -1, 64))
		b.WriteByte('\n')
	}
	return b.String()
}

// sorted returns a copy ordered by X. It fails when there are fewer than two points,
// when a coordinate is not finite, or when two points share an X.
func (p Points) sorted() (Points, error) {
	if len(p) < 2 {
		return nil, errors.ConfigErrorf("points", "a curve needs at least 2 points, got %d", len(p))
	}
	out := make(Points, len(p))
	copy(out, p)
	for _, pt := range out {
		if !finite(pt.X) || !finite(pt.Y) {
			return nil, errors.NewConfigError("points", "coordinates must be finite numbers")
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].X < out[j].X })
	for i := 1; i < len(out); i++ {
		if out[i].X == out[i-1].X {
			return nil, errors.ConfigErrorf("points", "x = %g appears more than once", out[i].X)
		}
	}
	return out, nil
}

// eval interpolates linearly between the knots of a sorted curve. Values outside
// [first X, last X] and missing values give NaN.
func (p Points) eval(v float64) float64 {
	if math.IsNaN(v) || v < p[0].X || v > p[len(p)-1].X {
		return math.NaN()
	}
	i := sort.Search(len(p), func(i int) bool { return p[i].X >= v })
	if p[i].X == v {
		return p[i].Y
	}
	a, b := p[i-1], p[i]
	return a.Y + (v-a.X)*(b.Y-a.Y)/(b.X-a.X)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// String is used in log lines.
func (pt Point) String() string {
	return fmt.Sprintf("(%g, %g)", pt.X, pt.Y)
}
