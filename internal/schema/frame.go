// Package schema defines the tabular market-data structures exchanged with strategies.
package schema

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/quantfold/sigpack/errs"
)

// Series is a one-dimensional numeric result aligned to a Frame's row index.
// Missing values are represented as NaN.
type Series []float64

// EqualWithNaN reports element-wise equality treating two NaN values as equal.
func (s Series) EqualWithNaN(other Series) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		a, b := s[i], other[i]
		if math.IsNaN(a) && math.IsNaN(b) {
			continue
		}
		if a != b {
			return false
		}
	}
	return true
}

// Frame is a column-oriented OHLCV table with an optional temporal index.
type Frame struct {
	index   []time.Time
	columns map[string][]float64
	order   []string
	rows    int
}

// NewFrame constructs a frame from named columns. All columns must share the
// same length.
func NewFrame(columns map[string][]float64) (Frame, error) {
	frame := Frame{
		index:   nil,
		columns: make(map[string][]float64, len(columns)),
		order:   nil,
		rows:    0,
	}
	names := make([]string, 0, len(columns))
	for name := range columns {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := frame.addColumn(name, columns[name]); err != nil {
			return Frame{}, err
		}
	}
	return frame, nil
}

func (f *Frame) addColumn(name string, values []float64) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return errs.InvalidInput("column name required")
	}
	if len(f.order) > 0 && len(values) != f.rows {
		return errs.InvalidInput("column " + trimmed + " length mismatch")
	}
	if _, exists := f.columns[trimmed]; exists {
		return errs.InvalidInput("duplicate column " + trimmed)
	}
	f.columns[trimmed] = append([]float64(nil), values...)
	f.order = append(f.order, trimmed)
	f.rows = len(values)
	return nil
}

// SetIndex attaches a temporal row index to the frame.
func (f *Frame) SetIndex(index []time.Time) error {
	if len(index) != f.rows {
		return errs.InvalidInput("index length mismatch")
	}
	f.index = append([]time.Time(nil), index...)
	return nil
}

// Index returns the temporal row index, or nil when the frame is unindexed.
func (f Frame) Index() []time.Time {
	return append([]time.Time(nil), f.index...)
}

// Len reports the number of rows.
func (f Frame) Len() int { return f.rows }

// Empty reports whether the frame has no rows or no columns.
func (f Frame) Empty() bool { return f.rows == 0 || len(f.order) == 0 }

// Columns returns the column names in insertion order.
func (f Frame) Columns() []string {
	return append([]string(nil), f.order...)
}

// Column returns the named column, matched case-insensitively.
func (f Frame) Column(name string) ([]float64, bool) {
	want := strings.ToLower(strings.TrimSpace(name))
	for _, candidate := range f.order {
		if strings.ToLower(candidate) == want {
			return append([]float64(nil), f.columns[candidate]...), true
		}
	}
	return nil, false
}

// HasClose reports whether the frame carries a close-equivalent column.
func (f Frame) HasClose() bool {
	_, ok := f.Column("close")
	return ok
}

// Export renders the frame as the column-oriented object handed to strategy
// modules: one array per column plus an "index" array of RFC3339 timestamps.
func (f Frame) Export() map[string]any {
	out := make(map[string]any, len(f.order)+1)
	for _, name := range f.order {
		out[strings.ToLower(name)] = append([]float64(nil), f.columns[name]...)
	}
	if len(f.index) > 0 {
		stamps := make([]string, len(f.index))
		for i, ts := range f.index {
			stamps[i] = ts.UTC().Format(time.RFC3339)
		}
		out["index"] = stamps
	}
	return out
}
