package schema

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/quantfold/sigpack/errs"
)

// Record is a single row of market data as received over the wire.
type Record map[string]any

const timestampField = "timestamp"

// FromRecords builds a frame from row-oriented records. A "timestamp" field,
// when present on every row, becomes the temporal index and is excluded from
// the numeric columns. Indexing is all or nothing: if any row omits the
// timestamp, the frame is built without an index rather than with per-row
// holes, and no error is returned. A timestamp that is present but
// unparseable still fails the whole call. Rows missing a numeric field get
// NaN for that column.
func FromRecords(records []Record) (Frame, error) {
	if len(records) == 0 {
		return Frame{}, errs.InvalidInput("no records provided")
	}

	names := map[string]struct{}{}
	for _, record := range records {
		for key := range record {
			if strings.EqualFold(strings.TrimSpace(key), timestampField) {
				continue
			}
			names[strings.TrimSpace(key)] = struct{}{}
		}
	}
	if len(names) == 0 {
		return Frame{}, errs.InvalidInput("records carry no columns")
	}

	ordered := make([]string, 0, len(names))
	for name := range names {
		ordered = append(ordered, name)
	}
	sort.Strings(ordered)

	columns := make(map[string][]float64, len(ordered))
	for _, name := range ordered {
		values := make([]float64, 0, len(records))
		for _, record := range records {
			value, ok := lookupField(record, name)
			if !ok {
				values = append(values, nan())
				continue
			}
			parsed, err := toFloat(value)
			if err != nil {
				return Frame{}, errs.New(errs.CodeInvalidInput,
					errs.WithMessage("column "+name+": "+err.Error()))
			}
			values = append(values, parsed)
		}
		columns[name] = values
	}

	frame, err := NewFrame(columns)
	if err != nil {
		return Frame{}, err
	}

	index, ok, err := extractIndex(records)
	if err != nil {
		return Frame{}, err
	}
	if ok {
		if err := frame.SetIndex(index); err != nil {
			return Frame{}, err
		}
	}
	return frame, nil
}

func lookupField(record Record, name string) (any, bool) {
	for key, value := range record {
		if strings.EqualFold(strings.TrimSpace(key), name) {
			return value, true
		}
	}
	return nil, false
}

func extractIndex(records []Record) ([]time.Time, bool, error) {
	index := make([]time.Time, 0, len(records))
	for _, record := range records {
		raw, ok := lookupField(record, timestampField)
		if !ok {
			return nil, false, nil
		}
		ts, err := parseTimestamp(raw)
		if err != nil {
			return nil, false, err
		}
		index = append(index, ts)
	}
	return index, true, nil
}

func parseTimestamp(value any) (time.Time, error) {
	switch v := value.(type) {
	case string:
		trimmed := strings.TrimSpace(v)
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
			if ts, err := time.Parse(layout, trimmed); err == nil {
				return ts, nil
			}
		}
		return time.Time{}, errs.InvalidInput("unparseable timestamp " + strconv.Quote(trimmed))
	case float64:
		return epochToTime(int64(v)), nil
	case int64:
		return epochToTime(v), nil
	case int:
		return epochToTime(int64(v)), nil
	default:
		return time.Time{}, errs.InvalidInput("unsupported timestamp type")
	}
}

// epochToTime treats values above 1e12 as milliseconds, otherwise seconds.
func epochToTime(v int64) time.Time {
	if v > 1_000_000_000_000 {
		return time.UnixMilli(v).UTC()
	}
	return time.Unix(v, 0).UTC()
}

func toFloat(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return nan(), nil
		}
		parsed, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0, errs.InvalidInput("non-numeric value " + strconv.Quote(v))
		}
		return parsed, nil
	case nil:
		return nan(), nil
	default:
		return 0, errs.InvalidInput("unsupported value type")
	}
}

func nan() float64 {
	return math.NaN()
}
