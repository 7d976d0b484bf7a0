// Package derive computes the metrics esmond stores but test tools do not
// report directly: ratios, frequency histograms and unit conversions.
package derive

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/sosodev/duration"

	"github.com/m-lab/esmond-archiver/pkg/esmond/model"
)

// Rate returns the ratio numerator/denominator read from obj. It returns
// false, and no value, unless both keys are present and non-null, the
// numerator is an integer and the denominator is a non-zero integer.
func Rate(obj map[string]any, numerator, denominator string) (model.Rate, bool) {
	num, ok := obj[numerator]
	if !ok || num == nil {
		return model.Rate{}, false
	}
	den, ok := obj[denominator]
	if !ok || den == nil {
		return model.Rate{}, false
	}
	if _, err := Int(num); err != nil {
		return model.Rate{}, false
	}
	d, err := Int(den)
	if err != nil || d == 0 {
		return model.Rate{}, false
	}
	return model.Rate{Numerator: num, Denominator: den}, true
}

// Int converts a decoded JSON value to an integer. Numbers are truncated
// toward zero, strings must contain an integer literal and booleans count as
// 0 or 1.
func Int(v any) (int64, error) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		f, err := n.Float64()
		if err != nil {
			return 0, err
		}
		return floatToInt(f)
	case float64:
		return floatToInt(n)
	case float32:
		return floatToInt(float64(n))
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case uint:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(n), 10, 64)
	default:
		return 0, fmt.Errorf("not an integer: %T", v)
	}
}

func floatToInt(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not an integer: %v", f)
	}
	return int64(f), nil
}

// Float converts a decoded JSON number to a float64.
func Float(v any) (float64, error) {
	switch n := v.(type) {
	case json.Number:
		return n.Float64()
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case uint:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("not a number: %T", v)
	}
}

// Keyer maps a value to its histogram bucket. Values for which it returns
// false are not counted.
type Keyer[T any] func(T) (string, bool)

// Identity buckets values by their own textual representation.
func Identity[T any](v T) (string, bool) {
	return fmt.Sprint(v), true
}

// Rounded buckets numeric values by their value rounded to precision decimal
// places.
func Rounded(precision int) Keyer[float64] {
	return func(v float64) (string, bool) {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return "", false
		}
		return strconv.FormatFloat(v, 'f', precision, 64), true
	}
}

// Histogram counts the occurrences of each bucket in values. It returns nil
// when no value was counted: esmond rejects empty histograms, so callers must
// omit the event type in that case.
func Histogram[T any](values []T, key Keyer[T]) map[string]int {
	var h map[string]int
	for _, v := range values {
		k, ok := key(v)
		if !ok {
			continue
		}
		if h == nil {
			h = map[string]int{}
		}
		h[k]++
	}
	return h
}

// Seconds converts an ISO 8601 duration (e.g. "PT1.5S") to seconds.
func Seconds(iso string) (float64, error) {
	d, err := duration.Parse(iso)
	if err != nil {
		return 0, fmt.Errorf("invalid ISO 8601 duration %q: %w", iso, err)
	}
	return d.ToTimeDuration().Seconds(), nil
}
