// Package retry decides whether a failed archive attempt is retried, and
// after how long, from the number of attempts already made.
package retry

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/m-lab/esmond-archiver/internal/derive"
	"github.com/m-lab/esmond-archiver/pkg/esmond/model"
)

// Bucket allows Attempts further attempts, each Wait after the previous one.
type Bucket struct {
	Attempts int           `mapstructure:"attempts" json:"attempts"`
	Wait     time.Duration `mapstructure:"wait" json:"wait"`
}

// Policy is an ordered list of buckets. Bucket i covers the attempts from
// the sum of the previous buckets' Attempts (inclusive) to that sum plus its
// own Attempts (exclusive).
type Policy []Bucket

// Decision is the outcome of evaluating a Policy.
type Decision struct {
	// Retry is false when the attempt is permanently abandoned.
	Retry   bool
	Wait    time.Duration
	Message string
}

// Evaluate returns the Decision for a failure after attempts previous
// attempts (zero for the first one).
func (p Policy) Evaluate(failure string, attempts int) Decision {
	sum := 0
	for _, b := range p {
		sum += b.Attempts
		if sum > attempts {
			return Decision{Retry: true, Wait: b.Wait, Message: failure}
		}
	}
	return Decision{
		Message: fmt.Sprintf(
			"Archiver permanently abandoned registering test after %d attempt(s): %s",
			attempts+1, failure),
	}
}

// Verdict converts d to the result reported to the scheduler.
func (d Decision) Verdict() model.Verdict {
	if d.Retry {
		return model.Retry(d.Message, d.Wait)
	}
	return model.Abandon(d.Message)
}

// Decode reads a Policy from decoded JSON, a list of objects with an integer
// "attempts" and a "wait" given either in seconds or as an ISO 8601 duration.
func Decode(v any) (Policy, error) {
	var p Policy
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       DurationHook(),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           &p,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(v); err != nil {
		return nil, fmt.Errorf("invalid retry policy: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks that no bucket has negative attempts or wait.
func (p Policy) Validate() error {
	for i, b := range p {
		if b.Attempts < 0 {
			return fmt.Errorf("retry policy bucket %d: negative attempts %d", i, b.Attempts)
		}
		if b.Wait < 0 {
			return fmt.Errorf("retry policy bucket %d: negative wait %s", i, b.Wait)
		}
	}
	return nil
}

// DurationHook decodes time.Duration values given as a number of seconds or
// as an ISO 8601 duration string.
func DurationHook() mapstructure.DecodeHookFuncType {
	return func(_ reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
		if t != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case json.Number:
			return seconds(v)
		case string:
			if secs, err := strconv.ParseFloat(v, 64); err == nil {
				return seconds(secs)
			}
			secs, err := derive.Seconds(v)
			if err != nil {
				return nil, err
			}
			return seconds(secs)
		case time.Duration:
			return v, nil
		default:
			return seconds(data)
		}
	}
}

func seconds(v any) (time.Duration, error) {
	secs, err := derive.Float(v)
	if err != nil {
		return 0, err
	}
	return time.Duration(secs * float64(time.Second)), nil
}
