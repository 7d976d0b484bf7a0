// Package model contains the types exchanged with an esmond archive and with
// the host scheduling the tests.
package model

import (
	"encoding/json"

	"github.com/m-lab/esmond-archiver/pkg/esmond/spec"
)

// TestSpec is the configuration of a test run as provided by the scheduler.
// It must not be modified once decoded.
type TestSpec map[string]any

// TestResult is the outcome of a test run as provided by the scheduler.
// It must not be modified once decoded.
type TestResult map[string]any

// SummaryMethod is the aggregation method of a summary.
type SummaryMethod string

const (
	SummaryAverage     = SummaryMethod("average")
	SummaryAggregation = SummaryMethod("aggregation")
	SummaryStatistics  = SummaryMethod("statistics")
)

// SummaryDefinition is an aggregation rule attached to an event type. A
// Window of zero means the summary is not windowed.
type SummaryDefinition struct {
	EventType string        `json:"event-type" yaml:"event-type" mapstructure:"event-type"`
	Window    int64         `json:"summary-window" yaml:"summary-window" mapstructure:"summary-window"`
	Type      SummaryMethod `json:"summary-type" yaml:"summary-type" mapstructure:"summary-type"`
}

// EventType is an entry of the metadata's event-types list.
type EventType struct {
	EventType string              `json:"event-type"`
	Summaries []SummaryDefinition `json:"summaries,omitempty"`
}

// Metadata is the normalized metadata block of a Record. The fixed fields
// are common to every test type; Fields holds tool-specific keys.
type Metadata struct {
	SubjectType      spec.SubjectType
	Source           string
	Destination      string
	InputSource      string
	InputDestination string
	ToolName         string
	// Duration is the test duration in seconds, if known.
	Duration         *float64
	MeasurementAgent string
	TestType         string
	EventTypes       []EventType

	Fields map[string]any
}

// Set sets a tool-specific metadata key.
func (m *Metadata) Set(key string, value any) {
	if m.Fields == nil {
		m.Fields = map[string]any{}
	}
	m.Fields[key] = value
}

// Get returns a tool-specific metadata key.
func (m *Metadata) Get(key string) (any, bool) {
	v, ok := m.Fields[key]
	return v, ok
}

// EventTypeNames returns the names of the declared event types, in order.
func (m *Metadata) EventTypeNames() []string {
	names := make([]string, 0, len(m.EventTypes))
	for _, et := range m.EventTypes {
		names = append(names, et.EventType)
	}
	return names
}

// MarshalJSON flattens the fixed fields and Fields into a single object, the
// format expected by esmond. Tool-specific keys are written last and win on
// collisions.
func (m Metadata) MarshalJSON() ([]byte, error) {
	out := map[string]any{}
	if m.SubjectType != "" {
		out["subject-type"] = m.SubjectType
	}
	if m.Source != "" {
		out["source"] = m.Source
	}
	if m.Destination != "" {
		out["destination"] = m.Destination
	}
	if m.InputSource != "" {
		out["input-source"] = m.InputSource
	}
	if m.InputDestination != "" {
		out["input-destination"] = m.InputDestination
	}
	if m.ToolName != "" {
		out["tool-name"] = m.ToolName
	}
	if m.Duration != nil {
		out["time-duration"] = *m.Duration
	}
	if m.MeasurementAgent != "" {
		out["measurement-agent"] = m.MeasurementAgent
	}
	if m.TestType != "" {
		out["pscheduler-test-type"] = m.TestType
	}
	eventTypes := m.EventTypes
	if eventTypes == nil {
		eventTypes = []EventType{}
	}
	out["event-types"] = eventTypes
	for k, v := range m.Fields {
		out[k] = v
	}
	return json.Marshal(out)
}

// Value is a single (event type, value) entry of a DataPoint.
type Value struct {
	EventType string `json:"event-type"`
	Val       any    `json:"val"`
}

// DataPoint is a timestamped bundle of values.
type DataPoint struct {
	TS     int64   `json:"ts"`
	Values []Value `json:"val"`
}

// NewDataPoint returns an empty DataPoint for the given Unix timestamp.
func NewDataPoint(ts int64) DataPoint {
	return DataPoint{
		TS:     ts,
		Values: []Value{},
	}
}

// Add appends a value for eventType.
func (d *DataPoint) Add(eventType string, val any) {
	d.Values = append(d.Values, Value{EventType: eventType, Val: val})
}

// Get returns the first value recorded for eventType.
func (d *DataPoint) Get(eventType string) (any, bool) {
	for _, v := range d.Values {
		if v.EventType == eventType {
			return v.Val, true
		}
	}
	return nil, false
}

// Record is the normalized representation of a test run: one metadata block
// and the datapoints to store under it.
type Record struct {
	Metadata Metadata    `json:"metadata"`
	Data     []DataPoint `json:"data"`
}

// Rate is the value of a ratio event type such as packet-loss-rate.
type Rate struct {
	Numerator   any `json:"numerator"`
	Denominator any `json:"denominator"`
}

// Failure is the value of the failures event type.
type Failure struct {
	Error string `json:"error"`
}

// Interval is a single element of a subintervals series.
type Interval struct {
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
	Val      any     `json:"val"`
}

// Hop is a single hop of a packet-trace path.
type Hop struct {
	TTL          int    `json:"ttl"`
	Query        int    `json:"query"`
	Success      int    `json:"success"`
	ErrorMessage string `json:"error-message,omitempty"`
	IP           string `json:"ip,omitempty"`
	Host         string `json:"host,omitempty"`
	AS           any    `json:"as,omitempty"`
	// RTT is the round-trip time in milliseconds.
	RTT *float64 `json:"rtt,omitempty"`
	MTU *int64   `json:"mtu,omitempty"`
}
