package record

import (
	"sort"

	"github.com/m-lab/esmond-archiver/internal/derive"
	"github.com/m-lab/esmond-archiver/pkg/esmond/model"
	"github.com/m-lab/esmond-archiver/pkg/esmond/spec"
)

// Mapping copies the value of key From to key To.
type Mapping struct {
	From string
	To   string
}

// Variant is the type-specific part of a record mapping.
type Variant interface {
	// TestType is the value of pscheduler-test-type. An empty string means
	// the test type of the Input is used.
	TestType() string
	// EventTypes lists the event types declared for a test spec.
	EventTypes(s model.TestSpec) []string
	// MetadataFieldMap maps test spec keys to metadata keys.
	MetadataFieldMap() []Mapping
	// AddMetadata sets metadata derived from the test spec.
	AddMetadata(md *model.Metadata, s model.TestSpec) error
	// DataFieldMap maps test result keys to event types.
	DataFieldMap() []Mapping
	// AddData adds values derived from a successful test result.
	AddData(dp *model.DataPoint, s model.TestSpec, r model.TestResult)
}

// verbatim is implemented by variants building the datapoint themselves,
// whatever the outcome of the test.
type verbatim interface {
	BuildData(dp *model.DataPoint, r model.TestResult)
}

// base provides no-op implementations of the optional Variant hooks.
type base struct{}

func (base) MetadataFieldMap() []Mapping { return nil }

func (base) AddMetadata(*model.Metadata, model.TestSpec) error { return nil }

func (base) DataFieldMap() []Mapping { return nil }

func (base) AddData(*model.DataPoint, model.TestSpec, model.TestResult) {}

// variants holds the test types with a dedicated mapping. It is never
// modified after initialization.
var variants = map[string]Variant{
	spec.TestLatency:    latency{tag: spec.TestLatency},
	spec.TestLatencyBG:  latency{tag: spec.TestLatencyBG},
	spec.TestThroughput: throughput{},
	spec.TestTrace:      trace{},
	spec.TestRTT:        rtt{},
}

// Lookup returns the Variant for testType.
func Lookup(testType string) (Variant, bool) {
	v, ok := variants[testType]
	return v, ok
}

// Supported returns the test types with a dedicated mapping, sorted.
func Supported() []string {
	names := make([]string, 0, len(variants))
	for k := range variants {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// addIfExists adds obj[field] under eventType if it is present and not null.
func addIfExists(dp *model.DataPoint, eventType string, obj map[string]any, field string) {
	if v, ok := obj[field]; ok && v != nil {
		dp.Add(eventType, v)
	}
}

// secondsField sets key to the number of seconds in the ISO 8601 duration
// s[field], if set and valid.
func secondsField(md *model.Metadata, s model.TestSpec, field, key string) {
	v := stringValue(s[field])
	if v == "" {
		return
	}
	if secs, err := derive.Seconds(v); err == nil {
		md.Set(key, secs)
	}
}
