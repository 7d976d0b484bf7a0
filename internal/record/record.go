// Package record turns a test's spec and result into the metadata block and
// datapoint stored in esmond.
//
// Each test type with a dedicated mapping is a Variant. A Builder runs the
// steps shared by every variant (subject classification, address
// normalization, event types and summaries, success/failure handling) and
// calls into the Variant for everything type-specific.
package record

import (
	"context"
	"fmt"
	"time"

	"github.com/m-lab/esmond-archiver/internal/derive"
	"github.com/m-lab/esmond-archiver/internal/netx"
	"github.com/m-lab/esmond-archiver/internal/summary"
	"github.com/m-lab/esmond-archiver/pkg/esmond/model"
	"github.com/m-lab/esmond-archiver/pkg/esmond/spec"
)

// ConfigurationError is returned when the builder is invoked in a way that
// can never succeed. It must not be retried.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string {
	return e.Msg
}

// ErrNoTestType is returned when a raw record is built without a test type.
var ErrNoTestType = &ConfigurationError{
	Msg: "Developer error. The test type must be set if storing a raw record.",
}

// Fields names the test spec keys holding the source, destination and forced
// IP version. Empty names fall back to "source", "dest" and "ip-version".
type Fields struct {
	Source    string
	Dest      string
	IPVersion string
}

func (f Fields) withDefaults() Fields {
	if f.Source == "" {
		f.Source = "source"
	}
	if f.Dest == "" {
		f.Dest = "dest"
	}
	if f.IPVersion == "" {
		f.IPVersion = "ip-version"
	}
	return f
}

// Input is everything needed to build a Record for one test run.
type Input struct {
	TestType         string
	Spec             model.TestSpec
	LeadParticipant  string
	MeasurementAgent string
	ToolName         string
	// Duration is the test's duration in seconds, if known.
	Duration  *float64
	Timestamp time.Time
	Result    model.TestResult
	// Summaries overrides the default summary catalog when not nil.
	Summaries summary.Catalog
	Fields    Fields
	// IncludeRaw adds the verbatim result under the pscheduler-raw event
	// type in addition to the mapped data.
	IncludeRaw bool
}

// Builder builds Records. It is safe for concurrent use.
type Builder struct {
	normalizer *netx.Normalizer
}

// NewBuilder returns a Builder normalizing addresses with n.
func NewBuilder(n *netx.Normalizer) *Builder {
	return &Builder{normalizer: n}
}

// Build returns the Record for in, using v for the type-specific mappings.
// The only errors returned are *ConfigurationError.
func (b *Builder) Build(ctx context.Context, v Variant, in Input) (model.Record, error) {
	md, err := b.metadata(ctx, v, in)
	if err != nil {
		return model.Record{}, err
	}

	dp := model.NewDataPoint(in.Timestamp.Unix())
	if vb, ok := v.(verbatim); ok {
		vb.BuildData(&dp, in.Result)
	} else if truthy(in.Result["succeeded"]) {
		for _, m := range v.DataFieldMap() {
			val, ok := in.Result[m.From]
			if !ok || isEmptyMap(val) {
				// esmond rejects empty objects.
				continue
			}
			dp.Add(m.To, val)
		}
		v.AddData(&dp, in.Spec, in.Result)
	} else {
		msg := stringValue(in.Result["error"])
		if msg == "" {
			msg = spec.DefaultFailureMessage
		}
		dp.Add(spec.EventFailures, model.Failure{Error: msg})
	}

	if in.IncludeRaw {
		if _, ok := v.(verbatim); !ok {
			md.EventTypes = append(md.EventTypes, model.EventType{EventType: spec.EventRaw})
			dp.Add(spec.EventRaw, in.Result)
		}
	}

	return model.Record{
		Metadata: md,
		Data:     []model.DataPoint{dp},
	}, nil
}

func (b *Builder) metadata(ctx context.Context, v Variant, in Input) (model.Metadata, error) {
	fields := in.Fields.withDefaults()
	md := model.Metadata{
		ToolName:   in.ToolName,
		Duration:   in.Duration,
		EventTypes: []model.EventType{},
	}

	inputSource := in.LeadParticipant
	if s, ok := in.Spec[fields.Source]; ok {
		inputSource = stringValue(s)
	}
	version := 0
	if ipv, ok := in.Spec[fields.IPVersion]; ok && ipv != nil {
		if n, err := derive.Int(ipv); err == nil {
			version = int(n)
		}
	}

	var source string
	if d, ok := in.Spec[fields.Dest]; ok && d != nil {
		inputDest := stringValue(d)
		md.SubjectType = spec.SubjectPointToPoint
		source, md.Destination = b.normalizer.Normalize(ctx, inputSource, inputDest, version)
		md.InputDestination = inputDest
	} else {
		md.SubjectType = spec.SubjectNetworkElement
		source, _ = b.normalizer.Normalize(ctx, inputSource, inputSource, version)
	}
	md.Source = source
	md.InputSource = inputSource

	agent := in.MeasurementAgent
	if agent == "" {
		agent = in.LeadParticipant
	}
	md.MeasurementAgent = b.normalizer.NormalizeAs(ctx, source, agent)

	md.TestType = v.TestType()
	if md.TestType == "" {
		md.TestType = in.TestType
	}

	catalog := in.Summaries
	if catalog == nil {
		catalog = summary.Default()
	}
	for _, et := range v.EventTypes(in.Spec) {
		entry := model.EventType{EventType: et}
		if s, ok := catalog.Lookup(et); ok {
			entry.Summaries = s
		}
		md.EventTypes = append(md.EventTypes, entry)
	}

	for _, m := range v.MetadataFieldMap() {
		if val, ok := in.Spec[m.From]; ok {
			md.Set(m.To, val)
		}
	}
	if err := v.AddMetadata(&md, in.Spec); err != nil {
		return model.Metadata{}, err
	}
	return md, nil
}

// truthy reports whether v is a set flag: true, a non-zero number or a
// non-empty string, list or object.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		f, err := derive.Float(v)
		return err != nil || f != 0
	}
}

func isEmptyMap(v any) bool {
	m, ok := v.(map[string]any)
	return ok && len(m) == 0
}

func stringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
