package record

import (
	"github.com/m-lab/esmond-archiver/internal/derive"
	"github.com/m-lab/esmond-archiver/pkg/esmond/model"
	"github.com/m-lab/esmond-archiver/pkg/esmond/spec"
)

// latency maps one-way latency tests. The same behavior is registered under
// several tags (latency, latencybg).
type latency struct {
	base
	tag string
}

func (l latency) TestType() string {
	return l.tag
}

func (latency) EventTypes(model.TestSpec) []string {
	return []string{
		spec.EventFailures,
		spec.EventPacketCountSent,
		spec.EventHistogramOWDelay,
		spec.EventHistogramTTL,
		spec.EventPacketDuplicates,
		spec.EventPacketLossRate,
		spec.EventPacketCountLost,
		spec.EventPacketReorders,
		spec.EventTimeErrorEstimates,
	}
}

func (latency) MetadataFieldMap() []Mapping {
	return []Mapping{
		{"packet-count", "sample-size"},
		{"bucket-width", "sample-bucket-width"},
		{"packet-interval", "time-probe-interval"},
		{"packet-timeout", "time-probe-timeout"},
		{"ip-tos", "ip-tos"},
		{"flip", "mode-flip"},
		{"packet-padding", "ip-packet-padding"},
		{"single-participant-mode", "mode-single-participant"},
	}
}

func (latency) DataFieldMap() []Mapping {
	return []Mapping{
		{"histogram-latency", spec.EventHistogramOWDelay},
		{"histogram-ttl", spec.EventHistogramTTL},
		{"packets-sent", spec.EventPacketCountSent},
		{"packets-lost", spec.EventPacketCountLost},
		{"packets-reordered", spec.EventPacketReorders},
		{"packets-duplicated", spec.EventPacketDuplicates},
		{"max-clock-error", spec.EventTimeErrorEstimates},
	}
}

func (latency) AddData(dp *model.DataPoint, _ model.TestSpec, r model.TestResult) {
	if rate, ok := derive.Rate(r, "packets-lost", "packets-sent"); ok {
		dp.Add(spec.EventPacketLossRate, rate)
	}
}
