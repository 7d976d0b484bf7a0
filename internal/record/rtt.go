package record

import (
	"github.com/m-lab/esmond-archiver/internal/derive"
	"github.com/m-lab/esmond-archiver/pkg/esmond/model"
	"github.com/m-lab/esmond-archiver/pkg/esmond/spec"
)

type rtt struct {
	base
}

func (rtt) TestType() string {
	return spec.TestRTT
}

func (rtt) EventTypes(model.TestSpec) []string {
	return []string{
		spec.EventFailures,
		spec.EventPacketCountSent,
		spec.EventHistogramRTT,
		spec.EventHistogramTTLReverse,
		spec.EventPacketDuplicatesBidir,
		spec.EventPacketLossRateBidir,
		spec.EventPacketCountLostBidir,
		spec.EventPacketReordersBidir,
	}
}

func (rtt) MetadataFieldMap() []Mapping {
	return []Mapping{
		{"count", "sample-size"},
		{"flowlabel", "ip-packet-flowlabel"},
		{"tos", "ip-tos"},
		{"length", "ip-packet-size"},
		{"ttl", "ip-ttl"},
	}
}

func (rtt) AddMetadata(md *model.Metadata, s model.TestSpec) error {
	secondsField(md, s, "interval", "time-probe-interval")
	secondsField(md, s, "timeout", "time-test-timeout")
	secondsField(md, s, "deadline", "time-probe-timeout")
	return nil
}

func (rtt) DataFieldMap() []Mapping {
	return []Mapping{
		{"sent", spec.EventPacketCountSent},
		{"lost", spec.EventPacketCountLostBidir},
		{"duplicates", spec.EventPacketDuplicatesBidir},
		{"reorders", spec.EventPacketReordersBidir},
	}
}

func (rtt) AddData(dp *model.DataPoint, _ model.TestSpec, r model.TestResult) {
	var (
		rtts []float64
		ttls []any
	)
	for _, rt := range objects(r["roundtrips"]) {
		if v := stringValue(rt["rtt"]); v != "" {
			if secs, err := derive.Seconds(v); err == nil {
				rtts = append(rtts, secs*1000)
			}
		}
		if truthy(rt["ttl"]) {
			ttls = append(ttls, rt["ttl"])
		}
	}
	if h := derive.Histogram(rtts, derive.Rounded(2)); h != nil {
		dp.Add(spec.EventHistogramRTT, h)
	}
	if h := derive.Histogram(ttls, derive.Identity[any]); h != nil {
		dp.Add(spec.EventHistogramTTLReverse, h)
	}
	if rate, ok := derive.Rate(r, "lost", "sent"); ok {
		dp.Add(spec.EventPacketLossRateBidir, rate)
	}
}
