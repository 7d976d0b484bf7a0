package record

import (
	"github.com/m-lab/esmond-archiver/internal/derive"
	"github.com/m-lab/esmond-archiver/pkg/esmond/model"
	"github.com/m-lab/esmond-archiver/pkg/esmond/spec"
)

type trace struct {
	base
}

func (trace) TestType() string {
	return spec.TestTrace
}

func (trace) EventTypes(s model.TestSpec) []string {
	types := []string{
		spec.EventFailures,
		spec.EventPacketTrace,
		spec.EventPathMTU,
	}
	if multiPath(s) {
		types = append(types, spec.EventPacketTraceMulti)
	}
	return types
}

func (trace) MetadataFieldMap() []Mapping {
	return []Mapping{
		{"algorithm", "trace-algorithm"},
		{"first-ttl", "trace-first-ttl"},
		{"fragment", "ip-fragment"},
		{"hops", "trace-max-ttl"},
		{"length", "ip-packet-size"},
		{"probe-type", "ip-transport-protocol"},
		{"queries", "trace-num-queries"},
		{"tos", "ip-tos"},
	}
}

func (trace) AddMetadata(md *model.Metadata, s model.TestSpec) error {
	secondsField(md, s, "sendwait", "time-probe-interval")
	secondsField(md, s, "wait", "time-test-timeout")
	return nil
}

func (trace) AddData(dp *model.DataPoint, s model.TestSpec, r model.TestResult) {
	paths, _ := r["paths"].([]any)

	var (
		first []model.Hop
		all   [][]model.Hop
		pmtu  *int64
		// The last MTU seen is reported on every later hop, including
		// those of later paths.
		mtu *int64
	)
	for _, p := range paths {
		hops, _ := p.([]any)
		formatted := make([]model.Hop, 0, len(hops))
		for i, h := range hops {
			hop, _ := h.(map[string]any)
			fh := model.Hop{TTL: i + 1, Query: 1, Success: 1}
			if msg := stringValue(hop["error"]); msg != "" {
				fh.Success = 0
				fh.ErrorMessage = msg
			}
			fh.IP = stringValue(hop["ip"])
			fh.Host = stringValue(hop["host"])
			if truthy(hop["as"]) {
				fh.AS = hop["as"]
			}
			if rtt := stringValue(hop["rtt"]); rtt != "" {
				if secs, err := derive.Seconds(rtt); err == nil {
					ms := secs * 1000
					fh.RTT = &ms
				}
			}
			if v, ok := hop["mtu"]; ok && v != nil {
				if n, err := derive.Int(v); err == nil {
					mtu = &n
					if pmtu == nil || *pmtu > n {
						min := n
						pmtu = &min
					}
				}
			}
			if mtu != nil {
				n := *mtu
				fh.MTU = &n
			}
			formatted = append(formatted, fh)
		}
		all = append(all, formatted)
		if len(first) == 0 {
			first = formatted
		}
	}

	if len(first) > 0 {
		dp.Add(spec.EventPacketTrace, first)
	}
	if pmtu != nil {
		dp.Add(spec.EventPathMTU, *pmtu)
	}
	if multiPath(s) && len(all) > 0 {
		dp.Add(spec.EventPacketTraceMulti, all)
	}
}

func multiPath(s model.TestSpec) bool {
	return stringValue(s["algorithm"]) == spec.MultiPathAlgorithm
}
