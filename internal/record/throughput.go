package record

import (
	"fmt"
	"sort"

	"github.com/m-lab/esmond-archiver/internal/derive"
	"github.com/m-lab/esmond-archiver/pkg/esmond/model"
	"github.com/m-lab/esmond-archiver/pkg/esmond/spec"
)

type throughput struct{}

func (throughput) TestType() string {
	return spec.TestThroughput
}

func (throughput) EventTypes(s model.TestSpec) []string {
	types := []string{
		spec.EventFailures,
		spec.EventThroughput,
		spec.EventThroughputSubintervals,
	}
	if parallel(s) {
		types = append(types, spec.EventStreamsThroughput, spec.EventStreamsThroughputSubintervals)
	}
	if truthy(s["udp"]) {
		return append(types,
			spec.EventPacketLossRate,
			spec.EventPacketCountLost,
			spec.EventPacketCountSent,
		)
	}
	types = append(types, spec.EventPacketRetransmits, spec.EventPacketRetransmitsSubintervals)
	if parallel(s) {
		types = append(types, spec.EventStreamsRetransmits, spec.EventStreamsRetransmitsSubinterval)
	}
	return types
}

func (throughput) MetadataFieldMap() []Mapping {
	return []Mapping{
		{"tos", "ip-tos"},
		{"dscp", "ip-dscp"},
		{"buffer-length", "bw-buffer-size"},
		{"parallel", "bw-parallel-streams"},
		{"bandwidth", "bw-target-bandwidth"},
		{"window-size", "tcp-window-size"},
		{"dynamic-window-size", "tcp-dynamic-window-size"},
		{"mss", "tcp-max-segment-size"},
		{"omit", "bw-ignore-first-seconds"},
	}
}

func (throughput) AddMetadata(md *model.Metadata, s model.TestSpec) error {
	if truthy(s["udp"]) {
		md.Set("ip-transport-protocol", "udp")
	} else {
		md.Set("ip-transport-protocol", "tcp")
	}
	return nil
}

func (throughput) DataFieldMap() []Mapping { return nil }

func (throughput) AddData(dp *model.DataPoint, s model.TestSpec, r model.TestResult) {
	udp := truthy(s["udp"])
	multi := parallel(s)

	if sum, ok := r["summary"].(map[string]any); ok {
		if total, ok := sum["summary"].(map[string]any); ok {
			addIfExists(dp, spec.EventThroughput, total, "throughput-bits")
			if udp {
				addIfExists(dp, spec.EventPacketCountSent, total, "sent")
				addIfExists(dp, spec.EventPacketCountLost, total, "lost")
				if rate, ok := derive.Rate(total, "lost", "sent"); ok {
					dp.Add(spec.EventPacketLossRate, rate)
				}
			} else {
				addIfExists(dp, spec.EventPacketRetransmits, total, "retransmits")
			}
		}
		if streams := objects(sum["streams"]); multi && len(streams) > 0 {
			sortStreams(streams)
			dp.Add(spec.EventStreamsThroughput, collect(streams, "throughput-bits"))
			if !udp && anyHas(streams, "retransmits") {
				dp.Add(spec.EventStreamsRetransmits, collect(streams, "retransmits"))
			}
		}
	}

	intervals := objects(r["intervals"])
	if len(intervals) == 0 {
		return
	}
	var (
		totals      []model.Interval
		retransmits []model.Interval
		perStream   = newStreamSeries()
	)
	for _, iv := range intervals {
		if sum, ok := iv["summary"].(map[string]any); ok {
			if start, dur, ok := span(sum); ok {
				if v, ok := sum["throughput-bits"]; ok && v != nil {
					totals = append(totals, model.Interval{Start: start, Duration: dur, Val: v})
				}
				if v, ok := sum["retransmits"]; ok && v != nil && !udp {
					retransmits = append(retransmits, model.Interval{Start: start, Duration: dur, Val: v})
				}
			}
		}
		if !multi {
			continue
		}
		for _, st := range objects(iv["streams"]) {
			start, dur, ok := span(st)
			if !ok {
				continue
			}
			id, ok := st["stream-id"]
			if !ok || id == nil {
				continue
			}
			perStream.add(id, st, start, dur, udp)
		}
	}

	if len(totals) > 0 {
		dp.Add(spec.EventThroughputSubintervals, totals)
	}
	if len(retransmits) > 0 {
		dp.Add(spec.EventPacketRetransmitsSubintervals, retransmits)
	}
	if multi && len(perStream.ids) > 0 {
		dp.Add(spec.EventStreamsThroughputSubintervals, perStream.series(perStream.throughput))
		if perStream.hasRetransmits {
			dp.Add(spec.EventStreamsRetransmitsSubinterval, perStream.series(perStream.retransmits))
		}
	}
}

// parallel reports whether the test ran more than one stream.
func parallel(s model.TestSpec) bool {
	v, ok := s["parallel"]
	if !ok || v == nil {
		return false
	}
	n, err := derive.Int(v)
	return err == nil && n > 1
}

// objects returns the JSON objects of the list v, skipping other elements.
// The returned slice is a new one, so it can be reordered.
func objects(v any) []map[string]any {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(list))
	for _, e := range list {
		if m, ok := e.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func collect(objs []map[string]any, field string) []any {
	out := make([]any, 0, len(objs))
	for _, o := range objs {
		out = append(out, o[field])
	}
	return out
}

func anyHas(objs []map[string]any, field string) bool {
	for _, o := range objs {
		if v, ok := o[field]; ok && v != nil {
			return true
		}
	}
	return false
}

// span returns the start and duration of an interval holding start and end
// offsets.
func span(obj map[string]any) (float64, float64, bool) {
	start, err := derive.Float(obj["start"])
	if err != nil {
		return 0, 0, false
	}
	end, err := derive.Float(obj["end"])
	if err != nil {
		return 0, 0, false
	}
	return start, end - start, true
}

// lessStreamID orders stream ids numerically. Ids that are not numbers sort
// after numeric ones, by their text.
func lessStreamID(a, b any) bool {
	fa, errA := derive.Float(a)
	fb, errB := derive.Float(b)
	switch {
	case errA == nil && errB == nil:
		return fa < fb
	case errA == nil:
		return true
	case errB == nil:
		return false
	default:
		return fmt.Sprint(a) < fmt.Sprint(b)
	}
}

func sortStreams(streams []map[string]any) {
	sort.SliceStable(streams, func(i, j int) bool {
		return lessStreamID(streams[i]["stream-id"], streams[j]["stream-id"])
	})
}

// streamSeries accumulates per-stream subintervals, keyed by the textual
// stream id.
type streamSeries struct {
	ids            []any
	seen           map[string]bool
	throughput     map[string][]model.Interval
	retransmits    map[string][]model.Interval
	hasRetransmits bool
}

func newStreamSeries() *streamSeries {
	return &streamSeries{
		seen:        map[string]bool{},
		throughput:  map[string][]model.Interval{},
		retransmits: map[string][]model.Interval{},
	}
}

func (s *streamSeries) add(id any, st map[string]any, start, dur float64, udp bool) {
	key := fmt.Sprint(id)
	if !s.seen[key] {
		s.seen[key] = true
		s.ids = append(s.ids, id)
		s.throughput[key] = []model.Interval{}
		s.retransmits[key] = []model.Interval{}
	}
	if v, ok := st["throughput-bits"]; ok && v != nil {
		s.throughput[key] = append(s.throughput[key], model.Interval{Start: start, Duration: dur, Val: v})
	}
	if v, ok := st["retransmits"]; ok && v != nil && !udp {
		s.retransmits[key] = append(s.retransmits[key], model.Interval{Start: start, Duration: dur, Val: v})
		s.hasRetransmits = true
	}
}

// series returns the values of m ordered by stream id.
func (s *streamSeries) series(m map[string][]model.Interval) [][]model.Interval {
	ids := append([]any(nil), s.ids...)
	sort.SliceStable(ids, func(i, j int) bool {
		return lessStreamID(ids[i], ids[j])
	})
	out := make([][]model.Interval, 0, len(ids))
	for _, id := range ids {
		out = append(out, m[fmt.Sprint(id)])
	}
	return out
}
