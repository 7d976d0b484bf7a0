// Package summary contains the catalog of summaries attached to each event
// type when a metadata entry is created.
package summary

import (
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/m-lab/esmond-archiver/pkg/esmond/model"
	"github.com/m-lab/esmond-archiver/pkg/esmond/spec"
)

// Catalog maps an event type to its ordered list of summaries.
type Catalog map[string][]model.SummaryDefinition

type window struct {
	seconds int64
	method  model.SummaryMethod
}

// defaults is the default summary table. It is only read through Default,
// which builds a fresh Catalog from it.
var defaults = []struct {
	eventType string
	windows   []window
}{
	{spec.EventThroughput, []window{
		{86400, model.SummaryAverage},
	}},
	{spec.EventPacketLossRate, []window{
		{300, model.SummaryAggregation},
		{3600, model.SummaryAggregation},
		{86400, model.SummaryAggregation},
	}},
	{spec.EventPacketCountSent, []window{
		{300, model.SummaryAggregation},
		{3600, model.SummaryAggregation},
		{86400, model.SummaryAggregation},
	}},
	{spec.EventPacketCountLost, []window{
		{300, model.SummaryAggregation},
		{3600, model.SummaryAggregation},
		{86400, model.SummaryAggregation},
	}},
	{spec.EventPacketCountLostBidir, []window{
		{300, model.SummaryAggregation},
		{3600, model.SummaryAggregation},
		{86400, model.SummaryAggregation},
	}},
	{spec.EventHistogramOWDelay, []window{
		{300, model.SummaryAggregation},
		{300, model.SummaryStatistics},
		{3600, model.SummaryAggregation},
		{0, model.SummaryStatistics},
		{3600, model.SummaryStatistics},
		{86400, model.SummaryAggregation},
		{86400, model.SummaryStatistics},
	}},
	{spec.EventPacketLossRateBidir, []window{
		{3600, model.SummaryAggregation},
		{86400, model.SummaryAggregation},
	}},
	{spec.EventHistogramRTT, []window{
		{3600, model.SummaryAggregation},
		{3600, model.SummaryStatistics},
		{86400, model.SummaryAggregation},
		{86400, model.SummaryStatistics},
	}},
}

// Default returns a new copy of the default catalog.
func Default() Catalog {
	c := make(Catalog, len(defaults))
	for _, d := range defaults {
		list := make([]model.SummaryDefinition, 0, len(d.windows))
		for _, w := range d.windows {
			list = append(list, model.SummaryDefinition{
				EventType: d.eventType,
				Window:    w.seconds,
				Type:      w.method,
			})
		}
		c[d.eventType] = list
	}
	return c
}

// Lookup returns a copy of the summaries declared for eventType, in the
// declared order. The second return value is false if the catalog has no
// entry for it.
func (c Catalog) Lookup(eventType string) ([]model.SummaryDefinition, bool) {
	list, ok := c[eventType]
	if !ok {
		return nil, false
	}
	out := make([]model.SummaryDefinition, len(list))
	copy(out, list)
	return out, true
}

// Validate checks that every summary uses a known method and a non-negative
// window.
func (c Catalog) Validate() error {
	for et, list := range c {
		for i, s := range list {
			switch s.Type {
			case model.SummaryAverage, model.SummaryAggregation, model.SummaryStatistics:
			default:
				return fmt.Errorf("summary %d of %q: unknown summary-type %q", i, et, s.Type)
			}
			if s.Window < 0 {
				return fmt.Errorf("summary %d of %q: negative summary-window %d", i, et, s.Window)
			}
		}
	}
	return nil
}

// FromMap decodes a catalog override with the same shape as the default
// table, as found in an archiver's configuration block. Summaries without an
// explicit event-type inherit the key they are listed under.
func FromMap(raw map[string]any) (Catalog, error) {
	c := Catalog{}
	dc := &mapstructure.DecoderConfig{
		Result:           &c,
		WeaklyTypedInput: true,
	}
	dec, err := mapstructure.NewDecoder(dc)
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("invalid summaries: %w", err)
	}
	c.fillEventTypes()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadFile reads a catalog override from a YAML (or JSON) file.
func LoadFile(path string) (Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := Catalog{}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("cannot parse %s: %w", path, err)
	}
	c.fillEventTypes()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func (c Catalog) fillEventTypes() {
	for et, list := range c {
		for i := range list {
			if list[i].EventType == "" {
				list[i].EventType = et
			}
		}
	}
}
