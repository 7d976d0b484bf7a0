package summary

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m-lab/esmond-archiver/pkg/esmond/model"
	"github.com/m-lab/esmond-archiver/pkg/esmond/spec"
)

func TestDefault(t *testing.T) {
	c := Default()
	assert.Len(t, c, 8)

	owdelay, ok := c.Lookup(spec.EventHistogramOWDelay)
	require.True(t, ok)
	expected := []struct {
		window int64
		method model.SummaryMethod
	}{
		{300, model.SummaryAggregation},
		{300, model.SummaryStatistics},
		{3600, model.SummaryAggregation},
		{0, model.SummaryStatistics},
		{3600, model.SummaryStatistics},
		{86400, model.SummaryAggregation},
		{86400, model.SummaryStatistics},
	}
	require.Len(t, owdelay, len(expected))
	for i, e := range expected {
		assert.Equal(t, spec.EventHistogramOWDelay, owdelay[i].EventType)
		assert.Equal(t, e.window, owdelay[i].Window, "window of summary %d", i)
		assert.Equal(t, e.method, owdelay[i].Type, "method of summary %d", i)
	}

	_, ok = c.Lookup(spec.EventFailures)
	assert.False(t, ok, "failures must not have summaries")
}

func TestDefault_IsACopy(t *testing.T) {
	c := Default()
	c[spec.EventThroughput][0].Window = 1
	delete(c, spec.EventPacketLossRate)

	fresh := Default()
	assert.Equal(t, int64(86400), fresh[spec.EventThroughput][0].Window)
	_, ok := fresh.Lookup(spec.EventPacketLossRate)
	assert.True(t, ok)
}

func TestCatalog_Lookup(t *testing.T) {
	c := Default()
	list, _ := c.Lookup(spec.EventThroughput)
	list[0].Type = model.SummaryStatistics
	again, _ := c.Lookup(spec.EventThroughput)
	assert.Equal(t, model.SummaryAverage, again[0].Type,
		"Lookup must not expose the catalog's slices")
}

func TestFromMap(t *testing.T) {
	var raw map[string]any
	err := json.Unmarshal([]byte(`{
		"throughput": [
			{"summary-window": 60, "summary-type": "average"},
			{"event-type": "throughput", "summary-window": "120", "summary-type": "statistics"}
		]
	}`), &raw)
	require.NoError(t, err)

	c, err := FromMap(raw)
	require.NoError(t, err)
	assert.Equal(t, Catalog{
		"throughput": {
			{EventType: "throughput", Window: 60, Type: model.SummaryAverage},
			{EventType: "throughput", Window: 120, Type: model.SummaryStatistics},
		},
	}, c)

	_, err = FromMap(map[string]any{"throughput": "not-a-list"})
	assert.Error(t, err)

	_, err = FromMap(map[string]any{"throughput": []any{
		map[string]any{"summary-window": -1, "summary-type": "average"},
	}})
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	c, err := LoadFile("testdata/summaries.yaml")
	require.NoError(t, err)
	assert.Equal(t, []model.SummaryDefinition{
		{EventType: "throughput", Window: 3600, Type: model.SummaryAverage},
		{EventType: "throughput", Window: 86400, Type: model.SummaryAverage},
	}, c["throughput"])
	assert.Equal(t, []model.SummaryDefinition{
		{EventType: "histogram-rtt", Window: 0, Type: model.SummaryStatistics},
	}, c["histogram-rtt"])

	_, err = LoadFile("testdata/invalid.yaml")
	assert.Error(t, err)

	_, err = LoadFile("testdata/does-not-exist.yaml")
	assert.Error(t, err)
}
