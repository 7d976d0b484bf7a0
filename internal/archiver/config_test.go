package archiver

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/m-lab/esmond-archiver/internal/retry"
	"github.com/m-lab/esmond-archiver/pkg/esmond/model"
	"github.com/m-lab/esmond-archiver/pkg/esmond/spec"
)

func decodeData(t *testing.T, s string) map[string]any {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		t.Fatalf("invalid test JSON: %v", err)
	}
	return m
}

func TestDecodeConfig(t *testing.T) {
	cfg, err := DecodeConfig(decodeData(t, `{
		"schema": 2,
		"url": "https://archive.example.net/esmond/perfsonar/archive/",
		"_auth-token": "s3cr3t",
		"verify-ssl": true,
		"bind": "192.0.2.1",
		"measurement-agent": "agent.example.net",
		"data-formatting-policy": "Mapped-And-Raw",
		"retry-policy": [{"attempts": 2, "wait": "PT1M"}, {"attempts": 1, "wait": 3600}],
		"summaries": {"throughput": [{"summary-type": "average", "summary-window": 3600}]}
	}`))
	if err != nil {
		t.Fatalf("DecodeConfig() error = %v", err)
	}
	want := &Config{
		Schema:           2,
		URL:              "https://archive.example.net/esmond/perfsonar/archive/",
		AuthToken:        "s3cr3t",
		VerifySSL:        true,
		Bind:             "192.0.2.1",
		MeasurementAgent: "agent.example.net",
		RetryPolicy: retry.Policy{
			{Attempts: 2, Wait: time.Minute},
			{Attempts: 1, Wait: time.Hour},
		},
		DataFormattingPolicy: spec.MappedAndRaw,
	}
	opts := []cmp.Option{
		cmpopts.IgnoreUnexported(Config{}),
		cmpopts.IgnoreFields(Config{}, "Summaries"),
	}
	if diff := cmp.Diff(want, cfg, opts...); diff != "" {
		t.Errorf("DecodeConfig() mismatch (-want +got):\n%s", diff)
	}
	wantCatalog := []model.SummaryDefinition{
		{EventType: spec.EventThroughput, Window: 3600, Type: model.SummaryAverage},
	}
	got, ok := cfg.Catalog().Lookup(spec.EventThroughput)
	if !ok {
		t.Fatalf("summaries override not decoded")
	}
	if diff := cmp.Diff(wantCatalog, got); diff != "" {
		t.Errorf("Catalog() mismatch (-want +got):\n%s", diff)
	}
	if _, ok := cfg.Catalog().Lookup(spec.EventPacketLossRate); ok {
		t.Errorf("an override must replace the default catalog")
	}
}

func TestDecodeConfig_defaults(t *testing.T) {
	cfg, err := DecodeConfig(decodeData(t, `{"url": "http://127.0.0.1/esmond/"}`))
	if err != nil {
		t.Fatalf("DecodeConfig() error = %v", err)
	}
	if cfg.VerifySSL || cfg.Bind != "" || len(cfg.RetryPolicy) != 0 || cfg.Catalog() != nil {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		data string
		ok   bool
	}{
		{name: "minimal", data: `{"url": "http://127.0.0.1/esmond/"}`, ok: true},
		{name: "missing-url", data: `{"_auth-token": "x"}`},
		{name: "bad-url", data: `{"url": "archive"}`},
		{name: "bad-bind", data: `{"url": "http://127.0.0.1/", "bind": "not valid!"}`},
		{name: "bad-policy", data: `{"url": "http://127.0.0.1/", "data-formatting-policy": "all"}`},
		{name: "bad-wait", data: `{"url": "http://127.0.0.1/", "retry-policy": [{"attempts": 1, "wait": "later"}]}`},
		{name: "bad-summary", data: `{"url": "http://127.0.0.1/", "summaries": {"throughput": [{"summary-type": "median"}]}}`},
		{name: "bad-schema", data: `{"url": "http://127.0.0.1/", "schema": 3}`},
		{name: "unknown-key", data: `{"url": "http://127.0.0.1/", "verify": true}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(decodeData(t, tt.data))
			if (err == nil) != tt.ok {
				t.Errorf("Validate() error = %v, want ok = %v", err, tt.ok)
			}
		})
	}
}

func TestDecodeRequest(t *testing.T) {
	req, err := DecodeRequest(strings.NewReader(`{
		"data": {"url": "http://127.0.0.1/"},
		"result": {
			"schedule": {"start": "2024-05-01T10:00:00Z", "duration": "PT1M"},
			"test": {"type": "throughput", "spec": {"parallel": 4}},
			"tool": {"name": "iperf3"},
			"participants": ["lead.example.net", "other.example.net"],
			"result": {"succeeded": true}
		},
		"attempts": 3
	}`))
	if err != nil {
		t.Fatalf("DecodeRequest() error = %v", err)
	}
	if req.Attempts != 3 || req.Run.Test.Type != "throughput" || req.Run.Tool.Name != "iperf3" {
		t.Errorf("unexpected request: %+v", req)
	}
	if req.Run.Test.Spec["parallel"] != json.Number("4") {
		t.Errorf("numbers must be decoded as json.Number, got %T", req.Run.Test.Spec["parallel"])
	}
	if req.Run.LeadParticipant() != "lead.example.net" {
		t.Errorf("LeadParticipant() = %s", req.Run.LeadParticipant())
	}
	if d := req.Run.Schedule.DurationSeconds(); d == nil || *d != 60 {
		t.Errorf("DurationSeconds() = %v, want 60", d)
	}
	if (Schedule{}).DurationSeconds() != nil {
		t.Errorf("DurationSeconds() should be nil without a duration")
	}
	if (Run{}).LeadParticipant() != "" {
		t.Errorf("LeadParticipant() should be empty without participants")
	}
}
