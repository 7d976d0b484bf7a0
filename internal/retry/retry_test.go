package retry_test

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/m-lab/esmond-archiver/internal/retry"
	"github.com/m-lab/esmond-archiver/pkg/esmond/model"
)

func TestPolicy_Evaluate(t *testing.T) {
	policy := retry.Policy{
		{Attempts: 3, Wait: time.Minute},
		{Attempts: 2, Wait: 5 * time.Minute},
	}
	tests := []struct {
		attempts  int
		wantRetry bool
		wantWait  time.Duration
	}{
		{attempts: 0, wantRetry: true, wantWait: time.Minute},
		{attempts: 1, wantRetry: true, wantWait: time.Minute},
		{attempts: 2, wantRetry: true, wantWait: time.Minute},
		{attempts: 3, wantRetry: true, wantWait: 5 * time.Minute},
		{attempts: 4, wantRetry: true, wantWait: 5 * time.Minute},
		{attempts: 5, wantRetry: false},
		{attempts: 100, wantRetry: false},
	}
	for _, tt := range tests {
		d := policy.Evaluate("500: boom", tt.attempts)
		if d.Retry != tt.wantRetry || d.Wait != tt.wantWait {
			t.Errorf("Evaluate(%d) = (%v, %s), want (%v, %s)", tt.attempts,
				d.Retry, d.Wait, tt.wantRetry, tt.wantWait)
		}
		if d.Retry && d.Message != "500: boom" {
			t.Errorf("Evaluate(%d) message = %q, want the failure", tt.attempts, d.Message)
		}
	}
}

func TestPolicy_EvaluatePermanent(t *testing.T) {
	d := retry.Policy{}.Evaluate("connection refused", 0)
	want := retry.Decision{
		Message: "Archiver permanently abandoned registering test after 1 attempt(s): connection refused",
	}
	if diff := cmp.Diff(want, d); diff != "" {
		t.Errorf("Evaluate() mismatch (-want +got):\n%s", diff)
	}

	d = retry.Policy{{Attempts: 2, Wait: time.Second}}.Evaluate("x", 2)
	if !strings.Contains(d.Message, "after 3 attempt(s): x") {
		t.Errorf("Evaluate() message = %q", d.Message)
	}
}

func TestDecision_Verdict(t *testing.T) {
	wait := int64(60)
	one := int64(1)
	tests := []struct {
		name string
		d    retry.Decision
		want model.Verdict
	}{
		{
			name: "retry",
			d:    retry.Decision{Retry: true, Wait: time.Minute, Message: "m"},
			want: model.Verdict{Error: "m", Retry: &wait},
		},
		{
			name: "sub-second",
			d:    retry.Decision{Retry: true, Wait: 500 * time.Millisecond, Message: "m"},
			want: model.Verdict{Error: "m", Retry: &one},
		},
		{
			name: "permanent",
			d:    retry.Decision{Message: "m"},
			want: model.Verdict{Error: "m"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, tt.d.Verdict()); diff != "" {
				t.Errorf("Verdict() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    retry.Policy
		wantErr bool
	}{
		{
			name:  "seconds",
			input: `[{"attempts": 3, "wait": 60}, {"attempts": 2, "wait": 300}]`,
			want: retry.Policy{
				{Attempts: 3, Wait: time.Minute},
				{Attempts: 2, Wait: 5 * time.Minute},
			},
		},
		{
			name:  "iso8601",
			input: `[{"attempts": 1, "wait": "PT1M30S"}]`,
			want:  retry.Policy{{Attempts: 1, Wait: 90 * time.Second}},
		},
		{
			name:  "numeric-string",
			input: `[{"attempts": "2", "wait": "10"}]`,
			want:  retry.Policy{{Attempts: 2, Wait: 10 * time.Second}},
		},
		{
			name:  "empty",
			input: `[]`,
			want:  retry.Policy{},
		},
		{
			name:    "bad-wait",
			input:   `[{"attempts": 1, "wait": "soon"}]`,
			wantErr: true,
		},
		{
			name:    "negative-attempts",
			input:   `[{"attempts": -1, "wait": 1}]`,
			wantErr: true,
		},
		{
			name:    "unknown-key",
			input:   `[{"attempts": 1, "wait": 1, "jitter": 3}]`,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := json.NewDecoder(strings.NewReader(tt.input))
			dec.UseNumber()
			var v any
			if err := dec.Decode(&v); err != nil {
				t.Fatalf("invalid test input: %v", err)
			}
			got, err := retry.Decode(v)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Decode() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if diff := cmp.Diff(tt.want, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("Decode() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
