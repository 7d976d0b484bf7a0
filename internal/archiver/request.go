package archiver

import (
	"encoding/json"
	"io"
	"time"

	"github.com/m-lab/esmond-archiver/internal/derive"
	"github.com/m-lab/esmond-archiver/pkg/esmond/model"
)

// Request is a single archive request: a finished run and the archiver
// configuration to store it with.
type Request struct {
	// Data is the archiver configuration block, decoded with DecodeConfig.
	Data map[string]any `json:"data"`
	Run  Run            `json:"result"`
	// Attempts is the number of previous attempts to archive this run.
	Attempts int `json:"attempts"`
}

// Run describes a test run and its result.
type Run struct {
	ID           string           `json:"id,omitempty"`
	Schedule     Schedule         `json:"schedule"`
	Test         Test             `json:"test"`
	Tool         Tool             `json:"tool"`
	Participants []string         `json:"participants"`
	Result       model.TestResult `json:"result"`
}

// Schedule is when the run took place.
type Schedule struct {
	Start time.Time `json:"start"`
	// Duration is an ISO 8601 duration.
	Duration string `json:"duration,omitempty"`
}

// Test is the test type and its spec.
type Test struct {
	Type string         `json:"type"`
	Spec model.TestSpec `json:"spec"`
}

// Tool is the tool that ran the test.
type Tool struct {
	Name string `json:"name"`
}

// DecodeRequest reads a JSON Request from r. Numbers are kept as
// json.Number so that integers are passed through unchanged.
func DecodeRequest(r io.Reader) (Request, error) {
	var req Request
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		return Request{}, err
	}
	return req, nil
}

// LeadParticipant returns the first participant, if any.
func (r Run) LeadParticipant() string {
	if len(r.Participants) == 0 {
		return ""
	}
	return r.Participants[0]
}

// DurationSeconds returns the scheduled duration in seconds, or nil if it is
// missing or invalid.
func (s Schedule) DurationSeconds() *float64 {
	if s.Duration == "" {
		return nil
	}
	secs, err := derive.Seconds(s.Duration)
	if err != nil {
		return nil
	}
	return &secs
}
