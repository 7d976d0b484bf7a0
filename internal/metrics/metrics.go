// Package metrics defines the Prometheus metrics exported by the archiver.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/m-lab/esmond-archiver/pkg/client"
)

var (
	// ArchiveTotal counts archive requests by test type and outcome.
	ArchiveTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "esmond_archiver_archive_total",
			Help: "Number of archive requests, by test type and result.",
		},
		[]string{"type", "result"},
	)

	// StoreRequestsTotal counts requests to the archive by operation and
	// response status ("error" for transport errors).
	StoreRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "esmond_archiver_store_requests_total",
			Help: "Number of requests made to the esmond archive.",
		},
		[]string{"op", "status"},
	)

	// StoreRequestDuration is the latency of answered requests to the archive.
	StoreRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "esmond_archiver_store_request_duration_seconds",
			Help:    "Latency of requests made to the esmond archive.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"op"},
	)

	// SpoolWritesTotal counts abandoned records written to the spool.
	SpoolWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "esmond_archiver_spool_writes_total",
			Help: "Number of abandoned records written to the spool directory.",
		},
		[]string{"result"},
	)
)

// Emitter records request outcomes to the metrics above before forwarding
// them to Next.
type Emitter struct {
	Next client.Emitter
}

// OnResponse counts the response and observes its latency.
func (e Emitter) OnResponse(op client.Operation, status int, elapsed time.Duration) {
	StoreRequestsTotal.WithLabelValues(string(op), fmt.Sprint(status)).Inc()
	StoreRequestDuration.WithLabelValues(string(op)).Observe(elapsed.Seconds())
	if e.Next != nil {
		e.Next.OnResponse(op, status, elapsed)
	}
}

// OnError counts the transport error.
func (e Emitter) OnError(op client.Operation, err error) {
	StoreRequestsTotal.WithLabelValues(string(op), "error").Inc()
	if e.Next != nil {
		e.Next.OnError(op, err)
	}
}

// OnDebug forwards msg.
func (e Emitter) OnDebug(msg string) {
	if e.Next != nil {
		e.Next.OnDebug(msg)
	}
}

var _ client.Emitter = Emitter{}
