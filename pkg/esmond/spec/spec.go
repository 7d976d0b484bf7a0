// Package spec contains constants for the esmond archive format.
package spec

import "time"

const (
	// HTTPTimeout is the connect/read timeout for every request sent to an
	// esmond archive.
	HTTPTimeout = 5 * time.Second

	// DefaultURL is the archive URL used when none is configured.
	DefaultURL = "http://127.0.0.1/esmond/perfsonar/archive"

	// DefaultFailureMessage is recorded in the failures event type when a
	// test failed without reporting an error.
	DefaultFailureMessage = "The test failed for an unspecified reason. See the server logs of the testing host(s)."

	// RawKeyPrefix prefixes every flattened test spec key of a raw record.
	RawKeyPrefix = "pscheduler"
)

// Paths served by esmond-archiver-server.
const (
	ArchivePath  = "/v0/archive"
	ValidatePath = "/v0/validate"
	TypesPath    = "/v0/types"
)

// SubjectType is the kind of subject a metadata entry describes.
type SubjectType string

const (
	// SubjectPointToPoint is used when the test has a source and a
	// destination.
	SubjectPointToPoint = SubjectType("point-to-point")

	// SubjectNetworkElement is used when the test only has a source.
	SubjectNetworkElement = SubjectType("network-element")
)

// Event types known to esmond.
const (
	EventFailures                      = "failures"
	EventPacketCountSent               = "packet-count-sent"
	EventPacketCountLost               = "packet-count-lost"
	EventPacketCountLostBidir          = "packet-count-lost-bidir"
	EventPacketLossRate                = "packet-loss-rate"
	EventPacketLossRateBidir           = "packet-loss-rate-bidir"
	EventPacketDuplicates              = "packet-duplicates"
	EventPacketDuplicatesBidir         = "packet-duplicates-bidir"
	EventPacketReorders                = "packet-reorders"
	EventPacketReordersBidir           = "packet-reorders-bidir"
	EventHistogramOWDelay              = "histogram-owdelay"
	EventHistogramTTL                  = "histogram-ttl"
	EventHistogramTTLReverse           = "histogram-ttl-reverse"
	EventHistogramRTT                  = "histogram-rtt"
	EventTimeErrorEstimates            = "time-error-estimates"
	EventThroughput                    = "throughput"
	EventThroughputSubintervals        = "throughput-subintervals"
	EventStreamsThroughput             = "streams-throughput"
	EventStreamsThroughputSubintervals = "streams-throughput-subintervals"
	EventPacketRetransmits             = "packet-retransmits"
	EventPacketRetransmitsSubintervals = "packet-retransmits-subintervals"
	EventStreamsRetransmits            = "streams-packet-retransmits"
	EventStreamsRetransmitsSubinterval = "streams-packet-retransmits-subintervals"
	EventPacketTrace                   = "packet-trace"
	EventPacketTraceMulti              = "packet-trace-multi"
	EventPathMTU                       = "path-mtu"
	EventRaw                           = "pscheduler-raw"
)

// Test types with a dedicated mapping.
const (
	TestLatency    = "latency"
	TestLatencyBG  = "latencybg"
	TestThroughput = "throughput"
	TestTrace      = "trace"
	TestRTT        = "rtt"
)

// MultiPathAlgorithm is the trace algorithm that reports multiple paths.
const MultiPathAlgorithm = "paris-traceroute"

// FormattingPolicy selects how a test result is turned into a record.
type FormattingPolicy string

const (
	// PreferMapped uses the dedicated mapping if one exists for the test type
	// and a raw record otherwise.
	PreferMapped = FormattingPolicy("prefer-mapped")
	// MappedAndRaw stores the mapped record plus the verbatim result.
	MappedAndRaw = FormattingPolicy("mapped-and-raw")
	// MappedOnly only stores test types with a dedicated mapping.
	MappedOnly = FormattingPolicy("mapped-only")
	// RawOnly always stores a raw record.
	RawOnly = FormattingPolicy("raw-only")
)
