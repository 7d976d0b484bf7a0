package client

import (
	"time"
)

// Config is the configuration for a Client.
type Config struct {
	// URL is the base URL of the esmond archive, e.g.
	// https://archive.example.net/esmond/perfsonar/archive/.
	URL string

	// AuthToken, if set, is sent as "Authorization: Token <AuthToken>".
	AuthToken string

	// VerifySSL enables the TLS certificate verification.
	VerifySSL bool

	// Bind is the local address outbound connections are made from. If
	// empty, the system picks one.
	Bind string

	// Timeout bounds each request. If zero, spec.HTTPTimeout is used.
	Timeout time.Duration

	// Emitter receives the outcome of every request. If nil, outcomes are
	// logged.
	Emitter Emitter
}
