package client

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"
)

// Operation identifies a request made to the archive.
type Operation string

const (
	OpCreateMetadata = Operation("create-metadata")
	OpCreateData     = Operation("create-data")
)

// Emitter is an interface for emitting request outcomes.
type Emitter interface {
	// OnResponse is called when the archive answered, whatever the status.
	OnResponse(op Operation, status int, elapsed time.Duration)
	// OnError is called on transport errors.
	OnError(op Operation, err error)
	// OnDebug is called to print debug information.
	OnDebug(msg string)
}

// LogEmitter logs request outcomes with the package-level logger.
type LogEmitter struct{}

// OnResponse logs the response status.
func (LogEmitter) OnResponse(op Operation, status int, elapsed time.Duration) {
	log.Debug("archive responded", "op", op, "status", status, "elapsed", elapsed)
}

// OnError logs the error.
func (LogEmitter) OnError(op Operation, err error) {
	log.Warn("archive request failed", "op", op, "error", err)
}

// OnDebug logs msg at debug level.
func (LogEmitter) OnDebug(msg string) {
	log.Debug(msg)
}

// Checks that LogEmitter implements Emitter.
var _ Emitter = LogEmitter{}

func describe(op Operation, url string) string {
	return fmt.Sprintf("%s %s", op, url)
}
