// Package handler exposes an Archiver over HTTP for hosts that run the
// archiver as a long-lived service.
package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/charmbracelet/log"

	"github.com/m-lab/esmond-archiver/internal/archiver"
	"github.com/m-lab/esmond-archiver/internal/record"
	"github.com/m-lab/esmond-archiver/pkg/esmond/model"
)

// maxBodySize limits the size of request bodies.
const maxBodySize = 16 << 20

// Archiver archives a single request.
type Archiver interface {
	Archive(ctx context.Context, req archiver.Request) model.Verdict
}

// Validation is the response of the Validate endpoint.
type Validation struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// Types is the response of the Types endpoint.
type Types struct {
	Mapped []string `json:"mapped"`
}

type Handler struct {
	archiver Archiver
}

func New(a Archiver) *Handler {
	return &Handler{
		archiver: a,
	}
}

// Archive decodes an archiver.Request from the body and responds with the
// resulting Verdict. Archiving failures are reported in the Verdict, not
// with the HTTP status.
func (h *Handler) Archive(rw http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		writeError(rw, http.StatusMethodNotAllowed)
		return
	}
	ar, err := archiver.DecodeRequest(http.MaxBytesReader(rw, req.Body, maxBodySize))
	if err != nil {
		log.Info("invalid archive request", "remote", req.RemoteAddr, "error", err)
		writeError(rw, http.StatusBadRequest)
		return
	}
	writeJSON(rw, h.archiver.Archive(req.Context(), ar))
}

// Validate checks the archiver configuration block in the body.
func (h *Handler) Validate(rw http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		writeError(rw, http.StatusMethodNotAllowed)
		return
	}
	dec := json.NewDecoder(http.MaxBytesReader(rw, req.Body, maxBodySize))
	dec.UseNumber()
	var data map[string]any
	if err := dec.Decode(&data); err != nil {
		log.Info("invalid validate request", "remote", req.RemoteAddr, "error", err)
		writeError(rw, http.StatusBadRequest)
		return
	}
	if err := archiver.Validate(data); err != nil {
		writeJSON(rw, Validation{Error: err.Error()})
		return
	}
	writeJSON(rw, Validation{Valid: true})
}

// Types lists the test types with a dedicated mapping.
func (h *Handler) Types(rw http.ResponseWriter, req *http.Request) {
	writeJSON(rw, Types{Mapped: record.Supported()})
}

func writeJSON(rw http.ResponseWriter, v any) {
	rw.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(rw).Encode(v); err != nil {
		log.Warn("cannot write response", "error", err)
	}
}

// writeError sends an empty response with the given status.
func writeError(writer http.ResponseWriter, status int) {
	writer.Header().Set("Connection", "Close")
	writer.WriteHeader(status)
}
