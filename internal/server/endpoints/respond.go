package endpoints

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/jackzampolin/temario/internal/fault"
	"github.com/jackzampolin/temario/internal/pipeline"
	"github.com/jackzampolin/temario/internal/svcctx"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 4 << 20

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// StatusForKind maps an error kind to an HTTP status.
func StatusForKind(k fault.Kind) int {
	switch k {
	case fault.InvalidInput:
		return http.StatusBadRequest
	case fault.NotFound:
		return http.StatusNotFound
	case fault.InvalidState:
		return http.StatusConflict
	case fault.UnsupportedSource, fault.UnsupportedFormat:
		return http.StatusUnprocessableEntity
	case fault.RateLimitExhausted:
		return http.StatusTooManyRequests
	case fault.OCRService, fault.StructuringParse:
		return http.StatusBadGateway
	case fault.Persistence:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeFault writes err with the status of its kind. Server-side failures
// are logged.
func writeFault(w http.ResponseWriter, r *http.Request, err error) {
	kind := fault.KindOf(err)
	status := StatusForKind(kind)
	if status >= 500 {
		if logger := svcctx.LoggerFrom(r.Context()); logger != nil {
			logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "kind", kind, "error", err)
		}
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Kind: string(kind)})
}

// decodeBody decodes an optional JSON body into v. An empty body is not an error.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fault.New(fault.InvalidInput, "decode", "invalid request body: %v", err)
	}
	return nil
}

// pipelineFrom returns the pipeline service or writes 503.
func pipelineFrom(w http.ResponseWriter, r *http.Request) *pipeline.Service {
	svc := svcctx.PipelineFrom(r.Context())
	if svc == nil {
		writeError(w, http.StatusServiceUnavailable, "pipeline not initialized")
	}
	return svc
}

func loggerFrom(r *http.Request) *slog.Logger {
	if l := svcctx.LoggerFrom(r.Context()); l != nil {
		return l
	}
	return slog.Default()
}
