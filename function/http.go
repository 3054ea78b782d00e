package function

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/zakharovvi/hec-forwarder/payload"
	"github.com/zakharovvi/hec-forwarder/tracing"
	semconv "go.opentelemetry.io/otel/semconv/v1.12.0"
	"go.opentelemetry.io/otel/trace"
)

const requestIDHeader = "X-Request-Id"

// payloadErrors are reported to HTTP callers as 400 Bad Request.
var payloadErrors = []error{
	payload.ErrRead,
	payload.ErrDecompression,
	payload.ErrDecoding,
	payload.ErrParse,
	payload.ErrRecordDecode,
}

type errorResponse struct {
	Error string `json:"error"`
}

// ServeHTTP handles an invocation over HTTP. The request body is the raw payload, gzip encoded bodies included.
//
// Responses: 200 with the result, 400 when the payload cannot be decoded,
// 502 when the collector rejects an event or cannot be reached, 405 for methods other than POST.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get(requestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set(requestIDHeader, requestID)
	log := h.log.WithValues("requestID", requestID)

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		h.writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})

		return
	}

	ctx := tracing.ContextFromRequest(r.Context(), r)
	result, err := h.handle(
		ctx,
		r.Body,
		log,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			semconv.FaaSTriggerHTTP,
			semconv.FaaSExecutionKey.String(requestID),
			semconv.HTTPMethodKey.String(r.Method),
			semconv.HTTPTargetKey.String(r.URL.Path),
		),
	)
	if err != nil {
		h.writeJSON(w, statusCode(err), errorResponse{Error: err.Error()})

		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func statusCode(err error) int {
	for _, target := range payloadErrors {
		if errors.Is(err, target) {
			return http.StatusBadRequest
		}
	}

	return http.StatusBadGateway
}

func (h *Handler) writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error(err, "could not write http response")
	}
}
