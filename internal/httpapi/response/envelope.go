package response

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dicomgateway/gatewayd/internal/ctxutil"
)

// Envelope wraps successful pipeline results for DICOMweb/JMIX/FHIR JSON
// responses that aren't raw DICOM-JSON or a zip payload.
type Envelope struct {
	Data any   `json:"data"`
	Meta *Meta `json:"meta,omitempty"`
}

// Meta carries correlation information alongside successful responses.
type Meta struct {
	RequestID string `json:"request_id,omitempty"`
}

func newMeta(ctx context.Context) *Meta {
	id := ctxutil.RequestIDFromContext(ctx)
	if id == "" {
		return nil
	}
	return &Meta{RequestID: id}
}

// WriteJSON writes data as a JSON body with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("response: failed to encode JSON", "error", err)
	}
}

// Success writes data wrapped in an Envelope with HTTP 200.
func Success(w http.ResponseWriter, r *http.Request, data any) {
	WriteJSON(w, http.StatusOK, Envelope{Data: data, Meta: newMeta(r.Context())})
}

// SuccessWithStatus writes data wrapped in an Envelope with a custom status.
func SuccessWithStatus(w http.ResponseWriter, r *http.Request, status int, data any) {
	WriteJSON(w, status, Envelope{Data: data, Meta: newMeta(r.Context())})
}
