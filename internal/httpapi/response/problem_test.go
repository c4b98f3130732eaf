package response_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dicomgateway/gatewayd/internal/errortaxonomy"
	"github.com/dicomgateway/gatewayd/internal/httpapi/response"
)

func TestFromError_MapsKindToStatus(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/v1/studies", nil)

	p := response.FromError(r, errortaxonomy.New(errortaxonomy.NotFound, "study not found"))

	assert.Equal(t, http.StatusNotFound, p.Status)
	assert.Equal(t, "NOT_FOUND", p.Code)
	assert.Equal(t, "study not found", p.Detail)
}

func TestFromError_HidesDetailFor5xx(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/v1/studies", nil)

	p := response.FromError(r, errortaxonomy.New(errortaxonomy.Storage, "disk /data/store is full, inode 884213"))

	assert.Equal(t, http.StatusInternalServerError, p.Status)
	assert.Equal(t, "an internal error occurred", p.Detail)
}

func TestFromError_AuthFailureNeverLeaksMessage(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/v1/studies", nil)

	p := response.FromError(r, errortaxonomy.New(errortaxonomy.AuthFailure, "JWT signature mismatch for kid=prod-2024"))

	assert.Equal(t, http.StatusUnauthorized, p.Status)
	assert.Equal(t, "authentication required", p.Detail)
	assert.Empty(t, p.Hint)
}

func TestFromError_UnclassifiedDefaultsTo502(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/v1/studies", nil)

	p := response.FromError(r, assertableErr{})

	assert.Equal(t, http.StatusBadGateway, p.Status)
}

type assertableErr struct{}

func (assertableErr) Error() string { return "boom" }

func TestWriteError_SetsProblemContentType(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/v1/studies", nil)
	w := httptest.NewRecorder()

	response.WriteError(w, r, errortaxonomy.New(errortaxonomy.Timeout, "deadline exceeded"))

	assert.Equal(t, response.ContentTypeProblemJSON, w.Header().Get("Content-Type"))
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
}
