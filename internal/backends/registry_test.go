package backends

import (
	"context"
	"testing"

	"github.com/dicomgateway/gatewayd/internal/envelope"
	"github.com/dicomgateway/gatewayd/internal/errortaxonomy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubBackend struct{ name string }

func (s stubBackend) Name() string { return s.name }
func (s stubBackend) Dispatch(context.Context, *envelope.Envelope) (envelope.Outcome, *errortaxonomy.Error) {
	return envelope.Continue, nil
}

func TestRegistry_ResolveInOrder(t *testing.T) {
	r := NewRegistry(nil)
	r.Register("fhir-main", stubBackend{name: "fhir-main"})
	r.Register("dimse-main", stubBackend{name: "dimse-main"})

	resolved, err := r.Resolve([]string{"dimse-main", "fhir-main"})
	require.NoError(t, err)
	require.Len(t, resolved, 2)
	assert.Equal(t, "dimse-main", resolved[0].Name())
	assert.Equal(t, "fhir-main", resolved[1].Name())
}

func TestRegistry_ResolveUnknownNameFails(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.Resolve([]string{"missing"})
	assert.Error(t, err)
}

func TestRegistry_GetMissing(t *testing.T) {
	r := NewRegistry(nil)
	_, ok := r.Get("nope")
	assert.False(t, ok)
}
