package bridge

import (
	"context"
	"testing"

	"github.com/dicomgateway/gatewayd/internal/backends"
	"github.com/dicomgateway/gatewayd/internal/dimse/dicomjson"
	"github.com/dicomgateway/gatewayd/internal/envelope"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBridge() *Middleware {
	return &Middleware{
		DestinationAET:    "ARCHIVE",
		StudyRootSOPClass: "1.2.840.10008.5.1.4.1.2.2.1",
		StorageSOPClass:   "1.2.840.10008.5.1.4.1.1.7",
	}
}

func TestInferMatchType(t *testing.T) {
	assert.Equal(t, MatchExact, InferMatchType("12345"))
	assert.Equal(t, MatchWildcard, InferMatchType("SMITH*"))
	assert.Equal(t, MatchRange, InferMatchType("20200101-20201231"))
	assert.Equal(t, MatchList, InferMatchType("A,B,C"))
}

func TestMiddleware_StudiesQuery_SetsFindMetadata(t *testing.T) {
	b := newBridge()
	env := envelope.New(envelope.Details{
		Method: "GET",
		URI:    "/studies",
		Query:  map[string][]string{"PatientID": {"12345"}},
	}, envelope.Payload{Protocol: envelope.ProtocolHTTP})

	outcome, ferr := b.HandleIncoming(context.Background(), env)
	require.Nil(t, ferr)
	assert.Equal(t, envelope.Continue, outcome)

	target := env.TargetDetails()
	assert.Equal(t, backends.OperationFind, target.Metadata[backends.MetaOperation])
	assert.Equal(t, "ARCHIVE", target.Metadata[backends.MetaDestinationAET])

	normalized, ok := env.NormalizedData()
	require.True(t, ok)
	id, err := dicomjson.FromJSON(normalized)
	require.NoError(t, err)
	assert.Contains(t, id, "00100020")
}

func TestMiddleware_SeriesQuery_PinsStudyUID(t *testing.T) {
	b := newBridge()
	env := envelope.New(envelope.Details{Method: "GET", URI: "/studies/1.2.3/series"}, envelope.Payload{})

	_, ferr := b.HandleIncoming(context.Background(), env)
	require.Nil(t, ferr)

	normalized, ok := env.NormalizedData()
	require.True(t, ok)
	id, err := dicomjson.FromJSON(normalized)
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", id["0020000D"].Value[0])
}

func TestMiddleware_SingleInstanceWADO_FixedGet(t *testing.T) {
	b := newBridge()
	env := envelope.New(envelope.Details{Method: "GET", URI: "/studies/1.2.3/series/4.5.6/instances/7.8.9"}, envelope.Payload{})

	outcome, ferr := b.HandleIncoming(context.Background(), env)
	require.Nil(t, ferr)
	assert.Equal(t, envelope.Continue, outcome)

	target := env.TargetDetails()
	assert.Equal(t, backends.OperationGet, target.Metadata[backends.MetaOperation])
	assert.Equal(t, backends.ResponseFormatPart10, target.Metadata[backends.MetaResponseFormat])

	normalized, ok := env.NormalizedData()
	require.True(t, ok)
	id, err := dicomjson.FromJSON(normalized)
	require.NoError(t, err)
	assert.Equal(t, "7.8.9", id["00080018"].Value[0])
}

func TestMiddleware_StudyMetadataWADO_SetsGetIdentifiersMetadata(t *testing.T) {
	b := newBridge()
	env := envelope.New(envelope.Details{Method: "GET", URI: "/studies/1.2.3/metadata"}, envelope.Payload{})

	outcome, ferr := b.HandleIncoming(context.Background(), env)
	require.Nil(t, ferr)
	assert.Equal(t, envelope.Continue, outcome)

	target := env.TargetDetails()
	assert.Equal(t, backends.OperationGet, target.Metadata[backends.MetaOperation])
	assert.Equal(t, backends.ResponseFormatIdentifiers, target.Metadata[backends.MetaResponseFormat])
}

func TestMiddleware_PostStudies_SetsStoreMetadata(t *testing.T) {
	b := newBridge()
	env := envelope.New(envelope.Details{Method: "POST", URI: "/studies"}, envelope.Payload{Protocol: envelope.ProtocolHTTP, Bytes: []byte("dataset")})

	outcome, ferr := b.HandleIncoming(context.Background(), env)
	require.Nil(t, ferr)
	assert.Equal(t, envelope.Continue, outcome)

	target := env.TargetDetails()
	assert.Equal(t, backends.OperationStore, target.Metadata[backends.MetaOperation])
}

func TestMiddleware_PostStudies_PopulatesSOPInstanceUIDFromBody(t *testing.T) {
	b := newBridge()
	body := []byte(`{"00080018":{"vr":"UI","Value":["1.2.840.99999.1"]},"00080016":{"vr":"UI","Value":["1.2.840.10008.5.1.4.1.1.7"]}}`)
	env := envelope.New(envelope.Details{Method: "POST", URI: "/studies"}, envelope.Payload{Protocol: envelope.ProtocolHTTP, Bytes: body})

	outcome, ferr := b.HandleIncoming(context.Background(), env)
	require.Nil(t, ferr)
	assert.Equal(t, envelope.Continue, outcome)

	target := env.TargetDetails()
	assert.Equal(t, "1.2.840.99999.1", target.Metadata[backends.MetaSOPInstanceUID])
	assert.Equal(t, "1.2.840.10008.5.1.4.1.1.7", target.Metadata[backends.MetaSOPClassUID])
}

func TestMiddleware_UnmatchedPathPassesThrough(t *testing.T) {
	b := newBridge()
	env := envelope.New(envelope.Details{Method: "GET", URI: "/api/jmix/1/manifest"}, envelope.Payload{})

	outcome, ferr := b.HandleIncoming(context.Background(), env)
	require.Nil(t, ferr)
	assert.Equal(t, envelope.Continue, outcome)

	target := env.TargetDetails()
	assert.Empty(t, target.Metadata[backends.MetaOperation])
}
