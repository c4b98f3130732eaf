package dicomjson

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToJSON_FromJSON_RoundTrip(t *testing.T) {
	id := Identifier{
		"00100010": Element{VR: "PN", Value: []any{PersonName{Alphabetic: "Doe^Jane"}}},
		"00100020": Element{VR: "LO", Value: []any{"PAT123"}},
		"00080020": Element{VR: "DA", Value: []any{"20260101"}},
	}

	encoded, err := ToJSON(id)
	require.NoError(t, err)

	decoded, err := FromJSON(encoded)
	require.NoError(t, err)

	reencoded, err := ToJSON(decoded)
	require.NoError(t, err)

	assert.JSONEq(t, string(encoded), string(reencoded), "to_json(from_json(v)) == v for any well-formed identifier")
}

func TestToJSON_EmptyIdentifier(t *testing.T) {
	encoded, err := ToJSON(Identifier{})
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(encoded))
}

func TestValidate_RejectsMalformedTag(t *testing.T) {
	id := Identifier{"not-a-tag": Element{VR: "LO"}}
	assert.Error(t, id.Validate())
}

func TestValidate_AcceptsLowercaseHexTag(t *testing.T) {
	id := Identifier{"0010001e": Element{VR: "LO", Value: []any{"x"}}}
	assert.NoError(t, id.Validate())
}

func TestFromWrapperJSON_AcceptsCamelCaseQueryMetadata(t *testing.T) {
	input := []byte(`{"identifier":{"00100010":{"vr":"PN","Value":["Doe"]}},"queryMetadata":{"00100010":"EXACT"}}`)

	w, err := FromWrapperJSON(input)
	require.NoError(t, err)
	assert.Equal(t, "EXACT", w.QueryMetadata["00100010"])
}

func TestFromWrapperJSON_AcceptsSnakeCaseQueryMetadata(t *testing.T) {
	input := []byte(`{"identifier":{},"query_metadata":{"00100010":"WILDCARD"}}`)

	w, err := FromWrapperJSON(input)
	require.NoError(t, err)
	assert.Equal(t, "WILDCARD", w.QueryMetadata["00100010"])
}
