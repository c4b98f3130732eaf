package dicomjson

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWritePart10_HasPreambleAndMagic(t *testing.T) {
	out := WritePart10("1.2.840.10008.5.1.4.1.1.7", "1.2.3.4.5", []byte("dataset-bytes"))

	assert.True(t, IsPart10(out))
}

func TestWritePart10_DefaultsSOPClassUID(t *testing.T) {
	withDefault := WritePart10("", "1.2.3", []byte("x"))
	explicit := WritePart10(DefaultSOPClassUID, "1.2.3", []byte("x"))

	assert.Equal(t, explicit, withDefault)
}

func TestIsPart10_RejectsShortInput(t *testing.T) {
	assert.False(t, IsPart10([]byte("short")))
}
