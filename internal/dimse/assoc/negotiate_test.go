package assoc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRQ_RoundTrip(t *testing.T) {
	params := RequestParams{
		CalledAET:  "GATEWAY",
		CallingAET: "MODALITY01",
		Contexts: []ProposedContext{
			{ID: 1, AbstractSyntax: "1.2.840.10008.5.1.4.1.1.7", TransferSyntaxes: []string{"1.2.840.10008.1.2.1", "1.2.840.10008.1.2"}},
		},
		MaxPDULength:      16384,
		ImplementationUID: "1.2.3.4.5",
	}

	encoded := EncodeRQ(params)
	decoded, err := DecodeRQ(encoded)

	require.NoError(t, err)
	assert.Equal(t, "GATEWAY", decoded.CalledAET)
	assert.Equal(t, "MODALITY01", decoded.CallingAET)
	assert.Equal(t, DefaultApplicationContext, decoded.ApplicationContext)
	require.Len(t, decoded.Contexts, 1)
	assert.Equal(t, byte(1), decoded.Contexts[0].ID)
	assert.Equal(t, "1.2.840.10008.5.1.4.1.1.7", decoded.Contexts[0].AbstractSyntax)
	assert.Equal(t, []string{"1.2.840.10008.1.2.1", "1.2.840.10008.1.2"}, decoded.Contexts[0].TransferSyntaxes)
	assert.Equal(t, uint32(16384), decoded.MaxPDULength)
	assert.Equal(t, "1.2.3.4.5", decoded.ImplementationUID)
}

func TestNegotiate_AcceptsFirstPreferredTransferSyntax(t *testing.T) {
	contexts := []ProposedContext{
		{ID: 1, AbstractSyntax: "1.2.840.10008.1.1", TransferSyntaxes: []string{"1.2.840.10008.1.2", "1.2.840.10008.1.2.1"}},
	}
	supported := map[string]bool{"1.2.840.10008.1.1": true}
	preferred := []string{"1.2.840.10008.1.2.1", "1.2.840.10008.1.2"}

	accepted := Negotiate(contexts, supported, preferred)

	require.Len(t, accepted, 1)
	assert.Equal(t, ResultAccepted, accepted[0].Result)
	assert.Equal(t, "1.2.840.10008.1.2.1", accepted[0].TransferSyntax, "preferred list order is the tie-breaker, not proposed order")
}

func TestNegotiate_RejectsUnsupportedAbstractSyntax(t *testing.T) {
	contexts := []ProposedContext{
		{ID: 1, AbstractSyntax: "unknown.sop.class", TransferSyntaxes: []string{"1.2.840.10008.1.2"}},
	}
	accepted := Negotiate(contexts, map[string]bool{}, []string{"1.2.840.10008.1.2"})

	require.Len(t, accepted, 1)
	assert.Equal(t, ResultAbstractSyntaxNotSupported, accepted[0].Result)
}

func TestNegotiate_RejectsUnsupportedTransferSyntax(t *testing.T) {
	contexts := []ProposedContext{
		{ID: 1, AbstractSyntax: "1.2.840.10008.1.1", TransferSyntaxes: []string{"1.2.840.10008.1.2.99"}},
	}
	supported := map[string]bool{"1.2.840.10008.1.1": true}
	accepted := Negotiate(contexts, supported, []string{"1.2.840.10008.1.2.1"})

	require.Len(t, accepted, 1)
	assert.Equal(t, ResultTransferSyntaxNotSupported, accepted[0].Result)
}

func TestNegotiatedMaxPDU(t *testing.T) {
	assert.Equal(t, uint32(16384), NegotiatedMaxPDU(0, 16384), "0 from peer means no limit, so local wins")
	assert.Equal(t, uint32(16384), NegotiatedMaxPDU(32768, 16384))
	assert.Equal(t, uint32(8192), NegotiatedMaxPDU(8192, 16384))
}

func TestEncodeAC_EchoesTransferSyntaxForAcceptedContextsOnly(t *testing.T) {
	ac := EncodeAC(AcceptParams{
		CalledAET:  "GATEWAY",
		CallingAET: "MODALITY01",
		Contexts: []AcceptedContext{
			{ID: 1, Result: ResultAccepted, TransferSyntax: "1.2.840.10008.1.2.1"},
			{ID: 3, Result: ResultAbstractSyntaxNotSupported},
		},
		MaxPDULength: 16384,
	})
	assert.NotEmpty(t, ac)
}
