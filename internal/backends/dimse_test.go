package backends

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/dicomgateway/gatewayd/internal/dimse/client"
	"github.com/dicomgateway/gatewayd/internal/dimse/scp"
	"github.com/dicomgateway/gatewayd/internal/envelope"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freeDIMSEPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func TestDIMSE_SkipsWhenNoOperationMetadata(t *testing.T) {
	scu := client.NewSCU("SCU", nil, time.Second)
	backend := NewDIMSE("dimse-main", scu, nil)
	env := envelope.New(envelope.Details{Method: "POST", URI: "/x", Headers: http.Header{}}, envelope.Payload{})

	outcome, ferr := backend.Dispatch(context.Background(), env)
	require.Nil(t, ferr)
	assert.Equal(t, envelope.Skipped, outcome)
}

func TestDIMSE_SkipsStoreSCPOperation(t *testing.T) {
	scu := client.NewSCU("SCU", nil, time.Second)
	backend := NewDIMSE("dimse-main", scu, nil)
	env := envelope.New(envelope.Details{
		Method:   "STORE-SCP",
		Metadata: map[string]string{MetaOperation: OperationStoreSCP},
	}, envelope.Payload{Protocol: envelope.ProtocolDIMSE})

	outcome, ferr := backend.Dispatch(context.Background(), env)
	require.Nil(t, ferr)
	assert.Equal(t, envelope.Skipped, outcome)
}

func TestDIMSE_EchoOperationRoundTrip(t *testing.T) {
	registry := scp.New(nil)
	port := freeDIMSEPort(t)
	key := scp.Key{LocalAET: "MODALITY1", BindAddr: "127.0.0.1", Port: port, EndpointName: "echo"}

	h := &scp.Handler{
		CalledAET:                 "MODALITY1",
		SupportedAbstractSyntaxes: map[string]bool{client.VerificationSOPClass: true},
		PreferredTransferSyntaxes: []string{"1.2.840.10008.1.2.1"},
	}
	require.NoError(t, registry.EnsureStarted(context.Background(), scp.Spec{Key: key, Handle: h.Handle}))
	t.Cleanup(func() { registry.Stop(key) })
	time.Sleep(20 * time.Millisecond)

	scu := client.NewSCU("GATEWAY", []client.Destination{{AET: "MODALITY1", Address: "127.0.0.1:" + strconv.Itoa(port)}}, 2*time.Second)
	backend := NewDIMSE("dimse-main", scu, nil)

	env := envelope.New(envelope.Details{
		Method:   "POST",
		URI:      "/echo",
		Headers:  http.Header{},
		Metadata: map[string]string{MetaOperation: OperationEcho, MetaDestinationAET: "MODALITY1"},
	}, envelope.Payload{})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	outcome, ferr := backend.Dispatch(ctx, env)
	require.Nil(t, ferr)
	assert.Equal(t, envelope.Continue, outcome)

	resp, ok := env.ShortCircuit()
	require.True(t, ok)
	assert.Contains(t, string(resp.Body), `"success":true`)
}
