package scp

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/dicomgateway/gatewayd/internal/dimse/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_RespondsToEcho(t *testing.T) {
	registry := New(nil)
	port := freePort(t)
	key := Key{LocalAET: "GATEWAY", BindAddr: "127.0.0.1", Port: port, EndpointName: "echo"}

	h := &Handler{
		CalledAET:                 "GATEWAY",
		SupportedAbstractSyntaxes: map[string]bool{client.VerificationSOPClass: true},
		PreferredTransferSyntaxes: []string{"1.2.840.10008.1.2.1", "1.2.840.10008.1.2"},
	}

	require.NoError(t, registry.EnsureStarted(context.Background(), Spec{Key: key, Handle: h.Handle}))
	t.Cleanup(func() { registry.Stop(key) })
	time.Sleep(20 * time.Millisecond)

	scu := client.NewSCU("SCU", []client.Destination{{AET: "GATEWAY", Address: "127.0.0.1:" + strconv.Itoa(port)}}, 2*time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	assert.NoError(t, scu.Echo(ctx, "GATEWAY"))
}
