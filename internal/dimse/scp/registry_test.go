package scp

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func TestRegistry_EnsureStarted_ConcurrentCallsProduceOneListener(t *testing.T) {
	r := New(nil)
	key := Key{LocalAET: "GATEWAY", BindAddr: "127.0.0.1", Port: freePort(t), EndpointName: "store"}

	var started int32
	var mu sync.Mutex
	handle := func(ctx context.Context, conn net.Conn) {
		mu.Lock()
		started++
		mu.Unlock()
		conn.Close()
	}

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = r.EnsureStarted(context.Background(), Spec{Key: key, Handle: handle})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.True(t, r.Running(key))

	require.NoError(t, r.Stop(key))
	time.Sleep(20 * time.Millisecond)
	assert.False(t, r.Running(key))
}

func TestRegistry_StopRemovesKeyAllowingRebind(t *testing.T) {
	r := New(nil)
	port := freePort(t)
	key := Key{LocalAET: "GATEWAY", BindAddr: "127.0.0.1", Port: port, EndpointName: "store"}
	handle := func(ctx context.Context, conn net.Conn) { conn.Close() }

	require.NoError(t, r.EnsureStarted(context.Background(), Spec{Key: key, Handle: handle}))
	require.NoError(t, r.Stop(key))
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, r.EnsureStarted(context.Background(), Spec{Key: key, Handle: handle}))
	assert.True(t, r.Running(key))
	require.NoError(t, r.Stop(key))
}

func TestRegistry_StopAllClosesEveryListener(t *testing.T) {
	r := New(nil)
	handle := func(ctx context.Context, conn net.Conn) { conn.Close() }
	keyA := Key{LocalAET: "GATEWAY", BindAddr: "127.0.0.1", Port: freePort(t), EndpointName: "a"}
	keyB := Key{LocalAET: "GATEWAY", BindAddr: "127.0.0.1", Port: freePort(t), EndpointName: "b"}

	require.NoError(t, r.EnsureStarted(context.Background(), Spec{Key: keyA, Handle: handle}))
	require.NoError(t, r.EnsureStarted(context.Background(), Spec{Key: keyB, Handle: handle}))

	r.StopAll()
	time.Sleep(20 * time.Millisecond)
	assert.False(t, r.Running(keyA))
	assert.False(t, r.Running(keyB))
}
