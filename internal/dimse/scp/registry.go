// Package scp implements the persistent DIMSE Store-SCP listener registry
// and the SCP connection handler: process-wide state keyed by (local AET,
// bind address, port, endpoint name) ensuring at most one listener per key
// across the process lifetime.
package scp

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/dicomgateway/gatewayd/internal/dimse/assoc"
	"github.com/dicomgateway/gatewayd/internal/dimse/pdu"
	"github.com/dicomgateway/gatewayd/internal/errortaxonomy"
)

// Key identifies one listener uniquely across the process.
type Key struct {
	LocalAET     string
	BindAddr     string
	Port         int
	EndpointName string
}

func (k Key) String() string {
	return fmt.Sprintf("%s@%s:%d/%s", k.LocalAET, k.BindAddr, k.Port, k.EndpointName)
}

// Spec is what ensure_started needs to spawn a listener: the bind target
// plus the connection handler to run per accepted association.
type Spec struct {
	Key            Key
	MaxAssociations int
	Handle         func(ctx context.Context, conn net.Conn)
}

// Registry is the single process-wide mutable state this gateway carries:
// the only mutex-protected global state. The mutex guards only membership
// tracking; spawning the listener goroutine happens outside the lock.
type Registry struct {
	mu        sync.Mutex
	listeners map[Key]*listener
	starting  map[Key]bool
	logger    *slog.Logger
}

type listener struct {
	net.Listener
	cancel context.CancelFunc
}

// New constructs an empty Registry. A nil logger falls back to slog.Default().
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		listeners: make(map[Key]*listener),
		logger:    logger,
	}
}

// EnsureStarted spawns a listener for spec.Key if none is running yet; a
// call for an already-running key is a no-op. On listener exit (error or
// graceful stop), the key is removed so a later re-configuration can rebind.
func (r *Registry) EnsureStarted(ctx context.Context, spec Spec) error {
	r.mu.Lock()
	if _, exists := r.listeners[spec.Key]; exists || r.starting[spec.Key] {
		r.mu.Unlock()
		return nil
	}
	if r.starting == nil {
		r.starting = make(map[Key]bool)
	}
	r.starting[spec.Key] = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.starting, spec.Key)
		r.mu.Unlock()
	}()

	addr := fmt.Sprintf("%s:%d", spec.Key.BindAddr, spec.Key.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errortaxonomy.Wrap(errortaxonomy.Network, fmt.Sprintf("failed to bind %s", addr), err)
	}
	r.logger.Info("dimse scp listener started", "key", spec.Key.String(), "addr", addr)

	listenerCtx, cancel := context.WithCancel(ctx)
	entry := &listener{Listener: ln, cancel: cancel}

	r.mu.Lock()
	if _, exists := r.listeners[spec.Key]; exists {
		r.mu.Unlock()
		ln.Close()
		cancel()
		return nil
	}
	r.listeners[spec.Key] = entry
	r.mu.Unlock()

	sem := make(chan struct{}, maxOr(spec.MaxAssociations, 10))

	go func() {
		defer r.remove(spec.Key)
		r.serve(listenerCtx, ln, sem, spec.Handle)
	}()

	return nil
}

func maxOr(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

// serve accepts connections until the listener is closed, handing each off
// to its own goroutine bounded by sem, a per-listener
// max-concurrent-associations semaphore.
func (r *Registry) serve(ctx context.Context, ln net.Listener, sem chan struct{}, handle func(context.Context, net.Conn)) {
	var wg sync.WaitGroup
	for {
		conn, err := ln.Accept()
		if err != nil {
			wg.Wait()
			return
		}

		select {
		case sem <- struct{}{}:
		default:
			abortOverflow(conn)
			conn.Close()
			continue
		}

		wg.Add(1)
		go func(c net.Conn) {
			defer wg.Done()
			defer func() { <-sem }()
			handle(ctx, c)
		}(conn)
	}
}

// abortOverflow sends A-ABORT (source service-provider, reason not
// specified) to a connection accepted past the configured max-associations
// bound. No local-limit-exceeded reason is sent.
func abortOverflow(conn net.Conn) {
	_ = pdu.WritePDU(conn, pdu.TypeAbort, assoc.EncodeAbort(assoc.AbortSourceServiceProvider, assoc.AbortReasonNotSpecified))
}

func (r *Registry) remove(key Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.listeners[key]; ok {
		entry.cancel()
		delete(r.listeners, key)
	}
}

// Stop closes the listener for key, if running.
func (r *Registry) Stop(key Key) error {
	r.mu.Lock()
	entry, ok := r.listeners[key]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	err := entry.Close()
	r.remove(key)
	return err
}

// Running reports whether a listener for key is currently active.
func (r *Registry) Running(key Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.listeners[key]
	return ok
}

// StopAll closes every running listener, for process shutdown.
func (r *Registry) StopAll() {
	r.mu.Lock()
	keys := make([]Key, 0, len(r.listeners))
	for k := range r.listeners {
		keys = append(keys, k)
	}
	r.mu.Unlock()

	for _, k := range keys {
		_ = r.Stop(k)
	}
}
