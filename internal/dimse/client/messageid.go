// Package client implements the DIMSE SCU side: association dial and
// command senders (C-ECHO/C-FIND/C-GET/C-MOVE/C-STORE) used by backend
// drivers to dispatch against configured DIMSE peers.
package client

import "sync/atomic"

// MessageIDAllocator issues strictly increasing 16-bit message IDs within
// one association: message IDs are allocated by the initiator, monotonic
// within an association. Safe for concurrent use: callers on the same
// association (e.g. a C-GET's SCP-initiated C-STORE sub-operations) share
// one allocator instance.
type MessageIDAllocator struct {
	next atomic.Uint32
}

// NewMessageIDAllocator starts an allocator whose first Next() returns 1.
func NewMessageIDAllocator() *MessageIDAllocator {
	return &MessageIDAllocator{}
}

// Next returns the next message ID, starting at 1 and wrapping within the
// 16-bit range (an association exhausting 65535 messages is not a realistic
// proxy workload, but wrapping rather than panicking keeps the allocator
// total).
func (a *MessageIDAllocator) Next() uint16 {
	n := a.next.Add(1)
	return uint16(n)
}
