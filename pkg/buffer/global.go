/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package buffer provides the two storage regimes for encoded trace records:
// one capacity-bounded array shared by all producers, or per-thread private
// buffers flushed to a sink during the session.
package buffer

import (
	"sync/atomic"

	"github.com/hyperledger-labs/mtrace/pkg/encoding"
)

// Global is the shared buffer used by non-streaming sessions. Reservation is a
// wait-free fetch-and-add on a single cursor; writers then fill their reserved
// slice without further synchronization. The buffer is only ever read after a
// quiescence point has paused all writers, which is the sole happens-before
// edge the readout relies on.
type Global struct {
	buf      []byte
	capacity int64
	cursor   int64 // atomic
	overflow uint32
}

// NewGlobal allocates a shared buffer. The capacity is clamped so the session
// header always fits.
func NewGlobal(capacity int) *Global {
	if capacity < encoding.HeaderLength {
		capacity = encoding.HeaderLength
	}
	return &Global{
		buf:      make([]byte, capacity),
		capacity: int64(capacity),
		cursor:   encoding.HeaderLength,
	}
}

// Reserve atomically claims size bytes and returns the write offset. A
// reservation whose end would exceed capacity is rejected outright and sets
// the sticky overflow flag; the cursor still advances, which is harmless
// because all records in a session share one size, so every later reservation
// is rejected too and accepted offsets always form a prefix of the buffer.
func (g *Global) Reserve(size int) (int, bool) {
	offset := atomic.AddInt64(&g.cursor, int64(size)) - int64(size)
	if offset+int64(size) > g.capacity {
		atomic.StoreUint32(&g.overflow, 1)
		return 0, false
	}
	return int(offset), true
}

// At returns the reserved slice [offset, offset+size) for the writer to fill.
func (g *Global) At(offset, size int) []byte {
	return g.buf[offset : offset+size]
}

// Bytes exposes the underlying storage. Only valid after quiescence.
func (g *Global) Bytes() []byte {
	return g.buf
}

// Len returns the number of buffer bytes covered by whole records of the
// given size, including the header. Only valid after quiescence.
func (g *Global) Len(recordSize int) int {
	cursor := atomic.LoadInt64(&g.cursor)
	if cursor <= g.capacity {
		return int(cursor)
	}
	// Overflowed; truncate to the last record that fit entirely.
	records := (g.capacity - encoding.HeaderLength) / int64(recordSize)
	return encoding.HeaderLength + int(records)*recordSize
}

// Overflowed reports whether any reservation was rejected. The flag is sticky
// for the life of the buffer.
func (g *Global) Overflowed() bool {
	return atomic.LoadUint32(&g.overflow) == 1
}

// Capacity returns the buffer's fixed capacity in bytes.
func (g *Global) Capacity() int {
	return int(g.capacity)
}
