/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package buffer

import (
	"io"
	"sync"

	"github.com/pkg/errors"

	"github.com/hyperledger-labs/mtrace/pkg/encoding"
	"github.com/hyperledger-labs/mtrace/pkg/host"
	"github.com/hyperledger-labs/mtrace/pkg/logging"
	"github.com/hyperledger-labs/mtrace/pkg/registry"
)

// Entry is one not-yet-encoded event held in a thread's private buffer. The
// method handle is kept unresolved so that interning, which requires the
// session-wide lock, is deferred to the flush.
type Entry struct {
	Method      host.Method
	Action      encoding.Action
	ThreadDelta uint32
	WallDelta   uint32
}

type threadBuffer struct {
	wireID   uint16
	name     string
	declared bool
	entries  []Entry
}

// Streaming owns the per-thread buffers of a streaming session and the single
// session-wide flush lock. Appending to a thread's buffer needs no shared
// synchronization because the buffer is thread-exclusive; only the flush,
// which interns method ids and writes to the sink, serializes across threads.
type Streaming struct {
	sink     io.Writer
	format   encoding.Format
	registry *registry.Registry
	logger   logging.Logger
	capacity int // entries per thread buffer

	mutex   sync.Mutex // the streaming-flush lock
	threads sync.Map   // int32 -> *threadBuffer
}

// NewStreaming creates the streaming substrate. bufferSize is the session's
// configured buffer size in bytes; each thread's buffer holds as many entries
// as would fit in that many encoded bytes.
func NewStreaming(sink io.Writer, format encoding.Format, reg *registry.Registry, bufferSize int, logger logging.Logger) *Streaming {
	capacity := bufferSize / format.RecordSize()
	if capacity < 1 {
		capacity = 1
	}
	return &Streaming{
		sink:     sink,
		format:   format,
		registry: reg,
		logger:   logger,
		capacity: capacity,
	}
}

// Write appends one entry to t's private buffer, flushing first if the entry
// would not fit. The returned error is only non-nil for the session-fatal
// thread-id exhaustion; flush I/O failures are logged and the session
// continues best-effort.
func (s *Streaming) Write(t host.Thread, e Entry) error {
	tb, err := s.threadBufferFor(t)
	if err != nil {
		return err
	}

	if len(tb.entries) == s.capacity {
		if err := s.flush(tb); err != nil {
			s.logger.Log(logging.LevelWarn, "Failed streaming a tracing event.", "err", err)
		}
	}
	tb.entries = append(tb.entries, e)
	return nil
}

func (s *Streaming) threadBufferFor(t host.Thread) (*threadBuffer, error) {
	if v, ok := s.threads.Load(t.ID()); ok {
		return v.(*threadBuffer), nil
	}

	// First event from this thread; create its buffer lazily.
	wireID, err := s.registry.InternThread(t.ID(), t.Name())
	if err != nil {
		return nil, err
	}
	tb := &threadBuffer{
		wireID:  wireID,
		name:    t.Name(),
		entries: make([]Entry, 0, s.capacity),
	}
	v, _ := s.threads.LoadOrStore(t.ID(), tb)
	return v.(*threadBuffer), nil
}

// FlushThread flushes t's buffer if one exists. Invoked from the host's
// thread-teardown path so a dying thread's trailing events are not lost, and
// by tests.
func (s *Streaming) FlushThread(t host.Thread) error {
	v, ok := s.threads.Load(t.ID())
	if !ok {
		return nil
	}
	return s.flush(v.(*threadBuffer))
}

// FlushAll flushes every thread's buffer. Called at session stop after the
// quiescence point, so no thread is appending concurrently.
func (s *Streaming) FlushAll() error {
	var firstErr error
	s.threads.Range(func(_, v interface{}) bool {
		if err := s.flush(v.(*threadBuffer)); err != nil && firstErr == nil {
			firstErr = err
		}
		return true
	})
	return firstErr
}

// flush encodes and appends tb's buffered entries to the sink under the
// session-wide lock, declaring the thread's name on its first flush and any
// method ids this batch references for the first time, then resets the
// thread's cursor. Declarations must not interleave between threads, which is
// why interning happens here rather than on the hot path.
func (s *Streaming) flush(tb *threadBuffer) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	batch := make([]byte, 0, len(tb.entries)*s.format.RecordSize()+64)
	if !tb.declared {
		batch = encoding.AppendThreadOp(batch, tb.wireID, tb.name)
		tb.declared = true
	}

	var record [encoding.RecordSizeDualClock]byte
	for _, e := range tb.entries {
		id, isNew := s.registry.InternMethodNew(e.Method)
		if isNew {
			batch = encoding.AppendMethodOp(batch, encoding.MethodLine(id, e.Method))
		}
		s.format.EncodeRecord(record[:], encoding.Record{
			ThreadID:    tb.wireID,
			MethodID:    id,
			Action:      e.Action,
			ThreadDelta: e.ThreadDelta,
			WallDelta:   e.WallDelta,
		})
		batch = append(batch, record[:s.format.RecordSize()]...)
	}
	tb.entries = tb.entries[:0]

	if _, err := s.sink.Write(batch); err != nil {
		return errors.WithMessage(err, "could not append batch to sink")
	}
	return nil
}

// Occupancy returns the number of buffered entries for the given thread,
// used by tests to check the capacity invariant.
func (s *Streaming) Occupancy(tid int32) int {
	if v, ok := s.threads.Load(tid); ok {
		return len(v.(*threadBuffer).entries)
	}
	return 0
}

// EntryCapacity returns the per-thread buffer capacity in entries.
func (s *Streaming) EntryCapacity() int {
	return s.capacity
}
