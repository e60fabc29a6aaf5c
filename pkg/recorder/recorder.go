/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package recorder turns host execution events into timestamped trace records.
package recorder

import (
	"sync/atomic"

	"github.com/hyperledger-labs/mtrace/pkg/buffer"
	"github.com/hyperledger-labs/mtrace/pkg/clock"
	"github.com/hyperledger-labs/mtrace/pkg/encoding"
	"github.com/hyperledger-labs/mtrace/pkg/host"
	"github.com/hyperledger-labs/mtrace/pkg/logging"
	"github.com/hyperledger-labs/mtrace/pkg/registry"
)

// Recorder implements host.Listener for one session. It runs on the calling
// program thread: the producing handlers allocate nothing and take no lock
// beyond the registry lock (global regime) or none at all (streaming append).
// Exactly one of global/streaming is non-nil, fixed for the session.
type Recorder struct {
	clocks    *clock.Source
	registry  *registry.Registry
	format    encoding.Format
	global    *buffer.Global
	streaming *buffer.Streaming
	logger    logging.Logger

	// Set when a session-fatal condition (thread-id exhaustion) was hit;
	// every later event is dropped but the session's captured data survives.
	failed uint32
}

// New creates the capture surface for a session.
func New(clocks *clock.Source, reg *registry.Registry, format encoding.Format,
	global *buffer.Global, streaming *buffer.Streaming, logger logging.Logger) *Recorder {

	return &Recorder{
		clocks:    clocks,
		registry:  reg,
		format:    format,
		global:    global,
		streaming: streaming,
		logger:    logger,
	}
}

// Failed reports whether the session hit a fatal capture condition.
func (r *Recorder) Failed() bool {
	return atomic.LoadUint32(&r.failed) == 1
}

func (r *Recorder) MethodEntered(t host.Thread, m host.Method) {
	r.record(t, m, encoding.ActionEnter)
}

func (r *Recorder) MethodExited(t host.Thread, m host.Method) {
	r.record(t, m, encoding.ActionExit)
}

func (r *Recorder) MethodUnwound(t host.Thread, m host.Method) {
	r.record(t, m, encoding.ActionUnwind)
}

func (r *Recorder) record(t host.Thread, m host.Method, action encoding.Action) {
	if atomic.LoadUint32(&r.failed) == 1 {
		return
	}

	threadDelta, wallDelta := r.clocks.ReadClocks(t)

	if r.streaming != nil {
		err := r.streaming.Write(t, buffer.Entry{
			Method:      m,
			Action:      action,
			ThreadDelta: threadDelta,
			WallDelta:   wallDelta,
		})
		if err != nil {
			r.fail(err)
		}
		return
	}

	methodID := r.registry.InternMethod(m)
	threadID, err := r.registry.InternThread(t.ID(), t.Name())
	if err != nil {
		r.fail(err)
		return
	}

	size := r.format.RecordSize()
	offset, ok := r.global.Reserve(size)
	if !ok {
		// Buffer saturated; the sticky overflow flag is already set and the
		// event is dropped.
		return
	}
	r.format.EncodeRecord(r.global.At(offset, size), encoding.Record{
		ThreadID:    threadID,
		MethodID:    methodID,
		Action:      action,
		ThreadDelta: threadDelta,
		WallDelta:   wallDelta,
	})
}

func (r *Recorder) fail(err error) {
	if atomic.CompareAndSwapUint32(&r.failed, 0, 1) {
		r.logger.Log(logging.LevelError, "Session-fatal capture failure, dropping further events.", "err", err)
	}
}

// The remaining handlers are reserved extension points: the core trace format
// has no encoding for them, so they deliberately produce no record. Future
// format versions may use them, which is why they exist on the listener
// rather than being filtered out by the host dispatcher.

func (r *Recorder) BranchTaken(t host.Thread, m host.Method, offset int32) {
	r.logger.Log(logging.LevelError, "Unexpected branch event in tracing.", "method", m.Name())
}

func (r *Recorder) FieldRead(t host.Thread, m host.Method, pos uint32) {
	r.logger.Log(logging.LevelError, "Unexpected field read event in tracing.", "method", m.Name())
}

func (r *Recorder) FieldWritten(t host.Thread, m host.Method, pos uint32) {
	r.logger.Log(logging.LevelError, "Unexpected field write event in tracing.", "method", m.Name())
}

func (r *Recorder) ExceptionThrown(t host.Thread) {
	r.logger.Log(logging.LevelError, "Unexpected exception thrown event in tracing.")
}

func (r *Recorder) ExceptionHandled(t host.Thread) {
	r.logger.Log(logging.LevelError, "Unexpected exception handled event in tracing.")
}

func (r *Recorder) DexPositionMoved(t host.Thread, m host.Method, pos uint32) {
	r.logger.Log(logging.LevelError, "Unexpected position event in tracing.", "method", m.Name(), "pos", pos)
}

func (r *Recorder) WatchedFramePopped(t host.Thread) {
	r.logger.Log(logging.LevelError, "Unexpected watched frame pop event in tracing.")
}
