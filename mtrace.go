/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package mtrace is an in-process method-tracing engine for managed execution
// environments. It captures method enter/exit/unwind events (or periodic
// stack samples), timestamps them with one or two clock sources, and encodes
// them into a compact binary trace delivered to a file, an in-process live
// transport, or a continuously flushed streaming sink.
//
// The environment being traced is reached exclusively through the interfaces
// of the host package; the engine never assumes how threads are paused,
// enumerated, or walked.
package mtrace

import (
	"io"
	"time"

	"github.com/hyperledger-labs/mtrace/pkg/clock"
	"github.com/hyperledger-labs/mtrace/pkg/sink"
)

// TraceMode selects how events are produced.
type TraceMode int

const (
	// ModeMethod instruments every method entry, exit and unwind.
	ModeMethod TraceMode = iota

	// ModeSampling reconstructs events from periodic stack snapshots.
	ModeSampling
)

func (m TraceMode) String() string {
	if m == ModeSampling {
		return "sampling"
	}
	return "method"
}

// OutputMode selects where and when trace data is delivered.
type OutputMode int

const (
	// OutputFile buffers all records in memory and writes a file at Stop.
	OutputFile OutputMode = iota

	// OutputLive buffers all records in memory and publishes the finished
	// trace over an in-process transport at Stop.
	OutputLive

	// OutputStreaming flushes per-thread buffers to the sink continuously
	// during the session.
	OutputStreaming
)

func (m OutputMode) String() string {
	switch m {
	case OutputLive:
		return "live"
	case OutputStreaming:
		return "streaming"
	}
	return "file"
}

// Flags is the session flag set.
type Flags int

const (
	// FlagCountAllocs reports the environment's allocation counters in the
	// trace summary.
	FlagCountAllocs Flags = 0x001

	// FlagWallClock records wall-clock deltas.
	FlagWallClock Flags = 0x010

	// FlagThreadCPUClock records thread-cpu deltas. Together with
	// FlagWallClock it selects the dual-clock format.
	FlagThreadCPUClock Flags = 0x100
)

// ClockKind maps the flag set to the session's clock selection. With neither
// clock flag set the session records both clocks.
func (f Flags) ClockKind() clock.Kind {
	wall := f&FlagWallClock != 0
	cpu := f&FlagThreadCPUClock != 0
	switch {
	case wall && cpu:
		return clock.Dual
	case wall:
		return clock.Wall
	case cpu:
		return clock.ThreadCPU
	}
	return clock.Dual
}

// DefaultBufferSize is used when a Config leaves BufferSize zero.
const DefaultBufferSize = 8 * 1024 * 1024

// Config describes one tracing session. Exactly one destination must be set:
// Path (a file the engine creates), Output (an already-open sink), or
// Transport (live output mode only).
type Config struct {
	Path      string
	Output    io.WriteCloser
	Transport sink.Transport

	// BufferSize bounds the shared buffer (file and live modes) or sizes the
	// per-thread buffers (streaming mode), in bytes.
	BufferSize int

	Flags      Flags
	OutputMode OutputMode
	TraceMode  TraceMode

	// SamplingInterval is the pause between snapshot rounds. Required in
	// sampling mode, ignored otherwise.
	SamplingInterval time.Duration
}
