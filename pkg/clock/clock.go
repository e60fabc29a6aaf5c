/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package clock produces the per-record timestamp deltas.
package clock

import (
	"sync"
	"time"

	"github.com/hyperledger-labs/mtrace/pkg/host"
)

// Kind selects which clocks a session records.
type Kind int

const (
	// ThreadCPU records each thread's cpu-time delta.
	ThreadCPU Kind = iota
	// Wall records the wall-time delta since session start.
	Wall
	// Dual records both.
	Dual
)

func (k Kind) String() string {
	switch k {
	case ThreadCPU:
		return "thread-cpu"
	case Wall:
		return "wall"
	}
	return "dual"
}

// UsesThreadCPU reports whether records carry a thread-cpu delta.
func (k Kind) UsesThreadCPU() bool {
	return k == ThreadCPU || k == Dual
}

// UsesWall reports whether records carry a wall delta.
func (k Kind) UsesWall() bool {
	return k == Wall || k == Dual
}

// Source reads clocks for one session. The thread-cpu delta is relative to a
// per-thread base established by the thread's first read, so successive deltas
// from one thread never decrease; the wall delta is relative to session start.
// Per-thread bases live in a sync.Map, so concurrent readers of distinct
// threads do not contend.
type Source struct {
	kind  Kind
	start time.Time
	bases sync.Map // int32 -> uint64, thread-cpu base in microseconds
}

// NewSource creates a Source for a session that started at start.
func NewSource(kind Kind, start time.Time) *Source {
	return &Source{kind: kind, start: start}
}

// Kind returns the session's clock selection.
func (s *Source) Kind() Kind {
	return s.kind
}

// ReadClocks returns the deltas for one record produced by t. Unused clocks
// report zero.
func (s *Source) ReadClocks(t host.Thread) (threadDelta, wallDelta uint32) {
	if s.kind.UsesThreadCPU() {
		now := t.CPUTimeMicros()
		base, ok := s.bases.Load(t.ID())
		if !ok {
			// First event on this thread establishes the base.
			s.bases.Store(t.ID(), now)
		} else {
			threadDelta = uint32(now - base.(uint64))
		}
	}
	if s.kind.UsesWall() {
		wallDelta = uint32(time.Since(s.start).Microseconds())
	}
	return threadDelta, wallDelta
}

// ForgetThread drops the per-thread base, used when a thread exits or when
// sampling state is torn down.
func (s *Source) ForgetThread(tid int32) {
	s.bases.Delete(tid)
}

// MeasureOverhead issues repeated back-to-back reads of the selected clocks on
// the calling thread and returns the typical cost of one read. The result is
// reported in the trace summary; it never alters recorded deltas.
func MeasureOverhead(kind Kind, t host.Thread) time.Duration {
	const rounds = 4096

	read := func() {
		if kind.UsesThreadCPU() && t != nil {
			t.CPUTimeMicros()
		}
		if kind.UsesWall() {
			time.Now()
		}
	}

	start := time.Now()
	for i := 0; i < rounds; i++ {
		read()
	}
	return time.Since(start) / rounds
}
