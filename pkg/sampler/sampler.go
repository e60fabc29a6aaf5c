/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package sampler reconstructs call-stack evolution from periodic snapshots
// instead of per-call instrumentation.
package sampler

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/hyperledger-labs/mtrace/pkg/host"
	"github.com/hyperledger-labs/mtrace/pkg/logging"
	"github.com/hyperledger-labs/mtrace/pkg/recorder"
)

// State of the sampling thread.
type State int32

const (
	Idle State = iota
	Running
	Stopping
	Terminated
)

const stackBufferCapacity = 1024

// Sampler periodically pauses the producers, snapshots every live thread's
// call stack, and emits synthetic enter/exit records for the difference
// against the previous snapshot. It is the only producer in a sampling-mode
// session.
type Sampler struct {
	interval time.Duration
	threads  host.Threads
	recorder *recorder.Recorder
	logger   logging.Logger

	state int32 // atomic State
	stopC chan struct{}
	doneC chan struct{}

	// Previous snapshot per thread, touched only by the sampling goroutine.
	previous map[int32][]host.Method

	// Stack buffers are reused across iterations so steady-state sampling
	// does not allocate.
	pool sync.Pool
}

// New creates a sampler producing into rec every interval.
func New(interval time.Duration, threads host.Threads, rec *recorder.Recorder, logger logging.Logger) *Sampler {
	return &Sampler{
		interval: interval,
		threads:  threads,
		recorder: rec,
		logger:   logger,
		stopC:    make(chan struct{}),
		doneC:    make(chan struct{}),
		previous: map[int32][]host.Method{},
		pool: sync.Pool{
			New: func() interface{} {
				return make([]host.Method, 0, stackBufferCapacity)
			},
		},
	}
}

// State returns the sampler's lifecycle state.
func (s *Sampler) State() State {
	return State(atomic.LoadInt32(&s.state))
}

// Start spawns the sampling goroutine.
func (s *Sampler) Start() {
	atomic.StoreInt32(&s.state, int32(Running))
	go s.run()
}

// Stop signals the sampling goroutine and joins it. The controller must call
// Stop before declaring the session torn down.
func (s *Sampler) Stop() {
	atomic.StoreInt32(&s.state, int32(Stopping))
	close(s.stopC)
	<-s.doneC
	atomic.StoreInt32(&s.state, int32(Terminated))
}

func (s *Sampler) run() {
	defer close(s.doneC)

	s.logger.Log(logging.LevelDebug, "Sampling thread started.", "intervalUs", s.interval.Microseconds())
	for {
		select {
		case <-s.stopC:
			return
		case <-time.After(s.interval):
		}
		s.sampleAll()
	}
}

// sampleAll takes one snapshot round under a global pause.
func (s *Sampler) sampleAll() {
	s.threads.SuspendAll("sampling")
	defer s.threads.ResumeAll()

	s.threads.ForEach(s.sampleThread)
}

// sampleThread diffs t's current stack against the previous snapshot. Frames
// beyond the longest common prefix that only the old stack has produce exit
// records innermost-first; frames only the new stack has produce enter
// records outermost-first; the common prefix produces nothing.
func (s *Sampler) sampleThread(t host.Thread) {
	stack := s.pool.Get().([]host.Method)[:0]
	stack = t.Stack(stack)

	old := s.previous[t.ID()]
	common := 0
	for common < len(old) && common < len(stack) && old[common] == stack[common] {
		common++
	}

	for i := len(old) - 1; i >= common; i-- {
		s.recorder.MethodExited(t, old[i])
	}
	for i := common; i < len(stack); i++ {
		s.recorder.MethodEntered(t, stack[i])
	}

	if old != nil {
		s.pool.Put(old[:0])
	}
	s.previous[t.ID()] = stack
}
